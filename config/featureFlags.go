package config

// RequireUserApproval keeps self-registered users out until an admin approves them.
//
// Set via env:
// - REQUIRE_USER_APPROVAL=false to let pending users in
func RequireUserApproval() bool {
	return envBool("REQUIRE_USER_APPROVAL", true)
}

// AllowSelfSignup enables POST /auth/register.
//
// Set via env:
// - ALLOW_SELF_SIGNUP=true
func AllowSelfSignup() bool {
	return envBool("ALLOW_SELF_SIGNUP", true)
}

// SkipMigrations disables AutoMigrate at startup (SKIP_MIGRATIONS=true).
func SkipMigrations() bool {
	return envBool("SKIP_MIGRATIONS", false)
}

func DefaultCountryCode() string {
	if v := getenvTrim("DEFAULT_COUNTRY_CODE"); v != "" {
		return v
	}
	return "IN"
}
