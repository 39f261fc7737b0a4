package models

import (
	"context"
	"errors"
	"html"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rentiq/rentiq_backend/appctx"
	"github.com/rentiq/rentiq_backend/config"
	"github.com/rentiq/rentiq_backend/utils"
	"gorm.io/gorm"
)

type User struct {
	ID             int            `gorm:"primary_key" json:"id"`
	BusinessId     string         `gorm:"index;size:64;not null" json:"business_id"`
	Username       string         `gorm:"size:100;not null;unique" json:"username"`
	Name           string         `gorm:"size:100;not null" json:"name"`
	Email          *string        `gorm:"size:100;unique" json:"email"`
	Phone          string         `gorm:"size:20" json:"phone"`
	Password       string         `gorm:"size:255;not null" json:"password,omitempty"`
	IsActive       *bool          `gorm:"not null;default:true" json:"is_active"`
	RoleId         int            `gorm:"not null;default:0;index" json:"role_id"`
	Role           UserRole       `gorm:"type:enum('A','O','C');default:C" json:"role"`
	ApprovalStatus ApprovalStatus `gorm:"type:enum('Pending','Approved','Rejected');default:Pending;index" json:"approval_status"`
	ReviewedBy     int            `gorm:"not null;default:0" json:"reviewed_by"`
	ReviewedAt     *time.Time     `json:"reviewed_at"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewUser struct {
	Username string   `json:"username" binding:"required"`
	Name     string   `json:"name" binding:"required"`
	Email    string   `json:"email"`
	Phone    string   `json:"phone"`
	Password string   `json:"password"`
	IsActive *bool    `json:"is_active"`
	Role     UserRole `json:"role"`
	RoleId   int      `json:"role_id"`
}

// NewRegistration is a self sign-up into an existing business.
type NewRegistration struct {
	BusinessId string `json:"business_id" binding:"required"`
	Username   string `json:"username" binding:"required"`
	Name       string `json:"name" binding:"required"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Password   string `json:"password" binding:"required"`
}

type NewBootstrap struct {
	Business NewBusiness `json:"business" binding:"required"`
	Username string      `json:"username" binding:"required"`
	Name     string      `json:"name" binding:"required"`
	Email    string      `json:"email"`
	Password string      `json:"password" binding:"required"`
}

type LoginInfo struct {
	Token          string          `json:"token"`
	ExpiresAt      time.Time       `json:"expires_at"`
	UserId         int             `json:"user_id"`
	Username       string          `json:"username"`
	Name           string          `json:"name"`
	Role           UserRole        `json:"role"`
	RoleName       string          `json:"role_name"`
	ApprovalStatus ApprovalStatus  `json:"approval_status"`
	Modules        []AllowedModule `json:"modules"`
	BusinessId     string          `json:"business_id"`
	BusinessName   string          `json:"business_name"`
	Timezone       string          `json:"timezone"`
	CurrencySymbol string          `json:"currency_symbol"`
}

type AllowedModule struct {
	ModuleName     string `json:"module_name"`
	AllowedActions string `json:"allowed_actions"`
}

/*
caches:
	User:$username
	Token:$token -> username
	Tokens:$username (set of tokens)
*/

func (user *User) PrepareGive() {
	user.Password = ""
}

func (user *User) RemoveInstanceRedis() error {
	return config.RemoveRedisKey("User:" + user.Username)
}

func (user *User) active() bool {
	return user.IsActive == nil || *user.IsActive
}

// CheckAccess is the approval gate. Admins and owners always pass; everyone
// else must be active and approved unless approval is switched off.
func CheckAccess(user *User) error {
	if user == nil {
		return ErrUserRequired
	}
	if !user.active() {
		return ErrUserDisabled
	}
	if user.Role.Privileged() {
		return nil
	}
	switch user.ApprovalStatus {
	case ApprovalStatusApproved:
		return nil
	case ApprovalStatusRejected:
		return ErrUserRejected
	default:
		if !config.RequireUserApproval() {
			return nil
		}
		return ErrUserPending
	}
}

func tokenLifespan() time.Duration {
	hours, err := strconv.Atoi(os.Getenv("TOKEN_HOUR_LIFESPAN"))
	if err != nil || hours <= 0 {
		hours = 24
	}
	return time.Duration(hours) * time.Hour
}

func normalizeUsername(s string) string {
	return html.EscapeString(strings.ToLower(strings.TrimSpace(s)))
}

func (input *NewUser) validate(ctx context.Context, businessId string, exceptId int) error {
	input.Username = normalizeUsername(input.Username)
	input.Name = strings.TrimSpace(input.Name)
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	if input.Username == "" {
		return utils.NewValidationError("username", "is required")
	}
	if input.Name == "" {
		return utils.NewValidationError("name", "is required")
	}
	if input.Email != "" && !utils.IsValidEmail(input.Email) {
		return utils.NewValidationError("email", "is invalid")
	}
	if input.Phone != "" {
		phone, err := utils.FormatPhoneNumber(input.Phone, config.DefaultCountryCode())
		if err != nil {
			return utils.NewValidationError("phone", err.Error())
		}
		input.Phone = phone
	}
	if input.Role == "" {
		input.Role = UserRoleCustom
	}
	if !input.Role.IsValid() {
		return utils.NewValidationError("role", "is invalid")
	}
	if input.Role == UserRoleCustom {
		if input.RoleId <= 0 {
			return utils.NewValidationError("role_id", "is required for custom users")
		}
		if err := utils.ValidateResourceId[Role](ctx, businessId, input.RoleId); err != nil {
			return utils.NewValidationError("role_id", "role not found")
		}
	} else {
		input.RoleId = 0
	}
	// usernames and emails are unique across businesses
	if err := utils.ValidateUnique[User](appctx.WithoutTenantScope(ctx), "", "username", input.Username, exceptId); err != nil {
		return ErrDuplicate
	}
	if input.Email != "" {
		if err := utils.ValidateUnique[User](appctx.WithoutTenantScope(ctx), "", "email", input.Email, exceptId); err != nil {
			return ErrDuplicate
		}
	}
	return nil
}

func adminExists(tx *gorm.DB) (bool, error) {
	var count int64
	err := tx.Model(&User{}).Where("role = ?", UserRoleAdmin).Count(&count).Error
	return count > 0, err
}

// BootstrapAdmin creates the first business and its admin. It refuses once any
// admin exists.
func BootstrapAdmin(ctx context.Context, input *NewBootstrap) (*User, *Business, error) {
	ctx = appctx.WithoutTenantScope(ctx)
	release, err := utils.BusinessLock(ctx, "global", "BootstrapAdmin", "User", "BootstrapAdmin", 30*time.Second)
	if err != nil {
		return nil, nil, err
	}
	defer release()

	userInput := NewUser{Username: input.Username, Name: input.Name, Email: input.Email, Role: UserRoleAdmin}
	if err := userInput.validate(ctx, "", 0); err != nil {
		return nil, nil, err
	}
	hashed, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, nil, utils.NewValidationError("password", err.Error())
	}

	var user User
	var business *Business
	err = inTx(ctx, func(tx *gorm.DB) error {
		exists, err := adminExists(tx)
		if err != nil {
			return err
		}
		if exists {
			return ErrAdminExists
		}
		business, err = createBusinessTx(tx, &input.Business)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		user = User{
			BusinessId:     business.ID.String(),
			Username:       userInput.Username,
			Name:           userInput.Name,
			Email:          utils.NilIfEmpty(userInput.Email),
			Password:       string(hashed),
			IsActive:       boolPtr(true),
			Role:           UserRoleAdmin,
			ApprovalStatus: ApprovalStatusApproved,
			ReviewedAt:     &now,
		}
		if err := tx.Create(&user).Error; err != nil {
			return translateWriteErr(err, "username")
		}
		htx := tx.WithContext(userScopedContext(ctx, &user))
		return createHistory(htx, HistoryActionCreate, user.ID, ReferenceTypeUser, nil, user.redacted(), "Bootstrapped admin "+user.Username)
	})
	if err != nil {
		return nil, nil, err
	}
	user.PrepareGive()
	return &user, business, nil
}

// userScopedContext acts as user within user's business.
func userScopedContext(ctx context.Context, user *User) context.Context {
	ctx = utils.SetBusinessIdInContext(ctx, user.BusinessId)
	ctx = utils.SetUserIdInContext(ctx, user.ID)
	ctx = utils.SetUsernameInContext(ctx, user.Username)
	ctx = utils.SetUserNameInContext(ctx, user.Name)
	return utils.SetRoleInContext(ctx, string(user.Role), user.RoleId)
}

// ContextWithUser returns ctx acting as user. The auth middlewares use it for
// every authenticated request.
func ContextWithUser(ctx context.Context, user *User) context.Context {
	return userScopedContext(ctx, user)
}

func (user User) redacted() User {
	user.Password = ""
	return user
}

// RegisterUser signs up a custom user into an existing business.
func RegisterUser(ctx context.Context, input *NewRegistration) (*User, error) {
	if !config.AllowSelfSignup() {
		return nil, ErrSignupDisabled
	}
	ctx = appctx.WithoutTenantScope(ctx)
	if _, err := GetBusinessById(ctx, strings.TrimSpace(input.BusinessId)); err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, utils.NewValidationError("business_id", "business not found")
		}
		return nil, err
	}
	userInput := NewUser{Username: input.Username, Name: input.Name, Email: input.Email, Phone: input.Phone, Role: UserRoleOwner}
	if err := userInput.validate(ctx, "", 0); err != nil {
		return nil, err
	}
	hashed, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, utils.NewValidationError("password", err.Error())
	}
	status := ApprovalStatusPending
	if !config.RequireUserApproval() {
		status = ApprovalStatusApproved
	}
	user := User{
		BusinessId:     strings.TrimSpace(input.BusinessId),
		Username:       userInput.Username,
		Name:           userInput.Name,
		Email:          utils.NilIfEmpty(userInput.Email),
		Phone:          userInput.Phone,
		Password:       string(hashed),
		IsActive:       boolPtr(true),
		Role:           UserRoleCustom,
		ApprovalStatus: status,
	}
	err = inTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			return translateWriteErr(err, "username")
		}
		htx := tx.WithContext(userScopedContext(ctx, &user))
		return createHistory(htx, HistoryActionCreate, user.ID, ReferenceTypeUser, nil, user.redacted(), "Registered "+user.Username)
	})
	if err != nil {
		return nil, err
	}
	user.PrepareGive()
	return &user, nil
}

func findUserByUsername(ctx context.Context, username string) (*User, error) {
	var user User
	exists, err := config.GetRedisObject("User:"+username, &user)
	if err != nil {
		config.LogError(config.GetLogger(), "User", "findUserByUsername", "redis read", username, err)
	}
	if exists {
		return &user, nil
	}
	db, err := dbFor(appctx.WithoutTenantScope(ctx))
	if err != nil {
		return nil, err
	}
	if err := db.Where("username = ?", username).Take(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	if err := config.SetRedisObject("User:"+username, &user, utils.GetCacheLifespan()); err != nil {
		config.LogError(config.GetLogger(), "User", "findUserByUsername", "redis write", username, err)
	}
	return &user, nil
}

func Login(ctx context.Context, username string, password string) (*LoginInfo, error) {
	user, err := findUserByUsername(ctx, normalizeUsername(username))
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, ErrInvalidLogin
		}
		return nil, err
	}
	if err := utils.ComparePassword(user.Password, password); err != nil {
		return nil, ErrInvalidLogin
	}
	if !user.active() {
		return nil, ErrUserDisabled
	}
	if user.ApprovalStatus == ApprovalStatusRejected && !user.Role.Privileged() {
		return nil, ErrUserRejected
	}

	info, err := buildLoginInfo(ctx, user)
	if err != nil {
		return nil, err
	}

	token := uuid.NewString()
	lifespan := tokenLifespan()
	if err := config.AddRedisSet("Tokens:"+user.Username, token); err != nil {
		return nil, err
	}
	if err := config.SetRedisValue("Token:"+token, user.Username, lifespan); err != nil {
		return nil, err
	}
	info.Token = token
	info.ExpiresAt = time.Now().Add(lifespan)
	return info, nil
}

func buildLoginInfo(ctx context.Context, user *User) (*LoginInfo, error) {
	business, err := GetBusinessById(ctx, user.BusinessId)
	if err != nil {
		return nil, err
	}
	info := LoginInfo{
		UserId:         user.ID,
		Username:       user.Username,
		Name:           user.Name,
		Role:           user.Role,
		ApprovalStatus: user.ApprovalStatus,
		BusinessId:     user.BusinessId,
		BusinessName:   business.Name,
		Timezone:       business.Timezone,
		CurrencySymbol: business.CurrencySymbol,
	}
	switch user.Role {
	case UserRoleAdmin:
		info.RoleName = "Admin"
	case UserRoleOwner:
		info.RoleName = "Owner"
	default:
		role, err := getRoleWithModules(appctx.WithTenant(ctx, user.BusinessId), user.RoleId)
		if err != nil && !errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, err
		}
		if role != nil {
			info.RoleName = role.Name
			for _, rm := range role.RoleModules {
				info.Modules = append(info.Modules, AllowedModule{ModuleName: rm.ModuleName, AllowedActions: rm.AllowedActions})
			}
		}
	}
	if user.Role.Privileged() {
		all := strings.Join(Actions, ";")
		for _, m := range Modules {
			info.Modules = append(info.Modules, AllowedModule{ModuleName: m, AllowedActions: all})
		}
	}
	return &info, nil
}

// ResolveSession maps a session token to its user. A missing or expired
// session yields ErrorRecordNotFound.
func ResolveSession(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, utils.ErrorRecordNotFound
	}
	username, ok, err := config.GetRedisValue("Token:" + token)
	if err != nil {
		return nil, err
	}
	if !ok || username == "" {
		return nil, utils.ErrorRecordNotFound
	}
	return findUserByUsername(ctx, username)
}

// Me returns the login info of the current session without a new token.
func Me(ctx context.Context) (*LoginInfo, error) {
	username, ok := utils.GetUsernameFromContext(ctx)
	if !ok || username == "" {
		return nil, ErrUserRequired
	}
	user, err := findUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return buildLoginInfo(ctx, user)
}

// Logout destroys the current session.
func Logout(ctx context.Context) error {
	token, ok := utils.GetTokenFromContext(ctx)
	if !ok || token == "" {
		return errors.New("token is required")
	}
	if err := config.RemoveRedisKey("Token:" + token); err != nil {
		return err
	}
	username, ok := utils.GetUsernameFromContext(ctx)
	if !ok || username == "" {
		return ErrUserRequired
	}
	return config.RemoveRedisSetMember("Tokens:"+username, token)
}

func (user *User) DestroyAllSessions() error {
	allTokens, err := config.GetRedisSetMembers("Tokens:" + user.Username)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(allTokens)+2)
	for _, token := range allTokens {
		keys = append(keys, "Token:"+token)
	}
	keys = append(keys, "Tokens:"+user.Username, "User:"+user.Username)
	return config.RemoveRedisKey(keys...)
}

func ChangePassword(ctx context.Context, oldPassword string, newPassword string) error {
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId == 0 {
		return ErrUserRequired
	}
	hashed, err := utils.HashPassword(newPassword)
	if err != nil {
		return utils.NewValidationError("new_password", err.Error())
	}
	var user User
	err = inTx(ctx, func(tx *gorm.DB) error {
		if err := forUpdate(tx).First(&user, userId).Error; err != nil {
			return err
		}
		if err := utils.ComparePassword(user.Password, oldPassword); err != nil {
			return utils.NewValidationError("old_password", "is wrong")
		}
		if err := tx.Model(&user).UpdateColumn("password", string(hashed)).Error; err != nil {
			return err
		}
		return createHistory(tx, HistoryActionUpdate, user.ID, ReferenceTypeUser, nil, nil, "Changed password")
	})
	if err != nil {
		return err
	}
	return user.DestroyAllSessions()
}

func ListUsers(ctx context.Context, status *ApprovalStatus) ([]*User, error) {
	businessId, err := businessIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	db, err := dbFor(ctx)
	if err != nil {
		return nil, err
	}
	q := db.Where("business_id = ?", businessId)
	if status != nil {
		q = q.Where("approval_status = ?", *status)
	}
	var results []*User
	if err := q.Order("name").Find(&results).Error; err != nil {
		return nil, err
	}
	for _, u := range results {
		u.PrepareGive()
	}
	return results, nil
}

func GetUser(ctx context.Context, id int) (*User, error) {
	businessId, err := businessIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	user, err := utils.FetchModel[User](ctx, businessId, id)
	if err != nil {
		return nil, err
	}
	user.PrepareGive()
	return user, nil
}

// CreateUser adds a user to the current business. Users created by an admin
// are approved immediately.
func CreateUser(ctx context.Context, input *NewUser) (*User, error) {
	who, err := actorFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := input.validate(ctx, who.BusinessId, 0); err != nil {
		return nil, err
	}
	if input.Role == UserRoleAdmin {
		return nil, utils.NewValidationError("role", "admin accounts are created by bootstrap only")
	}
	hashed, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, utils.NewValidationError("password", err.Error())
	}
	now := time.Now().UTC()
	user := User{
		BusinessId:     who.BusinessId,
		Username:       input.Username,
		Name:           input.Name,
		Email:          utils.NilIfEmpty(input.Email),
		Phone:          input.Phone,
		Password:       string(hashed),
		IsActive:       boolPtr(input.IsActive == nil || *input.IsActive),
		Role:           input.Role,
		RoleId:         input.RoleId,
		ApprovalStatus: ApprovalStatusApproved,
		ReviewedBy:     who.UserId,
		ReviewedAt:     &now,
	}
	err = inTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			return translateWriteErr(err, "username")
		}
		return createHistory(tx, HistoryActionCreate, user.ID, ReferenceTypeUser, nil, user.redacted(), "Created user "+user.Username)
	})
	if err != nil {
		return nil, err
	}
	user.PrepareGive()
	return &user, nil
}

// mutateUser locks the user row, applies fn and records history. Sessions and
// cache entries are dropped afterwards when dropSessions is set.
func mutateUser(ctx context.Context, id int, description string, dropSessions bool, fn func(tx *gorm.DB, user *User) error) (*User, error) {
	businessId, err := businessIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	var user User
	var previousUsername string
	err = inTx(ctx, func(tx *gorm.DB) error {
		if err := forUpdate(tx).Where("business_id = ?", businessId).First(&user, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrorRecordNotFound
			}
			return err
		}
		before := user.redacted()
		previousUsername = user.Username
		if err := fn(tx, &user); err != nil {
			return err
		}
		return createHistory(tx, HistoryActionUpdate, user.ID, ReferenceTypeUser, before, user.redacted(), description)
	})
	if err != nil {
		return nil, err
	}
	stale := User{Username: previousUsername}
	if dropSessions {
		if err := stale.DestroyAllSessions(); err != nil {
			config.LogError(config.GetLogger(), "User", "mutateUser", "destroy sessions", id, err)
		}
	} else if err := stale.RemoveInstanceRedis(); err != nil {
		config.LogError(config.GetLogger(), "User", "mutateUser", "redis invalidate", id, err)
	}
	user.PrepareGive()
	return &user, nil
}

func UpdateUser(ctx context.Context, id int, input *NewUser) (*User, error) {
	businessId, err := businessIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := input.validate(ctx, businessId, id); err != nil {
		return nil, err
	}
	return mutateUser(ctx, id, "Updated user", true, func(tx *gorm.DB, user *User) error {
		if user.Role == UserRoleAdmin && input.Role != UserRoleAdmin {
			if err := ensureAnotherAdmin(tx, user.ID); err != nil {
				return err
			}
		}
		if input.Role == UserRoleAdmin && user.Role != UserRoleAdmin {
			return utils.NewValidationError("role", "admin accounts are created by bootstrap only")
		}
		updates := map[string]interface{}{
			"Username": input.Username,
			"Name":     input.Name,
			"Email":    utils.NilIfEmpty(input.Email),
			"Phone":    input.Phone,
			"Role":     input.Role,
			"RoleId":   input.RoleId,
		}
		if input.IsActive != nil {
			updates["IsActive"] = input.IsActive
		}
		if input.Password != "" {
			hashed, err := utils.HashPassword(input.Password)
			if err != nil {
				return utils.NewValidationError("password", err.Error())
			}
			updates["Password"] = string(hashed)
		}
		if err := tx.Model(user).Updates(updates).Error; err != nil {
			return translateWriteErr(err, "username")
		}
		return tx.First(user, user.ID).Error
	})
}

func ToggleActiveUser(ctx context.Context, id int, isActive bool) (*User, error) {
	return mutateUser(ctx, id, "Toggled user active", !isActive, func(tx *gorm.DB, user *User) error {
		if !isActive && user.Role == UserRoleAdmin {
			if err := ensureAnotherAdmin(tx, user.ID); err != nil {
				return err
			}
		}
		user.IsActive = boolPtr(isActive)
		return tx.Model(user).UpdateColumn("is_active", isActive).Error
	})
}

func ApproveUser(ctx context.Context, id int) (*User, error) {
	return reviewUser(ctx, id, ApprovalStatusApproved)
}

// RejectUser also ends every session of the user.
func RejectUser(ctx context.Context, id int) (*User, error) {
	return reviewUser(ctx, id, ApprovalStatusRejected)
}

func reviewUser(ctx context.Context, id int, status ApprovalStatus) (*User, error) {
	reviewer, ok := utils.GetUserIdFromContext(ctx)
	if !ok || reviewer == 0 {
		return nil, ErrUserRequired
	}
	if reviewer == id {
		return nil, utils.NewValidationError("id", "cannot review yourself")
	}
	return mutateUser(ctx, id, "Marked user "+string(status), status == ApprovalStatusRejected, func(tx *gorm.DB, user *User) error {
		if user.Role.Privileged() {
			return utils.NewValidationError("id", "admins and owners need no approval")
		}
		now := time.Now().UTC()
		user.ApprovalStatus = status
		user.ReviewedBy = reviewer
		user.ReviewedAt = &now
		return tx.Model(user).Updates(map[string]interface{}{
			"ApprovalStatus": status,
			"ReviewedBy":     reviewer,
			"ReviewedAt":     &now,
		}).Error
	})
}

func ensureAnotherAdmin(tx *gorm.DB, exceptId int) error {
	var count int64
	if err := tx.Model(&User{}).Where("role = ? AND is_active = ? AND id <> ?", UserRoleAdmin, true, exceptId).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrLastAdmin
	}
	return nil
}

func DeleteUser(ctx context.Context, id int) (*User, error) {
	businessId, err := businessIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if self, _ := utils.GetUserIdFromContext(ctx); self == id {
		return nil, utils.NewValidationError("id", "cannot delete yourself")
	}
	var user User
	err = inTx(ctx, func(tx *gorm.DB) error {
		if err := forUpdate(tx).Where("business_id = ?", businessId).First(&user, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrorRecordNotFound
			}
			return err
		}
		if user.Role == UserRoleAdmin {
			if err := ensureAnotherAdmin(tx, user.ID); err != nil {
				return err
			}
		}
		if err := tx.Delete(&user).Error; err != nil {
			return err
		}
		return createHistory(tx, HistoryActionDelete, user.ID, ReferenceTypeUser, user.redacted(), nil, "Deleted user "+user.Username)
	})
	if err != nil {
		return nil, err
	}
	if err := user.DestroyAllSessions(); err != nil {
		config.LogError(config.GetLogger(), "User", "DeleteUser", "destroy sessions", id, err)
	}
	user.PrepareGive()
	return &user, nil
}

// ActAs returns ctx acting as the active, approved user with username. Batch
// jobs use it so their writes are audited against a real account.
func ActAs(ctx context.Context, username string) (context.Context, *User, error) {
	user, err := findUserByUsername(ctx, normalizeUsername(username))
	if err != nil {
		return nil, nil, err
	}
	if err := CheckAccess(user); err != nil {
		return nil, nil, err
	}
	return ContextWithUser(ctx, user), user, nil
}
