package models

import (
	"errors"
	"testing"
)

func TestCheckAccess(t *testing.T) {
	t.Setenv("REQUIRE_USER_APPROVAL", "true")
	disabled := false
	cases := []struct {
		name string
		user *User
		want error
	}{
		{"nil", nil, ErrUserRequired},
		{"admin pending", &User{Role: UserRoleAdmin, ApprovalStatus: ApprovalStatusPending}, nil},
		{"owner", &User{Role: UserRoleOwner}, nil},
		{"approved", &User{Role: UserRoleCustom, ApprovalStatus: ApprovalStatusApproved}, nil},
		{"pending", &User{Role: UserRoleCustom, ApprovalStatus: ApprovalStatusPending}, ErrUserPending},
		{"rejected", &User{Role: UserRoleCustom, ApprovalStatus: ApprovalStatusRejected}, ErrUserRejected},
		{"disabled admin", &User{Role: UserRoleAdmin, IsActive: &disabled}, ErrUserDisabled},
	}
	for _, c := range cases {
		if err := CheckAccess(c.user); !errors.Is(err, c.want) {
			t.Fatalf("%s: got %v, want %v", c.name, err, c.want)
		}
	}
}

func TestCheckAccessWithoutApproval(t *testing.T) {
	t.Setenv("REQUIRE_USER_APPROVAL", "false")
	if err := CheckAccess(&User{Role: UserRoleCustom, ApprovalStatus: ApprovalStatusPending}); err != nil {
		t.Fatalf("pending user should pass, got %v", err)
	}
	if err := CheckAccess(&User{Role: UserRoleCustom, ApprovalStatus: ApprovalStatusRejected}); !errors.Is(err, ErrUserRejected) {
		t.Fatalf("rejected user should stay out, got %v", err)
	}
}

func TestMapRoleModules(t *testing.T) {
	rows, err := mapRoleModules([]*NewAllowedModule{
		{ModuleName: "challan", AllowedActions: "Read; create;read"},
		{ModuleName: "Report", AllowedActions: ""},
	})
	if err != nil {
		t.Fatalf("mapRoleModules: %v", err)
	}
	if len(rows) != 1 || rows[0].ModuleName != ModuleChallan || rows[0].AllowedActions != "read;create" {
		t.Fatalf("unexpected rows: %+v", rows[0])
	}

	if _, err := mapRoleModules([]*NewAllowedModule{{ModuleName: "Ledger", AllowedActions: "read"}}); err == nil {
		t.Fatal("unknown module should fail")
	}
	if _, err := mapRoleModules([]*NewAllowedModule{{ModuleName: "Client", AllowedActions: "approve"}}); err == nil {
		t.Fatal("unknown action should fail")
	}
	if _, err := mapRoleModules([]*NewAllowedModule{
		{ModuleName: "Client", AllowedActions: "read"},
		{ModuleName: "client", AllowedActions: "update"},
	}); err == nil {
		t.Fatal("duplicate module should fail")
	}
}

func TestCanPerform(t *testing.T) {
	allowed := map[string][]string{ModulePayment: {"read", "create"}}
	if !CanPerform(allowed, ModulePayment, "CREATE") {
		t.Fatal("create should be allowed")
	}
	if CanPerform(allowed, ModulePayment, ActionDelete) {
		t.Fatal("delete should be denied")
	}
	if CanPerform(allowed, ModuleChallan, ActionRead) {
		t.Fatal("unlisted module should be denied")
	}
}

func TestCursorRoundTrip(t *testing.T) {
	id, err := DecodeCursor(EncodeCursor(42))
	if err != nil || id != 42 {
		t.Fatalf("round trip = %d, %v", id, err)
	}
	if id, err := DecodeCursor(""); err != nil || id != 0 {
		t.Fatalf("empty cursor = %d, %v", id, err)
	}
	if _, err := DecodeCursor("%%%"); err == nil {
		t.Fatal("garbage cursor should fail")
	}
	if clampPageSize(0) != DefaultPageSize || clampPageSize(10000) != MaxPageSize || clampPageSize(7) != 7 {
		t.Fatal("page size not clamped")
	}
}

func TestParseImportEntity(t *testing.T) {
	for in, want := range map[string]ImportEntity{"Clients": ImportEntityClients, "petty-cash": ImportEntityPettyCash, " inventory ": ImportEntityInventory} {
		got, err := ParseImportEntity(in)
		if err != nil || got != want {
			t.Fatalf("ParseImportEntity(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseImportEntity("invoices"); err == nil {
		t.Fatal("unknown entity should fail")
	}
}

func TestOwnedObjectKey(t *testing.T) {
	key, err := ownedObjectKey("biz-1", "uploads/biz-1/2024/a.png")
	if err != nil || key != "uploads/biz-1/2024/a.png" {
		t.Fatalf("key = %q, %v", key, err)
	}
	if _, err := ownedObjectKey("biz-1", "uploads/biz-2/2024/a.png"); err == nil {
		t.Fatal("foreign key should fail")
	}
}
