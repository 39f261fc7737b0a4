package models

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rentiq/rentiq_backend/config"
	"github.com/rentiq/rentiq_backend/utils"
	"gorm.io/gorm"
)

type Role struct {
	ID          int           `gorm:"primary_key" json:"id"`
	BusinessId  string        `gorm:"index;size:64;not null" json:"business_id"`
	Name        string        `gorm:"index;size:100;not null" json:"name"`
	RoleModules []*RoleModule `gorm:"foreignKey:RoleId" json:"role_modules"`
	CreatedAt   time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

type RoleModule struct {
	ID             int    `gorm:"primary_key" json:"id"`
	BusinessId     string `gorm:"size:64;not null;index" json:"business_id"`
	RoleId         int    `gorm:"not null;uniqueIndex:uq_role_module,priority:1" json:"role_id"`
	ModuleName     string `gorm:"size:50;not null;uniqueIndex:uq_role_module,priority:2" json:"module_name"`
	AllowedActions string `gorm:"size:100;not null" json:"allowed_actions"`
}

type NewRole struct {
	Name           string              `json:"name" binding:"required"`
	AllowedModules []*NewAllowedModule `json:"allowed_modules"`
}

type NewAllowedModule struct {
	ModuleName     string `json:"module_name"`
	AllowedActions string `json:"allowed_actions"`
}

/*
cache
	AllowedActions:Role:$roleId   module -> actions
*/

func allowedActionsKey(roleId int) string {
	return "AllowedActions:Role:" + fmt.Sprint(roleId)
}

func extractModuleActions(s string) []string {
	var actions []string
	for _, a := range strings.Split(strings.ToLower(s), ";") {
		if a = strings.TrimSpace(a); a != "" {
			actions = append(actions, a)
		}
	}
	return actions
}

func canonicalModule(name string) (string, bool) {
	for _, m := range Modules {
		if strings.EqualFold(m, strings.TrimSpace(name)) {
			return m, true
		}
	}
	return "", false
}

// mapRoleModules checks module names and actions and returns the canonical rows.
func mapRoleModules(input []*NewAllowedModule) ([]*RoleModule, error) {
	seen := make(map[string]bool)
	var roleModules []*RoleModule
	for _, permission := range input {
		module, ok := canonicalModule(permission.ModuleName)
		if !ok {
			return nil, utils.NewValidationError("module_name", "unknown module "+permission.ModuleName)
		}
		if seen[module] {
			return nil, utils.NewValidationError("module_name", "duplicate module "+module)
		}
		seen[module] = true
		actions := utils.UniqueSlice(extractModuleActions(permission.AllowedActions))
		for _, action := range actions {
			if !slices.Contains(Actions, action) {
				return nil, utils.NewValidationError("allowed_actions", "invalid action "+action)
			}
		}
		if len(actions) == 0 {
			continue
		}
		roleModules = append(roleModules, &RoleModule{
			ModuleName:     module,
			AllowedActions: strings.Join(actions, ";"),
		})
	}
	return roleModules, nil
}

func CreateRole(ctx context.Context, input *NewRole) (*Role, error) {
	businessId, err := businessIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return nil, utils.NewValidationError("name", "is required")
	}
	if err := utils.ValidateUnique[Role](ctx, businessId, "name", input.Name, 0); err != nil {
		return nil, ErrDuplicate
	}
	roleModules, err := mapRoleModules(input.AllowedModules)
	if err != nil {
		return nil, err
	}
	role := Role{Name: input.Name, BusinessId: businessId, RoleModules: roleModules}
	err = inTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&role).Error; err != nil {
			return err
		}
		return createHistory(tx, HistoryActionCreate, role.ID, ReferenceTypeRole, nil, role, "Created role "+role.Name)
	})
	if err != nil {
		return nil, err
	}
	return &role, nil
}

func UpdateRole(ctx context.Context, id int, input *NewRole) (*Role, error) {
	businessId, err := businessIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return nil, utils.NewValidationError("name", "is required")
	}
	if err := utils.ValidateUnique[Role](ctx, businessId, "name", input.Name, id); err != nil {
		return nil, ErrDuplicate
	}
	roleModules, err := mapRoleModules(input.AllowedModules)
	if err != nil {
		return nil, err
	}
	var role Role
	err = inTx(ctx, func(tx *gorm.DB) error {
		if err := forUpdate(tx).Where("business_id = ?", businessId).Preload("RoleModules").First(&role, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrorRecordNotFound
			}
			return err
		}
		before := role
		if err := tx.Where("role_id = ?", role.ID).Delete(&RoleModule{}).Error; err != nil {
			return err
		}
		for _, rm := range roleModules {
			rm.RoleId = role.ID
			rm.BusinessId = businessId
		}
		if len(roleModules) > 0 {
			if err := tx.Create(&roleModules).Error; err != nil {
				return err
			}
		}
		if err := tx.Model(&role).Update("name", input.Name).Error; err != nil {
			return err
		}
		role.RoleModules = roleModules
		return createHistory(tx, HistoryActionUpdate, role.ID, ReferenceTypeRole, before, role, "Updated role "+role.Name)
	})
	if err != nil {
		return nil, err
	}
	if err := config.RemoveRedisKey(allowedActionsKey(id)); err != nil {
		config.LogError(config.GetLogger(), "Role", "UpdateRole", "redis invalidate", id, err)
	}
	return &role, nil
}

func DeleteRole(ctx context.Context, id int) (*Role, error) {
	businessId, err := businessIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	var role Role
	err = inTx(ctx, func(tx *gorm.DB) error {
		if err := forUpdate(tx).Where("business_id = ?", businessId).Preload("RoleModules").First(&role, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrorRecordNotFound
			}
			return err
		}
		var count int64
		if err := tx.Model(&User{}).Where("business_id = ? AND role_id = ?", businessId, id).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrRoleInUse
		}
		if err := tx.Where("role_id = ?", id).Delete(&RoleModule{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&role).Error; err != nil {
			return err
		}
		return createHistory(tx, HistoryActionDelete, role.ID, ReferenceTypeRole, role, nil, "Deleted role "+role.Name)
	})
	if err != nil {
		return nil, err
	}
	if err := config.RemoveRedisKey(allowedActionsKey(id)); err != nil {
		config.LogError(config.GetLogger(), "Role", "DeleteRole", "redis invalidate", id, err)
	}
	return &role, nil
}

func GetRole(ctx context.Context, id int) (*Role, error) {
	if _, err := businessIdFromContext(ctx); err != nil {
		return nil, err
	}
	return getRoleWithModules(ctx, id)
}

func getRoleWithModules(ctx context.Context, id int) (*Role, error) {
	businessId, err := businessIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return utils.FetchModel[Role](ctx, businessId, id, "RoleModules")
}

func ListRoles(ctx context.Context) ([]*Role, error) {
	businessId, err := businessIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	db, err := dbFor(ctx)
	if err != nil {
		return nil, err
	}
	var results []*Role
	err = db.Where("business_id = ?", businessId).Preload("RoleModules").Order("name").Find(&results).Error
	return results, err
}

// GetAllowedActions returns module -> actions for roleId, cached in redis.
func GetAllowedActions(ctx context.Context, roleId int) (map[string][]string, error) {
	result := make(map[string][]string)
	exists, err := config.GetRedisObject(allowedActionsKey(roleId), &result)
	if err != nil {
		config.LogError(config.GetLogger(), "Role", "GetAllowedActions", "redis read", roleId, err)
	}
	if exists {
		return result, nil
	}
	db, err := dbFor(ctx)
	if err != nil {
		return nil, err
	}
	var rows []RoleModule
	if err := db.Where("role_id = ?", roleId).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, rm := range rows {
		result[rm.ModuleName] = extractModuleActions(rm.AllowedActions)
	}
	if err := config.SetRedisObject(allowedActionsKey(roleId), result, utils.GetCacheLifespan()); err != nil {
		config.LogError(config.GetLogger(), "Role", "GetAllowedActions", "redis write", roleId, err)
	}
	return result, nil
}

// Authorize reports whether the user may perform action on module.
// Admins and owners may do anything.
func Authorize(ctx context.Context, role UserRole, roleId int, module string, action string) error {
	if role.Privileged() {
		return nil
	}
	if roleId <= 0 {
		return ErrForbidden
	}
	allowed, err := GetAllowedActions(ctx, roleId)
	if err != nil {
		return err
	}
	if CanPerform(allowed, module, action) {
		return nil
	}
	return ErrForbidden
}

// CanPerform looks action up in a module -> actions table.
func CanPerform(allowed map[string][]string, module string, action string) bool {
	return slices.Contains(allowed[module], strings.ToLower(action))
}
