package models

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/rentiq/rentiq_backend/appctx"
	"github.com/rentiq/rentiq_backend/utils"
	"gorm.io/gorm"
)

const maxServiceTokenTTL = 365 * 24 * time.Hour

// ServiceToken records an integration token so it can be listed and revoked.
// The signed JWT itself is never stored.
type ServiceToken struct {
	ID         int        `gorm:"primary_key" json:"id"`
	BusinessId string     `gorm:"index;size:64;not null" json:"business_id"`
	UserId     int        `gorm:"index;not null" json:"user_id"`
	Name       string     `gorm:"size:100;not null" json:"name"`
	ExpiresAt  time.Time  `json:"expires_at"`
	RevokedAt  *time.Time `json:"revoked_at"`
	CreatedBy  int        `gorm:"not null" json:"created_by"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

type NewServiceToken struct {
	Name     string `json:"name" binding:"required"`
	UserId   int    `json:"user_id"`
	TTLHours int    `json:"ttl_hours"`
}

type IssuedServiceToken struct {
	ServiceToken
	Token string `json:"token"`
}

// IssueServiceToken signs a bearer token that acts as input.UserId, or as the
// caller when no user is given.
func IssueServiceToken(ctx context.Context, input *NewServiceToken) (*IssuedServiceToken, error) {
	who, err := actorFromContext(ctx)
	if err != nil {
		return nil, err
	}
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return nil, utils.NewValidationError("name", "is required")
	}
	if input.UserId == 0 {
		input.UserId = who.UserId
	}
	ttl := time.Duration(input.TTLHours) * time.Hour
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	if ttl > maxServiceTokenTTL {
		return nil, utils.NewValidationError("ttl_hours", "is too long")
	}
	user, err := utils.FetchModel[User](ctx, who.BusinessId, input.UserId)
	if err != nil {
		return nil, err
	}
	if err := CheckAccess(user); err != nil {
		return nil, err
	}

	record := ServiceToken{
		BusinessId: who.BusinessId,
		UserId:     user.ID,
		Name:       input.Name,
		ExpiresAt:  time.Now().Add(ttl).UTC(),
		CreatedBy:  who.UserId,
	}
	var signed string
	err = inTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&record).Error; err != nil {
			return err
		}
		var err error
		signed, _, err = utils.JwtGenerate(strconv.Itoa(record.ID), user.ID, who.BusinessId, input.Name, ttl)
		if err != nil {
			return err
		}
		return createHistory(tx, HistoryActionCreate, user.ID, ReferenceTypeUser, nil, record, "Issued service token "+record.Name)
	})
	if err != nil {
		return nil, err
	}
	return &IssuedServiceToken{ServiceToken: record, Token: signed}, nil
}

func ListServiceTokens(ctx context.Context) ([]*ServiceToken, error) {
	businessId, err := businessIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	db, err := dbFor(ctx)
	if err != nil {
		return nil, err
	}
	var results []*ServiceToken
	err = db.Where("business_id = ?", businessId).Order("id DESC").Find(&results).Error
	return results, err
}

func RevokeServiceToken(ctx context.Context, id int) (*ServiceToken, error) {
	businessId, err := businessIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	var record ServiceToken
	err = inTx(ctx, func(tx *gorm.DB) error {
		if err := forUpdate(tx).Where("business_id = ?", businessId).First(&record, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrorRecordNotFound
			}
			return err
		}
		if record.RevokedAt != nil {
			return nil
		}
		now := time.Now().UTC()
		record.RevokedAt = &now
		if err := tx.Model(&record).Update("revoked_at", now).Error; err != nil {
			return err
		}
		return createHistory(tx, HistoryActionDelete, record.UserId, ReferenceTypeUser, nil, record, "Revoked service token "+record.Name)
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// ResolveServiceToken validates a bearer JWT and returns the user it acts as.
func ResolveServiceToken(ctx context.Context, bearer string) (*User, error) {
	claim, err := utils.JwtValidate(bearer)
	if err != nil {
		return nil, err
	}
	tokenId, err := strconv.Atoi(claim.Id)
	if err != nil || tokenId <= 0 {
		return nil, utils.ErrInvalidServiceToken
	}
	ctx = appctx.WithTenant(ctx, claim.BusinessId)
	db, err := dbFor(ctx)
	if err != nil {
		return nil, err
	}
	var record ServiceToken
	if err := db.Where("business_id = ?", claim.BusinessId).First(&record, tokenId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTokenRevoked
		}
		return nil, err
	}
	if record.RevokedAt != nil || record.UserId != claim.UserId {
		return nil, ErrTokenRevoked
	}
	return utils.FetchModel[User](ctx, claim.BusinessId, claim.UserId)
}
