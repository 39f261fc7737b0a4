package models

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/rentiq/rentiq_backend/config"
	"github.com/rentiq/rentiq_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Client struct {
	ID             int             `gorm:"primary_key" json:"id"`
	BusinessId     string          `gorm:"size:64;not null;uniqueIndex:uq_client_name,priority:1" json:"business_id"`
	Name           string          `gorm:"size:100;not null;uniqueIndex:uq_client_name,priority:2" json:"name"`
	Phone          string          `gorm:"size:20;index" json:"phone"`
	Email          string          `gorm:"size:100" json:"email"`
	Address        string          `gorm:"type:text" json:"address"`
	GSTIN          string          `gorm:"column:gstin;size:15" json:"gstin"`
	OpeningBalance decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"opening_balance"`
	CreditLimit    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"credit_limit"`
	IsActive       *bool           `gorm:"not null;default:true" json:"is_active"`
	Notes          string          `gorm:"type:text" json:"notes"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewClient struct {
	Name           string          `json:"name" binding:"required"`
	Phone          string          `json:"phone"`
	Email          string          `json:"email"`
	Address        string          `json:"address"`
	GSTIN          string          `json:"gstin"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	CreditLimit    decimal.Decimal `json:"credit_limit"`
	IsActive       *bool           `json:"is_active"`
	Notes          string          `json:"notes"`
}

type ClientFilter struct {
	Search   string
	IsActive *bool
	Limit    int
	After    string
}

var gstinPattern = regexp.MustCompile(`^[0-9]{2}[A-Z0-9]{10}[0-9A-Z]Z[0-9A-Z]$`)

// ValidGSTIN checks the shape of an Indian GST identification number.
func ValidGSTIN(s string) bool {
	return gstinPattern.MatchString(strings.ToUpper(strings.TrimSpace(s)))
}

func (c Client) GetId() int            { return c.ID }
func (c Client) GetBusinessId() string { return c.BusinessId }

func (c Client) RemoveInstanceRedis() error {
	return utils.RemoveRedisItem[Client](c.ID)
}

// NormalizeClientName is the key used for duplicate detection.
func NormalizeClientName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

func (input *NewClient) validate(ctx context.Context, businessId string, id int) error {
	input.Name = strings.Join(strings.Fields(input.Name), " ")
	if input.Name == "" {
		return utils.NewValidationError("name", "is required")
	}
	if input.Phone != "" {
		phone, err := utils.FormatPhoneNumber(input.Phone, config.DefaultCountryCode())
		if err != nil {
			return utils.NewValidationError("phone", err.Error())
		}
		input.Phone = phone
	}
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	if input.Email != "" && !utils.IsValidEmail(input.Email) {
		return utils.NewValidationError("email", "is invalid")
	}
	input.GSTIN = strings.ToUpper(strings.TrimSpace(input.GSTIN))
	if input.GSTIN != "" && !gstinPattern.MatchString(input.GSTIN) {
		return utils.NewValidationError("gstin", "is invalid")
	}
	if input.CreditLimit.IsNegative() {
		return utils.NewValidationError("credit_limit", "cannot be negative")
	}
	if err := utils.ValidateUnique[Client](ctx, businessId, "name", input.Name, id); err != nil {
		return ErrDuplicate
	}
	return nil
}

func CreateClient(ctx context.Context, input *NewClient) (*Client, error) {
	businessId, err := businessIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := input.validate(ctx, businessId, 0); err != nil {
		return nil, err
	}
	client := Client{
		BusinessId:     businessId,
		Name:           input.Name,
		Phone:          input.Phone,
		Email:          input.Email,
		Address:        input.Address,
		GSTIN:          input.GSTIN,
		OpeningBalance: input.OpeningBalance,
		CreditLimit:    input.CreditLimit,
		IsActive:       boolPtr(input.IsActive == nil || *input.IsActive),
		Notes:          input.Notes,
	}
	err = inTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&client).Error; err != nil {
			return translateWriteErr(err, "client name")
		}
		if err := createHistory(tx, HistoryActionCreate, client.ID, ReferenceTypeClient, nil, client, "Created client "+client.Name); err != nil {
			return err
		}
		return recordEvent(tx, EventClientChanged, ReferenceTypeClient, client.ID, client)
	})
	if err != nil {
		return nil, err
	}
	return &client, nil
}

func UpdateClient(ctx context.Context, id int, input *NewClient) (*Client, error) {
	businessId, err := businessIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := input.validate(ctx, businessId, id); err != nil {
		return nil, err
	}
	var client Client
	err = inTx(ctx, func(tx *gorm.DB) error {
		if err := forUpdate(tx).Where("business_id = ?", businessId).First(&client, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrorRecordNotFound
			}
			return err
		}
		before := client
		updates := map[string]interface{}{
			"Name":           input.Name,
			"Phone":          input.Phone,
			"Email":          input.Email,
			"Address":        input.Address,
			"GSTIN":          input.GSTIN,
			"OpeningBalance": input.OpeningBalance,
			"CreditLimit":    input.CreditLimit,
			"Notes":          input.Notes,
		}
		if input.IsActive != nil {
			updates["IsActive"] = *input.IsActive
		}
		if err := tx.Model(&client).Updates(updates).Error; err != nil {
			return translateWriteErr(err, "client name")
		}
		if err := tx.First(&client, id).Error; err != nil {
			return err
		}
		if err := createHistory(tx, HistoryActionUpdate, client.ID, ReferenceTypeClient, before, client, "Updated client "+client.Name); err != nil {
			return err
		}
		return recordEvent(tx, EventClientChanged, ReferenceTypeClient, client.ID, client)
	})
	if err != nil {
		return nil, err
	}
	if err := client.RemoveInstanceRedis(); err != nil {
		config.LogError(config.GetLogger(), "Client", "UpdateClient", "redis invalidate", id, err)
	}
	return &client, nil
}

func DeleteClient(ctx context.Context, id int) (*Client, error) {
	businessId, err := businessIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	var client Client
	err = inTx(ctx, func(tx *gorm.DB) error {
		if err := forUpdate(tx).Where("business_id = ?", businessId).First(&client, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrorRecordNotFound
			}
			return err
		}
		for _, model := range []interface{}{&Challan{}, &Payment{}} {
			var count int64
			if err := tx.Model(model).Where("business_id = ? AND client_id = ?", businessId, id).Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return ErrClientInUse
			}
		}
		if err := tx.Delete(&client).Error; err != nil {
			return err
		}
		if err := createHistory(tx, HistoryActionDelete, client.ID, ReferenceTypeClient, client, nil, "Deleted client "+client.Name); err != nil {
			return err
		}
		return recordEvent(tx, EventClientChanged, ReferenceTypeClient, client.ID, nil)
	})
	if err != nil {
		return nil, err
	}
	if err := client.RemoveInstanceRedis(); err != nil {
		config.LogError(config.GetLogger(), "Client", "DeleteClient", "redis invalidate", id, err)
	}
	return &client, nil
}

func GetClient(ctx context.Context, id int) (*Client, error) {
	return GetResource[Client](ctx, id)
}

func ToggleActiveClient(ctx context.Context, id int, isActive bool) (*Client, error) {
	return ToggleActiveModel[Client](ctx, id, isActive, ReferenceTypeClient)
}

func ListClients(ctx context.Context, filter ClientFilter) (*Page[Client], error) {
	businessId, err := businessIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	db, err := dbFor(ctx)
	if err != nil {
		return nil, err
	}
	q := db.Model(&Client{}).Where("business_id = ?", businessId)
	if s := strings.TrimSpace(filter.Search); s != "" {
		like := "%" + s + "%"
		q = q.Where("name LIKE ? OR phone LIKE ? OR email LIKE ?", like, like, like)
	}
	if filter.IsActive != nil {
		q = q.Where("is_active = ?", *filter.IsActive)
	}
	return FetchPage[Client](q, filter.Limit, filter.After)
}

// GetClientsByIds is the batch loader behind the client dataloader.
func GetClientsByIds(ctx context.Context, ids []int) (map[int]*Client, error) {
	businessId, err := businessIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	db, err := dbFor(ctx)
	if err != nil {
		return nil, err
	}
	var rows []*Client
	if err := db.Where("business_id = ? AND id IN ?", businessId, utils.UniqueSlice(ids)).Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make(map[int]*Client, len(rows))
	for _, c := range rows {
		result[c.ID] = c
	}
	return result, nil
}

// LoadClients reads every client of the business for report math.
func LoadClients(ctx context.Context) ([]*Client, error) {
	businessId, err := businessIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return utils.FetchAllModels[Client](ctx, businessId)
}
