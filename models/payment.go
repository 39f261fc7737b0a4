package models

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/rentiq/rentiq_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Payment struct {
	ID              int             `gorm:"primary_key" json:"id"`
	BusinessId      string          `gorm:"size:64;not null;index:idx_payment_biz_date,priority:1" json:"business_id"`
	ClientId        int             `gorm:"not null;index" json:"client_id"`
	ChallanId       *int            `gorm:"index" json:"challan_id"`
	PaymentDate     time.Time       `gorm:"type:date;not null;index:idx_payment_biz_date,priority:2" json:"payment_date"`
	Amount          decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	Mode            PaymentMode     `gorm:"type:enum('Cash','Bank','UPI','Cheque');not null" json:"mode"`
	ReferenceNumber string          `gorm:"size:100" json:"reference_number"`
	Notes           string          `gorm:"type:text" json:"notes"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewPayment struct {
	ClientId        int             `json:"client_id" binding:"required"`
	ChallanId       *int            `json:"challan_id"`
	PaymentDate     time.Time       `json:"payment_date" binding:"required"`
	Amount          decimal.Decimal `json:"amount" binding:"required"`
	Mode            PaymentMode     `json:"mode" binding:"required"`
	ReferenceNumber string          `json:"reference_number"`
	Notes           string          `json:"notes"`
}

type PaymentFilter struct {
	ClientId  int
	Mode      *PaymentMode
	DateRange DateRange
	Limit     int
	After     string
}

func (p Payment) GetId() int            { return p.ID }
func (p Payment) GetBusinessId() string { return p.BusinessId }

// PaymentKey is the duplicate detection key of a payment.
func PaymentKey(clientId int, date time.Time, amount decimal.Decimal, reference string) string {
	return strings.Join([]string{
		strconv.Itoa(clientId),
		utils.DateOnly(date).Format("2006-01-02"),
		amount.StringFixed(2),
		strings.ToLower(strings.TrimSpace(reference)),
	}, "|")
}

func (input *NewPayment) validate(tx *gorm.DB, businessId string) error {
	if input.ClientId <= 0 {
		return utils.NewValidationError("client_id", "is required")
	}
	if input.PaymentDate.IsZero() {
		return utils.NewValidationError("payment_date", "is required")
	}
	input.PaymentDate = utils.DateOnly(input.PaymentDate)
	if !input.Amount.IsPositive() {
		return utils.NewValidationError("amount", "must be positive")
	}
	mode, err := ParsePaymentMode(string(input.Mode))
	if err != nil {
		return utils.NewValidationError("mode", err.Error())
	}
	input.Mode = mode
	input.ReferenceNumber = strings.TrimSpace(input.ReferenceNumber)

	var client Client
	if err := tx.Where("business_id = ?", businessId).First(&client, input.ClientId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.NewValidationError("client_id", "client not found")
		}
		return err
	}
	if input.ChallanId != nil && *input.ChallanId == 0 {
		input.ChallanId = nil
	}
	if input.ChallanId != nil {
		var challan Challan
		if err := tx.Where("business_id = ?", businessId).First(&challan, *input.ChallanId).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.NewValidationError("challan_id", "challan not found")
			}
			return err
		}
		if challan.ClientId != input.ClientId {
			return utils.NewValidationError("challan_id", "challan belongs to another client")
		}
	}
	return nil
}

func CreatePayment(ctx context.Context, input *NewPayment) (*Payment, error) {
	businessId, err := businessIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	var payment Payment
	err = inTx(ctx, func(tx *gorm.DB) error {
		if err := input.validate(tx, businessId); err != nil {
			return err
		}
		payment = Payment{
			BusinessId:      businessId,
			ClientId:        input.ClientId,
			ChallanId:       input.ChallanId,
			PaymentDate:     input.PaymentDate,
			Amount:          input.Amount,
			Mode:            input.Mode,
			ReferenceNumber: input.ReferenceNumber,
			Notes:           strings.TrimSpace(input.Notes),
		}
		return createPaymentTx(tx, &payment)
	})
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func createPaymentTx(tx *gorm.DB, payment *Payment) error {
	if err := tx.Create(payment).Error; err != nil {
		return err
	}
	if err := createHistory(tx, HistoryActionCreate, payment.ID, ReferenceTypePayment, nil, payment, "Received payment "+payment.Amount.StringFixed(2)); err != nil {
		return err
	}
	return recordEvent(tx, EventPaymentReceived, ReferenceTypePayment, payment.ID, payment)
}

func UpdatePayment(ctx context.Context, id int, input *NewPayment) (*Payment, error) {
	businessId, err := businessIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	var payment Payment
	err = inTx(ctx, func(tx *gorm.DB) error {
		if err := forUpdate(tx).Where("business_id = ?", businessId).First(&payment, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrorRecordNotFound
			}
			return err
		}
		if err := input.validate(tx, businessId); err != nil {
			return err
		}
		before := payment
		if err := tx.Model(&payment).Updates(map[string]interface{}{
			"ClientId":        input.ClientId,
			"ChallanId":       input.ChallanId,
			"PaymentDate":     input.PaymentDate,
			"Amount":          input.Amount,
			"Mode":            input.Mode,
			"ReferenceNumber": input.ReferenceNumber,
			"Notes":           strings.TrimSpace(input.Notes),
		}).Error; err != nil {
			return err
		}
		if err := tx.First(&payment, id).Error; err != nil {
			return err
		}
		if err := createHistory(tx, HistoryActionUpdate, payment.ID, ReferenceTypePayment, before, payment, "Updated payment"); err != nil {
			return err
		}
		return recordEvent(tx, EventPaymentUpdated, ReferenceTypePayment, payment.ID, payment)
	})
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func DeletePayment(ctx context.Context, id int) (*Payment, error) {
	businessId, err := businessIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	var payment Payment
	err = inTx(ctx, func(tx *gorm.DB) error {
		if err := forUpdate(tx).Where("business_id = ?", businessId).First(&payment, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrorRecordNotFound
			}
			return err
		}
		if err := tx.Delete(&payment).Error; err != nil {
			return err
		}
		if err := createHistory(tx, HistoryActionDelete, payment.ID, ReferenceTypePayment, payment, nil, "Deleted payment"); err != nil {
			return err
		}
		return recordEvent(tx, EventPaymentDeleted, ReferenceTypePayment, payment.ID, payment)
	})
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func GetPayment(ctx context.Context, id int) (*Payment, error) {
	businessId, err := businessIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return utils.FetchModel[Payment](ctx, businessId, id)
}

func ListPayments(ctx context.Context, filter PaymentFilter) (*Page[Payment], error) {
	businessId, err := businessIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	db, err := dbFor(ctx)
	if err != nil {
		return nil, err
	}
	q := db.Model(&Payment{}).Where("business_id = ?", businessId)
	if filter.ClientId > 0 {
		q = q.Where("client_id = ?", filter.ClientId)
	}
	if filter.Mode != nil {
		q = q.Where("mode = ?", *filter.Mode)
	}
	q = filter.DateRange.apply(q, "payment_date")
	return FetchPage[Payment](q, filter.Limit, filter.After)
}

// LoadPayments reads payments for report math, oldest first.
func LoadPayments(ctx context.Context, clientId int, dateRange DateRange) ([]*Payment, error) {
	businessId, err := businessIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	db, err := dbFor(ctx)
	if err != nil {
		return nil, err
	}
	q := db.Where("business_id = ?", businessId)
	if clientId > 0 {
		q = q.Where("client_id = ?", clientId)
	}
	q = dateRange.apply(q, "payment_date")
	var results []*Payment
	err = q.Order("payment_date, id").Find(&results).Error
	return results, err
}
