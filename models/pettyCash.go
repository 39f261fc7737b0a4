package models

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rentiq/rentiq_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PettyCash is the cash ledger of one business day.
type PettyCash struct {
	ID             int                 `gorm:"primary_key" json:"id"`
	BusinessId     string              `gorm:"size:64;not null;uniqueIndex:uq_petty_cash_date,priority:1" json:"business_id"`
	Date           time.Time           `gorm:"type:date;not null;uniqueIndex:uq_petty_cash_date,priority:2" json:"date"`
	OpeningBalance decimal.Decimal     `gorm:"type:decimal(20,4);default:0" json:"opening_balance"`
	OpeningCarried bool                `gorm:"not null" json:"opening_carried"`
	CashIn         decimal.Decimal     `gorm:"type:decimal(20,4);default:0" json:"cash_in"`
	TransferOut    decimal.Decimal     `gorm:"type:decimal(20,4);default:0" json:"transfer_out"`
	TotalExpenses  decimal.Decimal     `gorm:"type:decimal(20,4);default:0" json:"total_expenses"`
	ClosingBalance decimal.Decimal     `gorm:"type:decimal(20,4);default:0" json:"closing_balance"`
	Notes          string              `gorm:"type:text" json:"notes"`
	Expenses       []*PettyCashExpense `gorm:"foreignKey:PettyCashId" json:"expenses"`
	CreatedAt      time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

type PettyCashExpense struct {
	ID          int             `gorm:"primary_key" json:"id"`
	BusinessId  string          `gorm:"size:64;not null;index" json:"business_id"`
	PettyCashId int             `gorm:"not null;index" json:"petty_cash_id"`
	Category    string          `gorm:"size:100;not null;index" json:"category"`
	Description string          `gorm:"size:255" json:"description"`
	Amount      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
}

type NewPettyCashExpense struct {
	Category    string          `json:"category" binding:"required"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount" binding:"required"`
}

type NewPettyCash struct {
	// OpeningBalance nil carries the previous day's closing.
	OpeningBalance *decimal.Decimal       `json:"opening_balance"`
	CashIn         decimal.Decimal        `json:"cash_in"`
	TransferOut    decimal.Decimal        `json:"transfer_out"`
	Expenses       []*NewPettyCashExpense `json:"expenses"`
	Notes          string                 `json:"notes"`
}

// PettyCashExpenseKey is the duplicate detection key of an expense line.
func PettyCashExpenseKey(date time.Time, category, description string, amount decimal.Decimal) string {
	return strings.Join([]string{
		utils.DateOnly(date).Format("2006-01-02"),
		strings.ToLower(strings.TrimSpace(category)),
		strings.ToLower(strings.TrimSpace(description)),
		amount.StringFixed(2),
	}, "|")
}

// Recompute refreshes the expense total and the closing balance.
func (p *PettyCash) Recompute() {
	total := decimal.Zero
	for _, e := range p.Expenses {
		total = total.Add(e.Amount)
	}
	p.TotalExpenses = total
	p.ClosingBalance = p.OpeningBalance.Add(p.CashIn).Sub(total).Sub(p.TransferOut)
}

func negativeClosingErr(p *PettyCash) error {
	return fmt.Errorf("%w: %s closes at %s", ErrNegativeClosing, p.Date.Format("2006-01-02"), p.ClosingBalance.StringFixed(2))
}

// RechainPettyCash walks records in date order starting from prevClosing.
// Records with a carried opening take the previous closing. It returns the
// records whose balances changed, or ErrNegativeClosing when any day would
// close below zero.
func RechainPettyCash(prevClosing decimal.Decimal, records []*PettyCash) ([]*PettyCash, error) {
	sorted := make([]*PettyCash, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	var changed []*PettyCash
	prev := prevClosing
	for _, p := range sorted {
		oldOpening, oldClosing := p.OpeningBalance, p.ClosingBalance
		if p.OpeningCarried {
			p.OpeningBalance = prev
		}
		p.Recompute()
		if p.ClosingBalance.IsNegative() {
			return nil, negativeClosingErr(p)
		}
		if !oldOpening.Equal(p.OpeningBalance) || !oldClosing.Equal(p.ClosingBalance) {
			changed = append(changed, p)
		}
		prev = p.ClosingBalance
	}
	return changed, nil
}

func (input *NewPettyCash) validate() error {
	if input.OpeningBalance != nil && input.OpeningBalance.IsNegative() {
		return utils.NewValidationError("opening_balance", "cannot be negative")
	}
	if input.CashIn.IsNegative() {
		return utils.NewValidationError("cash_in", "cannot be negative")
	}
	if input.TransferOut.IsNegative() {
		return utils.NewValidationError("transfer_out", "cannot be negative")
	}
	for _, e := range input.Expenses {
		e.Category = strings.TrimSpace(e.Category)
		e.Description = strings.TrimSpace(e.Description)
		if e.Category == "" {
			return utils.NewValidationError("category", "is required")
		}
		if !e.Amount.IsPositive() {
			return utils.NewValidationError("amount", "must be positive")
		}
	}
	return nil
}

func previousClosing(tx *gorm.DB, businessId string, date time.Time) (decimal.Decimal, error) {
	var prev PettyCash
	err := tx.Where("business_id = ? AND date < ?", businessId, date).Order("date DESC").Take(&prev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return prev.ClosingBalance, nil
}

// rechainAfter re-chains every record after date from closing and saves the
// ones that changed.
func rechainAfter(tx *gorm.DB, businessId string, date time.Time, closing decimal.Decimal) error {
	var later []*PettyCash
	if err := forUpdate(tx).Where("business_id = ? AND date > ?", businessId, date).Preload("Expenses").Order("date").Find(&later).Error; err != nil {
		return err
	}
	changed, err := RechainPettyCash(closing, later)
	if err != nil {
		return err
	}
	for _, p := range changed {
		if err := tx.Model(&PettyCash{}).Where("id = ?", p.ID).Updates(map[string]interface{}{
			"opening_balance": p.OpeningBalance,
			"total_expenses":  p.TotalExpenses,
			"closing_balance": p.ClosingBalance,
		}).Error; err != nil {
			return err
		}
	}
	return nil
}

func lockPettyCashDay(ctx context.Context, businessId string) (func(), error) {
	return utils.BusinessLock(ctx, businessId, "PettyCash", "PettyCash", "SavePettyCash", 30*time.Second)
}

// SavePettyCash creates or replaces the record of date and re-chains later days.
func SavePettyCash(ctx context.Context, date time.Time, input *NewPettyCash) (*PettyCash, error) {
	businessId, err := businessIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if date.IsZero() {
		return nil, utils.NewValidationError("date", "is required")
	}
	date = utils.DateOnly(date)
	if err := input.validate(); err != nil {
		return nil, err
	}
	release, err := lockPettyCashDay(ctx, businessId)
	if err != nil {
		return nil, err
	}
	defer release()

	var record PettyCash
	err = inTx(ctx, func(tx *gorm.DB) error {
		prevClosing, err := previousClosing(tx, businessId, date)
		if err != nil {
			return err
		}
		var before *PettyCash
		err = forUpdate(tx).Where("business_id = ? AND date = ?", businessId, date).Preload("Expenses").Take(&record).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			record = PettyCash{BusinessId: businessId, Date: date}
		case err != nil:
			return err
		default:
			snapshot := record
			before = &snapshot
		}
		record.OpeningCarried = input.OpeningBalance == nil
		if record.OpeningCarried {
			record.OpeningBalance = prevClosing
		} else {
			record.OpeningBalance = *input.OpeningBalance
		}
		record.CashIn = input.CashIn
		record.TransferOut = input.TransferOut
		record.Notes = strings.TrimSpace(input.Notes)
		record.Expenses = nil
		for _, e := range input.Expenses {
			record.Expenses = append(record.Expenses, &PettyCashExpense{
				BusinessId:  businessId,
				Category:    e.Category,
				Description: e.Description,
				Amount:      e.Amount,
			})
		}
		record.Recompute()
		if record.ClosingBalance.IsNegative() {
			return negativeClosingErr(&record)
		}
		if err := savePettyCashRecord(tx, &record); err != nil {
			return err
		}
		if err := rechainAfter(tx, businessId, date, record.ClosingBalance); err != nil {
			return err
		}
		action := HistoryActionCreate
		if before != nil {
			action = HistoryActionUpdate
		}
		if err := createHistory(tx, action, record.ID, ReferenceTypePettyCash, before, record, "Saved petty cash for "+date.Format("2006-01-02")); err != nil {
			return err
		}
		return recordEvent(tx, EventPettyCashSaved, ReferenceTypePettyCash, record.ID, map[string]interface{}{
			"date":            date.Format("2006-01-02"),
			"closing_balance": record.ClosingBalance,
		})
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// savePettyCashRecord writes the header and replaces the expense lines.
func savePettyCashRecord(tx *gorm.DB, record *PettyCash) error {
	expenses := record.Expenses
	record.Expenses = nil
	if record.ID == 0 {
		if err := tx.Create(record).Error; err != nil {
			return translateWriteErr(err, "petty cash date")
		}
	} else {
		if err := tx.Model(record).Select("opening_balance", "opening_carried", "cash_in", "transfer_out", "total_expenses", "closing_balance", "notes").Updates(record).Error; err != nil {
			return err
		}
		if err := tx.Where("petty_cash_id = ?", record.ID).Delete(&PettyCashExpense{}).Error; err != nil {
			return err
		}
	}
	for _, e := range expenses {
		e.ID = 0
		e.PettyCashId = record.ID
		e.BusinessId = record.BusinessId
	}
	if len(expenses) > 0 {
		if err := tx.Create(&expenses).Error; err != nil {
			return err
		}
	}
	record.Expenses = expenses
	return nil
}

// AppendPettyCashExpensesTx adds expense lines to the record of date,
// creating it with a carried opening when missing, then re-chains.
func AppendPettyCashExpensesTx(tx *gorm.DB, businessId string, date time.Time, expenses []*PettyCashExpense) (*PettyCash, error) {
	date = utils.DateOnly(date)
	var record PettyCash
	err := forUpdate(tx).Where("business_id = ? AND date = ?", businessId, date).Preload("Expenses").Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		prevClosing, err := previousClosing(tx, businessId, date)
		if err != nil {
			return nil, err
		}
		record = PettyCash{BusinessId: businessId, Date: date, OpeningBalance: prevClosing, OpeningCarried: true}
	} else if err != nil {
		return nil, err
	}
	record.Expenses = append(record.Expenses, expenses...)
	record.Recompute()
	if record.ClosingBalance.IsNegative() {
		return nil, negativeClosingErr(&record)
	}
	if err := savePettyCashRecord(tx, &record); err != nil {
		return nil, err
	}
	if err := rechainAfter(tx, businessId, date, record.ClosingBalance); err != nil {
		return nil, err
	}
	return &record, nil
}

// GetPettyCash returns the record of date. When none exists it returns an
// unsaved draft (ID 0) whose opening carries the previous closing.
func GetPettyCash(ctx context.Context, date time.Time) (*PettyCash, error) {
	businessId, err := businessIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	db, err := dbFor(ctx)
	if err != nil {
		return nil, err
	}
	date = utils.DateOnly(date)
	var record PettyCash
	err = db.Where("business_id = ? AND date = ?", businessId, date).Preload("Expenses").Take(&record).Error
	if err == nil {
		return &record, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	prevClosing, err := previousClosing(db, businessId, date)
	if err != nil {
		return nil, err
	}
	draft := PettyCash{BusinessId: businessId, Date: date, OpeningBalance: prevClosing, OpeningCarried: true}
	draft.Recompute()
	return &draft, nil
}

func ListPettyCash(ctx context.Context, dateRange DateRange) ([]*PettyCash, error) {
	businessId, err := businessIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	db, err := dbFor(ctx)
	if err != nil {
		return nil, err
	}
	q := dateRange.apply(db.Where("business_id = ?", businessId), "date")
	var results []*PettyCash
	err = q.Preload("Expenses").Order("date").Find(&results).Error
	return results, err
}

// LatestPettyCash is the last record on or before date, or nil.
func LatestPettyCash(ctx context.Context, date time.Time) (*PettyCash, error) {
	businessId, err := businessIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	db, err := dbFor(ctx)
	if err != nil {
		return nil, err
	}
	var record PettyCash
	err = db.Where("business_id = ? AND date <= ?", businessId, utils.DateOnly(date)).Order("date DESC").Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func DeletePettyCash(ctx context.Context, date time.Time) (*PettyCash, error) {
	businessId, err := businessIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	date = utils.DateOnly(date)
	release, err := lockPettyCashDay(ctx, businessId)
	if err != nil {
		return nil, err
	}
	defer release()

	var record PettyCash
	err = inTx(ctx, func(tx *gorm.DB) error {
		if err := forUpdate(tx).Where("business_id = ? AND date = ?", businessId, date).Preload("Expenses").Take(&record).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrorRecordNotFound
			}
			return err
		}
		if err := tx.Where("petty_cash_id = ?", record.ID).Delete(&PettyCashExpense{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&record).Error; err != nil {
			return err
		}
		prevClosing, err := previousClosing(tx, businessId, date)
		if err != nil {
			return err
		}
		if err := rechainAfter(tx, businessId, date, prevClosing); err != nil {
			return err
		}
		if err := createHistory(tx, HistoryActionDelete, record.ID, ReferenceTypePettyCash, record, nil, "Deleted petty cash for "+date.Format("2006-01-02")); err != nil {
			return err
		}
		return recordEvent(tx, EventPettyCashDeleted, ReferenceTypePettyCash, record.ID, map[string]interface{}{"date": date.Format("2006-01-02")})
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}
