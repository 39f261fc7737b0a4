package models

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/rentiq/rentiq_backend/utils"
	"gorm.io/gorm"
)

const ImportBatchSize = 200

type ImportEntity string

const (
	ImportEntityClients   ImportEntity = "clients"
	ImportEntityInventory ImportEntity = "inventory"
	ImportEntityPayments  ImportEntity = "payments"
	ImportEntityPettyCash ImportEntity = "pettycash"
)

var ImportEntities = []ImportEntity{ImportEntityClients, ImportEntityInventory, ImportEntityPayments, ImportEntityPettyCash}

func ParseImportEntity(s string) (ImportEntity, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.NewReplacer("-", "", "_", "", " ", "").Replace(v)
	for _, e := range ImportEntities {
		if string(e) == v {
			return e, nil
		}
	}
	return "", utils.NewValidationError("entity", "unknown import entity "+s)
}

type ImportStatus string

const (
	ImportStatusValidated ImportStatus = "Validated"
	ImportStatusCommitted ImportStatus = "Committed"
	ImportStatusRejected  ImportStatus = "Rejected"
)

// ImportJob records the outcome of one imported file.
type ImportJob struct {
	ID         int          `gorm:"primary_key" json:"id"`
	BusinessId string       `gorm:"size:64;not null;index" json:"business_id"`
	Entity     ImportEntity `gorm:"size:20;not null" json:"entity"`
	FileName   string       `gorm:"size:255" json:"file_name"`
	Source     string       `gorm:"size:20" json:"source"`
	DryRun     bool         `gorm:"not null" json:"dry_run"`
	Strict     bool         `gorm:"not null" json:"strict"`
	Status     ImportStatus `gorm:"size:20;not null" json:"status"`
	Total      int          `json:"total"`
	Valid      int          `json:"valid"`
	Invalid    int          `json:"invalid"`
	Skipped    int          `json:"skipped"`
	Inserted   int          `json:"inserted"`
	Errors     string       `gorm:"type:mediumtext" json:"-"`
	UserId     int          `json:"user_id"`
	UserName   string       `gorm:"size:100" json:"user_name"`
	CreatedAt  time.Time    `gorm:"autoCreateTime" json:"created_at"`
}

// SetErrors stores the row errors as JSON on the job.
func (job *ImportJob) SetErrors(v interface{}) {
	b, err := json.Marshal(v)
	if err == nil {
		job.Errors = string(b)
	}
}

// ImportBatch holds the validated records of one file.
type ImportBatch struct {
	Clients   []*Client
	Items     []*InventoryItem
	Payments  []*Payment
	PettyCash []*DatedExpense
}

// DatedExpense is a petty cash expense line and the day it belongs to.
type DatedExpense struct {
	Date    time.Time
	Expense *PettyCashExpense
}

func (b *ImportBatch) Len() int {
	return len(b.Clients) + len(b.Items) + len(b.Payments) + len(b.PettyCash)
}

// RecordImportJob stores a job that wrote nothing.
func RecordImportJob(ctx context.Context, job *ImportJob) error {
	who, err := actorFromContext(ctx)
	if err != nil {
		return err
	}
	db, err := dbFor(ctx)
	if err != nil {
		return err
	}
	job.BusinessId = who.BusinessId
	job.UserId = who.UserId
	job.UserName = who.UserName
	return db.Create(job).Error
}

// CommitImport writes batch in one transaction and records job with it.
func CommitImport(ctx context.Context, job *ImportJob, batch *ImportBatch) error {
	who, err := actorFromContext(ctx)
	if err != nil {
		return err
	}
	job.BusinessId = who.BusinessId
	job.UserId = who.UserId
	job.UserName = who.UserName
	now := time.Now()

	return inTx(ctx, func(tx *gorm.DB) error {
		for _, c := range batch.Clients {
			c.BusinessId = who.BusinessId
			if c.IsActive == nil {
				c.IsActive = boolPtr(true)
			}
		}
		if len(batch.Clients) > 0 {
			if err := tx.CreateInBatches(batch.Clients, ImportBatchSize).Error; err != nil {
				return translateWriteErr(err, "client name")
			}
		}

		for _, item := range batch.Items {
			item.BusinessId = who.BusinessId
			if item.IsActive == nil {
				item.IsActive = boolPtr(true)
			}
		}
		if len(batch.Items) > 0 {
			if err := tx.CreateInBatches(batch.Items, ImportBatchSize).Error; err != nil {
				return translateWriteErr(err, "item code")
			}
			var movements []*StockMovement
			for _, item := range batch.Items {
				if item.TotalQuantity == 0 {
					continue
				}
				movements = append(movements, &StockMovement{
					BusinessId:    who.BusinessId,
					ItemId:        item.ID,
					MovementType:  MovementTypeOpening,
					Quantity:      item.TotalQuantity,
					TotalChange:   item.TotalQuantity,
					ReferenceType: ReferenceTypeImportJob,
					Reason:        "imported opening stock",
					MovementDate:  now,
					UserId:        who.UserId,
				})
			}
			if len(movements) > 0 {
				if err := tx.CreateInBatches(movements, ImportBatchSize).Error; err != nil {
					return err
				}
			}
		}

		for _, p := range batch.Payments {
			p.BusinessId = who.BusinessId
			p.PaymentDate = utils.DateOnly(p.PaymentDate)
		}
		if len(batch.Payments) > 0 {
			if err := tx.CreateInBatches(batch.Payments, ImportBatchSize).Error; err != nil {
				return err
			}
		}

		if err := commitPettyCashLines(tx, who.BusinessId, batch.PettyCash); err != nil {
			return err
		}

		job.Inserted = batch.Len()
		job.Status = ImportStatusCommitted
		if err := tx.Create(job).Error; err != nil {
			return err
		}
		// stock movements of imported items point at the job
		if len(batch.Items) > 0 {
			ids := make([]int, len(batch.Items))
			for i, item := range batch.Items {
				ids[i] = item.ID
			}
			if err := tx.Model(&StockMovement{}).
				Where("business_id = ? AND reference_type = ? AND reference_id = 0 AND item_id IN ?", who.BusinessId, ReferenceTypeImportJob, ids).
				Update("reference_id", job.ID).Error; err != nil {
				return err
			}
		}
		description := "Imported " + string(job.Entity) + " from " + job.FileName
		if err := createHistory(tx, HistoryActionImport, job.ID, ReferenceTypeImportJob, nil, job, description); err != nil {
			return err
		}
		return recordEvent(tx, EventImportCompleted, ReferenceTypeImportJob, job.ID, job)
	})
}

// commitPettyCashLines appends lines day by day in date order so carried
// openings chain forward correctly.
func commitPettyCashLines(tx *gorm.DB, businessId string, lines []*DatedExpense) error {
	if len(lines) == 0 {
		return nil
	}
	byDay := map[time.Time][]*PettyCashExpense{}
	var days []time.Time
	for _, line := range lines {
		day := utils.DateOnly(line.Date)
		if _, ok := byDay[day]; !ok {
			days = append(days, day)
		}
		line.Expense.BusinessId = businessId
		byDay[day] = append(byDay[day], line.Expense)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	for _, day := range days {
		if _, err := AppendPettyCashExpensesTx(tx, businessId, day, byDay[day]); err != nil {
			return err
		}
	}
	return nil
}

func ListImportJobs(ctx context.Context, limit int, after string) (*Page[ImportJob], error) {
	businessId, err := businessIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	db, err := dbFor(ctx)
	if err != nil {
		return nil, err
	}
	return FetchPage[ImportJob](db.Model(&ImportJob{}).Where("business_id = ?", businessId), limit, after)
}

func (job ImportJob) GetId() int { return job.ID }

// ExistingClientKeys maps normalised client names to ids.
func ExistingClientKeys(ctx context.Context) (map[string]int, error) {
	businessId, err := businessIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	db, err := dbFor(ctx)
	if err != nil {
		return nil, err
	}
	var rows []Client
	if err := db.Select("id", "name").Where("business_id = ?", businessId).Find(&rows).Error; err != nil {
		return nil, err
	}
	keys := make(map[string]int, len(rows))
	for _, r := range rows {
		keys[NormalizeClientName(r.Name)] = r.ID
	}
	return keys, nil
}

func ExistingItemCodes(ctx context.Context) (map[string]bool, error) {
	businessId, err := businessIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	db, err := dbFor(ctx)
	if err != nil {
		return nil, err
	}
	var codes []string
	if err := db.Model(&InventoryItem{}).Where("business_id = ?", businessId).Pluck("code", &codes).Error; err != nil {
		return nil, err
	}
	keys := make(map[string]bool, len(codes))
	for _, c := range codes {
		keys[NormalizeItemCode(c)] = true
	}
	return keys, nil
}

func ExistingPaymentKeys(ctx context.Context, dateRange DateRange) (map[string]bool, error) {
	businessId, err := businessIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	db, err := dbFor(ctx)
	if err != nil {
		return nil, err
	}
	var rows []Payment
	q := db.Select("client_id", "payment_date", "amount", "reference_number").Where("business_id = ?", businessId)
	if err := dateRange.apply(q, "payment_date").Find(&rows).Error; err != nil {
		return nil, err
	}
	keys := make(map[string]bool, len(rows))
	for _, r := range rows {
		keys[PaymentKey(r.ClientId, r.PaymentDate, r.Amount, r.ReferenceNumber)] = true
	}
	return keys, nil
}

func ExistingPettyCashExpenseKeys(ctx context.Context, dateRange DateRange) (map[string]bool, error) {
	records, err := ListPettyCash(ctx, dateRange)
	if err != nil {
		return nil, err
	}
	keys := map[string]bool{}
	for _, r := range records {
		for _, e := range r.Expenses {
			keys[PettyCashExpenseKey(r.Date, e.Category, e.Description, e.Amount)] = true
		}
	}
	return keys, nil
}

// Records flattens the batch for previews.
func (b *ImportBatch) Records() []interface{} {
	records := make([]interface{}, 0, b.Len())
	for _, r := range b.Clients {
		records = append(records, r)
	}
	for _, r := range b.Items {
		records = append(records, r)
	}
	for _, r := range b.Payments {
		records = append(records, r)
	}
	for _, r := range b.PettyCash {
		records = append(records, r)
	}
	return records
}
