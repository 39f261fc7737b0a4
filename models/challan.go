package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rentiq/rentiq_backend/config"
	"github.com/rentiq/rentiq_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Challan struct {
	ID                 int              `gorm:"primary_key" json:"id"`
	BusinessId         string           `gorm:"size:64;not null;uniqueIndex:uq_challan_number,priority:1;index:idx_challan_biz_date,priority:1" json:"business_id"`
	ChallanNumber      string           `gorm:"size:30;not null;uniqueIndex:uq_challan_number,priority:2" json:"challan_number"`
	ClientId           int              `gorm:"not null;index" json:"client_id"`
	IssueDate          time.Time        `gorm:"type:date;not null;index:idx_challan_biz_date,priority:2" json:"issue_date"`
	ExpectedReturnDate *time.Time       `gorm:"type:date" json:"expected_return_date"`
	Status             ChallanStatus    `gorm:"type:enum('Open','PartiallyReturned','Returned','Cancelled');not null;default:Open;index" json:"status"`
	DeliveryCharge     decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"delivery_charge"`
	Discount           decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"discount"`
	SecurityDeposit    decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"security_deposit"`
	Notes              string           `gorm:"type:text" json:"notes"`
	CancelReason       string           `gorm:"size:255" json:"cancel_reason,omitempty"`
	Details            []*ChallanDetail `gorm:"foreignKey:ChallanId" json:"details"`
	Returns            []*ChallanReturn `gorm:"foreignKey:ChallanId" json:"returns"`
	Documents          []*Document      `gorm:"polymorphic:Reference;polymorphicValue:Challan" json:"documents"`
	Charges            *ChallanCharges  `gorm:"-" json:"charges,omitempty"`
	CreatedAt          time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

type ChallanDetail struct {
	ID               int             `gorm:"primary_key" json:"id"`
	BusinessId       string          `gorm:"size:64;not null;index" json:"business_id"`
	ChallanId        int             `gorm:"not null;index" json:"challan_id"`
	ItemId           int             `gorm:"not null;index" json:"item_id"`
	Quantity         int             `gorm:"not null" json:"quantity"`
	ReturnedQuantity int             `gorm:"not null;default:0" json:"returned_quantity"`
	LostQuantity     int             `gorm:"not null;default:0" json:"lost_quantity"`
	DailyRate        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"daily_rate"`
	ReplacementCost  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"replacement_cost"`
}

func (d *ChallanDetail) Outstanding() int {
	return d.Quantity - d.ReturnedQuantity - d.LostQuantity
}

type ChallanReturn struct {
	ID         int                  `gorm:"primary_key" json:"id"`
	BusinessId string               `gorm:"size:64;not null;index" json:"business_id"`
	ChallanId  int                  `gorm:"not null;index" json:"challan_id"`
	ReturnDate time.Time            `gorm:"type:date;not null;index" json:"return_date"`
	Notes      string               `gorm:"type:text" json:"notes"`
	Lines      []*ChallanReturnLine `gorm:"foreignKey:ReturnId" json:"lines"`
	UserId     int                  `json:"user_id"`
	CreatedAt  time.Time            `gorm:"autoCreateTime" json:"created_at"`
}

type ChallanReturnLine struct {
	ID               int    `gorm:"primary_key" json:"id"`
	BusinessId       string `gorm:"size:64;not null;index" json:"business_id"`
	ReturnId         int    `gorm:"not null;index" json:"return_id"`
	DetailId         int    `gorm:"not null;index" json:"detail_id"`
	ReturnedQuantity int    `gorm:"not null;default:0" json:"returned_quantity"`
	LostQuantity     int    `gorm:"not null;default:0" json:"lost_quantity"`
}

type NewChallanDetail struct {
	ItemId    int              `json:"item_id" binding:"required"`
	Quantity  int              `json:"quantity" binding:"required"`
	DailyRate *decimal.Decimal `json:"daily_rate"`
}

type NewChallan struct {
	ClientId           int                 `json:"client_id" binding:"required"`
	IssueDate          time.Time           `json:"issue_date" binding:"required"`
	ExpectedReturnDate *time.Time          `json:"expected_return_date"`
	DeliveryCharge     decimal.Decimal     `json:"delivery_charge"`
	Discount           decimal.Decimal     `json:"discount"`
	SecurityDeposit    decimal.Decimal     `json:"security_deposit"`
	Notes              string              `json:"notes"`
	Details            []*NewChallanDetail `json:"details"`
	Documents          []*NewDocument      `json:"documents"`
}

type NewReturnLine struct {
	DetailId         int `json:"detail_id" binding:"required"`
	ReturnedQuantity int `json:"returned_quantity"`
	LostQuantity     int `json:"lost_quantity"`
}

type NewChallanReturn struct {
	ReturnDate time.Time        `json:"return_date" binding:"required"`
	Notes      string           `json:"notes"`
	Lines      []*NewReturnLine `json:"lines"`
}

type ChallanFilter struct {
	ClientId    int
	Status      *ChallanStatus
	DateRange   DateRange
	OverdueOnly bool
	Search      string
	Limit       int
	After       string
}

func (ch Challan) GetId() int            { return ch.ID }
func (ch Challan) GetBusinessId() string { return ch.BusinessId }

func (input *NewChallan) validate() error {
	if input.ClientId <= 0 {
		return utils.NewValidationError("client_id", "is required")
	}
	if input.IssueDate.IsZero() {
		return utils.NewValidationError("issue_date", "is required")
	}
	input.IssueDate = utils.DateOnly(input.IssueDate)
	if input.ExpectedReturnDate != nil {
		d := utils.DateOnly(*input.ExpectedReturnDate)
		if d.Before(input.IssueDate) {
			return utils.NewValidationError("expected_return_date", "is before issue date")
		}
		input.ExpectedReturnDate = &d
	}
	if input.DeliveryCharge.IsNegative() {
		return utils.NewValidationError("delivery_charge", "cannot be negative")
	}
	if input.Discount.IsNegative() {
		return utils.NewValidationError("discount", "cannot be negative")
	}
	if input.SecurityDeposit.IsNegative() {
		return utils.NewValidationError("security_deposit", "cannot be negative")
	}
	if len(input.Details) == 0 {
		return utils.NewValidationError("details", "at least one item is required")
	}
	seen := make(map[int]bool, len(input.Details))
	for _, d := range input.Details {
		if d.ItemId <= 0 {
			return utils.NewValidationError("item_id", "is required")
		}
		if d.Quantity <= 0 {
			return utils.NewValidationError("quantity", "must be positive")
		}
		if d.DailyRate != nil && d.DailyRate.IsNegative() {
			return utils.NewValidationError("daily_rate", "cannot be negative")
		}
		if seen[d.ItemId] {
			return utils.NewValidationError("details", fmt.Sprintf("item %d appears more than once", d.ItemId))
		}
		seen[d.ItemId] = true
	}
	return nil
}

func (input *NewChallan) itemIds() []int {
	ids := make([]int, 0, len(input.Details))
	for _, d := range input.Details {
		ids = append(ids, d.ItemId)
	}
	return ids
}

func requireActiveClient(tx *gorm.DB, businessId string, clientId int) (*Client, error) {
	var client Client
	if err := tx.Where("business_id = ?", businessId).First(&client, clientId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewValidationError("client_id", "client not found")
		}
		return nil, err
	}
	if client.IsActive != nil && !*client.IsActive {
		return nil, ErrClientInactive
	}
	return &client, nil
}

func buildDetails(businessId string, input *NewChallan, items map[int]*InventoryItem) ([]*ChallanDetail, error) {
	details := make([]*ChallanDetail, 0, len(input.Details))
	for _, d := range input.Details {
		item := items[d.ItemId]
		if item.IsActive != nil && !*item.IsActive {
			return nil, fmt.Errorf("%w: %s", ErrItemInactive, item.Code)
		}
		rate := item.DailyRate
		if d.DailyRate != nil {
			rate = *d.DailyRate
		}
		details = append(details, &ChallanDetail{
			BusinessId:      businessId,
			ItemId:          d.ItemId,
			Quantity:        d.Quantity,
			DailyRate:       rate,
			ReplacementCost: item.ReplacementCost,
		})
	}
	return details, nil
}

func CreateChallan(ctx context.Context, input *NewChallan) (*Challan, error) {
	businessId, err := businessIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := input.validate(); err != nil {
		return nil, err
	}
	release, err := utils.BusinessLock(ctx, businessId, "ChallanNumber", "Challan", "CreateChallan", 30*time.Second)
	if err != nil {
		return nil, err
	}
	defer release()

	var challan Challan
	err = inTx(ctx, func(tx *gorm.DB) error {
		if _, err := requireActiveClient(tx, businessId, input.ClientId); err != nil {
			return err
		}
		items, err := lockItems(tx, businessId, input.itemIds())
		if err != nil {
			return err
		}
		details, err := buildDetails(businessId, input, items)
		if err != nil {
			return err
		}
		for _, d := range details {
			item := items[d.ItemId]
			if item.Available() < d.Quantity {
				return &InsufficientStockError{ItemCode: item.Code, Requested: d.Quantity, Available: item.Available()}
			}
		}
		number, err := nextChallanNumber(tx, businessId)
		if err != nil {
			return err
		}
		challan = Challan{
			BusinessId:         businessId,
			ChallanNumber:      number,
			ClientId:           input.ClientId,
			IssueDate:          input.IssueDate,
			ExpectedReturnDate: input.ExpectedReturnDate,
			Status:             ChallanStatusOpen,
			DeliveryCharge:     input.DeliveryCharge,
			Discount:           input.Discount,
			SecurityDeposit:    input.SecurityDeposit,
			Notes:              strings.TrimSpace(input.Notes),
			Details:            details,
		}
		if err := tx.Create(&challan).Error; err != nil {
			return translateWriteErr(err, "challan number "+number)
		}
		for _, d := range challan.Details {
			if err := moveStock(tx, items[d.ItemId], MovementTypeRentOut, 0, d.Quantity, ReferenceTypeChallan, challan.ID, challan.ChallanNumber, challan.IssueDate); err != nil {
				return err
			}
		}
		if err := attachDocuments(tx, input.Documents, ReferenceTypeChallan, challan.ID); err != nil {
			return err
		}
		if err := createHistory(tx, HistoryActionCreate, challan.ID, ReferenceTypeChallan, nil, challan, "Created challan "+challan.ChallanNumber); err != nil {
			return err
		}
		return recordEvent(tx, EventChallanCreated, ReferenceTypeChallan, challan.ID, challanEventPayload(&challan))
	})
	if err != nil {
		return nil, err
	}
	return GetChallan(ctx, challan.ID)
}

func lockChallan(tx *gorm.DB, businessId string, id int) (*Challan, error) {
	var challan Challan
	err := forUpdate(tx).Where("business_id = ?", businessId).
		Preload("Details").Preload("Returns").Preload("Returns.Lines").
		First(&challan, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &challan, nil
}

// UpdateChallan replaces an open challan's header and lines. Stock moves by
// the net change per item.
func UpdateChallan(ctx context.Context, id int, input *NewChallan) (*Challan, error) {
	businessId, err := businessIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := input.validate(); err != nil {
		return nil, err
	}
	err = inTx(ctx, func(tx *gorm.DB) error {
		challan, err := lockChallan(tx, businessId, id)
		if err != nil {
			return err
		}
		if challan.Status != ChallanStatusOpen {
			return ErrChallanNotOpen
		}
		if len(challan.Returns) > 0 {
			return ErrChallanHasReturns
		}
		before := *challan
		if challan.ClientId != input.ClientId {
			if _, err := requireActiveClient(tx, businessId, input.ClientId); err != nil {
				return err
			}
		}
		net := make(map[int]int)
		ids := input.itemIds()
		for _, d := range challan.Details {
			net[d.ItemId] -= d.Quantity
			ids = append(ids, d.ItemId)
		}
		for _, d := range input.Details {
			net[d.ItemId] += d.Quantity
		}
		items, err := lockItems(tx, businessId, ids)
		if err != nil {
			return err
		}
		details, err := buildDetails(businessId, input, items)
		if err != nil {
			return err
		}
		for itemId, change := range net {
			item := items[itemId]
			switch {
			case change > 0:
				if item.Available() < change {
					return &InsufficientStockError{ItemCode: item.Code, Requested: change, Available: item.Available()}
				}
				err = moveStock(tx, item, MovementTypeRentOut, 0, change, ReferenceTypeChallan, challan.ID, challan.ChallanNumber+" edited", input.IssueDate)
			case change < 0:
				err = moveStock(tx, item, MovementTypeReturn, 0, change, ReferenceTypeChallan, challan.ID, challan.ChallanNumber+" edited", input.IssueDate)
			}
			if err != nil {
				return err
			}
		}
		if err := tx.Where("challan_id = ?", challan.ID).Delete(&ChallanDetail{}).Error; err != nil {
			return err
		}
		for _, d := range details {
			d.ChallanId = challan.ID
		}
		if err := tx.Create(&details).Error; err != nil {
			return err
		}
		if err := tx.Model(challan).Updates(map[string]interface{}{
			"ClientId":           input.ClientId,
			"IssueDate":          input.IssueDate,
			"ExpectedReturnDate": input.ExpectedReturnDate,
			"DeliveryCharge":     input.DeliveryCharge,
			"Discount":           input.Discount,
			"SecurityDeposit":    input.SecurityDeposit,
			"Notes":              strings.TrimSpace(input.Notes),
		}).Error; err != nil {
			return err
		}
		if err := attachDocuments(tx, input.Documents, ReferenceTypeChallan, challan.ID); err != nil {
			return err
		}
		challan.Details = details
		if err := createHistory(tx, HistoryActionUpdate, challan.ID, ReferenceTypeChallan, before, challan, "Updated challan "+challan.ChallanNumber); err != nil {
			return err
		}
		return recordEvent(tx, EventChallanUpdated, ReferenceTypeChallan, challan.ID, challanEventPayload(challan))
	})
	if err != nil {
		return nil, err
	}
	return GetChallan(ctx, id)
}

func (input *NewChallanReturn) validate() error {
	if input.ReturnDate.IsZero() {
		return utils.NewValidationError("return_date", "is required")
	}
	input.ReturnDate = utils.DateOnly(input.ReturnDate)
	if len(input.Lines) == 0 {
		return utils.NewValidationError("lines", "at least one line is required")
	}
	seen := make(map[int]bool)
	total := 0
	for _, l := range input.Lines {
		if l.ReturnedQuantity < 0 || l.LostQuantity < 0 {
			return utils.NewValidationError("lines", "quantities cannot be negative")
		}
		if seen[l.DetailId] {
			return utils.NewValidationError("lines", fmt.Sprintf("detail %d appears more than once", l.DetailId))
		}
		seen[l.DetailId] = true
		total += l.ReturnedQuantity + l.LostQuantity
	}
	if total == 0 {
		return utils.NewValidationError("lines", "nothing to return")
	}
	return nil
}

// ReturnChallanItems books a return of some or all outstanding items. Lost
// items leave the inventory for good.
func ReturnChallanItems(ctx context.Context, id int, input *NewChallanReturn) (*Challan, error) {
	businessId, err := businessIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := input.validate(); err != nil {
		return nil, err
	}
	userId, _ := utils.GetUserIdFromContext(ctx)
	err = inTx(ctx, func(tx *gorm.DB) error {
		challan, err := lockChallan(tx, businessId, id)
		if err != nil {
			return err
		}
		if !challan.Status.Active() {
			return ErrChallanNotOpen
		}
		if input.ReturnDate.Before(utils.DateOnly(challan.IssueDate)) {
			return utils.NewValidationError("return_date", "is before issue date")
		}
		details := make(map[int]*ChallanDetail, len(challan.Details))
		itemIds := make([]int, 0, len(challan.Details))
		for _, d := range challan.Details {
			details[d.ID] = d
			itemIds = append(itemIds, d.ItemId)
		}
		for _, l := range input.Lines {
			d, ok := details[l.DetailId]
			if !ok {
				return utils.NewValidationError("detail_id", fmt.Sprintf("detail %d is not on this challan", l.DetailId))
			}
			if l.ReturnedQuantity+l.LostQuantity > d.Outstanding() {
				return ErrNothingToReturn
			}
		}
		items, err := lockItems(tx, businessId, itemIds)
		if err != nil {
			return err
		}
		ret := ChallanReturn{
			BusinessId: businessId,
			ChallanId:  challan.ID,
			ReturnDate: input.ReturnDate,
			Notes:      strings.TrimSpace(input.Notes),
			UserId:     userId,
		}
		for _, l := range input.Lines {
			if l.ReturnedQuantity+l.LostQuantity == 0 {
				continue
			}
			ret.Lines = append(ret.Lines, &ChallanReturnLine{
				BusinessId:       businessId,
				DetailId:         l.DetailId,
				ReturnedQuantity: l.ReturnedQuantity,
				LostQuantity:     l.LostQuantity,
			})
		}
		if err := tx.Create(&ret).Error; err != nil {
			return err
		}
		for _, l := range ret.Lines {
			d := details[l.DetailId]
			item := items[d.ItemId]
			if l.ReturnedQuantity > 0 {
				if err := moveStock(tx, item, MovementTypeReturn, 0, -l.ReturnedQuantity, ReferenceTypeChallan, challan.ID, challan.ChallanNumber, ret.ReturnDate); err != nil {
					return err
				}
			}
			if l.LostQuantity > 0 {
				if err := moveStock(tx, item, MovementTypeLost, -l.LostQuantity, -l.LostQuantity, ReferenceTypeChallan, challan.ID, challan.ChallanNumber+" lost", ret.ReturnDate); err != nil {
					return err
				}
			}
			d.ReturnedQuantity += l.ReturnedQuantity
			d.LostQuantity += l.LostQuantity
			if err := tx.Model(d).Updates(map[string]interface{}{
				"returned_quantity": d.ReturnedQuantity,
				"lost_quantity":     d.LostQuantity,
			}).Error; err != nil {
				return err
			}
		}
		status := ChallanStatusReturned
		for _, d := range challan.Details {
			if d.Outstanding() > 0 {
				status = ChallanStatusPartiallyReturned
				break
			}
		}
		if err := tx.Model(challan).Update("status", status).Error; err != nil {
			return err
		}
		challan.Status = status
		if err := createHistory(tx, HistoryActionReturn, challan.ID, ReferenceTypeChallan, nil, ret, "Returned items on "+challan.ChallanNumber); err != nil {
			return err
		}
		return recordEvent(tx, EventChallanReturned, ReferenceTypeChallan, challan.ID, map[string]interface{}{
			"challan_number": challan.ChallanNumber,
			"client_id":      challan.ClientId,
			"return_id":      ret.ID,
			"return_date":    ret.ReturnDate,
			"status":         status,
		})
	})
	if err != nil {
		return nil, err
	}
	return GetChallan(ctx, id)
}

// CancelChallan voids a challan that has no returns and puts its stock back.
func CancelChallan(ctx context.Context, id int, reason string) (*Challan, error) {
	businessId, err := businessIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	err = inTx(ctx, func(tx *gorm.DB) error {
		challan, err := lockChallan(tx, businessId, id)
		if err != nil {
			return err
		}
		if challan.Status != ChallanStatusOpen {
			return ErrChallanNotOpen
		}
		if len(challan.Returns) > 0 {
			return ErrChallanHasReturns
		}
		itemIds := make([]int, 0, len(challan.Details))
		for _, d := range challan.Details {
			itemIds = append(itemIds, d.ItemId)
		}
		items, err := lockItems(tx, businessId, itemIds)
		if err != nil {
			return err
		}
		for _, d := range challan.Details {
			if err := moveStock(tx, items[d.ItemId], MovementTypeReturn, 0, -d.Quantity, ReferenceTypeChallan, challan.ID, challan.ChallanNumber+" cancelled", time.Now()); err != nil {
				return err
			}
		}
		reason = strings.TrimSpace(reason)
		if err := tx.Model(challan).Updates(map[string]interface{}{
			"status":        ChallanStatusCancelled,
			"cancel_reason": reason,
		}).Error; err != nil {
			return err
		}
		if err := createHistory(tx, HistoryActionCancel, challan.ID, ReferenceTypeChallan, nil, nil, "Cancelled challan "+challan.ChallanNumber+": "+reason); err != nil {
			return err
		}
		return recordEvent(tx, EventChallanCancelled, ReferenceTypeChallan, challan.ID, map[string]interface{}{
			"challan_number": challan.ChallanNumber,
			"client_id":      challan.ClientId,
			"reason":         reason,
		})
	})
	if err != nil {
		return nil, err
	}
	return GetChallan(ctx, id)
}

func challanEventPayload(ch *Challan) map[string]interface{} {
	lines := make([]map[string]interface{}, 0, len(ch.Details))
	for _, d := range ch.Details {
		lines = append(lines, map[string]interface{}{"item_id": d.ItemId, "quantity": d.Quantity})
	}
	return map[string]interface{}{
		"challan_number": ch.ChallanNumber,
		"client_id":      ch.ClientId,
		"issue_date":     ch.IssueDate,
		"lines":          lines,
	}
}

// BusinessToday is the current calendar date in the business timezone.
func BusinessToday(ctx context.Context) time.Time {
	business, err := GetBusiness(ctx)
	tz := DefaultTimezone
	if err == nil && business.Timezone != "" {
		tz = business.Timezone
	}
	today, err := utils.ConvertToDate(time.Now(), tz)
	if err != nil {
		config.LogError(config.GetLogger(), "Challan", "BusinessToday", "timezone", tz, err)
	}
	return today
}

// MinimumRentalDays is the business minimum billed per rental line.
func MinimumRentalDays(ctx context.Context) int {
	business, err := GetBusiness(ctx)
	if err != nil || business.MinimumRentalDays <= 0 {
		return DefaultMinimumRentalDays
	}
	return business.MinimumRentalDays
}

// GetChallan loads a challan with lines, returns and documents and prices it
// as of today.
func GetChallan(ctx context.Context, id int) (*Challan, error) {
	businessId, err := businessIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	challan, err := utils.FetchModel[Challan](ctx, businessId, id, "Details", "Returns", "Returns.Lines", "Documents")
	if err != nil {
		return nil, err
	}
	charges := ComputeChallanCharges(challan, MinimumRentalDays(ctx), BusinessToday(ctx))
	challan.Charges = &charges
	return challan, nil
}

func ListChallans(ctx context.Context, filter ChallanFilter) (*Page[Challan], error) {
	businessId, err := businessIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	db, err := dbFor(ctx)
	if err != nil {
		return nil, err
	}
	q := db.Model(&Challan{}).Where("business_id = ?", businessId).Preload("Details")
	if filter.ClientId > 0 {
		q = q.Where("client_id = ?", filter.ClientId)
	}
	if filter.Status != nil {
		q = q.Where("status = ?", *filter.Status)
	}
	q = filter.DateRange.apply(q, "issue_date")
	if filter.OverdueOnly {
		q = q.Where("expected_return_date < ? AND status IN ?", BusinessToday(ctx),
			[]ChallanStatus{ChallanStatusOpen, ChallanStatusPartiallyReturned})
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		q = q.Where("challan_number LIKE ?", "%"+s+"%")
	}
	page, err := FetchPage[Challan](q, filter.Limit, filter.After)
	if err != nil {
		return nil, err
	}
	minDays := MinimumRentalDays(ctx)
	today := BusinessToday(ctx)
	for _, ch := range page.Items {
		charges := ComputeChallanCharges(ch, minDays, today)
		ch.Charges = &charges
	}
	return page, nil
}

// LoadChallans reads every challan of the business issued on or before upTo,
// with lines and returns, for report math. Cancelled challans are left out.
func LoadChallans(ctx context.Context, clientId int, upTo time.Time) ([]*Challan, error) {
	businessId, err := businessIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	db, err := dbFor(ctx)
	if err != nil {
		return nil, err
	}
	q := db.Where("business_id = ? AND status <> ?", businessId, ChallanStatusCancelled).
		Preload("Details").Preload("Returns").Preload("Returns.Lines")
	if clientId > 0 {
		q = q.Where("client_id = ?", clientId)
	}
	if !upTo.IsZero() {
		q = q.Where("issue_date <= ?", utils.DateOnly(upTo))
	}
	var results []*Challan
	err = q.Order("issue_date, id").Find(&results).Error
	return results, err
}
