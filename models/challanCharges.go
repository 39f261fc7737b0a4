package models

import (
	"fmt"
	"sort"
	"time"

	"github.com/rentiq/rentiq_backend/utils"
	"github.com/shopspring/decimal"
)

// ChargeableDays is the number of rental days billed from d1 to d2. Calendar
// days are counted (same day is 0) and raised to minDays.
func ChargeableDays(d1, d2 time.Time, minDays int) int {
	if minDays < 1 {
		minDays = 1
	}
	days := utils.DaysBetween(d1, d2)
	if days < minDays {
		return minDays
	}
	return days
}

type LineCharge struct {
	DetailId    int             `json:"detail_id"`
	ItemId      int             `json:"item_id"`
	Quantity    int             `json:"quantity"`
	Returned    int             `json:"returned"`
	Lost        int             `json:"lost"`
	Outstanding int             `json:"outstanding"`
	Rent        decimal.Decimal `json:"rent"`
	LostCharge  decimal.Decimal `json:"lost_charge"`
}

type ChallanCharges struct {
	AsOf           time.Time       `json:"as_of"`
	RentAmount     decimal.Decimal `json:"rent_amount"`
	LostAmount     decimal.Decimal `json:"lost_amount"`
	DeliveryCharge decimal.Decimal `json:"delivery_charge"`
	Discount       decimal.Decimal `json:"discount"`
	Total          decimal.Decimal `json:"total"`
	Outstanding    int             `json:"outstanding_quantity"`
	Lines          []LineCharge    `json:"lines"`
}

// ChargeEvent is a dated amount billed to the client. Negative amounts are credits.
type ChargeEvent struct {
	Date        time.Time       `json:"date"`
	ChallanId   int             `json:"challan_id"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// returnsAsOf lists returns dated on or before asOf in date order.
func returnsAsOf(ch *Challan, asOf time.Time) []*ChallanReturn {
	day := utils.DateOnly(asOf)
	var result []*ChallanReturn
	for _, r := range ch.Returns {
		if !utils.DateOnly(r.ReturnDate).After(day) {
			result = append(result, r)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].ReturnDate.Before(result[j].ReturnDate)
	})
	return result
}

func decimalInt(n int) decimal.Decimal { return decimal.NewFromInt(int64(n)) }

// returnLineCharge bills a returned or lost quantity up to its return date.
func returnLineCharge(ch *Challan, d *ChallanDetail, returned, lost int, returnDate time.Time, minDays int) (rent, lostCharge decimal.Decimal) {
	days := ChargeableDays(ch.IssueDate, returnDate, minDays)
	rent = decimalInt((returned + lost) * days).Mul(d.DailyRate)
	lostCharge = decimalInt(lost).Mul(d.ReplacementCost)
	return rent, lostCharge
}

// ComputeChallanCharges prices ch as it stood at the end of asOf. Returns
// dated after asOf are treated as still outstanding.
func ComputeChallanCharges(ch *Challan, minDays int, asOf time.Time) ChallanCharges {
	result := ChallanCharges{
		AsOf:           utils.DateOnly(asOf),
		RentAmount:     decimal.Zero,
		LostAmount:     decimal.Zero,
		DeliveryCharge: decimal.Zero,
		Discount:       decimal.Zero,
		Total:          decimal.Zero,
	}
	if ch == nil || ch.Status == ChallanStatusCancelled || utils.DateOnly(asOf).Before(utils.DateOnly(ch.IssueDate)) {
		return result
	}
	lines := make(map[int]*LineCharge, len(ch.Details))
	order := make([]int, 0, len(ch.Details))
	details := make(map[int]*ChallanDetail, len(ch.Details))
	for _, d := range ch.Details {
		details[d.ID] = d
		lines[d.ID] = &LineCharge{DetailId: d.ID, ItemId: d.ItemId, Quantity: d.Quantity, Rent: decimal.Zero, LostCharge: decimal.Zero}
		order = append(order, d.ID)
	}
	for _, r := range returnsAsOf(ch, asOf) {
		for _, l := range r.Lines {
			d, ok := details[l.DetailId]
			if !ok {
				continue
			}
			rent, lost := returnLineCharge(ch, d, l.ReturnedQuantity, l.LostQuantity, r.ReturnDate, minDays)
			lc := lines[d.ID]
			lc.Returned += l.ReturnedQuantity
			lc.Lost += l.LostQuantity
			lc.Rent = lc.Rent.Add(rent)
			lc.LostCharge = lc.LostCharge.Add(lost)
		}
	}
	accrualDays := ChargeableDays(ch.IssueDate, asOf, minDays)
	for _, id := range order {
		lc := lines[id]
		lc.Outstanding = lc.Quantity - lc.Returned - lc.Lost
		if lc.Outstanding < 0 {
			lc.Outstanding = 0
		}
		if lc.Outstanding > 0 {
			lc.Rent = lc.Rent.Add(decimalInt(lc.Outstanding * accrualDays).Mul(details[id].DailyRate))
		}
		result.RentAmount = result.RentAmount.Add(lc.Rent)
		result.LostAmount = result.LostAmount.Add(lc.LostCharge)
		result.Outstanding += lc.Outstanding
		result.Lines = append(result.Lines, *lc)
	}
	result.DeliveryCharge = ch.DeliveryCharge
	gross := result.RentAmount.Add(result.LostAmount).Add(result.DeliveryCharge)
	result.Discount = clampDiscount(ch.Discount, gross)
	result.Total = gross.Sub(result.Discount)
	return result
}

func clampDiscount(discount, gross decimal.Decimal) decimal.Decimal {
	if discount.IsNegative() || gross.IsNegative() {
		return decimal.Zero
	}
	if discount.GreaterThan(gross) {
		return gross
	}
	return discount
}

// ChargeEvents splits ComputeChallanCharges(ch, minDays, asOf).Total into
// dated events: delivery less discount on the issue date, each return on its
// date and the accrued rent of outstanding items on asOf. Their sum always
// equals the total.
func ChargeEvents(ch *Challan, minDays int, asOf time.Time) []ChargeEvent {
	charges := ComputeChallanCharges(ch, minDays, asOf)
	if charges.Total.IsZero() && charges.Discount.IsZero() {
		return nil
	}
	details := make(map[int]*ChallanDetail, len(ch.Details))
	for _, d := range ch.Details {
		details[d.ID] = d
	}
	var events []ChargeEvent
	opening := charges.DeliveryCharge.Sub(charges.Discount)
	if !opening.IsZero() {
		events = append(events, ChargeEvent{
			Date:        utils.DateOnly(ch.IssueDate),
			ChallanId:   ch.ID,
			Amount:      opening,
			Description: fmt.Sprintf("%s delivery less discount", ch.ChallanNumber),
		})
	}
	for _, r := range returnsAsOf(ch, asOf) {
		amount := decimal.Zero
		for _, l := range r.Lines {
			d, ok := details[l.DetailId]
			if !ok {
				continue
			}
			rent, lost := returnLineCharge(ch, d, l.ReturnedQuantity, l.LostQuantity, r.ReturnDate, minDays)
			amount = amount.Add(rent).Add(lost)
		}
		if !amount.IsZero() {
			events = append(events, ChargeEvent{
				Date:        utils.DateOnly(r.ReturnDate),
				ChallanId:   ch.ID,
				Amount:      amount,
				Description: fmt.Sprintf("%s return", ch.ChallanNumber),
			})
		}
	}
	if charges.Outstanding > 0 {
		accrual := decimal.Zero
		days := ChargeableDays(ch.IssueDate, asOf, minDays)
		for _, lc := range charges.Lines {
			if lc.Outstanding > 0 {
				accrual = accrual.Add(decimalInt(lc.Outstanding * days).Mul(details[lc.DetailId].DailyRate))
			}
		}
		if !accrual.IsZero() {
			events = append(events, ChargeEvent{
				Date:        utils.DateOnly(asOf),
				ChallanId:   ch.ID,
				Amount:      accrual,
				Description: fmt.Sprintf("%s rent accrued", ch.ChallanNumber),
			})
		}
	}
	return events
}

// IsOverdue reports whether ch still holds items past its expected return date.
func (ch *Challan) IsOverdue(asOf time.Time) bool {
	if ch.ExpectedReturnDate == nil || !ch.Status.Active() {
		return false
	}
	return utils.DateOnly(ch.ExpectedReturnDate.UTC()).Before(utils.DateOnly(asOf))
}

func FormatChallanNumber(prefix string, seq int) string {
	if prefix == "" {
		prefix = DefaultChallanPrefix
	}
	return fmt.Sprintf("%s-%05d", prefix, seq)
}
