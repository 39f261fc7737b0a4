package reports

import (
	"context"
	"sort"
	"time"

	"github.com/rentiq/rentiq_backend/models"
	"github.com/rentiq/rentiq_backend/utils"
	"github.com/shopspring/decimal"
)

type ModeTotal struct {
	Mode   models.PaymentMode `json:"mode"`
	Count  int                `json:"count"`
	Amount decimal.Decimal    `json:"amount"`
}

type DayTotal struct {
	Date   time.Time       `json:"date"`
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

type PaymentReport struct {
	From   time.Time       `json:"from"`
	To     time.Time       `json:"to"`
	Count  int             `json:"count"`
	Total  decimal.Decimal `json:"total"`
	ByMode []*ModeTotal    `json:"by_mode"`
	ByDay  []*DayTotal     `json:"by_day"`
}

func BuildPaymentReport(payments []*models.Payment, from, to time.Time) *PaymentReport {
	from, to = utils.DateOnly(from), utils.DateOnly(to)
	report := &PaymentReport{From: from, To: to, Total: decimal.Zero}
	byMode := map[models.PaymentMode]*ModeTotal{}
	for _, m := range models.PaymentModes {
		row := &ModeTotal{Mode: m, Amount: decimal.Zero}
		byMode[m] = row
		report.ByMode = append(report.ByMode, row)
	}
	byDay := map[time.Time]*DayTotal{}
	period := models.DateRange{From: from, To: to}
	for _, p := range payments {
		if !period.Contains(p.PaymentDate) {
			continue
		}
		report.Count++
		report.Total = report.Total.Add(p.Amount)
		if row, ok := byMode[p.Mode]; ok {
			row.Count++
			row.Amount = row.Amount.Add(p.Amount)
		}
		d := utils.DateOnly(p.PaymentDate)
		row, ok := byDay[d]
		if !ok {
			row = &DayTotal{Date: d, Amount: decimal.Zero}
			byDay[d] = row
			report.ByDay = append(report.ByDay, row)
		}
		row.Count++
		row.Amount = row.Amount.Add(p.Amount)
	}
	sort.Slice(report.ByDay, func(i, j int) bool { return report.ByDay[i].Date.Before(report.ByDay[j].Date) })
	return report
}

func GetPaymentReport(ctx context.Context, from, to time.Time) (*PaymentReport, error) {
	started := time.Now()
	defer logSlowReport(ctx, "payments", started, nil)
	from, to, err := resolveRange(ctx, from, to)
	if err != nil {
		return nil, err
	}
	payments, err := models.LoadPayments(ctx, 0, models.DateRange{From: from, To: to})
	if err != nil {
		return nil, err
	}
	return BuildPaymentReport(payments, from, to), nil
}
