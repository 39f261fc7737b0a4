package reports

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rentiq/rentiq_backend/models"
	"github.com/rentiq/rentiq_backend/utils"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

type CategoryTotal struct {
	Category string          `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
}

type PettyCashDay struct {
	Date           time.Time       `json:"date"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	CashIn         decimal.Decimal `json:"cash_in"`
	Expenses       decimal.Decimal `json:"expenses"`
	TransferOut    decimal.Decimal `json:"transfer_out"`
	ClosingBalance decimal.Decimal `json:"closing_balance"`
}

type PettyCashReport struct {
	From           time.Time        `json:"from"`
	To             time.Time        `json:"to"`
	OpeningBalance decimal.Decimal  `json:"opening_balance"`
	TotalCashIn    decimal.Decimal  `json:"total_cash_in"`
	TotalExpenses  decimal.Decimal  `json:"total_expenses"`
	TotalTransfer  decimal.Decimal  `json:"total_transfer_out"`
	ClosingBalance decimal.Decimal  `json:"closing_balance"`
	ByCategory     []*CategoryTotal `json:"by_category"`
	Days           []*PettyCashDay  `json:"days"`
}

// BuildPettyCashReport summarises the records between from and to.
// prevClosing is the closing balance before from and stands in for the
// opening when the period has no records.
func BuildPettyCashReport(prevClosing decimal.Decimal, records []*models.PettyCash, from, to time.Time) *PettyCashReport {
	from, to = utils.DateOnly(from), utils.DateOnly(to)
	report := &PettyCashReport{
		From:           from,
		To:             to,
		OpeningBalance: prevClosing,
		TotalCashIn:    decimal.Zero,
		TotalExpenses:  decimal.Zero,
		TotalTransfer:  decimal.Zero,
		ClosingBalance: prevClosing,
	}
	period := models.DateRange{From: from, To: to}
	var inPeriod []*models.PettyCash
	for _, r := range records {
		if period.Contains(r.Date) {
			inPeriod = append(inPeriod, r)
		}
	}
	sort.SliceStable(inPeriod, func(i, j int) bool { return inPeriod[i].Date.Before(inPeriod[j].Date) })
	if len(inPeriod) == 0 {
		return report
	}
	report.OpeningBalance = inPeriod[0].OpeningBalance
	report.ClosingBalance = inPeriod[len(inPeriod)-1].ClosingBalance

	byCategory := map[string]*CategoryTotal{}
	for _, r := range inPeriod {
		report.TotalCashIn = report.TotalCashIn.Add(r.CashIn)
		report.TotalExpenses = report.TotalExpenses.Add(r.TotalExpenses)
		report.TotalTransfer = report.TotalTransfer.Add(r.TransferOut)
		report.Days = append(report.Days, &PettyCashDay{
			Date:           utils.DateOnly(r.Date),
			OpeningBalance: r.OpeningBalance,
			CashIn:         r.CashIn,
			Expenses:       r.TotalExpenses,
			TransferOut:    r.TransferOut,
			ClosingBalance: r.ClosingBalance,
		})
		for _, e := range r.Expenses {
			key := strings.ToLower(strings.TrimSpace(e.Category))
			row, ok := byCategory[key]
			if !ok {
				row = &CategoryTotal{Category: strings.TrimSpace(e.Category), Amount: decimal.Zero}
				byCategory[key] = row
				report.ByCategory = append(report.ByCategory, row)
			}
			row.Amount = row.Amount.Add(e.Amount)
		}
	}
	sort.SliceStable(report.ByCategory, func(i, j int) bool {
		return report.ByCategory[i].Amount.GreaterThan(report.ByCategory[j].Amount)
	})
	return report
}

func GetPettyCashReport(ctx context.Context, from, to time.Time) (*PettyCashReport, error) {
	started := time.Now()
	defer logSlowReport(ctx, "pettycash", started, nil)
	from, to, err := resolveRange(ctx, from, to)
	if err != nil {
		return nil, err
	}

	var (
		records  []*models.PettyCash
		previous *models.PettyCash
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		records, err = models.ListPettyCash(gctx, models.DateRange{From: from, To: to})
		return err
	})
	g.Go(func() (err error) {
		previous, err = models.LatestPettyCash(gctx, from.AddDate(0, 0, -1))
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	prevClosing := decimal.Zero
	if previous != nil {
		prevClosing = previous.ClosingBalance
	}
	return BuildPettyCashReport(prevClosing, records, from, to), nil
}
