package reports

import (
	"context"
	"sort"
	"time"

	"github.com/rentiq/rentiq_backend/models"
	"github.com/rentiq/rentiq_backend/utils"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	StatementEntryCharge  = "Charge"
	StatementEntryPayment = "Payment"
)

type StatementEntry struct {
	Date        time.Time       `json:"date"`
	Type        string          `json:"type"`
	Reference   string          `json:"reference"`
	Description string          `json:"description"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Balance     decimal.Decimal `json:"balance"`
}

type ClientStatement struct {
	ClientId       int               `json:"client_id"`
	ClientName     string            `json:"client_name"`
	From           time.Time         `json:"from"`
	To             time.Time         `json:"to"`
	OpeningBalance decimal.Decimal   `json:"opening_balance"`
	TotalDebit     decimal.Decimal   `json:"total_debit"`
	TotalCredit    decimal.Decimal   `json:"total_credit"`
	ClosingBalance decimal.Decimal   `json:"closing_balance"`
	Entries        []*StatementEntry `json:"entries"`
}

// BuildClientStatement lists the client's charges and payments between from
// and to with a running balance. Everything before from is folded into the
// opening line.
func BuildClientStatement(client *models.Client, challans []*models.Challan, payments []*models.Payment, minDays int, from, to time.Time) *ClientStatement {
	from, to = utils.DateOnly(from), utils.DateOnly(to)
	st := &ClientStatement{
		ClientId:       client.ID,
		ClientName:     client.Name,
		From:           from,
		To:             to,
		OpeningBalance: client.OpeningBalance,
		TotalDebit:     decimal.Zero,
		TotalCredit:    decimal.Zero,
	}

	var entries []*StatementEntry
	for _, ch := range challans {
		if ch.ClientId != client.ID {
			continue
		}
		for _, e := range models.ChargeEvents(ch, minDays, to) {
			entry := &StatementEntry{
				Date:        e.Date,
				Type:        StatementEntryCharge,
				Reference:   ch.ChallanNumber,
				Description: e.Description,
				Debit:       decimal.Zero,
				Credit:      decimal.Zero,
			}
			if e.Amount.IsNegative() {
				entry.Credit = e.Amount.Neg()
			} else {
				entry.Debit = e.Amount
			}
			entries = append(entries, entry)
		}
	}
	for _, p := range payments {
		if p.ClientId != client.ID || utils.DateOnly(p.PaymentDate).After(to) {
			continue
		}
		entries = append(entries, &StatementEntry{
			Date:        utils.DateOnly(p.PaymentDate),
			Type:        StatementEntryPayment,
			Reference:   p.ReferenceNumber,
			Description: string(p.Mode) + " payment",
			Debit:       decimal.Zero,
			Credit:      p.Amount,
		})
	}
	// charges before payments on the same day
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].Date.Equal(entries[j].Date) {
			return entries[i].Date.Before(entries[j].Date)
		}
		return entries[i].Type == StatementEntryCharge && entries[j].Type == StatementEntryPayment
	})

	balance := st.OpeningBalance
	for _, e := range entries {
		balance = balance.Add(e.Debit).Sub(e.Credit)
		if e.Date.Before(from) {
			st.OpeningBalance = balance
			continue
		}
		e.Balance = balance
		st.TotalDebit = st.TotalDebit.Add(e.Debit)
		st.TotalCredit = st.TotalCredit.Add(e.Credit)
		st.Entries = append(st.Entries, e)
	}
	st.ClosingBalance = balance
	return st
}

func GetClientStatement(ctx context.Context, clientId int, from, to time.Time) (*ClientStatement, error) {
	started := time.Now()
	defer logSlowReport(ctx, "client_statement", started, map[string]any{"client_id": clientId})
	from, to, err := resolveRange(ctx, from, to)
	if err != nil {
		return nil, err
	}

	var (
		client   *models.Client
		challans []*models.Challan
		payments []*models.Payment
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		client, err = models.GetClient(gctx, clientId)
		return err
	})
	g.Go(func() (err error) {
		challans, err = models.LoadChallans(gctx, clientId, to)
		return err
	})
	g.Go(func() (err error) {
		payments, err = models.LoadPayments(gctx, clientId, models.DateRange{To: to})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return BuildClientStatement(client, challans, payments, models.MinimumRentalDays(ctx), from, to), nil
}
