package reports

import (
	"context"
	"sort"
	"time"

	"github.com/rentiq/rentiq_backend/config"
	"github.com/rentiq/rentiq_backend/models"
	"github.com/rentiq/rentiq_backend/utils"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Aging buckets by age of the unpaid charge in days.
const (
	AgingCurrentMax = 30
	Aging31to60Max  = 60
	Aging61to90Max  = 90
)

type AgingBuckets struct {
	Current    decimal.Decimal `json:"current"`
	Days31to60 decimal.Decimal `json:"days_31_60"`
	Days61to90 decimal.Decimal `json:"days_61_90"`
	Days90Plus decimal.Decimal `json:"days_90_plus"`
}

func zeroBuckets() AgingBuckets {
	return AgingBuckets{Current: decimal.Zero, Days31to60: decimal.Zero, Days61to90: decimal.Zero, Days90Plus: decimal.Zero}
}

func (b *AgingBuckets) add(age int, amount decimal.Decimal) {
	switch {
	case age <= AgingCurrentMax:
		b.Current = b.Current.Add(amount)
	case age <= Aging31to60Max:
		b.Days31to60 = b.Days31to60.Add(amount)
	case age <= Aging61to90Max:
		b.Days61to90 = b.Days61to90.Add(amount)
	default:
		b.Days90Plus = b.Days90Plus.Add(amount)
	}
}

func (b *AgingBuckets) merge(o AgingBuckets) {
	b.Current = b.Current.Add(o.Current)
	b.Days31to60 = b.Days31to60.Add(o.Days31to60)
	b.Days61to90 = b.Days61to90.Add(o.Days61to90)
	b.Days90Plus = b.Days90Plus.Add(o.Days90Plus)
}

type ClientBalance struct {
	ClientId       int             `json:"client_id"`
	ClientName     string          `json:"client_name"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	Billed         decimal.Decimal `json:"billed"`
	Paid           decimal.Decimal `json:"paid"`
	Balance        decimal.Decimal `json:"balance"`
	CreditLimit    decimal.Decimal `json:"credit_limit"`
	OverLimit      bool            `json:"over_limit"`
	Aging          AgingBuckets    `json:"aging"`
}

type ClientBalancesReport struct {
	AsOf            time.Time        `json:"as_of"`
	Clients         []*ClientBalance `json:"clients"`
	TotalBilled     decimal.Decimal  `json:"total_billed"`
	TotalPaid       decimal.Decimal  `json:"total_paid"`
	TotalReceivable decimal.Decimal  `json:"total_receivable"`
	TotalAdvance    decimal.Decimal  `json:"total_advance"`
	Aging           AgingBuckets     `json:"aging"`
}

// datedAmount is a charge waiting for payments to settle it.
type datedAmount struct {
	Date   time.Time
	Amount decimal.Decimal
}

// ageCharges allocates credit to the oldest charges first and buckets what
// is left unpaid by age at asOf.
func ageCharges(charges []datedAmount, credit decimal.Decimal, asOf time.Time) AgingBuckets {
	sort.SliceStable(charges, func(i, j int) bool { return charges[i].Date.Before(charges[j].Date) })
	buckets := zeroBuckets()
	for _, c := range charges {
		unpaid := c.Amount
		if credit.IsPositive() {
			applied := decimal.Min(credit, unpaid)
			credit = credit.Sub(applied)
			unpaid = unpaid.Sub(applied)
		}
		if unpaid.IsPositive() {
			buckets.add(utils.DaysBetween(c.Date, asOf), unpaid)
		}
	}
	return buckets
}

// BuildClientBalances computes each client's balance at asOf: opening plus
// everything billed minus everything paid on or before asOf.
func BuildClientBalances(clients []*models.Client, challans []*models.Challan, payments []*models.Payment, minDays int, asOf time.Time) *ClientBalancesReport {
	asOf = utils.DateOnly(asOf)
	report := &ClientBalancesReport{
		AsOf:            asOf,
		TotalBilled:     decimal.Zero,
		TotalPaid:       decimal.Zero,
		TotalReceivable: decimal.Zero,
		TotalAdvance:    decimal.Zero,
		Aging:           zeroBuckets(),
	}
	charges := map[int][]datedAmount{}
	credits := map[int]decimal.Decimal{}
	billed := map[int]decimal.Decimal{}
	paid := map[int]decimal.Decimal{}

	for _, ch := range challans {
		for _, e := range models.ChargeEvents(ch, minDays, asOf) {
			billed[ch.ClientId] = billed[ch.ClientId].Add(e.Amount)
			if e.Amount.IsNegative() {
				credits[ch.ClientId] = credits[ch.ClientId].Add(e.Amount.Neg())
				continue
			}
			charges[ch.ClientId] = append(charges[ch.ClientId], datedAmount{Date: e.Date, Amount: e.Amount})
		}
	}
	for _, p := range payments {
		if utils.DateOnly(p.PaymentDate).After(asOf) {
			continue
		}
		paid[p.ClientId] = paid[p.ClientId].Add(p.Amount)
		credits[p.ClientId] = credits[p.ClientId].Add(p.Amount)
	}

	for _, c := range clients {
		row := &ClientBalance{
			ClientId:       c.ID,
			ClientName:     c.Name,
			OpeningBalance: c.OpeningBalance,
			Billed:         billed[c.ID],
			Paid:           paid[c.ID],
			CreditLimit:    c.CreditLimit,
		}
		row.Balance = row.OpeningBalance.Add(row.Billed).Sub(row.Paid)

		clientCharges := charges[c.ID]
		credit := credits[c.ID]
		switch {
		case c.OpeningBalance.IsPositive():
			clientCharges = append(clientCharges, datedAmount{Date: utils.DateOnly(c.CreatedAt), Amount: c.OpeningBalance})
		case c.OpeningBalance.IsNegative():
			credit = credit.Add(c.OpeningBalance.Neg())
		}
		row.Aging = ageCharges(clientCharges, credit, asOf)
		row.OverLimit = c.CreditLimit.IsPositive() && row.Balance.GreaterThan(c.CreditLimit)

		report.TotalBilled = report.TotalBilled.Add(row.Billed)
		report.TotalPaid = report.TotalPaid.Add(row.Paid)
		if row.Balance.IsPositive() {
			report.TotalReceivable = report.TotalReceivable.Add(row.Balance)
		} else {
			report.TotalAdvance = report.TotalAdvance.Add(row.Balance.Neg())
		}
		report.Aging.merge(row.Aging)
		report.Clients = append(report.Clients, row)
	}
	sort.SliceStable(report.Clients, func(i, j int) bool {
		if !report.Clients[i].Balance.Equal(report.Clients[j].Balance) {
			return report.Clients[i].Balance.GreaterThan(report.Clients[j].Balance)
		}
		return report.Clients[i].ClientName < report.Clients[j].ClientName
	})
	return report
}

func GetClientBalances(ctx context.Context, asOf time.Time) (*ClientBalancesReport, error) {
	started := time.Now()
	defer logSlowReport(ctx, "client_balances", started, nil)
	if asOf.IsZero() {
		asOf = models.BusinessToday(ctx)
	}
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, models.ErrBusinessRequired
	}
	key := ClientBalancesCacheKey(businessId, asOf)
	logger := config.GetLogger()
	var cached ClientBalancesReport
	if found, err := cacheGet(key, &cached); err != nil {
		config.LogError(logger, "Reports", "GetClientBalances", "cache get", key, err)
	} else if found {
		return &cached, nil
	}

	var (
		clients  []*models.Client
		challans []*models.Challan
		payments []*models.Payment
		minDays  int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		clients, err = models.LoadClients(gctx)
		return err
	})
	g.Go(func() (err error) {
		challans, err = models.LoadChallans(gctx, 0, asOf)
		return err
	})
	g.Go(func() (err error) {
		payments, err = models.LoadPayments(gctx, 0, models.DateRange{To: asOf})
		return err
	})
	g.Go(func() error {
		minDays = models.MinimumRentalDays(gctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	report := BuildClientBalances(clients, challans, payments, minDays, asOf)
	if err := cacheSet(key, report, reportCacheTTL()); err != nil {
		config.LogError(logger, "Reports", "GetClientBalances", "cache set", key, err)
	}
	return report, nil
}
