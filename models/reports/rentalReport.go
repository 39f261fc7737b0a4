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

type ItemRental struct {
	ItemId         int             `json:"item_id"`
	Code           string          `json:"code"`
	Name           string          `json:"name"`
	QuantityRented int             `json:"quantity_rented"`
	Revenue        decimal.Decimal `json:"revenue"`
}

type ClientRental struct {
	ClientId   int             `json:"client_id"`
	ClientName string          `json:"client_name"`
	Challans   int             `json:"challans"`
	Revenue    decimal.Decimal `json:"revenue"`
}

type RentalReport struct {
	From          time.Time       `json:"from"`
	To            time.Time       `json:"to"`
	TotalChallans int             `json:"total_challans"`
	TotalQuantity int             `json:"total_quantity"`
	TotalRevenue  decimal.Decimal `json:"total_revenue"`
	Items         []*ItemRental   `json:"items"`
	Clients       []*ClientRental `json:"clients"`
}

// BuildRentalReport counts what was rented out between from and to and what
// was earned in that period. Revenue of a challan is its charge at to less
// its charge the day before from, so long rentals are split across periods.
func BuildRentalReport(challans []*models.Challan, items []*models.InventoryItem, clients []*models.Client, minDays int, from, to time.Time) *RentalReport {
	from, to = utils.DateOnly(from), utils.DateOnly(to)
	before := from.AddDate(0, 0, -1)
	report := &RentalReport{From: from, To: to, TotalRevenue: decimal.Zero}

	itemRows := map[int]*ItemRental{}
	for _, item := range items {
		itemRows[item.ID] = &ItemRental{ItemId: item.ID, Code: item.Code, Name: item.Name, Revenue: decimal.Zero}
	}
	itemRow := func(id int) *ItemRental {
		row, ok := itemRows[id]
		if !ok {
			row = &ItemRental{ItemId: id, Revenue: decimal.Zero}
			itemRows[id] = row
		}
		return row
	}
	clientRows := map[int]*ClientRental{}
	for _, c := range clients {
		clientRows[c.ID] = &ClientRental{ClientId: c.ID, ClientName: c.Name, Revenue: decimal.Zero}
	}
	clientRow := func(id int) *ClientRental {
		row, ok := clientRows[id]
		if !ok {
			row = &ClientRental{ClientId: id, Revenue: decimal.Zero}
			clientRows[id] = row
		}
		return row
	}

	for _, ch := range challans {
		issued := utils.DateOnly(ch.IssueDate)
		if issued.After(to) {
			continue
		}
		if !issued.Before(from) {
			report.TotalChallans++
			clientRow(ch.ClientId).Challans++
			for _, d := range ch.Details {
				itemRow(d.ItemId).QuantityRented += d.Quantity
				report.TotalQuantity += d.Quantity
			}
		}

		end := models.ComputeChallanCharges(ch, minDays, to)
		start := models.ComputeChallanCharges(ch, minDays, before)
		revenue := end.Total.Sub(start.Total)
		if revenue.IsZero() {
			continue
		}
		report.TotalRevenue = report.TotalRevenue.Add(revenue)
		clientRow(ch.ClientId).Revenue = clientRow(ch.ClientId).Revenue.Add(revenue)

		startLines := map[int]models.LineCharge{}
		for _, l := range start.Lines {
			startLines[l.DetailId] = l
		}
		for _, l := range end.Lines {
			prev, ok := startLines[l.DetailId]
			lineRevenue := l.Rent.Add(l.LostCharge)
			if ok {
				lineRevenue = lineRevenue.Sub(prev.Rent).Sub(prev.LostCharge)
			}
			row := itemRow(l.ItemId)
			row.Revenue = row.Revenue.Add(lineRevenue)
		}
	}

	for _, row := range itemRows {
		if row.QuantityRented > 0 || !row.Revenue.IsZero() {
			report.Items = append(report.Items, row)
		}
	}
	sort.SliceStable(report.Items, func(i, j int) bool {
		if !report.Items[i].Revenue.Equal(report.Items[j].Revenue) {
			return report.Items[i].Revenue.GreaterThan(report.Items[j].Revenue)
		}
		return report.Items[i].ItemId < report.Items[j].ItemId
	})
	for _, row := range clientRows {
		if row.Challans > 0 || !row.Revenue.IsZero() {
			report.Clients = append(report.Clients, row)
		}
	}
	sort.SliceStable(report.Clients, func(i, j int) bool {
		if !report.Clients[i].Revenue.Equal(report.Clients[j].Revenue) {
			return report.Clients[i].Revenue.GreaterThan(report.Clients[j].Revenue)
		}
		return report.Clients[i].ClientId < report.Clients[j].ClientId
	})
	return report
}

func GetRentalReport(ctx context.Context, from, to time.Time) (*RentalReport, error) {
	started := time.Now()
	defer logSlowReport(ctx, "rentals", started, nil)
	from, to, err := resolveRange(ctx, from, to)
	if err != nil {
		return nil, err
	}

	var (
		challans []*models.Challan
		items    []*models.InventoryItem
		clients  []*models.Client
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		challans, err = models.LoadChallans(gctx, 0, to)
		return err
	})
	g.Go(func() (err error) {
		items, err = models.LoadInventoryItems(gctx)
		return err
	})
	g.Go(func() (err error) {
		clients, err = models.LoadClients(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return BuildRentalReport(challans, items, clients, models.MinimumRentalDays(ctx), from, to), nil
}

// resolveRange defaults to the current month up to today.
func resolveRange(ctx context.Context, from, to time.Time) (time.Time, time.Time, error) {
	if to.IsZero() {
		to = models.BusinessToday(ctx)
	}
	if from.IsZero() {
		from = utils.MonthStart(to)
	}
	from, to = utils.DateOnly(from), utils.DateOnly(to)
	if from.After(to) {
		return from, to, utils.NewValidationError("from", "must not be after to")
	}
	return from, to, nil
}
