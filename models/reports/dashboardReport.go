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

const topItemCount = 5

type TopItem struct {
	ItemId         int    `json:"item_id"`
	Code           string `json:"code"`
	Name           string `json:"name"`
	RentedQuantity int    `json:"rented_quantity"`
	TotalQuantity  int    `json:"total_quantity"`
}

type Dashboard struct {
	AsOf                 time.Time       `json:"as_of"`
	CurrencySymbol       string          `json:"currency_symbol"`
	ItemCount            int             `json:"item_count"`
	TotalQuantity        int             `json:"total_quantity"`
	RentedQuantity       int             `json:"rented_quantity"`
	AvailableQuantity    int             `json:"available_quantity"`
	UtilizationPercent   decimal.Decimal `json:"utilization_percent"`
	LowStockCount        int             `json:"low_stock_count"`
	OpenChallans         int             `json:"open_challans"`
	OverdueChallans      int             `json:"overdue_challans"`
	RentBilledThisMonth  decimal.Decimal `json:"rent_billed_this_month"`
	CollectionsThisMonth decimal.Decimal `json:"collections_this_month"`
	TotalReceivable      decimal.Decimal `json:"total_receivable"`
	PettyCashBalance     decimal.Decimal `json:"petty_cash_balance"`
	TopItems             []*TopItem      `json:"top_items"`
}

// DashboardInput is everything the dashboard is computed from.
type DashboardInput struct {
	Business  *models.Business
	Items     []*models.InventoryItem
	Clients   []*models.Client
	Challans  []*models.Challan
	Payments  []*models.Payment
	PettyCash *models.PettyCash
}

func (in DashboardInput) minDays() int {
	if in.Business == nil || in.Business.MinimumRentalDays <= 0 {
		return models.DefaultMinimumRentalDays
	}
	return in.Business.MinimumRentalDays
}

func (in DashboardInput) lowStockThreshold() int {
	if in.Business == nil || in.Business.LowStockThreshold < 0 {
		return models.DefaultLowStockThreshold
	}
	return in.Business.LowStockThreshold
}

// UtilizationPercent is rented/total*100 rounded to 2 places, 0 without stock.
func UtilizationPercent(rented, total int) decimal.Decimal {
	if total <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(rented)).Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(total))).Round(2)
}

func BuildDashboard(in DashboardInput, asOf time.Time) *Dashboard {
	asOf = utils.DateOnly(asOf)
	minDays := in.minDays()
	d := &Dashboard{
		AsOf:                 asOf,
		RentBilledThisMonth:  decimal.Zero,
		CollectionsThisMonth: decimal.Zero,
		PettyCashBalance:     decimal.Zero,
		CurrencySymbol:       models.DefaultCurrencySymbol,
	}
	if in.Business != nil && in.Business.CurrencySymbol != "" {
		d.CurrencySymbol = in.Business.CurrencySymbol
	}

	lowStock := in.lowStockThreshold()
	var active []*models.InventoryItem
	for _, item := range in.Items {
		if item.IsActive != nil && !*item.IsActive {
			continue
		}
		active = append(active, item)
		d.ItemCount++
		d.TotalQuantity += item.TotalQuantity
		d.RentedQuantity += item.RentedQuantity
		if item.IsLowStock(lowStock) {
			d.LowStockCount++
		}
	}
	d.AvailableQuantity = d.TotalQuantity - d.RentedQuantity
	d.UtilizationPercent = UtilizationPercent(d.RentedQuantity, d.TotalQuantity)

	sort.SliceStable(active, func(i, j int) bool {
		if active[i].RentedQuantity != active[j].RentedQuantity {
			return active[i].RentedQuantity > active[j].RentedQuantity
		}
		return active[i].Code < active[j].Code
	})
	for _, item := range active {
		if len(d.TopItems) == topItemCount || item.RentedQuantity == 0 {
			break
		}
		d.TopItems = append(d.TopItems, &TopItem{
			ItemId:         item.ID,
			Code:           item.Code,
			Name:           item.Name,
			RentedQuantity: item.RentedQuantity,
			TotalQuantity:  item.TotalQuantity,
		})
	}

	monthStart := utils.MonthStart(asOf)
	beforeMonth := monthStart.AddDate(0, 0, -1)
	for _, ch := range in.Challans {
		if ch.Status.Active() {
			d.OpenChallans++
			if ch.IsOverdue(asOf) {
				d.OverdueChallans++
			}
		}
		now := models.ComputeChallanCharges(ch, minDays, asOf).Total
		then := models.ComputeChallanCharges(ch, minDays, beforeMonth).Total
		d.RentBilledThisMonth = d.RentBilledThisMonth.Add(now.Sub(then))
	}

	thisMonth := models.DateRange{From: monthStart, To: asOf}
	for _, p := range in.Payments {
		if thisMonth.Contains(p.PaymentDate) {
			d.CollectionsThisMonth = d.CollectionsThisMonth.Add(p.Amount)
		}
	}

	d.TotalReceivable = BuildClientBalances(in.Clients, in.Challans, in.Payments, minDays, asOf).TotalReceivable
	if in.PettyCash != nil {
		d.PettyCashBalance = in.PettyCash.ClosingBalance
	}
	return d
}

// GetDashboard serves today's dashboard, from the redis snapshot when it is
// still for the same day.
func GetDashboard(ctx context.Context) (*Dashboard, error) {
	started := time.Now()
	defer logSlowReport(ctx, "dashboard", started, nil)
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, models.ErrBusinessRequired
	}
	asOf := models.BusinessToday(ctx)
	key := DashboardCacheKey(businessId)
	logger := config.GetLogger()

	var cached Dashboard
	if found, err := cacheGet(key, &cached); err != nil {
		config.LogError(logger, "Reports", "GetDashboard", "cache get", key, err)
	} else if found && cached.AsOf.Equal(asOf) {
		return &cached, nil
	}

	in, err := loadDashboardInput(ctx, asOf)
	if err != nil {
		return nil, err
	}
	dashboard := BuildDashboard(*in, asOf)
	if err := cacheSet(key, dashboard, reportCacheTTL()); err != nil {
		config.LogError(logger, "Reports", "GetDashboard", "cache set", key, err)
	}
	return dashboard, nil
}

func loadDashboardInput(ctx context.Context, asOf time.Time) (*DashboardInput, error) {
	in := &DashboardInput{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		in.Business, err = models.GetBusiness(gctx)
		return err
	})
	g.Go(func() (err error) {
		in.Items, err = models.LoadInventoryItems(gctx)
		return err
	})
	g.Go(func() (err error) {
		in.Clients, err = models.LoadClients(gctx)
		return err
	})
	g.Go(func() (err error) {
		in.Challans, err = models.LoadChallans(gctx, 0, asOf)
		return err
	})
	g.Go(func() (err error) {
		in.Payments, err = models.LoadPayments(gctx, 0, models.DateRange{To: asOf})
		return err
	})
	g.Go(func() (err error) {
		in.PettyCash, err = models.LatestPettyCash(gctx, asOf)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return in, nil
}
