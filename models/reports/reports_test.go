package reports

import (
	"bytes"
	"context"
	"path"
	"testing"
	"time"

	"github.com/rentiq/rentiq_backend/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDec(t *testing.T, want string, got decimal.Decimal, msg string) {
	t.Helper()
	assert.True(t, got.Equal(dec(want)), "%s: got %s, want %s", msg, got, want)
}

func returnedChallan(id, clientId, itemId int, issue, returned string, qty int, rate string) *models.Challan {
	return &models.Challan{
		ID:             id,
		ChallanNumber:  models.FormatChallanNumber("CH", id),
		ClientId:       clientId,
		IssueDate:      day(issue),
		Status:         models.ChallanStatusReturned,
		DeliveryCharge: decimal.Zero,
		Discount:       decimal.Zero,
		Details:        []*models.ChallanDetail{{ID: id * 10, ItemId: itemId, Quantity: qty, ReturnedQuantity: qty, DailyRate: dec(rate)}},
		Returns: []*models.ChallanReturn{{
			ID:         id * 100,
			ReturnDate: day(returned),
			Lines:      []*models.ChallanReturnLine{{DetailId: id * 10, ReturnedQuantity: qty}},
		}},
	}
}

func openChallan(id, clientId, itemId int, issue string, qty int, rate string) *models.Challan {
	return &models.Challan{
		ID:             id,
		ChallanNumber:  models.FormatChallanNumber("CH", id),
		ClientId:       clientId,
		IssueDate:      day(issue),
		Status:         models.ChallanStatusOpen,
		DeliveryCharge: decimal.Zero,
		Discount:       decimal.Zero,
		Details:        []*models.ChallanDetail{{ID: id * 10, ItemId: itemId, Quantity: qty, DailyRate: dec(rate)}},
	}
}

func fixture() ([]*models.Client, []*models.Challan, []*models.Payment) {
	clients := []*models.Client{
		{ID: 1, Name: "Acme Tents", CreatedAt: day("2024-01-01"), OpeningBalance: decimal.Zero, CreditLimit: dec("200")},
		{ID: 2, Name: "Bright Events", CreatedAt: day("2024-01-01"), OpeningBalance: dec("-100"), CreditLimit: decimal.Zero},
		{ID: 3, Name: "City Caterers", CreatedAt: day("2023-10-01"), OpeningBalance: dec("500"), CreditLimit: decimal.Zero},
	}
	challans := []*models.Challan{
		returnedChallan(1, 1, 11, "2024-01-01", "2024-01-11", 2, "10"),
		returnedChallan(2, 1, 12, "2024-03-01", "2024-03-21", 1, "10"),
	}
	payments := []*models.Payment{
		{ID: 1, ClientId: 1, PaymentDate: day("2024-03-25"), Amount: dec("150"), Mode: models.PaymentModeUPI, ReferenceNumber: "UTR1"},
		{ID: 2, ClientId: 1, PaymentDate: day("2024-04-02"), Amount: dec("999"), Mode: models.PaymentModeCash},
	}
	return clients, challans, payments
}

func TestBuildClientBalancesAging(t *testing.T) {
	clients, challans, payments := fixture()
	report := BuildClientBalances(clients, challans, payments, 1, day("2024-03-31"))

	require.Len(t, report.Clients, 3)
	assert.Equal(t, "City Caterers", report.Clients[0].ClientName)
	assert.Equal(t, "Acme Tents", report.Clients[1].ClientName)
	assert.Equal(t, "Bright Events", report.Clients[2].ClientName)

	acme := report.Clients[1]
	assertDec(t, "400", acme.Billed, "billed")
	assertDec(t, "150", acme.Paid, "paid ignores later payments")
	assertDec(t, "250", acme.Balance, "balance")
	assertDec(t, "200", acme.Aging.Current, "current")
	assertDec(t, "50", acme.Aging.Days61to90, "61-90")
	assertDec(t, "0", acme.Aging.Days31to60, "31-60")
	assert.True(t, acme.OverLimit)

	assertDec(t, "500", report.Clients[0].Aging.Days90Plus, "opening balance ages from creation")
	assertDec(t, "0", report.Clients[2].Aging.Current, "advance has no aging")

	assertDec(t, "750", report.TotalReceivable, "receivable")
	assertDec(t, "100", report.TotalAdvance, "advance")
	assertDec(t, "500", report.Aging.Days90Plus, "total 90+")
}

func TestAgeChargesFIFO(t *testing.T) {
	asOf := day("2024-06-30")
	buckets := ageCharges([]datedAmount{
		{Date: day("2024-06-20"), Amount: dec("100")},
		{Date: day("2024-03-01"), Amount: dec("100")},
		{Date: day("2024-05-15"), Amount: dec("100")},
	}, dec("120"), asOf)
	assertDec(t, "0", buckets.Days90Plus, "oldest settled first")
	assertDec(t, "80", buckets.Days31to60, "partly settled")
	assertDec(t, "100", buckets.Current, "newest untouched")
}

func TestBuildClientStatement(t *testing.T) {
	clients, challans, payments := fixture()
	st := BuildClientStatement(clients[0], challans, payments, 1, day("2024-03-01"), day("2024-03-31"))

	assertDec(t, "200", st.OpeningBalance, "opening")
	require.Len(t, st.Entries, 2)
	assert.Equal(t, StatementEntryCharge, st.Entries[0].Type)
	assertDec(t, "400", st.Entries[0].Balance, "after charge")
	assert.Equal(t, StatementEntryPayment, st.Entries[1].Type)
	assert.Equal(t, "UTR1", st.Entries[1].Reference)
	assertDec(t, "250", st.Entries[1].Balance, "after payment")
	assertDec(t, "250", st.ClosingBalance, "closing")
	assertDec(t, "200", st.TotalDebit, "debit")
	assertDec(t, "150", st.TotalCredit, "credit")
}

func TestBuildRentalReport(t *testing.T) {
	clients, challans, _ := fixture()
	items := []*models.InventoryItem{{ID: 11, Code: "TENT", Name: "Tent"}, {ID: 12, Code: "CHAIR", Name: "Chair"}}
	report := BuildRentalReport(challans, items, clients, 1, day("2024-03-01"), day("2024-03-31"))

	assert.Equal(t, 1, report.TotalChallans)
	assert.Equal(t, 1, report.TotalQuantity)
	assertDec(t, "200", report.TotalRevenue, "revenue")
	require.Len(t, report.Items, 1)
	assert.Equal(t, "CHAIR", report.Items[0].Code)
	require.Len(t, report.Clients, 1)
	assert.Equal(t, 1, report.Clients[0].ClientId)
}

func TestBuildRentalReportSplitsOpenRental(t *testing.T) {
	ch := openChallan(5, 3, 11, "2024-02-20", 1, "5")
	report := BuildRentalReport([]*models.Challan{ch}, nil, nil, 1, day("2024-03-01"), day("2024-03-31"))

	// 40 days to the end of March less 9 days billed in February
	assertDec(t, "155", report.TotalRevenue, "revenue")
	assert.Equal(t, 0, report.TotalChallans)
	require.Len(t, report.Items, 1)
	assertDec(t, "155", report.Items[0].Revenue, "item revenue")
}

func TestBuildPaymentReport(t *testing.T) {
	payments := []*models.Payment{
		{ClientId: 1, PaymentDate: day("2024-03-02"), Amount: dec("100"), Mode: models.PaymentModeCash},
		{ClientId: 2, PaymentDate: day("2024-03-02"), Amount: dec("50"), Mode: models.PaymentModeUPI},
		{ClientId: 2, PaymentDate: day("2024-03-05"), Amount: dec("25"), Mode: models.PaymentModeCash},
		{ClientId: 2, PaymentDate: day("2024-04-01"), Amount: dec("999"), Mode: models.PaymentModeBank},
	}
	report := BuildPaymentReport(payments, day("2024-03-01"), day("2024-03-31"))

	assert.Equal(t, 3, report.Count)
	assertDec(t, "175", report.Total, "total")
	require.Len(t, report.ByMode, len(models.PaymentModes))
	assert.Equal(t, models.PaymentModeCash, report.ByMode[0].Mode)
	assertDec(t, "125", report.ByMode[0].Amount, "cash")
	assert.Equal(t, 0, report.ByMode[1].Count)
	require.Len(t, report.ByDay, 2)
	assertDec(t, "150", report.ByDay[0].Amount, "first day")
}

func TestBuildPettyCashReport(t *testing.T) {
	records := []*models.PettyCash{
		{Date: day("2024-03-02"), OpeningBalance: dec("80"), CashIn: dec("20"), TransferOut: dec("10"), TotalExpenses: dec("30"), ClosingBalance: dec("60"),
			Expenses: []*models.PettyCashExpense{{Category: "Fuel", Amount: dec("30")}}},
		{Date: day("2024-03-01"), OpeningBalance: dec("100"), TotalExpenses: dec("20"), ClosingBalance: dec("80"),
			Expenses: []*models.PettyCashExpense{{Category: "Tea", Amount: dec("5")}, {Category: "fuel ", Amount: dec("15")}}},
	}
	report := BuildPettyCashReport(dec("100"), records, day("2024-03-01"), day("2024-03-31"))

	assertDec(t, "100", report.OpeningBalance, "opening")
	assertDec(t, "60", report.ClosingBalance, "closing")
	assertDec(t, "50", report.TotalExpenses, "expenses")
	assertDec(t, "20", report.TotalCashIn, "cash in")
	assertDec(t, "10", report.TotalTransfer, "transfers")
	require.Len(t, report.ByCategory, 2)
	assert.Equal(t, "fuel", report.ByCategory[0].Category)
	assert.Equal(t, "Tea", report.ByCategory[1].Category)
	assertDec(t, "45", report.ByCategory[0].Amount, "fuel merged case-insensitively")
	require.Len(t, report.Days, 2)
	assert.True(t, report.Days[0].Date.Equal(day("2024-03-01")))

	empty := BuildPettyCashReport(dec("42"), nil, day("2024-04-01"), day("2024-04-30"))
	assertDec(t, "42", empty.OpeningBalance, "empty opening")
	assertDec(t, "42", empty.ClosingBalance, "empty closing")
}

func TestBuildDashboard(t *testing.T) {
	inactive := false
	expected := day("2024-03-05")
	open := openChallan(5, 1, 11, "2024-02-20", 1, "5")
	open.ExpectedReturnDate = &expected
	in := DashboardInput{
		Business: &models.Business{MinimumRentalDays: 1, LowStockThreshold: 5, CurrencySymbol: "₹"},
		Items: []*models.InventoryItem{
			{ID: 11, Code: "TENT", TotalQuantity: 10, RentedQuantity: 4},
			{ID: 12, Code: "CHAIR", TotalQuantity: 3},
			{ID: 13, Code: "OLD", TotalQuantity: 50, RentedQuantity: 50, IsActive: &inactive},
		},
		Clients: []*models.Client{
			{ID: 1, Name: "Acme", OpeningBalance: decimal.Zero},
			{ID: 2, Name: "Bright", OpeningBalance: dec("300")},
		},
		Challans: []*models.Challan{open},
		Payments: []*models.Payment{
			{ClientId: 1, PaymentDate: day("2024-02-28"), Amount: dec("50"), Mode: models.PaymentModeCash},
			{ClientId: 1, PaymentDate: day("2024-03-05"), Amount: dec("100"), Mode: models.PaymentModeCash},
		},
		PettyCash: &models.PettyCash{ClosingBalance: dec("42")},
	}
	d := BuildDashboard(in, day("2024-03-10"))

	assert.Equal(t, 2, d.ItemCount)
	assert.Equal(t, 13, d.TotalQuantity)
	assert.Equal(t, 4, d.RentedQuantity)
	assertDec(t, "30.77", d.UtilizationPercent, "utilization")
	assert.Equal(t, 1, d.LowStockCount)
	assert.Equal(t, 1, d.OpenChallans)
	assert.Equal(t, 1, d.OverdueChallans)
	assertDec(t, "50", d.RentBilledThisMonth, "billed this month")
	assertDec(t, "100", d.CollectionsThisMonth, "collections")
	assertDec(t, "300", d.TotalReceivable, "receivable")
	assertDec(t, "42", d.PettyCashBalance, "petty cash")
	require.Len(t, d.TopItems, 1)
	assert.Equal(t, "TENT", d.TopItems[0].Code)
	assert.Equal(t, "₹", d.CurrencySymbol)
}

func TestBuildDashboardCountsRentBilledOnFirstOfMonth(t *testing.T) {
	in := DashboardInput{
		Business: &models.Business{MinimumRentalDays: 1},
		Challans: []*models.Challan{
			openChallan(1, 1, 11, "2024-03-01", 2, "5"),
			openChallan(2, 1, 11, "2024-02-28", 1, "7"),
		},
	}
	d := BuildDashboard(in, day("2024-03-01"))
	// new challan: minimum day on the 1st; old one: the day from Feb 29 to Mar 1
	assertDec(t, "17", d.RentBilledThisMonth, "billed on day one")
}

func TestUtilizationPercent(t *testing.T) {
	assertDec(t, "0", UtilizationPercent(5, 0), "no stock")
	assertDec(t, "100", UtilizationPercent(7, 7), "all out")
	assertDec(t, "33.33", UtilizationPercent(1, 3), "rounded")
}

func TestWriteWorkbook(t *testing.T) {
	clients, challans, payments := fixture()
	st := BuildClientStatement(clients[0], challans, payments, 1, day("2024-03-01"), day("2024-03-31"))

	var buf bytes.Buffer
	require.NoError(t, WriteWorkbook(&buf, st.Sheets()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Statement")
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, "Date", rows[0][0])
	assert.Equal(t, "Opening balance", rows[1][3])
	assert.Equal(t, "statement_1_20240301_20240331.xlsx", st.FileName())
}

func TestClientBalancesCacheKeysShareBusinessPattern(t *testing.T) {
	key := ClientBalancesCacheKey("biz-1", day("2026-03-05"))
	assert.Equal(t, "ClientBalances:biz-1:2026-03-05", key)

	matched, err := path.Match(clientBalancesPattern("biz-1"), key)
	require.NoError(t, err)
	assert.True(t, matched)
	matched, _ = path.Match(clientBalancesPattern("biz-1"), ClientBalancesCacheKey("biz-10", day("2026-03-05")))
	assert.False(t, matched)

	// without redis there is nothing to drop
	assert.NoError(t, InvalidateReports(context.Background(), "biz-1"))
}
