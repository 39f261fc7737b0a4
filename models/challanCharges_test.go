package models

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func sampleChallan() *Challan {
	return &Challan{
		ID:             7,
		ChallanNumber:  "CH-00007",
		IssueDate:      day("2024-01-01"),
		Status:         ChallanStatusPartiallyReturned,
		DeliveryCharge: dec("50"),
		Discount:       dec("25"),
		Details: []*ChallanDetail{
			{ID: 1, ItemId: 11, Quantity: 10, ReturnedQuantity: 4, LostQuantity: 1, DailyRate: dec("5"), ReplacementCost: dec("100")},
		},
		Returns: []*ChallanReturn{
			{ID: 3, ReturnDate: day("2024-01-06"), Lines: []*ChallanReturnLine{{DetailId: 1, ReturnedQuantity: 4, LostQuantity: 1}}},
		},
	}
}

func TestChargeableDays(t *testing.T) {
	cases := []struct {
		from, to string
		min      int
		want     int
	}{
		{"2024-01-01", "2024-01-01", 1, 1},
		{"2024-01-01", "2024-01-02", 1, 1},
		{"2024-01-01", "2024-01-11", 1, 10},
		{"2024-01-01", "2024-01-03", 7, 7},
		{"2024-01-01", "2024-01-03", 0, 2},
		{"2024-02-28", "2024-03-01", 1, 2},
	}
	for _, c := range cases {
		if got := ChargeableDays(day(c.from), day(c.to), c.min); got != c.want {
			t.Fatalf("ChargeableDays(%s, %s, %d) = %d, want %d", c.from, c.to, c.min, got, c.want)
		}
	}
}

func TestComputeChallanChargesWithReturns(t *testing.T) {
	ch := sampleChallan()
	got := ComputeChallanCharges(ch, 1, day("2024-01-11"))

	// returned+lost 5 * 5 days * 5, outstanding 5 * 10 days * 5
	if !got.RentAmount.Equal(dec("375")) {
		t.Fatalf("rent = %s, want 375", got.RentAmount)
	}
	if !got.LostAmount.Equal(dec("100")) {
		t.Fatalf("lost = %s, want 100", got.LostAmount)
	}
	if !got.Total.Equal(dec("500")) {
		t.Fatalf("total = %s, want 500", got.Total)
	}
	if got.Outstanding != 5 {
		t.Fatalf("outstanding = %d, want 5", got.Outstanding)
	}
}

func TestComputeChallanChargesIgnoresLaterReturns(t *testing.T) {
	got := ComputeChallanCharges(sampleChallan(), 1, day("2024-01-04"))
	if got.Outstanding != 10 {
		t.Fatalf("outstanding = %d, want 10", got.Outstanding)
	}
	if !got.Total.Equal(dec("175")) {
		t.Fatalf("total = %s, want 175", got.Total)
	}
}

func TestComputeChallanChargesEdgeCases(t *testing.T) {
	ch := sampleChallan()
	ch.Returns = nil
	sameDay := ComputeChallanCharges(ch, 1, ch.IssueDate)
	if !sameDay.RentAmount.Equal(dec("50")) {
		t.Fatalf("same day rent = %s, want 50", sameDay.RentAmount)
	}

	before := ComputeChallanCharges(ch, 1, day("2023-12-31"))
	if !before.Total.IsZero() {
		t.Fatalf("charges before issue = %s, want 0", before.Total)
	}

	ch.Status = ChallanStatusCancelled
	if got := ComputeChallanCharges(ch, 1, day("2024-02-01")); !got.Total.IsZero() {
		t.Fatalf("cancelled total = %s, want 0", got.Total)
	}

	ch.Status = ChallanStatusOpen
	ch.Discount = dec("100000")
	got := ComputeChallanCharges(ch, 1, day("2024-01-05"))
	if !got.Total.IsZero() || got.Total.IsNegative() {
		t.Fatalf("over-discounted total = %s, want 0", got.Total)
	}
}

func TestChargeEventsSumToTotal(t *testing.T) {
	ch := sampleChallan()
	for _, asOf := range []string{"2024-01-01", "2024-01-04", "2024-01-06", "2024-01-11", "2024-03-01"} {
		total := ComputeChallanCharges(ch, 3, day(asOf)).Total
		sum := decimal.Zero
		for _, e := range ChargeEvents(ch, 3, day(asOf)) {
			if e.ChallanId != ch.ID {
				t.Fatalf("event challan id = %d", e.ChallanId)
			}
			sum = sum.Add(e.Amount)
		}
		if !sum.Equal(total) {
			t.Fatalf("asOf %s: events sum %s, total %s", asOf, sum, total)
		}
	}
}

func TestChargeEventDates(t *testing.T) {
	events := ChargeEvents(sampleChallan(), 1, day("2024-01-11"))
	if len(events) != 3 {
		t.Fatalf("events = %d, want 3", len(events))
	}
	want := []string{"2024-01-01", "2024-01-06", "2024-01-11"}
	for i, e := range events {
		if e.Date.Format("2006-01-02") != want[i] {
			t.Fatalf("event %d date = %s, want %s", i, e.Date.Format("2006-01-02"), want[i])
		}
	}
}

func TestIsOverdue(t *testing.T) {
	ch := sampleChallan()
	expected := day("2024-01-05")
	ch.ExpectedReturnDate = &expected
	if !ch.IsOverdue(day("2024-01-06")) {
		t.Fatal("challan past expected return date should be overdue")
	}
	if ch.IsOverdue(day("2024-01-05")) {
		t.Fatal("challan on expected return date is not overdue")
	}
	ch.Status = ChallanStatusReturned
	if ch.IsOverdue(day("2024-02-01")) {
		t.Fatal("returned challan is never overdue")
	}
}

func TestFormatChallanNumber(t *testing.T) {
	if got := FormatChallanNumber("", 12); got != "CH-00012" {
		t.Fatalf("got %s", got)
	}
	if got := FormatChallanNumber("RNT", 123456); got != "RNT-123456" {
		t.Fatalf("got %s", got)
	}
}

func TestRechainPettyCash(t *testing.T) {
	first := &PettyCash{Date: day("2024-01-01"), OpeningBalance: dec("100"), Expenses: []*PettyCashExpense{{Amount: dec("30")}}}
	second := &PettyCash{Date: day("2024-01-02"), OpeningCarried: true, Expenses: []*PettyCashExpense{{Amount: dec("20")}}}
	third := &PettyCash{Date: day("2024-01-03"), OpeningCarried: true, CashIn: dec("5"), TransferOut: dec("10")}

	changed, err := RechainPettyCash(decimal.Zero, []*PettyCash{third, first, second})
	if err != nil {
		t.Fatalf("rechain: %v", err)
	}
	if len(changed) != 3 {
		t.Fatalf("changed = %d, want 3", len(changed))
	}
	if !second.OpeningBalance.Equal(dec("70")) || !third.ClosingBalance.Equal(dec("45")) {
		t.Fatalf("second opening %s, third closing %s", second.OpeningBalance, third.ClosingBalance)
	}

	changed, err = RechainPettyCash(decimal.Zero, []*PettyCash{first, second, third})
	if err != nil || len(changed) != 0 {
		t.Fatalf("second pass changed %d records, err %v", len(changed), err)
	}

	first.Expenses[0].Amount = dec("90")
	if _, err := RechainPettyCash(decimal.Zero, []*PettyCash{first, second, third}); !errors.Is(err, ErrNegativeClosing) {
		t.Fatalf("err = %v, want ErrNegativeClosing", err)
	}
}

func TestDuplicateKeys(t *testing.T) {
	a := PaymentKey(3, day("2024-01-02"), dec("100"), " UTR-1 ")
	b := PaymentKey(3, day("2024-01-02").Add(5*time.Hour), dec("100.00"), "utr-1")
	if a != b {
		t.Fatalf("payment keys differ: %q %q", a, b)
	}
	if a == PaymentKey(4, day("2024-01-02"), dec("100"), "utr-1") {
		t.Fatal("payment key ignores client")
	}
	x := PettyCashExpenseKey(day("2024-01-02"), "Fuel ", "Diesel", dec("250"))
	y := PettyCashExpenseKey(day("2024-01-02"), "fuel", "diesel ", dec("250.0"))
	if x != y {
		t.Fatalf("expense keys differ: %q %q", x, y)
	}
	if NormalizeClientName("  Acme   Tent  House ") != "acme tent house" {
		t.Fatal("client name not normalised")
	}
}
