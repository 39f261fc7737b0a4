package reports

import (
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const XlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Sheet struct {
	Name    string
	Headers []string
	Rows    [][]interface{}
}

// ExcelExporter is implemented by every report that can be downloaded.
type ExcelExporter interface {
	Sheets() []Sheet
	FileName() string
}

func cellValue(v interface{}) interface{} {
	switch x := v.(type) {
	case decimal.Decimal:
		return x.Round(2).InexactFloat64()
	case time.Time:
		if x.IsZero() {
			return ""
		}
		return x.Format("2006-01-02")
	case *time.Time:
		if x == nil {
			return ""
		}
		return x.Format("2006-01-02")
	}
	return v
}

// WriteWorkbook renders sheets into one xlsx workbook.
func WriteWorkbook(w io.Writer, sheets []Sheet) error {
	f := excelize.NewFile()
	defer f.Close()

	for i, sheet := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sheet.Name); err != nil {
				return err
			}
		} else if _, err := f.NewSheet(sheet.Name); err != nil {
			return err
		}
		header := make([]interface{}, len(sheet.Headers))
		for j, h := range sheet.Headers {
			header[j] = h
		}
		if err := f.SetSheetRow(sheet.Name, "A1", &header); err != nil {
			return err
		}
		for r, row := range sheet.Rows {
			values := make([]interface{}, len(row))
			for j, v := range row {
				values[j] = cellValue(v)
			}
			cell, err := excelize.CoordinatesToCellName(1, r+2)
			if err != nil {
				return err
			}
			if err := f.SetSheetRow(sheet.Name, cell, &values); err != nil {
				return err
			}
		}
	}
	return f.Write(w)
}

func period(from, to time.Time) string {
	return fmt.Sprintf("%s_%s", from.Format("20060102"), to.Format("20060102"))
}

func (d *Dashboard) FileName() string { return "dashboard_" + d.AsOf.Format("20060102") + ".xlsx" }

func (d *Dashboard) Sheets() []Sheet {
	summary := Sheet{Name: "Dashboard", Headers: []string{"Metric", "Value"}, Rows: [][]interface{}{
		{"As of", d.AsOf},
		{"Items", d.ItemCount},
		{"Total quantity", d.TotalQuantity},
		{"Rented quantity", d.RentedQuantity},
		{"Available quantity", d.AvailableQuantity},
		{"Utilization %", d.UtilizationPercent},
		{"Low stock items", d.LowStockCount},
		{"Open challans", d.OpenChallans},
		{"Overdue challans", d.OverdueChallans},
		{"Rent billed this month", d.RentBilledThisMonth},
		{"Collections this month", d.CollectionsThisMonth},
		{"Total receivable", d.TotalReceivable},
		{"Petty cash balance", d.PettyCashBalance},
	}}
	top := Sheet{Name: "Top items", Headers: []string{"Code", "Name", "Rented", "Total"}}
	for _, item := range d.TopItems {
		top.Rows = append(top.Rows, []interface{}{item.Code, item.Name, item.RentedQuantity, item.TotalQuantity})
	}
	return []Sheet{summary, top}
}

func (r *ClientBalancesReport) FileName() string {
	return "client_balances_" + r.AsOf.Format("20060102") + ".xlsx"
}

func (r *ClientBalancesReport) Sheets() []Sheet {
	sheet := Sheet{Name: "Client balances", Headers: []string{
		"Client", "Opening", "Billed", "Paid", "Balance", "0-30", "31-60", "61-90", "90+", "Credit limit", "Over limit",
	}}
	for _, c := range r.Clients {
		sheet.Rows = append(sheet.Rows, []interface{}{
			c.ClientName, c.OpeningBalance, c.Billed, c.Paid, c.Balance,
			c.Aging.Current, c.Aging.Days31to60, c.Aging.Days61to90, c.Aging.Days90Plus,
			c.CreditLimit, c.OverLimit,
		})
	}
	sheet.Rows = append(sheet.Rows, []interface{}{
		"Total", "", r.TotalBilled, r.TotalPaid, r.TotalReceivable.Sub(r.TotalAdvance),
		r.Aging.Current, r.Aging.Days31to60, r.Aging.Days61to90, r.Aging.Days90Plus,
	})
	return []Sheet{sheet}
}

func (s *ClientStatement) FileName() string {
	return fmt.Sprintf("statement_%d_%s.xlsx", s.ClientId, period(s.From, s.To))
}

func (s *ClientStatement) Sheets() []Sheet {
	sheet := Sheet{Name: "Statement", Headers: []string{"Date", "Type", "Reference", "Description", "Debit", "Credit", "Balance"}}
	sheet.Rows = append(sheet.Rows, []interface{}{s.From, "", "", "Opening balance", "", "", s.OpeningBalance})
	for _, e := range s.Entries {
		sheet.Rows = append(sheet.Rows, []interface{}{e.Date, e.Type, e.Reference, e.Description, e.Debit, e.Credit, e.Balance})
	}
	sheet.Rows = append(sheet.Rows, []interface{}{s.To, "", "", "Closing balance", s.TotalDebit, s.TotalCredit, s.ClosingBalance})
	return []Sheet{sheet}
}

func (r *RentalReport) FileName() string { return "rentals_" + period(r.From, r.To) + ".xlsx" }

func (r *RentalReport) Sheets() []Sheet {
	items := Sheet{Name: "By item", Headers: []string{"Code", "Name", "Quantity rented", "Revenue"}}
	for _, i := range r.Items {
		items.Rows = append(items.Rows, []interface{}{i.Code, i.Name, i.QuantityRented, i.Revenue})
	}
	items.Rows = append(items.Rows, []interface{}{"Total", "", r.TotalQuantity, r.TotalRevenue})
	clients := Sheet{Name: "By client", Headers: []string{"Client", "Challans", "Revenue"}}
	for _, c := range r.Clients {
		clients.Rows = append(clients.Rows, []interface{}{c.ClientName, c.Challans, c.Revenue})
	}
	clients.Rows = append(clients.Rows, []interface{}{"Total", r.TotalChallans, r.TotalRevenue})
	return []Sheet{items, clients}
}

func (r *PaymentReport) FileName() string { return "payments_" + period(r.From, r.To) + ".xlsx" }

func (r *PaymentReport) Sheets() []Sheet {
	modes := Sheet{Name: "By mode", Headers: []string{"Mode", "Count", "Amount"}}
	for _, m := range r.ByMode {
		modes.Rows = append(modes.Rows, []interface{}{string(m.Mode), m.Count, m.Amount})
	}
	modes.Rows = append(modes.Rows, []interface{}{"Total", r.Count, r.Total})
	days := Sheet{Name: "By day", Headers: []string{"Date", "Count", "Amount"}}
	for _, d := range r.ByDay {
		days.Rows = append(days.Rows, []interface{}{d.Date, d.Count, d.Amount})
	}
	return []Sheet{modes, days}
}

func (r *PettyCashReport) FileName() string { return "pettycash_" + period(r.From, r.To) + ".xlsx" }

func (r *PettyCashReport) Sheets() []Sheet {
	days := Sheet{Name: "Days", Headers: []string{"Date", "Opening", "Cash in", "Expenses", "Transfer out", "Closing"}}
	for _, d := range r.Days {
		days.Rows = append(days.Rows, []interface{}{d.Date, d.OpeningBalance, d.CashIn, d.Expenses, d.TransferOut, d.ClosingBalance})
	}
	days.Rows = append(days.Rows, []interface{}{"Total", r.OpeningBalance, r.TotalCashIn, r.TotalExpenses, r.TotalTransfer, r.ClosingBalance})
	categories := Sheet{Name: "By category", Headers: []string{"Category", "Amount"}}
	for _, c := range r.ByCategory {
		categories.Rows = append(categories.Rows, []interface{}{c.Category, c.Amount})
	}
	return []Sheet{days, categories}
}
