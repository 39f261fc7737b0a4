package importer

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rentiq/rentiq_backend/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type fakeStore struct {
	clients   map[string]int
	codes     map[string]bool
	payments  map[string]bool
	expenses  map[string]bool
	committed []*models.ImportBatch
	jobs      []*models.ImportJob
}

func (s *fakeStore) ExistingClientKeys(context.Context) (map[string]int, error) {
	if s.clients == nil {
		return map[string]int{}, nil
	}
	return s.clients, nil
}

func (s *fakeStore) ExistingItemCodes(context.Context) (map[string]bool, error) {
	if s.codes == nil {
		return map[string]bool{}, nil
	}
	return s.codes, nil
}

func (s *fakeStore) ExistingPaymentKeys(context.Context, models.DateRange) (map[string]bool, error) {
	if s.payments == nil {
		return map[string]bool{}, nil
	}
	return s.payments, nil
}

func (s *fakeStore) ExistingPettyCashExpenseKeys(context.Context, models.DateRange) (map[string]bool, error) {
	if s.expenses == nil {
		return map[string]bool{}, nil
	}
	return s.expenses, nil
}

func (s *fakeStore) CommitImport(_ context.Context, job *models.ImportJob, batch *models.ImportBatch) error {
	job.ID = len(s.jobs) + 1
	job.Status = models.ImportStatusCommitted
	job.Inserted = batch.Len()
	s.jobs = append(s.jobs, job)
	s.committed = append(s.committed, batch)
	return nil
}

func (s *fakeStore) RecordImportJob(_ context.Context, job *models.ImportJob) error {
	job.ID = len(s.jobs) + 1
	s.jobs = append(s.jobs, job)
	return nil
}

func runImport(t *testing.T, store *fakeStore, opts Options, body string) *Result {
	t.Helper()
	if opts.FileName == "" {
		opts.FileName = "upload.csv"
	}
	res, err := New(store).Import(context.Background(), opts, strings.NewReader(body))
	require.NoError(t, err)
	return res
}

func TestNormalizeHeader(t *testing.T) {
	cases := map[string]string{
		"  Client Name ":     "client_name",
		"\ufeffPhone-No":     "phone_no",
		"Opening  Balance":   "opening_balance",
		"Ref. No":            "ref_no",
		"__GSTIN__":          "gstin",
		"Rent / Day":         "rent_day",
		"total_quantity":     "total_quantity",
		"Replacement\tValue": "replacement_value",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeHeader(in), in)
	}
}

func TestMapHeaderAliasesAndWarnings(t *testing.T) {
	schema, err := SchemaFor(models.ImportEntityInventory)
	require.NoError(t, err)

	m, warnings, err := schema.MapHeader([]string{"SKU", "Item Name", "Qty", "Rent per day", "Colour"})
	require.NoError(t, err)
	assert.Equal(t, 0, m["code"])
	assert.Equal(t, 1, m["name"])
	assert.Equal(t, 2, m["total_quantity"])
	assert.Equal(t, 3, m["daily_rate"])
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "Colour")
}

func TestMapHeaderMissingColumns(t *testing.T) {
	schema, err := SchemaFor(models.ImportEntityInventory)
	require.NoError(t, err)

	_, _, err = schema.MapHeader([]string{"code", "name"})
	require.ErrorIs(t, err, ErrMissingColumns)
	var missing *MissingColumnsError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []string{"total_quantity", "daily_rate"}, missing.Columns)
}

func TestMapHeaderDuplicateColumn(t *testing.T) {
	schema, err := SchemaFor(models.ImportEntityClients)
	require.NoError(t, err)

	_, _, err = schema.MapHeader([]string{"Name", "Customer Name"})
	require.ErrorIs(t, err, ErrDuplicateColumn)
	var dup *DuplicateColumnError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "name", dup.Column)
	assert.Equal(t, []int{1, 2}, dup.Positions)
}

func TestReadCSVStripsBOMAndTrailingBlankRows(t *testing.T) {
	body := "\xef\xbb\xbfname,phone\nAcme,\n\n,\n"
	table, err := ReadTable("clients.csv", strings.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "phone"}, table.Header)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, 2, table.Rows[0].Number)
}

func TestReadCSVMultilineCellKeepsSpreadsheetRows(t *testing.T) {
	body := "name,address\nA,\"line1\nline2\"\nB,x\n\nC,\"a\r\nb\nc\"\nD,y\n"
	table, err := ReadTable("clients.csv", strings.NewReader(body))
	require.NoError(t, err)
	require.Len(t, table.Rows, 4)
	assert.Equal(t, "line1\nline2", table.Rows[0].Cells[1])
	var numbers []int
	for _, r := range table.Rows {
		numbers = append(numbers, r.Number)
	}
	// the blank line between B and C is spreadsheet row 4
	assert.Equal(t, []int{2, 3, 5, 6}, numbers)
}

func TestReadTableRejectsUnknownExtension(t *testing.T) {
	_, err := ReadTable("clients.pdf", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	_, err = ReadTable("clients.txt", strings.NewReader("name\nAcme\n"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = ReadTable("empty.csv", strings.NewReader("\n\n"))
	assert.ErrorIs(t, err, ErrEmptyFile)
}

func TestReadXLSXRowNumbers(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]interface{}{"code", "name", "qty", "rate"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A3", &[]interface{}{"CH-1", "Chair", 10, 5}))
	var buf bytes.Buffer
	_, err := f.WriteTo(&buf)
	require.NoError(t, err)

	table, err := ReadTable("stock.XLSX", &buf)
	require.NoError(t, err)
	require.Len(t, table.Rows, 2)
	assert.True(t, table.Rows[0].blank())
	assert.Equal(t, 3, table.Rows[1].Number)
	assert.Equal(t, "CH-1", table.Rows[1].Cells[0])
}

func TestImportClientsReportsRowErrors(t *testing.T) {
	store := &fakeStore{clients: map[string]int{models.NormalizeClientName("Existing Co"): 9}}
	body := strings.Join([]string{
		"Customer Name,Email,GST No,Opening,Limit",
		"Acme Tents,acme@example.com,27AAPFU0939F1ZV,\"1,500\",Rs 25000",
		",,,,",
		"acme  tents,,,,",
		"Existing Co,,,,",
		"Bad Mail,not-an-email,,,",
		"Bad Gst,,12345,,",
		"Neg Limit,,,,-5",
	}, "\n")

	res := runImport(t, store, Options{Entity: models.ImportEntityClients}, body)

	assert.Equal(t, 7, res.Total)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.Valid)
	assert.Equal(t, 5, res.Invalid)
	assert.True(t, res.Committed)
	assert.Equal(t, 1, res.Inserted)

	byRow := map[int]RowError{}
	for _, e := range res.Errors {
		byRow[e.Row] = e
	}
	assert.Equal(t, "duplicate of row 2", byRow[4].Message)
	assert.Equal(t, "already exists", byRow[5].Message)
	assert.Equal(t, "email", byRow[6].Column)
	assert.Equal(t, "gstin", byRow[7].Column)
	assert.Equal(t, "credit_limit", byRow[8].Column)

	require.Len(t, store.committed, 1)
	client := store.committed[0].Clients[0]
	assert.Equal(t, "Acme Tents", client.Name)
	assert.Equal(t, "1500", client.OpeningBalance.String())
	assert.Equal(t, "25000", client.CreditLimit.String())
}

func TestImportStrictWritesNothingWhenAnyRowIsInvalid(t *testing.T) {
	store := &fakeStore{}
	body := "code,name,total_quantity,daily_rate\nT1,Tent,4,100\nT2,Chair,many,5\n"

	res := runImport(t, store, Options{Entity: models.ImportEntityInventory, Strict: true}, body)

	assert.False(t, res.Committed)
	assert.Equal(t, 1, res.Valid)
	assert.Equal(t, 1, res.Invalid)
	assert.Empty(t, store.committed)
	require.Len(t, store.jobs, 1)
	assert.Equal(t, models.ImportStatusRejected, store.jobs[0].Status)
	assert.Equal(t, RowError{Row: 3, Column: "total_quantity", Value: "many", Message: "is not a whole number"}, res.Errors[0])
}

func TestImportDryRunReturnsRecords(t *testing.T) {
	store := &fakeStore{codes: map[string]bool{"T9": true}}
	body := "code,name,qty,rate,cost\nt1,Tent,\"1,000\",100,2500.50\nT9,Old,1,1,\n"

	res := runImport(t, store, Options{Entity: models.ImportEntityInventory, DryRun: true}, body)

	assert.False(t, res.Committed)
	assert.Equal(t, 1, res.Valid)
	require.Len(t, res.Records, 1)
	item := res.Records[0].(*models.InventoryItem)
	assert.Equal(t, "T1", item.Code)
	assert.Equal(t, 1000, item.TotalQuantity)
	assert.Equal(t, "2500.5", item.ReplacementCost.String())
	assert.Empty(t, store.committed)
	assert.Equal(t, models.ImportStatusValidated, store.jobs[0].Status)
}

func TestImportPaymentsResolvesClientsAndDuplicates(t *testing.T) {
	store := &fakeStore{clients: map[string]int{models.NormalizeClientName("Acme"): 4}}
	body := strings.Join([]string{
		"party,date,amount,mode,ref",
		"ACME,25/03/2024,\"5,000\",upi,UTR1",
		"Acme,2024-03-25,5000,UPI,UTR1",
		"Nobody,2024-03-25,10,,",
		"Acme,someday,10,,",
		"Acme,2024-03-26,0,,",
		"Acme,2 Mar 2024,10,Barter,",
	}, "\n")

	res := runImport(t, store, Options{Entity: models.ImportEntityPayments}, body)

	assert.Equal(t, 1, res.Valid)
	assert.Equal(t, 5, res.Invalid)
	p := store.committed[0].Payments[0]
	assert.Equal(t, 4, p.ClientId)
	assert.Equal(t, models.PaymentModeUPI, p.Mode)
	assert.Equal(t, "2024-03-25", p.PaymentDate.Format("2006-01-02"))

	messages := map[int]string{}
	for _, e := range res.Errors {
		messages[e.Row] = e.Message
	}
	assert.Equal(t, "duplicate of row 2", messages[3])
	assert.Equal(t, "client not found", messages[4])
	assert.Equal(t, "is not a valid date", messages[5])
	assert.Equal(t, "must be greater than 0", messages[6])
	assert.Contains(t, messages[7], "must be one of")
}

func TestImportPettyCashAgainstStoredExpenses(t *testing.T) {
	date, _ := time.Parse("2006-01-02", "2024-03-25")
	amount, _ := decimal.NewFromString("850")
	store := &fakeStore{expenses: map[string]bool{
		models.PettyCashExpenseKey(date, "Fuel", "Diesel", amount): true,
	}}
	body := "date,head,particulars,amount\n2024-03-25,fuel,diesel,850\n2024-03-25,Tea,,120\n"

	res := runImport(t, store, Options{Entity: models.ImportEntityPettyCash}, body)

	assert.Equal(t, 1, res.Valid)
	assert.Equal(t, "already exists", res.Errors[0].Message)
	require.Len(t, store.committed[0].PettyCash, 1)
	assert.Equal(t, "Tea", store.committed[0].PettyCash[0].Expense.Category)
}

func TestTemplateRoundTripsThroughValidation(t *testing.T) {
	for _, entity := range []models.ImportEntity{models.ImportEntityClients, models.ImportEntityInventory, models.ImportEntityPettyCash} {
		var buf bytes.Buffer
		require.NoError(t, WriteTemplateCSV(&buf, entity))

		table, err := ReadTable("template.csv", &buf)
		require.NoError(t, err)
		res, err := New(&fakeStore{}).Validate(context.Background(), entity, table)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Valid, "%s: %v", entity, res.Errors)
		assert.Empty(t, res.Warnings, string(entity))
	}
}

func TestTemplateXLSXHasHeaderRow(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTemplateXLSX(&buf, models.ImportEntityPayments))

	table, err := ReadTable("payments.xlsx", &buf)
	require.NoError(t, err)
	header, _, err := Template(models.ImportEntityPayments)
	require.NoError(t, err)
	assert.Equal(t, header, table.Header)
	require.Len(t, table.Rows, 1)
}
