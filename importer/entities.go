package importer

import (
	"reflect"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rentiq/rentiq_backend/config"
	"github.com/rentiq/rentiq_backend/models"
	"github.com/rentiq/rentiq_backend/utils"
	"github.com/shopspring/decimal"
)

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string { return f.Tag.Get("col") })
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})
	_ = v.RegisterValidation("gstin", func(fl validator.FieldLevel) bool {
		return models.ValidGSTIN(fl.Field().String())
	})
	return v
}

// parsed is one valid row ready for duplicate checks.
type parsed struct {
	Row    int
	Key    string
	Date   time.Time
	Record interface{}
}

// keyColumn is where duplicate errors are reported.
var keyColumn = map[models.ImportEntity]string{
	models.ImportEntityClients:   "name",
	models.ImportEntityInventory: "code",
}

type parseEnv struct {
	validate *validator.Validate
	clients  map[string]int
}

type rowParser func(rc *rowContext, env *parseEnv) *parsed

var rowParsers = map[models.ImportEntity]rowParser{
	models.ImportEntityClients:   parseClientRow,
	models.ImportEntityInventory: parseItemRow,
	models.ImportEntityPayments:  parsePaymentRow,
	models.ImportEntityPettyCash: parsePettyCashRow,
}

type clientRow struct {
	Name           string          `col:"name" validate:"required,max=100"`
	Phone          string          `col:"phone" validate:"max=20"`
	Email          string          `col:"email" validate:"omitempty,email,max=100"`
	GSTIN          string          `col:"gstin" validate:"omitempty,gstin"`
	CreditLimit    decimal.Decimal `col:"credit_limit" validate:"gte=0"`
	OpeningBalance decimal.Decimal `col:"opening_balance"`
}

func parseClientRow(rc *rowContext, env *parseEnv) *parsed {
	row := clientRow{
		Name:           rc.text("name", false),
		Email:          rc.text("email", false),
		GSTIN:          rc.text("gstin", false),
		OpeningBalance: rc.amount("opening_balance", false),
		CreditLimit:    rc.amount("credit_limit", false),
	}
	if phone := rc.get("phone"); phone != "" {
		formatted, err := utils.FormatPhoneNumber(phone, config.DefaultCountryCode())
		if err != nil {
			rc.fail("phone", phone, "is not a valid phone number")
		}
		row.Phone = formatted
	}
	rc.check(env.validate, &row)
	if len(rc.errs) > 0 {
		return nil
	}
	client := &models.Client{
		Name:           row.Name,
		Phone:          row.Phone,
		Email:          row.Email,
		Address:        rc.text("address", false),
		GSTIN:          row.GSTIN,
		OpeningBalance: row.OpeningBalance,
		CreditLimit:    row.CreditLimit,
		Notes:          rc.get("notes"),
	}
	return &parsed{Row: rc.row.Number, Key: models.NormalizeClientName(client.Name), Record: client}
}

type itemRow struct {
	Code              string          `col:"code" validate:"required,max=50"`
	Name              string          `col:"name" validate:"required,max=255"`
	Category          string          `col:"category" validate:"max=100"`
	Unit              string          `col:"unit" validate:"max=20"`
	TotalQuantity     int             `col:"total_quantity" validate:"gte=0"`
	DailyRate         decimal.Decimal `col:"daily_rate" validate:"gte=0"`
	ReplacementCost   decimal.Decimal `col:"replacement_cost" validate:"gte=0"`
	LowStockThreshold *int            `col:"low_stock_threshold" validate:"omitempty,gte=0"`
}

func parseItemRow(rc *rowContext, env *parseEnv) *parsed {
	row := itemRow{
		Code:            models.NormalizeItemCode(rc.text("code", false)),
		Name:            rc.text("name", false),
		Category:        rc.text("category", false),
		Unit:            rc.text("unit", false),
		DailyRate:       rc.amount("daily_rate", true),
		ReplacementCost: rc.amount("replacement_cost", false),
	}
	row.TotalQuantity, _ = rc.integer("total_quantity", true)
	if n, ok := rc.integer("low_stock_threshold", false); ok {
		row.LowStockThreshold = &n
	}
	rc.check(env.validate, &row)
	if len(rc.errs) > 0 {
		return nil
	}
	item := &models.InventoryItem{
		Code:              row.Code,
		Name:              row.Name,
		Category:          row.Category,
		Unit:              row.Unit,
		TotalQuantity:     row.TotalQuantity,
		DailyRate:         row.DailyRate,
		ReplacementCost:   row.ReplacementCost,
		LowStockThreshold: row.LowStockThreshold,
	}
	return &parsed{Row: rc.row.Number, Key: item.Code, Record: item}
}

type paymentRow struct {
	Client          string          `col:"client" validate:"required"`
	Amount          decimal.Decimal `col:"amount" validate:"gt=0"`
	ReferenceNumber string          `col:"reference_number" validate:"max=100"`
}

func parsePaymentRow(rc *rowContext, env *parseEnv) *parsed {
	row := paymentRow{
		Client:          rc.text("client", false),
		Amount:          rc.amount("amount", true),
		ReferenceNumber: rc.text("reference_number", false),
	}
	date := rc.date("payment_date")
	mode := models.PaymentModeCash
	if v := rc.get("mode"); v != "" {
		m, err := models.ParsePaymentMode(v)
		if err != nil {
			rc.fail("mode", v, "must be one of Cash, Bank, UPI, Cheque")
		}
		mode = m
	}
	rc.check(env.validate, &row)
	clientId := 0
	if row.Client != "" {
		id, ok := env.clients[models.NormalizeClientName(row.Client)]
		if !ok {
			rc.fail("client", row.Client, "client not found")
		}
		clientId = id
	}
	if len(rc.errs) > 0 {
		return nil
	}
	payment := &models.Payment{
		ClientId:        clientId,
		PaymentDate:     date,
		Amount:          row.Amount,
		Mode:            mode,
		ReferenceNumber: row.ReferenceNumber,
		Notes:           rc.get("notes"),
	}
	return &parsed{
		Row:    rc.row.Number,
		Key:    models.PaymentKey(clientId, date, row.Amount, row.ReferenceNumber),
		Date:   date,
		Record: payment,
	}
}

type pettyCashRow struct {
	Category    string          `col:"category" validate:"required,max=100"`
	Description string          `col:"description" validate:"max=255"`
	Amount      decimal.Decimal `col:"amount" validate:"gt=0"`
}

func parsePettyCashRow(rc *rowContext, env *parseEnv) *parsed {
	row := pettyCashRow{
		Category:    rc.text("category", false),
		Description: rc.text("description", false),
		Amount:      rc.amount("amount", true),
	}
	date := rc.date("date")
	rc.check(env.validate, &row)
	if len(rc.errs) > 0 {
		return nil
	}
	line := &models.DatedExpense{
		Date: date,
		Expense: &models.PettyCashExpense{
			Category:    row.Category,
			Description: row.Description,
			Amount:      row.Amount,
		},
	}
	return &parsed{
		Row:    rc.row.Number,
		Key:    models.PettyCashExpenseKey(date, row.Category, row.Description, row.Amount),
		Date:   date,
		Record: line,
	}
}
