package handlers

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rentiq/rentiq_backend/models"
	"github.com/rentiq/rentiq_backend/models/reports"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// reportBuilder loads one report for the request; it writes its own 400 on
// bad query input and returns ok=false.
type reportBuilder func(c *gin.Context) (report reports.ExcelExporter, ok bool, err error)

// reportRoutes registers GET /<name> and GET /<name>/export for every report.
func reportRoutes(rg *gin.RouterGroup) {
	builders := map[string]reportBuilder{
		"dashboard":                  dashboardReport,
		"client-balances":            clientBalancesReport,
		"client-statement/:clientId": clientStatementReport,
		"rentals":                    rentalReport,
		"payments":                   paymentReport,
		"pettycash":                  pettyCashReport,
	}
	for name, build := range builders {
		rg.GET("/"+name, reportJSON(name, build))
		rg.GET("/"+name+"/export", reportExport(name, build))
	}
}

func reportJSON(name string, build reportBuilder) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "report."+name)
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		report, ok, err := build(c)
		if !ok {
			return
		}
		if err != nil {
			span.RecordError(err)
			respondError(c, "Report", name, err)
			return
		}
		respondData(c, report)
	}
}

// reportExport streams the report as an xlsx workbook.
func reportExport(name string, build reportBuilder) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "report."+name+".export",
			trace.WithAttributes(attribute.String("report", name)))
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		report, ok, err := build(c)
		if !ok {
			return
		}
		if err != nil {
			span.RecordError(err)
			respondError(c, "Report", name+".export", err)
			return
		}
		var buf bytes.Buffer
		if err := reports.WriteWorkbook(&buf, report.Sheets()); err != nil {
			respondError(c, "Report", name+".export", err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, report.FileName()))
		c.Data(http.StatusOK, reports.XlsxContentType, buf.Bytes())
	}
}

func dashboardReport(c *gin.Context) (reports.ExcelExporter, bool, error) {
	r, err := reports.GetDashboard(c.Request.Context())
	return r, true, err
}

func clientBalancesReport(c *gin.Context) (reports.ExcelExporter, bool, error) {
	asOf, ok := queryDate(c, "as_of", models.BusinessToday(c.Request.Context()))
	if !ok {
		return nil, false, nil
	}
	r, err := reports.GetClientBalances(c.Request.Context(), asOf)
	return r, true, err
}

func clientStatementReport(c *gin.Context) (reports.ExcelExporter, bool, error) {
	clientId, ok := pathID(c, "clientId")
	if !ok {
		return nil, false, nil
	}
	from, to, ok := queryPeriod(c)
	if !ok {
		return nil, false, nil
	}
	r, err := reports.GetClientStatement(c.Request.Context(), clientId, from, to)
	return r, true, err
}

func rentalReport(c *gin.Context) (reports.ExcelExporter, bool, error) {
	from, to, ok := queryPeriod(c)
	if !ok {
		return nil, false, nil
	}
	r, err := reports.GetRentalReport(c.Request.Context(), from, to)
	return r, true, err
}

func paymentReport(c *gin.Context) (reports.ExcelExporter, bool, error) {
	from, to, ok := queryPeriod(c)
	if !ok {
		return nil, false, nil
	}
	r, err := reports.GetPaymentReport(c.Request.Context(), from, to)
	return r, true, err
}

func pettyCashReport(c *gin.Context) (reports.ExcelExporter, bool, error) {
	from, to, ok := queryPeriod(c)
	if !ok {
		return nil, false, nil
	}
	r, err := reports.GetPettyCashReport(c.Request.Context(), from, to)
	return r, true, err
}
