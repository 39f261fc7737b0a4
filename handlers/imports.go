package handlers

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rentiq/rentiq_backend/importer"
	"github.com/rentiq/rentiq_backend/models"
	"github.com/rentiq/rentiq_backend/models/reports"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const importSourceUpload = "upload"

var newImporter = func() *importer.Importer { return importer.New(importer.ModelStore{}) }

func importEntity(c *gin.Context) (models.ImportEntity, bool) {
	entity, err := models.ParseImportEntity(c.Param("entity"))
	if err != nil {
		badRequest(c, err.Error())
		return "", false
	}
	return entity, true
}

// importTemplate serves the header and an example row as csv (default) or xlsx.
func importTemplate(c *gin.Context) {
	entity, ok := importEntity(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	var err error
	contentType, ext := "text/csv", "csv"
	if c.DefaultQuery("format", "csv") == "xlsx" {
		contentType, ext = reports.XlsxContentType, "xlsx"
		err = importer.WriteTemplateXLSX(&buf, entity)
	} else {
		err = importer.WriteTemplateCSV(&buf, entity)
	}
	if err != nil {
		respondError(c, "Import", "importTemplate", err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s_template.%s"`, entity, ext))
	c.Data(http.StatusOK, contentType, buf.Bytes())
}

// importFile takes a multipart "file" field. dry_run validates only; strict
// writes nothing when any row is invalid.
func importFile(c *gin.Context) {
	entity, ok := importEntity(c)
	if !ok {
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "file is required")
		return
	}
	if header.Size > importer.MaxImportBytes {
		respondError(c, "Import", "importFile", importer.ErrFileTooLarge)
		return
	}
	f, err := header.Open()
	if err != nil {
		badRequest(c, "cannot read file")
		return
	}
	defer f.Close()

	opts := importer.Options{
		Entity:   entity,
		FileName: header.Filename,
		Source:   importSourceUpload,
		DryRun:   c.PostForm("dry_run") == "true" || queryBool(c, "dry_run"),
		Strict:   c.PostForm("strict") == "true" || queryBool(c, "strict"),
	}
	ctx, span := tracer.Start(c.Request.Context(), "import."+string(entity), trace.WithAttributes(
		attribute.String("file", header.Filename),
		attribute.Bool("dry_run", opts.DryRun),
	))
	defer span.End()

	result, err := newImporter().Import(ctx, opts, f)
	if err != nil {
		span.RecordError(err)
		respondError(c, "Import", "importFile", err)
		return
	}
	span.SetAttributes(attribute.Int("valid", result.Valid), attribute.Int("invalid", result.Invalid))
	respondData(c, result)
}

func listImportJobs(c *gin.Context) {
	page, err := models.ListImportJobs(c.Request.Context(), queryInt(c, "limit", 0), c.Query("after"))
	if err != nil {
		respondError(c, "Import", "listImportJobs", err)
		return
	}
	respondData(c, page)
}
