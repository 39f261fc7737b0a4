// Package importer validates and loads spreadsheet files of clients,
// inventory, payments and petty cash expenses.
package importer

import (
	"context"
	"fmt"
	"io"

	"github.com/rentiq/rentiq_backend/config"
	"github.com/rentiq/rentiq_backend/models"
	"github.com/sirupsen/logrus"
)

// maxStoredErrors caps the row errors kept on an import job.
const maxStoredErrors = 500

// Store is the persistence the importer needs.
type Store interface {
	ExistingClientKeys(ctx context.Context) (map[string]int, error)
	ExistingItemCodes(ctx context.Context) (map[string]bool, error)
	ExistingPaymentKeys(ctx context.Context, dateRange models.DateRange) (map[string]bool, error)
	ExistingPettyCashExpenseKeys(ctx context.Context, dateRange models.DateRange) (map[string]bool, error)
	CommitImport(ctx context.Context, job *models.ImportJob, batch *models.ImportBatch) error
	RecordImportJob(ctx context.Context, job *models.ImportJob) error
}

// ModelStore is the Store backed by the models package.
type ModelStore struct{}

func (ModelStore) ExistingClientKeys(ctx context.Context) (map[string]int, error) {
	return models.ExistingClientKeys(ctx)
}

func (ModelStore) ExistingItemCodes(ctx context.Context) (map[string]bool, error) {
	return models.ExistingItemCodes(ctx)
}

func (ModelStore) ExistingPaymentKeys(ctx context.Context, r models.DateRange) (map[string]bool, error) {
	return models.ExistingPaymentKeys(ctx, r)
}

func (ModelStore) ExistingPettyCashExpenseKeys(ctx context.Context, r models.DateRange) (map[string]bool, error) {
	return models.ExistingPettyCashExpenseKeys(ctx, r)
}

func (ModelStore) CommitImport(ctx context.Context, job *models.ImportJob, batch *models.ImportBatch) error {
	return models.CommitImport(ctx, job, batch)
}

func (ModelStore) RecordImportJob(ctx context.Context, job *models.ImportJob) error {
	return models.RecordImportJob(ctx, job)
}

type Options struct {
	Entity   models.ImportEntity
	FileName string
	Source   string
	DryRun   bool
	Strict   bool
}

type Result struct {
	Entity    models.ImportEntity `json:"entity"`
	FileName  string              `json:"file_name"`
	JobId     int                 `json:"job_id,omitempty"`
	DryRun    bool                `json:"dry_run"`
	Strict    bool                `json:"strict"`
	Committed bool                `json:"committed"`
	Total     int                 `json:"total"`
	Valid     int                 `json:"valid"`
	Invalid   int                 `json:"invalid"`
	Skipped   int                 `json:"skipped"`
	Inserted  int                 `json:"inserted"`
	Errors    []RowError          `json:"errors"`
	Warnings  []string            `json:"warnings"`
	// Records are the valid typed rows, returned on dry runs.
	Records []interface{}       `json:"records,omitempty"`
	Batch   *models.ImportBatch `json:"-"`
}

type Importer struct {
	store  Store
	logger *logrus.Logger
	env    parseEnv
}

func New(store Store) *Importer {
	return &Importer{store: store, logger: config.GetLogger(), env: parseEnv{validate: newValidator()}}
}

// Validate checks every row of table and detects duplicates in the file and
// in the store. It never fails on a bad row.
func (im *Importer) Validate(ctx context.Context, entity models.ImportEntity, table *Table) (*Result, error) {
	schema, err := SchemaFor(entity)
	if err != nil {
		return nil, err
	}
	header, warnings, err := schema.MapHeader(table.Header)
	if err != nil {
		return nil, err
	}
	result := &Result{Entity: entity, Warnings: warnings, Errors: []RowError{}, Batch: &models.ImportBatch{}}

	env := im.env
	if entity == models.ImportEntityPayments {
		if env.clients, err = im.store.ExistingClientKeys(ctx); err != nil {
			return nil, err
		}
	}
	parse := rowParsers[entity]
	var rows []*parsed
	invalid := map[int]bool{}
	for _, row := range table.Rows {
		result.Total++
		if row.blank() {
			result.Skipped++
			continue
		}
		rc := &rowContext{row: row, header: header}
		p := parse(rc, &env)
		if len(rc.errs) > 0 || p == nil {
			result.Errors = append(result.Errors, rc.errs...)
			invalid[row.Number] = true
			continue
		}
		rows = append(rows, p)
	}

	existing, err := im.existingKeys(ctx, entity, rows)
	if err != nil {
		return nil, err
	}
	seen := map[string]int{}
	column := keyColumn[entity]
	var valid []*parsed
	for _, p := range rows {
		if first, dup := seen[p.Key]; dup {
			result.Errors = append(result.Errors, RowError{Row: p.Row, Column: column, Message: fmt.Sprintf("duplicate of row %d", first)})
			invalid[p.Row] = true
			continue
		}
		seen[p.Key] = p.Row
		if existing[p.Key] {
			result.Errors = append(result.Errors, RowError{Row: p.Row, Column: column, Message: "already exists"})
			invalid[p.Row] = true
			continue
		}
		valid = append(valid, p)
	}

	for _, p := range valid {
		switch r := p.Record.(type) {
		case *models.Client:
			result.Batch.Clients = append(result.Batch.Clients, r)
		case *models.InventoryItem:
			result.Batch.Items = append(result.Batch.Items, r)
		case *models.Payment:
			result.Batch.Payments = append(result.Batch.Payments, r)
		case *models.DatedExpense:
			result.Batch.PettyCash = append(result.Batch.PettyCash, r)
		}
	}
	result.Valid = len(valid)
	result.Invalid = len(invalid)
	return result, nil
}

func (im *Importer) existingKeys(ctx context.Context, entity models.ImportEntity, rows []*parsed) (map[string]bool, error) {
	if len(rows) == 0 {
		return map[string]bool{}, nil
	}
	switch entity {
	case models.ImportEntityClients:
		clients, err := im.store.ExistingClientKeys(ctx)
		if err != nil {
			return nil, err
		}
		keys := make(map[string]bool, len(clients))
		for k := range clients {
			keys[k] = true
		}
		return keys, nil
	case models.ImportEntityInventory:
		return im.store.ExistingItemCodes(ctx)
	}
	span := models.DateRange{From: rows[0].Date, To: rows[0].Date}
	for _, p := range rows[1:] {
		if p.Date.Before(span.From) {
			span.From = p.Date
		}
		if p.Date.After(span.To) {
			span.To = p.Date
		}
	}
	if entity == models.ImportEntityPayments {
		return im.store.ExistingPaymentKeys(ctx, span)
	}
	return im.store.ExistingPettyCashExpenseKeys(ctx, span)
}

// Import reads r, validates it and, unless it is a dry run or a strict run
// with invalid rows, writes the valid rows. Every run is recorded as a job.
func (im *Importer) Import(ctx context.Context, opts Options, r io.Reader) (*Result, error) {
	table, err := ReadTable(opts.FileName, r)
	if err != nil {
		return nil, err
	}
	result, err := im.Validate(ctx, opts.Entity, table)
	if err != nil {
		return nil, err
	}
	result.FileName = opts.FileName
	result.DryRun = opts.DryRun
	result.Strict = opts.Strict

	job := &models.ImportJob{
		Entity:   opts.Entity,
		FileName: opts.FileName,
		Source:   opts.Source,
		DryRun:   opts.DryRun,
		Strict:   opts.Strict,
		Total:    result.Total,
		Valid:    result.Valid,
		Invalid:  result.Invalid,
		Skipped:  result.Skipped,
	}
	stored := result.Errors
	if len(stored) > maxStoredErrors {
		stored = stored[:maxStoredErrors]
	}
	job.SetErrors(stored)

	switch {
	case opts.DryRun:
		job.Status = models.ImportStatusValidated
		result.Records = result.Batch.Records()
		err = im.store.RecordImportJob(ctx, job)
	case opts.Strict && result.Invalid > 0:
		job.Status = models.ImportStatusRejected
		err = im.store.RecordImportJob(ctx, job)
	default:
		err = im.store.CommitImport(ctx, job, result.Batch)
		if err == nil {
			result.Committed = true
			result.Inserted = job.Inserted
		}
	}
	if err != nil {
		config.LogError(im.logger, "Importer", "Import", string(opts.Entity), opts.FileName, err)
		return nil, err
	}
	result.JobId = job.ID
	im.logger.WithFields(logrus.Fields{
		"entity":   opts.Entity,
		"file":     opts.FileName,
		"source":   opts.Source,
		"total":    result.Total,
		"valid":    result.Valid,
		"invalid":  result.Invalid,
		"inserted": result.Inserted,
		"status":   job.Status,
	}).Info("import finished")
	return result, nil
}
