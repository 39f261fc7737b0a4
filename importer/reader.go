package importer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

const MaxImportBytes = 10 << 20

var (
	ErrUnsupportedFormat = errors.New("only .csv and .xlsx files can be imported")
	ErrEmptyFile         = errors.New("file has no header row")
	ErrFileTooLarge      = fmt.Errorf("file is larger than %d MB", MaxImportBytes>>20)
)

// Row is one data row with its spreadsheet row number (header is row 1).
type Row struct {
	Number int
	Cells  []string
}

func (r Row) blank() bool {
	for _, c := range r.Cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

type Table struct {
	Header []string
	Rows   []Row
}

// ReadTable reads a .csv or .xlsx file by the extension of fileName.
func ReadTable(fileName string, r io.Reader) (*Table, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxImportBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > MaxImportBytes {
		return nil, ErrFileTooLarge
	}
	var table *Table
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv":
		table, err = readCSV(data)
	case ".xlsx":
		table, err = readXLSX(data)
	default:
		return nil, ErrUnsupportedFormat
	}
	if err != nil {
		return nil, err
	}
	// trailing blank rows are not data
	for len(table.Rows) > 0 && table.Rows[len(table.Rows)-1].blank() {
		table.Rows = table.Rows[:len(table.Rows)-1]
	}
	return table, nil
}

func readCSV(data []byte) (*Table, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	table := &Table{}
	// quoted cells spanning lines occupy one spreadsheet row
	folded := 0
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv: %w", err)
		}
		line, _ := cr.FieldPos(0)
		line -= folded
		for _, cell := range record {
			folded += strings.Count(cell, "\n")
		}
		if table.Header == nil {
			if (Row{Cells: record}).blank() {
				continue
			}
			table.Header = record
			continue
		}
		table.Rows = append(table.Rows, Row{Number: line, Cells: record})
	}
	if table.Header == nil {
		return nil, ErrEmptyFile
	}
	return table, nil
}

func readXLSX(data []byte) (*Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("xlsx: %w", err)
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyFile
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("xlsx: %w", err)
	}
	table := &Table{}
	for i, cells := range rows {
		if table.Header == nil {
			if (Row{Cells: cells}).blank() {
				continue
			}
			table.Header = cells
			continue
		}
		table.Rows = append(table.Rows, Row{Number: i + 1, Cells: cells})
	}
	if table.Header == nil {
		return nil, ErrEmptyFile
	}
	return table, nil
}
