package importer

import (
	"encoding/csv"
	"io"

	"github.com/rentiq/rentiq_backend/models"
	"github.com/xuri/excelize/v2"
)

// Template returns the header line and one example row of entity.
func Template(entity models.ImportEntity) (header []string, example []string, err error) {
	schema, err := SchemaFor(entity)
	if err != nil {
		return nil, nil, err
	}
	for _, c := range schema.Columns {
		header = append(header, c.Name)
		example = append(example, c.Example)
	}
	return header, example, nil
}

func WriteTemplateCSV(w io.Writer, entity models.ImportEntity) error {
	header, example, err := Template(entity)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.WriteAll([][]string{header, example}); err != nil {
		return err
	}
	return cw.Error()
}

func WriteTemplateXLSX(w io.Writer, entity models.ImportEntity) error {
	header, example, err := Template(entity)
	if err != nil {
		return err
	}
	f := excelize.NewFile()
	defer f.Close()
	sheet := string(entity)
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}
	for i := range header {
		if err := f.SetCellValue(sheet, cellName(i+1, 1), header[i]); err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cellName(i+1, 2), example[i]); err != nil {
			return err
		}
	}
	_, err = f.WriteTo(w)
	return err
}

func cellName(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}
