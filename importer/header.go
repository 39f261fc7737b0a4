package importer

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMissingColumns  = errors.New("missing required columns")
	ErrDuplicateColumn = errors.New("duplicate column")
)

type MissingColumnsError struct {
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return ErrMissingColumns.Error() + ": " + strings.Join(e.Columns, ", ")
}

func (e *MissingColumnsError) Is(target error) bool { return target == ErrMissingColumns }

type DuplicateColumnError struct {
	Column    string
	Positions []int
}

func (e *DuplicateColumnError) Error() string {
	return fmt.Sprintf("%s %q appears in columns %v", ErrDuplicateColumn, e.Column, e.Positions)
}

func (e *DuplicateColumnError) Is(target error) bool { return target == ErrDuplicateColumn }

// HeaderMap maps a column name to its cell index.
type HeaderMap map[string]int

// MapHeader resolves header cells against the schema. Unknown cells become
// warnings; missing required columns and columns given twice are errors.
func (s *Schema) MapHeader(header []string) (HeaderMap, []string, error) {
	m := HeaderMap{}
	var warnings []string
	for i, cell := range header {
		if strings.TrimSpace(cell) == "" {
			continue
		}
		name, ok := s.Canonical(cell)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("column %d %q is not recognised and was ignored", i+1, strings.TrimSpace(cell)))
			continue
		}
		if prev, dup := m[name]; dup {
			return nil, warnings, &DuplicateColumnError{Column: name, Positions: []int{prev + 1, i + 1}}
		}
		m[name] = i
	}
	var missing []string
	for _, name := range s.Required() {
		if _, ok := m[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, warnings, &MissingColumnsError{Columns: missing}
	}
	return m, warnings, nil
}
