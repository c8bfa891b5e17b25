// Package importer turns spreadsheet exports (CSV, TSV, XLSX) into CRM
// records: it guesses a column mapping, repairs misplaced values and
// merges each row into the record store under one import batch.
package importer

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// Table is a parsed sheet keyed by header.
type Table struct {
	Headers []string
	Rows    []map[string]string
}

// ReadFile parses path by extension: .csv, .tsv/.tab or .xlsx.
func ReadFile(ctx context.Context, path string) (*Table, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".xlsx" {
		return ReadXLSX(path, 0)
	}

	var delim rune
	switch ext {
	case ".csv", ".txt":
		delim = ','
	case ".tsv", ".tab":
		delim = '\t'
	default:
		return nil, eris.Errorf("importer: unsupported file type %q", ext)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "importer: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	return ReadDelimited(ctx, f, delim)
}

// ReadDelimited parses a header-first CSV or TSV stream.
func ReadDelimited(ctx context.Context, r io.Reader, delim rune) (*Table, error) {
	rowCh, errCh := streamDelimited(ctx, r, delim)

	var cells [][]string
	for row := range rowCh {
		cells = append(cells, row)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	return newTable(cells), nil
}

// streamDelimited sends trimmed rows on a channel. Both channels are
// closed when the reader is exhausted.
func streamDelimited(ctx context.Context, r io.Reader, delim rune) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		reader := csv.NewReader(r)
		reader.Comma = delim
		reader.LazyQuotes = true
		reader.FieldsPerRecord = -1

		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "importer: context cancelled")
				return
			}

			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "importer: read row")
				return
			}
			for i, field := range record {
				record[i] = strings.TrimSpace(field)
			}

			select {
			case rowCh <- record:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "importer: context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}

// ReadXLSX parses one worksheet of an XLSX workbook.
func ReadXLSX(path string, sheetIndex int) (*Table, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "importer: open xlsx")
	}
	if sheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("importer: sheet index %d out of range (file has %d sheets)", sheetIndex, len(f.Sheets))
	}

	var cells [][]string
	for _, row := range f.Sheets[sheetIndex].Rows {
		if row == nil {
			continue
		}
		vals := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			vals[j] = strings.TrimSpace(cell.String())
		}
		cells = append(cells, vals)
	}
	return newTable(cells), nil
}

// newTable takes the first non-blank row as headers and drops blank rows.
func newTable(cells [][]string) *Table {
	t := &Table{}
	for _, row := range cells {
		if blank(row) {
			continue
		}
		if t.Headers == nil {
			t.Headers = make([]string, len(row))
			for i, h := range row {
				t.Headers[i] = strings.TrimPrefix(h, "\ufeff")
			}
			continue
		}
		m := make(map[string]string, len(t.Headers))
		for i, h := range t.Headers {
			if h == "" {
				continue
			}
			if i < len(row) {
				m[h] = row[i]
			} else {
				m[h] = ""
			}
		}
		t.Rows = append(t.Rows, m)
	}
	return t
}

func blank(row []string) bool {
	for _, c := range row {
		if c != "" {
			return false
		}
	}
	return true
}
