// Package extract reads the published hospital data files: CSV in any
// advertised charset, plus the XLSX workbooks CMS ships for some quality
// releases. It also owns the cell-level coercions that turn raw strings
// into nullable values.
package extract

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"golang.org/x/text/encoding/htmlindex"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Table is a header-plus-rows view over a CSV or XLSX source file.
type Table struct {
	header []string
	next   func() ([]string, error)
	close  func() error
}

// Open dispatches on the file extension: .xlsx goes through the workbook
// reader, everything else is treated as CSV.
func Open(path, encoding string) (*Table, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return OpenXLSX(path)
	}
	return OpenCSV(path, encoding)
}

// OpenCSV opens a CSV file for row iteration. A leading UTF-8 BOM is
// skipped. encoding names an IANA charset to decode from; empty means the
// file is already UTF-8.
func OpenCSV(path, encoding string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "extract: open %s", path)
	}

	var r io.Reader = f
	if encoding != "" {
		enc, err := htmlindex.Get(encoding)
		if err != nil {
			f.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "extract: unsupported charset %q", encoding)
		}
		r = enc.NewDecoder().Reader(r)
	}

	br := bufio.NewReaderSize(r, 64*1024)
	if peek, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(peek, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	cr := csv.NewReader(br)
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		f.Close() //nolint:errcheck
		return nil, eris.Wrapf(err, "extract: read CSV header from %s", path)
	}

	return &Table{
		header: header,
		next:   cr.Read,
		close:  f.Close,
	}, nil
}

// OpenXLSX opens the first sheet of an XLSX workbook for row iteration.
// The whole sheet is held in memory; CMS quality workbooks stay well under
// a hundred thousand rows.
func OpenXLSX(path string) (*Table, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "extract: open %s", path)
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("extract: %s has no sheets", path)
	}

	sheet := f.Sheets[0]
	if len(sheet.Rows) == 0 {
		return nil, eris.Errorf("extract: %s: sheet %q is empty", path, sheet.Name)
	}

	rows := sheet.Rows[1:]
	pos := 0
	return &Table{
		header: rowStrings(sheet.Rows[0]),
		next: func() ([]string, error) {
			if pos >= len(rows) {
				return nil, io.EOF
			}
			r := rowStrings(rows[pos])
			pos++
			return r, nil
		},
		close: func() error { return nil },
	}, nil
}

func rowStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for i, cell := range row.Cells {
		cells[i] = cell.String()
	}
	return cells
}

// Header returns the first row of the file.
func (t *Table) Header() []string { return t.header }

// Next returns the next data row, or io.EOF after the last one.
func (t *Table) Next() ([]string, error) { return t.next() }

// Close releases the underlying file handle.
func (t *Table) Close() error { return t.close() }
