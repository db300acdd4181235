// Package importer turns broker exports into rows for the normalizer.
package importer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"costbasis/pkg/costbasis"
)

// MaxCSVSize bounds the accepted input.
const MaxCSVSize = 32 << 20

// ErrNoHeader is returned when the input has no header row.
var ErrNoHeader = errors.New("csv header row is required")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ParseCSV reads a delimited export with a header row into rows keyed by
// header name. The delimiter is sniffed from the header among comma,
// semicolon and tab. Ragged rows are tolerated and blank lines skipped.
func ParseCSV(r io.Reader) ([]costbasis.Row, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxCSVSize+1))
	if err != nil {
		return nil, fmt.Errorf("importer: read csv: %w", err)
	}
	if len(data) > MaxCSVSize {
		return nil, fmt.Errorf("importer: csv exceeds %d bytes", MaxCSVSize)
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = sniffDelimiter(data)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("importer: read csv header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	if allBlank(header) {
		return nil, ErrNoHeader
	}

	rows := []costbasis.Row{}
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("importer: csv line %d: %w", line, err)
		}
		if allBlank(record) {
			continue
		}
		row := costbasis.Row{}
		for i, value := range record {
			if i >= len(header) || header[i] == "" {
				continue
			}
			value = strings.TrimSpace(value)
			if value == "" {
				continue
			}
			row[header[i]] = value
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// sniffDelimiter picks the candidate that occurs most often in the first
// line, defaulting to comma.
func sniffDelimiter(data []byte) rune {
	first := data
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		first = data[:i]
	}
	best, bestCount := ',', 0
	for _, c := range []rune{',', ';', '\t'} {
		if n := bytes.Count(first, []byte(string(c))); n > bestCount {
			best, bestCount = c, n
		}
	}
	return best
}

func allBlank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
