// Package parsers loads bank feed exports and back-office documents from CSV
// files, and matching rules from YAML.
//
// Bank exports vary a lot in the wild, so column names are configurable with
// aliases and a handful of date formats are accepted. Rows that fail to parse
// or validate are collected into ParseStats rather than aborting the whole
// file; the caller decides how strict to be.
package parsers

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	apperrors "bankfeed-reconciliation-service/pkg/errors"
	"bankfeed-reconciliation-service/pkg/logger"
)

// RowError describes a problem with one CSV row
type RowError struct {
	Line    int
	Field   string
	Value   string
	Message string
	Err     error
}

func (e *RowError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("row %d (%s='%s'): %s: %v", e.Line, e.Field, e.Value, e.Message, e.Err)
	}
	return fmt.Sprintf("row %d (%s='%s'): %s", e.Line, e.Field, e.Value, e.Message)
}

func (e *RowError) Unwrap() error { return e.Err }

// ParseStats summarizes one file load
type ParseStats struct {
	TotalLines   int
	RowsParsed   int
	RowsValid    int
	RowsRejected int
	Errors       []*RowError
}

func (ps *ParseStats) addError(err *RowError) {
	ps.Errors = append(ps.Errors, err)
	ps.RowsRejected++
}

// HasErrors reports whether any row was rejected
func (ps *ParseStats) HasErrors() bool { return ps.RowsRejected > 0 }

func (ps *ParseStats) String() string {
	return fmt.Sprintf("parsed %d rows (%d valid, %d rejected) over %d lines",
		ps.RowsParsed, ps.RowsValid, ps.RowsRejected, ps.TotalLines)
}

// SampleErrors returns up to max row errors for logging
func (ps *ParseStats) SampleErrors(max int) []string {
	limit := len(ps.Errors)
	if max > 0 && max < limit {
		limit = max
	}

	var samples []string
	for i := 0; i < limit; i++ {
		samples = append(samples, ps.Errors[i].Error())
	}
	return samples
}

// csvFile wraps a CSV reader with header-aware field access
type csvFile struct {
	path      string
	file      *os.File
	reader    *csv.Reader
	headerMap map[string]int
	line      int
}

func openCSV(path string, delimiter rune) (*csvFile, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CategoryParse, apperrors.CodeInvalidFormat,
			"cannot open "+path).WithContext("file", path)
	}

	reader := csv.NewReader(file)
	if delimiter != 0 {
		reader.Comma = delimiter
	}
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	return &csvFile{path: path, file: file, reader: reader}, nil
}

func (f *csvFile) Close() error { return f.file.Close() }

// readHeader consumes the header row and checks the required columns exist.
// Header lookup is case-insensitive.
func (f *csvFile) readHeader(required []string) error {
	headers, err := f.reader.Read()
	if err != nil {
		if err == io.EOF {
			return apperrors.ParseError(apperrors.CodeInvalidFormat, f.path, 0,
				"file is empty", nil).
				WithSuggestion("the file must contain a header row and data rows")
		}
		return apperrors.ParseError(apperrors.CodeInvalidFormat, f.path, 1, "unreadable header row", err)
	}

	f.line++
	f.headerMap = make(map[string]int, len(headers))
	for i, header := range headers {
		f.headerMap[strings.ToLower(strings.TrimSpace(header))] = i
	}

	var missing []string
	for _, name := range required {
		if _, ok := f.headerMap[strings.ToLower(name)]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return apperrors.ParseError(apperrors.CodeMissingColumn, f.path, 1,
			"missing required columns: "+strings.Join(missing, ", "), nil).
			WithSuggestion("rename or add the missing columns in the export")
	}

	return nil
}

// next reads the next non-empty data row, honoring context cancellation
func (f *csvFile) next(ctx context.Context) ([]string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		row, err := f.reader.Read()
		if err != nil {
			return nil, err
		}
		f.line++

		if isEmptyRow(row) {
			continue
		}
		return row, nil
	}
}

// field returns the trimmed value of a named column, or "" when the column is
// absent or the row is short. Optional columns rely on this behavior.
func (f *csvFile) field(row []string, name string) string {
	index, ok := f.headerMap[strings.ToLower(name)]
	if !ok || index >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[index])
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func parserLogger(component string) logger.Logger {
	return logger.GetGlobalLogger().WithComponent(component)
}
