package parsers

import (
	"context"
	"io"
	"strings"

	"bankfeed-reconciliation-service/internal/models"
	"bankfeed-reconciliation-service/pkg/logger"
)

// RecordParser loads receipts and expenses from the back-office CSV exports
// and normalizes them into the common record shape the matcher consumes.
type RecordParser struct {
	logger logger.Logger
}

// NewRecordParser creates a record parser
func NewRecordParser() *RecordParser {
	return &RecordParser{logger: parserLogger("record_parser")}
}

// ParseReceipts loads receipts from a CSV export.
//
// Expected columns: id, number, amount, currency, issue_date, payer_name,
// plus optional notes and project_id. Receipt numbers become the matching
// reference.
func (p *RecordParser) ParseReceipts(ctx context.Context, path string) ([]*models.SystemRecord, *ParseStats, error) {
	return p.parseRecords(ctx, path, models.RecordTypeReceipt)
}

// ParseExpenses loads expenses from a CSV export.
//
// Expected columns: id, amount, currency, spent_date, vendor_name, plus
// optional details, reference and project_id.
func (p *RecordParser) ParseExpenses(ctx context.Context, path string) ([]*models.SystemRecord, *ParseStats, error) {
	return p.parseRecords(ctx, path, models.RecordTypeExpense)
}

func (p *RecordParser) parseRecords(ctx context.Context, path string, recordType models.RecordType) ([]*models.SystemRecord, *ParseStats, error) {
	p.logger.WithFields(logger.Fields{
		"file": path,
		"type": string(recordType),
	}).Info("loading system records")

	f, err := openCSV(path, ',')
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	required := []string{"id", "amount"}
	switch recordType {
	case models.RecordTypeReceipt:
		required = append(required, "issue_date")
	case models.RecordTypeExpense:
		required = append(required, "spent_date")
	}
	if err := f.readHeader(required); err != nil {
		return nil, nil, err
	}

	stats := &ParseStats{}
	var records []*models.SystemRecord

	for {
		row, err := f.next(ctx)
		if err != nil {
			if err == io.EOF {
				break
			}
			if ctx.Err() != nil {
				return records, stats, err
			}
			stats.addError(&RowError{Line: f.line, Message: "unreadable row", Err: err})
			continue
		}

		stats.RowsParsed++

		record, rowErr := p.recordFromRow(f, row, recordType)
		if rowErr != nil {
			stats.addError(rowErr)
			continue
		}

		if err := record.Validate(); err != nil {
			stats.addError(&RowError{Line: f.line, Field: "record", Value: record.ID,
				Message: "validation failed", Err: err})
			continue
		}

		records = append(records, record)
		stats.RowsValid++
	}

	stats.TotalLines = f.line

	p.logger.WithFields(logger.Fields{
		"file":     path,
		"type":     string(recordType),
		"valid":    stats.RowsValid,
		"rejected": stats.RowsRejected,
	}).Info("record load completed")

	return records, stats, nil
}

func (p *RecordParser) recordFromRow(f *csvFile, row []string, recordType models.RecordType) (*models.SystemRecord, *RowError) {
	id := f.field(row, "id")
	if id == "" {
		return nil, &RowError{Line: f.line, Field: "id", Message: "missing record id"}
	}

	amountStr := f.field(row, "amount")
	amount, err := models.ParseDecimalFromString(amountStr)
	if err != nil {
		return nil, &RowError{Line: f.line, Field: "amount", Value: amountStr,
			Message: "invalid amount", Err: err}
	}

	if recordType == models.RecordTypeReceipt {
		dateStr := f.field(row, "issue_date")
		issueDate, err := models.ParseTimeWithFormats(dateStr)
		if err != nil {
			return nil, &RowError{Line: f.line, Field: "issue_date", Value: dateStr,
				Message: "invalid issue date", Err: err}
		}

		return models.NormalizeReceipt(&models.Receipt{
			ID:        id,
			Number:    f.field(row, "number"),
			Amount:    amount,
			Currency:  strings.ToUpper(f.field(row, "currency")),
			IssueDate: issueDate,
			PayerName: f.field(row, "payer_name"),
			Notes:     f.field(row, "notes"),
			ProjectID: f.field(row, "project_id"),
		}), nil
	}

	dateStr := f.field(row, "spent_date")
	spentDate, err := models.ParseTimeWithFormats(dateStr)
	if err != nil {
		return nil, &RowError{Line: f.line, Field: "spent_date", Value: dateStr,
			Message: "invalid spent date", Err: err}
	}

	return models.NormalizeExpense(&models.Expense{
		ID:         id,
		Amount:     amount,
		Currency:   strings.ToUpper(f.field(row, "currency")),
		SpentDate:  spentDate,
		VendorName: f.field(row, "vendor_name"),
		Details:    f.field(row, "details"),
		Reference:  f.field(row, "reference"),
		ProjectID:  f.field(row, "project_id"),
	}), nil
}
