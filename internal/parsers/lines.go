package parsers

import (
	"context"
	"fmt"
	"io"
	"strings"

	"bankfeed-reconciliation-service/internal/models"
	apperrors "bankfeed-reconciliation-service/pkg/errors"
	"bankfeed-reconciliation-service/pkg/logger"
)

// LineParserConfig maps a bank's CSV export onto bank feed line fields.
// Column aliases take precedence over the configured column names so one
// config can absorb small per-bank naming differences.
type LineParserConfig struct {
	IDColumn          string            `json:"id_column"`
	DateColumn        string            `json:"date_column"`
	ValueDateColumn   string            `json:"value_date_column"`
	DescriptionColumn string            `json:"description_column"`
	ReferenceColumn   string            `json:"reference_column"`
	AmountColumn      string            `json:"amount_column"`
	BalanceColumn     string            `json:"balance_column"`
	CurrencyColumn    string            `json:"currency_column"`
	BankAccountColumn string            `json:"bank_account_column"`
	DefaultCurrency   string            `json:"default_currency"`
	Delimiter         rune              `json:"delimiter"`
	ColumnAliases     map[string]string `json:"column_aliases,omitempty"`
}

// DefaultLineParserConfig matches the column names of the standard feed
// export.
func DefaultLineParserConfig() *LineParserConfig {
	return &LineParserConfig{
		IDColumn:          "id",
		DateColumn:        "transaction_date",
		ValueDateColumn:   "value_date",
		DescriptionColumn: "description",
		ReferenceColumn:   "reference",
		AmountColumn:      "amount",
		BalanceColumn:     "running_balance",
		CurrencyColumn:    "currency",
		BankAccountColumn: "bank_account_id",
		Delimiter:         ',',
	}
}

// Validate checks the line parser configuration
func (c *LineParserConfig) Validate() error {
	if strings.TrimSpace(c.IDColumn) == "" {
		return fmt.Errorf("id column cannot be empty")
	}
	if strings.TrimSpace(c.DateColumn) == "" {
		return fmt.Errorf("date column cannot be empty")
	}
	if strings.TrimSpace(c.AmountColumn) == "" {
		return fmt.Errorf("amount column cannot be empty")
	}
	return nil
}

// GetColumnName returns the configured column name, checking aliases first
func (c *LineParserConfig) GetColumnName(standardName string) string {
	if alias, ok := c.ColumnAliases[standardName]; ok {
		return alias
	}

	switch standardName {
	case "id":
		return c.IDColumn
	case "date":
		return c.DateColumn
	case "value_date":
		return c.ValueDateColumn
	case "description":
		return c.DescriptionColumn
	case "reference":
		return c.ReferenceColumn
	case "amount":
		return c.AmountColumn
	case "balance":
		return c.BalanceColumn
	case "currency":
		return c.CurrencyColumn
	case "bank_account":
		return c.BankAccountColumn
	default:
		return standardName
	}
}

// LineParser loads bank feed lines from CSV exports
type LineParser struct {
	config *LineParserConfig
	logger logger.Logger
}

// NewLineParser creates a parser for the given export layout. A nil config
// gets the defaults.
func NewLineParser(config *LineParserConfig) (*LineParser, error) {
	if config == nil {
		config = DefaultLineParserConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CategoryConfig, apperrors.CodeInvalidConfig,
			"invalid line parser configuration")
	}

	return &LineParser{
		config: config,
		logger: parserLogger("line_parser"),
	}, nil
}

// ParseLines loads every valid bank feed line from the file. Rows that fail
// to parse or validate are reported in the stats and skipped. Loaded lines
// start in the unmatched status.
func (p *LineParser) ParseLines(ctx context.Context, path string) ([]*models.BankFeedLine, *ParseStats, error) {
	p.logger.WithField("file", path).Info("loading bank feed lines")

	f, err := openCSV(path, p.config.Delimiter)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	required := []string{
		p.config.GetColumnName("id"),
		p.config.GetColumnName("date"),
		p.config.GetColumnName("amount"),
	}
	if err := f.readHeader(required); err != nil {
		return nil, nil, err
	}

	stats := &ParseStats{}
	var lines []*models.BankFeedLine

	for {
		row, err := f.next(ctx)
		if err != nil {
			if err == io.EOF {
				break
			}
			if ctx.Err() != nil {
				return lines, stats, err
			}
			stats.addError(&RowError{Line: f.line, Message: "unreadable row", Err: err})
			continue
		}

		stats.RowsParsed++

		line, rowErr := p.lineFromRow(f, row)
		if rowErr != nil {
			stats.addError(rowErr)
			continue
		}

		if err := line.Validate(); err != nil {
			stats.addError(&RowError{Line: f.line, Field: "line", Value: line.ID,
				Message: "validation failed", Err: err})
			continue
		}

		lines = append(lines, line)
		stats.RowsValid++
	}

	stats.TotalLines = f.line

	p.logger.WithFields(logger.Fields{
		"file":     path,
		"valid":    stats.RowsValid,
		"rejected": stats.RowsRejected,
	}).Info("bank feed load completed")

	if stats.HasErrors() {
		p.logger.WithField("sample_errors", stats.SampleErrors(3)).Warn("some rows were rejected")
	}

	return lines, stats, nil
}

func (p *LineParser) lineFromRow(f *csvFile, row []string) (*models.BankFeedLine, *RowError) {
	id := f.field(row, p.config.GetColumnName("id"))
	if id == "" {
		return nil, &RowError{Line: f.line, Field: p.config.GetColumnName("id"),
			Message: "missing line id"}
	}

	dateStr := f.field(row, p.config.GetColumnName("date"))
	transactionDate, err := models.ParseTimeWithFormats(dateStr)
	if err != nil {
		return nil, &RowError{Line: f.line, Field: p.config.GetColumnName("date"),
			Value: dateStr, Message: "invalid transaction date", Err: err}
	}

	amountStr := f.field(row, p.config.GetColumnName("amount"))
	amount, err := models.ParseDecimalFromString(amountStr)
	if err != nil {
		return nil, &RowError{Line: f.line, Field: p.config.GetColumnName("amount"),
			Value: amountStr, Message: "invalid amount", Err: err}
	}

	line := &models.BankFeedLine{
		ID:              id,
		BankAccountID:   f.field(row, p.config.GetColumnName("bank_account")),
		Currency:        strings.ToUpper(f.field(row, p.config.GetColumnName("currency"))),
		TransactionDate: transactionDate,
		Description:     f.field(row, p.config.GetColumnName("description")),
		Reference:       f.field(row, p.config.GetColumnName("reference")),
		Amount:          amount,
		Status:          models.StatusUnmatched,
	}

	if line.Currency == "" {
		line.Currency = strings.ToUpper(p.config.DefaultCurrency)
	}

	if valueDateStr := f.field(row, p.config.GetColumnName("value_date")); valueDateStr != "" {
		valueDate, err := models.ParseTimeWithFormats(valueDateStr)
		if err != nil {
			return nil, &RowError{Line: f.line, Field: p.config.GetColumnName("value_date"),
				Value: valueDateStr, Message: "invalid value date", Err: err}
		}
		line.ValueDate = valueDate
	}

	if balanceStr := f.field(row, p.config.GetColumnName("balance")); balanceStr != "" {
		balance, err := models.ParseDecimalFromString(balanceStr)
		if err != nil {
			return nil, &RowError{Line: f.line, Field: p.config.GetColumnName("balance"),
				Value: balanceStr, Message: "invalid running balance", Err: err}
		}
		line.RunningBalance = balance
	}

	return line, nil
}
