package store

import (
	"context"
	"testing"
	"time"

	"bankfeed-reconciliation-service/internal/models"
	apperrors "bankfeed-reconciliation-service/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var storeDate = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

func storeLine(id string) *models.BankFeedLine {
	return &models.BankFeedLine{
		ID:              id,
		BankAccountID:   "ACC-1",
		Currency:        "THB",
		TransactionDate: storeDate,
		Description:     "INV-2048 Client Payment",
		Amount:          decimal.RequireFromString("-1500.00"),
		Status:          models.StatusUnmatched,
	}
}

func storeRecord(id string) *models.SystemRecord {
	return &models.SystemRecord{
		Type:      models.RecordTypeReceipt,
		ID:        id,
		Amount:    decimal.RequireFromString("1500.00"),
		Currency:  "THB",
		Date:      storeDate,
		Reference: "INV-2048",
	}
}

func storeMatch(lineID, recordID string) *models.BankMatch {
	return &models.BankMatch{
		ID:            "M-" + lineID + "-" + recordID,
		LineID:        lineID,
		RecordType:    models.RecordTypeReceipt,
		RecordID:      recordID,
		MatchedAmount: decimal.RequireFromString("1500.00"),
		Discrepancy:   decimal.Zero,
		Method:        models.MethodSuggested,
		Score:         90,
		CreatedAt:     storeDate,
	}
}

// openStores returns both implementations so every test runs against each.
func openStores(t *testing.T) map[string]DataStore {
	t.Helper()

	sqliteStore, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sqliteStore.Close() })

	return map[string]DataStore{
		"memory": NewMemoryStore(),
		"sqlite": sqliteStore,
	}
}

func TestLineRoundTrip(t *testing.T) {
	ctx := context.Background()

	for name, dataStore := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			line := storeLine("L-1")
			require.NoError(t, dataStore.SaveLine(ctx, line))

			loaded, err := dataStore.GetLine(ctx, "L-1")
			require.NoError(t, err)
			assert.Equal(t, line.ID, loaded.ID)
			assert.Equal(t, line.Currency, loaded.Currency)
			assert.True(t, line.Amount.Equal(loaded.Amount))
			assert.True(t, line.TransactionDate.Equal(loaded.TransactionDate))
			assert.Equal(t, models.StatusUnmatched, loaded.Status)

			_, err = dataStore.GetLine(ctx, "missing")
			assert.True(t, apperrors.IsNotFound(err))
		})
	}
}

func TestListMatchableLines(t *testing.T) {
	ctx := context.Background()

	for name, dataStore := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			unmatched := storeLine("L-unmatched")
			missing := storeLine("L-missing")
			missing.Status = models.StatusMissingRecord
			ignored := storeLine("L-ignored")
			ignored.Status = models.StatusIgnored
			withMatch := storeLine("L-matched")

			for _, line := range []*models.BankFeedLine{unmatched, missing, ignored, withMatch} {
				require.NoError(t, dataStore.SaveLine(ctx, line))
			}
			require.NoError(t, dataStore.SaveRecord(ctx, storeRecord("R-1")))
			require.NoError(t, dataStore.CreateMatch(ctx, storeMatch("L-matched", "R-1")))

			lines, err := dataStore.ListMatchableLines(ctx)
			require.NoError(t, err)

			ids := make([]string, 0, len(lines))
			for _, line := range lines {
				ids = append(ids, line.ID)
			}
			assert.ElementsMatch(t, []string{"L-unmatched", "L-missing"}, ids)
		})
	}
}

func TestListLinesHidesDeleted(t *testing.T) {
	ctx := context.Background()

	for name, dataStore := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			keep := storeLine("L-keep")
			deleted := storeLine("L-deleted")
			deleted.Status = models.StatusDeleted

			require.NoError(t, dataStore.SaveLine(ctx, keep))
			require.NoError(t, dataStore.SaveLine(ctx, deleted))

			lines, err := dataStore.ListLines(ctx)
			require.NoError(t, err)
			require.Len(t, lines, 1)
			assert.Equal(t, "L-keep", lines[0].ID)

			// The soft-deleted row still exists.
			line, err := dataStore.GetLine(ctx, "L-deleted")
			require.NoError(t, err)
			assert.Equal(t, models.StatusDeleted, line.Status)
		})
	}
}

func TestUpdateLineStatus(t *testing.T) {
	ctx := context.Background()

	for name, dataStore := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, dataStore.SaveLine(ctx, storeLine("L-1")))

			amount := decimal.RequireFromString("1500.00")
			require.NoError(t, dataStore.UpdateLineStatus(ctx, "L-1", models.StatusMatched, amount))

			line, err := dataStore.GetLine(ctx, "L-1")
			require.NoError(t, err)
			assert.Equal(t, models.StatusMatched, line.Status)
			assert.True(t, amount.Equal(line.MatchedAmount))

			err = dataStore.UpdateLineStatus(ctx, "missing", models.StatusMatched, amount)
			assert.True(t, apperrors.IsNotFound(err))
		})
	}
}

func TestRecordRoundTrip(t *testing.T) {
	ctx := context.Background()

	for name, dataStore := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			record := storeRecord("R-1")
			record.Counterparty = "Acme Co"
			require.NoError(t, dataStore.SaveRecord(ctx, record))

			loaded, err := dataStore.GetRecord(ctx, models.RecordTypeReceipt, "R-1")
			require.NoError(t, err)
			assert.Equal(t, "Acme Co", loaded.Counterparty)
			assert.True(t, record.Amount.Equal(loaded.Amount))

			// Identity is (type, id): same id under the other type is absent.
			_, err = dataStore.GetRecord(ctx, models.RecordTypeExpense, "R-1")
			assert.True(t, apperrors.IsNotFound(err))
		})
	}
}

func TestListUnmatchedRecords(t *testing.T) {
	ctx := context.Background()

	for name, dataStore := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, dataStore.SaveLine(ctx, storeLine("L-1")))
			require.NoError(t, dataStore.SaveRecord(ctx, storeRecord("R-free")))
			require.NoError(t, dataStore.SaveRecord(ctx, storeRecord("R-used")))
			require.NoError(t, dataStore.CreateMatch(ctx, storeMatch("L-1", "R-used")))

			records, err := dataStore.ListUnmatchedRecords(ctx)
			require.NoError(t, err)
			require.Len(t, records, 1)
			assert.Equal(t, "R-free", records[0].ID)
		})
	}
}

func TestCreateMatchDuplicate(t *testing.T) {
	ctx := context.Background()

	for name, dataStore := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, dataStore.SaveLine(ctx, storeLine("L-1")))
			require.NoError(t, dataStore.SaveRecord(ctx, storeRecord("R-1")))

			require.NoError(t, dataStore.CreateMatch(ctx, storeMatch("L-1", "R-1")))

			duplicate := storeMatch("L-1", "R-1")
			duplicate.ID = "M-other-id"
			err := dataStore.CreateMatch(ctx, duplicate)
			assert.True(t, apperrors.IsDuplicateMatch(err), "got %v", err)
		})
	}
}

func TestDeleteMatch(t *testing.T) {
	ctx := context.Background()

	for name, dataStore := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, dataStore.SaveLine(ctx, storeLine("L-1")))
			require.NoError(t, dataStore.SaveRecord(ctx, storeRecord("R-1")))

			match := storeMatch("L-1", "R-1")
			require.NoError(t, dataStore.CreateMatch(ctx, match))

			found, err := dataStore.GetMatchByLine(ctx, "L-1")
			require.NoError(t, err)
			assert.Equal(t, match.ID, found.ID)

			require.NoError(t, dataStore.DeleteMatch(ctx, match.ID))

			_, err = dataStore.GetMatchByLine(ctx, "L-1")
			assert.True(t, apperrors.IsNotFound(err))

			err = dataStore.DeleteMatch(ctx, match.ID)
			assert.True(t, apperrors.IsNotFound(err))
		})
	}
}

func TestRuleRoundTrip(t *testing.T) {
	ctx := context.Background()

	rule := &models.MatchingRule{
		ID:       "payroll-boost",
		Name:     "Boost payroll transfers",
		Priority: 10,
		Enabled:  true,
		Weight:   15,
		Conditions: []models.RuleCondition{
			{Field: models.FieldLineDescription, Comparator: models.ComparatorContains, Value: "payroll"},
		},
	}
	second := &models.MatchingRule{
		ID:       "aaa-first",
		Name:     "Lower priority value sorts first",
		Priority: 5,
		Enabled:  true,
		Weight:   -10,
		Conditions: []models.RuleCondition{
			{Field: models.FieldRecordType, Comparator: models.ComparatorEquals, Value: "expense"},
		},
	}

	for name, dataStore := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, dataStore.SaveRule(ctx, rule))
			require.NoError(t, dataStore.SaveRule(ctx, second))

			rules, err := dataStore.ListRules(ctx)
			require.NoError(t, err)
			require.Len(t, rules, 2)
			assert.Equal(t, "aaa-first", rules[0].ID)
			assert.Equal(t, "payroll-boost", rules[1].ID)
			assert.Equal(t, rule.Conditions, rules[1].Conditions)
		})
	}
}

func TestSaveRejectsInvalid(t *testing.T) {
	ctx := context.Background()

	for name, dataStore := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			bad := storeLine("L-1")
			bad.Currency = ""
			assert.Error(t, dataStore.SaveLine(ctx, bad))

			badRecord := storeRecord("R-1")
			badRecord.Amount = decimal.RequireFromString("-5")
			assert.Error(t, dataStore.SaveRecord(ctx, badRecord))
		})
	}
}
