package journal

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predikt/tradeclient/internal/types"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func openTestJournal(t *testing.T) *Journal {
	j, err := Open(filepath.Join(t.TempDir(), "nested", "journal.db"))
	require.NoError(t, err)
	return j
}

func TestRecordAndStats(t *testing.T) {
	j := openTestJournal(t)

	req := types.OrderRequest{
		MarketID:    1,
		Side:        "buy",
		OutcomeName: "default",
		Outcome:     types.SideYes,
		Quantity:    5,
		OrderType:   types.OrderTypeLimit,
		Price:       dec("0.35"),
	}

	require.NoError(t, j.RecordPlaced(req, &types.Order{ID: 99}))
	require.NoError(t, j.RecordFailed(req, errors.New("insufficient balance")))

	placed, failed, err := j.Stats()
	require.NoError(t, err)
	assert.Equal(t, int64(1), placed)
	assert.Equal(t, int64(1), failed)

	records, err := j.RecentOrders(10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, rec := range records {
		assert.Equal(t, int64(1), rec.MarketID)
		assert.Equal(t, "yes", rec.Outcome)
	}
}

func TestRecordFills_Idempotent(t *testing.T) {
	j := openTestJournal(t)

	trades := []types.Trade{
		{ID: 10, OutcomeName: "default", Outcome: types.SideYes, Price: dec("0.40"), Quantity: dec("5"), CreatedAt: time.Now()},
		{ID: 11, OutcomeName: "default", Outcome: types.SideNo, Price: dec("0.55"), Quantity: dec("2"), CreatedAt: time.Now()},
	}

	require.NoError(t, j.RecordFills(1, trades))
	// Re-polling the same history must not duplicate rows.
	require.NoError(t, j.RecordFills(1, trades))

	var count int64
	require.NoError(t, j.db.Model(&FillRecord{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestRecordFills_EmptyIsNoop(t *testing.T) {
	j := openTestJournal(t)
	require.NoError(t, j.RecordFills(1, nil))
}
