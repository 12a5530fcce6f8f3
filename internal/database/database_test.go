package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"price-alert-bot/internal/types"
)

func sampleDocument() *types.Document {
	doc := types.NewDocument()
	fired := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	doc.Alerts[42] = []*types.Alert{
		{
			ID:          1,
			Market:      types.Binance,
			Code:        "BTCUSDT",
			Display:     "BTCUSDT (Binance)",
			Operator:    types.AtOrAbove,
			Threshold:   decimal.NewFromInt(70000),
			Fired:       true,
			LastPrice:   decimal.RequireFromString("70500.5"),
			LastFiredAt: fired,
		},
		{
			ID:        3,
			Market:    types.Gate,
			Code:      "PEPE_USDT",
			Display:   "PEPE_USDT (Gate)",
			Operator:  types.AtOrBelow,
			Threshold: decimal.RequireFromString("0.0000101"),
			Acked:     true,
		},
	}
	doc.Alerts[-100123] = []*types.Alert{
		{ID: 1, Market: types.OKX, Code: "ETH-USDT", Display: "ETH-USDT (OKX)", Operator: types.AtOrBelow, Threshold: decimal.NewFromInt(3000)},
	}
	return doc
}

func assertSameDocument(t *testing.T, want, got *types.Document) {
	t.Helper()
	require.Len(t, got.Alerts, len(want.Alerts))
	for chatID, alerts := range want.Alerts {
		require.Len(t, got.Alerts[chatID], len(alerts), "chat %d", chatID)
		for i, a := range alerts {
			b := got.Alerts[chatID][i]
			assert.Equal(t, a.ID, b.ID)
			assert.Equal(t, a.Market, b.Market)
			assert.Equal(t, a.Code, b.Code)
			assert.Equal(t, a.Display, b.Display)
			assert.Equal(t, a.Operator, b.Operator)
			assert.True(t, a.Threshold.Equal(b.Threshold), "threshold %s != %s", a.Threshold, b.Threshold)
			assert.True(t, a.LastPrice.Equal(b.LastPrice))
			assert.Equal(t, a.Fired, b.Fired)
			assert.Equal(t, a.Acked, b.Acked)
			assert.True(t, a.LastFiredAt.Equal(b.LastFiredAt))
		}
	}
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(filepath.Join(dir, "nested", "alerts.json"))
	ctx := context.Background()

	doc, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, doc.Alerts)

	want := sampleDocument()
	require.NoError(t, s.Save(ctx, want))
	got, err := s.Load(ctx)
	require.NoError(t, err)
	assertSameDocument(t, want, got)

	entries, err := os.ReadDir(filepath.Join(dir, "nested"))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary files must not be left behind")
	assert.Equal(t, "alerts.json", entries[0].Name())
}

func TestFileStoreCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"alerts": [`), 0o644))

	_, err := NewFileStore(path).Load(context.Background())
	var serr *StoreError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "load", serr.Op)
}

func TestFileStoreFailedSaveKeepsPrevious(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "alerts.json")
	s := NewFileStore(path)
	require.NoError(t, s.Save(context.Background(), sampleDocument()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Save(ctx, types.NewDocument())
	require.Error(t, err)

	got, err := s.Load(context.Background())
	require.NoError(t, err)
	assertSameDocument(t, sampleDocument(), got)
}

func TestSQLiteStore(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "data", "bot.db"))
	require.NoError(t, err)
	defer db.Close()

	s := NewSQLiteStore(db)
	ctx := context.Background()

	doc, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, doc.Alerts)

	want := sampleDocument()
	require.NoError(t, s.Save(ctx, want))
	got, err := s.Load(ctx)
	require.NoError(t, err)
	assertSameDocument(t, want, got)

	delete(want.Alerts, 42)
	require.NoError(t, s.Save(ctx, want))
	got, err = s.Load(ctx)
	require.NoError(t, err)
	assertSameDocument(t, want, got)
}

func TestMetricsTable(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	defer db.Close()

	v, err := db.GetMetric("commands_processed")
	require.NoError(t, err)
	assert.Zero(t, v)

	require.NoError(t, db.SaveMetric("commands_processed", "", "", 5))
	require.NoError(t, db.SaveMetric("commands_processed", "", "", 7))
	require.NoError(t, db.SaveMetric("messages_per_channel", "42", "PrivateChat-42", 3))

	v, err = db.GetMetric("commands_processed")
	require.NoError(t, err)
	assert.Equal(t, 7.0, v)

	labeled, err := db.GetMetricsWithLabels("messages_per_channel")
	require.NoError(t, err)
	assert.Equal(t, map[string]map[string]float64{"42": {"PrivateChat-42": 3}}, labeled)
}

func TestSanitize(t *testing.T) {
	doc := sampleDocument()
	doc.Alerts[42] = append(doc.Alerts[42],
		&types.Alert{ID: 4, Market: "coingecko", Code: "bitcoin", Operator: types.AtOrAbove},
		&types.Alert{ID: 5, Market: types.Bybit, Code: "", Operator: types.AtOrAbove},
		&types.Alert{ID: 6, Market: types.Bybit, Code: "SOLUSDT", Operator: ">"},
		nil,
	)
	doc.Alerts[7] = []*types.Alert{{ID: 1, Market: "coingecko", Code: "x", Operator: types.AtOrAbove}}
	doc.Alerts[8] = []*types.Alert{{ID: 1, Market: types.MEXC, Code: "SOLUSDT", Operator: types.AtOrAbove}}

	assert.Equal(t, 5, Sanitize(doc))
	assert.Len(t, doc.Alerts[42], 2)
	assert.NotContains(t, doc.Alerts, int64(7))
	assert.Equal(t, "SOLUSDT (MEXC)", doc.Alerts[8][0].Display)
}
