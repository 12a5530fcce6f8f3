package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlertReadsLegacyFields(t *testing.T) {
	var a Alert
	err := json.Unmarshal([]byte(`{"id":2,"src":"Gate","code":"SOL_USDT","op":"<=","value":120.5,"triggered":true,"ack":true,"last_fired":1700000100}`), &a)
	require.NoError(t, err)

	assert.Equal(t, 2, a.ID)
	assert.Equal(t, Gate, a.Market)
	assert.Equal(t, AtOrBelow, a.Operator)
	assert.Equal(t, "120.5", a.Threshold.String())
	assert.True(t, a.Fired)
	assert.True(t, a.Acked)
	assert.Equal(t, int64(1700000100), a.LastFiredAt.Unix())
}

func TestAlertCurrentFieldsWin(t *testing.T) {
	var a Alert
	err := json.Unmarshal([]byte(`{"id":1,"market":"okx","src":"gate","code":"BTC-USDT","operator":">=","op":"<=","threshold":"70000","value":1}`), &a)
	require.NoError(t, err)

	assert.Equal(t, OKX, a.Market)
	assert.Equal(t, AtOrAbove, a.Operator)
	assert.Equal(t, "70000", a.Threshold.String())
}

func TestDocumentRoundTripDropsLegacyNames(t *testing.T) {
	doc := NewDocument()
	require.NoError(t, json.Unmarshal([]byte(`{"alerts":{"7":[{"id":1,"src":"mexc","code":"BTCUSDT","op":">=","value":1}]}}`), doc))

	data, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"src"`)
	assert.Contains(t, string(data), `"market":"mexc"`)
}
