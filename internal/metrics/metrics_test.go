package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"price-alert-bot/internal/types"
)

type memPersister struct {
	plain   map[string]float64
	labeled map[string]map[string]map[string]float64
}

func newMemPersister() *memPersister {
	return &memPersister{
		plain:   make(map[string]float64),
		labeled: make(map[string]map[string]map[string]float64),
	}
}

func (p *memPersister) SaveMetric(name, key, value string, v float64) error {
	if key == "" && value == "" {
		p.plain[name] = v
		return nil
	}
	if p.labeled[name] == nil {
		p.labeled[name] = make(map[string]map[string]float64)
	}
	if p.labeled[name][key] == nil {
		p.labeled[name][key] = make(map[string]float64)
	}
	p.labeled[name][key][value] = v
	return nil
}

func (p *memPersister) GetMetric(name string) (float64, error) {
	return p.plain[name], nil
}

func (p *memPersister) GetMetricsWithLabels(name string) (map[string]map[string]float64, error) {
	return p.labeled[name], nil
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Message(1, "chat")
		m.CommandProcessed()
		m.CacheLookup(true)
		m.PriceFetched(types.Binance, errors.New("boom"))
		m.AlertFired()
		m.MessageDelivered(false)
		m.SetActiveAlerts(3)
	})
}

func TestSaveAndLoad(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.Message(42, "")
	m.Message(42, "")
	m.Message(-100, "traders")
	m.CommandProcessed()
	m.AlertFired()
	m.MessageDelivered(true)

	p := newMemPersister()
	require.NoError(t, m.Save(p))
	assert.Equal(t, 3.0, p.plain["messages_handled"])
	assert.Equal(t, 2.0, p.labeled["messages_per_channel"]["42"]["PrivateChat-42"])

	restored := New(prometheus.NewRegistry())
	restored.Load(p)
	assert.Equal(t, 3.0, Value(restored.MessagesHandled))
	assert.Equal(t, 1.0, Value(restored.CommandsProcessed))
	assert.Equal(t, 1.0, Value(restored.AlertsFired))
	assert.Equal(t, 2.0, Value(restored.ChannelsCount))
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.CacheLookup(false)

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	buf := new(strings.Builder)
	_, err = io.Copy(buf, resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "price_alert_telegram_bot_price_cache_misses_total 1")
}
