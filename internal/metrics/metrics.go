// Package metrics holds the bot's prometheus collectors.
package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"price-alert-bot/internal/types"
)

const (
	namespace = "price_alert"
	subsystem = "telegram_bot"
)

// Metrics is safe to use through a nil pointer; every recorder is then a no-op.
type Metrics struct {
	CommandsProcessed  prometheus.Counter
	MessagesHandled    prometheus.Counter
	ChannelsCount      prometheus.Gauge
	ChannelNames       *prometheus.CounterVec
	MessagesPerChannel *prometheus.CounterVec

	Ticks        prometheus.Counter
	TicksSkipped prometheus.Counter
	TickDuration prometheus.Histogram
	PriceFetches *prometheus.CounterVec
	CacheHits    prometheus.Counter
	CacheMisses  prometheus.Counter
	AlertsFired  prometheus.Counter
	ActiveAlerts prometheus.Gauge

	MessagesSent    prometheus.Counter
	MessagesDropped prometheus.Counter
	BurstsCancelled prometheus.Counter

	mu          sync.Mutex
	channelsSet map[int64]string
}

func counter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	})
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CommandsProcessed: counter("commands_processed", "The total number of processed commands"),
		MessagesHandled:   counter("messages_handled", "The total number of handled messages"),
		ChannelsCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "channels_count",
			Help:      "The current number of unique chats the bot is operating in",
		}),
		ChannelNames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "channel_names",
			Help:      "Tracks chats the bot has interacted with",
		}, []string{"chat_id", "chat_name"}),
		MessagesPerChannel: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "messages_per_channel",
			Help:      "The total number of messages handled per chat",
		}, []string{"chat_id", "chat_name"}),

		Ticks:        counter("ticks_total", "Completed alert evaluation ticks"),
		TicksSkipped: counter("ticks_skipped_total", "Ticks skipped because previous ticks were still running"),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tick_duration_seconds",
			Help:      "Wall time of one alert evaluation tick",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		PriceFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "price_fetches_total",
			Help:      "Live price requests per market and result",
		}, []string{"market", "result"}),
		CacheHits:   counter("price_cache_hits_total", "Price lookups served from cache"),
		CacheMisses: counter("price_cache_misses_total", "Price lookups that required a live fetch"),
		AlertsFired: counter("alerts_fired_total", "Alert firings that started a notification burst"),
		ActiveAlerts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "active_alerts",
			Help:      "Alerts stored across all chats",
		}),

		MessagesSent:    counter("messages_sent_total", "Notification messages delivered"),
		MessagesDropped: counter("messages_dropped_total", "Notification messages dropped after retries"),
		BurstsCancelled: counter("bursts_cancelled_total", "Notification bursts stopped by an acknowledgement"),

		channelsSet: make(map[int64]string),
	}

	if reg != nil {
		reg.MustRegister(
			m.CommandsProcessed, m.MessagesHandled, m.ChannelsCount, m.ChannelNames, m.MessagesPerChannel,
			m.Ticks, m.TicksSkipped, m.TickDuration, m.PriceFetches, m.CacheHits, m.CacheMisses,
			m.AlertsFired, m.ActiveAlerts, m.MessagesSent, m.MessagesDropped, m.BurstsCancelled,
		)
	}
	return m
}

// Message records an incoming command message from a chat.
func (m *Metrics) Message(chatID int64, chatName string) {
	if m == nil {
		return
	}
	if chatName == "" {
		chatName = fmt.Sprintf("%s-%d", "PrivateChat", chatID)
	}
	m.MessagesHandled.Inc()
	m.MessagesPerChannel.WithLabelValues(fmt.Sprintf("%d", chatID), chatName).Inc()

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.channelsSet[chatID]; !exists {
		m.channelsSet[chatID] = chatName
		m.ChannelsCount.Set(float64(len(m.channelsSet)))
		m.ChannelNames.WithLabelValues(fmt.Sprintf("%d", chatID), chatName).Inc()
	}
}

func (m *Metrics) CommandProcessed() {
	if m == nil {
		return
	}
	m.CommandsProcessed.Inc()
}

func (m *Metrics) TickCompleted(d time.Duration) {
	if m == nil {
		return
	}
	m.Ticks.Inc()
	m.TickDuration.Observe(d.Seconds())
}

func (m *Metrics) TickSkipped() {
	if m == nil {
		return
	}
	m.TicksSkipped.Inc()
}

// PriceFetched records the outcome of one live adapter request.
func (m *Metrics) PriceFetched(market types.Market, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.PriceFetches.WithLabelValues(string(market), result).Inc()
}

func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHits.Inc()
	} else {
		m.CacheMisses.Inc()
	}
}

func (m *Metrics) AlertFired() {
	if m == nil {
		return
	}
	m.AlertsFired.Inc()
}

func (m *Metrics) SetActiveAlerts(n int) {
	if m == nil {
		return
	}
	m.ActiveAlerts.Set(float64(n))
}

// MessageDelivered records the final outcome of one notification message.
func (m *Metrics) MessageDelivered(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.MessagesSent.Inc()
	} else {
		m.MessagesDropped.Inc()
	}
}

func (m *Metrics) BurstCancelled() {
	if m == nil {
		return
	}
	m.BurstsCancelled.Inc()
}
