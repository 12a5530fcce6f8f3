package metrics

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	log "github.com/sirupsen/logrus"
)

// Persister stores metric values between restarts.
type Persister interface {
	SaveMetric(metricName, labelKey, labelValue string, value float64) error
	GetMetric(metricName string) (float64, error)
	GetMetricsWithLabels(metricName string) (map[string]map[string]float64, error)
}

// Load restores counters saved by Save. Missing values start at zero.
func (m *Metrics) Load(p Persister) {
	m.mu.Lock()
	defer m.mu.Unlock()

	add := func(name string, c prometheus.Counter) {
		v, err := p.GetMetric(name)
		if err != nil {
			log.Errorf("Failed to load metric %s: %v", name, err)
			return
		}
		c.Add(v)
	}
	add("commands_processed", m.CommandsProcessed)
	add("messages_handled", m.MessagesHandled)
	add("alerts_fired", m.AlertsFired)
	add("messages_sent", m.MessagesSent)

	loadLabeled(p, "channel_names", func(chatIDStr, chatName string, _ float64) {
		chatID, err := strconv.ParseInt(chatIDStr, 10, 64)
		if err != nil {
			log.Errorf("Failed to parse chatID %s: %v", chatIDStr, err)
			return
		}
		m.ChannelNames.WithLabelValues(chatIDStr, chatName).Add(1)
		m.channelsSet[chatID] = chatName
	})
	m.ChannelsCount.Set(float64(len(m.channelsSet)))

	loadLabeled(p, "messages_per_channel", func(chatID, chatName string, value float64) {
		m.MessagesPerChannel.WithLabelValues(chatID, chatName).Add(value)
	})

	log.Info("Metrics loaded from database.")
}

func loadLabeled(p Persister, metricName string, callback func(labelKey, labelValue string, value float64)) {
	metricsWithLabels, err := p.GetMetricsWithLabels(metricName)
	if err != nil {
		log.Errorf("Failed to load metric %s: %v", metricName, err)
		return
	}
	for labelKey, labelValues := range metricsWithLabels {
		for labelValue, value := range labelValues {
			callback(labelKey, labelValue, value)
		}
	}
}

// Save writes persisted counters through p.
func (m *Metrics) Save(p Persister) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	save := func(name string, v float64) error {
		return p.SaveMetric(name, "", "", v)
	}
	for name, c := range map[string]prometheus.Collector{
		"commands_processed": m.CommandsProcessed,
		"messages_handled":   m.MessagesHandled,
		"alerts_fired":       m.AlertsFired,
		"messages_sent":      m.MessagesSent,
	} {
		if err := save(name, Value(c)); err != nil {
			return err
		}
	}

	for chatID, chatName := range m.channelsSet {
		if err := p.SaveMetric("channel_names", fmt.Sprintf("%d", chatID), chatName, float64(chatID)); err != nil {
			return err
		}
	}

	metricChan := make(chan prometheus.Metric, 1)
	go func() {
		m.MessagesPerChannel.Collect(metricChan)
		close(metricChan)
	}()

	var firstErr error
	for metric := range metricChan {
		metricProto := &dto.Metric{}
		if err := metric.Write(metricProto); err != nil {
			log.Errorf("Failed to read messages_per_channel metric: %v", err)
			continue
		}
		var chatID, chatName string
		for _, label := range metricProto.Label {
			switch label.GetName() {
			case "chat_id":
				chatID = label.GetValue()
			case "chat_name":
				chatName = label.GetValue()
			}
		}
		if err := p.SaveMetric("messages_per_channel", chatID, chatName, metricProto.Counter.GetValue()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return firstErr
	}

	log.Info("Metrics saved to database.")
	return nil
}

// Value reads the current value of a single counter or gauge.
func Value(metric prometheus.Collector) float64 {
	metricChan := make(chan prometheus.Metric, 1)
	metric.Collect(metricChan)
	close(metricChan)

	metricProto := &dto.Metric{}
	if err := (<-metricChan).Write(metricProto); err != nil {
		log.Errorf("Failed to read metric value: %v", err)
		return 0
	}

	if metricProto.Counter != nil {
		return metricProto.Counter.GetValue()
	} else if metricProto.Gauge != nil {
		return metricProto.Gauge.GetValue()
	}
	return 0
}
