package alert

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"price-alert-bot/internal/database"
	"price-alert-bot/internal/metrics"
	"price-alert-bot/internal/resolver"
	"price-alert-bot/internal/types"
)

// Resolver validates an asset query against live markets.
type Resolver interface {
	Resolve(ctx context.Context, query string) (resolver.Resolution, error)
}

// Notifier starts and cancels notification bursts for a rule.
type Notifier interface {
	Deliver(chatID int64, ruleID int, text string)
	Cancel(chatID int64, ruleID int) bool
}

var errUnchanged = errors.New("document unchanged")

// Service owns the alert store. Every load+save pair, from commands and from
// engine ticks alike, runs under one lock so concurrent writers never lose
// each other's update.
type Service struct {
	mu       sync.Mutex
	store    database.Store
	resolver Resolver
	notifier Notifier
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewService(store database.Store, res Resolver, n Notifier, m *metrics.Metrics) *Service {
	return &Service{store: store, resolver: res, notifier: n, metrics: m, now: time.Now}
}

func (s *Service) update(ctx context.Context, fn func(doc *types.Document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.store.Load(ctx)
	if err != nil {
		return err
	}
	if err := fn(doc); err == errUnchanged {
		return nil
	} else if err != nil {
		return err
	}
	if err := s.store.Save(ctx, doc); err != nil {
		return err
	}
	s.metrics.SetActiveAlerts(countAlerts(doc))
	return nil
}

func (s *Service) snapshot(ctx context.Context) (*types.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Load(ctx)
}

func countAlerts(doc *types.Document) int {
	n := 0
	for _, alerts := range doc.Alerts {
		n += len(alerts)
	}
	return n
}

// Migrate drops unusable records left by older versions and returns how many
// were removed. A store in which no record is readable is left untouched.
func (s *Service) Migrate(ctx context.Context) (int, error) {
	dropped := 0
	err := s.update(ctx, func(doc *types.Document) error {
		total := countAlerts(doc)
		dropped = database.Sanitize(doc)
		if dropped == 0 {
			s.metrics.SetActiveAlerts(total)
			return errUnchanged
		}
		if dropped == total {
			log.Warnf("None of the %d stored alert records is readable, leaving the store untouched.", total)
			dropped = 0
			return errUnchanged
		}
		return nil
	})
	return dropped, err
}

// Add resolves the rule's asset with a live price check and stores a new
// armed rule for chatID.
func (s *Service) Add(ctx context.Context, chatID int64, rule Rule) (types.Alert, error) {
	if _, ok := types.ParseOperator(string(rule.Operator)); !ok {
		return types.Alert{}, &ValidationError{Field: "operator", Value: string(rule.Operator), Err: ErrBadOperator}
	}
	if !rule.Threshold.IsPositive() {
		return types.Alert{}, &ValidationError{Field: "threshold", Value: rule.Threshold.String(), Err: ErrBadThreshold}
	}

	res, err := s.resolver.Resolve(ctx, rule.Query)
	if err != nil {
		return types.Alert{}, err
	}

	var added types.Alert
	err = s.update(ctx, func(doc *types.Document) error {
		alerts := doc.Alerts[chatID]
		a := &types.Alert{
			ID:        types.NextID(alerts),
			Market:    res.Market,
			Code:      res.Code,
			Display:   res.Display,
			Operator:  rule.Operator,
			Threshold: rule.Threshold,
			LastPrice: res.Price,
			CreatedAt: s.now(),
		}
		doc.Alerts[chatID] = append(alerts, a)
		added = *a
		return nil
	})
	if err != nil {
		return types.Alert{}, err
	}

	log.WithFields(log.Fields{
		"chat_id":  chatID,
		"alert_id": added.ID,
		"market":   added.Market,
		"code":     added.Code,
	}).Infof("alert added: %s %s %s", added.Display, added.Operator, added.Threshold)
	return added, nil
}

// List returns chatID's rules in insertion order.
func (s *Service) List(ctx context.Context, chatID int64) ([]types.Alert, error) {
	doc, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	alerts := make([]types.Alert, 0, len(doc.Alerts[chatID]))
	for _, a := range doc.Alerts[chatID] {
		alerts = append(alerts, *a)
	}
	return alerts, nil
}

// Remove deletes one rule immediately, acknowledged or not.
func (s *Service) Remove(ctx context.Context, chatID int64, id int) error {
	err := s.update(ctx, func(doc *types.Document) error {
		alerts := doc.Alerts[chatID]
		for i, a := range alerts {
			if a.ID == id {
				doc.Alerts[chatID] = append(alerts[:i:i], alerts[i+1:]...)
				if len(doc.Alerts[chatID]) == 0 {
					delete(doc.Alerts, chatID)
				}
				return nil
			}
		}
		return errors.Wrapf(ErrAlertNotFound, "#%d", id)
	})
	if err != nil {
		return err
	}
	s.notifier.Cancel(chatID, id)
	return nil
}

// RemoveAll deletes every rule of chatID and returns how many there were.
func (s *Service) RemoveAll(ctx context.Context, chatID int64) (int, error) {
	var ids []int
	err := s.update(ctx, func(doc *types.Document) error {
		for _, a := range doc.Alerts[chatID] {
			ids = append(ids, a.ID)
		}
		if len(ids) == 0 {
			return errUnchanged
		}
		delete(doc.Alerts, chatID)
		return nil
	})
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		s.notifier.Cancel(chatID, id)
	}
	return len(ids), nil
}

func (s *Service) mutate(ctx context.Context, chatID int64, id int, fn func(a *types.Alert)) (types.Alert, error) {
	var out types.Alert
	err := s.update(ctx, func(doc *types.Document) error {
		for _, a := range doc.Alerts[chatID] {
			if a.ID == id {
				fn(a)
				out = *a
				return nil
			}
		}
		return errors.Wrapf(ErrAlertNotFound, "#%d", id)
	})
	return out, err
}

// Acknowledge silences a rule and stops its in-flight burst. Acknowledging
// twice is a no-op.
func (s *Service) Acknowledge(ctx context.Context, chatID int64, id int) (types.Alert, error) {
	a, err := s.mutate(ctx, chatID, id, Acknowledge)
	if err != nil {
		return a, err
	}
	if s.notifier.Cancel(chatID, id) {
		s.metrics.BurstCancelled()
	}
	log.WithFields(log.Fields{"chat_id": chatID, "alert_id": id}).Info("alert acknowledged")
	return a, nil
}

// Unacknowledge re-arms a rule so it fires again on the next tick if its
// condition still holds.
func (s *Service) Unacknowledge(ctx context.Context, chatID int64, id int) (types.Alert, error) {
	a, err := s.mutate(ctx, chatID, id, Unacknowledge)
	if err != nil {
		return a, err
	}
	log.WithFields(log.Fields{"chat_id": chatID, "alert_id": id}).Info("alert unacknowledged")
	return a, nil
}
