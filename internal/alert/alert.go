// Package alert holds threshold rules, evaluates them against live prices
// with hysteresis re-arming and hands firing rules to the notifier.
package alert

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"price-alert-bot/internal/types"
)

// ErrTickSkipped is returned by Tick when the maximum number of ticks is
// already running.
var ErrTickSkipped = errors.New("previous tick still running")

// Pricer returns the last price of an instrument.
type Pricer interface {
	Get(ctx context.Context, m types.Market, code string) (decimal.Decimal, error)
}

// Formatter renders the notification text of a firing rule.
type Formatter func(a types.Alert, price decimal.Decimal) string

func defaultFormat(a types.Alert, price decimal.Decimal) string {
	return fmt.Sprintf("🚨 %s %s %s, price: %s", a.Display, a.Operator, a.Threshold, price)
}

type Options struct {
	Interval           time.Duration
	MaxConcurrentTicks int64
	FetchConcurrency   int
	Policy             Policy
	Format             Formatter
	Now                func() time.Time
}

func (o *Options) setDefaults() {
	if o.Interval <= 0 {
		o.Interval = 10 * time.Second
	}
	if o.MaxConcurrentTicks <= 0 {
		o.MaxConcurrentTicks = 1
	}
	if o.FetchConcurrency <= 0 {
		o.FetchConcurrency = 8
	}
	if o.Policy.Gap.IsZero() {
		o.Policy.Gap = DefaultPolicy.Gap
	}
	if o.Policy.Cooldown <= 0 {
		o.Policy.Cooldown = DefaultPolicy.Cooldown
	}
	if o.Format == nil {
		o.Format = defaultFormat
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Firing is a rule that fired during a tick.
type Firing struct {
	ChatID int64
	Alert  types.Alert
	Price  decimal.Decimal
}

type Engine struct {
	svc    *Service
	prices Pricer
	opts   Options
	ticks  *semaphore.Weighted
}

func NewEngine(svc *Service, prices Pricer, opts Options) *Engine {
	opts.setDefaults()
	return &Engine{
		svc:    svc,
		prices: prices,
		opts:   opts,
		ticks:  semaphore.NewWeighted(opts.MaxConcurrentTicks),
	}
}

// Tick evaluates every rule once. Prices are fetched once per unique
// instrument; a failed fetch skips that instrument's rules. State is saved
// before any burst is started.
func (e *Engine) Tick(ctx context.Context) ([]Firing, error) {
	if !e.ticks.TryAcquire(1) {
		e.svc.metrics.TickSkipped()
		return nil, ErrTickSkipped
	}
	defer e.ticks.Release(1)
	start := time.Now()

	doc, err := e.svc.snapshot(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load alerts")
	}

	groups := make(map[types.Instrument]int)
	for _, alerts := range doc.Alerts {
		for _, a := range alerts {
			groups[a.Instrument()]++
		}
	}

	prices := e.fetch(ctx, groups)
	if len(prices) == 0 {
		e.svc.metrics.TickCompleted(time.Since(start))
		return nil, nil
	}

	now := e.opts.Now()
	var firings []Firing
	err = e.svc.update(ctx, func(doc *types.Document) error {
		firings = firings[:0]
		for chatID, alerts := range doc.Alerts {
			for _, a := range alerts {
				price, ok := prices[a.Instrument()]
				if !ok {
					continue
				}
				if Evaluate(a, price, now, e.opts.Policy) {
					firings = append(firings, Firing{ChatID: chatID, Alert: *a, Price: price})
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "save alerts")
	}

	sort.Slice(firings, func(i, j int) bool {
		if firings[i].ChatID != firings[j].ChatID {
			return firings[i].ChatID < firings[j].ChatID
		}
		return firings[i].Alert.ID < firings[j].Alert.ID
	})
	for _, f := range firings {
		log.WithFields(log.Fields{
			"chat_id":  f.ChatID,
			"alert_id": f.Alert.ID,
			"market":   f.Alert.Market,
			"code":     f.Alert.Code,
			"price":    f.Price,
		}).Info("alert fired")
		e.svc.metrics.AlertFired()
		e.svc.notifier.Deliver(f.ChatID, f.Alert.ID, e.opts.Format(f.Alert, f.Price))
	}

	e.svc.metrics.TickCompleted(time.Since(start))
	log.WithFields(log.Fields{
		"groups":   len(groups),
		"priced":   len(prices),
		"fired":    len(firings),
		"duration": time.Since(start),
	}).Debug("tick complete")
	return firings, nil
}

func (e *Engine) fetch(ctx context.Context, groups map[types.Instrument]int) map[types.Instrument]decimal.Decimal {
	var mu sync.Mutex
	prices := make(map[types.Instrument]decimal.Decimal, len(groups))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.FetchConcurrency)
	for inst, rules := range groups {
		inst, rules := inst, rules
		g.Go(func() error {
			price, err := e.prices.Get(gctx, inst.Market, inst.Code)
			if err != nil {
				log.WithFields(log.Fields{
					"market": inst.Market,
					"code":   inst.Code,
					"rules":  rules,
				}).Warnf("price unavailable, skipping group: %v", err)
				return nil
			}
			mu.Lock()
			prices[inst] = price
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	return prices
}

// Run ticks every interval until ctx is cancelled, then waits for running
// ticks to finish.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.opts.Interval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	log.Infof("Alert engine started, checking every %s.", e.opts.Interval)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			wg.Add(1)
			go func() {
				defer wg.Done()
				e.runTick(ctx)
			}()
		}
	}
}

func (e *Engine) runTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			stack := make([]byte, 4096)
			stack = stack[:runtime.Stack(stack, false)]
			log.Errorf("Recovered from panic in alert tick: %v\nStack trace: %s", r, stack)
		}
	}()

	if _, err := e.Tick(ctx); errors.Is(err, ErrTickSkipped) {
		log.Warn("alert tick skipped, previous tick still running")
	} else if err != nil && ctx.Err() == nil {
		log.Errorf("alert tick failed: %v", err)
	}
}
