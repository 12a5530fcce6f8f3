// Package notify delivers repeated alert notifications ("bursts") with an
// acknowledgement control attached to the first message.
package notify

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"price-alert-bot/internal/metrics"
	"price-alert-bot/lib/ctxutil"
)

const (
	ActionAck   = "ack"
	ActionUnack = "unack"
)

// AckControl is the inline acknowledge/un-acknowledge control of a rule.
type AckControl struct {
	RuleID int
}

func (c *AckControl) AckData() string {
	return fmt.Sprintf("%s:%d", ActionAck, c.RuleID)
}

func (c *AckControl) UnackData() string {
	return fmt.Sprintf("%s:%d", ActionUnack, c.RuleID)
}

var callbackPattern = regexp.MustCompile(`^(ack|unack):(\d+)$`)

// ParseCallback decodes the payload of an activated control.
func ParseCallback(data string) (action string, ruleID int, ok bool) {
	m := callbackPattern.FindStringSubmatch(data)
	if m == nil {
		return "", 0, false
	}
	id, err := strconv.Atoi(m[2])
	if err != nil || id <= 0 {
		return "", 0, false
	}
	return m[1], id, true
}

// Transport sends one message. control is nil for plain messages.
type Transport interface {
	Send(ctx context.Context, chatID int64, text string, control *AckControl) error
}

// TransportError is a failed send. RetryAfter is the wait advised by the
// server; Temporary marks timeouts and network errors.
type TransportError struct {
	Err        error
	RetryAfter time.Duration
	Temporary  bool
}

func (e *TransportError) Error() string {
	switch {
	case e.RetryAfter > 0:
		return fmt.Sprintf("transport: rate limited, retry after %s: %v", e.RetryAfter, e.Err)
	case e.Temporary:
		return fmt.Sprintf("transport: temporary failure: %v", e.Err)
	}
	return fmt.Sprintf("transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

type Options struct {
	// Repeat is the total number of messages per burst.
	Repeat int
	// Gap is the pause between messages of a burst.
	Gap time.Duration
	// MaxAttempts bounds the sends of one message.
	MaxAttempts int
	// RetryPad is added to a server advised retry-after.
	RetryPad time.Duration
	// RetryPause is the wait after a timeout or network error.
	RetryPause time.Duration
	// SendRate caps messages per second across all bursts.
	SendRate float64
}

func (o *Options) setDefaults() {
	if o.Repeat <= 0 {
		o.Repeat = 10
	}
	if o.Gap < 0 {
		o.Gap = 0
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 4
	}
	if o.RetryPad <= 0 {
		o.RetryPad = 700 * time.Millisecond
	}
	if o.RetryPause <= 0 {
		o.RetryPause = 1500 * time.Millisecond
	}
	if o.SendRate <= 0 {
		o.SendRate = 25
	}
}

// DefaultOptions sends 10 messages 2s apart.
func DefaultOptions() Options {
	o := Options{Gap: 2 * time.Second}
	o.setDefaults()
	return o
}

type burstKey struct {
	chatID int64
	ruleID int
}

// Burst is one in-flight notification sequence.
type Burst struct {
	ID     uuid.UUID
	ChatID int64
	RuleID int

	sent    int32
	dropped int32
	cancel  context.CancelFunc
	done    chan struct{}
}

// Wait blocks until the burst has finished or was cancelled.
func (b *Burst) Wait() {
	<-b.done
}

func (b *Burst) Done() <-chan struct{} {
	return b.done
}

func (b *Burst) Sent() int {
	return int(atomic.LoadInt32(&b.sent))
}

func (b *Burst) Dropped() int {
	return int(atomic.LoadInt32(&b.dropped))
}

type Notifier struct {
	transport Transport
	opts      Options
	limiter   *rate.Limiter
	metrics   *metrics.Metrics

	mu     sync.Mutex
	bursts map[burstKey]*Burst
	group  ctxutil.CloseGroup
}

func New(transport Transport, opts Options, m *metrics.Metrics) *Notifier {
	opts.setDefaults()
	return &Notifier{
		transport: transport,
		opts:      opts,
		limiter:   rate.NewLimiter(rate.Limit(opts.SendRate), int(opts.SendRate)+1),
		metrics:   m,
		bursts:    make(map[burstKey]*Burst),
	}
}

// Deliver starts a burst without waiting for it.
func (n *Notifier) Deliver(chatID int64, ruleID int, text string) {
	n.Start(chatID, ruleID, text)
}

// Start begins a burst for a rule, replacing any burst still running for it.
// The first message carries the acknowledgement control.
func (n *Notifier) Start(chatID int64, ruleID int, text string) *Burst {
	ctx, cancel := context.WithCancel(n.group.Context())
	b := &Burst{
		ID:     uuid.New(),
		ChatID: chatID,
		RuleID: ruleID,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	key := burstKey{chatID, ruleID}
	n.mu.Lock()
	if prev, ok := n.bursts[key]; ok {
		prev.cancel()
	}
	n.bursts[key] = b
	n.mu.Unlock()

	n.group.Go(func(context.Context) {
		defer close(b.done)
		defer cancel()
		defer n.forget(key, b)
		n.run(ctx, b, text)
	})
	return b
}

func (n *Notifier) forget(key burstKey, b *Burst) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.bursts[key] == b {
		delete(n.bursts, key)
	}
}

// Cancel stops the remaining messages of a rule's burst. It reports whether
// a burst was running. Messages already handed to the transport may still
// arrive.
func (n *Notifier) Cancel(chatID int64, ruleID int) bool {
	n.mu.Lock()
	b, ok := n.bursts[burstKey{chatID, ruleID}]
	n.mu.Unlock()
	if ok {
		b.cancel()
	}
	return ok
}

// Close cancels every burst and waits for them to stop.
func (n *Notifier) Close() {
	n.group.Close()
}

func (n *Notifier) run(ctx context.Context, b *Burst, text string) {
	logger := log.WithFields(log.Fields{
		"burst":    b.ID,
		"chat_id":  b.ChatID,
		"alert_id": b.RuleID,
	})
	logger.Debug("burst started")

	for i := 0; i < n.opts.Repeat; i++ {
		if i > 0 && !ctxutil.Sleep(ctx, n.opts.Gap) {
			break
		}

		var control *AckControl
		if i == 0 {
			control = &AckControl{RuleID: b.RuleID}
		}
		err := n.send(ctx, b.ChatID, text, control)
		if ctx.Err() != nil {
			break
		}
		if err != nil {
			atomic.AddInt32(&b.dropped, 1)
			n.metrics.MessageDelivered(false)
			logger.Warnf("message %d/%d dropped: %v", i+1, n.opts.Repeat, err)
			continue
		}
		atomic.AddInt32(&b.sent, 1)
		n.metrics.MessageDelivered(true)
	}

	if ctx.Err() != nil {
		logger.WithField("sent", b.Sent()).Info("burst cancelled")
		return
	}
	logger.WithFields(log.Fields{"sent": b.Sent(), "dropped": b.Dropped()}).Debug("burst finished")
}

// send retries one message on rate limiting and temporary failures.
func (n *Notifier) send(ctx context.Context, chatID int64, text string, control *AckControl) error {
	var err error
	for attempt := 1; attempt <= n.opts.MaxAttempts; attempt++ {
		if werr := n.limiter.Wait(ctx); werr != nil {
			return werr
		}
		if err = n.transport.Send(ctx, chatID, text, control); err == nil {
			return nil
		}

		var terr *TransportError
		if !errors.As(err, &terr) || (terr.RetryAfter <= 0 && !terr.Temporary) {
			return err
		}
		if attempt == n.opts.MaxAttempts {
			break
		}

		pause := n.opts.RetryPause
		if terr.RetryAfter > 0 {
			pause = terr.RetryAfter + n.opts.RetryPad
		}
		log.WithFields(log.Fields{"chat_id": chatID, "attempt": attempt}).Debugf("send failed, retrying in %s: %v", pause, err)
		if !ctxutil.Sleep(ctx, pause) {
			return ctx.Err()
		}
	}
	return errors.Wrapf(err, "giving up after %d attempts", n.opts.MaxAttempts)
}
