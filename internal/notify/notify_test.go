package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"price-alert-bot/internal/metrics"
)

type sent struct {
	chatID  int64
	text    string
	control *AckControl
	at      time.Time
}

type fakeTransport struct {
	mu    sync.Mutex
	sends []sent
	calls int
	// fail returns the error for the n-th call (1-based); nil means success.
	fail func(call int) error
}

func (f *fakeTransport) Send(ctx context.Context, chatID int64, text string, control *AckControl) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail != nil {
		if err := f.fail(f.calls); err != nil {
			return err
		}
	}
	f.sends = append(f.sends, sent{chatID, text, control, time.Now()})
	return nil
}

func (f *fakeTransport) snapshot() ([]sent, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.sends...), f.calls
}

func testOptions() Options {
	return Options{
		Repeat:      10,
		Gap:         5 * time.Millisecond,
		MaxAttempts: 4,
		RetryPad:    time.Millisecond,
		RetryPause:  2 * time.Millisecond,
		SendRate:    10000,
	}
}

func TestBurst(t *testing.T) {
	tr := &fakeTransport{}
	m := metrics.New(prometheus.NewRegistry())
	n := New(tr, testOptions(), m)
	defer n.Close()

	b := n.Start(42, 7, "🚨 BTCUSDT (Binance) >= 70000")
	b.Wait()

	sends, _ := tr.snapshot()
	require.Len(t, sends, 10)
	require.NotNil(t, sends[0].control)
	assert.Equal(t, "ack:7", sends[0].control.AckData())
	assert.Equal(t, "unack:7", sends[0].control.UnackData())
	for i, s := range sends {
		assert.Equal(t, int64(42), s.chatID)
		assert.Equal(t, "🚨 BTCUSDT (Binance) >= 70000", s.text)
		if i > 0 {
			assert.Nil(t, s.control, "only the first message carries the control")
			assert.GreaterOrEqual(t, s.at.Sub(sends[i-1].at), 5*time.Millisecond)
		}
	}
	assert.Equal(t, 10, b.Sent())
	assert.Equal(t, 10.0, metrics.Value(m.MessagesSent))
	assert.False(t, n.Cancel(42, 7), "finished bursts are forgotten")
}

func TestSendRetriesRateLimit(t *testing.T) {
	tr := &fakeTransport{fail: func(call int) error {
		if call <= 2 {
			return &TransportError{Err: errors.New("Too Many Requests"), RetryAfter: 3 * time.Millisecond}
		}
		return nil
	}}
	opts := testOptions()
	opts.Repeat = 1
	n := New(tr, opts, nil)
	defer n.Close()

	start := time.Now()
	b := n.Start(1, 1, "x")
	b.Wait()

	_, calls := tr.snapshot()
	assert.Equal(t, 3, calls)
	assert.Equal(t, 1, b.Sent())
	assert.GreaterOrEqual(t, time.Since(start), 2*(3*time.Millisecond+time.Millisecond))
}

func TestSendGivesUpAfterMaxAttempts(t *testing.T) {
	tr := &fakeTransport{fail: func(call int) error {
		if call <= 4 {
			return &TransportError{Err: errors.New("i/o timeout"), Temporary: true}
		}
		return nil
	}}
	opts := testOptions()
	opts.Repeat = 2
	m := metrics.New(prometheus.NewRegistry())
	n := New(tr, opts, m)
	defer n.Close()

	b := n.Start(1, 1, "x")
	b.Wait()

	sends, calls := tr.snapshot()
	assert.Equal(t, 5, calls, "4 attempts for the first message, 1 for the second")
	require.Len(t, sends, 1)
	assert.Nil(t, sends[0].control, "the dropped first message is not resent with its control")
	assert.Equal(t, 1, b.Dropped())
	assert.Equal(t, 1, b.Sent())
	assert.Equal(t, 1.0, metrics.Value(m.MessagesDropped))
}

func TestPermanentErrorIsNotRetried(t *testing.T) {
	tr := &fakeTransport{fail: func(call int) error {
		return &TransportError{Err: errors.New("Forbidden: bot was blocked by the user")}
	}}
	n := New(tr, testOptions(), nil)
	defer n.Close()

	b := n.Start(1, 1, "x")
	b.Wait()

	_, calls := tr.snapshot()
	assert.Equal(t, 10, calls, "one attempt per message, burst continues")
	assert.Equal(t, 10, b.Dropped())
}

func TestCancelStopsBurst(t *testing.T) {
	tr := &fakeTransport{}
	opts := testOptions()
	opts.Gap = time.Hour
	n := New(tr, opts, nil)
	defer n.Close()

	b := n.Start(42, 3, "x")
	require.Eventually(t, func() bool { return b.Sent() == 1 }, time.Second, time.Millisecond)

	assert.True(t, n.Cancel(42, 3))
	select {
	case <-b.Done():
	case <-time.After(time.Second):
		t.Fatal("burst did not stop after cancel")
	}
	assert.Equal(t, 1, b.Sent())
	assert.False(t, n.Cancel(42, 3))
}

func TestStartReplacesRunningBurst(t *testing.T) {
	tr := &fakeTransport{}
	opts := testOptions()
	opts.Gap = time.Hour
	n := New(tr, opts, nil)
	defer n.Close()

	first := n.Start(42, 3, "first")
	second := n.Start(42, 3, "second")
	first.Wait()
	assert.NotEqual(t, first.ID, second.ID)

	require.Eventually(t, func() bool { return second.Sent() == 1 }, time.Second, time.Millisecond)
	assert.True(t, n.Cancel(42, 3))
	second.Wait()
}

func TestCloseWaitsForBursts(t *testing.T) {
	tr := &fakeTransport{}
	opts := testOptions()
	opts.Gap = time.Hour
	n := New(tr, opts, nil)

	bursts := []*Burst{n.Start(1, 1, "a"), n.Start(2, 1, "b"), n.Start(1, 2, "c")}
	n.Close()
	for _, b := range bursts {
		select {
		case <-b.Done():
		default:
			t.Fatalf("burst %s still running after Close", b.ID)
		}
	}
}

func TestParseCallback(t *testing.T) {
	action, id, ok := ParseCallback("ack:12")
	require.True(t, ok)
	assert.Equal(t, ActionAck, action)
	assert.Equal(t, 12, id)

	action, id, ok = ParseCallback("unack:3")
	require.True(t, ok)
	assert.Equal(t, ActionUnack, action)
	assert.Equal(t, 3, id)

	for _, data := range []string{"", "ack:", "ack:x", "mute:1", "ack:0", "ack:1:2"} {
		_, _, ok := ParseCallback(data)
		assert.False(t, ok, data)
	}
}
