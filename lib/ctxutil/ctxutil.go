// Copyright (c) 2023 BVK Chaitanya

package ctxutil

import (
	"context"
	"os"
	"sync"
	"time"
)

// Sleep pauses for d. It returns false when ctx is cancelled first.
func Sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// CloseGroup runs goroutines bound to one lifetime context. Close cancels
// that context and waits for every goroutine started with Go.
type CloseGroup struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
	wg     sync.WaitGroup
	once   sync.Once
}

func (cg *CloseGroup) init() {
	cg.ctx, cg.cancel = context.WithCancelCause(context.Background())
}

func (cg *CloseGroup) Context() context.Context {
	cg.once.Do(cg.init)
	return cg.ctx
}

func (cg *CloseGroup) Go(f func(ctx context.Context)) {
	cg.once.Do(cg.init)
	cg.wg.Add(1)
	go func() {
		defer cg.wg.Done()
		f(cg.ctx)
	}()
}

func (cg *CloseGroup) Close() {
	cg.once.Do(cg.init)
	cg.cancel(os.ErrClosed)
	cg.wg.Wait()
}
