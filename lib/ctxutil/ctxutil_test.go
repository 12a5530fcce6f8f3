// Copyright (c) 2023 BVK Chaitanya

package ctxutil

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSleep(t *testing.T) {
	assert.True(t, Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	assert.False(t, Sleep(ctx, time.Hour))
	assert.Less(t, time.Since(start), time.Second)
}

func TestCloseGroup(t *testing.T) {
	var cg CloseGroup
	var finished int32
	for i := 0; i < 3; i++ {
		cg.Go(func(ctx context.Context) {
			<-ctx.Done()
			atomic.AddInt32(&finished, 1)
		})
	}
	cg.Close()
	assert.EqualValues(t, 3, atomic.LoadInt32(&finished))
	assert.True(t, errors.Is(context.Cause(cg.Context()), os.ErrClosed))
}
