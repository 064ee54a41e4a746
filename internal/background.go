// Copyright (c) Neurosense Labs.
// Licensed under the MIT License.
package internal

import (
	"context"
	"sync"
)

// Background abstracts the concept of a long-running background process,
// which contexts may need to tie to. Closing it releases every goroutine
// and context derived from it, which is how Disconnect guarantees that no
// stale probe or reconnect timer can outlive the connection that spawned it.
type Background struct {
	err   error
	done  chan struct{}
	close func()
}

func NewBackground(err error) *Background {
	done := make(chan struct{})
	return &Background{err, done, sync.OnceFunc(func() { close(done) })}
}

func (b *Background) With(
	ctx context.Context,
) (context.Context, context.CancelFunc) {
	c, cancel := context.WithCancelCause(ctx)
	go func() {
		select {
		case <-b.done:
			cancel(b.err)
		case <-c.Done():
		}
	}()
	return c, func() { cancel(context.Canceled) }
}

func (b *Background) Close() {
	b.close()
}

func (b *Background) Done() <-chan struct{} {
	return b.done
}
