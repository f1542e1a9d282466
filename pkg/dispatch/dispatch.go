// Package dispatch runs listener notifications on a single goroutine, in
// the order they were posted.
package dispatch

import (
	"context"
	"sync"
	"time"
)

// Poster runs a func on the notification goroutine
type Poster interface {
	Post(fn func())
}

// Inline runs posted funcs on the calling goroutine
type Inline struct{}

func (Inline) Post(fn func()) { fn() }

// Loop is a single-goroutine queue of funcs
type Loop struct {
	queue  chan func()
	done   chan struct{}
	once   sync.Once
	closed chan struct{}
}

// NewLoop creates a loop with the given queue capacity. Call Run to start
// draining it.
func NewLoop(buf int) *Loop {
	if buf < 1 {
		buf = 1
	}
	return &Loop{
		queue:  make(chan func(), buf),
		done:   make(chan struct{}),
		closed: make(chan struct{}),
	}
}

// Post queues fn. It blocks while the queue is full and drops fn once the
// loop is closed.
func (l *Loop) Post(fn func()) {
	select {
	case <-l.closed:
		return
	default:
	}
	select {
	case l.queue <- fn:
	case <-l.closed:
	}
}

// Run drains the queue until ctx is done or Close is called. Funcs already
// queued when Close is called still run.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)
	for {
		select {
		case fn := <-l.queue:
			fn()
		case <-ctx.Done():
			return
		case <-l.closed:
			for {
				select {
				case fn := <-l.queue:
					fn()
				default:
					return
				}
			}
		}
	}
}

// Start runs the loop on a new goroutine
func (l *Loop) Start(ctx context.Context) *Loop {
	go l.Run(ctx)
	return l
}

// Close stops accepting funcs and waits for Run to return
func (l *Loop) Close() {
	l.once.Do(func() { close(l.closed) })
	<-l.done
}

// Sync blocks until every func posted before it has run
func Sync(p Poster) {
	ch := make(chan struct{})
	p.Post(func() { close(ch) })
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
	}
}

// After posts fn once d has elapsed. The returned func cancels it if it
// has not fired yet and reports whether it did so.
func After(p Poster, d time.Duration, fn func()) (stop func() bool) {
	t := time.AfterFunc(d, func() { p.Post(fn) })
	return t.Stop
}
