// Package worker implements the per-session execution context: a dedicated
// goroutine with its own inbox on which all of one session's events are
// processed, one at a time, in arrival order.
package worker

import (
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// ErrStartTimeout is returned by Start when the worker goroutine does not
// report ready within the allotted time.
var ErrStartTimeout = errors.New("execution context did not become ready")

// ErrAlreadyStarted is returned by a second Start call.
var ErrAlreadyStarted = errors.New("execution context already started")

// State is the lifecycle state of a Loop.
type State int32

const (
	Created State = iota
	Starting
	Running
	Stopping
	Terminated
)

var stateNames = map[State]string{
	Created:    "created",
	Starting:   "starting",
	Running:    "running",
	Stopping:   "stopping",
	Terminated: "terminated",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

// Loop is an execution context processing events of type T on its own
// goroutine. Created -> Starting (Start) -> Running (worker ready) ->
// Stopping (Stop) -> Terminated (worker exited).
type Loop[T any] struct {
	name    string
	handler func(T)

	inbox chan T
	ready chan struct{}
	quit  chan struct{}
	done  chan struct{}

	state    atomic.Int32
	quitOnce sync.Once
	dropped  atomic.Int64

	beforeReady func() // test hook
}

// New creates a Loop that calls handler for every posted event. inboxSize
// bounds the number of queued events; Post rejects events beyond it.
func New[T any](name string, inboxSize int, handler func(T)) *Loop[T] {
	if inboxSize < 1 {
		inboxSize = 1
	}
	return &Loop[T]{
		name:    name,
		handler: handler,
		inbox:   make(chan T, inboxSize),
		ready:   make(chan struct{}),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start spawns the worker goroutine and blocks until it is running or the
// timeout elapses. On timeout the loop is told to stop and ErrStartTimeout
// is returned. A timeout <= 0 waits without bound.
func (l *Loop[T]) Start(timeout time.Duration) error {
	if !l.state.CompareAndSwap(int32(Created), int32(Starting)) {
		return ErrAlreadyStarted
	}

	begin := time.Now()
	go l.run()

	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}

	select {
	case <-l.ready:
		log.Printf("[worker %s] ready in %v", l.name, time.Since(begin))
		return nil
	case <-l.done:
		return fmt.Errorf("%s: stopped before becoming ready", l.name)
	case <-expired:
		l.Stop()
		return fmt.Errorf("%s after %v: %w", l.name, timeout, ErrStartTimeout)
	}
}

// Stop asks the worker to quit and returns without waiting for it to exit.
// Events still queued are discarded. Safe to call multiple times and before
// Start.
func (l *Loop[T]) Stop() {
	l.quitOnce.Do(func() {
		for {
			cur := State(l.state.Load())
			if cur == Terminated {
				break
			}
			if cur == Created {
				// Never started: nothing will close done for us.
				if l.state.CompareAndSwap(int32(Created), int32(Terminated)) {
					close(l.done)
					break
				}
				continue
			}
			if l.state.CompareAndSwap(int32(cur), int32(Stopping)) {
				break
			}
		}
		close(l.quit)
	})
}

// Post queues ev for the worker without blocking. It returns false and
// counts the event as dropped if the loop is stopping or stopped, or if the
// inbox is full. Post never panics.
func (l *Loop[T]) Post(ev T) bool {
	select {
	case <-l.quit:
		l.dropped.Add(1)
		return false
	default:
	}
	select {
	case l.inbox <- ev:
		return true
	default:
		l.dropped.Add(1)
		return false
	}
}

// State returns the current lifecycle state.
func (l *Loop[T]) State() State {
	return State(l.state.Load())
}

// Done is closed once the worker goroutine has exited.
func (l *Loop[T]) Done() <-chan struct{} {
	return l.done
}

// Dropped returns the number of events Post rejected.
func (l *Loop[T]) Dropped() int64 {
	return l.dropped.Load()
}

func (l *Loop[T]) run() {
	defer func() {
		l.state.Store(int32(Terminated))
		close(l.done)
	}()

	if l.beforeReady != nil {
		l.beforeReady()
	}
	// Stop may have raced ahead of the goroutine; never report ready then.
	if !l.state.CompareAndSwap(int32(Starting), int32(Running)) {
		return
	}
	close(l.ready)

	for {
		// Prefer quit over pending events so a stopped session never
		// forwards anything after Stop returned.
		select {
		case <-l.quit:
			return
		default:
		}
		select {
		case <-l.quit:
			return
		case ev := <-l.inbox:
			l.dispatch(ev)
		}
	}
}

func (l *Loop[T]) dispatch(ev T) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[worker %s] recovered panic in handler: %v\n%s", l.name, r, debug.Stack())
		}
	}()
	l.handler(ev)
}
