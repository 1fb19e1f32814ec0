package query

import "sync"

// Dispatcher runs deliveries. All deliveries of a Controller go through one
// Dispatcher, so subscribers see them on a single logical thread.
type Dispatcher interface {
	Dispatch(fn func())
}

// Inline runs every delivery on the calling goroutine. Tests use it so a
// write has been delivered by the time it returns. A callback must not
// write records its own subscription watches: the nested delivery would
// wait on the one in progress.
type Inline struct{}

func (Inline) Dispatch(fn func()) { fn() }

// Loop runs deliveries one at a time, in order, on its own goroutine.
// Dispatch never blocks: the queue grows as needed.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	signal chan struct{}
	quit   chan struct{}
	done   chan struct{}
	once   sync.Once
}

// NewLoop starts a Loop. Call Close to stop it.
func NewLoop() *Loop {
	l := &Loop{
		signal: make(chan struct{}, 1),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Loop) Dispatch(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.signal <- struct{}{}:
	default:
	}
}

// Close stops the loop after the delivery in progress, if any. Queued
// deliveries are discarded.
func (l *Loop) Close() {
	l.once.Do(func() { close(l.quit) })
	<-l.done
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		select {
		case <-l.quit:
			return
		case <-l.signal:
		}
		for {
			l.mu.Lock()
			if len(l.queue) == 0 {
				l.mu.Unlock()
				break
			}
			fn := l.queue[0]
			l.queue[0] = nil
			l.queue = l.queue[1:]
			l.mu.Unlock()

			select {
			case <-l.quit:
				return
			default:
			}
			fn()
		}
	}
}
