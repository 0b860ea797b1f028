package broadcaster

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/arkose-id/idalloc/internal/idtypes"
)

// ErrClosed indicates Submit was called after Close. (Ranges called
// after Close returns an already-closed channel instead.)
var ErrClosed = errors.New("broadcaster: closed")

const submitChSize = 256

// Local is an in-process Broadcaster: a single goroutine reads every
// Submit off one channel and assigns it the next sequence number, then
// fans the resulting envelope out to every subscriber. This gives every
// subscriber the same total order without any cross-process transport,
// which is exactly the property a production total-order broadcast
// service is responsible for providing instead.
type Local struct {
	submitCh chan idtypes.IdRange
	logger   *slog.Logger

	mu          sync.Mutex
	subscribers map[chan Envelope]struct{}
	nextSeq     uint64
	closed      bool
	done        chan struct{}
}

// NewLocal starts a Local broadcaster's dispatch goroutine and returns it.
func NewLocal(logger *slog.Logger) *Local {
	l := &Local{
		submitCh:    make(chan idtypes.IdRange, submitChSize),
		logger:      logger.With(slog.String("component", "broadcaster.local")),
		subscribers: make(map[chan Envelope]struct{}),
		done:        make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Local) run() {
	for r := range l.submitCh {
		l.mu.Lock()
		envelope := Envelope{Sequence: l.nextSeq, Range: r}
		l.nextSeq++
		subs := make([]chan Envelope, 0, len(l.subscribers))
		for ch := range l.subscribers {
			subs = append(subs, ch)
		}
		l.mu.Unlock()

		for _, ch := range subs {
			select {
			case ch <- envelope:
			default:
				l.logger.Warn("subscriber channel full, dropping envelope",
					slog.Uint64("sequence", envelope.Sequence))
			}
		}
	}
	close(l.done)
}

// Submit enqueues r for assignment of the next global sequence number.
// Submit does not block on subscriber delivery; a slow subscriber can
// only ever drop its own envelopes (logged), never backpressure other
// subscribers or submitters.
func (l *Local) Submit(ctx context.Context, _ idtypes.SessionId, r idtypes.IdRange) error {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return ErrClosed
	}
	select {
	case l.submitCh <- r:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ranges returns a new subscriber channel. The channel is closed when
// ctx is cancelled or the broadcaster is closed, whichever comes first.
func (l *Local) Ranges(ctx context.Context) <-chan Envelope {
	ch := make(chan Envelope, submitChSize)

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		close(ch)
		return ch
	}
	l.subscribers[ch] = struct{}{}
	l.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-l.done:
		}
		l.mu.Lock()
		delete(l.subscribers, ch)
		l.mu.Unlock()
		close(ch)
	}()

	return ch
}

// Close stops accepting submissions and terminates the dispatch
// goroutine, closing every subscriber channel.
func (l *Local) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()
	close(l.submitCh)
	<-l.done
	return nil
}
