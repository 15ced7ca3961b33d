// Package bus distributes ticks from the single ingest writer to multiple
// consumers. The candle builder subscribes as a must-consume reader; fan-out
// and diagnostics subscribe best-effort and lose the oldest tick under
// pressure. Ordering is preserved within a symbol because there is exactly
// one writer and one channel per subscriber.
package bus

import (
	"context"
	"sync"

	"marketpulse/internal/model"
)

type subscriber struct {
	name       string
	ch         chan model.Tick
	bestEffort bool
}

// Bus is the per-process tick distribution point.
type Bus struct {
	mu   sync.RWMutex
	subs []*subscriber

	// OnDrop is called with the subscriber name when a best-effort
	// consumer loses a tick (optional, metrics hook).
	OnDrop func(name string)
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{}
}

// Subscribe registers a must-consume reader. Publish blocks on its channel,
// so the buffer should be generous and the reader prompt.
func (b *Bus) Subscribe(name string, buf int) <-chan model.Tick {
	return b.add(name, buf, false)
}

// SubscribeBestEffort registers a lossy reader: when its buffer is full the
// oldest queued tick is discarded to make room.
func (b *Bus) SubscribeBestEffort(name string, buf int) <-chan model.Tick {
	return b.add(name, buf, true)
}

func (b *Bus) add(name string, buf int, bestEffort bool) <-chan model.Tick {
	if buf <= 0 {
		buf = 1024
	}
	s := &subscriber{name: name, ch: make(chan model.Tick, buf), bestEffort: bestEffort}
	b.mu.Lock()
	b.subs = append(b.subs, s)
	b.mu.Unlock()
	return s.ch
}

// Publish delivers one tick to every subscriber. Must only be called from
// the single ingest writer goroutine.
func (b *Bus) Publish(ctx context.Context, t model.Tick) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if s.bestEffort {
			select {
			case s.ch <- t:
			default:
				// Full: drop the oldest queued tick, then retry once.
				select {
				case <-s.ch:
				default:
				}
				select {
				case s.ch <- t:
				default:
				}
				if b.OnDrop != nil {
					b.OnDrop(s.name)
				}
			}
			continue
		}
		select {
		case s.ch <- t:
		case <-ctx.Done():
			return
		}
	}
}

// Close closes all subscriber channels. Call only after the writer stopped.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs {
		close(s.ch)
	}
	b.subs = nil
}

// Stats returns (len, cap) per subscriber for diagnostics.
type Stat struct {
	Name string
	Len  int
	Cap  int
}

func (b *Bus) Stats() []Stat {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Stat, len(b.subs))
	for i, s := range b.subs {
		out[i] = Stat{Name: s.name, Len: len(s.ch), Cap: cap(s.ch)}
	}
	return out
}
