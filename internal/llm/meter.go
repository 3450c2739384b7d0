package llm

import (
	"context"
	"iter"
	"sync"
)

// Meter accumulates token usage across every model call made on behalf of a
// single request, including calls made inside store gateways.
type Meter struct {
	mu    sync.Mutex
	usage Usage
	calls int
}

// Record adds usage from one finished call. A nil meter ignores the call.
func (m *Meter) Record(u Usage) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage = m.usage.Add(u)
	m.calls++
}

// Usage returns the accumulated totals.
func (m *Meter) Usage() Usage {
	if m == nil {
		return Usage{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usage
}

// Calls returns how many calls were recorded.
func (m *Meter) Calls() int {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type meterKey struct{}

// WithMeter returns a context carrying m.
func WithMeter(ctx context.Context, m *Meter) context.Context {
	return context.WithValue(ctx, meterKey{}, m)
}

// MeterFrom returns the meter stored in ctx, or nil.
func MeterFrom(ctx context.Context) *Meter {
	m, _ := ctx.Value(meterKey{}).(*Meter)
	return m
}

type tracked struct {
	next Generator
}

// Track wraps g so that every successful call records its usage into the
// meter found in the call context. Wrapping twice has no extra effect.
func Track(g Generator) Generator {
	if g == nil {
		return nil
	}
	if _, ok := g.(*tracked); ok {
		return g
	}
	return &tracked{next: g}
}

func (t *tracked) Generate(ctx context.Context, req *Request) (*Response, error) {
	resp, err := t.next.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	MeterFrom(ctx).Record(resp.Usage)
	return resp, nil
}

func (t *tracked) Stream(ctx context.Context, req *Request) iter.Seq2[*Chunk, error] {
	return func(yield func(*Chunk, error) bool) {
		var usage Usage
		for chunk, err := range t.next.Stream(ctx, req) {
			if err != nil {
				yield(nil, err)
				return
			}
			if chunk.Usage != nil {
				usage = *chunk.Usage
			}
			if !yield(chunk, nil) {
				return
			}
		}
		MeterFrom(ctx).Record(usage)
	}
}
