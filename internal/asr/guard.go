package asr

import (
	"context"
	"tgisper/pkg/resilience"
)

type guarded struct {
	next    Transcriber
	breaker *resilience.CircuitBreaker
}

// Guard fails fast with resilience.ErrCircuitOpen while the wrapped engine
// keeps failing. A failed call is never repeated.
func Guard(t Transcriber, cb *resilience.CircuitBreaker) Transcriber {
	if cb == nil {
		return t
	}
	return &guarded{next: t, breaker: cb}
}

func (g *guarded) Transcribe(ctx context.Context, waveform []float32) (*Result, error) {
	var result *Result
	err := g.breaker.Execute(func() error {
		var err error
		result, err = g.next.Transcribe(ctx, waveform)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
