// Package gateway abstracts the external card processor. Every call carries
// an idempotency key so the processor deduplicates retries on its side,
// independent of the processed-event ledger.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrPaymentDeclined = errors.New("payment declined by gateway")

type Gateway interface {
	// PreAuthorize places a hold on the funds and returns the gateway's
	// reference for it.
	PreAuthorize(ctx context.Context, idempotencyKey string, amount float64) (string, error)
	// Capture settles a previously placed hold.
	Capture(ctx context.Context, idempotencyKey, gatewayRef string, amount float64) error
	// Void releases a hold without settling it.
	Void(ctx context.Context, gatewayRef string) error
}

type cachedResult struct {
	ref string
	err error
}

// FakeStripe simulates a card processor: per-key idempotency caching, a
// little latency, and configurable decline rates. Rates are fixed at
// construction; 0 gives a processor that always approves.
type FakeStripe struct {
	mu                 sync.Mutex
	results            map[string]cachedResult
	preAuthFailureRate float64
	captureFailureRate float64
	latency            time.Duration
	rng                *rand.Rand
}

func NewFakeStripe(preAuthFailureRate, captureFailureRate float64, latency time.Duration) *FakeStripe {
	return &FakeStripe{
		results:            make(map[string]cachedResult),
		preAuthFailureRate: preAuthFailureRate,
		captureFailureRate: captureFailureRate,
		latency:            latency,
		rng:                rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (g *FakeStripe) PreAuthorize(ctx context.Context, idempotencyKey string, amount float64) (string, error) {
	if err := g.simulateLatency(ctx); err != nil {
		return "", err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if cached, ok := g.results[idempotencyKey]; ok {
		return cached.ref, cached.err
	}

	var result cachedResult
	if g.rng.Float64() < g.preAuthFailureRate {
		result = cachedResult{err: fmt.Errorf("%w: insufficient funds", ErrPaymentDeclined)}
	} else {
		result = cachedResult{ref: "pa_" + uuid.New().String()}
	}
	g.results[idempotencyKey] = result
	return result.ref, result.err
}

func (g *FakeStripe) Capture(ctx context.Context, idempotencyKey, gatewayRef string, amount float64) error {
	if err := g.simulateLatency(ctx); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if cached, ok := g.results[idempotencyKey]; ok {
		return cached.err
	}

	var result cachedResult
	if g.rng.Float64() < g.captureFailureRate {
		result = cachedResult{err: fmt.Errorf("%w: card expired before capture", ErrPaymentDeclined)}
	} else {
		result = cachedResult{ref: gatewayRef}
	}
	g.results[idempotencyKey] = result
	return result.err
}

func (g *FakeStripe) Void(ctx context.Context, gatewayRef string) error {
	if err := g.simulateLatency(ctx); err != nil {
		return err
	}
	// Voiding an unknown or already-voided hold is a no-op, matching real
	// processors' tolerant void semantics.
	return nil
}

func (g *FakeStripe) simulateLatency(ctx context.Context) error {
	if g.latency <= 0 {
		return nil
	}
	select {
	case <-time.After(g.latency):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
