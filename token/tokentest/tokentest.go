// Package tokentest provides an in-memory token.Exchanger for tests.
package tokentest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/svcauth/go-svcauth/token"
)

// Exchanger issues sequential tokens ("token-1", "token-2", ...) valid for
// ExpiresIn, and records every assertion it receives.
type Exchanger struct {
	Clock     clockwork.Clock
	ExpiresIn time.Duration

	// Err, when set, is returned by every exchange.
	Err error

	// Gate, when set, makes each exchange wait until it is closed or receives.
	Gate chan struct{}

	mu         sync.Mutex
	calls      int
	assertions []string
}

// NewExchanger returns an Exchanger issuing tokens valid for expiresIn.
func NewExchanger(clock clockwork.Clock, expiresIn time.Duration) *Exchanger {
	return &Exchanger{Clock: clock, ExpiresIn: expiresIn}
}

// Exchange implements token.Exchanger.
func (e *Exchanger) Exchange(ctx context.Context, assertion string) (*token.Token, error) {
	if e.Gate != nil {
		select {
		case <-e.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.calls++
	e.assertions = append(e.assertions, assertion)
	if e.Err != nil {
		return nil, e.Err
	}

	return &token.Token{
		AccessToken: fmt.Sprintf("token-%d", e.calls),
		TokenType:   "Bearer",
		ExpiresAt:   e.Clock.Now().Add(e.ExpiresIn),
	}, nil
}

// Calls returns how many exchanges were attempted.
func (e *Exchanger) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// Assertions returns the assertions received so far.
func (e *Exchanger) Assertions() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.assertions...)
}

// SetErr changes the error returned by subsequent exchanges.
func (e *Exchanger) SetErr(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Err = err
}
