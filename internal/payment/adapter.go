// Package payment drives the service-fee collection flow against the
// payment provider's hosted checkout. A resolved reference only means the
// provider reported a client-side completion; settlement is established
// solely by the backend's verify endpoint.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/google/uuid"
)

// State of a payment attempt.
type State int

const (
	StateIdle State = iota
	StateAwaitingProviderInit
	StateAwaitingUserCompletion
	StateResolved
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingProviderInit:
		return "awaiting_provider_init"
	case StateAwaitingUserCompletion:
		return "awaiting_user_completion"
	case StateResolved:
		return "resolved"
	case StateRejected:
		return "rejected"
	}
	return "unknown"
}

var (
	ErrProviderUnavailable = errors.New("payment provider not available")
	ErrMissingPublicKey    = errors.New("payment provider public key not configured")
	ErrInvalidAmount       = errors.New("payment amount must be a positive number")
	ErrOpenFailed          = errors.New("failed to open payment window")
	ErrWindowClosed        = errors.New("payment window closed before completion")
	ErrMissingReference    = errors.New("payment completion carried no reference")
	ErrPaymentInProgress   = errors.New("a payment attempt is already in progress")
)

// Request is what the checkout capability needs to present the hosted
// payment page. AmountMinor is in the provider's minor currency unit.
type Request struct {
	Key              string
	Email            string
	AmountMinor      int64
	Currency         string
	Reference        string
	AuthorizationURL string
	Metadata         map[string]string
}

// Outcome reports what the user did with the checkout: completed it
// (possibly without a usable reference) or dismissed it.
type Outcome struct {
	Completed bool
	Reference string
}

// Checkout is the injected capability that presents the provider's payment
// UI and blocks until the user completes or dismisses it. Open errors mean
// the UI could not be presented at all.
type Checkout interface {
	Open(ctx context.Context, req Request) (Outcome, error)
}

// CollectInput describes one fee collection attempt. Amount is in the major
// currency unit.
type CollectInput struct {
	Email            string
	Amount           float64
	Reference        string
	AuthorizationURL string
	Metadata         map[string]string
}

// Adapter runs the payment state machine over an injected checkout. At most
// one attempt may be in flight; a concurrent Collect is rejected outright.
type Adapter struct {
	checkout  Checkout
	publicKey string
	currency  string
	log       *slog.Logger

	mu    sync.Mutex
	state State
}

func NewAdapter(checkout Checkout, publicKey, currency string, log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{
		checkout:  checkout,
		publicKey: publicKey,
		currency:  currency,
		log:       log,
		state:     StateIdle,
	}
}

// State returns the machine's current state: the in-flight phase during a
// Collect call, or the terminal state of the last attempt.
func (a *Adapter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Adapter) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

// begin validates preconditions and claims the machine. No state is entered
// when a precondition fails.
func (a *Adapter) begin(in CollectInput) error {
	if a.checkout == nil {
		return ErrProviderUnavailable
	}
	if a.publicKey == "" {
		return ErrMissingPublicKey
	}
	if math.IsNaN(in.Amount) || math.IsInf(in.Amount, 0) || in.Amount <= 0 {
		return ErrInvalidAmount
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == StateAwaitingProviderInit || a.state == StateAwaitingUserCompletion {
		return ErrPaymentInProgress
	}
	a.state = StateAwaitingProviderInit
	return nil
}

// Collect runs one payment attempt to a terminal state and returns the
// provider-issued reference on completion. The reference is client-observed
// only; callers must still verify it server-side.
func (a *Adapter) Collect(ctx context.Context, in CollectInput) (string, error) {
	if err := a.begin(in); err != nil {
		return "", err
	}

	attempt := uuid.NewString()
	req := Request{
		Key:              a.publicKey,
		Email:            in.Email,
		AmountMinor:      int64(math.Round(in.Amount * 100)),
		Currency:         a.currency,
		Reference:        in.Reference,
		AuthorizationURL: in.AuthorizationURL,
		Metadata:         in.Metadata,
	}
	a.log.Info("opening payment checkout",
		"attempt", attempt,
		"reference", req.Reference,
		"amount_minor", req.AmountMinor,
		"currency", req.Currency,
	)

	a.setState(StateAwaitingUserCompletion)
	outcome, err := a.checkout.Open(ctx, req)
	if err != nil {
		a.setState(StateRejected)
		return "", fmt.Errorf("%w: %v", ErrOpenFailed, err)
	}
	if !outcome.Completed {
		a.setState(StateRejected)
		a.log.Info("payment checkout dismissed", "attempt", attempt, "reference", req.Reference)
		return "", ErrWindowClosed
	}
	if outcome.Reference == "" {
		// A completion without a reference cannot be verified, so it is
		// not trusted.
		a.setState(StateRejected)
		return "", ErrMissingReference
	}

	a.setState(StateResolved)
	a.log.Info("payment checkout completed", "attempt", attempt, "reference", outcome.Reference)
	return outcome.Reference, nil
}
