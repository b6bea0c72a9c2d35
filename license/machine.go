package license

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Runner runs fire-and-forget work in the background.
type Runner interface {
	Go(fn func(ctx context.Context))
}

type goRunner struct{}

func (goRunner) Go(fn func(ctx context.Context)) {
	go fn(context.Background())
}

// Machine derives the license status from the billing service. Billing
// failures never reach the caller: every operation ends with an emission to
// the observer or with nothing.
type Machine struct {
	billing  Billing
	store    Store
	observer Observer
	runner   Runner
	now      func() time.Time
	logger   *log.Entry

	mu      sync.Mutex
	details *Details
}

// Option configures a Machine.
type Option func(*Machine)

// WithRunner sets where persistence writes run.
func WithRunner(r Runner) Option {
	return func(m *Machine) { m.runner = r }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// NewMachine returns a machine reporting to observer. store may be nil, in
// which case nothing is persisted.
func NewMachine(b Billing, store Store, observer Observer, opts ...Option) *Machine {
	m := &Machine{
		billing:  b,
		store:    store,
		observer: observer,
		runner:   goRunner{},
		now:      time.Now,
		logger:   log.WithField("component", "license"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CheckStatus acknowledges a pending purchase if there is one; otherwise it
// emits the status of the purchase records.
func (m *Machine) CheckStatus(ctx context.Context) {
	acked, err := m.billing.AcknowledgePurchase(ctx)
	if err != nil {
		m.logger.Warnf("acknowledge purchase: %s", err)
		return
	}
	if acked {
		m.onAcknowledged()
		return
	}

	p, err := m.billing.GetPurchase(ctx)
	if err != nil {
		m.logger.Warnf("get purchase: %s", err)
		return
	}
	if p != nil {
		m.observer.OnStatus(Purchased)
	} else {
		m.observer.OnStatus(NotPurchased)
	}
}

// FetchDetails fetches and caches the product details. A missing product is
// a configuration error on our side; the license is then considered
// purchased so that users are not locked out.
func (m *Machine) FetchDetails(ctx context.Context) {
	d, err := m.billing.GetLicenseDetails(ctx)
	switch {
	case err == nil:
		m.mu.Lock()
		m.details = &d
		m.mu.Unlock()
		m.observer.OnDetails(d)
	case errors.Is(err, ErrProductNotFound):
		m.logger.Warnf("license product is missing from the store, assuming purchased")
		m.observer.OnStatus(Purchased)
	case errors.Is(err, ErrNotSupported):
		m.logger.Warnf("billing not supported, the license cannot be bought")
		m.observer.OnError(ErrNotSupported)
	default:
		m.logger.Warnf("license details: %s", err)
	}
}

// Details returns the cached product details.
func (m *Machine) Details() (Details, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.details == nil {
		return Details{}, false
	}
	return *m.details, true
}

// Purchase starts the purchase flow. It requires FetchDetails to have
// succeeded; otherwise ErrNoDetails is returned and billing is not called.
func (m *Machine) Purchase(ctx context.Context) error {
	d, ok := m.Details()
	if !ok {
		return ErrNoDetails
	}
	res, err := m.billing.LaunchPurchase(ctx, d)
	if err != nil {
		m.logger.Warnf("purchase flow: %s", err)
		return nil
	}
	switch res {
	case PendingPayment:
		m.observer.OnStatus(Pending)
	case Acknowledged:
		m.onAcknowledged()
	}
	return nil
}

// CheckOffline emits Purchased when a proof of purchase was persisted.
func (m *Machine) CheckOffline(ctx context.Context) {
	if m.store == nil {
		return
	}
	info, err := m.store.Load(ctx)
	if err != nil {
		m.logger.Warnf("load license info: %s", err)
		return
	}
	if info != nil {
		m.observer.OnStatus(Purchased)
	}
}

func (m *Machine) onAcknowledged() {
	m.observer.OnStatus(Purchased)
	// the exact purchase time does not matter
	m.persist(Info{PurchaseTimestamp: m.now()})
}

func (m *Machine) persist(info Info) {
	if m.store == nil {
		return
	}
	m.runner.Go(func(ctx context.Context) {
		if err := m.store.Persist(ctx, info); err != nil {
			m.logger.Errorf("persist license info: %s", err)
		}
	})
}
