package license

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBilling struct {
	acked      bool
	ackErr     error
	purchase   *Purchase
	purchErr   error
	details    Details
	detailsErr error
	result     PurchaseResult
	launchErr  error
	launched   int
}

func (b *fakeBilling) AcknowledgePurchase(context.Context) (bool, error) {
	return b.acked, b.ackErr
}

func (b *fakeBilling) GetPurchase(context.Context) (*Purchase, error) {
	return b.purchase, b.purchErr
}

func (b *fakeBilling) GetLicenseDetails(context.Context) (Details, error) {
	return b.details, b.detailsErr
}

func (b *fakeBilling) LaunchPurchase(_ context.Context, _ Details) (PurchaseResult, error) {
	b.launched++
	return b.result, b.launchErr
}

type recorder struct {
	statuses []Status
	details  []Details
	errs     []error
}

func (r *recorder) OnStatus(s Status)   { r.statuses = append(r.statuses, s) }
func (r *recorder) OnDetails(d Details) { r.details = append(r.details, d) }
func (r *recorder) OnError(err error)   { r.errs = append(r.errs, err) }

type memStore struct {
	infos []Info
	err   error
}

func (s *memStore) Persist(_ context.Context, info Info) error {
	s.infos = append(s.infos, info)
	return s.err
}

func (s *memStore) Load(context.Context) (*Info, error) {
	if len(s.infos) == 0 {
		return nil, s.err
	}
	return &s.infos[len(s.infos)-1], nil
}

type syncRunner struct{}

func (syncRunner) Go(fn func(ctx context.Context)) { fn(context.Background()) }

var fixedNow = time.Date(2020, 4, 12, 10, 0, 0, 0, time.UTC)

func newTestMachine(b Billing) (*Machine, *recorder, *memStore) {
	rec := &recorder{}
	store := &memStore{}
	m := NewMachine(b, store, rec, WithRunner(syncRunner{}), WithClock(func() time.Time { return fixedNow }))
	return m, rec, store
}

func TestCheckStatusAcknowledgesPendingPurchase(t *testing.T) {
	b := &fakeBilling{acked: true, purchase: &Purchase{ProductID: "ign_license"}}
	m, rec, store := newTestMachine(b)

	m.CheckStatus(context.Background())

	assert.Equal(t, []Status{Purchased}, rec.statuses)
	require.Len(t, store.infos, 1)
	assert.Equal(t, fixedNow, store.infos[0].PurchaseTimestamp)
}

func TestCheckStatus(t *testing.T) {
	tests := []struct {
		name     string
		billing  *fakeBilling
		expected []Status
	}{
		{name: "no purchase", billing: &fakeBilling{}, expected: []Status{NotPurchased}},
		{name: "purchased", billing: &fakeBilling{purchase: &Purchase{ProductID: "ign_license", Acknowledged: true}}, expected: []Status{Purchased}},
		{name: "ack unreachable", billing: &fakeBilling{ackErr: ErrUnavailable}},
		{name: "query unreachable", billing: &fakeBilling{purchErr: ErrUnavailable}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, rec, store := newTestMachine(tt.billing)
			m.CheckStatus(context.Background())
			assert.Equal(t, tt.expected, rec.statuses)
			assert.Empty(t, store.infos)
		})
	}
}

func TestFetchDetails(t *testing.T) {
	d := Details{ProductID: "ign_license", Title: "IGN license", Price: "3,49 €"}
	m, rec, _ := newTestMachine(&fakeBilling{details: d})
	_, ok := m.Details()
	assert.False(t, ok)

	m.FetchDetails(context.Background())
	assert.Equal(t, []Details{d}, rec.details)
	assert.Empty(t, rec.statuses)
	got, ok := m.Details()
	require.True(t, ok)
	assert.Equal(t, d, got)
}

func TestFetchDetailsProductNotFound(t *testing.T) {
	m, rec, store := newTestMachine(&fakeBilling{detailsErr: ErrProductNotFound})
	m.FetchDetails(context.Background())
	assert.Equal(t, []Status{Purchased}, rec.statuses)
	assert.Empty(t, store.infos)
	_, ok := m.Details()
	assert.False(t, ok)
}

func TestFetchDetailsNotSupported(t *testing.T) {
	m, rec, _ := newTestMachine(&fakeBilling{detailsErr: ErrNotSupported})
	m.FetchDetails(context.Background())
	assert.Empty(t, rec.statuses)
	require.Len(t, rec.errs, 1)
	assert.ErrorIs(t, rec.errs[0], ErrNotSupported)
}

func TestFetchDetailsUnavailable(t *testing.T) {
	m, rec, _ := newTestMachine(&fakeBilling{detailsErr: errors.New("service disconnected")})
	m.FetchDetails(context.Background())
	assert.Empty(t, rec.statuses)
	assert.Empty(t, rec.details)
	assert.Empty(t, rec.errs)
}

func TestPurchaseNeedsDetails(t *testing.T) {
	b := &fakeBilling{}
	m, rec, _ := newTestMachine(b)
	assert.ErrorIs(t, m.Purchase(context.Background()), ErrNoDetails)
	assert.Equal(t, 0, b.launched)
	assert.Empty(t, rec.statuses)
}

func TestPurchase(t *testing.T) {
	tests := []struct {
		name      string
		result    PurchaseResult
		launchErr error
		expected  []Status
		persisted int
	}{
		{name: "acknowledged", result: Acknowledged, expected: []Status{Purchased}, persisted: 1},
		{name: "pending", result: PendingPayment, expected: []Status{Pending}},
		{name: "canceled", launchErr: errors.New("user canceled")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &fakeBilling{details: Details{ProductID: "ign_license"}, result: tt.result, launchErr: tt.launchErr}
			m, rec, store := newTestMachine(b)
			m.FetchDetails(context.Background())
			require.NoError(t, m.Purchase(context.Background()))
			assert.Equal(t, 1, b.launched)
			assert.Equal(t, tt.expected, rec.statuses)
			assert.Len(t, store.infos, tt.persisted)
		})
	}
}

func TestPendingThenAcknowledged(t *testing.T) {
	b := &fakeBilling{details: Details{ProductID: "ign_license"}, result: PendingPayment}
	m, rec, store := newTestMachine(b)
	m.FetchDetails(context.Background())
	require.NoError(t, m.Purchase(context.Background()))

	b.acked = true
	m.CheckStatus(context.Background())
	assert.Equal(t, []Status{Pending, Purchased}, rec.statuses)
	assert.Len(t, store.infos, 1)
}

func TestCheckOffline(t *testing.T) {
	m, rec, store := newTestMachine(&fakeBilling{})
	m.CheckOffline(context.Background())
	assert.Empty(t, rec.statuses)

	store.infos = append(store.infos, Info{PurchaseTimestamp: fixedNow})
	m.CheckOffline(context.Background())
	assert.Equal(t, []Status{Purchased}, rec.statuses)
}

func TestPersistFailureIsSilent(t *testing.T) {
	rec := &recorder{}
	store := &memStore{err: errors.New("disk full")}
	m := NewMachine(&fakeBilling{acked: true}, store, rec, WithRunner(syncRunner{}))
	assert.NotPanics(t, func() { m.CheckStatus(context.Background()) })
	assert.Equal(t, []Status{Purchased}, rec.statuses)
}

func TestSQLiteStore(t *testing.T) {
	s, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "license.db"))
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	info, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, info)

	require.NoError(t, s.Persist(ctx, Info{PurchaseTimestamp: fixedNow}))
	later := fixedNow.Add(24 * time.Hour)
	require.NoError(t, s.Persist(ctx, Info{PurchaseTimestamp: later}))

	info, err = s.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.True(t, later.Equal(info.PurchaseTimestamp))
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "PENDING", Pending.String())
	assert.Equal(t, "UNKNOWN", Status(9).String())
}
