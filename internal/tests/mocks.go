// Package tests provides in-memory fakes of the repositories, stores and
// ledger for service and handler tests.
package tests

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"autodrive/internal/domain"
	"autodrive/internal/events"
	"autodrive/internal/ledger"
	"autodrive/internal/redis"
	"autodrive/internal/repository"
)

// ──────────────────────────────────────────────
// MOCK TRIP REPOSITORY
// ──────────────────────────────────────────────

// MockTripRepository is an in-memory TripRepository.
type MockTripRepository struct {
	mu    sync.RWMutex
	trips map[string]*domain.Trip

	UpdateCallCount int32

	CreateError error
	UpdateError error
}

func NewMockTripRepository() *MockTripRepository {
	return &MockTripRepository{trips: make(map[string]*domain.Trip)}
}

// AddTrip stores a trip as-is.
func (m *MockTripRepository) AddTrip(trip *domain.Trip) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *trip
	m.trips[trip.ID] = &cp
}

// GetTrip returns a copy of the stored trip for assertions.
func (m *MockTripRepository) GetTrip(id string) *domain.Trip {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.trips[id]
	if !ok {
		return nil
	}
	cp := *t
	return &cp
}

func (m *MockTripRepository) Create(ctx context.Context, trip *domain.Trip) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.trips {
		if t.RiderID == trip.RiderID && t.IsActive() {
			return repository.ErrConflict
		}
	}
	cp := *trip
	m.trips[trip.ID] = &cp
	return nil
}

func (m *MockTripRepository) GetByID(ctx context.Context, id string) (*domain.Trip, error) {
	if t := m.GetTrip(id); t != nil {
		return t, nil
	}
	return nil, repository.ErrNotFound
}

func (m *MockTripRepository) List(ctx context.Context, filter repository.TripFilter) ([]*domain.Trip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Trip
	for _, t := range m.trips {
		if filter.RiderID != "" && t.RiderID != filter.RiderID {
			continue
		}
		if filter.DriverID != "" && t.DriverID != filter.DriverID {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.After(out[j].RequestedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *MockTripRepository) UpdateIfStatus(ctx context.Context, trip *domain.Trip, expected domain.TripStatus) error {
	atomic.AddInt32(&m.UpdateCallCount, 1)
	if m.UpdateError != nil {
		return m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.trips[trip.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if stored.Status != expected {
		return repository.ErrPreconditionFailed
	}
	if trip.DriverID != "" && trip.IsActive() {
		for _, t := range m.trips {
			if t.ID != trip.ID && t.DriverID == trip.DriverID && t.IsActive() {
				return repository.ErrConflict
			}
		}
	}
	cp := *trip
	m.trips[trip.ID] = &cp
	return nil
}

func (m *MockTripRepository) GetActiveByRiderID(ctx context.Context, riderID string) (*domain.Trip, error) {
	return m.findActive(func(t *domain.Trip) bool { return t.RiderID == riderID }), nil
}

func (m *MockTripRepository) GetActiveByDriverID(ctx context.Context, driverID string) (*domain.Trip, error) {
	return m.findActive(func(t *domain.Trip) bool { return t.DriverID == driverID }), nil
}

func (m *MockTripRepository) findActive(match func(*domain.Trip) bool) *domain.Trip {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.trips {
		if t.IsActive() && match(t) {
			cp := *t
			return &cp
		}
	}
	return nil
}

func (m *MockTripRepository) snapshot() map[string]domain.Trip {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := make(map[string]domain.Trip, len(m.trips))
	for id, t := range m.trips {
		s[id] = *t
	}
	return s
}

func (m *MockTripRepository) restore(s map[string]domain.Trip) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trips = make(map[string]*domain.Trip, len(s))
	for id, t := range s {
		t := t
		m.trips[id] = &t
	}
}

// ──────────────────────────────────────────────
// MOCK VEHICLE REPOSITORY
// ──────────────────────────────────────────────

// MockVehicleRepository is an in-memory VehicleRepository with CAS claims.
type MockVehicleRepository struct {
	mu       sync.RWMutex
	vehicles map[string]*domain.Vehicle

	ClaimCallCount int32

	ListError  error
	ClaimError error
}

func NewMockVehicleRepository() *MockVehicleRepository {
	return &MockVehicleRepository{vehicles: make(map[string]*domain.Vehicle)}
}

// AddVehicle stores a vehicle as-is.
func (m *MockVehicleRepository) AddVehicle(v *domain.Vehicle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *v
	m.vehicles[v.ID] = &cp
}

// GetVehicle returns a copy of the stored vehicle for assertions.
func (m *MockVehicleRepository) GetVehicle(id string) *domain.Vehicle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vehicles[id]
	if !ok {
		return nil
	}
	cp := *v
	return &cp
}

func (m *MockVehicleRepository) Create(ctx context.Context, v *domain.Vehicle) error {
	m.AddVehicle(v)
	return nil
}

func (m *MockVehicleRepository) GetByID(ctx context.Context, id string) (*domain.Vehicle, error) {
	if v := m.GetVehicle(id); v != nil {
		return v, nil
	}
	return nil, repository.ErrNotFound
}

func (m *MockVehicleRepository) List(ctx context.Context, filter repository.VehicleFilter) ([]*domain.Vehicle, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Vehicle
	for _, v := range m.vehicles {
		if filter.DriverID != "" && v.DriverID != filter.DriverID {
			continue
		}
		if filter.Status != "" && v.Status != filter.Status {
			continue
		}
		if filter.ActiveOnly && !v.Active {
			continue
		}
		cp := *v
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MockVehicleRepository) UpdatePosition(ctx context.Context, id string, p domain.Point) error {
	return m.mutate(id, func(v *domain.Vehicle) error {
		v.Position = &p
		return nil
	})
}

func (m *MockVehicleRepository) UpdateStatus(ctx context.Context, id string, status domain.VehicleStatus) error {
	return m.mutate(id, func(v *domain.Vehicle) error {
		if v.Status == domain.VehicleStatusOnTrip {
			return repository.ErrPreconditionFailed
		}
		v.Status = status
		return nil
	})
}

func (m *MockVehicleRepository) Claim(ctx context.Context, id string) error {
	atomic.AddInt32(&m.ClaimCallCount, 1)
	if m.ClaimError != nil {
		return m.ClaimError
	}
	return m.mutate(id, func(v *domain.Vehicle) error {
		if v.Status != domain.VehicleStatusAvailable || !v.Active {
			return repository.ErrPreconditionFailed
		}
		v.Status = domain.VehicleStatusOnTrip
		return nil
	})
}

func (m *MockVehicleRepository) Release(ctx context.Context, id string) error {
	return m.mutate(id, func(v *domain.Vehicle) error {
		if v.Status != domain.VehicleStatusOnTrip {
			return repository.ErrPreconditionFailed
		}
		v.Status = domain.VehicleStatusAvailable
		return nil
	})
}

func (m *MockVehicleRepository) RecordTrip(ctx context.Context, id string, distanceKm float64, earnings int64) error {
	return m.mutate(id, func(v *domain.Vehicle) error {
		v.Stats.TotalTrips++
		v.Stats.TotalDistanceKm += distanceKm
		v.Stats.TotalEarnings += earnings
		return nil
	})
}

func (m *MockVehicleRepository) mutate(id string, fn func(v *domain.Vehicle) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vehicles[id]
	if !ok {
		return repository.ErrNotFound
	}
	cp := *v
	if err := fn(&cp); err != nil {
		return err
	}
	m.vehicles[id] = &cp
	return nil
}

func (m *MockVehicleRepository) snapshot() map[string]domain.Vehicle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := make(map[string]domain.Vehicle, len(m.vehicles))
	for id, v := range m.vehicles {
		s[id] = *v
	}
	return s
}

func (m *MockVehicleRepository) restore(s map[string]domain.Vehicle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vehicles = make(map[string]*domain.Vehicle, len(s))
	for id, v := range s {
		v := v
		m.vehicles[id] = &v
	}
}

// ──────────────────────────────────────────────
// MOCK ACCOUNT REPOSITORY
// ──────────────────────────────────────────────

// MockAccountRepository is an in-memory AccountRepository.
type MockAccountRepository struct {
	mu       sync.RWMutex
	accounts map[string]*domain.Account

	RecordRideError error
}

func NewMockAccountRepository() *MockAccountRepository {
	return &MockAccountRepository{accounts: make(map[string]*domain.Account)}
}

// AddAccount stores an account as-is.
func (m *MockAccountRepository) AddAccount(a *domain.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.accounts[a.ID] = &cp
}

func (m *MockAccountRepository) Create(ctx context.Context, a *domain.Account) error {
	m.AddAccount(a)
	return nil
}

func (m *MockAccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MockAccountRepository) WalletAddress(ctx context.Context, id string) (string, error) {
	a, err := m.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if a.WalletAddress == "" {
		return "", repository.ErrNotFound
	}
	return a.WalletAddress, nil
}

func (m *MockAccountRepository) RecordRide(ctx context.Context, riderID, driverID string) error {
	if m.RecordRideError != nil {
		return m.RecordRideError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rider, ok := m.accounts[riderID]
	if !ok {
		return repository.ErrNotFound
	}
	driver, ok := m.accounts[driverID]
	if !ok {
		return repository.ErrNotFound
	}
	rider.RidesAsPassenger++
	driver.RidesAsDriver++
	return nil
}

func (m *MockAccountRepository) snapshot() map[string]domain.Account {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := make(map[string]domain.Account, len(m.accounts))
	for id, a := range m.accounts {
		s[id] = *a
	}
	return s
}

func (m *MockAccountRepository) restore(s map[string]domain.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts = make(map[string]*domain.Account, len(s))
	for id, a := range s {
		a := a
		m.accounts[id] = &a
	}
}

// ──────────────────────────────────────────────
// MOCK SETTLEMENT REPOSITORY
// ──────────────────────────────────────────────

// MockSettlementRepository is an in-memory SettlementRepository.
type MockSettlementRepository struct {
	mu          sync.RWMutex
	settlements map[string]*domain.Settlement // By ID

	CreateError error
}

func NewMockSettlementRepository() *MockSettlementRepository {
	return &MockSettlementRepository{settlements: make(map[string]*domain.Settlement)}
}

func (m *MockSettlementRepository) Create(ctx context.Context, s *domain.Settlement) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.settlements {
		if existing.IdempotencyKey == s.IdempotencyKey {
			return repository.ErrConflict
		}
		if s.FundingTxRef != "" && existing.FundingTxRef == s.FundingTxRef {
			return repository.ErrConflict
		}
	}
	cp := *s
	m.settlements[s.ID] = &cp
	return nil
}

func (m *MockSettlementRepository) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Settlement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.settlements {
		if s.IdempotencyKey == key {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MockSettlementRepository) GetByFundingTxRef(ctx context.Context, txRef string) (*domain.Settlement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.settlements {
		if txRef != "" && s.FundingTxRef == txRef {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MockSettlementRepository) ListByTrip(ctx context.Context, tripID string) ([]*domain.Settlement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Settlement
	for _, s := range m.settlements {
		if s.TripID == tripID {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IdempotencyKey < out[j].IdempotencyKey })
	return out, nil
}

func (m *MockSettlementRepository) UpdateResult(ctx context.Context, id string, status domain.SettlementStatus, txRef, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.settlements[id]
	if !ok {
		return repository.ErrNotFound
	}
	s.Status = status
	s.TxRef = txRef
	s.Error = errMsg
	return nil
}

// ──────────────────────────────────────────────
// MOCK TRANSACTOR
// ──────────────────────────────────────────────

// MockTransactor runs fn against the mock repositories and restores their
// contents when fn fails.
type MockTransactor struct {
	mu       sync.Mutex
	trips    *MockTripRepository
	vehicles *MockVehicleRepository
	accounts *MockAccountRepository
	settle   *MockSettlementRepository

	CallCount int32
}

// NewMockTransactor creates a transactor over the given repositories.
func NewMockTransactor(
	trips *MockTripRepository,
	vehicles *MockVehicleRepository,
	accounts *MockAccountRepository,
	settlements *MockSettlementRepository,
) *MockTransactor {
	return &MockTransactor{trips: trips, vehicles: vehicles, accounts: accounts, settle: settlements}
}

func (m *MockTransactor) WithinTx(ctx context.Context, fn func(repository.Repositories) error) error {
	atomic.AddInt32(&m.CallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()

	trips, vehicles, accounts := m.trips.snapshot(), m.vehicles.snapshot(), m.accounts.snapshot()
	err := fn(repository.Repositories{
		Trips:       m.trips,
		Vehicles:    m.vehicles,
		Accounts:    m.accounts,
		Settlements: m.settle,
	})
	if err != nil {
		m.trips.restore(trips)
		m.vehicles.restore(vehicles)
		m.accounts.restore(accounts)
	}
	return err
}

// ──────────────────────────────────────────────
// MOCK REDIS STORES
// ──────────────────────────────────────────────

// MockLockStore is an in-memory LockStoreInterface.
type MockLockStore struct {
	mu   sync.Mutex
	held map[string]string

	AcquireError error
}

func NewMockLockStore() *MockLockStore {
	return &MockLockStore{held: make(map[string]string)}
}

// Hold marks a key as locked by someone else.
func (m *MockLockStore) Hold(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.held[key] = "other"
}

func (m *MockLockStore) AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if m.AcquireError != nil {
		return "", false, m.AcquireError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.held[key]; ok {
		return "", false, nil
	}
	token := key + "-token"
	m.held[key] = token
	return token, true, nil
}

func (m *MockLockStore) ReleaseLock(ctx context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[key] == token {
		delete(m.held, key)
	}
	return nil
}

// MockLocationStore is an in-memory LocationStoreInterface.
type MockLocationStore struct {
	mu        sync.Mutex
	positions map[string]domain.Point

	PositionsError error
}

func NewMockLocationStore() *MockLocationStore {
	return &MockLocationStore{positions: make(map[string]domain.Point)}
}

func (m *MockLocationStore) UpdateLocation(ctx context.Context, id string, p domain.Point, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[id] = p
	return nil
}

func (m *MockLocationStore) Positions(ctx context.Context, ids []string) (map[string]domain.Point, error) {
	if m.PositionsError != nil {
		return nil, m.PositionsError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]domain.Point)
	for _, id := range ids {
		if p, ok := m.positions[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (m *MockLocationStore) RemoveLocation(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.positions, id)
	return nil
}

// MockCacheStore is an in-memory CacheStoreInterface.
type MockCacheStore struct {
	mu      sync.Mutex
	entries map[string][]byte

	GetError     error
	SetCallCount int32
}

func NewMockCacheStore() *MockCacheStore {
	return &MockCacheStore{entries: make(map[string][]byte)}
}

func (m *MockCacheStore) GetResponse(ctx context.Context, key string) ([]byte, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[key], nil
}

func (m *MockCacheStore) SetResponse(ctx context.Context, key string, data []byte, ttl time.Duration) (bool, error) {
	atomic.AddInt32(&m.SetCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[key]; ok {
		return false, nil
	}
	m.entries[key] = data
	return true, nil
}

// Len returns the number of recorded responses.
func (m *MockCacheStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

var (
	_ redis.LockStoreInterface     = (*MockLockStore)(nil)
	_ redis.LocationStoreInterface = (*MockLocationStore)(nil)
	_ redis.CacheStoreInterface    = (*MockCacheStore)(nil)
)

// ──────────────────────────────────────────────
// MOCK LEDGER
// ──────────────────────────────────────────────

// MockLedger wraps the simulated ledger with failure injection and call counters.
type MockLedger struct {
	*ledger.Simulated

	LockCallCount    int32
	ReleaseCallCount int32
	RefundCallCount  int32

	LockError    error
	ReleaseError error
	RefundError  error
	ReceiptError error
	LockDelay    time.Duration // Blocks LockPayment until the context expires

	// BeforeLock runs inside LockPayment before the ledger call.
	BeforeLock func(call ledger.LockCall)
}

func NewMockLedger() *MockLedger {
	return &MockLedger{Simulated: ledger.NewSimulated()}
}

func (m *MockLedger) LockPayment(ctx context.Context, call ledger.LockCall) (*ledger.LockResult, error) {
	atomic.AddInt32(&m.LockCallCount, 1)
	if m.BeforeLock != nil {
		m.BeforeLock(call)
	}
	if m.LockDelay > 0 {
		select {
		case <-time.After(m.LockDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.LockError != nil {
		return nil, m.LockError
	}
	return m.Simulated.LockPayment(ctx, call)
}

func (m *MockLedger) ReleasePayment(ctx context.Context, call ledger.ReleaseCall) (*ledger.Result, error) {
	atomic.AddInt32(&m.ReleaseCallCount, 1)
	if m.ReleaseError != nil {
		return nil, m.ReleaseError
	}
	return m.Simulated.ReleasePayment(ctx, call)
}

func (m *MockLedger) RefundPayment(ctx context.Context, call ledger.RefundCall) (*ledger.Result, error) {
	atomic.AddInt32(&m.RefundCallCount, 1)
	if m.RefundError != nil {
		return nil, m.RefundError
	}
	return m.Simulated.RefundPayment(ctx, call)
}

func (m *MockLedger) CreateReceipt(ctx context.Context, call ledger.ReceiptCall) (*ledger.Result, error) {
	if m.ReceiptError != nil {
		return nil, m.ReceiptError
	}
	return m.Simulated.CreateReceipt(ctx, call)
}

var _ ledger.Client = (*MockLedger)(nil)

// ──────────────────────────────────────────────
// RECORDING PUBLISHER
// ──────────────────────────────────────────────

// RecordingPublisher collects published events.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []events.Event

	Error error
}

func (p *RecordingPublisher) Publish(ctx context.Context, evts ...events.Event) error {
	if p.Error != nil {
		return p.Error
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evts...)
	return nil
}

// Events returns a copy of the published events in order.
func (p *RecordingPublisher) Events() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Event(nil), p.events...)
}

// Types returns the published event types in order.
func (p *RecordingPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

// ──────────────────────────────────────────────
// TEST CLOCK
// ──────────────────────────────────────────────

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a Clock starting at now.
func NewClock(now time.Time) *Clock {
	return &Clock{now: now}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
