package farming

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"reward-farming/internal/custody"
)

type positionKey struct {
	pool  common.Hash
	owner common.Address
}

// MemoryStore keeps pools and positions in process and settles custody through a Ledger.
type MemoryStore struct {
	ledger custody.Ledger

	mu        sync.RWMutex
	locks     map[common.Hash]*poolLock
	pools     map[common.Hash]*Pool
	positions map[positionKey]*Position
	events    map[common.Hash][]Event
}

// NewMemoryStore returns an empty store settling against ledger.
func NewMemoryStore(ledger custody.Ledger) *MemoryStore {
	return &MemoryStore{
		ledger:    ledger,
		locks:     make(map[common.Hash]*poolLock),
		pools:     make(map[common.Hash]*Pool),
		positions: make(map[positionKey]*Position),
		events:    make(map[common.Hash][]Event),
	}
}

// poolLock serializes sessions on one pool id. refs counts holders and waiters.
type poolLock struct {
	ch   chan struct{}
	refs int
}

func (s *MemoryStore) lockFor(pool common.Hash) *poolLock {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[pool]
	if !ok {
		l = &poolLock{ch: make(chan struct{}, 1)}
		s.locks[pool] = l
	}
	l.refs++
	return l
}

// unref drops the entry once nobody waits on it and no pool was created under it.
func (s *MemoryStore) unref(pool common.Hash, l *poolLock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l.refs--
	if l.refs > 0 {
		return
	}
	if _, ok := s.pools[pool]; !ok {
		delete(s.locks, pool)
	}
}

// Begin implements Store.
func (s *MemoryStore) Begin(ctx context.Context, pool common.Hash) (Session, error) {
	lock := s.lockFor(pool)
	select {
	case lock.ch <- struct{}{}:
	case <-ctx.Done():
		s.unref(pool, lock)
		return nil, ctx.Err()
	}
	return &memorySession{
		store:     s,
		id:        pool,
		lock:      lock,
		positions: make(map[common.Address]*Position),
	}, nil
}

// GetPool implements Store.
func (s *MemoryStore) GetPool(ctx context.Context, pool common.Hash) (*Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pools[pool]
	if !ok {
		return nil, ErrPoolNotFound
	}
	return p.Clone(), nil
}

// GetPosition implements Store.
func (s *MemoryStore) GetPosition(ctx context.Context, pool common.Hash, owner common.Address) (*Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.positions[positionKey{pool, owner}]
	if !ok {
		return nil, ErrPositionNotFound
	}
	return p.Clone(), nil
}

// ListPools implements Store, ordered by creation time then id.
func (s *MemoryStore) ListPools(ctx context.Context) ([]*Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Pool, 0, len(s.pools))
	for _, p := range s.pools {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID.Hex() < out[j].ID.Hex()
	})
	return out, nil
}

// ListEvents implements Store, newest first.
func (s *MemoryStore) ListEvents(ctx context.Context, pool common.Hash, limit int) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := s.events[pool]
	out := make([]Event, 0, len(events))
	for i := len(events) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, events[i])
	}
	return out, nil
}

type memorySession struct {
	store *MemoryStore
	id    common.Hash
	lock  *poolLock
	done  bool

	pool      *Pool
	positions map[common.Address]*Position
	legs      []custody.Transfer
	events    []Event
}

var errSessionClosed = errors.New("farming: session closed")

func (m *memorySession) Pool(ctx context.Context) (*Pool, error) {
	if m.done {
		return nil, errSessionClosed
	}
	if m.pool != nil {
		return m.pool.Clone(), nil
	}
	return m.store.GetPool(ctx, m.id)
}

func (m *memorySession) Position(ctx context.Context, owner common.Address) (*Position, error) {
	if m.done {
		return nil, errSessionClosed
	}
	if p, ok := m.positions[owner]; ok {
		return p.Clone(), nil
	}
	return m.store.GetPosition(ctx, m.id, owner)
}

func (m *memorySession) PutPool(ctx context.Context, pool *Pool) error {
	if m.done {
		return errSessionClosed
	}
	m.pool = pool.Clone()
	return nil
}

func (m *memorySession) PutPosition(ctx context.Context, pos *Position) error {
	if m.done {
		return errSessionClosed
	}
	m.positions[pos.Owner] = pos.Clone()
	return nil
}

func (m *memorySession) Balance(ctx context.Context, account custody.Account) (uint64, error) {
	return m.store.ledger.Balance(ctx, account)
}

func (m *memorySession) Transfer(ctx context.Context, legs ...custody.Transfer) error {
	if m.done {
		return errSessionClosed
	}
	m.legs = append(m.legs, legs...)
	return nil
}

func (m *memorySession) AppendEvent(ctx context.Context, event Event) error {
	if m.done {
		return errSessionClosed
	}
	m.events = append(m.events, event)
	return nil
}

// Commit settles custody first; staged records are published only if every leg succeeded.
func (m *memorySession) Commit(ctx context.Context) error {
	if m.done {
		return errSessionClosed
	}
	defer m.release()

	if err := m.store.ledger.Execute(ctx, m.legs...); err != nil {
		return err
	}

	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	if m.pool != nil {
		m.store.pools[m.id] = m.pool
	}
	for owner, pos := range m.positions {
		m.store.positions[positionKey{m.id, owner}] = pos
	}
	m.store.events[m.id] = append(m.store.events[m.id], m.events...)
	return nil
}

func (m *memorySession) Rollback(ctx context.Context) error {
	if m.done {
		return nil
	}
	m.release()
	return nil
}

func (m *memorySession) release() {
	m.done = true
	<-m.lock.ch
	m.store.unref(m.id, m.lock)
}

var (
	_ Store   = (*MemoryStore)(nil)
	_ Session = (*memorySession)(nil)
)
