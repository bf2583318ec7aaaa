package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Eigensu/SM-Visitor/internal/domain"
	"github.com/Eigensu/SM-Visitor/internal/repo/postgres"
)

// Compile-time checks that the mocks satisfy the store interfaces.
var (
	_ postgres.VisitRepo     = (*mockVisitRepo)(nil)
	_ postgres.VisitorRepo   = (*mockVisitorRepo)(nil)
	_ postgres.PassRepo      = (*mockPassRepo)(nil)
	_ postgres.DirectoryRepo = (*mockDirectory)(nil)
)

// ---------- Mocks ----------

type mockVisitRepo struct {
	mu     sync.Mutex
	nextID int
	visits map[string]*domain.Visit
}

func newMockVisitRepo() *mockVisitRepo {
	return &mockVisitRepo{visits: make(map[string]*domain.Visit)}
}

func (m *mockVisitRepo) Insert(_ context.Context, v *domain.Visit) (*domain.Visit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *v
	if stored.ID == "" {
		m.nextID++
		stored.ID = fmt.Sprintf("visit-%d", m.nextID)
	}
	now := time.Now()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	m.visits[stored.ID] = &stored

	out := stored
	return &out, nil
}

func (m *mockVisitRepo) GetByID(_ context.Context, id string) (*domain.Visit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.visits[id]
	if !ok {
		return nil, nil
	}
	out := *v
	return &out, nil
}

func (m *mockVisitRepo) UpdateStatus(_ context.Context, id string, from, to domain.VisitStatus, entryTime *time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.visits[id]
	if !ok || v.Status != from {
		return false, nil
	}
	v.Status = to
	if entryTime != nil {
		v.EntryTime = entryTime
	}
	v.UpdatedAt = time.Now()
	return true, nil
}

func (m *mockVisitRepo) SetExitTime(_ context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.visits[id]
	if !ok || v.ExitTime != nil {
		return false, nil
	}
	v.ExitTime = &at
	v.UpdatedAt = at
	return true, nil
}

func (m *mockVisitRepo) DeletePending(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.visits[id]
	if !ok || v.Status != domain.VisitPending {
		return false, nil
	}
	delete(m.visits, id)
	return true, nil
}

func (m *mockVisitRepo) ListSince(_ context.Context, since time.Time, f postgres.VisitFilter) ([]domain.Visit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Visit
	for _, v := range m.visits {
		if v.CreatedAt.Before(since) {
			continue
		}
		if f.GuardID != "" && v.GuardID != f.GuardID {
			continue
		}
		if f.OwnerFlat != "" && v.OwnerFlat != f.OwnerFlat {
			continue
		}
		out = append(out, *v)
	}
	return out, nil
}

type mockVisitorRepo struct {
	mu       sync.Mutex
	visitors map[string]*domain.Visitor
}

func newMockVisitorRepo() *mockVisitorRepo {
	return &mockVisitorRepo{visitors: make(map[string]*domain.Visitor)}
}

func (m *mockVisitorRepo) put(v *domain.Visitor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *v
	m.visitors[v.ID] = &stored
}

func (m *mockVisitorRepo) Insert(_ context.Context, v *domain.Visitor) (*domain.Visitor, error) {
	stored := *v
	stored.IsActive = true
	m.put(&stored)
	return &stored, nil
}

func (m *mockVisitorRepo) GetByID(_ context.Context, id string) (*domain.Visitor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.visitors[id]
	if !ok {
		return nil, nil
	}
	out := *v
	return &out, nil
}

func (m *mockVisitorRepo) SetToken(_ context.Context, id, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.visitors[id]; ok {
		v.QRToken = token
	}
	return nil
}

func (m *mockVisitorRepo) Update(_ context.Context, id string, patch domain.UpdateVisitorReq) (*domain.Visitor, error) {
	return m.GetByID(context.Background(), id)
}

func (m *mockVisitorRepo) Deactivate(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.visitors[id]
	if !ok || !v.IsActive {
		return false, nil
	}
	v.IsActive = false
	return true, nil
}

func (m *mockVisitorRepo) ListByCreator(context.Context, string, int) ([]domain.Visitor, error) {
	return nil, nil
}

func (m *mockVisitorRepo) ListActive(context.Context, int) ([]domain.Visitor, error) {
	return nil, nil
}

type mockPassRepo struct {
	mu     sync.Mutex
	passes map[string]*domain.GuestPass
}

func newMockPassRepo() *mockPassRepo {
	return &mockPassRepo{passes: make(map[string]*domain.GuestPass)}
}

func (m *mockPassRepo) put(p *domain.GuestPass) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *p
	m.passes[p.ID] = &stored
}

func (m *mockPassRepo) Insert(_ context.Context, p *domain.GuestPass) (*domain.GuestPass, error) {
	m.put(p)
	return p, nil
}

func (m *mockPassRepo) GetByID(_ context.Context, id string) (*domain.GuestPass, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.passes[id]
	if !ok {
		return nil, nil
	}
	out := *p
	return &out, nil
}

func (m *mockPassRepo) SetToken(_ context.Context, id, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.passes[id]; ok {
		p.Token = token
	}
	return nil
}

func (m *mockPassRepo) MarkUsed(_ context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.passes[id]
	if !ok || p.UsedAt != nil || at.After(p.ExpiresAt) {
		return false, nil
	}
	p.UsedAt = &at
	return true, nil
}

func (m *mockPassRepo) ListByOwner(context.Context, string, int) ([]domain.GuestPass, error) {
	return nil, nil
}

// mockDirectory implements both the repo-level directory and the hub's
// flat directory.
type mockDirectory struct {
	mu        sync.Mutex
	residents map[string][]string // flat id -> principal ids
	flats     []string
	err       error
}

func newMockDirectory() *mockDirectory {
	return &mockDirectory{residents: make(map[string][]string)}
}

func (m *mockDirectory) addFlat(flatID string, residentIDs ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flats = append(m.flats, flatID)
	m.residents[flatID] = residentIDs
}

func (m *mockDirectory) ResidentsForFlats(_ context.Context, flatIDs []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}
	var out []string
	for _, f := range flatIDs {
		out = append(out, m.residents[f]...)
	}
	return out, nil
}

func (m *mockDirectory) AllFlatIDs(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}
	return append([]string(nil), m.flats...), nil
}

var errDirectoryDown = errors.New("directory unavailable")
