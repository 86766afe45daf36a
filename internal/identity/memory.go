package identity

import (
	"context"
	"sort"
	"sync"
	"time"

	"plainsmart.org/internal/ids"
)

// MemoryStore is an in-process Store used by tests and DSN-less development
// runs. A single mutex serializes every mutation, which satisfies the
// read-modify-write discipline the service requires.
type MemoryStore struct {
	mu          sync.Mutex
	accounts    map[string]*Account // keyed by normalized username
	roles       map[string]*Role    // keyed by role name
	memberships map[string]map[string]struct{} // accountID -> roleID set
	now         func() time.Time
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:    make(map[string]*Account),
		roles:       make(map[string]*Role),
		memberships: make(map[string]map[string]struct{}),
		now:         time.Now,
	}
}

func (m *MemoryStore) Accounts() AccountStore { return (*memoryAccounts)(m) }
func (m *MemoryStore) Roles() RoleStore       { return (*memoryRoles)(m) }

type memoryAccounts MemoryStore

func (m *memoryAccounts) Create(ctx context.Context, a *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[a.NormalizedUsername]; ok {
		return ErrAlreadyExists
	}
	if a.ID == "" {
		a.ID = ids.New()
	}
	now := m.now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	cp := *a
	m.accounts[a.NormalizedUsername] = &cp
	return nil
}

func (m *memoryAccounts) FindByID(ctx context.Context, id string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.ID == id {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memoryAccounts) FindByUsername(ctx context.Context, normalized string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[normalized]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memoryAccounts) Update(ctx context.Context, a *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.accounts[a.NormalizedUsername]
	if !ok {
		return ErrNotFound
	}
	a.UpdatedAt = m.now().UTC()
	cp := *a
	cp.CreatedAt = stored.CreatedAt
	m.accounts[a.NormalizedUsername] = &cp
	return nil
}

func (m *memoryAccounts) Delete(ctx context.Context, normalized string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[normalized]
	if !ok {
		return ErrNotFound
	}
	delete(m.accounts, normalized)
	delete(m.memberships, a.ID)
	return nil
}

type memoryRoles MemoryStore

func (m *memoryRoles) Ensure(ctx context.Context, r *Role) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.roles[r.Name]; ok {
		*r = *existing
		return false, nil
	}
	if r.ID == "" {
		r.ID = ids.New()
	}
	r.CreatedAt = m.now().UTC()
	cp := *r
	m.roles[r.Name] = &cp
	return true, nil
}

func (m *memoryRoles) FindByName(ctx context.Context, name string) (*Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roles[name]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memoryRoles) Assign(ctx context.Context, accountID, roleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.memberships[accountID]
	if !ok {
		set = make(map[string]struct{})
		m.memberships[accountID] = set
	}
	set[roleID] = struct{}{}
	return nil
}

func (m *memoryRoles) Unassign(ctx context.Context, accountID, roleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if set, ok := m.memberships[accountID]; ok {
		delete(set, roleID)
	}
	return nil
}

func (m *memoryRoles) RolesFor(ctx context.Context, accountID string) ([]Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Role
	for _, r := range m.roles {
		if _, ok := m.memberships[accountID][r.ID]; ok {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memoryRoles) AccountsInRole(ctx context.Context, roleID string) ([]*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Account
	for _, a := range m.accounts {
		if _, ok := m.memberships[a.ID][roleID]; ok {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
