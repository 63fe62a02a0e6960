package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// MemoryStore is an in-memory domain.Store for tests and local development.
// Safe for concurrent use; records are copied on the way in and out so
// callers cannot mutate stored state.
type MemoryStore struct {
	mu          sync.RWMutex
	submissions map[domain.StoreName]map[string]*domain.SubmissionRecord
	blacklist   map[string]*domain.BlacklistEntry
	alertSets   []*domain.AmlAlertSet
	rules       map[string]*domain.RiskRule
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		submissions: map[domain.StoreName]map[string]*domain.SubmissionRecord{
			domain.StorePending:  {},
			domain.StoreApproved: {},
			domain.StoreRejected: {},
		},
		blacklist: make(map[string]*domain.BlacklistEntry),
		rules:     make(map[string]*domain.RiskRule),
	}
}

func (m *MemoryStore) InsertSubmission(_ context.Context, store domain.StoreName, rec *domain.SubmissionRecord) (string, error) {
	if rec == nil {
		return "", fmt.Errorf("%w: submission record is required", domain.ErrInvalidInput)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	coll, ok := m.submissions[store]
	if !ok {
		return "", fmt.Errorf("%w: unknown store %q", domain.ErrInvalidInput, store)
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	cp := *rec
	coll[rec.ID] = &cp
	return rec.ID, nil
}

func (m *MemoryStore) GetSubmission(_ context.Context, store domain.StoreName, id string) (*domain.SubmissionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.submissions[store][id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *MemoryStore) ListSubmissions(_ context.Context, store domain.StoreName) ([]*domain.SubmissionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*domain.SubmissionRecord, 0, len(m.submissions[store]))
	for _, rec := range m.submissions[store] {
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) DeleteSubmission(_ context.Context, store domain.StoreName, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.submissions[store][id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.submissions[store], id)
	return nil
}

func (m *MemoryStore) MoveSubmission(_ context.Context, id string, from, to domain.StoreName) (*domain.SubmissionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.submissions[from][id]
	if !ok {
		return nil, domain.ErrNotFound
	}

	status := lifecycleFor(to)
	cp := *rec
	cp.Status = status
	cp.AdminStatus = status
	cp.UpdatedAt = time.Now().UTC()

	m.submissions[to][id] = &cp
	delete(m.submissions[from], id)

	out := cp
	return &out, nil
}

func (m *MemoryStore) FindByDocumentNumber(_ context.Context, number string) ([]domain.DocumentMatch, error) {
	if number == "" {
		return nil, fmt.Errorf("%w: document number is required", domain.ErrInvalidInput)
	}
	needle := strings.ToUpper(number)

	m.mu.RLock()
	defer m.mu.RUnlock()

	var matches []domain.DocumentMatch
	for _, store := range []domain.StoreName{domain.StorePending, domain.StoreApproved, domain.StoreRejected} {
		for _, rec := range m.submissions[store] {
			for _, doc := range rec.Documents {
				if doc.Number == "" {
					continue
				}
				if strings.Contains(strings.ToUpper(doc.Number), needle) {
					matches = append(matches, domain.DocumentMatch{
						SubmissionID: rec.ID,
						Store:        store,
						Number:       strings.ToUpper(doc.Number),
					})
					break
				}
			}
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].SubmissionID < matches[j].SubmissionID })
	return matches, nil
}

func (m *MemoryStore) InsertBlacklistEntry(_ context.Context, entry *domain.BlacklistEntry) (string, error) {
	if entry == nil || entry.Number == "" {
		return "", fmt.Errorf("%w: blacklist number is required", domain.ErrInvalidInput)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	cp := *entry
	m.blacklist[entry.ID] = &cp
	return entry.ID, nil
}

func (m *MemoryStore) DeleteBlacklistEntry(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.blacklist[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.blacklist, id)
	return nil
}

func (m *MemoryStore) ListBlacklist(_ context.Context) ([]*domain.BlacklistEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*domain.BlacklistEntry, 0, len(m.blacklist))
	for _, e := range m.blacklist {
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) FindBlacklistEntry(_ context.Context, number string) (*domain.BlacklistEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, e := range m.blacklist {
		if strings.EqualFold(e.Number, number) {
			cp := *e
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) SaveAlertSet(_ context.Context, set *domain.AmlAlertSet) (string, error) {
	if set == nil || set.SubmissionID == "" {
		return "", fmt.Errorf("%w: submission id is required", domain.ErrInvalidInput)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if set.ID == "" {
		set.ID = uuid.New().String()
	}
	if set.CreatedAt.IsZero() {
		set.CreatedAt = time.Now().UTC()
	}
	cp := *set
	m.alertSets = append(m.alertSets, &cp)
	return set.ID, nil
}

func (m *MemoryStore) ListAlertSets(_ context.Context) ([]*domain.AmlAlertSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*domain.AmlAlertSet, 0, len(m.alertSets))
	for i := len(m.alertSets) - 1; i >= 0; i-- {
		cp := *m.alertSets[i]
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemoryStore) SaveRiskRule(_ context.Context, rule *domain.RiskRule) error {
	if rule == nil || rule.ID == "" {
		return fmt.Errorf("%w: rule id is required", domain.ErrInvalidInput)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *rule
	cp.UpdatedAt = time.Now().UTC()
	if existing, ok := m.rules[rule.ID]; ok {
		cp.CreatedAt = existing.CreatedAt
	} else if cp.CreatedAt.IsZero() {
		cp.CreatedAt = cp.UpdatedAt
	}
	m.rules[rule.ID] = &cp
	return nil
}

func (m *MemoryStore) ListRiskRules(_ context.Context) ([]*domain.RiskRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*domain.RiskRule, 0, len(m.rules))
	for _, rule := range m.rules {
		cp := *rule
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }
