package storage

import (
	"arbiter/backend/internal/apperr"
	"arbiter/backend/internal/models"
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Storage used by tests and STORAGE_DRIVER=memory.
// Values are copied in and out, so callers never share state with the store.
// InCaseTx serializes per case but does not roll back on error.
type MemoryStore struct {
	mu         sync.RWMutex
	cases      map[string]models.Case
	hearings   map[string]models.Hearing
	statements map[string][]models.Statement
	evidence   map[string][]models.Evidence
	verdicts   map[string]models.Verdict

	locksMu   sync.Mutex
	caseLocks map[string]*sync.Mutex

	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cases:      make(map[string]models.Case),
		hearings:   make(map[string]models.Hearing),
		statements: make(map[string][]models.Statement),
		evidence:   make(map[string][]models.Evidence),
		verdicts:   make(map[string]models.Verdict),
		caseLocks:  make(map[string]*sync.Mutex),
		now:        time.Now,
	}
}

func notFound(op string) error {
	return fmt.Errorf("storage: %s: %w", op, apperr.ErrNotFound)
}

func cloneCase(c models.Case) models.Case {
	c.Parties = slices.Clone(c.Parties)
	c.Participants = slices.Clone(c.Participants)
	if c.InvitedUserID != nil {
		id := *c.InvitedUserID
		c.InvitedUserID = &id
	}
	if c.InviteExpiresAt != nil {
		at := *c.InviteExpiresAt
		c.InviteExpiresAt = &at
	}
	return c
}

func cloneVerdict(v models.Verdict) models.Verdict {
	v.Reasoning.FairnessChecks = slices.Clone(v.Reasoning.FairnessChecks)
	v.Reasoning.Assumptions = slices.Clone(v.Reasoning.Assumptions)
	v.Reasoning.MissingInfo = slices.Clone(v.Reasoning.MissingInfo)
	v.Advice.Together = slices.Clone(v.Advice.Together)
	v.Advice.ForA = slices.Clone(v.Advice.ForA)
	v.Advice.ForB = slices.Clone(v.Advice.ForB)
	v.RawAgentPayload = slices.Clone(v.RawAgentPayload)
	return v
}

func (m *MemoryStore) CreateCase(_ context.Context, c *models.Case) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if _, exists := m.cases[c.ID]; exists {
		return fmt.Errorf("storage: create case %s: %w", c.ID, ErrDuplicate)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = m.now()
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	if c.Language == "" {
		c.Language = "en"
	}
	m.cases[c.ID] = cloneCase(*c)
	return nil
}

func (m *MemoryStore) GetCase(_ context.Context, caseID string) (*models.Case, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.cases[caseID]
	if !ok {
		return nil, notFound("get case " + caseID)
	}
	out := cloneCase(c)
	return &out, nil
}

func (m *MemoryStore) UpdateCase(_ context.Context, c *models.Case) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.cases[c.ID]; !ok {
		return notFound("update case " + c.ID)
	}
	m.cases[c.ID] = cloneCase(*c)
	return nil
}

func (m *MemoryStore) ListCasesForUser(_ context.Context, userID string) ([]models.Case, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Case
	for _, c := range m.cases {
		if c.CanView(userID) {
			out = append(out, cloneCase(c))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) ListPendingCases(_ context.Context) ([]models.Case, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Case
	for _, c := range m.cases {
		if c.Acceptance == models.AcceptancePending {
			out = append(out, cloneCase(c))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) CreateHearing(_ context.Context, h *models.Hearing) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.cases[h.CaseID]; !ok {
		return notFound("create hearing: case " + h.CaseID)
	}
	if h.ID == "" {
		h.ID = uuid.New().String()
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = m.now()
	}
	m.hearings[h.ID] = *h
	return nil
}

func (m *MemoryStore) GetHearing(_ context.Context, hearingID string) (*models.Hearing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	h, ok := m.hearings[hearingID]
	if !ok {
		return nil, notFound("get hearing " + hearingID)
	}
	return &h, nil
}

func (m *MemoryStore) ListHearings(_ context.Context, caseID string) ([]models.Hearing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Hearing
	for _, h := range m.hearings {
		if h.CaseID == caseID {
			out = append(out, h)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Round != out[j].Round {
			return out[i].Round < out[j].Round
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) MaxRound(_ context.Context, caseID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	maxRound := 0
	for _, h := range m.hearings {
		if h.CaseID == caseID && h.Round > maxRound {
			maxRound = h.Round
		}
	}
	return maxRound, nil
}

func (m *MemoryStore) UpdateHearingStatus(_ context.Context, hearingID string, status models.HearingStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.hearings[hearingID]
	if !ok {
		return notFound("update hearing status " + hearingID)
	}
	h.Status = status
	m.hearings[hearingID] = h
	return nil
}

func (m *MemoryStore) ReplaceStatements(_ context.Context, hearingID string, statements []models.Statement) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.hearings[hearingID]; !ok {
		return notFound("replace statements: hearing " + hearingID)
	}
	now := m.now()
	stored := make([]models.Statement, 0, len(statements))
	for i := range statements {
		statements[i].HearingID = hearingID
		if statements[i].ID == "" {
			statements[i].ID = uuid.New().String()
		}
		if statements[i].CreatedAt.IsZero() {
			statements[i].CreatedAt = now
		}
		st := statements[i]
		st.Requests = slices.Clone(st.Requests)
		stored = append(stored, st)
	}
	m.statements[hearingID] = stored
	return nil
}

func (m *MemoryStore) ListStatements(_ context.Context, hearingID string) ([]models.Statement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Statement, 0, len(m.statements[hearingID]))
	for _, st := range m.statements[hearingID] {
		st.Requests = slices.Clone(st.Requests)
		out = append(out, st)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Side < out[j].Side })
	return out, nil
}

func (m *MemoryStore) ReplaceEvidence(_ context.Context, hearingID string, evidence []models.Evidence) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.hearings[hearingID]; !ok {
		return notFound("replace evidence: hearing " + hearingID)
	}
	now := m.now()
	stored := make([]models.Evidence, 0, len(evidence))
	for i := range evidence {
		evidence[i].HearingID = hearingID
		if evidence[i].ID == "" {
			evidence[i].ID = uuid.New().String()
		}
		if evidence[i].CreatedAt.IsZero() {
			evidence[i].CreatedAt = now
		}
		stored = append(stored, evidence[i])
	}
	m.evidence[hearingID] = stored
	return nil
}

func (m *MemoryStore) ListEvidence(_ context.Context, hearingID string) ([]models.Evidence, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return slices.Clone(m.evidence[hearingID]), nil
}

func (m *MemoryStore) UpsertVerdict(_ context.Context, v *models.Verdict) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.hearings[v.HearingID]; !ok {
		return notFound("upsert verdict: hearing " + v.HearingID)
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = m.now()
	}
	m.verdicts[v.HearingID] = cloneVerdict(*v)
	return nil
}

func (m *MemoryStore) GetVerdict(_ context.Context, hearingID string) (*models.Verdict, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.verdicts[hearingID]
	if !ok {
		return nil, notFound("get verdict " + hearingID)
	}
	out := cloneVerdict(v)
	return &out, nil
}

func (m *MemoryStore) caseLock(caseID string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()

	l, ok := m.caseLocks[caseID]
	if !ok {
		l = &sync.Mutex{}
		m.caseLocks[caseID] = l
	}
	return l
}

func (m *MemoryStore) InCaseTx(ctx context.Context, caseID string, fn func(tx Storage) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.RLock()
	_, ok := m.cases[caseID]
	m.mu.RUnlock()
	if !ok {
		return notFound("lock case " + caseID)
	}

	l := m.caseLock(caseID)
	l.Lock()
	defer l.Unlock()

	return fn(m)
}
