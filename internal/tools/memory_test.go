package tools

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/toolcrib/toolcrib/internal/shared"
)

type memoryState struct {
	tools   map[int64]Tool
	issues  map[int64]Issue
	returns []IssueReturn
	history []ServiceHistoryEntry
	nextID  int64
}

func (s memoryState) clone() memoryState {
	out := memoryState{
		tools:   make(map[int64]Tool, len(s.tools)),
		issues:  make(map[int64]Issue, len(s.issues)),
		returns: append([]IssueReturn(nil), s.returns...),
		history: append([]ServiceHistoryEntry(nil), s.history...),
		nextID:  s.nextID,
	}
	for k, v := range s.tools {
		out.tools[k] = v
	}
	for k, v := range s.issues {
		out.issues[k] = v
	}
	return out
}

// memoryRepo serialises every transaction, which is what row locks give the
// real repository for a single tool.
type memoryRepo struct {
	mu    sync.Mutex
	state memoryState
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{state: memoryState{
		tools:  map[int64]Tool{},
		issues: map[int64]Issue{},
	}}
}

func (m *memoryRepo) seed(tool Tool) Tool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.nextID++
	tool.ID = m.state.nextID
	if tool.Status == "" {
		tool.Status = DeriveStatus(tool.Quantity, 0, tool.ServiceQuantity)
	}
	m.state.tools[tool.ID] = tool
	return tool
}

func (m *memoryRepo) tool(id int64) Tool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.tools[id]
}

func (m *memoryRepo) issueReturns(issueID int64) []IssueReturn {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []IssueReturn
	for _, r := range m.state.returns {
		if r.IssueID == issueID {
			out = append(out, r)
		}
	}
	return out
}

func (m *memoryRepo) setStatus(id int64, status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.state.tools[id]
	t.Status = status
	m.state.tools[id] = t
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := m.state.clone()
	if err := fn(ctx, &memoryTx{state: &m.state}); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

func (m *memoryRepo) CreateTool(ctx context.Context, tool Tool) (Tool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.state.tools {
		if tool.SKU != "" && existing.SKU == tool.SKU {
			return Tool{}, ErrDuplicateIdentifier
		}
	}
	m.state.nextID++
	tool.ID = m.state.nextID
	tool.CreatedAt = time.Now()
	tool.UpdatedAt = tool.CreatedAt
	m.state.tools[tool.ID] = tool
	return tool, nil
}

func (m *memoryRepo) GetLedger(ctx context.Context, toolID int64) (Ledger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memoryTx{state: &m.state}).LockLedger(ctx, toolID)
}

func (m *memoryRepo) ListTools(ctx context.Context, filter ListFilter) ([]Tool, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []Tool
	for _, t := range m.state.tools {
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(t.Name), strings.ToLower(filter.Search)) {
			continue
		}
		all = append(all, t)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	total := len(all)
	if filter.Offset >= total {
		return []Tool{}, total, nil
	}
	end := filter.Offset + filter.Limit
	if filter.Limit <= 0 || end > total {
		end = total
	}
	return all[filter.Offset:end], total, nil
}

func (m *memoryRepo) ListIssues(ctx context.Context, toolID int64) ([]Issue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Issue{}
	for _, i := range m.state.issues {
		if i.ToolID == toolID {
			out = append(out, i)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID > out[b].ID })
	return out, nil
}

func (m *memoryRepo) ServiceHistory(ctx context.Context, toolID int64) ([]ServiceHistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []ServiceHistoryEntry{}
	for _, e := range m.state.history {
		if e.ToolID == toolID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memoryRepo) ToolIDsAfter(ctx context.Context, afterID int64, limit int) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []int64
	for id := range m.state.tools {
		if id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

type memoryTx struct {
	state *memoryState
}

func (t *memoryTx) LockLedger(ctx context.Context, toolID int64) (Ledger, error) {
	tool, ok := t.state.tools[toolID]
	if !ok {
		return Ledger{}, ErrToolNotFound
	}
	ledger := Ledger{Tool: tool}
	for _, i := range t.state.issues {
		if i.ToolID == toolID && i.Status == IssueStatusIssued {
			ledger.IssuedQty += i.Outstanding()
		}
	}
	return ledger, nil
}

func (t *memoryTx) UpdateLedger(ctx context.Context, tool Tool) error {
	if _, ok := t.state.tools[tool.ID]; !ok {
		return ErrToolNotFound
	}
	tool.UpdatedAt = time.Now()
	t.state.tools[tool.ID] = tool
	return nil
}

func (t *memoryTx) InsertIssue(ctx context.Context, issue Issue) (Issue, error) {
	t.state.nextID++
	issue.ID = t.state.nextID
	issue.Status = IssueStatusIssued
	t.state.issues[issue.ID] = issue
	return issue, nil
}

func (t *memoryTx) GetIssueForUpdate(ctx context.Context, issueID int64) (Issue, error) {
	issue, ok := t.state.issues[issueID]
	if !ok {
		return Issue{}, ErrIssueNotFound
	}
	return issue, nil
}

func (t *memoryTx) UpdateIssue(ctx context.Context, issue Issue) error {
	t.state.issues[issue.ID] = issue
	return nil
}

func (t *memoryTx) InsertIssueReturn(ctx context.Context, ret IssueReturn) error {
	t.state.nextID++
	ret.ID = t.state.nextID
	t.state.returns = append(t.state.returns, ret)
	return nil
}

func (t *memoryTx) InsertServiceEntry(ctx context.Context, entry ServiceHistoryEntry) (ServiceHistoryEntry, error) {
	t.state.nextID++
	entry.ID = t.state.nextID
	t.state.history = append(t.state.history, entry)
	return entry, nil
}

type memoryAudit struct {
	mu      sync.Mutex
	entries []shared.AuditLog
}

func (a *memoryAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, log)
	return nil
}

type memoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func (m *memoryIdempotency) Claim(ctx context.Context, scope, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys == nil {
		m.keys = map[string]struct{}{}
	}
	k := scope + ":" + key
	if _, ok := m.keys[k]; ok {
		return shared.ErrIdempotencyConflict
	}
	m.keys[k] = struct{}{}
	return nil
}

func (m *memoryIdempotency) Release(ctx context.Context, scope, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, scope+":"+key)
	return nil
}
