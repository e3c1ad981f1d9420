package inventory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/toolcrib/toolcrib/internal/shared"
	"github.com/toolcrib/toolcrib/internal/tools"
)

type countKey struct {
	session int64
	tool    int64
}

type memoryState struct {
	tools       map[int64]tools.Tool
	issued      map[int64]int
	sessions    map[int64]Session
	counts      map[countKey]Count
	corrections map[int64]Correction
	nextID      int64
}

func (s memoryState) clone() memoryState {
	out := memoryState{
		tools:       map[int64]tools.Tool{},
		issued:      map[int64]int{},
		sessions:    map[int64]Session{},
		counts:      map[countKey]Count{},
		corrections: map[int64]Correction{},
		nextID:      s.nextID,
	}
	for k, v := range s.tools {
		out.tools[k] = v
	}
	for k, v := range s.issued {
		out.issued[k] = v
	}
	for k, v := range s.sessions {
		out.sessions[k] = v
	}
	for k, v := range s.counts {
		out.counts[k] = v
	}
	for k, v := range s.corrections {
		out.corrections[k] = v
	}
	return out
}

type memoryRepo struct {
	mu          sync.Mutex
	state       memoryState
	diffQueries int
	// When diffGate is set, Differences signals diffStarted once, waits for
	// the gate and reports its ctx outcome on diffDone.
	diffStarted chan struct{}
	diffGate    chan struct{}
	diffDone    chan error
	startOnce   sync.Once
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{state: memoryState{}.clone()}
}

func (m *memoryRepo) seedTool(t tools.Tool, issued int) tools.Tool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.nextID++
	t.ID = m.state.nextID
	t.Status = tools.DeriveStatus(t.Quantity, issued, t.ServiceQuantity)
	m.state.tools[t.ID] = t
	m.state.issued[t.ID] = issued
	return t
}

func (m *memoryRepo) tool(id int64) tools.Tool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.tools[id]
}

func (m *memoryRepo) count(sessionID, toolID int64) (Count, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.state.counts[countKey{sessionID, toolID}]
	return c, ok
}

func (m *memoryRepo) correction(id int64) (Correction, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.state.corrections[id]
	return c, ok
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

func (m *memoryRepo) CreateSession(ctx context.Context, s Session) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.nextID++
	s.ID = m.state.nextID
	m.state.sessions[s.ID] = s
	return s, nil
}

func (m *memoryRepo) GetSession(ctx context.Context, id int64) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.state.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return s, nil
}

func (m *memoryRepo) ListSessions(ctx context.Context, filter SessionFilter) ([]Session, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := []Session{}
	for _, s := range m.state.sessions {
		if filter.Status == "" || s.Status == filter.Status {
			all = append(all, s)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	total := len(all)
	if filter.Offset >= total {
		return []Session{}, total, nil
	}
	end := filter.Offset + filter.Limit
	if filter.Limit <= 0 || end > total {
		end = total
	}
	return all[filter.Offset:end], total, nil
}

func (m *memoryRepo) Differences(ctx context.Context, sessionID int64) ([]Difference, error) {
	if m.diffGate != nil {
		m.startOnce.Do(func() { close(m.diffStarted) })
		select {
		case <-m.diffGate:
			m.diffDone <- nil
		case <-ctx.Done():
			m.diffDone <- ctx.Err()
			return nil, ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.diffQueries++
	out := []Difference{}
	for k, c := range m.state.counts {
		if k.session != sessionID {
			continue
		}
		t := m.state.tools[k.tool]
		out = append(out, Difference{
			ToolID:     t.ID,
			ToolName:   t.Name,
			CountedQty: c.CountedQty,
			SystemQty:  t.Quantity,
			Difference: c.CountedQty - t.Quantity,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ToolID < out[j].ToolID })
	return out, nil
}

func (m *memoryRepo) ListCorrections(ctx context.Context, sessionID int64) ([]Correction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Correction{}
	for _, c := range m.state.corrections {
		if c.SessionID != nil && *c.SessionID == sessionID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memoryTx struct {
	state *memoryState
}

func (t *memoryTx) LockLedger(ctx context.Context, toolID int64) (tools.Ledger, error) {
	tool, ok := t.state.tools[toolID]
	if !ok {
		return tools.Ledger{}, tools.ErrToolNotFound
	}
	return tools.Ledger{Tool: tool, IssuedQty: t.state.issued[toolID]}, nil
}

func (t *memoryTx) UpdateLedger(ctx context.Context, tool tools.Tool) error {
	t.state.tools[tool.ID] = tool
	return nil
}

func (t *memoryTx) LockSession(ctx context.Context, id int64, exclusive bool) (Session, error) {
	s, ok := t.state.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return s, nil
}

func (t *memoryTx) UpdateSession(ctx context.Context, s Session) error {
	t.state.sessions[s.ID] = s
	return nil
}

func (t *memoryTx) DeleteSession(ctx context.Context, id int64) error {
	for cid, c := range t.state.corrections {
		if c.SessionID == nil || *c.SessionID != id {
			continue
		}
		if c.Accepted() {
			c.SessionID = nil
			t.state.corrections[cid] = c
			continue
		}
		delete(t.state.corrections, cid)
	}
	for k := range t.state.counts {
		if k.session == id {
			delete(t.state.counts, k)
		}
	}
	delete(t.state.sessions, id)
	return nil
}

func (t *memoryTx) ResolveCode(ctx context.Context, code string) (tools.Tool, error) {
	ids := make([]int64, 0, len(t.state.tools))
	for id := range t.state.tools {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fields := []func(tools.Tool) string{
		func(x tools.Tool) string { return x.SKU },
		func(x tools.Tool) string { return x.Barcode },
		func(x tools.Tool) string { return x.QRCode },
		func(x tools.Tool) string { return x.InventoryNumber },
	}
	for _, field := range fields {
		for _, id := range ids {
			if field(t.state.tools[id]) == code {
				return t.state.tools[id], nil
			}
		}
	}
	return tools.Tool{}, ErrCodeNotFound
}

func (t *memoryTx) ToolExists(ctx context.Context, toolID int64) (bool, error) {
	_, ok := t.state.tools[toolID]
	return ok, nil
}

func (t *memoryTx) AddCount(ctx context.Context, sessionID, toolID int64, qty int, at time.Time) (Count, error) {
	k := countKey{sessionID, toolID}
	c := t.state.counts[k]
	c.SessionID, c.ToolID = sessionID, toolID
	c.CountedQty += qty
	c.UpdatedAt = at
	t.state.counts[k] = c
	return c, nil
}

func (t *memoryTx) SetCount(ctx context.Context, sessionID, toolID int64, qty int, at time.Time) (Count, error) {
	c := Count{SessionID: sessionID, ToolID: toolID, CountedQty: qty, UpdatedAt: at}
	t.state.counts[countKey{sessionID, toolID}] = c
	return c, nil
}

func (t *memoryTx) InsertCorrection(ctx context.Context, c Correction) (Correction, error) {
	t.state.nextID++
	c.ID = t.state.nextID
	t.state.corrections[c.ID] = c
	return c, nil
}

func (t *memoryTx) GetCorrectionForUpdate(ctx context.Context, id int64) (Correction, error) {
	c, ok := t.state.corrections[id]
	if !ok {
		return Correction{}, ErrCorrectionNotFound
	}
	return c, nil
}

func (t *memoryTx) MarkCorrectionAccepted(ctx context.Context, id, userID int64, at time.Time) error {
	c := t.state.corrections[id]
	if c.Accepted() {
		return ErrAlreadyAccepted
	}
	c.AcceptedByUserID = &userID
	c.AcceptedAt = &at
	t.state.corrections[id] = c
	return nil
}

func (t *memoryTx) DeleteCorrection(ctx context.Context, id int64) error {
	if t.state.corrections[id].Accepted() {
		return ErrAlreadyAccepted
	}
	delete(t.state.corrections, id)
	return nil
}

type recordingEvents struct {
	mu       sync.Mutex
	accepted []CorrectionAcceptedEvent
	ended    []SessionEndedEvent
}

func (r *recordingEvents) HandleCorrectionAccepted(ctx context.Context, evt CorrectionAcceptedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accepted = append(r.accepted, evt)
	return nil
}

func (r *recordingEvents) HandleSessionEnded(ctx context.Context, evt SessionEndedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ended = append(r.ended, evt)
	return nil
}

var (
	admin  = shared.Principal{UserID: 1, Role: "admin", Privileged: true}
	worker = shared.Principal{UserID: 2, Role: "worker"}
)
