// Package store — in-memory Store implementation.
// Used as the default authoritative store (local dev, tests, single-node).
// Supports file-based snapshot persistence so data survives restarts.
package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/agentcontrol/hub/pkg/models"
)

// snapshot is the JSON-serializable shape written to disk.
type snapshot struct {
	Users       map[int64]userRecord              `json:"users"`
	Escalations map[int64]*models.Escalation      `json:"escalations"`
	Messages    []*models.ChatMessage             `json:"messages"`
	Sessions    map[string]*models.AgentSession   `json:"sessions"` // key: sessionId
	Actions     map[int64]*models.AgentAction     `json:"actions"`
	Threats     map[int64]*models.ThreatDetection `json:"threats"`
	Evaluations []*models.JudgeEvaluation         `json:"evaluations"`
	Seq         map[string]int64                  `json:"seq"`
}

// userRecord carries the password hash, which models.User hides from JSON.
type userRecord struct {
	Username     string `json:"username"`
	PasswordHash string `json:"passwordHash"`
}

// MemoryStore implements Store with in-memory maps.
type MemoryStore struct {
	mu          sync.RWMutex
	users       map[int64]*models.User
	escalations map[int64]*models.Escalation
	messages    []*models.ChatMessage // append-only
	sessions    map[string]*models.AgentSession
	actions     map[int64]*models.AgentAction
	threats     map[int64]*models.ThreatDetection
	evaluations []*models.JudgeEvaluation // append-only

	// seq holds the last assigned id per entity.
	seq map[string]int64

	// Persistence
	snapshotPath string        // empty = no persistence
	saveMu       sync.Mutex    // guards file writes
	saveCh       chan struct{} // debounce channel
	doneCh       chan struct{} // signals background goroutines to stop
}

const (
	seqUser       = "user"
	seqEscalation = "escalation"
	seqMessage    = "message"
	seqSession    = "session"
	seqAction     = "action"
	seqThreat     = "threat"
	seqEvaluation = "evaluation"
)

// NewMemoryStore creates a new in-memory store. When dataDir is non-empty,
// data is persisted to dataDir/hub.json and reloaded on the next start.
func NewMemoryStore(dataDir string) *MemoryStore {
	m := &MemoryStore{
		users:       make(map[int64]*models.User),
		escalations: make(map[int64]*models.Escalation),
		sessions:    make(map[string]*models.AgentSession),
		actions:     make(map[int64]*models.AgentAction),
		threats:     make(map[int64]*models.ThreatDetection),
		seq:         make(map[string]int64),
		saveCh:      make(chan struct{}, 1),
		doneCh:      make(chan struct{}),
	}

	if dataDir != "" {
		m.snapshotPath = filepath.Join(dataDir, "hub.json")
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			log.Warn().Err(err).Str("dir", dataDir).Msg("Cannot create data dir, persistence disabled")
			m.snapshotPath = ""
		}
	}

	if m.snapshotPath != "" {
		m.loadSnapshot()
		go m.saveLoop()
	}

	log.Info().Str("snapshot", m.snapshotPath).Msg("Memory store configured")
	return m
}

// requestSave signals the background goroutine to persist data.
// Non-blocking: coalesces multiple rapid writes into one disk flush.
func (m *MemoryStore) requestSave() {
	if m.snapshotPath == "" {
		return
	}
	select {
	case m.saveCh <- struct{}{}:
	default:
		// Already pending
	}
}

// saveLoop debounces save requests (max 1 write per 500ms).
func (m *MemoryStore) saveLoop() {
	for {
		select {
		case <-m.doneCh:
			return
		case <-m.saveCh:
			time.Sleep(500 * time.Millisecond)
			m.saveSnapshot()
		}
	}
}

// saveSnapshot persists all data to disk as JSON.
func (m *MemoryStore) saveSnapshot() {
	m.mu.RLock()
	users := make(map[int64]userRecord, len(m.users))
	for id, u := range m.users {
		users[id] = userRecord{Username: u.Username, PasswordHash: u.PasswordHash}
	}
	snap := snapshot{
		Users:       users,
		Escalations: m.escalations,
		Messages:    m.messages,
		Sessions:    m.sessions,
		Actions:     m.actions,
		Threats:     m.threats,
		Evaluations: m.evaluations,
		Seq:         m.seq,
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	m.mu.RUnlock()

	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal snapshot")
		return
	}

	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	// Write to temp file then rename for atomicity
	tmp := m.snapshotPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		log.Error().Err(err).Str("path", tmp).Msg("Failed to write snapshot tmp")
		return
	}
	if err := os.Rename(tmp, m.snapshotPath); err != nil {
		log.Error().Err(err).Str("path", m.snapshotPath).Msg("Failed to rename snapshot")
		return
	}

	log.Debug().Str("path", m.snapshotPath).Msg("Snapshot saved")
}

// loadSnapshot reads data from disk on startup.
func (m *MemoryStore) loadSnapshot() {
	data, err := os.ReadFile(m.snapshotPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", m.snapshotPath).Msg("No snapshot file found, starting fresh")
			return
		}
		log.Warn().Err(err).Str("path", m.snapshotPath).Msg("Failed to read snapshot")
		return
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Error().Err(err).Str("path", m.snapshotPath).Msg("Failed to parse snapshot, starting fresh")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for id, u := range snap.Users {
		m.users[id] = &models.User{ID: id, Username: u.Username, PasswordHash: u.PasswordHash}
	}
	if snap.Escalations != nil {
		m.escalations = snap.Escalations
	}
	m.messages = snap.Messages
	if snap.Sessions != nil {
		m.sessions = snap.Sessions
	}
	if snap.Actions != nil {
		m.actions = snap.Actions
	}
	if snap.Threats != nil {
		m.threats = snap.Threats
	}
	m.evaluations = snap.Evaluations
	if snap.Seq != nil {
		m.seq = snap.Seq
	}

	log.Info().
		Int("escalations", len(m.escalations)).
		Int("sessions", len(m.sessions)).
		Int("actions", len(m.actions)).
		Int("threats", len(m.threats)).
		Str("path", m.snapshotPath).
		Msg("Snapshot loaded")
}

func (m *MemoryStore) Ping(_ context.Context) error { return nil }

// Close stops background goroutines and forces a final snapshot write.
// Safe to call multiple times (second call is a no-op).
func (m *MemoryStore) Close() error {
	select {
	case <-m.doneCh:
		return nil
	default:
		close(m.doneCh)
	}

	if m.snapshotPath != "" {
		log.Info().Msg("Flushing final snapshot before shutdown...")
		m.saveSnapshot()
	}

	log.Info().Msg("Memory store closed")
	return nil
}

func (m *MemoryStore) Migrate(_ context.Context) error { return nil }

// next returns the next sequential id for entity. Caller holds m.mu.
func (m *MemoryStore) next(entity string) int64 {
	m.seq[entity]++
	return m.seq[entity]
}

func idKey(id int64) string { return strconv.FormatInt(id, 10) }

// ── User Store ──────────────────────────────────────────────

func (m *MemoryStore) CreateUser(_ context.Context, user *models.User) error {
	m.mu.Lock()
	for _, u := range m.users {
		if u.Username == user.Username {
			m.mu.Unlock()
			return &ErrConflict{Entity: "user", Key: user.Username}
		}
	}
	user.ID = m.next(seqUser)
	copy := *user
	m.users[user.ID] = &copy
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Username == username {
			copy := *u
			return &copy, nil
		}
	}
	return nil, &ErrNotFound{Entity: "user", Key: username}
}

// ── Escalation Store ────────────────────────────────────────

func (m *MemoryStore) CreateEscalation(_ context.Context, esc *models.Escalation) error {
	m.mu.Lock()
	esc.ID = m.next(seqEscalation)
	m.escalations[esc.ID] = cloneEscalation(esc)
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) GetEscalation(_ context.Context, id int64) (*models.Escalation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.escalations[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "escalation", Key: idKey(id)}
	}
	return cloneEscalation(e), nil
}

func (m *MemoryStore) ListEscalations(_ context.Context, filter EscalationFilter) ([]models.Escalation, error) {
	m.mu.RLock()
	result := make([]models.Escalation, 0, len(m.escalations))
	for _, e := range m.escalations {
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		result = append(result, *cloneEscalation(e))
	}
	m.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return newerFirst(result[i].CreatedAt, result[j].CreatedAt, result[i].ID, result[j].ID)
	})
	return result, nil
}

func (m *MemoryStore) UpdateEscalation(_ context.Context, id int64, fn func(*models.Escalation) error) (*models.Escalation, error) {
	m.mu.Lock()
	cur, ok := m.escalations[id]
	if !ok {
		m.mu.Unlock()
		return nil, &ErrNotFound{Entity: "escalation", Key: idKey(id)}
	}
	work := cloneEscalation(cur)
	if err := fn(work); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	work.ID = id
	m.escalations[id] = cloneEscalation(work)
	m.mu.Unlock()
	m.requestSave()
	return work, nil
}

// ── Chat Store ──────────────────────────────────────────────

func (m *MemoryStore) CreateChatMessage(_ context.Context, msg *models.ChatMessage) error {
	m.mu.Lock()
	msg.ID = m.next(seqMessage)
	copy := *msg
	m.messages = append(m.messages, &copy)
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) ListChatMessages(_ context.Context, escalationID int64) ([]models.ChatMessage, error) {
	m.mu.RLock()
	result := make([]models.ChatMessage, 0)
	for _, msg := range m.messages {
		if msg.EscalationID == escalationID {
			result = append(result, *msg)
		}
	}
	m.mu.RUnlock()

	// messages is already in insertion order; the stable sort keeps it for ties.
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result, nil
}

// ── Agent Session Store ─────────────────────────────────────

func (m *MemoryStore) CreateAgentSession(_ context.Context, session *models.AgentSession) error {
	m.mu.Lock()
	if _, exists := m.sessions[session.SessionID]; exists {
		m.mu.Unlock()
		return &ErrConflict{Entity: "agent session", Key: session.SessionID}
	}
	session.ID = m.next(seqSession)
	m.sessions[session.SessionID] = cloneSession(session)
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) GetAgentSession(_ context.Context, sessionID string) (*models.AgentSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, &ErrNotFound{Entity: "agent session", Key: sessionID}
	}
	return cloneSession(s), nil
}

func (m *MemoryStore) ListAgentSessions(_ context.Context) ([]models.AgentSession, error) {
	m.mu.RLock()
	result := make([]models.AgentSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		result = append(result, *cloneSession(s))
	}
	m.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return newerFirst(result[i].StartedAt, result[j].StartedAt, result[i].ID, result[j].ID)
	})
	return result, nil
}

func (m *MemoryStore) UpdateAgentSession(_ context.Context, sessionID string, fn func(*models.AgentSession) error) (*models.AgentSession, error) {
	m.mu.Lock()
	cur, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return nil, &ErrNotFound{Entity: "agent session", Key: sessionID}
	}
	work := cloneSession(cur)
	if err := fn(work); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	work.ID, work.SessionID = cur.ID, cur.SessionID
	m.sessions[sessionID] = cloneSession(work)
	m.mu.Unlock()
	m.requestSave()
	return work, nil
}

// ── Agent Action Store ──────────────────────────────────────

func (m *MemoryStore) CreateAgentAction(_ context.Context, action *models.AgentAction) error {
	m.mu.Lock()
	action.ID = m.next(seqAction)
	m.actions[action.ID] = cloneAction(action)
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) GetAgentAction(_ context.Context, id int64) (*models.AgentAction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.actions[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "agent action", Key: idKey(id)}
	}
	return cloneAction(a), nil
}

func (m *MemoryStore) ListAgentActions(_ context.Context, filter ActionFilter) ([]models.AgentAction, error) {
	m.mu.RLock()
	result := make([]models.AgentAction, 0)
	for _, a := range m.actions {
		if !filter.match(a) {
			continue
		}
		result = append(result, *cloneAction(a))
	}
	m.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return newerFirst(result[i].Timestamp, result[j].Timestamp, result[i].ID, result[j].ID)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (m *MemoryStore) UpdateAgentAction(_ context.Context, id int64, fn func(*models.AgentAction) error) (*models.AgentAction, error) {
	m.mu.Lock()
	cur, ok := m.actions[id]
	if !ok {
		m.mu.Unlock()
		return nil, &ErrNotFound{Entity: "agent action", Key: idKey(id)}
	}
	work := cloneAction(cur)
	if err := fn(work); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	work.ID = id
	m.actions[id] = cloneAction(work)
	m.mu.Unlock()
	m.requestSave()
	return work, nil
}

// ── Threat Store ────────────────────────────────────────────

func (m *MemoryStore) CreateThreat(_ context.Context, threat *models.ThreatDetection) error {
	m.mu.Lock()
	threat.ID = m.next(seqThreat)
	m.threats[threat.ID] = cloneThreat(threat)
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) GetThreat(_ context.Context, id int64) (*models.ThreatDetection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.threats[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "threat detection", Key: idKey(id)}
	}
	return cloneThreat(t), nil
}

func (m *MemoryStore) ListThreats(_ context.Context, filter ThreatFilter) ([]models.ThreatDetection, error) {
	m.mu.RLock()
	result := make([]models.ThreatDetection, 0, len(m.threats))
	for _, t := range m.threats {
		if filter.SessionID != "" && t.SessionID != filter.SessionID {
			continue
		}
		if filter.Unmitigated && t.Mitigated {
			continue
		}
		result = append(result, *cloneThreat(t))
	}
	m.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return newerFirst(result[i].DetectedAt, result[j].DetectedAt, result[i].ID, result[j].ID)
	})
	return result, nil
}

func (m *MemoryStore) UpdateThreat(_ context.Context, id int64, fn func(*models.ThreatDetection) error) (*models.ThreatDetection, error) {
	m.mu.Lock()
	cur, ok := m.threats[id]
	if !ok {
		m.mu.Unlock()
		return nil, &ErrNotFound{Entity: "threat detection", Key: idKey(id)}
	}
	work := cloneThreat(cur)
	if err := fn(work); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	work.ID = id
	m.threats[id] = cloneThreat(work)
	m.mu.Unlock()
	m.requestSave()
	return work, nil
}

// ── Judge Store ─────────────────────────────────────────────

func (m *MemoryStore) CreateJudgeEvaluation(_ context.Context, eval *models.JudgeEvaluation) error {
	m.mu.Lock()
	eval.ID = m.next(seqEvaluation)
	m.evaluations = append(m.evaluations, cloneEvaluation(eval))
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) ListJudgeEvaluations(_ context.Context, sessionID string) ([]models.JudgeEvaluation, error) {
	m.mu.RLock()
	result := make([]models.JudgeEvaluation, 0)
	for _, e := range m.evaluations {
		if sessionID != "" && e.SessionID != sessionID {
			continue
		}
		result = append(result, *cloneEvaluation(e))
	}
	m.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return newerFirst(result[i].Timestamp, result[j].Timestamp, result[i].ID, result[j].ID)
	})
	return result, nil
}

// ── Copy helpers ────────────────────────────────────────────

// newerFirst orders by time descending, then by id descending.
func newerFirst(ti, tj time.Time, idi, idj int64) bool {
	if !ti.Equal(tj) {
		return ti.After(tj)
	}
	return idi > idj
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneEscalation(e *models.Escalation) *models.Escalation {
	c := *e
	c.Context = models.CloneMap(e.Context)
	c.OperatorID = cloneString(e.OperatorID)
	c.Response = cloneString(e.Response)
	c.ResolvedAt = cloneTime(e.ResolvedAt)
	return &c
}

func cloneSession(s *models.AgentSession) *models.AgentSession {
	c := *s
	c.Metadata = models.CloneMap(s.Metadata)
	c.CompletedAt = cloneTime(s.CompletedAt)
	return &c
}

func cloneAction(a *models.AgentAction) *models.AgentAction {
	c := *a
	c.Payload = models.CloneMap(a.Payload)
	c.TargetAgent = cloneString(a.TargetAgent)
	return &c
}

func cloneThreat(t *models.ThreatDetection) *models.ThreatDetection {
	c := *t
	c.Evidence = models.CloneMap(t.Evidence)
	return &c
}

func cloneEvaluation(e *models.JudgeEvaluation) *models.JudgeEvaluation {
	c := *e
	c.Assessment = models.CloneMap(e.Assessment)
	c.TargetActions = append([]int64(nil), e.TargetActions...)
	return &c
}

var _ Store = (*MemoryStore)(nil)
