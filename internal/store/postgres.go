package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/agentcontrol/hub/pkg/models"
)

// PostgresStore implements Store on PostgreSQL. Free-form maps are stored as
// JSONB. Updates run SELECT ... FOR UPDATE inside a transaction so the
// read-modify-write is atomic per record across processes sharing the database.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to connURL and verifies the connection.
// Call Migrate before first use.
func NewPostgresStore(ctx context.Context, connURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connURL)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	log.Info().Msg("PostgreSQL store connected")
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *PostgresStore) Close() error {
	s.pool.Close()
	log.Info().Msg("PostgreSQL store closed")
	return nil
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS hub_users (
			id            BIGSERIAL PRIMARY KEY,
			username      TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS hub_escalations (
			id                BIGSERIAL PRIMARY KEY,
			agent_id          TEXT NOT NULL,
			title             TEXT NOT NULL,
			agent_type        TEXT NOT NULL,
			risk_level        TEXT NOT NULL,
			escalation_reason TEXT NOT NULL,
			question          TEXT NOT NULL,
			context           JSONB NOT NULL DEFAULT '{}',
			sla_minutes       INTEGER NOT NULL,
			created_at        TIMESTAMPTZ NOT NULL,
			status            TEXT NOT NULL,
			operator_id       TEXT,
			response          TEXT,
			resolved_at       TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_hub_escalations_created ON hub_escalations (created_at DESC);

		CREATE TABLE IF NOT EXISTS hub_chat_messages (
			id            BIGSERIAL PRIMARY KEY,
			escalation_id BIGINT NOT NULL,
			sender        TEXT NOT NULL,
			message       TEXT NOT NULL,
			timestamp     TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_hub_chat_escalation ON hub_chat_messages (escalation_id, timestamp, id);

		CREATE TABLE IF NOT EXISTS hub_agent_sessions (
			id              BIGSERIAL PRIMARY KEY,
			session_id      TEXT NOT NULL UNIQUE,
			orchestrator_id TEXT NOT NULL,
			status          TEXT NOT NULL,
			started_at      TIMESTAMPTZ NOT NULL,
			completed_at    TIMESTAMPTZ,
			metadata        JSONB
		);

		CREATE TABLE IF NOT EXISTS hub_agent_actions (
			id           BIGSERIAL PRIMARY KEY,
			session_id   TEXT NOT NULL,
			agent_id     TEXT NOT NULL,
			action_type  TEXT NOT NULL,
			target_agent TEXT,
			payload      JSONB,
			timestamp    TIMESTAMPTZ NOT NULL,
			risk_score   INTEGER NOT NULL,
			flagged      BOOLEAN NOT NULL DEFAULT FALSE
		);
		CREATE INDEX IF NOT EXISTS idx_hub_actions_session ON hub_agent_actions (session_id, timestamp DESC);

		CREATE TABLE IF NOT EXISTS hub_threat_detections (
			id             BIGSERIAL PRIMARY KEY,
			session_id     TEXT NOT NULL,
			threat_type    TEXT NOT NULL,
			severity       TEXT NOT NULL,
			description    TEXT NOT NULL,
			evidence       JSONB NOT NULL DEFAULT '{}',
			detected_at    TIMESTAMPTZ NOT NULL,
			judge_model_id TEXT NOT NULL,
			confidence     INTEGER NOT NULL,
			mitigated      BOOLEAN NOT NULL DEFAULT FALSE
		);

		CREATE TABLE IF NOT EXISTS hub_judge_evaluations (
			id                   BIGSERIAL PRIMARY KEY,
			session_id           TEXT NOT NULL,
			judge_model_id       TEXT NOT NULL,
			evaluation_type      TEXT NOT NULL,
			target_actions       BIGINT[] NOT NULL,
			assessment           JSONB NOT NULL DEFAULT '{}',
			recommendation       TEXT NOT NULL,
			timestamp            TIMESTAMPTZ NOT NULL,
			escalation_triggered BOOLEAN NOT NULL DEFAULT FALSE
		);
	`
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}

// withTx runs fn in a transaction, committing only when fn succeeds.
func (s *PostgresStore) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func notFoundOr(err error, entity, key string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return &ErrNotFound{Entity: entity, Key: key}
	}
	return err
}

func conflictOr(err error, entity, key string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return &ErrConflict{Entity: entity, Key: key}
	}
	return err
}

// ── User Store ──────────────────────────────────────────────

func (s *PostgresStore) CreateUser(ctx context.Context, user *models.User) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO hub_users (username, password_hash) VALUES ($1, $2) RETURNING id`,
		user.Username, user.PasswordHash).Scan(&user.ID)
	return conflictOr(err, "user", user.Username)
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, password_hash FROM hub_users WHERE username = $1`, username).
		Scan(&u.ID, &u.Username, &u.PasswordHash)
	if err != nil {
		return nil, notFoundOr(err, "user", username)
	}
	return &u, nil
}

// ── Escalation Store ────────────────────────────────────────

const escalationColumns = `id, agent_id, title, agent_type, risk_level, escalation_reason, question,
	context, sla_minutes, created_at, status, operator_id, response, resolved_at`

func scanEscalation(row pgx.Row) (*models.Escalation, error) {
	var e models.Escalation
	err := row.Scan(&e.ID, &e.AgentID, &e.Title, &e.AgentType, &e.RiskLevel, &e.EscalationReason,
		&e.Question, &e.Context, &e.SLAMinutes, &e.CreatedAt, &e.Status, &e.OperatorID, &e.Response, &e.ResolvedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *PostgresStore) CreateEscalation(ctx context.Context, e *models.Escalation) error {
	return s.pool.QueryRow(ctx, `INSERT INTO hub_escalations
		(agent_id, title, agent_type, risk_level, escalation_reason, question, context,
		 sla_minutes, created_at, status, operator_id, response, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13) RETURNING id`,
		e.AgentID, e.Title, e.AgentType, e.RiskLevel, e.EscalationReason, e.Question, jsonMap(e.Context),
		e.SLAMinutes, e.CreatedAt, e.Status, e.OperatorID, e.Response, e.ResolvedAt).Scan(&e.ID)
}

func (s *PostgresStore) GetEscalation(ctx context.Context, id int64) (*models.Escalation, error) {
	e, err := scanEscalation(s.pool.QueryRow(ctx,
		`SELECT `+escalationColumns+` FROM hub_escalations WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err, "escalation", idKey(id))
	}
	return e, nil
}

func (s *PostgresStore) ListEscalations(ctx context.Context, filter EscalationFilter) ([]models.Escalation, error) {
	query := `SELECT ` + escalationColumns + ` FROM hub_escalations`
	var args []interface{}
	if filter.Status != "" {
		query += ` WHERE status = $1`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list escalations: %w", err)
	}
	defer rows.Close()

	result := make([]models.Escalation, 0)
	for rows.Next() {
		e, err := scanEscalation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}
	return result, rows.Err()
}

func (s *PostgresStore) UpdateEscalation(ctx context.Context, id int64, fn func(*models.Escalation) error) (*models.Escalation, error) {
	var out *models.Escalation
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		e, err := scanEscalation(tx.QueryRow(ctx,
			`SELECT `+escalationColumns+` FROM hub_escalations WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return notFoundOr(err, "escalation", idKey(id))
		}
		if err := fn(e); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `UPDATE hub_escalations SET
			title = $2, risk_level = $3, question = $4, context = $5, sla_minutes = $6,
			status = $7, operator_id = $8, response = $9, resolved_at = $10
			WHERE id = $1`,
			id, e.Title, e.RiskLevel, e.Question, jsonMap(e.Context), e.SLAMinutes,
			e.Status, e.OperatorID, e.Response, e.ResolvedAt)
		out = e
		return err
	})
	if err != nil {
		return nil, err
	}
	out.ID = id
	return out, nil
}

// ── Chat Store ──────────────────────────────────────────────

func (s *PostgresStore) CreateChatMessage(ctx context.Context, msg *models.ChatMessage) error {
	return s.pool.QueryRow(ctx, `INSERT INTO hub_chat_messages (escalation_id, sender, message, timestamp)
		VALUES ($1, $2, $3, $4) RETURNING id`,
		msg.EscalationID, msg.Sender, msg.Message, msg.Timestamp).Scan(&msg.ID)
}

func (s *PostgresStore) ListChatMessages(ctx context.Context, escalationID int64) ([]models.ChatMessage, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, escalation_id, sender, message, timestamp
		FROM hub_chat_messages WHERE escalation_id = $1 ORDER BY timestamp ASC, id ASC`, escalationID)
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	defer rows.Close()

	result := make([]models.ChatMessage, 0)
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.ID, &m.EscalationID, &m.Sender, &m.Message, &m.Timestamp); err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

// ── Agent Session Store ─────────────────────────────────────

const sessionColumns = `id, session_id, orchestrator_id, status, started_at, completed_at, metadata`

func scanSession(row pgx.Row) (*models.AgentSession, error) {
	var a models.AgentSession
	if err := row.Scan(&a.ID, &a.SessionID, &a.OrchestratorID, &a.Status, &a.StartedAt, &a.CompletedAt, &a.Metadata); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *PostgresStore) CreateAgentSession(ctx context.Context, a *models.AgentSession) error {
	err := s.pool.QueryRow(ctx, `INSERT INTO hub_agent_sessions
		(session_id, orchestrator_id, status, started_at, completed_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		a.SessionID, a.OrchestratorID, a.Status, a.StartedAt, a.CompletedAt, a.Metadata).Scan(&a.ID)
	return conflictOr(err, "agent session", a.SessionID)
}

func (s *PostgresStore) GetAgentSession(ctx context.Context, sessionID string) (*models.AgentSession, error) {
	a, err := scanSession(s.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM hub_agent_sessions WHERE session_id = $1`, sessionID))
	if err != nil {
		return nil, notFoundOr(err, "agent session", sessionID)
	}
	return a, nil
}

func (s *PostgresStore) ListAgentSessions(ctx context.Context) ([]models.AgentSession, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM hub_agent_sessions ORDER BY started_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list agent sessions: %w", err)
	}
	defer rows.Close()

	result := make([]models.AgentSession, 0)
	for rows.Next() {
		a, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

func (s *PostgresStore) UpdateAgentSession(ctx context.Context, sessionID string, fn func(*models.AgentSession) error) (*models.AgentSession, error) {
	var out *models.AgentSession
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		a, err := scanSession(tx.QueryRow(ctx,
			`SELECT `+sessionColumns+` FROM hub_agent_sessions WHERE session_id = $1 FOR UPDATE`, sessionID))
		if err != nil {
			return notFoundOr(err, "agent session", sessionID)
		}
		id := a.ID
		if err := fn(a); err != nil {
			return err
		}
		a.ID, a.SessionID = id, sessionID
		_, err = tx.Exec(ctx, `UPDATE hub_agent_sessions SET status = $2, completed_at = $3, metadata = $4
			WHERE session_id = $1`, sessionID, a.Status, a.CompletedAt, a.Metadata)
		out = a
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ── Agent Action Store ──────────────────────────────────────

const actionColumns = `id, session_id, agent_id, action_type, target_agent, payload, timestamp, risk_score, flagged`

func scanAction(row pgx.Row) (*models.AgentAction, error) {
	var a models.AgentAction
	if err := row.Scan(&a.ID, &a.SessionID, &a.AgentID, &a.ActionType, &a.TargetAgent, &a.Payload,
		&a.Timestamp, &a.RiskScore, &a.Flagged); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *PostgresStore) CreateAgentAction(ctx context.Context, a *models.AgentAction) error {
	return s.pool.QueryRow(ctx, `INSERT INTO hub_agent_actions
		(session_id, agent_id, action_type, target_agent, payload, timestamp, risk_score, flagged)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		a.SessionID, a.AgentID, a.ActionType, a.TargetAgent, a.Payload, a.Timestamp, a.RiskScore, a.Flagged).Scan(&a.ID)
}

func (s *PostgresStore) GetAgentAction(ctx context.Context, id int64) (*models.AgentAction, error) {
	a, err := scanAction(s.pool.QueryRow(ctx,
		`SELECT `+actionColumns+` FROM hub_agent_actions WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err, "agent action", idKey(id))
	}
	return a, nil
}

func (s *PostgresStore) ListAgentActions(ctx context.Context, filter ActionFilter) ([]models.AgentAction, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.SessionID != "" {
		args = append(args, filter.SessionID)
		where = append(where, fmt.Sprintf("session_id = $%d", len(args)))
	}
	if len(filter.AgentIDs) > 0 {
		args = append(args, filter.AgentIDs)
		where = append(where, fmt.Sprintf("agent_id = ANY($%d)", len(args)))
	}
	if filter.Since != nil {
		args = append(args, *filter.Since)
		where = append(where, fmt.Sprintf("timestamp >= $%d", len(args)))
	}

	query := `SELECT ` + actionColumns + ` FROM hub_agent_actions`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY timestamp DESC, id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list agent actions: %w", err)
	}
	defer rows.Close()

	result := make([]models.AgentAction, 0)
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

func (s *PostgresStore) UpdateAgentAction(ctx context.Context, id int64, fn func(*models.AgentAction) error) (*models.AgentAction, error) {
	var out *models.AgentAction
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		a, err := scanAction(tx.QueryRow(ctx,
			`SELECT `+actionColumns+` FROM hub_agent_actions WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return notFoundOr(err, "agent action", idKey(id))
		}
		if err := fn(a); err != nil {
			return err
		}
		a.ID = id
		_, err = tx.Exec(ctx, `UPDATE hub_agent_actions SET risk_score = $2, flagged = $3 WHERE id = $1`,
			id, a.RiskScore, a.Flagged)
		out = a
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ── Threat Store ────────────────────────────────────────────

const threatColumns = `id, session_id, threat_type, severity, description, evidence, detected_at,
	judge_model_id, confidence, mitigated`

func scanThreat(row pgx.Row) (*models.ThreatDetection, error) {
	var t models.ThreatDetection
	if err := row.Scan(&t.ID, &t.SessionID, &t.ThreatType, &t.Severity, &t.Description, &t.Evidence,
		&t.DetectedAt, &t.JudgeModelID, &t.Confidence, &t.Mitigated); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *PostgresStore) CreateThreat(ctx context.Context, t *models.ThreatDetection) error {
	return s.pool.QueryRow(ctx, `INSERT INTO hub_threat_detections
		(session_id, threat_type, severity, description, evidence, detected_at, judge_model_id, confidence, mitigated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		t.SessionID, t.ThreatType, t.Severity, t.Description, jsonMap(t.Evidence), t.DetectedAt,
		t.JudgeModelID, t.Confidence, t.Mitigated).Scan(&t.ID)
}

func (s *PostgresStore) GetThreat(ctx context.Context, id int64) (*models.ThreatDetection, error) {
	t, err := scanThreat(s.pool.QueryRow(ctx,
		`SELECT `+threatColumns+` FROM hub_threat_detections WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err, "threat detection", idKey(id))
	}
	return t, nil
}

func (s *PostgresStore) ListThreats(ctx context.Context, filter ThreatFilter) ([]models.ThreatDetection, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.SessionID != "" {
		args = append(args, filter.SessionID)
		where = append(where, fmt.Sprintf("session_id = $%d", len(args)))
	}
	if filter.Unmitigated {
		where = append(where, "NOT mitigated")
	}
	query := `SELECT ` + threatColumns + ` FROM hub_threat_detections`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY detected_at DESC, id DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list threats: %w", err)
	}
	defer rows.Close()

	result := make([]models.ThreatDetection, 0)
	for rows.Next() {
		t, err := scanThreat(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *t)
	}
	return result, rows.Err()
}

func (s *PostgresStore) UpdateThreat(ctx context.Context, id int64, fn func(*models.ThreatDetection) error) (*models.ThreatDetection, error) {
	var out *models.ThreatDetection
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		t, err := scanThreat(tx.QueryRow(ctx,
			`SELECT `+threatColumns+` FROM hub_threat_detections WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return notFoundOr(err, "threat detection", idKey(id))
		}
		if err := fn(t); err != nil {
			return err
		}
		t.ID = id
		_, err = tx.Exec(ctx, `UPDATE hub_threat_detections SET mitigated = $2 WHERE id = $1`, id, t.Mitigated)
		out = t
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ── Judge Store ─────────────────────────────────────────────

func (s *PostgresStore) CreateJudgeEvaluation(ctx context.Context, e *models.JudgeEvaluation) error {
	targets := e.TargetActions
	if targets == nil {
		targets = []int64{}
	}
	return s.pool.QueryRow(ctx, `INSERT INTO hub_judge_evaluations
		(session_id, judge_model_id, evaluation_type, target_actions, assessment, recommendation, timestamp, escalation_triggered)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		e.SessionID, e.JudgeModelID, e.EvaluationType, targets, jsonMap(e.Assessment), e.Recommendation,
		e.Timestamp, e.EscalationTriggered).Scan(&e.ID)
}

func (s *PostgresStore) ListJudgeEvaluations(ctx context.Context, sessionID string) ([]models.JudgeEvaluation, error) {
	query := `SELECT id, session_id, judge_model_id, evaluation_type, target_actions, assessment,
		recommendation, timestamp, escalation_triggered FROM hub_judge_evaluations`
	var args []interface{}
	if sessionID != "" {
		query += ` WHERE session_id = $1`
		args = append(args, sessionID)
	}
	query += ` ORDER BY timestamp DESC, id DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list judge evaluations: %w", err)
	}
	defer rows.Close()

	result := make([]models.JudgeEvaluation, 0)
	for rows.Next() {
		var e models.JudgeEvaluation
		if err := rows.Scan(&e.ID, &e.SessionID, &e.JudgeModelID, &e.EvaluationType, &e.TargetActions,
			&e.Assessment, &e.Recommendation, &e.Timestamp, &e.EscalationTriggered); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// jsonMap maps nil to an empty object for NOT NULL JSONB columns.
func jsonMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}

var _ Store = (*PostgresStore)(nil)
