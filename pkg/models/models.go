// Package models defines the records owned by the hub's Record Store.
//
// Every record is immutable-by-replacement: stores hand out copies and an
// update always replaces the whole record. JSON field names are camelCase to
// stay wire-compatible with the existing dashboard client.
package models

import "time"

// ── User ─────────────────────────────────────────────────────

// User is a human operator account. PasswordHash never leaves the process.
type User struct {
	ID           int64  `json:"id" db:"id"`
	Username     string `json:"username" db:"username"`
	PasswordHash string `json:"-" db:"password_hash"`
}

// ── Escalation ───────────────────────────────────────────────

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

type EscalationStatus string

const (
	EscalationPending   EscalationStatus = "pending"
	EscalationApproved  EscalationStatus = "approved"
	EscalationDenied    EscalationStatus = "denied"
	EscalationEscalated EscalationStatus = "escalated"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s EscalationStatus) IsTerminal() bool {
	return s == EscalationApproved || s == EscalationDenied || s == EscalationEscalated
}

// Escalation is a decision paused by an agent and routed to a human.
// ResolvedAt is set if and only if Status is not pending.
type Escalation struct {
	ID               int64                  `json:"id" db:"id"`
	AgentID          string                 `json:"agentId" db:"agent_id"`
	Title            string                 `json:"title" db:"title"`
	AgentType        string                 `json:"agentType" db:"agent_type"`
	RiskLevel        RiskLevel              `json:"riskLevel" db:"risk_level"`
	EscalationReason string                 `json:"escalationReason" db:"escalation_reason"`
	Question         string                 `json:"question" db:"question"`
	Context          map[string]interface{} `json:"context"`
	SLAMinutes       int                    `json:"slaMinutes" db:"sla_minutes"`
	CreatedAt        time.Time              `json:"createdAt" db:"created_at"`
	Status           EscalationStatus       `json:"status" db:"status"`
	OperatorID       *string                `json:"operatorId" db:"operator_id"`
	Response         *string                `json:"response" db:"response"`
	ResolvedAt       *time.Time             `json:"resolvedAt" db:"resolved_at"`
}

// EscalationInput is the caller-supplied part of a new escalation.
type EscalationInput struct {
	AgentID          string                 `json:"agentId" validate:"required,max=128"`
	Title            string                 `json:"title" validate:"required,max=256"`
	AgentType        string                 `json:"agentType" validate:"required,max=128"`
	RiskLevel        RiskLevel              `json:"riskLevel" validate:"required,oneof=low medium high"`
	EscalationReason string                 `json:"escalationReason" validate:"required,max=256"`
	Question         string                 `json:"question" validate:"required"`
	Context          map[string]interface{} `json:"context" validate:"required"`
	SLAMinutes       int                    `json:"slaMinutes" validate:"required,gt=0,lte=10080"`
	Status           EscalationStatus       `json:"status,omitempty" validate:"omitempty,oneof=pending approved denied escalated"`
	OperatorID       *string                `json:"operatorId,omitempty"`
	Response         *string                `json:"response,omitempty"`
}

// EscalationPatch carries the fields an update may change. Nil means "leave as is".
type EscalationPatch struct {
	Status     *EscalationStatus `json:"status,omitempty" validate:"omitempty,oneof=pending approved denied escalated"`
	OperatorID *string           `json:"operatorId,omitempty" validate:"omitempty,max=128"`
	Response   *string           `json:"response,omitempty"`
}

// ── Chat ─────────────────────────────────────────────────────

type Sender string

const (
	SenderAgent    Sender = "agent"
	SenderOperator Sender = "operator"
)

// ChatMessage is one append-only entry in an escalation's conversation.
type ChatMessage struct {
	ID           int64     `json:"id" db:"id"`
	EscalationID int64     `json:"escalationId" db:"escalation_id"`
	Sender       Sender    `json:"sender" db:"sender"`
	Message      string    `json:"message" db:"message"`
	Timestamp    time.Time `json:"timestamp" db:"timestamp"`
}

// ── Agent Session ────────────────────────────────────────────

type SessionStatus string

const (
	SessionActive     SessionStatus = "active"
	SessionCompleted  SessionStatus = "completed"
	SessionTerminated SessionStatus = "terminated"
)

// AgentSession groups the actions of one multi-agent task under an orchestrator.
type AgentSession struct {
	ID             int64                  `json:"id" db:"id"`
	SessionID      string                 `json:"sessionId" db:"session_id"`
	OrchestratorID string                 `json:"orchestratorId" db:"orchestrator_id"`
	Status         SessionStatus          `json:"status" db:"status"`
	StartedAt      time.Time              `json:"startedAt" db:"started_at"`
	CompletedAt    *time.Time             `json:"completedAt" db:"completed_at"`
	Metadata       map[string]interface{} `json:"metadata"`
}

// AgentSessionInput starts a session. SessionID is generated when empty.
type AgentSessionInput struct {
	SessionID      string                 `json:"sessionId,omitempty" validate:"omitempty,max=128"`
	OrchestratorID string                 `json:"orchestratorId" validate:"required,max=128"`
	Metadata       map[string]interface{} `json:"metadata"`
}

// ── Agent Action ─────────────────────────────────────────────

type ActionType string

const (
	ActionToolCall   ActionType = "tool_call"
	ActionMessage    ActionType = "message"
	ActionDelegation ActionType = "delegation"
	ActionEscalation ActionType = "escalation"
)

// AgentAction is one recorded step taken by an agent within a session.
// RiskScore and Flagged are derived by the hub, never supplied by callers.
type AgentAction struct {
	ID          int64                  `json:"id" db:"id"`
	SessionID   string                 `json:"sessionId" db:"session_id"`
	AgentID     string                 `json:"agentId" db:"agent_id"`
	ActionType  ActionType             `json:"actionType" db:"action_type"`
	TargetAgent *string                `json:"targetAgent" db:"target_agent"`
	Payload     map[string]interface{} `json:"payload"`
	Timestamp   time.Time              `json:"timestamp" db:"timestamp"`
	RiskScore   int                    `json:"riskScore" db:"risk_score"`
	Flagged     bool                   `json:"flagged" db:"flagged"`
}

// HasTarget reports whether the action is addressed to another agent.
func (a AgentAction) HasTarget() bool {
	return a.TargetAgent != nil && *a.TargetAgent != ""
}

// AgentActionInput is the caller-supplied part of an action.
type AgentActionInput struct {
	SessionID   string                 `json:"sessionId" validate:"required,max=128"`
	AgentID     string                 `json:"agentId" validate:"required,max=128"`
	ActionType  ActionType             `json:"actionType" validate:"required,oneof=tool_call message delegation escalation"`
	TargetAgent *string                `json:"targetAgent,omitempty" validate:"omitempty,max=128"`
	Payload     map[string]interface{} `json:"payload"`
}

// ── Threat Detection ─────────────────────────────────────────

type ThreatType string

const (
	ThreatCollusion         ThreatType = "collusion"
	ThreatMisalignment      ThreatType = "misalignment"
	ThreatBoundaryViolation ThreatType = "boundary_violation"
	ThreatAnomaly           ThreatType = "anomaly"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ThreatDetection is a dangerous interaction pattern found among agents.
// Mitigated is the only field that changes after creation.
type ThreatDetection struct {
	ID           int64                  `json:"id" db:"id"`
	SessionID    string                 `json:"sessionId" db:"session_id"`
	ThreatType   ThreatType             `json:"threatType" db:"threat_type"`
	Severity     Severity               `json:"severity" db:"severity"`
	Description  string                 `json:"description" db:"description"`
	Evidence     map[string]interface{} `json:"evidence"`
	DetectedAt   time.Time              `json:"detectedAt" db:"detected_at"`
	JudgeModelID string                 `json:"judgeModelId" db:"judge_model_id"`
	Confidence   int                    `json:"confidence" db:"confidence"`
	Mitigated    bool                   `json:"mitigated" db:"mitigated"`
}

// ThreatDetectionInput is a threat ready to be persisted.
type ThreatDetectionInput struct {
	SessionID    string                 `json:"sessionId" validate:"required,max=128"`
	ThreatType   ThreatType             `json:"threatType" validate:"required,oneof=collusion misalignment boundary_violation anomaly"`
	Severity     Severity               `json:"severity" validate:"required,oneof=low medium high critical"`
	Description  string                 `json:"description" validate:"required"`
	Evidence     map[string]interface{} `json:"evidence" validate:"required"`
	JudgeModelID string                 `json:"judgeModelId" validate:"required,max=128"`
	Confidence   int                    `json:"confidence" validate:"gte=0,lte=100"`
}

// ── Judge Evaluation ─────────────────────────────────────────

// JudgeEvaluation is a supervising model's assessment of a set of actions.
// Write-once.
type JudgeEvaluation struct {
	ID                  int64                  `json:"id" db:"id"`
	SessionID           string                 `json:"sessionId" db:"session_id"`
	JudgeModelID        string                 `json:"judgeModelId" db:"judge_model_id"`
	EvaluationType      string                 `json:"evaluationType" db:"evaluation_type"`
	TargetActions       []int64                `json:"targetActions"`
	Assessment          map[string]interface{} `json:"assessment"`
	Recommendation      string                 `json:"recommendation" db:"recommendation"`
	Timestamp           time.Time              `json:"timestamp" db:"timestamp"`
	EscalationTriggered bool                   `json:"escalationTriggered" db:"escalation_triggered"`
}

// JudgeEvaluationInput is the caller-supplied part of an evaluation.
type JudgeEvaluationInput struct {
	SessionID      string                 `json:"sessionId" validate:"required,max=128"`
	JudgeModelID   string                 `json:"judgeModelId" validate:"required,max=128"`
	EvaluationType string                 `json:"evaluationType" validate:"required,oneof=intent_drift policy_compliance behavior_anomaly"`
	TargetActions  []int64                `json:"targetActions" validate:"required"`
	Assessment     map[string]interface{} `json:"assessment" validate:"required"`
	Recommendation string                 `json:"recommendation" validate:"required"`
}

// ── Helpers ──────────────────────────────────────────────────

// StringPtr returns a pointer to s.
func StringPtr(s string) *string { return &s }

// CloneMap returns a shallow copy of m so stored records never share a map
// with the caller.
func CloneMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
