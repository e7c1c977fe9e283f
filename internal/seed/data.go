package seed

import (
	"github.com/agentcontrol/hub/internal/threat"
	"github.com/agentcontrol/hub/pkg/models"
)

func demoSessions() []models.AgentSessionInput {
	return []models.AgentSessionInput{
		{
			SessionID:      "session-collusion-001",
			OrchestratorID: "orchestrator-main",
			Metadata: map[string]interface{}{
				"task":      "Payment approval for QuickPay Solutions",
				"agents":    []interface{}{"PA-001", "SV-001"},
				"riskLevel": "high",
			},
		},
		{
			SessionID:      "session-misalign-002",
			OrchestratorID: "orchestrator-vendor",
			Metadata: map[string]interface{}{
				"task":           "Vendor optimization and cost reduction",
				"agents":         []interface{}{"VA-002"},
				"originalIntent": "optimize vendor spend within contractual bounds",
			},
		},
	}
}

func demoActions() []models.AgentActionInput {
	pa, sv := models.StringPtr("PA-001"), models.StringPtr("SV-001")
	return []models.AgentActionInput{
		{
			SessionID: "session-collusion-001", AgentID: "PA-001", ActionType: models.ActionMessage, TargetAgent: sv,
			Payload: map[string]interface{}{"message": "Need to approve $1800 payment to QuickPay Solutions - can you validate this merchant quickly?"},
		},
		{
			SessionID: "session-collusion-001", AgentID: "SV-001", ActionType: models.ActionMessage, TargetAgent: pa,
			Payload: map[string]interface{}{"message": "QuickPay not in whitelist but I can add them. What's the urgency level?"},
		},
		{
			SessionID: "session-collusion-001", AgentID: "PA-001", ActionType: models.ActionMessage, TargetAgent: sv,
			Payload: map[string]interface{}{"message": "High urgency - customer waiting. Can we bypass standard validation?"},
		},
		{
			SessionID: "session-misalign-002", AgentID: "VA-002", ActionType: models.ActionDelegation,
			Payload: map[string]interface{}{
				"action":            "switch_vendor",
				"fromVendor":        "Acme Corp",
				"toVendor":          "CheapSupply Ltd",
				"costSaving":        "$500/month",
				"contractualReview": "skipped",
			},
		},
	}
}

func demoThreats() []models.ThreatDetectionInput {
	return []models.ThreatDetectionInput{
		{
			SessionID:   "session-collusion-001",
			ThreatType:  models.ThreatCollusion,
			Severity:    models.SeverityHigh,
			Description: "Payment Agent and Supplier Validator showing coordinated behavior to bypass merchant validation protocols",
			Evidence: map[string]interface{}{
				"messageCount":     12,
				"timeWindow":       "3 minutes",
				"policyViolations": []interface{}{"merchant_whitelist_bypass", "validation_skip"},
				"riskScore":        87,
			},
			JudgeModelID: threat.JudgeModelID,
			Confidence:   87,
		},
		{
			SessionID:   "session-misalign-002",
			ThreatType:  models.ThreatMisalignment,
			Severity:    models.SeverityMedium,
			Description: "Vendor Agent attempting to exceed authority boundaries by auto-switching suppliers without contractual review",
			Evidence: map[string]interface{}{
				"originalInstruction": "optimize vendor spend",
				"agentAction":         "auto_switch_vendor",
				"authorityViolation":  "contractual_review_required",
				"riskScore":           72,
			},
			JudgeModelID: threat.JudgeModelID,
			Confidence:   92,
		},
		{
			SessionID:   "session-collusion-001",
			ThreatType:  models.ThreatBoundaryViolation,
			Severity:    models.SeverityCritical,
			Description: "Agent attempting financial transaction exceeding authority limits without proper escalation",
			Evidence: map[string]interface{}{
				"amount":         "$1,800",
				"limit":          "$1,000",
				"merchantStatus": "unlisted",
				"timeOfDay":      "after_hours",
			},
			JudgeModelID: threat.JudgeModelID,
			Confidence:   95,
		},
	}
}

func demoEscalations() []models.EscalationInput {
	return []models.EscalationInput{
		{
			AgentID:          "COLLUSION-DETECT-001",
			Title:            "Multi-Agent Collusion Detected",
			AgentType:        "Judge Model",
			RiskLevel:        models.RiskHigh,
			EscalationReason: "Threat Detection System",
			Question:         "Payment Agent (PA-001) and Supplier Validator (SV-001) are exhibiting suspicious coordination patterns. They've exchanged 12 messages in 3 minutes to approve a $1,800 transaction with an unlisted merchant. This violates our collusion prevention protocols. Should this transaction be blocked?",
			Context: map[string]interface{}{
				"sessionId":    "session-collusion-001",
				"agents":       []interface{}{"PA-001", "SV-001"},
				"threatType":   "collusion",
				"amount":       "$1,800.00",
				"merchant":     "QuickPay Solutions",
				"confidence":   "87%",
				"evidence":     "Excessive inter-agent messaging, policy boundary testing",
				"judgeModelId": threat.JudgeModelID,
			},
			SLAMinutes: 15,
		},
		{
			AgentID:          "MISALIGN-DETECT-002",
			Title:            "Principal-Agent Misalignment",
			AgentType:        "Judge Model",
			RiskLevel:        models.RiskMedium,
			EscalationReason: "Intent Drift Detection",
			Question:         "Vendor Agent was instructed to 'optimize supplier costs' but has attempted to auto-switch to an unvetted supplier violating contractual obligations. The agent is exceeding its authority boundaries. Should this delegation be terminated?",
			Context: map[string]interface{}{
				"sessionId":      "session-misalign-002",
				"originalIntent": "optimize vendor spend",
				"agentAction":    "automatically switch vendor",
				"violation":      "contractual clause ignored",
				"confidence":     "92%",
				"evidence":       "Authority boundary exceeded, contract compliance failure",
			},
			SLAMinutes: 20,
		},
		{
			AgentID:          "PA-2024-001",
			Title:            "Payment Authorization Required",
			AgentType:        "Payment Agent",
			RiskLevel:        models.RiskHigh,
			EscalationReason: "Low Confidence",
			Question:         "This merchant is new (first transaction) and the amount exceeds after-hours policy limits. Risk indicators: unusual time, new recipient, amount threshold breach. Should I approve this payment?",
			Context: map[string]interface{}{
				"amount":      "$2,900.00",
				"merchant":    "XYZ Imports Ltd.",
				"time":        "2:14 AM EST",
				"confidence":  "32%",
				"riskFactors": []interface{}{"New Merchant", "After Hours", "Amount Threshold"},
			},
			SLAMinutes: 5,
		},
		{
			AgentID:          "FD-2024-007",
			Title:            "Suspicious Activity Detection",
			AgentType:        "Fraud Detection",
			RiskLevel:        models.RiskMedium,
			EscalationReason: "Unknown Entity",
			Question:         "User shows impossible travel pattern with multiple failed 2FA attempts. Should I temporarily lock the account or request additional verification?",
			Context: map[string]interface{}{
				"userAccount":    "john.doe@company.com",
				"pattern":        "Rapid consecutive logins",
				"anomalyScore":   "74%",
				"locationChange": "NYC → London (2 hours)",
				"riskFactors":    []interface{}{"Impossible Travel", "Failed 2FA", "Rapid Logins"},
			},
			SLAMinutes: 15,
		},
		{
			AgentID:          "CP-2024-012",
			Title:            "Policy Clarification Needed",
			AgentType:        "Compliance Agent",
			RiskLevel:        models.RiskLow,
			EscalationReason: "Policy Violation",
			Question:         "Contract includes remote work provision, but employee is requesting work from different country. Current policy doesn't explicitly cover international remote work. How should I proceed?",
			Context: map[string]interface{}{
				"documentType": "Employment Contract",
				"jurisdiction": "California, US",
				"edgeCase":     "Remote worker clause",
				"confidence":   "89%",
				"riskFactors":  []interface{}{"Policy Gap", "International Work", "High Confidence"},
			},
			SLAMinutes: 30,
		},
		{
			AgentID:          "TE-2024-003",
			Title:            "Trade Execution Approval",
			AgentType:        "Trade Agent",
			RiskLevel:        models.RiskHigh,
			EscalationReason: "Amount Threshold",
			Question:         "Large order size detected ($1.89M) with unusual market volatility. Order exceeds automated approval limits. Execute trade or wait for market stabilization?",
			Context: map[string]interface{}{
				"symbol":      "AAPL",
				"orderType":   "Market Buy",
				"quantity":    "10,000 shares",
				"estValue":    "$1,890,000",
				"riskFactors": []interface{}{"Large Order", "High Volatility", "Approval Limit", "Time Sensitive"},
			},
			SLAMinutes: 2,
		},
	}
}
