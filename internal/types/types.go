// Package types provides shared type definitions used across shopdesk packages.
// This package exists to break import cycles between dispatch, session, and
// audit. Types in this package should be foundational data structures with no
// complex dependencies.
package types

import (
	"time"
)

// =============================================================================
// CATEGORIES
// =============================================================================

// Category names for the built-in specialist domains. Declaration order here
// mirrors the classifier table order and is the tie-break order for ranking.
const (
	CategoryProductLookup   = "product-lookup"
	CategoryOrderStatus     = "order-status"
	CategoryRecommendations = "recommendations"
	CategoryPromotions      = "promotions"
	CategoryGeneral         = "general"
)

// Turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// =============================================================================
// CONVERSATION STATE
// =============================================================================

// Turn is a single message in a conversation, either inbound (user) or
// outbound (assistant).
type Turn struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// ConversationState is the per-session state owned by the session store and
// mutated once per turn by the dispatch engine.
type ConversationState struct {
	SessionID string `json:"session_id"`

	// TurnHistory is append-only and capped; the oldest turn is dropped first.
	TurnHistory []Turn `json:"turn_history"`

	// ActiveCategory is the category that answered the previous turn.
	// Empty means no specialist has answered this session yet.
	ActiveCategory string `json:"active_category"`

	// ErrorCount tracks handler faults across the session. It is reset to 0
	// whenever a turn completes successfully.
	ErrorCount int `json:"error_count"`

	// RetryAttempts tracks retries within the current turn. It is reset to 0
	// at the start of every new turn regardless of the prior outcome.
	RetryAttempts int `json:"retry_attempts"`

	// UserContext is caller-supplied and opaque; the core never mutates it.
	UserContext map[string]string `json:"user_context,omitempty"`

	// ComplianceFlags holds granted consent markers keyed by flag name.
	ComplianceFlags map[string]bool `json:"compliance_flags,omitempty"`
}

// NewConversationState returns the default state for a session that has no
// persisted record yet.
func NewConversationState(sessionID string) *ConversationState {
	return &ConversationState{
		SessionID:       sessionID,
		TurnHistory:     make([]Turn, 0),
		ComplianceFlags: make(map[string]bool),
	}
}

// HasFlag reports whether the session holds the given consent flag.
// Absence of a flag is "not granted", never an error.
func (s *ConversationState) HasFlag(flag string) bool {
	if s == nil || s.ComplianceFlags == nil {
		return false
	}
	return s.ComplianceFlags[flag]
}

// AppendTurn appends a turn to the history, evicting the oldest entries when
// the history exceeds limit. A limit <= 0 means unbounded.
func (s *ConversationState) AppendTurn(turn Turn, limit int) {
	s.TurnHistory = append(s.TurnHistory, turn)
	if limit > 0 && len(s.TurnHistory) > limit {
		s.TurnHistory = s.TurnHistory[len(s.TurnHistory)-limit:]
	}
}

// Clone returns a deep copy so stores can hand out state without aliasing
// their internal records.
func (s *ConversationState) Clone() *ConversationState {
	if s == nil {
		return nil
	}
	out := &ConversationState{
		SessionID:      s.SessionID,
		ActiveCategory: s.ActiveCategory,
		ErrorCount:     s.ErrorCount,
		RetryAttempts:  s.RetryAttempts,
	}
	out.TurnHistory = make([]Turn, len(s.TurnHistory))
	copy(out.TurnHistory, s.TurnHistory)
	if s.UserContext != nil {
		out.UserContext = make(map[string]string, len(s.UserContext))
		for k, v := range s.UserContext {
			out.UserContext[k] = v
		}
	}
	if s.ComplianceFlags != nil {
		out.ComplianceFlags = make(map[string]bool, len(s.ComplianceFlags))
		for k, v := range s.ComplianceFlags {
			out.ComplianceFlags[k] = v
		}
	}
	return out
}

// =============================================================================
// CLASSIFICATION
// =============================================================================

// RankedCategory is one (category, score) pair in a classification ranking.
type RankedCategory struct {
	Category string  `json:"category"`
	Score    float64 `json:"score"`
}

// ClassificationResult is the transient output of one classifier call.
// Ranked is ordered by descending score and is guaranteed non-empty; the
// fallback "general" category always appears with a non-zero score.
type ClassificationResult struct {
	Ranked []RankedCategory `json:"ranked"`
}

// Top returns the highest-ranked category. The classifier guarantees a
// non-empty ranking; an empty zero value still resolves to the general
// fallback so callers always have a dispatch target.
func (r ClassificationResult) Top() RankedCategory {
	if len(r.Ranked) == 0 {
		return RankedCategory{Category: CategoryGeneral, Score: 0.01}
	}
	return r.Ranked[0]
}

// At returns the i-th ranked category and whether it exists.
func (r ClassificationResult) At(i int) (RankedCategory, bool) {
	if i < 0 || i >= len(r.Ranked) {
		return RankedCategory{}, false
	}
	return r.Ranked[i], true
}

// =============================================================================
// DISPATCH OUTCOMES
// =============================================================================

// DispatchOutcome is the transient result of one handler invocation.
type DispatchOutcome struct {
	Category     string         `json:"category"`
	ResponseText string         `json:"response_text"`
	Confidence   float64        `json:"confidence"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Succeeded    bool           `json:"succeeded"`
	ErrorDetail  string         `json:"error_detail,omitempty"`
}

// TurnResult is the reply surface returned by ProcessTurn for every inbound
// turn. Escalated marks a turn that exhausted its retries and was routed to
// human handling.
type TurnResult struct {
	ResponseText string         `json:"response_text"`
	CategoryUsed string         `json:"category_used"`
	Confidence   float64        `json:"confidence"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Escalated    bool           `json:"escalated"`
}

// =============================================================================
// AUDIT
// =============================================================================

// Audit event types.
const (
	AuditDispatchAttempt = "dispatch_attempt"
	AuditConsentDenied   = "consent_denied"
	AuditEscalated       = "escalated"
)

// AuditEntry is one immutable record written per dispatch attempt (and per
// consent denial). Entries are append-only; the sink they land in is external
// to the orchestration core.
type AuditEntry struct {
	ID         string  `json:"id"`
	SessionID  string  `json:"session_id"`
	EventType  string  `json:"event_type"`
	Category   string  `json:"category"`
	Succeeded  bool    `json:"succeeded"`
	Confidence float64 `json:"confidence,omitempty"`
	Detail     string  `json:"detail,omitempty"`
	Timestamp  int64   `json:"ts"` // Unix milliseconds
}
