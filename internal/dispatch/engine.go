// Package dispatch implements the orchestration core: the per-turn state
// machine that classifies an inbound message, enforces consent, invokes the
// chosen specialist with bounded retries, and escalates to human handling
// when the retry budget is exhausted.
//
// States: CLASSIFYING -> AUTHORIZING -> INVOKING -> EVALUATING ->
// {DONE, RETRYING, ESCALATED}. DONE and ESCALATED are terminal per turn.
package dispatch

import (
	"context"
	"errors"
	"strings"
	"time"

	"shopdesk/internal/audit"
	"shopdesk/internal/classifier"
	"shopdesk/internal/logging"
	"shopdesk/internal/registry"
	"shopdesk/internal/session"
	"shopdesk/internal/types"
)

// turnState labels the engine's position in the per-turn state machine.
// Used for routing logs only; the machine itself is the loop in runTurn.
type turnState int

const (
	stateClassifying turnState = iota
	stateAuthorizing
	stateInvoking
	stateEvaluating
	stateDone
	stateRetrying
	stateEscalated
)

func (s turnState) String() string {
	switch s {
	case stateClassifying:
		return "CLASSIFYING"
	case stateAuthorizing:
		return "AUTHORIZING"
	case stateInvoking:
		return "INVOKING"
	case stateEvaluating:
		return "EVALUATING"
	case stateDone:
		return "DONE"
	case stateRetrying:
		return "RETRYING"
	case stateEscalated:
		return "ESCALATED"
	default:
		return "UNKNOWN"
	}
}

// Sentinel errors surfaced by ProcessTurn. Everything else resolves to a
// TurnResult rather than an error.
var (
	ErrEmptyMessage = errors.New("message is empty after trimming")
	ErrEmptySession = errors.New("session id is empty")
)

// Config tunes the engine.
type Config struct {
	// MaxRetries bounds fault-driven retries within one turn. With the
	// default of 2 a turn invokes at most MaxRetries+1 handlers.
	MaxRetries int

	// ConfidenceThreshold below which a successful answer triggers one
	// retry with the next-ranked category before being accepted.
	ConfidenceThreshold float64

	// DefaultConfidence substituted when a handler omits confidence or
	// reports <= 0. Absent confidence is not a failure.
	DefaultConfidence float64

	// HandlerTimeout bounds each handler invocation; a timeout is treated
	// identically to a handler fault.
	HandlerTimeout time.Duration

	// HandoffMessage is the fixed reply produced on escalation.
	HandoffMessage string

	// HistoryLimit caps persisted turn history (oldest dropped first).
	HistoryLimit int
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:          2,
		ConfidenceThreshold: 0.4,
		DefaultConfidence:   0.8,
		HandlerTimeout:      5 * time.Second,
		HandoffMessage:      "I couldn't resolve this automatically, so I'm handing you over to a colleague. A human agent will follow up shortly.",
		HistoryLimit:        50,
	}
}

// Engine ties the classifier, registry, session store, and interceptor into
// the per-turn state machine. It is constructed once at process start and
// shared across all sessions; one goroutine runs a turn to completion.
type Engine struct {
	cfg         Config
	classifier  *classifier.Classifier
	registry    *registry.Registry
	store       session.Store
	interceptor *audit.Interceptor
	locks       *session.LockTable
}

// NewEngine wires the engine. All collaborators are required.
func NewEngine(cfg Config, c *classifier.Classifier, r *registry.Registry, store session.Store, interceptor *audit.Interceptor) *Engine {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.DefaultConfidence <= 0 {
		cfg.DefaultConfidence = 0.8
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = 5 * time.Second
	}
	if cfg.HandoffMessage == "" {
		cfg.HandoffMessage = DefaultConfig().HandoffMessage
	}
	return &Engine{
		cfg:         cfg,
		classifier:  c,
		registry:    r,
		store:       store,
		interceptor: interceptor,
		locks:       session.NewLockTable(),
	}
}

// ProcessTurn runs one inbound message through the full state machine and
// always resolves to a TurnResult; the only error paths are input validation.
//
// The per-session lock is held across load -> dispatch -> save so turns
// within a session apply strictly in arrival order. Turns across sessions
// run fully in parallel.
func (e *Engine) ProcessTurn(ctx context.Context, sessionID, message string, userContext map[string]string) (types.TurnResult, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return types.TurnResult{}, ErrEmptyMessage
	}
	if sessionID == "" {
		return types.TurnResult{}, ErrEmptySession
	}

	release := e.locks.Acquire(sessionID)
	defer release()

	state := e.store.Load(ctx, sessionID)
	if state == nil {
		// Store contract says never nil; degrade rather than trust it.
		state = types.NewConversationState(sessionID)
	}

	// retry_attempts is per-turn and resets unconditionally, even right
	// after an escalated turn. error_count carries across turns until a
	// turn completes successfully.
	state.RetryAttempts = 0
	if userContext != nil {
		state.UserContext = userContext
	}

	outcome, escalated := e.runTurn(ctx, state, message)

	responseText := outcome.ResponseText
	confidence := outcome.Confidence
	if escalated {
		responseText = e.cfg.HandoffMessage
		confidence = 0
	} else {
		state.ErrorCount = 0
		state.ActiveCategory = outcome.Category
	}

	e.persist(ctx, state, message, responseText)

	return types.TurnResult{
		ResponseText: responseText,
		CategoryUsed: outcome.Category,
		Confidence:   confidence,
		Metadata:     outcome.Metadata,
		Escalated:    escalated,
	}, nil
}

// runTurn drives AUTHORIZING -> INVOKING -> EVALUATING until a terminal
// state. The classification happens once; retries walk down the same
// ranking.
func (e *Engine) runTurn(ctx context.Context, state *types.ConversationState, message string) (types.DispatchOutcome, bool) {
	logging.RoutingDebug("turn %s: state=%s", state.SessionID, stateClassifying)
	ranking := e.classifier.Classify(message, state)

	idx := 0
	lowConfRetried := false
	var pendingLowConf *types.DispatchOutcome

	for {
		candidate := e.candidateAt(ranking, idx)

		// AUTHORIZING: a consent denial is expected and non-fatal; the
		// turn is redirected to the general specialist instead.
		logging.RoutingDebug("turn %s: state=%s candidate=%s", state.SessionID, stateAuthorizing, candidate)
		if !e.interceptor.Authorize(state.SessionID, candidate, state.ComplianceFlags) {
			_ = e.interceptor.Record(ctx, types.AuditEntry{
				SessionID: state.SessionID,
				EventType: types.AuditConsentDenied,
				Category:  candidate,
				Detail:    "consent flag not granted; redirected to general",
			})
			candidate = types.CategoryGeneral
		}

		// INVOKING: every handler fault (error, panic, timeout,
		// construction failure) comes back as a failed outcome.
		logging.RoutingDebug("turn %s: state=%s category=%s attempt=%d",
			state.SessionID, stateInvoking, candidate, state.RetryAttempts)
		invokeCtx, cancel := context.WithTimeout(ctx, e.cfg.HandlerTimeout)
		outcome := e.registry.Invoke(invokeCtx, candidate, message, state, state.UserContext)
		cancel()

		if outcome.Succeeded && outcome.Confidence <= 0 {
			outcome.Confidence = e.cfg.DefaultConfidence
		}

		_ = e.interceptor.Record(ctx, types.AuditEntry{
			SessionID:  state.SessionID,
			EventType:  types.AuditDispatchAttempt,
			Category:   outcome.Category,
			Succeeded:  outcome.Succeeded,
			Confidence: outcome.Confidence,
			Detail:     outcome.ErrorDetail,
		})

		// EVALUATING
		logging.RoutingDebug("turn %s: state=%s succeeded=%v confidence=%.2f",
			state.SessionID, stateEvaluating, outcome.Succeeded, outcome.Confidence)

		if outcome.Succeeded {
			if outcome.Confidence < e.cfg.ConfidenceThreshold && !lowConfRetried {
				if _, ok := ranking.At(idx + 1); ok {
					// Uncertain is not broken: one retry with the
					// next-ranked category, without touching
					// error_count.
					lowConfRetried = true
					pending := outcome
					pendingLowConf = &pending
					idx++
					logging.Routing("turn %s: low confidence %.2f from %s, retrying with next-ranked category",
						state.SessionID, outcome.Confidence, outcome.Category)
					continue
				}
			}
			if pendingLowConf != nil && pendingLowConf.Confidence > outcome.Confidence {
				outcome = *pendingLowConf
			}
			logging.Routing("turn %s: state=%s category=%s confidence=%.2f",
				state.SessionID, stateDone, outcome.Category, outcome.Confidence)
			return outcome, false
		}

		// The low-confidence retry faulted; the uncertain answer we
		// already hold beats a handoff, and the fault budget stays
		// untouched.
		if pendingLowConf != nil {
			logging.Routing("turn %s: low-confidence retry faulted, accepting original %s answer",
				state.SessionID, pendingLowConf.Category)
			return *pendingLowConf, false
		}

		if state.RetryAttempts < e.cfg.MaxRetries {
			if state.ErrorCount < e.cfg.MaxRetries {
				state.ErrorCount++
			}
			state.RetryAttempts++
			idx++
			logging.RoutingWarn("turn %s: state=%s fault=%q retry=%d/%d",
				state.SessionID, stateRetrying, outcome.ErrorDetail, state.RetryAttempts, e.cfg.MaxRetries)
			continue
		}

		logging.RoutingWarn("turn %s: state=%s after %d attempts, last fault=%q",
			state.SessionID, stateEscalated, state.RetryAttempts+1, outcome.ErrorDetail)
		_ = e.interceptor.Record(ctx, types.AuditEntry{
			SessionID: state.SessionID,
			EventType: types.AuditEscalated,
			Category:  outcome.Category,
			Detail:    outcome.ErrorDetail,
		})
		return outcome, true
	}
}

// candidateAt returns the idx-th ranked category, falling back to general
// once the ranking is exhausted (possible when MaxRetries exceeds the table
// size).
func (e *Engine) candidateAt(ranking types.ClassificationResult, idx int) string {
	if c, ok := ranking.At(idx); ok {
		return c.Category
	}
	return types.CategoryGeneral
}

// persist writes the turn's effects back to the store. Store failures are
// logged and swallowed: a persistence outage costs context, not chat
// availability.
func (e *Engine) persist(ctx context.Context, state *types.ConversationState, message, response string) {
	if err := e.store.Save(ctx, state); err != nil {
		logging.SessionError("persist: save failed for %s: %v", state.SessionID, err)
	}

	now := time.Now().UTC()
	userTurn := types.Turn{Role: types.RoleUser, Text: message, Timestamp: now}
	assistantTurn := types.Turn{Role: types.RoleAssistant, Text: response, Timestamp: now}
	if err := e.store.AppendTurn(ctx, state.SessionID, userTurn); err != nil {
		logging.SessionError("persist: append user turn failed for %s: %v", state.SessionID, err)
	}
	if err := e.store.AppendTurn(ctx, state.SessionID, assistantTurn); err != nil {
		logging.SessionError("persist: append assistant turn failed for %s: %v", state.SessionID, err)
	}
}
