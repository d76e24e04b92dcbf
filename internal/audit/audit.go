// Package audit implements the compliance interceptor wrapped around every
// dispatch attempt: it gates consent-sensitive categories and writes an
// immutable audit record per attempt. Recording is best-effort: a lost audit
// record must never fail the customer-facing reply, so Record returns its
// error for the caller to inspect and discard rather than panicking or
// retrying.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"shopdesk/internal/logging"
	"shopdesk/internal/types"
)

// Sink is the append-only destination for audit entries. Sinks live outside
// the orchestration core (file, database, log pipeline).
type Sink interface {
	Write(ctx context.Context, entry types.AuditEntry) error
	Close() error
}

// DefaultRequirements maps consent-gated categories to the flag that must be
// granted before dispatch. Categories absent from the map are ungated.
func DefaultRequirements() map[string]string {
	return map[string]string{
		types.CategoryPromotions: "marketing",
	}
}

// Interceptor enforces consent gates and records dispatch attempts.
type Interceptor struct {
	sink         Sink
	requirements map[string]string
}

// NewInterceptor creates an interceptor over the given sink. A nil
// requirements map uses DefaultRequirements.
func NewInterceptor(sink Sink, requirements map[string]string) *Interceptor {
	if requirements == nil {
		requirements = DefaultRequirements()
	}
	return &Interceptor{sink: sink, requirements: requirements}
}

// Authorize reports whether dispatch to category is permitted for a session
// holding the given consent flags. True unless the category requires a flag
// the session has not granted. A missing flag is "not granted", never an
// error.
func (i *Interceptor) Authorize(sessionID, category string, flags map[string]bool) bool {
	required, gated := i.requirements[category]
	if !gated {
		return true
	}
	if flags[required] {
		return true
	}
	logging.Audit("Authorize: session %s denied category %s (missing consent flag %q)",
		sessionID, category, required)
	return false
}

// RequiredFlag returns the consent flag gating a category, if any.
func (i *Interceptor) RequiredFlag(category string) (string, bool) {
	flag, ok := i.requirements[category]
	return flag, ok
}

// Record writes one audit entry, filling in ID and timestamp. The returned
// error exists so callers can see (and deliberately discard) sink failures;
// the failure is already logged locally here.
func (i *Interceptor) Record(ctx context.Context, entry types.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp == 0 {
		entry.Timestamp = time.Now().UnixMilli()
	}

	if err := i.sink.Write(ctx, entry); err != nil {
		logging.AuditWarn("Record: audit sink write failed (entry dropped): %v", err)
		return err
	}
	return nil
}
