package goIAM

import (
	"context"
	"log"
	"time"

	"github.com/MrEthical07/goIAM/hierarchy"
	"github.com/MrEthical07/goIAM/jwt"
	"github.com/MrEthical07/goIAM/password"
	"github.com/MrEthical07/goIAM/token"
)

// Engine defines a public type used by goIAM APIs.
//
// Engine instances are intended to be configured during initialization through [Builder.Build] and then treated as immutable; all methods are safe for concurrent use.
type Engine struct {
	config      Config
	credentials CredentialStore
	groups      *hierarchy.Resolver
	tokens      *token.Store
	jwtManager  *jwt.Manager
	hasher      *password.Hasher
	policy      *password.Policy
	audit       *auditDispatcher
	metrics     *Metrics
	logger      *log.Logger

	// decoyHash equalizes the latency of unknown-email and wrong-password
	// failures; it is verified against on every missing-principal login.
	decoyHash string
}

// Close describes the close operation and its observable behavior.
//
// Close drains and stops the audit dispatcher; it never interrupts in-flight
// engine calls.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded because the
// buffer was full in drop mode.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot does not mutate shared global state and can be used concurrently.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) warnf(format string, args ...any) {
	if e == nil || e.logger == nil {
		return
	}
	e.logger.Printf("goIAM: "+format, args...)
}

func (e *Engine) emitAudit(ctx context.Context, eventType, principalID string, success bool, failure error, metadata map[string]string) {
	if e == nil || e.audit == nil {
		return
	}
	event := AuditEvent{
		Timestamp:   time.Now(),
		EventType:   eventType,
		PrincipalID: principalID,
		Success:     success,
		Metadata:    metadata,
	}
	if failure != nil {
		event.Error = failure.Error()
	}
	e.audit.Emit(ctx, event)
}
