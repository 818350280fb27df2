// Package audit records authentication decisions and provisioning outcomes.
// Recording is best-effort: sink failures are logged and never reach the caller.
package audit

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"lakechat/internal/audit/domain"
)

// emitTimeout is the max time allowed for a single async emit.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration is how long callers should allow Wait to drain in-flight emits.
const ShutdownDrainDuration = emitTimeout

// AuditLogger records one audit event. Used by the header-trust evaluator and the provisioning runner.
type AuditLogger interface {
	LogEvent(ctx context.Context, action, principal, outcome string, attrs map[string]string)
}

// Logger implements AuditLogger by emitting asynchronously to an Emitter.
type Logger struct {
	emitter Emitter
	wg      sync.WaitGroup
}

// NewLogger returns a Logger that sends events to emitter. emitter may be nil; then
// events are dropped.
func NewLogger(emitter Emitter) *Logger {
	return &Logger{emitter: emitter}
}

// NewEvent builds an event with a fresh ID and the current UTC time.
func NewEvent(action, principal, outcome string, attrs map[string]string) *domain.Event {
	return &domain.Event{
		ID:         uuid.NewString(),
		Action:     action,
		Principal:  principal,
		Outcome:    outcome,
		Attributes: attrs,
		CreatedAt:  time.Now().UTC(),
	}
}

// LogEvent emits one event in the background so the caller never blocks on a sink.
func (l *Logger) LogEvent(ctx context.Context, action, principal, outcome string, attrs map[string]string) {
	if l == nil || l.emitter == nil {
		return
	}
	l.emitAsync(NewEvent(action, principal, outcome, attrs))
}

// emitAsync uses context.Background with emitTimeout so request cancellation does not abort
// an in-flight emit.
func (l *Logger) emitAsync(event *domain.Event) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		emitCtx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()
		if err := l.emitter.Emit(emitCtx, event); err != nil {
			log.Printf("audit: failed to emit %s/%s: %v", event.Action, event.Outcome, err)
		}
	}()
}

// Wait blocks until in-flight emits finish or ctx is done.
func (l *Logger) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
