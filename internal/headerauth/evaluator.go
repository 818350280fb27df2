// Package headerauth authenticates requests by trusting identity headers injected by the
// upstream reverse proxy. It is the only authentication path when enabled and is not
// installed at all when disabled.
package headerauth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"lakechat/internal/audit"
	auditdomain "lakechat/internal/audit/domain"
	"lakechat/internal/identity/domain"
	"lakechat/internal/security"
)

var (
	// ErrRejected is returned for every failed evaluation. There is no fallback scheme.
	ErrRejected = errors.New("header auth rejected")
	// ErrMissingHeaders means the token or both identity headers were absent or empty.
	ErrMissingHeaders = errors.New("missing forwarded token or identity header")
)

// Evaluator decides whether forwarded headers become an authenticated Identity.
// It holds no per-request state and performs no network I/O.
type Evaluator struct {
	audit audit.AuditLogger
	now   func() time.Time
}

// NewEvaluator returns an Evaluator that records decisions to auditLogger. auditLogger may be nil.
func NewEvaluator(auditLogger audit.AuditLogger) *Evaluator {
	return &Evaluator{audit: auditLogger, now: time.Now}
}

// Install returns an Evaluator when header auth is enabled and nil otherwise. Callers
// register middleware only for a non-nil Evaluator.
func Install(enabled bool, auditLogger audit.AuditLogger) *Evaluator {
	if !enabled {
		log.Printf("headerauth: header auth disabled; not installing")
		return nil
	}
	log.Printf("headerauth: header auth enabled; proxy headers are the sole authentication path")
	return NewEvaluator(auditLogger)
}

// Evaluate returns the Identity asserted by headers, or an error wrapping ErrRejected.
// An expired token is accepted; its staleness is only logged.
func (e *Evaluator) Evaluate(ctx context.Context, headers Source) (*domain.Identity, error) {
	flat := Flatten(headers)
	ip := clientIP(flat)

	token := flat[HeaderAccessToken]
	email := flat[HeaderEmail]
	if email == "" {
		email = flat[HeaderUser]
	}
	if token == "" || email == "" {
		return nil, e.reject(ctx, ip, ErrMissingHeaders)
	}

	expiry, err := security.InspectOBOToken(token)
	if err != nil {
		return nil, e.reject(ctx, ip, err)
	}
	secondsLeft := int64(expiry.Sub(e.now().UTC()) / time.Second)

	log.Printf("headerauth: header auth success: %s, expiry %s, %d seconds left", email, expiry.Format(time.RFC3339), secondsLeft)
	if secondsLeft <= 0 {
		log.Printf("headerauth: forwarded token for %s is already expired; accepting as asserted by proxy", email)
	}
	e.record(ctx, email, auditdomain.OutcomeSuccess, map[string]string{
		"token_expiry": expiry.Format(time.RFC3339),
		"seconds_left": strconv.FormatInt(secondsLeft, 10),
		"client_ip":    ip,
	})

	return domain.NewOBOIdentity(email, token, expiry, flat), nil
}

// reject logs a generic notice; the cause is kept in the returned error for callers but
// never in the audit record.
func (e *Evaluator) reject(ctx context.Context, ip string, cause error) error {
	log.Printf("headerauth: header auth failed; rejecting request (no fallback)")
	e.record(ctx, "", auditdomain.OutcomeRejected, map[string]string{"client_ip": ip})
	return fmt.Errorf("%w: %w", ErrRejected, cause)
}

func (e *Evaluator) record(ctx context.Context, principal, outcome string, attrs map[string]string) {
	if e.audit == nil {
		return
	}
	e.audit.LogEvent(ctx, auditdomain.ActionHeaderAuth, principal, outcome, attrs)
}
