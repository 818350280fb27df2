package otel

import (
	"context"
	"sort"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"lakechat/internal/audit"
	"lakechat/internal/audit/domain"
)

const auditScope = "lakechat.audit"

// recordEmitter is the subset of otellog.Logger used by the audit emitter.
type recordEmitter interface {
	Emit(ctx context.Context, rec otellog.Record)
}

// NewAuditEmitter returns an audit.Emitter that writes events as OTel log records via
// provider. A nil provider yields an emitter that drops events.
func NewAuditEmitter(provider *sdklog.LoggerProvider) audit.Emitter {
	if provider == nil {
		return noopEmitter{}
	}
	return newAuditEmitter(provider.Logger(auditScope))
}

func newAuditEmitter(logger recordEmitter) *auditEmitter {
	return &auditEmitter{logger: logger, now: time.Now}
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, *domain.Event) error { return nil }

type auditEmitter struct {
	logger recordEmitter
	now    func() time.Time
}

// Emit maps the event onto a log record. Rejections and failures are emitted at WARN.
func (e *auditEmitter) Emit(ctx context.Context, ev *domain.Event) error {
	if ev == nil {
		return nil
	}
	var rec otellog.Record
	ts := ev.CreatedAt
	if ts.IsZero() {
		ts = e.now().UTC()
	}
	rec.SetTimestamp(ts)
	rec.SetObservedTimestamp(e.now().UTC())
	rec.SetBody(otellog.StringValue(ev.Action))

	switch ev.Outcome {
	case domain.OutcomeRejected, domain.OutcomeFailure:
		rec.SetSeverity(otellog.SeverityWarn)
		rec.SetSeverityText("WARN")
	default:
		rec.SetSeverity(otellog.SeverityInfo)
		rec.SetSeverityText("INFO")
	}

	rec.AddAttributes(
		otellog.String("event_id", ev.ID),
		otellog.String("action", ev.Action),
		otellog.String("outcome", ev.Outcome),
	)
	if ev.Principal != "" {
		rec.AddAttributes(otellog.String("principal", ev.Principal))
	}
	keys := make([]string, 0, len(ev.Attributes))
	for k := range ev.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		rec.AddAttributes(otellog.String(k, ev.Attributes[k]))
	}

	e.logger.Emit(ctx, rec)
	return nil
}
