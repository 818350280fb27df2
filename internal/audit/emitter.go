package audit

import (
	"context"
	"errors"
	"log"
	"sort"
	"strings"

	"lakechat/internal/audit/domain"
)

// Emitter delivers audit events to one sink. Callers treat Emit as best-effort.
type Emitter interface {
	Emit(ctx context.Context, event *domain.Event) error
}

// LogEmitter writes audit events to the standard logger.
type LogEmitter struct{}

// Emit writes one line per event with attributes in key order.
func (LogEmitter) Emit(_ context.Context, event *domain.Event) error {
	if event == nil {
		return nil
	}
	keys := make([]string, 0, len(event.Attributes))
	for k := range event.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(" ")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(event.Attributes[k])
	}
	log.Printf("audit: action=%s outcome=%s principal=%q%s", event.Action, event.Outcome, event.Principal, b.String())
	return nil
}

// Multi fans an event out to every emitter and joins their errors.
type Multi []Emitter

// Emit calls every non-nil emitter even when an earlier one fails.
func (m Multi) Emit(ctx context.Context, event *domain.Event) error {
	var errs []error
	for _, e := range m {
		if e == nil {
			continue
		}
		if err := e.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
