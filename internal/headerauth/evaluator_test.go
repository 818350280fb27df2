package headerauth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	auditdomain "lakechat/internal/audit/domain"
	"lakechat/internal/security"
)

type auditCall struct {
	action, principal, outcome string
	attrs                      map[string]string
}

// mockAuditLogger records LogEvent calls synchronously.
type mockAuditLogger struct {
	mu    sync.Mutex
	calls []auditCall
}

func (m *mockAuditLogger) LogEvent(ctx context.Context, action, principal, outcome string, attrs map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, auditCall{action, principal, outcome, attrs})
}

var fixedNow = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

func newTestEvaluator(a *mockAuditLogger) *Evaluator {
	ev := NewEvaluator(nil)
	if a != nil {
		ev = NewEvaluator(a)
	}
	ev.now = func() time.Time { return fixedNow }
	return ev
}

func mustToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token, err := security.NewTestOBOToken("alice@example.com", exp)
	if err != nil {
		t.Fatalf("NewTestOBOToken: %v", err)
	}
	return token
}

func TestEvaluate_Success(t *testing.T) {
	a := &mockAuditLogger{}
	ev := newTestEvaluator(a)
	exp := fixedNow.Add(30 * time.Minute)
	token := mustToken(t, exp)

	id, err := ev.Evaluate(context.Background(), FromMap(map[string]string{
		HeaderAccessToken: token,
		HeaderEmail:       "alice@example.com",
		"x-forwarded-for": "10.0.0.1, 10.0.0.2",
	}))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if id.Identifier != "alice@example.com" {
		t.Errorf("Identifier = %q, want %q", id.Identifier, "alice@example.com")
	}
	if id.DisplayName != "alice" {
		t.Errorf("DisplayName = %q, want %q", id.DisplayName, "alice")
	}
	if id.Provider != "obo" {
		t.Errorf("Provider = %q, want %q", id.Provider, "obo")
	}
	if id.Metadata.OBOToken != token {
		t.Error("OBOToken should be the forwarded token")
	}
	if !id.Metadata.OBOTokenExpiry.Equal(exp) {
		t.Errorf("OBOTokenExpiry = %v, want %v", id.Metadata.OBOTokenExpiry, exp)
	}
	if id.Metadata.Headers[HeaderEmail] != "alice@example.com" {
		t.Errorf("Headers = %v, want flattened forwarded headers", id.Metadata.Headers)
	}

	if len(a.calls) != 1 {
		t.Fatalf("audit calls = %d, want 1", len(a.calls))
	}
	c := a.calls[0]
	if c.action != auditdomain.ActionHeaderAuth || c.outcome != auditdomain.OutcomeSuccess || c.principal != "alice@example.com" {
		t.Errorf("audit call = %+v", c)
	}
	if c.attrs["seconds_left"] != "1800" {
		t.Errorf("seconds_left = %q, want %q", c.attrs["seconds_left"], "1800")
	}
	if c.attrs["client_ip"] != "10.0.0.1" {
		t.Errorf("client_ip = %q, want %q", c.attrs["client_ip"], "10.0.0.1")
	}
}

func TestEvaluate_UserFallback(t *testing.T) {
	ev := newTestEvaluator(&mockAuditLogger{})
	id, err := ev.Evaluate(context.Background(), FromMap(map[string]string{
		HeaderAccessToken: mustToken(t, fixedNow.Add(time.Hour)),
		HeaderUser:        "bob@example.com",
	}))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if id.Identifier != "bob@example.com" {
		t.Errorf("Identifier = %q, want %q", id.Identifier, "bob@example.com")
	}
	if id.DisplayName != "bob" {
		t.Errorf("DisplayName = %q, want %q", id.DisplayName, "bob")
	}
}

func TestEvaluate_EmailPreferredOverUser(t *testing.T) {
	ev := newTestEvaluator(nil)
	id, err := ev.Evaluate(context.Background(), FromMap(map[string]string{
		HeaderAccessToken: mustToken(t, fixedNow.Add(time.Hour)),
		HeaderEmail:       "alice@example.com",
		HeaderUser:        "svc-user",
	}))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if id.Identifier != "alice@example.com" {
		t.Errorf("Identifier = %q, want email", id.Identifier)
	}
}

func TestEvaluate_EmptyEmailFallsBackToUser(t *testing.T) {
	ev := newTestEvaluator(nil)
	id, err := ev.Evaluate(context.Background(), FromMap(map[string]string{
		HeaderAccessToken: mustToken(t, fixedNow.Add(time.Hour)),
		HeaderEmail:       "",
		HeaderUser:        "carol",
	}))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if id.Identifier != "carol" || id.DisplayName != "carol" {
		t.Errorf("identity = %q/%q, want carol/carol", id.Identifier, id.DisplayName)
	}
}

func TestEvaluate_MissingHeadersRejected(t *testing.T) {
	token := mustToken(t, fixedNow.Add(time.Hour))
	testCases := []struct {
		name    string
		headers map[string]string
	}{
		{"no headers", map[string]string{}},
		{"token only", map[string]string{HeaderAccessToken: token}},
		{"email only", map[string]string{HeaderEmail: "alice@example.com"}},
		{"user only", map[string]string{HeaderUser: "alice"}},
		{"empty token", map[string]string{HeaderAccessToken: "", HeaderEmail: "alice@example.com"}},
		{"empty identities", map[string]string{HeaderAccessToken: token, HeaderEmail: "", HeaderUser: ""}},
		{"unrelated auth header", map[string]string{"authorization": "Bearer " + token, HeaderEmail: "alice@example.com"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			a := &mockAuditLogger{}
			ev := newTestEvaluator(a)
			id, err := ev.Evaluate(context.Background(), FromMap(tc.headers))
			if err == nil {
				t.Fatalf("Evaluate = %+v, want rejection", id)
			}
			if id != nil {
				t.Error("identity should be nil on rejection")
			}
			if !errors.Is(err, ErrRejected) || !errors.Is(err, ErrMissingHeaders) {
				t.Errorf("error = %v, want ErrRejected wrapping ErrMissingHeaders", err)
			}
			if len(a.calls) != 1 || a.calls[0].outcome != auditdomain.OutcomeRejected {
				t.Fatalf("audit calls = %+v, want one rejection", a.calls)
			}
			if a.calls[0].principal != "" {
				t.Errorf("rejection audit leaks principal %q", a.calls[0].principal)
			}
		})
	}
}

func TestEvaluate_MalformedTokenRejected(t *testing.T) {
	for _, token := range []string{"not-a-jwt", "a.b.c", "...."} {
		ev := newTestEvaluator(&mockAuditLogger{})
		id, err := ev.Evaluate(context.Background(), FromMap(map[string]string{
			HeaderAccessToken: token,
			HeaderEmail:       "alice@example.com",
		}))
		if err == nil || id != nil {
			t.Fatalf("Evaluate(%q) = %v, %v; want rejection", token, id, err)
		}
		if !errors.Is(err, ErrRejected) || !errors.Is(err, security.ErrTokenParse) {
			t.Errorf("error = %v, want ErrRejected wrapping ErrTokenParse", err)
		}
	}
}

func TestEvaluate_ExpiredTokenAccepted(t *testing.T) {
	a := &mockAuditLogger{}
	ev := newTestEvaluator(a)
	id, err := ev.Evaluate(context.Background(), FromMap(map[string]string{
		HeaderAccessToken: mustToken(t, fixedNow.Add(-10*time.Minute)),
		HeaderEmail:       "alice@example.com",
	}))
	if err != nil {
		t.Fatalf("expired token should be accepted structurally: %v", err)
	}
	if id == nil {
		t.Fatal("identity should not be nil")
	}
	if got := a.calls[0].attrs["seconds_left"]; got != "-600" {
		t.Errorf("seconds_left = %q, want %q", got, "-600")
	}
}

func TestEvaluate_HTTPHeaderCanonicalKeys(t *testing.T) {
	ev := newTestEvaluator(nil)
	id, err := ev.Evaluate(context.Background(), FromRawPairs([][2][]byte{
		{[]byte("X-Forwarded-Access-Token"), []byte(mustToken(t, fixedNow.Add(time.Hour)))},
		{[]byte("X-Forwarded-Email"), []byte("dave@example.com")},
	}))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if id.Identifier != "dave@example.com" {
		t.Errorf("Identifier = %q, want %q", id.Identifier, "dave@example.com")
	}
}

func TestEvaluate_ProxyKeyBeatsMixedCaseDuplicate(t *testing.T) {
	ev := newTestEvaluator(nil)
	headers := map[string]string{
		HeaderAccessToken:   mustToken(t, fixedNow.Add(time.Hour)),
		HeaderEmail:         "alice@example.com",
		"X-Forwarded-Email": "mallory@example.com",
	}
	for i := 0; i < 50; i++ {
		id, err := ev.Evaluate(context.Background(), FromMap(headers))
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if id.Identifier != "alice@example.com" {
			t.Fatalf("iteration %d: Identifier = %q, want %q", i, id.Identifier, "alice@example.com")
		}
	}
}

func TestEvaluate_IndependentIdentities(t *testing.T) {
	ev := newTestEvaluator(nil)
	headers := map[string]string{
		HeaderAccessToken: mustToken(t, fixedNow.Add(time.Hour)),
		HeaderEmail:       "alice@example.com",
	}
	first, err := ev.Evaluate(context.Background(), FromMap(headers))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	second, err := ev.Evaluate(context.Background(), FromMap(headers))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if first == second {
		t.Fatal("each evaluation should build a new Identity")
	}
	first.Metadata.Headers["x-mutated"] = "1"
	if _, ok := second.Metadata.Headers["x-mutated"]; ok {
		t.Error("identities should not share header maps")
	}
}

func TestInstall(t *testing.T) {
	if ev := Install(false, nil); ev != nil {
		t.Error("Install(false) should return nil")
	}
	if ev := Install(true, nil); ev == nil {
		t.Error("Install(true) should return an evaluator")
	}
}
