package credential

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/databricks/databricks-sdk-go/service/database"
)

type fakeIssuer struct {
	requests []IssueRequest
	issued   *Issued
	err      error
}

func (f *fakeIssuer) Issue(_ context.Context, req IssueRequest) (*Issued, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.issued, nil
}

func TestProvider_Mint(t *testing.T) {
	exp := time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)
	issuer := &fakeIssuer{issued: &Issued{Token: "tok-1", ExpiresAt: exp}}
	p := NewProvider(issuer)

	cred, err := p.Mint(context.Background(), "owner@example.com", []string{"chat-db"})
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if cred.Principal != "owner@example.com" {
		t.Errorf("Principal = %q, want %q", cred.Principal, "owner@example.com")
	}
	if cred.Token != "tok-1" {
		t.Errorf("Token = %q, want %q", cred.Token, "tok-1")
	}
	if !cred.ExpiresAt.Equal(exp) {
		t.Errorf("ExpiresAt = %v, want %v", cred.ExpiresAt, exp)
	}
	if len(cred.InstanceNames) != 1 || cred.InstanceNames[0] != "chat-db" {
		t.Errorf("InstanceNames = %v, want [chat-db]", cred.InstanceNames)
	}
	if cred.RequestID == "" || issuer.requests[0].RequestID != cred.RequestID {
		t.Errorf("RequestID = %q, issuer saw %q", cred.RequestID, issuer.requests[0].RequestID)
	}
}

func TestProvider_MintUsesFreshRequestIDs(t *testing.T) {
	issuer := &fakeIssuer{issued: &Issued{Token: "tok"}}
	p := NewProvider(issuer)

	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		cred, err := p.Mint(context.Background(), "owner", []string{"chat-db"})
		if err != nil {
			t.Fatalf("Mint: %v", err)
		}
		if seen[cred.RequestID] {
			t.Fatalf("request id %q reused", cred.RequestID)
		}
		seen[cred.RequestID] = true
	}
}

func TestProvider_MintErrors(t *testing.T) {
	testCases := []struct {
		name      string
		issuer    *fakeIssuer
		instances []string
	}{
		{"issuer error", &fakeIssuer{err: errors.New("403 forbidden")}, []string{"chat-db"}},
		{"empty token", &fakeIssuer{issued: &Issued{}}, []string{"chat-db"}},
		{"nil result", &fakeIssuer{}, []string{"chat-db"}},
		{"no instances", &fakeIssuer{issued: &Issued{Token: "tok"}}, nil},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cred, err := NewProvider(tc.issuer).Mint(context.Background(), "owner", tc.instances)
			if !errors.Is(err, ErrCredentialIssuance) {
				t.Fatalf("err = %v, want ErrCredentialIssuance", err)
			}
			if cred != nil {
				t.Error("credential should be nil on error")
			}
		})
	}
}

func TestProvider_MintCopiesInstanceNames(t *testing.T) {
	p := NewProvider(&fakeIssuer{issued: &Issued{Token: "tok"}})
	names := []string{"chat-db"}
	cred, err := p.Mint(context.Background(), "owner", names)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	names[0] = "other"
	if cred.InstanceNames[0] != "chat-db" {
		t.Errorf("InstanceNames aliased caller slice: %v", cred.InstanceNames)
	}
}

type fakeDatabaseAPI struct {
	req  database.GenerateDatabaseCredentialRequest
	cred *database.DatabaseCredential
	err  error
}

func (f *fakeDatabaseAPI) GenerateDatabaseCredential(_ context.Context, req database.GenerateDatabaseCredentialRequest) (*database.DatabaseCredential, error) {
	f.req = req
	return f.cred, f.err
}

func TestDatabricksIssuer_Issue(t *testing.T) {
	api := &fakeDatabaseAPI{cred: &database.DatabaseCredential{
		Token:          "lakebase-token",
		ExpirationTime: "2025-06-01T13:00:00Z",
	}}
	issued, err := NewDatabricksIssuer(api).Issue(context.Background(), IssueRequest{RequestID: "r-1", InstanceNames: []string{"chat-db"}})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if api.req.RequestId != "r-1" || len(api.req.InstanceNames) != 1 || api.req.InstanceNames[0] != "chat-db" {
		t.Errorf("request = %+v", api.req)
	}
	if issued.Token != "lakebase-token" {
		t.Errorf("Token = %q, want %q", issued.Token, "lakebase-token")
	}
	want := time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)
	if !issued.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", issued.ExpiresAt, want)
	}
}

func TestDatabricksIssuer_UnparseableExpiryIsIgnored(t *testing.T) {
	api := &fakeDatabaseAPI{cred: &database.DatabaseCredential{Token: "t", ExpirationTime: "soon"}}
	issued, err := NewDatabricksIssuer(api).Issue(context.Background(), IssueRequest{RequestID: "r"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !issued.ExpiresAt.IsZero() {
		t.Errorf("ExpiresAt = %v, want zero", issued.ExpiresAt)
	}
}

func TestDatabricksIssuer_Error(t *testing.T) {
	api := &fakeDatabaseAPI{err: errors.New("unreachable")}
	if _, err := NewDatabricksIssuer(api).Issue(context.Background(), IssueRequest{RequestID: "r"}); err == nil {
		t.Fatal("Issue should return error")
	}
}
