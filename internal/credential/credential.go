// Package credential mints short-lived database credentials for Lakebase instances.
package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrCredentialIssuance is returned when the issuer fails to produce a credential.
var ErrCredentialIssuance = errors.New("credential issuance failed")

// Credential is an ephemeral database login. It is never cached; each step mints its own.
type Credential struct {
	Principal     string
	InstanceNames []string
	Token         string
	RequestID     string
	// ExpiresAt is zero when the issuer does not report an expiry.
	ExpiresAt time.Time
}

// IssueRequest is what an Issuer receives for a single mint.
type IssueRequest struct {
	RequestID     string
	InstanceNames []string
}

// Issued is the issuer's answer.
type Issued struct {
	Token     string
	ExpiresAt time.Time
}

// Issuer calls the external credential service.
type Issuer interface {
	Issue(ctx context.Context, req IssueRequest) (*Issued, error)
}

// Provider mints credentials through an Issuer with a fresh request id per call.
type Provider struct {
	issuer Issuer
	newID  func() string
}

// NewProvider returns a Provider backed by issuer.
func NewProvider(issuer Issuer) *Provider {
	return &Provider{issuer: issuer, newID: uuid.NewString}
}

// Mint generates a credential for principal valid on instanceNames. Failures are not retried.
func (p *Provider) Mint(ctx context.Context, principal string, instanceNames []string) (*Credential, error) {
	if len(instanceNames) == 0 {
		return nil, fmt.Errorf("%w: no instance names", ErrCredentialIssuance)
	}
	names := append([]string(nil), instanceNames...)
	reqID := p.newID()
	issued, err := p.issuer.Issue(ctx, IssueRequest{RequestID: reqID, InstanceNames: names})
	if err != nil {
		return nil, fmt.Errorf("%w: request %s: %w", ErrCredentialIssuance, reqID, err)
	}
	if issued == nil || issued.Token == "" {
		return nil, fmt.Errorf("%w: request %s: empty token", ErrCredentialIssuance, reqID)
	}
	return &Credential{
		Principal:     principal,
		InstanceNames: names,
		Token:         issued.Token,
		RequestID:     reqID,
		ExpiresAt:     issued.ExpiresAt,
	}, nil
}
