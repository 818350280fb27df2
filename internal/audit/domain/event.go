package domain

import "time"

// Event is one audit record: an authentication decision or a provisioning step outcome.
type Event struct {
	ID         string            `json:"id"`
	Action     string            `json:"action"`
	Principal  string            `json:"principal,omitempty"`
	Outcome    string            `json:"outcome"`
	Attributes map[string]string `json:"attributes,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Actions.
const (
	ActionHeaderAuth      = "header_auth"
	ActionCredentialMint  = "credential_mint"
	ActionSchemaProvision = "schema_provision"
	ActionSchemaGrant     = "schema_grant"
	ActionTableGrant      = "table_grant"
)

// Outcomes.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeSkipped  = "skipped"
	OutcomeFailure  = "failure"
)
