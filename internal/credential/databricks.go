package credential

import (
	"context"
	"time"

	"github.com/databricks/databricks-sdk-go/service/database"
)

// DatabaseAPI is the part of the Databricks database service used to mint credentials.
type DatabaseAPI interface {
	GenerateDatabaseCredential(ctx context.Context, request database.GenerateDatabaseCredentialRequest) (*database.DatabaseCredential, error)
}

// DatabricksIssuer issues Lakebase credentials via the workspace database API.
type DatabricksIssuer struct {
	api DatabaseAPI
}

// NewDatabricksIssuer returns an Issuer backed by api (typically WorkspaceClient.Database).
func NewDatabricksIssuer(api DatabaseAPI) *DatabricksIssuer {
	return &DatabricksIssuer{api: api}
}

// Issue implements Issuer.
func (d *DatabricksIssuer) Issue(ctx context.Context, req IssueRequest) (*Issued, error) {
	cred, err := d.api.GenerateDatabaseCredential(ctx, database.GenerateDatabaseCredentialRequest{
		RequestId:     req.RequestID,
		InstanceNames: req.InstanceNames,
	})
	if err != nil {
		return nil, err
	}
	out := &Issued{Token: cred.Token}
	if cred.ExpirationTime != "" {
		if t, err := time.Parse(time.RFC3339, cred.ExpirationTime); err == nil {
			out.ExpiresAt = t.UTC()
		}
	}
	return out, nil
}
