// Package workspace resolves the Databricks workspace facts provisioning needs: the
// instance host, the operator's database user, and the app's service principal.
package workspace

import (
	"context"
	"errors"
	"fmt"

	"github.com/databricks/databricks-sdk-go"
	"github.com/databricks/databricks-sdk-go/service/apps"
	"github.com/databricks/databricks-sdk-go/service/database"
	"github.com/databricks/databricks-sdk-go/service/iam"
)

// InstanceAPI looks up database instances.
type InstanceAPI interface {
	GetDatabaseInstance(ctx context.Context, request database.GetDatabaseInstanceRequest) (*database.DatabaseInstance, error)
}

// CurrentUserAPI returns the authenticated workspace user.
type CurrentUserAPI interface {
	Me(ctx context.Context) (*iam.User, error)
}

// AppsAPI looks up apps.
type AppsAPI interface {
	Get(ctx context.Context, request apps.GetAppRequest) (*apps.App, error)
}

// Client is an explicitly constructed workspace client owned by the provisioning routine.
type Client struct {
	instances InstanceAPI
	users     CurrentUserAPI
	apps      AppsAPI
}

// NewClient returns a Client over the given service APIs.
func NewClient(instances InstanceAPI, users CurrentUserAPI, appsAPI AppsAPI) *Client {
	return &Client{instances: instances, users: users, apps: appsAPI}
}

// FromWorkspace wraps an SDK workspace client.
func FromWorkspace(w *databricks.WorkspaceClient) *Client {
	return NewClient(w.Database, w.CurrentUser, w.Apps)
}

// NewFromEnvironment authenticates with the SDK's default chain (env vars, config profile,
// notebook context) and returns the client together with the database API for minting.
func NewFromEnvironment() (*Client, database.DatabaseInterface, error) {
	w, err := databricks.NewWorkspaceClient()
	if err != nil {
		return nil, nil, fmt.Errorf("workspace: new client: %w", err)
	}
	return FromWorkspace(w), w.Database, nil
}

// InstanceHost returns the read-write DNS name of the named database instance.
func (c *Client) InstanceHost(ctx context.Context, instanceName string) (string, error) {
	if instanceName == "" {
		return "", errors.New("workspace: instance name is required")
	}
	inst, err := c.instances.GetDatabaseInstance(ctx, database.GetDatabaseInstanceRequest{Name: instanceName})
	if err != nil {
		return "", fmt.Errorf("workspace: get instance %q: %w", instanceName, err)
	}
	if inst.ReadWriteDns == "" {
		return "", fmt.Errorf("workspace: instance %q has no read-write DNS", instanceName)
	}
	return inst.ReadWriteDns, nil
}

// CurrentUser returns the user name the operator connects to Postgres as.
func (c *Client) CurrentUser(ctx context.Context) (string, error) {
	me, err := c.users.Me(ctx)
	if err != nil {
		return "", fmt.Errorf("workspace: current user: %w", err)
	}
	if me.UserName == "" {
		return "", errors.New("workspace: current user has no user name")
	}
	return me.UserName, nil
}

// AppServicePrincipal returns the database role that receives grants for appName: the app id.
func (c *Client) AppServicePrincipal(ctx context.Context, appName string) (string, error) {
	if appName == "" {
		return "", errors.New("workspace: app name is required")
	}
	app, err := c.apps.Get(ctx, apps.GetAppRequest{Name: appName})
	if err != nil {
		return "", fmt.Errorf("workspace: get app %q: %w", appName, err)
	}
	if app.Id == "" {
		return "", fmt.Errorf("workspace: app %q has no id", appName)
	}
	return app.Id, nil
}
