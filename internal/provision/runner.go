// Package provision runs the one-time environment setup: resolve the instance, then
// create the chat schema and grant the app's service principal access. Every step mints
// its own credential and holds its own connection for exactly the step's duration.
package provision

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"lakechat/internal/audit"
	auditdomain "lakechat/internal/audit/domain"
	"lakechat/internal/config"
	"lakechat/internal/credential"
	"lakechat/internal/db"
	"lakechat/internal/db/grants"
	"lakechat/internal/db/schema"
)

const instrumentationName = "lakechat/provision"

// Workspace resolves the facts a run needs from the workspace.
type Workspace interface {
	InstanceHost(ctx context.Context, instanceName string) (string, error)
	CurrentUser(ctx context.Context) (string, error)
	AppServicePrincipal(ctx context.Context, appName string) (string, error)
}

// Minter mints database credentials.
type Minter interface {
	Mint(ctx context.Context, principal string, instanceNames []string) (*credential.Credential, error)
}

// Conn is a scoped database connection.
type Conn interface {
	schema.Conn
	Close(ctx context.Context) error
}

// Connector opens a connection for dsn.
type Connector func(ctx context.Context, dsn string) (Conn, error)

// SchemaEnsurer creates the chat schema when absent.
type SchemaEnsurer interface {
	Ensure(ctx context.Context, conn schema.Conn) (*schema.Result, error)
}

// Plan names what to provision.
type Plan struct {
	InstanceName string
	Port         int
	Database     string
	AppName      string
	SSLMode      string
}

// Validate checks the fields every step needs.
func (p Plan) Validate() error {
	if p.InstanceName == "" {
		return errors.New("provision: instance name is required")
	}
	if p.Database == "" {
		return errors.New("provision: database is required")
	}
	if p.Port <= 0 || p.Port > 65535 {
		return fmt.Errorf("provision: invalid port %d", p.Port)
	}
	return config.ValidateSSLMode(p.SSLMode)
}

// Target is a resolved plan.
type Target struct {
	Instance string
	Params   db.ConnParams
}

// GrantResult is the outcome of the grants step. Attempted is false when the step failed
// before any GRANT was issued.
type GrantResult struct {
	Principal   string
	Attempted   bool
	SchemaUsage error
	Tables      *grants.Report
}

// Err joins the schema and table grant failures.
func (g *GrantResult) Err() error {
	if g == nil {
		return nil
	}
	return errors.Join(g.SchemaUsage, g.Tables.Err())
}

// CheckResult describes a connectivity check.
type CheckResult struct {
	Target  *Target
	Version string
	Tables  []string
}

// Report is the outcome of a full run.
type Report struct {
	Target *Target
	Schema *schema.Result
	Grants *GrantResult
}

// Deps are the Runner's collaborators.
type Deps struct {
	Workspace   Workspace
	Credentials Minter
	Schema      SchemaEnsurer
	// Connect defaults to db.Connect.
	Connect Connector
	Audit   audit.AuditLogger
	// StepTimeout bounds each step. Zero leaves steps unbounded.
	StepTimeout time.Duration
	Tracer      trace.Tracer
	Meter       metric.Meter
}

// Runner executes provisioning steps.
type Runner struct {
	ws          Workspace
	creds       Minter
	schema      SchemaEnsurer
	connect     Connector
	audit       audit.AuditLogger
	stepTimeout time.Duration
	tracer      trace.Tracer
	steps       metric.Int64Counter
}

// NewRunner validates deps and returns a Runner.
func NewRunner(d Deps) (*Runner, error) {
	if d.Workspace == nil || d.Credentials == nil || d.Schema == nil {
		return nil, errors.New("provision: workspace, credentials and schema are required")
	}
	if d.StepTimeout < 0 {
		return nil, errors.New("provision: step timeout must not be negative")
	}
	r := &Runner{
		ws:          d.Workspace,
		creds:       d.Credentials,
		schema:      d.Schema,
		connect:     d.Connect,
		audit:       d.Audit,
		stepTimeout: d.StepTimeout,
		tracer:      d.Tracer,
	}
	if r.connect == nil {
		r.connect = func(ctx context.Context, dsn string) (Conn, error) {
			return db.Connect(ctx, dsn)
		}
	}
	if r.tracer == nil {
		r.tracer = otel.Tracer(instrumentationName)
	}
	meter := d.Meter
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}
	steps, err := meter.Int64Counter("lakechat.provision.steps",
		metric.WithDescription("Provisioning steps by name and outcome"))
	if err != nil {
		return nil, fmt.Errorf("provision: steps counter: %w", err)
	}
	r.steps = steps
	return r, nil
}

// Resolve looks up the instance host and the operator's database user.
func (r *Runner) Resolve(ctx context.Context, plan Plan) (*Target, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	host, err := r.ws.InstanceHost(ctx, plan.InstanceName)
	if err != nil {
		return nil, err
	}
	user, err := r.ws.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	t := &Target{
		Instance: plan.InstanceName,
		Params: db.ConnParams{
			Host:     host,
			Port:     plan.Port,
			Database: plan.Database,
			User:     user,
			SSLMode:  plan.SSLMode,
		},
	}
	log.Printf("provision: instance=%s host=%s port=%d user=%s database=%s sslmode=%s",
		t.Instance, host, plan.Port, user, plan.Database, plan.SSLMode)
	return t, nil
}

// Check mints a credential, connects, and reports the server version and the chat tables present.
func (r *Runner) Check(ctx context.Context, plan Plan) (*CheckResult, error) {
	target, err := r.Resolve(ctx, plan)
	if err != nil {
		return nil, err
	}
	res := &CheckResult{Target: target}
	err = r.step(ctx, "check", target, func(ctx context.Context, conn Conn) error {
		v, err := db.ServerVersion(ctx, conn)
		if err != nil {
			return err
		}
		res.Version = v
		log.Printf("provision: connected to PostgreSQL database. Version: %s", v)
		tables, err := schema.ExistingTables(ctx, conn)
		if err != nil {
			return err
		}
		res.Tables = tables
		log.Printf("provision: chat tables present: %d", len(tables))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Schema runs the schema step against a freshly resolved target.
func (r *Runner) Schema(ctx context.Context, plan Plan) (*schema.Result, error) {
	target, err := r.Resolve(ctx, plan)
	if err != nil {
		return nil, err
	}
	return r.schemaStep(ctx, target)
}

// Grants runs the grants step against a freshly resolved target.
func (r *Runner) Grants(ctx context.Context, plan Plan) (*GrantResult, error) {
	if plan.AppName == "" {
		return nil, errors.New("provision: app name is required")
	}
	target, err := r.Resolve(ctx, plan)
	if err != nil {
		return nil, err
	}
	return r.grantsStep(ctx, target, plan.AppName)
}

// Run resolves once, then runs the schema step and the grants step in order. A failed
// schema step halts the run.
func (r *Runner) Run(ctx context.Context, plan Plan) (*Report, error) {
	if plan.AppName == "" {
		return nil, errors.New("provision: app name is required")
	}
	target, err := r.Resolve(ctx, plan)
	if err != nil {
		return nil, err
	}
	rep := &Report{Target: target}

	rep.Schema, err = r.schemaStep(ctx, target)
	if err != nil {
		return rep, err
	}
	rep.Grants, err = r.grantsStep(ctx, target, plan.AppName)
	if err != nil {
		return rep, err
	}
	log.Printf("provision: complete")
	return rep, nil
}

func (r *Runner) schemaStep(ctx context.Context, target *Target) (*schema.Result, error) {
	var res *schema.Result
	err := r.step(ctx, "schema", target, func(ctx context.Context, conn Conn) error {
		var err error
		res, err = r.schema.Ensure(ctx, conn)
		return err
	})
	if res != nil {
		outcome := auditdomain.OutcomeSuccess
		switch {
		case res.Status == schema.StatusFailed:
			outcome = auditdomain.OutcomeFailure
		case !res.Created:
			outcome = auditdomain.OutcomeSkipped
		}
		r.record(ctx, auditdomain.ActionSchemaProvision, target.Params.User, outcome, map[string]string{
			"instance": target.Instance,
			"status":   string(res.Status),
			"tables":   strings.Join(res.Tables, ","),
			"missing":  strings.Join(res.Missing, ","),
		})
	}
	return res, err
}

func (r *Runner) grantsStep(ctx context.Context, target *Target, appName string) (*GrantResult, error) {
	principal, err := r.ws.AppServicePrincipal(ctx, appName)
	if err != nil {
		return nil, err
	}
	log.Printf("provision: granting access to app %s (principal %s)", appName, principal)
	res := &GrantResult{Principal: principal}
	err = r.step(ctx, "grants", target, func(ctx context.Context, conn Conn) error {
		res.Attempted = true
		res.SchemaUsage = grants.GrantSchemaUsage(ctx, conn, principal)
		r.record(ctx, auditdomain.ActionSchemaGrant, principal, outcomeOf(res.SchemaUsage), map[string]string{
			"schema": grants.Schema,
		})
		res.Tables = grants.GrantTablePrivileges(ctx, conn, target.Params.Database, principal, schema.RequiredTables)
		for _, t := range res.Tables.Granted {
			r.record(ctx, auditdomain.ActionTableGrant, principal, auditdomain.OutcomeSuccess, map[string]string{"table": t})
		}
		for _, f := range res.Tables.Failed {
			r.record(ctx, auditdomain.ActionTableGrant, principal, auditdomain.OutcomeFailure, map[string]string{"table": f.Table})
		}
		return res.Err()
	})
	return res, err
}

// step mints a credential, opens a connection, runs fn and closes the connection on every
// exit path, all under the step timeout.
func (r *Runner) step(ctx context.Context, name string, target *Target, fn func(ctx context.Context, conn Conn) error) (err error) {
	ctx, span := r.tracer.Start(ctx, "provision."+name, trace.WithAttributes(
		attribute.String("lakebase.instance", target.Instance),
		attribute.String("db.namespace", target.Params.Database),
	))
	defer func() {
		outcome := auditdomain.OutcomeSuccess
		if err != nil {
			outcome = auditdomain.OutcomeFailure
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			log.Printf("provision: step %s failed: %v", name, err)
		} else {
			log.Printf("provision: step %s ok", name)
		}
		r.steps.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(
			attribute.String("step", name),
			attribute.String("outcome", outcome),
		))
		span.End()
	}()

	if r.stepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.stepTimeout)
		defer cancel()
	}

	cred, err := r.creds.Mint(ctx, target.Params.User, []string{target.Instance})
	if err != nil {
		r.record(ctx, auditdomain.ActionCredentialMint, target.Params.User, auditdomain.OutcomeFailure, map[string]string{
			"instance": target.Instance, "step": name,
		})
		return fmt.Errorf("provision: %s: %w", name, err)
	}
	attrs := map[string]string{"instance": target.Instance, "step": name, "request_id": cred.RequestID}
	if !cred.ExpiresAt.IsZero() {
		attrs["expires_at"] = cred.ExpiresAt.Format(time.RFC3339)
	}
	r.record(ctx, auditdomain.ActionCredentialMint, target.Params.User, auditdomain.OutcomeSuccess, attrs)

	conn, err := r.connect(ctx, target.Params.DSN(cred.Token))
	if err != nil {
		return fmt.Errorf("provision: %s: connect %s: %w", name, target.Params.Redacted(), err)
	}
	defer func() {
		if cerr := conn.Close(context.WithoutCancel(ctx)); cerr != nil {
			log.Printf("provision: step %s: close connection: %v", name, cerr)
		}
	}()

	if err := fn(ctx, conn); err != nil {
		return fmt.Errorf("provision: %s: %w", name, err)
	}
	return nil
}

func (r *Runner) record(ctx context.Context, action, principal, outcome string, attrs map[string]string) {
	if r.audit == nil {
		return
	}
	r.audit.LogEvent(ctx, action, principal, outcome, attrs)
}

func outcomeOf(err error) string {
	if err != nil {
		return auditdomain.OutcomeFailure
	}
	return auditdomain.OutcomeSuccess
}
