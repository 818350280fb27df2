package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/spf13/cobra"

	"lakechat/internal/audit"
	"lakechat/internal/config"
	"lakechat/internal/credential"
	"lakechat/internal/db/schema"
	"lakechat/internal/provision"
	telemetryotel "lakechat/internal/telemetry/otel"
	"lakechat/internal/workspace"
)

const serviceName = "lakechat-provision"

// session is everything one invocation needs, plus its teardown.
type session struct {
	cfg    *config.Config
	runner *provision.Runner
	close  func()
}

func newSession(cmd *cobra.Command, opts *options) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := opts.apply(cmd, cfg); err != nil {
		return nil, err
	}

	ctx := cmd.Context()
	providers, err := telemetryotel.NewProviders(ctx, cfg.OTLPEndpoint, serviceName, cfg.OTLPInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	providers.SetGlobal()

	emitters := audit.Multi{audit.LogEmitter{}, telemetryotel.NewAuditEmitter(providers.LoggerProvider)}
	kafkaProducer := audit.NewKafkaProducer(cfg.AuditKafkaBrokersList(), cfg.AuditKafkaTopic)
	if kafkaProducer != nil {
		emitters = append(emitters, kafkaProducer)
	}
	auditLogger := audit.NewLogger(emitters)

	closeAll := func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), audit.ShutdownDrainDuration)
		defer cancel()
		if err := auditLogger.Wait(drainCtx); err != nil {
			log.Printf("audit: drain: %v", err)
		}
		if err := kafkaProducer.Close(); err != nil {
			log.Printf("audit: kafka close: %v", err)
		}
		if err := providers.Shutdown(drainCtx); err != nil {
			log.Printf("telemetry: shutdown: %v", err)
		}
	}

	ws, dbAPI, err := workspace.NewFromEnvironment()
	if err != nil {
		closeAll()
		return nil, err
	}
	provisioner, err := schema.NewProvisioner()
	if err != nil {
		closeAll()
		return nil, err
	}
	runner, err := provision.NewRunner(provision.Deps{
		Workspace:   ws,
		Credentials: credential.NewProvider(credential.NewDatabricksIssuer(dbAPI)),
		Schema:      provisioner,
		Audit:       auditLogger,
		StepTimeout: stepTimeout(cfg),
		Tracer:      providers.Tracer("lakechat/provision"),
		Meter:       providers.Meter("lakechat/provision"),
	})
	if err != nil {
		closeAll()
		return nil, err
	}
	return &session{cfg: cfg, runner: runner, close: closeAll}, nil
}

func runAll(cmd *cobra.Command, opts *options) error {
	s, err := newSession(cmd, opts)
	if err != nil {
		return err
	}
	defer s.close()
	rep, err := s.runner.Run(cmd.Context(), planFrom(s.cfg))
	if rep != nil {
		printSchema(cmd.OutOrStdout(), rep.Schema)
		printGrants(cmd.OutOrStdout(), rep.Grants)
	}
	return err
}

func runSchema(cmd *cobra.Command, opts *options) error {
	s, err := newSession(cmd, opts)
	if err != nil {
		return err
	}
	defer s.close()
	res, err := s.runner.Schema(cmd.Context(), planFrom(s.cfg))
	printSchema(cmd.OutOrStdout(), res)
	return err
}

func runGrants(cmd *cobra.Command, opts *options) error {
	s, err := newSession(cmd, opts)
	if err != nil {
		return err
	}
	defer s.close()
	res, err := s.runner.Grants(cmd.Context(), planFrom(s.cfg))
	printGrants(cmd.OutOrStdout(), res)
	return err
}

func runCheck(cmd *cobra.Command, opts *options) error {
	s, err := newSession(cmd, opts)
	if err != nil {
		return err
	}
	defer s.close()
	res, err := s.runner.Check(cmd.Context(), planFrom(s.cfg))
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "host:     %s\n", res.Target.Params.Host)
	fmt.Fprintf(out, "user:     %s\n", res.Target.Params.User)
	fmt.Fprintf(out, "database: %s\n", res.Target.Params.Database)
	fmt.Fprintf(out, "version:  %s\n", res.Version)
	fmt.Fprintf(out, "tables:   %s\n", listOrNone(res.Tables))
	return nil
}

func printSchema(w io.Writer, res *schema.Result) {
	if res == nil {
		return
	}
	switch res.Status {
	case schema.StatusCreated:
		fmt.Fprintf(w, "schema: created (%s)\n", listOrNone(res.Tables))
		if len(res.Missing) > 0 {
			fmt.Fprintf(w, "schema: WARNING missing after create: %s\n", strings.Join(res.Missing, ", "))
		}
	case schema.StatusExisting:
		fmt.Fprintf(w, "schema: tables already exist (%s); nothing created\n", listOrNone(res.Tables))
	case schema.StatusFailed:
		fmt.Fprintln(w, "schema: FAILED")
	}
}

func printGrants(w io.Writer, res *provision.GrantResult) {
	if res == nil {
		return
	}
	if !res.Attempted {
		fmt.Fprintf(w, "grants: not attempted for %s\n", res.Principal)
		return
	}
	if res.SchemaUsage != nil {
		fmt.Fprintf(w, "grants: schema usage FAILED for %s: %v\n", res.Principal, res.SchemaUsage)
	} else {
		fmt.Fprintf(w, "grants: schema usage granted to %s\n", res.Principal)
	}
	if res.Tables == nil {
		return
	}
	for _, t := range res.Tables.Granted {
		fmt.Fprintf(w, "grants: table %s ok\n", t)
	}
	for _, f := range res.Tables.Failed {
		fmt.Fprintf(w, "grants: table %s FAILED: %v\n", f.Table, f.Err)
	}
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}
