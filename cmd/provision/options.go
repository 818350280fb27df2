package main

import (
	"time"

	"github.com/spf13/cobra"

	"lakechat/internal/config"
	"lakechat/internal/provision"
)

// options hold flag values. Only flags the user set override config.
type options struct {
	instanceName string
	port         int
	database     string
	appName      string
	sslMode      string
	stepTimeout  string
}

func (o *options) bind(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringVar(&o.instanceName, "instance-name", "", "Lakebase database instance name (LAKEBASE_INSTANCE_NAME)")
	f.IntVar(&o.port, "port", 5432, "Postgres port (LAKEBASE_PORT)")
	f.StringVar(&o.database, "database", "", "Postgres database (LAKEBASE_DATABASE)")
	f.StringVar(&o.appName, "app-name", "bi-agent", "App whose service principal receives grants (LAKEBASE_APP_NAME)")
	f.StringVar(&o.sslMode, "sslmode", "require", "SSL mode: disable, allow, prefer, require, verify-ca, verify-full (LAKEBASE_SSLMODE)")
	f.StringVar(&o.stepTimeout, "step-timeout", "5m", `Per-step timeout, "0" for none (PROVISION_STEP_TIMEOUT)`)
}

// apply copies changed flags over cfg and revalidates the affected fields.
func (o *options) apply(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	if f.Changed("instance-name") {
		cfg.InstanceName = o.instanceName
	}
	if f.Changed("port") {
		cfg.Port = o.port
	}
	if f.Changed("database") {
		cfg.Database = o.database
	}
	if f.Changed("app-name") {
		cfg.AppName = o.appName
	}
	if f.Changed("sslmode") {
		if err := config.ValidateSSLMode(o.sslMode); err != nil {
			return err
		}
		cfg.SSLMode = o.sslMode
	}
	if f.Changed("step-timeout") {
		cfg.ProvisionStepTimeout = o.stepTimeout
		if _, err := cfg.StepTimeout(); err != nil {
			return err
		}
	}
	return nil
}

func planFrom(cfg *config.Config) provision.Plan {
	return provision.Plan{
		InstanceName: cfg.InstanceName,
		Port:         cfg.Port,
		Database:     cfg.Database,
		AppName:      cfg.AppName,
		SSLMode:      cfg.SSLMode,
	}
}

func stepTimeout(cfg *config.Config) time.Duration {
	d, _ := cfg.StepTimeout()
	return d
}
