// Copyright 2024 The Smart Garden Authors. This file is licensed under the Apache Software License, v. 2
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package app wires gardenbrokerd's cobra command: flags, configuration
// validation, and the Run method that assembles and starts every component
// in the dependency order §2 names.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/smartgarden/gardenbroker/internal/broker"
	"github.com/smartgarden/gardenbroker/internal/clienthandler"
	"github.com/smartgarden/gardenbroker/internal/config"
	"github.com/smartgarden/gardenbroker/internal/controllerhandler"
	"github.com/smartgarden/gardenbroker/internal/irrigation"
	"github.com/smartgarden/gardenbroker/internal/logging"
	"github.com/smartgarden/gardenbroker/internal/metrics"
	"github.com/smartgarden/gardenbroker/internal/scheduler"
	"github.com/smartgarden/gardenbroker/internal/store/postgres"
	"github.com/smartgarden/gardenbroker/internal/supervisor"
	"github.com/smartgarden/gardenbroker/internal/transport"
)

// Name is a const for the name of this component.
const Name = "gardenbrokerd"

// NewCommand creates a new *cobra.Command able to run gardenbrokerd.
func NewCommand() *cobra.Command {
	opts := &Options{cfg: config.Default()}

	cmd := &cobra.Command{
		Use:   Name,
		Short: "Launch the " + Name,
		Long:  Name + " brokers commands between mobile clients and a garden's field controller, and enforces the irrigation state machine.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := opts.complete(); err != nil {
				return err
			}
			if err := opts.validate(); err != nil {
				return err
			}
			return opts.Run(cmd.Context())
		},
		SilenceUsage: true,
	}

	opts.AddFlags(cmd.Flags())
	return cmd
}

// Options has all the context and parameters needed to run gardenbrokerd.
type Options struct {
	cfg *config.Config

	LogLevel  string
	LogFormat string

	configFile string
}

// AddFlags adds gardenbrokerd's flags to the specified FlagSet. Of these,
// only database-dsn is also read through viper (see complete); the other
// flags are set on the command line alone.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.configFile, "config", "", "Path to an optional YAML configuration file")

	fs.StringVar(&o.cfg.BindAddress, "bind-address", o.cfg.BindAddress, "Address the client/controller websocket server binds to")
	fs.StringVar(&o.cfg.HealthAddress, "health-address", o.cfg.HealthAddress, "Bind address for the health server")
	fs.StringVar(&o.cfg.MetricsAddress, "metrics-address", o.cfg.MetricsAddress, "Bind address for the metrics server")

	fs.StringVar(&o.cfg.DatabaseDSN, "database-dsn", "", "Postgres connection string")
	fs.Int32Var(&o.cfg.DatabaseMaxConns, "database-max-conns", o.cfg.DatabaseMaxConns, "Maximum Postgres pool connections")
	fs.DurationVar(&o.cfg.DatabaseIdleTime, "database-idle-time", o.cfg.DatabaseIdleTime, "Maximum Postgres connection idle time")
	fs.DurationVar(&o.cfg.DatabaseConnTimeout, "database-connect-timeout", o.cfg.DatabaseConnTimeout, "Postgres connection timeout")

	fs.StringVar(&o.cfg.RedisDSN, "redis-dsn", "", "Optional Redis DSN for the irrigation-state read-through cache mirror")

	fs.BoolVar(&o.cfg.SimulationMode, "simulation-mode", false, "Run against a simulated controller rather than field hardware")
	fs.BoolVar(&o.cfg.VerboseLogging, "verbose", false, "Enable verbose (debug) logging")

	fs.StringVar(&o.cfg.WeatherAPIKey, "weather-api-key", "", "API key for the external weather/geocoding collaborator")
	fs.StringVar(&o.cfg.EmailSMTPHost, "email-smtp-host", "", "SMTP host for the external email-delivery collaborator")
	fs.StringVar(&o.cfg.EmailFrom, "email-from", "", "From-address for outbound email")

	fs.BoolVar(&o.cfg.StaleControllerEviction, "stale-controller-eviction", false, "Enable eviction of controllers whose heartbeat has gone stale (off by default per the design notes)")
	fs.DurationVar(&o.cfg.StaleControllerThreshold, "stale-controller-threshold", o.cfg.StaleControllerThreshold, "Heartbeat age past which a controller is considered stale")
	fs.DurationVar(&o.cfg.SweepInterval, "sweep-interval", o.cfg.SweepInterval, "Lifecycle Supervisor pending-correlation sweep tick")

	fs.StringVar(&o.LogLevel, "log-level", "info", "Log level (debug, info, error)")
	fs.StringVar(&o.LogFormat, "log-format", "json", "Log format (json, text)")
}

// complete reads GARDENBROKER-prefixed environment variables and the
// optional --config file through viper and applies only the database-dsn
// key, and only when the flag left DatabaseDSN empty. It then validates the
// log format and raises the log level to debug when verbose logging is on.
func (o *Options) complete() error {
	v := viper.New()
	v.SetEnvPrefix("GARDENBROKER")
	v.AutomaticEnv()
	if o.configFile != "" {
		v.SetConfigFile(o.configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config file: %w", err)
		}
	}
	if v.IsSet("database-dsn") && o.cfg.DatabaseDSN == "" {
		o.cfg.DatabaseDSN = v.GetString("database-dsn")
	}
	if o.LogFormat != "json" && o.LogFormat != "text" {
		return fmt.Errorf("log-format must be json or text")
	}
	if o.cfg.VerboseLogging {
		o.LogLevel = "debug"
	}
	return nil
}

func (o *Options) validate() error {
	return o.cfg.Validate()
}

// Run assembles every component in the dependency order §2 specifies —
// Registry, Pending Tables, Broadcaster/State Store, Controller/Client
// Handler, Supervisor — and serves until the process receives a shutdown
// signal.
func (o *Options) Run(ctx context.Context) error {
	log, err := logging.New(o.LogLevel, logging.Format(o.LogFormat))
	if err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}
	log.Info("starting "+Name, "bindAddress", o.cfg.BindAddress, "simulationMode", o.cfg.SimulationMode)

	metrics.MustRegister()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := postgres.Open(ctx, postgres.Config{
		DSN:            o.cfg.DatabaseDSN,
		MaxConns:       o.cfg.DatabaseMaxConns,
		IdleTime:       o.cfg.DatabaseIdleTime,
		ConnectTimeout: o.cfg.DatabaseConnTimeout,
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer st.Close()

	var cache *redis.Client
	if o.cfg.RedisDSN != "" {
		opt, err := redis.ParseURL(o.cfg.RedisDSN)
		if err != nil {
			return fmt.Errorf("parse redis dsn: %w", err)
		}
		cache = redis.NewClient(opt)
		defer cache.Close()
	}
	states := irrigation.New(st.IrrigationStates(), cache, log)

	b := broker.New(log, o.cfg, st, states)

	srv := transport.NewServer(log)
	sup := supervisor.New(b)
	srv.OnClientFrame = clienthandler.Dispatch(b)
	srv.OnControllerFrame = controllerhandler.Dispatch(b)
	srv.OnClientClose = sup.OnClientClose
	srv.OnControllerClose = sup.OnControllerClose

	reminder := scheduler.New(st.Plants(), st.Gardens(), b.Broadcaster, log)
	if err := reminder.Start(ctx); err != nil {
		return fmt.Errorf("start schedule reminder: %w", err)
	}
	defer reminder.Stop()

	go sup.Run(ctx)

	servers := []*http.Server{
		{Addr: o.cfg.BindAddress, Handler: srv.Router()},
		{Addr: o.cfg.HealthAddress, Handler: srv.HealthRouter()},
		{Addr: o.cfg.MetricsAddress, Handler: srv.MetricsRouter()},
	}
	errCh := make(chan error, len(servers))
	for _, s := range servers {
		s := s
		go func() {
			log.Info("listening", "address", s.Addr)
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("serve %s: %w", s.Addr, err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		log.Error(err, "server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, s := range servers {
		_ = s.Shutdown(shutdownCtx)
	}
	return nil
}
