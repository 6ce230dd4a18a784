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

// Package config holds the server's runtime configuration, populated by
// viper from flags, environment variables, and an optional config file.
package config

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
)

// Config is the complete set of tunables for one gardenbrokerd instance.
type Config struct {
	BindAddress string
	HealthAddress string
	MetricsAddress string

	DatabaseDSN        string
	DatabaseMaxConns   int32
	DatabaseIdleTime   time.Duration
	DatabaseConnTimeout time.Duration

	RedisDSN string // empty disables the irrigation-state cache mirror

	SimulationMode bool
	VerboseLogging bool

	WeatherAPIKey string

	EmailSMTPHost string
	EmailFrom     string

	// StaleControllerEviction gates the Lifecycle Supervisor's optional
	// eviction of controllers whose heartbeat is older than
	// StaleControllerThreshold. Off by default per §4.7/§9.
	StaleControllerEviction   bool
	StaleControllerThreshold  time.Duration

	SweepInterval time.Duration
}

// Default returns a Config with default listen addresses, database pool
// tuning, stale-controller settings and the §4.7 sweep interval; the
// per-family correlation deadlines are constants in package pending.
func Default() *Config {
	return &Config{
		BindAddress:    "0.0.0.0:8443",
		HealthAddress:  ":8081",
		MetricsAddress: ":8080",

		DatabaseMaxConns:    10,
		DatabaseIdleTime:    5 * time.Minute,
		DatabaseConnTimeout: 5 * time.Second,

		StaleControllerEviction:  false,
		StaleControllerThreshold: 10 * time.Minute,

		SweepInterval: 60 * time.Second,
	}
}

// Validate aggregates every configuration failure with go-multierror so
// operators see every problem in one report, not just the first.
func (c *Config) Validate() error {
	var result error
	if c.DatabaseDSN == "" {
		result = multierror.Append(result, fmt.Errorf("database DSN must be set"))
	}
	if c.DatabaseMaxConns <= 0 {
		result = multierror.Append(result, fmt.Errorf("database max-conns must be positive"))
	}
	if c.SweepInterval <= 0 {
		result = multierror.Append(result, fmt.Errorf("sweep-interval must be positive"))
	}
	if c.StaleControllerEviction && c.StaleControllerThreshold <= 0 {
		result = multierror.Append(result, fmt.Errorf("stale-controller-threshold must be positive when eviction is enabled"))
	}
	return result
}
