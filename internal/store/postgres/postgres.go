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

// Package postgres implements store.Store against a relational database
// using jackc/pgx/v5's connection pool. No ORM is used: every query is
// explicit SQL, parameterized against pgx's argument placeholders.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smartgarden/gardenbroker/internal/store"
)

// Config tunes the pool the way §6's Configuration section names:
// "database coordinates... max connections, idle timeout, connection
// timeout".
type Config struct {
	DSN            string
	MaxConns       int32
	IdleTime       time.Duration
	ConnectTimeout time.Duration
}

// Postgres is the concrete store.Store backed by a pgxpool.Pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// Open parses cfg into a pgxpool.Config, applies the pool tuning, and
// connects. Every handler that calls into Postgres returns its pool handle
// on every exit path because pgxpool.Pool.Acquire/Query already return
// connections to the pool internally — callers never hold a handle past the
// query call, satisfying §5's "handlers return pool handles on every exit
// path".
func Open(ctx context.Context, cfg Config) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database DSN: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MaxConnIdleTime = cfg.IdleTime
	poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout

	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close releases every pooled connection.
func (p *Postgres) Close() { p.pool.Close() }

func (p *Postgres) Users() store.Users                         { return usersStore{p.pool} }
func (p *Postgres) Gardens() store.Gardens                     { return gardensStore{p.pool} }
func (p *Postgres) Memberships() store.Memberships             { return membershipsStore{p.pool} }
func (p *Postgres) Plants() store.Plants                       { return plantsStore{p.pool} }
func (p *Postgres) IrrigationEvents() store.IrrigationEvents    { return eventsStore{p.pool} }
func (p *Postgres) IrrigationStates() store.IrrigationStates    { return statesStore{p.pool} }
