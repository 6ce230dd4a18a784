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

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smartgarden/gardenbroker/internal/model"
	"github.com/smartgarden/gardenbroker/internal/store"
)

type gardensStore struct{ pool *pgxpool.Pool }

func (s gardensStore) Create(ctx context.Context, g *model.Garden) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO gardens (id, name, admin_user_id, invite_code, country, city, active, max_members)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		g.ID, g.Name, g.AdminUserID, model.NormalizeInviteCode(g.InviteCode), g.Country, g.City, g.Active, g.MaxMembers)
	if err != nil {
		return fmt.Errorf("insert garden: %w", err)
	}
	return nil
}

func (s gardensStore) Get(ctx context.Context, id string) (*model.Garden, error) {
	return s.scanOne(ctx, `SELECT id, name, admin_user_id, invite_code, country, city, active, max_members FROM gardens WHERE id = $1`, id)
}

func (s gardensStore) GetByInviteCode(ctx context.Context, code string) (*model.Garden, error) {
	return s.scanOne(ctx, `SELECT id, name, admin_user_id, invite_code, country, city, active, max_members FROM gardens WHERE invite_code = $1 AND active`, model.NormalizeInviteCode(code))
}

func (s gardensStore) InviteCodeTaken(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM gardens WHERE invite_code = $1 AND active)`, model.NormalizeInviteCode(code)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check invite code: %w", err)
	}
	return exists, nil
}

func (s gardensStore) ListForAdmin(ctx context.Context, adminUserID string) ([]*model.Garden, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, admin_user_id, invite_code, country, city, active, max_members FROM gardens WHERE admin_user_id = $1 AND active`, adminUserID)
	if err != nil {
		return nil, fmt.Errorf("list gardens for admin: %w", err)
	}
	defer rows.Close()
	return scanGardens(rows)
}

func (s gardensStore) ListAllActive(ctx context.Context) ([]*model.Garden, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, admin_user_id, invite_code, country, city, active, max_members FROM gardens WHERE active`)
	if err != nil {
		return nil, fmt.Errorf("list active gardens: %w", err)
	}
	defer rows.Close()
	return scanGardens(rows)
}

func (s gardensStore) Update(ctx context.Context, g *model.Garden) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE gardens SET name=$2, country=$3, city=$4, active=$5, max_members=$6 WHERE id=$1`,
		g.ID, g.Name, g.Country, g.City, g.Active, g.MaxMembers)
	if err != nil {
		return fmt.Errorf("update garden: %w", err)
	}
	return nil
}

func (s gardensStore) scanOne(ctx context.Context, query string, arg any) (*model.Garden, error) {
	row := s.pool.QueryRow(ctx, query, arg)
	var g model.Garden
	err := row.Scan(&g.ID, &g.Name, &g.AdminUserID, &g.InviteCode, &g.Country, &g.City, &g.Active, &g.MaxMembers)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query garden: %w", err)
	}
	return &g, nil
}

func scanGardens(rows pgx.Rows) ([]*model.Garden, error) {
	var out []*model.Garden
	for rows.Next() {
		var g model.Garden
		if err := rows.Scan(&g.ID, &g.Name, &g.AdminUserID, &g.InviteCode, &g.Country, &g.City, &g.Active, &g.MaxMembers); err != nil {
			return nil, fmt.Errorf("scan garden: %w", err)
		}
		out = append(out, &g)
	}
	return out, rows.Err()
}
