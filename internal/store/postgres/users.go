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

type usersStore struct{ pool *pgxpool.Pool }

func (s usersStore) Create(ctx context.Context, u *model.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, email, hashed_secret, display_name, location_country, location_city)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, model.NormalizeEmail(u.Email), u.HashedSecret, u.DisplayName, u.LocationCountry, u.LocationCity)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s usersStore) GetByID(ctx context.Context, id string) (*model.User, error) {
	return s.scanOne(ctx, `SELECT id, email, hashed_secret, display_name, location_country, location_city FROM users WHERE id = $1`, id)
}

func (s usersStore) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.scanOne(ctx, `SELECT id, email, hashed_secret, display_name, location_country, location_city FROM users WHERE email = $1`, model.NormalizeEmail(email))
}

func (s usersStore) scanOne(ctx context.Context, query string, arg any) (*model.User, error) {
	row := s.pool.QueryRow(ctx, query, arg)
	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.HashedSecret, &u.DisplayName, &u.LocationCountry, &u.LocationCity)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}
