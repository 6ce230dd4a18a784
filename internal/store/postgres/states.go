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
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smartgarden/gardenbroker/internal/model"
)

type statesStore struct{ pool *pgxpool.Pool }

// Set is an unconditional, row-level-atomic write (§4.4): a single UPDATE
// statement against the plant's irrigation_* columns.
func (s statesStore) Set(ctx context.Context, plantID string, st model.IrrigationState) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE plants SET irrigation_mode=$2, irrigation_start_at=$3, irrigation_end_at=$4, irrigation_session_id=$5
		WHERE id=$1`,
		plantID, string(st.Mode), nullTime(st.StartAt), nullTime(st.EndAt), st.SessionID)
	if err != nil {
		return fmt.Errorf("set irrigation state: %w", err)
	}
	return nil
}

func (s statesStore) Get(ctx context.Context, plantID string) (model.IrrigationState, error) {
	row := s.pool.QueryRow(ctx, `SELECT irrigation_mode, irrigation_start_at, irrigation_end_at, irrigation_session_id FROM plants WHERE id=$1`, plantID)
	var mode string
	var startAt, endAt *time.Time
	var sessionID string
	err := row.Scan(&mode, &startAt, &endAt, &sessionID)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.NoneState(), nil
	}
	if err != nil {
		return model.IrrigationState{}, fmt.Errorf("get irrigation state: %w", err)
	}
	st := model.IrrigationState{Mode: model.IrrigationMode(mode), SessionID: sessionID}
	if startAt != nil {
		st.StartAt = *startAt
	}
	if endAt != nil {
		st.EndAt = *endAt
	}
	return st, nil
}
