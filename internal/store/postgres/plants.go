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
	"github.com/smartgarden/gardenbroker/internal/store"
)

type plantsStore struct{ pool *pgxpool.Pool }

func (s plantsStore) Create(ctx context.Context, p *model.Plant) error {
	days := scheduleDaysToInts(p.Schedule.Days)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO plants (id, garden_id, user_id, display_name, ideal_moisture, water_limit_l, dripper_type,
			schedule_days, schedule_time, sensor_port, valve_id, valve_blocked, version,
			irrigation_mode, irrigation_start_at, irrigation_end_at, irrigation_session_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		p.ID, p.GardenID, p.UserID, p.DisplayName, p.IdealMoisture, p.WaterLimitL, p.DripperType,
		days, p.Schedule.Time, p.SensorPort, p.ValveID, p.ValveBlocked, p.Version,
		string(p.Irrigation.Mode), nullTime(p.Irrigation.StartAt), nullTime(p.Irrigation.EndAt), p.Irrigation.SessionID)
	if err != nil {
		return fmt.Errorf("insert plant: %w", err)
	}
	return nil
}

func (s plantsStore) Get(ctx context.Context, id string) (*model.Plant, error) {
	row := s.pool.QueryRow(ctx, plantSelect+` WHERE id = $1`, id)
	return scanPlant(row)
}

func (s plantsStore) Update(ctx context.Context, p *model.Plant) error {
	days := scheduleDaysToInts(p.Schedule.Days)
	_, err := s.pool.Exec(ctx, `
		UPDATE plants SET display_name=$2, ideal_moisture=$3, water_limit_l=$4, dripper_type=$5,
			schedule_days=$6, schedule_time=$7, valve_blocked=$8, version=version+1
		WHERE id=$1`,
		p.ID, p.DisplayName, p.IdealMoisture, p.WaterLimitL, p.DripperType, days, p.Schedule.Time, p.ValveBlocked)
	if err != nil {
		return fmt.Errorf("update plant: %w", err)
	}
	return nil
}

func (s plantsStore) Delete(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM plants WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete plant: %w", err)
	}
	return nil
}

func (s plantsStore) ListForGarden(ctx context.Context, gardenID string) ([]*model.Plant, error) {
	rows, err := s.pool.Query(ctx, plantSelect+` WHERE garden_id = $1`, gardenID)
	if err != nil {
		return nil, fmt.Errorf("list plants: %w", err)
	}
	defer rows.Close()

	var out []*model.Plant
	for rows.Next() {
		p, err := scanPlant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s plantsStore) SetHardware(ctx context.Context, plantID string, sensorPort, valveID int) error {
	_, err := s.pool.Exec(ctx, `UPDATE plants SET sensor_port=$2, valve_id=$3, version=version+1 WHERE id=$1`, plantID, sensorPort, valveID)
	if err != nil {
		return fmt.Errorf("set plant hardware: %w", err)
	}
	return nil
}

func (s plantsStore) SetValveBlocked(ctx context.Context, plantID string, blocked bool) error {
	_, err := s.pool.Exec(ctx, `UPDATE plants SET valve_blocked=$2, version=version+1 WHERE id=$1`, plantID, blocked)
	if err != nil {
		return fmt.Errorf("set valve blocked: %w", err)
	}
	return nil
}

const plantSelect = `SELECT id, garden_id, user_id, display_name, ideal_moisture, water_limit_l, dripper_type,
	schedule_days, schedule_time, sensor_port, valve_id, valve_blocked, version,
	irrigation_mode, irrigation_start_at, irrigation_end_at, irrigation_session_id FROM plants`

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlant(row rowScanner) (*model.Plant, error) {
	var p model.Plant
	var days []int32
	var startAt, endAt *time.Time
	var mode string
	err := row.Scan(&p.ID, &p.GardenID, &p.UserID, &p.DisplayName, &p.IdealMoisture, &p.WaterLimitL, &p.DripperType,
		&days, &p.Schedule.Time, &p.SensorPort, &p.ValveID, &p.ValveBlocked, &p.Version,
		&mode, &startAt, &endAt, &p.Irrigation.SessionID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan plant: %w", err)
	}
	p.Schedule.Days = intsToWeekdays(days)
	p.Irrigation.Mode = model.IrrigationMode(mode)
	if startAt != nil {
		p.Irrigation.StartAt = *startAt
	}
	if endAt != nil {
		p.Irrigation.EndAt = *endAt
	}
	return &p, nil
}

func scheduleDaysToInts(days []time.Weekday) []int32 {
	out := make([]int32, len(days))
	for i, d := range days {
		out[i] = int32(d)
	}
	return out
}

func intsToWeekdays(days []int32) []time.Weekday {
	out := make([]time.Weekday, len(days))
	for i, d := range days {
		out[i] = time.Weekday(d)
	}
	return out
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
