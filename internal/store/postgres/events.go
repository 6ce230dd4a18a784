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
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smartgarden/gardenbroker/internal/model"
)

type eventsStore struct{ pool *pgxpool.Pool }

func (s eventsStore) Append(ctx context.Context, e *model.IrrigationEvent) error {
	extra, err := json.Marshal(e.Extra)
	if err != nil {
		return fmt.Errorf("marshal event extra: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO irrigation_events (id, plant_id, status, reason, initial_moisture, final_moisture, liters, hardware_time, extra)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		e.ID, e.PlantID, string(e.Status), e.Reason, e.InitialMoisture, e.FinalMoisture, e.Liters, e.HardwareTime, extra)
	if err != nil {
		return fmt.Errorf("append irrigation event: %w", err)
	}
	return nil
}

func (s eventsStore) DeleteForPlant(ctx context.Context, plantID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM irrigation_events WHERE plant_id=$1`, plantID)
	if err != nil {
		return fmt.Errorf("delete irrigation events: %w", err)
	}
	return nil
}

func (s eventsStore) ListForPlant(ctx context.Context, plantID string) ([]*model.IrrigationEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, plant_id, status, reason, initial_moisture, final_moisture, liters, hardware_time, extra
		FROM irrigation_events WHERE plant_id=$1 ORDER BY hardware_time DESC`, plantID)
	if err != nil {
		return nil, fmt.Errorf("list irrigation events: %w", err)
	}
	defer rows.Close()

	var out []*model.IrrigationEvent
	for rows.Next() {
		var e model.IrrigationEvent
		var status string
		var extra []byte
		if err := rows.Scan(&e.ID, &e.PlantID, &status, &e.Reason, &e.InitialMoisture, &e.FinalMoisture, &e.Liters, &e.HardwareTime, &extra); err != nil {
			return nil, fmt.Errorf("scan irrigation event: %w", err)
		}
		e.Status = model.IrrigationEventStatus(status)
		if len(extra) > 0 {
			if err := json.Unmarshal(extra, &e.Extra); err != nil {
				return nil, fmt.Errorf("unmarshal event extra: %w", err)
			}
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
