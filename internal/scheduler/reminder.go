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

// Package scheduler is the supplemented "starting soon" reminder (SPEC_FULL
// §C): a calendar-driven nudge ahead of the controller's own autonomous
// schedule trigger. It never initiates irrigation itself — the controller
// remains the sole trigger authority per §4.6's state machine.
package scheduler

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"github.com/robfig/cron/v3"

	"github.com/smartgarden/gardenbroker/internal/broadcast"
	"github.com/smartgarden/gardenbroker/internal/model"
	"github.com/smartgarden/gardenbroker/internal/store"
)

// Reminder walks every garden's plants once a minute and emits a best-effort
// ScheduleReminder broadcast to plants whose schedule matches the current
// day/time.
type Reminder struct {
	cron        *cron.Cron
	plants      store.Plants
	gardens     store.Gardens
	broadcaster *broadcast.Broadcaster
	log         logr.Logger
}

// New constructs a Reminder. Call Start to begin ticking.
func New(plants store.Plants, gardens store.Gardens, broadcaster *broadcast.Broadcaster, log logr.Logger) *Reminder {
	return &Reminder{
		cron:        cron.New(),
		plants:      plants,
		gardens:     gardens,
		broadcaster: broadcaster,
		log:         log,
	}
}

// Start registers the once-a-minute check and starts the underlying cron
// scheduler; Stop reverses it.
func (r *Reminder) Start(ctx context.Context) error {
	_, err := r.cron.AddFunc("* * * * *", func() { r.tick(ctx) })
	if err != nil {
		return err
	}
	r.cron.Start()
	return nil
}

// Stop cancels the cron scheduler, waiting for any in-flight tick to finish.
func (r *Reminder) Stop() {
	<-r.cron.Stop().Done()
}

func (r *Reminder) tick(ctx context.Context) {
	now := time.Now()
	gardens, err := r.gardens.ListAllActive(ctx)
	if err != nil {
		return
	}
	for _, g := range gardens {
		plants, err := r.plants.ListForGarden(ctx, g.ID)
		if err != nil {
			r.log.V(1).Info("reminder: list plants failed", "garden", g.ID, "error", err.Error())
			continue
		}
		for _, p := range plants {
			if !SchedulePending(p.Schedule, now) {
				continue
			}
			r.broadcaster.Broadcast(ctx, g.ID, broadcast.ScheduleReminder, map[string]any{
				"plantId":   p.ID,
				"plantName": p.DisplayName,
			}, "")
		}
	}
}

// SchedulePending reports whether now falls within the reminder lead window
// of a plant's configured schedule.
func SchedulePending(s model.Schedule, now time.Time) bool {
	matchesDay := false
	for _, d := range s.Days {
		if d == now.Weekday() {
			matchesDay = true
			break
		}
	}
	if !matchesDay {
		return false
	}
	target, err := time.ParseInLocation("15:04", s.Time, now.Location())
	if err != nil {
		return false
	}
	target = time.Date(now.Year(), now.Month(), now.Day(), target.Hour(), target.Minute(), 0, 0, now.Location())
	lead := target.Sub(now)
	return lead > 0 && lead <= time.Minute
}
