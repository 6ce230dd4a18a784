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

package pending

import "time"

// Deadlines per operation family, as specified in §4.2.
const (
	IrrigationDeadline = 120 * time.Second
	MoistureDeadline   = 30 * time.Second
	DeletionDeadline   = 300 * time.Second
	UpdateDeadline     = 300 * time.Second
	AssignmentDeadline = 300 * time.Second
)

// Families bundles the one table per operation family the spec names:
// irrigation, moisture, hardware-assignment, update, deletion.
type Families struct {
	Irrigation *Table
	Moisture   *Table
	Assignment *Table
	Update     *Table
	Deletion   *Table
}

// NewFamilies constructs all five tables with their deadlines.
func NewFamilies() *Families {
	return &Families{
		Irrigation: NewTable("irrigation", IrrigationDeadline),
		Moisture:   NewTable("moisture", MoistureDeadline),
		Assignment: NewTable("assignment", AssignmentDeadline),
		Update:     NewTable("update", UpdateDeadline),
		Deletion:   NewTable("deletion", DeletionDeadline),
	}
}

// All returns every table, for the Lifecycle Supervisor's sweep loop and for
// metrics collection.
func (f *Families) All() []*Table {
	return []*Table{f.Irrigation, f.Moisture, f.Assignment, f.Update, f.Deletion}
}
