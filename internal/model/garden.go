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

package model

import "strings"

// Garden is a named tenancy grouping plants, users, and one controller.
type Garden struct {
	ID          string
	Name        string
	AdminUserID string
	InviteCode  string
	Country     string
	City        string
	Active      bool
	MaxMembers  int
}

// NormalizeInviteCode case-folds an invite code the way every read/write path
// must, per the uniqueness invariant on gardens.invite_code among active rows.
func NormalizeInviteCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Role is a Membership's role within a Garden.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Membership is the (user, garden) join row, soft-toggled on leave/rejoin.
type Membership struct {
	UserID   string
	GardenID string
	Role     Role
	Active   bool
}
