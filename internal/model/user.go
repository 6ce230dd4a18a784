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

// User is a registered owner/member of one or more Gardens.
type User struct {
	ID             string
	Email          string
	HashedSecret   string
	DisplayName    string
	LocationCity   string
	LocationCountry string
}

// NormalizeEmail case-folds an email the way every read/write path must, per
// the uniqueness invariant on users.email.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
