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

// Package idgen mints the short, human-sharable garden invite codes (§8:
// "Invite-code generation is retried until a globally unique code among
// active gardens is produced").
package idgen

import (
	"context"
	"crypto/rand"
	"fmt"
)

// alphabet excludes visually ambiguous characters (0/O, 1/I) per §8's
// collision-frequency note.
const alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const codeLength = 6

// maxAttempts bounds the uniqueness retry loop; exceeding it surfaces a
// DATABASE_ERROR-classified failure rather than looping forever.
const maxAttempts = 10

// Taken checks whether a candidate invite code is already in use by an
// active garden.
type Taken func(ctx context.Context, code string) (bool, error)

// GenerateInviteCode produces a codeLength-character code and retries while
// isTaken reports a collision, up to maxAttempts. It returns an error if no
// unique code was found within the attempt ceiling.
func GenerateInviteCode(ctx context.Context, isTaken Taken) (string, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		code, err := randomCode()
		if err != nil {
			return "", fmt.Errorf("generate invite code: %w", err)
		}
		taken, err := isTaken(ctx, code)
		if err != nil {
			return "", fmt.Errorf("check invite code uniqueness: %w", err)
		}
		if !taken {
			return code, nil
		}
	}
	return "", fmt.Errorf("generate invite code: exhausted %d attempts without a unique code", maxAttempts)
}

func randomCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, codeLength)
	for i, b := range buf {
		out[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(out), nil
}
