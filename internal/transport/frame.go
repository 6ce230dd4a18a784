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

// Package transport implements the bidirectional, text-framed message
// channels between clients/controller and the server (§6).
package transport

import (
	"encoding/json"
	"fmt"
)

// Frame is the self-describing wire object every message channel exchanges:
// {type, data?}. Decode reads the nested data field only; a payload merged
// into the top level of the frame is not decoded.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewFrame marshals payload into data and returns the frame, or an error if
// payload cannot be marshaled.
func NewFrame(msgType string, payload any) (Frame, error) {
	if payload == nil {
		return Frame{Type: msgType}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("marshal payload for %s: %w", msgType, err)
	}
	return Frame{Type: msgType, Data: raw}, nil
}

// Decode unmarshals f.Data into v. If f.Data is empty, it returns nil and
// leaves v unchanged.
func (f Frame) Decode(v any) error {
	if len(f.Data) == 0 {
		return nil
	}
	return json.Unmarshal(f.Data, v)
}

// ErrCode is a machine-readable failure code carried on *_FAIL frames.
type ErrCode string

const (
	CodeUnauthorized ErrCode = "UNAUTHORIZED"
	CodeUnknownType  ErrCode = "UNKNOWN_TYPE"
	CodeInvalidJSON  ErrCode = "INVALID_JSON"
	CodeTimeout      ErrCode = "TIMEOUT"
	CodeDatabase     ErrCode = "DATABASE_ERROR"
)

// FailPayload is the shape carried by every `*_FAIL` envelope.
type FailPayload struct {
	Reason string  `json:"reason"`
	Code   ErrCode `json:"code"`
}
