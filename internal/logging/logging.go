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

// Package logging builds the module's logr.Logger, backed by zap the same
// way the teacher's pkg/logger package wraps zap behind logr/zapr.
package logging

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Format is the on-disk/stderr encoding for log lines.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// New builds a logr.Logger at the given level ("debug", "info", "error") and
// format. It is the single construction point; handlers receive a
// logr.Logger, never a *zap.Logger, so they stay decoupled from the backend.
func New(level string, format Format) (logr.Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.Set(level); err != nil {
		return logr.Logger{}, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	switch format {
	case FormatText, "":
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	case FormatJSON:
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	default:
		return logr.Logger{}, fmt.Errorf("unknown log format %q", format)
	}

	ws, _, err := zap.Open("stderr")
	if err != nil {
		return logr.Logger{}, fmt.Errorf("open stderr sink: %w", err)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(ws), zapLevel)
	zl := zap.New(core, zap.AddCaller())
	return zapr.NewLogger(zl), nil
}
