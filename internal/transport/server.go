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

package transport

import (
	"context"
	"net/http"

	"github.com/go-logr/logr"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// FrameHandler reacts to one inbound frame on an open channel.
type FrameHandler func(ctx context.Context, ch *Channel, f Frame)

// CloseHandler reacts to a channel going away, however it closed.
type CloseHandler func(ch *Channel)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server is the HTTP front door: it upgrades /ws/client and /ws/controller
// connections, and serves health and metrics alongside, the way the
// teacher's admission-controller cmd wires routes, health and metrics
// listeners from one Options.Run.
type Server struct {
	log logr.Logger

	OnClientFrame     FrameHandler
	OnControllerFrame FrameHandler
	OnClientClose     CloseHandler
	OnControllerClose CloseHandler
}

// NewServer constructs a Server; handler fields must be set before Router is
// called.
func NewServer(log logr.Logger) *Server {
	return &Server{log: log}
}

// Router builds the mux for the bind address; a second, unauthenticated
// router is used for health/metrics on their own listeners so a slow
// websocket handshake storm cannot starve liveness checks.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/ws/client", s.handleClientUpgrade)
	r.HandleFunc("/ws/controller", s.handleControllerUpgrade)
	return handlers.LoggingHandler(logWriter{s.log}, r)
}

// HealthRouter serves /healthz on its own address.
func (s *Server) HealthRouter() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

// MetricsRouter serves /metrics on its own address.
func (s *Server) MetricsRouter() http.Handler {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func (s *Server) handleClientUpgrade(w http.ResponseWriter, r *http.Request) {
	s.upgradeAndServe(w, r, KindClient, s.OnClientFrame, s.OnClientClose)
}

func (s *Server) handleControllerUpgrade(w http.ResponseWriter, r *http.Request) {
	s.upgradeAndServe(w, r, KindController, s.OnControllerFrame, s.OnControllerClose)
}

func (s *Server) upgradeAndServe(w http.ResponseWriter, r *http.Request, kind Kind, onFrame FrameHandler, onClose CloseHandler) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error(err, "websocket upgrade failed", "kind", kind)
		return
	}
	ch := NewChannel(kind, conn)
	go func() {
		ctx := context.Background()
		err := ch.ReadLoop(ctx, func(f Frame) error {
			if onFrame != nil {
				onFrame(ctx, ch, f)
			}
			return nil
		})
		if err != nil {
			s.log.V(1).Info("channel read loop ended", "kind", kind, "channel", ch.ID(), "error", err.Error())
		}
		if onClose != nil {
			onClose(ch)
		}
	}()
}

// logWriter adapts a logr.Logger to the io.Writer gorilla/handlers.LoggingHandler expects.
type logWriter struct{ log logr.Logger }

func (w logWriter) Write(p []byte) (int, error) {
	w.log.V(2).Info(string(p))
	return len(p), nil
}
