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

package broadcast_test

import (
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/go-logr/logr"
	"github.com/gorilla/websocket"
	. "github.com/onsi/gomega"

	"github.com/smartgarden/gardenbroker/internal/transport"
)

func discardLogger() logr.Logger { return logr.Discard() }

var upgrader = websocket.Upgrader{}

// recordingRegistry binds a real *transport.Channel per email and records
// every raw message the channel's writer goroutine actually puts on the wire,
// so tests can assert on delivery without reaching into broadcaster internals.
type recordingRegistry struct {
	channels map[string]*transport.Channel

	mu   sync.Mutex
	msgs map[string][][]byte
}

// newRecordingRegistry dials one throwaway websocket connection per email and
// spins up a reader draining it into msgs.
func newRecordingRegistry(emails ...string) *recordingRegistry {
	r := &recordingRegistry{
		channels: make(map[string]*transport.Channel),
		msgs:     make(map[string][][]byte),
	}
	for _, email := range emails {
		ch, clientConn := dialChannel()
		r.channels[email] = ch
		go func(email string, conn *websocket.Conn) {
			for {
				_, msg, err := conn.ReadMessage()
				if err != nil {
					return
				}
				r.mu.Lock()
				r.msgs[email] = append(r.msgs[email], msg)
				r.mu.Unlock()
			}
		}(email, clientConn)
	}
	return r
}

func (r *recordingRegistry) ChannelByEmail(email string) *transport.Channel {
	return r.channels[email]
}

func (r *recordingRegistry) received(email string) func() [][]byte {
	return func() [][]byte {
		r.mu.Lock()
		defer r.mu.Unlock()
		out := make([][]byte, len(r.msgs[email]))
		copy(out, r.msgs[email])
		return out
	}
}

func dialChannel() (*transport.Channel, *websocket.Conn) {
	var ch *transport.Channel
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		Expect(err).NotTo(HaveOccurred())
		ch = transport.NewChannel(transport.KindClient, conn)
	}))

	wsURL := "ws" + srv.URL[len("http"):]
	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	Expect(err).NotTo(HaveOccurred())

	Eventually(func() *transport.Channel { return ch }).ShouldNot(BeNil())
	return ch, clientConn
}
