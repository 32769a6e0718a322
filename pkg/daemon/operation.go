/*
 * Copyright 2025 Chassis Labs, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package daemon

import (
	"sync"

	"github.com/google/uuid"

	"github.com/chassislabs/boardlink/pkg/logger"
	"github.com/chassislabs/boardlink/pkg/models"
	"github.com/chassislabs/boardlink/pkg/stream"
)

// operationTracker is the per-operation finite-state machine shared by the
// upload and download coordinators. Each session runs NOPE or a previous
// terminal state, then IN_PROGRESS, then exactly one of DONE or ERROR. The
// first terminal outcome of a session fires the matching one-shot feed and
// the completed flag suppresses the opposite outcome for the rest of the
// session. begin re-arms the flag, so a fresh session gets fresh one-shots.
type operationTracker struct {
	mu  sync.Mutex
	log logger.Logger
	op  string

	state  *stream.Value[models.OperationState]
	done   *stream.Feed[models.OperationState]
	failed *stream.Feed[models.OperationState]

	sessionID string
	completed bool
}

func newOperationTracker(log logger.Logger, op string) *operationTracker {
	return &operationTracker{
		log:    log,
		op:     op,
		state:  stream.NewValue(models.OperationState{Status: models.StatusNope}),
		done:   stream.NewFeed[models.OperationState](),
		failed: stream.NewFeed[models.OperationState](),
	}
}

// begin opens a new session: a fresh session id, a re-armed completed flag,
// and an IN_PROGRESS publication.
func (t *operationTracker) begin() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.sessionID = uuid.NewString()
	t.completed = false
	t.state.Set(models.OperationState{Status: models.StatusInProgress})

	return t.sessionID
}

// complete records a terminal outcome for the current session and fires the
// matching one-shot notification. Outcomes arriving while no session is in
// progress, or after the session already completed, are dropped; the agent
// echoes stale programmer chatter after completion.
func (t *operationTracker) complete(status models.OperationStatus, msg string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.completed || t.state.Get().Status != models.StatusInProgress {
		t.log.Debug().
			Str("operation", t.op).
			Str("status", string(status)).
			Msg("Dropping terminal status with no session in progress")

		return
	}

	t.completed = true

	st := models.OperationState{Status: status, Msg: msg, Err: err}
	t.state.Set(st)

	switch status {
	case models.StatusDone:
		t.done.Publish(st)
	case models.StatusError:
		t.failed.Publish(st)
	}
}

// fail publishes ERROR unconditionally. Unlike complete it is not gated on an
// active session because the transport can report a failure at any moment;
// the one-shot error notification still fires only when a session was in
// flight.
func (t *operationTracker) fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := models.OperationState{Status: models.StatusError, Err: err}
	if err != nil {
		st.Msg = err.Error()
	}

	active := !t.completed && t.state.Get().Status == models.StatusInProgress

	t.state.Set(st)

	if active {
		t.completed = true
		t.failed.Publish(st)
	}
}

func (t *operationTracker) session() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.sessionID
}

func (t *operationTracker) close() {
	t.state.Close()
	t.done.Close()
	t.failed.Close()
}
