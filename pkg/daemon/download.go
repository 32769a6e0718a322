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
	"context"
	"fmt"

	"github.com/chassislabs/boardlink/pkg/logger"
	"github.com/chassislabs/boardlink/pkg/models"
)

// DownloadCoordinator tracks one tool download at a time. It shares the
// upload coordinator's session state machine but builds no payload; the
// request identifiers pass through to the agent untouched.
type DownloadCoordinator struct {
	log       logger.Logger
	commander Commander
	tracker   *operationTracker
}

func newDownloadCoordinator(log logger.Logger, commander Commander) *DownloadCoordinator {
	return &DownloadCoordinator{
		log:       log,
		commander: commander,
		tracker:   newOperationTracker(log, "download"),
	}
}

// StartDownloadTool opens a new download session and asks the agent to fetch
// the named tool. Completion arrives asynchronously as download status
// messages.
func (d *DownloadCoordinator) StartDownloadTool(ctx context.Context, req models.ToolRequest) error {
	if req.Behaviour == "" {
		req.Behaviour = models.ToolBehaviourKeep
	}

	session := d.tracker.begin()

	d.log.Info().
		Str("session_id", session).
		Str("tool", req.Name).
		Str("version", req.Version).
		Str("package", req.PackageName).
		Msg("Starting tool download")

	if err := d.commander.DownloadTool(ctx, req); err != nil {
		d.tracker.complete(models.StatusError, err.Error(), err)

		return fmt.Errorf("failed to dispatch tool download: %w", err)
	}

	return nil
}

// markDone and markFailed record the terminal download statuses relayed by
// the message router.
func (d *DownloadCoordinator) markDone(msg string) {
	d.tracker.complete(models.StatusDone, msg, nil)
}

func (d *DownloadCoordinator) markFailed(msg string) {
	err := ErrDownloadFailed
	if msg != "" {
		err = fmt.Errorf("%w: %s", ErrDownloadFailed, msg)
	}

	d.tracker.complete(models.StatusError, msg, err)
}

func (d *DownloadCoordinator) close() {
	d.tracker.close()
}
