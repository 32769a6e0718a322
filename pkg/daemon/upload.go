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
	"strings"
	"sync"

	"github.com/chassislabs/boardlink/pkg/logger"
	"github.com/chassislabs/boardlink/pkg/models"
)

const (
	// projectNameToken is the placeholder the build service leaves in the
	// programmer commandline; the artifact extension sits right after it.
	projectNameToken = "{build.project_name}"

	extensionLength   = 3
	fallbackExtension = "bin"
)

// UploadCoordinator tracks one board programming operation at a time and
// turns compilation output plus a commandline template into the upload
// request the agent expects.
type UploadCoordinator struct {
	log       logger.Logger
	commander Commander
	tracker   *operationTracker

	mu        sync.Mutex
	canceller func(context.Context) error
}

func newUploadCoordinator(log logger.Logger, commander Commander) *UploadCoordinator {
	return &UploadCoordinator{
		log:       log,
		commander: commander,
		tracker:   newOperationTracker(log, "upload"),
	}
}

// StartUpload opens a new upload session and dispatches the programming
// request. Completion arrives asynchronously as programmer status messages;
// only a dispatch failure is reported synchronously.
func (u *UploadCoordinator) StartUpload(
	ctx context.Context,
	target models.UploadTarget,
	sketchName string,
	compilationResult map[string][]byte,
	commandline, signature string,
) error {
	session := u.tracker.begin()

	u.log.Info().
		Str("session_id", session).
		Str("board", target.Board).
		Str("port", target.Port).
		Str("sketch", sketchName).
		Msg("Starting upload")

	// The programmer needs the port to itself.
	if err := u.commander.CloseSerialMonitor(ctx, target.Port); err != nil {
		u.log.Warn().
			Err(err).
			Str("port", target.Port).
			Msg("Failed to close serial monitor before upload")
	}

	info := &models.UploadCommandInfo{
		Commandline: commandline,
		Signature:   signature,
		Options:     models.DefaultUploadOptions(),
	}

	ext, artifact := u.resolveArtifact(commandline, compilationResult)

	payload := &models.UploadPayload{
		Board:       target.Board,
		Port:        target.Port,
		AuthUser:    target.AuthUser,
		AuthPass:    target.AuthPass,
		AuthType:    target.AuthType,
		Network:     target.Network,
		Commandline: commandline,
		Filename:    sketchName + "." + ext,
		Hex:         artifact,
		Data:        artifact,
	}

	if err := u.commander.Upload(ctx, payload, info); err != nil {
		u.tracker.complete(models.StatusError, err.Error(), err)

		return fmt.Errorf("failed to dispatch upload: %w", err)
	}

	return nil
}

// resolveArtifact picks the compilation artifact matching the commandline's
// extension. A missing token or absent artifact falls back to bin; the
// fallback is never an error, the agent reports one later if the artifact
// truly does not fit the board.
func (u *UploadCoordinator) resolveArtifact(commandline string, compilationResult map[string][]byte) (string, []byte) {
	ext := extensionFromCommandline(commandline)

	artifact, ok := compilationResult[ext]
	if ext == "" || !ok {
		u.log.Warn().
			Str("extension", ext).
			Msg("Commandline yielded no usable artifact extension, falling back to bin")

		ext = fallbackExtension
		artifact = compilationResult[ext]
	}

	return ext, artifact
}

// extensionFromCommandline reads the artifact extension out of the
// programmer commandline: the 3 characters after the dot that follows the
// project name token.
func extensionFromCommandline(commandline string) string {
	idx := strings.Index(commandline, projectNameToken)
	if idx < 0 {
		return ""
	}

	start := idx + len(projectNameToken) + 1
	if start >= len(commandline) {
		return ""
	}

	end := start + extensionLength
	if end > len(commandline) {
		end = len(commandline)
	}

	return commandline[start:end]
}

// NotifyError publishes an upload failure reported outside the programmer
// status flow, such as a transport-level send error.
func (u *UploadCoordinator) NotifyError(err error) {
	u.tracker.fail(err)
}

// StopUpload interrupts an in-flight upload through the registered
// cancellation capability.
func (u *UploadCoordinator) StopUpload(ctx context.Context) error {
	u.mu.Lock()
	canceller := u.canceller
	u.mu.Unlock()

	if canceller == nil {
		return ErrUploadCancellationUnsupported
	}

	return canceller(ctx)
}

// RegisterCanceller installs the environment's upload cancellation
// capability. Passing nil removes it.
func (u *UploadCoordinator) RegisterCanceller(fn func(context.Context) error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.canceller = fn
}

// markDone and markFailed record the terminal programmer statuses relayed by
// the message router.
func (u *UploadCoordinator) markDone(msg string) {
	u.tracker.complete(models.StatusDone, msg, nil)
}

func (u *UploadCoordinator) markFailed(msg string) {
	err := ErrUploadFailed
	if msg != "" {
		err = fmt.Errorf("%w: %s", ErrUploadFailed, msg)
	}

	u.tracker.complete(models.StatusError, msg, err)
}

func (u *UploadCoordinator) close() {
	u.tracker.close()
}
