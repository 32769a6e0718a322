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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/chassislabs/boardlink/pkg/logger"
	"github.com/chassislabs/boardlink/pkg/models"
)

const testCommandline = `"{runtime.tools.avrdude.path}/bin/avrdude" -patmega328p -carduino -P{serial.port} -b115200 -D "-Uflash:w:{build.path}/{build.project_name}.hex:i"`

func newTestUploader(t *testing.T, commander Commander) *UploadCoordinator {
	t.Helper()

	u := newUploadCoordinator(logger.NewTestLogger(), commander)
	t.Cleanup(u.close)

	return u
}

func TestStartUploadBuildsPayload(t *testing.T) {
	commander := &mockCommander{}
	u := newTestUploader(t, commander)

	var (
		gotPayload *models.UploadPayload
		gotInfo    *models.UploadCommandInfo
	)

	commander.On("CloseSerialMonitor", mock.Anything, "/dev/ttyACM0").Return(nil)
	commander.On("Upload", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			gotPayload = args.Get(1).(*models.UploadPayload)
			gotInfo = args.Get(2).(*models.UploadCommandInfo)
		}).
		Return(nil)

	target := models.UploadTarget{
		Board: "arduino:avr:uno",
		Port:  "/dev/ttyACM0",
	}
	artifact := []byte{0xde, 0xad, 0xbe, 0xef}
	result := map[string][]byte{
		"hex": artifact,
		"elf": {0x7f, 0x45, 0x4c, 0x46},
	}

	err := u.StartUpload(context.Background(), target, "Blink", result, testCommandline, "sig")
	require.NoError(t, err)

	commander.AssertExpectations(t)

	require.NotNil(t, gotPayload)
	assert.Equal(t, "arduino:avr:uno", gotPayload.Board)
	assert.Equal(t, "/dev/ttyACM0", gotPayload.Port)
	assert.Equal(t, "Blink.hex", gotPayload.Filename)
	assert.Equal(t, testCommandline, gotPayload.Commandline)
	assert.Equal(t, artifact, gotPayload.Hex)
	assert.Equal(t, artifact, gotPayload.Data)

	require.NotNil(t, gotInfo)
	assert.Equal(t, "sig", gotInfo.Signature)
	assert.Equal(t, models.DefaultUploadOptions(), gotInfo.Options)

	// Completion arrives over the channel, so dispatch leaves the session
	// in progress.
	assert.Equal(t, models.StatusInProgress, u.tracker.state.Get().Status)
}

func TestStartUploadSurvivesMonitorCloseFailure(t *testing.T) {
	commander := &mockCommander{}
	u := newTestUploader(t, commander)

	commander.On("CloseSerialMonitor", mock.Anything, "/dev/ttyACM0").
		Return(errors.New("port not open"))
	commander.On("Upload", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	err := u.StartUpload(
		context.Background(),
		models.UploadTarget{Port: "/dev/ttyACM0"},
		"Blink",
		map[string][]byte{"hex": {0x1}},
		testCommandline,
		"",
	)
	require.NoError(t, err)

	commander.AssertExpectations(t)
}

func TestStartUploadFallsBackToBinWithoutToken(t *testing.T) {
	commander := &mockCommander{}
	u := newTestUploader(t, commander)

	var gotPayload *models.UploadPayload

	commander.On("CloseSerialMonitor", mock.Anything, mock.Anything).Return(nil)
	commander.On("Upload", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			gotPayload = args.Get(1).(*models.UploadPayload)
		}).
		Return(nil)

	binary := []byte{0x0b, 0x1e}
	result := map[string][]byte{"bin": binary}

	err := u.StartUpload(
		context.Background(),
		models.UploadTarget{Port: "/dev/ttyS0"},
		"Sketch",
		result,
		`bossac -i -d --port={serial.port} -U true -e -w -v -b`,
		"",
	)
	require.NoError(t, err)

	require.NotNil(t, gotPayload)
	assert.Equal(t, "Sketch.bin", gotPayload.Filename)
	assert.Equal(t, binary, gotPayload.Hex)
}

func TestStartUploadFallsBackToBinWhenArtifactMissing(t *testing.T) {
	commander := &mockCommander{}
	u := newTestUploader(t, commander)

	var gotPayload *models.UploadPayload

	commander.On("CloseSerialMonitor", mock.Anything, mock.Anything).Return(nil)
	commander.On("Upload", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			gotPayload = args.Get(1).(*models.UploadPayload)
		}).
		Return(nil)

	// Commandline names .hex but the build only produced a bin.
	binary := []byte{0x0b}
	result := map[string][]byte{"bin": binary}

	err := u.StartUpload(
		context.Background(),
		models.UploadTarget{Port: "/dev/ttyACM0"},
		"Blink",
		result,
		testCommandline,
		"",
	)
	require.NoError(t, err)

	require.NotNil(t, gotPayload)
	assert.Equal(t, "Blink.bin", gotPayload.Filename)
	assert.Equal(t, binary, gotPayload.Data)
}

func TestStartUploadProceedsWithoutAnyArtifact(t *testing.T) {
	commander := &mockCommander{}
	u := newTestUploader(t, commander)

	var gotPayload *models.UploadPayload

	commander.On("CloseSerialMonitor", mock.Anything, mock.Anything).Return(nil)
	commander.On("Upload", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			gotPayload = args.Get(1).(*models.UploadPayload)
		}).
		Return(nil)

	// No token and nothing compiled: the upload is still dispatched, with
	// the bin filename and no artifact bytes, and the agent gets to decide.
	err := u.StartUpload(
		context.Background(),
		models.UploadTarget{Port: "/dev/ttyACM0"},
		"Blink",
		map[string][]byte{},
		`bossac -i -d --port={serial.port}`,
		"",
	)
	require.NoError(t, err)

	require.NotNil(t, gotPayload)
	assert.Equal(t, "Blink.bin", gotPayload.Filename)
	assert.Nil(t, gotPayload.Hex)
	assert.Nil(t, gotPayload.Data)
	assert.Equal(t, models.StatusInProgress, u.tracker.state.Get().Status)
}

// A second StartUpload must re-arm the one-shot notifications: the error that
// ended the first session may not swallow the second session's Done.
func TestSecondUploadRearmsOneShotNotifications(t *testing.T) {
	commander := &mockCommander{}
	u := newTestUploader(t, commander)

	commander.On("CloseSerialMonitor", mock.Anything, mock.Anything).Return(nil)
	commander.On("Upload", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	done, cancelDone := u.tracker.done.Subscribe()
	defer cancelDone()

	failed, cancelFailed := u.tracker.failed.Subscribe()
	defer cancelFailed()

	target := models.UploadTarget{Port: "/dev/ttyACM0"}
	result := map[string][]byte{"hex": {0x1}}

	require.NoError(t, u.StartUpload(context.Background(), target, "Blink", result, testCommandline, ""))
	u.markFailed("programmer is not responding")
	require.Equal(t, models.StatusError, recv(t, failed).Status)

	require.NoError(t, u.StartUpload(context.Background(), target, "Blink", result, testCommandline, ""))
	u.markDone("Ok")

	assert.Equal(t, models.StatusDone, recv(t, done).Status)
	expectNone(t, failed)
}

func TestStartUploadDispatchFailureEndsSession(t *testing.T) {
	commander := &mockCommander{}
	u := newTestUploader(t, commander)

	failed, cancelFailed := u.tracker.failed.Subscribe()
	defer cancelFailed()

	errDial := errors.New("agent unreachable")

	commander.On("CloseSerialMonitor", mock.Anything, mock.Anything).Return(nil)
	commander.On("Upload", mock.Anything, mock.Anything, mock.Anything).Return(errDial)

	err := u.StartUpload(
		context.Background(),
		models.UploadTarget{Port: "/dev/ttyACM0"},
		"Blink",
		map[string][]byte{"hex": {0x1}},
		testCommandline,
		"",
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, errDial)

	state := u.tracker.state.Get()
	assert.Equal(t, models.StatusError, state.Status)
	assert.ErrorIs(t, state.Err, errDial)

	assert.Equal(t, models.StatusError, recv(t, failed).Status)
}

func TestStopUploadWithoutCancellerIsUnsupported(t *testing.T) {
	u := newTestUploader(t, &mockCommander{})

	err := u.StopUpload(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUploadCancellationUnsupported)
}

func TestStopUploadInvokesRegisteredCanceller(t *testing.T) {
	u := newTestUploader(t, &mockCommander{})

	calls := 0
	u.RegisterCanceller(func(context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, u.StopUpload(context.Background()))
	assert.Equal(t, 1, calls)

	// Deregistering restores the unsupported error.
	u.RegisterCanceller(nil)
	assert.ErrorIs(t, u.StopUpload(context.Background()), ErrUploadCancellationUnsupported)
}

func TestExtensionFromCommandline(t *testing.T) {
	tests := []struct {
		name        string
		commandline string
		want        string
	}{
		{
			name:        "hex artifact",
			commandline: testCommandline,
			want:        "hex",
		},
		{
			name:        "bin artifact",
			commandline: `"tool" -w "{build.path}/{build.project_name}.bin" -v`,
			want:        "bin",
		},
		{
			name:        "token missing",
			commandline: `bossac -i -d --port={serial.port}`,
			want:        "",
		},
		{
			name:        "token at end of line",
			commandline: `upload {build.project_name}`,
			want:        "",
		},
		{
			name:        "short tail",
			commandline: `upload {build.project_name}.el`,
			want:        "el",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extensionFromCommandline(tt.commandline))
		})
	}
}
