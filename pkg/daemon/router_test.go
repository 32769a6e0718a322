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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/chassislabs/boardlink/pkg/models"
)

func startTestUpload(t *testing.T, d *Daemon, commander *mockCommander) {
	t.Helper()

	commander.On("CloseSerialMonitor", mock.Anything, mock.Anything).Return(nil)
	commander.On("Upload", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	err := d.StartUpload(
		context.Background(),
		models.UploadTarget{Board: "arduino:avr:uno", Port: "/dev/ttyACM0"},
		"Blink",
		map[string][]byte{"hex": {0x1}},
		testCommandline,
		"",
	)
	require.NoError(t, err)
}

func TestRoutePortListPublishesOnlyOnChange(t *testing.T) {
	commander := &mockCommander{}
	commander.On("CloseAllPorts", mock.Anything).Return(nil)

	d, _ := newTestDaemon(t, commander)

	devices, cancel := d.Devices().Subscribe()
	defer cancel()

	require.Equal(t, models.EmptyDeviceList(), recv(t, devices))

	frame := []byte(`{"Ports":[{"Name":"/dev/ttyACM0","IsOpen":false}],"Network":false}`)

	d.Route(context.Background(), frame)
	got := recv(t, devices)
	require.Len(t, got.Serial, 1)
	assert.Equal(t, "/dev/ttyACM0", got.Serial[0].Name)

	// The agent re-sends the identical list on every poll; no republish.
	d.Route(context.Background(), frame)
	expectNone(t, devices)

	// A state change on the same port is a change.
	d.Route(context.Background(), []byte(`{"Ports":[{"Name":"/dev/ttyACM0","IsOpen":true}],"Network":false}`))
	got = recv(t, devices)
	require.Len(t, got.Serial, 1)
	assert.True(t, got.Serial[0].IsOpen)
}

func TestRouteEmptyPortListMatchesEmptyState(t *testing.T) {
	commander := &mockCommander{}
	d, _ := newTestDaemon(t, commander)

	devices, cancel := d.Devices().Subscribe()
	defer cancel()

	require.Equal(t, models.EmptyDeviceList(), recv(t, devices))

	d.Route(context.Background(), []byte(`{"Ports":[],"Network":false}`))
	expectNone(t, devices)
}

func TestRouteNetworkPortListKeepsSerialSide(t *testing.T) {
	commander := &mockCommander{}
	commander.On("CloseAllPorts", mock.Anything).Return(nil)

	d, _ := newTestDaemon(t, commander)

	d.Route(context.Background(), []byte(`{"Ports":[{"Name":"/dev/ttyACM0"}],"Network":false}`))
	d.Route(context.Background(), []byte(`{"Ports":[{"Name":"192.168.1.20","Addr":"192.168.1.20"}],"Network":true}`))

	list := d.Devices().Get()
	require.Len(t, list.Serial, 1)
	require.Len(t, list.Network, 1)
	assert.Equal(t, "/dev/ttyACM0", list.Serial[0].Name)
	assert.Equal(t, "192.168.1.20", list.Network[0].Name)
}

func TestRouteSerialDataPassesThroughInOrder(t *testing.T) {
	commander := &mockCommander{}
	d, _ := newTestDaemon(t, commander)

	serial, cancel := d.SerialMonitor().Subscribe()
	defer cancel()

	d.Route(context.Background(), []byte(`{"D":"temp=21.4\r\n"}`))
	d.Route(context.Background(), []byte(`{"D":"temp=21.5\r\n"}`))

	assert.Equal(t, "temp=21.4\r\n", recv(t, serial))
	assert.Equal(t, "temp=21.5\r\n", recv(t, serial))
}

func TestRouteVersionMarksAgentFound(t *testing.T) {
	commander := &mockCommander{}
	d, _ := newTestDaemon(t, commander)

	found, cancel := d.AgentFound().Subscribe()
	defer cancel()

	require.False(t, recv(t, found))

	d.Route(context.Background(), []byte(`{"Version":"1.2.1","OS":"darwin"}`))

	assert.True(t, recv(t, found))

	info := d.AgentInfo()
	assert.Equal(t, "1.2.1", info.Version)
	assert.Equal(t, "darwin", info.OS)
}

func TestRouteProgrammerDoneCompletesUpload(t *testing.T) {
	commander := &mockCommander{}
	d, _ := newTestDaemon(t, commander)

	done, cancelDone := d.UploadDone().Subscribe()
	defer cancelDone()

	startTestUpload(t, d, commander)

	d.Route(context.Background(), []byte(`{"ProgrammerStatus":"Done","Flash":"Ok"}`))

	got := recv(t, done)
	assert.Equal(t, models.StatusDone, got.Status)
	assert.Equal(t, "Ok", got.Msg)
	assert.Equal(t, models.StatusDone, d.Uploads().Get().Status)
}

func TestRouteProgrammerErrorFailsUpload(t *testing.T) {
	commander := &mockCommander{}
	d, _ := newTestDaemon(t, commander)

	failed, cancelFailed := d.UploadError().Subscribe()
	defer cancelFailed()

	startTestUpload(t, d, commander)

	d.Route(context.Background(), []byte(`{"ProgrammerStatus":"Error","Msg":"programmer is not responding"}`))

	got := recv(t, failed)
	assert.Equal(t, models.StatusError, got.Status)
	assert.Equal(t, "programmer is not responding", got.Msg)
	assert.ErrorIs(t, got.Err, ErrUploadFailed)
}

func TestRouteProgrammerStatusIgnoredWhenIdle(t *testing.T) {
	commander := &mockCommander{}
	d, _ := newTestDaemon(t, commander)

	d.Route(context.Background(), []byte(`{"ProgrammerStatus":"Done","Flash":"Ok"}`))

	assert.Equal(t, models.StatusNope, d.Uploads().Get().Status)
}

func TestRouteIntermediateProgrammerStatusKeepsSessionOpen(t *testing.T) {
	commander := &mockCommander{}
	d, _ := newTestDaemon(t, commander)

	startTestUpload(t, d, commander)

	d.Route(context.Background(), []byte(`{"ProgrammerStatus":"Busy","Msg":"writing flash"}`))

	assert.Equal(t, models.StatusInProgress, d.Uploads().Get().Status)
}

func TestRouteDownloadStatusDrivesDownloadSession(t *testing.T) {
	commander := &mockCommander{}
	commander.On("DownloadTool", mock.Anything, mock.Anything).Return(nil)

	d, _ := newTestDaemon(t, commander)

	done, cancelDone := d.DownloadDone().Subscribe()
	defer cancelDone()

	require.NoError(t, d.StartDownloadTool(context.Background(), models.ToolRequest{Name: "avrdude"}))

	// Pending keeps the session open, Success ends it.
	d.Route(context.Background(), []byte(`{"DownloadStatus":"Pending"}`))
	assert.Equal(t, models.StatusInProgress, d.Downloads().Get().Status)

	d.Route(context.Background(), []byte(`{"DownloadStatus":"Success"}`))

	assert.Equal(t, models.StatusDone, recv(t, done).Status)
	assert.Equal(t, models.StatusDone, d.Downloads().Get().Status)
}

func TestRouteDownloadStatusIgnoredWhenIdle(t *testing.T) {
	commander := &mockCommander{}
	d, _ := newTestDaemon(t, commander)

	d.Route(context.Background(), []byte(`{"DownloadStatus":"Success"}`))

	assert.Equal(t, models.StatusNope, d.Downloads().Get().Status)
}

func TestRouteDownloadErrorFailsSession(t *testing.T) {
	commander := &mockCommander{}
	commander.On("DownloadTool", mock.Anything, mock.Anything).Return(nil)

	d, _ := newTestDaemon(t, commander)

	failed, cancelFailed := d.DownloadError().Subscribe()
	defer cancelFailed()

	require.NoError(t, d.StartDownloadTool(context.Background(), models.ToolRequest{Name: "avrdude"}))

	d.Route(context.Background(), []byte(`{"DownloadStatus":"Error","Msg":"checksum mismatch"}`))

	got := recv(t, failed)
	assert.Equal(t, models.StatusError, got.Status)
	assert.ErrorIs(t, got.Err, ErrDownloadFailed)
}

func TestRouteErrFrameNotifiesUploadError(t *testing.T) {
	commander := &mockCommander{}
	d, _ := newTestDaemon(t, commander)

	failed, cancelFailed := d.UploadError().Subscribe()
	defer cancelFailed()

	startTestUpload(t, d, commander)

	d.Route(context.Background(), []byte(`{"Err":"could not program the board"}`))

	got := recv(t, failed)
	assert.Equal(t, models.StatusError, got.Status)
	require.Error(t, got.Err)
	assert.Contains(t, got.Err.Error(), "could not program the board")
}

func TestRouteDropsUndecodableFrames(t *testing.T) {
	commander := &mockCommander{}
	d, _ := newTestDaemon(t, commander)

	devices, cancel := d.Devices().Subscribe()
	defer cancel()

	require.Equal(t, models.EmptyDeviceList(), recv(t, devices))

	d.Route(context.Background(), []byte("booting programmer..."))
	d.Route(context.Background(), []byte(""))

	expectNone(t, devices)
	assert.Equal(t, models.StatusNope, d.Uploads().Get().Status)
}
