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

// Package daemon coordinates a host application with a locally running board
// programming agent. It tracks channel connectivity, polls for attached
// boards while the channel is open, follows upload and tool download
// operations through their state machines, and exposes everything as
// replay-latest values and broadcast feeds the host can subscribe to.
//
// The daemon never touches the wire itself; a Commander implementation (see
// pkg/transport) carries outbound requests and feeds inbound frames back
// through Route.
package daemon

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chassislabs/boardlink/pkg/boardindex"
	"github.com/chassislabs/boardlink/pkg/logger"
	"github.com/chassislabs/boardlink/pkg/models"
	"github.com/chassislabs/boardlink/pkg/stream"
)

const (
	// DefaultBaudRate is used when a serial monitor is opened without an
	// explicit rate.
	DefaultBaudRate = 9600

	boardsFetchTimeout = 10 * time.Second
)

// Daemon is the coordinator root. Construct with New; the zero value is not
// usable.
type Daemon struct {
	config    Config
	log       logger.Logger
	commander Commander

	monitor   *ChannelMonitor
	registry  *DeviceRegistry
	uploads   *UploadCoordinator
	downloads *DownloadCoordinator
	router    *MessageRouter

	agentFound        *stream.Value[bool]
	serialMonitor     *stream.Feed[string]
	serialMonitorOpen *stream.Value[bool]
	supportedBoards   *stream.Value[[]models.Board]

	boardsClient *http.Client

	mu        sync.Mutex
	agentInfo models.AgentInfo

	closeOnce sync.Once
}

// New wires a daemon from its configuration and collaborators. A nil clock
// selects the real time implementation; a nil log builds one from
// cfg.Logging.
func New(cfg *Config, commander Commander, clock Clock, log logger.Logger) (*Daemon, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if commander == nil {
		return nil, errMissingCommander
	}

	if clock == nil {
		clock = realClock{}
	}

	if log == nil {
		var err error

		log, err = logger.New(cfg.Logging)
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
	}

	d := &Daemon{
		config:            *cfg,
		log:               log.WithComponent("daemon"),
		commander:         commander,
		agentFound:        stream.NewValue(false),
		serialMonitor:     stream.NewFeed[string](),
		serialMonitorOpen: stream.NewValue(false),
		supportedBoards:   stream.NewValue([]models.Board{}),
		boardsClient:      &http.Client{Timeout: boardsFetchTimeout},
	}

	d.registry = newDeviceRegistry(log.WithComponent("devices"), commander.CloseAllPorts)
	d.uploads = newUploadCoordinator(log.WithComponent("upload"), commander)
	d.downloads = newDownloadCoordinator(log.WithComponent("download"), commander)
	d.monitor = newChannelMonitor(
		log.WithComponent("monitor"),
		clock,
		time.Duration(cfg.PollingInterval),
		d.discover,
		d.onChannelUp,
		d.onChannelDown,
	)
	d.router = newMessageRouter(
		log.WithComponent("router"),
		d.registry,
		d.uploads,
		d.downloads,
		d.serialMonitor,
		d.agentFound,
		d.setAgentVersion,
	)

	return d, nil
}

// SetConnectivity records a channel health report from the transport.
func (d *Daemon) SetConnectivity(state models.ConnectivityState) {
	d.monitor.SetConnectivity(state)
}

// Route dispatches one raw inbound frame from the transport.
func (d *Daemon) Route(ctx context.Context, raw []byte) {
	d.router.Route(ctx, raw)
}

// StartUpload programs a board with the given compilation output. See
// UploadCoordinator.StartUpload.
func (d *Daemon) StartUpload(
	ctx context.Context,
	target models.UploadTarget,
	sketchName string,
	compilationResult map[string][]byte,
	commandline, signature string,
) error {
	return d.uploads.StartUpload(ctx, target, sketchName, compilationResult, commandline, signature)
}

// StopUpload interrupts an in-flight upload when the environment registered
// a cancellation capability; otherwise ErrUploadCancellationUnsupported.
func (d *Daemon) StopUpload(ctx context.Context) error {
	return d.uploads.StopUpload(ctx)
}

// NotifyUploadError publishes an asynchronous upload failure reported by the
// transport.
func (d *Daemon) NotifyUploadError(err error) {
	d.uploads.NotifyError(err)
}

// RegisterUploadCanceller installs the environment's upload cancellation
// capability.
func (d *Daemon) RegisterUploadCanceller(fn func(context.Context) error) {
	d.uploads.RegisterCanceller(fn)
}

// StartDownloadTool asks the agent to fetch a toolchain component.
func (d *Daemon) StartDownloadTool(ctx context.Context, req models.ToolRequest) error {
	return d.downloads.StartDownloadTool(ctx, req)
}

// OpenSerialMonitor attaches to a serial port from the current device list
// and starts streaming its output through SerialMonitor. A non-positive baud
// selects DefaultBaudRate.
func (d *Daemon) OpenSerialMonitor(ctx context.Context, port string, baud int) error {
	if baud <= 0 {
		baud = DefaultBaudRate
	}

	devices := d.registry.Devices()

	known := false

	for _, p := range devices.Serial {
		if p.Name == port {
			known = true
			break
		}
	}

	if !known {
		return fmt.Errorf("%w: %s", ErrUnknownPort, port)
	}

	if err := d.commander.OpenSerialMonitor(ctx, port, baud); err != nil {
		return fmt.Errorf("failed to open serial monitor: %w", err)
	}

	d.serialMonitorOpen.Set(true)

	return nil
}

// CloseSerialMonitor detaches from a serial port.
func (d *Daemon) CloseSerialMonitor(ctx context.Context, port string) error {
	if err := d.commander.CloseSerialMonitor(ctx, port); err != nil {
		return fmt.Errorf("failed to close serial monitor: %w", err)
	}

	d.serialMonitorOpen.Set(false)

	return nil
}

// SetAgentInfo records the metadata returned by the agent's discovery
// endpoint. The transport calls this once per successful probe.
func (d *Daemon) SetAgentInfo(info models.AgentInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.agentInfo = info
}

// AgentInfo returns the last advertised agent metadata.
func (d *Daemon) AgentInfo() models.AgentInfo {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.agentInfo
}

// discover is the polling loop body: ask the agent for its port list. The
// result comes back asynchronously as a Ports frame.
func (d *Daemon) discover(ctx context.Context) {
	if err := d.commander.RequestPortList(ctx); err != nil {
		d.log.Warn().Err(err).Msg("Failed to request port list")
	}
}

func (d *Daemon) onChannelUp() {
	go d.refreshSupportedBoards(context.Background())
}

// onChannelDown clears everything derived from the lost channel: the device
// list, agent presence and metadata, and the serial monitor flag.
func (d *Daemon) onChannelDown() {
	d.registry.Reset()
	d.agentFound.Set(false)
	d.serialMonitorOpen.Set(false)

	d.mu.Lock()
	d.agentInfo = models.AgentInfo{}
	d.mu.Unlock()
}

// refreshSupportedBoards publishes the board index. Failures keep the
// previous value; board metadata never affects connectivity or uploads.
func (d *Daemon) refreshSupportedBoards(ctx context.Context) {
	boards, err := boardindex.Fetch(ctx, d.boardsClient, d.config.BoardsURL)
	if err != nil {
		d.log.Warn().
			Err(err).
			Str("url", d.config.BoardsURL).
			Msg("Failed to fetch supported boards")

		return
	}

	d.supportedBoards.Set(boards)

	d.log.Debug().Int("boards", len(boards)).Msg("Supported boards refreshed")
}

// setAgentVersion merges the version fields an agent announces over the
// channel into the discovery metadata. Last write wins.
func (d *Daemon) setAgentVersion(version, osName string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.agentInfo.Version = version
	if osName != "" {
		d.agentInfo.OS = osName
	}
}

// Connectivity is the raw connectivity feed: every SetConnectivity call,
// duplicates included.
func (d *Daemon) Connectivity() *stream.Feed[models.ConnectivityState] {
	return d.monitor.connectivity
}

// ConnectivityChanges is the distinct connectivity view; duplicate-in-a-row
// states are suppressed.
func (d *Daemon) ConnectivityChanges() *stream.Value[models.ConnectivityState] {
	return d.monitor.changes
}

// AgentFound reports agent presence.
func (d *Daemon) AgentFound() *stream.Value[bool] {
	return d.agentFound
}

// Devices is the current device list.
func (d *Daemon) Devices() *stream.Value[models.DeviceList] {
	return d.registry.devices
}

// Uploads is the upload state stream.
func (d *Daemon) Uploads() *stream.Value[models.OperationState] {
	return d.uploads.tracker.state
}

// UploadDone fires once per upload session on success.
func (d *Daemon) UploadDone() *stream.Feed[models.OperationState] {
	return d.uploads.tracker.done
}

// UploadError fires once per upload session on failure.
func (d *Daemon) UploadError() *stream.Feed[models.OperationState] {
	return d.uploads.tracker.failed
}

// Downloads is the tool download state stream.
func (d *Daemon) Downloads() *stream.Value[models.OperationState] {
	return d.downloads.tracker.state
}

// DownloadDone fires once per download session on success.
func (d *Daemon) DownloadDone() *stream.Feed[models.OperationState] {
	return d.downloads.tracker.done
}

// DownloadError fires once per download session on failure.
func (d *Daemon) DownloadError() *stream.Feed[models.OperationState] {
	return d.downloads.tracker.failed
}

// SerialMonitor passes serial output through in delivery order.
func (d *Daemon) SerialMonitor() *stream.Feed[string] {
	return d.serialMonitor
}

// SerialMonitorOpen reports whether a serial monitor is attached.
func (d *Daemon) SerialMonitorOpen() *stream.Value[bool] {
	return d.serialMonitorOpen
}

// SupportedBoards is the published board index.
func (d *Daemon) SupportedBoards() *stream.Value[[]models.Board] {
	return d.supportedBoards
}

// Close cancels the polling loop and tears down every stream. The daemon is
// not usable afterwards.
func (d *Daemon) Close() {
	d.closeOnce.Do(func() {
		d.monitor.Close()
		d.registry.Close()
		d.uploads.close()
		d.downloads.close()
		d.agentFound.Close()
		d.serialMonitor.Close()
		d.serialMonitorOpen.Close()
		d.supportedBoards.Close()
	})
}
