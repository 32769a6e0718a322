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

	"github.com/chassislabs/boardlink/pkg/logger"
	"github.com/chassislabs/boardlink/pkg/models"
	"github.com/chassislabs/boardlink/pkg/stream"
)

// MessageRouter normalizes inbound channel frames and dispatches them by
// field presence. The agent's wire contract has no type tag, so which fields
// a frame carries decides where it goes.
type MessageRouter struct {
	log        logger.Logger
	registry   *DeviceRegistry
	uploads    *UploadCoordinator
	downloads  *DownloadCoordinator
	serial     *stream.Feed[string]
	agentFound *stream.Value[bool]
	agentHello func(version, os string)
}

func newMessageRouter(
	log logger.Logger,
	registry *DeviceRegistry,
	uploads *UploadCoordinator,
	downloads *DownloadCoordinator,
	serial *stream.Feed[string],
	agentFound *stream.Value[bool],
	agentHello func(version, os string),
) *MessageRouter {
	return &MessageRouter{
		log:        log,
		registry:   registry,
		uploads:    uploads,
		downloads:  downloads,
		serial:     serial,
		agentFound: agentFound,
		agentHello: agentHello,
	}
}

// Route dispatches one raw frame. Frames that do not decode are dropped; the
// agent interleaves bare log lines with its JSON messages.
func (r *MessageRouter) Route(ctx context.Context, raw []byte) {
	msg, err := models.ParseAgentMessage(raw)
	if err != nil {
		r.log.Warn().
			Err(err).
			Int("bytes", len(raw)).
			Msg("Dropping undecodable agent message")

		return
	}

	if msg.Ports != nil {
		r.routePortList(ctx, msg)
	}

	if msg.D != nil {
		r.serial.Publish(*msg.D)
	}

	if msg.Version != "" {
		r.agentHello(msg.Version, msg.OS)
		r.agentFound.Set(true)
	}

	if msg.ProgrammerStatus != "" {
		r.routeProgrammerStatus(msg)
	}

	if msg.DownloadStatus != "" {
		r.routeDownloadStatus(msg)
	}

	if msg.Err != "" {
		r.uploads.NotifyError(errors.New(msg.Err))
	}
}

// routePortList replaces the matching device sub-list, but only when it
// actually changed; the agent re-sends identical lists on every poll.
func (r *MessageRouter) routePortList(ctx context.Context, msg *models.AgentMessage) {
	incoming := *msg.Ports

	current := r.registry.Devices()

	known := current.Serial
	if msg.Network {
		known = current.Network
	}

	if models.PortListsEqual(known, incoming) {
		return
	}

	next := current
	if msg.Network {
		next.Network = incoming
	} else {
		next.Serial = incoming
	}

	r.log.Debug().
		Bool("network", msg.Network).
		Int("ports", len(incoming)).
		Msg("Device list changed")

	r.registry.UpdateDevices(ctx, next)
}

func (r *MessageRouter) routeProgrammerStatus(msg *models.AgentMessage) {
	switch msg.ProgrammerStatus {
	case models.ProgrammerDone:
		r.uploads.markDone(msg.Flash)
	case models.ProgrammerError:
		r.uploads.markFailed(msg.Msg)
	default:
		r.log.Debug().
			Str("status", msg.ProgrammerStatus).
			Str("msg", msg.Msg).
			Msg("Programmer progress")
	}
}

func (r *MessageRouter) routeDownloadStatus(msg *models.AgentMessage) {
	switch msg.DownloadStatus {
	case models.DownloadSuccess:
		r.downloads.markDone(msg.Msg)
	case models.DownloadError:
		r.downloads.markFailed(msg.Msg)
	default:
		r.log.Debug().
			Str("status", msg.DownloadStatus).
			Msg("Download progress")
	}
}
