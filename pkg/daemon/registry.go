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
	"sync"

	"github.com/chassislabs/boardlink/pkg/logger"
	"github.com/chassislabs/boardlink/pkg/models"
	"github.com/chassislabs/boardlink/pkg/stream"
)

// DeviceRegistry owns the DeviceList. Updates replace the whole list and
// publish unconditionally; change detection is the caller's job via
// models.PortListsEqual.
type DeviceRegistry struct {
	log      logger.Logger
	devices  *stream.Value[models.DeviceList]
	closeAll func(context.Context) error

	mu            sync.Mutex
	portsReleased bool
}

func newDeviceRegistry(log logger.Logger, closeAll func(context.Context) error) *DeviceRegistry {
	return &DeviceRegistry{
		log:      log,
		devices:  stream.NewValue(models.EmptyDeviceList()),
		closeAll: closeAll,
	}
}

// UpdateDevices replaces the device list. The first update whose serial
// sub-list is non-empty additionally asks the agent to close every serial
// port once, releasing ports a previous host session left open.
func (r *DeviceRegistry) UpdateDevices(ctx context.Context, list models.DeviceList) {
	r.devices.Set(list)

	r.mu.Lock()
	release := !r.portsReleased && len(list.Serial) > 0
	if release {
		r.portsReleased = true
	}
	r.mu.Unlock()

	if !release {
		return
	}

	r.log.Info().
		Int("serial_ports", len(list.Serial)).
		Msg("First serial boards observed, releasing ports held from a previous session")

	if err := r.closeAll(ctx); err != nil {
		r.log.Warn().Err(err).Msg("Failed to close open serial ports")
	}
}

// Devices returns the current device list.
func (r *DeviceRegistry) Devices() models.DeviceList {
	return r.devices.Get()
}

// Reset publishes an empty device list. It does not clear the one-shot
// port-release flag; that is scoped to the registry's lifetime.
func (r *DeviceRegistry) Reset() {
	r.devices.Set(models.EmptyDeviceList())
}

func (r *DeviceRegistry) Close() {
	r.devices.Close()
}
