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

package transport

import (
	"time"

	"github.com/chassislabs/boardlink/pkg/models"
)

const (
	// DefaultProbePortStart and DefaultProbePortEnd bound the local port
	// range the agent walks up at startup looking for a free listener.
	DefaultProbePortStart = 8991
	DefaultProbePortEnd   = 9000

	// DefaultHost is where the agent listens; it only ever binds locally.
	DefaultHost = "127.0.0.1"

	defaultProbeTimeout = time.Second
)

// Config represents transport client configuration.
type Config struct {
	Host         string          `json:"host,omitempty"`
	PortStart    int             `json:"port_start,omitempty"`
	PortEnd      int             `json:"port_end,omitempty"`
	ProbeTimeout models.Duration `json:"probe_timeout,omitempty"`
}

// Validate fills zero values with defaults and rejects unusable settings.
func (c *Config) Validate() error {
	if c.Host == "" {
		c.Host = DefaultHost
	}

	if c.PortStart == 0 {
		c.PortStart = DefaultProbePortStart
	}

	if c.PortEnd == 0 {
		c.PortEnd = DefaultProbePortEnd
	}

	if c.PortEnd < c.PortStart {
		return errInvalidPortRange
	}

	if time.Duration(c.ProbeTimeout) <= 0 {
		c.ProbeTimeout = models.Duration(defaultProbeTimeout)
	}

	return nil
}
