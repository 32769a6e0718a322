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
	"time"

	"github.com/chassislabs/boardlink/pkg/logger"
	"github.com/chassislabs/boardlink/pkg/models"
)

const (
	// DefaultPollingInterval is the board discovery cadence while the
	// channel is open.
	DefaultPollingInterval = 1500 * time.Millisecond

	// DefaultBoardsURL serves the supported-board index.
	DefaultBoardsURL = "https://builder.chassislabs.io/v3/boards"
)

// Config represents coordinator configuration.
type Config struct {
	BoardsURL       string          `json:"boards_url,omitempty"`
	PollingInterval models.Duration `json:"polling_interval,omitempty"`
	Logging         *logger.Config  `json:"logging,omitempty"`
}

// Validate fills zero values with defaults and rejects unusable settings.
func (c *Config) Validate() error {
	if c.BoardsURL == "" {
		c.BoardsURL = DefaultBoardsURL
	}

	if time.Duration(c.PollingInterval) < 0 {
		return errInvalidPollingInterval
	}

	if time.Duration(c.PollingInterval) == 0 {
		c.PollingInterval = models.Duration(DefaultPollingInterval)
	}

	return nil
}
