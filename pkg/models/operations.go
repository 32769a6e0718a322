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

package models

// ConnectivityState is the tri-state health of the agent channel.
type ConnectivityState int

const (
	// ConnectivityUnknown is the initial state before the transport has
	// reported anything.
	ConnectivityUnknown ConnectivityState = iota
	ConnectivityOpen
	ConnectivityClosed
)

// IsOpen reports whether the channel is usable. Unknown counts as not open.
func (s ConnectivityState) IsOpen() bool {
	return s == ConnectivityOpen
}

func (s ConnectivityState) String() string {
	switch s {
	case ConnectivityOpen:
		return "open"
	case ConnectivityClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// OperationStatus tracks a single upload or download operation.
type OperationStatus string

const (
	StatusNope       OperationStatus = "NOPE"
	StatusInProgress OperationStatus = "IN_PROGRESS"
	StatusDone       OperationStatus = "DONE"
	StatusError      OperationStatus = "ERROR"
)

// Terminal reports whether the status ends an operation session.
func (s OperationStatus) Terminal() bool {
	return s == StatusDone || s == StatusError
}

// OperationState is the observable state of one upload or download session.
// Err is set only when Status is StatusError; Msg carries the agent's last
// human-readable progress line when one was provided.
type OperationState struct {
	Status OperationStatus `json:"status"`
	Msg    string          `json:"msg,omitempty"`
	Err    error           `json:"-"`
}

// AgentInfo is the metadata the agent advertises about itself. Fields are
// opaque to the coordinator and last-write-wins.
type AgentInfo struct {
	Version string `json:"version,omitempty"`
	OS      string `json:"os,omitempty"`
	HTTP    string `json:"http,omitempty"`
	HTTPS   string `json:"https,omitempty"`
	WS      string `json:"ws,omitempty"`
	WSS     string `json:"wss,omitempty"`
}
