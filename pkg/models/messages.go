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

import "encoding/json"

// AgentMessage is the normalized form of one inbound channel frame. The
// agent's wire contract has no type tag; which fields are present decides
// what the frame means, so the fields that drive dispatch are pointers to
// keep absence distinguishable from a zero value.
type AgentMessage struct {
	// Ports is the result of a list command. Network selects which
	// sub-list it replaces.
	Ports   *[]BoardPort `json:"Ports,omitempty"`
	Network bool         `json:"Network,omitempty"`

	// D is one chunk of serial monitor output.
	D *string `json:"D,omitempty"`

	// Version and OS identify the agent build.
	Version string `json:"Version,omitempty"`
	OS      string `json:"OS,omitempty"`

	// ProgrammerStatus reports upload progress; Flash carries the final
	// flash verdict and Msg the programmer's output line.
	ProgrammerStatus string `json:"ProgrammerStatus,omitempty"`
	Flash            string `json:"Flash,omitempty"`

	// DownloadStatus reports tool download progress.
	DownloadStatus string `json:"DownloadStatus,omitempty"`

	Msg string `json:"Msg,omitempty"`
	Err string `json:"Err,omitempty"`
}

// Programmer and download status values emitted by the agent.
const (
	ProgrammerDone  = "Done"
	ProgrammerError = "Error"

	DownloadPending = "Pending"
	DownloadSuccess = "Success"
	DownloadError   = "Error"
)

// ParseAgentMessage decodes one raw channel frame. The agent occasionally
// emits bare log lines that are not JSON objects; those come back as an
// error and the caller drops them.
func ParseAgentMessage(raw []byte) (*AgentMessage, error) {
	var msg AgentMessage

	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, err
	}

	return &msg, nil
}
