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

// UploadTarget identifies the board an upload is destined for. Port is the
// serial port path for serial boards; network boards set Network true and put
// their address in Port.
type UploadTarget struct {
	Board    string `json:"board"`
	Port     string `json:"port"`
	AuthUser string `json:"auth_user,omitempty"`
	AuthPass string `json:"auth_pass,omitempty"`
	AuthType string `json:"auth_type,omitempty"`
	Network  bool   `json:"network"`
}

// UploadCommandInfo carries the programmer invocation the agent should run:
// the commandline template, its detached signature, and the flag map the
// agent honors while driving the programmer.
type UploadCommandInfo struct {
	Commandline string         `json:"commandline"`
	Signature   string         `json:"signature"`
	Options     map[string]any `json:"options"`
}

// DefaultUploadOptions returns the fixed option set sent with every upload.
// The 1200bps touch resets the board into its bootloader and the agent then
// waits for the upload port to reappear before programming.
func DefaultUploadOptions() map[string]any {
	return map[string]any{
		"use_1200bps_touch":    true,
		"wait_for_upload_port": true,
	}
}

// UploadPayload is the upload request body handed to the agent: the target
// fields, the resolved commandline, the artifact filename, and the artifact
// bytes. The bytes appear under both Hex and Data; older agent builds read
// one alias, newer ones the other.
type UploadPayload struct {
	Board       string `json:"board"`
	Port        string `json:"port"`
	AuthUser    string `json:"auth_user,omitempty"`
	AuthPass    string `json:"auth_pass,omitempty"`
	AuthType    string `json:"auth_type,omitempty"`
	Network     bool   `json:"network"`
	Commandline string `json:"commandline"`
	Filename    string `json:"filename"`
	Hex         []byte `json:"hex,omitempty"`
	Data        []byte `json:"data,omitempty"`
}

// Tool download replacement behaviours understood by the agent.
const (
	ToolBehaviourKeep    = "keep"
	ToolBehaviourReplace = "replace"
)

// ToolRequest names a downloadable toolchain component. The coordinator
// passes these identifiers through to the agent untouched.
type ToolRequest struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	PackageName string `json:"package"`
	Behaviour   string `json:"behaviour,omitempty"`
}
