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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/chassislabs/boardlink/pkg/models"
	"github.com/chassislabs/boardlink/pkg/version"
)

// RequestPortList asks the agent for a fresh port enumeration. The agent
// answers with one serial and one network port list frame on the channel.
func (c *Client) RequestPortList(ctx context.Context) error {
	return c.sendCommand(ctx, "list")
}

// OpenSerialMonitor opens a timed serial connection on the given port.
func (c *Client) OpenSerialMonitor(ctx context.Context, port string, baud int) error {
	return c.sendCommand(ctx, fmt.Sprintf("open %s %d timed", port, baud))
}

// CloseSerialMonitor closes the serial connection on the given port.
func (c *Client) CloseSerialMonitor(ctx context.Context, port string) error {
	return c.sendCommand(ctx, "close "+port)
}

// CloseAllPorts releases every serial port the agent holds open.
func (c *Client) CloseAllPorts(ctx context.Context) error {
	return c.sendCommand(ctx, "closeall")
}

// DownloadTool asks the agent to fetch a programmer tool. Behaviour defaults
// to keep, which skips the download when the tool is already installed.
func (c *Client) DownloadTool(ctx context.Context, req models.ToolRequest) error {
	behaviour := req.Behaviour
	if behaviour == "" {
		behaviour = models.ToolBehaviourKeep
	}

	return c.sendCommand(ctx, fmt.Sprintf("downloadtool %s %s %s %s",
		req.Name, req.Version, req.PackageName, behaviour))
}

// killProgrammer aborts the flash the agent is currently running. It is
// handed to the handler as the upload canceller during Connect.
func (c *Client) killProgrammer(ctx context.Context) error {
	return c.sendCommand(ctx, "killprogrammer")
}

// uploadRequest is the body posted to the agent's upload endpoint: the
// payload fields flattened, plus the detached signature and the option map
// the agent reads from extra.
type uploadRequest struct {
	models.UploadPayload
	Signature string         `json:"signature,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// Upload posts a flash request to the agent. Progress and the final outcome
// arrive asynchronously as programmer status frames on the channel.
func (c *Client) Upload(ctx context.Context, payload *models.UploadPayload, info *models.UploadCommandInfo) error {
	c.mu.Lock()
	endpoint := c.uploadURL
	connected := c.conn != nil
	c.mu.Unlock()

	if !connected || endpoint == "" {
		return ErrChannelClosed
	}

	body := uploadRequest{UploadPayload: *payload}
	if info != nil {
		body.Signature = info.Signature
		body.Extra = info.Options
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode upload request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("failed to create upload request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post upload: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))

		return fmt.Errorf("%w: status %d: %s", ErrUploadRejected, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	return nil
}
