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

// Package transport talks to the locally running board programming agent:
// it probes the agent's port range, keeps the websocket channel, serializes
// command frames, and posts uploads to the agent's HTTP endpoint.
//
// The package deliberately contains no reconnect logic. Connect performs one
// discovery and dial; when the channel dies the handler observes a closed
// transition and the host decides whether to try again.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chassislabs/boardlink/pkg/logger"
	"github.com/chassislabs/boardlink/pkg/models"
	"github.com/chassislabs/boardlink/pkg/version"
)

// Client implements daemon.Commander against a real agent.
type Client struct {
	config Config
	log    logger.Logger
	httpc  *http.Client

	mu         sync.Mutex
	conn       *websocket.Conn
	handler    Handler
	uploadURL  string
	readDone   chan struct{}
	readCancel context.CancelFunc
	closing    bool

	// writeMu serializes frames; gorilla allows one concurrent writer.
	writeMu sync.Mutex
}

// New creates a transport client. A nil log builds a default logger.
func New(cfg *Config, log logger.Logger) (*Client, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if log == nil {
		var err error

		log, err = logger.New(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
	}

	return &Client{
		config: *cfg,
		log:    log.WithComponent("transport"),
		httpc:  &http.Client{},
	}, nil
}

// Discover probes the agent's port range and returns the first responder's
// metadata.
func (c *Client) Discover(ctx context.Context) (models.AgentInfo, error) {
	info, _, err := c.discover(ctx)

	return info, err
}

func (c *Client) discover(ctx context.Context) (models.AgentInfo, int, error) {
	for port := c.config.PortStart; port <= c.config.PortEnd; port++ {
		if err := ctx.Err(); err != nil {
			return models.AgentInfo{}, 0, err
		}

		info, err := c.probe(ctx, port)
		if err != nil {
			c.log.Debug().Err(err).Int("port", port).Msg("No agent on port")
			continue
		}

		c.log.Info().
			Int("port", port).
			Str("version", info.Version).
			Msg("Agent found")

		return info, port, nil
	}

	return models.AgentInfo{}, 0, ErrAgentNotFound
}

func (c *Client) probe(ctx context.Context, port int) (models.AgentInfo, error) {
	probeCtx, cancel := context.WithTimeout(ctx, time.Duration(c.config.ProbeTimeout))
	defer cancel()

	endpoint := fmt.Sprintf("http://%s/info", net.JoinHostPort(c.config.Host, strconv.Itoa(port)))

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return models.AgentInfo{}, fmt.Errorf("failed to create probe request: %w", err)
	}

	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.httpc.Do(req)
	if err != nil {
		return models.AgentInfo{}, fmt.Errorf("probe failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return models.AgentInfo{}, fmt.Errorf("probe status %d", resp.StatusCode)
	}

	var info models.AgentInfo

	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return models.AgentInfo{}, fmt.Errorf("failed to decode agent info: %w", err)
	}

	return info, nil
}

// Connect discovers the agent, dials its channel, and starts the read pump.
// The handler observes the agent metadata, the upload canceller, and an open
// transition, in that order.
func (c *Client) Connect(ctx context.Context, handler Handler) error {
	if handler == nil {
		return errMissingHandler
	}

	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return errAlreadyConnected
	}
	c.mu.Unlock()

	info, port, err := c.discover(ctx)
	if err != nil {
		return err
	}

	endpoint := info.WSS
	if endpoint == "" {
		endpoint = info.WS
	}

	if endpoint == "" {
		return errNoChannelEndpoint
	}

	headers := http.Header{"User-Agent": []string{version.UserAgent()}}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, endpoint, headers)
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
		}

		return fmt.Errorf("failed to dial agent channel: %w", err)
	}

	uploadBase := info.HTTP
	if uploadBase == "" {
		uploadBase = fmt.Sprintf("http://%s", net.JoinHostPort(c.config.Host, strconv.Itoa(port)))
	}

	readCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	c.mu.Lock()
	c.conn = conn
	c.handler = handler
	c.uploadURL = strings.TrimSuffix(uploadBase, "/") + "/upload"
	c.readDone = done
	c.readCancel = cancel
	c.closing = false
	c.mu.Unlock()

	handler.SetAgentInfo(info)
	handler.RegisterUploadCanceller(c.killProgrammer)
	handler.SetConnectivity(models.ConnectivityOpen)

	go c.readPump(readCtx, conn, handler, done)

	c.log.Info().Str("endpoint", endpoint).Msg("Channel open")

	return nil
}

// readPump forwards inbound frames to the handler until the connection
// dies, then reports the channel down.
func (c *Client) readPump(ctx context.Context, conn *websocket.Conn, handler Handler, done chan struct{}) {
	defer close(done)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			deliberate := c.closing
			if c.conn == conn {
				c.conn = nil
			}
			c.mu.Unlock()

			if !deliberate && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warn().Err(err).Msg("Channel read failed")
			}

			handler.SetConnectivity(models.ConnectivityClosed)

			return
		}

		handler.Route(ctx, raw)
	}
}

// Close tears the channel down. The handler observes the closed transition
// before Close returns.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	done := c.readDone
	cancel := c.readCancel
	c.closing = true
	c.readDone = nil
	c.readCancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	if conn == nil {
		return nil
	}

	c.writeMu.Lock()
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()

	err := conn.Close()

	if done != nil {
		<-done
	}

	if err != nil {
		return fmt.Errorf("failed to close channel: %w", err)
	}

	return nil
}

// sendCommand writes one plain-text command frame under the write lock.
func (c *Client) sendCommand(ctx context.Context, command string) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return ErrChannelClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
		defer func() { _ = conn.SetWriteDeadline(time.Time{}) }()
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(command)); err != nil {
		return fmt.Errorf("failed to send command: %w", err)
	}

	return nil
}
