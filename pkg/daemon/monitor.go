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
	"time"

	"github.com/chassislabs/boardlink/pkg/logger"
	"github.com/chassislabs/boardlink/pkg/models"
	"github.com/chassislabs/boardlink/pkg/stream"
)

// ChannelMonitor owns ConnectivityState. It publishes every update to the
// raw feed, suppresses duplicate-in-a-row updates on the distinct view, and
// runs the discovery polling loop while the channel is open.
type ChannelMonitor struct {
	log      logger.Logger
	clock    Clock
	interval time.Duration

	// poll is invoked at t=0 of an open transition and on every tick
	// after. onUp and onDown run once per transition in either direction.
	poll   func(context.Context)
	onUp   func()
	onDown func()

	connectivity *stream.Feed[models.ConnectivityState]
	changes      *stream.Value[models.ConnectivityState]

	mu     sync.Mutex
	state  models.ConnectivityState
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newChannelMonitor(
	log logger.Logger,
	clock Clock,
	interval time.Duration,
	poll func(context.Context),
	onUp func(),
	onDown func(),
) *ChannelMonitor {
	return &ChannelMonitor{
		log:          log,
		clock:        clock,
		interval:     interval,
		poll:         poll,
		onUp:         onUp,
		onDown:       onDown,
		connectivity: stream.NewFeed[models.ConnectivityState](),
		changes:      stream.NewValue(models.ConnectivityUnknown),
	}
}

// SetConnectivity records a channel health report from the transport. An
// open transition starts a fresh polling loop; a transition to closed or
// unknown cancels the loop immediately and resets agent-derived state
// through onDown.
func (m *ChannelMonitor) SetConnectivity(state models.ConnectivityState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.state
	m.state = state

	m.connectivity.Publish(state)

	if state == prev {
		m.log.Debug().
			Str("state", state.String()).
			Msg("Connectivity unchanged, suppressing duplicate")
	} else {
		m.changes.Set(state)
	}

	switch {
	case state.IsOpen() && !prev.IsOpen():
		m.log.Info().Msg("Channel open, starting discovery polling")
		m.onUp()
		m.startPollingLocked()
	case !state.IsOpen() && prev.IsOpen():
		m.log.Info().
			Str("state", state.String()).
			Msg("Channel down, cancelling discovery polling")
		m.stopPollingLocked()
		m.onDown()
	}
}

func (m *ChannelMonitor) startPollingLocked() {
	if m.cancel != nil {
		m.cancel()
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	m.wg.Add(1)

	go m.run(ctx)
}

func (m *ChannelMonitor) stopPollingLocked() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

func (m *ChannelMonitor) run(ctx context.Context) {
	defer m.wg.Done()

	ticker := m.clock.Ticker(m.interval)
	defer ticker.Stop()

	if ctx.Err() != nil {
		return
	}

	m.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			// A cancellation racing a tick wins; no poll after close.
			if ctx.Err() != nil {
				return
			}

			m.poll(ctx)
		}
	}
}

// Close cancels any running polling loop, waits for it to exit, and tears
// down the connectivity streams.
func (m *ChannelMonitor) Close() {
	m.mu.Lock()
	m.stopPollingLocked()
	m.mu.Unlock()

	m.wg.Wait()

	m.connectivity.Close()
	m.changes.Close()
}
