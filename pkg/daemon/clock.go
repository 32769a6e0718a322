package daemon

import "time"

// realClock is the production Clock; tests substitute a hand-driven fake.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Ticker(d time.Duration) Ticker {
	return realTicker{time.NewTicker(d)}
}

// realTicker adapts time.Ticker to the Ticker interface. Stop is promoted
// from the embedded ticker.
type realTicker struct {
	*time.Ticker
}

func (t realTicker) Chan() <-chan time.Time { return t.C }
