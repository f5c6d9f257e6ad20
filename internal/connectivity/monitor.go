// Package connectivity provides the reachability signal the gateways and
// sync engine branch on.
//
// The Monitor is purely a signal source: it answers "is the server
// reachable right now" and notifies subscribers on transitions. It does not
// retry, buffer, or queue anything; reacting to the signal is the caller's
// job.
package connectivity

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Event is a reachability transition.
type Event struct {
	// Online is the new state.
	Online bool
	// At is when the transition was observed.
	At time.Time
}

// Oracle answers the single question the rest of the system asks about the
// network, plus a subscription for transition events.
type Oracle interface {
	// Online reports current reachability.
	Online() bool
	// Subscribe returns a channel of transition events and a cancel
	// function. The channel is closed on cancel or monitor stop.
	Subscribe() (<-chan Event, func())
}

// Prober checks reachability once. It must return quickly; the monitor
// calls it on every poll tick.
type Prober func(ctx context.Context) bool

// HTTPProber probes the given URL with a HEAD request. Any response,
// including an auth rejection, proves the server is reachable; only
// transport errors and 5xx count as offline.
func HTTPProber(url string, client *http.Client) Prober {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return func(ctx context.Context) bool {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
		if err != nil {
			return false
		}
		resp, err := client.Do(req)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode < http.StatusInternalServerError
	}
}

// Monitor polls a Prober at a fixed interval and fans transition events out
// to subscribers. It also accepts manual overrides via Set, which tests and
// the CLI's --offline flag use in place of a real probe.
type Monitor struct {
	probe    Prober
	interval time.Duration

	mu      sync.Mutex
	online  bool
	known   bool
	subs    map[int]chan Event
	nextSub int
	running bool

	done chan struct{}
	wg   sync.WaitGroup
}

// NewMonitor creates a monitor around the given prober. A nil prober makes
// the monitor purely manual: state only changes through Set.
func NewMonitor(probe Prober, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Monitor{
		probe:    probe,
		interval: interval,
		subs:     make(map[int]chan Event),
	}
}

// Start begins polling. Returns an error if the monitor is already running
// or has no prober. The first probe runs immediately so Online() is
// meaningful right away.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("monitor already running")
	}
	if m.probe == nil {
		m.mu.Unlock()
		return fmt.Errorf("monitor has no prober")
	}
	m.running = true
	m.done = make(chan struct{})
	m.mu.Unlock()

	m.Set(m.probe(ctx))

	m.wg.Add(1)
	go m.poll(ctx)
	return nil
}

// Stop halts polling and closes all subscriber channels.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.done)
	m.mu.Unlock()

	m.wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, ch := range m.subs {
		close(ch)
		delete(m.subs, id)
	}
}

// Online reports the last observed reachability state. Before the first
// probe or Set the monitor assumes offline.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Set records a reachability state, notifying subscribers when it differs
// from the previous one.
func (m *Monitor) Set(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	changed := !m.known || m.online != online
	m.online = online
	m.known = true
	if !changed {
		return
	}

	event := Event{Online: online, At: time.Now()}
	for _, ch := range m.subs {
		// Drop rather than block: a slow subscriber must not stall the
		// probe loop, and the next transition carries fresh state anyway.
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe registers a transition listener.
func (m *Monitor) Subscribe() (<-chan Event, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSub
	m.nextSub++
	ch := make(chan Event, 8)
	m.subs[id] = ch

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if sub, ok := m.subs[id]; ok {
			close(sub)
			delete(m.subs, id)
		}
	}
	return ch, cancel
}

func (m *Monitor) poll(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Set(m.probe(ctx))
		}
	}
}
