package connectivity

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"ledgersync/internal/testutil"
)

type fakeProbe struct {
	up atomic.Bool
}

func (p *fakeProbe) Ping(context.Context) error {
	if p.up.Load() {
		return nil
	}
	return errors.New("unreachable")
}

type counter struct {
	n atomic.Int32
}

func (c *counter) trigger(context.Context) { c.n.Add(1) }

func TestMonitorTriggersOnReconnect(t *testing.T) {
	probe := &fakeProbe{}
	probe.up.Store(true)
	var c counter
	m := NewMonitor(probe, 10*time.Millisecond, c.trigger, WithDebounce(10*time.Millisecond))
	m.Start(context.Background())
	defer m.Stop()

	testutil.Eventually(t, time.Second, m.Online, "initial probe marks online")
	time.Sleep(50 * time.Millisecond)
	if n := c.n.Load(); n != 0 {
		t.Fatalf("expected no trigger while steadily online, got %d", n)
	}

	probe.up.Store(false)
	testutil.Eventually(t, time.Second, func() bool { return !m.Online() }, "probe marks offline")

	probe.up.Store(true)
	testutil.Eventually(t, time.Second, func() bool { return c.n.Load() == 1 }, "reconnect triggers")

	time.Sleep(50 * time.Millisecond)
	if n := c.n.Load(); n != 1 {
		t.Errorf("expected exactly one trigger per reconnect, got %d", n)
	}
}

func TestMonitorExplicitSignals(t *testing.T) {
	probe := &fakeProbe{}
	var c counter
	// A long interval leaves only the first probe; everything else comes
	// from SetOnline.
	m := NewMonitor(probe, time.Hour, c.trigger, WithDebounce(100*time.Millisecond))
	m.Start(context.Background())
	defer m.Stop()

	testutil.Eventually(t, time.Second, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.known
	}, "initial probe observed")

	t.Run("flap within debounce", func(t *testing.T) {
		m.SetOnline(true)
		m.SetOnline(false)
		time.Sleep(200 * time.Millisecond)
		if n := c.n.Load(); n != 0 {
			t.Errorf("expected a flap to be ignored, got %d triggers", n)
		}
	})

	t.Run("stable reconnect", func(t *testing.T) {
		m.SetOnline(true)
		testutil.Eventually(t, time.Second, func() bool { return c.n.Load() == 1 }, "signal triggers")
	})
}

func TestMonitorStop(t *testing.T) {
	probe := &fakeProbe{}
	var c counter
	m := NewMonitor(probe, time.Hour, c.trigger, WithDebounce(time.Millisecond))

	m.Stop()
	m.Start(context.Background())
	m.Start(context.Background())
	m.Stop()
	m.Stop()

	m.SetOnline(false)
	m.SetOnline(true)
	time.Sleep(20 * time.Millisecond)
	if n := c.n.Load(); n != 0 {
		t.Errorf("expected no trigger after stop, got %d", n)
	}
}
