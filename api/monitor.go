/*
monitor.go - Background alert monitor

PURPOSE:
  Periodically runs the alert analyzer over the live shift of every known
  location and logs what it finds, so managers see anomalies without
  opening the oversight screen. Known locations are the configured
  restaurants plus any location holding a label record, so a restaurant
  that never recorded anything still raises NoActivity.

DESIGN:
  - Runs a background goroutine with a configurable check interval
  - Read-only: never mutates the ledger or the log
  - Keeps the latest scan in memory for GET /api/alerts/latest
  - High alerts log at warn, the rest at info

CONFIGURATION:
  - CheckInterval: How often to scan (ALERT_SCAN_INTERVAL, default 15m)
  - Enabled: Whether the monitor runs (false when the interval is 0)

USAGE:
  monitor := NewAlertMonitor(oversight, 15*time.Minute, logger, "negro-amaro")
  monitor.Start()
  // ... later
  monitor.Stop()

SEE ALSO:
  - inventory/alerts.go: Analyze
  - handlers.go: LatestAlerts endpoint
*/
package api

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warp/barstock/inventory"
)

// AlertMonitor scans every location for alerts on a fixed interval.
type AlertMonitor struct {
	Oversight     *inventory.Oversight
	CheckInterval time.Duration
	Enabled       bool

	// Configured locations are scanned even before their first movement.
	Configured []inventory.LocationID

	log    logrus.FieldLogger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	latestMu sync.RWMutex
	latest   map[inventory.LocationID][]inventory.Alert
	lastRun  time.Time
}

func NewAlertMonitor(o *inventory.Oversight, interval time.Duration, log logrus.FieldLogger, configured ...inventory.LocationID) *AlertMonitor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &AlertMonitor{
		Oversight:     o,
		CheckInterval: interval,
		Enabled:       interval > 0,
		Configured:    configured,
		log:           log.WithField("component", "alert-monitor"),
		stop:          make(chan struct{}),
		latest:        make(map[inventory.LocationID][]inventory.Alert),
	}
}

// Start begins the monitor.
func (m *AlertMonitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.Enabled {
		m.log.Info("disabled, not starting")
		return
	}
	if m.ticker != nil {
		return
	}

	m.ticker = time.NewTicker(m.CheckInterval)
	m.wg.Add(1)
	go m.run()

	m.log.WithField("interval", m.CheckInterval.String()).Info("started")
}

// Stop stops the monitor and waits for an in-flight scan.
func (m *AlertMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ticker != nil {
		m.ticker.Stop()
		close(m.stop)
		m.wg.Wait()
		m.ticker = nil
		m.log.Info("stopped")
	}
}

func (m *AlertMonitor) run() {
	defer m.wg.Done()

	// Run immediately on start
	m.RunNow(context.Background())

	for {
		select {
		case <-m.ticker.C:
			m.RunNow(context.Background())
		case <-m.stop:
			return
		}
	}
}

// locations merges the configured locations with those in the store.
func (m *AlertMonitor) locations(ctx context.Context) ([]inventory.LocationID, error) {
	stored, err := m.Oversight.Locations(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[inventory.LocationID]bool)
	var locs []inventory.LocationID
	for _, loc := range append(append([]inventory.LocationID(nil), m.Configured...), stored...) {
		if loc == "" || seen[loc] {
			continue
		}
		seen[loc] = true
		locs = append(locs, loc)
	}
	sort.Slice(locs, func(i, j int) bool { return locs[i] < locs[j] })
	return locs, nil
}

// RunNow scans every location at the live shift and returns the alerts found.
func (m *AlertMonitor) RunNow(ctx context.Context) map[inventory.LocationID][]inventory.Alert {
	locs, err := m.locations(ctx)
	if err != nil {
		m.log.WithError(err).Error("failed to list locations")
		return nil
	}

	current := m.Oversight.CurrentShift()
	scan := make(map[inventory.LocationID][]inventory.Alert, len(locs))
	total := 0
	for _, loc := range locs {
		alerts, err := m.Oversight.Alerts(ctx, loc, current)
		if err != nil {
			m.log.WithError(err).WithField("location", loc).Error("failed to analyze location")
			continue
		}
		scan[loc] = alerts
		total += len(alerts)

		for _, a := range alerts {
			entry := m.log.WithFields(logrus.Fields{
				"location": loc,
				"shift":    current,
				"kind":     a.Kind,
				"severity": a.Severity,
				"label":    a.Label,
			})
			if a.Severity == inventory.SeverityHigh {
				entry.Warn(a.Message)
			} else {
				entry.Info(a.Message)
			}
		}
	}

	m.latestMu.Lock()
	m.latest = scan
	m.lastRun = time.Now()
	m.latestMu.Unlock()

	m.log.WithFields(logrus.Fields{"locations": len(locs), "alerts": total, "shift": current}).Debug("scan completed")
	return scan
}

// Latest returns the result of the most recent scan.
func (m *AlertMonitor) Latest() map[inventory.LocationID][]inventory.Alert {
	m.latestMu.RLock()
	defer m.latestMu.RUnlock()
	out := make(map[inventory.LocationID][]inventory.Alert, len(m.latest))
	for loc, alerts := range m.latest {
		out[loc] = append([]inventory.Alert(nil), alerts...)
	}
	return out
}

// GetNextRunTime returns when the next scheduled scan will occur.
func (m *AlertMonitor) GetNextRunTime() time.Time {
	m.latestMu.RLock()
	defer m.latestMu.RUnlock()
	if m.lastRun.IsZero() {
		return time.Now()
	}
	return m.lastRun.Add(m.CheckInterval)
}
