package monitoring

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/copper-cli/internal/config"
)

const defaultCheckInterval = time.Hour

// Checker evaluates region freshness on a ticker. A stale region is
// reported to the webhook once per latest date; it is reported again only
// after new data arrives and goes stale in turn.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	interval  time.Duration
	staleDays int

	mu       sync.Mutex
	notified map[string]string // region -> latest date already alerted
}

// NewChecker creates a freshness checker. A non-positive check interval
// falls back to one hour.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	interval := time.Duration(cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = defaultCheckInterval
	}
	return &Checker{
		collector: collector,
		alerter:   alerter,
		interval:  interval,
		staleDays: cfg.StaleAfterDays,
		notified:  make(map[string]string),
	}
}

// Interval reports the tick period used by Run.
func (c *Checker) Interval() time.Duration { return c.interval }

// Run checks freshness every interval until ctx is cancelled. It returns
// at once when staleness alerts are disabled.
func (c *Checker) Run(ctx context.Context) {
	if c.staleDays <= 0 {
		zap.L().Info("freshness: stale_after_days not set, checker disabled")
		return
	}
	zap.L().Info("freshness: watching regions",
		zap.Duration("every", c.interval),
		zap.Int("stale_after_days", c.staleDays),
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Debug("freshness: watcher exiting", zap.Error(ctx.Err()))
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

// Check evaluates one snapshot and returns every stale region's alert.
// Only alerts not already delivered for the same latest date go to the
// webhook.
func (c *Checker) Check(ctx context.Context) []Alert {
	snap, err := c.collector.Collect(ctx)
	if err != nil {
		zap.L().Error("freshness: collect failed", zap.Error(err))
		return nil
	}

	alerts := c.alerter.Evaluate(snap)
	fresh := c.forget(snap, alerts)

	pending := c.pending(alerts)
	sent := c.alerter.SendAlerts(ctx, pending)
	if sent == len(pending) {
		c.remember(pending)
	}

	zap.L().Info("freshness: checked",
		zap.Int("records", snap.TotalRecords),
		zap.Int("fresh_regions", fresh),
		zap.Strings("stale_regions", staleRegions(alerts)),
		zap.Int("notified", sent),
	)
	return alerts
}

// forget clears delivery state for regions that are no longer stale and
// returns how many expected regions are fresh.
func (c *Checker) forget(snap *MetricsSnapshot, alerts []Alert) int {
	stale := make(map[string]bool, len(alerts))
	for _, a := range alerts {
		stale[alertRegion(a)] = true
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	fresh := 0
	for _, region := range snap.Expected {
		if stale[region] {
			continue
		}
		fresh++
		delete(c.notified, region)
	}
	return fresh
}

func (c *Checker) pending(alerts []Alert) []Alert {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Alert
	for _, a := range alerts {
		if last, ok := c.notified[alertRegion(a)]; ok && last == alertLatest(a) {
			continue
		}
		out = append(out, a)
	}
	return out
}

func (c *Checker) remember(alerts []Alert) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, a := range alerts {
		c.notified[alertRegion(a)] = alertLatest(a)
	}
}

func alertRegion(a Alert) string {
	s, _ := a.Details["region"].(string)
	return s
}

func alertLatest(a Alert) string {
	s, _ := a.Details["latest_date"].(string)
	return s
}

func staleRegions(alerts []Alert) []string {
	out := make([]string, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, alertRegion(a))
	}
	sort.Strings(out)
	return out
}
