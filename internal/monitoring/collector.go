package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/copper-cli/internal/model"
)

// RegionMetrics describes the freshness of one region's history.
type RegionMetrics struct {
	Records    int    `json:"records"`
	LatestDate string `json:"latest_date"`
	AgeDays    int    `json:"age_days"`
}

// MetricsSnapshot holds a point-in-time view of history freshness.
type MetricsSnapshot struct {
	Regions      map[string]RegionMetrics `json:"regions"`
	Expected     []string                 `json:"expected"`
	TotalRecords int                      `json:"total_records"`
	CollectedAt  time.Time                `json:"collected_at"`
}

// HistoryLoader is satisfied by every store backend.
type HistoryLoader interface {
	Load(ctx context.Context) ([]model.PriceRecord, error)
}

// Collector gathers freshness metrics from the store.
type Collector struct {
	store     HistoryLoader
	materials []model.MaterialConfig
	loc       *time.Location
	now       func() time.Time
}

// NewCollector creates a collector expecting a record stream for every
// active material. Ages are counted in calendar days in loc.
func NewCollector(st HistoryLoader, materials []model.MaterialConfig, loc *time.Location) *Collector {
	if loc == nil {
		loc = time.UTC
	}
	return &Collector{store: st, materials: materials, loc: loc, now: time.Now}
}

// Collect gathers a snapshot of per-region freshness.
func (c *Collector) Collect(ctx context.Context) (*MetricsSnapshot, error) {
	recs, err := c.store.Load(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: load history")
	}

	now := c.now().In(c.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, c.loc)

	snap := &MetricsSnapshot{
		Regions:      make(map[string]RegionMetrics),
		TotalRecords: len(recs),
		CollectedAt:  now.UTC(),
	}
	for _, m := range model.ActiveMaterials(c.materials) {
		snap.Expected = append(snap.Expected, m.Region)
	}

	for _, r := range recs {
		m := snap.Regions[r.Region]
		m.Records++
		if r.Date > m.LatestDate {
			m.LatestDate = r.Date
		}
		snap.Regions[r.Region] = m
	}

	for region, m := range snap.Regions {
		d, err := time.ParseInLocation(model.DateLayout, m.LatestDate, c.loc)
		if err != nil {
			continue
		}
		m.AgeDays = int(today.Sub(d).Hours() / 24)
		snap.Regions[region] = m
	}
	return snap, nil
}
