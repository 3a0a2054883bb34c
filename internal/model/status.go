package model

// IngestionStatus is the orchestrator's current phase.
type IngestionStatus string

const (
	StatusIdle     IngestionStatus = "idle"
	StatusFetching IngestionStatus = "fetching"
	StatusError    IngestionStatus = "error"
)

// TrendDirection is the sign of the most recent incremental change.
type TrendDirection string

const (
	TrendUp   TrendDirection = "up"
	TrendDown TrendDirection = "down"
	// TrendNone is reported only for an empty history.
	TrendNone TrendDirection = "none"
)

// Summary holds dashboard statistics derived from a history.
type Summary struct {
	Region           string         `json:"region,omitempty"`
	LatestPrice      float64        `json:"latest_price"`
	LatestDate       string         `json:"latest_date,omitempty"`
	YoYChangePercent float64        `json:"yoy_change_percent"`
	Trend            TrendDirection `json:"trend"`
	SampleCount      int            `json:"sample_count"`
}
