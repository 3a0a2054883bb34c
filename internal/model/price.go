package model

import (
	"time"

	"github.com/google/uuid"
)

// DateLayout is the calendar date format used for sampling dates.
const DateLayout = "2006-01-02"

// Record sources.
const (
	SourceDailySync      = "daily sync"
	SourceWeeklyBackfill = "weekly backfill"
	SourceImport         = "import"
)

// PriceRecord is a single price observation for one tracked material.
// Records are treated as immutable once created; history is append-only.
type PriceRecord struct {
	ID            string  `json:"id"`
	Date          string  `json:"date"`
	Category      string  `json:"category"`
	Region        string  `json:"region"`
	Specification string  `json:"specification"`
	Price         float64 `json:"price"`
	Unit          string  `json:"unit"`
	Source        string  `json:"source"`
	Change        float64 `json:"change"`
}

// Key identifies the (region, date) slot a record occupies.
func (r PriceRecord) Key() RecordKey {
	return RecordKey{Region: r.Region, Date: r.Date}
}

// RecordKey is the uniqueness key of a record within a history.
type RecordKey struct {
	Region string
	Date   string
}

// Quote is a validated (date, price, unit) tuple produced by extraction.
type Quote struct {
	Date  string  `json:"date"`
	Price float64 `json:"price"`
	Unit  string  `json:"unit"`
}

// NewRecord builds a record for material m from a validated quote. Change is
// left at zero; reconciliation assigns it.
func NewRecord(m MaterialConfig, q Quote, source string) PriceRecord {
	unit := q.Unit
	if unit == "" {
		unit = m.Unit
	}
	return PriceRecord{
		ID:            uuid.New().String(),
		Date:          q.Date,
		Category:      m.Name,
		Region:        m.Region,
		Specification: m.Spec,
		Price:         q.Price,
		Unit:          unit,
		Source:        source,
	}
}

// ParseDate parses a YYYY-MM-DD sampling date.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// FormatDate renders t as a sampling date.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}
