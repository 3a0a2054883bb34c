package history

import (
	"github.com/sells-group/copper-cli/internal/model"
)

// Summarize derives dashboard statistics from a date-ordered history.
//
// YoYChangePercent compares the last record to the first and is zero for
// fewer than two records or a zero first price. Trend follows only the sign
// of the last record's Change, not the year-over-year figure.
func Summarize(h []model.PriceRecord) model.Summary {
	s := model.Summary{
		Trend:       model.TrendNone,
		SampleCount: len(h),
	}
	if len(h) == 0 {
		return s
	}

	latest := h[len(h)-1]
	earliest := h[0]
	s.LatestPrice = latest.Price
	s.LatestDate = latest.Date

	if len(h) >= 2 && earliest.Price != 0 {
		s.YoYChangePercent = (latest.Price - earliest.Price) / earliest.Price * 100
	}

	if latest.Change >= 0 {
		s.Trend = model.TrendUp
	} else {
		s.Trend = model.TrendDown
	}
	return s
}

// SummarizeRegion summarizes the records of a single region.
func SummarizeRegion(h []model.PriceRecord, region string) model.Summary {
	s := Summarize(Region(h, region))
	s.Region = region
	return s
}
