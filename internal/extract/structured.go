package extract

import (
	"encoding/json"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/copper-cli/internal/model"
)

// Structured parses a single JSON quote of the shape
// {"price": number, "date": "YYYY-MM-DD", "unit": string}. Every field is
// checked; declared schema compliance on the model side is not trusted.
// A missing date falls back to expectedDate.
func (e Extractor) Structured(raw, expectedDate string) (model.Quote, error) {
	cleaned := cleanJSON(raw, '{', '}')

	var obj map[string]any
	if err := json.Unmarshal([]byte(cleaned), &obj); err != nil {
		return model.Quote{}, newExtractionError(raw, "response is not a JSON object: %s", err)
	}

	q, err := e.quoteFromMap(obj, expectedDate)
	if err != nil {
		return model.Quote{}, newExtractionError(raw, "%s", err.Error())
	}
	return q, nil
}

// IsJSONObject reports whether raw holds a JSON object once markdown fences
// and surrounding prose are stripped. A failed Structured parse of such text
// means the model answered in the agreed shape with bad fields, so free-text
// extraction must not be tried on it.
func IsJSONObject(raw string) bool {
	var obj map[string]any
	return json.Unmarshal([]byte(cleanJSON(raw, '{', '}')), &obj) == nil
}

// History parses a JSON array of quotes. Malformed entries are dropped, not
// fatal; an empty result means the source had no data. Duplicate dates keep
// the first entry and the result is ordered by date.
func (e Extractor) History(raw string) ([]model.Quote, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, newExtractionError(raw, "empty response")
	}

	entries, err := decodeEntries(text)
	if err != nil {
		return nil, newExtractionError(raw, "%s", err.Error())
	}

	seen := make(map[string]bool, len(entries))
	out := make([]model.Quote, 0, len(entries))
	dropped := 0
	for i, entry := range entries {
		obj, ok := entry.(map[string]any)
		if !ok {
			dropped++
			continue
		}
		q, err := e.quoteFromMap(obj, "")
		if err != nil {
			zap.L().Debug("extract: dropping history entry",
				zap.Int("index", i),
				zap.Error(err),
			)
			dropped++
			continue
		}
		if seen[q.Date] {
			dropped++
			continue
		}
		seen[q.Date] = true
		out = append(out, q)
	}

	if dropped > 0 {
		zap.L().Warn("extract: dropped malformed history entries",
			zap.Int("dropped", dropped),
			zap.Int("kept", len(out)),
		)
	}

	slices.SortStableFunc(out, func(a, b model.Quote) int {
		return strings.Compare(a.Date, b.Date)
	})
	return out, nil
}

func decodeEntries(text string) ([]any, error) {
	var arr []any
	if err := json.Unmarshal([]byte(cleanJSON(text, '[', ']')), &arr); err == nil {
		return arr, nil
	}

	// Some models wrap the list in an object.
	var obj map[string]any
	if err := json.Unmarshal([]byte(cleanJSON(text, '{', '}')), &obj); err != nil {
		return nil, eris.New("response is not a JSON array")
	}
	for _, key := range []string{"prices", "data", "history", "items"} {
		if list, ok := obj[key].([]any); ok {
			return list, nil
		}
	}
	return nil, eris.New("response is not a JSON array")
}

func (e Extractor) quoteFromMap(obj map[string]any, fallbackDate string) (model.Quote, error) {
	rawPrice, ok := obj["price"]
	if !ok || rawPrice == nil {
		return model.Quote{}, eris.New("missing price")
	}
	price, ok := rawPrice.(float64)
	if !ok {
		return model.Quote{}, eris.Errorf("price has type %T, want number", rawPrice)
	}
	if err := e.checkPrice(price); err != nil {
		return model.Quote{}, err
	}

	date := fallbackDate
	if rawDate, ok := obj["date"]; ok && rawDate != nil {
		s, ok := rawDate.(string)
		if !ok {
			return model.Quote{}, eris.Errorf("date has type %T, want string", rawDate)
		}
		if strings.TrimSpace(s) != "" {
			date = s
		}
	}
	date, err := checkDate(date)
	if err != nil {
		return model.Quote{}, err
	}

	var unit string
	if rawUnit, ok := obj["unit"].(string); ok {
		unit = normalize(rawUnit)
	}

	return model.Quote{Date: date, Price: price, Unit: unit}, nil
}

// cleanJSON strips markdown fences and surrounding prose, keeping the span
// from the first open to the last close delimiter.
func cleanJSON(text string, open, close byte) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.IndexByte(text, open)
	end := strings.LastIndexByte(text, close)
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
