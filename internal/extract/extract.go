// Package extract turns untrusted model output into validated price quotes.
package extract

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/width"

	"github.com/sells-group/copper-cli/internal/model"
)

// Bounds is the inclusive sanity range for a plausible price.
type Bounds struct {
	Min float64
	Max float64
}

// DefaultBounds fits electrolytic copper quoted in yuan per metric ton.
var DefaultBounds = Bounds{Min: 30000, Max: 200000}

// DefaultUnit is used when neither the text nor the material names a unit.
const DefaultUnit = "元/吨"

// Extractor parses and validates quotes. The zero value uses DefaultBounds
// and DefaultUnit. Extracted quotes carry a unit only when the answer names
// one; ResolveUnit fills the rest.
type Extractor struct {
	Bounds      Bounds
	DefaultUnit string
}

// New returns an Extractor with the given bounds and fallback unit.
func New(b Bounds, defaultUnit string) Extractor {
	return Extractor{Bounds: b, DefaultUnit: defaultUnit}
}

func (e Extractor) bounds() Bounds {
	if e.Bounds.Min == 0 && e.Bounds.Max == 0 {
		return DefaultBounds
	}
	return e.Bounds
}

// ResolveUnit returns named if set, then the material's unit, then the
// extractor default.
func (e Extractor) ResolveUnit(named, material string) string {
	switch {
	case named != "":
		return named
	case material != "":
		return material
	case e.DefaultUnit != "":
		return e.DefaultUnit
	default:
		return DefaultUnit
	}
}

var (
	// A run of digits joined by commas with an optional decimal tail,
	// optionally followed by 万 (ten thousand). Whether the commas are
	// thousands separators or list separators is decided in candidates.
	numberRe = regexp.MustCompile(`(\d+(?:,\d+)*(?:\.\d+)?)(\s*万)?`)

	groupRe = regexp.MustCompile(`^\d{3}(?:\.\d+)?$`)

	isoDateRe = regexp.MustCompile(`(\d{4})[-/.](\d{1,2})[-/.](\d{1,2})`)
	cjkDateRe = regexp.MustCompile(`(\d{4})\s*年\s*(\d{1,2})\s*月\s*(\d{1,2})\s*日`)
)

// knownUnits are recognized unit spellings after width folding.
var knownUnits = []string{
	"元/吨",
	"元/噸",
	"美元/吨",
	"USD/t",
	"USD/mt",
	"USD/ton",
	"CNY/t",
	"$/t",
	"yuan/ton",
}

// Current extracts a single quote from free text. expectedDate, when set,
// is the sampling date the caller asked about and takes precedence over any
// date found in the text.
func (e Extractor) Current(raw, expectedDate string) (model.Quote, error) {
	text := normalize(raw)
	if text == "" {
		return model.Quote{}, newExtractionError(raw, "empty response")
	}

	price, ok := e.findPrice(text)
	if !ok {
		return model.Quote{}, newExtractionError(raw, "no price within %.0f-%.0f", e.bounds().Min, e.bounds().Max)
	}

	date := expectedDate
	if date == "" {
		date = findDate(text)
	}
	date, err := checkDate(date)
	if err != nil {
		return model.Quote{}, newExtractionError(raw, "%s", err.Error())
	}

	return model.Quote{Date: date, Price: price, Unit: findUnit(text)}, nil
}

// Validate applies the range and date checks to an already-built quote.
func (e Extractor) Validate(q model.Quote) error {
	if err := e.checkPrice(q.Price); err != nil {
		return newExtractionError("", "%s", err.Error())
	}
	if _, err := checkDate(q.Date); err != nil {
		return newExtractionError("", "%s", err.Error())
	}
	return nil
}

func (e Extractor) findPrice(text string) (float64, bool) {
	for _, m := range numberRe.FindAllStringSubmatch(text, -1) {
		wan := strings.TrimSpace(m[2]) == "万"
		for _, c := range candidates(m[1]) {
			v, err := strconv.ParseFloat(c.digits, 64)
			if err != nil {
				continue
			}
			if wan && c.last {
				v = math.Round(v*10000*100) / 100
			}
			if e.checkPrice(v) == nil {
				return v, true
			}
		}
	}
	return 0, false
}

type candidate struct {
	digits string
	// last is set when the candidate ends where the token ends, so a
	// trailing 万 applies to it.
	last bool
}

// candidates reads a comma-joined token. "71,850" is one thousands-grouped
// number; "300,71500" is two numbers. A grouped token that turns out to be
// out of range is also tried part by part.
func candidates(token string) []candidate {
	parts := strings.Split(token, ",")
	var out []candidate
	if len(parts) == 1 || thousandsGrouped(parts) {
		out = append(out, candidate{digits: strings.Join(parts, ""), last: true})
		if len(parts) == 1 {
			return out
		}
	}
	for i, p := range parts {
		out = append(out, candidate{digits: p, last: i == len(parts)-1})
	}
	return out
}

func thousandsGrouped(parts []string) bool {
	if len(parts[0]) > 3 {
		return false
	}
	for _, p := range parts[1:] {
		if !groupRe.MatchString(p) {
			return false
		}
	}
	return true
}

func (e Extractor) checkPrice(v float64) error {
	b := e.bounds()
	switch {
	case math.IsNaN(v) || math.IsInf(v, 0):
		return eris.New("price is not a finite number")
	case v < b.Min || v > b.Max:
		return eris.Errorf("price %.2f outside %.0f-%.0f", v, b.Min, b.Max)
	}
	return nil
}

// normalize folds full-width characters (digits, commas, slashes) to their
// ASCII forms and trims surrounding space.
func normalize(raw string) string {
	return strings.TrimSpace(width.Narrow.String(raw))
}

func findDate(text string) string {
	if m := isoDateRe.FindStringSubmatch(text); m != nil {
		return joinDate(m[1], m[2], m[3])
	}
	if m := cjkDateRe.FindStringSubmatch(text); m != nil {
		return joinDate(m[1], m[2], m[3])
	}
	return ""
}

func joinDate(y, m, d string) string {
	if len(m) == 1 {
		m = "0" + m
	}
	if len(d) == 1 {
		d = "0" + d
	}
	return y + "-" + m + "-" + d
}

func checkDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", eris.New("missing date")
	}
	if _, err := model.ParseDate(s); err != nil {
		return "", eris.Errorf("date %q is not YYYY-MM-DD", s)
	}
	return s, nil
}

func findUnit(text string) string {
	best, bestIdx := "", -1
	for _, u := range knownUnits {
		idx := strings.Index(text, u)
		if idx < 0 {
			continue
		}
		if bestIdx < 0 || idx < bestIdx || (idx == bestIdx && len(u) > len(best)) {
			best, bestIdx = u, idx
		}
	}
	return best
}
