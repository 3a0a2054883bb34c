package extract

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// maxRawLen caps how much of the offending text an ExtractionError keeps.
const maxRawLen = 2000

// ExtractionError reports text that held no plausible, valid price quote.
// Raw keeps the offending input for diagnostics.
type ExtractionError struct {
	Reason string
	Raw    string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract: %s", e.Reason)
}

func newExtractionError(raw, format string, args ...any) *ExtractionError {
	if len(raw) > maxRawLen {
		cut := maxRawLen
		for cut > 0 && !utf8.RuneStart(raw[cut]) {
			cut--
		}
		raw = raw[:cut]
	}
	return &ExtractionError{Reason: fmt.Sprintf(format, args...), Raw: raw}
}

// IsExtractionError reports whether err (or anything it wraps) is an
// ExtractionError.
func IsExtractionError(err error) bool {
	var ee *ExtractionError
	return errors.As(err, &ee)
}
