package script

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Range is an inclusive integer span of array task indices.
type Range struct {
	Low  int
	High int
}

func (r Range) Len() int { return r.High - r.Low + 1 }

// Indices returns every integer in [Low, High] in ascending order.
func (r Range) Indices() []int {
	out := make([]int, 0, r.Len())
	for i := r.Low; i <= r.High; i++ {
		out = append(out, i)
	}
	return out
}

// String renders the SLURM array form, inclusive on both ends.
func (r Range) String() string {
	return strconv.Itoa(r.Low) + "-" + strconv.Itoa(r.High)
}

// FormatDuration converts a time limit into SLURM's D-HH:MM:SS form.
// Days are unpadded; hours, minutes and seconds are zero-padded.
// Sub-second precision is truncated. d must be non-negative.
func FormatDuration(d time.Duration) string {
	total := int64(d / time.Second)
	days := total / 86400
	rem := total % 86400
	hours := rem / 3600
	rem %= 3600
	minutes := rem / 60
	seconds := rem % 60
	return fmt.Sprintf("%d-%02d:%02d:%02d", days, hours, minutes, seconds)
}

var arrayRangeRe = regexp.MustCompile(`^(\d+)-(\d+)$`)

// ParseArraySpec normalizes an array specification into an inclusive Range.
//
// Accepted forms:
//   - Range: taken as-is
//   - int n (n >= 0): the span [0, n] inclusive of n itself
//   - string "low-high": bounds inclusive on both ends
//   - []int: bounds taken from the first and last element
//
// Step syntax ("0-10:2") is deliberately rejected: the scheduler re-numbers
// tasks under it and per-index fan-out would mis-iterate.
func ParseArraySpec(v any) (Range, error) {
	switch x := v.(type) {
	case Range:
		return validateRange(x)
	case int:
		if x < 0 {
			return Range{}, fmt.Errorf("array spec: negative count %d", x)
		}
		return Range{Low: 0, High: x}, nil
	case string:
		s := strings.TrimSpace(x)
		m := arrayRangeRe.FindStringSubmatch(s)
		if m == nil {
			if strings.Contains(s, ":") {
				return Range{}, fmt.Errorf("array spec %q: step syntax is not supported", x)
			}
			return Range{}, fmt.Errorf("array spec %q: want \"low-high\"", x)
		}
		low, err := strconv.Atoi(m[1])
		if err != nil {
			return Range{}, fmt.Errorf("array spec %q: %w", x, err)
		}
		high, err := strconv.Atoi(m[2])
		if err != nil {
			return Range{}, fmt.Errorf("array spec %q: %w", x, err)
		}
		return validateRange(Range{Low: low, High: high})
	case []int:
		if len(x) == 0 {
			return Range{}, fmt.Errorf("array spec: empty index list")
		}
		return validateRange(Range{Low: x[0], High: x[len(x)-1]})
	default:
		return Range{}, fmt.Errorf("array spec: unsupported type %T", v)
	}
}

func validateRange(r Range) (Range, error) {
	if r.Low < 0 {
		return Range{}, fmt.Errorf("array spec %s: negative lower bound", r)
	}
	if r.High < r.Low {
		return Range{}, fmt.Errorf("array spec %s: reversed bounds", r)
	}
	return r, nil
}
