package lock

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	verrouerrors "github.com/florian-lefebvre/verrou/errors"
)

// ParseDuration resolves a human duration string into a time.Duration.
// It accepts Go duration syntax ("2s", "1h30m") as well as bare integers,
// which are interpreted as milliseconds ("1500" is 1.5s). Negative or
// unparsable values fail with ErrInvalidDuration.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty string", verrouerrors.ErrInvalidDuration)
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		if ms < 0 {
			return 0, fmt.Errorf("%w: %q is negative", verrouerrors.ErrInvalidDuration, s)
		}
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", verrouerrors.ErrInvalidDuration, s)
	}
	if d < 0 {
		return 0, fmt.Errorf("%w: %q is negative", verrouerrors.ErrInvalidDuration, s)
	}
	return d, nil
}
