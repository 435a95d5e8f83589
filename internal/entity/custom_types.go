package entity

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// TimeOfDay is an offset from midnight, used for daily validity windows.
type TimeOfDay time.Duration

const (
	timeOfDayLayout = "15:04:05"
	day             = 24 * time.Hour
)

var timeOfDayLayouts = []string{"15:04:05.999999999", "15:04:05", "15:04"}

var ErrInvalidTimeOfDay = errors.New("invalid time of day")

// ParseTimeOfDay accepts HH:MM and HH:MM:SS. Fractional seconds are
// truncated, the column only keeps whole seconds.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeOfDayLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return TimeOfDay(time.Duration(TimeOfDayOf(t)).Truncate(time.Second)), nil
		}
	}
	return 0, fmt.Errorf("%w %q, expected HH:MM or HH:MM:SS", ErrInvalidTimeOfDay, s)
}

// TimeOfDayOf drops the date part of t in its own location.
func TimeOfDayOf(t time.Time) TimeOfDay {
	h, m, s := t.Clock()
	return TimeOfDay(time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second +
		time.Duration(t.Nanosecond()))
}

func (t TimeOfDay) String() string {
	d := time.Duration(t)
	if d < 0 || d >= day {
		return fmt.Sprintf("invalid(%s)", d)
	}
	return time.Time{}.Add(d).Format(timeOfDayLayout)
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t TimeOfDay) Value() (driver.Value, error) {
	return t.String(), nil
}

func (t *TimeOfDay) Scan(value interface{}) error {
	if value == nil {
		return nil
	}

	switch v := value.(type) {
	case time.Time:
		*t = TimeOfDayOf(v)
	case []byte:
		parsed, err := ParseTimeOfDay(string(v))
		if err != nil {
			return err
		}
		*t = parsed
	case string:
		parsed, err := ParseTimeOfDay(v)
		if err != nil {
			return err
		}
		*t = parsed
	default:
		return fmt.Errorf("cannot scan type %T into TimeOfDay", value)
	}
	return nil
}
