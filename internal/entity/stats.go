package entity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// StatDimension is the closed set of click columns that can be grouped on.
type StatDimension string

const (
	DimensionBrowser StatDimension = "browser"
	DimensionOS      StatDimension = "os"
	DimensionDevice  StatDimension = "device"
	DimensionCountry StatDimension = "country"
)

func (d StatDimension) Valid() bool {
	switch d {
	case DimensionBrowser, DimensionOS, DimensionDevice, DimensionCountry:
		return true
	}
	return false
}

const UnknownValue = "unknown"

type Period string

const (
	PeriodAll   Period = ""
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

func ParsePeriod(s string) (Period, error) {
	switch p := Period(s); p {
	case PeriodAll, PeriodDay, PeriodWeek, PeriodMonth:
		return p, nil
	}
	return "", fmt.Errorf("unknown period %q, expected day, week or month", s)
}

// Since returns the lower bound of the period relative to now, nil when unbounded.
func (p Period) Since(now time.Time) *time.Time {
	var d time.Duration
	switch p {
	case PeriodDay:
		d = 24 * time.Hour
	case PeriodWeek:
		d = 7 * 24 * time.Hour
	case PeriodMonth:
		d = 30 * 24 * time.Hour
	default:
		return nil
	}
	since := now.Add(-d)
	return &since
}

type DimensionStat struct {
	Value  string `json:"-" db:"value"`
	Total  int64  `json:"total" db:"total"`
	Unique int64  `json:"unique" db:"uniq"`
}

// Breakdown keeps rows in query order and encodes as a JSON object.
type Breakdown []DimensionStat

func (b Breakdown) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, row := range b {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(row.Value)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(row)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

type GuestStats struct {
	Total  int64 `json:"total" db:"total"`
	Unique int64 `json:"unique" db:"uniq"`
	Proxy  int64 `json:"proxy" db:"proxy"`
}
