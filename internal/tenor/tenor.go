// Package tenor defines the maturity bucket grid used to project overlay
// modifications onto the EVE chart's time axis. The grid is pure data,
// defined once per deployment and consumed by the allocator and the stack
// decomposer.
package tenor

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrEmptyGrid is returned when a grid is constructed with no buckets.
	ErrEmptyGrid = errors.New("tenor: grid must contain at least one bucket")

	// ErrBoundsNotIncreasing is returned when bucket bounds are not
	// strictly increasing.
	ErrBoundsNotIncreasing = errors.New("tenor: bucket bounds must be strictly increasing")

	// ErrInvalidLabel is returned when a tenor label cannot be parsed.
	ErrInvalidLabel = errors.New("tenor: invalid tenor label")
)

// Bucket is one maturity time band. UpperBoundMonths is the bucket's upper
// boundary; the last bucket of a grid is treated as a catch-all for longer
// maturities.
type Bucket struct {
	Label            string `json:"label"`
	UpperBoundMonths int    `json:"upper_bound_months"`
}

// Grid is an ordered list of buckets with strictly increasing bounds.
type Grid []Bucket

// NewGrid validates and returns a grid.
func NewGrid(buckets []Bucket) (Grid, error) {
	if len(buckets) == 0 {
		return nil, ErrEmptyGrid
	}
	for i := 1; i < len(buckets); i++ {
		if buckets[i].UpperBoundMonths <= buckets[i-1].UpperBoundMonths {
			return nil, fmt.Errorf("%w: %s(%d) after %s(%d)",
				ErrBoundsNotIncreasing,
				buckets[i].Label, buckets[i].UpperBoundMonths,
				buckets[i-1].Label, buckets[i-1].UpperBoundMonths)
		}
	}
	return Grid(buckets), nil
}

// NewGridFromLabels builds a grid whose bounds are parsed from the labels
// themselves, e.g. ["1M","3M","1Y","5Y"].
func NewGridFromLabels(labels []string) (Grid, error) {
	buckets := make([]Bucket, 0, len(labels))
	for _, label := range labels {
		months, err := ParseLabel(label)
		if err != nil {
			return nil, err
		}
		buckets = append(buckets, Bucket{Label: label, UpperBoundMonths: months})
	}
	return NewGrid(buckets)
}

// ParseLabel converts tenor labels like "1M", "3M", "10Y", "2W" to months.
// Day and week labels are converted at 30 days to the month, with a floor
// of one month.
func ParseLabel(label string) (int, error) {
	s := strings.TrimSpace(strings.ToUpper(label))
	if len(s) < 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidLabel, label)
	}
	v, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidLabel, label)
	}
	switch s[len(s)-1] {
	case 'M':
		return v, nil
	case 'Y':
		return v * 12, nil
	case 'W':
		months := v * 7 / 30
		if months < 1 {
			months = 1
		}
		return months, nil
	case 'D':
		months := v / 30
		if months < 1 {
			months = 1
		}
		return months, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidLabel, label)
}

// Default returns the standard ALCO visualization grid: more detail at the
// short end, progressively coarser long tranches. The 30Y bucket catches
// everything beyond.
func Default() Grid {
	return Grid{
		{Label: "1M", UpperBoundMonths: 1},
		{Label: "3M", UpperBoundMonths: 3},
		{Label: "6M", UpperBoundMonths: 6},
		{Label: "1Y", UpperBoundMonths: 12},
		{Label: "2Y", UpperBoundMonths: 24},
		{Label: "3Y", UpperBoundMonths: 36},
		{Label: "5Y", UpperBoundMonths: 60},
		{Label: "7Y", UpperBoundMonths: 84},
		{Label: "10Y", UpperBoundMonths: 120},
		{Label: "15Y", UpperBoundMonths: 180},
		{Label: "20Y", UpperBoundMonths: 240},
		{Label: "30Y", UpperBoundMonths: 360},
	}
}

// Index returns the position of the bucket with the given label, or -1.
func (g Grid) Index(label string) int {
	for i, b := range g {
		if b.Label == label {
			return i
		}
	}
	return -1
}

// Labels returns the bucket labels in order.
func (g Grid) Labels() []string {
	out := make([]string, len(g))
	for i, b := range g {
		out[i] = b.Label
	}
	return out
}
