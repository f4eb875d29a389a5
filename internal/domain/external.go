package domain

import (
	"fmt"
	"time"

	"github.com/alanyoungcy/actus/internal/fixed"
)

// ExternalKind is the shape of an external data value.
type ExternalKind uint8

const (
	ExternalNone ExternalKind = iota
	ExternalNumber
	ExternalTimestamp
)

func (k ExternalKind) String() string {
	switch k {
	case ExternalNumber:
		return "number"
	case ExternalTimestamp:
		return "timestamp"
	}
	return "none"
}

// ExternalData is a value supplied from outside the contract, such as a
// reset rate or the time of an underlying's credit event.
type ExternalData struct {
	kind ExternalKind
	num  fixed.Int
	ts   time.Time
}

func NoData() ExternalData               { return ExternalData{} }
func Number(x fixed.Int) ExternalData    { return ExternalData{kind: ExternalNumber, num: x} }
func Timestamp(t time.Time) ExternalData { return ExternalData{kind: ExternalTimestamp, ts: t} }

func (d ExternalData) Kind() ExternalKind { return d.kind }
func (d ExternalData) IsNone() bool       { return d.kind == ExternalNone }

// AsNumber returns the numeric value. A missing value is
// ErrDataNotAvailable; a timestamp is ErrMalformedExternalData.
func (d ExternalData) AsNumber() (fixed.Int, error) {
	switch d.kind {
	case ExternalNumber:
		return d.num, nil
	case ExternalNone:
		return fixed.Zero, ErrDataNotAvailable
	}
	return fixed.Zero, fmt.Errorf("%w: want number, got %s", ErrMalformedExternalData, d.kind)
}

// NumberOr returns the numeric value or fallback when no data was supplied.
func (d ExternalData) NumberOr(fallback fixed.Int) (fixed.Int, error) {
	if d.kind == ExternalNone {
		return fallback, nil
	}
	return d.AsNumber()
}

// AsTime returns the timestamp value.
func (d ExternalData) AsTime() (time.Time, error) {
	switch d.kind {
	case ExternalTimestamp:
		return d.ts, nil
	case ExternalNone:
		return time.Time{}, ErrDataNotAvailable
	}
	return time.Time{}, fmt.Errorf("%w: want timestamp, got %s", ErrMalformedExternalData, d.kind)
}

func (d ExternalData) String() string {
	switch d.kind {
	case ExternalNumber:
		return d.num.String()
	case ExternalTimestamp:
		return d.ts.UTC().Format(time.RFC3339)
	}
	return "none"
}

// DataSource says where the actor resolves external data from.
type DataSource string

const (
	// SourceMarket reads a data point from the data provider.
	SourceMarket DataSource = "market"
	// SourceUnderlying derives the value from the referenced underlying
	// asset held in the registry.
	SourceUnderlying DataSource = "underlying"
)

// DataRequirement describes the external value an event needs.
type DataRequirement struct {
	Source           DataSource
	MarketObjectCode string
	Timestamp        time.Time
	// Required data must be present; otherwise the engine falls back to a
	// value from the terms when nothing is published.
	Required bool
}
