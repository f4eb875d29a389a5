// Package engine implements the ACTUS contract types. Each variant derives
// the initial state and schedule of a contract and evaluates the payoff
// (POF) and state transition (STF) of every event it supports. Engines are
// pure: they hold no mutable state and never log.
package engine

import (
	"fmt"
	"time"

	"github.com/alanyoungcy/actus/internal/conventions"
	"github.com/alanyoungcy/actus/internal/domain"
	"github.com/alanyoungcy/actus/internal/fixed"
)

// Engine is implemented by every contract type.
type Engine interface {
	ContractType() domain.ContractType
	// Supports reports whether events of type t may appear in a schedule
	// of this contract type.
	Supports(t domain.EventType) bool
	ComputeInitialState(terms domain.Terms) (domain.State, error)
	ComputeSchedule(terms domain.Terms, start, end time.Time) ([]domain.Event, error)
	ComputePayoffForEvent(terms domain.Terms, state domain.State, ev domain.Event, ext domain.ExternalData) (fixed.Int, error)
	ComputeStateForEvent(terms domain.Terms, state domain.State, ev domain.Event, ext domain.ExternalData) (domain.State, error)
	// ExternalDataFor describes the external value ev needs, if any.
	ExternalDataFor(terms domain.Terms, ev domain.Event) (domain.DataRequirement, bool)
	// EventTime is the business-day shifted due time of ev.
	EventTime(terms domain.Terms, ev domain.Event) time.Time
}

// CreditEnhancement is implemented by contracts whose exercise is driven
// by the performance of an underlying asset.
type CreditEnhancement interface {
	Engine
	// NextUnderlyingEvent returns the exercise or settlement event implied
	// by the underlying's current state.
	NextUnderlyingEvent(terms domain.Terms, state domain.State, underlying domain.State) (domain.Event, bool)
	// Exposure is the covered amount of the underlying, as a magnitude.
	Exposure(terms domain.Terms, underlying domain.State) (fixed.Int, error)
}

type options struct {
	calendars *conventions.CalendarSet
}

// Option configures engines.
type Option func(*options)

// WithCalendars injects the calendars used for business-day shifting.
func WithCalendars(set *conventions.CalendarSet) Option {
	return func(o *options) {
		if set != nil {
			o.calendars = set
		}
	}
}

// New returns the engine for a contract type.
func New(ct domain.ContractType, opts ...Option) (Engine, error) {
	o := options{calendars: conventions.NewCalendarSet()}
	for _, opt := range opts {
		opt(&o)
	}
	b := base{calendars: o.calendars}

	switch ct {
	case domain.ContractPAM:
		return &PAM{base: b}, nil
	case domain.ContractANN:
		return &ANN{PAM: PAM{base: b}}, nil
	case domain.ContractCERTF:
		return &CERTF{base: b}, nil
	case domain.ContractSTK:
		return &STK{base: b}, nil
	case domain.ContractCEG, domain.ContractCEC:
		return &CEG{base: b, ct: ct}, nil
	case domain.ContractCOLLA:
		return &COLLA{base: b}, nil
	default:
		return nil, fmt.Errorf("%w: contract type %q", domain.ErrMalformedTerms, ct)
	}
}

// Set holds one engine per contract type sharing the same options.
type Set struct {
	engines map[domain.ContractType]Engine
}

// NewSet builds every engine variant.
func NewSet(opts ...Option) *Set {
	s := &Set{engines: make(map[domain.ContractType]Engine)}
	for _, ct := range []domain.ContractType{
		domain.ContractPAM, domain.ContractANN, domain.ContractCERTF, domain.ContractSTK,
		domain.ContractCEG, domain.ContractCEC, domain.ContractCOLLA,
	} {
		e, err := New(ct, opts...)
		if err != nil {
			panic(err)
		}
		s.engines[ct] = e
	}
	return s
}

// For returns the engine for ct.
func (s *Set) For(ct domain.ContractType) (Engine, error) {
	e, ok := s.engines[ct]
	if !ok {
		return nil, fmt.Errorf("%w: contract type %q", domain.ErrMalformedTerms, ct)
	}
	return e, nil
}

// WholeLifeSchedule generates the schedule over the contract's entire life.
// horizon bounds contracts without a maturity.
func WholeLifeSchedule(e Engine, terms domain.Terms, horizon time.Time) ([]domain.Event, error) {
	start, end := scheduleWindow(terms, horizon)
	if end.IsZero() {
		return nil, fmt.Errorf("%w: contract has no maturity and no horizon was given", domain.ErrMalformedTerms)
	}
	return e.ComputeSchedule(terms, start, end)
}

func unsupported(ct domain.ContractType, ev domain.Event) error {
	return fmt.Errorf("%w: %s does not support %s", domain.ErrUnsupportedEvent, ct, ev.Type)
}

func eventSet(types ...domain.EventType) map[domain.EventType]bool {
	m := make(map[domain.EventType]bool, len(types))
	for _, t := range types {
		m[t] = true
	}
	return m
}
