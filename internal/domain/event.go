package domain

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventType is the kind of a contract event. The numeric code doubles as
// the precedence of events scheduled at the same instant.
type EventType uint8

const (
	EventNE   EventType = iota // no event
	EventAD                    // analysis / monitoring
	EventISS                   // issuance
	EventIED                   // initial exchange
	EventFP                    // fee payment
	EventPR                    // principal redemption
	EventPD                    // principal drawing
	EventPY                    // penalty payment
	EventPP                    // principal prepayment
	EventIP                    // interest payment
	EventIPCI                  // interest capitalization
	EventCE                    // credit event
	EventRRF                   // rate reset fixed
	EventRR                    // rate reset variable
	EventDIF                   // dividend fixing
	EventDV                    // dividend payment
	EventPRD                   // purchase
	EventCOF                   // coupon fixing
	EventCOP                   // coupon payment
	EventREF                   // redemption fixing
	EventREP                   // redemption payment
	EventSPF                   // split fixing
	EventSPS                   // split settlement
	EventTD                    // termination
	EventSC                    // scaling index fixing
	EventIPCB                  // interest calculation base fixing
	EventXD                    // exercise
	EventSTD                   // settlement
	EventMD                    // maturity
)

var eventTypeNames = [...]string{
	"NE", "AD", "ISS", "IED", "FP", "PR", "PD", "PY", "PP", "IP", "IPCI", "CE",
	"RRF", "RR", "DIF", "DV", "PRD", "COF", "COP", "REF", "REP", "SPF", "SPS",
	"TD", "SC", "IPCB", "XD", "STD", "MD",
}

func (t EventType) Valid() bool { return int(t) < len(eventTypeNames) }

func (t EventType) String() string {
	if !t.Valid() {
		return fmt.Sprintf("EventType(%d)", uint8(t))
	}
	return eventTypeNames[t]
}

// ParseEventType resolves an event type by its short name.
func ParseEventType(s string) (EventType, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for i, name := range eventTypeNames {
		if name == s {
			return EventType(i), nil
		}
	}
	return EventNE, fmt.Errorf("%w: unknown event type %q", ErrMalformedEvent, s)
}

func (t EventType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *EventType) UnmarshalText(b []byte) error {
	v, err := ParseEventType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Event identifies one obligation of a contract. The zero value is the
// "no event" sentinel; it is distinct from any real event, including one
// scheduled at Unix time 0.
type Event struct {
	Type         EventType
	ScheduleTime time.Time
}

// NoEvent is the sentinel returned when nothing is scheduled.
var NoEvent = Event{}

// NewEvent builds an event with its schedule time normalised to whole UTC
// seconds, the resolution of the encoding. NE carries no time, so it always
// yields NoEvent; use MakeEvent for input that must be checked.
func NewEvent(t EventType, at time.Time) Event {
	if t == EventNE {
		return NoEvent
	}
	return Event{Type: t, ScheduleTime: time.Unix(at.Unix(), 0).UTC()}
}

// MakeEvent is NewEvent for untrusted input: it rejects an NE event with a
// schedule time instead of dropping the time.
func MakeEvent(t EventType, at time.Time) (Event, error) {
	if err := (Event{Type: t, ScheduleTime: at}).Validate(); err != nil {
		return NoEvent, err
	}
	return NewEvent(t, at), nil
}

// Validate reports whether e survives Encode and Decode unchanged.
func (e Event) Validate() error {
	if !e.Type.Valid() {
		return fmt.Errorf("%w: type code %d", ErrMalformedEvent, e.Type)
	}
	if e.Type == EventNE && !e.ScheduleTime.IsZero() {
		return fmt.Errorf("%w: NE event with a schedule time", ErrMalformedEvent)
	}
	return nil
}

func (e Event) IsNone() bool { return e.Type == EventNE && e.ScheduleTime.IsZero() }

func (e Event) String() string {
	if e.IsNone() {
		return "NE"
	}
	return fmt.Sprintf("%s@%s", e.Type, e.ScheduleTime.UTC().Format(time.RFC3339))
}

// Equal compares events by type and instant.
func (e Event) Equal(o Event) bool {
	return e.Type == o.Type && e.ScheduleTime.Equal(o.ScheduleTime)
}

// Less orders events by schedule time, then by type code. Unset times sort
// last.
func Less(a, b Event) bool {
	az, bz := a.ScheduleTime.IsZero(), b.ScheduleTime.IsZero()
	switch {
	case az != bz:
		return bz
	case !a.ScheduleTime.Equal(b.ScheduleTime):
		return a.ScheduleTime.Before(b.ScheduleTime)
	default:
		return a.Type < b.Type
	}
}

// Encode packs e into 32 bytes: byte 0 is the type code and bytes 1..31 are
// the schedule time as signed big-endian Unix seconds. The sentinel encodes
// as the zero hash. An event that would not decode back to itself is
// rejected.
func Encode(e Event) (common.Hash, error) {
	var h common.Hash
	if err := e.Validate(); err != nil {
		return h, err
	}
	if e.IsNone() {
		return h, nil
	}
	h[0] = byte(e.Type)
	sec := e.ScheduleTime.Unix()
	if sec < 0 {
		for i := 1; i < 24; i++ {
			h[i] = 0xff
		}
	}
	binary.BigEndian.PutUint64(h[24:], uint64(sec))
	return h, nil
}

// Decode is the inverse of Encode.
func Decode(h common.Hash) (Event, error) {
	t := EventType(h[0])
	if !t.Valid() {
		return NoEvent, fmt.Errorf("%w: type code %d", ErrMalformedEvent, h[0])
	}
	sec := int64(binary.BigEndian.Uint64(h[24:]))
	var ext byte
	if sec < 0 {
		ext = 0xff
	}
	for i := 1; i < 24; i++ {
		if h[i] != ext {
			return NoEvent, fmt.Errorf("%w: timestamp out of range", ErrMalformedEvent)
		}
	}
	if t == EventNE {
		if sec != 0 {
			return NoEvent, fmt.Errorf("%w: NE event with a schedule time", ErrMalformedEvent)
		}
		return NoEvent, nil
	}
	return Event{Type: t, ScheduleTime: time.Unix(sec, 0).UTC()}, nil
}

// ParseEvent decodes a 0x-prefixed hex encoding.
func ParseEvent(s string) (Event, error) {
	b, err := hexBytes(s)
	if err != nil || len(b) != common.HashLength {
		return NoEvent, fmt.Errorf("%w: %q", ErrMalformedEvent, s)
	}
	return Decode(common.BytesToHash(b))
}

func hexBytes(s string) ([]byte, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return nil, fmt.Errorf("missing 0x prefix")
	}
	return common.FromHex(s), nil
}

type eventJSON struct {
	Type         EventType `json:"type"`
	ScheduleTime time.Time `json:"scheduleTime,omitzero"`
	ID           string    `json:"id,omitempty"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	h, err := Encode(e)
	if err != nil {
		return nil, err
	}
	return json.Marshal(eventJSON{Type: e.Type, ScheduleTime: e.ScheduleTime, ID: h.Hex()})
}

// UnmarshalJSON accepts either the object form or the hex encoding.
func (e *Event) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		ev, err := ParseEvent(s)
		if err != nil {
			return err
		}
		*e = ev
		return nil
	}
	var raw eventJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	ev, err := MakeEvent(raw.Type, raw.ScheduleTime)
	if err != nil {
		return err
	}
	*e = ev
	return nil
}
