package model

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// EventStatus is the lifecycle status of an event.
type EventStatus int

const (
	StatusNew EventStatus = iota + 1
	StatusAcknowledged
	StatusSuppressed
	StatusClosed
	StatusCleared
	StatusDropped
	StatusAged
)

// Severity of an event, ordered from clear to critical.
type Severity int

const (
	SeverityClear Severity = iota
	SeverityDebug
	SeverityInfo
	SeverityWarning
	SeverityError
	SeverityCritical
)

// EventDetail is a named, multi-valued detail attached to an event.
type EventDetail struct {
	Name   string   `json:"name" bson:"name"`
	Values []string `json:"values" bson:"values"`
}

// EventActor identifies the element (and optional sub-element) an event is about.
type EventActor struct {
	ElementIdentifier    string `json:"element_identifier" bson:"element_identifier"`
	ElementSubIdentifier string `json:"element_sub_identifier,omitempty" bson:"element_sub_identifier,omitempty"`
}

// EventSummary is the stored, de-duplicated view of an event.
// Timestamps are epoch milliseconds.
type EventSummary struct {
	UUID         string        `json:"uuid" bson:"_id"`
	Fingerprint  string        `json:"fingerprint" bson:"fingerprint"`
	Status       EventStatus   `json:"status" bson:"status"`
	Severity     Severity      `json:"severity" bson:"severity"`
	Count        int           `json:"count" bson:"count"`
	FirstSeen    int64         `json:"first_seen" bson:"first_seen"`
	LastSeen     int64         `json:"last_seen" bson:"last_seen"`
	StatusChange int64         `json:"status_change" bson:"status_change"`
	UpdateTime   int64         `json:"update_time" bson:"update_time"`
	EventClass   string        `json:"event_class,omitempty" bson:"event_class,omitempty"`
	Summary      string        `json:"summary,omitempty" bson:"summary,omitempty"`
	Message      string        `json:"message,omitempty" bson:"message,omitempty"`
	Actor        EventActor    `json:"actor" bson:"actor"`
	Details      []EventDetail `json:"details,omitempty" bson:"details,omitempty"`
}

// Validate checks the fields required to store and index an event.
func (e *EventSummary) Validate() error {
	if e == nil {
		return fmt.Errorf("%w: nil event", ErrInvalidEvent)
	}
	if _, err := uuid.Parse(e.UUID); err != nil {
		return fmt.Errorf("%w: bad uuid %q: %v", ErrInvalidEvent, e.UUID, err)
	}
	if e.Fingerprint == "" {
		return fmt.Errorf("%w: missing fingerprint", ErrInvalidEvent)
	}
	return nil
}

// Detail returns the values of the named detail, or nil.
func (e *EventSummary) Detail(name string) []string {
	for _, d := range e.Details {
		if d.Name == name {
			return d.Values
		}
	}
	return nil
}

// DetailType is the indexing type of a configured event detail.
type DetailType string

const (
	DetailString    DetailType = "string"
	DetailInteger   DetailType = "integer"
	DetailLong      DetailType = "long"
	DetailFloat     DetailType = "float"
	DetailDouble    DetailType = "double"
	DetailIPAddress DetailType = "ip_address"
	DetailPath      DetailType = "path"
)

// ParseDetailType parses a detail type name, case-insensitively.
func ParseDetailType(s string) (DetailType, error) {
	t := DetailType(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case DetailString, DetailInteger, DetailLong, DetailFloat, DetailDouble, DetailIPAddress, DetailPath:
		return t, nil
	}
	return "", fmt.Errorf("unknown detail type: %q", s)
}

// EventDetailItem configures one indexed event detail.
// Only Key and Type affect indexing; Name is display metadata.
type EventDetailItem struct {
	Key  string     `json:"key" yaml:"key"`
	Name string     `json:"name" yaml:"name"`
	Type DetailType `json:"type" yaml:"type"`
}

func (i EventDetailItem) String() string {
	return fmt.Sprintf("%s(%s, %q)", i.Key, i.Type, i.Name)
}

// Clone returns a deep copy of the event.
func (e *EventSummary) Clone() *EventSummary {
	if e == nil {
		return nil
	}
	c := *e
	if e.Details != nil {
		c.Details = make([]EventDetail, len(e.Details))
		for i, d := range e.Details {
			c.Details[i] = EventDetail{Name: d.Name, Values: append([]string(nil), d.Values...)}
		}
	}
	return &c
}
