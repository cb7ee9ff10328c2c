package tool

import (
	"context"
	"time"

	contractx "github.com/nexusbot/nexus-relay/engine/contract"
)

// Calendar is the slice of an external calendar service the scheduling
// tools need. The real implementation lives in pkg/googlecal.
type Calendar interface {
	CreateEvent(ctx context.Context, auth *contractx.CalendarAuth, ev EventInput) (EventRef, error)
	ListEvents(ctx context.Context, auth *contractx.CalendarAuth, from, to time.Time) ([]BusyInterval, error)
}

// EventInput describes a calendar event to create.
type EventInput struct {
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	Timezone    string
}

// EventRef identifies a created event.
type EventRef struct {
	ID   string `json:"id"`
	Link string `json:"link,omitempty"`
}

// BusyInterval is an occupied stretch of calendar time.
type BusyInterval struct {
	Start time.Time
	End   time.Time
}
