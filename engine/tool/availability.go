package tool

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/nexusbot/nexus-relay/engine/contract"
)

const (
	defaultWindowDays = 10
	maxWindowDays     = 31
	businessOpenHour  = 9
	businessCloseHour = 18
)

// FreeSlot is one open interval within business hours.
type FreeSlot struct {
	Date  string `json:"date"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// AvailabilityOutput lists the free slots in the queried window.
type AvailabilityOutput struct {
	Slots []FreeSlot `json:"slots"`
}

func checkAvailabilityHandler(cal Calendar) Handler {
	return func(ctx context.Context, args map[string]any, profile *contractx.TenantProfile) contractx.ToolResult {
		if cal == nil || profile == nil || profile.CalendarAuth == nil {
			return contractx.ToolResult{
				Tool:  ToolCheckAvailability,
				Error: "the calendar is not connected for this business",
			}
		}

		loc := tenantLocation(profile)
		startDay := time.Now().In(loc)
		if raw, ok := requiredString(args, "startDate"); ok {
			parsed, err := time.ParseInLocation("2006-01-02", raw, loc)
			if err != nil {
				return contractx.ToolResult{
					Tool:  ToolCheckAvailability,
					Error: fmt.Sprintf("startDate %q is not a valid date (expected YYYY-MM-DD)", raw),
				}
			}
			startDay = parsed
		}

		days := defaultWindowDays
		if raw, ok := args["days"].(float64); ok && raw >= 1 {
			days = int(raw)
			if days > maxWindowDays {
				days = maxWindowDays
			}
		}

		from := atHour(startDay, businessOpenHour, loc)
		to := atHour(startDay.AddDate(0, 0, days-1), businessCloseHour, loc)

		busy, err := cal.ListEvents(ctx, profile.CalendarAuth, from, to)
		if err != nil {
			log.Error().Err(err).Str("tenant", profile.ID).Msg("calendar listing failed")
			return contractx.ToolResult{
				Tool:  ToolCheckAvailability,
				Error: fmt.Sprintf("could not read the calendar: %v", err),
			}
		}

		return contractx.ToolResult{
			Tool:   ToolCheckAvailability,
			Result: AvailabilityOutput{Slots: freeSlots(startDay, days, busy, loc)},
		}
	}
}

// freeSlots computes, per day, the complement of the busy intervals
// within business hours.
func freeSlots(startDay time.Time, days int, busy []BusyInterval, loc *time.Location) []FreeSlot {
	sorted := append([]BusyInterval(nil), busy...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	slots := make([]FreeSlot, 0, days)
	for d := 0; d < days; d++ {
		day := startDay.AddDate(0, 0, d)
		open := atHour(day, businessOpenHour, loc)
		close := atHour(day, businessCloseHour, loc)

		cursor := open
		for _, interval := range sorted {
			start := interval.Start.In(loc)
			end := interval.End.In(loc)
			if !end.After(open) || !start.Before(close) {
				continue
			}
			if start.Before(cursor) {
				if end.After(cursor) {
					cursor = end
				}
				continue
			}
			if start.After(cursor) {
				slots = append(slots, slot(day, cursor, minTime(start, close)))
			}
			if end.After(cursor) {
				cursor = end
			}
		}
		if cursor.Before(close) {
			slots = append(slots, slot(day, cursor, close))
		}
	}
	return slots
}

func slot(day, start, end time.Time) FreeSlot {
	return FreeSlot{
		Date:  day.Format("2006-01-02"),
		Start: start.Format("15:04"),
		End:   end.Format("15:04"),
	}
}

func atHour(day time.Time, hour int, loc *time.Location) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, loc)
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
