package tool

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/nexusbot/nexus-relay/engine/contract"
)

const (
	appointmentDuration = time.Hour
	defaultTimezone     = "America/Mexico_City"
)

// ScheduleOutput confirms a created appointment.
type ScheduleOutput struct {
	Confirmed    bool   `json:"confirmed"`
	EventID      string `json:"event_id"`
	Link         string `json:"link,omitempty"`
	Start        string `json:"start"`
	End          string `json:"end"`
	CustomerName string `json:"customer_name"`
	Service      string `json:"service"`
}

func scheduleAppointmentHandler(cal Calendar) Handler {
	return func(ctx context.Context, args map[string]any, profile *contractx.TenantProfile) contractx.ToolResult {
		for _, field := range []string{"dateTime", "customerName", "service"} {
			if _, ok := requiredString(args, field); !ok {
				return contractx.ToolResult{
					Tool:  ToolScheduleAppointment,
					Error: fmt.Sprintf("%s is required to schedule an appointment", field),
				}
			}
		}
		rawStart, _ := requiredString(args, "dateTime")
		customerName, _ := requiredString(args, "customerName")
		service, _ := requiredString(args, "service")

		start, err := parseDateTime(rawStart, tenantLocation(profile))
		if err != nil {
			return contractx.ToolResult{
				Tool:  ToolScheduleAppointment,
				Error: fmt.Sprintf("dateTime %q is not a valid date-time", rawStart),
			}
		}
		end := start.Add(appointmentDuration)

		if cal == nil || profile == nil || profile.CalendarAuth == nil {
			return contractx.ToolResult{
				Tool:  ToolScheduleAppointment,
				Error: "the calendar is not connected for this business",
			}
		}

		ref, err := cal.CreateEvent(ctx, profile.CalendarAuth, EventInput{
			Summary:     fmt.Sprintf("%s - %s", service, customerName),
			Description: fmt.Sprintf("Appointment booked by the bot. Customer: %s.", customerName),
			Start:       start,
			End:         end,
			Timezone:    tenantTimezone(profile),
		})
		if err != nil {
			log.Error().Err(err).Str("tenant", tenantID(profile)).Msg("calendar event creation failed")
			return contractx.ToolResult{
				Tool:  ToolScheduleAppointment,
				Error: fmt.Sprintf("could not schedule the appointment: %v", err),
			}
		}

		return contractx.ToolResult{
			Tool: ToolScheduleAppointment,
			Result: ScheduleOutput{
				Confirmed:    true,
				EventID:      ref.ID,
				Link:         ref.Link,
				Start:        start.Format(time.RFC3339),
				End:          end.Format(time.RFC3339),
				CustomerName: customerName,
				Service:      service,
			},
		}
	}
}

func requiredString(args map[string]any, key string) (string, bool) {
	raw, ok := args[key]
	if !ok {
		return "", false
	}
	value, ok := raw.(string)
	if !ok || strings.TrimSpace(value) == "" {
		return "", false
	}
	return strings.TrimSpace(value), true
}

// parseDateTime accepts RFC 3339 or a bare local date-time, which is
// how the model usually emits appointment slots.
func parseDateTime(raw string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02T15:04:05", raw, loc)
}

func tenantTimezone(profile *contractx.TenantProfile) string {
	if profile != nil && strings.TrimSpace(profile.Timezone) != "" {
		return profile.Timezone
	}
	return defaultTimezone
}

func tenantLocation(profile *contractx.TenantProfile) *time.Location {
	loc, err := time.LoadLocation(tenantTimezone(profile))
	if err != nil {
		return time.UTC
	}
	return loc
}

func tenantID(profile *contractx.TenantProfile) string {
	if profile == nil {
		return ""
	}
	return profile.ID
}
