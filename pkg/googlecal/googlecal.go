package googlecal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	contractx "github.com/nexusbot/nexus-relay/engine/contract"
	toolx "github.com/nexusbot/nexus-relay/engine/tool"
)

// Config is read from the environment with the GOOGLE prefix. The
// OAuth client is shared; per-tenant tokens come from the tenant
// profile on each call.
type Config struct {
	ClientID     string        `split_words:"true" required:"true"`
	ClientSecret string        `split_words:"true" required:"true"`
	CalendarID   string        `split_words:"true" default:"primary"`
	Timeout      time.Duration `split_words:"true" default:"15s"`
}

// Service talks to Google Calendar with tenant-scoped credentials.
type Service struct {
	cfg   Config
	oauth *oauth2.Config
}

var _ toolx.Calendar = (*Service)(nil)

func New(cfg Config) (*Service, error) {
	if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, errors.New("google oauth client credentials are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if strings.TrimSpace(cfg.CalendarID) == "" {
		cfg.CalendarID = "primary"
	}
	return &Service{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{calendar.CalendarEventsScope},
		},
	}, nil
}

// calendarService builds a per-call client from the tenant's stored
// tokens; the token source refreshes the access token when expired.
func (s *Service) calendarService(ctx context.Context, auth *contractx.CalendarAuth) (*calendar.Service, error) {
	if auth == nil {
		return nil, errors.New("calendar credentials are missing")
	}
	source := s.oauth.TokenSource(ctx, &oauth2.Token{
		AccessToken:  auth.AccessToken,
		RefreshToken: auth.RefreshToken,
		Expiry:       auth.Expiry,
	})
	svc, err := calendar.NewService(ctx, option.WithTokenSource(source))
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	return svc, nil
}

func (s *Service) CreateEvent(ctx context.Context, auth *contractx.CalendarAuth, ev toolx.EventInput) (toolx.EventRef, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	svc, err := s.calendarService(ctx, auth)
	if err != nil {
		return toolx.EventRef{}, err
	}

	created, err := svc.Events.Insert(s.cfg.CalendarID, &calendar.Event{
		Summary:     ev.Summary,
		Description: ev.Description,
		Start: &calendar.EventDateTime{
			DateTime: ev.Start.Format(time.RFC3339),
			TimeZone: ev.Timezone,
		},
		End: &calendar.EventDateTime{
			DateTime: ev.End.Format(time.RFC3339),
			TimeZone: ev.Timezone,
		},
	}).Context(ctx).Do()
	if err != nil {
		return toolx.EventRef{}, fmt.Errorf("insert calendar event: %w", err)
	}

	return toolx.EventRef{ID: created.Id, Link: created.HtmlLink}, nil
}

func (s *Service) ListEvents(ctx context.Context, auth *contractx.CalendarAuth, from, to time.Time) ([]toolx.BusyInterval, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	svc, err := s.calendarService(ctx, auth)
	if err != nil {
		return nil, err
	}

	events, err := svc.Events.List(s.cfg.CalendarID).
		TimeMin(from.Format(time.RFC3339)).
		TimeMax(to.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("list calendar events: %w", err)
	}

	intervals := make([]toolx.BusyInterval, 0, len(events.Items))
	for _, item := range events.Items {
		start, end, ok := eventTimes(item)
		if !ok {
			continue
		}
		intervals = append(intervals, toolx.BusyInterval{Start: start, End: end})
	}
	return intervals, nil
}

// eventTimes extracts the interval of a timed event; all-day events
// only carry a date and are skipped, matching how business-hour slots
// are computed.
func eventTimes(item *calendar.Event) (time.Time, time.Time, bool) {
	if item == nil || item.Start == nil || item.End == nil {
		return time.Time{}, time.Time{}, false
	}
	if item.Start.DateTime == "" || item.End.DateTime == "" {
		return time.Time{}, time.Time{}, false
	}
	start, err := time.Parse(time.RFC3339, item.Start.DateTime)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	end, err := time.Parse(time.RFC3339, item.End.DateTime)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}
