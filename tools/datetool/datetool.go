// Package datetool provides date and time tools: the current timestamp
// and resolution of relative date expressions ("tomorrow", "in 3 days",
// "next monday") against an injectable clock.
package datetool

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	relay "github.com/nevindra/relay"
)

// Tool provides date/time functions. The zero value uses the system
// clock; tests inject a fixed clock via NewWithClock.
type Tool struct {
	now func() time.Time
}

// New creates a date tool on the system clock.
func New() *Tool {
	return &Tool{now: time.Now}
}

// NewWithClock creates a date tool on a custom clock.
func NewWithClock(now func() time.Time) *Tool {
	return &Tool{now: now}
}

func (t *Tool) Definitions() []relay.ToolDefinition {
	return []relay.ToolDefinition{
		{
			Name:        "date_now",
			Description: "Get the current date and time in RFC 3339 format, including the weekday.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{}}`),
		},
		{
			Name:        "date_resolve",
			Description: "Resolve a relative date expression to an absolute date. Supports: today, tomorrow, yesterday, 'in N days/weeks', 'N days/weeks ago', 'next <weekday>', 'last <weekday>'.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"expression":{"type":"string","description":"Relative date expression to resolve"}},"required":["expression"]}`),
		},
	}
}

func (t *Tool) Execute(ctx context.Context, name string, args json.RawMessage) (relay.ToolResult, error) {
	switch name {
	case "date_now":
		now := t.now()
		return relay.ToolResult{
			Content: fmt.Sprintf("%s (%s)", now.Format(time.RFC3339), now.Weekday()),
		}, nil
	case "date_resolve":
		var params struct {
			Expression string `json:"expression"`
		}
		if err := json.Unmarshal(args, &params); err != nil {
			return relay.ToolResult{Error: "invalid args: " + err.Error()}, nil
		}
		resolved, err := t.resolve(params.Expression)
		if err != nil {
			return relay.ToolResult{Error: err.Error()}, nil
		}
		return relay.ToolResult{
			Content: fmt.Sprintf("%s (%s)", resolved.Format("2006-01-02"), resolved.Weekday()),
		}, nil
	default:
		return relay.ToolResult{Error: "unknown date tool: " + name}, nil
	}
}

var (
	inRe  = regexp.MustCompile(`^in (\d+) (day|week)s?$`)
	agoRe = regexp.MustCompile(`^(\d+) (day|week)s? ago$`)
)

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday,
	"friday": time.Friday, "saturday": time.Saturday,
}

// resolve maps a relative expression to a date anchored at the clock's
// current day.
func (t *Tool) resolve(expr string) (time.Time, error) {
	now := t.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	e := strings.ToLower(strings.TrimSpace(expr))

	switch e {
	case "today":
		return today, nil
	case "tomorrow":
		return today.AddDate(0, 0, 1), nil
	case "yesterday":
		return today.AddDate(0, 0, -1), nil
	}

	if m := inRe.FindStringSubmatch(e); m != nil {
		n, _ := strconv.Atoi(m[1])
		if m[2] == "week" {
			n *= 7
		}
		return today.AddDate(0, 0, n), nil
	}
	if m := agoRe.FindStringSubmatch(e); m != nil {
		n, _ := strconv.Atoi(m[1])
		if m[2] == "week" {
			n *= 7
		}
		return today.AddDate(0, 0, -n), nil
	}

	if day, ok := strings.CutPrefix(e, "next "); ok {
		if wd, found := weekdays[day]; found {
			delta := (int(wd) - int(today.Weekday()) + 7) % 7
			if delta == 0 {
				delta = 7
			}
			return today.AddDate(0, 0, delta), nil
		}
	}
	if day, ok := strings.CutPrefix(e, "last "); ok {
		if wd, found := weekdays[day]; found {
			delta := (int(today.Weekday()) - int(wd) + 7) % 7
			if delta == 0 {
				delta = 7
			}
			return today.AddDate(0, 0, -delta), nil
		}
	}

	if d, err := time.ParseInLocation("2006-01-02", e, now.Location()); err == nil {
		return d, nil
	}
	return time.Time{}, fmt.Errorf("cannot resolve date expression: %q", expr)
}

var _ relay.Tool = (*Tool)(nil)
