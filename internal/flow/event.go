package flow

import (
	"strings"

	"github.com/iskan70/my-logistic-bot/internal/models"
)

// EventKind classifies an inbound event for the state table.
type EventKind string

const (
	EventText    EventKind = "text"
	EventChoice  EventKind = "choice"
	EventMedia   EventKind = "media"
	EventCommand EventKind = "command"
)

// Commands understood in any state.
const (
	CommandStart  = "/start"
	CommandCancel = "/cancel"
)

// Event is one inbound participant action. Choice holds the resolved option value for
// EventChoice; Text holds the raw text otherwise.
type Event struct {
	Kind        EventKind
	Text        string
	Choice      string
	Attachments []models.Attachment
}

func TextEvent(text string) Event {
	return Event{Kind: EventText, Text: text}
}

func ChoiceEvent(value string) Event {
	return Event{Kind: EventChoice, Choice: value}
}

func MediaEvent(atts ...models.Attachment) Event {
	return Event{Kind: EventMedia, Attachments: atts}
}

func CommandEvent(cmd string) Event {
	return Event{Kind: EventCommand, Text: cmd}
}

// EventFromResponse classifies a transport message. Media wins over text so a photo
// with a caption is still a document upload; text beginning with "/" is a command.
func EventFromResponse(r models.Response) Event {
	if len(r.Media) > 0 {
		ev := MediaEvent(r.Media...)
		ev.Text = r.Body
		return ev
	}
	body := strings.TrimSpace(r.Body)
	if strings.HasPrefix(body, "/") {
		cmd, _, _ := strings.Cut(body, " ")
		return CommandEvent(strings.ToLower(cmd))
	}
	return TextEvent(r.Body)
}

// ResolveChoice matches text against choices by 1-based option number, option value or
// case-insensitive label.
func ResolveChoice(text string, choices []models.Choice) (models.Choice, bool) {
	t := strings.TrimSpace(text)
	if t == "" {
		return models.Choice{}, false
	}
	if n, ok := optionNumber(t); ok && n >= 1 && n <= len(choices) {
		return choices[n-1], true
	}
	for _, c := range choices {
		if c.Value == t {
			return c, true
		}
	}
	for _, c := range choices {
		if strings.EqualFold(strings.TrimSpace(c.Label), t) {
			return c, true
		}
	}
	return models.Choice{}, false
}

func optionNumber(s string) (int, bool) {
	s = strings.TrimSuffix(s, ".")
	if s == "" || len(s) > 3 {
		return 0, false
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}
