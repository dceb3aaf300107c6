package notifications

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Category is the kind of activity a notification reports. Preferences are
// keyed by category.
type Category string

const (
	CategoryReaction Category = "reaction"
	CategoryBookmark Category = "bookmark"
	CategoryComment  Category = "comment"
)

const (
	// FallbackTitle stands in for an entity whose title could not be fetched.
	FallbackTitle = "your content"
	// FallbackActor stands in for an actor whose name could not be fetched.
	FallbackActor = "Someone"

	previewLimit = 80
)

// Notification is an event that passed interest and self-action filtering,
// enriched with display data. EntityTitle and ActorDisplayName are empty
// when the lookup failed; Message applies the fallbacks.
type Notification struct {
	ID               string
	UserID           string
	Category         Category
	Table            string
	EventID          string
	EntityID         string
	ActorID          string
	EntityTitle      string
	ActorDisplayName string
	Reaction         string
	Preview          string
	CreatedAt        time.Time
}

// Actor returns the display name or FallbackActor.
func (n Notification) Actor() string {
	if name := strings.TrimSpace(n.ActorDisplayName); name != "" {
		return name
	}
	return FallbackActor
}

// Title returns the quoted title, or FallbackTitle unquoted.
func (n Notification) Title() string {
	if title := strings.TrimSpace(n.EntityTitle); title != "" {
		return "“" + title + "”"
	}
	return FallbackTitle
}

// Message renders the human-readable text handed to the sink.
func (n Notification) Message() string {
	switch n.Category {
	case CategoryReaction:
		return n.Actor() + " " + ReactionPhrase(n.Reaction) + " " + n.Title()
	case CategoryBookmark:
		return n.Actor() + " bookmarked " + n.Title()
	case CategoryComment:
		msg := n.Actor() + " commented on " + n.Title()
		if preview := truncate(strings.Join(strings.Fields(n.Preview), " "), previewLimit); preview != "" {
			msg += ": “" + preview + "”"
		}
		return msg
	default:
		return n.Actor() + " interacted with " + n.Title()
	}
}

var reactionPhrases = map[string]string{
	"heart":     "❤️ loved",
	"love":      "❤️ loved",
	"like":      "👍 liked",
	"thumbs_up": "👍 liked",
	"laugh":     "😂 laughed at",
	"haha":      "😂 laughed at",
	"wow":       "😮 was amazed by",
	"sad":       "😢 reacted sadly to",
	"angry":     "😠 reacted angrily to",
	"fire":      "🔥 thinks is fire:",
	"clap":      "👏 applauded",
	"celebrate": "🎉 celebrated",
}

// ReactionPhrase maps a reaction kind to the verb phrase used in messages.
// Unknown kinds render as "reacted to".
func ReactionPhrase(kind string) string {
	if p, ok := reactionPhrases[strings.ToLower(strings.TrimSpace(kind))]; ok {
		return p
	}
	return "reacted to"
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit-1])) + "…"
}
