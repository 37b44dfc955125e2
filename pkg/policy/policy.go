// Package policy decides whether a message receives a reply.
package policy

import (
	"fmt"
	"time"

	"github.com/massreply/massreply/pkg/stringutil"
	"github.com/massreply/massreply/pkg/token"
)

// Action is the per-message filtering outcome.
type Action int

const (
	// Process continues the pipeline for this message.
	Process Action = iota
	// Ignore excludes the message because its sender is unwanted.
	Ignore
	// Skip excludes the message because it was already handled.
	Skip
)

func (a Action) String() string {
	switch a {
	case Process:
		return "process"
	case Ignore:
		return "ignore"
	case Skip:
		return "skip"
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// Decision is the outcome plus a human-readable reason for the log.
type Decision struct {
	Action Action
	Reason string
}

// SkipEntry identifies one already-handled message by exact header triple.
type SkipEntry struct {
	From    string    `toml:"from"`
	Date    time.Time `toml:"date"`
	Subject string    `toml:"subject"`
}

// List holds the configured exclusion rules. Ignore patterns are
// case-sensitive substrings matched against the raw From header; Skip
// entries match the (From, date, subject) triple exactly.
type List struct {
	Ignore []string    `toml:"ignore"`
	Skip   []SkipEntry `toml:"skip"`
}

// Decide applies the ignore list, then the skip list, to one message.
// Ignore and Skip are both terminal; they differ only in log semantics.
func (l *List) Decide(rawFrom string, tok *token.Tokens) Decision {
	if p := stringutil.ContainsAny(rawFrom, l.Ignore); p != "" {
		return Decision{Action: Ignore, Reason: fmt.Sprintf("sender matches ignore pattern %q", p)}
	}
	for _, entry := range l.Skip {
		if entry.From == rawFrom && datesEqual(entry.Date, tok.Date) && entry.Subject == tok.Subject {
			return Decision{Action: Skip, Reason: "message matches skip list"}
		}
	}
	return Decision{Action: Process}
}

func datesEqual(a time.Time, b *time.Time) bool {
	if b == nil {
		return a.IsZero()
	}
	return a.Equal(*b)
}
