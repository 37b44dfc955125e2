// Package reply assembles the outbound auto-reply message.
package reply

import (
	"bytes"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/jhillyerd/enmime/v2"

	"github.com/massreply/massreply/pkg/compose"
	"github.com/massreply/massreply/pkg/stringutil"
	"github.com/massreply/massreply/pkg/token"
)

// tokenKeys is the fixed set of placeholders a reply template may reference.
var tokenKeys = map[string]bool{
	"from":       true,
	"date":       true,
	"to":         true,
	"subject":    true,
	"replyto":    true,
	"sendername": true,
	"hash":       true,
}

// SubstitutionError reports a template placeholder outside the defined
// token set.
type SubstitutionError struct {
	Key string
}

func (e *SubstitutionError) Error() string {
	return fmt.Sprintf("template references unknown token %q", e.Key)
}

// Options carries the per-run reply configuration. Sender and ReplyTo are
// applied only when non-empty; RealTarget redirects every reply to a single
// test address.
type Options struct {
	Sender       string
	ReplyTo      string
	TextTemplate string
	HTMLTemplate string
	RealTarget   string
}

// Validate checks both templates against the token set. Meant to run at
// template-load time, before the pipeline starts.
func (o Options) Validate() error {
	for _, tpl := range []string{o.TextTemplate, o.HTMLTemplate} {
		for _, key := range stringutil.PlaceholderKeys(tpl) {
			if !tokenKeys[key] {
				return &SubstitutionError{Key: key}
			}
		}
	}
	return nil
}

// Message is a fully assembled reply ready for the transport. From is
// always the transport login; a configured Sender override changes only
// the From header inside Bytes.
type Message struct {
	From  string // envelope sender address
	To    string // envelope recipient address
	Bytes []byte
}

// Build assembles the reply to the message described by tok and env,
// quoting body beneath the configured templates. envelopeFrom is the
// transport login, used as envelope sender and as the From header default
// when no Sender override is configured.
func Build(tok *token.Tokens, body *compose.Body, env *enmime.Envelope,
	opts Options, envelopeFrom string) (*Message, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	recipient := ResolveRecipient(opts.RealTarget, tok.ReplyTo, tok.From)
	vars := tok.Map()

	text := stringutil.ExpandPlaceholders(opts.TextTemplate, vars)
	html := stringutil.ExpandPlaceholders(opts.HTMLTemplate, vars)
	if body.Text != nil {
		text += "\n\n\n" + *body.Text
	}
	if body.HTML != nil {
		html += "\n\n\n" + *body.HTML
	}

	fromHeader := opts.Sender
	if fromHeader == "" {
		fromHeader = envelopeFrom
	}
	fromName, fromAddr := splitAddress(fromHeader)
	toName, toAddr := splitAddress(recipient)
	_, envFromAddr := splitAddress(envelopeFrom)

	b := enmime.Builder().
		From(fromName, fromAddr).
		To(toName, toAddr).
		Subject(NormalizeSubject(tok.Subject)).
		Date(time.Now()).
		Text([]byte(text)).
		HTML([]byte(html))

	if id := env.GetHeader("Message-ID"); id != "" {
		b = b.Header("In-Reply-To", id).Header("References", id)
	}
	for _, h := range []string{"Thread-Topic", "Thread-Index"} {
		if v := env.GetHeader(h); v != "" {
			b = b.Header(h, v)
		}
	}
	if opts.ReplyTo != "" {
		rName, rAddr := splitAddress(opts.ReplyTo)
		b = b.ReplyTo(rName, rAddr)
	}

	part, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("building reply: %w", err)
	}
	buf := &bytes.Buffer{}
	if err := part.Encode(buf); err != nil {
		return nil, fmt.Errorf("encoding reply: %w", err)
	}
	return &Message{From: envFromAddr, To: toAddr, Bytes: buf.Bytes()}, nil
}

// ResolveRecipient picks the reply target with strict precedence: the
// configured override, then the original Reply-To, then the original From.
// Exactly one wins; values are never merged.
func ResolveRecipient(override, replyTo, from string) string {
	switch {
	case override != "":
		return override
	case replyTo != "":
		return replyTo
	default:
		return from
	}
}

// Subject prefixes removed before re-prefixing. The original behavior is a
// literal per-variant removal, not one case-insensitive pattern.
var subjectPrefixes = []string{"Re: ", "RE: ", "re: "}

// NormalizeSubject strips the reply prefixes from subject and prepends a
// single "RE: ". The transform is idempotent.
func NormalizeSubject(subject string) string {
	for _, p := range subjectPrefixes {
		subject = strings.ReplaceAll(subject, p, "")
	}
	return "RE: " + subject
}

// splitAddress separates a display name from an address header value,
// tolerating bare addresses and unparsable input.
func splitAddress(header string) (name, addr string) {
	a, err := mail.ParseAddress(header)
	if err != nil {
		return "", strings.TrimSpace(header)
	}
	return a.Name, a.Address
}
