// Package token derives normalized per-message fields from raw mail headers.
package token

import (
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/jhillyerd/enmime/v2"
	"golang.org/x/crypto/sha3"
	"golang.org/x/net/html/charset"
)

// hashLen is the number of digest bytes kept for the message hash; rendered
// as twice as many hex characters.
const hashLen = 5

var (
	angleAddrRE = regexp.MustCompile(`^(.+)<.*>$`)
	lastFirstRE = regexp.MustCompile(`(.+),(.+)`)
	quoteRepl   = strings.NewReplacer(`"`, "", "'", "", "“", "", "”", "", "‘", "", "’", "")
)

// Tokens holds the normalized fields extracted from one message. They are
// computed once and read-only afterwards.
type Tokens struct {
	From       string
	To         string
	ReplyTo    string
	Subject    string
	SenderName string
	Hash       string
	Date       *time.Time

	// Errors lists headers that could not be fully decoded; the affected
	// field falls back to its raw text instead of failing the message.
	Errors []*MalformedHeaderError
}

// MalformedHeaderError reports a header whose value could not be decoded.
type MalformedHeaderError struct {
	Header string
	Err    error
}

func (e *MalformedHeaderError) Error() string {
	return fmt.Sprintf("malformed %v header: %v", e.Header, e.Err)
}

func (e *MalformedHeaderError) Unwrap() error {
	return e.Err
}

// Extract derives Tokens from the headers of env. Missing headers produce
// empty fields; undecodable ones fall back to raw text and are recorded in
// Tokens.Errors. It never fails the message.
func Extract(env *enmime.Envelope, now time.Time) *Tokens {
	header := env.Root.Header
	t := &Tokens{
		From:    header.Get("From"),
		To:      header.Get("To"),
		ReplyTo: header.Get("Reply-To"),
	}
	subject, err := decodeSubject(header.Get("Subject"))
	if err != nil {
		t.Errors = append(t.Errors, &MalformedHeaderError{Header: "Subject", Err: err})
	}
	t.Subject = subject
	t.SenderName = senderName(t.From)
	if raw := header.Get("Date"); raw != "" {
		if date, err := parseDate(raw); err == nil {
			t.Date = &date
		}
	}
	t.Hash = messageHash(t.From, t.Date, t.Subject, now)
	return t
}

// Map returns the template substitution context. All seven keys are always
// present; fields without a value map to the empty string.
func (t *Tokens) Map() map[string]string {
	date := ""
	if t.Date != nil {
		date = t.Date.Format(time.RFC1123Z)
	}
	return map[string]string{
		"from":       t.From,
		"date":       date,
		"to":         t.To,
		"subject":    t.Subject,
		"replyto":    t.ReplyTo,
		"sendername": t.SenderName,
		"hash":       t.Hash,
	}
}

// decodeSubject decodes RFC 2047 encoded-words, concatenating the decoded
// pieces, and strips embedded CR/LF left over from header folding. On decode
// failure the raw text is returned along with the error.
func decodeSubject(raw string) (string, error) {
	dec := mime.WordDecoder{
		CharsetReader: func(label string, input io.Reader) (io.Reader, error) {
			return charset.NewReaderLabel(label, input)
		},
	}
	subject, err := dec.DecodeHeader(raw)
	if err != nil {
		subject = raw
	}
	subject = strings.ReplaceAll(subject, "\n", "")
	subject = strings.ReplaceAll(subject, "\r", "")
	return subject, err
}

// senderName pulls a human name out of a From header. "Last, First" display
// names are flipped to "First Last"; quote characters are stripped. A From
// without an angle-bracket address yields the empty string.
func senderName(from string) string {
	m := angleAddrRE.FindStringSubmatch(from)
	if m == nil {
		return ""
	}
	name := quoteRepl.Replace(m[1])
	if parts := lastFirstRE.FindStringSubmatch(name); parts != nil {
		last := strings.TrimSpace(parts[1])
		first := strings.TrimSpace(parts[2])
		name = first + " " + last
	}
	return strings.TrimSpace(name)
}

// Layouts tried after net/mail gives up; real mailers emit all of these.
var dateFallbacks = []string{
	"2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"Mon, 2 Jan 06 15:04:05 -0700",
	time.ANSIC,
	time.UnixDate,
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	date, err := mail.ParseDate(raw)
	if err == nil {
		return date, nil
	}
	for _, layout := range dateFallbacks {
		if date, ferr := time.Parse(layout, raw); ferr == nil {
			return date, nil
		}
	}
	return time.Time{}, err
}

// messageHash computes a short SHAKE-256 digest over the identifying header
// fields plus the current wall clock. Because the clock is included the hash
// is unique per run, not stable across runs; cross-run dedup must key on
// (from, date, subject) instead.
func messageHash(from string, date *time.Time, subject string, now time.Time) string {
	dateStr := ""
	if date != nil {
		dateStr = date.Format(time.RFC3339)
	}
	input := fmt.Sprintf("%v|%v|%v|%v", from, dateStr, subject, now.Format(time.RFC3339Nano))
	digest := make([]byte, hashLen)
	sha3.ShakeSum256(digest, []byte(input))
	return hex.EncodeToString(digest)
}
