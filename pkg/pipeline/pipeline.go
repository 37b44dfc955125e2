// Package pipeline sequences the reply run: fetch, extract, filter,
// compose, send or dry-run, and report.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jhillyerd/enmime/v2"
	"github.com/rs/zerolog/log"

	"github.com/massreply/massreply/pkg/banner"
	"github.com/massreply/massreply/pkg/compose"
	"github.com/massreply/massreply/pkg/policy"
	"github.com/massreply/massreply/pkg/reply"
	"github.com/massreply/massreply/pkg/token"
)

// Source produces raw RFC 822 messages in mailbox order. Next returns
// io.EOF when the sequence is exhausted; any other error aborts the run.
type Source interface {
	Next(ctx context.Context) ([]byte, error)
	Close() error
}

// Sender transmits one assembled reply.
type Sender interface {
	Send(from, to string, msg []byte) error
}

// ReportLine records one message that reached the send (or dry-run) stage.
type ReportLine struct {
	Tokens    token.Tokens
	SentAt    time.Time
	Recipient string
}

// TransportError is a fatal IMAP or SMTP failure. It carries the report
// lines accumulated before the failure; they are never discarded.
type TransportError struct {
	Op     string
	Report []ReportLine
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%v transport error after %d replies: %v", e.Op, len(e.Report), e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Pipeline drives one run. Messages are processed strictly in source
// order; cancellation is honored between messages only, so an in-flight
// reply is always fully sent or not sent at all.
type Pipeline struct {
	Source       Source
	Sender       Sender
	Policy       *policy.List
	Options      reply.Options
	EnvelopeFrom string
	DryRun       bool
}

// Run processes every message from the source and returns one report line
// per reply sent (or dry-run). On transport failure the returned error is a
// *TransportError holding the partial report.
func (p *Pipeline) Run(ctx context.Context) ([]ReportLine, error) {
	report := []ReportLine{}
	for {
		raw, err := p.Source.Next(ctx)
		if err == io.EOF {
			return report, nil
		}
		if err != nil {
			return report, &TransportError{Op: "imap", Report: report, Err: err}
		}
		line, err := p.process(raw)
		if err != nil {
			return report, &TransportError{Op: "smtp", Report: report, Err: err}
		}
		if line != nil {
			report = append(report, *line)
		}
	}
}

// process handles one message. A nil line with nil error means the message
// was filtered out or unusable; only transport failures return an error.
func (p *Pipeline) process(raw []byte) (*ReportLine, error) {
	plog := log.With().Str("module", "pipeline").Logger()
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		plog.Warn().Err(err).Msg("Unparsable message, no reply sent")
		return nil, nil
	}
	tok := token.Extract(env, time.Now())
	for _, herr := range tok.Errors {
		plog.Warn().Err(herr).Str("hash", tok.Hash).Msg("Header decoded with fallback")
	}
	rawFrom := env.Root.Header.Get("From")
	decision := p.Policy.Decide(rawFrom, tok)
	switch decision.Action {
	case policy.Ignore:
		plog.Debug().Str("from", rawFrom).Str("reason", decision.Reason).Msg("Ignoring message")
		return nil, nil
	case policy.Skip:
		plog.Debug().Str("from", rawFrom).Str("reason", decision.Reason).Msg("Skipping message")
		return nil, nil
	}
	plog.Debug().
		Str("from", rawFrom).
		Str("to", tok.To).
		Str("replyto", tok.ReplyTo).
		Str("subject", tok.Subject).
		Str("hash", tok.Hash).
		Msg("Detected message")

	body := compose.Transform(env, banner.Render(tok))
	msg, err := reply.Build(tok, body, env, p.Options, p.EnvelopeFrom)
	if err != nil {
		var serr *reply.SubstitutionError
		if errors.As(err, &serr) {
			plog.Warn().Err(serr).Str("from", rawFrom).Msg("Template substitution failed, message skipped")
			return nil, nil
		}
		plog.Warn().Err(err).Str("from", rawFrom).Msg("Reply assembly failed, message skipped")
		return nil, nil
	}

	if p.DryRun {
		plog.Info().Str("to", msg.To).Str("hash", tok.Hash).Msg("Dry run, reply not sent")
	} else {
		if err := p.Sender.Send(msg.From, msg.To, msg.Bytes); err != nil {
			return nil, err
		}
		plog.Info().Str("to", msg.To).Str("hash", tok.Hash).Msg("Reply sent")
	}
	return &ReportLine{
		Tokens:    *tok,
		SentAt:    time.Now(),
		Recipient: msg.To,
	}, nil
}
