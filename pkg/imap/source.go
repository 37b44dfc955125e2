// Package imap provides the message source for the reply pipeline: a lazy,
// ordered sequence of raw messages matching the configured search window.
package imap

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/rs/zerolog/log"
)

// Config describes the IMAP session and search window. Search terms are
// ANDed and only sent when configured; the client library formats dates as
// DD-Mon-YYYY on the wire.
type Config struct {
	Server     string
	Port       int
	Folder     string
	User       string
	Password   string
	SentSince  time.Time
	SentBefore time.Time
	Subject    string
}

// Source yields raw RFC 822 messages one at a time. The session is acquired
// on the first call to Next and must be released with Close on every exit
// path, including early termination.
type Source struct {
	cfg     Config
	client  *imapclient.Client
	uids    []imap.UID
	pos     int
	started bool
}

// NewSource returns an unconnected Source for cfg.
func NewSource(cfg Config) *Source {
	if cfg.Port == 0 {
		cfg.Port = 993
	}
	if cfg.Folder == "" {
		cfg.Folder = "INBOX"
	}
	return &Source{cfg: cfg}
}

// Next returns the next matching message, or io.EOF when the sequence is
// exhausted. Any other error is a transport failure.
func (s *Source) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !s.started {
		if err := s.start(); err != nil {
			return nil, err
		}
	}
	if s.pos >= len(s.uids) {
		return nil, io.EOF
	}
	uid := s.uids[s.pos]
	s.pos++
	return s.fetch(uid)
}

// Close logs out and releases the session. Safe to call when the session
// was never acquired.
func (s *Source) Close() error {
	if s.client == nil {
		return nil
	}
	err := s.client.Logout().Wait()
	s.client = nil
	return err
}

// start connects, authenticates, selects the folder and runs the search.
// A missing folder is a warning and an empty sequence, not a failure.
func (s *Source) start() error {
	s.started = true
	addr := fmt.Sprintf("%v:%d", s.cfg.Server, s.cfg.Port)
	log.Debug().Str("module", "imap").Str("addr", addr).Str("user", s.cfg.User).
		Str("folder", s.cfg.Folder).Msg("Connecting to IMAP server")
	client, err := imapclient.DialTLS(addr, nil)
	if err != nil {
		return fmt.Errorf("connecting to IMAP %v: %w", addr, err)
	}
	if err := client.Login(s.cfg.User, s.cfg.Password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return fmt.Errorf("IMAP login for %v: %w", s.cfg.User, err)
	}
	s.client = client
	if _, err := client.Select(s.cfg.Folder, nil).Wait(); err != nil {
		log.Warn().Str("module", "imap").Str("folder", s.cfg.Folder).Err(err).
			Msg("Folder does not exist, nothing to process")
		return nil
	}
	criteria := &imap.SearchCriteria{}
	if !s.cfg.SentSince.IsZero() {
		criteria.SentSince = s.cfg.SentSince
	}
	if !s.cfg.SentBefore.IsZero() {
		criteria.SentBefore = s.cfg.SentBefore
	}
	if s.cfg.Subject != "" {
		criteria.Header = append(criteria.Header, imap.SearchCriteriaHeaderField{
			Key:   "Subject",
			Value: s.cfg.Subject,
		})
	}
	data, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return fmt.Errorf("IMAP search: %w", err)
	}
	s.uids = data.AllUIDs()
	log.Info().Str("module", "imap").Str("folder", s.cfg.Folder).Int("count", len(s.uids)).
		Msg("Search complete")
	return nil
}

// fetch retrieves the full RFC 822 body for one message.
func (s *Source) fetch(uid imap.UID) ([]byte, error) {
	section := &imap.FetchItemBodySection{Peek: true}
	opts := &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{section},
	}
	cmd := s.client.Fetch(imap.UIDSetNum(uid), opts)
	defer cmd.Close()
	msg := cmd.Next()
	if msg == nil {
		return nil, fmt.Errorf("IMAP fetch: message %v not returned", uid)
	}
	buf, err := msg.Collect()
	if err != nil {
		return nil, fmt.Errorf("IMAP fetch %v: %w", uid, err)
	}
	body := buf.FindBodySection(section)
	if body == nil {
		return nil, fmt.Errorf("IMAP fetch %v: no body section", uid)
	}
	return body, nil
}
