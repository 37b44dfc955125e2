// Package smtp sends assembled replies over a single authenticated
// STARTTLS session, reused for the whole run.
package smtp

import (
	"crypto/tls"
	"fmt"
	"net/smtp"

	"github.com/rs/zerolog/log"
)

// Config describes the outbound SMTP session.
type Config struct {
	Server   string
	Port     int
	User     string
	Password string
}

// Client wraps one SMTP session. Dial establishes and authenticates the
// connection once; Send reuses it for every message.
type Client struct {
	cfg  Config
	conn *smtp.Client
}

// Dial connects to the server, upgrades with STARTTLS and authenticates.
func Dial(cfg Config) (*Client, error) {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	addr := fmt.Sprintf("%v:%d", cfg.Server, cfg.Port)
	log.Debug().Str("module", "smtp").Str("addr", addr).Str("user", cfg.User).
		Msg("Connecting to SMTP server")
	conn, err := smtp.Dial(addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to SMTP %v: %w", addr, err)
	}
	if err := conn.StartTLS(&tls.Config{ServerName: cfg.Server}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("SMTP STARTTLS: %w", err)
	}
	auth := smtp.PlainAuth("", cfg.User, cfg.Password, cfg.Server)
	if err := conn.Auth(auth); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("SMTP auth for %v: %w", cfg.User, err)
	}
	return &Client{cfg: cfg, conn: conn}, nil
}

// Send transmits one message on the open session.
func (c *Client) Send(from, to string, msg []byte) error {
	if err := c.conn.Mail(from); err != nil {
		return fmt.Errorf("SMTP MAIL FROM: %w", err)
	}
	if err := c.conn.Rcpt(to); err != nil {
		return fmt.Errorf("SMTP RCPT TO: %w", err)
	}
	w, err := c.conn.Data()
	if err != nil {
		return fmt.Errorf("SMTP DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		_ = w.Close()
		return fmt.Errorf("SMTP send: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("SMTP send: %w", err)
	}
	log.Debug().Str("module", "smtp").Str("to", to).Int("bytes", len(msg)).Msg("Message sent")
	return nil
}

// Close terminates the session with QUIT.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Quit()
	c.conn = nil
	return err
}
