// Package config loads run configuration from the environment and the
// policy file.
package config

import (
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"

	"github.com/massreply/massreply/pkg/policy"
)

const (
	prefix      = "massreply"
	tableFormat = `Massreply is configured via the environment. The following environment
variables can be used:

KEY	DEFAULT	REQUIRED	DESCRIPTION
{{range .}}{{usage_key .}}	{{usage_default .}}	{{usage_required .}}	{{usage_description .}}
{{end}}`
)

var (
	// Version of this build, set by main
	Version = ""

	// BuildDate for this build, set by main
	BuildDate = ""
)

// Root wraps all other configurations.
type Root struct {
	LogLevel string `required:"true" default:"info" desc:"debug, info, warn, or error"`
	IMAP     IMAP
	SMTP     SMTP
	Reply    Reply
}

// IMAP contains the mailbox to scan and the search window.
type IMAP struct {
	Server     string `required:"true" desc:"IMAP server host"`
	Port       int    `required:"true" default:"993" desc:"IMAP TLS port"`
	Folder     string `required:"true" default:"INBOX" desc:"Folder to scan"`
	User       string `required:"true" desc:"IMAP login"`
	Password   string `required:"true" desc:"IMAP password"`
	SentSince  string `desc:"Only messages sent on/after this date (2006-01-02)"`
	SentBefore string `desc:"Only messages sent before this date (2006-01-02)"`
	Subject    string `desc:"Only messages whose subject contains this text"`
}

// SMTP contains the outbound mail session configuration.
type SMTP struct {
	Server   string `required:"true" desc:"SMTP server host"`
	Port     int    `required:"true" default:"587" desc:"SMTP submission port"`
	User     string `required:"true" desc:"SMTP login, also the envelope sender"`
	Password string `required:"true" desc:"SMTP password"`
}

// Reply contains the reply composition configuration. ReplyText and
// ReplyHTML accept either a readable file path or literal template text.
type Reply struct {
	Sender     string `desc:"From header override for replies"`
	ReplyTo    string `desc:"Reply-To header for replies"`
	ReplyText  string `required:"true" default:"reply.txt" desc:"Text template: file path or literal"`
	ReplyHTML  string `required:"true" default:"reply.html" desc:"HTML template: file path or literal"`
	RealTarget string `desc:"Send every reply to this address instead of the real targets"`
	DryRun     bool   `default:"false" desc:"Do everything except the final send"`
}

// Process loads and parses configuration from the environment.
func Process() (*Root, error) {
	c := &Root{}
	err := envconfig.Process(prefix, c)
	return c, err
}

// Usage prints out the envconfig usage to Stderr.
func Usage() {
	tabs := tabwriter.NewWriter(os.Stderr, 1, 0, 4, ' ', 0)
	if err := envconfig.Usagef(prefix, &Root{}, tabs, tableFormat); err != nil {
		log.Fatalf("Unable to parse env config: %v", err)
	}
	tabs.Flush()
}

// LoadPolicy reads the ignore/skip lists from a TOML file. An empty path
// yields an empty policy.
func LoadPolicy(path string) (*policy.List, error) {
	list := &policy.List{}
	if path == "" {
		return list, nil
	}
	if _, err := toml.DecodeFile(path, list); err != nil {
		return nil, fmt.Errorf("loading policy file %v: %w", path, err)
	}
	return list, nil
}

// ResolveTemplate turns a template value that is a readable file path into
// the file's contents; any other value is used verbatim as template text.
func ResolveTemplate(value string) (string, error) {
	info, err := os.Stat(value)
	if err != nil || info.IsDir() {
		return value, nil
	}
	content, err := os.ReadFile(value)
	if err != nil {
		return "", fmt.Errorf("reading template %v: %w", value, err)
	}
	return string(content), nil
}

// Date layouts accepted for the search window, tried in order.
var windowLayouts = []string{"2006-01-02", time.RFC3339}

// ParseWindowDate parses a search window boundary. An empty value yields
// the zero time, meaning the boundary is not applied.
func ParseWindowDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	var err error
	for _, layout := range windowLayouts {
		var t time.Time
		if t, err = time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("parsing date %q: %w", value, err)
}
