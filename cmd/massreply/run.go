package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/subcommands"
	"github.com/rs/zerolog/log"

	"github.com/massreply/massreply/pkg/config"
	"github.com/massreply/massreply/pkg/imap"
	"github.com/massreply/massreply/pkg/pipeline"
	"github.com/massreply/massreply/pkg/reply"
	"github.com/massreply/massreply/pkg/smtp"
)

// runCmd scans the mailbox and replies to every matching message. With
// forceDryRun set it registers as `preview` and never sends.
type runCmd struct {
	name        string
	forceDryRun bool
	policyFile  string
}

func (c *runCmd) Name() string {
	if c.name != "" {
		return c.name
	}
	return "run"
}

func (c *runCmd) Synopsis() string {
	if c.forceDryRun {
		return "scan the mailbox and report, without sending any reply"
	}
	return "scan the mailbox and reply to every matching message"
}

func (c *runCmd) Usage() string {
	return c.Name() + " [-policy <file>]:\n  " + c.Synopsis() + "\n"
}

func (c *runCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.policyFile, "policy", "", "TOML file with ignore and skip lists")
}

func (c *runCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	conf, err := config.Process()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return subcommands.ExitUsageError
	}
	if err := setLogLevel(conf.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return subcommands.ExitUsageError
	}
	log.Info().Str("phase", "startup").Str("version", config.Version).
		Str("buildDate", config.BuildDate).Msg("Massreply starting")

	p, cleanup, err := c.buildPipeline(conf)
	if err != nil {
		log.Error().Str("phase", "startup").Err(err).Msg("Startup failed")
		return subcommands.ExitFailure
	}
	defer cleanup()

	report, err := p.Run(ctx)
	printReport(os.Stdout, report)
	if err != nil {
		log.Error().Str("phase", "run").Err(err).Int("replied", len(report)).
			Msg("Run aborted by transport error")
		return subcommands.ExitFailure
	}
	log.Info().Str("phase", "shutdown").Int("replied", len(report)).Msg("Run complete")
	return subcommands.ExitSuccess
}

// buildPipeline wires config into the pipeline: policy lists, templates,
// the IMAP source and the SMTP sender. The returned cleanup func releases
// both sessions.
func (c *runCmd) buildPipeline(conf *config.Root) (*pipeline.Pipeline, func(), error) {
	pol, err := config.LoadPolicy(c.policyFile)
	if err != nil {
		return nil, nil, err
	}
	textTpl, err := config.ResolveTemplate(conf.Reply.ReplyText)
	if err != nil {
		return nil, nil, err
	}
	htmlTpl, err := config.ResolveTemplate(conf.Reply.ReplyHTML)
	if err != nil {
		return nil, nil, err
	}
	opts := reply.Options{
		Sender:       conf.Reply.Sender,
		ReplyTo:      conf.Reply.ReplyTo,
		TextTemplate: textTpl,
		HTMLTemplate: htmlTpl,
		RealTarget:   conf.Reply.RealTarget,
	}
	if err := opts.Validate(); err != nil {
		return nil, nil, err
	}
	sentSince, err := config.ParseWindowDate(conf.IMAP.SentSince)
	if err != nil {
		return nil, nil, err
	}
	sentBefore, err := config.ParseWindowDate(conf.IMAP.SentBefore)
	if err != nil {
		return nil, nil, err
	}
	source := imap.NewSource(imap.Config{
		Server:     conf.IMAP.Server,
		Port:       conf.IMAP.Port,
		Folder:     conf.IMAP.Folder,
		User:       conf.IMAP.User,
		Password:   conf.IMAP.Password,
		SentSince:  sentSince,
		SentBefore: sentBefore,
		Subject:    conf.IMAP.Subject,
	})
	// The SMTP session is established even for a dry run; only the final
	// send is withheld.
	sender, err := smtp.Dial(smtp.Config{
		Server:   conf.SMTP.Server,
		Port:     conf.SMTP.Port,
		User:     conf.SMTP.User,
		Password: conf.SMTP.Password,
	})
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := source.Close(); err != nil {
			log.Warn().Str("module", "imap").Err(err).Msg("Error closing IMAP session")
		}
		if err := sender.Close(); err != nil {
			log.Warn().Str("module", "smtp").Err(err).Msg("Error closing SMTP session")
		}
	}
	return &pipeline.Pipeline{
		Source:       source,
		Sender:       sender,
		Policy:       pol,
		Options:      opts,
		EnvelopeFrom: conf.SMTP.User,
		DryRun:       conf.Reply.DryRun || c.forceDryRun,
	}, cleanup, nil
}

// printReport writes one line per replied message as an aligned table.
func printReport(w *os.File, report []pipeline.ReportLine) {
	if len(report) == 0 {
		return
	}
	tabs := tabwriter.NewWriter(w, 1, 0, 4, ' ', 0)
	fmt.Fprintln(tabs, "SENT AT\tRECIPIENT\tFROM\tSUBJECT\tHASH")
	for _, line := range report {
		fmt.Fprintf(tabs, "%v\t%v\t%v\t%v\t%v\n",
			line.SentAt.Format(time.RFC3339),
			line.Recipient,
			line.Tokens.From,
			line.Tokens.Subject,
			line.Tokens.Hash)
	}
	tabs.Flush()
}
