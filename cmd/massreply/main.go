// Package main implements the massreply command line auto-responder.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/google/subcommands"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/massreply/massreply/pkg/config"
)

var (
	// version contains the build version number, populated during linking.
	version = "undefined"

	// date contains the build date, populated during linking.
	date = "undefined"
)

var (
	logfile = flag.String("logfile", "stderr", "Write out log into the specified file.")
	logjson = flag.Bool("logjson", false, "Logs are written in JSON format.")
)

func main() {
	subcommands.ImportantFlag("logfile")
	subcommands.ImportantFlag("logjson")

	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(&runCmd{}, "")
	subcommands.Register(&runCmd{name: "preview", forceDryRun: true}, "")

	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: massreply [options] <command>")
		flag.PrintDefaults()
		fmt.Fprintln(os.Stderr, "")
		config.Usage()
	}
	flag.Parse()

	config.Version = version
	config.BuildDate = date

	closeLog, err := openLog(*logfile, *logjson)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Log error: %v\n", err)
		os.Exit(1)
	}

	// Cancellation is honored between messages; an in-flight reply is
	// always fully sent or not sent.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	status := subcommands.Execute(ctx)
	closeLog()
	os.Exit(int(status))
}

// setLogLevel applies the configured level to the global logger.
func setLogLevel(level string) error {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		return fmt.Errorf("log level %q not one of: debug, info, warn, error", level)
	}
	return nil
}

// openLog configures zerolog output, returns func to close logfile.
func openLog(logfile string, json bool) (close func(), err error) {
	close = func() {}
	var w io.Writer
	color := runtime.GOOS != "windows"
	switch logfile {
	case "stderr":
		w = os.Stderr
	case "stdout":
		w = os.Stdout
	default:
		logf, err := os.OpenFile(logfile, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0666)
		if err != nil {
			return nil, err
		}
		bw := bufio.NewWriter(logf)
		w = bw
		color = false
		close = func() {
			_ = bw.Flush()
			_ = logf.Close()
		}
	}
	w = zerolog.SyncWriter(w)
	if json {
		log.Logger = log.Output(w)
		return close, nil
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:     w,
		NoColor: !color,
	})
	return close, nil
}
