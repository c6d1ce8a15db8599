// Command bandctl submits recordings to a bandscore service and prints the
// resulting bands.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/okian/bandscore/internal/client"
	"github.com/okian/bandscore/internal/domain/types"
	"github.com/okian/bandscore/pkg/logger"
)

const (
	defaultTimeout      = 2 * time.Minute
	defaultBatchTimeout = 30 * time.Minute
)

func main() {
	var (
		baseURL  = flag.String("url", "http://localhost:9080", "Base URL of the service")
		prompt   = flag.String("prompt", "", "Speaking prompt the recordings answer")
		detail   = flag.String("detail", "default", "Detail level: default, feedback or full")
		workers  = flag.Int("workers", runtime.NumCPU(), "Number of concurrent submissions")
		wait     = flag.Bool("wait", false, "Let the server hold each request until scoring finishes")
		poll     = flag.Duration("poll", 500*time.Millisecond, "Polling interval when not waiting")
		timeout  = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		deadline = flag.Duration("deadline", defaultBatchTimeout, "Overall batch deadline")
		output   = flag.String("output", "", "Write every outcome as JSON to this file")
		verbose  = flag.Bool("verbose", false, "Enable debug logging")
	)
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	if *verbose {
		_ = logger.SetLevelString("debug")
	}

	level, err := types.ParseDetail(*detail)
	if err != nil {
		os.Stderr.WriteString("invalid -detail: " + *detail + "\n")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *deadline)
	defer cancel()

	c := client.New(*baseURL, client.WithTimeout(*timeout))
	summary, err := client.RunBatch(ctx, c, client.BatchConfig{
		Paths:        flag.Args(),
		Prompt:       *prompt,
		Detail:       level,
		Workers:      *workers,
		PollInterval: *poll,
		Wait:         *wait,
		Output:       *output,
	}, logger.Named("bandctl"))
	if summary != nil {
		printSummary(os.Stdout, summary)
	}
	if err != nil {
		os.Stderr.WriteString("bandctl: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func printSummary(w io.Writer, s *client.Summary) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tSTATUS\tOVERALL\tFC\tLR\tGRA\tP\tLATENCY")
	for _, o := range s.Outcomes {
		status, overall, fc, lr, gra, p := "error", "-", "-", "-", "-", "-"
		if o.View != nil {
			status = string(o.View.Status)
			if b := o.View.BandScores; b != nil {
				overall = band(b.Overall)
				fc, lr, gra, p = band(b.FluencyCoherence), band(b.LexicalResource), band(b.GrammaticalRange), band(b.Pronunciation)
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n", o.File, status, overall, fc, lr, gra, p, o.Latency.Round(time.Millisecond))
		if o.Err != "" {
			fmt.Fprintf(tw, "\t  %s\t\t\t\t\t\t\n", o.Err)
		}
		if o.View != nil && o.View.Feedback != nil && o.View.Feedback.Overall != "" {
			fmt.Fprintf(tw, "\t  %s\t\t\t\t\t\t\n", o.View.Feedback.Overall)
		}
	}
	_ = tw.Flush()

	fmt.Fprintf(w, "\n%d files: %d completed, %d failed, %d errors, %d duplicates\n",
		s.Files, s.Completed, s.Failed, s.Errors, s.Duplicates)
	if s.Completed > 0 {
		fmt.Fprintf(w, "mean overall band %.2f\n", s.MeanOverall)
	}
	fmt.Fprintf(w, "mean latency %s, wall time %s\n", s.MeanLatency.Round(time.Millisecond), s.Duration.Round(time.Millisecond))
}

func band(v float64) string { return fmt.Sprintf("%.1f", v) }

func usage() {
	os.Stderr.WriteString(`bandctl submits spoken answers to a bandscore service.

Usage:
  bandctl [options] <file-or-directory>...

Directories are searched recursively for .wav, .mp3, .m4a, .ogg, .flac and
.webm files.

Examples:
  bandctl -prompt "Describe a festival" answer.wav
  bandctl -detail feedback -workers 8 recordings/
  bandctl -wait -detail full -output results.json recordings/

Options:
`)
	flag.PrintDefaults()
}
