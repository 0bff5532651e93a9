package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/acm19/shrink/internal/logger"
	"github.com/acm19/shrink/internal/shrink"
	"github.com/acm19/shrink/internal/tui"
)

const backupWarning = `Warning: Bulk resize will alter your original images and cannot be undone!
It is HIGHLY recommended that you backup your library folder before proceeding. You will be prompted before resizing each image.
It is also recommended that you initially resize only 1 or 2 images and verify that everything is working properly before processing your entire library.`

// prompter asks yes/no questions on a terminal.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: bufio.NewReader(in), out: out}
}

// confirm asks question and reports whether the answer was not "n".
// An empty answer means yes.
func (p *prompter) confirm(question string) bool {
	fmt.Fprintf(p.out, "%s ", question)
	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer != "n" && answer != "no"
}

// confirmImage is the per-image prompt.
func (p *prompter) confirmImage(ins shrink.Inspection) bool {
	return p.confirm(fmt.Sprintf("%s: %dx%d\nResize (Y/n)?", ins.File, ins.Width, ins.Height))
}

// reportEvent prints one progress event the way the bulk command shows it.
func reportEvent(out io.Writer, ev shrink.ProgressEvent) {
	switch ev.Stage {
	case shrink.StageChecking:
	case shrink.StageSkipped:
		fmt.Fprintln(out, ev.Message)
	case shrink.StageFailed:
		fmt.Fprintf(out, "Warning: %s %d / %d\n", ev.Message, ev.Current, ev.Total)
	case shrink.StageFinished:
		fmt.Fprintf(out, "Success: %s\n", ev.Message)
	case shrink.StageStopped:
		fmt.Fprintf(out, "Warning: %s at %d / %d\n", ev.Message, ev.Current, ev.Total)
	default:
		fmt.Fprintf(out, "%s %d / %d\n", ev.Message, ev.Current, ev.Total)
	}
}

func runBulk(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := mustApp(ctx)
	defer a.Close()

	out := cmd.OutOrStdout()
	ask := newPrompter(cmd.InOrStdin(), out)

	opts := shrink.DefaultBulkOptions()
	opts.Resumable = resumable
	opts.Pause = a.cfg.Bulk.Pause
	if pause != "" {
		d, err := time.ParseDuration(pause)
		if err != nil {
			logger.Error("Invalid pause", "value", pause, "error", err)
			os.Exit(1)
		}
		opts.Pause = d
	}

	if !noPrompt {
		fmt.Fprintln(out, backupWarning)
	}

	settings, err := a.settings.Settings()
	if err != nil {
		logger.Error("Failed to load settings", "error", err)
		os.Exit(1)
	}
	policy := settings.Snapshot(shrink.SourcePost)
	fmt.Fprintf(out, "Resizing images to %d x %d\n", policy.MaxWidth, policy.MaxHeight)

	total, err := a.runner.Total(ctx, opts)
	if err != nil {
		logger.Error("Failed to count images", "error", err)
		os.Exit(1)
	}
	if total == 0 {
		fmt.Fprintln(out, "Success: There are no images to resize.")
		return
	}
	if noPrompt {
		fmt.Fprintf(out, "There are %d images to check.\n", total)
	} else if !ask.confirm(fmt.Sprintf("There are %d images to check. Continue? [y/n]", total)) {
		return
	}

	var stats shrink.BulkStats
	if useTUI {
		stats, err = runBulkTUI(ctx, a, opts)
	} else {
		if !noPrompt {
			opts.Confirm = ask.confirmImage
		}
		opts.Report = func(ev shrink.ProgressEvent) { reportEvent(out, ev) }
		stats, err = a.runner.Run(ctx, opts)
	}

	switch {
	case errors.Is(err, shrink.ErrStopped), errors.Is(err, context.Canceled):
		logger.Info("Bulk run stopped, resume with --resumable", "checked", stats.Checked)
	case err != nil:
		logger.Error("Bulk run failed", "error", err)
		os.Exit(1)
	}
	fmt.Fprintln(out, tui.RenderSummary(stats.Rows()))
}

// runBulkTUI runs the bulk job while a bubbletea program renders its progress.
// Quitting the view cancels the run after the current image.
func runBulkTUI(ctx context.Context, a *app, opts shrink.BulkOptions) (shrink.BulkStats, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan shrink.ProgressEvent, 64)
	program := tea.NewProgram(tui.NewModel(events), tea.WithContext(ctx))

	uiDone := make(chan struct{})
	go func() {
		if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			logger.Warn("Progress view failed", "error", err)
		}
		cancel()
		close(uiDone)
	}()

	opts.Confirm = nil
	opts.Progress = events
	stats, err := a.runner.Run(ctx, opts)

	close(events)
	<-uiDone
	return stats, err
}
