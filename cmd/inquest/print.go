package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/inquestlabs/inquest/internal/agentwire"
	"github.com/inquestlabs/inquest/internal/chat"
	"github.com/inquestlabs/inquest/internal/platform"
)

// streamPrinter renders one streamed turn for non-interactive output.
type streamPrinter struct {
	// out is the primary output writer for agent text.
	out io.Writer
	// errOut is used for warnings and progress.
	errOut io.Writer
	// verbose toggles tool and citation detail.
	verbose bool
	// wroteText tracks whether any fragments were printed.
	wroteText bool
	// lineOpen tracks whether a streaming line is in progress.
	lineOpen bool
}

// newStreamPrinter constructs a printer for one-shot runs.
func newStreamPrinter(out io.Writer, errOut io.Writer, verbose bool) *streamPrinter {
	return &streamPrinter{
		out:     out,
		errOut:  errOut,
		verbose: verbose,
	}
}

// ensureNewline terminates a streaming line if one is active.
func (p *streamPrinter) ensureNewline() {
	if !p.lineOpen {
		return
	}
	fmt.Fprintln(p.out)
	p.lineOpen = false
}

// onContent prints incremental fragments as they arrive.
func (p *streamPrinter) onContent(fragment string) {
	if fragment == "" {
		return
	}
	fmt.Fprint(p.out, fragment)
	p.wroteText = true
	p.lineOpen = true
}

// onToolCalls prints tool activity markers.
func (p *streamPrinter) onToolCalls(calls []agentwire.ToolCall) {
	if !p.verbose {
		return
	}
	p.ensureNewline()
	for _, call := range calls {
		status := "running"
		if call.Content != "" || call.IsError {
			status = "completed"
			if call.IsError {
				status = "failed"
			}
		}
		fmt.Fprintf(p.errOut, "-> tool %s %s\n", call.Name, status)
	}
}

// onMessage closes the turn, falling back to the finalized content when no
// fragments were streamed (document-mode responses replay everything at once).
func (p *streamPrinter) onMessage(message agentwire.Message) {
	if p.wroteText {
		p.ensureNewline()
	} else if message.Content != "" {
		fmt.Fprintln(p.out, message.Content)
	}
	if p.verbose {
		p.printReferences(message)
	}
	if message.HasError {
		fmt.Fprintln(p.errOut, "The agent reported an error for this turn.")
	}
}

// printReferences lists citation payloads attached to the message.
func (p *streamPrinter) printReferences(message agentwire.Message) {
	refs, ok := message.ExtraData["references"]
	if !ok {
		return
	}
	encoded, err := json.Marshal(refs)
	if err != nil {
		return
	}
	fmt.Fprintf(p.errOut, "references: %s\n", summarizeForDisplay(string(encoded), 400))
}

// callbacks wires the printer into the runner.
func (p *streamPrinter) callbacks() *chat.Callbacks {
	return &chat.Callbacks{
		OnContent:   p.onContent,
		OnToolCalls: p.onToolCalls,
		OnMessage:   p.onMessage,
	}
}

// runPrint executes a single chat turn and prints the result.
func runPrint(ctx context.Context, runner *chat.Runner, prompt string, verbose bool) error {
	printer := newStreamPrinter(os.Stdout, os.Stderr, verbose)
	result, err := runner.Ask(ctx, prompt, printer.callbacks())
	if err != nil {
		return errors.New(formatRunError(err))
	}
	warnFallback(os.Stderr, result)
	return nil
}

// runAnalyzePrint executes a file-analysis turn and prints the result.
func runAnalyzePrint(ctx context.Context, runner *chat.Runner, prompt string, paths []string, verbose bool) error {
	files, closeFiles, err := openAttachments(paths)
	if err != nil {
		return err
	}
	defer closeFiles()

	printer := newStreamPrinter(os.Stdout, os.Stderr, verbose)
	callbacks := printer.callbacks()
	callbacks.OnProgress = func(p platform.Progress) {
		switch p.Phase {
		case "uploading":
			fmt.Fprintf(os.Stderr, "\ruploading... %d%%", p.Percent)
		case "processing":
			fmt.Fprint(os.Stderr, "\rprocessing...          \n")
		}
	}

	result, err := runner.Analyze(ctx, prompt, files, callbacks)
	if err != nil {
		return errors.New(formatRunError(err))
	}
	warnFallback(os.Stderr, result)
	return nil
}

// openAttachments opens the files for an analysis run.
func openAttachments(paths []string) ([]platform.File, func(), error) {
	var handles []*os.File
	closeAll := func() {
		for _, handle := range handles {
			handle.Close()
		}
	}

	files := make([]platform.File, 0, len(paths))
	for _, path := range paths {
		handle, err := os.Open(path)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("open attachment: %w", err)
		}
		handles = append(handles, handle)
		files = append(files, platform.File{
			Name:   filepath.Base(path),
			Reader: handle,
		})
	}
	return files, closeAll, nil
}

// warnFallback tells the user when the turn ran under a local session id.
func warnFallback(errOut io.Writer, result *chat.RunResult) {
	if result == nil || !result.Fallback {
		return
	}
	fmt.Fprintln(errOut, "warning: session registration failed; this conversation may not be recorded server-side")
}

// formatRunError normalizes common platform errors for terminal output.
func formatRunError(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *platform.APIError
	switch {
	case errors.Is(err, platform.ErrCancelled):
		return "Request cancelled."
	case errors.Is(err, platform.ErrTimeout):
		return "Request timed out."
	case errors.As(err, &apiErr):
		if apiErr.StatusCode == 413 {
			return "Attachment too large for the platform."
		}
		return fmt.Sprintf("Platform error (status %d): %s", apiErr.StatusCode, summarizeForDisplay(apiErr.Body, 240))
	default:
		return err.Error()
	}
}

// summarizeForDisplay collapses whitespace and truncates long strings.
func summarizeForDisplay(value string, max int) string {
	compact := strings.Join(strings.Fields(value), " ")
	runes := []rune(compact)
	if max <= 0 || len(runes) <= max {
		return compact
	}
	return string(runes[:max]) + "...(truncated)"
}

// withInterrupt builds a context that is cancelled on SIGINT.
func withInterrupt(parent context.Context, onInterrupt func()) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	done := make(chan struct{})

	go func() {
		select {
		case <-interrupt:
			if onInterrupt != nil {
				onInterrupt()
			}
			cancel()
		case <-done:
			return
		}
	}()

	return ctx, func() {
		close(done)
		signal.Stop(interrupt)
		cancel()
	}
}
