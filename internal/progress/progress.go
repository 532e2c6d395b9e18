// Package progress renders a sync run's progress to a terminal, kept
// entirely outside the sync engine itself: the engine only calls a plain
// callback, so running headless or piping output never depends on this
// package.
package progress

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/gux928/fastsync/syncengine"
)

// Reporter renders SyncAction progress as a terminal progress bar, or as
// plain colored lines when stdout isn't a terminal.
type Reporter struct {
	enabled     bool
	bar         *progressbar.ProgressBar
	interactive bool
}

// NewReporter builds a Reporter for a plan of the given size. Pass
// enabled=false (e.g. for --quiet or --dry-run) to get a Reporter whose
// Report is a no-op.
func NewReporter(total int, enabled bool) *Reporter {
	if !enabled {
		return &Reporter{enabled: false}
	}

	interactive := term.IsTerminal(int(os.Stdout.Fd()))
	var bar *progressbar.ProgressBar
	if interactive {
		bar = progressbar.NewOptions(total,
			progressbar.OptionSetDescription("syncing"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(30),
			progressbar.OptionClearOnFinish(),
		)
	}
	return &Reporter{enabled: true, bar: bar, interactive: interactive}
}

// Report renders one completed action. It is safe to pass as a
// syncengine.Engine.OnProgress callback directly.
func (r *Reporter) Report(p syncengine.Progress) {
	if r == nil || !r.enabled {
		return
	}

	if r.bar != nil {
		r.bar.Add(1)
		return
	}

	line := fmt.Sprintf("[%d/%d] %s %s", p.Completed, p.Total, p.Action.Kind, p.Action.Path)
	switch {
	case p.Err != nil:
		color.New(color.FgRed).Fprintln(os.Stdout, line+" FAILED: "+p.Err.Error())
	case p.Action.Kind == syncengine.ActionDelete:
		color.New(color.FgYellow).Fprintln(os.Stdout, line)
	case p.Action.Kind == syncengine.ActionUpload:
		color.New(color.FgGreen).Fprintln(os.Stdout, line)
	default:
		fmt.Fprintln(os.Stdout, line)
	}
}

// Finish closes out the bar, if any.
func (r *Reporter) Finish() {
	if r != nil && r.bar != nil {
		_ = r.bar.Finish()
	}
}
