// ABOUTME: Terminal progress bar fed from a progress pipe
// ABOUTME: Renders scan and update percentages on stderr

package main

import (
	"io"
	"os"
	"strings"

	"github.com/schollz/progressbar/v3"

	"github.com/hikmaai-io/hikmaai-warden/internal/progress"
)

// progressVisible honours WARDEN_DISABLE_PROGRESS.
func progressVisible(disabled bool) bool {
	if disabled {
		return false
	}
	value := strings.ToLower(strings.TrimSpace(os.Getenv("WARDEN_DISABLE_PROGRESS")))
	return value != "1" && value != "true" && value != "yes" && value != "on"
}

// progressBar drains a pipe into a bar until the pipe closes.
type progressBar struct {
	pipe *progress.Pipe
	bar  *progressbar.ProgressBar
	done chan struct{}
}

func newProgressBar(w io.Writer, description string, visible bool) *progressBar {
	p := &progressBar{
		pipe: progress.NewPipe(0),
		bar: progressbar.NewOptions(100,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetDescription(description),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionSetVisibility(visible),
			progressbar.OptionFullWidth(),
			progressbar.OptionClearOnFinish(),
		),
		done: make(chan struct{}),
	}

	go func() {
		defer close(p.done)
		for pct := range p.pipe.Events() {
			_ = p.bar.Set(int(pct))
		}
		_ = p.bar.Finish()
	}()
	return p
}

// Sink is the pipe's sending side.
func (p *progressBar) Sink() progress.Sink { return p.pipe }

// Stop closes the pipe and waits for the bar to finish drawing.
func (p *progressBar) Stop() {
	p.pipe.Close()
	<-p.done
}
