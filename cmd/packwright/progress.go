package main

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/packwright/core/internal/converge"
)

// progressManager renders converge.Event milestones: a live bar per
// in-flight fetch on a TTY, plain lines otherwise.
type progressManager struct {
	mu       sync.Mutex
	w        io.Writer
	isTTY    bool
	progress *mpb.Progress
	bars     map[string]*mpb.Bar

	ok   *color.Color
	bad  *color.Color
	dim  *color.Color
}

func newProgressManager(w io.Writer, noColor bool) *progressManager {
	if noColor {
		color.NoColor = true
	}
	isTTY := isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())

	pm := &progressManager{
		w:     w,
		isTTY: isTTY,
		bars:  make(map[string]*mpb.Bar),
		ok:    color.New(color.FgGreen),
		bad:   color.New(color.FgRed),
		dim:   color.New(color.FgHiBlack),
	}
	if isTTY {
		pm.progress = mpb.New(mpb.WithOutput(w), mpb.WithWidth(40))
	}
	return pm
}

func (pm *progressManager) Wait() {
	if pm.progress != nil {
		pm.progress.Wait()
	}
}

func (pm *progressManager) handleEvent(e converge.Event) {
	switch e.Type {
	case converge.EventResolveStart:
		fmt.Fprintln(pm.w, pm.dim.Sprint("Resolving dependencies..."))
	case converge.EventResolveComplete:
		fmt.Fprintln(pm.w, pm.ok.Sprint("Resolved"))
	case converge.EventFetchStart:
		pm.startFetch(e)
	case converge.EventFetchProgress:
		pm.updateFetch(e)
	case converge.EventFetchComplete:
		pm.completeFetch(e)
	case converge.EventLockWritten:
		fmt.Fprintln(pm.w, pm.ok.Sprint("Lockfile written"))
	case converge.EventError:
		fmt.Fprintln(pm.w, pm.bad.Sprintf("error: %v", e.Err))
	}
}

func (pm *progressManager) startFetch(e converge.Event) {
	key := e.Package + "@" + e.Version
	if !pm.isTTY {
		fmt.Fprintf(pm.w, "  fetching %s %s\n", e.Package, e.Version)
		return
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()
	bar := pm.progress.AddBar(0,
		mpb.BarFillerClearOnComplete(),
		mpb.PrependDecorators(
			decor.Name(fmt.Sprintf("  %s ", e.Package), decor.WC{W: 24, C: decor.DindentRight}),
			decor.Name(e.Version, decor.WC{W: 12}),
		),
		mpb.AppendDecorators(
			decor.CountersKibiByte("% .1f / % .1f"),
			decor.OnComplete(decor.Name(""), " done"),
		),
	)
	pm.bars[key] = bar
}

func (pm *progressManager) updateFetch(e converge.Event) {
	if !pm.isTTY {
		return
	}
	pm.mu.Lock()
	bar, ok := pm.bars[e.Package]
	pm.mu.Unlock()
	if !ok {
		return
	}
	if e.Total > 0 {
		bar.SetTotal(e.Total, false)
	}
	bar.SetCurrent(e.Downloaded)
}

func (pm *progressManager) completeFetch(e converge.Event) {
	key := e.Package + "@" + e.Version
	if !pm.isTTY {
		fmt.Fprintf(pm.w, "  %s %s %s\n", pm.ok.Sprint("done"), e.Package, e.Version)
		return
	}
	pm.mu.Lock()
	defer pm.mu.Unlock()
	bar, ok := pm.bars[key]
	if !ok {
		return
	}
	bar.SetTotal(bar.Current(), true)
	delete(pm.bars, key)
}
