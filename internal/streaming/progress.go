package streaming

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// ProgressReporter renders a periodic progress line for an active
// stream, adapted from the teacher's byte-oriented backup progress
// display to the line-oriented counters this domain tracks.
type ProgressReporter struct {
	name string

	linesDone  atomic.Int64
	totalLines int64

	startTime time.Time
	done      chan struct{}
	render    func(string)
}

// NewProgressReporter starts a reporter that calls render with a
// formatted status line every 500ms until Stop is called. totalLines
// of zero renders an indeterminate spinner instead of a bar filled in
// proportion to linesDone/totalLines, and the ETA stays "?".
func NewProgressReporter(name string, totalLines int64, render func(string)) *ProgressReporter {
	p := &ProgressReporter{
		name:       name,
		totalLines: totalLines,
		startTime:  time.Now(),
		done:       make(chan struct{}),
		render:     render,
	}
	go p.loop()
	return p
}

// Update records the current line count, to be reflected by the next tick.
func (p *ProgressReporter) Update(count int64) {
	p.linesDone.Store(count)
}

// Stop ends the render loop and emits one final line.
func (p *ProgressReporter) Stop() {
	close(p.done)
	p.emit(true)
}

func (p *ProgressReporter) loop() {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			p.emit(false)
		}
	}
}

func (p *ProgressReporter) emit(final bool) {
	if p.render == nil {
		return
	}

	lines := p.linesDone.Load()
	elapsed := time.Since(p.startTime)
	elapsedSec := elapsed.Seconds()

	var rate float64
	if elapsedSec > 0.1 {
		rate = float64(lines) / elapsedSec
	}

	const barWidth = 30
	var bar string
	if p.totalLines > 0 {
		pct := float64(lines) / float64(p.totalLines)
		if pct > 1.0 {
			pct = 1.0
		}
		filled := int(pct * float64(barWidth))
		bar = strings.Repeat("#", filled) + strings.Repeat("-", barWidth-filled)
	} else {
		pos := int(elapsed.Seconds()*2) % barWidth
		bar = strings.Repeat("-", pos) + "#" + strings.Repeat("-", barWidth-pos-1)
	}

	eta := "?"
	if p.totalLines > 0 && rate > 0 && lines > 0 {
		remaining := float64(p.totalLines - lines)
		if remaining < 0 {
			remaining = 0
		}
		eta = time.Duration(remaining / rate * float64(time.Second)).Round(time.Second).String()
	}

	suffix := ""
	if final {
		suffix = " (final)"
	}
	p.render(fmt.Sprintf("[%s] %s  %d lines  %.1f lines/s  ETA %s%s", p.name, bar, lines, rate, eta, suffix))
}
