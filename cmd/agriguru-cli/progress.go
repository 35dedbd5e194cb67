package main

import (
	"fmt"
	"io"
	"time"

	"github.com/briandowns/spinner"
	"github.com/schollz/progressbar/v3"
)

// DayBar tracks a multi-day run, one tick per day.
type DayBar struct {
	bar *progressbar.ProgressBar
}

// NewDayBar creates a day counter writing to w.
func NewDayBar(w io.Writer, total int, description string) *DayBar {
	bar := progressbar.NewOptions(
		total,
		progressbar.OptionSetWidth(50),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
		progressbar.OptionSetWriter(w),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("days"),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(w, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
	)
	return &DayBar{bar: bar}
}

// Describe changes the label shown before the bar.
func (p *DayBar) Describe(description string) {
	p.bar.Describe(description)
}

// Add advances the bar by one day.
func (p *DayBar) Add() {
	_ = p.bar.Add(1)
}

// Finish completes the bar.
func (p *DayBar) Finish() {
	_ = p.bar.Finish()
}

// Spinner shows indeterminate progress while a request runs.
type Spinner struct {
	spinner *spinner.Spinner
}

// NewSpinner creates a spinner with the given message. A nil writer
// yields a spinner that does nothing.
func NewSpinner(w io.Writer, message string) *Spinner {
	if w == nil {
		return &Spinner{}
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
	s.Suffix = " " + message
	return &Spinner{spinner: s}
}

// Start starts the spinner animation.
func (s *Spinner) Start() {
	if s.spinner != nil {
		s.spinner.Start()
	}
}

// Stop stops the spinner animation and clears the line.
func (s *Spinner) Stop() {
	if s.spinner != nil {
		s.spinner.Stop()
	}
}

// UpdateMessage updates the spinner's message.
func (s *Spinner) UpdateMessage(message string) {
	if s.spinner != nil {
		s.spinner.Lock()
		s.spinner.Suffix = " " + message
		s.spinner.Unlock()
	}
}
