// Copyright (C) 2025 Runlens AI (dev@runlens.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"fmt"
	"os"
	"sync"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// SpinnerType defines the animation style
type SpinnerType int

const (
	SpinnerDots SpinnerType = iota
	SpinnerLine
	SpinnerPoints
	SpinnerPulse
)

func (t SpinnerType) frames() spinner.Spinner {
	switch t {
	case SpinnerLine:
		return spinner.Line
	case SpinnerPoints:
		return spinner.Points
	case SpinnerPulse:
		return spinner.Pulse
	default:
		return spinner.MiniDot
	}
}

// spinnerDoneMsg tells the model to clear its line and quit.
type spinnerDoneMsg struct{}

// spinnerMessageMsg replaces the message next to the animation.
type spinnerMessageMsg string

// spinModel is the bubbletea model driving the animation.
type spinModel struct {
	spinner  spinner.Model
	message  string
	quitting bool
}

func newSpinModel(spinType SpinnerType, message string) spinModel {
	s := spinner.New()
	s.Spinner = spinType.frames()
	s.Style = Styles.Highlight
	return spinModel{spinner: s, message: message}
}

func (m spinModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m spinModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinnerDoneMsg:
		m.quitting = true
		return m, tea.Quit
	case spinnerMessageMsg:
		m.message = string(msg)
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m spinModel) View() string {
	// Empty final frame so the spinner line disappears on quit.
	if m.quitting {
		return ""
	}
	return fmt.Sprintf("%s %s", m.spinner.View(), m.message)
}

// Spinner provides an animated loading indicator. The animation runs
// on a bubbletea program writing to stderr; stdout stays clean for
// command output. Non-interactive contexts degrade to one PROGRESS
// line per message.
type Spinner struct {
	mu       sync.Mutex
	message  string
	spinType SpinnerType
	program  *tea.Program
	running  bool
	plain    bool
}

// NewSpinner creates a new spinner with the given message
func NewSpinner(message string) *Spinner {
	return &Spinner{
		message:  message,
		spinType: SpinnerDots,
	}
}

// WithType sets the spinner animation type
func (s *Spinner) WithType(t SpinnerType) *Spinner {
	s.spinType = t
	return s
}

// Start begins the spinner animation
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true

	if !ShouldShowProgress() || !IsInteractive() {
		s.plain = true
		fmt.Printf("PROGRESS: %s\n", s.message)
		return
	}

	s.program = tea.NewProgram(newSpinModel(s.spinType, s.message), tea.WithOutput(os.Stderr))
	go func(p *tea.Program) {
		// Errors here mean the terminal went away; the fallback is
		// simply no animation.
		_, _ = p.Run()
	}(s.program)
}

// Stop halts the spinner animation
func (s *Spinner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false

	if s.plain {
		return
	}
	s.program.Send(spinnerDoneMsg{})
	s.program.Wait()
	s.program = nil
}

// UpdateMessage changes the spinner message while running
func (s *Spinner) UpdateMessage(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.message = message
	if !s.running {
		return
	}
	if s.plain {
		fmt.Printf("PROGRESS: %s\n", message)
		return
	}
	s.program.Send(spinnerMessageMsg(message))
}

// StopWithSuccess stops and prints a success message
func (s *Spinner) StopWithSuccess(message string) {
	s.Stop()
	Success(message)
}

// StopWithError stops and prints an error message
func (s *Spinner) StopWithError(message string) {
	s.Stop()
	Error(message)
}

// StopWithWarning stops and prints a warning message
func (s *Spinner) StopWithWarning(message string) {
	s.Stop()
	Warning(message)
}

// WithSpinner runs a function with a spinner, handling success/error automatically
func WithSpinner(message string, fn func() error) error {
	spin := NewSpinner(message)
	spin.Start()

	err := fn()

	if err != nil {
		spin.StopWithError(fmt.Sprintf("%s: %v", message, err))
		return err
	}

	spin.StopWithSuccess(message)
	return nil
}
