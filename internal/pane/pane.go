// Package pane implements a multiplexed, per-task terminal pane renderer:
// one line per event, prefixed with the task's padded name in that task's
// colour.
package pane

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

var paneColours = []lipgloss.Color{"2", "4", "5", "6", "3", "9", "13", "14"}

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
)

// EventKind discriminates the payload carried by an Event.
type EventKind int

const (
	EventLine EventKind = iota
	EventStatus
	EventStart
	EventSucceeded
	EventFailed
)

// Event is one unit of output or lifecycle state sent to the pane
// renderer by a task runner.
type Event struct {
	Task   string
	Kind   EventKind
	Line   string
	Status string
	Miss   bool
	Reason string
}

// Sender is the producer side of the paired sender/receiver. Safe for
// concurrent use by multiple task runners, matching the "multi-producer
// safe" contract.
type Sender struct {
	ch       chan Event
	stop     chan struct{}
	stopOnce sync.Once
}

// Receiver is the consumer side, passed to RunApp.
type Receiver struct {
	ch   <-chan Event
	stop <-chan struct{}
}

// New constructs a paired Sender and Receiver.
func New() (*Sender, *Receiver) {
	ch := make(chan Event, 256)
	stop := make(chan struct{})
	return &Sender{ch: ch, stop: stop}, &Receiver{ch: ch, stop: stop}
}

// PaneWriter is the per-task handle returned by Sender.Task. It accepts
// formatted lines and lifecycle transitions for exactly one task.
type PaneWriter struct {
	name   string
	sender *Sender
}

// Task returns a PaneWriter scoped to name.
func (s *Sender) Task(name string) *PaneWriter {
	return &PaneWriter{name: name, sender: s}
}

// Status updates the displayed status text for a task; miss marks it as a
// notable/attention-worthy update (rendered distinctly).
func (s *Sender) Status(name, text string, miss bool) {
	s.send(Event{Task: name, Kind: EventStatus, Status: text, Miss: miss})
}

// Stop requests orderly shutdown of the render loop. Idempotent.
func (s *Sender) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *Sender) send(e Event) {
	select {
	case s.ch <- e:
	case <-s.stop:
	}
}

// WriteLine sends one line of output for this task's pane.
func (w *PaneWriter) WriteLine(line string) {
	w.sender.send(Event{Task: w.name, Kind: EventLine, Line: line})
}

// Start announces that the task has begun.
func (w *PaneWriter) Start() {
	w.sender.send(Event{Task: w.name, Kind: EventStart})
}

// Succeeded marks the task as having completed successfully.
func (w *PaneWriter) Succeeded() {
	w.sender.send(Event{Task: w.name, Kind: EventSucceeded})
}

// Failed marks the task as having failed, with a human-readable reason.
func (w *PaneWriter) Failed(reason string) {
	w.sender.send(Event{Task: w.name, Kind: EventFailed, Reason: reason})
}

// RunApp renders events from r until the user requests a quit (typing "q"
// followed by Enter on stdin), the sender is stopped, or ctx is
// cancelled — whichever happens first. It writes to out.
func RunApp(ctx context.Context, names []string, r *Receiver, out io.Writer) error {
	width := 0
	colour := make(map[string]lipgloss.Style, len(names))
	for i, n := range names {
		if len(n) > width {
			width = len(n)
		}
		colour[n] = lipgloss.NewStyle().Foreground(paneColours[i%len(paneColours)]).Bold(true)
	}

	quit := make(chan struct{})
	go watchQuitKey(quit)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.stop:
			// Render whatever was sent before Stop, then return.
			for {
				select {
				case ev := <-r.ch:
					render(out, ev, width, colour)
				default:
					return nil
				}
			}
		case <-quit:
			return nil
		case ev, ok := <-r.ch:
			if !ok {
				return nil
			}
			render(out, ev, width, colour)
		}
	}
}

func render(out io.Writer, ev Event, width int, colour map[string]lipgloss.Style) {
	style, ok := colour[ev.Task]
	if !ok {
		style = subtleStyle
	}
	prefix := style.Render(padRight(ev.Task, width))

	switch ev.Kind {
	case EventLine:
		fmt.Fprintf(out, "%s | %s\n", prefix, ev.Line)
	case EventStatus:
		text := infoStyle.Render(ev.Status)
		if ev.Miss {
			text = failStyle.Render(ev.Status)
		}
		fmt.Fprintf(out, "%s | %s\n", prefix, text)
	case EventStart:
		fmt.Fprintf(out, "%s | %s\n", prefix, subtleStyle.Render("starting"))
	case EventSucceeded:
		fmt.Fprintf(out, "%s | %s\n", prefix, successStyle.Render("succeeded"))
	case EventFailed:
		fmt.Fprintf(out, "%s | %s\n", prefix, failStyle.Render("failed: "+ev.Reason))
	}
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

// watchQuitKey closes quit when the user types "q" on stdin. Exits
// silently once stdin is closed or unreadable, which is expected when
// stdin is not a terminal (tests, piped invocations).
func watchQuitKey(quit chan struct{}) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) == "q" {
			close(quit)
			return
		}
	}
}
