package output

import (
	"fmt"
	"io"
	"time"

	"github.com/tiroq/voxbox/internal/ipc"
	"github.com/tiroq/voxbox/internal/statemachine"
)

type Formatter struct {
	w io.Writer
}

func NewFormatter(w io.Writer) *Formatter {
	return &Formatter{w: w}
}

func (f *Formatter) Error(msg string) {
	fmt.Fprintf(f.w, "❌ %s\n", msg)
}

func (f *Formatter) Info(msg string) {
	fmt.Fprintf(f.w, "ℹ️  %s\n", msg)
}

func (f *Formatter) Success(msg string) {
	fmt.Fprintf(f.w, "✅ %s\n", msg)
}

func (f *Formatter) Warning(msg string) {
	fmt.Fprintf(f.w, "⚠️  %s\n", msg)
}

func (f *Formatter) CommandSent(cmd ipc.Command) {
	fmt.Fprintf(f.w, "📨 Sent %s\n", cmd)
}

func (f *Formatter) SetupCheck(name string, ok bool, detail string) {
	if ok {
		fmt.Fprintf(f.w, "  ✅ %s: %s\n", name, detail)
	} else {
		fmt.Fprintf(f.w, "  ❌ %s: %s\n", name, detail)
	}
}

// Status renders a status snapshot. now is used to show the snapshot age.
func (f *Formatter) Status(s *ipc.StatusSnapshot, now time.Time) {
	fmt.Fprintf(f.w, "%s %s\n", stateIcon(s.State), stateLabel(s.State))
	fmt.Fprintf(f.w, "  Handle:     %s\n", s.Handle)
	if s.RecordingExists {
		fmt.Fprintf(f.w, "  Recording:  %s\n", s.RecordingPath)
	} else {
		fmt.Fprintf(f.w, "  Recording:  none\n")
	}
	fmt.Fprintf(f.w, "  Backend:    %s\n", s.Backend)
	fmt.Fprintf(f.w, "  Permission: %s\n", permissionLabel(s))
	if s.LastAction != "" {
		fmt.Fprintf(f.w, "  Last:       %s\n", s.LastAction)
	}
	if s.LastError != "" {
		fmt.Fprintf(f.w, "  Error:      %s\n", s.LastError)
	}
	fmt.Fprintf(f.w, "  Updated:    %s ago (PID %d)\n", formatDuration(now.Sub(s.Timestamp)), s.PID)
}

// StateLine renders one streamed state event.
func (f *Formatter) StateLine(at time.Time, state statemachine.State, errMsg string) {
	line := fmt.Sprintf("%s %s %s", at.Format("15:04:05"), stateIcon(state), stateLabel(state))
	if errMsg != "" {
		line += " (" + errMsg + ")"
	}
	fmt.Fprintln(f.w, line)
}

func stateIcon(s statemachine.State) string {
	switch s {
	case statemachine.StateRecording:
		return "🔴"
	case statemachine.StateRecorded:
		return "💾"
	case statemachine.StatePlaying:
		return "▶️ "
	default:
		return "⏺️ "
	}
}

func stateLabel(s statemachine.State) string {
	switch s {
	case statemachine.StateBeforeRecording:
		return "Ready to record"
	case statemachine.StateRecording:
		return "Recording"
	case statemachine.StateRecorded:
		return "Recorded"
	case statemachine.StatePlaying:
		return "Playing"
	default:
		return string(s)
	}
}

func permissionLabel(s *ipc.StatusSnapshot) string {
	switch {
	case s.Terminated:
		return "denied (session ended)"
	case s.PermissionGranted:
		return "granted"
	default:
		return "pending"
	}
}

func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
