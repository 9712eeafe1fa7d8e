package trace

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/cascade-labs/cascade/internal/core"
)

// Console colors
var (
	ruleColor      = lipgloss.Color("#8b5cf6") // Violet
	completedColor = lipgloss.Color("#22c55e") // Green
	executingColor = lipgloss.Color("#F59E0B") // Amber
	pendingColor   = lipgloss.Color("#6b7280") // Gray muted
	failureColor   = lipgloss.Color("#f43f5e") // Rose
	labelColor     = lipgloss.Color("#c9d1d9") // Light text
)

// Console renders the execution audit trail for interactive runs.
// A nil *Console is valid and renders nothing, so callers do not need
// to guard every trace call behind a verbosity check.
type Console struct {
	w     io.Writer
	width int
}

// NewConsole creates a console writing to w. A zero width defaults to 80.
func NewConsole(w io.Writer, width int) *Console {
	if w == nil {
		w = os.Stdout
	}
	if width < 40 {
		width = 80
	}
	return &Console{w: w, width: width}
}

// Rule prints a horizontal rule with a centered title.
func (c *Console) Rule(title string) {
	if c == nil {
		return
	}
	style := lipgloss.NewStyle().Foreground(ruleColor).Bold(true)
	if title == "" {
		fmt.Fprintln(c.w, style.Render(strings.Repeat("─", c.width)))
		return
	}
	label := " " + title + " "
	side := (c.width - lipgloss.Width(label)) / 2
	if side < 2 {
		side = 2
	}
	line := strings.Repeat("─", side) + label + strings.Repeat("─", side)
	fmt.Fprintln(c.w, style.Render(line))
}

// Round prints the readiness snapshot before a scheduling round.
func (c *Console) Round(level core.Level, round int, completed map[string]bool, ready, pending []string) {
	if c == nil {
		return
	}
	c.Rule(fmt.Sprintf("%s round %d", level, round))

	done := make([]string, 0, len(completed))
	for id := range completed {
		done = append(done, id)
	}
	sort.Strings(done)

	c.line("completed", done, completedColor)
	c.line("this round", ready, executingColor)
	c.line("waiting", pending, pendingColor)
}

// Plan prints the titles of a freshly planned graph in id order.
func (c *Console) Plan(level core.Level, g core.Graph) {
	if c == nil {
		return
	}
	c.Rule(fmt.Sprintf("%s plan", level))
	label := lipgloss.NewStyle().Foreground(labelColor)
	for _, id := range g.IDs() {
		fmt.Fprintf(c.w, "  %s\n", label.Render(fmt.Sprintf("%s: %s", id, g[id].Title)))
	}
}

// Result prints the outcome of one executed unit.
func (c *Console) Result(ref core.UnitRef, action core.Action) {
	if c == nil {
		return
	}
	color := completedColor
	if !action.Succeeded() {
		color = failureColor
	}
	badge := lipgloss.NewStyle().Foreground(color).Bold(true).Render(action.Result)
	fmt.Fprintf(c.w, "  %s %s %s\n", badge, ref.String(), action.Tool)
}

// Failure prints a recorded error before backtracking.
func (c *Console) Failure(ref core.UnitRef, rec core.ErrorRecord) {
	if c == nil {
		return
	}
	style := lipgloss.NewStyle().Foreground(failureColor)
	fmt.Fprintf(c.w, "  %s %s: %s\n", style.Render(rec.ErrorID), ref.String(), style.Render(rec.Error))
}

func (c *Console) line(name string, ids []string, color lipgloss.Color) {
	label := lipgloss.NewStyle().Foreground(labelColor).Bold(true)
	value := lipgloss.NewStyle().Foreground(color)
	body := "(none)"
	if len(ids) > 0 {
		body = strings.Join(ids, ", ")
	}
	fmt.Fprintf(c.w, "  %s %s\n", label.Render(name+":"), value.Render(body))
}
