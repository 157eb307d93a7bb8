package dashboard

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/charmbracelet/x/ansi"
)

// NoMinersMessage is printed in place of the miners table.
const NoMinersMessage = "No miners found."

// Renderer puts a View on the terminal.
type Renderer interface {
	// Clear wipes the screen before a new cycle is drawn.
	Clear()
	// Render draws the summary table and the miners table.
	Render(v View)
	// Message prints a single status line.
	Message(line string)
}

// Theme holds the colors used by the tables.
type Theme struct {
	Border lipgloss.Color
	Header lipgloss.Color
	Text   lipgloss.Color
	Muted  lipgloss.Color
}

// DefaultTheme is a muted palette that reads on dark and light terminals.
var DefaultTheme = Theme{
	Border: lipgloss.Color("#4D4C57"),
	Header: lipgloss.Color("#6B50FF"),
	Text:   lipgloss.Color("#DFDBDD"),
	Muted:  lipgloss.Color("#858392"),
}

// TableRenderer draws views as lipgloss tables on a writer.
type TableRenderer struct {
	out   io.Writer
	theme Theme
}

// NewTableRenderer creates a renderer writing to out.
func NewTableRenderer(out io.Writer, theme Theme) *TableRenderer {
	return &TableRenderer{out: out, theme: theme}
}

// Clear erases the terminal and homes the cursor.
func (r *TableRenderer) Clear() {
	fmt.Fprint(r.out, ansi.EraseEntireScreen+ansi.CursorHomePosition)
}

// Message prints line followed by a newline.
func (r *TableRenderer) Message(line string) {
	fmt.Fprintln(r.out, line)
}

// Render prints the no-miners notice when needed, then the summary table and
// the miners table.
func (r *TableRenderer) Render(v View) {
	if len(v.Miners) == 0 {
		r.Message(NoMinersMessage)
	}

	fmt.Fprintln(r.out, r.summaryTable(v.Summary))

	if len(v.Miners) > 0 {
		fmt.Fprintln(r.out, r.minersTable(v.Miners))
	}
}

func (r *TableRenderer) summaryTable(row SummaryRow) string {
	return table.New().
		Border(lipgloss.HiddenBorder()).
		BorderHeader(true).
		BorderStyle(lipgloss.NewStyle().Foreground(r.theme.Border)).
		StyleFunc(r.cellStyle).
		Headers(SummaryHeaders...).
		Row(row.Cells()...).
		String()
}

func (r *TableRenderer) minersTable(rows []MinerRow) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderRow(true).
		BorderStyle(lipgloss.NewStyle().Foreground(r.theme.Border)).
		StyleFunc(r.cellStyle).
		Headers(MinerHeaders...)

	for _, row := range rows {
		t.Row(row.Cells()...)
	}

	return t.String()
}

func (r *TableRenderer) cellStyle(row, col int) lipgloss.Style {
	base := lipgloss.NewStyle().Padding(0, 1)
	if row == table.HeaderRow {
		return base.Bold(true).Foreground(r.theme.Header)
	}
	if col == 0 {
		return base.Foreground(r.theme.Text)
	}
	return base.Foreground(r.theme.Muted)
}
