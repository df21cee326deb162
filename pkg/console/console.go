// Package console is the terminal front end of a chat node: it prints what
// the router hands over and turns typed lines into node operations.
package console

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"

	"github.com/lanchat/pkg/history"
)

// Console prints received lines and history dumps. Safe for concurrent use.
type Console struct {
	out     io.Writer
	colours bool
	mu      sync.Mutex
}

// New writes to out. colours enables ANSI colouring.
func New(out io.Writer, colours bool) *Console {
	return &Console{out: out, colours: colours}
}

func (c *Console) paint(text string, colours ...color.Color) string {
	if !c.colours {
		return text
	}
	return color.New(colours...).Render(text)
}

func (c *Console) println(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintln(c.out, text)
}

// Show prints one received line
func (c *Console) Show(line string) {
	switch {
	case strings.HasSuffix(line, " has joined"):
		line = c.paint(line, color.FgGreen)
	case strings.HasSuffix(line, " has left"):
		line = c.paint(line, color.FgYellow)
	}
	c.println(line)
}

// ShowHistory prints a history dump received from another node
func (c *Console) ShowHistory(from string, lines []string) {
	var b strings.Builder
	b.WriteString(c.paint(fmt.Sprintf("  ====== history from %s (%d) ======", from, len(lines)), color.BgBlack, color.FgGreen))
	for _, l := range lines {
		b.WriteString("\n")
		b.WriteString(l)
	}
	c.println(b.String())
}

// Notice prints a local status line
func (c *Console) Notice(format string, v ...interface{}) {
	c.println(c.paint(fmt.Sprintf(format, v...), color.FgCyan))
}

// ShowLog prints the local history split by tag
func (c *Console) ShowLog(log *history.Log) {
	var b strings.Builder
	table := tablewriter.NewWriter(&b)
	table.SetHeader([]string{"#", "Direction", "Line"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)

	n := 0
	for _, tag := range []history.Tag{history.Incoming, history.Outgoing} {
		for _, line := range log.FilterByTag(tag) {
			n++
			table.Append([]string{fmt.Sprint(n), string(tag), line})
		}
	}
	table.Render()
	c.println(strings.TrimRight(b.String(), "\n"))
}

// Table prints whatever render writes, under the console lock
func (c *Console) Table(render func(io.Writer)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	render(c.out)
}
