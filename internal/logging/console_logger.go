package logging

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/vvka-141/txretry/pkg/txretry"
)

var (
	verboseStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
)

// ConsoleLogger writes log messages to stderr, or to the writer given to
// NewConsoleLoggerTo. Safe for concurrent use by multiple goroutines.
type ConsoleLogger struct {
	verbose bool
	styled  bool
	out     io.Writer
	mu      sync.Mutex
}

// NewConsoleLogger creates a ConsoleLogger writing to stderr.
// If verbose is false, Verbose() calls are no-ops. Level tags are colored
// when stderr is a terminal and NO_COLOR is unset.
func NewConsoleLogger(verbose bool) *ConsoleLogger {
	l := NewConsoleLoggerTo(os.Stderr, verbose)
	l.styled = os.Getenv("NO_COLOR") == "" && term.IsTerminal(int(os.Stderr.Fd()))
	return l
}

// NewConsoleLoggerTo creates a ConsoleLogger writing plain text to out.
func NewConsoleLoggerTo(out io.Writer, verbose bool) *ConsoleLogger {
	return &ConsoleLogger{
		verbose: verbose,
		out:     out,
	}
}

// SetStyled toggles colored level tags.
func (l *ConsoleLogger) SetStyled(styled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.styled = styled
}

// Verbose logs detailed diagnostic information if verbose mode is enabled.
func (l *ConsoleLogger) Verbose(format string, args ...interface{}) {
	if !l.verbose {
		return
	}
	l.write("[VERBOSE]", &verboseStyle, format, args)
}

// Info logs informational messages about normal operations.
func (l *ConsoleLogger) Info(format string, args ...interface{}) {
	l.write("", nil, format, args)
}

// Warn logs recoverable problems such as retried conflicts.
func (l *ConsoleLogger) Warn(format string, args ...interface{}) {
	l.write("[WARN]", &warnStyle, format, args)
}

// Error logs error messages.
func (l *ConsoleLogger) Error(format string, args ...interface{}) {
	l.write("[ERROR]", &errorStyle, format, args)
}

func (l *ConsoleLogger) write(tag string, style *lipgloss.Style, format string, args []interface{}) {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if tag != "" {
		if l.styled && style != nil {
			tag = style.Render(tag)
		}
		msg = tag + " " + msg
	}
	fmt.Fprint(l.out, msg+"\n")
}

var _ txretry.Logger = (*ConsoleLogger)(nil)
