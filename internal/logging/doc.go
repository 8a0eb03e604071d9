// Package logging provides concrete implementations of the txretry.Logger interface.
//
// Available implementations:
//   - ConsoleLogger: Writes tagged lines to stderr (or any io.Writer), with
//     lipgloss-colored tags on terminals
//   - NullLogger: Discards all messages (useful for testing)
//
// All logger implementations are safe for concurrent use by multiple goroutines.
package logging
