package output

import (
	"fmt"
	"io"
	"strings"
)

// Format names an output encoding selected with --output.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// Formatter writes a command result to w.
type Formatter interface {
	Format(w io.Writer, data any) error
}

var formatters = map[Format]func() Formatter{
	FormatTable: func() Formatter { return &TableFormatter{} },
	FormatJSON:  func() Formatter { return &JSONFormatter{} },
	FormatYAML:  func() Formatter { return &YAMLFormatter{} },
}

// ParseFormat resolves a format name case-insensitively. The empty
// name means table.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(s))
	if f == "" {
		return FormatTable, nil
	}
	if _, ok := formatters[f]; !ok {
		return "", fmt.Errorf("output: unknown format %q (want table, json or yaml)", s)
	}
	return f, nil
}

// NewFormatter returns the formatter for format, falling back to table.
func NewFormatter(format Format) Formatter {
	if mk, ok := formatters[format]; ok {
		return mk()
	}
	return &TableFormatter{}
}

// Print parses the format name and writes data with it.
func Print(w io.Writer, format string, data any) error {
	f, err := ParseFormat(format)
	if err != nil {
		return err
	}
	return NewFormatter(f).Format(w, data)
}
