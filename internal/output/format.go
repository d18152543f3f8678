// Package output renders decoded packets for the command line.
package output

import (
	"fmt"
	"strings"
)

// Format is an output format.
type Format string

const (
	FormatTable Format = "table"
	FormatYAML  Format = "yaml"
	FormatJSON  Format = "json"
)

// ParseFormat parses a format name; the empty string selects the table.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "table", "":
		return FormatTable, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("invalid output format: %q (valid: table, yaml, json)", s)
	}
}

func (f Format) String() string { return string(f) }
