package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"

	"firestige.xyz/pktt/internal/core"
)

// Printer writes decoded packets in one format. Table rows are buffered
// until Flush so columns line up; YAML and JSON stream one document per
// packet.
type Printer struct {
	out    io.Writer
	format Format
	rows   [][]string
	docs   int
	yaml   *yaml.Encoder
	json   *json.Encoder
}

// NewPrinter creates a Printer writing to out.
func NewPrinter(out io.Writer, format Format) *Printer {
	p := &Printer{out: out, format: format}
	switch format {
	case FormatYAML:
		p.yaml = yaml.NewEncoder(out)
		p.yaml.SetIndent(2)
	case FormatJSON:
		p.json = json.NewEncoder(out)
	}
	return p
}

// Print outputs one packet.
func (p *Printer) Print(pkt *core.Packet) error {
	v := NewPacketView(pkt)
	switch p.format {
	case FormatTable:
		p.rows = append(p.rows, v.Row())
		return nil
	case FormatYAML:
		p.docs++
		return p.yaml.Encode(v)
	case FormatJSON:
		return p.json.Encode(v)
	default:
		return fmt.Errorf("unknown format: %s", p.format)
	}
}

// Flush writes whatever is buffered.
func (p *Printer) Flush() error {
	switch p.format {
	case FormatTable:
		PrintTable(p.out, packetHeaders, p.rows)
		p.rows = nil
	case FormatYAML:
		// An encoder that never wrote a document has no stream to end.
		if p.docs == 0 {
			return nil
		}
		return p.yaml.Close()
	}
	return nil
}

// PrintTable writes rows as a borderless table.
func PrintTable(w io.Writer, headers []string, rows [][]string) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(headers)

	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)

	table.AppendBulk(rows)
	table.Render()
}

// SimpleTable prints key-value pairs.
func SimpleTable(w io.Writer, pairs [][2]string) {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator(":")
	table.SetRowSeparator("")
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)

	for _, pair := range pairs {
		table.Append([]string{pair[0], pair[1]})
	}
	table.Render()
}
