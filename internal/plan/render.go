package plan

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Render writes p in the given format.
func Render(w io.Writer, p *Plan, format string) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	case FormatText, "":
		return renderText(w, p)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func renderText(w io.Writer, p *Plan) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tINSTANCE\tADAPTER\tSIZE\tSTEPS\tCFG\tSAMPLER\tSEED\tOUTPUT")
	for _, inst := range p.Instances {
		r := inst.Request
		size := fmt.Sprintf("%dx%d", r.Width, r.Height)
		if r.BatchSize > 1 {
			size += fmt.Sprintf(" x%d", r.BatchSize)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%g\t%s\t%d\t%s\n",
			inst.Index+1, inst.ID, inst.Adapter, size, r.Steps, r.CFGScale, r.Sampler, r.Seed, inst.Output)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%d instance(s) planned for %s.\n", p.Len(), p.Script)
	return nil
}
