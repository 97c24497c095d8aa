package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Render writes s in the given format.
func Render(w io.Writer, s *Summary, format string) error {
	switch format {
	case FormatJSON:
		return renderJSON(w, s)
	case FormatText, "":
		return renderText(w, s)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func renderJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderText(w io.Writer, s *Summary) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STEP\tSTATE\tATTEMPTS\tDURATION\tDETAIL")
	for _, st := range s.Steps {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", st.ID, st.State, st.Attempts, formatMS(st.DurationMS), detail(st))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	c := s.Counts
	fmt.Fprintf(w, "\nRun %s %s in %s: %d succeeded, %d failed, %d timed out, %d cancelled (of %d).\n",
		s.RunID, s.Status, formatMS(s.ElapsedMS), c.Succeeded, c.Failed, c.TimedOut, c.Cancelled, c.Total)
	if s.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", s.Error)
	}
	if len(s.Outputs) > 0 {
		fmt.Fprintf(w, "Outputs in %s:\n", s.ArtifactsDir)
		for _, out := range s.Outputs {
			fmt.Fprintf(w, "  %s\n", out)
		}
	}
	return nil
}

func detail(st StepResult) string {
	switch {
	case st.Error != "":
		kind := ""
		if st.ErrorKind != "" {
			kind = "[" + string(st.ErrorKind) + "] "
		}
		return kind + oneLine(st.Error)
	case st.Reused:
		return strings.Join(st.Outputs, ", ") + " (reused)"
	default:
		return strings.Join(st.Outputs, ", ")
	}
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func formatMS(ms int64) string {
	return (time.Duration(ms) * time.Millisecond).String()
}
