package cli

import (
	"fmt"

	"github.com/roach88/rollup/internal/canonical"
)

// formatValue renders a scenario value as canonical JSON, or "-" for none.
func formatValue(v any) string {
	if v == nil {
		return "-"
	}
	b, err := canonical.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// formatStep renders one step as a single trace line, e.g.
//
//	#2 counter-0001 A (aggregating) forwarded 1 -> 1 to 1 upper(s)
func formatStep(seq int64, propagation, node, kind, outcome, change, forwarded string, uppers int) string {
	line := fmt.Sprintf("#%d %s %s (%s) %s %s", seq, propagation, node, kind, outcome, change)
	if outcome == "forwarded" {
		line += fmt.Sprintf(" -> %s to %d upper(s)", forwarded, uppers)
	}
	return line
}
