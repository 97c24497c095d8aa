package executor

import (
	"fmt"

	"github.com/vk/promptgrid/internal/adapter"
)

const maxPromptLogLength = 80

// formatRequestForLogs renders a request on one line with long prompts cut.
func formatRequestForLogs(req adapter.Request) string {
	return fmt.Sprintf("prompt=%q size=%dx%d steps=%d cfg=%g sampler=%q seed=%d batch=%d checkpoint=%q",
		truncate(req.Prompt), req.Width, req.Height, req.Steps, req.CFGScale, req.Sampler, req.Seed, req.BatchSize, req.Checkpoint)
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= maxPromptLogLength {
		return s
	}
	return string(r[:maxPromptLogLength]) + "…"
}
