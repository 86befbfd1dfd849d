package manager

import (
	"fmt"
	"strings"
)

// renderReviewPrompt builds the review prompt. Kept deliberately compact:
// the reviewer inspects the working tree itself, so the prompt only has to
// anchor it to the right iteration and tell it the output contract.
func renderReviewPrompt(iteration int, taskID, summary string, skillCount int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are reviewing the work completed through iteration %d.\n\n", iteration)
	if taskID != "" {
		fmt.Fprintf(&b, "Most recent task: %s\n", taskID)
	}
	if summary != "" {
		fmt.Fprintf(&b, "Worker's summary of that work:\n%s\n", summary)
	}
	if skillCount > 0 {
		fmt.Fprintf(&b, "\nThere are already %d recorded skills; do not repeat guidance they cover.\n", skillCount)
	}

	b.WriteString(`
Inspect the working tree and judge the quality of the recent changes.
Respond with these lines (one per line, other prose is recorded as findings):

VERDICT: approve | needs_work
SCORE: <0-10>
SKILL[<short-name>]: <reusable guidance worth applying to future tasks>
DIRECTIVE: <one corrective instruction for the worker's next task, if needed>

Emit SKILL lines only for genuinely reusable lessons, and at most one
DIRECTIVE line.
`)
	return b.String()
}
