package worker

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/tandemloop/tandem/internal/coord"
	"github.com/tandemloop/tandem/internal/skill"
	"github.com/tandemloop/tandem/internal/task"
)

// buildContext assembles the agent prompt for one iteration: accumulated
// skills, a queue summary, the selected task in full, prior progress notes,
// and any pending directive (consumed here).
func (l *Loop) buildContext(ctx context.Context, t *task.Task) (string, error) {
	skills, err := l.skills.List(ctx)
	if err != nil {
		return "", err
	}
	skills = capSkills(skills, l.cfg.SkillContextLimit)
	all, err := l.tasks.List(ctx)
	if err != nil {
		return "", err
	}
	notes, err := l.coord.Notes(ctx)
	if err != nil {
		return "", err
	}
	directive, err := l.coord.TakeDirective(ctx)
	if err != nil {
		return "", err
	}
	return renderPrompt(t, all, skills, notes, directive, l.markerPath(t.ID)), nil
}

// capSkills keeps the limit most recently updated skills so an ever-growing
// collection cannot inflate every context build.
func capSkills(skills []*skill.Skill, limit int) []*skill.Skill {
	if limit <= 0 || len(skills) <= limit {
		return skills
	}
	sort.Slice(skills, func(i, j int) bool {
		return skills[i].UpdatedAt.After(skills[j].UpdatedAt)
	})
	kept := skills[:limit]
	sort.Slice(kept, func(i, j int) bool {
		return kept[i].Name < kept[j].Name
	})
	return kept
}

func renderPrompt(
	t *task.Task,
	all []*task.Task,
	skills []*skill.Skill,
	notes []coord.ProgressNote,
	directive *coord.Directive,
	markerPath string,
) string {
	var b strings.Builder

	b.WriteString("You are implementing one task from a work queue.\n\n")

	if len(skills) > 0 {
		b.WriteString("## Learned guidance\n\n")
		for _, s := range skills {
			fmt.Fprintf(&b, "### %s\n%s\n\n", s.Name, s.Content)
		}
	}

	b.WriteString("## Queue overview\n\n")
	for _, other := range all {
		fmt.Fprintf(&b, "- [%s] %s: %s\n", other.Status, other.ID, other.Title)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "## Current task: %s (%s)\n\n%s\n\n", t.ID, t.Title, t.Description)
	if len(t.AcceptanceCriteria) > 0 {
		b.WriteString("Acceptance criteria:\n")
		for _, c := range t.AcceptanceCriteria {
			fmt.Fprintf(&b, "- %s\n", c)
		}
		b.WriteString("\n")
	}

	if len(notes) > 0 {
		b.WriteString("## Progress so far\n\n")
		for _, n := range notes {
			fmt.Fprintf(&b, "- iteration %d (task %s): %s\n", n.Iteration, n.TaskID, n.Summary)
		}
		b.WriteString("\n")
	}

	if directive != nil {
		fmt.Fprintf(&b, "## Directive from reviewer\n\n%s\n\n", directive.Text)
	}

	fmt.Fprintf(&b,
		"When every acceptance criterion is met, create an empty file at %s to mark the task complete. "+
			"Do not create it otherwise.\n", markerPath)

	return b.String()
}
