package manager

import (
	"strconv"
	"strings"

	"github.com/tandemloop/tandem/internal/review"
)

const (
	verdictPrefix   = "VERDICT:"
	scorePrefix     = "SCORE:"
	skillPrefix     = "SKILL["
	directivePrefix = "DIRECTIVE:"
)

type parsedSkill struct {
	Name    string
	Content string
}

type parsedReview struct {
	Verdict   review.Verdict
	Score     int
	Findings  string
	Skills    []parsedSkill
	Directive string
}

// parseReviewOutput extracts the structured lines the reviewer is asked to
// emit. Unrecognized lines accumulate as findings text. A missing or
// malformed verdict defaults to needs_work so a garbled review never
// approves work.
func parseReviewOutput(output string) parsedReview {
	parsed := parsedReview{Verdict: review.VerdictNeedsWork}
	var findings []string

	for _, raw := range strings.Split(output, "\n") {
		line := strings.TrimSpace(raw)
		switch {
		case strings.HasPrefix(line, verdictPrefix):
			v := review.Verdict(strings.TrimSpace(strings.TrimPrefix(line, verdictPrefix)))
			if v.Valid() {
				parsed.Verdict = v
			}
		case strings.HasPrefix(line, scorePrefix):
			if n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, scorePrefix))); err == nil {
				parsed.Score = clampScore(n)
			}
		case strings.HasPrefix(line, skillPrefix):
			if s, ok := parseSkillLine(line); ok {
				parsed.Skills = append(parsed.Skills, s)
			}
		case strings.HasPrefix(line, directivePrefix):
			parsed.Directive = strings.TrimSpace(strings.TrimPrefix(line, directivePrefix))
		case line != "":
			findings = append(findings, line)
		}
	}
	parsed.Findings = strings.Join(findings, "\n")
	return parsed
}

// parseSkillLine parses "SKILL[name]: content".
func parseSkillLine(line string) (parsedSkill, bool) {
	rest := strings.TrimPrefix(line, skillPrefix)
	end := strings.Index(rest, "]:")
	if end <= 0 {
		return parsedSkill{}, false
	}
	name := strings.TrimSpace(rest[:end])
	content := strings.TrimSpace(rest[end+2:])
	if name == "" || content == "" {
		return parsedSkill{}, false
	}
	return parsedSkill{Name: name, Content: content}, true
}

func clampScore(n int) int {
	if n < 0 {
		return 0
	}
	if n > 10 {
		return 10
	}
	return n
}
