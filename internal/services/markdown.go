package services

import (
	"fmt"
	"strings"

	"github.com/GradientHair/GradientHair/internal/meeting"
	"github.com/GradientHair/GradientHair/internal/models"
	"github.com/GradientHair/GradientHair/internal/participation"
)

// TranscriptMarkdown renders the frozen transcript with interventions inlined after the
// utterance that triggered them.
func TranscriptMarkdown(snap *meeting.Snapshot) []byte {
	var b strings.Builder
	m := snap.Meeting
	fmt.Fprintf(&b, "# %s\n\n", m.Title)
	if m.Agenda != "" {
		fmt.Fprintf(&b, "**Agenda:** %s\n\n", m.Agenda)
	}
	b.WriteString("## Participants\n\n")
	for _, p := range m.Participants {
		fmt.Fprintf(&b, "- %s", p.Name)
		if p.Role != "" {
			fmt.Fprintf(&b, " (%s)", p.Role)
		}
		b.WriteString("\n")
	}

	bySeq := make(map[int64][]models.Intervention, len(snap.Interventions))
	for _, iv := range snap.Interventions {
		bySeq[iv.Sequence] = append(bySeq[iv.Sequence], iv)
	}

	b.WriteString("\n## Transcript\n\n")
	for _, e := range snap.Transcript {
		label := e.Label()
		if e.SpeakerName == "" {
			label = m.DisplayName(e.Speaker)
		}
		fmt.Fprintf(&b, "%d. **%s:** %s\n", e.Sequence, label, e.Text)
		for _, iv := range bySeq[e.Sequence] {
			fmt.Fprintf(&b, "   > _Moderator (%s):_ %s\n", iv.Kind, iv.Message)
		}
	}

	b.WriteString("\n## Participation\n\n| Speaker | Utterances | Share |\n|---|---|---|\n")
	for _, s := range participation.Ranked(snap.Stats) {
		fmt.Fprintf(&b, "| %s | %d | %.0f%% |\n", m.DisplayName(s.Speaker), s.Utterances, s.Share*100)
	}
	return []byte(b.String())
}

func ReviewMarkdown(snap *meeting.Snapshot, r *models.ReviewReport) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# Review: %s\n\n", snap.Meeting.Title)
	fmt.Fprintf(&b, "**Overall score:** %d/100\n\n", r.OverallScore)
	fmt.Fprintf(&b, "## Summary\n\n%s\n", r.Summary)

	list := func(title string, items []string) {
		if len(items) == 0 {
			return
		}
		fmt.Fprintf(&b, "\n## %s\n\n", title)
		for _, it := range items {
			fmt.Fprintf(&b, "- %s\n", it)
		}
	}
	list("Decisions", r.Decisions)

	if len(r.ActionItems) > 0 {
		b.WriteString("\n## Action items\n\n")
		for _, a := range r.ActionItems {
			fmt.Fprintf(&b, "- [ ] %s", a.Item)
			if a.Owner != "" {
				fmt.Fprintf(&b, " (@%s)", a.Owner)
			}
			if a.Due != "" {
				fmt.Fprintf(&b, " due %s", a.Due)
			}
			b.WriteString("\n")
		}
	}
	list("Risks", r.Risks)
	list("Strengths", r.Strengths)
	list("Recommendations", r.Recommendations)

	if len(r.PrincipleAssessments) > 0 {
		b.WriteString("\n## Principles\n\n| Principle | Score | Notes |\n|---|---|---|\n")
		for _, p := range r.PrincipleAssessments {
			fmt.Fprintf(&b, "| %s | %d | %s |\n", p.Name, p.Score, p.Notes)
		}
	}
	return []byte(b.String())
}
