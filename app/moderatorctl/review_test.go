package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/cobra"

	"github.com/GradientHair/GradientHair/internal/meeting"
	"github.com/GradientHair/GradientHair/internal/moderation"
	"github.com/GradientHair/GradientHair/internal/providers/llm"
)

type cannedGateway struct{ reply string }

func (g cannedGateway) Execute(context.Context, llm.Request) (string, error) { return g.reply, nil }
func (cannedGateway) Close() error { return nil }

func buildSession(t *testing.T, reply string) *moderation.Session {
	t.Helper()
	l, _ := test.NewNullLogger()
	cfg := moderation.DefaultConfig()
	cfg.ModelVerification = false
	cfg.Review.MaxAttempts = 1
	b := &moderation.Builder{Gateway: cannedGateway{reply: reply}, Config: cfg, Log: logrus.NewEntry(l)}
	v := exportView(1, 2, 3)
	return b.Build(v.Meeting, meeting.WithHistory(v.Transcript, nil))
}

func TestRunReviewPrintsMarkdown(t *testing.T) {
	sess := buildSession(t, `{"summary": "Shipped the plan.", "decisions": ["Ship Monday"], "action_items": [], "risks": [], "strengths": [], "recommendations": [], "overall_score": 80, "principles": []}`)
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)

	if err := runReview(context.Background(), cmd, sess, true); err != nil {
		t.Fatalf("runReview: %v", err)
	}
	got := out.String()
	for _, want := range []string{"# Planning", "**Alice:** hello there", "# Review: Planning", "Shipped the plan.", "80/100"} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q:\n%s", want, got)
		}
	}
}

func TestRunReviewReportsFailure(t *testing.T) {
	sess := buildSession(t, `not json at all`)
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)

	if err := runReview(context.Background(), cmd, sess, false); err == nil {
		t.Fatalf("expected an error, got output:\n%s", out.String())
	}
	if out.Len() != 0 {
		t.Fatalf("unexpected output:\n%s", out.String())
	}
}
