package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/GradientHair/GradientHair/config"
	"github.com/GradientHair/GradientHair/internal/broadcast"
	"github.com/GradientHair/GradientHair/internal/meeting"
	"github.com/GradientHair/GradientHair/internal/models"
	"github.com/GradientHair/GradientHair/internal/moderation"
	"github.com/GradientHair/GradientHair/internal/services"
)

func NewReviewCmd(deps *Dependencies) *cobra.Command {
	var (
		events     bool
		transcript bool
	)
	cmd := &cobra.Command{
		Use:   "review <export.json|->",
		Short: "Run the post-meeting review over an exported transcript",
		Long:  "Runs the review pipeline with the configured LLM provider and prints the report as markdown.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := readExport(args[0])
			if err != nil {
				return err
			}
			cfg, err := config.LoadModeration()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			gateway, err := config.NewGateway(ctx, cfg)
			if err != nil {
				return err
			}
			defer gateway.Close()

			var bc broadcast.Broadcaster = broadcast.Nop{}
			if events {
				bc = broadcast.NewJSONLines(cmd.ErrOrStderr())
			}
			b := &moderation.Builder{
				Gateway:     gateway,
				Config:      cfg.Config,
				Broadcaster: bc,
				Log:         deps.Log.WithField("component", "moderatorctl"),
			}
			m := v.Meeting
			if m.Status == models.MeetingCompleted {
				m.Status = models.MeetingInProgress
			}
			sess := b.Build(m, meeting.WithHistory(v.Transcript, v.Interventions))
			return runReview(ctx, cmd, sess, transcript)
		},
	}

	cmd.Flags().BoolVar(&events, "events", false, "stream moderator events to stderr as JSON lines")
	cmd.Flags().BoolVar(&transcript, "transcript", false, "print the transcript markdown before the review")

	return cmd
}

func runReview(ctx context.Context, cmd *cobra.Command, sess *moderation.Session, withTranscript bool) error {
	report, reviewErr := sess.End(ctx)
	snap := sess.Snapshot()
	out := cmd.OutOrStdout()
	if withTranscript {
		if _, err := out.Write(services.TranscriptMarkdown(snap)); err != nil {
			return err
		}
		if _, err := out.Write([]byte("\n")); err != nil {
			return err
		}
	}
	if report == nil {
		return errors.Join(errors.New("review produced no report"), reviewErr)
	}
	_, err := out.Write(services.ReviewMarkdown(snap, report))
	return err
}
