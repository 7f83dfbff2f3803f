package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/GradientHair/GradientHair/internal/participation"
)

func NewReplayCmd(deps *Dependencies) *cobra.Command {
	var (
		asJSON bool
		th     = participation.DefaultThresholds()
	)
	cmd := &cobra.Command{
		Use:   "replay <export.json|->",
		Short: "Rebuild participation stats from an exported transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := readExport(args[0])
			if err != nil {
				return err
			}

			stats := participation.Fold(v.Transcript)
			finding, imbalanced := participation.Imbalance(stats, v.Meeting.Participants, th)

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{"stats": stats, "imbalance": finding, "imbalanced": imbalanced})
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SPEAKER\tUTTERANCES\tSPEAKING\tSHARE")
			for _, s := range participation.Ranked(stats) {
				fmt.Fprintf(tw, "%s\t%d\t%.1fs\t%.1f%%\n", v.Meeting.DisplayName(s.Speaker), s.Utterances, float64(s.SpeakingMS)/1000, s.Share*100)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "\n%d utterances, last sequence %d\n", stats.TotalUtterances, stats.LastSequence)
			if imbalanced {
				if finding.Dominant != "" {
					fmt.Fprintf(out, "dominant: %s (%.0f%%)\n", v.Meeting.DisplayName(finding.Dominant), finding.DominantShare*100)
				}
				for _, q := range finding.Quiet {
					fmt.Fprintf(out, "quiet: %s\n", v.Meeting.DisplayName(q))
				}
			}
			deps.Log.WithField("meeting_id", v.Meeting.MeetingID).Debug("replay done")
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print stats as JSON")
	cmd.Flags().IntVar(&th.MinUtterances, "min-utterances", th.MinUtterances, "utterances before imbalance is reported")
	cmd.Flags().Float64Var(&th.DominantShare, "dominant-share", th.DominantShare, "share above which a speaker dominates")
	cmd.Flags().Float64Var(&th.QuietShare, "quiet-share", th.QuietShare, "share below which a participant is quiet")

	return cmd
}
