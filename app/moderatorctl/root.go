package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/GradientHair/GradientHair/internal/meeting"
	"github.com/GradientHair/GradientHair/internal/services"
)

type Dependencies struct {
	Log *logrus.Logger
}

func NewRootCmd(deps *Dependencies) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "moderatorctl",
		Short:         "Operator tools for the meeting moderator",
		Long:          "Offline tools that work on exported meetings (the JSON body of GET /meetings/:id).",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(NewReplayCmd(deps))
	rootCmd.AddCommand(NewReviewCmd(deps))

	return rootCmd
}

// readExport loads an exported meeting from path, or stdin when path is "-".
func readExport(path string) (*services.MeetingView, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	var v services.MeetingView
	if err := json.NewDecoder(r).Decode(&v); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	if v.Meeting.MeetingID == "" {
		return nil, fmt.Errorf("%s: meeting.meeting_id is missing", path)
	}
	var last int64
	for _, e := range v.Transcript {
		if e.Sequence != last+1 {
			return nil, fmt.Errorf("%s: %w", path, &meeting.SequenceGapError{Last: last, Got: e.Sequence})
		}
		last = e.Sequence
	}
	return &v, nil
}
