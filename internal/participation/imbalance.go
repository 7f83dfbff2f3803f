package participation

import (
	"strings"

	"github.com/GradientHair/GradientHair/internal/models"
)

type Thresholds struct {
	MinUtterances int     `yaml:"min_utterances"`
	DominantShare float64 `yaml:"dominant_share"` // strictly above
	QuietShare    float64 `yaml:"quiet_share"`    // strictly below
}

func DefaultThresholds() Thresholds {
	return Thresholds{MinUtterances: 5, DominantShare: 0.5, QuietShare: 0.10}
}

type Finding struct {
	Dominant      string   `json:"dominant,omitempty"`
	DominantShare float64  `json:"dominant_share,omitempty"`
	Quiet         []string `json:"quiet,omitempty"` // roster order
}

// Imbalance applies the speaking-share heuristic. Observers never count as quiet.
// It reports nothing until the meeting has MinUtterances entries.
func Imbalance(stats models.ParticipationStats, roster []models.Participant, th Thresholds) (Finding, bool) {
	var f Finding
	if stats.TotalUtterances < th.MinUtterances || stats.TotalSpeakingMS <= 0 {
		return f, false
	}

	if ranked := Ranked(stats); len(ranked) > 0 && ranked[0].Share > th.DominantShare {
		f.Dominant = ranked[0].Speaker
		f.DominantShare = ranked[0].Share
	}

	for _, p := range roster {
		if strings.EqualFold(p.Role, "observer") {
			continue
		}
		if stats.Speakers[p.ID].Share < th.QuietShare {
			f.Quiet = append(f.Quiet, p.ID)
		}
	}
	return f, f.Dominant != "" || len(f.Quiet) > 0
}
