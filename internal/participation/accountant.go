// Package participation derives speaking statistics from the transcript log. Everything
// here is a pure function of its inputs.
package participation

import (
	"sort"
	"strings"

	"github.com/GradientHair/GradientHair/internal/models"
)

// msPerWord estimates speaking time when the upstream recognizer gives no duration.
const msPerWord = 400

// SpeakingMS is the speaking time credited to one entry.
func SpeakingMS(e models.TranscriptEntry) int64 {
	if e.DurationMS > 0 {
		return e.DurationMS
	}
	words := len(strings.Fields(e.Text))
	if words == 0 {
		words = 1
	}
	return int64(words) * msPerWord
}

// Fold computes stats over a whole log. It is by definition the left fold of FoldOne,
// so replaying a log and updating incrementally always agree.
func Fold(log []models.TranscriptEntry) models.ParticipationStats {
	stats := models.ParticipationStats{Speakers: map[string]models.SpeakerStats{}}
	for _, e := range log {
		stats = FoldOne(stats, e)
	}
	return stats
}

// FoldOne returns stats updated with e. The input is not modified.
func FoldOne(stats models.ParticipationStats, e models.TranscriptEntry) models.ParticipationStats {
	next := models.ParticipationStats{
		Speakers:        make(map[string]models.SpeakerStats, len(stats.Speakers)+1),
		TotalUtterances: stats.TotalUtterances + 1,
		TotalSpeakingMS: stats.TotalSpeakingMS + SpeakingMS(e),
		LastSequence:    e.Sequence,
	}
	for k, v := range stats.Speakers {
		next.Speakers[k] = v
	}

	s := next.Speakers[e.Speaker]
	s.Speaker = e.Speaker
	s.Utterances++
	s.SpeakingMS += SpeakingMS(e)
	next.Speakers[e.Speaker] = s

	// shares always come from the integer totals, never from the previous shares
	for k, v := range next.Speakers {
		v.Share = share(v.SpeakingMS, next.TotalSpeakingMS)
		next.Speakers[k] = v
	}
	return next
}

func share(part, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(part) / float64(total)
}

// Ranked lists speakers by descending share, ties by speaker id.
func Ranked(stats models.ParticipationStats) []models.SpeakerStats {
	out := make([]models.SpeakerStats, 0, len(stats.Speakers))
	for _, s := range stats.Speakers {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Share != out[j].Share {
			return out[i].Share > out[j].Share
		}
		return out[i].Speaker < out[j].Speaker
	})
	return out
}
