package meeting

import "github.com/GradientHair/GradientHair/internal/models"

// Snapshot is an immutable view of a meeting at one version. Slices are capacity-clipped
// so appending to them never writes into the store's arrays; do not modify elements.
type Snapshot struct {
	Meeting       models.Meeting
	Transcript    []models.TranscriptEntry
	Interventions []models.Intervention
	Stats         models.ParticipationStats
	Cooldowns     map[models.InterventionKind]models.InterventionCooldown
	Version       uint64
}

func (s *Snapshot) MeetingID() string { return s.Meeting.MeetingID }

func (s *Snapshot) Status() models.MeetingStatus { return s.Meeting.Status }

func (s *Snapshot) LastSequence() int64 { return s.Stats.LastSequence }

// Recent returns up to n trailing transcript entries.
func (s *Snapshot) Recent(n int) []models.TranscriptEntry {
	if n <= 0 || len(s.Transcript) <= n {
		return s.Transcript
	}
	return s.Transcript[len(s.Transcript)-n:]
}

// Entry finds an accepted entry by sequence number.
func (s *Snapshot) Entry(seq int64) (models.TranscriptEntry, bool) {
	// sequences are gap-free from the first accepted one
	if len(s.Transcript) == 0 {
		return models.TranscriptEntry{}, false
	}
	i := int(seq - s.Transcript[0].Sequence)
	if i < 0 || i >= len(s.Transcript) {
		return models.TranscriptEntry{}, false
	}
	return s.Transcript[i], true
}

func (s *Snapshot) Cooldown(kind models.InterventionKind) models.InterventionCooldown {
	if c, ok := s.Cooldowns[kind]; ok {
		return c
	}
	return models.InterventionCooldown{Kind: kind}
}

func (s *Snapshot) LastIntervention() (models.Intervention, bool) {
	if len(s.Interventions) == 0 {
		return models.Intervention{}, false
	}
	return s.Interventions[len(s.Interventions)-1], true
}
