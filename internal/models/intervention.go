package models

import "time"

type InterventionKind string

const (
	KindTopicDrift             InterventionKind = "TOPIC_DRIFT"
	KindPrincipleViolation     InterventionKind = "PRINCIPLE_VIOLATION"
	KindParticipationImbalance InterventionKind = "PARTICIPATION_IMBALANCE"
	KindDecisionStyle          InterventionKind = "DECISION_STYLE"
)

type InterventionMetadata struct {
	ViolatedPrinciple string `bson:"violated_principle,omitempty" json:"violated_principle,omitempty"`
	SuggestedSpeaker  string `bson:"suggested_speaker,omitempty" json:"suggested_speaker,omitempty"`
	ParkedTopic       string `bson:"parked_topic,omitempty" json:"parked_topic,omitempty"`
}

// InterventionCandidate is a detector's proposal for one analysis round.
type InterventionCandidate struct {
	Kind          InterventionKind     `json:"kind"`
	Confidence    float64              `json:"confidence"`
	Justification string               `json:"justification,omitempty"`
	Message       string               `json:"message"`
	Metadata      InterventionMetadata `json:"metadata"`
	Sequence      int64                `json:"sequence"` // triggering utterance
	Agent         string               `json:"agent"`
}

type Intervention struct {
	ID             string               `bson:"id" json:"id"`
	MeetingID      string               `bson:"meeting_id" json:"meeting_id"`
	Kind           InterventionKind     `bson:"kind" json:"kind"`
	Message        string               `bson:"message" json:"message"`
	Metadata       InterventionMetadata `bson:"metadata" json:"metadata"`
	TriggerContext string               `bson:"trigger_context,omitempty" json:"trigger_context,omitempty"`
	Agent          string               `bson:"agent" json:"agent"`
	Confidence     float64              `bson:"confidence" json:"confidence"`
	Timestamp      time.Time            `bson:"timestamp" json:"timestamp"`
	Sequence       int64                `bson:"sequence" json:"sequence"`
}

// InterventionCooldown is the rate-limit clock of one kind, measured in utterances.
type InterventionCooldown struct {
	Kind         InterventionKind `json:"kind"`
	LastSequence int64            `json:"last_sequence"`
	Window       int64            `json:"window"`
}

// Blocks reports whether an intervention triggered at seq would fall inside the window.
func (c InterventionCooldown) Blocks(seq int64) bool {
	if c.Window <= 0 || c.LastSequence == 0 {
		return false
	}
	return seq-c.LastSequence < c.Window
}
