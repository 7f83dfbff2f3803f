// Package broadcast fans meeting events out to observers. Delivery is best effort:
// nothing here returns an error to the moderation pipeline.
package broadcast

import (
	"context"
	"time"

	"github.com/GradientHair/GradientHair/internal/models"
)

const (
	EventIntervention = "intervention"
	EventStats        = "stats"
	EventInterim      = "interim"
	EventStatus       = "status"
)

type Event struct {
	Type      string    `json:"type"`
	MeetingID string    `json:"meeting_id"`
	At        time.Time `json:"at"`
	Payload   any       `json:"payload"`
}

type Interim struct {
	Speaker     string `json:"speaker"`
	SpeakerName string `json:"speaker_name,omitempty"`
	Text        string `json:"text"`
}

type Status struct {
	Status  models.MeetingStatus `json:"status"`
	Message string               `json:"message,omitempty"`
}

type Broadcaster interface {
	OnIntervention(ctx context.Context, meetingID string, iv models.Intervention)
	OnStatsUpdate(ctx context.Context, meetingID string, stats models.ParticipationStats)
	OnInterim(ctx context.Context, meetingID string, in Interim)
	OnStatus(ctx context.Context, meetingID string, st Status)
}

// Channel is the pub/sub channel carrying one meeting's events.
func Channel(meetingID string) string { return "meeting:" + meetingID + ":events" }

// publisher adapts a single publish function to the Broadcaster interface.
type publisher struct {
	publish func(ctx context.Context, e Event)
	now     func() time.Time
}

func (p publisher) emit(ctx context.Context, typ, meetingID string, payload any) {
	p.publish(ctx, Event{Type: typ, MeetingID: meetingID, At: p.now().UTC(), Payload: payload})
}

func (p publisher) OnIntervention(ctx context.Context, meetingID string, iv models.Intervention) {
	p.emit(ctx, EventIntervention, meetingID, iv)
}

func (p publisher) OnStatsUpdate(ctx context.Context, meetingID string, stats models.ParticipationStats) {
	p.emit(ctx, EventStats, meetingID, stats)
}

func (p publisher) OnInterim(ctx context.Context, meetingID string, in Interim) {
	p.emit(ctx, EventInterim, meetingID, in)
}

func (p publisher) OnStatus(ctx context.Context, meetingID string, st Status) {
	p.emit(ctx, EventStatus, meetingID, st)
}

type Nop struct{}

func (Nop) OnIntervention(context.Context, string, models.Intervention)      {}
func (Nop) OnStatsUpdate(context.Context, string, models.ParticipationStats) {}
func (Nop) OnInterim(context.Context, string, Interim)                       {}
func (Nop) OnStatus(context.Context, string, Status)                         {}
