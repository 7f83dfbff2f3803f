package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type MeetingStatus string

const (
	MeetingPreparing  MeetingStatus = "preparing"
	MeetingInProgress MeetingStatus = "in_progress"
	MeetingCompleted  MeetingStatus = "completed"
)

type Meeting struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	MeetingID string             `bson:"meeting_id" json:"meeting_id"` // uuid v4
	HostID    string             `bson:"host_id" json:"host_id"`       // jwt subject of the creator

	Title  string        `bson:"title" json:"title"`
	Agenda string        `bson:"agenda" json:"agenda"`
	Status MeetingStatus `bson:"status" json:"status"`

	Participants []Participant `bson:"participants" json:"participants"`
	Principles   []Principle   `bson:"principles,omitempty" json:"principles,omitempty"`

	CreatedAt time.Time  `bson:"created_at" json:"created_at"`
	StartedAt *time.Time `bson:"started_at,omitempty" json:"started_at,omitempty"`
	EndedAt   *time.Time `bson:"ended_at,omitempty" json:"ended_at,omitempty"`
}

type Participant struct {
	ID   string `bson:"id" json:"id"`
	Name string `bson:"name" json:"name"`
	Role string `bson:"role,omitempty" json:"role,omitempty"` // host|member|observer, free text
}

// Principle is a team-authored ground rule. Content is opaque and is handed to the
// principle detector verbatim.
type Principle struct {
	ID      string `bson:"id" json:"id"`
	Name    string `bson:"name" json:"name"`
	Content string `bson:"content" json:"content"`
}

// LibraryPrinciple is a saved principle a host can attach to new meetings. Meetings
// copy it; later edits do not reach meetings already created.
type LibraryPrinciple struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	PrincipleID string             `bson:"principle_id" json:"id"`
	OwnerID     string             `bson:"owner_id" json:"owner_id"`
	Name        string             `bson:"name" json:"name"`
	Content     string             `bson:"content" json:"content"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time          `bson:"updated_at" json:"updated_at"`
}

// Principle returns the copy a meeting carries.
func (p LibraryPrinciple) Principle() Principle {
	return Principle{ID: p.PrincipleID, Name: p.Name, Content: p.Content}
}

// DisplayName resolves a participant id to its display name, falling back to the id.
func (m *Meeting) DisplayName(participantID string) string {
	for _, p := range m.Participants {
		if p.ID == participantID {
			if p.Name != "" {
				return p.Name
			}
			break
		}
	}
	return participantID
}

// HasSpeaker reports whether speaker names someone on the roster, by participant id
// or, ignoring case, by display name.
func (m *Meeting) HasSpeaker(speaker string) bool {
	speaker = strings.TrimSpace(speaker)
	if speaker == "" {
		return false
	}
	for _, p := range m.Participants {
		if p.ID == speaker || (p.Name != "" && strings.EqualFold(p.Name, speaker)) {
			return true
		}
	}
	return false
}

// Admits reports whether userID may feed or watch the meeting: the host or a listed
// participant.
func (m *Meeting) Admits(userID string) bool {
	if userID == "" {
		return false
	}
	if m.HostID == userID {
		return true
	}
	for _, p := range m.Participants {
		if p.ID == userID {
			return true
		}
	}
	return false
}
