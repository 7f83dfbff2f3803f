package storage

import (
	"context"
	"io"
	"time"
)

type Artifact struct {
	Name        string    `json:"name"`
	Object      string    `json:"object"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Updated     time.Time `json:"updated"`
	URL         string    `json:"url,omitempty"`
}

type Uploader interface {
	Upload(ctx context.Context, objectName string, contentType string, r io.Reader) (storedPath string, err error)
}

// ArtifactStore keeps per-meeting documents (transcript, review) under meetings/<id>/.
type ArtifactStore interface {
	Uploader
	List(ctx context.Context, prefix string) ([]Artifact, error)
	SignedURL(objectName string, ttl time.Duration) (string, error)
}

func MeetingPrefix(meetingID string) string { return "meetings/" + meetingID + "/" }
