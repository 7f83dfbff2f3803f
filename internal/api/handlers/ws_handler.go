package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/GradientHair/GradientHair/internal/broadcast"
	"github.com/GradientHair/GradientHair/internal/models"
	"github.com/GradientHair/GradientHair/internal/services"
	"github.com/GradientHair/GradientHair/internal/utils"
	"github.com/GradientHair/GradientHair/internal/workers"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
)

type WSHandler struct {
	meetings services.MeetingService
	redis    *redis.Client
	upgrader websocket.Upgrader
}

func NewWSHandler(meetings services.MeetingService, rdb *redis.Client, allowedOrigins []string) *WSHandler {
	allow := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allow[o] = true
	}
	return &WSHandler{
		meetings: meetings,
		redis:    rdb,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return len(allow) == 0 || allow[r.Header.Get("Origin")]
			},
		},
	}
}

// wsClientMsg lets a capture client push speech over the same socket it observes on.
// Everything goes through the utterance stream so ordering is handled in one place.
type wsClientMsg struct {
	Type        string `json:"type"` // utterance|interim|audio_chunk
	Speaker     string `json:"speaker"`
	SpeakerName string `json:"speaker_name"`
	Text        string `json:"text"`
	Sequence    int64  `json:"sequence"`
	AudioBase64 string `json:"audio_base64"`
	AudioURL    string `json:"audio_url"`
	Language    string `json:"language"`
	IsFinal     bool   `json:"is_final"`
	DurationMS  int64  `json:"duration_ms"`
}

// admitMessage validates a capture message before it reaches the stream.
func admitMessage(m *models.Meeting, msg workers.Message) error {
	const op = "WSHandler.MeetingWS"

	if err := msg.Validate(); err != nil {
		return utils.E(utils.CodeInvalidArgument, op, err.Error(), err)
	}
	if !m.HasSpeaker(msg.Speaker) {
		return utils.E(utils.CodeInvalidArgument, op, "speaker is not a participant", nil)
	}
	return nil
}

type wsConn struct {
	c  *websocket.Conn
	mu sync.Mutex
}

func (w *wsConn) writeText(b []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.c.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.c.WriteMessage(websocket.TextMessage, b)
}

func (w *wsConn) writeError(code utils.Code, msg string) {
	b, _ := json.Marshal(gin.H{"type": "error", "code": code, "message": msg})
	_ = w.writeText(b)
}

func (w *wsConn) fail(err error) {
	msg := err.Error()
	var ae *utils.AppError
	if errors.As(err, &ae) && ae.Message != "" {
		msg = ae.Message
	}
	w.writeError(utils.CodeOf(err), msg)
}

func (w *wsConn) ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.c.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
}

// MeetingWS streams a meeting's events (interventions, stats, interim text, status) to
// an observer until either side closes.
func (h *WSHandler) MeetingWS(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	meetingID := c.Param("meeting_id")
	if meetingID == "" {
		writeError(c, utils.E(utils.CodeInvalidArgument, "WSHandler.MeetingWS", "missing meeting_id", nil))
		return
	}
	view, err := h.meetings.Admit(c.Request.Context(), userID, meetingID, isAdmin(c))
	if err != nil {
		writeError(c, err)
		return
	}
	roster := view.Meeting

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// upgrade already wrote response in most cases
		return
	}
	defer conn.Close()

	wc := &wsConn{c: conn}
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	pubsub := h.redis.Subscribe(ctx, broadcast.Channel(meetingID))
	defer pubsub.Close()

	// reader: WS -> utterance stream
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})

		for {
			_, data, rerr := conn.ReadMessage()
			if rerr != nil {
				return
			}

			var msg wsClientMsg
			if err := json.Unmarshal(data, &msg); err != nil {
				wc.writeError(utils.CodeInvalidArgument, "invalid json")
				continue
			}

			out := workers.Message{
				MeetingID:   meetingID,
				Speaker:     msg.Speaker,
				SpeakerName: msg.SpeakerName,
				Sequence:    msg.Sequence,
				Language:    msg.Language,
				DurationMS:  msg.DurationMS,
			}
			switch msg.Type {
			case "utterance":
				out.Text, out.IsFinal = msg.Text, true
			case "interim":
				out.Text = msg.Text
			case "audio_chunk":
				out.AudioBase64, out.AudioURL, out.IsFinal = msg.AudioBase64, msg.AudioURL, msg.IsFinal
			default:
				wc.writeError(utils.CodeInvalidArgument, "unknown message type")
				continue
			}
			if err := admitMessage(&roster, out); err != nil {
				wc.fail(err)
				continue
			}
			if err := workers.Enqueue(ctx, h.redis, out); err != nil {
				wc.writeError(utils.CodeUnavailable, "failed to enqueue utterance")
			}
		}
	}()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	events := pubsub.Channel()

	// writer: Redis Pub/Sub -> WS
	for {
		select {
		case <-readDone:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := wc.ping(); err != nil {
				return
			}
		case m, ok := <-events:
			if !ok {
				return
			}
			// forward as-is (payload is a JSON broadcast.Event)
			if werr := wc.writeText([]byte(m.Payload)); werr != nil {
				return
			}
		}
	}
}
