package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/GradientHair/GradientHair/internal/broadcast"
	"github.com/GradientHair/GradientHair/internal/models"
	"github.com/GradientHair/GradientHair/internal/services"
	"github.com/GradientHair/GradientHair/internal/utils"
	"github.com/GradientHair/GradientHair/internal/workers"
	"github.com/gin-gonic/gin"
)

type stubMeetings struct {
	ingested  []models.FinalizedUtterance
	ingestErr error
	endAdmin  bool
	endCaller string
	listLimit int64
}

func (s *stubMeetings) List(_ context.Context, callerID string, admin bool, limit int64) ([]models.Meeting, error) {
	s.endCaller, s.endAdmin, s.listLimit = callerID, admin, limit
	return []models.Meeting{{MeetingID: "m-1", HostID: callerID}}, nil
}

func (s *stubMeetings) Create(_ context.Context, hostID string, in services.CreateMeetingInput) (*models.Meeting, error) {
	return &models.Meeting{MeetingID: "m-1", HostID: hostID, Title: in.Title, Status: models.MeetingPreparing}, nil
}

func (s *stubMeetings) Get(_ context.Context, id string) (*services.MeetingView, error) {
	if id != "m-1" {
		return nil, utils.E(utils.CodeNotFound, "MeetingService.Get", "meeting not found", utils.ErrNotFound)
	}
	return &services.MeetingView{Meeting: models.Meeting{
		MeetingID:    id,
		HostID:       "host-1",
		Participants: []models.Participant{{ID: "a", Name: "Ana"}},
	}, Live: true}, nil
}

func (s *stubMeetings) Admit(ctx context.Context, callerID, meetingID string, admin bool) (*services.MeetingView, error) {
	view, err := s.Get(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	if !admin && !view.Meeting.Admits(callerID) {
		return nil, utils.E(utils.CodeForbidden, "MeetingService.Admit", "not a participant of this meeting", nil)
	}
	return view, nil
}

func (s *stubMeetings) Ingest(_ context.Context, u models.FinalizedUtterance) error {
	s.ingested = append(s.ingested, u)
	return s.ingestErr
}

func (s *stubMeetings) Interim(context.Context, string, broadcast.Interim) error { return nil }

func (s *stubMeetings) End(_ context.Context, callerID, meetingID string, admin bool) (*services.EndResult, error) {
	s.endCaller, s.endAdmin = callerID, admin
	return &services.EndResult{Meeting: models.Meeting{MeetingID: meetingID, Status: models.MeetingCompleted}}, nil
}

func newRouter(svc services.MeetingService, role string) *gin.Engine {
	return newRouterAs(svc, "host-1", role)
}

func newRouterAs(svc services.MeetingService, userID, role string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("user_id", userID)
		c.Set("role", role)
	})
	h := NewMeetingHandler(svc)
	r.POST("/meetings", h.Create)
	r.GET("/meetings", h.List)
	r.GET("/meetings/:meeting_id", h.Get)
	r.POST("/meetings/:meeting_id/utterances", h.Utterance)
	r.POST("/meetings/:meeting_id/interim", h.Interim)
	r.POST("/meetings/:meeting_id/end", h.End)
	return r
}

func call(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestUtteranceTakesMeetingFromPath(t *testing.T) {
	svc := &stubMeetings{}
	r := newRouter(svc, "user")

	w := call(r, http.MethodPost, "/meetings/m-1/utterances", `{"meeting_id":"other","speaker":"a","text":"hi","sequence":1}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", w.Code, w.Body)
	}
	if len(svc.ingested) != 1 || svc.ingested[0].MeetingID != "m-1" {
		t.Fatalf("ingested = %+v", svc.ingested)
	}
}

func TestUtteranceErrors(t *testing.T) {
	svc := &stubMeetings{ingestErr: utils.E(utils.CodePrecondition, "MeetingService.Ingest", "sequence gap", nil)}
	r := newRouter(svc, "user")

	if w := call(r, http.MethodPost, "/meetings/m-1/utterances", `{"speaker":"a"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("missing fields: %d", w.Code)
	}
	w := call(r, http.MethodPost, "/meetings/m-1/utterances", `{"speaker":"a","text":"hi","sequence":3}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("gap: %d", w.Code)
	}
	var body APIError
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || body.Code != utils.CodePrecondition || body.Message != "sequence gap" {
		t.Fatalf("body = %s", w.Body)
	}
}

func TestGetNotFound(t *testing.T) {
	r := newRouter(&stubMeetings{}, "user")
	if w := call(r, http.MethodGet, "/meetings/nope", ""); w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestEndPassesCallerAndRole(t *testing.T) {
	svc := &stubMeetings{}
	r := newRouter(svc, "admin")

	w := call(r, http.MethodPost, "/meetings/m-1/end", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if svc.endCaller != "host-1" || !svc.endAdmin {
		t.Fatalf("caller=%q admin=%v", svc.endCaller, svc.endAdmin)
	}
}

func TestCreate(t *testing.T) {
	r := newRouter(&stubMeetings{}, "user")
	w := call(r, http.MethodPost, "/meetings", `{"title":"Planning","participants":[{"id":"a","name":"Ana"}]}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", w.Code, w.Body)
	}
	var m models.Meeting
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil || m.HostID != "host-1" || m.Title != "Planning" {
		t.Fatalf("meeting = %+v", m)
	}
}

func TestUtteranceRequiresMembership(t *testing.T) {
	cases := []struct {
		name   string
		user   string
		role   string
		status int
	}{
		{"host", "host-1", "user", http.StatusAccepted},
		{"participant", "a", "user", http.StatusAccepted},
		{"outsider", "mallory", "user", http.StatusForbidden},
		{"admin outsider", "mallory", "admin", http.StatusAccepted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubMeetings{}
			r := newRouterAs(svc, tc.user, tc.role)
			w := call(r, http.MethodPost, "/meetings/m-1/utterances", `{"speaker":"a","text":"hi","sequence":1}`)
			if w.Code != tc.status {
				t.Fatalf("status = %d, want %d", w.Code, tc.status)
			}
			if tc.status == http.StatusForbidden {
				if len(svc.ingested) != 0 {
					t.Fatal("outsider utterance reached the service")
				}
				if w := call(r, http.MethodPost, "/meetings/m-1/interim", `{"speaker":"a","text":"so"}`); w.Code != http.StatusForbidden {
					t.Fatalf("interim status = %d", w.Code)
				}
			}
		})
	}
}

func TestAdmitMessageChecksRoster(t *testing.T) {
	m := &models.Meeting{MeetingID: "m-1", Participants: []models.Participant{{ID: "a", Name: "Ana"}}}
	cases := []struct {
		name string
		msg  workers.Message
		code utils.Code
	}{
		{"by id", workers.Message{MeetingID: "m-1", Speaker: "a", Text: "hi"}, ""},
		{"by name", workers.Message{MeetingID: "m-1", Speaker: "ana", Text: "hi"}, ""},
		{"stranger", workers.Message{MeetingID: "m-1", Speaker: "zed", Text: "hi"}, utils.CodeInvalidArgument},
		{"empty", workers.Message{MeetingID: "m-1", Speaker: "a"}, utils.CodeInvalidArgument},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := admitMessage(m, tc.msg)
			if tc.code == "" {
				if err != nil {
					t.Fatalf("err = %v", err)
				}
				return
			}
			if !utils.IsCode(err, tc.code) {
				t.Fatalf("err = %v, want %s", err, tc.code)
			}
		})
	}
}

func TestWriteErrorUsesSentinelCodes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	writeError(c, fmt.Errorf("lookup: %w", utils.ErrNotFound))

	var body APIError
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if w.Code != http.StatusNotFound || body.Code != utils.CodeNotFound || body.Message != "Not Found" {
		t.Fatalf("status=%d body=%+v", w.Code, body)
	}
}

func TestListPassesCallerAndLimit(t *testing.T) {
	svc := &stubMeetings{}
	r := newRouter(svc, "user")

	w := call(r, http.MethodGet, "/meetings?limit=5", "")
	if w.Code != http.StatusOK || svc.endCaller != "host-1" || svc.endAdmin || svc.listLimit != 5 {
		t.Fatalf("status=%d caller=%q admin=%v limit=%d", w.Code, svc.endCaller, svc.endAdmin, svc.listLimit)
	}
	var body struct {
		Meetings []models.Meeting `json:"meetings"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || len(body.Meetings) != 1 {
		t.Fatalf("body = %s", w.Body)
	}
	if w := call(r, http.MethodGet, "/meetings?limit=lots", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("bad limit: %d", w.Code)
	}
}
