package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/GradientHair/GradientHair/internal/models"
	"github.com/GradientHair/GradientHair/internal/services"
	"github.com/GradientHair/GradientHair/internal/utils"
	"github.com/gin-gonic/gin"
)

type stubPrinciples struct {
	created     services.CreatePrincipleInput
	deleteAdmin bool
}

func (s *stubPrinciples) List(context.Context) ([]models.LibraryPrinciple, error) {
	return []models.LibraryPrinciple{{PrincipleID: "agile", Name: "Agile"}}, nil
}

func (s *stubPrinciples) Get(_ context.Context, id string) (*models.LibraryPrinciple, error) {
	if id != "agile" {
		return nil, utils.E(utils.CodeNotFound, "PrincipleService.Get", "principle not found", utils.ErrNotFound)
	}
	return &models.LibraryPrinciple{PrincipleID: id, Name: "Agile"}, nil
}

func (s *stubPrinciples) Create(_ context.Context, ownerID string, in services.CreatePrincipleInput) (*models.LibraryPrinciple, error) {
	s.created = in
	return &models.LibraryPrinciple{PrincipleID: "new", OwnerID: ownerID, Name: in.Name, Content: in.Content}, nil
}

func (s *stubPrinciples) Update(_ context.Context, callerID, id string, in services.UpdatePrincipleInput, admin bool) (*models.LibraryPrinciple, error) {
	if !admin && callerID != "owner" {
		return nil, utils.E(utils.CodeForbidden, "PrincipleService.Update", "only the owner can change this principle", nil)
	}
	return &models.LibraryPrinciple{PrincipleID: id, Content: *in.Content}, nil
}

func (s *stubPrinciples) Delete(_ context.Context, _, _ string, admin bool) error {
	s.deleteAdmin = admin
	return nil
}

func (s *stubPrinciples) Resolve(context.Context, []string) ([]models.Principle, error) {
	return nil, nil
}

func principleRouter(svc services.PrincipleService, role string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("user_id", "host-1")
		c.Set("role", role)
	})
	h := NewPrincipleHandler(svc)
	r.GET("/principles", h.List)
	r.POST("/principles", h.Create)
	r.GET("/principles/:principle_id", h.Get)
	r.PUT("/principles/:principle_id", h.Update)
	r.DELETE("/principles/:principle_id", h.Delete)
	return r
}

func TestPrincipleRoutes(t *testing.T) {
	svc := &stubPrinciples{}
	r := principleRouter(svc, "admin")

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"list", http.MethodGet, "/principles", "", http.StatusOK},
		{"get", http.MethodGet, "/principles/agile", "", http.StatusOK},
		{"get missing", http.MethodGet, "/principles/nope", "", http.StatusNotFound},
		{"create", http.MethodPost, "/principles", `{"name":"Sprint","content":"Timebox"}`, http.StatusCreated},
		{"create without content", http.MethodPost, "/principles", `{"name":"Sprint"}`, http.StatusBadRequest},
		{"update", http.MethodPut, "/principles/agile", `{"content":"# Agile"}`, http.StatusOK},
		{"delete", http.MethodDelete, "/principles/agile", "", http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if w := call(r, tc.method, tc.path, tc.body); w.Code != tc.status {
				t.Fatalf("status = %d, want %d: %s", w.Code, tc.status, w.Body)
			}
		})
	}
	if svc.created.Name != "Sprint" || !svc.deleteAdmin {
		t.Fatalf("created=%+v deleteAdmin=%v", svc.created, svc.deleteAdmin)
	}

	user := principleRouter(svc, "user")
	if w := call(user, http.MethodPut, "/principles/agile", `{"content":"x"}`); w.Code != http.StatusForbidden {
		t.Fatalf("non-owner update: %d", w.Code)
	}
}
