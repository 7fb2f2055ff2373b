package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gopher0727/GiftList/config"
	"github.com/Gopher0727/GiftList/internal/handler"
	"github.com/Gopher0727/GiftList/internal/invite"
	"github.com/Gopher0727/GiftList/internal/metrics"
	"github.com/Gopher0727/GiftList/internal/repository"
	"github.com/Gopher0727/GiftList/internal/service"
	"github.com/Gopher0727/GiftList/middleware/jwt"
	"github.com/Gopher0727/GiftList/utils/snowflake"
)

type testServer struct {
	engine *gin.Engine
	tokens *jwt.TokenManager
}

func newTestServer(t *testing.T, health func(context.Context) error) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := repository.InitSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	ids, err := snowflake.NewGenerator(snowflake.Config{})
	require.NoError(t, err)

	m := metrics.New()
	d := service.Deps{
		Groups:   repository.NewGroupRepository(db),
		Items:    repository.NewItemRepository(db),
		Messages: repository.NewMessageRepository(db),
		Invites:  invite.NewCodec("invite-secret", time.Hour, "https://giftlist.test/invite"),
		IDs:      ids,
		Limits:   config.LimitsConfig{},
		Metrics:  m,
	}
	tokens := jwt.NewTokenManager("access-secret", 24, 2)
	r := NewRouter(Handlers{
		Groups:   handler.NewGroupHandler(service.NewGroupService(d), nil),
		Items:    handler.NewItemHandler(service.NewItemService(d), nil),
		Messages: handler.NewMessageHandler(service.NewMessageService(d), nil),
	}, Deps{Tokens: tokens, Metrics: m, Health: health})
	return &testServer{engine: r, tokens: tokens}
}

// do sends a request as userID ("" for anonymous) and decodes a JSON body.
func (s *testServer) do(t *testing.T, userID, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		token, err := s.tokens.GenerateToken(userID, userID+"-name")
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	out := map[string]any{}
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w.Code, out
}

func TestGroupLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t, nil)

	code, group := s.do(t, "alice", http.MethodPost, "/api/v1/groups", gin.H{"variant": "basic_list", "name": "Groceries"})
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "BASIC_LIST", group["groupVariant"])
	id := group["id"].(string)
	base := "/api/v1/groups/" + id

	code, _ = s.do(t, "bob", http.MethodGet, base, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, inv := s.do(t, "alice", http.MethodPost, base+"/invites", nil)
	require.Equal(t, http.StatusCreated, code)
	code, _ = s.do(t, "bob", http.MethodPost, "/api/v1/invites/accept", gin.H{"token": inv["token"]})
	require.Equal(t, http.StatusOK, code)
	code, _ = s.do(t, "bob", http.MethodPost, "/api/v1/invites/accept", gin.H{"token": inv["token"]})
	assert.Equal(t, http.StatusConflict, code)

	code, item := s.do(t, "bob", http.MethodPost, base+"/items", gin.H{"body": "milk", "links": []string{"https://shop"}})
	require.Equal(t, http.StatusCreated, code)
	itemPath := base + "/items/" + item["id"].(string)

	code, _ = s.do(t, "alice", http.MethodPatch, itemPath, gin.H{"body": "oat milk"})
	assert.Equal(t, http.StatusForbidden, code)
	code, selected := s.do(t, "alice", http.MethodPost, itemPath+"/select?kind=regular", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, selected["selected"])

	code, _ = s.do(t, "bob", http.MethodPost, base+"/messages", gin.H{"body": "anything else?"})
	require.Equal(t, http.StatusCreated, code)
	code, page := s.do(t, "alice", http.MethodGet, base+"/messages?limit=10", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, page["hasMore"])
	// created notice, bob joined, bob's message
	assert.Len(t, page["messages"], 3)
	code, _ = s.do(t, "alice", http.MethodPost, base+"/messages/read", nil)
	assert.Equal(t, http.StatusNoContent, code)

	code, list := s.do(t, "bob", http.MethodGet, "/api/v1/groups", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, list["groups"], 1)

	code, res := s.do(t, "bob", http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "forbidden", res["status"])

	code, res = s.do(t, "alice", http.MethodDelete, base, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "deleted", res["status"])

	code, res = s.do(t, "alice", http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", res["status"])
}

func TestMembershipOverHTTP(t *testing.T) {
	s := newTestServer(t, nil)

	_, family := s.do(t, "alice", http.MethodPost, "/api/v1/groups", gin.H{"variant": "GIFT_GROUP", "name": "Family"})
	familyID := family["id"].(string)
	base := "/api/v1/groups/" + familyID

	code, child := s.do(t, "alice", http.MethodPost, "/api/v1/groups", gin.H{"variant": "GIFT_GROUP_CHILD", "name": "2024", "parentGroupId": familyID})
	require.Equal(t, http.StatusCreated, code)
	childID := child["id"].(string)

	_, inv := s.do(t, "alice", http.MethodPost, base+"/invites", gin.H{})
	code, _ = s.do(t, "bob", http.MethodPost, "/api/v1/invites/accept", gin.H{"token": inv["token"]})
	require.Equal(t, http.StatusOK, code)

	code, _ = s.do(t, "bob", http.MethodPost, "/api/v1/groups/"+childID+"/leave", nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = s.do(t, "alice", http.MethodPut, base+"/members/bob/permissions", gin.H{"permissions": []string{"GROUP_INVITE", "NOT_A_PERMISSION"}})
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = s.do(t, "alice", http.MethodPut, base+"/members/bob/permissions", gin.H{"permissions": []string{"GROUP_RW_MESSAGES"}})
	assert.Equal(t, http.StatusConflict, code)
	code, view := s.do(t, "alice", http.MethodPut, base+"/members/bob/permissions", gin.H{"permissions": []string{"group_invite", "GROUP_RENAME"}})
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, view["members"], 2)

	code, _ = s.do(t, "alice", http.MethodDelete, base+"/members/bob", nil)
	assert.Equal(t, http.StatusNoContent, code)
	code, _ = s.do(t, "bob", http.MethodGet, "/api/v1/groups/"+childID, nil)
	assert.Equal(t, http.StatusForbidden, code)
}

func TestErrorStatusesOverHTTP(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name   string
		user   string
		method string
		path   string
		body   any
		want   int
	}{
		{"no token", "", http.MethodGet, "/api/v1/groups", nil, http.StatusUnauthorized},
		{"unknown variant", "alice", http.MethodPost, "/api/v1/groups", gin.H{"variant": "SHOPPING", "name": "x"}, http.StatusBadRequest},
		{"missing variant", "alice", http.MethodPost, "/api/v1/groups", gin.H{"name": "x"}, http.StatusBadRequest},
		{"blank name", "alice", http.MethodPost, "/api/v1/groups", gin.H{"variant": "BASIC_LIST", "name": " "}, http.StatusBadRequest},
		{"child without parent", "alice", http.MethodPost, "/api/v1/groups", gin.H{"variant": "GIFT_GROUP_CHILD", "name": "x"}, http.StatusConflict},
		{"missing group", "alice", http.MethodGet, "/api/v1/groups/nope", nil, http.StatusNotFound},
		{"bad invite", "alice", http.MethodPost, "/api/v1/invites/accept", gin.H{"token": "garbage"}, http.StatusConflict},
		{"bad cursor", "alice", http.MethodGet, "/api/v1/groups/nope/messages?before=abc", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := s.do(t, tt.user, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, code)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, nil)

	code, body := s.do(t, "", http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])

	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "giftlist_http_requests_total")

	down := newTestServer(t, func(context.Context) error { return errors.New("db down") })
	code, _ = down.do(t, "", http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestTraceHeaderAndCORS(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Trace-ID", "trace-123")
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	assert.Equal(t, "trace-123", w.Header().Get("X-Trace-ID"))

	w = httptest.NewRecorder()
	s.engine.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/api/v1/groups", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecoveryHidesPanics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Recovery(nil))
	r.GET("/boom", func(*gin.Context) { panic("kaboom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "kaboom")
}
