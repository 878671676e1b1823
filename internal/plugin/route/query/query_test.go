package query

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/yanthraa/chat-memory/internal/assembler"
	"github.com/yanthraa/chat-memory/internal/model"
	"github.com/yanthraa/chat-memory/internal/registry/store/storetest"
	"github.com/yanthraa/chat-memory/internal/security"
)

func newRouter(store *storetest.Fake) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	asm := assembler.New(store, nil, nil, nil, assembler.Options{})
	MountRoutes(router, asm)
	return router
}

func contextRequest(actorID, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/v1/context", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(security.HeaderActorID, actorID)
	req.Header.Set(security.HeaderActorRole, "member")
	req.Header.Set(security.HeaderOrganizationID, "acme")
	return req
}

func TestAssembleContext_ReturnsSections(t *testing.T) {
	store := storetest.New()
	_, err := store.AppendMessage(context.Background(), model.Message{
		ChatID: "chat-1", ActorID: "member123", UserText: "hello", AssistantText: "hi",
	})
	require.NoError(t, err)
	router := newRouter(store)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, contextRequest("member123",
		`{"chatId":"chat-1","query":"what did we say?","render":true}`))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Sections []assembler.Section `json:"sections"`
		Degraded bool                `json:"degraded"`
		Rendered string              `json:"rendered"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	// No vector store configured: degraded, but still window + query.
	require.True(t, resp.Degraded)
	require.Len(t, resp.Sections, 2)
	require.Contains(t, resp.Rendered, "User: hello")
	require.Contains(t, resp.Rendered, "what did we say?")
}

func TestAssembleContext_RequiresQuery(t *testing.T) {
	router := newRouter(storetest.New())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, contextRequest("member123", `{"chatId":"chat-1"}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAssembleContext_RequiresActorHeader(t *testing.T) {
	router := newRouter(storetest.New())

	req := httptest.NewRequest(http.MethodPost, "/v1/context", strings.NewReader(`{"chatId":"chat-1","query":"q"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
