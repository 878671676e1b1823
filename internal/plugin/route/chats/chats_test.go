package chats

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/yanthraa/chat-memory/internal/model"
	"github.com/yanthraa/chat-memory/internal/registry/store/storetest"
	"github.com/yanthraa/chat-memory/internal/security"
)

func newRouter(store *storetest.Fake) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	MountRoutes(router, store, nil, nil, nil)
	return router
}

func jsonRequest(method, path, actorID, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(security.HeaderActorID, actorID)
	req.Header.Set(security.HeaderActorRole, "member")
	req.Header.Set(security.HeaderOrganizationID, "acme")
	req.Header.Set(security.HeaderTeamID, "t1")
	return req
}

func TestAppendMessage_CreatesActorAndMessage(t *testing.T) {
	store := storetest.New()
	router := newRouter(store)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, jsonRequest(http.MethodPost, "/v1/chats/chat-1/messages", "member123",
		`{"userText":"hello","assistantText":"hi"}`))
	require.Equal(t, http.StatusCreated, rec.Code)

	actor, err := store.GetActor(context.Background(), "member123")
	require.NoError(t, err)
	require.Equal(t, model.RoleMember, actor.Role)

	messages, err := store.RecentMessages(context.Background(), "chat-1", 10)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	require.Equal(t, "hello", messages[0].UserText)
}

func TestAppendMessage_RequiresUserText(t *testing.T) {
	router := newRouter(storetest.New())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, jsonRequest(http.MethodPost, "/v1/chats/chat-1/messages", "member123",
		`{"assistantText":"hi"}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListMessages_ReturnsChronologicalWindow(t *testing.T) {
	store := storetest.New()
	for _, text := range []string{"first", "second", "third"} {
		_, err := store.AppendMessage(context.Background(), model.Message{
			ChatID: "chat-1", ActorID: "member123", UserText: text,
		})
		require.NoError(t, err)
	}
	router := newRouter(store)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, jsonRequest(http.MethodGet, "/v1/chats/chat-1/messages?limit=2", "member123", ""))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data []model.Message `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 2)
	require.Equal(t, "second", resp.Data[0].UserText)
	require.Equal(t, "third", resp.Data[1].UserText)
}

func TestCompleteChat_CreatesRecord(t *testing.T) {
	store := storetest.New()
	router := newRouter(store)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, jsonRequest(http.MethodPost, "/v1/chats/chat-1/complete", "member123",
		`{"summary":"we discussed go","metadata":{"topic":"go"}}`))
	require.Equal(t, http.StatusCreated, rec.Code)

	record, err := store.GetConversationRecordByChatID(context.Background(), "chat-1")
	require.NoError(t, err)
	require.Equal(t, "we discussed go", record.Summary)
	require.Equal(t, model.SharingPrivate, record.SharingLevel)
	require.Equal(t, "member123", record.ActorID)
	require.Nil(t, record.EmbeddedAt)
}

func TestCompleteChat_DuplicateIsConflict(t *testing.T) {
	store := storetest.New()
	router := newRouter(store)

	body := `{"summary":"first"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, jsonRequest(http.MethodPost, "/v1/chats/chat-1/complete", "member123", body))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, jsonRequest(http.MethodPost, "/v1/chats/chat-1/complete", "member123", body))
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestCompleteChat_RejectsUnknownSharing(t *testing.T) {
	router := newRouter(storetest.New())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, jsonRequest(http.MethodPost, "/v1/chats/chat-1/complete", "member123",
		`{"summary":"s","sharing":"everyone"}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCompleteChat_AcceptsInitialOrganizationSharing(t *testing.T) {
	store := storetest.New()
	router := newRouter(store)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, jsonRequest(http.MethodPost, "/v1/chats/chat-1/complete", "member123",
		`{"summary":"s","sharing":"organization"}`))
	require.Equal(t, http.StatusCreated, rec.Code)

	record, err := store.GetConversationRecordByChatID(context.Background(), "chat-1")
	require.NoError(t, err)
	require.Equal(t, model.SharingOrganization, record.SharingLevel)
}

func TestListActorChats_OwnOnly(t *testing.T) {
	store := storetest.New()
	store.SeedRecord(model.ConversationRecord{ChatID: "chat-1", ActorID: "member123", OrganizationID: "acme", Summary: "s"})
	store.SeedRecord(model.ConversationRecord{ChatID: "chat-2", ActorID: "member999", OrganizationID: "acme", Summary: "s"})
	router := newRouter(store)

	t.Run("actor lists own chats", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, jsonRequest(http.MethodGet, "/v1/actors/member123/chats", "member123", ""))
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Data []model.ConversationRecord `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Data, 1)
		require.Equal(t, "chat-1", resp.Data[0].ChatID)
	})

	t.Run("other members are forbidden", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, jsonRequest(http.MethodGet, "/v1/actors/member999/chats", "member123", ""))
		require.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("super_admin may list any actor", func(t *testing.T) {
		req := jsonRequest(http.MethodGet, "/v1/actors/member999/chats", "root", "")
		req.Header.Set(security.HeaderActorRole, "super_admin")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestEnsureActor_SecondSuperAdminIsConflict(t *testing.T) {
	store := storetest.New()
	router := newRouter(store)

	first := jsonRequest(http.MethodPost, "/v1/chats/chat-1/messages", "root", `{"userText":"hi"}`)
	first.Header.Set(security.HeaderActorRole, "super_admin")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, first)
	require.Equal(t, http.StatusCreated, rec.Code)

	second := jsonRequest(http.MethodPost, "/v1/chats/chat-2/messages", "usurper", `{"userText":"hi"}`)
	second.Header.Set(security.HeaderActorRole, "super_admin")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, second)
	require.Equal(t, http.StatusConflict, rec.Code)
}
