package sharing

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
	MountRoutes(router, store, nil)
	return router
}

func shareRequest(chatID, actorID, role, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/v1/chats/"+chatID+"/share", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(security.HeaderActorID, actorID)
	req.Header.Set(security.HeaderActorRole, role)
	req.Header.Set(security.HeaderOrganizationID, "acme")
	return req
}

func TestSetSharing_OwnerRoundTrip(t *testing.T) {
	store := storetest.New()
	store.SeedRecord(model.ConversationRecord{
		ChatID: "chat-1", ActorID: "member123", OrganizationID: "acme", Summary: "s",
	})
	router := newRouter(store)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, shareRequest("chat-1", "member123", "member", `{"sharing":"organization"}`))
	require.Equal(t, http.StatusOK, rec.Code)

	record, err := store.GetConversationRecordByChatID(context.Background(), "chat-1")
	require.NoError(t, err)
	require.Equal(t, model.SharingOrganization, record.SharingLevel)
	require.NotNil(t, record.SharedAt)

	// Back to private clears the shared timestamp.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, shareRequest("chat-1", "member123", "member", `{"sharing":"private"}`))
	require.Equal(t, http.StatusOK, rec.Code)

	record, err = store.GetConversationRecordByChatID(context.Background(), "chat-1")
	require.NoError(t, err)
	require.Equal(t, model.SharingPrivate, record.SharingLevel)
	require.Nil(t, record.SharedAt)
}

func TestSetSharing_IsIdempotent(t *testing.T) {
	store := storetest.New()
	store.SeedRecord(model.ConversationRecord{
		ChatID: "chat-1", ActorID: "member123", OrganizationID: "acme", Summary: "s",
	})
	router := newRouter(store)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, shareRequest("chat-1", "member123", "member", `{"sharing":"organization"}`))
		require.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestSetSharing_NonOwnerForbidden(t *testing.T) {
	store := storetest.New()
	store.SeedRecord(model.ConversationRecord{
		ChatID: "chat-1", ActorID: "member123", OrganizationID: "acme", Summary: "s",
	})
	router := newRouter(store)

	// A team lead who is not the owner cannot re-share.
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, shareRequest("chat-1", "lead1", "team_lead", `{"sharing":"organization"}`))
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSetSharing_SuperAdminMayTransitionAnyRecord(t *testing.T) {
	store := storetest.New()
	store.SeedRecord(model.ConversationRecord{
		ChatID: "chat-1", ActorID: "member123", OrganizationID: "acme", Summary: "s",
	})
	router := newRouter(store)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, shareRequest("chat-1", "root", "super_admin", `{"sharing":"organization"}`))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestSetSharing_UnknownLevelRejected(t *testing.T) {
	store := storetest.New()
	store.SeedRecord(model.ConversationRecord{
		ChatID: "chat-1", ActorID: "member123", OrganizationID: "acme", Summary: "s",
	})
	router := newRouter(store)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, shareRequest("chat-1", "member123", "member", `{"sharing":"public"}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSetSharing_UnknownChatNotFound(t *testing.T) {
	router := newRouter(storetest.New())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, shareRequest("ghost", "member123", "member", `{"sharing":"organization"}`))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSetSharing_MissingActorHeaderRejected(t *testing.T) {
	router := newRouter(storetest.New())

	req := httptest.NewRequest(http.MethodPost, "/v1/chats/chat-1/share", strings.NewReader(`{"sharing":"organization"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetRecord_HidesOtherActorsRecords(t *testing.T) {
	store := storetest.New()
	store.SeedRecord(model.ConversationRecord{
		ChatID: "chat-1", ActorID: "member123", OrganizationID: "acme", Summary: "s",
	})
	router := newRouter(store)

	req := httptest.NewRequest(http.MethodGet, "/v1/chats/chat-1/record", nil)
	req.Header.Set(security.HeaderActorID, "member999")
	req.Header.Set(security.HeaderActorRole, "member")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetRecord_OwnerSeesRecord(t *testing.T) {
	store := storetest.New()
	store.SeedRecord(model.ConversationRecord{
		ChatID: "chat-1", ActorID: "member123", OrganizationID: "acme", Summary: "the summary",
	})
	router := newRouter(store)

	req := httptest.NewRequest(http.MethodGet, "/v1/chats/chat-1/record", nil)
	req.Header.Set(security.HeaderActorID, "member123")
	req.Header.Set(security.HeaderActorRole, "member")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var got model.ConversationRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "the summary", got.Summary)
}
