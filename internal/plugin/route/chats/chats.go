package chats

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yanthraa/chat-memory/internal/model"
	"github.com/yanthraa/chat-memory/internal/profile"
	registryembed "github.com/yanthraa/chat-memory/internal/registry/embed"
	registryroute "github.com/yanthraa/chat-memory/internal/registry/route"
	registrystore "github.com/yanthraa/chat-memory/internal/registry/store"
	registryvector "github.com/yanthraa/chat-memory/internal/registry/vector"
	"github.com/yanthraa/chat-memory/internal/security"
)

func init() {
	registryroute.Register(registryroute.Plugin{
		Order: 100,
		Loader: func(r *gin.Engine) error {
			return nil // routes are mounted by the serve command after store init
		},
	})
}

// MountRoutes mounts chat message and completion routes.
// Called after store initialization so the store is available.
func MountRoutes(r *gin.Engine, store registrystore.MemoryStore, profiles *profile.Service, embedder registryembed.Embedder, vectorStore registryvector.VectorStore) {
	g := r.Group("/v1")

	g.POST("/chats/:chatId/messages", func(c *gin.Context) {
		appendMessage(c, store)
	})
	g.GET("/chats/:chatId/messages", func(c *gin.Context) {
		listMessages(c, store)
	})
	g.POST("/chats/:chatId/complete", func(c *gin.Context) {
		completeChat(c, store, profiles, embedder, vectorStore)
	})
	g.GET("/actors/:actorId/chats", func(c *gin.Context) {
		listActorChats(c, store)
	})
}

func appendMessage(c *gin.Context, store registrystore.MemoryStore) {
	actor, err := security.ActorFromRequest(c)
	if err != nil {
		handleError(c, err)
		return
	}

	var req struct {
		UserText      string `json:"userText"      binding:"required"`
		AssistantText string `json:"assistantText"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}

	actor, err = store.EnsureActor(c.Request.Context(), actor)
	if err != nil {
		handleError(c, err)
		return
	}

	msg, err := store.AppendMessage(c.Request.Context(), model.Message{
		ChatID:         c.Param("chatId"),
		ActorID:        actor.ID,
		OrganizationID: actor.OrganizationID,
		TeamID:         actor.TeamID,
		UserText:       req.UserText,
		AssistantText:  req.AssistantText,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func listMessages(c *gin.Context, store registrystore.MemoryStore) {
	if _, err := security.ActorFromRequest(c); err != nil {
		handleError(c, err)
		return
	}
	limit := queryInt(c, "limit", 20)

	messages, err := store.RecentMessages(c.Request.Context(), c.Param("chatId"), limit)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": messages})
}

func completeChat(c *gin.Context, store registrystore.MemoryStore, profiles *profile.Service, embedder registryembed.Embedder, vectorStore registryvector.VectorStore) {
	actor, err := security.ActorFromRequest(c)
	if err != nil {
		handleError(c, err)
		return
	}

	var req struct {
		Summary  string            `json:"summary"  binding:"required"`
		Sharing  string            `json:"sharing"`
		Metadata map[string]interface{} `json:"metadata"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}

	sharing := model.SharingPrivate
	if req.Sharing != "" {
		sharing = model.SharingLevel(req.Sharing)
		if !sharing.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": fmt.Sprintf("unknown sharing level %q", req.Sharing)})
			return
		}
	}

	actor, err = store.EnsureActor(c.Request.Context(), actor)
	if err != nil {
		handleError(c, err)
		return
	}

	rec, err := store.CreateConversationRecord(c.Request.Context(), model.ConversationRecord{
		ChatID:         c.Param("chatId"),
		ActorID:        actor.ID,
		OrganizationID: actor.OrganizationID,
		TeamID:         actor.TeamID,
		Summary:        req.Summary,
		SharingLevel:   sharing,
		Metadata:       req.Metadata,
	})
	if err != nil {
		handleError(c, err)
		return
	}

	// Index inline when we can; failures are left for the vectorizer to retry.
	if embedder != nil && vectorStore != nil && vectorStore.IsEnabled() {
		if err := indexRecord(c, store, embedder, vectorStore, rec); err != nil {
			log.Warn("Inline embedding failed, record left for vectorizer", "chatId", rec.ChatID, "err", err)
		}
	}

	if profiles != nil {
		profiles.Update(c.Request.Context(), actor.ID, req.Summary)
	}

	c.JSON(http.StatusCreated, rec)
}

func indexRecord(c *gin.Context, store registrystore.MemoryStore, embedder registryembed.Embedder, vectorStore registryvector.VectorStore, rec model.ConversationRecord) error {
	ctx := c.Request.Context()
	embeddings, err := embedder.EmbedTexts(ctx, []string{rec.Summary})
	if err != nil {
		return fmt.Errorf("embed summary: %w", err)
	}
	err = vectorStore.Upsert(ctx, []registryvector.UpsertRequest{{
		RecordID:       rec.ID,
		ChatID:         rec.ChatID,
		ActorID:        rec.ActorID,
		OrganizationID: rec.OrganizationID,
		TeamID:         rec.TeamID,
		SharingLevel:   rec.SharingLevel,
		Embedding:      embeddings[0],
		ModelName:      embedder.ModelName(),
	}})
	if err != nil {
		return fmt.Errorf("upsert embedding: %w", err)
	}
	return store.SetEmbeddedAt(ctx, []uuid.UUID{rec.ID}, time.Now())
}

func listActorChats(c *gin.Context, store registrystore.MemoryStore) {
	actor, err := security.ActorFromRequest(c)
	if err != nil {
		handleError(c, err)
		return
	}
	targetID := c.Param("actorId")
	if targetID != actor.ID && actor.Role != model.RoleSuperAdmin {
		handleError(c, &registrystore.ForbiddenError{})
		return
	}

	records, err := store.ListRecordsForActor(c.Request.Context(), targetID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": records})
}

// --- Helpers ---

func handleError(c *gin.Context, err error) {
	var notFound *registrystore.NotFoundError
	var validation *registrystore.ValidationError
	var conflict *registrystore.ConflictError
	var forbidden *registrystore.ForbiddenError

	switch {
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": err.Error()})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error(), "field": validation.Field})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"code": conflict.Code, "error": err.Error()})
	case errors.As(err, &forbidden):
		c.JSON(http.StatusForbidden, gin.H{"code": "forbidden", "error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func queryInt(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	var i int
	if _, err := fmt.Sscanf(v, "%d", &i); err != nil || i <= 0 {
		return def
	}
	return i
}
