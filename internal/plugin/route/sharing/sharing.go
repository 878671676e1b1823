package sharing

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"github.com/yanthraa/chat-memory/internal/model"
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

// MountRoutes mounts sharing transition routes.
func MountRoutes(r *gin.Engine, store registrystore.MemoryStore, vectorStore registryvector.VectorStore) {
	g := r.Group("/v1")

	g.POST("/chats/:chatId/share", func(c *gin.Context) {
		setSharing(c, store, vectorStore)
	})
	g.GET("/chats/:chatId/record", func(c *gin.Context) {
		getRecord(c, store)
	})
}

func setSharing(c *gin.Context, store registrystore.MemoryStore, vectorStore registryvector.VectorStore) {
	actor, err := security.ActorFromRequest(c)
	if err != nil {
		handleError(c, err)
		return
	}

	var req struct {
		Sharing string `json:"sharing" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}
	level := model.SharingLevel(req.Sharing)
	if !level.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": fmt.Sprintf("unknown sharing level %q", req.Sharing)})
		return
	}

	rec, err := store.SetSharingLevel(c.Request.Context(), c.Param("chatId"), actor, level)
	if err != nil {
		handleError(c, err)
		return
	}

	// Keep the vector index's visibility payload in step with the record.
	if vectorStore != nil && vectorStore.IsEnabled() {
		if err := vectorStore.SetSharingLevel(c.Request.Context(), rec.ID, rec.SharingLevel); err != nil {
			log.Warn("Vector store sharing update failed", "chatId", rec.ChatID, "err", err)
		}
	}

	c.JSON(http.StatusOK, rec)
}

func getRecord(c *gin.Context, store registrystore.MemoryStore) {
	actor, err := security.ActorFromRequest(c)
	if err != nil {
		handleError(c, err)
		return
	}

	rec, err := store.GetConversationRecordByChatID(c.Request.Context(), c.Param("chatId"))
	if err != nil {
		handleError(c, err)
		return
	}
	if rec.ActorID != actor.ID && actor.Role != model.RoleSuperAdmin {
		// Hide existence from non-owners.
		handleError(c, &registrystore.NotFoundError{Resource: "conversation record", ID: c.Param("chatId")})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func handleError(c *gin.Context, err error) {
	var notFound *registrystore.NotFoundError
	var validation *registrystore.ValidationError
	var forbidden *registrystore.ForbiddenError

	switch {
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": err.Error()})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error(), "field": validation.Field})
	case errors.As(err, &forbidden):
		c.JSON(http.StatusForbidden, gin.H{"code": "forbidden", "error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
