package query

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yanthraa/chat-memory/internal/assembler"
	registryroute "github.com/yanthraa/chat-memory/internal/registry/route"
	registrystore "github.com/yanthraa/chat-memory/internal/registry/store"
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

// MountRoutes mounts the context assembly route.
func MountRoutes(r *gin.Engine, asm *assembler.Assembler) {
	g := r.Group("/v1")

	g.POST("/context", func(c *gin.Context) {
		assembleContext(c, asm)
	})
}

func assembleContext(c *gin.Context, asm *assembler.Assembler) {
	actor, err := security.ActorFromRequest(c)
	if err != nil {
		handleError(c, err)
		return
	}

	var req struct {
		ChatID      string    `json:"chatId" binding:"required"`
		Query       string    `json:"query"  binding:"required"`
		QueryVector []float32 `json:"queryVector"`
		Render      bool      `json:"render"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}

	out, err := asm.Assemble(c.Request.Context(), assembler.Request{
		Actor:       actor,
		ChatID:      req.ChatID,
		QueryText:   req.Query,
		QueryVector: req.QueryVector,
	})
	if err != nil {
		handleError(c, err)
		return
	}

	resp := gin.H{"sections": out.Sections, "degraded": out.Degraded}
	if req.Render {
		resp["rendered"] = out.Render()
	}
	c.JSON(http.StatusOK, resp)
}

func handleError(c *gin.Context, err error) {
	var notFound *registrystore.NotFoundError
	var validation *registrystore.ValidationError

	switch {
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": err.Error()})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error(), "field": validation.Field})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
