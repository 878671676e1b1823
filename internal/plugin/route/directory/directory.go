package directory

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yanthraa/chat-memory/internal/model"
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

// MountRoutes mounts organization directory routes. Listing is restricted to
// super_admin; team leads and members learn about peers through sharing, not
// through the directory.
func MountRoutes(r *gin.Engine, store registrystore.MemoryStore) {
	g := r.Group("/v1")

	g.GET("/organizations", func(c *gin.Context) {
		listOrganizations(c, store)
	})
	g.GET("/organizations/:organizationId/teams", func(c *gin.Context) {
		listTeams(c, store)
	})
	g.GET("/organizations/:organizationId/actors", func(c *gin.Context) {
		listActors(c, store)
	})
}

func requireSuperAdmin(c *gin.Context, store registrystore.MemoryStore) bool {
	actor, err := security.ActorFromRequest(c)
	if err != nil {
		handleError(c, err)
		return false
	}
	// Trust the stored role over the header for directory access.
	stored, err := store.GetActor(c.Request.Context(), actor.ID)
	if err == nil {
		actor.Role = stored.Role
	}
	if actor.Role != model.RoleSuperAdmin {
		handleError(c, &registrystore.ForbiddenError{})
		return false
	}
	return true
}

func listOrganizations(c *gin.Context, store registrystore.MemoryStore) {
	if !requireSuperAdmin(c, store) {
		return
	}
	orgs, err := store.ListOrganizations(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": orgs})
}

func listTeams(c *gin.Context, store registrystore.MemoryStore) {
	if !requireSuperAdmin(c, store) {
		return
	}
	teams, err := store.ListTeams(c.Request.Context(), c.Param("organizationId"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": teams})
}

func listActors(c *gin.Context, store registrystore.MemoryStore) {
	if !requireSuperAdmin(c, store) {
		return
	}
	actors, err := store.ListActors(c.Request.Context(), c.Param("organizationId"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": actors})
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
