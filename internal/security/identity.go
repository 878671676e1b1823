package security

import (
	"github.com/gin-gonic/gin"
	"github.com/yanthraa/chat-memory/internal/model"
	registrystore "github.com/yanthraa/chat-memory/internal/registry/store"
)

// Identity headers. Authentication is terminated upstream (gateway/session
// layer); the service trusts these headers for role and hierarchy placement.
const (
	HeaderActorID        = "X-Actor-Id"
	HeaderActorRole      = "X-Actor-Role"
	HeaderOrganizationID = "X-Organization-Id"
	HeaderTeamID         = "X-Team-Id"
)

// ActorFromRequest builds the caller's actor identity from request headers.
// Role validation is deliberately absent here: unknown roles degrade to
// member scope at resolution time rather than failing the request.
func ActorFromRequest(c *gin.Context) (model.Actor, error) {
	id := c.GetHeader(HeaderActorID)
	if id == "" {
		return model.Actor{}, &registrystore.ValidationError{Field: HeaderActorID, Message: "required header is missing"}
	}
	return model.Actor{
		ID:             id,
		Role:           model.Role(c.GetHeader(HeaderActorRole)),
		OrganizationID: c.GetHeader(HeaderOrganizationID),
		TeamID:         c.GetHeader(HeaderTeamID),
	}, nil
}
