package ports

import (
	"context"

	"callrelay/internal/core/domain"

	"github.com/gin-gonic/gin"
)

type HTTPHandler interface {
	GetICEServers(c *gin.Context)
	GetStats(c *gin.Context)
}

type WebSocketHandler interface {
	HandleConnection(ctx context.Context, id domain.ConnectionID) error
	HandleMessage(ctx context.Context, id domain.ConnectionID, message []byte) error
	HandleDisconnect(ctx context.Context, id domain.ConnectionID)
}
