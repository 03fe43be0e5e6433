package ingestion

import (
	"github.com/epione-lab/project-epione/internal/core/aggregation"
	"github.com/epione-lab/project-epione/internal/core/storage"
	"github.com/gin-gonic/gin"
)

// Service owns the write path: normalizing raw sale line-items into the
// engine, and sealing windows (flushing them to durable storage).
type Service struct {
	engine           *aggregation.Aggregator
	store            storage.SnapshotStore
	maxBodySizeBytes int
}

func NewService(engine *aggregation.Aggregator, store storage.SnapshotStore, maxBodySizeMB int) *Service {
	if engine == nil {
		panic("ingestion: engine must not be nil")
	}
	if store == nil {
		panic("ingestion: store must not be nil")
	}
	if maxBodySizeMB <= 0 {
		maxBodySizeMB = 1 // default to 1MB
	}
	return &Service{
		engine:           engine,
		store:            store,
		maxBodySizeBytes: maxBodySizeMB * 1024 * 1024,
	}
}

// RegisterRoutes registers the ingestion service routes.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.POST("/v1/sales", s.IngestHandler)
	r.POST("/v1/sales/batch", s.IngestBatchHandler)

	// Sealing is driven by the caller (scheduler or operator), never by the engine.
	r.POST("/v1/windows/:window_id/seal", s.SealHandler)
}
