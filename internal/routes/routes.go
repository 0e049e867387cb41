package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	handler "ledger-reconciliation-backend/internal/handlers"
	"ledger-reconciliation-backend/internal/repository"
	service "ledger-reconciliation-backend/internal/services/reconciliation"
)

// RegisterRoutes wires the repositories, the service and the handler and
// returns the service so the caller can wait for running batches.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, settings service.Settings, log zerolog.Logger) *service.Service {
	batchRepo := repository.NewBatchRepository(db)
	resultRepo := repository.NewResultRepository(db)

	reconService := service.NewService(batchRepo, resultRepo, settings, log)
	Mount(r, handler.NewReconciliationHandler(reconService))
	return reconService
}

func Mount(r *gin.Engine, reconHandler *handler.ReconciliationHandler) {
	api := r.Group("/api")

	// Health check
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Reconciliation batch routes
	recon := api.Group("/reconciliation")
	recon.POST("/bank-ledger", reconHandler.UploadBankLedger)
	recon.POST("/customer", reconHandler.UploadCustomer)
	recon.GET("/:batchId", reconHandler.GetBatch)
	recon.GET("/:batchId/results", reconHandler.ListResults)
	recon.GET("/:batchId/buckets", reconHandler.ListBuckets)
	recon.GET("/:batchId/report", reconHandler.DownloadReport)

	// Review decisions
	results := api.Group("/results")
	results.POST("/:id/confirm", reconHandler.ConfirmResult)
	results.POST("/:id/reject", reconHandler.RejectResult)
}
