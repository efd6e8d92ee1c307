package api

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title Bankfeed API
// @version 1.0
// @description API for syncing bank transactions from connected banking providers
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

// SetupRouter configures the API routes
func SetupRouter(h *Handler) *gin.Engine {
	r := gin.Default()

	r.GET("/health", h.Health)

	// API documentation
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	v1 := r.Group("/api/v1")
	{
		sync := v1.Group("/sync/:provider")
		{
			// @Summary Start a sync
			// @Description Run a sync pass for the provider, optionally bounded by from/to
			// @Tags sync
			// @Accept json
			// @Produce json
			// @Param provider path string true "Provider name" Enums(airwallex, skript)
			// @Param request body SyncRequest false "Optional sync window"
			// @Success 200 {object} SyncResponse
			// @Failure 400 {object} ErrorResponse
			// @Failure 409 {object} ErrorResponse
			// @Router /sync/{provider}/start [post]
			sync.POST("/start", h.StartSync)

			// @Summary Restart a sync from a point in time
			// @Description Re-walk provider records from the given timestamp; dedup keeps the walk idempotent
			// @Tags sync
			// @Accept json
			// @Produce json
			// @Param provider path string true "Provider name"
			// @Param request body SyncRequest true "Sync window, from is required"
			// @Success 200 {object} SyncResponse
			// @Failure 400 {object} ErrorResponse
			// @Failure 409 {object} ErrorResponse
			// @Router /sync/{provider}/restart [post]
			sync.POST("/restart", h.RestartSync)

			// @Summary Stop a running sync
			// @Description Flag the in-flight sync to halt at its next page boundary
			// @Tags sync
			// @Produce json
			// @Param provider path string true "Provider name"
			// @Success 202 {object} map[string]string
			// @Failure 400 {object} ErrorResponse
			// @Router /sync/{provider}/stop [post]
			sync.POST("/stop", h.StopSync)

			// @Summary Get sync status
			// @Tags sync
			// @Produce json
			// @Param provider path string true "Provider name"
			// @Success 200 {object} models.SyncState
			// @Router /sync/{provider}/status [get]
			sync.GET("/status", h.SyncStatus)
		}

		// @Summary List synced transactions
		// @Tags transactions
		// @Produce json
		// @Param limit query int false "Page size" default(50)
		// @Param offset query int false "Rows to skip" default(0)
		// @Param since query string false "Lower date bound (RFC3339)"
		// @Param until query string false "Upper date bound (RFC3339)"
		// @Success 200 {object} map[string]interface{}
		// @Router /transactions [get]
		v1.GET("/transactions", h.ListTransactions)

		// @Summary List provider connection logs
		// @Tags logs
		// @Produce json
		// @Param limit query int false "Page size" default(50)
		// @Param offset query int false "Rows to skip" default(0)
		// @Success 200 {object} map[string]interface{}
		// @Router /logs [get]
		v1.GET("/logs", h.ListConnectionLogs)

		// @Summary Validate provider credentials
		// @Description Force a fresh credential exchange for every configured client
		// @Tags credentials
		// @Produce json
		// @Success 200 {object} map[string]interface{}
		// @Failure 502 {object} map[string]interface{}
		// @Router /credentials/validate [post]
		v1.POST("/credentials/validate", h.ValidateCredentials)

		accounts := v1.Group("/accounts")
		{
			// @Summary List account mappings for a provider
			// @Tags accounts
			// @Produce json
			// @Param provider path string true "Provider name"
			// @Success 200 {object} map[string]interface{}
			// @Router /accounts/{provider} [get]
			accounts.GET("/:provider", h.ListAccountMappings)

			// @Summary Create or update an account mapping
			// @Tags accounts
			// @Accept json
			// @Produce json
			// @Param provider path string true "Provider name"
			// @Param request body AccountMappingRequest true "Mapping"
			// @Success 200 {object} models.AccountMapping
			// @Failure 400 {object} ErrorResponse
			// @Router /accounts/{provider} [put]
			accounts.PUT("/:provider", h.SaveAccountMapping)

			// @Summary Refresh provider account list
			// @Description Pull accounts from the open-banking provider and upsert mappings, preserving existing ledger bindings
			// @Tags accounts
			// @Produce json
			// @Success 200 {object} map[string]int
			// @Failure 502 {object} ErrorResponse
			// @Router /accounts/skript/refresh [post]
			accounts.POST("/skript/refresh", h.RefreshAccounts)
		}
	}

	return r
}
