package handlers

import (
	"sap-sales-sync/internal/sync"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the sync API. guard protects every route that
// triggers a sync or exposes data.
func RegisterRoutes(r gin.IRouter, h *SyncHandler, system *SystemHandler, guard gin.HandlerFunc) {
	apiGroup := r.Group("/api")
	apiGroup.Use(guard)
	{
		sales := apiGroup.Group("/sales")
		{
			sales.POST("/insertData", h.TriggerEntity(sync.EntitySalesTargets))
			sales.POST("/insertSalesOrders", h.TriggerEntity(sync.EntitySalesOrders))
			sales.POST("/insertSalesInvoices", h.TriggerEntity(sync.EntitySalesInvoices))
		}

		customer := apiGroup.Group("/customer")
		{
			customer.POST("/sync-customers", h.TriggerEntity(sync.EntityCustomers))
			customer.GET("/export", system.ExportCustomers)
		}

		apiGroup.POST("/taget/fetch-insert", h.TriggerEntity(sync.EntityTargetValues))
		apiGroup.POST("/syncAllAPIs", h.SyncAllAPIs)

		syncRoutes := apiGroup.Group("/sync")
		{
			syncRoutes.POST("/run-all", h.RunAll)
			syncRoutes.GET("/entities", h.ListEntities)
			syncRoutes.GET("/runs", h.ListRuns)
			syncRoutes.GET("/runs/:id", h.GetRun)
			syncRoutes.GET("/scheduler", system.GetSchedulerStatus)
		}
	}
}
