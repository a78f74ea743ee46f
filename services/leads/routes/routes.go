// Copyright (C) 2025 Leadscope Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sn71/leadscope/services/leads/handlers"
)

func SetupRoutes(router *gin.Engine, provider handlers.Provider) {
	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	{
		v1.GET("/inventory", handlers.GetInventory(provider))
		v1.GET("/audit", handlers.RunAudit(provider))
		leads := v1.Group("/leads")
		{
			leads.GET("/latest", handlers.GetLatestLeads(provider))
			leads.GET("/search", handlers.SearchLeads(provider))
		}
		export := v1.Group("/export")
		{
			export.GET("/leads.csv", handlers.ExportLeadsCSV(provider))
		}
	}
}
