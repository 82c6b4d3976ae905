package api

import (
	"log/slog"

	"bookreview/pkg/logging"
	"bookreview/pkg/metrics"

	"github.com/gin-gonic/gin"
)

func NewRouter(h *Handler, logger *slog.Logger) *gin.Engine {
	server := gin.New()
	server.Use(gin.Recovery(), logging.Middleware(logger), metrics.Middleware())

	server.GET("/manage/health", h.healthCheck)
	server.GET("/metrics", metrics.Handler())

	books := server.Group("/", RequireUser())
	books.GET("/search", h.searchBooks)
	books.GET("/book/:isbn", h.getBook)
	books.POST("/book/:isbn", h.submitReview)
	books.GET("/api/:isbn", h.apiSummary)

	return server
}
