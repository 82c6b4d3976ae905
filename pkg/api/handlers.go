package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"bookreview/pkg/apperrors"
	"bookreview/pkg/bookview"
	"bookreview/pkg/models"

	"github.com/gin-gonic/gin"
)

const (
	userIDHeader = "X-User-Id"
	userIDKey    = "userID"
)

type Searcher interface {
	Search(ctx context.Context, query string) ([]models.Book, error)
}

type ReviewSubmitter interface {
	SubmitReview(ctx context.Context, userID uint, isbn string, rating int, text string) (*models.Review, error)
}

type Viewer interface {
	BookView(ctx context.Context, isbn string) (*bookview.BookView, error)
	APISummary(ctx context.Context, isbn string) (*bookview.Summary, error)
}

// Handler adapts the review core to HTTP.
type Handler struct {
	search  Searcher
	reviews ReviewSubmitter
	views   Viewer
	ping    func(ctx context.Context) error
	logger  *slog.Logger
}

func NewHandler(search Searcher, reviews ReviewSubmitter, views Viewer, ping func(ctx context.Context) error, logger *slog.Logger) *Handler {
	return &Handler{search: search, reviews: reviews, views: views, ping: ping, logger: logger}
}

// RequireUser is the identity gate. The auth layer in front of this service
// sets X-User-Id; requests without a valid one never reach the core.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(userIDHeader)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "X-User-Id header is required"})
			return
		}
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || id == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "X-User-Id must be a positive integer"})
			return
		}
		c.Set(userIDKey, uint(id))
		c.Next()
	}
}

func (h *Handler) searchBooks(c *gin.Context) {
	query := c.Query("book")
	books, err := h.search.Search(c.Request.Context(), query)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if len(books) == 0 {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "We cannot find the book you are searching for.",
			"books": books,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"books": books})
}

func (h *Handler) getBook(c *gin.Context) {
	view, err := h.views.BookView(c.Request.Context(), c.Param("isbn"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) submitReview(c *gin.Context) {
	var request struct {
		Rating int    `form:"rating" json:"rating"`
		Review string `form:"review" json:"review"`
	}
	if err := c.ShouldBind(&request); err != nil {
		h.writeError(c, apperrors.InvalidInput("rating must be a whole number between 1 and 5"))
		return
	}

	isbn := c.Param("isbn")
	review, err := h.reviews.SubmitReview(c.Request.Context(), c.GetUint(userIDKey), isbn, request.Rating, request.Review)
	if errors.Is(err, apperrors.ErrDuplicateReview) {
		c.JSON(http.StatusConflict, gin.H{"error": "You already submitted a review for this book"})
		return
	}
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Your review has been submitted.",
		"review":  review,
	})
}

func (h *Handler) apiSummary(c *gin.Context) {
	summary, err := h.views.APISummary(c.Request.Context(), c.Param("isbn"))
	// The public API has always answered unknown ISBNs with this exact body.
	if errors.Is(err, apperrors.ErrNotFound) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"Error": "Invalid ISBN"})
		return
	}
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) healthCheck(c *gin.Context) {
	if err := h.ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "DOWN",
			"details": "Database ping failed",
			"error":   err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "UP"})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(c.Request.Context(), "request failed",
			slog.String("path", c.FullPath()),
			slog.Any("error", err),
		)
	}
	c.JSON(status, gin.H{"error": apperrors.Message(err)})
}
