package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/SergeiKhy/link-registry/internal/models"
	"github.com/SergeiKhy/link-registry/internal/repository"
	"github.com/SergeiKhy/link-registry/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type LinkHandler struct {
	service service.LinkService
	baseURL string // если пусто, берётся из запроса
	logger  *zap.Logger
}

func NewLinkHandler(service service.LinkService, baseURL string, logger *zap.Logger) *LinkHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LinkHandler{
		service: service,
		baseURL: baseURL,
		logger:  logger,
	}
}

// LinkResponse ответ create и edit
type LinkResponse struct {
	Link      *models.Link `json:"link"`
	ShortLink string       `json:"shortLink"`
}

type DeleteLinkRequest struct {
	Slug string `json:"slug"`
}

// CreateLink POST /api/link/create
func (h *LinkHandler) CreateLink(c *gin.Context) {
	var input models.CreateLinkInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.badRequest(c, err)
		return
	}

	link, err := h.service.CreateLink(c.Request.Context(), &input)
	if err != nil {
		h.writeServiceError(c, "Failed to create link", err)
		return
	}

	c.JSON(http.StatusCreated, LinkResponse{Link: link, ShortLink: h.shortLink(c, link.Slug)})
}

// EditLink PUT /api/link/edit
func (h *LinkHandler) EditLink(c *gin.Context) {
	var input models.EditLinkInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.badRequest(c, err)
		return
	}

	link, err := h.service.EditLink(c.Request.Context(), &input)
	if err != nil {
		h.writeServiceError(c, "Failed to edit link", err)
		return
	}

	c.JSON(http.StatusCreated, LinkResponse{Link: link, ShortLink: h.shortLink(c, link.Slug)})
}

// DeleteLink POST /api/link/delete; отсутствие slug не ошибка
func (h *LinkHandler) DeleteLink(c *gin.Context) {
	var req DeleteLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.badRequest(c, err)
		return
	}

	if err := h.service.DeleteLink(c.Request.Context(), req.Slug); err != nil {
		h.writeServiceError(c, "Failed to delete link", err)
		return
	}

	c.Status(http.StatusOK)
}

// SearchLinks GET /api/link/search
func (h *LinkHandler) SearchLinks(c *gin.Context) {
	records, err := h.service.ListLinks(c.Request.Context())
	if err != nil {
		h.writeServiceError(c, "Failed to list links", err)
		return
	}
	if records == nil {
		records = []models.LinkRecord{}
	}

	c.JSON(http.StatusOK, records)
}

// QueryLink GET /api/link/query?slug=
func (h *LinkHandler) QueryLink(c *gin.Context) {
	link, err := h.service.GetLink(c.Request.Context(), c.Query("slug"))
	if err != nil {
		h.writeServiceError(c, "Failed to query link", err)
		return
	}

	c.JSON(http.StatusOK, link)
}

// Redirect GET /:slug
func (h *LinkHandler) Redirect(c *gin.Context) {
	slug := c.Param("slug")

	link, err := h.service.GetLink(c.Request.Context(), slug)
	if err != nil {
		h.writeServiceError(c, "Failed to resolve link", err)
		return
	}

	c.Redirect(http.StatusFound, link.URL)
}

// RepairStatsSource отдаёт состояние очереди восстановления metadata
type RepairStatsSource interface {
	Stats() service.RepairStats
}

// HealthCheck GET /api/health
func HealthCheck(repair RepairStatsSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		body := gin.H{"status": "ok"}
		if repair != nil {
			body["repair"] = repair.Stats()
		}
		c.JSON(http.StatusOK, body)
	}
}

func (h *LinkHandler) shortLink(c *gin.Context, slug string) string {
	if h.baseURL != "" {
		return h.baseURL + "/" + slug
	}
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + c.Request.Host + "/" + slug
}

func (h *LinkHandler) badRequest(c *gin.Context, err error) {
	h.logger.Warn("Invalid request body", zap.Error(err))
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error:   "invalid_request",
		Message: err.Error(),
	})
}

// writeServiceError сопоставляет ошибки сервиса со статусами HTTP
func (h *LinkHandler) writeServiceError(c *gin.Context, msg string, err error) {
	switch {
	case errors.Is(err, repository.ErrLinkNotFound):
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "not_found",
			Message: "Link not found or expired",
		})
	case errors.Is(err, service.ErrLinkExists):
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Error:   "link_exists",
			Message: "Link already exists",
		})
	case errors.Is(err, service.ErrInvalidExpiration), errors.Is(err, service.ErrSlugRequired):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
	case errors.Is(err, service.ErrListUnavailable):
		h.logger.Error(msg, zap.Error(err))
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "list_unavailable",
			Message: "Unable to list links",
		})
	default:
		h.logger.Error(msg, zap.Error(err))
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "internal_error",
			Message: msg,
		})
	}
}
