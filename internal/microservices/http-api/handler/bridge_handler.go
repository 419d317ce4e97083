package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"fcpd/internal/fudi"
	"fcpd/internal/host"
	"fcpd/internal/microservices/http-api/dto"
	"fcpd/internal/microservices/http-api/middleware"
	"fcpd/internal/microservices/http-api/service"
	"fcpd/internal/microservices/tcp"

	"github.com/gin-gonic/gin"
)

type BridgeHandler struct {
	bridgeService service.BridgeService
}

func NewBridgeHandler(bridgeService service.BridgeService) *BridgeHandler {
	return &BridgeHandler{
		bridgeService: bridgeService,
	}
}

// RegisterRoutes registers the operator routes. /health stays public,
// the rest go behind the auth middleware when one is given.
func (h *BridgeHandler) RegisterRoutes(router *gin.RouterGroup, auth gin.HandlerFunc) {
	router.GET("/health", h.Health)

	protected := router.Group("")
	if auth != nil {
		protected.Use(auth)
	}
	{
		protected.GET("/session", h.Session)
		protected.GET("/handlers", h.Handlers)
		protected.GET("/objects", h.Objects)
		protected.POST("/send", h.Send)
		protected.POST("/selection", h.Selection)
	}
}

// NewRouter builds the gin engine for the operator API. A nil validator
// leaves every route open.
func NewRouter(bridgeService service.BridgeService, validator middleware.TokenValidator, logger *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if logger != nil {
		r.Use(middleware.RequestLogger(logger))
	}

	var auth gin.HandlerFunc
	if validator != nil {
		auth = middleware.AuthMiddleware(validator)
	}
	NewBridgeHandler(bridgeService).RegisterRoutes(&r.RouterGroup, auth)
	return r
}

// Health reports whether the bridge is still running
// GET /health
func (h *BridgeHandler) Health(c *gin.Context) {
	resp := h.bridgeService.Health(c.Request.Context())
	if resp.Status != "ok" {
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Session returns the server status and the observers in place
// GET /session
func (h *BridgeHandler) Session(c *gin.Context) {
	session, err := h.bridgeService.Session(c.Request.Context())
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, session)
}

// Handlers lists the registered command keywords
// GET /handlers
func (h *BridgeHandler) Handlers(c *gin.Context) {
	keywords, err := h.bridgeService.Handlers(c.Request.Context())
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.HandlersResponse{Keywords: keywords})
}

// Objects lists the document objects with their properties
// GET /objects
func (h *BridgeHandler) Objects(c *gin.Context) {
	objects, err := h.bridgeService.Objects(c.Request.Context())
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, objects)
}

// Send pushes one message to the patch
// POST /send
func (h *BridgeHandler) Send(c *gin.Context) {
	var req dto.SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.bridgeService.Send(c.Request.Context(), req.Values); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "queued"})
}

// Selection selects an object or clears the selection
// POST /selection
func (h *BridgeHandler) Selection(c *gin.Context) {
	var req dto.SelectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	selection, err := h.bridgeService.Select(c.Request.Context(), req)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, selection)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, fudi.ErrMalformedValue),
		errors.Is(err, fudi.ErrRefOutOfRange):
		return http.StatusBadRequest
	case errors.Is(err, host.ErrNoObject):
		return http.StatusNotFound
	case errors.Is(err, tcp.ErrServerClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
