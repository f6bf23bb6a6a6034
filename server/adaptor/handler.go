package adaptor

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/nakshatratalks/consult-engine/server/domain"
	"github.com/nakshatratalks/consult-engine/server/usecase"
)

// Handler exposes the engine over HTTP.
type Handler struct {
	engine *usecase.Engine
	log    *logrus.Logger
}

func NewHandler(engine *usecase.Engine, log *logrus.Logger) *Handler {
	return &Handler{engine: engine, log: log}
}

// Register mounts all routes on the given router.
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/healthz", h.Health)

	r.POST("/sessions", h.RequestSession)
	r.GET("/sessions", h.ListSessions)
	r.GET("/sessions/:id", h.GetSession)
	r.GET("/sessions/:id/summary", h.GetSummary)
	r.POST("/sessions/:id/end", h.EndSession)
	r.POST("/sessions/:id/cancel", h.CancelSession)
	r.POST("/sessions/:id/background", h.BackgroundSession)
	r.POST("/sessions/:id/continue", h.ContinueSession)
	r.POST("/sessions/:id/messages", h.SendMessage)
	r.POST("/sessions/:id/rating", h.SubmitRating)

	r.GET("/queues/:advisorID", h.QueueSnapshot)
	r.PUT("/advisors/:advisorID/presence", h.SetAdvisorPresence)
}

type requestSessionBody struct {
	CustomerID string  `json:"customer_id" binding:"required"`
	AdvisorID  string  `json:"advisor_id" binding:"required"`
	Modality   string  `json:"modality" binding:"required"`
	RatePerMin float64 `json:"rate_per_min" binding:"required"`
}

func (h *Handler) RequestSession(c *gin.Context) {
	var body requestSessionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, NewBadRequestError(err.Error(), c.FullPath()))
		return
	}

	req := domain.NewSessionRequest(body.CustomerID, body.AdvisorID, domain.Modality(body.Modality), body.RatePerMin)
	view, err := h.engine.RequestSession(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

func (h *Handler) ListSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": h.engine.Sessions()})
}

func (h *Handler) GetSession(c *gin.Context) {
	view, err := h.engine.Session(c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) GetSummary(c *gin.Context) {
	summary, err := h.engine.Summary(c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) EndSession(c *gin.Context) {
	if err := h.engine.EndSession(c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"session_id": c.Param("id"), "status": "ending"})
}

func (h *Handler) CancelSession(c *gin.Context) {
	if err := h.engine.Cancel(c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"session_id": c.Param("id"), "status": "cancelling"})
}

func (h *Handler) BackgroundSession(c *gin.Context) {
	if err := h.engine.Backgrounded(c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"session_id": c.Param("id"), "status": "ending"})
}

func (h *Handler) ContinueSession(c *gin.Context) {
	if err := h.engine.ContinueSession(c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": c.Param("id"), "status": "continued"})
}

type sendMessageBody struct {
	Text string `json:"text" binding:"required"`
}

func (h *Handler) SendMessage(c *gin.Context) {
	var body sendMessageBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, NewBadRequestError(err.Error(), c.FullPath()))
		return
	}
	if err := h.engine.SendMessage(c.Request.Context(), c.Param("id"), body.Text); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": c.Param("id"), "status": "sent"})
}

type submitRatingBody struct {
	Score   int    `json:"score" binding:"required"`
	Comment string `json:"comment"`
}

func (h *Handler) SubmitRating(c *gin.Context) {
	var body submitRatingBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, NewBadRequestError(err.Error(), c.FullPath()))
		return
	}
	if err := h.engine.SubmitRating(c.Param("id"), body.Score, body.Comment); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session_id": c.Param("id"), "status": "rated"})
}

type advisorPresenceBody struct {
	// Pointer so an explicit false survives binding validation.
	Online *bool `json:"online" binding:"required"`
}

func (h *Handler) SetAdvisorPresence(c *gin.Context) {
	var body advisorPresenceBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, NewBadRequestError(err.Error(), c.FullPath()))
		return
	}
	h.engine.SetAdvisorPresence(c.Param("advisorID"), *body.Online)
	c.JSON(http.StatusOK, gin.H{"advisor_id": c.Param("advisorID"), "online": *body.Online})
}

func (h *Handler) QueueSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"advisor_id": c.Param("advisorID"),
		"tickets":    h.engine.QueueSnapshot(c.Param("advisorID")),
	})
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	instance := c.Request.URL.Path

	var insufficient *domain.InsufficientBalanceError
	var rateLimited *domain.RateLimitedError
	var ledgerDown *domain.LedgerUnavailableError
	var channelDown *domain.ChannelUnavailableError

	switch {
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrSummaryNotFound),
		errors.Is(err, domain.ErrRatingNotFound):
		c.JSON(http.StatusNotFound, NewNotFoundError(err.Error(), instance))
	case errors.Is(err, domain.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, NewBadRequestError(err.Error(), instance))
	case errors.Is(err, domain.ErrSessionExists),
		errors.Is(err, domain.ErrAlreadyRated),
		errors.Is(err, domain.ErrSessionNotActive),
		errors.Is(err, domain.ErrAdvisorUnavailable):
		c.JSON(http.StatusConflict, NewConflictError(err.Error(), instance))
	case errors.Is(err, domain.ErrEngineClosed):
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(http.StatusServiceUnavailable, "Service Unavailable", err.Error(), instance))
	case errors.As(err, &insufficient):
		c.JSON(http.StatusPaymentRequired, PaymentRequiredError(err.Error(), instance))
	case errors.As(err, &rateLimited):
		c.JSON(http.StatusTooManyRequests, TooManyRequestsError(err.Error(), instance))
	case errors.As(err, &ledgerDown), errors.As(err, &channelDown):
		c.JSON(http.StatusBadGateway, NewBadGatewayError(err.Error(), instance))
	default:
		h.log.WithError(err).Error("unhandled engine error")
		c.JSON(http.StatusInternalServerError, NewInternalError(err.Error(), instance))
	}
}
