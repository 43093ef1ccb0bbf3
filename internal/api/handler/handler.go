package handler

import (
	"arbiter/backend/internal/appeal"
	"arbiter/backend/internal/apperr"
	"arbiter/backend/internal/casehub"
	"arbiter/backend/internal/hearing"
	"arbiter/backend/internal/lifecycle"
	"arbiter/backend/internal/logging"
	"arbiter/backend/internal/verdict"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// Handler exposes the case services over HTTP.
type Handler struct {
	Cases    *lifecycle.Service
	Hearings *hearing.Service
	Appeals  *appeal.Controller
	Verdicts *verdict.Service
	Hub      *casehub.Manager
	Auth     *Authenticator

	logger *slog.Logger
}

func NewHandler(cases *lifecycle.Service, hearings *hearing.Service, appeals *appeal.Controller, verdicts *verdict.Service, hub *casehub.Manager, auth *Authenticator) *Handler {
	return &Handler{
		Cases:    cases,
		Hearings: hearings,
		Appeals:  appeals,
		Verdicts: verdicts,
		Hub:      hub,
		Auth:     auth,
		logger:   logging.New("api"),
	}
}

// caseEventsRoute is the only route that takes its token from the query.
const caseEventsRoute = "/api/cases/:id/events"

// Register mounts every route on r.
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api", h.Auth.Middleware())

	api.POST("/cases", h.CreateCase)
	api.GET("/cases", h.ListCases)
	api.GET("/cases/:id", h.GetCase)
	api.POST("/cases/:id/accept", h.AcceptCase)
	api.POST("/cases/:id/reject", h.RejectCase)

	api.POST("/cases/:id/hearings", h.SubmitHearing)
	api.GET("/cases/:id/hearings", h.ListHearings)
	api.POST("/cases/:id/appeals", h.Appeal)
	api.GET("/cases/:id/events", h.ServeCaseEvents)

	api.GET("/hearings/:id", h.GetHearing)
	api.PUT("/hearings/:id/submissions", h.ResubmitStatements)
	api.POST("/hearings/:id/judge", h.Judge)
	api.GET("/hearings/:id/verdict", h.GetVerdict)
}

// NewRouter builds a gin engine with logging, recovery and every route.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{Formatter: accessLogFormatter}), gin.Recovery())
	h.Register(r)
	return r
}

// accessLogFormatter is gin's default line without the query string, which
// may carry a token.
func accessLogFormatter(p gin.LogFormatterParams) string {
	path, _, _ := strings.Cut(p.Path, "?")
	if p.Latency > time.Minute {
		p.Latency = p.Latency.Truncate(time.Second)
	}
	return fmt.Sprintf("[GIN] %v | %3d | %13v | %15s | %-7s %#v\n%s",
		p.TimeStamp.Format("2006/01/02 - 15:04:05"),
		p.StatusCode,
		p.Latency,
		p.ClientIP,
		p.Method,
		path,
		p.ErrorMessage,
	)
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// writeError maps a service error to its status and JSON body.
func writeError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	body := errorResponse{Error: err.Error()}

	var verr *apperr.ValidationError
	if errors.As(err, &verr) {
		body = errorResponse{Error: verr.Message, Field: verr.Field}
	}
	if status == http.StatusInternalServerError {
		slog.Default().Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
		body = errorResponse{Error: "internal error"}
	}
	c.JSON(status, body)
}

// bindJSON decodes the request body, reporting a bad body as a 400.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}
