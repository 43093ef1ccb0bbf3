package handler

import (
	"arbiter/backend/internal/lifecycle"
	"arbiter/backend/internal/models"
	"net/http"

	"github.com/gin-gonic/gin"
)

type createCaseRequest struct {
	Topic               string         `json:"topic"`
	RelationshipContext string         `json:"relationship_context"`
	Parties             []models.Party `json:"parties"`
	InvitedUserID       *string        `json:"invited_user_id"`
	Language            string         `json:"language"`
}

func (h *Handler) CreateCase(c *gin.Context) {
	var req createCaseRequest
	if !bindJSON(c, &req) {
		return
	}
	created, err := h.Cases.CreateCase(c.Request.Context(), lifecycle.CreateCaseParams{
		OwnerID:             actingUser(c),
		Topic:               req.Topic,
		RelationshipContext: req.RelationshipContext,
		Parties:             req.Parties,
		InvitedUserID:       req.InvitedUserID,
		Language:            req.Language,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) ListCases(c *gin.Context) {
	cases, err := h.Cases.ListCases(c.Request.Context(), actingUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cases": cases})
}

func (h *Handler) GetCase(c *gin.Context) {
	got, err := h.Cases.GetCase(c.Request.Context(), c.Param("id"), actingUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, got)
}

func (h *Handler) AcceptCase(c *gin.Context) {
	got, err := h.Cases.AcceptCase(c.Request.Context(), c.Param("id"), actingUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, got)
}

func (h *Handler) RejectCase(c *gin.Context) {
	got, err := h.Cases.RejectCase(c.Request.Context(), c.Param("id"), actingUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, got)
}
