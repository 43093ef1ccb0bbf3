package handler

import (
	"arbiter/backend/internal/appeal"
	"arbiter/backend/internal/hearing"
	"net/http"

	"github.com/gin-gonic/gin"
)

type submitHearingRequest struct {
	Round      *int                     `json:"round"`
	Statements []hearing.StatementInput `json:"statements"`
	Evidence   []hearing.EvidenceInput  `json:"evidence"`
}

type submissionsRequest struct {
	Statements []hearing.StatementInput `json:"statements"`
	Evidence   []hearing.EvidenceInput  `json:"evidence"`
}

type appealRequest struct {
	HearingID  string                   `json:"hearing_id"`
	Statements []hearing.StatementInput `json:"statements"`
	Evidence   []hearing.EvidenceInput  `json:"evidence"`
}

func (h *Handler) SubmitHearing(c *gin.Context) {
	var req submitHearingRequest
	if !bindJSON(c, &req) {
		return
	}
	created, err := h.Hearings.SubmitHearing(c.Request.Context(), hearing.SubmitParams{
		CaseID:       c.Param("id"),
		ActingUserID: actingUser(c),
		Round:        req.Round,
		Statements:   req.Statements,
		Evidence:     req.Evidence,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) ListHearings(c *gin.Context) {
	hearings, err := h.Hearings.ListHearings(c.Request.Context(), c.Param("id"), actingUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"hearings": hearings})
}

func (h *Handler) GetHearing(c *gin.Context) {
	bundle, err := h.Hearings.GetHearing(c.Request.Context(), c.Param("id"), actingUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, bundle)
}

func (h *Handler) ResubmitStatements(c *gin.Context) {
	var req submissionsRequest
	if !bindJSON(c, &req) {
		return
	}
	bundle, err := h.Hearings.ResubmitStatements(c.Request.Context(), hearing.ResubmitParams{
		HearingID:    c.Param("id"),
		ActingUserID: actingUser(c),
		Statements:   req.Statements,
		Evidence:     req.Evidence,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, bundle)
}

func (h *Handler) Appeal(c *gin.Context) {
	var req appealRequest
	if !bindJSON(c, &req) {
		return
	}
	created, err := h.Appeals.Appeal(c.Request.Context(), appeal.Params{
		CaseID:       c.Param("id"),
		HearingID:    req.HearingID,
		ActingUserID: actingUser(c),
		Statements:   req.Statements,
		Evidence:     req.Evidence,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) Judge(c *gin.Context) {
	v, err := h.Verdicts.Judge(c.Request.Context(), c.Param("id"), actingUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (h *Handler) GetVerdict(c *gin.Context) {
	v, err := h.Verdicts.GetVerdict(c.Request.Context(), c.Param("id"), actingUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}
