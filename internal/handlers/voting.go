package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/14kear/live-voting/internal/middleware"
	"github.com/14kear/live-voting/internal/services"
	"github.com/gin-gonic/gin"
)

type VotingHandler struct {
	votingService *services.OnlineVoting
}

type CreatePollRequest struct {
	Question string   `json:"question" form:"question" binding:"required"`
	Options  []string `json:"options" form:"options"`
}

type VoteRequest struct {
	SelectedOption string `json:"selected_option" form:"selected_option" binding:"required"`
	UserID         string `json:"user_id" form:"user_id"`
}

func NewVotingHandler(votingService *services.OnlineVoting) *VotingHandler {
	return &VotingHandler{votingService: votingService}
}

func (v *VotingHandler) CreatePoll(c *gin.Context) {
	var req CreatePollRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input"})
		return
	}

	poll, err := v.votingService.CreatePoll(c.Request.Context(), req.Question, req.Options, middleware.UserID(c))
	if err != nil {
		writeError(c, err)
		return
	}

	if isForm(c) {
		c.Redirect(http.StatusSeeOther, "/")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"poll": poll})
}

func (v *VotingHandler) Vote(c *gin.Context) {
	var req VoteRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input"})
		return
	}

	options, err := v.votingService.CastVote(c.Request.Context(), c.Param("id"), req.SelectedOption, middleware.UserID(c), req.UserID)
	if err != nil {
		writeError(c, err)
		return
	}

	if isForm(c) {
		c.Redirect(http.StatusSeeOther, "/")
		return
	}

	c.JSON(http.StatusOK, gin.H{"options": options})
}

func (v *VotingHandler) GetPollByID(c *gin.Context) {
	poll, err := v.votingService.GetPoll(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"poll": poll})
}

func (v *VotingHandler) GetPolls(c *gin.Context) {
	polls, err := v.votingService.ListPolls(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"polls": polls})
}

func (v *VotingHandler) GetLogs(c *gin.Context) {
	logs, err := v.votingService.GetLogs(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

func isForm(c *gin.Context) bool {
	switch c.ContentType() {
	case gin.MIMEPOSTForm, gin.MIMEMultipartPOSTForm:
		return true
	default:
		return false
	}
}

// writeError maps service errors to statuses. Only the named errors carry
// their message to the client.
func writeError(c *gin.Context, err error) {
	_ = c.Error(err)

	switch {
	case errors.Is(err, services.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationMessage(err)})
	case errors.Is(err, services.ErrPollNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": services.ErrPollNotFound.Error()})
	case errors.Is(err, services.ErrOptionNotFound):
		c.JSON(http.StatusBadRequest, gin.H{"error": services.ErrOptionNotFound.Error()})
	case errors.Is(err, services.ErrAlreadyVoted):
		c.JSON(http.StatusConflict, gin.H{"error": services.ErrAlreadyVoted.Error()})
	case errors.Is(err, services.ErrIdentityMismatch):
		c.JSON(http.StatusForbidden, gin.H{"error": services.ErrIdentityMismatch.Error()})
	case errors.Is(err, services.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// validationMessage strips the op prefixes and returns the human part that
// follows the sentinel.
func validationMessage(err error) string {
	msg := err.Error()
	marker := services.ErrValidation.Error() + ": "
	if i := strings.Index(msg, marker); i >= 0 {
		return msg[i+len(marker):]
	}
	return services.ErrValidation.Error()
}
