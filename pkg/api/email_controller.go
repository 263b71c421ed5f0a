package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mailfleet/mailfleet/pkg/email"
)

// EmailController exposes the dispatch pipeline over HTTP.
type EmailController struct {
	svc  *email.Service
	repo email.Repository
	log  *zap.SugaredLogger
}

func NewEmailController(svc *email.Service, repo email.Repository, log *zap.SugaredLogger) *EmailController {
	return &EmailController{svc: svc, repo: repo, log: log.Named("email-api")}
}

func (ec *EmailController) BasePath() string { return "email" }

func (ec *EmailController) Register(rg *gin.RouterGroup) error {
	rg.POST("/send", ec.send)
	rg.POST("/send-templated", ec.sendTemplated)
	rg.GET("/:id", ec.get)
	return nil
}

func (ec *EmailController) send(c *gin.Context) {
	var payload email.SendPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	msg, err := ec.svc.SendDirect(c.Request.Context(), payload.Email, payload.Attachments)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (ec *EmailController) sendTemplated(c *gin.Context) {
	var payload email.SendTemplatedPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	msg, err := ec.svc.SendTemplated(c.Request.Context(), payload.Email, payload.Attachments)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (ec *EmailController) get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid message id"})
		return
	}

	msg, err := ec.repo.GetMessage(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if msg == nil {
		c.JSON(http.StatusNotFound, errorResponse{Error: "message not found"})
		return
	}
	c.JSON(http.StatusOK, msg)
}
