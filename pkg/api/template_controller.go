package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mailfleet/mailfleet/pkg/template"
)

// TemplateController exposes template CRUD over HTTP. Templates are
// uploaded as multipart form files under the "file" field with a "name"
// form value.
type TemplateController struct {
	svc *template.Service
	log *zap.SugaredLogger
}

func NewTemplateController(svc *template.Service, log *zap.SugaredLogger) *TemplateController {
	return &TemplateController{svc: svc, log: log.Named("template-api")}
}

func (tc *TemplateController) BasePath() string { return "templates" }

func (tc *TemplateController) Register(rg *gin.RouterGroup) error {
	rg.GET("", tc.list)
	rg.POST("", tc.create)
	rg.DELETE("/:id", tc.remove)
	return nil
}

func (tc *TemplateController) list(c *gin.Context) {
	templates, err := tc.svc.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, templates)
}

func (tc *TemplateController) create(c *gin.Context) {
	name := c.PostForm("name")

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "template file is required"})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "reading template file: " + err.Error()})
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "reading template file: " + err.Error()})
		return
	}

	row, err := tc.svc.Create(c.Request.Context(), name, fileHeader.Filename, content)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, row)
}

func (tc *TemplateController) remove(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid template id"})
		return
	}

	if err := tc.svc.Delete(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
