package transport

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/ds124wfegd/shortlink/internal/entity"
	"github.com/ds124wfegd/shortlink/internal/service"
	"github.com/gin-gonic/gin"
)

type URLHandler struct {
	linkService service.LinkService
}

func NewURLHandler(linkService service.LinkService) *URLHandler {
	return &URLHandler{linkService: linkService}
}

func (h *URLHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("", h.Create)
	r.GET("", h.List)
	r.DELETE("", h.DeleteAll)
	r.GET("/:code", h.Get)
	r.PATCH("/:code", h.Update)
	r.DELETE("/:code", h.Delete)
	r.GET("/:code/qr", h.QRCode)
}

func (h *URLHandler) Create(c *gin.Context) {
	var req entity.CreateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	link, err := h.linkService.Create(c.Request.Context(), currentUser(c), req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, link)
}

func (h *URLHandler) List(c *gin.Context) {
	links, err := h.linkService.List(c.Request.Context(), currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, links)
}

func (h *URLHandler) Get(c *gin.Context) {
	link, err := h.linkService.Get(c.Request.Context(), currentUser(c), c.Param("code"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, link)
}

func (h *URLHandler) Update(c *gin.Context) {
	var req entity.UpdateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	link, err := h.linkService.Update(c.Request.Context(), currentUser(c), c.Param("code"), req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, link)
}

func (h *URLHandler) Delete(c *gin.Context) {
	if err := h.linkService.Delete(c.Request.Context(), currentUser(c), c.Param("code")); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "short url deleted successfully"})
}

func (h *URLHandler) DeleteAll(c *gin.Context) {
	deleted, err := h.linkService.DeleteAll(c.Request.Context(), currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("deleted %d shortened urls", deleted),
		"deleted": deleted,
	})
}

func (h *URLHandler) QRCode(c *gin.Context) {
	size := 0
	if raw := c.Query("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: "invalid qr size"})
			return
		}
		size = n
	}

	png, err := h.linkService.QRCode(c.Request.Context(), currentUser(c), c.Param("code"), size)
	if err != nil {
		writeError(c, err)
		return
	}

	c.Data(http.StatusOK, "image/png", png)
}
