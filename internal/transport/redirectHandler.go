package transport

import (
	"net/http"
	"net/netip"

	"github.com/ds124wfegd/shortlink/internal/entity"
	"github.com/ds124wfegd/shortlink/internal/service"
	"github.com/gin-gonic/gin"
)

type RedirectHandler struct {
	redirectService service.RedirectService
}

func NewRedirectHandler(redirectService service.RedirectService) *RedirectHandler {
	return &RedirectHandler{redirectService: redirectService}
}

// Redirect resolves a short code for an anonymous visitor. The client
// address comes from gin, which honours the configured trusted proxies.
func (h *RedirectHandler) Redirect(c *gin.Context) {
	clientIP := c.ClientIP()
	if clientIP == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: "missing client ip"})
		return
	}
	ip, err := netip.ParseAddr(clientIP)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: "invalid ip address"})
		return
	}

	target, err := h.redirectService.Resolve(c.Request.Context(), entity.ResolveRequest{
		ShortCode: c.Param("code"),
		Password:  c.Query("password"),
		IP:        ip,
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.Redirect(http.StatusFound, target)
}
