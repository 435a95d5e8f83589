package transport

import (
	"net/http"

	"github.com/ds124wfegd/shortlink/internal/entity"
	"github.com/ds124wfegd/shortlink/internal/service"
	"github.com/gin-gonic/gin"
)

// statRoutes maps the public path segment onto a grouping dimension.
var statRoutes = map[string]entity.StatDimension{
	"browsers":  entity.DimensionBrowser,
	"os":        entity.DimensionOS,
	"devices":   entity.DimensionDevice,
	"countries": entity.DimensionCountry,
}

type StatsHandler struct {
	statisticService service.StatisticService
}

func NewStatsHandler(statisticService service.StatisticService) *StatsHandler {
	return &StatsHandler{statisticService: statisticService}
}

func (h *StatsHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/guests", h.Guests)
	r.GET("/:dimension", h.Breakdown)
}

func (h *StatsHandler) Breakdown(c *gin.Context) {
	dimension, ok := statRoutes[c.Param("dimension")]
	if !ok {
		writeError(c, entity.NewNotFound("unknown statistics"))
		return
	}
	shortCode, ok := requireShortCode(c)
	if !ok {
		return
	}

	rows, err := h.statisticService.Breakdown(c.Request.Context(), currentUser(c), shortCode, dimension, c.Query("period"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, rows)
}

func (h *StatsHandler) Guests(c *gin.Context) {
	shortCode, ok := requireShortCode(c)
	if !ok {
		return
	}

	stats, err := h.statisticService.Guests(c.Request.Context(), currentUser(c), shortCode, c.Query("period"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

func requireShortCode(c *gin.Context) (string, bool) {
	shortCode := c.Query("short_code")
	if shortCode == "" {
		writeError(c, entity.NewValidation("short_code is required"))
		return "", false
	}
	return shortCode, true
}
