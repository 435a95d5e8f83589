package transport

import (
	"net/http"

	"github.com/ds124wfegd/shortlink/internal/entity"
	"github.com/ds124wfegd/shortlink/internal/service"
	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	userService   service.UserService
	apiKeyService service.APIKeyService
}

func NewAuthHandler(userService service.UserService, apiKeyService service.APIKeyService) *AuthHandler {
	return &AuthHandler{
		userService:   userService,
		apiKeyService: apiKeyService,
	}
}

func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/register", h.Register)
	r.POST("/login", h.Login)
	r.POST("/akey-generate", h.GenerateAPIKey)
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req entity.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	id, err := h.userService.Register(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "user registered successfully",
		"user_id": id,
	})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req entity.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if _, err := h.userService.Login(c.Request.Context(), req.Email, req.Password); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "user logged in successfully"})
}

// GenerateAPIKey issues a fresh key; the previous one stops working.
func (h *AuthHandler) GenerateAPIKey(c *gin.Context) {
	var req entity.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	key, err := h.apiKeyService.Generate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, key)
}
