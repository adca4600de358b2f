package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ClaimsKey is the gin context key holding the caller's *Claims.
const ClaimsKey = "auth_claims"

// Gin authenticates every request with a Bearer token or Basic credentials.
// Viewers may only issue GET and HEAD requests.
func (s *Service) Gin() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := s.authenticate(c.Request)
		if err != nil {
			c.Header("WWW-Authenticate", `Bearer realm="procwatch"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		if !Allowed(claims.Role, c.Request.Method) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "permission denied"})
			return
		}
		c.Set(ClaimsKey, claims)
		c.Next()
	}
}

// LoginHandler serves POST {base}/auth/login.
func (s *Service) LoginHandler(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	tok, err := s.Login(req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, tok)
}

// Allowed reports whether role may perform an HTTP method.
func Allowed(role Role, method string) bool {
	if role == RoleAdmin {
		return true
	}
	return method == http.MethodGet || method == http.MethodHead
}

func (s *Service) authenticate(r *http.Request) (*Claims, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, tok, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "bearer") {
			return s.Verify(strings.TrimSpace(tok))
		}
	}
	if user, pass, ok := r.BasicAuth(); ok {
		return s.CheckPassword(user, pass)
	}
	return nil, ErrInvalidCredentials
}
