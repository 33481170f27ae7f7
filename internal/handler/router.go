package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RouterOptions configure NewRouter.
type RouterOptions struct {
	// Middleware runs before every route, in order.
	Middleware []gin.HandlerFunc
	// Operator authenticates door operators on /checkin.
	Operator gin.HandlerFunc
	// SupportsStaff mounts POST /staff/register.
	SupportsStaff bool
}

// NewRouter mounts the workflow routes. Workflow endpoints accept POST only;
// any other verb gets 405 method_not_allowed.
func NewRouter(h *Handler, opts RouterOptions) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(opts.Middleware...)

	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{
			"error":   TagMethodNotAllowed,
			"details": c.Request.Method + " is not allowed on " + c.Request.URL.Path,
		})
	})
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": TagNotFound, "details": "no route for " + c.Request.URL.Path})
	})

	r.GET("/healthz", h.Healthz)
	r.GET("/stats", h.Stats)

	r.POST("/register", h.Register)
	if opts.SupportsStaff {
		r.POST("/staff/register", h.RegisterStaff)
	}
	r.POST("/console-delete", h.ConsoleDelete)
	r.POST("/operators/register", h.RegisterOperator)

	if opts.Operator != nil {
		r.POST("/checkin", opts.Operator, h.CheckIn)
	} else {
		r.POST("/checkin", h.CheckIn)
	}
	return r
}
