package router

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/uniportal-api/internal/handler"
	"github.com/noah-isme/uniportal-api/internal/middleware"
	"github.com/noah-isme/uniportal-api/internal/models"
	"github.com/noah-isme/uniportal-api/internal/service"
	"github.com/noah-isme/uniportal-api/pkg/config"
	"github.com/noah-isme/uniportal-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/uniportal-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/uniportal-api/pkg/middleware/requestid"
)

// Dependencies carries everything the HTTP layer needs.
type Dependencies struct {
	Config        *config.Config
	Logger        *zap.Logger
	Tokens        middleware.TokenValidator
	Audit         middleware.AuditWriter
	Metrics       *service.MetricsService
	Auth          *handler.AuthHandler
	Registrations *handler.RegistrationHandler
	Health        *handler.MetricsHandler
}

// New builds the gin engine with every route mounted.
func New(deps Dependencies) *gin.Engine {
	cfg := deps.Config
	logr := deps.Logger
	if logr == nil {
		logr = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.Metrics))

	r.GET("/health", deps.Health.Health)
	r.GET("/ready", deps.Health.Ready)
	r.GET("/metrics", deps.Health.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", deps.Auth.Login)
	api.GET("/cards/:token", deps.Registrations.PublicCard)

	authed := api.Group("")
	authed.Use(middleware.JWT(deps.Tokens))
	authed.GET("/auth/me", deps.Auth.Me)

	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleRegistrar)
	readers := middleware.RequireRoles(models.RoleAdmin, models.RoleRegistrar, models.RoleFaculty)
	audit := func(action string) gin.HandlerFunc {
		return middleware.Audit(deps.Audit, logr, action, models.AuditResourceRegistration, "id")
	}

	h := deps.Registrations
	regs := authed.Group("/registrations")
	regs.POST("", h.Register)
	regs.GET("", readers, h.List)
	regs.GET("/pending", staff, h.Pending)
	regs.GET("/stats", readers, h.Stats)
	regs.GET("/export", staff, h.Export)
	regs.GET("/me", h.Mine)
	regs.GET("/card", h.Card)
	regs.GET("/card/pdf", h.CardPDF)
	regs.POST("/card/link", h.CardLink)
	regs.DELETE("/courses/:uploadId", h.RemoveCourse)
	regs.GET("/:id", h.Detail)
	regs.POST("/:id/courses", h.AddCourse)
	regs.POST("/:id/submit", h.Submit)
	regs.POST("/:id/approve", staff, audit(models.AuditActionRegistrationApprove), h.Approve)
	regs.POST("/:id/reject", staff, audit(models.AuditActionRegistrationReject), h.Reject)
	regs.POST("/:id/cancel", audit(models.AuditActionRegistrationCancel), h.Cancel)

	return r
}
