package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/geokey/geokey-api/internal/middleware"
	"github.com/geokey/geokey-api/internal/service"
)

// Handlers bundles every HTTP handler for route registration.
type Handlers struct {
	Auth         *AuthHandler
	Projects     *ProjectHandler
	Categories   *CategoryHandler
	Observations *ObservationHandler
	Groups       *UserGroupHandler
	Subsets      *SubsetHandler
	Comments     *CommentHandler
	Media        *MediaHandler
	Reports      *ReportHandler
}

// RegisterRoutes mounts the API under the prefix. Read endpoints sit behind
// OptionalJWT so anonymous users can browse public projects; everything that
// writes requires a session.
func RegisterRoutes(r *gin.Engine, prefix string, h Handlers, auth *service.AuthService, metrics *service.MetricsService) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group(prefix)
	api.Use(middleware.Metrics(metrics))

	authRoutes := api.Group("/auth")
	{
		authRoutes.POST("/register", h.Auth.Register)
		authRoutes.POST("/login", h.Auth.Login)
		authRoutes.POST("/refresh", h.Auth.Refresh)
		authRoutes.POST("/logout", middleware.JWT(auth), h.Auth.Logout)
		authRoutes.GET("/me", middleware.JWT(auth), h.Auth.Me)
	}

	// Signed token downloads carry their own authorization.
	api.GET("/reports/download/:token", h.Reports.Download)

	public := api.Group("/projects")
	public.Use(middleware.OptionalJWT(auth))
	{
		public.GET("", h.Projects.List)
		public.GET("/:id", h.Projects.Get)

		public.GET("/:id/categories", h.Categories.List)
		public.GET("/:id/categories/:categoryId", h.Categories.Get)

		public.GET("/:id/observations", h.Observations.Search)
		public.GET("/:id/observations/:observationId", h.Observations.Get)
		public.GET("/:id/observations/:observationId/versions", h.Observations.Versions)
		public.GET("/:id/observations/:observationId/comments", h.Comments.List)
		public.GET("/:id/observations/:observationId/media", h.Media.List)

		public.GET("/:id/subsets", h.Subsets.List)
		public.GET("/:id/subsets/:subsetId", h.Subsets.Get)
	}

	secured := api.Group("/projects")
	secured.Use(middleware.JWT(auth))
	{
		secured.POST("", h.Projects.Create)
		secured.PUT("/:id", h.Projects.Update)
		secured.DELETE("/:id", h.Projects.Delete)
		secured.GET("/:id/admins", h.Projects.ListAdmins)
		secured.POST("/:id/admins", h.Projects.AddAdmin)
		secured.DELETE("/:id/admins/:userId", h.Projects.RemoveAdmin)
		secured.POST("/:id/reindex", h.Projects.Reindex)

		secured.POST("/:id/categories", h.Categories.Create)
		secured.PUT("/:id/categories/:categoryId", h.Categories.Update)
		secured.DELETE("/:id/categories/:categoryId", h.Categories.Delete)
		secured.POST("/:id/categories/:categoryId/fields", h.Categories.AddField)
		secured.PUT("/:id/categories/:categoryId/fields/order", h.Categories.ReorderFields)
		secured.PUT("/:id/categories/:categoryId/fields/:fieldId", h.Categories.UpdateField)
		secured.DELETE("/:id/categories/:categoryId/fields/:fieldId", h.Categories.DeleteField)
		secured.POST("/:id/categories/:categoryId/fields/:fieldId/values", h.Categories.AddLookupValue)
		secured.PUT("/:id/categories/:categoryId/fields/:fieldId/values/:valueId", h.Categories.RenameLookupValue)
		secured.DELETE("/:id/categories/:categoryId/fields/:fieldId/values/:valueId", h.Categories.RemoveLookupValue)

		secured.POST("/:id/observations", h.Observations.Create)
		secured.PATCH("/:id/observations/:observationId", h.Observations.Update)
		secured.DELETE("/:id/observations/:observationId", h.Observations.Delete)
		secured.POST("/:id/observations/:observationId/submit", h.Observations.Submit)
		secured.PUT("/:id/observations/:observationId/status", h.Observations.Moderate)

		secured.POST("/:id/observations/:observationId/comments", h.Comments.Create)
		secured.DELETE("/:id/observations/:observationId/comments/:commentId", h.Comments.Delete)
		secured.POST("/:id/observations/:observationId/comments/:commentId/resolve", h.Comments.Resolve)

		secured.POST("/:id/observations/:observationId/media", h.Media.Attach)
		secured.DELETE("/:id/observations/:observationId/media/:mediaId", h.Media.Detach)

		secured.GET("/:id/groups", h.Groups.List)
		secured.GET("/:id/groups/:groupId", h.Groups.Get)
		secured.POST("/:id/groups", h.Groups.Create)
		secured.PUT("/:id/groups/:groupId", h.Groups.Update)
		secured.DELETE("/:id/groups/:groupId", h.Groups.Delete)
		secured.POST("/:id/groups/:groupId/members", h.Groups.AddMember)
		secured.DELETE("/:id/groups/:groupId/members/:userId", h.Groups.RemoveMember)

		secured.POST("/:id/subsets", h.Subsets.Create)
		secured.PUT("/:id/subsets/:subsetId", h.Subsets.Update)
		secured.DELETE("/:id/subsets/:subsetId", h.Subsets.Delete)

		secured.GET("/:id/reports", h.Reports.List)
		secured.GET("/:id/reports/:reportId", h.Reports.Get)
		secured.POST("/:id/reports", h.Reports.Request)
	}
}
