package routes

import (
	"time"

	"nudfans-backend/handlers/admin"
	"nudfans-backend/handlers/auth"
	"nudfans-backend/handlers/billing"
	"nudfans-backend/handlers/creators"
	"nudfans-backend/handlers/messages"
	"nudfans-backend/handlers/notifications"
	"nudfans-backend/handlers/ping"
	"nudfans-backend/handlers/posts"
	"nudfans-backend/middleware"
	"nudfans-backend/services/entitlements"
	"nudfans-backend/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Handlers holds one handler per feature.
type Handlers struct {
	Ping          *ping.Handler
	Auth          *auth.Handler
	Creators      *creators.Handler
	Posts         *posts.Handler
	Billing       *billing.Handler
	Messages      *messages.Handler
	Notifications *notifications.Handler
	Admin         *admin.Handler
}

type Deps struct {
	Handlers    Handlers
	Store       *entitlements.Store
	JWTSecret   string
	CORSOrigins []string
}

// groups carries the middleware stacks shared by the feature route files.
type groups struct {
	// public serves anonymous and authenticated callers alike.
	public  *gin.RouterGroup
	private *gin.RouterGroup
	admin   *gin.RouterGroup
}

func SetupRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.LoggerWithWriter(utils.LogWriter()), gin.Recovery())
	r.Use(cors.New(corsConfig(d.CORSOrigins)))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	g := groups{
		public:  r.Group("", middleware.OptionalAuth(d.JWTSecret), middleware.LoadViewer(d.Store)),
		private: r.Group("", middleware.JWTAuth(d.JWTSecret), middleware.LoadViewer(d.Store)),
		admin:   r.Group("/admin", middleware.AdminAuth(d.JWTSecret), middleware.LoadViewer(d.Store)),
	}

	h := d.Handlers
	r.GET("/ping", h.Ping.HandlePing)
	r.GET("/health", h.Ping.HandleHealth)

	AuthRoutes(r, g, h.Auth)
	CreatorsRoutes(g, h.Creators, h.Posts)
	PostsRoutes(g, h.Posts)
	BillingRoutes(r, g, h.Billing)
	MessagesRoutes(g, h.Messages)
	NotificationsRoutes(g, h.Notifications)
	AdminRoutes(g, h.Admin)

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			// credentials cannot be combined with a wildcard origin
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}
