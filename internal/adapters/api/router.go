package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/floroz/winbid/internal/ratelimit"
	"github.com/floroz/winbid/pkg/auth"
)

// Deps is everything the router wires into handlers
type Deps struct {
	Logger  *slog.Logger
	Metrics Metrics
	// MetricsHandler serves /metrics when set
	MetricsHandler http.Handler

	Signer       *auth.Signer
	SecureCookie bool

	// Limiter backs the per-route fixed-window policies. Nil disables them.
	Limiter ratelimit.Limiter
	// Throttle is the optional per-IP token bucket on /api
	Throttle *Throttle

	Bids         BidService
	Products     ProductService
	Winners      WinnerService
	Users        UserService
	Stats        StatsService
	Registration RegistrationService
	Contact      ContactService
}

// NewRouter builds the gin engine with every route registered
func NewRouter(d Deps) *gin.Engine {
	if d.Metrics == nil {
		d.Metrics = noopMetrics{}
	}
	r := responder{logger: d.Logger, metrics: d.Metrics, now: time.Now}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(d.Logger))
	router.Use(RequestMetrics(d.Metrics))

	router.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	if d.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(d.MetricsHandler))
	}

	requireAuth := auth.RequireAuth(d.Signer)
	optionalAuth := auth.OptionalAuth(d.Signer)
	limit := func(p ratelimit.Policy) gin.HandlerFunc {
		if d.Limiter == nil {
			return func(c *gin.Context) { c.Next() }
		}
		return RateLimit(d.Limiter, p, ClientIP, d.Metrics, d.Logger)
	}

	api := router.Group("/api")
	if d.Throttle != nil {
		api.Use(d.Throttle.Middleware(d.Metrics))
	}

	bidHandler := NewBidHandler(d.Bids, r)
	bidRoutes := api.Group("/bids")
	{
		bidRoutes.POST("", requireAuth, bidHandler.PlaceBid)
		bidRoutes.GET("/product/:productId", bidHandler.GetBidsForProduct)
		bidRoutes.GET("/product/:productId/highest", bidHandler.GetHighestBid)
		bidRoutes.GET("/user/:userId", bidHandler.GetBidsByUser)
		bidRoutes.GET("/:id", bidHandler.GetBid)
		bidRoutes.DELETE("/:id", requireAuth, bidHandler.DeleteBid)
	}

	authHandler := NewAuthHandler(d.Registration, d.Users, d.SecureCookie, r)
	authRoutes := api.Group("/auth")
	{
		authRoutes.POST("/register/initiate", limit(ratelimit.RegistrationPolicy), authHandler.Initiate)
		authRoutes.POST("/register/verify-otp", authHandler.Verify)
		authRoutes.POST("/register/resend-otp", authHandler.Resend)
		authRoutes.POST("/login", authHandler.Login)
		authRoutes.GET("/logout", authHandler.Logout)
		authRoutes.GET("/me", requireAuth, authHandler.Me)
	}

	productHandler := NewProductHandler(d.Products, r)
	productRoutes := api.Group("/products")
	{
		productRoutes.GET("", productHandler.ListProducts)
		productRoutes.GET("/:id", productHandler.GetProduct)
		productRoutes.POST("", requireAuth, productHandler.CreateProduct)
		productRoutes.PUT("/:id", requireAuth, productHandler.UpdateProduct)
		productRoutes.DELETE("/:id", requireAuth, productHandler.DeleteProduct)
	}

	winnerHandler := NewWinnerHandler(d.Winners, r)
	winnerRoutes := api.Group("/winners")
	{
		winnerRoutes.GET("", winnerHandler.ListWinners)
		winnerRoutes.GET("/user/:userId", winnerHandler.GetWinnersByUser)
		winnerRoutes.GET("/product/:productId", winnerHandler.GetWinnerByProduct)
		winnerRoutes.GET("/:id", winnerHandler.GetWinner)
	}

	userHandler := NewUserHandler(d.Users, d.Stats, d.Bids, r)
	userRoutes := api.Group("/users")
	{
		userRoutes.GET("", requireAuth, auth.RequireRole(auth.RoleAdmin), userHandler.ListUsers)
		userRoutes.GET("/profile", requireAuth, userHandler.Profile)
		userRoutes.GET("/:id", requireAuth, userHandler.GetUser)
		userRoutes.PUT("/:id", requireAuth, userHandler.UpdateUser)
		userRoutes.DELETE("/:id", requireAuth, auth.RequireRole(auth.RoleAdmin), userHandler.DeleteUser)
		userRoutes.GET("/:id/stats", userHandler.GetUserStats)
	}

	contactHandler := NewContactHandler(d.Contact, r)
	api.POST("/contact", optionalAuth, contactHandler.Submit)

	return router
}
