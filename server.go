package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/atlasgestion/gestion_backend/config"
	"github.com/atlasgestion/gestion_backend/middlewares"
	"github.com/atlasgestion/gestion_backend/models"
	"github.com/atlasgestion/gestion_backend/utils"
)

const defaultPort = "8080"

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Graceful drain on SIGTERM / interrupt.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start listening before the database is ready; app routes return
	// 503 until the readiness gate opens.
	r := gin.New()
	r.Use(requestIdMiddleware())
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if config.GetDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length")
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	api := r.Group("/", middlewares.AuthMiddleware())
	registerRoutes(api)
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open. Redis is optional;
	// its helpers degrade to no-ops when it is absent.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedis()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on http://localhost:", port, "/")
	log.Println("Server started successfully")

	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

func registerRoutes(api *gin.RouterGroup) {
	api.POST("/settlements", createSettlementHandler)
	api.GET("/settlements", getSettlementsHandler)
	api.GET("/settlements/:id", getSettlementHandler)

	api.POST("/invoices", createInvoiceHandler)
	api.PUT("/invoices/:id", updateInvoiceHandler)
	api.POST("/invoices/:id/cancel", cancelInvoiceHandler)
	api.GET("/invoices", getInvoicesHandler)
	api.GET("/invoices/:id", getInvoiceHandler)

	api.POST("/purchases", createPurchaseHandler)
	api.PUT("/purchases/:id", updatePurchaseHandler)
	api.POST("/purchases/:id/receive", receivePurchaseHandler)
	api.POST("/purchases/:id/cancel", cancelPurchaseHandler)
	api.GET("/purchases", getPurchasesHandler)
	api.GET("/purchases/:id", getPurchaseHandler)

	api.POST("/client-orders", createClientOrderHandler)
	api.POST("/client-orders/:id/convert", convertClientOrderHandler)
	api.POST("/client-orders/:id/cancel", cancelClientOrderHandler)
	api.GET("/client-orders", getClientOrdersHandler)
	api.GET("/client-orders/:id", getClientOrderHandler)

	api.POST("/quotes", createQuoteHandler)
	api.PUT("/quotes/:id", updateQuoteHandler)
	api.GET("/quotes", getQuotesHandler)
	api.GET("/quotes/:id", getQuoteHandler)

	api.POST("/clients", createClientHandler)
	api.PUT("/clients/:id", updateClientHandler)
	api.DELETE("/clients/:id", deleteClientHandler)
	api.GET("/clients", getClientsHandler)
	api.GET("/clients/:id", getClientHandler)

	api.POST("/suppliers", createSupplierHandler)
	api.PUT("/suppliers/:id", updateSupplierHandler)
	api.DELETE("/suppliers/:id", deleteSupplierHandler)
	api.GET("/suppliers", getSuppliersHandler)
	api.GET("/suppliers/:id", getSupplierHandler)

	api.POST("/products", createProductHandler)
	api.PUT("/products/:id", updateProductHandler)
	api.DELETE("/products/:id", deleteProductHandler)
	api.GET("/products", getProductsHandler)
	api.GET("/products/:id", getProductHandler)

	api.POST("/expenses", createExpenseHandler)
	api.PUT("/expenses/:id", updateExpenseHandler)
	api.GET("/expenses", getExpensesHandler)
	api.GET("/expenses/:id", getExpenseHandler)
}

// requestIdMiddleware attaches a correlation id to every request so log
// lines from one request can be tied together.
func requestIdMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	}
}

// customErrorLogger logs only requests that accumulated gin errors.
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
