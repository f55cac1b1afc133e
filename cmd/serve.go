package cmd

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vibast-solutions/ms-go-unlocks/app/controller"
	unlockgrpc "github.com/vibast-solutions/ms-go-unlocks/app/grpc"
	"github.com/vibast-solutions/ms-go-unlocks/app/types"
	"github.com/vibast-solutions/ms-go-unlocks/config"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

var corsAllowHeaders = []string{
	"authorization",
	"x-client-info",
	"apikey",
	"content-type",
	strings.ToLower(types.RazorpaySignatureHeader),
}

const webhookBodyLimit = "1M"

var corsAllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and gRPC servers",
	Long:  "Start the HTTP (Echo) API and the gRPC health server for the unlocks service.",
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) {
	cfg, unlockService, db, cleanup := mustCreateUnlockService()
	defer cleanup()

	if err := cfg.Razorpay.Validate(); err != nil {
		logrus.WithError(err).Fatal("Invalid payment provider configuration")
	}

	unlockController := controller.NewUnlockController(unlockService)
	healthReporter := unlockgrpc.NewHealthReporter(db, cfg.Unlocks.StoreTimeout)

	e := setupHTTPServer(unlockController, cfg.CORS)
	grpcSrv, lis := setupGRPCServer(cfg, healthReporter)

	healthCtx, stopHealth := context.WithCancel(context.Background())
	defer stopHealth()
	go healthReporter.Run(healthCtx, 15*time.Second)

	go func() {
		httpAddr := net.JoinHostPort(cfg.HTTP.Host, cfg.HTTP.Port)
		logrus.WithField("addr", httpAddr).Info("Starting HTTP server")
		if err := e.Start(httpAddr); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("HTTP server error")
		}
	}()

	go func() {
		logrus.WithField("addr", lis.Addr().String()).Info("Starting gRPC server")
		if err := grpcSrv.Serve(lis); err != nil {
			logrus.WithError(err).Fatal("gRPC server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down...")
	stopHealth()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("HTTP shutdown error")
	}
	grpcSrv.GracefulStop()

	logrus.Info("Server stopped")
}

func setupHTTPServer(unlockController *controller.UnlockController, corsCfg config.CORSConfig) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomiddleware.RequestIDWithConfig(echomiddleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"remote_ip":  v.RemoteIP,
				"host":       v.Host,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"latency_ns": v.Latency.Nanoseconds(),
				"user_agent": v.UserAgent,
				"request_id": v.RequestID,
			}
			entry := logrus.WithFields(fields)
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: corsCfg.AllowOrigins,
		AllowMethods: corsAllowMethods,
		AllowHeaders: corsAllowHeaders,
	}))
	e.Use(corsResponseHeaders())

	e.GET("/health", unlockController.Health)
	e.POST("/orders", unlockController.CreateOrder)
	e.GET("/entitlements/:user_id", unlockController.GetEntitlement)

	webhooks := e.Group("/webhooks", echomiddleware.BodyLimit(webhookBodyLimit))
	webhooks.POST("/:provider", unlockController.HandleWebhook)

	return e
}

// corsResponseHeaders repeats the preflight allow lists on actual responses
// so browser clients see identical CORS headers on OPTIONS and POST.
func corsResponseHeaders() echo.MiddlewareFunc {
	allowHeaders := strings.Join(corsAllowHeaders, ",")
	allowMethods := strings.Join(corsAllowMethods, ",")

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			header := ctx.Response().Header()
			if header.Get(echo.HeaderAccessControlAllowHeaders) == "" {
				header.Set(echo.HeaderAccessControlAllowHeaders, allowHeaders)
			}
			if header.Get(echo.HeaderAccessControlAllowMethods) == "" {
				header.Set(echo.HeaderAccessControlAllowMethods, allowMethods)
			}
			return next(ctx)
		}
	}
}

func setupGRPCServer(cfg *config.Config, healthReporter *unlockgrpc.HealthReporter) (*grpc.Server, net.Listener) {
	grpcAddr := net.JoinHostPort(cfg.GRPC.Host, cfg.GRPC.Port)
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to listen on gRPC port")
	}

	grpcSrv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			unlockgrpc.RecoveryInterceptor(),
			unlockgrpc.RequestIDInterceptor(),
			unlockgrpc.LoggingInterceptor(),
		),
	)
	healthpb.RegisterHealthServer(grpcSrv, healthReporter.Server())

	return grpcSrv, lis
}
