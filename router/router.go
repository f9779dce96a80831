package router

import (
	"cardpay/handler"
	"cardpay/middleware"
	"cardpay/views"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.elastic.co/apm/module/apmfiber"
)

type Handlers struct {
	Checkout       *handler.CheckoutHandler
	Status         *handler.StatusHandler
	AdminJWTSecret string
}

// NewApp returns the fiber app with the embedded page templates.
func NewApp() *fiber.App {
	return fiber.New(fiber.Config{
		AppName:      "Cardpay",
		ServerHeader: "Fiber",
		Views:        views.Engine(),
	})
}

// SetupRoutes setup router api
func SetupRoutes(app *fiber.App, h Handlers) {
	app.Use(recover.New())
	app.Use(apmfiber.Middleware())
	app.Use(middleware.TrackMetrics())
	app.Use(logger.New())

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	app.Get("/", h.Checkout.PaymentForm)
	app.Post("/", h.Checkout.SubmitPayment)
	app.Get("/ddc", h.Checkout.DeviceDataCollection)
	app.Get("/post-form", h.Checkout.PostForm)
	app.Post("/auth", h.Checkout.Authenticate)
	app.Get("/auth-complete", h.Checkout.AuthComplete)
	app.Post("/auth-callback", h.Checkout.AuthCallback)

	api := app.Group("/api")
	api.Get("/", handler.Hello)
	api.Get("/transaction/:reference",
		middleware.Protected(h.AdminJWTSecret),
		middleware.AdminOnly(),
		h.Status.CheckTransactionStatus)
	api.Get("/scheduler",
		middleware.Protected(h.AdminJWTSecret),
		middleware.AdminOnly(),
		h.Status.SchedulerStatus)
}
