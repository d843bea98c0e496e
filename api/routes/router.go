package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sokohub/sokohub-backend/api/controllers"
	webhookcontrollers "github.com/sokohub/sokohub-backend/api/controllers/webhooks"
	"github.com/sokohub/sokohub-backend/api/middleware"
	checkoutsvc "github.com/sokohub/sokohub-backend/internal/checkout"
	"github.com/sokohub/sokohub-backend/internal/cron"
	ledgersvc "github.com/sokohub/sokohub-backend/internal/ledger"
	ordersvc "github.com/sokohub/sokohub-backend/internal/orders"
	paymentsvc "github.com/sokohub/sokohub-backend/internal/payments"
	"github.com/sokohub/sokohub-backend/pkg/config"
	"github.com/sokohub/sokohub-backend/pkg/db"
	"github.com/sokohub/sokohub-backend/pkg/logger"
	"github.com/sokohub/sokohub-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	checkoutService checkoutsvc.Service,
	ordersService ordersvc.Service,
	ledgerService ledgersvc.Service,
	paymentsService paymentsvc.Service,
	reservationSweep cron.Job,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	// Webhooks authenticate with payload shape, not bearer tokens; the
	// gateway cannot carry our credentials.
	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/mpesa", webhookcontrollers.MpesaWebhook(paymentsService, logg))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Get("/ping", controllers.PrivatePing())

		r.Route("/v1/checkout", func(r chi.Router) {
			r.Post("/", controllers.Checkout(checkoutService, logg))
			r.Get("/sessions/{sessionID}", controllers.CheckoutSession(checkoutService, logg))
		})

		r.Route("/v1/orders", func(r chi.Router) {
			r.Get("/", controllers.ListOrders(ordersService, logg))
			r.Get("/{orderID}", controllers.GetOrder(ordersService, logg))
			r.Patch("/{orderID}/status", controllers.UpdateOrderStatus(ordersService, logg))
		})

		r.Get("/v1/balance", controllers.GetBalance(ledgerService, logg))

		r.Route("/v1/payouts", func(r chi.Router) {
			r.Use(middleware.RequireRole("admin", logg))
			r.Post("/entries/{entryID}", controllers.PayoutEntry(ledgerService, logg))
			r.Post("/sellers/{sellerID}", controllers.PayoutSeller(ledgerService, logg))
			r.Post("/sellers/{sellerID}/backlog", controllers.CreditSellerBacklog(ledgerService, logg))
		})

		r.Route("/v1/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole("admin", logg))
			r.Post("/jobs/reservation-sweep", controllers.RunJob(reservationSweep, logg))
		})
	})

	return r
}
