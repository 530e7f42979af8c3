package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/novavida/novavida-backend/api/controllers"
	"github.com/novavida/novavida-backend/api/middleware"
	internalaccounts "github.com/novavida/novavida-backend/internal/accounts"
	"github.com/novavida/novavida-backend/internal/activation"
	"github.com/novavida/novavida-backend/internal/coins"
	"github.com/novavida/novavida-backend/internal/commission"
	"github.com/novavida/novavida-backend/internal/ledger"
	"github.com/novavida/novavida-backend/internal/purge"
	"github.com/novavida/novavida-backend/pkg/auth/session"
	"github.com/novavida/novavida-backend/pkg/config"
	"github.com/novavida/novavida-backend/pkg/db"
	"github.com/novavida/novavida-backend/pkg/enums"
	"github.com/novavida/novavida-backend/pkg/logger"
	"github.com/novavida/novavida-backend/pkg/redis"
)

// Deps carries everything the HTTP surface needs. Optional members
// (redis, sessions) may be nil and the affected routes degrade gracefully.
type Deps struct {
	DB       db.Pinger
	Redis    *redis.Client
	Sessions session.AccessSessionChecker

	Accounts   internalaccounts.Service
	Ledger     ledger.Service
	Activation activation.Service
	Engine     *commission.Engine
	Purge      purge.Service
	Coins      coins.Service
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		if deps.Redis != nil {
			r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, deps.Redis))
		} else {
			r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB))
		}
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, deps.Sessions, logg))

		coinsCheck := controllers.CoinsCheck(deps.Coins, logg)
		if deps.Redis != nil {
			limited := middleware.RateLimit(deps.Redis, "coins", cfg.RateLimit.CoinsPerMinute, time.Minute, logg)
			r.With(limited).Post("/coins/check", coinsCheck)
		} else {
			r.Post("/coins/check", coinsCheck)
		}

		r.Route("/accounts/{username}", func(r chi.Router) {
			r.Get("/", controllers.AccountSnapshot(deps.Accounts, logg))
			r.Get("/history", controllers.AccountHistory(deps.Accounts, deps.Ledger, logg))
			r.Get("/activation", controllers.AccountActivation(deps.Activation, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, deps.Sessions, logg))
		r.Use(middleware.RequireRole(string(enums.ActorRoleAdmin), logg))

		r.Route("/orders", func(r chi.Router) {
			r.Post("/bulk-confirm", controllers.BulkConfirmOrders(deps.Engine, logg))
			r.Post("/{orderId}/decision", controllers.OrderDecision(deps.Engine, logg))
			r.Post("/{orderId}/redistribute", controllers.RedistributeOrder(deps.Engine, logg))
			r.Get("/{orderId}/payouts", controllers.OrderPayouts(deps.Engine, logg))
		})

		r.Route("/purge", func(r chi.Router) {
			r.Post("/", controllers.RunPurge(deps.Purge, logg))
			r.Get("/runs", controllers.ListPurgeRuns(deps.Purge, logg))
			r.Get("/runs/{runId}", controllers.GetPurgeRun(deps.Purge, logg))
		})

		r.Post("/accounts/{accountId}/recalculate", controllers.RecalculateAccount(deps.Accounts, logg))
	})

	return r
}
