package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/sergioaranda/forgeline-backend/api/responses"
	"github.com/sergioaranda/forgeline-backend/pkg/config"
	pkgerrors "github.com/sergioaranda/forgeline-backend/pkg/errors"
	"github.com/sergioaranda/forgeline-backend/pkg/logger"
)

const envHeader = "X-Forgeline-Env"

type pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady checks the dependencies the webhook path cannot run without.
// Optional dependencies (pubsub) report degraded rather than failing readiness.
func HealthReady(cfg *config.Config, logg *logger.Logger, db pinger, redis pinger, pubsub pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		checks := map[string]string{}

		if db != nil {
			if err := db.Ping(ctx); err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "database unavailable"))
				return
			}
			checks["database"] = "ok"
		}
		if redis != nil {
			if err := redis.Ping(ctx); err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "redis unavailable"))
				return
			}
			checks["redis"] = "ok"
		}
		if pubsub != nil {
			if err := pubsub.Ping(ctx); err != nil {
				checks["pubsub"] = "degraded"
				if logg != nil {
					logg.Warn(ctx, "pubsub ping failed during readiness check")
				}
			} else {
				checks["pubsub"] = "ok"
			}
		}

		checks["status"] = "ready"
		responses.WriteSuccess(w, checks)
	}
}
