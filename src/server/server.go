package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	logger "github.com/sirupsen/logrus"

	"fibexecutor/src/handler"
)

// Routes are the optional handlers of the status server. Nil handlers are
// not mounted.
type Routes struct {
	Status    http.HandlerFunc
	Positions http.HandlerFunc
	Events    http.HandlerFunc
}

func NewRouter(routes Routes) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	// Public routes
	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error(" \"/health error")
		}
	})
	r.Handle("/metrics", promhttp.Handler())

	if routes.Status != nil {
		r.Get("/status", routes.Status)
	}
	if routes.Positions != nil {
		r.Get("/positions", routes.Positions)
	}
	if routes.Events != nil {
		r.Get("/ws/events", routes.Events)
	}
	return r
}

// BotRoutes mounts the bot endpoints and the event hub.
func BotRoutes(bot botView, store positionLister, hub *handler.EventHub) Routes {
	routes := Routes{
		Status:    handler.StatusHandler(bot),
		Positions: handler.PositionsHandler(bot, store),
	}
	if hub != nil {
		routes.Events = hub.ServeWS
	}
	return routes
}

// Run serves h on port until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, port string, h http.Handler) error {
	addr := ":" + port
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Shutdown error")
		return err
	}
	return nil
}
