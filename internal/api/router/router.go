package router

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"gpsgateway/internal/api/handler"
	"gpsgateway/internal/api/middleware"
	"gpsgateway/internal/api/util"
	"gpsgateway/internal/command"
	"gpsgateway/internal/core/service"
	"gpsgateway/internal/session"
)

type Deps struct {
	Sink     *service.Sink
	Queue    *command.Queue
	Registry *session.Registry
	Signer   *util.Signer
	Metrics  http.Handler
	Log      zerolog.Logger
}

func NewRouter(d Deps) http.Handler {
	commandHandler := handler.NewCommandHandler(d.Queue)
	deviceHandler := handler.NewDeviceHandler(d.Sink, d.Registry)
	reportHandler := handler.NewReportHandler(d.Sink)
	authMiddleware := middleware.NewAuthMiddleware(d.Signer)

	mux := http.NewServeMux()

	protected := func(h http.HandlerFunc) http.Handler {
		return authMiddleware.Authenticate(h)
	}

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":   "ok",
			"sessions": d.Registry.Len(),
		})
	})
	if d.Metrics != nil {
		mux.Handle("GET /metrics", d.Metrics)
	}

	mux.Handle("GET /api/me", protected(func(w http.ResponseWriter, r *http.Request) {
		claims, _ := util.ClaimsFrom(r.Context())
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"subject": claims.Subject,
			"role":    claims.Role,
		})
	}))

	mux.Handle("POST /api/commands", protected(commandHandler.Create))
	mux.Handle("GET /api/commands", protected(commandHandler.List))

	mux.Handle("GET /api/devices", protected(deviceHandler.GetDevices))
	mux.Handle("GET /api/devices/online", protected(deviceHandler.GetOnline))

	mux.Handle("GET /api/reports", protected(reportHandler.GetReports))
	mux.Handle("GET /api/reports/latest", protected(reportHandler.GetLatestReport))

	return middleware.LoggingMiddleware(d.Log)(mux)
}
