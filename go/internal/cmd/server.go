package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"connectrpc.com/grpcreflect"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mcdev12/fantasta/go/internal/auction/gateway"
	"github.com/mcdev12/fantasta/go/internal/auction/rpc"
	"github.com/mcdev12/fantasta/go/internal/config"
)

func setupServer(cfg *config.Config, services *Services) *http.Server {
	mux := http.NewServeMux()

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	registerServices(mux, services)
	setupReflection(mux)
	setupHealthCheck(mux)
	setupInfo(mux, cfg, services)

	handler := c.Handler(mux)

	return &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: h2c.NewHandler(handler, &http2.Server{}),
	}
}

func registerServices(mux *http.ServeMux, services *Services) {
	// Command RPC
	path, handler := services.RPC.Handler()
	mux.Handle(path, handler)

	// WebSocket room and REST state
	gateway.NewWebSocketHandler(services.Connections).RegisterRoutes(mux)
	gateway.NewStateHandler(services.Coordinator).RegisterStateRoutes(mux)
}

func setupReflection(mux *http.ServeMux) {
	reflector, err := rpc.NewReflector()
	if err != nil {
		log.Error().Err(err).Msg("gRPC reflection disabled")
		return
	}
	mux.Handle(grpcreflect.NewHandlerV1(reflector))
	mux.Handle(grpcreflect.NewHandlerV1Alpha(reflector))
}

func setupHealthCheck(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
}

func setupInfo(mux *http.ServeMux, cfg *config.Config, services *Services) {
	mux.HandleFunc("/info", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		info := map[string]any{
			"service":     "fantasta-auction",
			"instance_id": cfg.Instance.ID,
			"auction_id":  cfg.Instance.AuctionID,
			"connections": services.Connections.GetConnectionStats().TotalConnections,
			"persistence": services.PersistenceEnabled(),
			"replication": services.Publisher != nil,
		}
		if err := json.NewEncoder(w).Encode(info); err != nil {
			log.Error().Err(err).Msg("failed to encode info response")
		}
	})
}
