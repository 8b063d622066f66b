// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package integration

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"

	"github.com/efchatnet/efrelay/backend/engine"
	"github.com/efchatnet/efrelay/backend/gateway"
	"github.com/efchatnet/efrelay/backend/middleware"
	"github.com/efchatnet/efrelay/backend/session"
	"github.com/efchatnet/efrelay/backend/storage/postgres"
)

// RelayIntegration wires the room relay engine as a plugin for an
// existing efchat deployment: the host hands over its database and
// Redis connections and mounts the websocket surface on its own
// router.
type RelayIntegration struct {
	store     *postgres.Store
	engine    *engine.Engine
	gateway   *gateway.Gateway
	jwtSecret string
	jwtIssuer string
}

// Config holds configuration for the relay integration
type Config struct {
	DB        *sql.DB
	Redis     *redis.Client
	JWTSecret string
	JWTIssuer string
	Logger    *slog.Logger
}

// NewRelayIntegration builds the engine stack on the host's resources
// and runs the schema migrations.
func NewRelayIntegration(config *Config) (*RelayIntegration, error) {
	store := postgres.NewStore(config.DB)
	if err := store.Migrate(); err != nil {
		return nil, err
	}

	var presence *session.Presence
	if config.Redis != nil {
		presence = session.NewPresence(config.Redis)
	}
	registry := session.NewRegistry(presence, config.Logger)
	eng := engine.New(store, registry, config.Logger)

	return &RelayIntegration{
		store:     store,
		engine:    eng,
		gateway:   gateway.New(eng, config.Logger),
		jwtSecret: config.JWTSecret,
		jwtIssuer: config.JWTIssuer,
	}, nil
}

// RegisterRoutes adds the relay's endpoints to an existing router.
// If authMiddleware is nil, the built-in token validation is used;
// either way connections without credentials fall back to legacy
// identity registration.
func (ri *RelayIntegration) RegisterRoutes(router *mux.Router, authMiddleware func(http.Handler) http.Handler) {
	ws := router.PathPrefix("/ws").Subrouter()

	if authMiddleware != nil {
		ws.Use(authMiddleware)
	} else {
		ws.Use(middleware.NewAuthMiddleware(ri.jwtSecret, ri.jwtIssuer))
	}

	ws.HandleFunc("", ri.gateway.ServeWS).Methods("GET")
	ws.HandleFunc("/", ri.gateway.ServeWS).Methods("GET")
}

// Engine returns the protocol engine for host-side wiring.
func (ri *RelayIntegration) Engine() *engine.Engine {
	return ri.engine
}

// Store returns the underlying storage implementation
func (ri *RelayIntegration) Store() *postgres.Store {
	return ri.store
}
