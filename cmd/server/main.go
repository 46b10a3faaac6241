// cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/gridfall/gridfall/internal/auth"
	"github.com/gridfall/gridfall/internal/database"
	"github.com/gridfall/gridfall/internal/handlers"
	"github.com/gridfall/gridfall/internal/middleware"
	"github.com/gridfall/gridfall/internal/session"
)

func main() {
	auth.Init()

	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	srv := handlers.NewGameServer(logger)

	// Postgres persistence is optional; without it games simply are not
	// recorded.
	if os.Getenv("PG_HOST") != "" {
		database.ConnectDB()
		srv.Recorder = database.GameRecorder{}
	}

	// Redis continuity records are optional too; without them a reload cannot
	// resume a session.
	if os.Getenv("REDIS_ADDR") != "" {
		store, err := session.Connect(context.Background())
		if err != nil {
			logger.WithError(err).Warn("redis unavailable, session continuity disabled")
		} else {
			srv.Sessions = store
		}
	}

	mux := http.NewServeMux()

	wrap := func(h http.Handler) http.Handler {
		return middleware.Recover(logger)(middleware.LogMiddleware(logger)(h))
	}

	mux.Handle("/game/create", wrap(http.HandlerFunc(srv.CreateGameHandler)))
	mux.Handle("/game/ws/", wrap(http.HandlerFunc(
		handlers.GameWSHandler(logger, srv),
	)))

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	logger.Infof("Running on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
