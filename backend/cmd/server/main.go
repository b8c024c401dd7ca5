// Copyright (C) 2025 moltmail.net <dev@moltmail.net>
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

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"

	"github.com/moltmail/moltmail/backend/config"
	"github.com/moltmail/moltmail/backend/integration"
	"github.com/moltmail/moltmail/backend/logger"
	"github.com/moltmail/moltmail/backend/middleware"
)

func main() {
	log := logger.New("moltmail")

	cfg, err := config.New()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisURL})
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		cancel()
		log.Fatal().Err(err).Str("addr", cfg.RedisURL).Msg("redis unreachable")
	}
	cancel()

	svc, err := integration.New(&integration.Config{
		Redis:  rdb,
		Config: cfg,
		Logger: log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to assemble service")
	}

	r := mux.NewRouter()
	r.Use(middleware.CORS)
	svc.RegisterRoutes(r, nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if sweeper := svc.Sweeper(); sweeper != nil && cfg.SweepInterval > 0 {
		go sweeper.Loop(ctx, cfg.SweepInterval)
		log.Info().Dur("interval", cfg.SweepInterval).Msg("background sweep enabled")
	}

	srv := &http.Server{
		Addr:         cfg.GetHTTPAddr(),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("mail router listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
