// Command goassist-fake serves an in-memory analysis service for local use
// with cmd/goassist.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/MrEthical07/goAssist/internal/fakeapi"
	"github.com/MrEthical07/goAssist/internal/logging"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	var (
		addr     = flag.String("addr", "127.0.0.1:8080", "listen address")
		prefix   = flag.String("prefix", "/api", "path prefix the service is mounted under")
		ttl      = flag.Duration("ttl", time.Hour, "credential lifetime")
		secret   = flag.String("secret", "", "HS256 signing key (random when empty)")
		seedUser = flag.String("user", "", "seed an account as email:password")
		level    = flag.String("log-level", "info", "log level")
		redisURL = flag.String("redis", "", "Redis URL for failed-login throttling (disabled when empty)")
		attempts = flag.Int("max-login-attempts", 5, "failed logins allowed per window")
		cooldown = flag.Duration("login-cooldown", 15*time.Minute, "failed-login window")
	)
	flag.Parse()

	logger, err := logging.New(logging.Config{Level: *level, Format: "console"}, os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	cfg := fakeapi.Config{
		TTL:              *ttl,
		Secret:           []byte(*secret),
		Logger:           logger,
		MaxLoginAttempts: *attempts,
		LoginCooldown:    *cooldown,
	}
	if *redisURL != "" {
		opts, err := redis.ParseURL(*redisURL)
		if err != nil {
			logger.Fatal("parse redis url", zap.Error(err))
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		cfg.Redis = rdb
	}

	fake, err := fakeapi.New(cfg)
	if err != nil {
		logger.Fatal("create service", zap.Error(err))
	}
	if *seedUser != "" {
		email, pw, ok := strings.Cut(*seedUser, ":")
		if !ok {
			logger.Fatal("-user must be email:password")
		}
		if err := fake.AddUser(email, pw, nil); err != nil {
			logger.Fatal("seed user", zap.Error(err))
		}
	}

	mux := http.NewServeMux()
	p := strings.TrimRight(*prefix, "/")
	if p == "" {
		mux.Handle("/", fake)
	} else {
		mux.Handle(p+"/", http.StripPrefix(p, fake))
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("serving fake analysis service", zap.String("addr", *addr), zap.String("prefix", p))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("serve", zap.Error(err))
	}
}
