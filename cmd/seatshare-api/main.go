// README: Entry point; loads config, wires stores, services and publishers, serves HTTP until signalled.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"seatshare/internal/config"
	"seatshare/internal/events"
	"seatshare/internal/feed"
	httptransport "seatshare/internal/http"
	"seatshare/internal/infra"
	"seatshare/internal/logging"
	"seatshare/internal/modules/booking"
	"seatshare/internal/modules/identity"
	"seatshare/internal/modules/pricing"
	"seatshare/internal/modules/review"
	"seatshare/internal/modules/ride"
	"seatshare/internal/modules/user"
	"seatshare/migrations"
)

const shutdownTimeout = 10 * time.Second

func main() {
	issue := flag.String("issue-service-token", "", "print a service token for the given subject and exit")
	ttl := flag.Duration("ttl", 24*time.Hour, "lifetime of an issued service token")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log := logging.New("seatshare-api", cfg.Log.Level)

	tokens := identity.NewServiceTokens(cfg.Identity.ServiceKeys, cfg.Identity.ActiveKeyID, cfg.Identity.ServiceIssuer)
	if *issue != "" {
		raw, err := tokens.Issue(*issue, *ttl)
		if err != nil {
			fmt.Fprintln(os.Stderr, "issue service token:", err)
			os.Exit(1)
		}
		fmt.Println(raw)
		return
	}

	if err := run(cfg, tokens, log); err != nil {
		log.Error("api stopped", "action", "fatal", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, tokens *identity.ServiceTokens, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var verifier infra.TokenVerifier
	if cfg.Identity.FirebaseProjectID != "" {
		v, err := infra.NewFirebaseVerifier(ctx, cfg.Identity.FirebaseProjectID, cfg.Identity.FirebaseCredsFile)
		if err != nil {
			return fmt.Errorf("firebase init: %w", err)
		}
		verifier = v
	} else {
		log.Warn("bearer credentials disabled", "action", "startup", "reason", "SEATSHARE_FIREBASE_PROJECT_ID unset")
	}

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN, cfg.DB.MaxConns, log)
	if err != nil {
		return err
	}
	defer dbPool.Close()
	if err := infra.RunMigrations(ctx, dbPool, migrations.FS, log); err != nil {
		return err
	}
	txRunner := infra.NewTxRunner(dbPool, cfg.DB.TxTimeout)

	redisClient := infra.NewRedis(ctx, cfg.Redis.Addr, log)
	defer redisClient.Close()

	hub := feed.NewHub(log)
	pub, err := newPublisher(cfg.Events, hub)
	if err != nil {
		return err
	}
	defer func() {
		if err := pub.Close(); err != nil {
			log.Warn("publisher close failed", "action", "shutdown", "error", err)
		}
	}()

	userStore := user.NewStore(dbPool)
	resolver := identity.NewResolver(identity.ResolverDeps{
		Verifier:    verifier,
		Service:     tokens,
		Users:       userStore,
		Cache:       identity.NewRedisRoleCache(redisClient, cfg.Identity.RoleCacheTTL),
		AdminEmails: cfg.Identity.AdminEmails,
		Log:         log,
	})

	rideSvc := ride.NewService(ride.NewStore(txRunner), pub, log, cfg.Currency)
	bookingSvc := booking.NewService(booking.NewStore(txRunner), pricing.NewService(), pub, log)
	reviewSvc := review.NewService(review.NewStore(txRunner), pub, log)
	userSvc := user.NewService(userStore)

	handler := httptransport.NewServer(httptransport.ServerDeps{
		Resolver: resolver,
		Rides:    rideSvc,
		Bookings: bookingSvc,
		Reviews:  reviewSvc,
		Users:    userSvc,
		Feed:     hub,
		Log:      log,
	})

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: handler.Routes(), ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		log.Info("api listening", "action", "startup", "addr", cfg.HTTP.Addr, "events", cfg.Events.Driver)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	log.Info("shutting down", "action", "shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// newPublisher fans events out to the configured broker and the websocket feed.
func newPublisher(cfg config.EventsConfig, hub *feed.Hub) (events.Publisher, error) {
	switch cfg.Driver {
	case "kafka":
		return events.Multi{events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic), hub}, nil
	case "amqp":
		p, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return nil, err
		}
		return events.Multi{p, hub}, nil
	default:
		return events.Multi{hub}, nil
	}
}
