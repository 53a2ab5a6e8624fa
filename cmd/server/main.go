package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"matchbook/api/httpserver"
	"matchbook/config"
	"matchbook/domain/book"
	"matchbook/infra/journal"
	"matchbook/infra/kafka"
	"matchbook/infra/sequence"
	"matchbook/jobs/broadcaster"
	"matchbook/notify"
	"matchbook/service"
	"matchbook/transport/consumer"
)

func main() {
	// ---------------- Config ----------------

	path := "config.yaml"
	args := os.Args[1:]
	if len(args) > 0 && !strings.Contains(args[0], "=") {
		path, args = args[0], args[1:]
	}

	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if err := cfg.ApplyOverrides(args); err != nil {
		log.Fatalf("config override failed: %v", err)
	}

	start, end, err := cfg.SessionWindow()
	if err != nil {
		log.Fatalf("session window: %v", err)
	}

	// ---------------- Notification outbox ----------------

	jrn, err := journal.Open(cfg.Journal.Dir)
	if err != nil {
		log.Fatalf("journal init failed: %v", err)
	}
	defer jrn.Close()

	outbox := notify.NewOutbox(jrn)

	// ---------------- Domain ----------------

	engine := book.New()
	seqGen := sequence.New(0)

	// ---------------- Trade feed ----------------

	var feed service.TradeFeed
	if len(cfg.Kafka.Brokers) > 0 {
		tradeFeed := kafka.NewTradeFeed(cfg.Kafka.Brokers, cfg.Kafka.TradesTopic)
		defer tradeFeed.Close()
		feed = tradeFeed
	}

	// ---------------- Service ----------------

	svc := service.NewOrderService(engine, seqGen, outbox, feed)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---------------- Background jobs ----------------

	if len(cfg.Kafka.Brokers) > 0 {
		bc, err := broadcaster.New(jrn, cfg.Kafka.Brokers, cfg.Kafka.NotificationsTopic, 2*time.Second)
		if err != nil {
			log.Fatalf("broadcaster init failed: %v", err)
		}
		defer bc.Close()
		go bc.Start(ctx)

		cons, err := consumer.New(cfg.Kafka.Brokers, cfg.Kafka.Group, cfg.Kafka.CommandsTopic, svc)
		if err != nil {
			log.Fatalf("consumer init failed: %v", err)
		}
		defer cons.Close()
		go func() {
			if err := cons.Run(ctx); err != nil {
				log.Printf("[main] command consumer stopped: %v", err)
			}
		}()
	}

	// ---------------- HTTP ----------------

	httpSrv := &http.Server{
		Addr:    cfg.Server.Listen,
		Handler: httpserver.NewServer(svc).Handler(),
	}
	go func() {
		log.Printf("[main] listening on %s", cfg.Server.Listen)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server exited: %v", err)
		}
	}()

	// ---------------- Session ----------------

	session := service.NewSession(svc, start, end)
	if err := session.Run(ctx); err != nil {
		log.Printf("[main] session: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[main] http shutdown: %v", err)
	}
}
