package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/avello/storefront/internal/auth"
	"github.com/avello/storefront/internal/config"
	"github.com/avello/storefront/internal/handler"
	"github.com/avello/storefront/internal/logger"
	"github.com/avello/storefront/internal/metrics"
	"github.com/avello/storefront/internal/service"
	"github.com/avello/storefront/internal/service/mirror"
	"github.com/avello/storefront/internal/service/supplierclient"
	"github.com/avello/storefront/internal/store"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg := config.GetConfig()

	zaplog, err := logger.NewZapLog(cfg.Logger)
	if err != nil {
		return err
	}
	defer zaplog.Sync()

	store, err := store.NewStore(cfg.Store)
	if err != nil {
		return err
	}

	m := metrics.NewRegistry()

	underCutters := supplierclient.New(cfg.Service.UnderCutters)
	dodgyDealers := supplierclient.New(cfg.Service.DodgyDealers)
	providers := map[string]supplierclient.Client{
		supplierclient.ProviderUnderCutters: underCutters,
		supplierclient.ProviderDodgyDealers: dodgyDealers,
	}

	auth := auth.NewAuth(cfg.Auth)
	service := service.NewService(cfg.Service, store, providers, m)

	job := mirror.NewJob(cfg.Service.MirrorInterval, store, []mirror.Provider{
		{Name: supplierclient.ProviderUnderCutters, Client: underCutters},
		{Name: supplierclient.ProviderDodgyDealers, Client: dodgyDealers},
	}, zaplog, m)
	job.Start()
	defer job.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return handler.Serve(ctx, cfg.Handler, auth, service, m, zaplog)
}
