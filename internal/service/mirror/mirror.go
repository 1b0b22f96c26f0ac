package mirror

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/avello/storefront/internal/metrics"
	"github.com/avello/storefront/internal/model"
	"github.com/avello/storefront/internal/service/supplierclient"
)

// CatalogStore is the slice of the store the mirror writes through.
// Each method runs one insert-only transaction for its entity type and
// reports how many rows were new.
type CatalogStore interface {
	CategoriesMirror(ctx context.Context, categories []model.Category) (int, error)
	BrandsMirror(ctx context.Context, brands []model.Brand) (int, error)
	ProductsMirror(ctx context.Context, products []model.Product) (int, error)
}

type Provider struct {
	Name   string
	Client supplierclient.Client
}

// Job copies the upstream catalogs into the local store on a fixed
// interval, first run immediate. A failing provider or entity type is
// logged and skipped; the schedule always survives.
type Job struct {
	interval  time.Duration
	store     CatalogStore
	providers []Provider
	zaplog    *zap.Logger
	metrics   *metrics.Registry

	locks  map[string]*sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewJob(interval time.Duration, store CatalogStore, providers []Provider, zaplog *zap.Logger, metrics *metrics.Registry) *Job {
	locks := make(map[string]*sync.Mutex, len(providers))
	for _, p := range providers {
		locks[p.Name] = &sync.Mutex{}
	}
	return &Job{
		interval:  interval,
		store:     store,
		providers: providers,
		zaplog:    zaplog,
		metrics:   metrics,
		locks:     locks,
	}
}

func (job *Job) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	job.cancel = cancel
	job.done = make(chan struct{})

	go func() {
		defer close(job.done)

		job.RunOnce(ctx)

		ticker := time.NewTicker(job.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				job.RunOnce(ctx)
			}
		}
	}()
}

// Stop cancels the schedule and waits for an in-flight run to finish.
func (job *Job) Stop() {
	if job.cancel == nil {
		return
	}
	job.cancel()
	<-job.done
}

// RunOnce syncs every provider. A provider whose previous run is still
// going is skipped rather than doubled up.
func (job *Job) RunOnce(ctx context.Context) {
	for _, provider := range job.providers {
		lock := job.locks[provider.Name]
		if !lock.TryLock() {
			job.zaplog.Info("mirror run still in progress, skipping",
				zap.String("provider", provider.Name))
			continue
		}
		job.syncProvider(ctx, provider)
		lock.Unlock()
	}
}

// syncProvider runs the three entity batches in dependency order:
// products reference categories and brands, so those go first. Each
// batch fails independently.
func (job *Job) syncProvider(ctx context.Context, provider Provider) {
	job.syncEntity(ctx, provider.Name, "categories", func() (int, error) {
		categories, err := provider.Client.FetchCategories(ctx)
		if err != nil {
			return 0, err
		}
		return job.store.CategoriesMirror(ctx, categories)
	})
	job.syncEntity(ctx, provider.Name, "brands", func() (int, error) {
		brands, err := provider.Client.FetchBrands(ctx)
		if err != nil {
			return 0, err
		}
		return job.store.BrandsMirror(ctx, brands)
	})
	job.syncEntity(ctx, provider.Name, "products", func() (int, error) {
		products, err := provider.Client.FetchProducts(ctx)
		if err != nil {
			return 0, err
		}
		return job.store.ProductsMirror(ctx, products)
	})
}

func (job *Job) syncEntity(ctx context.Context, provider string, entity string, sync func() (int, error)) {
	inserted, err := sync()
	if err != nil {
		job.metrics.MirrorRuns.WithLabelValues(provider, entity, "error").Inc()
		job.zaplog.Error("mirror batch failed",
			zap.String("provider", provider),
			zap.String("entity", entity),
			zap.Error(err))
		return
	}
	job.metrics.MirrorRuns.WithLabelValues(provider, entity, "success").Inc()
	job.metrics.MirrorRows.WithLabelValues(provider, entity).Add(float64(inserted))
	job.zaplog.Info("mirror batch done",
		zap.String("provider", provider),
		zap.String("entity", entity),
		zap.Int("inserted", inserted))
}
