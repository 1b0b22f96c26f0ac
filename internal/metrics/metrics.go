package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	reg *prometheus.Registry

	MirrorRuns    *prometheus.CounterVec // {provider, entity, outcome}
	MirrorRows    *prometheus.CounterVec // {provider, entity}
	OrdersPlaced  *prometheus.CounterVec // {outcome}
	SupplierCalls *prometheus.CounterVec // {provider, operation, outcome}
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()

	mirrorRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_mirror_runs_total",
		Help: "Mirror batches per provider and entity type.",
	}, []string{"provider", "entity", "outcome"})
	mirrorRows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_mirror_rows_inserted_total",
		Help: "New rows copied from upstream catalogs.",
	}, []string{"provider", "entity"})
	ordersPlaced := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_placed_total",
		Help: "Order placement attempts by outcome.",
	}, []string{"outcome"})
	supplierCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "supplier_proxy_calls_total",
		Help: "Proxied supplier order operations by outcome.",
	}, []string{"provider", "operation", "outcome"})

	r.MustRegister(mirrorRuns, mirrorRows, ordersPlaced, supplierCalls)
	return &Registry{
		reg:           r,
		MirrorRuns:    mirrorRuns,
		MirrorRows:    mirrorRows,
		OrdersPlaced:  ordersPlaced,
		SupplierCalls: supplierCalls,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }
