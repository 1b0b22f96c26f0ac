package supplierclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/avello/storefront/internal/model"
)

func TestFetchProducts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/Product", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[{"id":42,"name":"Widget","description":"a widget","price":9.99,"stock":3,"categoryId":1,"brandId":2}]`)
	}))
	defer srv.Close()

	client := New(Config{Name: ProviderUnderCutters, BaseURL: srv.URL, RequestTimeout: time.Second})

	products, err := client.FetchProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 1)
	require.Equal(t, 42, products[0].ID)
	require.Equal(t, "Widget", products[0].Name)
	require.True(t, products[0].Price.Equal(decimal.RequireFromString("9.99")))
	require.Equal(t, 3, products[0].Stock)
}

func TestFetchCategoriesAndBrands(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/Category":
			fmt.Fprint(w, `[{"id":7,"name":"Gadgets"}]`)
		case "/api/Brand":
			fmt.Fprint(w, `[{"id":9,"name":"Acme"}]`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := New(Config{Name: ProviderUnderCutters, BaseURL: srv.URL, RequestTimeout: time.Second})

	categories, err := client.FetchCategories(context.Background())
	require.NoError(t, err)
	require.Equal(t, []model.Category{{ID: 7, Name: "Gadgets"}}, categories)

	brands, err := client.FetchBrands(context.Background())
	require.NoError(t, err)
	require.Equal(t, []model.Brand{{ID: 9, Name: "Acme"}}, brands)
}

func TestFetchOrderNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := New(Config{Name: ProviderUnderCutters, BaseURL: srv.URL, RequestTimeout: time.Second})

	_, err := client.FetchOrder(context.Background(), 123)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCreateAndDeleteOrder(t *testing.T) {
	var created, deleted atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/Order":
			created.Add(1)
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodDelete && r.URL.Path == "/api/Order/5":
			deleted.Add(1)
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	client := New(Config{Name: ProviderUnderCutters, BaseURL: srv.URL, RequestTimeout: time.Second})

	err := client.CreateOrder(context.Background(), model.SupplierOrder{ID: 5, ProductID: 42, OrderDate: time.Now().UTC()})
	require.NoError(t, err)
	require.EqualValues(t, 1, created.Load())

	err = client.DeleteOrder(context.Background(), 5)
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted.Load())
}

func TestRetryRecoversFromTransientFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[{"id":1,"name":"Things"}]`)
	}))
	defer srv.Close()

	client := New(Config{
		Name:           ProviderDodgyDealers,
		BaseURL:        srv.URL,
		RequestTimeout: time.Second,
		Retry: RetryConfig{
			Count:       3,
			WaitTime:    10 * time.Millisecond,
			MaxWaitTime: 50 * time.Millisecond,
		},
	})

	categories, err := client.FetchCategories(context.Background())
	require.NoError(t, err)
	require.Len(t, categories, 1)
	require.EqualValues(t, 3, hits.Load())
}

func TestCircuitBreakerOpensAndProbes(t *testing.T) {
	var hits atomic.Int32
	var failing atomic.Bool
	failing.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if failing.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	client := New(Config{
		Name:           ProviderDodgyDealers,
		BaseURL:        srv.URL,
		RequestTimeout: time.Second,
		Breaker: BreakerConfig{
			Enabled:          true,
			FailureThreshold: 5,
			OpenFor:          200 * time.Millisecond,
		},
	})

	// 5 consecutive failures trip the breaker
	for i := 0; i < 5; i++ {
		_, err := client.FetchBrands(context.Background())
		require.ErrorIs(t, err, ErrUnavailable)
	}
	require.EqualValues(t, 5, hits.Load())

	// open circuit fails fast, no round trip
	_, err := client.FetchBrands(context.Background())
	require.ErrorIs(t, err, ErrUnavailable)
	require.EqualValues(t, 5, hits.Load())

	// after the cooldown one probe call goes through
	failing.Store(false)
	time.Sleep(250 * time.Millisecond)

	_, err = client.FetchBrands(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 6, hits.Load())
}

func TestNetworkErrorIsUnavailable(t *testing.T) {
	client := New(Config{Name: ProviderUnderCutters, BaseURL: "http://127.0.0.1:1", RequestTimeout: 200 * time.Millisecond})

	_, err := client.FetchProducts(context.Background())
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrUnavailable))
}
