package supplierclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"github.com/avello/storefront/internal/model"
)

// Provider names as they appear in the facade URLs.
const (
	ProviderUnderCutters = "UnderCutters"
	ProviderDodgyDealers = "DodgyDealers"
)

var (
	ErrNotFound    = errors.New("not found at supplier")
	ErrUnavailable = errors.New("supplier unavailable")
)

// Client is the capability surface of one upstream supplier catalog.
// Both suppliers expose the same API; resilience differences are
// configuration, not separate types.
type Client interface {
	FetchProducts(ctx context.Context) ([]model.Product, error)
	FetchCategories(ctx context.Context) ([]model.Category, error)
	FetchBrands(ctx context.Context) ([]model.Brand, error)
	FetchOrder(ctx context.Context, id int) (model.SupplierOrder, error)
	CreateOrder(ctx context.Context, order model.SupplierOrder) error
	DeleteOrder(ctx context.Context, id int) error
}

type RetryConfig struct {
	Count       int
	WaitTime    time.Duration
	MaxWaitTime time.Duration
}

type BreakerConfig struct {
	Enabled          bool
	FailureThreshold uint32
	OpenFor          time.Duration
}

type Config struct {
	Name           string
	BaseURL        string
	RequestTimeout time.Duration
	Retry          RetryConfig
	Breaker        BreakerConfig
}

type client struct {
	name    string
	http    *resty.Client
	breaker *gobreaker.CircuitBreaker
}

func New(cfg Config) Client {
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.RequestTimeout)
	if cfg.Retry.Count > 0 {
		httpClient.
			SetRetryCount(cfg.Retry.Count).
			SetRetryWaitTime(cfg.Retry.WaitTime).
			SetRetryMaxWaitTime(cfg.Retry.MaxWaitTime).
			AddRetryCondition(func(resp *resty.Response, err error) bool {
				return err != nil || resp.StatusCode() >= http.StatusInternalServerError
			})
	}

	var breaker *gobreaker.CircuitBreaker
	if cfg.Breaker.Enabled {
		breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    cfg.Name,
			Timeout: cfg.Breaker.OpenFor,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.Breaker.FailureThreshold
			},
		})
	}

	return &client{
		name:    cfg.Name,
		http:    httpClient,
		breaker: breaker,
	}
}

// Supplier wire formats. Money comes over the wire as a JSON number.

type productJSON struct {
	ID          int             `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	CategoryID  int             `json:"categoryId"`
	BrandID     int             `json:"brandId"`
}

type categoryJSON struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type brandJSON struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type orderJSON struct {
	ID        int       `json:"id"`
	ProductID int       `json:"productId"`
	OrderDate time.Time `json:"orderDate"`
}

func (c *client) FetchProducts(ctx context.Context) ([]model.Product, error) {
	var body []productJSON
	if err := c.getJSON(ctx, "/api/Product", &body); err != nil {
		return nil, err
	}
	products := make([]model.Product, 0, len(body))
	for _, p := range body {
		products = append(products, model.Product{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			Price:       p.Price,
			Stock:       p.Stock,
			CategoryID:  p.CategoryID,
			BrandID:     p.BrandID,
		})
	}
	return products, nil
}

func (c *client) FetchCategories(ctx context.Context) ([]model.Category, error) {
	var body []categoryJSON
	if err := c.getJSON(ctx, "/api/Category", &body); err != nil {
		return nil, err
	}
	categories := make([]model.Category, 0, len(body))
	for _, cat := range body {
		categories = append(categories, model.Category{ID: cat.ID, Name: cat.Name})
	}
	return categories, nil
}

func (c *client) FetchBrands(ctx context.Context) ([]model.Brand, error) {
	var body []brandJSON
	if err := c.getJSON(ctx, "/api/Brand", &body); err != nil {
		return nil, err
	}
	brands := make([]model.Brand, 0, len(body))
	for _, b := range body {
		brands = append(brands, model.Brand{ID: b.ID, Name: b.Name})
	}
	return brands, nil
}

func (c *client) FetchOrder(ctx context.Context, id int) (model.SupplierOrder, error) {
	resp, err := c.do(func() (*resty.Response, error) {
		return c.http.R().SetContext(ctx).Get(fmt.Sprintf("/api/Order/%d", id))
	})
	if err != nil {
		return model.SupplierOrder{}, err
	}
	switch resp.StatusCode() {
	case http.StatusOK:
		var body orderJSON
		if err := json.Unmarshal(resp.Body(), &body); err != nil {
			return model.SupplierOrder{}, err
		}
		return model.SupplierOrder{ID: body.ID, ProductID: body.ProductID, OrderDate: body.OrderDate}, nil
	case http.StatusNotFound:
		return model.SupplierOrder{}, ErrNotFound
	default:
		return model.SupplierOrder{}, fmt.Errorf("%s order request status: %d", c.name, resp.StatusCode())
	}
}

func (c *client) CreateOrder(ctx context.Context, order model.SupplierOrder) error {
	body := orderJSON{ID: order.ID, ProductID: order.ProductID, OrderDate: order.OrderDate}
	resp, err := c.do(func() (*resty.Response, error) {
		return c.http.R().SetContext(ctx).SetBody(body).Post("/api/Order")
	})
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("%s create order status: %d", c.name, resp.StatusCode())
	}
	return nil
}

func (c *client) DeleteOrder(ctx context.Context, id int) error {
	resp, err := c.do(func() (*resty.Response, error) {
		return c.http.R().SetContext(ctx).Delete(fmt.Sprintf("/api/Order/%d", id))
	})
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("%s delete order status: %d", c.name, resp.StatusCode())
	}
	return nil
}

func (c *client) getJSON(ctx context.Context, path string, out any) error {
	resp, err := c.do(func() (*resty.Response, error) {
		return c.http.R().SetContext(ctx).Get(path)
	})
	if err != nil {
		return err
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("%s request status: %d", c.name, resp.StatusCode())
	}
	return json.Unmarshal(resp.Body(), out)
}

// do routes the call through the circuit breaker when one is
// configured. Network errors and 5xx responses count as failures;
// an open circuit fails fast without a round trip.
func (c *client) do(call func() (*resty.Response, error)) (*resty.Response, error) {
	guarded := func() (*resty.Response, error) {
		resp, err := call()
		if err != nil {
			return nil, errors.Join(ErrUnavailable, err)
		}
		if resp.StatusCode() >= http.StatusInternalServerError {
			return nil, fmt.Errorf("%w: %s status %d", ErrUnavailable, c.name, resp.StatusCode())
		}
		return resp, nil
	}

	if c.breaker == nil {
		return guarded()
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return guarded()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %s circuit open", ErrUnavailable, c.name)
		}
		return nil, err
	}
	return result.(*resty.Response), nil
}
