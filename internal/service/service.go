package service

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/avello/storefront/internal/metrics"
	"github.com/avello/storefront/internal/model"
	"github.com/avello/storefront/internal/service/config"
	"github.com/avello/storefront/internal/service/supplierclient"
	"github.com/avello/storefront/internal/store"
)

type Service interface {
	// Customer side
	RegisterCustomer(ctx context.Context, customer model.Customer) (int, error)
	GetProfile(ctx context.Context, email string) (model.Customer, error)
	AddFund(ctx context.Context, email string, amount decimal.Decimal) error
	ToggleDeleteRequest(ctx context.Context, email string) (bool, error)
	PlaceOrder(ctx context.Context, email string, productID int) (model.Order, error)
	GetOrders(ctx context.Context, email string) ([]model.Order, error)
	GetProducts(ctx context.Context) ([]model.Product, error)

	// Staff side
	RegisterStaff(ctx context.Context, staff model.Staff) (int, error)
	ListCustomers(ctx context.Context, staffEmail string) ([]model.Customer, error)
	DispatchOrder(ctx context.Context, staffEmail string, orderID int) error
	AnonymizeCustomer(ctx context.Context, staffEmail string, customerID int) error

	// Supplier order proxy and on-demand mirror triggers
	FetchSupplierOrder(ctx context.Context, provider string, id int) (model.SupplierOrder, error)
	CreateSupplierOrder(ctx context.Context, provider string, order model.SupplierOrder) error
	DeleteSupplierOrder(ctx context.Context, provider string, id int) error
	MirrorCategories(ctx context.Context, provider string) (int, error)
	MirrorBrands(ctx context.Context, provider string) (int, error)
	MirrorProducts(ctx context.Context, provider string) (int, error)
}

var (
	ErrInsufficientData    = errors.New("insufficient data")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists       = errors.New("already exists")
	ErrOutOfStock          = errors.New("out of stock")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrAlreadyDispatched   = errors.New("already dispatched")
	ErrUnknownProvider     = errors.New("unknown provider")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

type service struct {
	cfg       config.Config
	store     store.Store
	providers map[string]supplierclient.Client
	metrics   *metrics.Registry
}

func NewService(cfg config.Config, store store.Store, providers map[string]supplierclient.Client, metrics *metrics.Registry) Service {
	return &service{
		cfg:       cfg,
		store:     store,
		providers: providers,
		metrics:   metrics,
	}
}

func (service *service) RegisterCustomer(ctx context.Context, customer model.Customer) (int, error) {
	if customer.Name == "" || customer.Email == "" {
		return 0, ErrInsufficientData
	}
	id, err := service.store.CustomerRegister(ctx, customer)
	if err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return 0, ErrAlreadyExists
		}
		return 0, err
	}
	return id, nil
}

func (service *service) GetProfile(ctx context.Context, email string) (model.Customer, error) {
	if email == "" {
		return model.Customer{}, ErrInsufficientData
	}
	customer, err := service.store.CustomerGetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNoCustomer) {
			return model.Customer{}, ErrUnauthorized
		}
		return model.Customer{}, err
	}
	return customer, nil
}

func (service *service) AddFund(ctx context.Context, email string, amount decimal.Decimal) error {
	if email == "" {
		return ErrInsufficientData
	}
	if amount.Sign() <= 0 {
		return ErrInsufficientData
	}
	customer, err := service.GetProfile(ctx, email)
	if err != nil {
		return err
	}
	return service.store.FundAdd(ctx, customer.ID, amount)
}

func (service *service) ToggleDeleteRequest(ctx context.Context, email string) (bool, error) {
	if email == "" {
		return false, ErrInsufficientData
	}
	requested, err := service.store.CustomerToggleDeleteRequest(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNoCustomer) {
			return false, ErrUnauthorized
		}
		return false, err
	}
	return requested, nil
}

func (service *service) PlaceOrder(ctx context.Context, email string, productID int) (model.Order, error) {
	if email == "" {
		return model.Order{}, ErrInsufficientData
	}

	order, err := service.store.OrderPlace(ctx, email, productID)
	if err != nil {
		service.metrics.OrdersPlaced.WithLabelValues(outcomeLabel(err)).Inc()
		switch {
		case errors.Is(err, store.ErrNoCustomer):
			return model.Order{}, ErrUnauthorized
		case errors.Is(err, store.ErrNoRows):
			return model.Order{}, ErrNotFound
		case errors.Is(err, store.ErrOutOfStock):
			return model.Order{}, ErrOutOfStock
		case errors.Is(err, store.ErrInsufficientFunds):
			return model.Order{}, ErrInsufficientFunds
		default:
			return model.Order{}, err
		}
	}
	service.metrics.OrdersPlaced.WithLabelValues("success").Inc()
	return order, nil
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, store.ErrNoCustomer):
		return "unauthorized"
	case errors.Is(err, store.ErrNoRows):
		return "not_found"
	case errors.Is(err, store.ErrOutOfStock):
		return "out_of_stock"
	case errors.Is(err, store.ErrInsufficientFunds):
		return "insufficient_funds"
	default:
		return "error"
	}
}

func (service *service) GetOrders(ctx context.Context, email string) ([]model.Order, error) {
	customer, err := service.GetProfile(ctx, email)
	if err != nil {
		return nil, err
	}
	return service.store.OrderListByCustomer(ctx, customer.ID)
}

func (service *service) GetProducts(ctx context.Context) ([]model.Product, error) {
	return service.store.ProductList(ctx)
}

// requireStaff resolves the caller to a registered staff member.
func (service *service) requireStaff(ctx context.Context, staffEmail string) error {
	if staffEmail == "" {
		return ErrInsufficientData
	}
	_, err := service.store.StaffGetByEmail(ctx, staffEmail)
	if err != nil {
		if errors.Is(err, store.ErrNoRows) {
			return ErrUnauthorized
		}
		return err
	}
	return nil
}

func (service *service) RegisterStaff(ctx context.Context, staff model.Staff) (int, error) {
	if staff.Name == "" || staff.Email == "" {
		return 0, ErrInsufficientData
	}
	id, err := service.store.StaffRegister(ctx, staff)
	if err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return 0, ErrAlreadyExists
		}
		return 0, err
	}
	return id, nil
}

func (service *service) ListCustomers(ctx context.Context, staffEmail string) ([]model.Customer, error) {
	if err := service.requireStaff(ctx, staffEmail); err != nil {
		return nil, err
	}
	return service.store.CustomerList(ctx)
}

func (service *service) DispatchOrder(ctx context.Context, staffEmail string, orderID int) error {
	if err := service.requireStaff(ctx, staffEmail); err != nil {
		return err
	}
	err := service.store.OrderDispatch(ctx, orderID)
	switch {
	case errors.Is(err, store.ErrNoRows):
		return ErrNotFound
	case errors.Is(err, store.ErrAlreadyDispatched):
		return ErrAlreadyDispatched
	default:
		return err
	}
}

func (service *service) AnonymizeCustomer(ctx context.Context, staffEmail string, customerID int) error {
	if err := service.requireStaff(ctx, staffEmail); err != nil {
		return err
	}
	err := service.store.CustomerAnonymize(ctx, customerID)
	if errors.Is(err, store.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (service *service) provider(name string) (supplierclient.Client, error) {
	client, ok := service.providers[name]
	if !ok {
		return nil, ErrUnknownProvider
	}
	return client, nil
}

func (service *service) FetchSupplierOrder(ctx context.Context, provider string, id int) (model.SupplierOrder, error) {
	client, err := service.provider(provider)
	if err != nil {
		return model.SupplierOrder{}, err
	}
	order, err := client.FetchOrder(ctx, id)
	if err != nil {
		service.metrics.SupplierCalls.WithLabelValues(provider, "fetch_order", "error").Inc()
		if errors.Is(err, supplierclient.ErrNotFound) {
			return model.SupplierOrder{}, ErrNotFound
		}
		return model.SupplierOrder{}, service.upstreamErr(err)
	}
	service.metrics.SupplierCalls.WithLabelValues(provider, "fetch_order", "success").Inc()
	return order, nil
}

func (service *service) CreateSupplierOrder(ctx context.Context, provider string, order model.SupplierOrder) error {
	client, err := service.provider(provider)
	if err != nil {
		return err
	}
	if err := client.CreateOrder(ctx, order); err != nil {
		service.metrics.SupplierCalls.WithLabelValues(provider, "create_order", "error").Inc()
		return service.upstreamErr(err)
	}
	service.metrics.SupplierCalls.WithLabelValues(provider, "create_order", "success").Inc()
	return nil
}

func (service *service) DeleteSupplierOrder(ctx context.Context, provider string, id int) error {
	client, err := service.provider(provider)
	if err != nil {
		return err
	}
	if err := client.DeleteOrder(ctx, id); err != nil {
		service.metrics.SupplierCalls.WithLabelValues(provider, "delete_order", "error").Inc()
		return service.upstreamErr(err)
	}
	service.metrics.SupplierCalls.WithLabelValues(provider, "delete_order", "success").Inc()
	return nil
}

func (service *service) upstreamErr(err error) error {
	if errors.Is(err, supplierclient.ErrUnavailable) {
		return ErrUpstreamUnavailable
	}
	return err
}

func (service *service) MirrorCategories(ctx context.Context, provider string) (int, error) {
	client, err := service.provider(provider)
	if err != nil {
		return 0, err
	}
	categories, err := client.FetchCategories(ctx)
	if err != nil {
		return 0, service.upstreamErr(err)
	}
	inserted, err := service.store.CategoriesMirror(ctx, categories)
	if err != nil {
		return 0, err
	}
	service.metrics.MirrorRows.WithLabelValues(provider, "categories").Add(float64(inserted))
	return inserted, nil
}

func (service *service) MirrorBrands(ctx context.Context, provider string) (int, error) {
	client, err := service.provider(provider)
	if err != nil {
		return 0, err
	}
	brands, err := client.FetchBrands(ctx)
	if err != nil {
		return 0, service.upstreamErr(err)
	}
	inserted, err := service.store.BrandsMirror(ctx, brands)
	if err != nil {
		return 0, err
	}
	service.metrics.MirrorRows.WithLabelValues(provider, "brands").Add(float64(inserted))
	return inserted, nil
}

func (service *service) MirrorProducts(ctx context.Context, provider string) (int, error) {
	client, err := service.provider(provider)
	if err != nil {
		return 0, err
	}
	products, err := client.FetchProducts(ctx)
	if err != nil {
		return 0, service.upstreamErr(err)
	}
	inserted, err := service.store.ProductsMirror(ctx, products)
	if err != nil {
		return 0, err
	}
	service.metrics.MirrorRows.WithLabelValues(provider, "products").Add(float64(inserted))
	return inserted, nil
}
