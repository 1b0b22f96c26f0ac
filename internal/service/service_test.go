package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/avello/storefront/internal/metrics"
	"github.com/avello/storefront/internal/model"
	"github.com/avello/storefront/internal/service/config"
	"github.com/avello/storefront/internal/service/supplierclient"
	"github.com/avello/storefront/internal/store"
)

// fakeStore returns canned values; each test arms only the fields it
// needs.
type fakeStore struct {
	customer     model.Customer
	customerErr  error
	order        model.Order
	orderErr     error
	staffErr     error
	dispatchErr  error
	registeredID int
	registerErr  error
	fundAdds     []decimal.Decimal
}

func (f *fakeStore) CustomerRegister(ctx context.Context, customer model.Customer) (int, error) {
	return f.registeredID, f.registerErr
}

func (f *fakeStore) CustomerGetByEmail(ctx context.Context, email string) (model.Customer, error) {
	return f.customer, f.customerErr
}

func (f *fakeStore) CustomerList(ctx context.Context) ([]model.Customer, error) {
	return []model.Customer{f.customer}, nil
}

func (f *fakeStore) CustomerToggleDeleteRequest(ctx context.Context, email string) (bool, error) {
	return true, f.customerErr
}

func (f *fakeStore) CustomerAnonymize(ctx context.Context, customerID int) error {
	return f.customerErr
}

func (f *fakeStore) FundAdd(ctx context.Context, customerID int, amount decimal.Decimal) error {
	f.fundAdds = append(f.fundAdds, amount)
	return nil
}

func (f *fakeStore) ProductGet(ctx context.Context, id int) (model.Product, error) {
	return model.Product{}, store.ErrNoRows
}

func (f *fakeStore) ProductList(ctx context.Context) ([]model.Product, error) {
	return nil, nil
}

func (f *fakeStore) OrderPlace(ctx context.Context, email string, productID int) (model.Order, error) {
	return f.order, f.orderErr
}

func (f *fakeStore) OrderListByCustomer(ctx context.Context, customerID int) ([]model.Order, error) {
	return []model.Order{f.order}, nil
}

func (f *fakeStore) OrderDispatch(ctx context.Context, orderID int) error {
	return f.dispatchErr
}

func (f *fakeStore) StaffRegister(ctx context.Context, staff model.Staff) (int, error) {
	return 1, nil
}

func (f *fakeStore) StaffGetByEmail(ctx context.Context, email string) (model.Staff, error) {
	return model.Staff{ID: 1, Email: email}, f.staffErr
}

func (f *fakeStore) CategoriesMirror(ctx context.Context, categories []model.Category) (int, error) {
	return len(categories), nil
}

func (f *fakeStore) BrandsMirror(ctx context.Context, brands []model.Brand) (int, error) {
	return len(brands), nil
}

func (f *fakeStore) ProductsMirror(ctx context.Context, products []model.Product) (int, error) {
	return len(products), nil
}

func newTestService(f *fakeStore) Service {
	return NewService(config.Config{}, f, map[string]supplierclient.Client{}, metrics.NewRegistry())
}

func TestPlaceOrderErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		storeErr error
		wantErr  error
	}{
		{"no customer", store.ErrNoCustomer, ErrUnauthorized},
		{"missing product", store.ErrNoRows, ErrNotFound},
		{"out of stock", store.ErrOutOfStock, ErrOutOfStock},
		{"insufficient funds", store.ErrInsufficientFunds, ErrInsufficientFunds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := newTestService(&fakeStore{orderErr: tt.storeErr})
			_, err := service.PlaceOrder(context.Background(), "ada@example.com", 42)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestPlaceOrderSuccess(t *testing.T) {
	want := model.Order{ID: 1, CustomerID: 2, ProductID: 42}
	service := newTestService(&fakeStore{order: want})

	order, err := service.PlaceOrder(context.Background(), "ada@example.com", 42)
	require.NoError(t, err)
	require.Equal(t, want, order)
}

func TestPlaceOrderRequiresIdentity(t *testing.T) {
	service := newTestService(&fakeStore{})

	_, err := service.PlaceOrder(context.Background(), "", 42)
	require.ErrorIs(t, err, ErrInsufficientData)
}

func TestRegisterCustomerValidation(t *testing.T) {
	service := newTestService(&fakeStore{})

	_, err := service.RegisterCustomer(context.Background(), model.Customer{Name: "Ada"})
	require.ErrorIs(t, err, ErrInsufficientData)

	_, err = service.RegisterCustomer(context.Background(), model.Customer{Email: "ada@example.com"})
	require.ErrorIs(t, err, ErrInsufficientData)
}

func TestRegisterCustomerDuplicate(t *testing.T) {
	service := newTestService(&fakeStore{registerErr: store.ErrAlreadyExists})

	_, err := service.RegisterCustomer(context.Background(),
		model.Customer{Name: "Ada", Email: "ada@example.com"})
	require.ErrorIs(t, err, ErrAlreadyExists)
}

func TestAddFundRejectsNonPositive(t *testing.T) {
	f := &fakeStore{customer: model.Customer{ID: 2, Email: "ada@example.com"}}
	service := newTestService(f)

	err := service.AddFund(context.Background(), "ada@example.com", decimal.Zero)
	require.ErrorIs(t, err, ErrInsufficientData)

	err = service.AddFund(context.Background(), "ada@example.com", decimal.RequireFromString("-5"))
	require.ErrorIs(t, err, ErrInsufficientData)
	require.Empty(t, f.fundAdds)

	err = service.AddFund(context.Background(), "ada@example.com", decimal.RequireFromString("25.00"))
	require.NoError(t, err)
	require.Len(t, f.fundAdds, 1)
}

func TestStaffGateOnDispatch(t *testing.T) {
	service := newTestService(&fakeStore{staffErr: store.ErrNoRows})

	err := service.DispatchOrder(context.Background(), "nobody@example.com", 1)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestDispatchAlready(t *testing.T) {
	service := newTestService(&fakeStore{dispatchErr: store.ErrAlreadyDispatched})

	err := service.DispatchOrder(context.Background(), "staff@example.com", 1)
	require.ErrorIs(t, err, ErrAlreadyDispatched)
}

func TestUnknownProvider(t *testing.T) {
	service := newTestService(&fakeStore{})

	_, err := service.FetchSupplierOrder(context.Background(), "NoSuchShop", 1)
	require.ErrorIs(t, err, ErrUnknownProvider)

	_, err = service.MirrorProducts(context.Background(), "NoSuchShop")
	require.ErrorIs(t, err, ErrUnknownProvider)
}
