package store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/avello/storefront/internal/model"
	"github.com/avello/storefront/internal/store/config"
)

// These tests need a real database.
func newTestStore(t *testing.T) Store {
	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		t.Skip("DATABASE_DSN not set")
	}
	store, err := NewStore(config.Config{DBDsn: dsn})
	require.NoError(t, err)
	return store
}

func uniqueEmail(prefix string) string {
	return fmt.Sprintf("%s+%d@example.com", prefix, time.Now().UnixNano())
}

func uniqueID() int {
	return int(time.Now().UnixNano() % 1_000_000_000)
}

func registerCustomer(t *testing.T, store Store, email string) int {
	id, err := store.CustomerRegister(context.Background(), model.Customer{
		Name:  "Test Customer",
		Email: email,
	})
	require.NoError(t, err)
	return id
}

func mirrorProduct(t *testing.T, store Store, id int, price string, stock int) {
	ctx := context.Background()
	inserted, err := store.ProductsMirror(ctx, []model.Product{{
		ID:    id,
		Name:  "Test Product",
		Price: decimal.RequireFromString(price),
		Stock: stock,
	}})
	require.NoError(t, err)
	require.Equal(t, 1, inserted)
}

func TestCustomerRegisterAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	email := uniqueEmail("register")

	id := registerCustomer(t, store, email)

	customer, err := store.CustomerGetByEmail(ctx, email)
	require.NoError(t, err)
	require.Equal(t, id, customer.ID)
	require.False(t, customer.RequestDelete)

	_, err = store.CustomerRegister(ctx, model.Customer{Name: "Dup", Email: email})
	require.ErrorIs(t, err, ErrAlreadyExists)
}

func TestOrderPlaceAllocatesAcrossFunds(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	email := uniqueEmail("order")
	productID := uniqueID()

	customerID := registerCustomer(t, store, email)
	require.NoError(t, store.FundAdd(ctx, customerID, decimal.RequireFromString("5.00")))
	require.NoError(t, store.FundAdd(ctx, customerID, decimal.RequireFromString("8.00")))
	mirrorProduct(t, store, productID, "10.00", 3)

	order, err := store.OrderPlace(ctx, email, productID)
	require.NoError(t, err)
	require.Equal(t, customerID, order.CustomerID)
	require.Equal(t, productID, order.ProductID)
	require.NotZero(t, order.ID)

	// first fund drained, second partially spent
	customer, err := store.CustomerGetByEmail(ctx, email)
	require.NoError(t, err)
	require.Len(t, customer.Funds, 2)
	require.True(t, customer.Funds[0].Amount.IsZero())
	require.True(t, customer.Funds[1].Amount.Equal(decimal.RequireFromString("3.00")))

	// stock down one, catalog price untouched
	product, err := store.ProductGet(ctx, productID)
	require.NoError(t, err)
	require.Equal(t, 2, product.Stock)
	require.True(t, product.Price.Equal(decimal.RequireFromString("10.00")))

	orders, err := store.OrderListByCustomer(ctx, customerID)
	require.NoError(t, err)
	require.Len(t, orders, 1)
}

func TestOrderPlaceInsufficientFunds(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	email := uniqueEmail("poor")
	productID := uniqueID()

	customerID := registerCustomer(t, store, email)
	require.NoError(t, store.FundAdd(ctx, customerID, decimal.RequireFromString("3.00")))
	mirrorProduct(t, store, productID, "10.00", 3)

	_, err := store.OrderPlace(ctx, email, productID)
	require.ErrorIs(t, err, ErrInsufficientFunds)

	// nothing moved
	customer, err := store.CustomerGetByEmail(ctx, email)
	require.NoError(t, err)
	require.True(t, customer.TotalFunds().Equal(decimal.RequireFromString("3.00")))

	product, err := store.ProductGet(ctx, productID)
	require.NoError(t, err)
	require.Equal(t, 3, product.Stock)

	orders, err := store.OrderListByCustomer(ctx, customerID)
	require.NoError(t, err)
	require.Empty(t, orders)
}

func TestOrderPlaceOutOfStockBeforeFundsCheck(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	email := uniqueEmail("late")
	productID := uniqueID()

	// no funds at all: out-of-stock must still win
	registerCustomer(t, store, email)
	mirrorProduct(t, store, productID, "10.00", 0)

	_, err := store.OrderPlace(ctx, email, productID)
	require.ErrorIs(t, err, ErrOutOfStock)
}

func TestOrderPlaceUnknownCustomerAndProduct(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.OrderPlace(ctx, uniqueEmail("ghost"), 1)
	require.ErrorIs(t, err, ErrNoCustomer)

	email := uniqueEmail("real")
	registerCustomer(t, store, email)
	_, err = store.OrderPlace(ctx, email, uniqueID())
	require.ErrorIs(t, err, ErrNoRows)
}

func TestMirrorIsInsertOnlyAndIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	categoryID := uniqueID()

	inserted, err := store.CategoriesMirror(ctx, []model.Category{{ID: categoryID, Name: "Gadgets"}})
	require.NoError(t, err)
	require.Equal(t, 1, inserted)

	// same id again, different name: no insert, no overwrite
	inserted, err = store.CategoriesMirror(ctx, []model.Category{{ID: categoryID, Name: "Renamed"}})
	require.NoError(t, err)
	require.Equal(t, 0, inserted)
}

func TestDispatchOrderOnce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	email := uniqueEmail("dispatch")
	productID := uniqueID()

	customerID := registerCustomer(t, store, email)
	require.NoError(t, store.FundAdd(ctx, customerID, decimal.RequireFromString("10.00")))
	mirrorProduct(t, store, productID, "10.00", 1)

	order, err := store.OrderPlace(ctx, email, productID)
	require.NoError(t, err)

	require.NoError(t, store.OrderDispatch(ctx, order.ID))
	require.ErrorIs(t, store.OrderDispatch(ctx, order.ID), ErrAlreadyDispatched)
	require.ErrorIs(t, store.OrderDispatch(ctx, -1), ErrNoRows)
}

func TestCustomerAnonymize(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	email := uniqueEmail("anon")

	customerID := registerCustomer(t, store, email)

	requested, err := store.CustomerToggleDeleteRequest(ctx, email)
	require.NoError(t, err)
	require.True(t, requested)

	require.NoError(t, store.CustomerAnonymize(ctx, customerID))

	_, err = store.CustomerGetByEmail(ctx, email)
	require.ErrorIs(t, err, ErrNoCustomer)
}
