package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Customers and their money

type Customer struct {
	ID            int
	Name          string
	Email         string
	RequestDelete bool
	Address       *Address
	Funds         []Fund
}

type Address struct {
	ID         int
	CustomerID int
	Street     string
	City       string
	State      string
	PostalCode string
	Country    string
}

// Fund is a single top-up. A customer's balance is the sum over all
// their funds; orders drain them in the order they were loaded.
type Fund struct {
	ID         int
	CustomerID int
	Amount     decimal.Decimal
}

// TotalFunds sums the customer's fund amounts.
func (c Customer) TotalFunds() decimal.Decimal {
	total := decimal.Zero
	for _, f := range c.Funds {
		total = total.Add(f.Amount)
	}
	return total
}

// Catalog entities. Ids are assigned by the upstream supplier and kept
// verbatim when mirrored locally.

type Category struct {
	ID   int
	Name string
}

type Brand struct {
	ID   int
	Name string
}

type Product struct {
	ID          int
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
	CategoryID  int
	BrandID     int
}

// Orders

type Order struct {
	ID         int
	CustomerID int
	ProductID  int
	OrderDate  time.Time
}

// SupplierOrder is the order shape of the upstream supplier APIs.
type SupplierOrder struct {
	ID        int
	ProductID int
	OrderDate time.Time
}

// Staff side

type Staff struct {
	ID    int
	Name  string
	Email string
	Role  string
}

type DispatchRecord struct {
	ID           int
	OrderID      int
	IsDispatched bool
	DispatchedAt *time.Time
}
