package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/avello/storefront/internal/allocation"
	"github.com/avello/storefront/internal/model"
	"github.com/avello/storefront/internal/store/config"
)

type Store interface {
	CustomerRegister(ctx context.Context, customer model.Customer) (int, error)
	CustomerGetByEmail(ctx context.Context, email string) (model.Customer, error)
	CustomerList(ctx context.Context) ([]model.Customer, error)
	CustomerToggleDeleteRequest(ctx context.Context, email string) (bool, error)
	CustomerAnonymize(ctx context.Context, customerID int) error
	FundAdd(ctx context.Context, customerID int, amount decimal.Decimal) error
	ProductGet(ctx context.Context, id int) (model.Product, error)
	ProductList(ctx context.Context) ([]model.Product, error)
	OrderPlace(ctx context.Context, email string, productID int) (model.Order, error)
	OrderListByCustomer(ctx context.Context, customerID int) ([]model.Order, error)
	OrderDispatch(ctx context.Context, orderID int) error
	StaffRegister(ctx context.Context, staff model.Staff) (int, error)
	StaffGetByEmail(ctx context.Context, email string) (model.Staff, error)
	CategoriesMirror(ctx context.Context, categories []model.Category) (int, error)
	BrandsMirror(ctx context.Context, brands []model.Brand) (int, error)
	ProductsMirror(ctx context.Context, products []model.Product) (int, error)
}

var (
	ErrNoRows            = errors.New("no rows")
	ErrNoCustomer        = errors.New("no matching customer")
	ErrAlreadyExists     = errors.New("already exists")
	ErrOutOfStock        = errors.New("out of stock")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAlreadyDispatched = errors.New("already dispatched")
	ErrAmountIncorrect   = errors.New("amount must be positive")
)

type store struct {
	database *sql.DB
}

func NewStore(cfg config.Config) (Store, error) {
	db, err := sql.Open("pgx", cfg.DBDsn)
	if err != nil {
		return nil, err
	}

	// Customer tables. Email uniqueness is enforced at registration,
	// not by constraint: anonymized customers all share one address.
	_, err = db.Exec(
		"CREATE TABLE IF NOT EXISTS customer (" +
			" id SERIAL PRIMARY KEY," +
			" name VARCHAR (100) NOT NULL," +
			" email VARCHAR (100) NOT NULL," +
			" request_delete BOOLEAN NOT NULL DEFAULT FALSE" +
			" );")
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(
		"CREATE TABLE IF NOT EXISTS address (" +
			" id SERIAL PRIMARY KEY," +
			" customer_id INTEGER NOT NULL UNIQUE REFERENCES customer (id)," +
			" street VARCHAR (200)," +
			" city VARCHAR (100)," +
			" state VARCHAR (100)," +
			" postal_code VARCHAR (20)," +
			" country VARCHAR (100)" +
			" );")
	if err != nil {
		return nil, err
	}

	// Funds are append-only top-ups; the balance is their sum and
	// orders drain them oldest first.
	_, err = db.Exec(
		"CREATE TABLE IF NOT EXISTS fund (" +
			" id SERIAL PRIMARY KEY," +
			" customer_id INTEGER NOT NULL REFERENCES customer (id)," +
			" amount NUMERIC (12, 2) NOT NULL CHECK (amount >= 0)" +
			" );")
	if err != nil {
		return nil, err
	}

	// Catalog tables keep the upstream-assigned ids as primary keys,
	// so no SERIAL here.
	_, err = db.Exec(
		"CREATE TABLE IF NOT EXISTS category (" +
			" id INTEGER PRIMARY KEY," +
			" name VARCHAR (100) NOT NULL" +
			" );")
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(
		"CREATE TABLE IF NOT EXISTS brand (" +
			" id INTEGER PRIMARY KEY," +
			" name VARCHAR (100) NOT NULL" +
			" );")
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(
		"CREATE TABLE IF NOT EXISTS product (" +
			" id INTEGER PRIMARY KEY," +
			" name VARCHAR (200) NOT NULL," +
			" description TEXT NOT NULL DEFAULT ''," +
			" price NUMERIC (12, 2) NOT NULL," +
			" stock INTEGER NOT NULL CHECK (stock >= 0)," +
			" category_id INTEGER REFERENCES category (id)," +
			" brand_id INTEGER REFERENCES brand (id)" +
			" );")
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(
		"CREATE TABLE IF NOT EXISTS customer_order (" +
			" id SERIAL PRIMARY KEY," +
			" customer_id INTEGER NOT NULL REFERENCES customer (id)," +
			" product_id INTEGER NOT NULL REFERENCES product (id)," +
			" order_date TIMESTAMP NOT NULL" +
			" );")
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(
		"CREATE TABLE IF NOT EXISTS staff (" +
			" id SERIAL PRIMARY KEY," +
			" name VARCHAR (100) NOT NULL," +
			" email VARCHAR (100) NOT NULL UNIQUE," +
			" role VARCHAR (50) NOT NULL DEFAULT ''" +
			" );")
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(
		"CREATE TABLE IF NOT EXISTS dispatch_record (" +
			" id SERIAL PRIMARY KEY," +
			" order_id INTEGER NOT NULL UNIQUE REFERENCES customer_order (id)," +
			" is_dispatched BOOLEAN NOT NULL DEFAULT FALSE," +
			" dispatched_at TIMESTAMP" +
			" );")
	if err != nil {
		return nil, err
	}

	return &store{database: db}, nil
}

func (store *store) CustomerRegister(ctx context.Context, customer model.Customer) (int, error) {
	tx, err := store.database.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var exists bool
	err = tx.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM customer WHERE email = $1)",
		customer.Email).Scan(&exists)
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, ErrAlreadyExists
	}

	var id int
	err = tx.QueryRowContext(ctx,
		"INSERT INTO customer (name, email)"+
			" VALUES ($1, $2)"+
			" RETURNING id",
		customer.Name,
		customer.Email).Scan(&id)
	if err != nil {
		return 0, err
	}

	if customer.Address != nil {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO address (customer_id, street, city, state, postal_code, country)"+
				" VALUES ($1, $2, $3, $4, $5, $6)",
			id,
			customer.Address.Street,
			customer.Address.City,
			customer.Address.State,
			customer.Address.PostalCode,
			customer.Address.Country)
		if err != nil {
			return 0, err
		}
	}

	return id, tx.Commit()
}

func (store *store) CustomerGetByEmail(ctx context.Context, email string) (model.Customer, error) {
	var customer model.Customer
	row := store.database.QueryRowContext(ctx,
		"SELECT id, name, email, request_delete FROM customer"+
			" WHERE email = $1",
		email)
	err := row.Scan(&customer.ID, &customer.Name, &customer.Email, &customer.RequestDelete)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.Customer{}, ErrNoCustomer
		}
		return model.Customer{}, err
	}

	var address model.Address
	row = store.database.QueryRowContext(ctx,
		"SELECT id, customer_id, street, city, state, postal_code, country FROM address"+
			" WHERE customer_id = $1",
		customer.ID)
	err = row.Scan(&address.ID, &address.CustomerID, &address.Street,
		&address.City, &address.State, &address.PostalCode, &address.Country)
	if err == nil {
		customer.Address = &address
	} else if err != sql.ErrNoRows {
		return model.Customer{}, err
	}

	customer.Funds, err = store.fundsByCustomer(ctx, customer.ID)
	if err != nil {
		return model.Customer{}, err
	}
	return customer, nil
}

func (store *store) fundsByCustomer(ctx context.Context, customerID int) ([]model.Fund, error) {
	rows, err := store.database.QueryContext(ctx,
		"SELECT id, customer_id, amount FROM fund"+
			" WHERE customer_id = $1"+
			" ORDER BY id",
		customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var funds []model.Fund
	for rows.Next() {
		var fund model.Fund
		if err := rows.Scan(&fund.ID, &fund.CustomerID, &fund.Amount); err != nil {
			return nil, err
		}
		funds = append(funds, fund)
	}
	return funds, rows.Err()
}

func (store *store) CustomerList(ctx context.Context) ([]model.Customer, error) {
	rows, err := store.database.QueryContext(ctx,
		"SELECT c.id, c.name, c.email, c.request_delete,"+
			" COALESCE(SUM(f.amount), 0)"+
			" FROM customer c"+
			" LEFT JOIN fund f ON f.customer_id = c.id"+
			" GROUP BY c.id"+
			" ORDER BY c.id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var customers []model.Customer
	for rows.Next() {
		var customer model.Customer
		var total decimal.Decimal
		err := rows.Scan(&customer.ID, &customer.Name, &customer.Email,
			&customer.RequestDelete, &total)
		if err != nil {
			return nil, err
		}
		if total.Sign() > 0 {
			customer.Funds = []model.Fund{{CustomerID: customer.ID, Amount: total}}
		}
		customers = append(customers, customer)
	}
	return customers, rows.Err()
}

func (store *store) CustomerToggleDeleteRequest(ctx context.Context, email string) (bool, error) {
	row := store.database.QueryRowContext(ctx,
		"UPDATE customer SET request_delete = NOT request_delete"+
			" WHERE email = $1"+
			" RETURNING request_delete",
		email)
	var requested bool
	err := row.Scan(&requested)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, ErrNoCustomer
		}
		return false, err
	}
	return requested, nil
}

func (store *store) CustomerAnonymize(ctx context.Context, customerID int) error {
	res, err := store.database.ExecContext(ctx,
		"UPDATE customer"+
			" SET name = 'Anonymous',"+
			"     email = 'anonymous@deleted.com',"+
			"     request_delete = FALSE"+
			" WHERE id = $1",
		customerID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNoRows
	}
	return nil
}

func (store *store) FundAdd(ctx context.Context, customerID int, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return ErrAmountIncorrect
	}
	_, err := store.database.ExecContext(ctx,
		"INSERT INTO fund (customer_id, amount)"+
			" VALUES ($1, $2)",
		customerID,
		amount)
	return err
}

func (store *store) ProductGet(ctx context.Context, id int) (model.Product, error) {
	row := store.database.QueryRowContext(ctx,
		"SELECT id, name, description, price, stock, COALESCE(category_id, 0), COALESCE(brand_id, 0)"+
			" FROM product"+
			" WHERE id = $1",
		id)
	var product model.Product
	err := row.Scan(&product.ID, &product.Name, &product.Description,
		&product.Price, &product.Stock, &product.CategoryID, &product.BrandID)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.Product{}, ErrNoRows
		}
		return model.Product{}, err
	}
	return product, nil
}

func (store *store) ProductList(ctx context.Context) ([]model.Product, error) {
	rows, err := store.database.QueryContext(ctx,
		"SELECT id, name, description, price, stock, COALESCE(category_id, 0), COALESCE(brand_id, 0)"+
			" FROM product"+
			" ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		var product model.Product
		err := rows.Scan(&product.ID, &product.Name, &product.Description,
			&product.Price, &product.Stock, &product.CategoryID, &product.BrandID)
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	return products, rows.Err()
}

// OrderPlace runs the whole placement as one transaction: customer and
// fund rows are locked, the product row is locked, stock then funds
// are checked, the allocation is applied and the order row written.
// Row locks keep two concurrent orders from driving stock or any fund
// negative. The catalog price is read, never written.
func (store *store) OrderPlace(ctx context.Context, email string, productID int) (model.Order, error) {
	tx, err := store.database.BeginTx(ctx, nil)
	if err != nil {
		return model.Order{}, err
	}
	defer tx.Rollback()

	var customerID int
	err = tx.QueryRowContext(ctx,
		"SELECT id FROM customer WHERE email = $1",
		email).Scan(&customerID)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.Order{}, ErrNoCustomer
		}
		return model.Order{}, err
	}

	rows, err := tx.QueryContext(ctx,
		"SELECT id, customer_id, amount FROM fund"+
			" WHERE customer_id = $1"+
			" ORDER BY id"+
			" FOR UPDATE",
		customerID)
	if err != nil {
		return model.Order{}, err
	}
	var funds []model.Fund
	for rows.Next() {
		var fund model.Fund
		if err := rows.Scan(&fund.ID, &fund.CustomerID, &fund.Amount); err != nil {
			rows.Close()
			return model.Order{}, err
		}
		funds = append(funds, fund)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return model.Order{}, err
	}
	rows.Close()

	var price decimal.Decimal
	var stock int
	err = tx.QueryRowContext(ctx,
		"SELECT price, stock FROM product"+
			" WHERE id = $1"+
			" FOR UPDATE",
		productID).Scan(&price, &stock)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.Order{}, ErrNoRows
		}
		return model.Order{}, err
	}

	if stock <= 0 {
		return model.Order{}, ErrOutOfStock
	}

	totalFunds := decimal.Zero
	for _, fund := range funds {
		totalFunds = totalFunds.Add(fund.Amount)
	}
	if totalFunds.LessThan(price) {
		return model.Order{}, ErrInsufficientFunds
	}

	updated, _ := allocation.Allocate(funds, price)
	for i, fund := range updated {
		if fund.Amount.Equal(funds[i].Amount) {
			continue
		}
		_, err = tx.ExecContext(ctx,
			"UPDATE fund SET amount = $1 WHERE id = $2",
			fund.Amount,
			fund.ID)
		if err != nil {
			return model.Order{}, err
		}
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE product SET stock = stock - 1 WHERE id = $1",
		productID)
	if err != nil {
		return model.Order{}, err
	}

	order := model.Order{
		CustomerID: customerID,
		ProductID:  productID,
		OrderDate:  time.Now().UTC(),
	}
	err = tx.QueryRowContext(ctx,
		"INSERT INTO customer_order (customer_id, product_id, order_date)"+
			" VALUES ($1, $2, $3)"+
			" RETURNING id",
		order.CustomerID,
		order.ProductID,
		order.OrderDate).Scan(&order.ID)
	if err != nil {
		return model.Order{}, err
	}

	return order, tx.Commit()
}

func (store *store) OrderListByCustomer(ctx context.Context, customerID int) ([]model.Order, error) {
	rows, err := store.database.QueryContext(ctx,
		"SELECT id, customer_id, product_id, order_date"+
			" FROM customer_order"+
			" WHERE customer_id = $1"+
			" ORDER BY order_date",
		customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		var order model.Order
		err := rows.Scan(&order.ID, &order.CustomerID, &order.ProductID, &order.OrderDate)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

func (store *store) OrderDispatch(ctx context.Context, orderID int) error {
	tx, err := store.database.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists bool
	err = tx.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM customer_order WHERE id = $1)",
		orderID).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNoRows
	}

	var dispatched bool
	err = tx.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM dispatch_record WHERE order_id = $1 AND is_dispatched)",
		orderID).Scan(&dispatched)
	if err != nil {
		return err
	}
	if dispatched {
		return ErrAlreadyDispatched
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO dispatch_record (order_id, is_dispatched, dispatched_at)"+
			" VALUES ($1, TRUE, $2)",
		orderID,
		time.Now().UTC())
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (store *store) StaffRegister(ctx context.Context, staff model.Staff) (int, error) {
	var id int
	err := store.database.QueryRowContext(ctx,
		"INSERT INTO staff (name, email, role)"+
			" VALUES ($1, $2, $3)"+
			" ON CONFLICT (email) DO NOTHING"+
			" RETURNING id",
		staff.Name,
		staff.Email,
		staff.Role).Scan(&id)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, ErrAlreadyExists
		}
		return 0, err
	}
	return id, nil
}

func (store *store) StaffGetByEmail(ctx context.Context, email string) (model.Staff, error) {
	row := store.database.QueryRowContext(ctx,
		"SELECT id, name, email, role FROM staff"+
			" WHERE email = $1",
		email)
	var staff model.Staff
	err := row.Scan(&staff.ID, &staff.Name, &staff.Email, &staff.Role)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.Staff{}, ErrNoRows
		}
		return model.Staff{}, err
	}
	return staff, nil
}

// Mirror upserts. One transaction per entity type; rows whose id is
// already present are left untouched, so upstream ids survive verbatim
// and re-running a sync changes nothing.

func (store *store) CategoriesMirror(ctx context.Context, categories []model.Category) (int, error) {
	tx, err := store.database.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	inserted := 0
	for _, category := range categories {
		res, err := tx.ExecContext(ctx,
			"INSERT INTO category (id, name)"+
				" VALUES ($1, $2)"+
				" ON CONFLICT (id) DO NOTHING",
			category.ID,
			category.Name)
		if err != nil {
			return 0, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		inserted += int(affected)
	}
	return inserted, tx.Commit()
}

func (store *store) BrandsMirror(ctx context.Context, brands []model.Brand) (int, error) {
	tx, err := store.database.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	inserted := 0
	for _, brand := range brands {
		res, err := tx.ExecContext(ctx,
			"INSERT INTO brand (id, name)"+
				" VALUES ($1, $2)"+
				" ON CONFLICT (id) DO NOTHING",
			brand.ID,
			brand.Name)
		if err != nil {
			return 0, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		inserted += int(affected)
	}
	return inserted, tx.Commit()
}

func (store *store) ProductsMirror(ctx context.Context, products []model.Product) (int, error) {
	tx, err := store.database.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	inserted := 0
	for _, product := range products {
		res, err := tx.ExecContext(ctx,
			"INSERT INTO product (id, name, description, price, stock, category_id, brand_id)"+
				" VALUES ($1, $2, $3, $4, $5, NULLIF($6, 0), NULLIF($7, 0))"+
				" ON CONFLICT (id) DO NOTHING",
			product.ID,
			product.Name,
			product.Description,
			product.Price,
			product.Stock,
			product.CategoryID,
			product.BrandID)
		if err != nil {
			return 0, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		inserted += int(affected)
	}
	return inserted, tx.Commit()
}
