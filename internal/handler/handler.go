package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/avello/storefront/internal/auth"
	"github.com/avello/storefront/internal/gzip"
	"github.com/avello/storefront/internal/handler/config"
	"github.com/avello/storefront/internal/logger"
	"github.com/avello/storefront/internal/metrics"
	"github.com/avello/storefront/internal/model"
	"github.com/avello/storefront/internal/service"
)

func Serve(ctx context.Context, cfg config.Config, auth auth.Auth, service service.Service, metrics *metrics.Registry, zaplog *zap.Logger) error {
	h := newHandler(auth, service, metrics, zaplog)
	router := h.newRouter()

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type handler struct {
	auth    auth.Auth
	service service.Service
	metrics *metrics.Registry
	zaplog  *zap.Logger
}

func newHandler(auth auth.Auth, service service.Service, metrics *metrics.Registry, zaplog *zap.Logger) *handler {
	return &handler{
		auth:    auth,
		service: service,
		metrics: metrics,
		zaplog:  zaplog,
	}
}

func (h *handler) newRouter() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/customers", h.mdlw(h.PostCustomer))
	mux.HandleFunc("GET /api/customers/profile", h.mdlwAuth(h.GetProfile))
	mux.HandleFunc("POST /api/customers/funds", h.mdlwAuth(h.PostFund))
	mux.HandleFunc("POST /api/customers/request-delete", h.mdlwAuth(h.PostRequestDelete))
	mux.HandleFunc("GET /api/products", h.mdlw(h.GetProducts))
	mux.HandleFunc("GET /api/orders", h.mdlwAuth(h.GetOrders))
	mux.HandleFunc("POST /api/orders", h.mdlwAuth(h.PostOrder))

	mux.HandleFunc("POST /api/staff", h.mdlwAuth(h.PostStaff))
	mux.HandleFunc("GET /api/staff/customers", h.mdlwAuth(h.GetStaffCustomers))
	mux.HandleFunc("POST /api/staff/orders/{id}/dispatch", h.mdlwAuth(h.PostDispatchOrder))
	mux.HandleFunc("POST /api/staff/customers/{id}/anonymize", h.mdlwAuth(h.PostAnonymizeCustomer))

	mux.HandleFunc("GET /api/Products/{provider}/Orders/{id}", h.mdlw(h.GetSupplierOrder))
	mux.HandleFunc("POST /api/Products/{provider}/Orders", h.mdlw(h.PostSupplierOrder))
	mux.HandleFunc("DELETE /api/Products/{provider}/Orders/{id}", h.mdlw(h.DeleteSupplierOrder))
	mux.HandleFunc("GET /api/Products/{provider}/FetchProducts", h.mdlw(h.FetchSupplierProducts))
	mux.HandleFunc("GET /api/Products/{provider}/FetchCategories", h.mdlw(h.FetchSupplierCategories))
	mux.HandleFunc("GET /api/Products/{provider}/FetchBrands", h.mdlw(h.FetchSupplierBrands))

	mux.Handle("GET /metrics", h.metrics.Handler())

	return mux
}

func (h *handler) mdlw(next http.HandlerFunc) http.HandlerFunc {
	return gzip.GzipMiddleware(logger.RequestLogMdlw(next, h.zaplog))
}

func (h *handler) mdlwAuth(next http.HandlerFunc) http.HandlerFunc {
	return gzip.GzipMiddleware(logger.RequestLogMdlw(h.auth.Middleware(next), h.zaplog))
}

func (h *handler) errStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrInsufficientData):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrUnknownProvider):
		return http.StatusNotFound
	case errors.Is(err, service.ErrAlreadyExists),
		errors.Is(err, service.ErrOutOfStock),
		errors.Is(err, service.ErrAlreadyDispatched):
		return http.StatusConflict
	case errors.Is(err, service.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, body any) {
	responseJSON, err := json.Marshal(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(responseJSON)
}

// MessageJSONResponse is the facade envelope.
type MessageJSONResponse struct {
	Message string `json:"Message"`
}

func (h *handler) writeMessage(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, MessageJSONResponse{Message: message})
}

// Customer endpoints

type AddressJSON struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

type PostCustomerJSONRequest struct {
	Name    string       `json:"name"`
	Email   string       `json:"email"`
	Address *AddressJSON `json:"address,omitempty"`
}

func (h *handler) PostCustomer(w http.ResponseWriter, r *http.Request) {
	var customerJSON PostCustomerJSONRequest
	if err := json.NewDecoder(r.Body).Decode(&customerJSON); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	customer := model.Customer{
		Name:  customerJSON.Name,
		Email: customerJSON.Email,
	}
	if customerJSON.Address != nil {
		customer.Address = &model.Address{
			Street:     customerJSON.Address.Street,
			City:       customerJSON.Address.City,
			State:      customerJSON.Address.State,
			PostalCode: customerJSON.Address.PostalCode,
			Country:    customerJSON.Address.Country,
		}
	}

	id, err := h.service.RegisterCustomer(r.Context(), customer)
	if err != nil {
		http.Error(w, err.Error(), h.errStatus(err))
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]int{"id": id})
}

type GetProfileJSONResponse struct {
	ID            int          `json:"id"`
	Name          string       `json:"name"`
	Email         string       `json:"email"`
	TotalFunds    float64      `json:"total_funds"`
	RequestDelete bool         `json:"request_delete"`
	Address       *AddressJSON `json:"address,omitempty"`
}

func (h *handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	email := r.Header.Get(auth.HeaderEmailKey)

	customer, err := h.service.GetProfile(r.Context(), email)
	if err != nil {
		http.Error(w, err.Error(), h.errStatus(err))
		return
	}

	profileJSON := GetProfileJSONResponse{
		ID:            customer.ID,
		Name:          customer.Name,
		Email:         customer.Email,
		TotalFunds:    h.moneyOutput(customer.TotalFunds()),
		RequestDelete: customer.RequestDelete,
	}
	if customer.Address != nil {
		profileJSON.Address = &AddressJSON{
			Street:     customer.Address.Street,
			City:       customer.Address.City,
			State:      customer.Address.State,
			PostalCode: customer.Address.PostalCode,
			Country:    customer.Address.Country,
		}
	}
	h.writeJSON(w, http.StatusOK, profileJSON)
}

type PostFundJSONRequest struct {
	Amount float64 `json:"amount"`
}

func (h *handler) PostFund(w http.ResponseWriter, r *http.Request) {
	var fundJSON PostFundJSONRequest
	if err := json.NewDecoder(r.Body).Decode(&fundJSON); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	email := r.Header.Get(auth.HeaderEmailKey)
	err := h.service.AddFund(r.Context(), email, h.moneyInput(fundJSON.Amount))
	if err != nil {
		http.Error(w, err.Error(), h.errStatus(err))
		return
	}
	w.WriteHeader(http.StatusOK)
}

type RequestDeleteJSONResponse struct {
	RequestDelete bool `json:"request_delete"`
}

func (h *handler) PostRequestDelete(w http.ResponseWriter, r *http.Request) {
	email := r.Header.Get(auth.HeaderEmailKey)

	requested, err := h.service.ToggleDeleteRequest(r.Context(), email)
	if err != nil {
		http.Error(w, err.Error(), h.errStatus(err))
		return
	}
	h.writeJSON(w, http.StatusOK, RequestDeleteJSONResponse{RequestDelete: requested})
}

type ProductJSONResponse struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Stock       int     `json:"stock"`
	CategoryID  int     `json:"category_id"`
	BrandID     int     `json:"brand_id"`
}

func (h *handler) GetProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.GetProducts(r.Context())
	if err != nil {
		http.Error(w, err.Error(), h.errStatus(err))
		return
	}
	if len(products) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	productsJSON := make([]ProductJSONResponse, 0, len(products))
	for _, product := range products {
		productsJSON = append(productsJSON, ProductJSONResponse{
			ID:          product.ID,
			Name:        product.Name,
			Description: product.Description,
			Price:       h.moneyOutput(product.Price),
			Stock:       product.Stock,
			CategoryID:  product.CategoryID,
			BrandID:     product.BrandID,
		})
	}
	h.writeJSON(w, http.StatusOK, productsJSON)
}

type PostOrderJSONRequest struct {
	ProductID int `json:"product_id"`
}

type OrderJSONResponse struct {
	ID        int       `json:"id"`
	ProductID int       `json:"product_id"`
	OrderDate time.Time `json:"order_date"`
}

func (h *handler) PostOrder(w http.ResponseWriter, r *http.Request) {
	var orderJSON PostOrderJSONRequest
	if err := json.NewDecoder(r.Body).Decode(&orderJSON); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	email := r.Header.Get(auth.HeaderEmailKey)
	order, err := h.service.PlaceOrder(r.Context(), email, orderJSON.ProductID)
	if err != nil {
		http.Error(w, err.Error(), h.errStatus(err))
		return
	}
	h.writeJSON(w, http.StatusCreated, OrderJSONResponse{
		ID:        order.ID,
		ProductID: order.ProductID,
		OrderDate: order.OrderDate,
	})
}

func (h *handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	email := r.Header.Get(auth.HeaderEmailKey)

	orders, err := h.service.GetOrders(r.Context(), email)
	if err != nil {
		http.Error(w, err.Error(), h.errStatus(err))
		return
	}
	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	ordersJSON := make([]OrderJSONResponse, 0, len(orders))
	for _, order := range orders {
		ordersJSON = append(ordersJSON, OrderJSONResponse{
			ID:        order.ID,
			ProductID: order.ProductID,
			OrderDate: order.OrderDate,
		})
	}
	h.writeJSON(w, http.StatusOK, ordersJSON)
}

// Staff endpoints

type PostStaffJSONRequest struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

// PostStaff registers the authenticated identity as staff. The email
// comes from the identity claims, never the body.
func (h *handler) PostStaff(w http.ResponseWriter, r *http.Request) {
	var staffJSON PostStaffJSONRequest
	if err := json.NewDecoder(r.Body).Decode(&staffJSON); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	staff := model.Staff{
		Name:  staffJSON.Name,
		Email: r.Header.Get(auth.HeaderEmailKey),
		Role:  staffJSON.Role,
	}
	id, err := h.service.RegisterStaff(r.Context(), staff)
	if err != nil {
		http.Error(w, err.Error(), h.errStatus(err))
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]int{"id": id})
}

type StaffCustomerJSONResponse struct {
	ID            int     `json:"id"`
	Name          string  `json:"name"`
	Email         string  `json:"email"`
	TotalFunds    float64 `json:"total_funds"`
	RequestDelete bool    `json:"request_delete"`
}

func (h *handler) GetStaffCustomers(w http.ResponseWriter, r *http.Request) {
	staffEmail := r.Header.Get(auth.HeaderEmailKey)

	customers, err := h.service.ListCustomers(r.Context(), staffEmail)
	if err != nil {
		http.Error(w, err.Error(), h.errStatus(err))
		return
	}

	customersJSON := make([]StaffCustomerJSONResponse, 0, len(customers))
	for _, customer := range customers {
		customersJSON = append(customersJSON, StaffCustomerJSONResponse{
			ID:            customer.ID,
			Name:          customer.Name,
			Email:         customer.Email,
			TotalFunds:    h.moneyOutput(customer.TotalFunds()),
			RequestDelete: customer.RequestDelete,
		})
	}
	h.writeJSON(w, http.StatusOK, customersJSON)
}

func (h *handler) PostDispatchOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	staffEmail := r.Header.Get(auth.HeaderEmailKey)
	if err := h.service.DispatchOrder(r.Context(), staffEmail, orderID); err != nil {
		http.Error(w, err.Error(), h.errStatus(err))
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *handler) PostAnonymizeCustomer(w http.ResponseWriter, r *http.Request) {
	customerID, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	staffEmail := r.Header.Get(auth.HeaderEmailKey)
	if err := h.service.AnonymizeCustomer(r.Context(), staffEmail, customerID); err != nil {
		http.Error(w, err.Error(), h.errStatus(err))
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Supplier facade endpoints

type SupplierOrderJSON struct {
	ID        int       `json:"id"`
	ProductID int       `json:"productId"`
	OrderDate time.Time `json:"orderDate"`
}

func (h *handler) GetSupplierOrder(w http.ResponseWriter, r *http.Request) {
	provider := r.PathValue("provider")
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	order, err := h.service.FetchSupplierOrder(r.Context(), provider, id)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			h.writeMessage(w, http.StatusNotFound, fmt.Sprintf("Order not found in %s.", provider))
			return
		}
		h.writeMessage(w, h.errStatus(err), fmt.Sprintf("Failed to fetch order from %s.", provider))
		return
	}
	h.writeJSON(w, http.StatusOK, SupplierOrderJSON{
		ID:        order.ID,
		ProductID: order.ProductID,
		OrderDate: order.OrderDate,
	})
}

func (h *handler) PostSupplierOrder(w http.ResponseWriter, r *http.Request) {
	provider := r.PathValue("provider")

	var orderJSON SupplierOrderJSON
	if err := json.NewDecoder(r.Body).Decode(&orderJSON); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	order := model.SupplierOrder{
		ID:        orderJSON.ID,
		ProductID: orderJSON.ProductID,
		OrderDate: orderJSON.OrderDate,
	}
	if err := h.service.CreateSupplierOrder(r.Context(), provider, order); err != nil {
		h.writeMessage(w, h.errStatus(err), fmt.Sprintf("Failed to create order in %s.", provider))
		return
	}
	h.writeMessage(w, http.StatusOK, fmt.Sprintf("Order created successfully in %s.", provider))
}

func (h *handler) DeleteSupplierOrder(w http.ResponseWriter, r *http.Request) {
	provider := r.PathValue("provider")
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.service.DeleteSupplierOrder(r.Context(), provider, id); err != nil {
		h.writeMessage(w, h.errStatus(err), fmt.Sprintf("Failed to delete order from %s.", provider))
		return
	}
	h.writeMessage(w, http.StatusOK, fmt.Sprintf("Order deleted successfully from %s.", provider))
}

func (h *handler) FetchSupplierProducts(w http.ResponseWriter, r *http.Request) {
	provider := r.PathValue("provider")
	if _, err := h.service.MirrorProducts(r.Context(), provider); err != nil {
		h.writeMessage(w, h.errStatus(err), fmt.Sprintf("Failed to fetch products from %s.", provider))
		return
	}
	h.writeMessage(w, http.StatusOK, fmt.Sprintf("Products fetched and saved from %s successfully.", provider))
}

func (h *handler) FetchSupplierCategories(w http.ResponseWriter, r *http.Request) {
	provider := r.PathValue("provider")
	if _, err := h.service.MirrorCategories(r.Context(), provider); err != nil {
		h.writeMessage(w, h.errStatus(err), fmt.Sprintf("Failed to fetch categories from %s.", provider))
		return
	}
	h.writeMessage(w, http.StatusOK, fmt.Sprintf("Categories fetched and saved from %s successfully.", provider))
}

func (h *handler) FetchSupplierBrands(w http.ResponseWriter, r *http.Request) {
	provider := r.PathValue("provider")
	if _, err := h.service.MirrorBrands(r.Context(), provider); err != nil {
		h.writeMessage(w, h.errStatus(err), fmt.Sprintf("Failed to fetch brands from %s.", provider))
		return
	}
	h.writeMessage(w, http.StatusOK, fmt.Sprintf("Brands fetched and saved from %s successfully.", provider))
}

// Money crosses the JSON boundary as a plain number; the decimal type
// stays inside.
func (h *handler) moneyOutput(amount decimal.Decimal) float64 {
	return amount.InexactFloat64()
}

func (h *handler) moneyInput(amount float64) decimal.Decimal {
	return decimal.NewFromFloat(amount).Round(2)
}
