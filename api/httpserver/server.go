// Package httpserver adapts OrderService to REST.
package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"matchbook/domain/book"
	"matchbook/service"
)

type Server struct {
	svc    *service.OrderService
	router *mux.Router
}

func NewServer(svc *service.OrderService) *Server {
	s := &Server{
		svc:    svc,
		router: mux.NewRouter(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) registerRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/orders", s.handlePlaceOrder).Methods("POST")
	api.HandleFunc("/orders/{order_id}", s.handleUpdateOrder).Methods("PUT")
	api.HandleFunc("/owners/{owner}/orders", s.handleOwnerExit).Methods("DELETE")
	api.HandleFunc("/book", s.handleSnapshot).Methods("GET")

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// -------------------- Commands --------------------

type placeOrderRequest struct {
	Owner    string          `json:"owner"`
	Security string          `json:"security"`
	Side     string          `json:"side"`
	Quantity int64           `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

type fillResponse struct {
	Security    string          `json:"security"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int64           `json:"quantity"`
	BuyOrderID  uint64          `json:"buy_order_id"`
	SellOrderID uint64          `json:"sell_order_id"`
}

type placeOrderResponse struct {
	OrderID   uint64          `json:"order_id"`
	Notional  decimal.Decimal `json:"notional"`
	Remaining int64           `json:"remaining"`
	Rested    bool            `json:"rested"`
	Fills     []fillResponse  `json:"fills"`
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.Owner == "" || req.Security == "" {
		respondError(w, http.StatusBadRequest, "owner and security are required")
		return
	}
	side, err := parseSide(req.Side)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.svc.PlaceOrder(r.Context(), req.Owner, req.Security, side, req.Quantity, req.Price)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	resp := placeOrderResponse{
		OrderID:   res.OrderID,
		Notional:  res.Notional,
		Remaining: res.Remaining,
		Rested:    res.Rested,
		Fills:     make([]fillResponse, 0, len(res.Fills)),
	}
	for _, f := range res.Fills {
		resp.Fills = append(resp.Fills, fillResponse{
			Security:    f.Security,
			Price:       f.Price,
			Quantity:    f.Quantity,
			BuyOrderID:  f.BuyOrderID,
			SellOrderID: f.SellOrderID,
		})
	}

	status := http.StatusCreated
	if len(resp.Fills) > 0 {
		status = http.StatusOK
	}
	respondJSON(w, status, resp)
}

type updateOrderRequest struct {
	Owner    string          `json:"owner"`
	Security string          `json:"security"`
	Quantity int64           `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

func (s *Server) handleUpdateOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.ParseUint(mux.Vars(r)["order_id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "order_id must be numeric")
		return
	}

	var req updateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.Security == "" {
		respondError(w, http.StatusBadRequest, "security is required")
		return
	}

	if err := s.svc.UpdateOrder(r.Context(), req.Owner, orderID, req.Security, req.Quantity, req.Price); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"order_id": orderID, "updated": true})
}

func (s *Server) handleOwnerExit(w http.ResponseWriter, r *http.Request) {
	s.svc.OwnerExit(mux.Vars(r)["owner"])
	w.WriteHeader(http.StatusNoContent)
}

// -------------------- Queries --------------------

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	views := s.svc.Snapshot()
	respondJSON(w, http.StatusOK, map[string]any{
		"orders": views,
		"count":  len(views),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	state := "closed"
	if s.svc.SessionOpen() {
		state = "open"
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "session": state})
}

// -------------------- Helpers --------------------

func parseSide(s string) (book.Side, error) {
	switch s {
	case "buy", "BUY":
		return book.Buy, nil
	case "sell", "SELL":
		return book.Sell, nil
	default:
		return 0, errors.New("side must be buy or sell")
	}
}

func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, book.ErrInvalidOrder):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, book.ErrSelfTrade):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, book.ErrOrderNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrSessionClosed):
		respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
