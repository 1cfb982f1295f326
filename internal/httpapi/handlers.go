package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vladislavdragonenkov/cartsync/internal/cartwire"
	"github.com/vladislavdragonenkov/cartsync/internal/domain"
)

func (s *Server) getCart(w http.ResponseWriter, r *http.Request) {
	cart, err := s.store.Get(r.Context(), ownerFromContext(r.Context()))
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeCart(w, cart)
}

func (s *Server) addItem(w http.ResponseWriter, r *http.Request) {
	var req cartwire.AddItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ProductID == "" {
		writeError(w, http.StatusBadRequest, "productId is required")
		return
	}
	if req.Quantity <= 0 {
		writeError(w, http.StatusBadRequest, domain.ErrInvalidQuantity.Error())
		return
	}
	expected, ok := expectedRevision(w, r)
	if !ok {
		return
	}

	product, err := s.catalog.Product(r.Context(), req.ProductID)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	owner := ownerFromContext(r.Context())
	cart, err := s.store.AddItem(r.Context(), owner, product, req.Quantity, expected)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.publishChange(r, domain.OperationAdd, req.ProductID, req.Quantity, cart)
	writeCart(w, cart)
}

func (s *Server) updateItem(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productId")

	var req cartwire.UpdateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Quantity <= 0 {
		writeError(w, http.StatusBadRequest, domain.ErrInvalidQuantity.Error())
		return
	}
	expected, ok := expectedRevision(w, r)
	if !ok {
		return
	}

	owner := ownerFromContext(r.Context())
	cart, err := s.store.SetQuantity(r.Context(), owner, productID, req.Quantity, expected)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.publishChange(r, domain.OperationUpdate, productID, req.Quantity, cart)
	writeCart(w, cart)
}

func (s *Server) removeItem(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productId")
	expected, ok := expectedRevision(w, r)
	if !ok {
		return
	}

	owner := ownerFromContext(r.Context())
	cart, err := s.store.RemoveItem(r.Context(), owner, productID, expected)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.publishChange(r, domain.OperationRemove, productID, 0, cart)
	writeCart(w, cart)
}

func (s *Server) clearCart(w http.ResponseWriter, r *http.Request) {
	expected, ok := expectedRevision(w, r)
	if !ok {
		return
	}

	owner := ownerFromContext(r.Context())
	cart, err := s.store.Clear(r.Context(), owner, expected)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.publishChange(r, domain.OperationClear, "", 0, cart)
	writeCart(w, cart)
}

func expectedRevision(w http.ResponseWriter, r *http.Request) (int64, bool) {
	revision, err := cartwire.ParseRevision(r.Header.Get(cartwire.HeaderIfMatch))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return 0, false
	}
	return revision, true
}

func (s *Server) publishChange(r *http.Request, kind domain.OperationKind, productID string, quantity int32, cart domain.Cart) {
	if s.changes == nil {
		return
	}
	change := domain.CartChange{
		OwnerID:   ownerFromContext(r.Context()),
		Operation: kind,
		ProductID: productID,
		Quantity:  quantity,
		Revision:  cart.Revision,
		At:        s.now(),
	}
	if err := s.changes.PublishCartChange(change); err != nil {
		s.logger.WithError(err).WithField("owner_id", change.OwnerID).Warn("failed to publish cart change")
	}
}

func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, "cart revision is stale")
	case errors.Is(err, domain.ErrProductNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidQuantity):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.WithError(err).WithField("request_id", middleware.GetReqID(r.Context())).Error("cart store request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeCart(w http.ResponseWriter, cart domain.Cart) {
	w.Header().Set(cartwire.HeaderETag, cartwire.FormatRevision(cart.Revision))
	writeJSON(w, http.StatusOK, cartwire.FromDomain(cart))
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, cartwire.ErrorResponse{Error: message})
}
