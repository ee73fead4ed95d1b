package http

import (
	"net/http"

	"cassa/internal/core"
	"cassa/internal/log"
)

func (s *Server) handleGetCart(w http.ResponseWriter, r *http.Request) {
	items, err := s.svc.Cart.GetCart(r.Context())
	if err != nil {
		s.writeError(w, r, log.ComponentCart, log.OpList, err)
		return
	}
	if items == nil {
		items = []core.CartItem{}
	}
	writeJSON(w, items)
}

func (s *Server) handleCartSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.svc.Cart.GetCartSummary(r.Context())
	if err != nil {
		s.writeError(w, r, log.ComponentCart, log.OpRead, err)
		return
	}
	if summary.Items == nil {
		summary.Items = []core.CartItem{}
	}
	writeJSON(w, summary)
}

func (s *Server) handleAddToCart(w http.ResponseWriter, r *http.Request) {
	var req addToCartRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		s.writeError(w, r, log.ComponentCart, log.OpCreate, err)
		return
	}
	if req.ProductID < 1 {
		s.writeError(w, r, log.ComponentCart, log.OpCreate,
			&core.ValidationError{Field: "product_id", Message: "is required"})
		return
	}

	lineID, err := s.svc.Cart.AddToCart(r.Context(), req.ProductID, req.quantity())
	if err != nil {
		s.writeError(w, r, log.ComponentCart, log.OpCreate, err)
		return
	}
	s.mutated()

	log.FromContext(r.Context()).InfoContext(r.Context(), "Added to cart",
		log.FieldProductID, req.ProductID,
		log.FieldCartLineID, lineID)

	NewJSONResponse().
		Status(http.StatusCreated).
		Success("Item added to cart").
		Field("cart_item_id", lineID).
		Write(w)
}

func (s *Server) handleUpdateCartLine(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		s.writeError(w, r, log.ComponentCart, log.OpUpdate, err)
		return
	}
	var req updateCartLineRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		s.writeError(w, r, log.ComponentCart, log.OpUpdate, err)
		return
	}

	if err := s.svc.Cart.UpdateCartLine(r.Context(), id, req.Quantity); err != nil {
		s.writeError(w, r, log.ComponentCart, log.OpUpdate, err)
		return
	}
	s.mutated()

	NewJSONResponse().
		Success("Cart item updated").
		Field("cart_item_id", id).
		Write(w)
}

func (s *Server) handleRemoveFromCart(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		s.writeError(w, r, log.ComponentCart, log.OpDelete, err)
		return
	}
	if err := s.svc.Cart.RemoveFromCart(r.Context(), id); err != nil {
		s.writeError(w, r, log.ComponentCart, log.OpDelete, err)
		return
	}
	s.mutated()

	NewJSONResponse().
		Success("Item removed from cart").
		Field("cart_item_id", id).
		Write(w)
}

func (s *Server) handleClearCart(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Cart.ClearCart(r.Context()); err != nil {
		s.writeError(w, r, log.ComponentCart, log.OpDelete, err)
		return
	}
	s.mutated()

	NewJSONResponse().
		Success("Cart cleared").
		Write(w)
}

// handleCheckout settles the cart into a transaction.
func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	receipt, err := s.svc.Cart.Checkout(r.Context())
	if err != nil {
		s.writeError(w, r, log.ComponentCart, log.OpCheckout, err)
		return
	}
	s.mutated()
	s.appMetrics.checkouts.Add(1)
	s.events.LogCheckout(r.Context(), receipt)

	NewJSONResponse().
		Success("Checkout completed successfully").
		Field("transaction_id", receipt.TransactionID).
		Field("total_amount", receipt.TotalAmount).
		Field("items_count", receipt.ItemCount).
		Field("total_quantity", receipt.TotalQuantity).
		Write(w)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	limit, err := parseIntQuery(r, "limit", 20)
	if err != nil {
		s.writeError(w, r, log.ComponentCart, log.OpList, err)
		return
	}
	txs, err := s.svc.Cart.Transactions(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, log.ComponentCart, log.OpList, err)
		return
	}
	if txs == nil {
		txs = []core.Transaction{}
	}
	writeJSON(w, txs)
}
