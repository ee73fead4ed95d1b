package http

import (
	"net/http"
	"strings"

	"cassa/internal/core"
	"cassa/internal/log"
)

// handleListProducts lists the inventory, filtered by ?category= or
// searched with ?q=.
func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var (
		products []core.Product
		err      error
	)
	if term := strings.TrimSpace(q.Get("q")); term != "" {
		products, err = s.svc.Inventory.SearchProducts(r.Context(), term)
	} else {
		products, err = s.svc.Inventory.ListProducts(r.Context(), strings.TrimSpace(q.Get("category")))
	}
	if err != nil {
		s.writeError(w, r, log.ComponentInventory, log.OpList, err)
		return
	}
	if products == nil {
		products = []core.Product{}
	}
	writeJSON(w, products)
}

func (s *Server) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		s.writeError(w, r, log.ComponentInventory, log.OpCreate, err)
		return
	}
	p, err := req.toDomain()
	if err != nil {
		s.writeError(w, r, log.ComponentInventory, log.OpCreate, err)
		return
	}

	id, err := s.svc.Inventory.AddProduct(r.Context(), p)
	if err != nil {
		s.writeError(w, r, log.ComponentInventory, log.OpCreate, err)
		return
	}
	s.mutated()

	log.FromContext(r.Context()).InfoContext(r.Context(), "Product created",
		log.FieldProductID, id,
		log.FieldLabel, p.Category)

	NewJSONResponse().
		Status(http.StatusCreated).
		Success("Product added successfully").
		Field("product_id", id).
		Write(w)
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		s.writeError(w, r, log.ComponentInventory, log.OpRead, err)
		return
	}
	p, err := s.svc.Inventory.GetProduct(r.Context(), id)
	if err != nil {
		s.writeReadError(w, r, log.ComponentInventory, err)
		return
	}
	writeJSON(w, p)
}

func (s *Server) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		s.writeError(w, r, log.ComponentInventory, log.OpUpdate, err)
		return
	}
	var req updateProductRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		s.writeError(w, r, log.ComponentInventory, log.OpUpdate, err)
		return
	}

	if err := s.svc.Inventory.UpdateProduct(r.Context(), id, req.toDomain()); err != nil {
		s.writeError(w, r, log.ComponentInventory, log.OpUpdate, err)
		return
	}
	s.mutated()

	NewJSONResponse().
		Success("Product updated successfully").
		Field("product_id", id).
		Write(w)
}

func (s *Server) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		s.writeError(w, r, log.ComponentInventory, log.OpDelete, err)
		return
	}
	if err := s.svc.Inventory.DeleteProduct(r.Context(), id); err != nil {
		s.writeError(w, r, log.ComponentInventory, log.OpDelete, err)
		return
	}
	s.mutated()

	NewJSONResponse().
		Success("Product deleted successfully").
		Field("product_id", id).
		Write(w)
}
