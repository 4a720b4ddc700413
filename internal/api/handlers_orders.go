package api

import (
	"net/http"

	"genestore/internal/errors"
	"genestore/internal/model"
)

// orderRequest is the body of POST /projects/{projectId}/orders/{orderId}.
// Without a rollup the order is placed against the project as committed at
// order.projectVersion, which defaults to the last saved version.
type orderRequest struct {
	Order  model.Order   `json:"order"`
	Rollup *model.Rollup `json:"rollup,omitempty"`
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	projectID, _, ok := s.authorizeProject(w, r)
	if !ok {
		return
	}
	ids, err := s.deps.Store.OrderList(r.Context(), projectID)
	if err != nil {
		WriteStoreError(w, err)
		return
	}
	WriteJSON(w, ids, http.StatusOK)
}

// handleGetOrder returns the order, or with ?rollup=true the rollup it was
// placed against.
func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	projectID, _, ok := s.authorizeProject(w, r)
	if !ok {
		return
	}
	orderID := r.PathValue("orderId")

	var (
		doc   any
		found bool
		err   error
	)
	if QueryParamBool(r, "rollup", false) {
		doc, found, err = s.deps.Store.OrderRollupGet(r.Context(), projectID, orderID)
	} else {
		doc, found, err = s.deps.Store.OrderGet(r.Context(), projectID, orderID)
	}
	if err != nil {
		WriteStoreError(w, err)
		return
	}
	if !found {
		WriteStoreError(w, errors.NotFound("order", orderID))
		return
	}
	WriteJSON(w, doc, http.StatusOK)
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	projectID, identity, ok := s.authorizeProject(w, r)
	if !ok {
		return
	}
	var req orderRequest
	if err := s.readJSON(r, &req); err != nil {
		WriteStoreError(w, err)
		return
	}
	ctx := r.Context()
	order := req.Order
	if order.User == "" {
		order.User = identity.UserID
	}

	if order.ProjectVersion == "" {
		p, found, err := s.deps.Store.ProjectGet(ctx, projectID, "")
		if err != nil {
			WriteStoreError(w, err)
			return
		}
		if !found {
			WriteStoreError(w, errors.NotFound("project", projectID))
			return
		}
		if p.Version == "" {
			WriteStoreError(w, errors.Newf(errors.InvalidModel, "project %s must be saved before it is ordered", projectID))
			return
		}
		order.ProjectVersion = p.Version
	}

	rollup := req.Rollup
	if rollup == nil {
		var err error
		rollup, _, err = s.deps.Store.RollupGet(ctx, projectID, order.ProjectVersion)
		if err != nil {
			WriteStoreError(w, err)
			return
		}
	}

	created, err := s.deps.Store.OrderCreate(ctx, projectID, r.PathValue("orderId"), &order, rollup)
	if err != nil {
		WriteStoreError(w, err)
		return
	}
	WriteJSON(w, created, http.StatusCreated)
}
