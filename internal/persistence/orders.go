package persistence

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"

	"genestore/internal/commitmsg"
	"genestore/internal/errors"
	"genestore/internal/events"
	"genestore/internal/fileio"
	"genestore/internal/history"
	"genestore/internal/model"
	"genestore/internal/paths"
)

// OrderExists reports whether the order has been published.
func (s *Store) OrderExists(ctx context.Context, projectID, orderID string) (bool, error) {
	if err := validateOrderIDs(projectID, orderID); err != nil {
		return false, err
	}
	return fileio.Exists(s.paths.OrderManifestPath(projectID, orderID)), nil
}

// OrderCreate records an order with the rollup it was placed against. Orders
// are append-only: an existing order id is ALREADY_EXISTS. The manifest and
// rollup are written to a hidden staging directory first and published with
// a single rename, so a reader sees either the whole order or nothing.
func (s *Store) OrderCreate(ctx context.Context, projectID, orderID string, o *model.Order, r *model.Rollup) (*model.Order, error) {
	if err := validateOrderIDs(projectID, orderID); err != nil {
		return nil, err
	}
	if o == nil {
		return nil, errors.Newf(errors.InvalidModel, "order %s: no document supplied", orderID)
	}
	if r == nil || r.Project == nil {
		return nil, errors.Newf(errors.InvalidModel, "order %s: no rollup supplied", orderID)
	}

	doc := *o
	doc.ID = orderID
	doc.ProjectID = projectID
	if doc.Metadata.Created == 0 {
		doc.Metadata.Created = model.NowMillis()
	}
	if err := s.validateOrder(&doc); err != nil {
		return nil, err
	}

	unlock := s.lock(projectID)
	defer unlock()

	if !fileio.Exists(s.paths.ProjectManifestPath(projectID)) {
		return nil, errors.NotFound("project", projectID)
	}
	target := s.paths.OrderPath(projectID, orderID)
	if fileio.Exists(target) {
		return nil, errors.Newf(errors.AlreadyExists, "order %s already exists", orderID)
	}

	staging := filepath.Join(s.paths.OrderDirectoryPath(projectID), "."+orderID+".staging."+uuid.NewString())
	if err := s.stageOrder(staging, &doc, r); err != nil {
		_ = fileio.DeleteDir(staging)
		return nil, err
	}
	if err := fileio.MoveDir(staging, target); err != nil {
		_ = fileio.DeleteDir(staging)
		return nil, err
	}

	s.logger.Info("Order created",
		"project_id", projectID,
		"order_id", orderID,
		"project_version", doc.ProjectVersion,
	)
	s.publish(events.Order, projectID, doc.User, doc.ProjectVersion, commitmsg.Message{Type: commitmsg.Create, Scope: orderID}, map[string]string{"orderId": orderID})
	return &doc, nil
}

func (s *Store) stageOrder(dir string, o *model.Order, r *model.Rollup) error {
	if err := fileio.MakeDir(dir); err != nil {
		return err
	}
	if err := fileio.WriteJSON(filepath.Join(dir, paths.OrderManifestName()), o); err != nil {
		return err
	}
	return fileio.WriteJSON(filepath.Join(dir, paths.OrderRollupName()), r)
}

// OrderGet reads an order. A missing order is found=false.
func (s *Store) OrderGet(ctx context.Context, projectID, orderID string) (*model.Order, bool, error) {
	if err := validateOrderIDs(projectID, orderID); err != nil {
		return nil, false, err
	}
	var o model.Order
	err := fileio.ReadJSON(s.paths.OrderManifestPath(projectID, orderID), &o)
	if errors.IsCode(err, errors.DoesNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &o, true, nil
}

// OrderRollupGet reads the rollup an order was placed against.
func (s *Store) OrderRollupGet(ctx context.Context, projectID, orderID string) (*model.Rollup, bool, error) {
	if err := validateOrderIDs(projectID, orderID); err != nil {
		return nil, false, err
	}
	var r model.Rollup
	err := fileio.ReadJSON(s.paths.OrderRollupPath(projectID, orderID), &r)
	if errors.IsCode(err, errors.DoesNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &r, true, nil
}

// OrderList returns a project's order ids in sorted order. Staging
// directories are not listed.
func (s *Store) OrderList(ctx context.Context, projectID string) ([]string, error) {
	if err := paths.ValidateID(projectID); err != nil {
		return nil, err
	}
	if !fileio.Exists(s.paths.ProjectPath(projectID)) {
		return nil, errors.NotFound("project", projectID)
	}

	entries, err := os.ReadDir(s.paths.OrderDirectoryPath(projectID))
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "listing orders of "+projectID)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() && !history.IsHidden(e.Name()) {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func validateOrderIDs(projectID, orderID string) error {
	if err := paths.ValidateID(projectID); err != nil {
		return err
	}
	return paths.ValidateID(orderID)
}
