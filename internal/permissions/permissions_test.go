package permissions

import (
	"context"
	"reflect"
	"testing"

	"genestore/internal/errors"
	"genestore/internal/slogutil"
	"genestore/internal/storage"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	db, err := storage.Open(t.TempDir(), slogutil.NewDiscardLogger())
	if err != nil {
		t.Fatalf("storage.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(db, slogutil.NewDiscardLogger())
}

func TestCreateProjectPermissionsIsIdempotent(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := s.CreateProjectPermissions(ctx, "p1", "alice"); err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}

	ids, err := s.ProjectsForUser(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(ids, []string{"p1"}) {
		t.Errorf("ProjectsForUser() = %v, want [p1]", ids)
	}
}

func TestHasAccess(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	if err := s.CreateProjectPermissions(ctx, "p1", "alice"); err != nil {
		t.Fatal(err)
	}
	if err := s.Grant(ctx, "p1", "bob", RoleViewer); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		user string
		want bool
	}{
		{"alice", true},
		{"bob", true},
		{"carol", false},
	}
	for _, tt := range tests {
		got, err := s.HasAccess(ctx, "p1", tt.user)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Errorf("HasAccess(p1, %s) = %v, want %v", tt.user, got, tt.want)
		}
	}

	if err := s.RemoveProject(ctx, "p1"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.HasAccess(ctx, "p1", "alice"); ok {
		t.Error("access remains after RemoveProject")
	}
}

func TestProjectsForUserSorted(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	for _, id := range []string{"zeta", "alpha", "mid"} {
		if err := s.CreateProjectPermissions(ctx, id, "alice"); err != nil {
			t.Fatal(err)
		}
	}
	ids, err := s.ProjectsForUser(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(ids, []string{"alpha", "mid", "zeta"}) {
		t.Errorf("ProjectsForUser() = %v", ids)
	}

	none, err := s.ProjectsForUser(ctx, "nobody")
	if err != nil || len(none) != 0 {
		t.Errorf("ProjectsForUser(nobody) = %v, %v", none, err)
	}
}

func TestEmptyIDs(t *testing.T) {
	s := newStore(t)
	err := s.CreateProjectPermissions(context.Background(), "", "alice")
	if !errors.IsCode(err, errors.NoIdProvided) {
		t.Errorf("err = %v, want NoIdProvided", err)
	}
}
