package persistence

import (
	"context"
	"os"
	"sort"

	"genestore/internal/commitmsg"
	"genestore/internal/errors"
	"genestore/internal/events"
	"genestore/internal/fileio"
	"genestore/internal/history"
	"genestore/internal/model"
	"genestore/internal/paths"
)

// prepareProject copies p with the storage id forced and userID merged into
// the authors.
func prepareProject(projectID string, p *model.Project, userID string) *model.Project {
	out := p.Clone()
	if out == nil {
		out = &model.Project{}
	}
	out.ID = projectID
	out.Metadata.Authors = model.MergeAuthor(out.Metadata.Authors, userID)
	if out.Components == nil {
		out.Components = []string{}
	}
	return out
}

// ProjectCreate creates a new project. It fails with ALREADY_EXISTS, without
// touching the filesystem, when the project manifest is present. Creation
// provisions the project and writes its manifest but makes no commit.
func (s *Store) ProjectCreate(ctx context.Context, projectID string, p *model.Project, userID string) (*model.Project, error) {
	if err := paths.ValidateID(projectID); err != nil {
		return nil, err
	}
	doc := prepareProject(projectID, p, userID)
	if err := s.validateProject(doc); err != nil {
		return nil, err
	}

	unlock := s.lock(projectID)
	defer unlock()

	if fileio.Exists(s.paths.ProjectManifestPath(projectID)) {
		return nil, errors.Newf(errors.AlreadyExists, "project %s already exists", projectID)
	}
	if err := s.setup(ctx, projectID, userID); err != nil {
		return nil, err
	}
	if err := fileio.WriteJSON(s.paths.ProjectManifestPath(projectID), doc); err != nil {
		return nil, err
	}

	s.logger.Info("Project created", "project_id", projectID, "user_id", userID)
	s.publish(events.Created, projectID, userID, "", commitmsg.CreateProjectMessage(projectID), nil)
	return doc, nil
}

// ProjectWrite overwrites the project manifest, provisioning the project
// first if needed. It never commits.
func (s *Store) ProjectWrite(ctx context.Context, projectID string, p *model.Project, userID string, opts WriteOptions) (*model.Project, error) {
	if err := paths.ValidateID(projectID); err != nil {
		return nil, err
	}
	if p == nil {
		return nil, errors.Newf(errors.InvalidModel, "project %s: no document supplied", projectID)
	}
	doc := prepareProject(projectID, p, userID)
	if !opts.BypassValidation {
		if err := s.validateProject(doc); err != nil {
			return nil, err
		}
	}

	unlock := s.lock(projectID)
	defer unlock()

	if err := s.writeProjectLocked(ctx, projectID, doc, userID); err != nil {
		return nil, err
	}
	s.publish(events.Written, projectID, userID, "", commitmsg.Project(projectID, ""), map[string]string{"manifest": "project"})
	return doc, nil
}

func (s *Store) writeProjectLocked(ctx context.Context, projectID string, doc *model.Project, userID string) error {
	if err := s.ensureProvisioned(ctx, projectID, userID); err != nil {
		return err
	}
	s.cache.Forget(projectID)
	return fileio.WriteJSON(s.paths.ProjectManifestPath(projectID), doc)
}

// ProjectMerge deep-merges partial into the stored project (an absent
// project starts from an empty document), validates the result and writes it.
func (s *Store) ProjectMerge(ctx context.Context, projectID string, partial map[string]any, userID string) (*model.Project, error) {
	if err := paths.ValidateID(projectID); err != nil {
		return nil, err
	}

	unlock := s.lock(projectID)
	defer unlock()

	current := map[string]any{}
	err := fileio.ReadJSON(s.paths.ProjectManifestPath(projectID), &current)
	if err != nil && !errors.IsCode(err, errors.DoesNotExist) {
		return nil, err
	}

	var merged model.Project
	if err := model.FromMap(fileio.DeepMerge(current, partial), &merged); err != nil {
		return nil, errors.New(errors.InvalidModel, "merged project is not a valid document", err)
	}
	doc := prepareProject(projectID, &merged, userID)
	if err := s.validateProject(doc); err != nil {
		return nil, err
	}

	if err := s.writeProjectLocked(ctx, projectID, doc, userID); err != nil {
		return nil, err
	}
	s.publish(events.Written, projectID, userID, "", commitmsg.Project(projectID, ""), map[string]string{"manifest": "project"})
	return doc, nil
}

// ProjectDelete removes a project. Without force, sample projects are
// refused and the project is moved to its trash path, replacing any earlier
// trash entry for the same id. With force the directory is removed outright.
func (s *Store) ProjectDelete(ctx context.Context, projectID string, force bool) error {
	if err := paths.ValidateID(projectID); err != nil {
		return err
	}

	unlock := s.lock(projectID)
	defer unlock()

	projectPath := s.paths.ProjectPath(projectID)
	if !fileio.Exists(projectPath) {
		return errors.NotFound("project", projectID)
	}

	if force {
		if err := fileio.DeleteDir(projectPath); err != nil {
			return err
		}
	} else {
		var p model.Project
		err := fileio.ReadJSON(s.paths.ProjectManifestPath(projectID), &p)
		if err != nil && !errors.IsCode(err, errors.DoesNotExist) {
			return err
		}
		if p.IsSample {
			return errors.Newf(errors.NotAllowed, "project %s is a sample project and cannot be deleted", projectID)
		}

		trash := s.paths.TrashPath(projectID)
		if err := fileio.DeleteDir(trash); err != nil {
			return err
		}
		if err := fileio.MoveDir(projectPath, trash); err != nil {
			return err
		}
	}

	s.cache.Forget(projectID)
	s.logger.Info("Project deleted", "project_id", projectID, "force", force)
	s.publish(events.Deleted, projectID, "", "", commitmsg.DeleteProjectMessage(projectID), map[string]bool{"force": force})
	return nil
}

// ProjectList returns the ids of the live projects userID can access. With
// no permissions collaborator, projects listing userID as an author are
// returned instead.
func (s *Store) ProjectList(ctx context.Context, userID string) ([]string, error) {
	if userID == "" {
		return nil, errors.ErrNoIdProvided
	}
	if s.perms != nil {
		ids, err := s.perms.ProjectsForUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		live := make([]string, 0, len(ids))
		for _, id := range ids {
			if fileio.Exists(s.paths.ProjectManifestPath(id)) {
				live = append(live, id)
			}
		}
		return live, nil
	}

	entries, err := os.ReadDir(s.paths.ProjectsRoot())
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "listing projects")
	}
	ids := []string{}
	for _, e := range entries {
		if !e.IsDir() || history.IsHidden(e.Name()) {
			continue
		}
		p, found, err := s.ProjectGet(ctx, e.Name(), "")
		if err != nil || !found {
			continue
		}
		for _, a := range p.Metadata.Authors {
			if a == userID {
				ids = append(ids, p.ID)
				break
			}
		}
	}
	sort.Strings(ids)
	return ids, nil
}
