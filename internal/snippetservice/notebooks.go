package snippetservice

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/starford/snix/internal/apperr"
	"github.com/starford/snix/internal/models"
)

// DeletePolicy decides what happens to the contents of a deleted notebook.
// The zero value is invalid so callers must choose.
type DeletePolicy int

const (
	// Cascade deletes contained snippets and child notebooks.
	Cascade DeletePolicy = iota + 1
	// Reject refuses to delete a notebook that is not empty.
	Reject
)

func (p DeletePolicy) String() string {
	switch p {
	case Cascade:
		return "cascade"
	case Reject:
		return "reject"
	}
	return fmt.Sprintf("DeletePolicy(%d)", int(p))
}

// ParsePolicy parses "cascade" or "reject".
func ParsePolicy(s string) (DeletePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cascade":
		return Cascade, nil
	case "reject":
		return Reject, nil
	}
	return 0, fmt.Errorf("%w: delete policy must be cascade or reject, got %q", apperr.ErrInvalidInput, s)
}

// NotebookInput holds the fields of a new notebook.
type NotebookInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ParentID    string `json:"parent_id"`
}

// Validate checks the same field limits that imports and restores apply.
func (in NotebookInput) Validate() error {
	return models.Notebook{Name: in.Name, Description: in.Description}.Validate()
}

// NotebookPatch changes the given notebook fields; nil fields are kept.
type NotebookPatch struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// CreateNotebook adds a notebook under in.ParentID (root when empty).
func (s *Service) CreateNotebook(ctx context.Context, in NotebookInput) (_ models.Notebook, err error) {
	defer func(started time.Time) { observe("create_notebook", started, err) }(time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()

	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	if err := in.Validate(); err != nil {
		return models.Notebook{}, invalid(err)
	}
	if in.ParentID != "" {
		if _, ok := s.index.Notebook(in.ParentID); !ok {
			return models.Notebook{}, notFound("parent notebook", in.ParentID)
		}
	}
	if err := s.checkName(in.ParentID, in.Name, ""); err != nil {
		return models.Notebook{}, err
	}

	now := s.clock.Now()
	n := models.Notebook{
		ID:          s.ids.NewID(),
		Name:        in.Name,
		Description: in.Description,
		ParentID:    in.ParentID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := s.commit(ctx, models.Delta{PutNotebooks: []models.Notebook{n}}); err != nil {
		return models.Notebook{}, err
	}
	s.notify(models.ChangeNotebook, n.ID)
	return n, nil
}

// RenameNotebook changes a notebook's name.
func (s *Service) RenameNotebook(ctx context.Context, id, name string) (models.Notebook, error) {
	return s.UpdateNotebook(ctx, id, NotebookPatch{Name: &name})
}

// UpdateNotebook applies patch to a notebook.
func (s *Service) UpdateNotebook(ctx context.Context, id string, patch NotebookPatch) (_ models.Notebook, err error) {
	defer func(started time.Time) { observe("update_notebook", started, err) }(time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.index.Notebook(id)
	if !ok {
		return models.Notebook{}, notFound("notebook", id)
	}
	next := n
	if patch.Name != nil {
		next.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Description != nil {
		next.Description = strings.TrimSpace(*patch.Description)
	}
	if err := next.Validate(); err != nil {
		return models.Notebook{}, invalid(err)
	}
	if next.Name == n.Name && next.Description == n.Description {
		return n, nil
	}
	if err := s.checkName(n.ParentID, next.Name, id); err != nil {
		return models.Notebook{}, err
	}

	next.UpdatedAt = s.clock.Now()
	if _, err := s.commit(ctx, models.Delta{PutNotebooks: []models.Notebook{next}}); err != nil {
		return models.Notebook{}, err
	}
	s.notify(models.ChangeNotebook, id)
	return next, nil
}

// MoveNotebook reparents a notebook; an empty parentID moves it to the root.
func (s *Service) MoveNotebook(ctx context.Context, id, parentID string) (_ models.Notebook, err error) {
	defer func(started time.Time) { observe("move_notebook", started, err) }(time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.index.Notebook(id)
	if !ok {
		return models.Notebook{}, notFound("notebook", id)
	}
	if parentID != "" {
		if _, ok := s.index.Notebook(parentID); !ok {
			return models.Notebook{}, notFound("parent notebook", parentID)
		}
		if s.index.IsAncestor(id, parentID) {
			return models.Notebook{}, fmt.Errorf("move %s under %s: %w", id, parentID, apperr.ErrCycleDetected)
		}
	}
	if n.ParentID == parentID {
		return n, nil
	}
	if err := s.checkName(parentID, n.Name, id); err != nil {
		return models.Notebook{}, err
	}

	n.ParentID = parentID
	n.UpdatedAt = s.clock.Now()
	if _, err := s.commit(ctx, models.Delta{PutNotebooks: []models.Notebook{n}}); err != nil {
		return models.Notebook{}, err
	}
	s.notify(models.ChangeNotebook, id)
	return n, nil
}

// DeleteResult reports what a notebook deletion removed.
type DeleteResult struct {
	Notebooks int `json:"notebooks"`
	Snippets  int `json:"snippets"`
}

// DeleteNotebook removes a notebook. Reject fails with ErrNotEmpty when it
// holds anything; Cascade removes its whole subtree in one commit.
func (s *Service) DeleteNotebook(ctx context.Context, id string, policy DeletePolicy) (_ DeleteResult, err error) {
	defer func(started time.Time) { observe("delete_notebook", started, err) }(time.Now())
	if policy != Cascade && policy != Reject {
		return DeleteResult{}, fmt.Errorf("%w: delete policy is required", apperr.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index.Notebook(id); !ok {
		return DeleteResult{}, notFound("notebook", id)
	}
	children, snippets := s.index.Descendants(id)
	if policy == Reject && (len(children) > 0 || len(snippets) > 0) {
		return DeleteResult{}, fmt.Errorf("notebook %s has %d notebooks and %d snippets: %w",
			id, len(children), len(snippets), apperr.ErrNotEmpty)
	}

	// Deepest notebooks first so every notebook is empty when removed.
	notebooks := make([]string, 0, len(children)+1)
	for i := len(children) - 1; i >= 0; i-- {
		notebooks = append(notebooks, children[i])
	}
	notebooks = append(notebooks, id)

	d := models.Delta{DeleteSnippets: snippets, DeleteNotebooks: notebooks}
	if rest, changed := s.recents.Without(snippets...); changed {
		d.SetRecents = true
		d.Recents = rest
	}
	if _, err := s.commit(ctx, d); err != nil {
		return DeleteResult{}, err
	}
	s.notify(models.ChangeTree, id)
	return DeleteResult{Notebooks: len(notebooks), Snippets: len(snippets)}, nil
}

// checkName fails with ErrDuplicateName when another child of parentID
// (other than self) already uses name.
func (s *Service) checkName(parentID, name, self string) error {
	if other, ok := s.index.ChildNamed(parentID, name); ok && other.ID != self {
		return fmt.Errorf("notebook %q already exists here: %w", name, apperr.ErrDuplicateName)
	}
	return nil
}
