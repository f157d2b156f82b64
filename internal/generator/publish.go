package generator

import (
	"context"
	"errors"

	"github.com/bobarin/adshot/internal/db"
	"github.com/bobarin/adshot/internal/models"
	"github.com/google/uuid"
)

// TogglePublish flips the project's published flag. Owner-checked, no credit
// interaction; repeating the same toggle serially just flips it back.
func (g *Generator) TogglePublish(ctx context.Context, userID string, projectID uuid.UUID) (*models.Project, error) {
	project, err := g.projects.TogglePublish(ctx, projectID, userID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, &Error{Kind: KindNotFound, Message: "project not found", Err: err}
		}
		return nil, &Error{Kind: KindPersistence, Message: "failed to toggle publish", Err: err}
	}
	return project, nil
}

// DeleteProject removes a project. Owner-checked; no credits are at stake at
// delete time, so there is nothing to compensate.
func (g *Generator) DeleteProject(ctx context.Context, userID string, projectID uuid.UUID) error {
	if err := g.projects.DeleteProject(ctx, projectID, userID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return &Error{Kind: KindNotFound, Message: "project not found", Err: err}
		}
		return &Error{Kind: KindPersistence, Message: "failed to delete project", Err: err}
	}
	return nil
}
