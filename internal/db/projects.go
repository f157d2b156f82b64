package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bobarin/adshot/internal/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const projectColumns = `
	id, user_id, name, product_name, product_description, user_prompt,
	aspect_ratio, target_length, uploaded_images, generated_image,
	generated_video, is_generating, is_published, error, created_at, updated_at
`

func scanProject(row interface{ Scan(...any) error }) (*models.Project, error) {
	p := &models.Project{}
	err := row.Scan(
		&p.ID, &p.UserID, &p.Name, &p.ProductName, &p.ProductDescription,
		&p.UserPrompt, &p.AspectRatio, &p.TargetLength,
		pq.Array(&p.UploadedImages), &p.GeneratedImage, &p.GeneratedVideo,
		&p.IsGenerating, &p.IsPublished, &p.Error, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (db *DB) CreateProject(ctx context.Context, project *models.Project) error {
	query := `
		INSERT INTO projects (
			id, user_id, name, product_name, product_description, user_prompt,
			aspect_ratio, target_length, uploaded_images, is_generating
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`

	return db.QueryRowContext(
		ctx, query,
		project.ID, project.UserID, project.Name, project.ProductName,
		project.ProductDescription, project.UserPrompt, project.AspectRatio,
		project.TargetLength, pq.Array(project.UploadedImages), project.IsGenerating,
	).Scan(&project.CreatedAt, &project.UpdatedAt)
}

// GetProjectForUser retrieves a project only when it belongs to userID.
// A project owned by someone else is reported as not found.
func (db *DB) GetProjectForUser(ctx context.Context, id uuid.UUID, userID string) (*models.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE id = $1 AND user_id = $2`

	project, err := scanProject(db.QueryRowContext(ctx, query, id, userID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	return project, nil
}

// ListUserProjects returns the caller's projects, newest first.
func (db *DB) ListUserProjects(ctx context.Context, userID string) ([]models.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []models.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, *p)
	}

	return projects, rows.Err()
}

// ListPublishedProjects returns the community feed, newest first.
func (db *DB) ListPublishedProjects(ctx context.Context) ([]models.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE is_published = TRUE ORDER BY created_at DESC`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list published projects: %w", err)
	}
	defer rows.Close()

	var projects []models.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, *p)
	}

	return projects, rows.Err()
}

// BeginVideoGeneration flips is_generating on in the same statement that
// checks the video-phase preconditions, so the check and the transition cannot
// be interleaved with a concurrent phase. Returns ErrPreconditionFailed when
// the row exists but some precondition does not hold (caller re-reads to tell
// which), or ErrNotFound semantics folded into the same error since the WHERE
// clause cannot distinguish them.
func (db *DB) BeginVideoGeneration(ctx context.Context, id uuid.UUID, userID string) (*models.Project, error) {
	query := `
		UPDATE projects
		SET is_generating = TRUE, updated_at = NOW()
		WHERE id = $1 AND user_id = $2
			AND is_generating = FALSE
			AND generated_video IS NULL
			AND generated_image IS NOT NULL
		RETURNING ` + projectColumns

	project, err := scanProject(db.QueryRowContext(ctx, query, id, userID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("project %s not ready for video generation: %w", id, ErrPreconditionFailed)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to begin video generation: %w", err)
	}

	return project, nil
}

// SetGeneratedImage records the image-phase output and ends the phase.
// A successful phase clears any error left by an earlier attempt.
func (db *DB) SetGeneratedImage(ctx context.Context, id uuid.UUID, url string) error {
	query := `
		UPDATE projects
		SET generated_image = $1, is_generating = FALSE, error = NULL, updated_at = NOW()
		WHERE id = $2
	`
	return db.execOnProject(ctx, query, url, id)
}

// SetGeneratedVideo records the video-phase output and ends the phase.
func (db *DB) SetGeneratedVideo(ctx context.Context, id uuid.UUID, url string) error {
	query := `
		UPDATE projects
		SET generated_video = $1, is_generating = FALSE, error = NULL, updated_at = NOW()
		WHERE id = $2
	`
	return db.execOnProject(ctx, query, url, id)
}

// SetProjectError ends the current phase in a terminal failed state so reads
// never see an indefinitely in-progress project.
func (db *DB) SetProjectError(ctx context.Context, id uuid.UUID, message string) error {
	query := `
		UPDATE projects
		SET is_generating = FALSE, error = $1, updated_at = NOW()
		WHERE id = $2
	`
	return db.execOnProject(ctx, query, message, id)
}

// TogglePublish flips is_published, owner-checked.
func (db *DB) TogglePublish(ctx context.Context, id uuid.UUID, userID string) (*models.Project, error) {
	query := `
		UPDATE projects
		SET is_published = NOT is_published, updated_at = NOW()
		WHERE id = $1 AND user_id = $2
		RETURNING ` + projectColumns

	project, err := scanProject(db.QueryRowContext(ctx, query, id, userID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to toggle publish: %w", err)
	}

	return project, nil
}

// DeleteProject removes a project, owner-checked.
func (db *DB) DeleteProject(ctx context.Context, id uuid.UUID, userID string) error {
	result, err := db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("project %s: %w", id, ErrNotFound)
	}

	return nil
}

func (db *DB) execOnProject(ctx context.Context, query string, value any, id uuid.UUID) error {
	result, err := db.ExecContext(ctx, query, value, id)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("project %s: %w", id, ErrNotFound)
	}

	return nil
}
