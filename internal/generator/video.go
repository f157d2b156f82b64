package generator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/bobarin/adshot/internal/credits"
	"github.com/bobarin/adshot/internal/db"
	"github.com/bobarin/adshot/internal/models"
	"github.com/bobarin/adshot/internal/services"
	"github.com/bobarin/adshot/internal/storage"
	"github.com/google/uuid"
)

// ValidateVideoRequest checks the video-phase preconditions without mutating
// anything: the project exists and is owned by the caller, no phase is
// running, no video exists yet, and an image does. RunVideoPhase re-checks
// them atomically; this read-only form lets the API reject early.
func (g *Generator) ValidateVideoRequest(ctx context.Context, userID string, projectID uuid.UUID) (*models.Project, error) {
	project, err := g.projects.GetProjectForUser(ctx, projectID, userID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, &Error{Kind: KindNotFound, Message: "project not found", Err: err}
		}
		return nil, &Error{Kind: KindPersistence, Message: "failed to load project", Err: err}
	}

	switch {
	case project.IsGenerating:
		return nil, &Error{Kind: KindConflict, Message: "generation already in progress"}
	case project.HasVideo():
		return nil, &Error{Kind: KindConflict, Message: "video already generated"}
	case !project.HasImage():
		return nil, &Error{Kind: KindInvalidState, Message: "generated image not found"}
	}

	return project, nil
}

// RunVideoPhase animates a project's generated image into a short video:
// validate, debit, atomically flip to generating, start the external job,
// poll it on a bounded schedule, store the output. Every failure after the
// debit refunds VideoCost and records the error on the project.
func (g *Generator) RunVideoPhase(ctx context.Context, userID string, projectID uuid.UUID) (*models.Project, error) {
	if _, err := g.ValidateVideoRequest(ctx, userID, projectID); err != nil {
		return nil, err
	}

	if err := g.debit(ctx, userID, credits.VideoCost); err != nil {
		// This phase usually runs from the queue, long after the enqueueing
		// request got its 202. The project row is the only place the caller
		// can still see the failure.
		message := err.Error()
		var phaseErr *Error
		if errors.As(err, &phaseErr) {
			message = phaseErr.Message
		}
		if serr := g.projects.SetProjectError(ctx, projectID, message); serr != nil {
			log.Printf("[Generator] ERROR: failed to record error on project %s: %v", projectID, serr)
		}
		return nil, err
	}

	// The precondition check and the generating transition are one
	// conditional write. Losing the race here means another phase slipped in
	// between the read-only check and now; the debit is handed back.
	project, err := g.projects.BeginVideoGeneration(ctx, projectID, userID)
	if err != nil {
		g.refund(ctx, userID, credits.VideoCost)
		if errors.Is(err, db.ErrPreconditionFailed) {
			if _, verr := g.ValidateVideoRequest(ctx, userID, projectID); verr != nil {
				var phaseErr *Error
				if errors.As(verr, &phaseErr) {
					phaseErr.Debited = true
				}
				return nil, verr
			}
			return nil, &Error{Kind: KindConflict, Message: "generation already in progress", Debited: true, Err: err}
		}
		return nil, &Error{Kind: KindPersistence, Message: "failed to start video generation", Debited: true, Err: err}
	}

	imageBytes, err := g.assets.FetchAsset(ctx, *project.GeneratedImage)
	if err != nil {
		return nil, g.failVideoPhase(ctx, project, KindStorage, "failed to fetch generated image", err)
	}

	job, err := g.video.StartVideoJob(ctx, services.VideoJobRequest{
		Image:       services.SourceImage{Data: imageBytes, MIMEType: "image/png"},
		Prompt:      videoPrompt(project),
		AspectRatio: stringOr(project.AspectRatio, "9:16"),
	})
	if err != nil {
		return nil, g.failVideoPhase(ctx, project, KindGeneration, "failed to start video job", err)
	}

	job, err = g.pollUntilDone(ctx, job)
	if err != nil {
		var phaseErr *Error
		if errors.As(err, &phaseErr) {
			return nil, g.failVideoPhase(ctx, project, phaseErr.Kind, phaseErr.Message, phaseErr.Err)
		}
		return nil, g.failVideoPhase(ctx, project, KindGeneration, "video job polling failed", err)
	}

	if jerr := job.Failed(); jerr != nil {
		return nil, g.failVideoPhase(ctx, project, KindGeneration, "video generation failed", jerr)
	}
	if !job.HasOutput() {
		return nil, g.failVideoPhase(ctx, project, KindGeneration, "video generation failed - no output", nil)
	}

	videoBytes, err := g.video.DownloadVideo(ctx, job)
	if err != nil {
		return nil, g.failVideoPhase(ctx, project, KindGeneration, "failed to download generated video", err)
	}

	outputPath := storage.ProjectAssetPath(projectID, "generated.mp4")
	videoURL, err := g.assets.UploadBytes(ctx, outputPath, videoBytes, "video/mp4")
	if err != nil {
		return nil, g.failVideoPhase(ctx, project, KindStorage, "failed to upload generated video", err)
	}

	if err := g.projects.SetGeneratedVideo(ctx, projectID, videoURL); err != nil {
		return nil, g.failVideoPhase(ctx, project, KindPersistence, "failed to record generated video", err)
	}

	project.GeneratedVideo = &videoURL
	project.IsGenerating = false
	project.Error = nil

	log.Printf("[Generator] Video phase completed for project %s", projectID)
	return project, nil
}

// pollUntilDone polls the job on a fixed interval until it reports done, the
// context ends, or the ceiling elapses. Exceeding the ceiling is a TimedOut
// failure, compensated like any other.
func (g *Generator) pollUntilDone(ctx context.Context, job services.VideoJobHandle) (services.VideoJobHandle, error) {
	deadline := time.Now().Add(g.pollTimeout)
	polls := 0

	for !job.Done() {
		if time.Now().After(deadline) {
			return nil, &Error{
				Kind:    KindTimedOut,
				Message: fmt.Sprintf("video generation timed out after %v (%d polls)", g.pollTimeout, polls),
			}
		}

		select {
		case <-ctx.Done():
			return nil, &Error{Kind: KindGeneration, Message: "video generation cancelled", Err: ctx.Err()}
		case <-time.After(g.pollInterval):
		}

		polls++
		next, err := g.video.PollVideoJob(ctx, job)
		if err != nil {
			return nil, &Error{
				Kind:    KindGeneration,
				Message: fmt.Sprintf("failed to poll video job (attempt %d)", polls),
				Err:     err,
			}
		}
		job = next
	}

	return job, nil
}

// failVideoPhase ends a failed video phase: record the error on the project
// and refund the debit. The two are independent best-effort actions.
func (g *Generator) failVideoPhase(ctx context.Context, project *models.Project, kind Kind, message string, cause error) error {
	detail := message
	if cause != nil {
		detail = fmt.Sprintf("%s: %v", message, cause)
	}
	if err := g.projects.SetProjectError(ctx, project.ID, detail); err != nil {
		log.Printf("[Generator] ERROR: failed to record error on project %s: %v", project.ID, err)
	}
	g.refund(ctx, project.UserID, credits.VideoCost)

	return &Error{Kind: kind, Message: message, Debited: true, Err: cause}
}

func videoPrompt(project *models.Project) string {
	prompt := fmt.Sprintf("make the person showcase the product which is %s", project.ProductName)
	if project.ProductDescription != nil && *project.ProductDescription != "" {
		prompt += "\n" + *project.ProductDescription
	}
	return prompt
}

func stringOr(s *string, fallback string) string {
	if s != nil && *s != "" {
		return *s
	}
	return fallback
}
