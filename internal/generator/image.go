package generator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/bobarin/adshot/internal/credits"
	"github.com/bobarin/adshot/internal/db"
	"github.com/bobarin/adshot/internal/models"
	"github.com/bobarin/adshot/internal/services"
	"github.com/bobarin/adshot/internal/storage"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// composeInstruction is the fixed direction for every compose call; the
// user's free-text prompt is appended to it.
const composeInstruction = `Combine the person and product into a realistic photo. Make the person naturally hold or use the product. Match lighting, shadows, scale and perspective. Make the person stand in professional studio lighting. Output ecommerce-quality photo realistic imagery.`

// ImageRequest is the image-phase input.
type ImageRequest struct {
	Name               string
	ProductName        string
	ProductDescription string
	UserPrompt         string
	AspectRatio        string
	TargetLength       int
	Sources            []services.SourceImage
}

// RunImagePhase runs one image-composition phase: validate, debit, upload the
// source photos, create the project, compose, store the output. Every failure
// after the debit refunds ImageCost and, once the project row exists, records
// the error on it.
func (g *Generator) RunImagePhase(ctx context.Context, userID string, req ImageRequest) (*models.Project, error) {
	if len(req.Sources) < 2 || req.ProductName == "" {
		return nil, &Error{Kind: KindInvalidInput, Message: "at least 2 images and a product name are required"}
	}

	if err := g.debit(ctx, userID, credits.ImageCost); err != nil {
		return nil, err
	}

	projectID := uuid.New()

	// Source uploads are independent; run them in parallel like the rest of
	// the upload path.
	urls := make([]string, len(req.Sources))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, src := range req.Sources {
		eg.Go(func() error {
			path := storage.ProjectAssetPath(projectID, fmt.Sprintf("source-%d%s", i+1, mimeExt(src.MIMEType)))
			url, err := g.assets.UploadBytes(egCtx, path, src.Data, src.MIMEType)
			if err != nil {
				return err
			}
			urls[i] = url
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		// No project row yet; only the debit needs compensating.
		g.refund(ctx, userID, credits.ImageCost)
		return nil, &Error{Kind: KindStorage, Message: "failed to upload source images", Debited: true, Err: err}
	}

	project := &models.Project{
		ID:             projectID,
		UserID:         userID,
		Name:           defaultString(req.Name, "New Project"),
		ProductName:    req.ProductName,
		TargetLength:   defaultInt(req.TargetLength, 5),
		UploadedImages: urls,
		IsGenerating:   true,
	}
	if req.ProductDescription != "" {
		project.ProductDescription = &req.ProductDescription
	}
	if req.UserPrompt != "" {
		project.UserPrompt = &req.UserPrompt
	}
	if req.AspectRatio != "" {
		project.AspectRatio = &req.AspectRatio
	}

	if err := g.projects.CreateProject(ctx, project); err != nil {
		g.refund(ctx, userID, credits.ImageCost)
		return nil, &Error{Kind: KindPersistence, Message: "failed to create project", Debited: true, Err: err}
	}

	parts, err := g.composer.ComposeImage(ctx, services.ComposeRequest{
		Sources:     req.Sources,
		Instruction: g.composePrompt(ctx, req.ProductName, req.UserPrompt),
		AspectRatio: req.AspectRatio,
		ImageSize:   "1K",
	})
	if err != nil {
		return nil, g.failImagePhase(ctx, project, KindGeneration, "image generation failed", err)
	}

	image := firstInlineImage(parts)
	if image == nil {
		return nil, g.failImagePhase(ctx, project, KindGeneration, "no image data returned", nil)
	}

	outputPath := storage.ProjectAssetPath(projectID, "generated"+mimeExt(image.MIMEType))
	outputURL, err := g.assets.UploadBytes(ctx, outputPath, image.Data, image.MIMEType)
	if err != nil {
		return nil, g.failImagePhase(ctx, project, KindStorage, "failed to upload generated image", err)
	}

	if err := g.projects.SetGeneratedImage(ctx, projectID, outputURL); err != nil {
		return nil, g.failImagePhase(ctx, project, KindPersistence, "failed to record generated image", err)
	}

	project.GeneratedImage = &outputURL
	project.IsGenerating = false
	project.Error = nil

	log.Printf("[Generator] Image phase completed for project %s", projectID)
	return project, nil
}

// composePrompt appends the (optionally enhanced) user prompt to the fixed
// instruction. Enhancement is best-effort: any failure falls back to the raw
// prompt.
func (g *Generator) composePrompt(ctx context.Context, productName, userPrompt string) string {
	if userPrompt == "" {
		return composeInstruction
	}

	prompt := userPrompt
	if g.enhancer != nil {
		enhanced, err := g.enhancer.EnhancePrompt(ctx, productName, userPrompt)
		if err != nil {
			log.Printf("[Generator] Prompt enhancement failed, using raw prompt: %v", err)
		} else {
			prompt = enhanced
		}
	}

	return composeInstruction + " " + prompt
}

// firstInlineImage selects the first part carrying inline binary image data.
// Multiple-candidate responses are deliberately ignored.
func firstInlineImage(parts []services.ImagePart) *services.ImagePart {
	for i := range parts {
		if len(parts[i].Data) > 0 {
			return &parts[i]
		}
	}
	return nil
}

// debit runs the daily-reset check and takes amount from the ledger, mapping
// failures onto the phase error taxonomy. No side effects when it fails.
func (g *Generator) debit(ctx context.Context, userID string, amount int) error {
	if _, err := g.ledger.ResetIfNewDay(ctx, userID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return &Error{Kind: KindNotFound, Message: "user not found", Err: err}
		}
		return &Error{Kind: KindPersistence, Message: "failed to check credits", Err: err}
	}

	_, ok, err := g.ledger.TryDebit(ctx, userID, amount)
	if err != nil {
		return &Error{Kind: KindPersistence, Message: "failed to debit credits", Err: err}
	}
	if !ok {
		return &Error{Kind: KindInsufficientCredits, Message: "not enough credits or daily limit reached"}
	}

	return nil
}

// refund compensates a debit. Refund failure is logged, never surfaced: it
// must not mask the error that triggered the compensation.
func (g *Generator) refund(ctx context.Context, userID string, amount int) {
	if err := g.ledger.Refund(ctx, userID, amount); err != nil {
		log.Printf("[Generator] ERROR: failed to refund %d credits to user %s: %v", amount, userID, err)
	}
}

// failImagePhase ends a failed image phase: record the error on the project
// and refund the debit. The two are independent best-effort actions.
func (g *Generator) failImagePhase(ctx context.Context, project *models.Project, kind Kind, message string, cause error) error {
	detail := message
	if cause != nil {
		detail = fmt.Sprintf("%s: %v", message, cause)
	}
	if err := g.projects.SetProjectError(ctx, project.ID, detail); err != nil {
		log.Printf("[Generator] ERROR: failed to record error on project %s: %v", project.ID, err)
	}
	g.refund(ctx, project.UserID, credits.ImageCost)

	return &Error{Kind: kind, Message: message, Debited: true, Err: cause}
}

func mimeExt(mimeType string) string {
	switch strings.ToLower(mimeType) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "video/mp4":
		return ".mp4"
	default:
		return ".png"
	}
}

func defaultString(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func defaultInt(n, fallback int) int {
	if n <= 0 {
		return fallback
	}
	return n
}
