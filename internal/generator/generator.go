package generator

import (
	"context"
	"time"

	"github.com/bobarin/adshot/internal/credits"
	"github.com/bobarin/adshot/internal/models"
	"github.com/bobarin/adshot/internal/services"
	"github.com/google/uuid"
)

const (
	defaultPollInterval = 10 * time.Second
	defaultPollTimeout  = 10 * time.Minute
)

// ProjectStore is the durable record of a project's lifecycle. The Postgres
// implementation lives in internal/db; BeginVideoGeneration must perform its
// precondition check and the generating transition as one conditional write.
type ProjectStore interface {
	CreateProject(ctx context.Context, project *models.Project) error
	GetProjectForUser(ctx context.Context, id uuid.UUID, userID string) (*models.Project, error)
	BeginVideoGeneration(ctx context.Context, id uuid.UUID, userID string) (*models.Project, error)
	SetGeneratedImage(ctx context.Context, id uuid.UUID, url string) error
	SetGeneratedVideo(ctx context.Context, id uuid.UUID, url string) error
	SetProjectError(ctx context.Context, id uuid.UUID, message string) error
	TogglePublish(ctx context.Context, id uuid.UUID, userID string) (*models.Project, error)
	DeleteProject(ctx context.Context, id uuid.UUID, userID string) error
}

// AssetStore uploads blobs for durable URLs and reads assets back by URL.
type AssetStore interface {
	UploadBytes(ctx context.Context, storagePath string, data []byte, contentType string) (string, error)
	FetchAsset(ctx context.Context, assetURL string) ([]byte, error)
}

// Generator sequences a generation phase: credit gate, external call, state
// transition, and compensation on failure. One Generator serves all users;
// per-user serialization lives in the ledger and the project store.
type Generator struct {
	ledger   *credits.Ledger
	projects ProjectStore
	assets   AssetStore
	composer services.ImageComposer
	video    services.VideoSynthesizer
	enhancer services.PromptEnhancer

	pollInterval time.Duration
	pollTimeout  time.Duration
}

// Options carries the optional knobs. Zero values mean defaults: no prompt
// enhancer, 10s poll interval, 10min poll ceiling.
type Options struct {
	Enhancer     services.PromptEnhancer
	PollInterval time.Duration
	PollTimeout  time.Duration
}

func New(
	ledger *credits.Ledger,
	projects ProjectStore,
	assets AssetStore,
	composer services.ImageComposer,
	video services.VideoSynthesizer,
	opts Options,
) *Generator {
	g := &Generator{
		ledger:       ledger,
		projects:     projects,
		assets:       assets,
		composer:     composer,
		video:        video,
		enhancer:     opts.Enhancer,
		pollInterval: opts.PollInterval,
		pollTimeout:  opts.PollTimeout,
	}
	if g.pollInterval <= 0 {
		g.pollInterval = defaultPollInterval
	}
	if g.pollTimeout <= 0 {
		g.pollTimeout = defaultPollTimeout
	}
	return g
}
