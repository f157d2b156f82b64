package models

import (
	"time"

	"github.com/google/uuid"
)

// User mirrors the identity provider's user record plus the credit balances.
// The ID is the opaque verified id supplied by the identity provider, so it is
// a string rather than a UUID.
type User struct {
	ID              string    `json:"id"`
	Email           string    `json:"email"`
	Name            *string   `json:"name,omitempty"`
	Image           *string   `json:"image,omitempty"`
	Credits         int       `json:"credits"`
	DailyCredits    int       `json:"daily_credits"`
	LastCreditReset time.Time `json:"last_credit_reset"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Project is one generation request: two uploaded source photos composed into
// a product shot, optionally animated into a short video.
//
// Output invariant: a video never exists without an image. IsGenerating is set
// before any external call of a phase and cleared on every terminal path.
type Project struct {
	ID                 uuid.UUID `json:"id"`
	UserID             string    `json:"user_id"`
	Name               string    `json:"name"`
	ProductName        string    `json:"product_name"`
	ProductDescription *string   `json:"product_description,omitempty"`
	UserPrompt         *string   `json:"user_prompt,omitempty"`
	AspectRatio        *string   `json:"aspect_ratio,omitempty"` // "9:16", "16:9", "1:1", "4:5"
	TargetLength       int       `json:"target_length"`          // requested video length in seconds
	UploadedImages     []string  `json:"uploaded_images"`
	GeneratedImage     *string   `json:"generated_image,omitempty"`
	GeneratedVideo     *string   `json:"generated_video,omitempty"`
	IsGenerating       bool      `json:"is_generating"`
	IsPublished        bool      `json:"is_published"`
	Error              *string   `json:"error,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// HasImage reports whether the image phase has produced an output.
func (p *Project) HasImage() bool {
	return p.GeneratedImage != nil && *p.GeneratedImage != ""
}

// HasVideo reports whether the video phase has produced an output.
func (p *Project) HasVideo() bool {
	return p.GeneratedVideo != nil && *p.GeneratedVideo != ""
}

// DTOs for API responses

type CreateProjectResponse struct {
	ProjectID uuid.UUID `json:"project_id"`
}

type CreateVideoResponse struct {
	ProjectID uuid.UUID `json:"project_id"`
	Queued    bool      `json:"queued"`
}

type ListProjectsResponse struct {
	Projects []Project `json:"projects"`
}

type UserResponse struct {
	User User `json:"user"`
}
