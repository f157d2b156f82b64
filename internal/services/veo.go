package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"google.golang.org/genai"
)

const defaultVeoModel = "veo-3.1-generate-preview"

// VeoService synthesizes short product videos from a still image via Google's
// Veo models. Jobs are asynchronous: the caller starts a job, polls its
// handle, and downloads the result once done.
type VeoService struct {
	apiKey string
	model  string
}

func NewVeoService(apiKey, model string) *VeoService {
	if model == "" {
		model = defaultVeoModel
	}
	return &VeoService{
		apiKey: apiKey,
		model:  model,
	}
}

// veoJob wraps a genai long-running operation together with the client that
// started it, so polls and the final download reuse the same connection.
type veoJob struct {
	client *genai.Client
	op     *genai.GenerateVideosOperation
}

func (j *veoJob) Done() bool {
	return j.op.Done
}

func (j *veoJob) Failed() error {
	if len(j.op.Error) == 0 {
		return nil
	}
	errJSON, _ := json.Marshal(j.op.Error)
	return fmt.Errorf("video generation operation failed: %s", string(errJSON))
}

func (j *veoJob) HasOutput() bool {
	resp := j.op.Response
	if resp == nil {
		return false
	}
	if resp.RAIMediaFilteredCount > 0 {
		return false
	}
	return len(resp.GeneratedVideos) > 0 && resp.GeneratedVideos[0].Video != nil
}

// StartVideoJob submits an asynchronous video-synthesis job with the image as
// the first frame and returns its handle.
func (s *VeoService) StartVideoJob(ctx context.Context, req VideoJobRequest) (VideoJobHandle, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  s.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	firstFrame := &genai.Image{
		ImageBytes: req.Image.Data,
		MIMEType:   req.Image.MIMEType,
	}

	aspectRatio := req.AspectRatio
	if aspectRatio == "" {
		aspectRatio = "9:16"
	}

	config := &genai.GenerateVideosConfig{
		AspectRatio:    aspectRatio,
		Resolution:     "720p",
		NumberOfVideos: 1,
	}

	log.Printf("[Veo] Starting video generation (model=%s, promptLen=%d, imageSize=%d bytes)", s.model, len(req.Prompt), len(req.Image.Data))

	op, err := client.Models.GenerateVideos(ctx, s.model, req.Prompt, firstFrame, config)
	if err != nil {
		return nil, fmt.Errorf("failed to start video generation: %w", err)
	}

	log.Printf("[Veo] Operation started: %s", op.Name)

	return &veoJob{client: client, op: op}, nil
}

// PollVideoJob queries the operation once and returns a fresh handle.
// Each poll is idempotent and side-effect-free.
func (s *VeoService) PollVideoJob(ctx context.Context, job VideoJobHandle) (VideoJobHandle, error) {
	j, ok := job.(*veoJob)
	if !ok {
		return nil, fmt.Errorf("unexpected job handle type %T", job)
	}

	op, err := j.client.Operations.GetVideosOperation(ctx, j.op, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to poll operation: %w", err)
	}

	return &veoJob{client: j.client, op: op}, nil
}

// DownloadVideo fetches the produced video bytes from a completed job.
func (s *VeoService) DownloadVideo(ctx context.Context, job VideoJobHandle) ([]byte, error) {
	j, ok := job.(*veoJob)
	if !ok {
		return nil, fmt.Errorf("unexpected job handle type %T", job)
	}

	resp := j.op.Response
	if resp == nil {
		return nil, fmt.Errorf("no response in completed operation %s", j.op.Name)
	}

	if resp.RAIMediaFilteredCount > 0 {
		reasons := "unknown"
		if len(resp.RAIMediaFilteredReasons) > 0 {
			reasons = strings.Join(resp.RAIMediaFilteredReasons, ", ")
		}
		return nil, fmt.Errorf("video blocked by safety filters: %d video(s) filtered, reasons: %s", resp.RAIMediaFilteredCount, reasons)
	}

	if len(resp.GeneratedVideos) == 0 || resp.GeneratedVideos[0].Video == nil {
		return nil, fmt.Errorf("no videos in response for operation %s", j.op.Name)
	}

	downloadURI := genai.NewDownloadURIFromVideo(resp.GeneratedVideos[0].Video)
	videoBytes, err := j.client.Files.Download(ctx, downloadURI, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to download generated video: %w", err)
	}

	if len(videoBytes) == 0 {
		return nil, fmt.Errorf("downloaded video is empty (0 bytes)")
	}

	log.Printf("[Veo] Video downloaded (%d bytes)", len(videoBytes))

	return videoBytes, nil
}
