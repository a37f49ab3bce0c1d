package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/irlmbm/companion-backend/internal/broker"
	"github.com/irlmbm/companion-backend/internal/companion_service/store"
	"github.com/irlmbm/companion-backend/internal/models"
	"github.com/irlmbm/companion-backend/pkg/logger"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

const (
	defaultAudioExt         = ".webm"
	defaultAudioContentType = "audio/webm"
)

// UploadExecutor runs audio_upload tasks as a forward-only state
// machine: Pending → Uploading → Uploaded → CleanedUp, with Failed
// reachable from Uploading. A terminal success schedules a retention
// sweep for the user; a terminal failure leaves the local file in
// place for manual recovery.
type UploadExecutor struct {
	jobs       store.UploadJobStore
	audio      store.AudioStore
	publisher  broker.Publisher
	maxAgeDays int
	now        func() time.Time
	logger     *logger.Logger
}

// NewUploadExecutor creates a new UploadExecutor.
func NewUploadExecutor(jobs store.UploadJobStore, audio store.AudioStore, publisher broker.Publisher, maxAgeDays int, logger *logger.Logger) *UploadExecutor {
	return &UploadExecutor{
		jobs:       jobs,
		audio:      audio,
		publisher:  publisher,
		maxAgeDays: maxAgeDays,
		now:        time.Now,
		logger:     logger,
	}
}

// Execute runs one upload attempt. Retried attempts restart from
// Pending, so the state machine re-enters cleanly after a failure.
func (e *UploadExecutor) Execute(ctx context.Context, envelope *models.TaskEnvelope) (*models.TaskResult, error) {
	var payload models.AudioUploadPayload
	if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
		return nil, Permanent(fmt.Errorf("%w: malformed upload payload: %v", ErrValidation, err))
	}
	if payload.AudioBase64 == "" && payload.LocalPath == "" {
		return nil, Permanent(fmt.Errorf("%w: upload payload carries neither audio data nor a local path", ErrValidation))
	}

	job := &models.UploadJobState{
		RequestID: envelope.RequestID,
		UserID:    envelope.UserID,
		LocalPath: payload.LocalPath,
		State:     models.UploadStatePending,
		Attempt:   envelope.Attempt,
	}
	if err := e.jobs.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save upload job: %w", err)
	}

	// Pending → Uploading: read the local blob into memory.
	if err := e.setState(ctx, job, models.UploadStateUploading, ""); err != nil {
		return nil, err
	}
	data, err := e.readBlob(payload)
	if err != nil {
		return nil, e.fail(ctx, job, err)
	}

	ext, contentType := sniffAudio(payload.LocalPath, data)
	key := fmt.Sprintf("audio/%s/%s%s", envelope.UserID, e.now().UTC().Format("20060102_150405"), ext)

	// Uploading → Uploaded: push the bytes to the remote store.
	if err := e.audio.Put(ctx, key, data, contentType); err != nil {
		return nil, e.fail(ctx, job, fmt.Errorf("failed to upload audio: %w", err))
	}
	url := e.audio.URL(key)
	if err := e.setState(ctx, job, models.UploadStateUploaded, url); err != nil {
		return nil, e.fail(ctx, job, err)
	}

	// Uploaded → CleanedUp: remove the local blob. The canonical copy is
	// now remote, so a cleanup failure is logged and the state advances
	// anyway; the local file may be orphaned.
	if payload.LocalPath != "" {
		if err := os.Remove(payload.LocalPath); err != nil {
			e.logger.WithError(models.ErrorInfo{Message: err.Error()}).WithPayload(map[string]interface{}{
				"local_path": payload.LocalPath,
			}).Warn("Failed to remove local audio file after upload")
		}
	}
	if err := e.setState(ctx, job, models.UploadStateCleanedUp, ""); err != nil {
		e.logger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Failed to record cleaned_up state")
	}

	e.scheduleSweep(ctx, envelope.UserID)

	return &models.TaskResult{
		Success:   true,
		URL:       url,
		Filename:  key,
		RequestID: envelope.RequestID,
		Timestamp: e.now().UTC(),
	}, nil
}

// fail records the Failed state and passes the original error through.
// Every error after the job enters Uploading goes through here, so a
// stuck in-flight record never lingers past the attempt that owned it.
func (e *UploadExecutor) fail(ctx context.Context, job *models.UploadJobState, err error) error {
	if stateErr := e.setState(ctx, job, models.UploadStateFailed, ""); stateErr != nil {
		e.logger.WithError(models.ErrorInfo{Message: stateErr.Error()}).Error("Failed to record upload failure state")
	}
	return err
}

// setState advances the job state, enforcing the forward-only machine.
func (e *UploadExecutor) setState(ctx context.Context, job *models.UploadJobState, next models.UploadState, remoteURL string) error {
	if !job.State.CanTransition(next) {
		return Permanent(fmt.Errorf("illegal upload state transition %s -> %s", job.State, next))
	}
	if err := e.jobs.SetState(ctx, job.RequestID, next, remoteURL); err != nil {
		return fmt.Errorf("failed to persist upload state %s: %w", next, err)
	}
	job.State = next
	if remoteURL != "" {
		job.RemoteURL = remoteURL
	}
	return nil
}

// readBlob loads the audio bytes from the payload.
func (e *UploadExecutor) readBlob(payload models.AudioUploadPayload) ([]byte, error) {
	if payload.AudioBase64 != "" {
		encoded := payload.AudioBase64
		// Strip a data-URL prefix if the client sent one.
		if idx := strings.Index(encoded, "base64,"); idx >= 0 {
			encoded = encoded[idx+len("base64,"):]
		}
		data, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, Permanent(fmt.Errorf("%w: invalid base64 audio data: %v", ErrValidation, err))
		}
		return data, nil
	}

	data, err := os.ReadFile(payload.LocalPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read local audio file %s: %w", payload.LocalPath, err)
	}
	return data, nil
}

// scheduleSweep fire-and-forgets a retention sweep for the user.
// Failures are logged; the upload result does not depend on it.
func (e *UploadExecutor) scheduleSweep(ctx context.Context, userID string) {
	envelope, err := broker.NewEnvelope(models.TaskKindRetentionSweep, models.RetentionSweepPayload{
		MaxAgeDays: e.maxAgeDays,
	}, userID, uuid.New().String(), "")
	if err != nil {
		e.logger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Failed to build retention sweep envelope")
		return
	}
	if err := e.publisher.Publish(ctx, envelope); err != nil {
		e.logger.WithError(models.ErrorInfo{Message: err.Error()}).WithPayload(map[string]interface{}{
			"user_id": userID,
		}).Error("Failed to schedule retention sweep")
	}
}

// sniffAudio derives the object extension and content type, preferring
// the original filename and falling back to content sniffing.
func sniffAudio(localPath string, data []byte) (ext, contentType string) {
	if localPath != "" {
		if e := filepath.Ext(localPath); e != "" {
			return e, mimeByExt(e)
		}
	}
	if mt := mimetype.Detect(data); mt != nil && strings.HasPrefix(mt.String(), "audio/") {
		return mt.Extension(), mt.String()
	}
	return defaultAudioExt, defaultAudioContentType
}

// mimeByExt maps the few recording formats clients produce.
func mimeByExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".webm":
		return "audio/webm"
	case ".ogg":
		return "audio/ogg"
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	default:
		return defaultAudioContentType
	}
}
