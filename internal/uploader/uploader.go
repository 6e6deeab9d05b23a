// Package uploader holds the single pending image upload and its preview.
package uploader

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/persondetect/detect-console/internal/dialog"
	"github.com/persondetect/detect-console/internal/models"
	"github.com/persondetect/detect-console/internal/preview"
	"github.com/persondetect/detect-console/internal/utils"
)

// MsgRetry is shown when an upload fails without a more specific explanation.
const MsgRetry = "Upload failed. Please try again."

// MsgNotImage rejects selections that are not images.
const MsgNotImage = "Please select an image file"

// API is the subset of the detection client the uploader needs.
type API interface {
	Upload(ctx context.Context, filename string, data []byte) (models.UploadResult, error)
	ImageURL(imagePath string) string
}

// State is the upload lifecycle position.
type State int

const (
	StateNone State = iota
	StateSelected
	StateUploading
	StateDetected
)

func (s State) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateSelected:
		return "selected"
	case StateUploading:
		return "uploading"
	case StateDetected:
		return "detected"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// View is a copy of the uploader state for rendering.
type View struct {
	State       State
	FileName    string
	FileSize    int
	PreviewRef  string
	DetectedURL string
	Detection   *models.DetectionRecord
}

// DisplayURL is the image to show: the processed image once detected, else the preview.
func (v View) DisplayURL() string {
	if v.DetectedURL != "" {
		return v.DetectedURL
	}
	return v.PreviewRef
}

// Uploader owns one selected file at a time. onSuccess is called once per
// successful upload, without payload.
type Uploader struct {
	api       API
	previews  *preview.Store
	notify    dialog.Notifier
	onSuccess func()
	logger    *slog.Logger

	mu          sync.Mutex
	state       State
	fileName    string
	fileSize    int
	previewRef  string
	detectedURL string
	detection   *models.DetectionRecord
	generation  uint64
}

// New constructs an Uploader in the none state.
func New(api API, previews *preview.Store, notify dialog.Notifier, onSuccess func(), logger *slog.Logger) *Uploader {
	if logger == nil {
		logger = slog.Default()
	}
	if previews == nil {
		previews = preview.NewStore(nil, 0, logger)
	}
	return &Uploader{
		api:       api,
		previews:  previews,
		notify:    notify,
		onSuccess: onSuccess,
		logger:    logger,
	}
}

// SelectPath reads an image from disk and selects it.
func (u *Uploader) SelectPath(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return u.fail(utils.NewAppError("select file", "Cannot read "+filepath.Base(path), err))
	}
	return u.SelectFile(ctx, filepath.Base(path), data)
}

// SelectFile replaces the current selection, releasing its preview.
func (u *Uploader) SelectFile(ctx context.Context, name string, data []byte) error {
	const op = "select file"
	if len(data) == 0 || !isImage(name, data) {
		return u.fail(utils.NewValidationError(op, MsgNotImage))
	}

	u.mu.Lock()
	busy := u.state == StateUploading
	u.mu.Unlock()
	if busy {
		return u.fail(&utils.AppError{Kind: utils.ErrBusy, Op: op, Msg: "An upload is in progress"})
	}

	info, err := u.previews.Create(ctx, name, data)
	if err != nil {
		return u.fail(utils.NewAppError(op, "Cannot preview "+name, err))
	}

	u.mu.Lock()
	if u.state == StateUploading {
		u.mu.Unlock()
		u.release(ctx, info.Ref)
		return u.fail(&utils.AppError{Kind: utils.ErrBusy, Op: op, Msg: "An upload is in progress"})
	}
	old := u.previewRef
	u.state = StateSelected
	u.fileName = info.Name
	u.fileSize = info.Size
	u.previewRef = info.Ref
	u.detectedURL = ""
	u.detection = nil
	u.mu.Unlock()

	u.release(ctx, old)
	u.logger.Debug("file selected", slog.String("file", info.Name), slog.Int("bytes", info.Size))
	return nil
}

// Submit uploads the selected file. It is only valid in the selected state.
func (u *Uploader) Submit(ctx context.Context) error {
	const op = "submit upload"

	u.mu.Lock()
	switch u.state {
	case StateUploading:
		u.mu.Unlock()
		return u.fail(&utils.AppError{Kind: utils.ErrBusy, Op: op, Msg: "An upload is already in progress"})
	case StateNone, StateDetected:
		u.mu.Unlock()
		return u.fail(&utils.AppError{Kind: utils.ErrNoFile, Op: op, Msg: "Select an image first"})
	}
	u.state = StateUploading
	name, ref, gen := u.fileName, u.previewRef, u.generation
	u.mu.Unlock()

	data, err := u.previews.Open(ctx, ref)
	var result models.UploadResult
	if err == nil {
		result, err = u.api.Upload(ctx, name, data)
	}

	u.mu.Lock()
	if gen != u.generation {
		u.mu.Unlock()
		u.logger.Info("upload finished after reset", slog.String("file", name), slog.Bool("ok", err == nil))
		if err == nil {
			u.fireSuccess()
		}
		return err
	}
	if err != nil {
		u.state = StateSelected
		u.mu.Unlock()
		u.logger.Error("upload failed", slog.String("file", name), slog.Any("error", err))
		return u.fail(err)
	}
	u.state = StateDetected
	u.detectedURL = u.api.ImageURL(result.DetectedImagePath)
	u.detection = result.Detection
	u.previewRef = ""
	u.mu.Unlock()

	u.release(ctx, ref)
	u.logger.Info("detection complete", slog.String("file", name), slog.String("image", result.DetectedImagePath))
	u.fireSuccess()
	return nil
}

// Reset discards the selection, its preview and any detected image. An upload in
// flight is abandoned: its result is not shown.
func (u *Uploader) Reset(ctx context.Context) {
	u.mu.Lock()
	ref := u.previewRef
	u.state = StateNone
	u.fileName = ""
	u.fileSize = 0
	u.previewRef = ""
	u.detectedURL = ""
	u.detection = nil
	u.generation++
	u.mu.Unlock()

	u.release(ctx, ref)
}

// Close releases any live preview.
func (u *Uploader) Close() error {
	u.Reset(context.Background())
	return nil
}

// View returns a copy of the current state.
func (u *Uploader) View() View {
	u.mu.Lock()
	defer u.mu.Unlock()
	return View{
		State:       u.state,
		FileName:    u.fileName,
		FileSize:    u.fileSize,
		PreviewRef:  u.previewRef,
		DetectedURL: u.detectedURL,
		Detection:   u.detection,
	}
}

// DisplayURL is shorthand for View().DisplayURL().
func (u *Uploader) DisplayURL() string {
	return u.View().DisplayURL()
}

// fail alerts the user with the message of err and returns it.
func (u *Uploader) fail(err error) error {
	if u.notify != nil {
		u.notify.Notify(utils.UserMessage(err, MsgRetry))
	}
	return err
}

func (u *Uploader) fireSuccess() {
	if u.onSuccess != nil {
		u.onSuccess()
	}
}

func (u *Uploader) release(ctx context.Context, ref string) {
	if err := u.previews.Release(ctx, ref); err != nil {
		u.logger.Warn("failed to release preview", slog.String("ref", ref), slog.Any("error", err))
	}
}

func isImage(name string, data []byte) bool {
	if strings.HasPrefix(http.DetectContentType(data), "image/") {
		return true
	}
	return strings.HasPrefix(mime.TypeByExtension(strings.ToLower(filepath.Ext(name))), "image/")
}
