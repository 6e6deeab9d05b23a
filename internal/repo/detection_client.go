package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/persondetect/detect-console/internal/metrics"
	"github.com/persondetect/detect-console/internal/models"
	"github.com/persondetect/detect-console/internal/utils"
)

// Fallback messages used when the backend does not explain a failure.
const (
	MsgUploadFailed = "Upload failed"
	MsgFetchFailed  = "Failed to fetch detections"
	MsgDeleteFailed = "Failed to delete detection"
)

const maxErrorBody = 64 << 10

// HTTPDoer is the subset of *http.Client used by DetectionClient.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Option customises a DetectionClient.
type Option func(*DetectionClient)

// WithHTTPDoer replaces the default *http.Client, e.g. with a test double.
func WithHTTPDoer(doer HTTPDoer) Option {
	return func(c *DetectionClient) {
		if doer != nil {
			c.httpClient = doer
		}
	}
}

// DetectionClient maps typed requests onto the detection backend REST API.
// It keeps no state between calls beyond latency samples; every call is one round trip.
type DetectionClient struct {
	baseURL    string
	httpClient HTTPDoer
	logger     *slog.Logger
	latencies  *utils.LatencyTracker
}

// NewDetectionClient constructs a client for the API rooted at baseURL (e.g. http://host:8000/api).
func NewDetectionClient(baseURL string, timeout time.Duration, logger *slog.Logger, opts ...Option) *DetectionClient {
	if logger == nil {
		logger = slog.Default()
	}
	c := &DetectionClient{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		latencies:  utils.NewLatencyTracker(256),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the normalised API base.
func (c *DetectionClient) BaseURL() string { return c.baseURL }

// ImageURL builds the public URL of a stored image: the API base without a trailing
// "/api" segment, followed by /uploads/{path}.
func (c *DetectionClient) ImageURL(imagePath string) string {
	return ImageURL(c.baseURL, imagePath)
}

// ImageURL is the package-level form of DetectionClient.ImageURL.
func ImageURL(baseURL, imagePath string) string {
	base := strings.TrimSuffix(strings.TrimRight(baseURL, "/"), "/api")
	return base + "/uploads/" + strings.TrimLeft(imagePath, "/")
}

// Upload sends one image as multipart field "file" and returns the processed image reference.
func (c *DetectionClient) Upload(ctx context.Context, filename string, data []byte) (models.UploadResult, error) {
	const op = "upload image"
	if len(data) == 0 {
		return models.UploadResult{}, &utils.AppError{Kind: utils.ErrUpload, Op: op, Msg: "No image data provided"}
	}
	if filename == "" {
		filename = "image"
	}

	body, contentType, err := multipartImage(filename, data)
	if err != nil {
		return models.UploadResult{}, &utils.AppError{Kind: utils.ErrUpload, Op: op, Msg: MsgUploadFailed, Err: err}
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.resolvePath("/upload")+"/", body)
	if err != nil {
		return models.UploadResult{}, &utils.AppError{Kind: utils.ErrUpload, Op: op, Msg: MsgUploadFailed, Err: err}
	}
	req.Header.Set("Content-Type", contentType)

	var response detectionWire
	if err := c.send(req, metrics.OpUpload, op, utils.ErrUpload, MsgUploadFailed, &response); err != nil {
		return models.UploadResult{}, err
	}
	if strings.TrimSpace(response.DetectedImagePath) == "" {
		return models.UploadResult{}, &utils.AppError{Kind: utils.ErrUpload, Op: op, Msg: MsgUploadFailed, Err: errors.New("response missing detected_image_path")}
	}

	result := models.UploadResult{DetectedImagePath: response.DetectedImagePath}
	if response.ID != nil {
		record, err := response.toRecord()
		if err != nil {
			c.logger.Debug("upload response carried an unusable detection record", slog.Any("error", err))
		} else {
			result.Detection = &record
		}
	}
	c.logger.Info("image uploaded", slog.String("file", filename), slog.String("detected_image_path", result.DetectedImagePath))
	return result, nil
}

// ListDetections fetches one page of detections for the given criteria.
// Only present filter fields are sent; skip and limit are always sent.
func (c *DetectionClient) ListDetections(ctx context.Context, criteria models.FilterCriteria, page int) (models.ResultPage, error) {
	const op = "list detections"
	if page < 1 {
		page = 1
	}

	query := url.Values{}
	query.Set("skip", strconv.Itoa(models.Skip(page)))
	query.Set("limit", strconv.Itoa(models.PageSize))
	for key, value := range criteria.QueryParams() {
		query.Set(key, value)
	}

	req, err := c.newRequest(ctx, http.MethodGet, c.resolvePath("/detections")+"?"+query.Encode(), nil)
	if err != nil {
		return models.ResultPage{}, &utils.AppError{Kind: utils.ErrFetch, Op: op, Msg: MsgFetchFailed, Err: err}
	}

	var response struct {
		Items []detectionWire `json:"items"`
		Total *int            `json:"total"`
	}
	if err := c.send(req, metrics.OpList, op, utils.ErrFetch, MsgFetchFailed, &response); err != nil {
		return models.ResultPage{}, err
	}

	result, err := toResultPage(response.Items, response.Total)
	if err != nil {
		return models.ResultPage{}, &utils.AppError{Kind: utils.ErrFetch, Op: op, Msg: "Malformed detections response", Err: err}
	}
	c.logger.Debug("detections fetched",
		slog.Int("page", page),
		slog.Int("items", len(result.Items)),
		slog.Int("total", result.Total),
	)
	return result, nil
}

// DeleteDetection removes one detection. A 404 is reported as a DeleteError that
// also matches utils.ErrNotFound so callers may treat it as already done.
func (c *DetectionClient) DeleteDetection(ctx context.Context, id int64) error {
	const op = "delete detection"
	endpoint := c.resolvePath("/detections/" + strconv.FormatInt(id, 10))
	req, err := c.newRequest(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return &utils.AppError{Kind: utils.ErrDelete, Op: op, Msg: MsgDeleteFailed, Err: err}
	}
	if err := c.send(req, metrics.OpDelete, op, utils.ErrDelete, MsgDeleteFailed, nil); err != nil {
		return err
	}
	c.logger.Info("detection deleted", slog.Int64("id", id))
	return nil
}

func (c *DetectionClient) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	if c.baseURL == "" {
		return nil, errors.New("detection API base URL not configured")
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *DetectionClient) resolvePath(p string) string {
	cleaned := "/" + strings.TrimLeft(p, "/")
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String()
}

// send performs one round trip, classifies failures under kind and decodes a 2xx body into out.
func (c *DetectionClient) send(req *http.Request, metricOp, op string, kind error, fallback string, out any) error {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(metricOp, start, metrics.OutcomeNetwork)
		c.logger.Warn("detection API unreachable", slog.String("op", op), slog.Any("error", err))
		return &utils.AppError{Kind: kind, Op: op, Msg: fallback, Err: fmt.Errorf("%w: %w", utils.ErrNetwork, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.observe(metricOp, start, metrics.OutcomeError)
		appErr := &utils.AppError{
			Kind:   kind,
			Op:     op,
			Msg:    fallback,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("backend returned %s", resp.Status),
		}
		if detail := readDetail(resp.Body); detail != "" {
			appErr.Msg = detail
		}
		if resp.StatusCode == http.StatusNotFound {
			appErr.Err = fmt.Errorf("%w: backend returned %s", utils.ErrNotFound, resp.Status)
		}
		c.logger.Warn("detection API rejected request",
			slog.String("op", op),
			slog.Int("status", resp.StatusCode),
			slog.String("detail", appErr.Msg),
		)
		return appErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		c.observe(metricOp, start, metrics.OutcomeSuccess)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.observe(metricOp, start, metrics.OutcomeError)
		return &utils.AppError{Kind: kind, Op: op, Msg: fallback, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	c.observe(metricOp, start, metrics.OutcomeSuccess)
	return nil
}

func (c *DetectionClient) observe(metricOp string, start time.Time, outcome string) {
	duration := time.Since(start)
	metrics.ObserveRequest(metricOp, duration, outcome)
	c.latencies.Observe(duration)
	if count := c.latencies.Count(); count >= 20 && count%20 == 0 {
		c.logger.Info("detection API latency", slog.Duration("p95", c.latencies.Percentile(95)), slog.Int("samples", count))
	}
}

// readDetail extracts the "detail" message of an error body. Validation errors carry
// a list of objects with "msg" fields instead of a string.
func readDetail(body io.Reader) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.NewDecoder(io.LimitReader(body, maxErrorBody)).Decode(&payload); err != nil || len(payload.Detail) == 0 {
		return ""
	}

	var text string
	if err := json.Unmarshal(payload.Detail, &text); err == nil {
		return strings.TrimSpace(text)
	}

	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(payload.Detail, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, item := range items {
			if item.Msg != "" {
				msgs = append(msgs, item.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// multipartImage encodes data as form field "file" with an image content type,
// since the backend rejects parts that are not image/*.
func multipartImage(filename string, data []byte) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(filepath.Base(filename))))
	header.Set("Content-Type", imageContentType(filename, data))

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", fmt.Errorf("copy image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart body: %w", err)
	}
	return body, writer.FormDataContentType(), nil
}

func imageContentType(filename string, data []byte) string {
	sniffed := http.DetectContentType(data)
	if strings.HasPrefix(sniffed, "image/") {
		return sniffed
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); byExt != "" {
		return byExt
	}
	return sniffed
}
