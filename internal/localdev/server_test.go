package localdev

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/persondetect/detect-console/internal/models"
	"github.com/persondetect/detect-console/internal/repo"
	"github.com/persondetect/detect-console/internal/utils"
)

var jpegBytes = []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00\x01\x01")

func newTestServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	dir := t.TempDir()
	srv, err := NewServer(newTestStore(t), HashDetector{}, dir, utils.DiscardLogger())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, dir
}

func TestClientAgainstMockBackend(t *testing.T) {
	ctx := context.Background()
	ts, dir := newTestServer(t)
	client := repo.NewDetectionClient(ts.URL+"/api", 5*time.Second, utils.DiscardLogger())

	var uploaded []models.UploadResult
	for i := 0; i < 12; i++ {
		img := append(append([]byte(nil), jpegBytes...), byte(i))
		result, err := client.Upload(ctx, "frame.jpg", img)
		if err != nil {
			t.Fatalf("upload %d: %v", i, err)
		}
		uploaded = append(uploaded, result)
	}

	first := uploaded[0]
	if !strings.HasPrefix(first.DetectedImagePath, "detected_") || first.Detection == nil {
		t.Fatalf("unexpected upload result %+v", first)
	}
	if _, err := os.Stat(filepath.Join(dir, first.DetectedImagePath)); err != nil {
		t.Fatalf("detected image not written: %v", err)
	}

	resp, err := http.Get(client.ImageURL(first.DetectedImagePath))
	if err != nil {
		t.Fatalf("fetch image: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || len(body) != len(jpegBytes)+1 {
		t.Fatalf("image not served at %s: %d", client.ImageURL(first.DetectedImagePath), resp.StatusCode)
	}

	page, err := client.ListDetections(ctx, models.FilterCriteria{}, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 12 || page.TotalPages() != 2 || len(page.Items) != 2 {
		t.Fatalf("unexpected page %+v", page)
	}
	if page.Items[1].ID != first.Detection.ID {
		t.Fatalf("expected oldest detection last on page 2, got %d", page.Items[1].ID)
	}

	filtered, err := client.ListDetections(ctx, models.FilterCriteria{MinConfidence: models.FloatPtr(1)}, 1)
	if err != nil {
		t.Fatalf("filtered list: %v", err)
	}
	if filtered.Total != 0 {
		t.Fatalf("expected no detection at confidence 1, got %d", filtered.Total)
	}

	if err := client.DeleteDetection(ctx, first.Detection.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, first.DetectedImagePath)); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("image file left behind: %v", err)
	}
	err = client.DeleteDetection(ctx, first.Detection.ID)
	if !errors.Is(err, utils.ErrNotFound) || utils.UserMessage(err, "") != "Detection not found" {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestClientSurfacesBackendValidation(t *testing.T) {
	ctx := context.Background()
	ts, _ := newTestServer(t)
	client := repo.NewDetectionClient(ts.URL+"/api", 5*time.Second, utils.DiscardLogger())

	_, err := client.ListDetections(ctx, models.FilterCriteria{MinPeople: models.IntPtr(-1)}, 1)
	if !errors.Is(err, utils.ErrFetch) {
		t.Fatalf("expected fetch error, got %v", err)
	}
	if msg := utils.UserMessage(err, ""); msg != "Input should be greater than or equal to 0" {
		t.Fatalf("unexpected message %q", msg)
	}

	_, err = client.Upload(ctx, "notes.txt", []byte("just some text"))
	if msg := utils.UserMessage(err, ""); msg != "File must be an image" {
		t.Fatalf("unexpected upload message %q (%v)", msg, err)
	}
}

func TestUploadRequiresFileField(t *testing.T) {
	ts, _ := newTestServer(t)

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	_ = w.WriteField("other", "x")
	_ = w.Close()
	resp, err := http.Post(ts.URL+"/api/upload/", w.FormDataContentType(), body)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
	var payload struct {
		Detail []fieldError `json:"detail"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil || len(payload.Detail) != 1 || payload.Detail[0].Msg != "Field required" {
		t.Fatalf("unexpected body %+v %v", payload, err)
	}
}

func TestListRejectsBadParams(t *testing.T) {
	ts, _ := newTestServer(t)
	for _, query := range []string{
		"limit=0",
		"skip=-5",
		"min_people=abc",
		"max_people=-1",
		"min_confidence=1.5",
		"min_confidence=-0.1",
		"min_confidence=NaN",
	} {
		resp, err := http.Get(ts.URL + "/api/detections?" + query)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnprocessableEntity {
			t.Fatalf("%s: expected 422, got %d", query, resp.StatusCode)
		}
	}
}

func TestDeleteRejectsNonNumericID(t *testing.T) {
	ts, _ := newTestServer(t)
	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/detections/abc", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
}

func TestImageRouteAndHealth(t *testing.T) {
	ts, dir := newTestServer(t)
	if err := os.WriteFile(filepath.Join(dir, "detected_x.jpg"), jpegBytes, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	for path, want := range map[string]int{
		"/healthz":                    http.StatusOK,
		"/api/images/detected_x.jpg":  http.StatusOK,
		"/api/images/missing.jpg":     http.StatusNotFound,
		"/api/images/../../etc/hosts": http.StatusNotFound,
		"/uploads/detected_x.jpg":     http.StatusOK,
	} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("get %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != want {
			t.Fatalf("%s: expected %d, got %d", path, want, resp.StatusCode)
		}
	}
}
