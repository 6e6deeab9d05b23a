package repo

import (
	"bytes"
	"io"
	"net/http"
	"testing"

	"github.com/persondetect/detect-console/internal/utils"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newTestClient(rt roundTripFunc) *http.Client {
	return &http.Client{Transport: rt}
}

func jsonResponse(status int, body string) *http.Response {
	header := make(http.Header)
	header.Set("Content-Type", "application/json")
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
		Header:     header,
	}
}

func newClientWith(t *testing.T, baseURL string, rt roundTripFunc) *DetectionClient {
	t.Helper()
	return NewDetectionClient(baseURL, 0, utils.DiscardLogger(), WithHTTPDoer(newTestClient(rt)))
}
