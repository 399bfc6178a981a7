package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/naseer2426/ocr-server/internal/health"
	"github.com/naseer2426/ocr-server/internal/ocr"
	"github.com/naseer2426/ocr-server/internal/pipeline"
	"github.com/naseer2426/ocr-server/internal/receipt"
	"github.com/naseer2426/ocr-server/internal/stats"
	"github.com/naseer2426/ocr-server/internal/worker"
)

type fakeEngine struct {
	calls  int32
	blocks []ocr.Block
	err    error
	delay  time.Duration
}

func (e *fakeEngine) Name() string { return "fake" }

func (e *fakeEngine) Recognize(ctx context.Context, in ocr.Input) (ocr.Result, error) {
	atomic.AddInt32(&e.calls, 1)
	if e.delay > 0 {
		time.Sleep(e.delay)
	}
	if e.err != nil {
		return ocr.Result{}, e.err
	}
	return ocr.Result{InputID: in.ID, Blocks: e.blocks, Scored: true}, nil
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestRouter(t *testing.T, engine ocr.Engine, timeout time.Duration) (*gin.Engine, *stats.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	pool := worker.NewPool(2)
	t.Cleanup(pool.Close)
	if timeout == 0 {
		timeout = time.Second
	}
	log := quietLogger()
	p := pipeline.New(engine, pool, pipeline.Options{Language: "eng", Timeout: timeout}, log)
	store := stats.NewStore()
	h := &OCRHandler{
		Pipeline:       p,
		Receipts:       receipt.NewExtractor(nil, log),
		Stats:          store,
		Log:            log,
		MaxUploadBytes: 64 * 1024,
	}

	router := gin.New()
	router.Use(requestid.New())
	router.GET("/", HealthCheck)
	router.GET("/stats", Stats(store))
	router.POST("/ocr", h.Extract)
	router.POST("/ocr/receipt", h.Receipt)
	return router, store
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 8))); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func do(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, rec.Body.String())
	}
	return resp
}

func TestExtractRawBody(t *testing.T) {
	engine := &fakeEngine{blocks: []ocr.Block{
		{Text: "Hello  world", Confidence: 0.9, Bounds: ocr.Region{X: 1, Y: 2, Width: 30, Height: 8}},
	}}
	router, _ := newTestRouter(t, engine, 0)

	req := httptest.NewRequest(http.MethodPost, "/ocr", bytes.NewReader(pngBytes(t)))
	req.Header.Set("Content-Type", "image/png")
	req.Header.Set("X-Request-ID", "req-1")
	rec := do(router, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp OCRResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" || resp.RequestID != "req-1" || resp.Text != "Hello world" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Engine != "fake" || resp.Language != "eng" {
		t.Fatalf("unexpected metadata: %+v", resp)
	}
	if len(resp.Blocks) != 1 || resp.Blocks[0].Bounds != nil {
		t.Fatalf("bounds should be omitted without layout=true: %+v", resp.Blocks)
	}
	if resp.Blocks[0].Confidence == nil || *resp.Blocks[0].Confidence != 0.9 {
		t.Fatalf("expected block confidence: %+v", resp.Blocks[0])
	}
}

func TestExtractLayout(t *testing.T) {
	engine := &fakeEngine{blocks: []ocr.Block{
		{Text: "Total", Confidence: 0.8, Bounds: ocr.Region{X: 4, Y: 5, Width: 20, Height: 9}},
	}}
	router, _ := newTestRouter(t, engine, 0)

	req := httptest.NewRequest(http.MethodPost, "/ocr?layout=true", bytes.NewReader(pngBytes(t)))
	req.Header.Set("Content-Type", "image/png")
	rec := do(router, req)

	var resp OCRResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Blocks) != 1 || resp.Blocks[0].Bounds == nil || resp.Blocks[0].Bounds.Width != 20 {
		t.Fatalf("expected bounds: %+v", resp.Blocks)
	}
}

func TestExtractMultipart(t *testing.T) {
	engine := &fakeEngine{blocks: []ocr.Block{{Text: "form upload", Confidence: 1}}}
	router, _ := newTestRouter(t, engine, 0)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="image"; filename="scan.png"`)
	hdr.Set("Content-Type", "image/png")
	part, err := mw.CreatePart(hdr)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	_, _ = part.Write(pngBytes(t))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/ocr", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := do(router, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestExtractMultipartMissingField(t *testing.T) {
	engine := &fakeEngine{}
	router, _ := newTestRouter(t, engine, 0)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField("note", "no image here")
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/ocr", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := do(router, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if resp := decodeError(t, rec); resp.Error.Kind != pipeline.KindInvalidInput {
		t.Fatalf("unexpected kind: %+v", resp)
	}
	if engine.calls != 0 {
		t.Fatalf("engine was called")
	}
}

func TestExtractErrors(t *testing.T) {
	cases := []struct {
		name        string
		engine      *fakeEngine
		timeout     time.Duration
		body        []byte
		contentType string
		query       string
		status      int
		kind        pipeline.Kind
	}{
		{name: "empty body", engine: &fakeEngine{}, contentType: "image/png", status: http.StatusBadRequest, kind: pipeline.KindInvalidInput},
		{name: "pdf", engine: &fakeEngine{}, body: []byte("%PDF-1.7"), contentType: "application/pdf", status: http.StatusUnsupportedMediaType, kind: pipeline.KindUnsupportedFormat},
		{name: "no content type", engine: &fakeEngine{}, body: []byte("abc"), status: http.StatusUnsupportedMediaType, kind: pipeline.KindUnsupportedFormat},
		{name: "corrupt", engine: &fakeEngine{}, body: []byte("not really a png"), contentType: "image/png", status: http.StatusUnprocessableEntity, kind: pipeline.KindDecodeFailure},
		{name: "bad min_confidence", engine: &fakeEngine{}, query: "?min_confidence=250", contentType: "image/png", status: http.StatusBadRequest, kind: pipeline.KindInvalidInput},
		{name: "too large", engine: &fakeEngine{}, body: make([]byte, 65*1024), contentType: "image/png", status: http.StatusRequestEntityTooLarge, kind: pipeline.KindPayloadTooLarge},
		{name: "engine failure", engine: &fakeEngine{err: errors.New("tesseract exploded at /usr/share/tessdata")}, contentType: "image/png", status: http.StatusInternalServerError, kind: pipeline.KindEngineFailure},
		{name: "timeout", engine: &fakeEngine{delay: 200 * time.Millisecond}, timeout: 20 * time.Millisecond, contentType: "image/png", status: http.StatusGatewayTimeout, kind: pipeline.KindTimeout},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router, store := newTestRouter(t, tc.engine, tc.timeout)
			body := tc.body
			if body == nil && tc.name != "empty body" {
				body = pngBytes(t)
			}
			req := httptest.NewRequest(http.MethodPost, "/ocr"+tc.query, bytes.NewReader(body))
			if tc.contentType != "" {
				req.Header.Set("Content-Type", tc.contentType)
			}
			rec := do(router, req)

			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tc.status, rec.Body.String())
			}
			resp := decodeError(t, rec)
			if resp.Status != "error" || resp.Error.Kind != tc.kind || resp.RequestID == "" {
				t.Fatalf("unexpected error body: %+v", resp)
			}
			if bytes.Contains(rec.Body.Bytes(), []byte("tessdata")) {
				t.Fatalf("internal detail leaked: %s", rec.Body.String())
			}
			if snap := store.Snapshot(); snap.Failed != 1 || snap.FailedByKind[string(tc.kind)] != 1 {
				t.Fatalf("failure not recorded: %+v", snap)
			}
		})
	}
}

func TestRejectedInputNeverReachesEngine(t *testing.T) {
	engine := &fakeEngine{}
	router, _ := newTestRouter(t, engine, 0)

	for _, ct := range []string{"application/pdf", "text/plain", "image/svg+xml"} {
		req := httptest.NewRequest(http.MethodPost, "/ocr", bytes.NewReader([]byte("payload")))
		req.Header.Set("Content-Type", ct)
		do(router, req)
	}
	if engine.calls != 0 {
		t.Fatalf("engine called %d times for rejected input", engine.calls)
	}
}

func TestReceiptPatternFallback(t *testing.T) {
	engine := &fakeEngine{blocks: []ocr.Block{
		{Text: "SHELL STATION", Confidence: 0.9},
		{Text: "Unleaded 95", Confidence: 0.9},
		{Text: "40.00 L", Confidence: 0.9},
		{Text: "TOTAL 72.40", Confidence: 0.9},
	}}
	router, store := newTestRouter(t, engine, 0)

	req := httptest.NewRequest(http.MethodPost, "/ocr/receipt", bytes.NewReader(pngBytes(t)))
	req.Header.Set("Content-Type", "image/png")
	rec := do(router, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp OCRResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Receipt == nil {
		t.Fatalf("missing receipt: %s", rec.Body.String())
	}
	if resp.Receipt.ExtractionMode != "pattern" || resp.Receipt.Status != receipt.StatusManualReview {
		t.Fatalf("unexpected receipt: %+v", resp.Receipt)
	}
	if resp.Receipt.StationName != "SHELL STATION" {
		t.Fatalf("unexpected station: %q", resp.Receipt.StationName)
	}
	if snap := store.Snapshot(); snap.Succeeded != 1 {
		t.Fatalf("success not recorded: %+v", snap)
	}
}

func TestHealthCheck(t *testing.T) {
	router, _ := newTestRouter(t, &fakeEngine{}, 0)
	rec := do(router, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK || !bytes.Contains(rec.Body.Bytes(), []byte(`"ok"`)) {
		t.Fatalf("unexpected health response: %d %s", rec.Code, rec.Body.String())
	}
}

func TestStatusFor(t *testing.T) {
	if got := StatusFor(pipeline.Kind("Unknown")); got != http.StatusInternalServerError {
		t.Fatalf("unknown kinds should map to 500, got %d", got)
	}
}

func TestReadiness(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := &fakeEngine{blocks: []ocr.Block{{Text: "HEALTH CHECK", Confidence: 1}}}
	monitor, err := health.NewMonitor(engine, "eng", "@every 1h", time.Second, quietLogger())
	if err != nil {
		t.Fatalf("NewMonitor() error = %v", err)
	}
	router := gin.New()
	router.GET("/healthz", Readiness(monitor))

	if rec := do(router, httptest.NewRequest(http.MethodGet, "/healthz", nil)); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("unchecked engine should not be ready, got %d", rec.Code)
	}
	monitor.Check(context.Background())
	if rec := do(router, httptest.NewRequest(http.MethodGet, "/healthz", nil)); rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}
