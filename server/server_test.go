package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhpenta/imagestudio"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type recordingGenerator struct {
	mu       sync.Mutex
	requests []imagestudio.GenerationRequest
	fn       func(ctx context.Context, req imagestudio.GenerationRequest) (string, error)
}

func (g *recordingGenerator) GenerateImage(ctx context.Context, req imagestudio.GenerationRequest) (string, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()
	if g.fn != nil {
		return g.fn(ctx, req)
	}
	return "data:image/png;base64,AAAA", nil
}

func (g *recordingGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

func newTestServer(gen imagestudio.Generator) (*Server, http.Handler) {
	s := New(gen, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	return s, s.Handler()
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeView(t *testing.T, w *httptest.ResponseRecorder) SessionView {
	t.Helper()
	var view SessionView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view), w.Body.String())
	return view
}

func createSession(t *testing.T, h http.Handler) string {
	t.Helper()
	w := doJSON(t, h, http.MethodPost, "/api/sessions", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	view := decodeView(t, w)
	require.NotEmpty(t, view.ID)
	return view.ID
}

func TestCreateAndGetSession(t *testing.T) {
	s, h := newTestServer(&recordingGenerator{})

	id := createSession(t, h)
	assert.Equal(t, 1, s.sessions.Len())

	w := doJSON(t, h, http.MethodGet, "/api/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)

	view := decodeView(t, w)
	assert.Equal(t, id, view.ID)
	assert.Equal(t, imagestudio.ModeCreate, view.Mode)
	assert.Equal(t, imagestudio.CreateFree, view.CreateFunction)
	assert.Equal(t, imagestudio.EditAddRemove, view.EditFunction)
	assert.Equal(t, "empty", view.Outcome)
	assert.False(t, view.Loading)
}

func TestUnknownSession(t *testing.T) {
	_, h := newTestServer(&recordingGenerator{})

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/sessions/nope"},
		{http.MethodPatch, "/api/sessions/nope"},
		{http.MethodPost, "/api/sessions/nope/generate"},
		{http.MethodDelete, "/api/sessions/nope/images/1"},
	} {
		w := doJSON(t, h, tc.method, tc.path, map[string]any{})
		assert.Equal(t, http.StatusNotFound, w.Code, tc.path)
		assert.JSONEq(t, `{"error":"session not found"}`, w.Body.String())
	}
}

func TestDeleteSession(t *testing.T) {
	s, h := newTestServer(&recordingGenerator{})
	id := createSession(t, h)

	w := doJSON(t, h, http.MethodDelete, "/api/sessions/"+id, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 0, s.sessions.Len())

	w = doJSON(t, h, http.MethodGet, "/api/sessions/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateSession(t *testing.T) {
	_, h := newTestServer(&recordingGenerator{})
	id := createSession(t, h)

	w := doJSON(t, h, http.MethodPatch, "/api/sessions/"+id, map[string]any{
		"prompt":         "a cat",
		"mode":           "edit",
		"createFunction": "comic",
		"editFunction":   "compose",
	})
	require.Equal(t, http.StatusOK, w.Code)

	view := decodeView(t, w)
	assert.Equal(t, "a cat", view.Prompt)
	assert.Equal(t, imagestudio.ModeEdit, view.Mode)
	assert.Equal(t, imagestudio.CreateComic, view.CreateFunction)
	assert.Equal(t, imagestudio.EditCompose, view.EditFunction)
}

func TestUpdateSession_Rejects(t *testing.T) {
	_, h := newTestServer(&recordingGenerator{})
	id := createSession(t, h)

	tests := []struct {
		name string
		body any
	}{
		{"unknown mode", map[string]any{"mode": "remix"}},
		{"unknown create function", map[string]any{"createFunction": "compose"}},
		{"unknown edit function", map[string]any{"editFunction": "sticker"}},
		{"malformed body", "not an object"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, h, http.MethodPatch, "/api/sessions/"+id, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), `"error"`)
		})
	}
}

func TestModeSwitchClearsImages(t *testing.T) {
	_, h := newTestServer(&recordingGenerator{})
	id := createSession(t, h)

	doJSON(t, h, http.MethodPatch, "/api/sessions/"+id, map[string]any{"mode": "edit"})
	w := doJSON(t, h, http.MethodPut, "/api/sessions/"+id+"/images/1",
		imagestudio.NewImageAttachment([]byte("png"), "image/png", "a.png"))
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, decodeView(t, w).Image1)

	w = doJSON(t, h, http.MethodPatch, "/api/sessions/"+id, map[string]any{"mode": "create"})
	view := decodeView(t, w)
	assert.Nil(t, view.Image1)
	assert.Nil(t, view.Image2)
}

func TestPutImage_JSON(t *testing.T) {
	_, h := newTestServer(&recordingGenerator{})
	id := createSession(t, h)

	w := doJSON(t, h, http.MethodPut, "/api/sessions/"+id+"/images/2",
		imagestudio.NewImageAttachment([]byte("jpeg"), "image/jpeg", "b.jpg"))
	require.Equal(t, http.StatusOK, w.Code)

	view := decodeView(t, w)
	assert.Nil(t, view.Image1)
	require.NotNil(t, view.Image2)
	assert.Equal(t, "b.jpg", view.Image2.Name)
	assert.Equal(t, "image/jpeg", view.Image2.MIMEType)

	w = doJSON(t, h, http.MethodDelete, "/api/sessions/"+id+"/images/2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, decodeView(t, w).Image2)
}

func TestPutImage_Multipart(t *testing.T) {
	_, h := newTestServer(&recordingGenerator{})
	id := createSession(t, h)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Disposition": {`form-data; name="file"; filename="photo.webp"`},
		"Content-Type":        {"application/octet-stream"},
	})
	require.NoError(t, err)
	_, err = part.Write([]byte("webp bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPut, "/api/sessions/"+id+"/images/1", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	view := decodeView(t, w)
	require.NotNil(t, view.Image1)
	assert.Equal(t, "photo.webp", view.Image1.Name)
	assert.Equal(t, "image/webp", view.Image1.MIMEType, "MIME type falls back to the extension")

	img, err := view.Image1.Decode()
	require.NoError(t, err)
	assert.Equal(t, []byte("webp bytes"), img.Data)
}

func TestPutImage_Rejects(t *testing.T) {
	_, h := newTestServer(&recordingGenerator{})
	id := createSession(t, h)

	tests := []struct {
		name string
		slot string
		body any
	}{
		{"unknown slot", "3", imagestudio.NewImageAttachment([]byte("x"), "image/png", "a.png")},
		{"bad base64", "1", imagestudio.ImageAttachment{Base64: "%%%", MIMEType: "image/png"}},
		{"unsupported type", "1", imagestudio.NewImageAttachment([]byte("x"), "application/pdf", "a.pdf")},
		{"empty image", "1", imagestudio.ImageAttachment{MIMEType: "image/png"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, h, http.MethodPut, "/api/sessions/"+id+"/images/"+tt.slot, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}

	w := doJSON(t, h, http.MethodGet, "/api/sessions/"+id, nil)
	assert.Nil(t, decodeView(t, w).Image1, "rejected uploads must not fill a slot")
}

func TestGenerate_ValidationFailure(t *testing.T) {
	gen := &recordingGenerator{}
	_, h := newTestServer(gen)
	id := createSession(t, h)

	w := doJSON(t, h, http.MethodPost, "/api/sessions/"+id+"/generate", nil)
	require.Equal(t, http.StatusOK, w.Code)

	view := decodeView(t, w)
	assert.Equal(t, "failure", view.Outcome)
	assert.Equal(t, imagestudio.MsgEmptyPrompt, view.Error)
	assert.False(t, view.Loading)
	assert.Equal(t, 0, gen.calls())
}

func TestGenerate_Success(t *testing.T) {
	gen := &recordingGenerator{}
	_, h := newTestServer(gen)
	id := createSession(t, h)

	doJSON(t, h, http.MethodPatch, "/api/sessions/"+id, map[string]any{"prompt": "a cat", "createFunction": "sticker"})
	w := doJSON(t, h, http.MethodPost, "/api/sessions/"+id+"/generate", nil)
	require.Equal(t, http.StatusOK, w.Code)

	view := decodeView(t, w)
	assert.Equal(t, "success", view.Outcome)
	assert.Equal(t, "data:image/png;base64,AAAA", view.GeneratedImage)
	assert.Empty(t, view.Error)

	require.Equal(t, 1, gen.calls())
	assert.Equal(t, imagestudio.GenerationRequest{Prompt: "a cat", Mode: imagestudio.ModeCreate, Function: "sticker"}, gen.requests[0])
}

func TestGenerate_GeneratorError(t *testing.T) {
	gen := &recordingGenerator{fn: func(ctx context.Context, req imagestudio.GenerationRequest) (string, error) {
		return "", errors.New("model overloaded")
	}}
	_, h := newTestServer(gen)
	id := createSession(t, h)

	doJSON(t, h, http.MethodPatch, "/api/sessions/"+id, map[string]any{"prompt": "a cat"})
	w := doJSON(t, h, http.MethodPost, "/api/sessions/"+id+"/generate", nil)

	view := decodeView(t, w)
	assert.Equal(t, "failure", view.Outcome)
	assert.Equal(t, "An error occurred: model overloaded", view.Error)
}

func TestGenerate_Busy(t *testing.T) {
	started := make(chan struct{})
	unblock := make(chan struct{})
	gen := &recordingGenerator{fn: func(ctx context.Context, req imagestudio.GenerationRequest) (string, error) {
		close(started)
		<-unblock
		return "data:image/png;base64,AAAA", nil
	}}
	_, h := newTestServer(gen)
	id := createSession(t, h)
	doJSON(t, h, http.MethodPatch, "/api/sessions/"+id, map[string]any{"prompt": "a cat"})

	done := make(chan *httptest.ResponseRecorder)
	go func() {
		done <- doJSON(t, h, http.MethodPost, "/api/sessions/"+id+"/generate", nil)
	}()
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("first generate never started")
	}

	w := doJSON(t, h, http.MethodPost, "/api/sessions/"+id+"/generate", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), imagestudio.ErrSubmissionInFlight.Error())

	close(unblock)
	first := <-done
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, 1, gen.calls())
}

func TestEvents_StreamsSnapshots(t *testing.T) {
	s, h := newTestServer(&recordingGenerator{})
	srv := httptest.NewServer(h)
	defer srv.Close()

	id, session := s.sessions.Create()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/sessions/"+id+"/events", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	events := make(chan SessionView, 4)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			data, ok := strings.CutPrefix(scanner.Text(), "data:")
			if !ok {
				continue
			}
			var view SessionView
			if json.Unmarshal([]byte(data), &view) == nil {
				events <- view
			}
		}
		close(events)
	}()

	first := <-events
	assert.Equal(t, id, first.ID)
	assert.Empty(t, first.Prompt)

	session.SetPrompt("a lighthouse")

	select {
	case view := <-events:
		assert.Equal(t, "a lighthouse", view.Prompt)
	case <-time.After(2 * time.Second):
		t.Fatal("no event after prompt change")
	}
}

func TestSendLatest_KeepsNewestWhenFull(t *testing.T) {
	ch := make(chan imagestudio.Snapshot, 2)

	for _, prompt := range []string{"a", "b", "c", "d"} {
		sendLatest(ch, imagestudio.Snapshot{Prompt: prompt})
	}

	require.Len(t, ch, 2)
	assert.Equal(t, "c", (<-ch).Prompt)
	assert.Equal(t, "d", (<-ch).Prompt)
}

func TestCORS(t *testing.T) {
	s := New(&recordingGenerator{}, WithAllowedOrigins("http://localhost:5173"))
	h := s.Handler()

	req := httptest.NewRequest(http.MethodOptions, "/api/sessions", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
}
