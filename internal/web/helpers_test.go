package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/foodops/internal/catalog"
	"github.com/JonMunkholm/foodops/internal/config"
	"github.com/JonMunkholm/foodops/internal/core"
	_ "github.com/JonMunkholm/foodops/internal/core/kinds"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Server.RequestTimeout = 5 * time.Second
	cfg.Upload.MaxFileSize = 1 << 20
	cfg.Upload.DefaultDelimiter = ","
	cfg.Import.PreviewPageSize = 2
	return cfg
}

// seededCatalog holds products P1 and P2.
func seededCatalog() *catalog.Memory {
	return catalog.NewMemory(
		catalog.Entity{ID: "p1", Kind: catalog.KindProduct, Name: "Espresso", Code: "P1"},
		catalog.Entity{ID: "p2", Kind: catalog.KindProduct, Name: "Latte", Code: "P2"},
	)
}

// newTestServer builds a server over c. mutate may adjust the config.
func newTestServer(t *testing.T, c catalog.Catalog, mutate func(*config.Config)) *Server {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(cfg)
	}
	svc := core.NewService(c, core.Options{
		MaxFileSize:          cfg.Upload.MaxFileSize,
		MaxConcurrentUploads: 2,
		MaxUploadWait:        time.Second,
	})
	srv := NewServer(svc, cfg)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func serve(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

// doJSON sends body (nil for none) as JSON.
func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			r = strings.NewReader(b)
		default:
			data, err := json.Marshal(b)
			if err != nil {
				t.Fatalf("marshal body: %v", err)
			}
			r = bytes.NewReader(data)
		}
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return serve(srv, req)
}

// uploadRequest builds a multipart upload of content named filename. An
// empty filename omits the file part.
func uploadRequest(t *testing.T, kind, filename, content string, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := io.WriteString(fw, content); err != nil {
			t.Fatalf("write file: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/imports/"+kind, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// upload starts an import and requires it to succeed.
func upload(t *testing.T, srv *Server, kind string, lines ...string) core.SessionView {
	t.Helper()
	rec := serve(srv, uploadRequest(t, kind, "import.csv", strings.Join(lines, "\n")+"\n", nil))
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload status = %d, body %s", rec.Code, rec.Body.String())
	}
	return decode[core.SessionView](t, rec)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %T: %v (body %s)", v, err, rec.Body.String())
	}
	return v
}

// expectError checks status and user message code.
func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) ErrorResponse {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, status, rec.Body.String())
	}
	resp := decode[ErrorResponse](t, rec)
	if resp.Code != code {
		t.Errorf("code = %q, want %q (message %q)", resp.Code, code, resp.Message)
	}
	return resp
}
