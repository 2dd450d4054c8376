package detectctl

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"detectd/pkg/types"
)

func TestAnalyzeRequestFromFile(t *testing.T) {
	d := t.TempDir()
	p := filepath.Join(d, "img.png")
	if err := os.WriteFile(p, []byte("pixels"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	req, err := analyzeRequestFromFile(p, "a, b ,", true, 1500)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if got, _ := base64.StdEncoding.DecodeString(req.ImageBase64); string(got) != "pixels" {
		t.Fatalf("payload = %q", got)
	}
	if !strings.HasPrefix(req.MIME, "image/png") {
		t.Fatalf("mime = %q", req.MIME)
	}
	if len(req.Detectors) != 2 || req.Detectors[0] != "a" || req.Detectors[1] != "b" {
		t.Fatalf("detectors = %v", req.Detectors)
	}
	if req.Parallel == nil || *req.Parallel {
		t.Fatalf("sequential flag not mapped")
	}
	if req.TimeoutMs != 1500 {
		t.Fatalf("timeout = %d", req.TimeoutMs)
	}

	if _, err := analyzeRequestFromFile(filepath.Join(d, "missing.png"), "", false, 0); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestStatusCommandAgainstServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/status" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(types.StatusResponse{RunsTotal: 3})
	}))
	defer srv.Close()

	root := BuildRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--server", srv.URL, "status"})
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("execute: %v", err)
	}
	var st types.StatusResponse
	if err := json.Unmarshal(out.Bytes(), &st); err != nil || st.RunsTotal != 3 {
		t.Fatalf("output = %s", out.String())
	}
}

func TestCacheRequiresSubcommand(t *testing.T) {
	root := BuildRootCmd()
	root.SetArgs([]string{"cache"})
	if err := root.ExecuteContext(context.Background()); err == nil {
		t.Fatalf("bare cache must error")
	}
}
