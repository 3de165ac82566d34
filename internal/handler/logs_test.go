package handler

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"rollcall/internal/auth"
)

func logsRouter(logFile string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := New(&fakePipeline{}, &fakeRoster{}, &fakeAttendance{}, auth.NewIssuer("rollcall", "key", time.Minute, "op", "dev"), Options{
		LogFile: logFile,
		Logger:  log.New(io.Discard, "", 0),
	})
	r := gin.New()
	h.Register(r, auth.Open(), auth.Open())
	return r
}

func getLogs(t *testing.T, r *gin.Engine) []string {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/logs", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", w.Code, w.Body.String())
	}
	var body struct {
		Logs []string `json:"logs"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Logs == nil {
		t.Fatalf("logs must be a JSON array, got %s", w.Body.String())
	}
	return body.Logs
}

func TestLogs_ReadsCurrentAndRotatedFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rollcall.log")
	files := map[string]string{
		path:        "current 1\n\n  current 2  \n",
		path + ".1": "older\n",
		path + ".5": "oldest\n",
		path + ".6": "beyond retention\n",
	}
	for name, content := range files {
		if err := os.WriteFile(name, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	got := strings.Join(getLogs(t, logsRouter(path)), "|")
	if want := "current 1|current 2|older|oldest"; got != want {
		t.Errorf("logs = %q, want %q", got, want)
	}
}

func TestLogs_MissingFiles(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"not configured", ""},
		{"not written yet", filepath.Join(t.TempDir(), "rollcall.log")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if logs := getLogs(t, logsRouter(tt.path)); len(logs) != 0 {
				t.Errorf("expected no lines, got %v", logs)
			}
		})
	}
}
