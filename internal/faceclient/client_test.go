package faceclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"rollcall/internal/face"
)

func TestExtract_ParsesFaces(t *testing.T) {
	var gotImage string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/detect" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		f, _, err := r.FormFile("image")
		if err != nil {
			t.Errorf("missing image field: %v", err)
			return
		}
		data, _ := io.ReadAll(f)
		gotImage = string(data)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"faces": []map[string]any{
				{"embedding": []float32{0.1, 0.2}, "box": map[string]int{"top": 1, "right": 20, "bottom": 30, "left": 4}},
				{"embedding": []float32{0.3, 0.4}, "box": map[string]int{"top": 5, "right": 60, "bottom": 70, "left": 8}},
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, false, time.Second)
	dets, err := c.Extract(context.Background(), []byte("jpeg-bytes"))
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	if gotImage != "jpeg-bytes" {
		t.Errorf("server received %q", gotImage)
	}
	if len(dets) != 2 {
		t.Fatalf("expected 2 detections, got %d", len(dets))
	}
	if dets[1].Box.Right != 60 || dets[1].Embedding[0] != 0.3 {
		t.Errorf("unexpected second detection %+v", dets[1])
	}
}

func TestExtract_ZeroFacesIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"faces":[]}`))
	}))
	defer srv.Close()

	dets, err := New(srv.URL, false, time.Second).Extract(context.Background(), []byte("x"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(dets) != 0 {
		t.Errorf("expected no detections, got %d", len(dets))
	}
}

func TestExtract_ServiceError(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		unavailable bool
	}{
		{"model not loaded", http.StatusServiceUnavailable, true},
		{"crashed", http.StatusInternalServerError, true},
		{"rejected", http.StatusBadRequest, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, tt.name, tt.status)
			}))
			defer srv.Close()

			_, err := New(srv.URL, false, time.Second).Extract(context.Background(), []byte("x"))
			if err == nil || !strings.Contains(err.Error(), tt.name) {
				t.Fatalf("expected service error, got %v", err)
			}
			if got := errors.Is(err, face.ErrModelUnavailable); got != tt.unavailable {
				t.Errorf("errors.Is(ErrModelUnavailable) = %v, want %v", got, tt.unavailable)
			}
		})
	}
}

func TestExtract_ServiceDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := New(url, false, time.Second).Extract(context.Background(), []byte("x"))
	if !errors.Is(err, face.ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}
}

func TestExtract_EmptyImage(t *testing.T) {
	if _, err := New("http://unused", false, time.Second).Extract(context.Background(), nil); err == nil {
		t.Fatal("expected error for empty image")
	}
}

func TestSkipModeIsDeterministic(t *testing.T) {
	c := New("", true, 0)
	a, err := c.Extract(context.Background(), []byte("same"))
	if err != nil {
		t.Fatal(err)
	}
	b, _ := c.Extract(context.Background(), []byte("same"))
	other, _ := c.Extract(context.Background(), []byte("different"))

	if len(a) != 1 || len(a[0].Embedding) != skipDim {
		t.Fatalf("expected one %d-d detection, got %+v", skipDim, a)
	}
	for i := range a[0].Embedding {
		if a[0].Embedding[i] != b[0].Embedding[i] {
			t.Fatal("skip embeddings differ for identical input")
		}
	}
	same := true
	for i := range a[0].Embedding {
		if a[0].Embedding[i] != other[0].Embedding[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("skip embeddings identical for different input")
	}
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	if err := New(srv.URL, false, time.Second).Health(context.Background()); err != nil {
		t.Errorf("expected healthy, got %v", err)
	}
	if err := New(srv.URL+"/missing", false, time.Second).Health(context.Background()); err == nil {
		t.Error("expected unhealthy for 404")
	}
}
