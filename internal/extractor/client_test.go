package extractor

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestExtractFaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/embed/face" {
			t.Errorf("expected /embed/face, got %s", r.URL.Path)
		}
		if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			t.Errorf("expected multipart content type, got %s", r.Header.Get("Content-Type"))
		}

		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Fatalf("failed to parse multipart form: %v", err)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("missing file part: %v", err)
		}
		defer file.Close()
		if header.Header.Get("Content-Type") != "image/jpeg" {
			t.Errorf("expected image/jpeg part, got %s", header.Header.Get("Content-Type"))
		}

		resp := Result{
			FacesCount: 2,
			Model:      "buffalo_s",
			Faces: []FaceDetection{
				{FaceIndex: 0, Dim: 4, Embedding: []float32{1, 2, 3, 4}, BBox: []float64{10, 10, 90, 110}, DetScore: 0.92},
				{FaceIndex: 1, Dim: 4, Embedding: []float32{5, 6, 7, 8}, BBox: []float64{120, 30, 180, 100}, DetScore: 0.71},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := New(server.URL, 5*time.Second)

	// FF D8 FF marks the payload as JPEG.
	result, err := client.ExtractFaces(context.Background(), []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0, 0, 0})
	if err != nil {
		t.Fatalf("ExtractFaces failed: %v", err)
	}

	if result.FacesCount != 2 {
		t.Errorf("expected 2 faces, got %d", result.FacesCount)
	}
	if len(result.Faces) != 2 {
		t.Fatalf("expected 2 face entries, got %d", len(result.Faces))
	}
	if result.Faces[0].FaceIndex != 0 || result.Faces[1].FaceIndex != 1 {
		t.Errorf("unexpected face indexes: %d, %d", result.Faces[0].FaceIndex, result.Faces[1].FaceIndex)
	}
	if result.Faces[0].DetScore != 0.92 {
		t.Errorf("expected det score 0.92, got %v", result.Faces[0].DetScore)
	}
	if result.Model != "buffalo_s" {
		t.Errorf("expected model buffalo_s, got %q", result.Model)
	}
}

func TestExtractFaces_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := New(server.URL, 5*time.Second)

	_, err := client.ExtractFaces(context.Background(), []byte{0xFF, 0xD8, 0xFF, 0})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "status 500") {
		t.Errorf("expected status in error, got: %v", err)
	}
}

func TestExtractFaces_ContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The server only watches for client disconnect once the request
		// body has been consumed, so drain it before stalling; otherwise
		// the context is never canceled and Close deadlocks.
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer server.Close()

	client := New(server.URL, 5*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := client.ExtractFaces(ctx, []byte{0xFF, 0xD8, 0xFF, 0})
	if err == nil {
		t.Fatal("expected error after context timeout, got nil")
	}
}

func TestUsableFaces(t *testing.T) {
	faces := []FaceDetection{
		{FaceIndex: 0, Embedding: []float32{1, 2}, BBox: []float64{0, 0, 100, 100}, DetScore: 0.9},
		{FaceIndex: 1, Embedding: []float32{1, 2}, BBox: []float64{0, 0, 20, 20}, DetScore: 0.9},   // too narrow
		{FaceIndex: 2, Embedding: []float32{1, 2}, BBox: []float64{0, 0, 100, 100}, DetScore: 0.3}, // too uncertain
		{FaceIndex: 3, Embedding: []float32{1}, BBox: []float64{0, 0, 100, 100}, DetScore: 0.9},    // wrong dim
		{FaceIndex: 4, Embedding: []float32{3, 4}, BBox: []float64{0, 0, 35, 40}, DetScore: 0.5},   // exactly at both minimums
	}

	usable := UsableFaces(faces, 35, 0.5, 2)

	if len(usable) != 2 {
		t.Fatalf("expected 2 usable faces, got %d", len(usable))
	}
	if usable[0].FaceIndex != 0 || usable[1].FaceIndex != 4 {
		t.Errorf("unexpected usable faces: %d, %d", usable[0].FaceIndex, usable[1].FaceIndex)
	}
}

func TestDetectMIMEType(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected string
	}{
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0, 0, 0}, "image/jpeg"},
		{"png", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, "image/png"},
		{"gif", []byte{0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0, 0}, "image/gif"},
		{"webp", []byte{0x52, 0x49, 0x46, 0x46, 0, 0, 0, 0, 0x57, 0x45, 0x42, 0x50}, "image/webp"},
		{"unknown", []byte{0, 1, 2, 3, 4, 5, 6, 7}, "application/octet-stream"},
		{"too short", []byte{0xFF}, "application/octet-stream"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := detectMIMEType(tc.data); got != tc.expected {
				t.Errorf("detectMIMEType(%s) = %q; want %q", tc.name, got, tc.expected)
			}
		})
	}
}
