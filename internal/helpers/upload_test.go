package helpers

import (
	"strings"
	"testing"
)

// Minimal valid magic bytes, enough for http.DetectContentType.
var (
	pngHeader  = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0}
	jpegHeader = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0, 0, 0}
	gifHeader  = []byte("GIF89a\x00\x00")
)

func TestValidateImagePayload(t *testing.T) {
	for name, data := range map[string][]byte{
		"png":  pngHeader,
		"jpeg": jpegHeader,
		"gif":  gifHeader,
	} {
		if err := ValidateImagePayload(data); err != nil {
			t.Errorf("%s payload rejected: %v", name, err)
		}
	}
}

func TestValidateImagePayloadRejectsNonImages(t *testing.T) {
	if err := ValidateImagePayload([]byte("%PDF-1.7 not an image")); err == nil {
		t.Error("PDF payload should be rejected")
	}
	if err := ValidateImagePayload([]byte("<!DOCTYPE html><html></html>")); err == nil {
		t.Error("HTML payload should be rejected")
	}
	if err := ValidateImagePayload(nil); err == nil {
		t.Error("empty payload should be rejected")
	}
}

func TestValidateImagePayloadRejectsOversize(t *testing.T) {
	data := make([]byte, MaxUploadBytes+1)
	copy(data, pngHeader)
	if err := ValidateImagePayload(data); err == nil {
		t.Error("payload above the size ceiling should be rejected")
	}
	if !strings.Contains(ValidateImagePayload(data).Error(), "limit") {
		t.Error("oversize error should mention the limit")
	}
}

func TestPublicIDFromURL(t *testing.T) {
	tests := []struct {
		url    string
		wantID string
		wantOK bool
	}{
		{
			url:    "https://res.cloudinary.com/demo/image/upload/v1712345678/services/abc-123_jpg.jpg",
			wantID: "services/abc-123_jpg",
			wantOK: true,
		},
		{
			// No version segment.
			url:    "https://res.cloudinary.com/demo/image/upload/services/abc-123.png",
			wantID: "services/abc-123",
			wantOK: true,
		},
		{
			// No extension.
			url:    "https://res.cloudinary.com/demo/image/upload/v1/services/abc",
			wantID: "services/abc",
			wantOK: true,
		},
		{url: "https://example.com/not-cloudinary.jpg", wantOK: false},
		{url: "", wantOK: false},
	}
	for _, tt := range tests {
		id, ok := PublicIDFromURL(tt.url)
		if ok != tt.wantOK {
			t.Errorf("PublicIDFromURL(%q) ok = %v, want %v", tt.url, ok, tt.wantOK)
			continue
		}
		if ok && id != tt.wantID {
			t.Errorf("PublicIDFromURL(%q) = %q, want %q", tt.url, id, tt.wantID)
		}
	}
}
