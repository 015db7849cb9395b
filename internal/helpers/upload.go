package helpers

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"path"
	"regexp"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/google/uuid"
)

const (
	ServiceImageFolder = "services"

	// MaxUploadBytes is the hard ceiling for a single image upload.
	MaxUploadBytes = 5 * 1024 * 1024
)

// allowedImageTypes is the strict upload policy: images only.
var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

var versionSegment = regexp.MustCompile(`^v\d+$`)

// ValidateImagePayload enforces the size ceiling and image-only MIME policy
// before anything is sent to the blob store. The content type is sniffed from
// the payload, not trusted from the request.
func ValidateImagePayload(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("empty image payload")
	}
	if len(data) > MaxUploadBytes {
		return fmt.Errorf("image exceeds %d byte limit", MaxUploadBytes)
	}
	contentType := http.DetectContentType(data)
	if !allowedImageTypes[contentType] {
		return fmt.Errorf("invalid file type %s; only JPEG, PNG, GIF and WebP images are allowed", contentType)
	}
	return nil
}

// UploadImage stores one image and returns its public URL.
func UploadImage(ctx context.Context, cld *cloudinary.Cloudinary, data []byte, originalName, folder string) (string, error) {
	if err := ValidateImagePayload(data); err != nil {
		return "", err
	}

	ext := strings.TrimPrefix(path.Ext(originalName), ".")
	publicID := uuid.New().String()
	if ext != "" {
		publicID = publicID + "_" + ext
	}

	result, err := cld.Upload.Upload(ctx, bytes.NewReader(data), uploader.UploadParams{
		Folder:   folder,
		PublicID: publicID,
		Tags:     []string{"kisan-mitra"},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload image %s: %v", originalName, err)
	}
	return result.SecureURL, nil
}

// UploadImages stores a batch and returns the URLs in input order.
func UploadImages(ctx context.Context, cld *cloudinary.Cloudinary, files [][]byte, names []string, folder string) ([]string, error) {
	urls := make([]string, 0, len(files))
	for i, data := range files {
		name := ""
		if i < len(names) {
			name = names[i]
		}
		url, err := UploadImage(ctx, cld, data, name, folder)
		if err != nil {
			return nil, err
		}
		urls = append(urls, url)
	}
	return urls, nil
}

// PublicIDFromURL recovers the Cloudinary public ID from a delivery URL so
// images can be deleted by the URL we stored.
func PublicIDFromURL(rawURL string) (string, bool) {
	parts := strings.Split(rawURL, "/upload/")
	if len(parts) != 2 {
		return "", false
	}
	segments := strings.Split(parts[1], "/")
	if len(segments) > 0 && versionSegment.MatchString(segments[0]) {
		segments = segments[1:]
	}
	if len(segments) == 0 {
		return "", false
	}
	id := strings.Join(segments, "/")
	if ext := path.Ext(id); ext != "" {
		id = strings.TrimSuffix(id, ext)
	}
	return id, id != ""
}

// DeleteImage removes one image by URL. Best effort: unknown URLs and
// already-deleted assets report success.
func DeleteImage(ctx context.Context, cld *cloudinary.Cloudinary, rawURL string) bool {
	publicID, ok := PublicIDFromURL(rawURL)
	if !ok {
		return false
	}
	_, err := cld.Upload.Destroy(ctx, uploader.DestroyParams{PublicID: publicID})
	return err == nil
}

// DeleteImages removes a batch by URL and reports whether every delete
// succeeded. Failures are left to the caller to log; they never abort the
// operation that triggered the cleanup.
func DeleteImages(ctx context.Context, cld *cloudinary.Cloudinary, urls []string) bool {
	ok := true
	for _, u := range urls {
		if !DeleteImage(ctx, cld, u) {
			ok = false
		}
	}
	return ok
}
