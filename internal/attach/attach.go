// Package attach turns user-supplied image references into values the relay
// server accepts: http(s) URLs, data URIs or raw base64.
package attach

import (
	"encoding/base64"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	apierrors "github.com/diogo/geminichat/internal/errors"
)

// MaxFileSize is the largest local image that will be inlined
const MaxFileSize = 20 * 1024 * 1024

// Resolve normalizes one image reference. Local files are read and inlined
// as data URIs.
func Resolve(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", apierrors.NewAttachmentError(ref, "empty reference")
	}

	lower := strings.ToLower(ref)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return ref, nil
	}
	if strings.HasPrefix(lower, "data:") {
		if !strings.HasPrefix(lower, "data:image/") || !strings.Contains(ref, ",") {
			return "", apierrors.NewAttachmentError(ref, "data URI is not an image")
		}
		return ref, nil
	}

	if info, err := os.Stat(ref); err == nil {
		if info.IsDir() {
			return "", apierrors.NewAttachmentError(ref, "is a directory")
		}
		return encodeFile(ref, info.Size())
	}

	if isBase64(ref) {
		return ref, nil
	}
	return "", apierrors.NewAttachmentError(ref, "not a URL, data URI, image file or base64 data")
}

// ResolveAll resolves refs in order, stopping at the first failure
func ResolveAll(refs []string) ([]string, error) {
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		resolved, err := Resolve(ref)
		if err != nil {
			return nil, err
		}
		out = append(out, resolved)
	}
	return out, nil
}

func encodeFile(path string, size int64) (string, error) {
	if size > MaxFileSize {
		return "", apierrors.NewAttachmentError(path,
			fmt.Sprintf("file is %d bytes, limit is %d", size, MaxFileSize))
	}
	if size == 0 {
		return "", apierrors.NewAttachmentError(path, "file is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", apierrors.NewAttachmentError(path, fmt.Sprintf("failed to read: %v", err))
	}

	mimeType := detectMIME(path, data)
	if !strings.HasPrefix(mimeType, "image/") {
		return "", apierrors.NewAttachmentError(path, fmt.Sprintf("unsupported content type %s", mimeType))
	}

	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

func detectMIME(path string, data []byte) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); t != "" {
		if i := strings.IndexByte(t, ';'); i >= 0 {
			t = t[:i]
		}
		return t
	}
	return http.DetectContentType(data)
}

func isBase64(s string) bool {
	if len(s) < 4 || len(s)%4 != 0 {
		return false
	}
	_, err := base64.StdEncoding.DecodeString(s)
	return err == nil
}
