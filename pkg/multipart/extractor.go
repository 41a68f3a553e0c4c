// Package multipart extracts a named image field from a multipart/form-data
// body without going through a text codec, so binary payloads survive
// byte-exact. mime/multipart.Reader is deliberately not used here: it rejects
// framings (missing closing boundary, loose header blocks) that real clients
// produce and that this extractor must tolerate.
package multipart

import (
	"bytes"
	"fmt"
	"mime"
	"strings"

	"watermarkd/internal/domain"
)

var crlfcrlf = []byte("\r\n\r\n")

// Extract returns the raw bytes of the first segment whose headers carry
// name="<fieldName>" and an image/* content type. A body without such a field
// yields domain.ErrNotFound; a content type without a boundary token yields
// domain.ErrMalformedMultipart.
func Extract(body []byte, contentType, fieldName string) ([]byte, error) {
	boundary, err := parseBoundary(contentType)
	if err != nil {
		return nil, err
	}

	delim := []byte("--" + boundary)
	parts := bytes.Split(body, delim)
	if len(parts) < 3 {
		// Preamble, at least one segment, and the closing segment.
		return nil, domain.ErrNotFound
	}

	// Skip the preamble and the closing segment.
	for _, part := range parts[1 : len(parts)-1] {
		idx := bytes.Index(part, crlfcrlf)
		if idx == -1 {
			// Segment without a header/content separator; skipped, not fatal.
			continue
		}

		headers := string(part[:idx])
		if !matchesField(headers, fieldName) {
			continue
		}

		content := part[idx+len(crlfcrlf):]
		// The multipart framing terminates the content with one CRLF before
		// the next boundary; strip exactly that.
		content = bytes.TrimSuffix(content, []byte("\r\n"))

		out := make([]byte, len(content))
		copy(out, content)
		return out, nil
	}

	return nil, domain.ErrNotFound
}

// matchesField is a structural header check, not content sniffing: the
// segment must declare the field name and an image content type.
func matchesField(headers, fieldName string) bool {
	return strings.Contains(headers, `name="`+fieldName+`"`) &&
		strings.Contains(headers, "Content-Type: image/")
}

func parseBoundary(contentType string) (string, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrMalformedMultipart, err)
	}
	if !strings.HasPrefix(mediaType, "multipart/") {
		return "", fmt.Errorf("%w: content type %q is not multipart", domain.ErrMalformedMultipart, mediaType)
	}
	boundary, ok := params["boundary"]
	if !ok || boundary == "" {
		return "", fmt.Errorf("%w: missing boundary token", domain.ErrMalformedMultipart)
	}
	return boundary, nil
}
