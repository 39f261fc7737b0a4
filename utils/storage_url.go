package utils

import (
	"net/url"
	"os"
	"strings"
)

// BuildObjectAccessURL returns the public URL of an object key. STORAGE_ACCESS_BASE_URL
// may carry a {objectKey} placeholder; otherwise GCS_URL/GCS_BUCKET are joined.
func BuildObjectAccessURL(objectKey string) string {
	base := strings.TrimSpace(os.Getenv("STORAGE_ACCESS_BASE_URL"))
	if base != "" {
		if strings.Contains(base, "{objectKey}") {
			escaped := objectKey
			if strings.Contains(base, "?") {
				escaped = url.QueryEscape(objectKey)
			}
			return strings.ReplaceAll(base, "{objectKey}", escaped)
		}
		return strings.TrimRight(base, "/") + "/" + objectKey
	}

	gcsURL := strings.TrimSpace(os.Getenv("GCS_URL"))
	if gcsURL == "" {
		gcsURL = "storage.googleapis.com"
	}
	if bucket := strings.TrimSpace(os.Getenv("GCS_BUCKET")); bucket != "" {
		return "https://" + gcsURL + "/" + bucket + "/" + objectKey
	}
	return objectKey
}

// ExtractObjectKeyFromURL reverses BuildObjectAccessURL. It also accepts raw
// keys, gs:// URIs and the common storage.googleapis.com forms. Unknown
// URLs yield "".
func ExtractObjectKeyFromURL(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" || strings.Contains(rawURL, "..") {
		return ""
	}

	if !strings.Contains(rawURL, "://") && !strings.HasPrefix(rawURL, "/") && strings.Contains(rawURL, "/") {
		return rawURL
	}

	if strings.HasPrefix(rawURL, "gs://") {
		parts := strings.SplitN(strings.TrimPrefix(rawURL, "gs://"), "/", 2)
		if len(parts) == 2 {
			return parts[1]
		}
		return ""
	}

	base := strings.TrimSpace(os.Getenv("STORAGE_ACCESS_BASE_URL"))
	if base != "" && strings.Contains(base, "{objectKey}") {
		parts := strings.SplitN(base, "{objectKey}", 2)
		if strings.HasPrefix(rawURL, parts[0]) && strings.HasSuffix(rawURL, parts[1]) {
			trimmed := strings.TrimSuffix(strings.TrimPrefix(rawURL, parts[0]), parts[1])
			if decoded, err := url.QueryUnescape(trimmed); err == nil {
				return decoded
			}
			return trimmed
		}
	} else if base != "" && strings.HasPrefix(rawURL, strings.TrimRight(base, "/")+"/") {
		return strings.TrimPrefix(rawURL, strings.TrimRight(base, "/")+"/")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	if key := parsed.Query().Get("objectKey"); key != "" {
		return key
	}
	host := strings.ToLower(parsed.Host)
	p := strings.TrimPrefix(parsed.Path, "/")
	switch {
	case host == "storage.googleapis.com" || host == "storage.cloud.google.com":
		parts := strings.SplitN(p, "/", 2)
		if len(parts) == 2 && parts[1] != "" {
			return parts[1]
		}
	case strings.HasSuffix(host, ".storage.googleapis.com"):
		return p
	}
	return ""
}
