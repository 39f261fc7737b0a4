package utils

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"github.com/disintegration/imaging"
	"github.com/rentiq/rentiq_backend/config"
	"google.golang.org/api/option"
)

const (
	MaxUploadBytes     = 10 << 20
	ThumbnailMaxWidth  = 320
	ThumbnailMaxHeight = 320
)

var AllowedUploadTypes = map[string]bool{
	"application/pdf":          true,
	"application/msword":       true,
	"application/vnd.ms-excel": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":       true,
	"text/csv":   true,
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

var (
	gcsClient   *storage.Client
	gcsClientMu sync.Mutex
)

// GetGCSClient returns the shared storage client, created through the storage gate.
// It prefers ADC and falls back to GCS_CREDENTIALS_JSON when set.
func GetGCSClient(ctx context.Context) (*storage.Client, error) {
	gcsClientMu.Lock()
	defer gcsClientMu.Unlock()
	if gcsClient != nil {
		return gcsClient, nil
	}
	g := config.EnsureGate(config.GateStorage, 3, 15*time.Second)
	g.Reset()
	err := g.Run(ctx, func(ctx context.Context) error {
		var opts []option.ClientOption
		if credJSON := strings.TrimSpace(os.Getenv("GCS_CREDENTIALS_JSON")); credJSON != "" {
			opts = append(opts, option.WithCredentialsJSON([]byte(credJSON)))
		}
		c, err := storage.NewClient(ctx, opts...)
		if err != nil {
			return err
		}
		gcsClient = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return gcsClient, nil
}

func gcsBucket(ctx context.Context) (*storage.BucketHandle, error) {
	bucketName := strings.TrimSpace(os.Getenv("GCS_BUCKET"))
	if bucketName == "" {
		return nil, errors.New("GCS_BUCKET is required")
	}
	client, err := GetGCSClient(ctx)
	if err != nil {
		return nil, err
	}
	return client.Bucket(bucketName), nil
}

// DetectUploadType sniffs data and corrects the zip-based office formats by extension.
func DetectUploadType(objectName string, data []byte) string {
	mimeType := http.DetectContentType(data)
	if strings.HasPrefix(mimeType, "text/plain") && strings.EqualFold(path.Ext(objectName), ".csv") {
		return "text/csv"
	}
	if mimeType == "application/zip" {
		switch strings.ToLower(path.Ext(objectName)) {
		case ".docx":
			return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
		case ".xlsx":
			return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		}
	}
	return mimeType
}

func UploadBytesToGCS(ctx context.Context, objectName string, data []byte, contentType string) error {
	bucket, err := gcsBucket(ctx)
	if err != nil {
		return err
	}
	wc := bucket.Object(objectName).NewWriter(ctx)
	wc.ContentType = contentType
	if _, err := wc.Write(data); err != nil {
		_ = wc.Close()
		return fmt.Errorf("failed to upload %s: %w", objectName, err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close writer: %w", err)
	}
	return nil
}

// ReadObjectFromGCS downloads at most MaxUploadBytes of objectName.
func ReadObjectFromGCS(ctx context.Context, objectName string) ([]byte, string, error) {
	bucket, err := gcsBucket(ctx)
	if err != nil {
		return nil, "", err
	}
	r, err := bucket.Object(objectName).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, "", ErrorRecordNotFound
		}
		return nil, "", err
	}
	defer r.Close()
	data, err := io.ReadAll(io.LimitReader(r, MaxUploadBytes+1))
	if err != nil {
		return nil, "", err
	}
	if len(data) > MaxUploadBytes {
		return nil, "", fmt.Errorf("object %s exceeds %d bytes", objectName, MaxUploadBytes)
	}
	return data, r.Attrs.ContentType, nil
}

func DeleteObjectFromGCS(ctx context.Context, objectName string) error {
	bucket, err := gcsBucket(ctx)
	if err != nil {
		return err
	}
	err = bucket.Object(objectName).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	return err
}

func ObjectExistsInGCS(ctx context.Context, objectName string) (bool, error) {
	bucket, err := gcsBucket(ctx)
	if err != nil {
		return false, err
	}
	_, err = bucket.Object(objectName).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ThumbnailKey is where the thumbnail of objectKey is stored.
func ThumbnailKey(objectKey string) string {
	dir, file := path.Split(objectKey)
	ext := path.Ext(file)
	return dir + "thumbs/" + strings.TrimSuffix(file, ext) + ".jpg"
}

// MakeThumbnail decodes an image and fits it inside the thumbnail box as JPEG.
func MakeThumbnail(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	thumb := imaging.Fit(img, ThumbnailMaxWidth, ThumbnailMaxHeight, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(80)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// StoreThumbnail builds and uploads the thumbnail for an image object and returns its key.
func StoreThumbnail(ctx context.Context, objectKey string, data []byte) (string, error) {
	thumb, err := MakeThumbnail(data)
	if err != nil {
		return "", err
	}
	key := ThumbnailKey(objectKey)
	if err := UploadBytesToGCS(ctx, key, thumb, "image/jpeg"); err != nil {
		return "", err
	}
	return key, nil
}
