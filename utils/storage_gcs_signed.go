package utils

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/compute/metadata"
	"cloud.google.com/go/storage"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/iamcredentials/v1"
	"google.golang.org/api/option"
)

// SignedUpload is what the browser needs to PUT a document straight to GCS.
type SignedUpload struct {
	UploadURL string            `json:"uploadUrl"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers"`
	ObjectKey string            `json:"objectKey"`
	AccessURL string            `json:"accessUrl"`
	ExpiresAt time.Time         `json:"expiresAt"`
}

// SignedDownload is a time-limited GET link to a private object.
type SignedDownload struct {
	URL       string    `json:"url"`
	ObjectKey string    `json:"objectKey"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// urlSigner holds either a private key or a remote signBlob function.
type urlSigner struct {
	accessID   string
	privateKey []byte
	signBytes  func([]byte) ([]byte, error)
}

func (s urlSigner) apply(opts *storage.SignedURLOptions) {
	opts.GoogleAccessID = s.accessID
	opts.PrivateKey = s.privateKey
	opts.SignBytes = s.signBytes
}

// resolveSigner picks the first configured source: GCS_CREDENTIALS_JSON, the
// GCS_SIGNER_EMAIL/GCS_SIGNER_PRIVATE_KEY pair, then the IAM signBlob API.
func resolveSigner(ctx context.Context) (urlSigner, error) {
	if raw := strings.TrimSpace(os.Getenv("GCS_CREDENTIALS_JSON")); raw != "" {
		var key struct {
			ClientEmail string `json:"client_email"`
			PrivateKey  string `json:"private_key"`
		}
		if err := json.Unmarshal([]byte(raw), &key); err != nil {
			return urlSigner{}, fmt.Errorf("invalid GCS_CREDENTIALS_JSON: %w", err)
		}
		if key.ClientEmail == "" || key.PrivateKey == "" {
			return urlSigner{}, errors.New("GCS_CREDENTIALS_JSON needs client_email and private_key")
		}
		return urlSigner{accessID: key.ClientEmail, privateKey: pemFromEnv(key.PrivateKey)}, nil
	}
	email := strings.TrimSpace(os.Getenv("GCS_SIGNER_EMAIL"))
	if pk := strings.TrimSpace(os.Getenv("GCS_SIGNER_PRIVATE_KEY")); email != "" && pk != "" {
		return urlSigner{accessID: email, privateKey: pemFromEnv(pk)}, nil
	}
	return iamSigner(ctx, email)
}

// pemFromEnv restores newlines that env files store as literal \n.
func pemFromEnv(key string) []byte {
	return []byte(strings.ReplaceAll(key, "\\n", "\n"))
}

func iamSigner(ctx context.Context, email string) (urlSigner, error) {
	if email == "" && metadata.OnGCE() {
		var err error
		if email, err = metadata.Email("default"); err != nil {
			return urlSigner{}, fmt.Errorf("default service account: %w", err)
		}
	}
	if email == "" {
		return urlSigner{}, errors.New("GCS_SIGNER_EMAIL is required when no private key is configured")
	}
	creds, err := google.FindDefaultCredentials(ctx, iamcredentials.CloudPlatformScope)
	if err != nil {
		return urlSigner{}, fmt.Errorf("application default credentials: %w", err)
	}
	svc, err := iamcredentials.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return urlSigner{}, fmt.Errorf("iamcredentials service: %w", err)
	}
	name := "projects/-/serviceAccounts/" + email
	return urlSigner{
		accessID: email,
		signBytes: func(payload []byte) ([]byte, error) {
			resp, err := svc.Projects.ServiceAccounts.SignBlob(name, &iamcredentials.SignBlobRequest{
				Payload: base64.StdEncoding.EncodeToString(payload),
			}).Do()
			if err != nil {
				return nil, err
			}
			return base64.StdEncoding.DecodeString(resp.SignedBlob)
		},
	}, nil
}

func signObjectURL(ctx context.Context, method, objectKey, contentType string, ttl time.Duration) (string, time.Time, error) {
	bucket := strings.TrimSpace(os.Getenv("GCS_BUCKET"))
	if bucket == "" {
		return "", time.Time{}, errors.New("GCS_BUCKET is required")
	}
	signer, err := resolveSigner(ctx)
	if err != nil {
		return "", time.Time{}, err
	}
	opts := &storage.SignedURLOptions{
		Scheme:      storage.SigningSchemeV4,
		Method:      method,
		Expires:     time.Now().Add(ttl),
		ContentType: contentType,
	}
	signer.apply(opts)
	u, err := storage.SignedURL(bucket, objectKey, opts)
	return u, opts.Expires, err
}

// SignUpload signs a V4 PUT URL for objectKey.
func SignUpload(ctx context.Context, objectKey, contentType string, ttl time.Duration) (*SignedUpload, error) {
	u, expires, err := signObjectURL(ctx, http.MethodPut, objectKey, contentType, ttl)
	if err != nil {
		return nil, err
	}
	return &SignedUpload{
		UploadURL: u,
		Method:    http.MethodPut,
		Headers:   map[string]string{"Content-Type": contentType},
		ObjectKey: objectKey,
		AccessURL: BuildObjectAccessURL(objectKey),
		ExpiresAt: expires,
	}, nil
}

// SignDownload signs a V4 GET URL for objectKey.
func SignDownload(ctx context.Context, objectKey string, ttl time.Duration) (*SignedDownload, error) {
	u, expires, err := signObjectURL(ctx, http.MethodGet, objectKey, "", ttl)
	if err != nil {
		return nil, err
	}
	return &SignedDownload{URL: u, ObjectKey: objectKey, ExpiresAt: expires}, nil
}
