package handlers

import (
	"fmt"
	"net/http"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rentiq/rentiq_backend/config"
	"github.com/rentiq/rentiq_backend/middlewares"
	"github.com/rentiq/rentiq_backend/models"
	"github.com/rentiq/rentiq_backend/utils"
	"github.com/sirupsen/logrus"
)

const signedUploadTTL = 15 * time.Minute

type uploadContext struct {
	ReferenceType string `json:"reference_type"`
	ReferenceID   int    `json:"reference_id"`
}

type uploadSignRequest struct {
	FileName string        `json:"file_name" binding:"required"`
	MimeType string        `json:"mime_type" binding:"required"`
	Size     int64         `json:"size" binding:"required"`
	Context  uploadContext `json:"context"`
}

type uploadCompleteRequest struct {
	ObjectKey string        `json:"object_key" binding:"required"`
	Context   uploadContext `json:"context"`
}

type uploadCompleteResponse struct {
	ObjectKey    string           `json:"object_key"`
	AccessURL    string           `json:"access_url"`
	ContentType  string           `json:"content_type"`
	ThumbnailURL string           `json:"thumbnail_url,omitempty"`
	Document     *models.Document `json:"document,omitempty"`
}

// thumbnailable reports whether the sniffed type is one imaging can decode.
// The type the browser declared at sign time is not trusted; webp is stored
// but gets no thumbnail.
func thumbnailable(sniffed string) bool {
	switch sniffed {
	case "image/jpeg", "image/png", "image/gif", "image/bmp":
		return true
	}
	return false
}

// signUpload returns a signed PUT URL inside the caller's business namespace.
func signUpload(c *gin.Context) {
	user := middlewares.CurrentUser(c)
	var req uploadSignRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Size <= 0 || req.Size > utils.MaxUploadBytes {
		badRequest(c, fmt.Sprintf("file size must be between 1 byte and %d MB", utils.MaxUploadBytes>>20))
		return
	}
	if !utils.AllowedUploadTypes[req.MimeType] {
		badRequest(c, "unsupported file type")
		return
	}
	ext := strings.ToLower(filepath.Ext(req.FileName))
	if ext == "" {
		ext = extensionFromMimeType(req.MimeType)
	}
	entity := sanitizeSegment(strings.ToLower(req.Context.ReferenceType))
	if entity == "" {
		entity = "misc"
	}
	objectKey := path.Join(strings.TrimSuffix(models.UploadObjectPrefix(user.BusinessId), "/"), entity, uuid.NewString()+ext)

	signed, err := utils.SignUpload(c.Request.Context(), objectKey, req.MimeType, signedUploadTTL)
	if err != nil {
		respondError(c, "Upload", "signUpload", err)
		return
	}
	config.GetLogger().WithFields(logrus.Fields{
		"module":      "Upload",
		"business_id": user.BusinessId,
		"mime_type":   req.MimeType,
		"size":        req.Size,
		"object_key":  objectKey,
	}).Info("[upload.sign]")
	respondData(c, signed)
}

// completeUpload makes a thumbnail for images and, when a reference is given,
// attaches the object to that record.
func completeUpload(c *gin.Context) {
	user := middlewares.CurrentUser(c)
	var req uploadCompleteRequest
	if !bindJSON(c, &req) {
		return
	}
	if !ownedKey(user.BusinessId, req.ObjectKey) {
		badRequest(c, "invalid object key")
		return
	}
	ctx := c.Request.Context()
	data, _, err := utils.ReadObjectFromGCS(ctx, req.ObjectKey)
	if err != nil {
		respondError(c, "Upload", "completeUpload", err)
		return
	}

	resp := uploadCompleteResponse{
		ObjectKey:   req.ObjectKey,
		AccessURL:   utils.BuildObjectAccessURL(req.ObjectKey),
		ContentType: utils.DetectUploadType(req.ObjectKey, data),
	}
	if thumbnailable(resp.ContentType) {
		thumbKey, err := utils.StoreThumbnail(ctx, req.ObjectKey, data)
		if err != nil {
			config.LogError(config.GetLogger(), "Upload", "completeUpload", "thumbnail", req.ObjectKey, err)
		} else {
			resp.ThumbnailURL = utils.BuildObjectAccessURL(thumbKey)
		}
	}
	if req.Context.ReferenceType != "" && req.Context.ReferenceID > 0 {
		doc, err := models.AttachDocument(ctx, req.Context.ReferenceType, req.Context.ReferenceID, resp.AccessURL, resp.ThumbnailURL)
		if err != nil {
			respondError(c, "Upload", "completeUpload", err)
			return
		}
		resp.Document = doc
	}
	config.GetLogger().WithFields(logrus.Fields{
		"module":     "Upload",
		"object_key": req.ObjectKey,
		"status":     "completed",
	}).Info("[upload.complete]")
	respondData(c, resp)
}

// uploadObject proxies a stored object of the caller's business.
func uploadObject(c *gin.Context) {
	user := middlewares.CurrentUser(c)
	key := strings.TrimSpace(c.Query("key"))
	if !ownedKey(user.BusinessId, key) {
		badRequest(c, "invalid key")
		return
	}
	data, contentType, err := utils.ReadObjectFromGCS(c.Request.Context(), key)
	if err != nil {
		respondError(c, "Upload", "uploadObject", err)
		return
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Data(http.StatusOK, contentType, data)
}

// downloadURL signs a short-lived GET link so large documents skip the proxy.
func downloadURL(c *gin.Context) {
	user := middlewares.CurrentUser(c)
	key := strings.TrimSpace(c.Query("key"))
	if !ownedKey(user.BusinessId, key) {
		badRequest(c, "invalid key")
		return
	}
	signed, err := utils.SignDownload(c.Request.Context(), key, signedUploadTTL)
	if err != nil {
		respondError(c, "Upload", "downloadURL", err)
		return
	}
	respondData(c, signed)
}

func listDocuments(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	docs, err := models.ListDocuments(c.Request.Context(), c.Param("type"), id)
	if err != nil {
		respondError(c, "Upload", "listDocuments", err)
		return
	}
	respondData(c, docs)
}

type removeFileRequest struct {
	URL string `json:"url" binding:"required"`
}

func removeFile(c *gin.Context) {
	var req removeFileRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := models.RemoveFile(c.Request.Context(), req.URL); err != nil {
		respondError(c, "Upload", "removeFile", err)
		return
	}
	respondData(c, true)
}

func ownedKey(businessId, key string) bool {
	if key == "" || strings.Contains(key, "..") || strings.HasPrefix(key, "/") {
		return false
	}
	return strings.HasPrefix(key, models.UploadObjectPrefix(businessId))
}

func sanitizeSegment(input string) string {
	var out strings.Builder
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			out.WriteRune(r)
		}
	}
	return out.String()
}

func extensionFromMimeType(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "application/pdf":
		return ".pdf"
	case "text/csv":
		return ".csv"
	case "application/msword":
		return ".doc"
	case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return ".docx"
	case "application/vnd.ms-excel":
		return ".xls"
	case "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return ".xlsx"
	}
	return ""
}
