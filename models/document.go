package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rentiq/rentiq_backend/config"
	"github.com/rentiq/rentiq_backend/utils"
	"gorm.io/gorm"
)

// Document is a file attached to a record, stored in object storage.
type Document struct {
	ID            int       `gorm:"primary_key" json:"id"`
	BusinessId    string    `gorm:"size:64;not null;index" json:"business_id"`
	ReferenceType string    `gorm:"size:50;index:idx_document_ref,priority:1" json:"reference_type"`
	ReferenceID   int       `gorm:"index:idx_document_ref,priority:2" json:"reference_id"`
	DocumentUrl   string    `gorm:"size:1024;not null" json:"document_url"`
	ObjectKey     string    `gorm:"size:512;not null;index" json:"object_key"`
	ThumbnailUrl  string    `gorm:"size:1024" json:"thumbnail_url"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type NewDocument struct {
	ID           int    `json:"id"`
	IsDeleted    bool   `json:"is_deleted"`
	DocumentUrl  string `json:"document_url"`
	ThumbnailUrl string `json:"thumbnail_url"`
}

// UploadObjectPrefix namespaces uploaded objects by business.
func UploadObjectPrefix(businessId string) string {
	return "uploads/" + businessId + "/"
}

// ownedObjectKey resolves url to an object key inside the business namespace.
func ownedObjectKey(businessId, url string) (string, error) {
	key := utils.ExtractObjectKeyFromURL(url)
	if key == "" {
		return "", utils.NewValidationError("document_url", "is not a storage url")
	}
	if !strings.HasPrefix(key, UploadObjectPrefix(businessId)) {
		return "", utils.NewValidationError("document_url", "belongs to another business")
	}
	return key, nil
}

// attachDocuments creates, keeps or removes documents of a record inside tx.
func attachDocuments(tx *gorm.DB, inputs []*NewDocument, referenceType string, referenceId int) error {
	if len(inputs) == 0 {
		return nil
	}
	ctx := tx.Statement.Context
	businessId, err := businessIdFromContext(ctx)
	if err != nil {
		return err
	}
	for _, input := range inputs {
		if input.ID > 0 {
			if !input.IsDeleted {
				continue
			}
			var doc Document
			err := tx.Where("business_id = ? AND reference_type = ? AND reference_id = ?", businessId, referenceType, referenceId).
				First(&doc, input.ID).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.NewValidationError("documents", "document not found")
			}
			if err != nil {
				return err
			}
			if err := tx.Delete(&doc).Error; err != nil {
				return err
			}
			removeStoredObjects(ctx, &doc)
			continue
		}
		if input.IsDeleted {
			continue
		}
		key, err := ownedObjectKey(businessId, input.DocumentUrl)
		if err != nil {
			return err
		}
		if exists, err := utils.ObjectExistsInGCS(ctx, key); err != nil {
			return err
		} else if !exists {
			return utils.NewValidationError("document_url", "object does not exist")
		}
		doc := Document{
			BusinessId:    businessId,
			ReferenceType: referenceType,
			ReferenceID:   referenceId,
			DocumentUrl:   utils.BuildObjectAccessURL(key),
			ObjectKey:     key,
			ThumbnailUrl:  input.ThumbnailUrl,
		}
		if err := tx.Create(&doc).Error; err != nil {
			return err
		}
	}
	return nil
}

func removeStoredObjects(ctx context.Context, doc *Document) {
	logger := config.GetLogger()
	if err := utils.DeleteObjectFromGCS(ctx, doc.ObjectKey); err != nil {
		config.LogError(logger, "Document", "removeStoredObjects", "delete object", doc.ObjectKey, err)
	}
	if doc.ThumbnailUrl != "" {
		if err := utils.DeleteObjectFromGCS(ctx, utils.ThumbnailKey(doc.ObjectKey)); err != nil {
			config.LogError(logger, "Document", "removeStoredObjects", "delete thumbnail", doc.ObjectKey, err)
		}
	}
}

func ListDocuments(ctx context.Context, referenceType string, referenceId int) ([]*Document, error) {
	businessId, err := businessIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	db, err := dbFor(ctx)
	if err != nil {
		return nil, err
	}
	var results []*Document
	err = db.Where("business_id = ? AND reference_type = ? AND reference_id = ?", businessId, referenceType, referenceId).
		Order("id").Find(&results).Error
	return results, err
}

// GetDocumentByObjectKey is used to authorize object downloads.
func GetDocumentByObjectKey(ctx context.Context, objectKey string) (*Document, error) {
	businessId, err := businessIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	db, err := dbFor(ctx)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := db.Where("business_id = ? AND object_key = ?", businessId, objectKey).Take(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &doc, nil
}

// RemoveFile deletes an uploaded object that no document references.
func RemoveFile(ctx context.Context, url string) error {
	businessId, err := businessIdFromContext(ctx)
	if err != nil {
		return err
	}
	key, err := ownedObjectKey(businessId, url)
	if err != nil {
		return err
	}
	count, err := utils.ResourceCountWhere[Document](ctx, businessId, "object_key = ?", key)
	if err != nil {
		return err
	}
	if count > 0 {
		return errors.New("cannot delete file attached to a record")
	}
	removeStoredObjects(ctx, &Document{ObjectKey: key, ThumbnailUrl: "x"})
	return nil
}

// attachableRecords is what an uploaded file may be attached to.
var attachableRecords = map[string]interface{}{
	ReferenceTypeClient:    &Client{},
	ReferenceTypeItem:      &InventoryItem{},
	ReferenceTypeChallan:   &Challan{},
	ReferenceTypePayment:   &Payment{},
	ReferenceTypePettyCash: &PettyCash{},
}

// AttachDocument links an uploaded object to an existing record.
func AttachDocument(ctx context.Context, referenceType string, referenceId int, url string, thumbnailUrl string) (*Document, error) {
	model, ok := attachableRecords[referenceType]
	if !ok {
		return nil, utils.NewValidationError("reference_type", "cannot attach files to "+referenceType)
	}
	businessId, err := businessIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	var doc Document
	err = inTx(ctx, func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(model).Where("business_id = ? AND id = ?", businessId, referenceId).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return utils.ErrorRecordNotFound
		}
		if err := attachDocuments(tx, []*NewDocument{{DocumentUrl: url, ThumbnailUrl: thumbnailUrl}}, referenceType, referenceId); err != nil {
			return err
		}
		if err := tx.Where("business_id = ? AND reference_type = ? AND reference_id = ?", businessId, referenceType, referenceId).
			Order("id DESC").First(&doc).Error; err != nil {
			return err
		}
		return createHistory(tx, HistoryActionUpdate, referenceId, referenceType, nil, doc, "Attached "+doc.ObjectKey)
	})
	if err != nil {
		return nil, err
	}
	return &doc, nil
}
