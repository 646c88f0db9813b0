package models

import "time"

// Attachment is an encrypted supporting document for a credential (scanned
// diploma, transcript PDF). The document body lives in object storage under
// StorageKey, encrypted with a random file key that is itself wrapped with
// the owner's user key (EncryptedFileKey/KeyNonce/KeyTag).
type Attachment struct {
	ID               string
	CredentialID     string
	UserID           string
	FileName         string
	StorageKey       string
	EncryptedFileKey []byte
	KeyNonce         []byte
	KeyTag           []byte
	UploadStatus     string
	CreatedAt        time.Time
}

// Attachment upload states.
const (
	UploadStatusPending  = "pending"
	UploadStatusUploaded = "uploaded"
)
