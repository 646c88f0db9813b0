package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/skillchain/credvault/internal/common"
	"github.com/skillchain/credvault/internal/cryptox"
	sc "github.com/skillchain/credvault/internal/server/config"
	"github.com/skillchain/credvault/internal/server/keystore"
	"github.com/skillchain/credvault/internal/server/models"
	"github.com/skillchain/credvault/internal/server/repositories/repomanager"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

// AttachmentUploadTask tells the caller where to upload the encrypted
// document body.
type AttachmentUploadTask struct {
	AttachmentID string
	URL          string
	FileKey      []byte
}

// AttachmentService manages encrypted evidence attachments (scanned
// diplomas, transcript PDFs). Document bodies live in S3-compatible object
// storage under random keys; the per-file encryption key is wrapped with the
// owner's user key before it is persisted.
type AttachmentService struct {
	db        *sql.DB
	rm        repomanager.RepositoryManager
	custodian *keystore.Custodian
	config    *sc.Config
}

// NewAttachmentService constructs an AttachmentService.
func NewAttachmentService(db *sql.DB, rm repomanager.RepositoryManager, custodian *keystore.Custodian, cfg *sc.Config) *AttachmentService {
	return &AttachmentService{db: db, rm: rm, custodian: custodian, config: cfg}
}

// randomStorageKey spreads objects by date to keep bucket listings sane.
func randomStorageKey() string {
	d := time.Now()
	return fmt.Sprintf("evidence/%d/%d/%d/%v", d.Year(), d.Month(), d.Day(), uuid.New())
}

func (s *AttachmentService) getPresignClient() (*s3.PresignClient, error) {
	cfg, err := loadDefaultAWSConfig(context.Background(),
		config.WithRegion(s.config.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.config.S3RootUser,
			s.config.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.config.S3BaseEndpoint)
	})

	return newS3PresignClient(client), nil
}

// CreateAttachment registers an attachment on an owned credential and
// returns a presigned PUT URL plus the fresh file key the caller must
// encrypt the document with before uploading. The file key is returned once
// and stored only in wrapped form.
func (s *AttachmentService) CreateAttachment(ctx context.Context, credentialID, ownerID, fileName string) (*AttachmentUploadTask, error) {
	if _, err := s.rm.Credentials(s.db).GetByIDAndUser(ctx, credentialID, ownerID); err != nil {
		return nil, err
	}

	userKey, err := s.custodian.GetKey(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(userKey)

	fileKey := cryptox.NewAESKey()
	wrapped, keyNonce, keyTag, err := cryptox.WrapKey(fileKey, userKey)
	if err != nil {
		return nil, common.ErrorInternal
	}

	presignClient, err := s.getPresignClient()
	if err != nil {
		return nil, err
	}

	bucket := s.config.S3Bucket
	storageKey := randomStorageKey()

	req, err := presignPutObject(presignClient, ctx, &s3.PutObjectInput{
		Bucket: &bucket,
		Key:    &storageKey,
	}, s3.WithPresignExpires(15*time.Minute))
	if err != nil {
		return nil, err
	}

	att := &models.Attachment{
		ID:               uuid.NewString(),
		CredentialID:     credentialID,
		UserID:           ownerID,
		FileName:         fileName,
		StorageKey:       storageKey,
		EncryptedFileKey: wrapped,
		KeyNonce:         keyNonce,
		KeyTag:           keyTag,
		UploadStatus:     models.UploadStatusPending,
	}
	if err := s.rm.Attachments(s.db).Create(ctx, att); err != nil {
		return nil, err
	}

	return &AttachmentUploadTask{AttachmentID: att.ID, URL: req.URL, FileKey: fileKey}, nil
}

// MarkUploaded confirms that the encrypted body reached object storage.
func (s *AttachmentService) MarkUploaded(ctx context.Context, attachmentID string) error {
	return s.rm.Attachments(s.db).MarkUploaded(ctx, attachmentID)
}

// GetAttachmentDownload returns a presigned GET URL for an owned
// credential's attachment together with the unwrapped file key needed to
// decrypt the body after download.
func (s *AttachmentService) GetAttachmentDownload(ctx context.Context, credentialID, ownerID string) (string, []byte, error) {
	if _, err := s.rm.Credentials(s.db).GetByIDAndUser(ctx, credentialID, ownerID); err != nil {
		return "", nil, err
	}

	att, err := s.rm.Attachments(s.db).GetByCredential(ctx, credentialID)
	if err != nil {
		return "", nil, err
	}

	userKey, err := s.custodian.GetKey(ctx, ownerID)
	if err != nil {
		return "", nil, err
	}
	defer common.WipeByteArray(userKey)

	fileKey, err := cryptox.UnwrapKey(att.EncryptedFileKey, userKey, att.KeyNonce, att.KeyTag)
	if err != nil {
		return "", nil, err
	}

	presignClient, err := s.getPresignClient()
	if err != nil {
		return "", nil, err
	}

	bucket := s.config.S3Bucket
	req, err := presignGetObject(presignClient, ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &att.StorageKey,
	}, s3.WithPresignExpires(15*time.Minute))
	if err != nil {
		return "", nil, err
	}

	return req.URL, fileKey, nil
}
