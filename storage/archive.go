package storage

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// ArchiveConfig holds configuration for the optional S3-compatible archive
// (Cloudflare R2, MinIO, plain S3). Deliverables are uploaded there after
// assembly when enabled; the local filesystem stays the source of truth.
type ArchiveConfig struct {
	AccessKey string
	SecretKey string
	Bucket    string
	Endpoint  string
	Region    string
}

// ArchiveStorage uploads assembled recordings to an S3-compatible bucket.
type ArchiveStorage struct {
	config   ArchiveConfig
	uploader *s3manager.Uploader
}

// NewArchiveStorage creates an ArchiveStorage instance.
func NewArchiveStorage(config ArchiveConfig) (*ArchiveStorage, error) {
	if config.Region == "" {
		config.Region = "auto"
	}

	sess, err := session.NewSession(&aws.Config{
		Credentials:      credentials.NewStaticCredentials(config.AccessKey, config.SecretKey, ""),
		Endpoint:         aws.String(config.Endpoint),
		Region:           aws.String(config.Region),
		S3ForcePathStyle: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %v", err)
	}

	// Sequential multipart parts: one HTTP connection at a time so the
	// upload never competes with live capture for bandwidth.
	uploader := s3manager.NewUploader(sess, func(u *s3manager.Uploader) {
		u.PartSize = 10 * 1024 * 1024
		u.Concurrency = 1
	})

	return &ArchiveStorage{config: config, uploader: uploader}, nil
}

// UploadRecording uploads a deliverable under recordings/<yyyy-mm-dd>/<name>.
func (a *ArchiveStorage) UploadRecording(localPath string) (string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open file %s: %v", localPath, err)
	}
	defer file.Close()

	remotePath := filepath.ToSlash(filepath.Join(
		"recordings", time.Now().Format("2006-01-02"), filepath.Base(localPath)))

	start := time.Now()
	_, err = a.uploader.Upload(&s3manager.UploadInput{
		Bucket:      aws.String(a.config.Bucket),
		Key:         aws.String(remotePath),
		Body:        file,
		ContentType: aws.String("video/mp4"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %v", localPath, err)
	}

	log.Printf("Archived recording %s to %s in %v", filepath.Base(localPath), remotePath, time.Since(start))
	return remotePath, nil
}
