package recording

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/hertzlab/micboost/internal/util"
)

const (
	uploadQueueDepth  = 16
	uploadTimeout     = 5 * time.Minute
	maxUploadAttempts = 5
	initialRetryDelay = 2 * time.Second
	maxRetryDelay     = 60 * time.Second
)

// S3Config holds credentials and target for S3-compatible upload.
type S3Config struct {
	Endpoint        string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
}

// IsConfigured reports whether all required S3 fields are set.
func (c *S3Config) IsConfigured() bool {
	return c.Endpoint != "" && c.Bucket != "" && c.AccessKeyID != "" && c.SecretAccessKey != ""
}

// createS3Client creates an S3 client with the given configuration.
func createS3Client(cfg *S3Config) *s3.Client {
	creds := credentials.NewStaticCredentialsProvider(
		cfg.AccessKeyID,
		cfg.SecretAccessKey,
		"",
	)

	options := []func(*s3.Options){
		func(o *s3.Options) {
			o.Credentials = creds
			o.Region = "auto"
		},
	}

	if cfg.Endpoint != "" {
		options = append(options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return s3.New(s3.Options{}, options...)
}

// TestS3Connection tests connectivity to an S3 bucket by uploading and deleting a test file.
func TestS3Connection(cfg *S3Config) error {
	if !cfg.IsConfigured() {
		return fmt.Errorf("S3 is not configured")
	}

	client := createS3Client(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	testKey := fmt.Sprintf("test-connection-%d.txt", time.Now().UnixNano())
	testContent := []byte("micboost connection test")

	_, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(cfg.Bucket),
		Key:           aws.String(testKey),
		Body:          bytes.NewReader(testContent),
		ContentLength: aws.Int64(int64(len(testContent))),
	})
	if err != nil {
		return util.WrapError("upload test file", err)
	}

	_, err = client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(cfg.Bucket),
		Key:    aws.String(testKey),
	})
	if err != nil {
		slog.Warn("failed to delete test file", "key", testKey, "error", err)
	}

	return nil
}

// Uploader moves finished takes to S3 from a background worker. Failed
// uploads retry with exponential backoff; the local file is always kept.
type Uploader struct {
	cfg    S3Config
	client *s3.Client

	queue  chan string
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewUploader creates an uploader for the given S3 target.
func NewUploader(cfg S3Config) *Uploader {
	return &Uploader{
		cfg:    cfg,
		client: createS3Client(&cfg),
		queue:  make(chan string, uploadQueueDepth),
		stopCh: make(chan struct{}),
	}
}

// Start launches the upload worker.
func (u *Uploader) Start() {
	u.wg.Add(1)
	go u.worker()
}

// Stop drains queued uploads and waits for the worker to exit.
func (u *Uploader) Stop() {
	close(u.stopCh)
	u.wg.Wait()
}

// Enqueue schedules a finished take for upload.
func (u *Uploader) Enqueue(path string) {
	select {
	case u.queue <- path:
		slog.Info("queued file for upload", "file", filepath.Base(path))
	default:
		slog.Warn("upload queue full, skipping", "file", filepath.Base(path))
	}
}

// worker processes the upload queue, draining remaining items on shutdown.
func (u *Uploader) worker() {
	defer u.wg.Done()

	for {
		select {
		case <-u.stopCh:
			for {
				select {
				case path := <-u.queue:
					u.uploadFile(path)
				default:
					return
				}
			}
		case path := <-u.queue:
			u.uploadFile(path)
		}
	}
}

// uploadFile uploads one take, retrying with backoff on failure.
func (u *Uploader) uploadFile(path string) {
	backoff := util.NewBackoff(initialRetryDelay, maxRetryDelay)

	for attempt := 1; attempt <= maxUploadAttempts; attempt++ {
		err := u.putObject(path)
		if err == nil {
			slog.Info("upload completed", "file", filepath.Base(path))
			return
		}

		slog.Error("upload failed", "file", filepath.Base(path), "attempt", attempt, "error", err)
		if attempt == maxUploadAttempts {
			return
		}

		select {
		case <-u.stopCh:
			return
		case <-time.After(backoff.Next()):
		}
	}
}

func (u *Uploader) putObject(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return util.WrapError("stat recording file", err)
	}

	file, err := os.Open(path)
	if err != nil {
		return util.WrapError("open file for upload", err)
	}
	defer util.SafeCloseFunc(file, "upload file")()

	ctx, cancel := context.WithTimeout(context.Background(), uploadTimeout)
	defer cancel()

	key := "takes/" + filepath.Base(path)
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.cfg.Bucket),
		Key:           aws.String(key),
		Body:          file,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String("audio/flac"),
	})
	if err != nil {
		return util.WrapError("put object", err)
	}
	return nil
}
