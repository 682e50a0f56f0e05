package utils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// getGoogleClient initializes a Google Cloud Storage client.
// Prefers ADC (service account / GOOGLE_APPLICATION_CREDENTIALS); explicit
// JSON can be provided locally via GCS_CREDENTIALS_JSON.
func getGoogleClient(ctx context.Context) (*storage.Client, error) {
	if credJSON := os.Getenv("GCS_CREDENTIALS_JSON"); strings.TrimSpace(credJSON) != "" {
		client, err := storage.NewClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
		if err != nil {
			return nil, err
		}
		return client, nil
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// WriteSnapshotToGCS uploads a JSON snapshot blob, replacing any previous
// object of the same name.
func WriteSnapshotToGCS(ctx context.Context, bucketName, objectName string, data []byte) error {
	if bucketName == "" {
		return fmt.Errorf("%w: backup bucket is not configured", ErrInvalidInput)
	}

	client, err := getGoogleClient(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer client.Close()

	if _, err := client.Bucket(bucketName).Attrs(ctx); err != nil {
		return fmt.Errorf("%w: gcs bucket %q not found or not accessible: %v", ErrServiceUnavailable, bucketName, err)
	}

	wc := client.Bucket(bucketName).Object(objectName).NewWriter(ctx)
	wc.ContentType = "application/json"
	if _, err = wc.Write(data); err != nil {
		return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	return nil
}

// ReadSnapshotFromGCS downloads a previously uploaded snapshot blob.
func ReadSnapshotFromGCS(ctx context.Context, bucketName, objectName string) ([]byte, error) {
	if bucketName == "" {
		return nil, fmt.Errorf("%w: backup bucket is not configured", ErrInvalidInput)
	}

	client, err := getGoogleClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer client.Close()

	rc, err := client.Bucket(bucketName).Object(objectName).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: snapshot %q not found", ErrNotFound, objectName)
		}
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	return data, nil
}
