package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	minio "github.com/minio/minio-go/v7"
	credentials "github.com/minio/minio-go/v7/pkg/credentials"
	zap "go.uber.org/zap"

	config "github.com/agentruntime/a2a/server/config"
	types "github.com/agentruntime/a2a/types"
)

// ArtifactStorage offloads large artifact payloads out of task records.
// File parts carrying inline bytes can be rewritten to URI references so the
// stores only hold pointers.
type ArtifactStorage interface {
	// Store writes an artifact payload and returns its retrieval URL
	Store(ctx context.Context, artifactID string, filename string, data io.Reader) (string, error)

	// Retrieve opens an artifact payload by id and filename
	Retrieve(ctx context.Context, artifactID string, filename string) (io.ReadCloser, error)

	// Delete removes a stored payload
	Delete(ctx context.Context, artifactID string, filename string) error

	// Exists checks whether a payload is stored
	Exists(ctx context.Context, artifactID string, filename string) (bool, error)

	// GetURL returns the public URL for a stored payload
	GetURL(artifactID string, filename string) string

	// Close releases backend resources
	Close() error
}

// NewArtifactStorageFromConfig selects the storage backend from
// configuration.
func NewArtifactStorageFromConfig(cfg config.ArtifactsStorageConfig) (ArtifactStorage, error) {
	switch cfg.Provider {
	case "minio":
		return NewMinIOArtifactStorage(cfg.Endpoint, cfg.AccessKey, cfg.SecretKey, cfg.BucketName, cfg.BaseURL, cfg.UseSSL)
	case "filesystem":
		return NewFilesystemArtifactStorage(cfg.BasePath, cfg.BaseURL)
	default:
		return nil, fmt.Errorf("unsupported artifact storage provider '%s'", cfg.Provider)
	}
}

// OffloadFileParts rewrites inline file bytes in the artifact's parts to URI
// references backed by the storage. Parts without inline bytes are left
// untouched.
func OffloadFileParts(ctx context.Context, storage ArtifactStorage, artifact *types.Artifact, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	for i := range artifact.Parts {
		part := &artifact.Parts[i]
		if part.File == nil || part.File.Bytes == nil {
			continue
		}

		raw, err := base64.StdEncoding.DecodeString(*part.File.Bytes)
		if err != nil {
			return fmt.Errorf("failed to decode file part bytes: %w", err)
		}

		filename := fmt.Sprintf("part-%d", i)
		if part.File.Name != nil && *part.File.Name != "" {
			filename = *part.File.Name
		}

		url, err := storage.Store(ctx, artifact.ArtifactID, filename, bytes.NewReader(raw))
		if err != nil {
			return err
		}

		part.File.Bytes = nil
		part.File.URI = &url

		logger.Debug("file part offloaded",
			zap.String("artifact_id", artifact.ArtifactID),
			zap.String("filename", filename),
			zap.Int("size", len(raw)))
	}

	return nil
}

// FilesystemArtifactStorage implements ArtifactStorage on a local directory.
type FilesystemArtifactStorage struct {
	basePath string
	baseURL  string
}

var _ ArtifactStorage = (*FilesystemArtifactStorage)(nil)

// NewFilesystemArtifactStorage creates a filesystem-backed artifact storage.
func NewFilesystemArtifactStorage(basePath, baseURL string) (*FilesystemArtifactStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create artifacts directory: %w", err)
	}

	return &FilesystemArtifactStorage{
		basePath: basePath,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
	}, nil
}

// Store writes an artifact payload to disk.
func (fs *FilesystemArtifactStorage) Store(ctx context.Context, artifactID string, filename string, data io.Reader) (string, error) {
	artifactID = sanitizePath(artifactID)
	filename = sanitizePath(filename)

	if artifactID == "" || filename == "" {
		return "", fmt.Errorf("invalid artifact ID or filename")
	}

	artifactDir := filepath.Join(fs.basePath, artifactID)
	if err := os.MkdirAll(artifactDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create artifact directory: %w", err)
	}

	filePath := filepath.Join(artifactDir, filename)
	file, err := os.Create(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to create artifact file: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()

	if _, err = io.Copy(file, data); err != nil {
		_ = os.Remove(filePath)
		return "", fmt.Errorf("failed to write artifact data: %w", err)
	}

	return fs.GetURL(artifactID, filename), nil
}

// Retrieve opens an artifact payload from disk.
func (fs *FilesystemArtifactStorage) Retrieve(ctx context.Context, artifactID string, filename string) (io.ReadCloser, error) {
	artifactID = sanitizePath(artifactID)
	filename = sanitizePath(filename)

	if artifactID == "" || filename == "" {
		return nil, fmt.Errorf("invalid artifact ID or filename")
	}

	file, err := os.Open(filepath.Join(fs.basePath, artifactID, filename))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("artifact not found")
		}
		return nil, fmt.Errorf("failed to open artifact: %w", err)
	}

	return file, nil
}

// Delete removes an artifact payload and its directory when empty.
func (fs *FilesystemArtifactStorage) Delete(ctx context.Context, artifactID string, filename string) error {
	artifactID = sanitizePath(artifactID)
	filename = sanitizePath(filename)

	if artifactID == "" || filename == "" {
		return fmt.Errorf("invalid artifact ID or filename")
	}

	filePath := filepath.Join(fs.basePath, artifactID, filename)
	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete artifact: %w", err)
	}

	_ = os.Remove(filepath.Join(fs.basePath, artifactID))

	return nil
}

// Exists checks whether a payload is on disk.
func (fs *FilesystemArtifactStorage) Exists(ctx context.Context, artifactID string, filename string) (bool, error) {
	artifactID = sanitizePath(artifactID)
	filename = sanitizePath(filename)

	if artifactID == "" || filename == "" {
		return false, fmt.Errorf("invalid artifact ID or filename")
	}

	_, err := os.Stat(filepath.Join(fs.basePath, artifactID, filename))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check artifact existence: %w", err)
	}
	return true, nil
}

// GetURL returns the public URL for a stored payload.
func (fs *FilesystemArtifactStorage) GetURL(artifactID string, filename string) string {
	return fmt.Sprintf("%s/artifacts/%s/%s", fs.baseURL, sanitizePath(artifactID), sanitizePath(filename))
}

// Close is a no-op for the filesystem backend.
func (fs *FilesystemArtifactStorage) Close() error {
	return nil
}

// MinIOArtifactStorage implements ArtifactStorage on a MinIO/S3 bucket.
type MinIOArtifactStorage struct {
	client     *minio.Client
	bucketName string
	baseURL    string
}

var _ ArtifactStorage = (*MinIOArtifactStorage)(nil)

// NewMinIOArtifactStorage creates a MinIO-backed artifact storage, creating
// the bucket when it does not exist.
func NewMinIOArtifactStorage(endpoint, accessKey, secretKey, bucketName, baseURL string, useSSL bool) (*MinIOArtifactStorage, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	storage := &MinIOArtifactStorage{
		client:     client,
		bucketName: bucketName,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}

	ctx := context.Background()
	exists, err := client.BucketExists(ctx, bucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		if err := client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return storage, nil
}

func (m *MinIOArtifactStorage) objectName(artifactID, filename string) (string, error) {
	artifactID = sanitizePath(artifactID)
	filename = sanitizePath(filename)

	if artifactID == "" || filename == "" {
		return "", fmt.Errorf("invalid artifact ID or filename")
	}

	return fmt.Sprintf("%s/%s", artifactID, filename), nil
}

// Store writes an artifact payload to the bucket.
func (m *MinIOArtifactStorage) Store(ctx context.Context, artifactID string, filename string, data io.Reader) (string, error) {
	objectName, err := m.objectName(artifactID, filename)
	if err != nil {
		return "", err
	}

	if _, err := m.client.PutObject(ctx, m.bucketName, objectName, data, -1, minio.PutObjectOptions{}); err != nil {
		return "", fmt.Errorf("failed to store artifact in MinIO: %w", err)
	}

	return m.GetURL(artifactID, filename), nil
}

// Retrieve opens an artifact payload from the bucket.
func (m *MinIOArtifactStorage) Retrieve(ctx context.Context, artifactID string, filename string) (io.ReadCloser, error) {
	objectName, err := m.objectName(artifactID, filename)
	if err != nil {
		return nil, err
	}

	object, err := m.client.GetObject(ctx, m.bucketName, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve artifact from MinIO: %w", err)
	}

	return object, nil
}

// Delete removes an artifact payload from the bucket.
func (m *MinIOArtifactStorage) Delete(ctx context.Context, artifactID string, filename string) error {
	objectName, err := m.objectName(artifactID, filename)
	if err != nil {
		return err
	}

	if err := m.client.RemoveObject(ctx, m.bucketName, objectName, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete artifact from MinIO: %w", err)
	}

	return nil
}

// Exists checks whether a payload is in the bucket.
func (m *MinIOArtifactStorage) Exists(ctx context.Context, artifactID string, filename string) (bool, error) {
	objectName, err := m.objectName(artifactID, filename)
	if err != nil {
		return false, err
	}

	if _, err := m.client.StatObject(ctx, m.bucketName, objectName, minio.StatObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return false, nil
		}
		return false, fmt.Errorf("failed to check artifact existence in MinIO: %w", err)
	}

	return true, nil
}

// GetURL returns the public URL for a stored payload.
func (m *MinIOArtifactStorage) GetURL(artifactID string, filename string) string {
	return fmt.Sprintf("%s/artifacts/%s/%s", m.baseURL, sanitizePath(artifactID), sanitizePath(filename))
}

// Close closes the MinIO connection.
func (m *MinIOArtifactStorage) Close() error {
	return nil
}

// sanitizePath removes path separators and traversal sequences.
func sanitizePath(path string) string {
	path = strings.ReplaceAll(path, "/", "")
	path = strings.ReplaceAll(path, "\\", "")
	path = strings.ReplaceAll(path, "..", "")
	return strings.TrimSpace(path)
}
