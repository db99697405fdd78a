package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"

	"github.com/bauer-group/nocodb-backup/internal/config"
	"github.com/bauer-group/nocodb-backup/internal/util"
)

// S3Store mirrors the local backup layout under
// <prefix>/<backup id>/<relative path> in one bucket.
type S3Store struct {
	core      *minio.Core
	bucket    string
	prefix    string
	threshold int64
	chunkSize int64
	log       zerolog.Logger
}

func NewS3Store(cfg config.S3Config, log zerolog.Logger) (*S3Store, error) {
	lookup := minio.BucketLookupAuto
	if cfg.ForcePathStyle {
		lookup = minio.BucketLookupPath
	}
	core, err := minio.NewCore(cfg.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       cfg.UseSSL,
		Region:       cfg.Region,
		BucketLookup: lookup,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return &S3Store{
		core:      core,
		bucket:    cfg.Bucket,
		prefix:    strings.Trim(cfg.Prefix, "/"),
		threshold: cfg.MultipartThreshold,
		chunkSize: cfg.MultipartChunkSize,
		log:       log,
	}, nil
}

// EnsureBucket creates the bucket if it does not exist yet.
func (s *S3Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.core.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	s.log.Info().Str("bucket", s.bucket).Msg("creating bucket")
	return s.core.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
}

func (s *S3Store) key(id, relPath string) string {
	key := path.Join(id, filepath.ToSlash(relPath))
	if s.prefix != "" {
		key = s.prefix + "/" + key
	}
	return key
}

func (s *S3Store) idPrefix() string {
	if s.prefix == "" {
		return ""
	}
	return s.prefix + "/"
}

// UploadTree uploads every regular file of a local backup directory.
func (s *S3Store) UploadTree(ctx context.Context, localDir, id string) (int, error) {
	uploaded := 0
	err := filepath.WalkDir(localDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(localDir, p)
		if err != nil {
			return err
		}
		if err := s.UploadFile(ctx, p, s.key(id, rel)); err != nil {
			return fmt.Errorf("upload %s: %w", rel, err)
		}
		uploaded++
		return nil
	})
	return uploaded, err
}

// UploadFile puts one file, switching to explicit multipart above the
// configured threshold.
func (s *S3Store) UploadFile(ctx context.Context, localPath, key string) error {
	size, err := util.FileSize(localPath)
	if err != nil {
		return err
	}
	if size < s.threshold {
		_, err := s.core.FPutObject(ctx, s.bucket, key, localPath, minio.PutObjectOptions{})
		return err
	}
	return s.uploadMultipart(ctx, localPath, key, size)
}

// uploadMultipart streams fixed-size chunks as numbered parts. On any
// failure the upload is aborted so no orphan parts accumulate.
func (s *S3Store) uploadMultipart(ctx context.Context, localPath, key string, size int64) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	uploadID, err := s.core.NewMultipartUpload(ctx, s.bucket, key, minio.PutObjectOptions{})
	if err != nil {
		return fmt.Errorf("start multipart: %w", err)
	}

	sizes := ChunkSizes(size, s.chunkSize)
	s.log.Info().Str("key", key).Str("size", util.FormatSize(size)).Int("parts", len(sizes)).Msg("multipart upload")

	parts := make([]minio.CompletePart, 0, len(sizes))
	for i, partSize := range sizes {
		partNumber := i + 1
		part, err := s.core.PutObjectPart(ctx, s.bucket, key, uploadID, partNumber,
			io.LimitReader(f, partSize), partSize, minio.PutObjectPartOptions{})
		if err != nil {
			if aerr := s.core.AbortMultipartUpload(ctx, s.bucket, key, uploadID); aerr != nil {
				s.log.Warn().Err(aerr).Str("key", key).Msg("abort multipart failed")
			}
			return fmt.Errorf("upload part %d: %w", partNumber, err)
		}
		parts = append(parts, minio.CompletePart{PartNumber: partNumber, ETag: part.ETag})
	}

	if _, err := s.core.CompleteMultipartUpload(ctx, s.bucket, key, uploadID, parts, minio.PutObjectOptions{}); err != nil {
		if aerr := s.core.AbortMultipartUpload(ctx, s.bucket, key, uploadID); aerr != nil {
			s.log.Warn().Err(aerr).Str("key", key).Msg("abort multipart failed")
		}
		return fmt.Errorf("complete multipart: %w", err)
	}
	return nil
}

// DownloadTree fetches every object of one backup into destDir,
// recreating the relative layout.
func (s *S3Store) DownloadTree(ctx context.Context, id, destDir string) (int, error) {
	objPrefix := s.idPrefix() + id + "/"
	downloaded := 0
	for obj := range s.core.Client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: objPrefix, Recursive: true}) {
		if obj.Err != nil {
			return downloaded, obj.Err
		}
		rel := strings.TrimPrefix(obj.Key, objPrefix)
		if rel == "" {
			continue
		}
		target := filepath.Join(destDir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
			return downloaded, err
		}
		if err := s.core.FGetObject(ctx, s.bucket, obj.Key, target, minio.GetObjectOptions{}); err != nil {
			return downloaded, fmt.Errorf("download %s: %w", obj.Key, err)
		}
		downloaded++
	}
	return downloaded, nil
}

// ListBackups lists first-level key prefixes under the configured
// prefix and keeps those that parse as backup ids.
func (s *S3Store) ListBackups(ctx context.Context) ([]string, error) {
	var ids []string
	for obj := range s.core.Client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: s.idPrefix()}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		name := strings.TrimSuffix(strings.TrimPrefix(obj.Key, s.idPrefix()), "/")
		if util.IsBackupID(name) {
			ids = append(ids, name)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *S3Store) DeleteBackup(ctx context.Context, id string) error {
	objPrefix := s.idPrefix() + id + "/"
	for obj := range s.core.Client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: objPrefix, Recursive: true}) {
		if obj.Err != nil {
			return obj.Err
		}
		if err := s.core.RemoveObject(ctx, s.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("remove %s: %w", obj.Key, err)
		}
	}
	return nil
}

// BackupSize sums the object sizes of one backup.
func (s *S3Store) BackupSize(ctx context.Context, id string) (int64, error) {
	objPrefix := s.idPrefix() + id + "/"
	var total int64
	for obj := range s.core.Client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: objPrefix, Recursive: true}) {
		if obj.Err != nil {
			return 0, obj.Err
		}
		total += obj.Size
	}
	return total, nil
}

// ChunkSizes splits a total size into chunkSize pieces, the last one
// carrying the remainder.
func ChunkSizes(total, chunkSize int64) []int64 {
	if total <= 0 || chunkSize <= 0 {
		return nil
	}
	n := total / chunkSize
	rem := total % chunkSize
	sizes := make([]int64, 0, n+1)
	for i := int64(0); i < n; i++ {
		sizes = append(sizes, chunkSize)
	}
	if rem > 0 {
		sizes = append(sizes, rem)
	}
	return sizes
}
