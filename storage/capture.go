package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strconv"
	"time"

	"github.com/minio/minio-go/v7"

	"ncmfm/logger"
	"ncmfm/model"
)

const (
	capturePrefix      = "captures/"
	captureContentType = "application/octet-stream"
)

// ObjectInfo 文件信息
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	ContentType  string
	ETag         string
}

// BucketStats 存储桶统计信息
type BucketStats struct {
	TotalObjects int64
	TotalSize    int64
	LastModified time.Time
}

// CaptureStore 把解码出的 PCM 存进 MinIO
type CaptureStore struct {
	client *minio.Client
	bucket string
}

func NewCaptureStore(client *minio.Client, bucket string) *CaptureStore {
	return &CaptureStore{client: client, bucket: bucket}
}

// CaptureObjectName 形如 captures/song/26209670/20240501T120000Z-75000ms.f32le
func CaptureObjectName(ref model.TrackRef, offset time.Duration, at time.Time) string {
	file := at.UTC().Format("20060102T150405Z") + "-" + strconv.FormatInt(offset.Milliseconds(), 10) + "ms.f32le"
	return path.Join(capturePrefix+ref.Kind.String(), ref.ID.String(), file)
}

// Upload 上传一段 PCM。size 未知时传 -1，按分片上传。
func (s *CaptureStore) Upload(ctx context.Context, name string, r io.Reader, size int64, md *model.TrackMetadata) (ObjectInfo, error) {
	opts := minio.PutObjectOptions{
		ContentType: captureContentType,
		UserMetadata: map[string]string{
			"sample-rate": strconv.Itoa(model.SampleRate),
			"channels":    strconv.Itoa(model.ChannelCount),
			"codec":       "f32le",
		},
	}
	if md != nil {
		opts.UserMetadata["title"] = md.DisplayName()
		opts.UserMetadata["artist"] = md.Artist()
		opts.UserMetadata["duration-ms"] = strconv.FormatInt(md.Duration.Milliseconds(), 10)
	}

	start := time.Now()
	info, err := s.client.PutObject(ctx, s.bucket, name, r, size, opts)
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("上传 %s 失败: %w", name, err)
	}

	logger.Info("[CaptureStore] 上传完成",
		logger.String("bucket", s.bucket),
		logger.String("object", name),
		logger.String("size", FormatSize(info.Size)),
		logger.Duration("elapsed", time.Since(start)))

	return ObjectInfo{
		Key:          info.Key,
		Size:         info.Size,
		LastModified: info.LastModified,
		ContentType:  captureContentType,
		ETag:         info.ETag,
	}, nil
}

// List 列出前缀下的采集文件
func (s *CaptureStore) List(ctx context.Context, prefix string) ([]ObjectInfo, *BucketStats, error) {
	stats := &BucketStats{}
	var objects []ObjectInfo

	objectCh := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    capturePrefix + prefix,
		Recursive: true,
	})
	for object := range objectCh {
		if object.Err != nil {
			return nil, nil, fmt.Errorf("列出对象时出错: %w", object.Err)
		}

		stats.TotalObjects++
		stats.TotalSize += object.Size
		if object.LastModified.After(stats.LastModified) {
			stats.LastModified = object.LastModified
		}

		objects = append(objects, ObjectInfo{
			Key:          object.Key,
			Size:         object.Size,
			LastModified: object.LastModified,
			ContentType:  object.ContentType,
			ETag:         object.ETag,
		})
	}
	return objects, stats, nil
}

// FormatSize 格式化文件大小
func FormatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
