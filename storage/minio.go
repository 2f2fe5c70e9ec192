package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"ncmfm/config"
	"ncmfm/logger"
)

const defaultRegion = "us-east-1"

var (
	minioClient *minio.Client
)

func region(cfg *config.Config) string {
	if cfg.MinioRegion == "" {
		return defaultRegion
	}
	return cfg.MinioRegion
}

// NewMinioClient 按配置创建 MinIO 客户端，不发起请求
func NewMinioClient(cfg *config.Config) (*minio.Client, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: region(cfg),
	})
	if err != nil {
		return nil, fmt.Errorf("创建 MinIO 客户端失败: %w", err)
	}
	return client, nil
}

// InitMinio 初始化 MinIO 客户端，存储桶不存在时创建
func InitMinio(ctx context.Context, cfg *config.Config) (*CaptureStore, error) {
	logger.Info("[MinIO] 正在连接 MinIO 服务器",
		logger.String("endpoint", cfg.MinioEndpoint),
		logger.String("bucket", cfg.MinioBucket))

	client, err := NewMinioClient(cfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	// 检查存储桶是否存在
	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return nil, fmt.Errorf("检查存储桶失败: %w", err)
	}

	if !exists {
		err = client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{
			Region: region(cfg),
		})
		if err != nil {
			return nil, fmt.Errorf("创建存储桶失败: %w", err)
		}
		logger.Info("[MinIO] 成功创建存储桶", logger.String("bucket", cfg.MinioBucket))
	}

	// 保存客户端实例
	minioClient = client
	logger.Info("[MinIO] 客户端初始化成功")
	return NewCaptureStore(client, cfg.MinioBucket), nil
}

// GetMinioClient 获取 MinIO 客户端实例
func GetMinioClient() *minio.Client {
	return minioClient
}
