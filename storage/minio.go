package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"OctaMuse/config"
	"OctaMuse/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Buckets owned by this service. Republished generation results live here so
// tracks keep playing after the provider expires its links.
const (
	MusicBucket = "music-files"
	CoverBucket = "cover-images"
)

var minioClient *minio.Client

// InitMinio 初始化 MinIO 客户端并确保存储桶存在
func InitMinio(cfg *config.Config) error {
	logger.Info("正在连接 MinIO 服务器...",
		logger.String("endpoint", cfg.MinioEndpoint),
		logger.Bool("useSSL", cfg.MinioUseSSL))

	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return fmt.Errorf("创建 MinIO 客户端失败: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, bucket := range []string{MusicBucket, CoverBucket} {
		if err := ensureBucket(ctx, client, bucket, cfg.MinioRegion); err != nil {
			return err
		}
	}

	minioClient = client
	logger.Info("MinIO 客户端初始化成功")
	return nil
}

func ensureBucket(ctx context.Context, client *minio.Client, bucket, region string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("检查存储桶失败: %v", err)
	}
	if exists {
		logger.Info("存储桶已存在", logger.String("bucket", bucket))
		return nil
	}

	err = client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region})
	if err != nil {
		// 并发启动时另一实例可能已创建
		if exists, checkErr := client.BucketExists(ctx, bucket); checkErr == nil && exists {
			return nil
		}
		return fmt.Errorf("创建存储桶失败: %v", err)
	}
	logger.Info("成功创建存储桶", logger.String("bucket", bucket))
	return nil
}

// GetMinioClient 获取 MinIO 客户端实例
func GetMinioClient() *minio.Client {
	return minioClient
}

// ObjectUploader is the minimal upload surface the republisher depends on.
type ObjectUploader interface {
	Upload(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error)
}

// MinioUploader implements ObjectUploader against the shared MinIO client.
type MinioUploader struct {
	client        *minio.Client
	publicBaseURL string
	endpoint      string
	useSSL        bool
}

// NewMinioUploader creates an uploader backed by the initialized client.
func NewMinioUploader(cfg *config.Config) *MinioUploader {
	return &MinioUploader{
		client:        minioClient,
		publicBaseURL: cfg.MinioPublicBaseURL,
		endpoint:      cfg.MinioEndpoint,
		useSSL:        cfg.MinioUseSSL,
	}
}

// Upload writes an object, overwriting any previous version, and returns its
// public URL.
func (u *MinioUploader) Upload(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error) {
	if u.client == nil {
		return "", fmt.Errorf("minio client not initialized")
	}

	_, err := u.client.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("上传对象失败 %s/%s: %v", bucket, key, err)
	}

	return u.PublicURL(bucket, key), nil
}

// PublicURL builds the externally reachable URL for an object.
func (u *MinioUploader) PublicURL(bucket, key string) string {
	if u.publicBaseURL != "" {
		return fmt.Sprintf("%s/%s/%s", strings.TrimRight(u.publicBaseURL, "/"), bucket, key)
	}
	scheme := "http"
	if u.useSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, u.endpoint, bucket, key)
}
