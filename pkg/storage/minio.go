// Package storage 提供了与对象存储服务（如 MinIO）交互的功能，用于保存审计导出文件。
package storage

import (
	"bytes"
	"context"
	"fmt"
	"org-authority-go/internal/config"
	"org-authority-go/pkg/log"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioClient 是一个全局的 MinIO 客户端实例。
var MinioClient *minio.Client

// exportURLExpiry 是导出文件下载链接的有效期。
const exportURLExpiry = 24 * time.Hour

// InitMinIO 初始化 MinIO 客户端并确保指定的存储桶存在。
func InitMinIO(ctx context.Context, cfg config.MinIOConfig) (*ExportArchive, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 MinIO 客户端失败: %w", err)
	}
	MinioClient = client
	log.Info("MinIO 客户端初始化成功")

	// 检查存储桶是否存在，如果不存在则创建
	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("检查 MinIO 存储桶失败: %w", err)
	}
	if !exists {
		log.Infof("存储桶 '%s' 不存在，正在创建...", cfg.BucketName)
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("创建 MinIO 存储桶失败: %w", err)
		}
		log.Infof("存储桶 '%s' 创建成功", cfg.BucketName)
	}
	return NewExportArchive(client, cfg.BucketName), nil
}

// ExportArchive 把审计导出写入存储桶并生成预签名下载链接。
type ExportArchive struct {
	client *minio.Client
	bucket string
}

// NewExportArchive 创建一个新的 ExportArchive 实例。
func NewExportArchive(client *minio.Client, bucket string) *ExportArchive {
	return &ExportArchive{client: client, bucket: bucket}
}

// PutExport 上传导出文件，返回有效期 24 小时的下载链接。
func (a *ExportArchive) PutExport(ctx context.Context, objectName string, body []byte) (string, error) {
	_, err := a.client.PutObject(ctx, a.bucket, objectName, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "application/x-ndjson",
	})
	if err != nil {
		log.Errorf("[ExportArchive] 上传导出文件失败, Object: %s, Error: %v", objectName, err)
		return "", err
	}
	return a.PresignedURL(ctx, objectName, exportURLExpiry)
}

// PresignedURL 为对象生成预签名下载链接。
func (a *ExportArchive) PresignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	presignedURL, err := a.client.PresignedGetObject(ctx, a.bucket, objectName, expiry, nil)
	if err != nil {
		log.Errorf("Error generating presigned URL: %s", err)
		return "", err
	}
	return presignedURL.String(), nil
}
