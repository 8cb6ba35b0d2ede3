package oss

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"

	"github.com/qs3c/exam_go_server/config"
)

// ObjectPrefix 存储在 FilePath 中的 OSS 对象标记前缀
const ObjectPrefix = "oss://"

type Client struct {
	client     *oss.Client
	bucket     *oss.Bucket
	bucketName string
	cdnDomain  string
}

func NewClient(cfg *config.OSSConfig) (*Client, error) {
	client, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create OSS client: %w", err)
	}

	bucket, err := client.Bucket(cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to get bucket: %w", err)
	}

	return &Client{
		client:     client,
		bucket:     bucket,
		bucketName: cfg.BucketName,
		cdnDomain:  cfg.CDNDomain,
	}, nil
}

// UploadExamFile 上传试卷源文件，返回 oss:// 形式的存储路径
func (c *Client) UploadExamFile(userID int64, fileID, ext string, data []byte) (string, error) {
	objectKey := fmt.Sprintf("exams/%d/%d_%s%s", userID, time.Now().Unix(), fileID, ext)

	err := c.bucket.PutObject(objectKey, bytes.NewReader(data), oss.ContentType(getContentType(ext)))
	if err != nil {
		return "", fmt.Errorf("failed to upload exam file: %w", err)
	}

	return ObjectPrefix + objectKey, nil
}

// Download 读取对象内容，path 为 oss:// 形式的存储路径
func (c *Client) Download(path string) ([]byte, error) {
	objectKey := strings.TrimPrefix(path, ObjectPrefix)

	body, err := c.bucket.GetObject(objectKey)
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object: %w", err)
	}
	return data, nil
}

// Delete 删除对象
func (c *Client) Delete(path string) error {
	objectKey := strings.TrimPrefix(path, ObjectPrefix)

	if err := c.bucket.DeleteObject(objectKey); err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// IsObjectPath 路径是否指向 OSS 对象
func IsObjectPath(path string) bool {
	return strings.HasPrefix(path, ObjectPrefix)
}

// getContentType 根据扩展名获取 Content-Type
func getContentType(ext string) string {
	switch ext {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".pdf":
		return "application/pdf"
	case ".doc":
		return "application/msword"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".txt", ".md":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}
