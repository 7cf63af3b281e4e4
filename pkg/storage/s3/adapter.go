package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"mediamanifest/pkg/storage"
	"mediamanifest/pkg/types"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Adapter 实现了 storage.Store 接口
// S3 没有真正的目录，这里用 Delimiter="/" 的前缀列举模拟一层目录
type Adapter struct {
	client *s3.Client
	bucket string
}

// Config 用于初始化 Adapter
type Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string

	// CreateBucket 为 true 时，Bucket 不存在会尝试创建 (本地 MinIO 调试用)
	CreateBucket bool
}

// NewAdapter 初始化 S3 客户端 (适配 AWS SDK v2 最新规范)
func NewAdapter(ctx context.Context, cfg Config) (*Adapter, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	// 1. 加载基础配置 (仅包含 Region 和 Credentials)
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	// 2. 创建 S3 客户端时，注入特定于 S3 的配置
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// 如果指定了 Endpoint (比如 MinIO 的 localhost:9000)，则覆盖默认值
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		// MinIO 必须强制使用 Path Style
		o.UsePathStyle = true
	})

	// 3. 检查 Bucket 可达
	_, err = client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)})
	if err != nil {
		if !cfg.CreateBucket {
			return nil, fmt.Errorf("s3 bucket %s not reachable: %w", cfg.Bucket, err)
		}
		if _, err := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.Bucket, err)
		}
	}

	return &Adapter{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

// objectKey 把逻辑路径转换为 S3 Key
// Logic: "/Root//Alpha/x.png" -> "Root/Alpha/x.png"
func objectKey(path types.RemotePath) string {
	return path.Clean().String()
}

// listPrefix 返回列举目录时使用的前缀，根目录为空串
// Logic: "Root/Alpha" -> "Root/Alpha/"
func listPrefix(path types.RemotePath) string {
	key := objectKey(path)
	if key == "" {
		return ""
	}
	return key + "/"
}

// List 列举一层目录 (分页)
// 前缀下没有任何对象 (连目录占位对象都没有) 时返回 storage.ErrNotFound
func (s *Adapter) List(ctx context.Context, path types.RemotePath) ([]storage.Item, error) {
	prefix := listPrefix(path)
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})

	var items []storage.Item
	seenAny := false
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 list %q failed: %w", prefix, err)
		}
		for _, cp := range page.CommonPrefixes {
			seenAny = true
			if name := childName(prefix, aws.ToString(cp.Prefix)); name != "" {
				items = append(items, storage.Item{Name: name, IsDir: true})
			}
		}
		for _, obj := range page.Contents {
			seenAny = true
			// 目录占位对象 ("Root/Alpha/") 本身不是文件
			if name := childName(prefix, aws.ToString(obj.Key)); name != "" {
				items = append(items, storage.Item{Name: name})
			}
		}
	}

	if !seenAny && prefix != "" {
		return nil, storage.ErrNotFound
	}
	return items, nil
}

// childName 去掉前缀和末尾的 "/"，得到直接子项的名字
func childName(prefix, key string) string {
	rest := strings.TrimPrefix(key, prefix)
	return strings.TrimSuffix(rest, "/")
}

// Put 上传对象 (覆盖写，天然幂等)
func (s *Adapter) Put(ctx context.Context, path types.RemotePath, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey(path)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		// Manifest 需要尽快可见，不让中间层缓存太久
		CacheControl: aws.String("no-cache"),
	})
	if err != nil {
		return fmt.Errorf("s3 put failed: %w", err)
	}
	return nil
}

// Get 下载对象
func (s *Adapter) Get(ctx context.Context, path types.RemotePath) (io.ReadCloser, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(path)),
	})
	if err != nil {
		// 将 AWS 的 NoSuchKey 错误映射为我们自己的 ErrNotFound
		var noKey *s3types.NoSuchKey
		var notFound *s3types.NotFound
		if errors.As(err, &noKey) || errors.As(err, &notFound) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("s3 get failed: %w", err)
	}
	return resp.Body, nil
}
