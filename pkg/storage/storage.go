package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrNotFound 对象不存在
var ErrNotFound = errors.New("object not found")

// FileInfo 对象元数据
type FileInfo struct {
	Key     string    // 对象键（相对路径）
	Size    int64     // 大小（字节）
	ModTime time.Time // 最后修改时间
}

// Storage 按键存取的对象存储接口
// 本地文件系统与MinIO各有一种实现，索引持久化文件通过它读写
type Storage interface {
	// Put 写入对象，已存在则整体覆盖
	Put(ctx context.Context, key string, r io.Reader, size int64) error

	// Get 读取对象，不存在时返回ErrNotFound
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete 删除对象，不存在时不报错
	Delete(ctx context.Context, key string) error

	// Exists 检查对象是否存在
	Exists(ctx context.Context, key string) (bool, error)

	// List 列出指定前缀下的对象
	List(ctx context.Context, prefix string) ([]FileInfo, error)
}

// Config 存储配置
type Config struct {
	Type  string      // "local" 或 "minio"
	Local LocalConfig // 本地存储配置
	Minio MinioConfig // MinIO存储配置
}

// New 根据配置创建存储实现
func New(cfg Config) (Storage, error) {
	switch cfg.Type {
	case "", "local":
		return NewLocalStorage(cfg.Local)
	case "minio":
		return NewMinioStorage(cfg.Minio)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
