package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/campus-qa/internal/cache"
)

// CachedClient 为单条查询向量加一层缓存
// 批量请求不经过缓存，直接透传
type CachedClient struct {
	Client
	cache  cache.Cache
	ttl    time.Duration
	logger *logrus.Logger
}

// NewCachedClient 包装一个客户端
func NewCachedClient(client Client, c cache.Cache, ttl time.Duration, logger *logrus.Logger) *CachedClient {
	if logger == nil {
		logger = logrus.New()
	}
	return &CachedClient{
		Client: client,
		cache:  c,
		ttl:    ttl,
		logger: logger,
	}
}

// Embed 优先从缓存读取向量，缓存故障时退化为直接调用
func (c *CachedClient) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(text)

	if data, found, err := c.cache.Get(ctx, key); err != nil {
		c.logger.WithError(err).Warn("Embedding cache read failed")
	} else if found {
		if vec, ok := DecodeVector(data); ok {
			return vec, nil
		}
	}

	vec, err := c.Client.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if err := c.cache.Set(ctx, key, EncodeVector(vec), c.ttl); err != nil {
		c.logger.WithError(err).Warn("Embedding cache write failed")
	}
	return vec, nil
}

func (c *CachedClient) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return cache.GenerateCacheKey("embedding", c.Client.Name(), hex.EncodeToString(sum[:]))
}

// EncodeVector 将向量编码为小端float32字节序列
func EncodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

// DecodeVector 解码EncodeVector的输出
func DecodeVector(data []byte) ([]float32, bool) {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, false
	}
	v := make([]float32, len(data)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return v, true
}
