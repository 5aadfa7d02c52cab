package meta

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// 元信息对象
type metadata struct {
	// 同步map，确保并发安全
	carrier map[interface{}]interface{}
	mu      sync.RWMutex
}

func (c *metadata) Value(key interface{}) interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.carrier[key]
}

func (c *metadata) WithValue(key, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.carrier[key] = value
}

type contextKey struct{}

type requestIDKey struct{}

var metaContextKey = contextKey{}

// Begin 开启元信息对象，应该在尽量靠近根上下文处调用
// 父类上下文中已存在元信息对象时直接返回父类上下文，多次调用安全
func Begin(parent context.Context) context.Context {
	if parent.Value(metaContextKey) != nil {
		return parent
	}
	return context.WithValue(parent, metaContextKey, &metadata{
		carrier: make(map[interface{}]interface{}),
	})
}

// 从父类上下文获取元信息对象
func metadataFrom(parent context.Context) *metadata {
	value := parent.Value(metaContextKey)
	if value == nil {
		logrus.Debug("meta not found from context, should call meta.Begin() first?")
		return nil
	}
	return value.(*metadata)
}

// WithValue 设置键值对至上下文的元信息对象
func WithValue(parent context.Context, key, val interface{}) {
	meta := metadataFrom(parent)
	if meta == nil {
		return
	}
	meta.WithValue(key, val)
}

// Value 从上下文的元信息对象中获取对应key的值
func Value(parent context.Context, key interface{}) interface{} {
	meta := metadataFrom(parent)
	if meta == nil {
		return nil
	}
	return meta.Value(key)
}

func SetRequestID(parent context.Context, id string) {
	WithValue(parent, requestIDKey{}, id)
}

// RequestID 未设置时返回空字符串
func RequestID(parent context.Context) string {
	id, _ := Value(parent, requestIDKey{}).(string)
	return id
}
