package middleware

type httpConfig struct {
	// 不记录响应体的请求路径，映射关系 path => true
	noResponseBodyPaths map[string]bool
}

// Option 拦截器选项
type Option func(*httpConfig)

func defaultHTTPConfig() *httpConfig {
	return &httpConfig{
		noResponseBodyPaths: make(map[string]bool),
	}
}

// NoResponseBodyLog 不解析指定路径的响应体，用于图片等二进制响应
func NoResponseBodyLog(paths ...string) Option {
	return func(c *httpConfig) {
		for _, p := range paths {
			c.noResponseBodyPaths[p] = true
		}
	}
}
