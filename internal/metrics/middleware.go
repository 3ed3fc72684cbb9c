package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// probePaths 探针与抓取端点不计入请求指标
var probePaths = map[string]struct{}{
	"/metrics": {},
	"/health":  {},
	"/ready":   {},
}

// PrometheusMiddleware 记录 HTTP 请求次数与延迟
// 未匹配路由统一记为 unmatched，避免路径标签基数失控
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, skip := probePaths[c.Request.URL.Path]; skip {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())

		APIRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		APIRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
