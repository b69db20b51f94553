package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"runtime/debug"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/brokerwatch/pkg/logger"
)

// Recovery 适配 pkg/logger 的异常恢复中间件
func Recovery(l logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			httpRequest, _ := httputil.DumpRequest(c.Request, false)

			// 连接已断开，无法再写响应
			if err, ok := r.(error); ok && (errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET)) {
				l.Warn("http broken pipe", "error", err, "request", string(httpRequest))
				_ = c.Error(err)
				c.Abort()
				return
			}

			l.Error("http recovery from panic",
				"error", fmt.Sprint(r),
				"request", string(httpRequest),
				"stack", string(debug.Stack()),
			)
			c.AbortWithStatus(http.StatusInternalServerError)
		}()
		c.Next()
	}
}
