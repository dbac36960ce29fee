package syncboard

import (
	"github.com/gin-gonic/gin"
)

// HandlerFunc 路由处理函数和中间件函数
// 中间件需要调用 c.Next() 来继续执行后续处理
type HandlerFunc func(*Context)

// WrapHandler 将 HandlerFunc 转换为 gin.HandlerFunc
func WrapHandler(fn HandlerFunc) gin.HandlerFunc {
	if fn == nil {
		panic("syncboard: handler/middleware cannot be nil")
	}
	return func(c *gin.Context) {
		fn(&Context{ctx: c})
	}
}

// WrapMiddlewares 批量转换多个中间件
func WrapMiddlewares(middlewares ...HandlerFunc) []gin.HandlerFunc {
	wrapped := make([]gin.HandlerFunc, len(middlewares))
	for i, middleware := range middlewares {
		wrapped[i] = WrapHandler(middleware)
	}
	return wrapped
}
