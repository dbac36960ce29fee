package syncboard

import (
	"github.com/gin-gonic/gin"
)

// RouterGroup 路由组
type RouterGroup struct {
	group *gin.RouterGroup
}

// Group 创建子路由组
func (rg *RouterGroup) Group(path string, middlewares ...HandlerFunc) *RouterGroup {
	return &RouterGroup{
		group: rg.group.Group(path, WrapMiddlewares(middlewares...)...),
	}
}

// Use 注册中间件
func (rg *RouterGroup) Use(middlewares ...HandlerFunc) {
	rg.group.Use(WrapMiddlewares(middlewares...)...)
}

// GET 注册 GET 路由
func (rg *RouterGroup) GET(path string, handler HandlerFunc, middlewares ...HandlerFunc) {
	rg.group.GET(path, chain(handler, middlewares)...)
}

// POST 注册 POST 路由
func (rg *RouterGroup) POST(path string, handler HandlerFunc, middlewares ...HandlerFunc) {
	rg.group.POST(path, chain(handler, middlewares)...)
}

// chain 中间件在前，处理函数在后
func chain(handler HandlerFunc, middlewares []HandlerFunc) []gin.HandlerFunc {
	return append(WrapMiddlewares(middlewares...), WrapHandler(handler))
}

// RouteRegister 路由注册函数类型
type RouteRegister func(path string, handler HandlerFunc, middlewares ...HandlerFunc)

// HandleOnly 无请求参数，有响应数据
// 自动处理响应
func HandleOnly[Resp any](register RouteRegister, path string, handler func(*Context) (*Resp, error), middlewares ...HandlerFunc) {
	wrappedHandler := func(c *Context) {
		resp, err := handler(c)
		if err != nil {
			c.RespondError(err)
			return
		}
		c.Success(resp)
	}
	register(path, wrappedHandler, middlewares...)
}

// HandleQuery 有查询参数，有响应数据
// 绑定失败时以 ErrBadRequest 响应
func HandleQuery[Req any, Resp any](register RouteRegister, path string, handler func(*Context, *Req) (*Resp, error), middlewares ...HandlerFunc) {
	wrappedHandler := func(c *Context) {
		var req Req
		if err := c.BindQuery(&req); err != nil {
			return
		}
		resp, err := handler(c, &req)
		if err != nil {
			c.RespondError(err)
			return
		}
		c.Success(resp)
	}
	register(path, wrappedHandler, middlewares...)
}
