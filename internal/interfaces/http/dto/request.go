package dto

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// PageRequest limit/offset 分页参数
type PageRequest struct {
	Limit  int `form:"limit" json:"limit"`
	Offset int `form:"offset" json:"offset"`
}

// BindPage 从查询串绑定分页参数；非法值回退默认，limit 上限由服务层裁剪
func BindPage(c *gin.Context, defaultLimit int) PageRequest {
	req := PageRequest{
		Limit:  parseIntWithDefault(c.Query("limit"), defaultLimit),
		Offset: parseIntWithDefault(c.Query("offset"), 0),
	}
	if req.Limit < 0 {
		req.Limit = defaultLimit
	}
	if req.Offset < 0 {
		req.Offset = 0
	}
	return req
}

// parseIntWithDefault 解析整数，失败时返回默认值
func parseIntWithDefault(s string, defaultVal int) int {
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

// BindSessionID 从 URI 绑定会话 ID
func BindSessionID(c *gin.Context) string {
	return c.Param("sid")
}

// BindDocumentID 从 URI 绑定文档 ID
func BindDocumentID(c *gin.Context) string {
	return c.Param("id")
}
