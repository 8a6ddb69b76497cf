// Package handler 提供 HTTP 请求处理器
package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"docqa-rag-api/internal/application/chat"
	"docqa-rag-api/internal/interfaces/http/dto"
	apperrors "docqa-rag-api/pkg/errors"
	"docqa-rag-api/pkg/logger"
)

// writeError 校验错误 422，AppError 按自身状态码，其余 500
func writeError(c *gin.Context, err error, fallback string) {
	var ve *chat.ValidationError
	if errors.As(err, &ve) {
		dto.UnprocessableEntity(c, ve.Message, &dto.ErrorDetail{
			ErrorCode: string(apperrors.CodeValidationFailed),
			Field:     ve.Field,
		})
		return
	}
	if apperrors.IsAppError(err) {
		appErr := apperrors.AsAppError(err)
		if appErr.HTTPStatus >= 500 {
			logger.Error(c.Request.Context(), fallback, err)
		}
		dto.AppError(c, appErr)
		return
	}
	logger.Error(c.Request.Context(), fallback, err)
	dto.InternalError(c, fallback)
}
