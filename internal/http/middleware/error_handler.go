package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/escrow-backend/internal/dto"
	"github.com/ignatzorin/escrow-backend/internal/logger"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
)

// ErrorHandler обрабатывает ошибки централизованно: ошибки apperror
// транслируются в статус и код из таксономии, всё остальное маскируется
// как внутренняя ошибка.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() || len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err

		var appErr *apperror.AppError
		if !apperror.As(err, &appErr) {
			appErr = apperror.Wrap(err, apperror.ErrCodeInternal, "внутренняя ошибка сервера")
		}

		entry := logger.Log.WithFields(logrus.Fields{
			"code":   appErr.Code,
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
		})
		if appErr.HTTPStatus >= http.StatusInternalServerError {
			entry.WithError(err).Error("Ошибка запроса")
		} else {
			entry.Debug(appErr.Message)
		}

		message := appErr.Message
		if appErr.HTTPStatus == http.StatusInternalServerError {
			// Детали внутренних ошибок клиенту не уходят.
			message = "внутренняя ошибка сервера"
		}

		c.JSON(appErr.HTTPStatus, dto.ErrorResponse{
			Error: message,
			Code:  string(appErr.Code),
		})
	}
}
