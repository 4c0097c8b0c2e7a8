package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/rrweller/finn-apartment-finder/internal/infrastructure/monitoring/logging"
	apperrors "github.com/rrweller/finn-apartment-finder/pkg/errors"
)

// ErrorResponse is the standard error response body.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// writeAppError maps an error to its HTTP status and error body. Server
// errors keep their code but hide the message of foreign errors.
func writeAppError(c *gin.Context, err error) {
	code := apperrors.GetCode(err)
	status := apperrors.HTTPStatusForCode(code)

	resp := ErrorResponse{Code: code.String()}
	var ae *apperrors.AppError
	if errors.As(err, &ae) {
		resp.Message = ae.Message
		if status < 500 {
			resp.Detail = ae.Detail
		}
	} else {
		resp.Code = apperrors.ErrCodeInternal.String()
		resp.Message = apperrors.DefaultMessageForCode(apperrors.ErrCodeInternal)
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(status, resp)
}

func badRequest(c *gin.Context, message string, cause error) {
	e := apperrors.InvalidParam(message)
	if cause != nil {
		e = e.WithCause(cause).WithDetail(cause.Error())
	}
	writeAppError(c, e)
}

// bindOptionalJSON decodes the body into dst; an empty body leaves dst
// unchanged.
func bindOptionalJSON(c *gin.Context, dst interface{}) error {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// indexParam parses a non-negative path index.
func indexParam(c *gin.Context, name string) (int, bool) {
	i, err := strconv.Atoi(c.Param(name))
	if err != nil || i < 0 {
		writeAppError(c, apperrors.New(apperrors.ErrCodeOriginIndex, "origin index out of range").WithDetail(c.Param(name)))
		return 0, false
	}
	return i, true
}

func requestLogger(c *gin.Context, l logging.Logger) logging.Logger {
	return l.WithContext(c.Request.Context())
}

func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
