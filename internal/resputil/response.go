package resputil

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/acadlab/progest/pkg/apperr"
)

// Response is the envelope every endpoint returns.
type Response[T any] struct {
	Code ErrorCode `json:"code"`
	Data T         `json:"data"`
	Msg  string    `json:"msg"`
}

func wrapResponse(c *gin.Context, msg string, data any, code ErrorCode) {
	httpCode := http.StatusOK
	if code != OK {
		httpCode = http.StatusInternalServerError
	}
	c.JSON(httpCode, gin.H{
		"code": code,
		"data": data,
		"msg":  msg,
	})
}

func Success(c *gin.Context, data any) {
	wrapResponse(c, "", data, OK)
}

func Error(c *gin.Context, msg string, errorCode ErrorCode) {
	wrapResponse(c, msg, nil, errorCode)
}

func BadRequestError(c *gin.Context, msg string) {
	HTTPError(c, http.StatusBadRequest, msg, InvalidRequest)
}

func HTTPError(c *gin.Context, statusCode int, msg string, errorCode ErrorCode) {
	c.JSON(statusCode, gin.H{
		"code": errorCode,
		"data": nil,
		"msg":  msg,
	})
}

// WrapServiceError maps a tagged service error to the matching HTTP
// status and envelope code. Untagged errors surface as 500.
func WrapServiceError(c *gin.Context, err error) {
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		HTTPError(c, http.StatusNotFound, err.Error(), NotFound)
	case apperr.KindConflict:
		HTTPError(c, http.StatusConflict, err.Error(), Conflict)
	case apperr.KindInvalidState:
		HTTPError(c, http.StatusUnprocessableEntity, err.Error(), InvalidState)
	case apperr.KindInvalidArgument:
		HTTPError(c, http.StatusBadRequest, err.Error(), InvalidRequest)
	case apperr.KindForbidden:
		HTTPError(c, http.StatusForbidden, err.Error(), UserNotAllowed)
	default:
		Error(c, err.Error(), NotSpecified)
	}
}
