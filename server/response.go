package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vitwit/checkout/types"
)

// Response is the envelope of every API response.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	ErrCodeBadRequest    = "BAD_REQUEST"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// Handle writes data, or the error mapped to its status code.
func Handle(c *gin.Context, data any, err error) {
	if err == nil {
		Success(c, data)
		return
	}

	var cerr *types.CheckoutError
	if !errors.As(err, &cerr) {
		Fail(c, http.StatusInternalServerError, ErrCodeInternalError, "An unexpected error occurred")
		return
	}
	Fail(c, statusFor(cerr.Code), cerr.Code, err.Error())
}

func statusFor(code string) int {
	switch code {
	case types.ErrCodeEmptyCart, types.ErrCodeUnknownTarget, types.ErrCodeManualTransferRequired,
		types.ErrCodeConfig:
		return http.StatusBadRequest
	case types.ErrCodeWalletRequired, types.ErrCodeProviderMissing, types.ErrCodeUserRejected,
		types.ErrCodeUnsupportedChain, types.ErrCodeChainNotAdded, types.ErrCodeWalletDisconnected:
		return http.StatusUnprocessableEntity
	case types.ErrCodeAlreadyPaid:
		return http.StatusConflict
	case types.ErrCodeExternalAPIUnavailable, types.ErrCodeRateFetchIncomplete, types.ErrCodeInvalidTxHash:
		return http.StatusBadGateway
	case types.ErrCodeReceiptPending:
		return http.StatusAccepted
	}
	return http.StatusInternalServerError
}

func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

func Fail(c *gin.Context, status int, code, message string) {
	c.JSON(status, Response{Success: false, Error: &Error{Code: code, Message: message}})
}

func BadRequest(c *gin.Context, message string) {
	Fail(c, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func Unauthorized(c *gin.Context, message string) {
	Fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}
