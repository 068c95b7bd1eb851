package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess       = 0
	CodeParamError    = 400
	CodeUnauthorized  = 401
	CodeForbidden     = 403
	CodeNotFound      = 404
	CodeServerError   = 500
	CodeBusinessError = 1000
)

const (
	CodeUserNotFound        = 1001
	CodeBalanceNotEnough    = 1002
	CodeUserBanned          = 1003
	CodeSurveyNotFound      = 1004
	CodeSurveyUnavailable   = 1005
	CodeAlreadyResponded    = 1006
	CodeNotSurveyOwner      = 1007
	CodeListingNotFound     = 1008
	CodeListingInactive     = 1009
	CodeAlreadyPurchased    = 1010
	CodeClaimUnavailable    = 1011
	CodeAlreadyClaimed      = 1012
	CodeLotteryUnavailable  = 1013
	CodeAlreadyEntered      = 1014
	CodeInvalidSurveyParams = 1015
	CodeSelfPurchase        = 1016
	CodeNotPurchased        = 1017
	CodeNoResponses         = 1018
	CodeNoReward            = 1019
	CodeProfileIncomplete   = 1020
	CodeNotListingOwner     = 1021
)

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, CodeParamError, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, CodeServerError, message)
}

func BusinessError(c *gin.Context, code int, message string) {
	Error(c, code, message)
}
