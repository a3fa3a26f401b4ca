// Package response emits the JSON envelope every shelfchat endpoint shares:
// {"code": 0, "message": "", "data": ...} on success, a non-zero code plus
// message on failure. Streaming endpoints (SSE chat) bypass it once the
// first fragment is on the wire.
package response

import (
	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/webapi/proxyutil"
)

type codeErr struct {
	code uint32
	msg  string
}

func (e codeErr) Error() string {
	return e.msg
}

// Code satisfies proxyutil's coded-error contract so the numeric errcode
// lands in the envelope instead of a generic failure code.
func (e codeErr) Code() uint32 {
	return e.code
}

func AsCodeErr(code uint32, msg string) error {
	return codeErr{code: code, msg: msg}
}

func Success(c *gin.Context, data interface{}) {
	proxyutil.SuccessJson(c, data)
}

// Error always answers HTTP 200; clients dispatch on the envelope code.
func Error(c *gin.Context, code int, message string) {
	proxyutil.FailJson(c, 200, AsCodeErr(uint32(code), message))
}
