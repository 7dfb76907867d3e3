package main

import (
	"errors"
	"log"
	"net/http"

	"mentorhub/src/lib"
	"mentorhub/src/utils"

	"github.com/gin-gonic/gin"
)

// paymentCallbackRoute receives the provider's signed callback. The route is
// public: authenticity comes from the HMAC over the parameters, not from a
// session. An invalid signature is ignored outright, with zero state change.
func paymentCallbackRoute(g *gin.Engine) *gin.RouterGroup {
	apiv1 := apiv1Group(g)
	apiv1.GET("/payment/vnpay/callback", func(ctx *gin.Context) {
		params := map[string]string{}
		for key, values := range ctx.Request.URL.Query() {
			if len(values) > 0 {
				params[key] = values[0]
			}
		}
		cfg := lib.GetVNPayConfig()
		if !lib.VNPayVerifyCallback(params, cfg.HashSecret) {
			log.Printf("Rejected callback with bad signature for ref [%s]\n", params[lib.VNPayParamTxnRef])
			ctx.JSON(http.StatusBadRequest, gin.H{"RspCode": "97", "Message": "Invalid signature"})
			return
		}

		mentorId, err := utils.SettlePaymentCallback(params)
		if err != nil {
			if errors.Is(err, utils.ErrBookingNotFound) {
				ctx.JSON(http.StatusNotFound, gin.H{"RspCode": "01", "Message": "Order not found"})
				return
			}
			log.Printf("Error handling callback for ref [%s]: %s\n", params[lib.VNPayParamTxnRef], err.Error())
			ctx.JSON(http.StatusUnprocessableEntity, gin.H{"RspCode": "99", "Message": "Unknown error"})
			return
		}
		ctx.JSON(http.StatusOK, gin.H{
			"RspCode":   "00",
			"Message":   "Confirm Success",
			"mentor_id": mentorId,
		})
	})
	return apiv1
}
