package main

import (
	"errors"
	"net/http"

	"mentorhub/src/middlewares"
	"mentorhub/src/types"
	"mentorhub/src/utils"

	"github.com/gin-gonic/gin"
)

func bookingHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	g.
		POST("/bookings", func(ctx *gin.Context) {
			var body types.CreateBookingRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			customerId := ctx.GetUint("id")
			res, err := utils.CreateBookingAndGetPaymentURL(customerId, &body, ctx.ClientIP())
			if err != nil {
				if errors.Is(err, utils.ErrNotFound) {
					ctx.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
					return
				}
				if errors.Is(err, utils.ErrSlotUnavailable) {
					ctx.JSON(http.StatusConflict, gin.H{"error": err.Error()})
					return
				}
				ctx.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusCreated, gin.H{"data": res})
		}).
		GET("/bookings", func(ctx *gin.Context) {
			userId := ctx.GetUint("id")
			bookings, err := utils.GetOwnBookings(userId)
			if err != nil {
				ctx.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": bookings, "count": len(bookings)})
		}).
		GET("/bookings/:id", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			userId := ctx.GetUint("id")
			booking, err := utils.GetBooking(params.ID)
			if err != nil {
				ctx.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			}
			if booking.CustomerID != userId && booking.MentorID != userId {
				ctx.Status(http.StatusForbidden)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": booking})
		}).
		PUT("/bookings/:id/cancel", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			var body types.CancelBookingRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			customerId := ctx.GetUint("id")
			if err := utils.CancelBooking(customerId, params.ID, body.Comment); err != nil {
				switch {
				case errors.Is(err, utils.ErrBookingNotFound):
					ctx.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				case errors.Is(err, utils.ErrForbidden):
					ctx.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
				case errors.Is(err, utils.ErrInvalidState), errors.Is(err, utils.ErrTooLateToCancel):
					ctx.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
				default:
					ctx.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
				}
				return
			}
			ctx.Status(http.StatusNoContent)
		})

	admin := g.Group("/admin")
	admin.Use(middlewares.AdminMiddleware)
	admin.
		PUT("/bookings/:id/refund", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			if err := utils.ProcessRefund(params.ID); err != nil {
				if errors.Is(err, utils.ErrBookingNotFound) {
					ctx.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
					return
				}
				ctx.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
				return
			}
			ctx.Status(http.StatusNoContent)
		}).
		POST("/bookings/cleanup", func(ctx *gin.Context) {
			removed, err := utils.CleanupUnpaidBookings()
			if err != nil {
				ctx.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"removed": removed})
		})

	return g
}
