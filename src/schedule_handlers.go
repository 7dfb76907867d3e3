package main

import (
	"net/http"
	"time"

	"mentorhub/src/config"
	"mentorhub/src/db"
	"mentorhub/src/models"
	"mentorhub/src/types"
	"mentorhub/src/utils"

	"github.com/gin-gonic/gin"
)

func scheduleHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	g.
		GET("/schedules/upcoming", func(ctx *gin.Context) {
			var filters types.ScheduleQueryFilters
			if err := ctx.ShouldBindQuery(&filters); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			from := time.Now().UTC().Truncate(24 * time.Hour)
			to := from.Add(30 * 24 * time.Hour)
			if filters.From != "" {
				from, _ = time.Parse(config.DATE_PARSE_FORMAT, filters.From)
			}
			if filters.To != "" {
				to, _ = time.Parse(config.DATE_PARSE_FORMAT, filters.To)
			}
			schedules, err := utils.UpcomingSchedules(filters.Mentor, from, to)
			if err != nil {
				ctx.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": schedules, "count": len(schedules)})
		}).
		GET("/schedules/:id", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			db := db.GetDb()
			var schedule models.Schedule
			if err := db.
				Model(&models.Schedule{}).
				Where(&models.Schedule{ID: params.ID}).
				Preload("Slots").
				Preload("Mentor").
				First(&schedule).
				Error; err != nil {
				ctx.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": schedule})
		})
	return g
}
