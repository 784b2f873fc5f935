package main

import (
	"errors"
	"log"
	"net/http"

	"cpass/src/engine"
	"cpass/src/types"

	"github.com/gin-gonic/gin"
)

func scanHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	g.
		POST("/tickets/scan", func(ctx *gin.Context) {
			var body types.ScanTicketRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"valid": false, "error": err.Error()})
				return
			}
			scannedBy := body.ScannedBy
			if scannedBy == "" {
				scannedBy = ctx.GetString("device")
			}
			ticket, outcome, err := coordinator.CheckIn(ctx.Request.Context(), body.TicketCode, scannedBy)
			if err != nil {
				if errors.Is(err, engine.ErrNotFound) {
					ctx.JSON(http.StatusNotFound, gin.H{"valid": false})
					return
				}
				if errors.Is(err, engine.ErrBusy) {
					ctx.JSON(http.StatusTooManyRequests, gin.H{"valid": false, "error": err.Error(), "retry": true})
					return
				}
				var stateErr *engine.InvalidStateError
				if errors.As(err, &stateErr) {
					ctx.JSON(http.StatusBadRequest, gin.H{
						"valid":     false,
						"error":     stateErr.Error(),
						"duplicate": outcome == types.SCAN_DUPLICATE,
						"ticket":    ticket,
					})
					return
				}
				log.Printf("Error scanning code [%s]: %s\n", body.TicketCode, err.Error())
				ctx.JSON(http.StatusBadRequest, gin.H{"valid": false, "error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"valid": true, "ticket": ticket})
		}).
		GET("/tickets/admin/scan-events", func(ctx *gin.Context) {
			var query struct {
				Limit int `form:"limit,default=50" binding:"omitempty,min=1,max=500"`
			}
			if err := ctx.ShouldBindQuery(&query); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			events, err := scanLedger.ListRecent(ctx.Request.Context(), query.Limit)
			if err != nil {
				log.Printf("Error listing scan events: %s\n", err.Error())
				ctx.Status(http.StatusBadRequest)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": events})
		})
	return g
}
