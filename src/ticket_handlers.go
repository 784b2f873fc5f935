package main

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"cpass/src/config"
	"cpass/src/engine"
	"cpass/src/types"
	"cpass/src/utils"

	awslib "cpass/src/lib/aws"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func ticketHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	g.
		POST("/tickets", func(ctx *gin.Context) {
			var body types.IssueTicketRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			req := &engine.IssueRequest{
				UserID:          body.UserID,
				EventID:         body.EventID,
				TierName:        body.TierName,
				Quantity:        body.Quantity,
				TotalPriceCents: body.TotalPriceCents,
				Currency:        body.Currency,
				PaymentIntentID: body.PaymentIntentID,
			}
			if body.ExpiresAt != "" {
				expiresAt, err := time.Parse(config.TIME_PARSE_FORMAT, body.ExpiresAt)
				if err != nil {
					ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
					return
				}
				req.ExpiresAt = &expiresAt
			}
			ticket, err := eng.Issue(ctx.Request.Context(), req)
			if err != nil {
				log.Printf("error issuing ticket: %s\n", err.Error())
				ctx.JSON(statusForEngineError(err), gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusCreated, ticket)
		}).
		GET("/tickets/user/:userId", func(ctx *gin.Context) {
			var params types.UserTicketsURIParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			tickets, err := ticketStore.ListByUser(ctx.Request.Context(), params.UserID)
			if err != nil {
				log.Printf("Error retrieving Tickets for user [%s]: %s\n", params.UserID, err.Error())
				ctx.Status(http.StatusBadRequest)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": tickets})
		}).
		GET("/tickets/user/:userId/count", func(ctx *gin.Context) {
			var params types.UserTicketsURIParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			count, err := ticketStore.CountConfirmedByUser(ctx.Request.Context(), params.UserID)
			if err != nil {
				log.Printf("Error counting Tickets for user [%s]: %s\n", params.UserID, err.Error())
				ctx.Status(http.StatusBadRequest)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"count": count})
		}).
		GET("/tickets/id/:id", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			id, _ := uuid.Parse(params.ID)
			ticket, err := ticketStore.Get(ctx.Request.Context(), id)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					ctx.Status(http.StatusNotFound)
					return
				}
				log.Printf("Error retrieving Ticket [%s]: %s\n", params.ID, err.Error())
				ctx.Status(http.StatusBadRequest)
				return
			}
			ctx.JSON(http.StatusOK, ticket)
		}).
		PUT("/tickets/:id/cancel", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			var body types.CancelTicketRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			id, _ := uuid.Parse(params.ID)
			ticket, err := coordinator.Cancel(ctx.Request.Context(), id, body.CancelledBy)
			if err != nil {
				log.Printf("Error cancelling Ticket [%s]: %s\n", params.ID, err.Error())
				ctx.JSON(statusForEngineError(err), gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, ticket)
		}).
		GET("/tickets/:id/wallet/:provider", func(ctx *gin.Context) {
			var params types.WalletPassURIParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			id, _ := uuid.Parse(params.ID)
			url, err := coordinator.IssueWalletPass(ctx.Request.Context(), id, params.Provider)
			if err != nil {
				log.Printf("Error issuing %s pass for Ticket [%s]: %s\n", params.Provider, params.ID, err.Error())
				ctx.JSON(statusForEngineError(err), gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{
				"url":      url,
				"provider": params.Provider,
				"ticketId": params.ID,
			})
		}).
		GET("/tickets/:id/code", func(ctx *gin.Context) {
			var query struct {
				ShareLink bool `form:"share_link"`
			}
			if err := ctx.ShouldBindQuery(&query); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			id, _ := uuid.Parse(params.ID)
			ticket, err := ticketStore.Get(ctx.Request.Context(), id)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					ctx.Status(http.StatusNotFound)
					return
				}
				ctx.Status(http.StatusBadRequest)
				return
			}
			url, err := utils.TicketQRAssetURL(ticket)
			if err != nil {
				log.Printf("Error preparing QR asset for Ticket [%s]: %s\n", params.ID, err.Error())
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			if query.ShareLink {
				ctx.JSON(http.StatusOK, gin.H{"url": url})
				return
			}
			filename := fmt.Sprintf("ticketcode_%s", ticket.ID.String())
			filepath, err := awslib.DownloadQRAsset(ctx.Request.Context(), filename)
			if err != nil {
				log.Printf("Error downloading asset [%s] from S3 bucket: %s\n", filename, err.Error())
				ctx.Status(http.StatusBadRequest)
				return
			}
			ctx.FileAttachment(filepath, "ticketcode.jpeg")
		})
	return g
}
