package main

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

func stripeWebhookRoute(g *gin.Engine) *gin.RouterGroup {
	apiv1 := apiv1Group(g)
	apiv1.POST("/webhook/stripe", func(ctx *gin.Context) {
		payload, err := io.ReadAll(ctx.Request.Body)
		if err != nil {
			log.Printf("Error reading request body: %s\n", err.Error())
			ctx.Status(http.StatusServiceUnavailable)
			return
		}
		whsecret := os.Getenv("STRIPE_WEBHOOK_SECRET")
		event, err := webhook.ConstructEvent(payload, ctx.GetHeader("Stripe-Signature"), whsecret)
		if err != nil {
			log.Printf("Error verifying webhook signature: %s\n", err.Error())
			ctx.Status(http.StatusBadRequest)
			return
		}
		log.Printf("[StripeEvent] %s\n", event.Type)
		switch event.Type {
		case "charge.refunded":
			var ch stripe.Charge
			err := json.Unmarshal(event.Data.Raw, &ch)
			if err != nil {
				log.Printf("[Stripe] Error parsing Charge: %s\n", err.Error())
				break
			}
			ticketId := ch.Metadata["ticket_id"]
			id, err := uuid.Parse(ticketId)
			if err != nil {
				log.Printf("Could not read ticket_id for Charge %s: %s\n", ch.ID, err.Error())
				break
			}
			reference := ch.ID
			if ch.PaymentIntent != nil {
				reference = ch.PaymentIntent.ID
			}
			if err := coordinator.ReconcileRefund(ctx.Request.Context(), id, reference, ch.AmountRefunded); err != nil {
				log.Printf("Error reconciling refund for Ticket [%s]: %s\n", ticketId, err.Error())
			}
		case "payment_intent.succeeded":
			var pi stripe.PaymentIntent
			err := json.Unmarshal(event.Data.Raw, &pi)
			if err != nil {
				log.Printf("[Stripe] Error parsing PaymentIntent: %s\n", err.Error())
				break
			}
			ticketId := pi.Metadata["ticket_id"]
			id, err := uuid.Parse(ticketId)
			if err != nil {
				log.Printf("Could not read ticket_id for PaymentIntent %s: %s\n", pi.ID, err.Error())
				break
			}
			if err := coordinator.ReconcilePayment(ctx.Request.Context(), id, pi.ID); err != nil {
				log.Printf("Error reconciling payment for Ticket [%s]: %s\n", ticketId, err.Error())
			}
		default:
			log.Printf("Unhandled event type: %s\n", event.Type)
		}
		ctx.Status(http.StatusOK)
	})
	return apiv1
}
