package lib

import (
	"context"
	"os"

	"github.com/stripe/stripe-go/v82"
)

var stripeClient *stripe.Client

func GetStripeClient() *stripe.Client {
	if stripeClient != nil {
		return stripeClient
	}
	apiKey := os.Getenv("STRIPE_SECRET_KEY")
	sc := stripe.NewClient(apiKey)
	stripeClient = sc

	return sc
}

func NewStripeClient(c *stripe.Client) {
	stripeClient = c
}

// StripeGateway is the payment gateway collaborator used by the lifecycle
// engine for refunds.
type StripeGateway struct{}

// Refund asks Stripe to refund the original payment intent. The caller
// supplies an idempotency key scoped to the ticket so a retried cancel
// after a timeout cannot produce a second refund.
func (StripeGateway) Refund(ctx context.Context, paymentIntentID string, amountCents int64, idempotencyKey string) (string, error) {
	sc := GetStripeClient()
	params := &stripe.RefundCreateParams{
		PaymentIntent: stripe.String(paymentIntentID),
		Amount:        stripe.Int64(amountCents),
	}
	params.SetIdempotencyKey(idempotencyKey)
	refund, err := sc.V1Refunds.Create(ctx, params)
	if err != nil {
		return "", err
	}
	return refund.ID, nil
}
