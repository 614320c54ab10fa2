package services

import (
	"fmt"
	"os"

	stripe "github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/checkout/session"

	"github.com/AfyaLink/afyachat-backend/internal/models"
)

// StripeCheckoutService is the hosted-checkout PaymentInitiator variant.
// Instead of pushing a prompt to the device it returns a payment link that
// the caller includes in the outbound message; confirmation still arrives
// out-of-band on the Stripe webhook.
type StripeCheckoutService struct {
	currency   string
	successURL string
	cancelURL  string
}

// NewStripeCheckoutService configures the Stripe client from the environment.
func NewStripeCheckoutService() (*StripeCheckoutService, error) {
	key := os.Getenv("STRIPE_SECRET_KEY")
	if key == "" {
		return nil, fmt.Errorf("missing STRIPE_SECRET_KEY in environment variables")
	}
	stripe.Key = key

	currency := os.Getenv("STRIPE_CURRENCY")
	if currency == "" {
		currency = "kes"
	}
	successURL := os.Getenv("STRIPE_SUCCESS_URL")
	if successURL == "" {
		successURL = "https://afyachat.example.com/payment/success"
	}
	cancelURL := os.Getenv("STRIPE_CANCEL_URL")
	if cancelURL == "" {
		cancelURL = "https://afyachat.example.com/payment/cancelled"
	}

	return &StripeCheckoutService{
		currency:   currency,
		successURL: successURL,
		cancelURL:  cancelURL,
	}, nil
}

// Channel implements PaymentInitiator.
func (s *StripeCheckoutService) Channel() string {
	return models.PaymentChannelStripe
}

// EligiblePhone implements PaymentInitiator. Hosted checkout has no
// country restriction; any normalized number can receive the link.
func (s *StripeCheckoutService) EligiblePhone(phone string) bool {
	return phone != ""
}

// IneligibleNotice implements PaymentInitiator.
func (s *StripeCheckoutService) IneligibleNotice() string {
	return "Sorry, we couldn't verify your phone number for checkout. " +
		"Please try again from a registered WhatsApp number."
}

// Initiate implements PaymentInitiator by creating a checkout session. The
// merchant reference rides in the session metadata so the webhook can be
// correlated back to the pending payment.
func (s *StripeCheckoutService) Initiate(phone string, amount int64, reference string) (*PaymentRequest, error) {
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(s.currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String("Appointment booking"),
					},
					UnitAmount: stripe.Int64(amount),
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(s.successURL),
		CancelURL:  stripe.String(s.cancelURL),
	}
	params.AddMetadata("reference", reference)
	params.AddMetadata("phone", phone)

	sess, err := session.New(params)
	if err != nil {
		return nil, &PaymentError{Kind: PaymentErrProviderRejected, Err: err}
	}

	return &PaymentRequest{
		Reference:         reference,
		CheckoutRequestID: sess.ID,
		CheckoutURL:       sess.URL,
		PromptSent:        false,
	}, nil
}
