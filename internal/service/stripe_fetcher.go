package service

import (
	"context"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// StripeSubscriptionFetcher re-fetches subscriptions through the Stripe API.
type StripeSubscriptionFetcher struct {
	api *client.API
}

// NewStripeSubscriptionFetcher creates a fetcher using a per-instance client rather than
// the package-level stripe.Key.
func NewStripeSubscriptionFetcher(secretKey string) *StripeSubscriptionFetcher {
	return &StripeSubscriptionFetcher{api: client.New(secretKey, nil)}
}

// FetchSubscription returns the current subscription. ctx bounds the whole call,
// including the client's own network retries.
func (f *StripeSubscriptionFetcher) FetchSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	return f.api.Subscriptions.Get(subscriptionID, params)
}
