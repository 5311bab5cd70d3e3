package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/jmylchreest/herbscan-api/internal/entitlement"
	"github.com/jmylchreest/herbscan-api/internal/ledger"
	"github.com/jmylchreest/herbscan-api/internal/metrics"
	"github.com/jmylchreest/herbscan-api/internal/models"
	"github.com/jmylchreest/herbscan-api/internal/repository"
)

// Reconciler errors. Anything else returned from Reconcile is an internal failure the
// provider should retry.
var (
	// ErrAuthentication means the event could not be verified as coming from Stripe.
	ErrAuthentication = errors.New("webhook authentication failed")
	// ErrMalformedPayload means the event verified but its envelope or data object could not be decoded.
	ErrMalformedPayload = errors.New("malformed webhook payload")
)

// Action describes what a reconciled event did to entitlement state.
type Action string

const (
	ActionGranted Action = "granted" // checkout completed, user is pro
	ActionUpdated Action = "updated" // subscription state copied onto the entitlement
	ActionRevoked Action = "revoked" // subscription deleted
	ActionIgnored Action = "ignored" // event type carries no entitlement change
	ActionDropped Action = "dropped" // relevant event that could not be correlated
)

// Stripe event types the reconciler acts on.
const (
	EventCheckoutCompleted       = "checkout.session.completed"
	EventSubscriptionCreated     = "customer.subscription.created"
	EventSubscriptionUpdated     = "customer.subscription.updated"
	EventSubscriptionDeleted     = "customer.subscription.deleted"
	EventInvoicePaymentSucceeded = "invoice.payment_succeeded"
	EventInvoicePaymentFailed    = "invoice.payment_failed"
)

// Outcome summarises one reconciled event.
type Outcome struct {
	EventID     string
	EventType   string
	Action      Action
	UserID      string // empty when the event could not be correlated
	Redelivered bool   // the ledger had already recorded this event ID
	Reason      string // set for dropped events
}

// SubscriptionFetcher retrieves the current state of a subscription from the billing provider.
type SubscriptionFetcher interface {
	FetchSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error)
}

// ReconcilerConfig configures a Reconciler.
type ReconcilerConfig struct {
	WebhookSecret string
	FetchTimeout  time.Duration       // bound on the subscription re-fetch, default 5s
	Fetcher       SubscriptionFetcher // nil when no Stripe secret key is configured
	Ledger        ledger.Ledger       // nil disables the audit ledger
}

// Reconciler applies verified Stripe events to the entitlement store and profile mirror.
// It is safe for concurrent use; correctness under redelivery and reordering comes from
// absolute-value writes, not from locking or event-id dedup.
type Reconciler struct {
	secret       string
	entitlements repository.EntitlementRepository
	profiles     repository.ProfileRepository
	fetcher      SubscriptionFetcher
	ledger       ledger.Ledger
	fetchTimeout time.Duration
	now          func() time.Time
	logger       *slog.Logger
}

// NewReconciler creates a new event reconciler.
func NewReconciler(repos *repository.Repositories, cfg ReconcilerConfig, logger *slog.Logger) *Reconciler {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 5 * time.Second
	}
	if cfg.Ledger == nil {
		cfg.Ledger = ledger.Nop{}
	}
	return &Reconciler{
		secret:       cfg.WebhookSecret,
		entitlements: repos.Entitlement,
		profiles:     repos.Profile,
		fetcher:      cfg.Fetcher,
		ledger:       cfg.Ledger,
		fetchTimeout: cfg.FetchTimeout,
		now:          time.Now,
		logger:       logger.With("component", "reconciler"),
	}
}

// Reconcile verifies and applies one webhook delivery. payload must be the unparsed body.
//
// Returns ErrAuthentication or ErrMalformedPayload (wrapped) for client errors; any other
// error is internal. A nil error means the event was handled, including logical no-ops.
func (r *Reconciler) Reconcile(ctx context.Context, payload []byte, sigHeader string) (*Outcome, error) {
	event, err := r.verify(payload, sigHeader)
	if err != nil {
		return nil, err
	}

	out := &Outcome{EventID: event.ID, EventType: string(event.Type)}
	log := r.logger.With("event_id", event.ID, "type", out.EventType)

	if seen, err := r.ledger.Seen(ctx, event.ID); err != nil {
		log.Warn("event ledger lookup failed", "error", err)
	} else if seen {
		out.Redelivered = true
		metrics.RedeliveriesTotal.Inc()
		log.Info("processing redelivered event", "redelivered", true)
	}

	if err := r.dispatch(ctx, &event, out, log); err != nil {
		return out, err
	}

	if err := r.ledger.Record(ctx, event.ID, out.EventType); err != nil {
		log.Warn("failed to record event in ledger", "error", err)
	}
	metrics.EntitlementTransitionsTotal.WithLabelValues(string(out.Action)).Inc()

	return out, nil
}

func (r *Reconciler) verify(payload []byte, sigHeader string) (stripe.Event, error) {
	if strings.TrimSpace(r.secret) == "" {
		return stripe.Event{}, fmt.Errorf("%w: webhook secret not configured", ErrAuthentication)
	}
	if strings.TrimSpace(sigHeader) == "" {
		return stripe.Event{}, fmt.Errorf("%w: missing Stripe-Signature header", ErrAuthentication)
	}

	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, r.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		switch {
		case errors.Is(err, webhook.ErrNotSigned),
			errors.Is(err, webhook.ErrInvalidHeader),
			errors.Is(err, webhook.ErrNoValidSignature),
			errors.Is(err, webhook.ErrTooOld):
			return stripe.Event{}, fmt.Errorf("%w: %v", ErrAuthentication, err)
		default:
			// Signature checked out; the envelope itself did not decode.
			return stripe.Event{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
	}
	return event, nil
}

func (r *Reconciler) dispatch(ctx context.Context, event *stripe.Event, out *Outcome, log *slog.Logger) error {
	switch out.EventType {
	case EventCheckoutCompleted:
		var session stripe.CheckoutSession
		if err := decode(event, &session); err != nil {
			return err
		}
		return r.handleCheckoutCompleted(ctx, &session, out, log)

	case EventSubscriptionCreated, EventSubscriptionUpdated:
		var sub stripe.Subscription
		if err := decode(event, &sub); err != nil {
			return err
		}
		return r.applySubscription(ctx, &sub, entitlement.KindSubscriptionUpdated, out, log)

	case EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := decode(event, &sub); err != nil {
			return err
		}
		return r.applySubscription(ctx, &sub, entitlement.KindSubscriptionDeleted, out, log)

	case EventInvoicePaymentSucceeded:
		var invoice stripe.Invoice
		if err := decode(event, &invoice); err != nil {
			return err
		}
		return r.handleInvoicePaid(ctx, &invoice, out, log)

	case EventInvoicePaymentFailed:
		var invoice stripe.Invoice
		if err := decode(event, &invoice); err != nil {
			return err
		}
		// Dunning is left to subscription status changes.
		log.Warn("invoice payment failed",
			"invoice_id", invoice.ID,
			"customer_id", customerID(invoice.Customer),
			"attempt_count", invoice.AttemptCount,
		)
		out.Action = ActionIgnored
		return nil

	default:
		log.Debug("unhandled webhook event type")
		out.Action = ActionIgnored
		return nil
	}
}

func decode(event *stripe.Event, v any) error {
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return fmt.Errorf("%w: event has no data object", ErrMalformedPayload)
	}
	if err := json.Unmarshal(event.Data.Raw, v); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrMalformedPayload, event.Type, err)
	}
	return nil
}

// handleCheckoutCompleted grants pro to the user named in the session metadata.
func (r *Reconciler) handleCheckoutCompleted(ctx context.Context, session *stripe.CheckoutSession, out *Outcome, log *slog.Logger) error {
	userID := strings.TrimSpace(session.Metadata["user_id"])
	if userID == "" {
		log.Warn("checkout session missing user_id metadata", "session_id", session.ID)
		out.Action = ActionDropped
		out.Reason = "missing user_id metadata"
		return nil
	}
	out.UserID = userID

	current, err := r.entitlements.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load entitlement: %w", err)
	}

	now := r.now().UTC()
	next, err := entitlement.Apply(current, entitlement.Transition{
		Kind:           entitlement.KindCheckoutCompleted,
		UserID:         userID,
		CustomerID:     customerID(session.Customer),
		SubscriptionID: subscriptionID(session.Subscription),
	}, now)
	if err != nil {
		return fmt.Errorf("failed to apply checkout: %w", err)
	}

	if err := r.entitlements.UpsertByUser(ctx, &next); err != nil {
		return fmt.Errorf("failed to upsert entitlement: %w", err)
	}

	log.Info("entitlement granted",
		"user_id", userID,
		"customer_id", next.CustomerID(),
		"subscription_id", next.SubscriptionID(),
	)
	out.Action = ActionGranted

	r.mirrorPlan(ctx, &next, now, log)
	return nil
}

// handleInvoicePaid re-fetches the invoice's subscription so the stored period end tracks
// the renewal, then applies it as a subscription update.
func (r *Reconciler) handleInvoicePaid(ctx context.Context, invoice *stripe.Invoice, out *Outcome, log *slog.Logger) error {
	subID := subscriptionID(invoice.Subscription)
	if subID == "" {
		log.Debug("invoice has no subscription", "invoice_id", invoice.ID)
		out.Action = ActionIgnored
		return nil
	}
	if r.fetcher == nil {
		return fmt.Errorf("cannot re-fetch subscription %s: stripe client not configured", subID)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
	defer cancel()

	sub, err := r.fetcher.FetchSubscription(fetchCtx, subID)
	if err != nil {
		return fmt.Errorf("failed to re-fetch subscription %s: %w", subID, err)
	}
	if sub.Customer == nil && invoice.Customer != nil {
		sub.Customer = invoice.Customer
	}

	return r.applySubscription(ctx, sub, entitlement.KindSubscriptionUpdated, out, log)
}

// applySubscription correlates a subscription to its entitlement by billing customer and
// writes the resulting snapshot.
func (r *Reconciler) applySubscription(ctx context.Context, sub *stripe.Subscription, kind entitlement.Kind, out *Outcome, log *slog.Logger) error {
	custID := customerID(sub.Customer)
	log = log.With("customer_id", custID, "subscription_id", sub.ID)
	if custID == "" {
		log.Warn("subscription event missing customer")
		out.Action = ActionDropped
		out.Reason = "missing customer"
		return nil
	}

	current, err := r.entitlements.FindByBillingCustomer(ctx, custID)
	if err != nil {
		return fmt.Errorf("failed to find entitlement by customer: %w", err)
	}
	if current == nil {
		// Usually a subscription event that outran checkout.session.completed. Stripe
		// redelivers only on failure, so the following checkout plus any later
		// subscription event will converge the row.
		log.Warn("no entitlement for billing customer")
		out.Action = ActionDropped
		out.Reason = "unknown billing customer"
		return nil
	}
	out.UserID = current.UserID

	t := entitlement.Transition{
		Kind:           kind,
		CustomerID:     custID,
		SubscriptionID: sub.ID,
		Status:         string(sub.Status),
	}
	if sub.CurrentPeriodEnd > 0 {
		end := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		t.PeriodEnd = &end
	}

	now := r.now().UTC()
	next, err := entitlement.Apply(current, t, now)
	if err != nil {
		return fmt.Errorf("failed to apply %s: %w", kind, err)
	}

	ok, err := r.entitlements.UpdateByUser(ctx, &next)
	if err != nil {
		return fmt.Errorf("failed to update entitlement: %w", err)
	}
	if !ok {
		log.Warn("entitlement disappeared before update", "user_id", current.UserID)
		out.Action = ActionDropped
		out.Reason = "entitlement disappeared"
		return nil
	}

	if kind == entitlement.KindSubscriptionDeleted {
		out.Action = ActionRevoked
	} else {
		out.Action = ActionUpdated
	}
	log.Info("entitlement reconciled",
		"user_id", next.UserID,
		"action", out.Action,
		"status", t.Status,
		"is_pro", next.IsPro,
		"period_end", next.PeriodEnd,
	)

	r.mirrorPlan(ctx, &next, now, log)
	return nil
}

// mirrorPlan writes the denormalized profile plan. Failures are logged and left for the
// next reconciliation or the profile sync sweep.
func (r *Reconciler) mirrorPlan(ctx context.Context, e *models.Entitlement, now time.Time, log *slog.Logger) {
	plan := entitlement.PlanFor(e, now)
	if err := r.profiles.SetPlan(ctx, e.UserID, plan); err != nil {
		log.Error("failed to mirror profile plan", "user_id", e.UserID, "plan", plan, "error", err)
	}
}

func customerID(c *stripe.Customer) string {
	if c == nil {
		return ""
	}
	return c.ID
}

func subscriptionID(s *stripe.Subscription) string {
	if s == nil {
		return ""
	}
	return s.ID
}
