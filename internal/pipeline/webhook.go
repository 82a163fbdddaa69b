// Package pipeline holds the two order ingestion paths: the signed
// webhook listener and the authenticated bulk sync.
package pipeline

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"shopsync/internal/kpi"
	"shopsync/internal/shopify"
	"shopsync/internal/store"
)

const (
	topicOrderCreated = "orders/create"
	topicOrderUpdated = "orders/updated"
)

// WebhookStore is the slice of the store the webhook path needs.
type WebhookStore interface {
	UpsertOrder(ctx context.Context, row store.OrderRow) error
	OrdersForDate(ctx context.Context, tenantID, date string) ([]store.OrderRow, error)
	UpsertKPIs(ctx context.Context, rows []store.DailyKPIRow) error
	DeleteKPI(ctx context.Context, tenantID, date, source string) error
	RecordFinishedJob(ctx context.Context, tenantID, source string, status store.JobStatus, errMsg string) error
}

type TenantResolver interface {
	ResolveTenant(ctx context.Context, shopDomain string) (string, error)
}

// Webhook handles one inbound order event: authenticate, resolve tenant,
// transform, persist, recompute the affected date's KPIs, log the outcome.
type Webhook struct {
	store   WebhookStore
	tenants TenantResolver
	secret  string
	log     *zap.Logger
}

func NewWebhook(st WebhookStore, tenants TenantResolver, webhookSecret string, log *zap.Logger) *Webhook {
	return &Webhook{
		store:   st,
		tenants: tenants,
		secret:  webhookSecret,
		log:     log,
	}
}

func (w *Webhook) Handle(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	if req.RequestContext.HTTP.Method != http.MethodPost {
		return errResp(http.StatusMethodNotAllowed, "Method not allowed")
	}

	body, err := rawBody(req)
	if err != nil {
		return errResp(http.StatusBadRequest, "Invalid request body encoding")
	}

	signature := header(req, "x-shopify-hmac-sha256")
	shopDomain := header(req, "x-shopify-shop-domain")
	topic := header(req, "x-shopify-topic")

	// Signature first, before any tenant lookup: an unauthenticated caller
	// must not learn whether a shop domain is connected.
	if !shopify.VerifySignature(body, signature, w.secret) {
		w.log.Error("webhook signature verification failed",
			zap.String("shop", shopDomain),
			zap.String("topic", topic),
			zap.Bool("has_signature", signature != ""))
		return errResp(http.StatusUnauthorized, "Invalid signature")
	}

	if shopDomain == "" {
		return errResp(http.StatusBadRequest, "Missing shop header")
	}
	if topic == "" {
		return errResp(http.StatusBadRequest, "Missing topic header")
	}

	// Acknowledge unhandled topics so the sender does not retry them.
	if topic != topicOrderCreated && topic != topicOrderUpdated {
		w.log.Warn("unhandled webhook topic", zap.String("topic", topic))
		return errResp(http.StatusOK, "Topic not handled")
	}

	tenantID, err := w.tenants.ResolveTenant(ctx, shopDomain)
	if err != nil {
		// No tenant context yet, so nothing to attach a job log entry to.
		w.log.Error("webhook tenant resolution failed",
			zap.String("shop", shopDomain),
			zap.String("topic", topic),
			zap.Error(err))
		return w.failResp(err)
	}

	var order shopify.Order
	if err := json.Unmarshal(body, &order); err != nil {
		return w.fail(ctx, tenantID, shopDomain, topic, err)
	}

	row := shopify.TransformOrder(order, tenantID)

	if err := w.store.UpsertOrder(ctx, row); err != nil {
		return w.fail(ctx, tenantID, shopDomain, topic, err)
	}

	if err := w.recalcKpis(ctx, tenantID, row.ProcessedAt); err != nil {
		return w.fail(ctx, tenantID, shopDomain, topic, err)
	}

	w.log.Info("webhook processed",
		zap.String("topic", topic),
		zap.String("order_id", row.OrderID),
		zap.String("tenant_id", tenantID))

	if err := w.store.RecordFinishedJob(ctx, tenantID, store.SourceShopifyWebhook, store.JobStatusSucceeded, ""); err != nil {
		// Best effort: the order is persisted, don't turn a log miss into
		// a retry storm.
		w.log.Error("unable to record webhook success", zap.Error(err))
	}

	return jsonResp(http.StatusOK, map[string]any{
		"success": true,
		"topic":   topic,
		"orderId": row.OrderID,
	})
}

// recalcKpis replaces the KPI row for the affected date from the full
// stored order set for that tenant and date. Recomputing from everything
// stored (not just the incoming order) is what keeps duplicate and
// out-of-order deliveries convergent. A date with no orders left gets its
// KPI row deleted instead of left stale.
func (w *Webhook) recalcKpis(ctx context.Context, tenantID, date string) error {
	if date == "" {
		return nil
	}

	rows, err := w.store.OrdersForDate(ctx, tenantID, date)
	if err != nil {
		return err
	}

	if len(rows) == 0 {
		if err := w.store.DeleteKPI(ctx, tenantID, date, store.SourceShopify); err != nil {
			w.log.Warn("failed to delete empty kpi entry",
				zap.String("tenant_id", tenantID),
				zap.String("date", date),
				zap.Error(err))
		}
		return nil
	}

	return w.store.UpsertKPIs(ctx, kpi.AggregateDaily(rows))
}

// fail logs the error against the tenant and answers 500 so the sender
// redelivers; the pipeline is idempotent so the retry is safe.
func (w *Webhook) fail(ctx context.Context, tenantID, shopDomain, topic string, cause error) (events.APIGatewayV2HTTPResponse, error) {
	w.log.Error("webhook handling failed",
		zap.String("shop", shopDomain),
		zap.String("topic", topic),
		zap.String("tenant_id", tenantID),
		zap.Error(cause))

	if err := w.store.RecordFinishedJob(ctx, tenantID, store.SourceShopifyWebhook, store.JobStatusFailed, cause.Error()); err != nil {
		w.log.Error("unable to record webhook failure", zap.Error(err))
	}
	return w.failResp(cause)
}

// Processing failures all map to 500, tenant resolution included: Shopify
// retries on 500 and a shop that connects later will then route correctly.
func (w *Webhook) failResp(cause error) (events.APIGatewayV2HTTPResponse, error) {
	return jsonResp(http.StatusInternalServerError, map[string]any{
		"message": "Webhook processing failed",
		"error":   cause.Error(),
	})
}
