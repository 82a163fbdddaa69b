package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"shopsync/internal/faults"
	"shopsync/internal/kpi"
	"shopsync/internal/shopify"
	"shopsync/internal/store"
	"shopsync/internal/tenancy"
)

// SyncStore is the slice of the store the bulk sync path needs.
type SyncStore interface {
	GetConnection(ctx context.Context, tenantID, source string) (*store.Connection, error)
	CreateRunningJob(ctx context.Context, tenantID, source string) (string, error)
	FinishJob(ctx context.Context, tenantID, jobID string, status store.JobStatus, errMsg string) error
	RecordFinishedJob(ctx context.Context, tenantID, source string, status store.JobStatus, errMsg string) error
	UpsertOrders(ctx context.Context, rows []store.OrderRow) error
	UpsertShop(ctx context.Context, profile store.ShopProfile) error
	UpsertKPIs(ctx context.Context, rows []store.DailyKPIRow) error
}

// OrderSource is the paginated order-page capability of the external
// platform.
type OrderSource interface {
	FetchOrdersPage(ctx context.Context, shopDomain, accessToken, pageInfo string) ([]shopify.Order, string, error)
	FetchShopProfile(ctx context.Context, shopDomain, accessToken string) (*shopify.Shop, error)
}

type SecretDecrypter interface {
	Decrypt(blob string) (string, error)
}

// AlertPublisher pushes operator notifications for failed syncs.
type AlertPublisher interface {
	Publish(ctx context.Context, subject, message string) error
}

type syncRequest struct {
	TenantID   string `json:"tenantId"`
	ShopDomain string `json:"shopDomain"`
}

// Sync runs one manual full sync: fetch every order page, transform,
// then upsert orders, shop profile and KPIs concurrently.
type Sync struct {
	store      SyncStore
	source     OrderSource
	secrets    SecretDecrypter
	alerts     AlertPublisher // optional
	serviceKey string
	pageSize   int
	maxPages   int
	log        *zap.Logger
}

func NewSync(st SyncStore, source OrderSource, secrets SecretDecrypter, alerts AlertPublisher, serviceKey string, pageSize, maxPages int, log *zap.Logger) *Sync {
	return &Sync{
		store:      st,
		source:     source,
		secrets:    secrets,
		alerts:     alerts,
		serviceKey: serviceKey,
		pageSize:   pageSize,
		maxPages:   maxPages,
		log:        log,
	}
}

func (s *Sync) Handle(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	if req.RequestContext.HTTP.Method != http.MethodPost {
		return errResp(http.StatusMethodNotAllowed, "Method not allowed")
	}

	// Server-to-server trigger: a static bearer secret, not a signature.
	if s.serviceKey == "" || header(req, "authorization") != "Bearer "+s.serviceKey {
		return errResp(http.StatusUnauthorized, "Unauthorized")
	}

	var body syncRequest
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil || body.TenantID == "" || body.ShopDomain == "" {
		return errResp(http.StatusBadRequest, "tenantId and shopDomain required")
	}

	normalized := tenancy.NormalizeShopDomain(body.ShopDomain)

	// Running entry goes in before any external call so a crash mid-sync
	// is still visible as a stuck running row.
	jobID, err := s.store.CreateRunningJob(ctx, body.TenantID, store.SourceShopify)
	if err != nil {
		return s.fail(ctx, body, "", err)
	}

	conn, err := s.store.GetConnection(ctx, body.TenantID, store.SourceShopify)
	if err != nil {
		return s.fail(ctx, body, jobID, err)
	}

	// Guard against a trigger pointing one tenant's sync at another
	// tenant's shop.
	connDomain := tenancy.NormalizeShopDomain(conn.StoreDomain())
	if connDomain != normalized {
		err := fmt.Errorf("%w: shop domain mismatch: requested %s but tenant is connected to %s",
			faults.ErrValidation, normalized, connDomain)
		return s.fail(ctx, body, jobID, err)
	}

	accessToken, err := s.secrets.Decrypt(conn.AccessTokenEnc)
	if err != nil {
		return s.fail(ctx, body, jobID, err)
	}

	orders, err := s.fetchAllOrders(ctx, normalized, accessToken)
	if err != nil {
		return s.fail(ctx, body, jobID, err)
	}

	if len(orders) == 0 {
		if err := s.store.FinishJob(ctx, body.TenantID, jobID, store.JobStatusSucceeded, ""); err != nil {
			return s.fail(ctx, body, jobID, err)
		}
		return jsonResp(http.StatusOK, map[string]any{
			"synced":  0,
			"message": "No orders found",
		})
	}

	rows := shopify.TransformOrders(orders, body.TenantID)
	kpiRows := kpi.AggregateDaily(rows)

	// The three writes have no ordering dependency on each other, only on
	// the transform above; all must land or the sync fails as a whole.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.store.UpsertOrders(gctx, rows) })
	g.Go(func() error { return s.syncShopProfile(gctx, body.TenantID, normalized, accessToken) })
	g.Go(func() error { return s.store.UpsertKPIs(gctx, kpiRows) })
	if err := g.Wait(); err != nil {
		return s.fail(ctx, body, jobID, err)
	}

	if err := s.store.FinishJob(ctx, body.TenantID, jobID, store.JobStatusSucceeded, ""); err != nil {
		return s.fail(ctx, body, jobID, err)
	}

	s.log.Info("manual sync completed",
		zap.String("tenant_id", body.TenantID),
		zap.String("shop", normalized),
		zap.Int("synced", len(rows)))

	return jsonResp(http.StatusOK, map[string]any{
		"synced":  len(rows),
		"message": fmt.Sprintf("Successfully synced %d orders", len(rows)),
	})
}

// fetchAllOrders follows the Link-header cursor until the source reports
// no next page, a short page arrives, or the page ceiling is hit. The
// ceiling is a warning, not a failure: a bounded partial sync beats an
// unbounded loop, and the next run picks up the rest.
func (s *Sync) fetchAllOrders(ctx context.Context, shopDomain, accessToken string) ([]shopify.Order, error) {
	var all []shopify.Order
	pageInfo := ""
	pageCount := 0

	for pageCount < s.maxPages {
		orders, next, err := s.source.FetchOrdersPage(ctx, shopDomain, accessToken, pageInfo)
		if err != nil {
			return nil, err
		}
		all = append(all, orders...)

		if next == "" || len(orders) < s.pageSize {
			return all, nil
		}
		pageInfo = next
		pageCount++
	}

	s.log.Warn("reached pagination limit",
		zap.Int("max_pages", s.maxPages),
		zap.Int("fetched", len(all)),
		zap.String("shop", shopDomain))
	return all, nil
}

func (s *Sync) syncShopProfile(ctx context.Context, tenantID, shopDomain, accessToken string) error {
	shop, err := s.source.FetchShopProfile(ctx, shopDomain, accessToken)
	if err != nil {
		return err
	}
	return s.store.UpsertShop(ctx, store.ShopProfile{
		TenantID:   tenantID,
		ExternalID: shop.ID.String(),
		Domain:     shop.Domain,
		Name:       shop.Name,
		Currency:   shop.Currency,
	})
}

func (s *Sync) fail(ctx context.Context, body syncRequest, jobID string, cause error) (events.APIGatewayV2HTTPResponse, error) {
	s.log.Error("manual sync failed",
		zap.String("tenant_id", body.TenantID),
		zap.String("shop", body.ShopDomain),
		zap.Error(cause))

	var logErr error
	if jobID != "" {
		logErr = s.store.FinishJob(ctx, body.TenantID, jobID, store.JobStatusFailed, cause.Error())
	} else {
		logErr = s.store.RecordFinishedJob(ctx, body.TenantID, store.SourceShopify, store.JobStatusFailed, cause.Error())
	}
	if logErr != nil {
		s.log.Error("unable to record sync failure", zap.Error(logErr))
	}

	if s.alerts != nil {
		msg := fmt.Sprintf("Shopify sync failed for tenant %s (%s): %s", body.TenantID, body.ShopDomain, cause.Error())
		if err := s.alerts.Publish(ctx, "Shopify sync failed", msg); err != nil {
			s.log.Error("unable to publish sync alert", zap.Error(err))
		}
	}

	return jsonResp(http.StatusInternalServerError, map[string]any{
		"message": "Sync failed",
		"error":   cause.Error(),
	})
}
