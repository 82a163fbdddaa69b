package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"shopsync/internal/shopify"
	"shopsync/internal/store"
)

const testServiceKey = "service-key"

type finishedJob struct {
	jobID  string
	status store.JobStatus
	errMsg string
}

type fakeSyncStore struct {
	conn          *store.Connection
	connErr       error
	createJobErr  error
	createdJobs   int
	finished      []finishedJob
	fallbackJobs  []recordedJob
	upsertedRows  []store.OrderRow
	upsertedShops []store.ShopProfile
	upsertedKpis  []store.DailyKPIRow
}

func (f *fakeSyncStore) GetConnection(ctx context.Context, tenantID, source string) (*store.Connection, error) {
	if f.connErr != nil {
		return nil, f.connErr
	}
	return f.conn, nil
}

func (f *fakeSyncStore) CreateRunningJob(ctx context.Context, tenantID, source string) (string, error) {
	if f.createJobErr != nil {
		return "", f.createJobErr
	}
	f.createdJobs++
	return fmt.Sprintf("JOB#%d", f.createdJobs), nil
}

func (f *fakeSyncStore) FinishJob(ctx context.Context, tenantID, jobID string, status store.JobStatus, errMsg string) error {
	f.finished = append(f.finished, finishedJob{jobID, status, errMsg})
	return nil
}

func (f *fakeSyncStore) RecordFinishedJob(ctx context.Context, tenantID, source string, status store.JobStatus, errMsg string) error {
	f.fallbackJobs = append(f.fallbackJobs, recordedJob{tenantID, source, status, errMsg})
	return nil
}

func (f *fakeSyncStore) UpsertOrders(ctx context.Context, rows []store.OrderRow) error {
	f.upsertedRows = append(f.upsertedRows, rows...)
	return nil
}

func (f *fakeSyncStore) UpsertShop(ctx context.Context, profile store.ShopProfile) error {
	f.upsertedShops = append(f.upsertedShops, profile)
	return nil
}

func (f *fakeSyncStore) UpsertKPIs(ctx context.Context, rows []store.DailyKPIRow) error {
	f.upsertedKpis = append(f.upsertedKpis, rows...)
	return nil
}

type fakeOrderSource struct {
	pages   [][]shopify.Order
	fetched int
}

func (f *fakeOrderSource) FetchOrdersPage(ctx context.Context, shopDomain, accessToken, pageInfo string) ([]shopify.Order, string, error) {
	if f.fetched >= len(f.pages) {
		return nil, "", nil
	}
	page := f.pages[f.fetched]
	f.fetched++
	next := ""
	if f.fetched < len(f.pages) {
		next = fmt.Sprintf("cursor-%d", f.fetched)
	}
	return page, next, nil
}

func (f *fakeOrderSource) FetchShopProfile(ctx context.Context, shopDomain, accessToken string) (*shopify.Shop, error) {
	return &shopify.Shop{
		ID:       json.Number("777"),
		Domain:   shopDomain,
		Name:     "Acme",
		Currency: "USD",
	}, nil
}

type plainDecrypter struct{}

func (plainDecrypter) Decrypt(blob string) (string, error) { return "token-" + blob, nil }

type capturingAlerts struct {
	published []string
}

func (a *capturingAlerts) Publish(ctx context.Context, subject, message string) error {
	a.published = append(a.published, message)
	return nil
}

func connectedConn(tenantID, domain string) *store.Connection {
	return &store.Connection{
		TenantID:       tenantID,
		Source:         store.SourceShopify,
		Status:         store.ConnectionStatusConnected,
		AccessTokenEnc: "blob",
		Meta:           map[string]string{"store_domain": domain},
	}
}

func syncRequestEvent(tenantID, shopDomain, bearer string) events.APIGatewayV2HTTPRequest {
	body, _ := json.Marshal(map[string]string{
		"tenantId":   tenantID,
		"shopDomain": shopDomain,
	})
	req := events.APIGatewayV2HTTPRequest{
		Body: string(body),
		Headers: map[string]string{
			"authorization": "Bearer " + bearer,
		},
	}
	req.RequestContext.HTTP.Method = "POST"
	return req
}

func fullPage(n, startID int) []shopify.Order {
	page := make([]shopify.Order, n)
	for i := range page {
		page[i] = shopify.Order{
			ID:          json.Number(fmt.Sprintf("%d", startID+i)),
			ProcessedAt: "2024-01-01T10:00:00Z",
			TotalPrice:  "10.00",
		}
	}
	return page
}

func newTestSync(st *fakeSyncStore, src *fakeOrderSource, alerts AlertPublisher, pageSize, maxPages int) *Sync {
	return NewSync(st, src, plainDecrypter{}, alerts, testServiceKey, pageSize, maxPages, zap.NewNop())
}

func TestSyncRejectsNonPost(t *testing.T) {
	h := newTestSync(&fakeSyncStore{}, &fakeOrderSource{}, nil, 250, 50)

	req := syncRequestEvent("t1", "acme.myshopify.com", testServiceKey)
	req.RequestContext.HTTP.Method = "GET"

	res, err := h.Handle(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 405, res.StatusCode)
}

func TestSyncRejectsBadBearer(t *testing.T) {
	st := &fakeSyncStore{}
	h := newTestSync(st, &fakeOrderSource{}, nil, 250, 50)

	res, err := h.Handle(context.Background(), syncRequestEvent("t1", "acme.myshopify.com", "wrong"))
	require.NoError(t, err)
	assert.Equal(t, 401, res.StatusCode)
	assert.Zero(t, st.createdJobs)
}

func TestSyncRejectsMissingFields(t *testing.T) {
	h := newTestSync(&fakeSyncStore{}, &fakeOrderSource{}, nil, 250, 50)

	req := syncRequestEvent("", "acme.myshopify.com", testServiceKey)
	res, err := h.Handle(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 400, res.StatusCode)
}

func TestSyncHappyPath(t *testing.T) {
	st := &fakeSyncStore{conn: connectedConn("t1", "acme.myshopify.com")}
	src := &fakeOrderSource{pages: [][]shopify.Order{
		fullPage(2, 1),
		{{ID: json.Number("3"), ProcessedAt: "2024-01-02T10:00:00Z", TotalPrice: "30.00"}},
	}}
	h := newTestSync(st, src, nil, 2, 50)

	res, err := h.Handle(context.Background(), syncRequestEvent("t1", "https://ACME.myshopify.com/", testServiceKey))
	require.NoError(t, err)
	assert.Equal(t, 200, res.StatusCode)
	assert.Contains(t, res.Body, `"synced":3`)
	assert.Contains(t, res.Body, "Successfully synced 3 orders")

	assert.Len(t, st.upsertedRows, 3)
	assert.Len(t, st.upsertedKpis, 2)

	require.Len(t, st.upsertedShops, 1)
	assert.Equal(t, "777", st.upsertedShops[0].ExternalID)
	assert.Equal(t, "t1", st.upsertedShops[0].TenantID)

	require.Len(t, st.finished, 1)
	assert.Equal(t, store.JobStatusSucceeded, st.finished[0].status)
}

func TestSyncZeroOrders(t *testing.T) {
	st := &fakeSyncStore{conn: connectedConn("t1", "acme.myshopify.com")}
	h := newTestSync(st, &fakeOrderSource{}, nil, 250, 50)

	res, err := h.Handle(context.Background(), syncRequestEvent("t1", "acme.myshopify.com", testServiceKey))
	require.NoError(t, err)

	assert.Equal(t, 200, res.StatusCode)
	assert.Contains(t, res.Body, "No orders found")
	assert.Empty(t, st.upsertedRows)
	assert.Empty(t, st.upsertedShops)

	require.Len(t, st.finished, 1)
	assert.Equal(t, store.JobStatusSucceeded, st.finished[0].status)
}

func TestSyncDomainMismatchFailsJob(t *testing.T) {
	st := &fakeSyncStore{conn: connectedConn("t1", "acme.myshopify.com")}
	h := newTestSync(st, &fakeOrderSource{}, nil, 250, 50)

	res, err := h.Handle(context.Background(), syncRequestEvent("t1", "other.myshopify.com", testServiceKey))
	require.NoError(t, err)

	assert.Equal(t, 500, res.StatusCode)
	assert.Contains(t, res.Body, "Sync failed")

	require.Len(t, st.finished, 1)
	assert.Equal(t, store.JobStatusFailed, st.finished[0].status)
	assert.Contains(t, st.finished[0].errMsg, "mismatch")
	assert.Empty(t, st.upsertedRows)
}

func TestSyncPaginationCeiling(t *testing.T) {
	maxPages := 3
	pageSize := 2

	// Every page is full and advertises a next cursor, so only the
	// ceiling stops the loop.
	pages := make([][]shopify.Order, 10)
	for i := range pages {
		pages[i] = fullPage(pageSize, i*pageSize+1)
	}

	st := &fakeSyncStore{conn: connectedConn("t1", "acme.myshopify.com")}
	src := &fakeOrderSource{pages: pages}
	h := newTestSync(st, src, nil, pageSize, maxPages)

	res, err := h.Handle(context.Background(), syncRequestEvent("t1", "acme.myshopify.com", testServiceKey))
	require.NoError(t, err)

	assert.Equal(t, 200, res.StatusCode)
	assert.Equal(t, maxPages, src.fetched)
	assert.Len(t, st.upsertedRows, maxPages*pageSize)
}

func TestSyncCreateJobFailureUsesFallbackLog(t *testing.T) {
	st := &fakeSyncStore{
		conn:         connectedConn("t1", "acme.myshopify.com"),
		createJobErr: fmt.Errorf("jobs table down"),
	}
	alerts := &capturingAlerts{}
	h := newTestSync(st, &fakeOrderSource{}, alerts, 250, 50)

	res, err := h.Handle(context.Background(), syncRequestEvent("t1", "acme.myshopify.com", testServiceKey))
	require.NoError(t, err)
	assert.Equal(t, 500, res.StatusCode)

	assert.Empty(t, st.finished)
	require.Len(t, st.fallbackJobs, 1)
	assert.Equal(t, store.JobStatusFailed, st.fallbackJobs[0].status)

	require.Len(t, alerts.published, 1)
	assert.Contains(t, alerts.published[0], "t1")
}

func TestSyncConnectionFailureFailsJob(t *testing.T) {
	st := &fakeSyncStore{connErr: fmt.Errorf("no connection")}
	h := newTestSync(st, &fakeOrderSource{}, nil, 250, 50)

	res, err := h.Handle(context.Background(), syncRequestEvent("t1", "acme.myshopify.com", testServiceKey))
	require.NoError(t, err)
	assert.Equal(t, 500, res.StatusCode)

	require.Len(t, st.finished, 1)
	assert.Equal(t, "JOB#1", st.finished[0].jobID)
	assert.Equal(t, store.JobStatusFailed, st.finished[0].status)
}
