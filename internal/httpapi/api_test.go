package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/fanstage/backoffice/internal/ads"
	"github.com/fanstage/backoffice/internal/agency"
	"github.com/fanstage/backoffice/internal/audit"
	"github.com/fanstage/backoffice/internal/auth"
	"github.com/fanstage/backoffice/internal/content"
	"github.com/fanstage/backoffice/internal/payment"
	"github.com/fanstage/backoffice/internal/ratelimit"
	"github.com/fanstage/backoffice/internal/rbac"
)

const (
	opsAdminID     = "11111111-1111-4111-8111-111111111111"
	opsOperatorID  = "22222222-2222-4222-8222-222222222222"
	opsPublisherID = "33333333-3333-4333-8333-333333333333"
	opsViewerID    = "44444444-4444-4444-8444-444444444444"
	agencyMgrID    = "55555555-5555-4555-8555-555555555555"
	agencyFinID    = "66666666-6666-4666-8666-666666666666"
	buyerUserID    = "77777777-7777-4777-8777-777777777777"

	testAgencyID = "aaaaaaaa-aaaa-4aaa-8aaa-aaaaaaaaaaaa"
	testOrigin   = "https://app.example.com"
	testSecret   = "whsec_test"
)

type fakeProvider struct {
	createStatus  string
	confirmStatus string
	lookupStatus  string
	fail          bool
}

func (f *fakeProvider) CreatePayment(_ context.Context, p payment.CreatePaymentParams) (payment.ProviderPayment, error) {
	if f.fail {
		return payment.ProviderPayment{}, fmt.Errorf("gateway down")
	}
	status := f.createStatus
	if status == "" {
		status = payment.ProviderStatusReady
	}
	return payment.ProviderPayment{
		PaymentKey:  "pk_" + p.OrderID,
		OrderID:     p.OrderID,
		Status:      status,
		TotalAmount: p.Amount,
		CheckoutURL: "https://pay.example.com/" + p.OrderID,
	}, nil
}

func (f *fakeProvider) ConfirmPayment(_ context.Context, paymentKey, orderID string, amount int64, _ payment.IdempotencyKey) (payment.ProviderPayment, error) {
	if f.fail {
		return payment.ProviderPayment{}, fmt.Errorf("gateway down")
	}
	status := f.confirmStatus
	if status == "" {
		status = payment.ProviderStatusDone
	}
	return payment.ProviderPayment{
		PaymentKey:  paymentKey,
		OrderID:     orderID,
		Status:      status,
		TotalAmount: amount,
	}, nil
}

func (f *fakeProvider) GetPaymentByOrder(_ context.Context, orderID string) (payment.ProviderPayment, error) {
	if f.fail {
		return payment.ProviderPayment{}, fmt.Errorf("gateway down")
	}
	status := f.lookupStatus
	if status == "" {
		status = payment.ProviderStatusDone
	}
	return payment.ProviderPayment{
		PaymentKey: "pk_" + orderID,
		OrderID:    orderID,
		Status:     status,
	}, nil
}

type testAPI struct {
	baseURL  string
	client   *http.Client
	t        *testing.T
	audit    *audit.InMemory
	ads      *ads.InMemory
	store    *payment.InMemoryStore
	provider *fakeProvider
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	t.Setenv("BACKOFFICE_AUTH_SECRET", "test-secret")
	auth.ResetSecretForTests()

	rec := audit.NewInMemory()
	contentSvc := content.NewInMemory(rec)
	adsSvc := ads.NewInMemory(contentSvc, rec)
	agencySvc := agency.NewInMemory(rec)

	opsRoster := rbac.NewInMemoryRoster()
	agencyRoster := rbac.NewInMemoryRoster()
	now := time.Now().UTC()
	seed := func(roster *rbac.InMemoryRoster, userID, role, orgID string) {
		if err := roster.Upsert(context.Background(), rbac.Member{
			UserID: userID, Role: role, OrgID: orgID,
			InvitedAt: now, AcceptedAt: now,
		}); err != nil {
			t.Fatalf("seed roster: %v", err)
		}
	}
	seed(opsRoster, opsAdminID, "admin", "")
	seed(opsRoster, opsOperatorID, "operator", "")
	seed(opsRoster, opsPublisherID, "publisher", "")
	seed(opsRoster, opsViewerID, "viewer", "")
	seed(agencyRoster, agencyMgrID, "manager", testAgencyID)
	seed(agencyRoster, agencyFinID, "finance", testAgencyID)

	store := payment.NewInMemoryStore()
	provider := &fakeProvider{}
	engine := payment.NewEngine(store, provider, payment.Config{
		AppBaseURL:       "http://localhost:3000",
		AllowedOrigins:   []string{testOrigin},
		WebhookSecret:    testSecret,
		PurchasesEnabled: true,
	})

	api, err := New(Options{
		Version:          "test",
		Content:          contentSvc,
		Ads:              adsSvc,
		Agency:           agencySvc,
		Audit:            rec,
		OpsRoster:        opsRoster,
		AgencyRoster:     agencyRoster,
		Limiter:          ratelimit.NewInMemory(),
		Payments:         engine,
		ServiceToken:     "svc-token",
		AllowedOrigins:   []string{testOrigin},
		DevTokenEndpoint: true,
	})
	if err != nil {
		t.Fatalf("new api: %v", err)
	}

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &testAPI{
		baseURL:  srv.URL,
		client:   srv.Client(),
		t:        t,
		audit:    rec,
		ads:      adsSvc,
		store:    store,
		provider: provider,
	}
}

func (c *testAPI) token(userID string) string {
	c.t.Helper()
	token, err := auth.GenerateToken(userID, time.Hour)
	if err != nil {
		c.t.Fatalf("generate token: %v", err)
	}
	return token
}

func (c *testAPI) post(path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *testAPI) action(path, token, action string, payload any) *http.Response {
	c.t.Helper()
	return c.post(path, map[string]any{"action": action, "payload": payload}, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

type apiResponse struct {
	Success          bool            `json:"success"`
	AlreadyProcessed bool            `json:"already_processed"`
	Data             json.RawMessage `json:"data"`
	Error            string          `json:"error"`
	RequestID        string          `json:"request_id"`
}

func decodeResponse(t *testing.T, resp *http.Response) apiResponse {
	t.Helper()
	defer resp.Body.Close()
	var out apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func itemFrom(t *testing.T, body apiResponse) content.Item {
	t.Helper()
	var wrapper struct {
		Item content.Item `json:"item"`
	}
	if err := json.Unmarshal(body.Data, &wrapper); err != nil {
		t.Fatalf("decode item: %v", err)
	}
	return wrapper.Item
}

func TestHealthz(t *testing.T) {
	c := newTestAPI(t)
	resp, err := c.client.Get(c.baseURL + "/healthz")
	if err != nil {
		t.Fatalf("get healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d, want 200", resp.StatusCode)
	}
}

func TestOpsManageRequiresAuth(t *testing.T) {
	c := newTestAPI(t)
	resp := c.post("/v1/ops/manage", map[string]any{"action": "banner.list"}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestOpsManageUnknownAction(t *testing.T) {
	c := newTestAPI(t)
	resp := c.action("/v1/ops/manage", c.token(opsAdminID), "banner.destroy", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	body := decodeResponse(t, resp)
	if body.Success {
		t.Fatalf("expected failure envelope")
	}
	if body.RequestID == "" {
		t.Fatalf("error response missing request_id")
	}
}

func TestOpsManageForbiddenLeavesNoAudit(t *testing.T) {
	c := newTestAPI(t)
	resp := c.action("/v1/ops/manage", c.token(opsViewerID), "banner.create", map[string]any{
		"title": "Nope",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
	entries, total, err := c.audit.List(context.Background(), audit.Filter{})
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	if total != 0 || len(entries) != 0 {
		t.Fatalf("denied action left %d audit entries", total)
	}
}

func TestOpsManageUnknownUser(t *testing.T) {
	c := newTestAPI(t)
	resp := c.action("/v1/ops/manage", c.token("99999999-9999-4999-8999-999999999999"), "banner.list", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
}

func TestBannerLifecycle(t *testing.T) {
	c := newTestAPI(t)
	operator := c.token(opsOperatorID)
	publisher := c.token(opsPublisherID)

	resp := c.action("/v1/ops/manage", operator, "banner.create", map[string]any{
		"title":     "Spring Sale",
		"placement": "home_top",
		"image_url": "https://cdn.example.com/sale.png",
		"link_url":  "/events/spring",
		"link_type": "internal",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create status = %d, want 200", resp.StatusCode)
	}
	created := itemFrom(t, decodeResponse(t, resp))
	if created.Version != 1 || created.Status != content.StatusDraft {
		t.Fatalf("created version=%d status=%s, want 1 draft", created.Version, created.Status)
	}

	// Stale expected_version must conflict without mutating.
	resp = c.action("/v1/ops/manage", operator, "banner.update", map[string]any{
		"id":               created.ID,
		"expected_version": 99,
		"title":            "Stale",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("stale update status = %d, want 409", resp.StatusCode)
	}

	resp = c.action("/v1/ops/manage", operator, "banner.submit_review", map[string]any{
		"id":               created.ID,
		"expected_version": 1,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("submit_review status = %d, want 200", resp.StatusCode)
	}
	reviewed := itemFrom(t, decodeResponse(t, resp))
	if reviewed.Status != content.StatusInReview || reviewed.Version != 2 {
		t.Fatalf("after review status=%s version=%d", reviewed.Status, reviewed.Version)
	}

	// Publishing needs the publisher role.
	resp = c.action("/v1/ops/manage", operator, "banner.publish", map[string]any{
		"id":               created.ID,
		"expected_version": 2,
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("operator publish status = %d, want 403", resp.StatusCode)
	}

	resp = c.action("/v1/ops/manage", publisher, "banner.publish", map[string]any{
		"id":               created.ID,
		"expected_version": 2,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("publish status = %d, want 200", resp.StatusCode)
	}
	published := itemFrom(t, decodeResponse(t, resp))
	if published.Status != content.StatusPublished || published.PublishedSnapshot == nil {
		t.Fatalf("publish left status=%s snapshot=%v", published.Status, published.PublishedSnapshot)
	}

	resp = c.action("/v1/ops/manage", publisher, "banner.rollback", map[string]any{
		"id": created.ID,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("rollback status = %d, want 200", resp.StatusCode)
	}
	rolled := itemFrom(t, decodeResponse(t, resp))
	if rolled.Status != content.StatusDraft {
		t.Fatalf("rollback status = %s, want draft", rolled.Status)
	}
	if rolled.Attrs["title"] != "Spring Sale" {
		t.Fatalf("rollback did not restore snapshot attrs: %v", rolled.Attrs)
	}
}

func TestBannerListFiltersByPlacement(t *testing.T) {
	c := newTestAPI(t)
	operator := c.token(opsOperatorID)

	for _, b := range []struct{ title, placement string }{
		{"Home A", "home_top"},
		{"Popup", "popup"},
		{"Home B", "home_top"},
	} {
		resp := c.action("/v1/ops/manage", operator, "banner.create", map[string]any{
			"title":     b.title,
			"placement": b.placement,
			"image_url": "https://cdn.example.com/" + b.placement + ".png",
		})
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("create %q status = %d, want 200", b.title, resp.StatusCode)
		}
	}

	// Placement narrows before pagination: total counts every match even
	// when the page holds one.
	resp := c.action("/v1/ops/manage", operator, "banner.list", map[string]any{
		"placement": "home_top",
		"limit":     1,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d, want 200", resp.StatusCode)
	}
	body := decodeResponse(t, resp)
	var page struct {
		Items []content.Item `json:"items"`
		Total int            `json:"total"`
	}
	if err := json.Unmarshal(body.Data, &page); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if page.Total != 2 {
		t.Fatalf("total = %d, want 2", page.Total)
	}
	if len(page.Items) != 1 {
		t.Fatalf("page size = %d, want 1", len(page.Items))
	}
	if pl, _ := page.Items[0].Attrs["placement"].(string); pl != "home_top" {
		t.Fatalf("placement = %q, want home_top", pl)
	}
}

func TestBannerCreateRejectsScriptURL(t *testing.T) {
	c := newTestAPI(t)
	resp := c.action("/v1/ops/manage", c.token(opsOperatorID), "banner.create", map[string]any{
		"title":    "XSS",
		"link_url": "javascript:alert(1)",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	body := decodeResponse(t, resp)
	if body.Error != "link_url: unsafe URL protocol" {
		t.Fatalf("error = %q", body.Error)
	}
}

func TestDispatchRateLimit(t *testing.T) {
	c := newTestAPI(t)
	viewer := c.token(opsViewerID)

	var last *http.Response
	for i := 0; i < dispatchRateLimit+1; i++ {
		if last != nil {
			last.Body.Close()
		}
		last = c.action("/v1/ops/manage", viewer, "banner.list", nil)
	}
	defer last.Body.Close()
	if last.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("request %d status = %d, want 429", dispatchRateLimit+1, last.StatusCode)
	}
	if got := last.Header.Get("X-RateLimit-Remaining"); got != "0" {
		t.Fatalf("X-RateLimit-Remaining = %q, want 0", got)
	}
	if _, err := strconv.Atoi(last.Header.Get("Retry-After")); err != nil {
		t.Fatalf("Retry-After missing or non-numeric: %q", last.Header.Get("Retry-After"))
	}
}

func TestFanAdApproveCreatesLiveBanner(t *testing.T) {
	c := newTestAPI(t)
	operator := c.token(opsOperatorID)

	ad := c.ads.Seed(ads.FanAd{
		UserID:        buyerUserID,
		Title:         "Birthday Ad",
		ImageURL:      "https://cdn.example.com/bday.png",
		PaymentStatus: ads.PaymentPaid,
		Status:        ads.StatusPendingReview,
	})

	resp := c.action("/v1/ops/manage", operator, "fan_ad.approve", map[string]any{
		"id":        ad.ID,
		"placement": "home_top",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("approve status = %d, want 200", resp.StatusCode)
	}
	var wrapper struct {
		FanAd ads.FanAd `json:"fan_ad"`
	}
	body := decodeResponse(t, resp)
	if err := json.Unmarshal(body.Data, &wrapper); err != nil {
		t.Fatalf("decode fan_ad: %v", err)
	}
	if wrapper.FanAd.Status != ads.StatusApproved || wrapper.FanAd.ContentItemID == "" {
		t.Fatalf("approved ad status=%s content_item_id=%q", wrapper.FanAd.Status, wrapper.FanAd.ContentItemID)
	}

	resp = c.action("/v1/ops/manage", operator, "banner.get", map[string]any{
		"id": wrapper.FanAd.ContentItemID,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("banner.get status = %d, want 200", resp.StatusCode)
	}
	item := itemFrom(t, decodeResponse(t, resp))
	if item.Status != content.StatusPublished {
		t.Fatalf("approved banner status = %s, want published", item.Status)
	}
}

func TestFanAdApproveRequiresPaidPayment(t *testing.T) {
	c := newTestAPI(t)
	ad := c.ads.Seed(ads.FanAd{
		UserID:        buyerUserID,
		Title:         "Unpaid",
		PaymentStatus: ads.PaymentPending,
		Status:        ads.StatusPendingReview,
	})
	resp := c.action("/v1/ops/manage", c.token(opsOperatorID), "fan_ad.approve", map[string]any{
		"id":        ad.ID,
		"placement": "home_top",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestAgencyRoleSeparation(t *testing.T) {
	c := newTestAPI(t)
	manager := c.token(agencyMgrID)
	finance := c.token(agencyFinID)

	resp := c.action("/v1/agency/manage", manager, "creator.add", map[string]any{
		"creator_profile_id": "bbbbbbbb-bbbb-4bbb-8bbb-bbbbbbbbbbbb",
		"contract_start":     "2026-01-01",
		"revenue_share_rate": 0.3,
	})
	if resp.StatusCode != http.StatusOK {
		body := decodeResponse(t, resp)
		t.Fatalf("creator.add status = %d (%s), want 200", resp.StatusCode, body.Error)
	}
	resp.Body.Close()

	// Settlements are finance-only.
	resp = c.action("/v1/agency/manage", manager, "settlement.list", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("manager settlement.list status = %d, want 403", resp.StatusCode)
	}

	resp = c.action("/v1/agency/manage", finance, "settlement.list", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("finance settlement.list status = %d, want 200", resp.StatusCode)
	}
}

func TestOpsStaffUpsertAudited(t *testing.T) {
	c := newTestAPI(t)
	resp := c.action("/v1/ops/manage", c.token(opsAdminID), "staff.upsert", map[string]any{
		"target_user_id": "cccccccc-cccc-4ccc-8ccc-cccccccccccc",
		"role":           "operator",
		"display_name":   "New Operator",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("staff.upsert status = %d, want 200", resp.StatusCode)
	}
	entries, _, err := c.audit.List(context.Background(), audit.Filter{EntityType: "ops_staff"})
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	if len(entries) != 1 || entries[0].Action != "staff.upsert" {
		t.Fatalf("audit entries = %+v, want one staff.upsert", entries)
	}
}

func checkoutOrder(t *testing.T, c *testAPI, token string) payment.CheckoutResult {
	t.Helper()
	resp := c.post("/v1/payments/checkout", map[string]any{
		"package_id": "pkg_100",
		"platform":   "web",
	}, map[string]string{
		"Authorization": "Bearer " + token,
		"Origin":        testOrigin,
	})
	if resp.StatusCode != http.StatusOK {
		body := decodeResponse(t, resp)
		t.Fatalf("checkout status = %d (%s), want 200", resp.StatusCode, body.Error)
	}
	var out payment.CheckoutResult
	body := decodeResponse(t, resp)
	if err := json.Unmarshal(body.Data, &out); err != nil {
		t.Fatalf("decode checkout: %v", err)
	}
	return out
}

func TestCheckoutAndConfirm(t *testing.T) {
	c := newTestAPI(t)
	buyer := c.token(buyerUserID)

	out := checkoutOrder(t, c, buyer)
	if out.PriceKRW != 10000 {
		t.Fatalf("web price = %d, want 10000", out.PriceKRW)
	}
	if out.CheckoutURL == "" {
		t.Fatalf("missing checkout URL")
	}

	resp := c.post("/v1/payments/confirm", map[string]any{
		"payment_key": "pk_" + out.Order.ID,
		"order_id":    out.Order.ID,
		"amount":      out.PriceKRW,
	}, map[string]string{"Authorization": "Bearer " + buyer})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("confirm status = %d, want 200", resp.StatusCode)
	}
	body := decodeResponse(t, resp)
	var res payment.ConfirmResult
	if err := json.Unmarshal(body.Data, &res); err != nil {
		t.Fatalf("decode confirm: %v", err)
	}
	if res.Status != payment.OrderPaid || res.Credited != 105 {
		t.Fatalf("confirm status=%s credited=%d, want paid 105", res.Status, res.Credited)
	}

	// Replays acknowledge without crediting again.
	resp = c.post("/v1/payments/confirm", map[string]any{
		"payment_key": "pk_" + out.Order.ID,
		"order_id":    out.Order.ID,
		"amount":      out.PriceKRW,
	}, map[string]string{"Authorization": "Bearer " + buyer})
	replay := decodeResponse(t, resp)
	if resp.StatusCode != http.StatusOK || !replay.AlreadyProcessed {
		t.Fatalf("replay status=%d already_processed=%v", resp.StatusCode, replay.AlreadyProcessed)
	}

	w, err := c.store.GetOrCreateWallet(context.Background(), buyerUserID)
	if err != nil {
		t.Fatalf("wallet: %v", err)
	}
	if w.Balance != 105 {
		t.Fatalf("balance = %d, want 105", w.Balance)
	}
}

func TestConfirmRejectsOtherUsersOrder(t *testing.T) {
	c := newTestAPI(t)
	out := checkoutOrder(t, c, c.token(buyerUserID))

	resp := c.post("/v1/payments/confirm", map[string]any{
		"payment_key": "pk_" + out.Order.ID,
		"order_id":    out.Order.ID,
		"amount":      out.PriceKRW,
	}, map[string]string{"Authorization": "Bearer " + c.token(opsViewerID)})
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
}

func TestCheckoutRejectsUnknownOrigin(t *testing.T) {
	c := newTestAPI(t)
	resp := c.post("/v1/payments/checkout", map[string]any{
		"package_id": "pkg_100",
		"platform":   "web",
	}, map[string]string{
		"Authorization": "Bearer " + c.token(buyerUserID),
		"Origin":        "https://evil.example.com",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
}

func (c *testAPI) postWebhook(body []byte, webhookID string, sign bool) *http.Response {
	c.t.Helper()
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	sig := "invalid"
	if sign {
		sig = payment.Sign(testSecret, ts, body)
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/v1/payments/webhook", bytes.NewReader(body))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("webhook-id", webhookID)
	req.Header.Set("webhook-timestamp", ts)
	req.Header.Set("webhook-signature", sig)
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("post webhook: %v", err)
	}
	return resp
}

func TestWebhookSettlesWithoutBearerToken(t *testing.T) {
	c := newTestAPI(t)
	out := checkoutOrder(t, c, c.token(buyerUserID))

	body, _ := json.Marshal(map[string]any{
		"eventType": "PAYMENT_STATUS_CHANGED",
		"data": map[string]any{
			"orderId":    out.Order.ID,
			"paymentKey": "pk_" + out.Order.ID,
			"status":     "DONE",
		},
	})

	resp := c.postWebhook(body, "wh_1", true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("webhook status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	w, err := c.store.GetOrCreateWallet(context.Background(), buyerUserID)
	if err != nil {
		t.Fatalf("wallet: %v", err)
	}
	if w.Balance != 105 {
		t.Fatalf("balance = %d, want 105", w.Balance)
	}

	// Same webhook id replays as a duplicate, never a second credit.
	resp = c.postWebhook(body, "wh_1", true)
	resp.Body.Close()
	w, _ = c.store.GetOrCreateWallet(context.Background(), buyerUserID)
	if w.Balance != 105 {
		t.Fatalf("balance after replay = %d, want 105", w.Balance)
	}
}

func TestWebhookChargebackDebitsWallet(t *testing.T) {
	c := newTestAPI(t)
	out := checkoutOrder(t, c, c.token(buyerUserID))

	paid, _ := json.Marshal(map[string]any{
		"eventType": "PAYMENT_STATUS_CHANGED",
		"data": map[string]any{
			"orderId":    out.Order.ID,
			"paymentKey": "pk_" + out.Order.ID,
			"status":     "DONE",
		},
	})
	resp := c.postWebhook(paid, "wh_cb_paid", true)
	resp.Body.Close()

	dispute, _ := json.Marshal(map[string]any{
		"eventType": "Transaction.PartialCancelled",
		"data": map[string]any{
			"orderId":    out.Order.ID,
			"paymentKey": "pk_" + out.Order.ID,
			"status":     "PARTIAL_CANCELED",
			"cancels":    []map[string]any{{"cancelReason": "CHARGEBACK", "cancelAmount": out.PriceKRW}},
		},
	})
	resp = c.postWebhook(dispute, "wh_cb_dispute", true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("dispute webhook status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	order, err := c.store.GetOrder(context.Background(), out.Order.ID)
	if err != nil {
		t.Fatalf("order: %v", err)
	}
	if order.Status != payment.OrderRefunded {
		t.Fatalf("order status = %s, want refunded", order.Status)
	}

	w, _ := c.store.GetOrCreateWallet(context.Background(), buyerUserID)
	if w.Balance != 0 {
		t.Fatalf("balance = %d, want 0", w.Balance)
	}
	if w.LifetimeRefunded != 105 {
		t.Fatalf("lifetime_refunded = %d, want 105", w.LifetimeRefunded)
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	c := newTestAPI(t)
	body := []byte(`{"eventType":"PAYMENT_STATUS_CHANGED","data":{"orderId":"x"}}`)
	resp := c.postWebhook(body, "wh_2", false)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestReconcileRequiresServiceToken(t *testing.T) {
	c := newTestAPI(t)

	resp := c.post("/v1/payments/reconcile", nil, map[string]string{
		"Authorization": "Bearer wrong-token",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong token status = %d, want 401", resp.StatusCode)
	}

	resp = c.post("/v1/payments/reconcile", nil, map[string]string{
		"Authorization": "Bearer svc-token",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("service token status = %d, want 200", resp.StatusCode)
	}
}

func TestDevTokenEndpoint(t *testing.T) {
	c := newTestAPI(t)
	resp := c.post("/v1/auth/token", map[string]any{"user_id": opsViewerID}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("token status = %d, want 200", resp.StatusCode)
	}
	var out struct {
		Token string `json:"token"`
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode token: %v", err)
	}

	listResp := c.action("/v1/ops/manage", out.Token, "banner.list", nil)
	listResp.Body.Close()
	if listResp.StatusCode != http.StatusOK {
		t.Fatalf("banner.list with minted token = %d, want 200", listResp.StatusCode)
	}
}
