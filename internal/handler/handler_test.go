package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/mmeshcher/provenance-system/internal/catalog"
	"github.com/mmeshcher/provenance-system/internal/ledger"
	"github.com/mmeshcher/provenance-system/internal/middleware"
	"github.com/mmeshcher/provenance-system/internal/model"
	"github.com/mmeshcher/provenance-system/internal/validation"
)

type stubService struct {
	hash string
	err  error

	lastCaller string
}

func (s *stubService) Initialize(ctx context.Context, caller string) (string, error) {
	s.lastCaller = caller
	return s.hash, s.err
}

func (s *stubService) RegisterBatch(ctx context.Context, caller string, draft model.BatchDraft) (string, error) {
	s.lastCaller = caller
	if err := validation.ValidateBatchDraft(draft); err != nil {
		return "", err
	}
	return s.hash, s.err
}

func (s *stubService) CreateOrder(ctx context.Context, caller, owner string, batchID, quantity int64) (string, error) {
	s.lastCaller = caller
	return s.hash, s.err
}

func (s *stubService) SubmitFeedback(ctx context.Context, caller string, draft model.FeedbackDraft) (string, error) {
	s.lastCaller = caller
	return s.hash, s.err
}

func (s *stubService) UpdateBatchStatus(ctx context.Context, caller, owner string, batchID int64, newStatus, newLocation, notes string) (string, error) {
	s.lastCaller = caller
	return s.hash, s.err
}

func (s *stubService) ApproveBatch(ctx context.Context, caller, owner string, batchID int64) (string, error) {
	s.lastCaller = caller
	return s.hash, s.err
}

func (s *stubService) MarkOrderDelivered(ctx context.Context, caller string, orderID int64) (string, error) {
	s.lastCaller = caller
	return s.hash, s.err
}

type stubCatalog struct {
	batches   []model.Batch
	orders    []model.Order
	feedbacks []model.Feedback
	warnings  []catalog.Warning
	accounts  []string
	selected  *model.Batch
}

func (c *stubCatalog) Refresh(ctx context.Context) error { return nil }
func (c *stubCatalog) AddAccount(account string)         { c.accounts = append(c.accounts, account) }
func (c *stubCatalog) Suppliers() []string               { return c.accounts }
func (c *stubCatalog) Batches() []model.Batch            { return c.batches }
func (c *stubCatalog) Orders() []model.Order             { return c.orders }
func (c *stubCatalog) Feedbacks() []model.Feedback       { return c.feedbacks }
func (c *stubCatalog) Warnings() []catalog.Warning       { return c.warnings }

func (c *stubCatalog) BatchByID(owner string, id int64) (model.Batch, bool) {
	for _, b := range c.batches {
		if b.Owner == owner && b.ID == id {
			return b, true
		}
	}
	return model.Batch{}, false
}

func (c *stubCatalog) FilterByStatus(status model.BatchStatus) []model.Batch {
	var out []model.Batch
	for _, b := range c.batches {
		if b.Status == status {
			out = append(out, b)
		}
	}
	return out
}

func (c *stubCatalog) Search(query string) []model.Batch {
	var out []model.Batch
	for _, b := range c.batches {
		if strings.Contains(strings.ToLower(b.ProductName), strings.ToLower(query)) {
			out = append(out, b)
		}
	}
	return out
}

func (c *stubCatalog) GroupByOwner() map[string][]model.Batch {
	out := make(map[string][]model.Batch)
	for _, b := range c.batches {
		out[b.Owner] = append(out[b.Owner], b)
	}
	return out
}

func (c *stubCatalog) Select(owner string, id int64) bool {
	b, ok := c.BatchByID(owner, id)
	if ok {
		c.selected = &b
	}
	return ok
}

func (c *stubCatalog) Selected() (model.Batch, bool) {
	if c.selected == nil {
		return model.Batch{}, false
	}
	return *c.selected, true
}

type testEnv struct {
	server  *httptest.Server
	auth    *middleware.AuthMiddleware
	service *stubService
	catalog *stubCatalog
}

func newTestEnv(t *testing.T, svc *stubService, cat *stubCatalog) *testEnv {
	t.Helper()

	auth := middleware.NewAuthMiddleware("test-secret")
	h := NewHandler(svc, cat, zap.NewNop(), auth, nil)
	srv := httptest.NewServer(h.SetupRouter())
	t.Cleanup(srv.Close)

	return &testEnv{server: srv, auth: auth, service: svc, catalog: cat}
}

func (e *testEnv) request(t *testing.T, method, path, account string, body any) *http.Response {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if account != "" {
		rec := httptest.NewRecorder()
		e.auth.SetSessionCookie(rec, account)
		req.AddCookie(rec.Result().Cookies()[0])
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}

func TestConnect(t *testing.T) {
	env := newTestEnv(t, &stubService{hash: "0x1"}, &stubCatalog{})

	resp := env.request(t, http.MethodPost, "/api/session/connect", "", map[string]string{"address": "0xabc"})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if len(resp.Cookies()) == 0 {
		t.Fatalf("no session cookie set")
	}
	if len(env.catalog.accounts) != 1 || env.catalog.accounts[0] != "0xabc" {
		t.Fatalf("account not registered: %v", env.catalog.accounts)
	}
}

func TestConnect_InvalidAddress(t *testing.T) {
	env := newTestEnv(t, &stubService{}, &stubCatalog{})

	resp := env.request(t, http.MethodPost, "/api/session/connect", "", map[string]string{"address": "not-an-address"})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusUnprocessableEntity)
	}
}

func TestGetBatches_Unauthorized(t *testing.T) {
	env := newTestEnv(t, &stubService{}, &stubCatalog{})

	resp := env.request(t, http.MethodGet, "/api/batches", "", nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
}

func TestGetBatches_StatusFilter(t *testing.T) {
	cat := &stubCatalog{batches: []model.Batch{
		{ID: 1, Owner: "0xa", ProductName: "Rice", Status: model.BatchStatusApproved},
		{ID: 2, Owner: "0xa", ProductName: "Tea", Status: model.BatchStatusPending},
	}}
	env := newTestEnv(t, &stubService{}, cat)

	resp := env.request(t, http.MethodGet, "/api/batches?status=approved", "0xabc", nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var batches []model.Batch
	if err := json.NewDecoder(resp.Body).Decode(&batches); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(batches) != 1 || batches[0].ProductName != "Rice" {
		t.Fatalf("batches: %v", batches)
	}
}

func TestGetBatches_UnknownStatus(t *testing.T) {
	env := newTestEnv(t, &stubService{}, &stubCatalog{})

	resp := env.request(t, http.MethodGet, "/api/batches?status=teleported", "0xabc", nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusUnprocessableEntity)
	}
}

func TestGetBatch_NotFound(t *testing.T) {
	env := newTestEnv(t, &stubService{}, &stubCatalog{})

	resp := env.request(t, http.MethodGet, "/api/batches/0xa/99", "0xabc", nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestRegisterBatch(t *testing.T) {
	env := newTestEnv(t, &stubService{hash: "0xdeadbeef"}, &stubCatalog{})

	resp := env.request(t, http.MethodPost, "/api/batches", "0xabc", model.BatchDraft{
		ProductName: "Rice",
		Quantity:    5,
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusAccepted)
	}

	var tx txResponse
	if err := json.NewDecoder(resp.Body).Decode(&tx); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if tx.Hash != "0xdeadbeef" {
		t.Fatalf("hash = %q", tx.Hash)
	}
	if env.service.lastCaller != "0xabc" {
		t.Fatalf("caller = %q, want account from cookie", env.service.lastCaller)
	}
}

func TestRegisterBatch_ValidationError(t *testing.T) {
	env := newTestEnv(t, &stubService{hash: "0x1"}, &stubCatalog{})

	resp := env.request(t, http.MethodPost, "/api/batches", "0xabc", model.BatchDraft{
		ProductName: "",
		Quantity:    5,
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusUnprocessableEntity)
	}
}

func TestApproveBatch_Forbidden(t *testing.T) {
	svc := &stubService{err: fmt.Errorf("%w: only batch owner can approve", validation.ErrAuthorization)}
	env := newTestEnv(t, svc, &stubCatalog{})

	resp := env.request(t, http.MethodPost, "/api/batches/approve", "0xabc", approveRequest{Owner: "0xa", BatchID: 1})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusForbidden)
	}
}

func TestCreateOrder_LedgerRejection(t *testing.T) {
	svc := &stubService{err: &ledger.RejectionError{Hash: "0x2", VMStatus: "E_INSUFFICIENT_QUANTITY"}}
	env := newTestEnv(t, svc, &stubCatalog{})

	resp := env.request(t, http.MethodPost, "/api/orders", "0xabc", orderRequest{Owner: "0xa", BatchID: 1, Quantity: 3})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadGateway)
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["vm_status"] != "E_INSUFFICIENT_QUANTITY" {
		t.Fatalf("vm_status = %q", body["vm_status"])
	}
}

func TestSelectBatch_RoundTrip(t *testing.T) {
	cat := &stubCatalog{batches: []model.Batch{
		{ID: 1, Owner: "0xa", ProductName: "Rice", Status: model.BatchStatusApproved},
	}}
	env := newTestEnv(t, &stubService{}, cat)

	resp := env.request(t, http.MethodPost, "/api/batches/select", "0xabc", selectRequest{Owner: "0xa", BatchID: 1})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("select status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	resp = env.request(t, http.MethodGet, "/api/batches/select", "0xabc", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("selected status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var b model.Batch
	if err := json.NewDecoder(resp.Body).Decode(&b); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b.ProductName != "Rice" {
		t.Fatalf("selected batch: %v", b)
	}
}

func TestGetReputation(t *testing.T) {
	cat := &stubCatalog{
		orders: []model.Order{{ID: 1, Buyer: "0xabc", IsDelivered: true}},
	}
	env := newTestEnv(t, &stubService{}, cat)

	resp := env.request(t, http.MethodGet, "/api/reputation/0xabc", "0xabc", nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var rep model.Reputation
	if err := json.NewDecoder(resp.Body).Decode(&rep); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rep.Score != 60 || rep.SuccessfulDeliveries != 1 {
		t.Fatalf("reputation: %+v", rep)
	}
}

func TestChat(t *testing.T) {
	env := newTestEnv(t, &stubService{}, &stubCatalog{})

	resp := env.request(t, http.MethodPost, "/api/chat", "", map[string]string{"message": "help"})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var body chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.Contains(body.Response, "I can help you with") {
		t.Fatalf("response: %q", body.Response)
	}
}
