package catalog

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/mmeshcher/provenance-system/internal/metrics"
	"github.com/mmeshcher/provenance-system/internal/model"
)

type stubReader struct {
	batches   map[string][]map[string]any
	orders    map[string][]map[string]any
	feedbacks map[string][]map[string]any
	failing   map[string]error
}

func (s *stubReader) GetBatches(ctx context.Context, account string) ([]map[string]any, error) {
	if err := s.failing[account]; err != nil {
		return nil, err
	}
	return s.batches[account], nil
}

func (s *stubReader) GetOrders(ctx context.Context, account string) ([]map[string]any, error) {
	if err := s.failing[account]; err != nil {
		return nil, err
	}
	return s.orders[account], nil
}

func (s *stubReader) GetFeedbacks(ctx context.Context, account string) ([]map[string]any, error) {
	if err := s.failing[account]; err != nil {
		return nil, err
	}
	return s.feedbacks[account], nil
}

func newTestAggregator(reader Reader, accounts ...string) *Aggregator {
	return NewAggregator(reader, accounts, zap.NewNop(), metrics.NewRegistry())
}

func TestRefresh_PartialFailure(t *testing.T) {
	reader := &stubReader{
		batches: map[string][]map[string]any{
			"0xa": {{"id": "1", "owner": "0xa", "product_name": "Rice", "quantity": "5"}},
			"0xb": {{"id": "2", "owner": "0xb", "product_name": "Wheat", "quantity": "7"}},
		},
		failing: map[string]error{
			"0xc": errors.New("connection refused"),
		},
	}

	a := newTestAggregator(reader, "0xa", "0xb", "0xc")

	if err := a.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh error: %v", err)
	}

	batches := a.Batches()
	if len(batches) != 2 {
		t.Fatalf("batches = %d, want 2", len(batches))
	}

	warnings := a.Warnings()
	if len(warnings) == 0 {
		t.Fatalf("expected warnings for failed account")
	}
	for _, w := range warnings {
		if w.Account != "0xc" {
			t.Fatalf("warning for account %q, want 0xc", w.Account)
		}
	}
}

func TestRefresh_ReplacesSnapshot(t *testing.T) {
	reader := &stubReader{
		batches: map[string][]map[string]any{
			"0xa": {{"id": "1", "owner": "0xa", "product_name": "Rice"}},
		},
	}

	a := newTestAggregator(reader, "0xa")

	if err := a.Refresh(context.Background()); err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	if len(a.Batches()) != 1 {
		t.Fatalf("batches after first refresh = %d, want 1", len(a.Batches()))
	}

	// Аккаунт начал падать: его старые записи не должны остаться в каталоге
	reader.failing = map[string]error{"0xa": errors.New("node down")}

	if err := a.Refresh(context.Background()); err != nil {
		t.Fatalf("second refresh: %v", err)
	}
	if len(a.Batches()) != 0 {
		t.Fatalf("stale entries survived refresh: %v", a.Batches())
	}
}

func TestQueries(t *testing.T) {
	reader := &stubReader{
		batches: map[string][]map[string]any{
			"0xa": {
				{"id": "1", "owner": "0xa", "product_name": "Basmati Rice", "product_type": "grain", "status": "approved"},
				{"id": "2", "owner": "0xa", "product_name": "Assam Tea", "product_type": "leaf", "status": "pending"},
			},
			"0xb": {
				{"id": "1", "owner": "0xb", "product_name": "Arabica Coffee", "product_type": "bean", "status": "approved"},
			},
		},
		orders: map[string][]map[string]any{
			"0xa": {{"order_id": "10", "batch_id": "1", "buyer": "0xb", "quantity": "2"}},
		},
	}

	a := newTestAggregator(reader, "0xa", "0xb")
	if err := a.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh error: %v", err)
	}

	if got := len(a.FilterByStatus(model.BatchStatusApproved)); got != 2 {
		t.Fatalf("approved batches = %d, want 2", got)
	}

	found := a.Search("RICE")
	if len(found) != 1 || found[0].ProductName != "Basmati Rice" {
		t.Fatalf("search result: %v", found)
	}

	if got := len(a.Search("bean")); got != 1 {
		t.Fatalf("search by type = %d, want 1", got)
	}

	grouped := a.GroupByOwner()
	if len(grouped["0xa"]) != 2 || len(grouped["0xb"]) != 1 {
		t.Fatalf("grouped: %v", grouped)
	}

	b, ok := a.BatchByID("0xb", 1)
	if !ok || b.ProductName != "Arabica Coffee" {
		t.Fatalf("BatchByID: %v %v", b, ok)
	}

	o, ok := a.OrderByID(10)
	if !ok || o.Buyer != "0xb" {
		t.Fatalf("OrderByID: %v %v", o, ok)
	}

	if _, ok := a.BatchByID("0xa", 99); ok {
		t.Fatalf("unexpected batch found")
	}
}

func TestSelected_SurvivesRefresh(t *testing.T) {
	reader := &stubReader{
		batches: map[string][]map[string]any{
			"0xa": {{"id": "1", "owner": "0xa", "product_name": "Rice", "status": "pending"}},
		},
	}

	a := newTestAggregator(reader, "0xa")
	if err := a.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh error: %v", err)
	}

	if !a.Select("0xa", 1) {
		t.Fatalf("Select returned false for existing batch")
	}

	// Партия одобрена, после обновления выбор должен указывать на свежую копию
	reader.batches["0xa"] = []map[string]any{
		{"id": "1", "owner": "0xa", "product_name": "Rice", "status": "approved", "approved_by": "0xa"},
	}
	if err := a.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh error: %v", err)
	}

	sel, ok := a.Selected()
	if !ok {
		t.Fatalf("selection lost after refresh")
	}
	if sel.Status != model.BatchStatusApproved {
		t.Fatalf("selected status = %q, want approved", sel.Status)
	}
}

func TestAddAccount_Dedup(t *testing.T) {
	a := newTestAggregator(&stubReader{}, "0xa")

	a.AddAccount("0xa")
	a.AddAccount("0xb")
	a.AddAccount("")

	suppliers := a.Suppliers()
	if len(suppliers) != 2 {
		t.Fatalf("suppliers = %v, want [0xa 0xb]", suppliers)
	}
}
