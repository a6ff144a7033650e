package controller

import (
	"context"
	"errors"
	"testing"
	"time"

	"fibexecutor/src/model"
)

type fakeStatusClient struct {
	statuses map[string]string
	filled   map[string]int
}

func (f *fakeStatusClient) OrderStatus(orderID string) string { return f.statuses[orderID] }
func (f *fakeStatusClient) Filled(orderID string) int          { return f.filled[orderID] }

type fakeLevelStore struct {
	rows      []model.LevelOrder
	listErr   error
	updateErr error
	updates   map[string]string
	inactive  []float64
}

func (f *fakeLevelStore) ListWorking(ctx context.Context, sessionID string) ([]model.LevelOrder, error) {
	return f.rows, f.listErr
}

func (f *fakeLevelStore) UpdateStatus(ctx context.Context, orderID string, status string, filled int) (int64, error) {
	if f.updateErr != nil {
		return 0, f.updateErr
	}
	if f.updates == nil {
		f.updates = map[string]string{}
	}
	f.updates[orderID] = status
	return 1, nil
}

func (f *fakeLevelStore) SetActive(ctx context.Context, sessionID string, ratio float64, active bool) error {
	if !active {
		f.inactive = append(f.inactive, ratio)
	}
	return nil
}

func TestReconcilerOnce(t *testing.T) {
	store := &fakeLevelStore{rows: []model.LevelOrder{
		{OrderID: "A", FibRatio: 0.618, Status: model.OrderStatusPlaced},
		{OrderID: "B", FibRatio: 1.0, Status: model.OrderStatusPlaced},
		{OrderID: "C", FibRatio: -0.23, Status: model.OrderStatusPlaced},
		{OrderID: "D", FibRatio: 0.5, Status: model.OrderStatusPlaced},
	}}
	client := &fakeStatusClient{
		statuses: map[string]string{"A": "Filled", "B": "Cancelled", "D": "Working"},
		filled:   map[string]int{"A": 1},
	}
	exc := &mockExceptionRepo{}

	r := NewReconciler("s-1", client, store, exc, nullEntry())
	n, err := r.Once(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 updates, got %d", n)
	}
	if store.updates["A"] != model.OrderStatusFilled || store.updates["B"] != model.OrderStatusCancelled {
		t.Fatalf("unexpected updates: %v", store.updates)
	}
	if _, ok := store.updates["C"]; ok {
		t.Fatalf("unknown status must be left alone")
	}
	if _, ok := store.updates["D"]; ok {
		t.Fatalf("unchanged status must not be rewritten")
	}
	if len(store.inactive) != 1 || store.inactive[0] != 0.618 {
		t.Fatalf("only the filled level is deactivated, cancelled B stays armed: got %v", store.inactive)
	}
}

func TestReconcilerOnce_Failures(t *testing.T) {
	store := &fakeLevelStore{listErr: errors.New("db down")}
	r := NewReconciler("s-1", &fakeStatusClient{}, store, nil, nullEntry())
	if _, err := r.Once(context.Background()); err == nil {
		t.Fatalf("expected list error")
	}

	exc := &mockExceptionRepo{}
	store = &fakeLevelStore{
		rows:      []model.LevelOrder{{OrderID: "A", Status: model.OrderStatusPlaced}},
		updateErr: errors.New("locked"),
	}
	r = NewReconciler("s-1", &fakeStatusClient{statuses: map[string]string{"A": "Filled"}}, store, exc, nullEntry())
	n, err := r.Once(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("update failures are captured, got n=%d err=%v", n, err)
	}
	if len(exc.created) != 1 {
		t.Fatalf("expected captured exception, got %d", len(exc.created))
	}
}

func TestReconcilerRun_StopsOnCancel(t *testing.T) {
	store := &fakeLevelStore{rows: []model.LevelOrder{{OrderID: "A", Status: model.OrderStatusPlaced}}}
	client := &fakeStatusClient{statuses: map[string]string{"A": "Filled"}}
	r := NewReconciler("s-1", client, store, nil, nullEntry())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("reconciler did not stop")
	}
}
