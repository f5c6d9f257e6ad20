package store

import (
	"context"
	"errors"
	"testing"

	"github.com/fieldware/fieldsync/internal/record"
)

func mustDate(t *testing.T, s string) record.Date {
	t.Helper()
	d, err := record.ParseDate(s)
	if err != nil {
		t.Fatalf("ParseDate(%q): %v", s, err)
	}
	return d
}

func TestScheduleByNaturalKey(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()
	date := mustDate(t, "2026-08-29")

	schedule := &record.CallSchedule{ID: "temp_1_a", StoreID: "7", CallDate: date, UserID: 3}
	if err := db.SaveSchedule(ctx, schedule); err != nil {
		t.Fatalf("SaveSchedule: %v", err)
	}

	got, err := db.GetScheduleByKey(ctx, "7", date, 3)
	if err != nil {
		t.Fatalf("GetScheduleByKey: %v", err)
	}
	if got.ID != "temp_1_a" {
		t.Errorf("ID = %q", got.ID)
	}

	if _, err := db.GetScheduleByKey(ctx, "7", mustDate(t, "2026-08-30"), 3); !errors.Is(err, ErrNotFound) {
		t.Errorf("different date should be ErrNotFound, got %v", err)
	}
	if _, err := db.GetScheduleByKey(ctx, "7", date, 4); !errors.Is(err, ErrNotFound) {
		t.Errorf("different user should be ErrNotFound, got %v", err)
	}
}

func TestDeleteScheduleIdempotent(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	schedule := &record.CallSchedule{ID: "5", StoreID: "7", CallDate: mustDate(t, "2026-08-29"), UserID: 3}
	if err := db.SaveSchedule(ctx, schedule); err != nil {
		t.Fatalf("SaveSchedule: %v", err)
	}
	if err := db.DeleteSchedule(ctx, "5"); err != nil {
		t.Fatalf("DeleteSchedule: %v", err)
	}
	if err := db.DeleteSchedule(ctx, "5"); err != nil {
		t.Errorf("second delete should be a no-op, got %v", err)
	}
}

func TestRecordingRoundTrip(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	notes := "left samples with manager"
	rec := &record.CallRecording{
		ID:             "temp_2_b",
		CallScheduleID: "5",
		Products: record.ProductLines{
			{ProductID: 3, Quantity: 2, Discount: 10},
			{ProductID: 9, Quantity: 1},
		},
		Signature:    "data:image/png;base64,abc",
		PostActivity: &notes,
	}
	if err := db.SaveRecording(ctx, rec); err != nil {
		t.Fatalf("SaveRecording: %v", err)
	}

	got, err := db.GetRecording(ctx, "temp_2_b")
	if err != nil {
		t.Fatalf("GetRecording: %v", err)
	}
	if len(got.Products) != 2 || got.Products[0].ProductID != 3 || got.Products[0].Discount != 10 {
		t.Errorf("products = %+v", got.Products)
	}
	if got.PostActivity == nil || *got.PostActivity != notes {
		t.Errorf("post activity = %v", got.PostActivity)
	}
	if got.Signature != rec.Signature {
		t.Errorf("signature = %q", got.Signature)
	}
}

func TestRecordingNilPostActivity(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	rec := &record.CallRecording{
		ID:             "1",
		CallScheduleID: "5",
		Products:       record.ProductLines{{ProductID: 3, Quantity: 1}},
	}
	if err := db.SaveRecording(ctx, rec); err != nil {
		t.Fatalf("SaveRecording: %v", err)
	}
	got, err := db.GetRecording(ctx, "1")
	if err != nil {
		t.Fatalf("GetRecording: %v", err)
	}
	if got.PostActivity != nil {
		t.Errorf("post activity should stay nil, got %q", *got.PostActivity)
	}
}

func TestGetRecordingBySchedule(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	rec := &record.CallRecording{
		ID:             "8",
		CallScheduleID: "5",
		Products:       record.ProductLines{{ProductID: 3, Quantity: 1}},
	}
	if err := db.SaveRecording(ctx, rec); err != nil {
		t.Fatalf("SaveRecording: %v", err)
	}

	got, err := db.GetRecordingBySchedule(ctx, "5")
	if err != nil {
		t.Fatalf("GetRecordingBySchedule: %v", err)
	}
	if got.ID != "8" {
		t.Errorf("ID = %q", got.ID)
	}
	if _, err := db.GetRecordingBySchedule(ctx, "6"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing schedule should be ErrNotFound, got %v", err)
	}
}

func TestReplaceRecordings(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	stale := &record.CallRecording{
		ID:             "1",
		CallScheduleID: "5",
		Products:       record.ProductLines{{ProductID: 3, Quantity: 1}},
	}
	if err := db.SaveRecording(ctx, stale); err != nil {
		t.Fatalf("SaveRecording: %v", err)
	}
	fresh := []record.CallRecording{
		{ID: "2", CallScheduleID: "6", Products: record.ProductLines{{ProductID: 4, Quantity: 1}}},
	}
	if err := db.ReplaceRecordings(ctx, fresh); err != nil {
		t.Fatalf("ReplaceRecordings: %v", err)
	}

	if _, err := db.GetRecording(ctx, "1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("stale recording survived refresh: %v", err)
	}
	all, err := db.ListRecordings(ctx)
	if err != nil {
		t.Fatalf("ListRecordings: %v", err)
	}
	if len(all) != 1 || all[0].ID != "2" {
		t.Errorf("recordings = %+v", all)
	}
}

func TestCatalogReplace(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	stores := []record.Store{
		{ID: "7", StoreName: "Mega Mart", HasRecording: true, CallScheduleID: "5"},
		{ID: "8", StoreName: "Corner Shop"},
	}
	if err := db.ReplaceStores(ctx, stores); err != nil {
		t.Fatalf("ReplaceStores: %v", err)
	}
	products := []record.Product{
		{ID: "3", ProductName: "Widget", ProductQuantity: 10, ProductPrice: "1500.50"},
	}
	if err := db.ReplaceProducts(ctx, products); err != nil {
		t.Fatalf("ReplaceProducts: %v", err)
	}

	gotStores, err := db.ListStores(ctx)
	if err != nil {
		t.Fatalf("ListStores: %v", err)
	}
	if len(gotStores) != 2 {
		t.Fatalf("stores = %d, want 2", len(gotStores))
	}

	store, err := db.GetStore(ctx, "7")
	if err != nil {
		t.Fatalf("GetStore: %v", err)
	}
	if !store.HasRecording || store.CallScheduleID != "5" {
		t.Errorf("store = %+v", store)
	}

	product, err := db.GetProduct(ctx, "3")
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if product.ProductPrice != "1500.50" {
		t.Errorf("price = %q", product.ProductPrice)
	}
}
