package remote

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"

	"github.com/fieldware/fieldsync/internal/record"
)

const testBase = "https://api.test"

func testClient(t *testing.T) *Client {
	t.Helper()
	httpClient := &http.Client{}
	httpmock.ActivateNonDefault(httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)
	return NewClient(testBase, "tok123", httpClient, nil)
}

func TestListTasks(t *testing.T) {
	client := testClient(t)
	httpmock.RegisterResponder("GET", testBase+"/tasks",
		func(req *http.Request) (*http.Response, error) {
			if got := req.Header.Get("Authorization"); got != "Bearer tok123" {
				t.Errorf("Authorization = %q", got)
			}
			return httpmock.NewStringResponse(200, `[
				{"id": 1, "title": "Visit Mega Mart", "completed": false},
				{"id": 2, "title": "File report", "completed": true}
			]`), nil
		})

	tasks, err := client.ListTasks(context.Background())
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("len = %d, want 2", len(tasks))
	}
	if tasks[0].ID != "1" || tasks[0].Title != "Visit Mega Mart" {
		t.Errorf("tasks[0] = %+v", tasks[0])
	}
	if !tasks[1].Completed {
		t.Errorf("tasks[1] = %+v", tasks[1])
	}
}

func TestGetRetriesTransientFailures(t *testing.T) {
	client := testClient(t)

	calls := 0
	httpmock.RegisterResponder("GET", testBase+"/tasks",
		func(req *http.Request) (*http.Response, error) {
			calls++
			if calls < 3 {
				return httpmock.NewStringResponse(500, "boom"), nil
			}
			return httpmock.NewStringResponse(200, `[]`), nil
		})

	if _, err := client.ListTasks(context.Background()); err != nil {
		t.Fatalf("ListTasks after retries: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestGetDoesNotRetryNotFound(t *testing.T) {
	client := testClient(t)

	calls := 0
	httpmock.RegisterResponder("GET", testBase+"/tasks/42",
		func(req *http.Request) (*http.Response, error) {
			calls++
			return httpmock.NewStringResponse(404, `{"message":"not found"}`), nil
		})

	_, err := client.GetTask(context.Background(), "42")
	if !IsNotFound(err) {
		t.Fatalf("err = %v, want not-found", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (404 is definitive)", calls)
	}
}

func TestCreateTaskValidationError(t *testing.T) {
	client := testClient(t)
	httpmock.RegisterResponder("POST", testBase+"/tasks",
		httpmock.NewStringResponder(422, `{
			"message": "The title field is required.",
			"errors": {"title": ["The title field is required."]}
		}`))

	_, err := client.CreateTask(context.Background(), map[string]any{"description": "no title"})
	if !IsValidation(err) {
		t.Fatalf("err = %v, want validation", err)
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("cannot extract ValidationError from %v", err)
	}
	if verr.Message != "The title field is required." {
		t.Errorf("message = %q", verr.Message)
	}
	if len(verr.Fields["title"]) != 1 {
		t.Errorf("fields = %+v", verr.Fields)
	}
}

func TestMutationsAreNotRetried(t *testing.T) {
	client := testClient(t)

	calls := 0
	httpmock.RegisterResponder("POST", testBase+"/tasks",
		func(req *http.Request) (*http.Response, error) {
			calls++
			return httpmock.NewStringResponse(500, "boom"), nil
		})

	if _, err := client.CreateTask(context.Background(), map[string]any{"title": "x"}); err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (writes must not auto-retry)", calls)
	}
}

func TestGetOrCreateSchedule(t *testing.T) {
	client := testClient(t)
	httpmock.RegisterResponder("POST", testBase+"/call-schedules/get-or-create",
		httpmock.NewStringResponder(200, `{
			"id": 5, "store_id": 7, "call_date": "2026-08-29T00:00:00.000000Z", "user_id": 3
		}`))

	date, _ := record.ParseDate("2026-08-29")
	schedule, err := client.GetOrCreateSchedule(context.Background(), "7", date, 3)
	if err != nil {
		t.Fatalf("GetOrCreateSchedule: %v", err)
	}
	if schedule.ID != "5" || schedule.StoreID != "7" {
		t.Errorf("schedule = %+v", schedule)
	}
	if schedule.CallDate.String() != "2026-08-29" {
		t.Errorf("call date = %q", schedule.CallDate)
	}
}

func TestGetRecordingByScheduleDecodesLegacyProducts(t *testing.T) {
	client := testClient(t)
	httpmock.RegisterResponder("GET", testBase+"/call-recordings/schedule/5",
		httpmock.NewStringResponder(200, `{
			"id": 9, "call_schedule_id": 5, "product_id": "[3,7]", "post_activity": null
		}`))

	rec, err := client.GetRecordingBySchedule(context.Background(), "5")
	if err != nil {
		t.Fatalf("GetRecordingBySchedule: %v", err)
	}
	if len(rec.Products) != 2 || rec.Products[0].ProductID != 3 {
		t.Errorf("products = %+v", rec.Products)
	}
	if rec.PostActivity != nil {
		t.Errorf("post activity = %v", rec.PostActivity)
	}
}

func TestListStoresQueryParams(t *testing.T) {
	client := testClient(t)
	httpmock.RegisterResponder("GET", testBase+"/stores",
		func(req *http.Request) (*http.Response, error) {
			q := req.URL.Query()
			if q.Get("call_date") != "2026-08-29" || q.Get("user_id") != "3" {
				t.Errorf("query = %v", q)
			}
			return httpmock.NewStringResponse(200, `[{"id": 7, "store_name": "Mega Mart", "has_recording": true}]`), nil
		})

	date, _ := record.ParseDate("2026-08-29")
	stores, err := client.ListStores(context.Background(), date, 3)
	if err != nil {
		t.Fatalf("ListStores: %v", err)
	}
	if len(stores) != 1 || !stores[0].HasRecording {
		t.Errorf("stores = %+v", stores)
	}
}

func TestDeleteTaskNotFound(t *testing.T) {
	client := testClient(t)
	httpmock.RegisterResponder("DELETE", testBase+"/tasks/42",
		httpmock.NewStringResponder(404, `{"message":"not found"}`))

	err := client.DeleteTask(context.Background(), "42")
	if !IsNotFound(err) {
		t.Errorf("err = %v, want not-found", err)
	}
}
