package record

import (
	"fmt"
	"time"
)

// Resource names an entity type on the wire and in the local store.
type Resource string

const (
	ResourceTask          Resource = "task"
	ResourceStore         Resource = "store"
	ResourceProduct       Resource = "product"
	ResourceCallSchedule  Resource = "call-schedule"
	ResourceCallRecording Resource = "call-recording"
)

// Task is a rep's to-do item.
type Task struct {
	ID          ID        `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Completed   bool      `json:"completed"`
	CreatedAt   time.Time `json:"created_at,omitzero"`
	UpdatedAt   time.Time `json:"updated_at,omitzero"`
}

// Validate checks the fields a task must carry before it is persisted.
func (t *Task) Validate() error {
	if t.ID.IsZero() {
		return fmt.Errorf("id is required")
	}
	if t.Title == "" {
		return fmt.Errorf("title is required")
	}
	return nil
}

// Store is a retail location on a rep's territory. The stores endpoint
// decorates each row with the rep's schedule status for the requested call
// date, so those fields live here rather than on a separate projection.
type Store struct {
	ID              ID     `json:"id"`
	StoreName       string `json:"store_name"`
	HasRecording    bool   `json:"has_recording,omitempty"`
	HasPostActivity bool   `json:"has_post_activity,omitempty"`
	CallScheduleID  ID     `json:"call_schedule_id,omitempty"`
}

// Product is a catalog entry. Price and discount come back as either JSON
// numbers or decimal strings depending on the server's serializer, so they
// stay as Decimal here.
type Product struct {
	ID                 ID      `json:"id"`
	ProductName        string  `json:"product_name"`
	ProductDescription string  `json:"product_description,omitempty"`
	ProductQuantity    int64   `json:"product_quantity"`
	ProductPrice       Decimal `json:"product_price"`
	ProductDiscount    Decimal `json:"product_discount"`
	ProductImage       string  `json:"product_image,omitempty"`
}

// CallSchedule plans a store visit. The (store, call date, user) triple is
// the natural key: there is never more than one schedule for it, locally or
// on the server.
type CallSchedule struct {
	ID        ID        `json:"id"`
	StoreID   ID        `json:"store_id"`
	CallDate  Date      `json:"call_date"`
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at,omitzero"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// Validate checks the natural key.
func (s *CallSchedule) Validate() error {
	if s.ID.IsZero() {
		return fmt.Errorf("id is required")
	}
	if s.StoreID.IsZero() {
		return fmt.Errorf("store_id is required")
	}
	if s.CallDate.IsZero() {
		return fmt.Errorf("call_date is required")
	}
	if s.UserID == 0 {
		return fmt.Errorf("user_id is required")
	}
	return nil
}

// CallRecording captures a completed sale call: the products sold, the
// customer's signature, and optional post-activity notes. Each schedule has
// at most one recording.
type CallRecording struct {
	ID             ID           `json:"id"`
	CallScheduleID ID           `json:"call_schedule_id"`
	Products       ProductLines `json:"product_id"`
	Signature      string       `json:"signature,omitempty"`
	PostActivity   *string      `json:"post_activity"`
	CreatedAt      time.Time    `json:"created_at,omitzero"`
	UpdatedAt      time.Time    `json:"updated_at,omitzero"`
}

// Validate checks the fields a recording must carry before it is persisted.
func (r *CallRecording) Validate() error {
	if r.ID.IsZero() {
		return fmt.Errorf("id is required")
	}
	if r.CallScheduleID.IsZero() {
		return fmt.Errorf("call_schedule_id is required")
	}
	if len(r.Products) == 0 {
		return fmt.Errorf("at least one product line is required")
	}
	return nil
}
