package localdb

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/JKKN-Institutions/JKKNPOS/internal/dto"

	"github.com/shopspring/decimal"
)

// Monetary columns are stored as TEXT so SQLite's numeric affinity never turns
// them into binary floats.

// CachedProduct is a read-through copy of a catalog item. Rows are replaced
// wholesale by CacheProducts; only AdjustCachedStock patches them.
type CachedProduct struct {
	ID         string          `gorm:"primaryKey"                     json:"id"`
	Name       string          `gorm:"not null;index"                 json:"name"`
	SKU        string          `gorm:"column:sku;index"               json:"sku"`
	Barcode    string          `gorm:"index"                          json:"barcode"`
	Price      decimal.Decimal `gorm:"type:text;not null"             json:"price"`
	CostPrice  decimal.Decimal `gorm:"type:text"                      json:"cost_price"`
	Stock      int             `gorm:"not null"                       json:"stock"`
	MinStock   int             `gorm:"not null"                       json:"min_stock"`
	CategoryID string          `gorm:"index"                          json:"category_id"`
	ImageURL   string          `                                      json:"image_url"`
	IsActive   bool            `gorm:"not null"                       json:"is_active"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime:false;index"     json:"updated_at"`
}

func (CachedProduct) TableName() string { return "cached_products" }

type CachedCustomer struct {
	ID                 string          `gorm:"primaryKey"                 json:"id"`
	Name               string          `gorm:"not null;index"             json:"name"`
	Phone              string          `gorm:"index"                      json:"phone"`
	Email              string          `gorm:"index"                      json:"email"`
	Address            string          `                                  json:"address"`
	CreditLimit        decimal.Decimal `gorm:"type:text"                  json:"credit_limit"`
	OutstandingBalance decimal.Decimal `gorm:"type:text"                  json:"outstanding_balance"`
	UpdatedAt          time.Time       `gorm:"autoUpdateTime:false;index" json:"updated_at"`
}

func (CachedCustomer) TableName() string { return "cached_customers" }

// OfflineSale is a sale completed while the remote service was unreachable.
// Rows are append-only; Synced flips to true exactly once, when the matching
// queue entry is confirmed by the server.
type OfflineSale struct {
	ID            string               `gorm:"primaryKey"                  json:"id"`
	SaleNumber    string               `gorm:"uniqueIndex;not null"        json:"sale_number"`
	CustomerID    *string              `gorm:"index"                       json:"customer_id"`
	CustomerName  string               `                                   json:"customer_name"`
	Items         []dto.SaleItemParams `gorm:"serializer:json;type:text"   json:"items"`
	Subtotal      decimal.Decimal      `gorm:"type:text;not null"          json:"subtotal"`
	Discount      decimal.Decimal      `gorm:"type:text;not null"          json:"discount"`
	Tax           decimal.Decimal      `gorm:"type:text;not null"          json:"tax"`
	Total         decimal.Decimal      `gorm:"type:text;not null"          json:"total"`
	PaymentMethod string               `gorm:"not null"                    json:"payment_method"`
	PaymentAmount decimal.Decimal      `gorm:"type:text"                   json:"payment_amount"`
	Notes         string               `                                   json:"notes"`
	Status        string               `gorm:"not null"                    json:"status"`
	Synced        bool                 `gorm:"not null;index"              json:"synced"`
	SyncedAt      *time.Time           `                                   json:"synced_at"`
	CreatedAt     time.Time            `gorm:"index"                       json:"created_at"`
}

func (OfflineSale) TableName() string { return "offline_sales" }

// QueueEntry is one pending mutation for the remote service. Payload holds the
// params of exactly one remote operation. Ref links the entry to a local
// record (the offline sale id for sale entries).
type QueueEntry struct {
	ID         string          `gorm:"primaryKey"                json:"id"`
	EntityType string          `gorm:"not null;index"            json:"entity_type"`
	Action     string          `gorm:"not null"                  json:"action"`
	Payload    json.RawMessage `gorm:"type:text;not null"        json:"payload"`
	Ref        string          `gorm:"index"                     json:"ref,omitempty"`
	Timestamp  time.Time       `gorm:"not null;index"            json:"timestamp"`
	Attempts   int             `gorm:"not null"                  json:"attempts"`
	LastError  string          `                                 json:"last_error,omitempty"`
}

func (QueueEntry) TableName() string { return "sync_queue" }

// DeadLetter is a queue entry taken out of circulation for manual review.
type DeadLetter struct {
	ID         string          `gorm:"primaryKey"         json:"id"`
	EntityType string          `gorm:"not null;index"     json:"entity_type"`
	Action     string          `gorm:"not null"           json:"action"`
	Payload    json.RawMessage `gorm:"type:text;not null" json:"payload"`
	Ref        string          `gorm:"index"              json:"ref,omitempty"`
	Timestamp  time.Time       `gorm:"not null"           json:"timestamp"`
	Attempts   int             `gorm:"not null"           json:"attempts"`
	LastError  string          `                          json:"last_error"`
	Reason     string          `gorm:"not null;index"     json:"reason"`
	FailedAt   time.Time       `gorm:"not null"           json:"failed_at"`
}

func (DeadLetter) TableName() string { return "sync_dead_letters" }

// KVState holds small JSON documents keyed by name (the persisted cart, the
// shell lifecycle state).
type KVState struct {
	Key       string    `gorm:"column:state_key;primaryKey"`
	Value     []byte    `gorm:"not null"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (KVState) TableName() string { return "kv_state" }

// CachedResponse is an HTTP response stored by the offline shell under a
// versioned cache name.
type CachedResponse struct {
	CacheName string      `gorm:"primaryKey"`
	Key       string      `gorm:"column:cache_key;primaryKey"`
	Status    int         `gorm:"not null"`
	Header    http.Header `gorm:"serializer:json;type:text"`
	Body      []byte
	StoredAt  time.Time `gorm:"not null"`
}

func (CachedResponse) TableName() string { return "response_cache" }

// Stats is a point-in-time count of the local collections.
type Stats struct {
	UnsyncedSales   int64 `json:"unsynced_sales"`
	CachedProducts  int64 `json:"cached_products"`
	CachedCustomers int64 `json:"cached_customers"`
	QueueDepth      int64 `json:"queue_depth"`
	DeadLetters     int64 `json:"dead_letters"`
}

func allModels() []interface{} {
	return []interface{}{
		&CachedProduct{},
		&CachedCustomer{},
		&OfflineSale{},
		&QueueEntry{},
		&DeadLetter{},
		&KVState{},
		&CachedResponse{},
	}
}
