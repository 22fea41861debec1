package settlement

import (
	"time"

	"github.com/google/uuid"

	"iapgate/core/receipt"
)

// Receipt is one client purchase claim. (Store, OrderID) is unique, so a
// real world order can only ever own a single row.
type Receipt struct {
	ID             uuid.UUID     `gorm:"type:uuid;primaryKey"`
	Store          receipt.Store `gorm:"not null;uniqueIndex:idx_receipts_store_order,priority:1"`
	OrderID        string        `gorm:"size:255;not null;uniqueIndex:idx_receipts_store_order,priority:2"`
	Status         receipt.State `gorm:"not null;index"`
	PackageName    string        `gorm:"size:128"`
	AgentAddr      string        `gorm:"size:42;index"`
	AvatarAddr     string        `gorm:"size:42"`
	StoreProductID string        `gorm:"size:128"`
	ProductID      string        `gorm:"size:64;index"`
	PurchaseToken  string        `gorm:"type:text"`
	PurchasedAt    time.Time
	Data           []byte
	StoreResponse  []byte
	Message        string `gorm:"type:text"`
	Attempts       int    `gorm:"not null"`
	ActionID       string `gorm:"size:32"`
	ActionType     string `gorm:"size:64"`
	Payload        []byte
	AcknowledgedAt *time.Time
	CreatedAt      time.Time `gorm:"index"`
	UpdatedAt      time.Time `gorm:"index"`
}

// Settled reports whether an action payload has been recorded.
func (r *Receipt) Settled() bool {
	return r.ActionID != "" && len(r.Payload) > 0
}
