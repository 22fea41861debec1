package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"iapgate/core/receipt"
)

var (
	// ErrReceiptNotFound indicates the receipt id or order is unknown.
	ErrReceiptNotFound = errors.New("settlement: receipt not found")
	// ErrStateChanged is returned when a conditional update lost a race.
	ErrStateChanged = errors.New("settlement: receipt state changed concurrently")
)

// Update lists the columns written alongside a state transition. Zero
// values are left untouched.
type Update struct {
	Message       string
	ProductID     string
	PurchasedAt   time.Time
	StoreResponse []byte
}

func (u Update) columns(to receipt.State) map[string]any {
	cols := map[string]any{"status": to}
	if u.Message != "" {
		cols["message"] = u.Message
	}
	if u.ProductID != "" {
		cols["product_id"] = u.ProductID
	}
	if !u.PurchasedAt.IsZero() {
		cols["purchased_at"] = u.PurchasedAt
	}
	if len(u.StoreResponse) > 0 {
		cols["store_response"] = u.StoreResponse
	}
	return cols
}

// Store persists receipts. Every state change is a conditional UPDATE on the
// expected previous state, which is what makes concurrent workers safe.
// Timestamps are written in UTC; open the database with UTCNow as the gorm
// clock so automatic columns match.
type Store struct {
	db *gorm.DB
}

// UTCNow is the gorm NowFunc receipts are stored with.
func UTCNow() time.Time { return time.Now().UTC() }

// NewStore wraps db.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the receipts table.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&Receipt{})
}

// Get loads a receipt by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Receipt, error) {
	var rec Receipt
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReceiptNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// FindBy loads the receipt for a store order.
func (s *Store) FindBy(ctx context.Context, store receipt.Store, orderID string) (*Receipt, error) {
	var rec Receipt
	err := s.db.WithContext(ctx).First(&rec, "store = ? AND order_id = ?", store, orderID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReceiptNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// InsertIfAbsent stores rec unless its order is already known. It returns
// the stored row and whether it was created by this call.
func (s *Store) InsertIfAbsent(ctx context.Context, rec *Receipt) (*Receipt, bool, error) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "store"}, {Name: "order_id"}},
			DoNothing: true,
		}).
		Create(rec)
	if res.Error != nil {
		return nil, false, fmt.Errorf("settlement: insert receipt: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return rec, true, nil
	}
	existing, err := s.FindBy(ctx, rec.Store, rec.OrderID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// Transition moves a receipt from one state to another in a single
// conditional update. ErrStateChanged means the row was not in from.
func (s *Store) Transition(ctx context.Context, id uuid.UUID, from, to receipt.State, u Update) (*Receipt, error) {
	if err := receipt.CheckTransition(from, to); err != nil {
		return nil, fmt.Errorf("%w: %s -> %s", err, from, to)
	}
	var updated Receipt
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Receipt{}).
			Where("id = ? AND status = ?", id, from).
			Updates(u.columns(to))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrStateChanged
		}
		return tx.First(&updated, "id = ?", id).Error
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// RecordAttempt notes a retryable failure on a receipt still waiting for
// validation.
func (s *Store) RecordAttempt(ctx context.Context, id uuid.UUID, message string) error {
	res := s.db.WithContext(ctx).Model(&Receipt{}).
		Where("id = ? AND status = ?", id, receipt.StateValidationRequest).
		Updates(map[string]any{
			"message":  message,
			"attempts": gorm.Expr("attempts + 1"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStateChanged
	}
	return nil
}

// AssignAction records the settlement action of a VALID receipt. The first
// writer wins; later callers get the stored row back unchanged.
func (s *Store) AssignAction(ctx context.Context, id uuid.UUID, actionID, typeID string, payload []byte) (*Receipt, error) {
	var stored Receipt
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Receipt{}).
			Where("id = ? AND status = ? AND (action_id = '' OR action_id IS NULL)", id, receipt.StateValid).
			Updates(map[string]any{
				"action_id":   actionID,
				"action_type": typeID,
				"payload":     payload,
			})
		if res.Error != nil {
			return res.Error
		}
		if err := tx.First(&stored, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrReceiptNotFound
			}
			return err
		}
		if res.RowsAffected == 0 && !stored.Settled() {
			return ErrStateChanged
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// MarkAcknowledged stamps the store acknowledgement time once.
func (s *Store) MarkAcknowledged(ctx context.Context, id uuid.UUID, at time.Time) error {
	return s.db.WithContext(ctx).Model(&Receipt{}).
		Where("id = ? AND acknowledged_at IS NULL", id).
		Update("acknowledged_at", at).Error
}

// ListStale returns receipts that are not terminal and have not been touched
// since before, oldest first.
func (s *Store) ListStale(ctx context.Context, before time.Time, limit int) ([]Receipt, error) {
	var out []Receipt
	q := s.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", []receipt.State{receipt.StateInit, receipt.StateValidationRequest}, before.UTC()).
		Order("updated_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ListUnsettled returns VALID receipts without a recorded action that have
// not been touched since before, oldest first.
func (s *Store) ListUnsettled(ctx context.Context, before time.Time, limit int) ([]Receipt, error) {
	var out []Receipt
	q := s.db.WithContext(ctx).
		Where("status = ? AND (action_id = '' OR action_id IS NULL) AND updated_at < ?", receipt.StateValid, before.UTC()).
		Order("updated_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// CountValid counts VALID receipts of agent for product created at or after
// since. A zero since counts every receipt.
func (s *Store) CountValid(ctx context.Context, agent, productID string, since time.Time) (int64, error) {
	var n int64
	q := s.db.WithContext(ctx).Model(&Receipt{}).
		Where("status = ? AND agent_addr = ? AND product_id = ?", receipt.StateValid, agent, productID)
	if !since.IsZero() {
		q = q.Where("created_at >= ?", since.UTC())
	}
	if err := q.Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
