package cartstate

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/souqdev/souq/pkg/pricing"
)

// Store persists the guest cart between sessions. Authenticated carts are
// never persisted locally; the server is their durable store.
type Store interface {
	Save(items []pricing.Item) error
	Load() ([]pricing.Item, error)
	Clear() error
}

// guestCartKey is the well-known key the guest cart blob lives under.
const guestCartKey = "guest_cart"

type blobRow struct {
	Key  string `gorm:"primaryKey"`
	Data []byte `gorm:"not null"`
}

func (blobRow) TableName() string {
	return "cart_blobs"
}

// SQLiteStore keeps the guest cart as a single JSON blob row in a local
// sqlite file.
type SQLiteStore struct {
	db *gorm.DB
}

// OpenSQLiteStore opens (creating if needed) the local store at path.
// ":memory:" gives a throwaway store.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	if err := db.AutoMigrate(&blobRow{}); err != nil {
		return nil, fmt.Errorf("migrate local store: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Save(items []pricing.Item) error {
	if items == nil {
		items = []pricing.Item{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode guest cart: %w", err)
	}

	row := blobRow{Key: guestCartKey, Data: data}
	if err := s.db.Save(&row).Error; err != nil {
		return fmt.Errorf("save guest cart: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Load() ([]pricing.Item, error) {
	var row blobRow
	if err := s.db.First(&row, "key = ?", guestCartKey).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return []pricing.Item{}, nil
		}
		return nil, fmt.Errorf("load guest cart: %w", err)
	}

	var items []pricing.Item
	if err := json.Unmarshal(row.Data, &items); err != nil {
		return nil, fmt.Errorf("decode guest cart: %w", err)
	}
	return items, nil
}

func (s *SQLiteStore) Clear() error {
	if err := s.db.Delete(&blobRow{}, "key = ?", guestCartKey).Error; err != nil {
		return fmt.Errorf("clear guest cart: %w", err)
	}
	return nil
}
