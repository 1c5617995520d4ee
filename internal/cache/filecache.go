package cache

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// FileRecord is the ledger entry for one synchronized file.
type FileRecord struct {
	ID        uint      `gorm:"primarykey"`
	Path      string    `gorm:"uniqueIndex;not null"`
	Hash      string    `gorm:"not null"`
	Size      int64     `gorm:"not null"`
	ModTime   time.Time `gorm:"not null"`
	LastSync  time.Time `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Ledger records the last-synchronized content hash per local file so
// unchanged files can be skipped on subsequent transfers.
type Ledger struct {
	db *gorm.DB
}

// Open opens (or creates) the ledger database at dbPath.
func Open(dbPath string) (*Ledger, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}
	if err := db.AutoMigrate(&FileRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate ledger schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

// RecordSync stores the current hash, size and mtime of path as its
// last-synchronized state.
func (l *Ledger) RecordSync(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	hash, err := HashFile(path)
	if err != nil {
		return err
	}

	rec := FileRecord{
		Path:     path,
		Hash:     hash,
		Size:     info.Size(),
		ModTime:  info.ModTime(),
		LastSync: time.Now(),
	}
	result := l.db.Where("path = ?", path).Assign(rec).FirstOrCreate(&FileRecord{})
	if result.Error != nil {
		return fmt.Errorf("failed to record sync for %s: %w", path, result.Error)
	}
	return nil
}

// NeedsSync reports whether path differs from its last-synchronized
// state. Unknown paths always need a sync.
func (l *Ledger) NeedsSync(path string) (bool, error) {
	var rec FileRecord
	result := l.db.Where("path = ?", path).First(&rec)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return true, nil
	}
	if result.Error != nil {
		return true, fmt.Errorf("failed to query ledger for %s: %w", path, result.Error)
	}

	info, err := os.Stat(path)
	if err != nil {
		return true, nil
	}
	// cheap checks first; hash only when size and mtime are unchanged
	if info.Size() != rec.Size || !info.ModTime().Equal(rec.ModTime) {
		hash, err := HashFile(path)
		if err != nil {
			return true, nil
		}
		return hash != rec.Hash, nil
	}
	return false, nil
}

// Forget removes the record for path, if any.
func (l *Ledger) Forget(path string) error {
	result := l.db.Unscoped().Where("path = ?", path).Delete(&FileRecord{})
	return result.Error
}

// Reset clears every record.
func (l *Ledger) Reset() error {
	result := l.db.Unscoped().Delete(&FileRecord{}, "1 = 1")
	if result.Error != nil {
		return fmt.Errorf("failed to reset ledger: %w", result.Error)
	}
	return nil
}

// Close releases the underlying database handle.
func (l *Ledger) Close() error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// HashFile computes the xxhash digest of a file's content.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
