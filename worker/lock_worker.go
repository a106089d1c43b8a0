package worker

import (
	"context"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/wayBiggger/way-bigger/models"
)

// LockWorker releases file edit locks whose holders went away without
// unlocking. Locks older than the timeout are treated as abandoned.
type LockWorker struct {
	DB          *gorm.DB
	LockTimeout time.Duration
	Logger      *log.Logger
}

func NewLockWorker(db *gorm.DB, lockTimeoutSeconds int, logger *log.Logger) *LockWorker {
	return &LockWorker{
		DB:          db,
		LockTimeout: time.Duration(lockTimeoutSeconds) * time.Second,
		Logger:      logger,
	}
}

func (lw *LockWorker) Start(ctx context.Context) {
	// Initial delay to let the server start up
	time.Sleep(5 * time.Second)

	lw.Logger.Println("Lock worker started")

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			lw.Logger.Println("Lock worker shutting down...")
			return
		case <-ticker.C:
			lw.releaseExpiredLocks()
		}
	}
}

func (lw *LockWorker) releaseExpiredLocks() {
	cutoff := time.Now().UTC().Add(-lw.LockTimeout)

	result := lw.DB.Model(&models.ProjectFile{}).
		Where("is_locked = ? AND locked_at < ?", true, cutoff).
		Updates(map[string]interface{}{
			"is_locked": false,
			"locked_by": nil,
			"locked_at": nil,
		})
	if result.Error != nil {
		lw.Logger.Printf("Error releasing expired locks: %v", result.Error)
		return
	}
	if result.RowsAffected > 0 {
		lw.Logger.Printf("Released %d expired file locks", result.RowsAffected)
	}
}
