package services

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"vpn-shop-bot/internal/logger"
)

// Backuper writes a consistent copy of the database to path
type Backuper interface {
	Backup(ctx context.Context, path string) error
}

// BackupService snapshots the database and sends it to admins
type BackupService struct {
	store  Backuper
	bot    Messenger
	admins []int64
	dir    string
	logger *logger.Logger
	now    func() time.Time
}

// NewBackupService creates a new backup service
func NewBackupService(store Backuper, bot Messenger, admins []int64, dir string, log *logger.Logger) *BackupService {
	return &BackupService{
		store:  store,
		bot:    bot,
		admins: admins,
		dir:    dir,
		logger: log,
		now:    time.Now,
	}
}

// PerformBackup writes a snapshot into the backup directory and sends it to every admin.
// It returns the snapshot path.
func (s *BackupService) PerformBackup(ctx context.Context) (string, error) {
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create backup dir: %w", err)
	}

	stamp := s.now()
	path := filepath.Join(s.dir, fmt.Sprintf("vpnbot_%s.db", stamp.Format("2006-01-02_15-04-05")))
	if err := s.store.Backup(ctx, path); err != nil {
		return "", fmt.Errorf("failed to back up database: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read backup: %w", err)
	}
	s.logger.WithFields(map[string]interface{}{
		"path": path,
		"size": len(data),
	}).Info("Database backup written")

	for _, adminID := range s.admins {
		if err := s.SendBackupToAdmin(ctx, adminID, filepath.Base(path), data, stamp); err != nil {
			s.logger.WithFields(map[string]interface{}{
				"admin_id": adminID,
				"error":    err.Error(),
			}).Error("Failed to send backup to admin")
			continue
		}
		s.logger.WithField("admin_id", adminID).Info("Backup sent to admin")
	}

	return path, nil
}

// SendBackupToAdmin sends backup file to a specific admin
func (s *BackupService) SendBackupToAdmin(ctx context.Context, adminID int64, filename string, data []byte, at time.Time) error {
	_, err := s.bot.SendDocument(ctx, &telego.SendDocumentParams{
		ChatID:   tu.ID(adminID),
		Document: telego.InputFile{
			File: tu.NameReader(bytes.NewReader(data), filename),
		},
		Caption: fmt.Sprintf("📦 <b>پشتیبان پایگاه داده</b>\n\n🕐 زمان: %s\n💾 حجم: %.2f MB",
			at.Format("2006-01-02 15:04:05"), float64(len(data))/1024/1024),
		ParseMode: "HTML",
	})
	return err
}
