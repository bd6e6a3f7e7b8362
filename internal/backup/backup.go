package backup

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	_ "modernc.org/sqlite"

	"github.com/dukerupert/cadence/internal/model"
	"github.com/dukerupert/cadence/internal/store"
)

var (
	// ErrDisabled is returned when no bucket or credentials are configured.
	ErrDisabled = errors.New("backup not configured")
	// ErrNotFound is returned for an unknown backup id.
	ErrNotFound = errors.New("backup not found")
	// ErrIncomplete is returned when restoring a backup that never finished uploading.
	ErrIncomplete = errors.New("backup did not complete")
)

// objectStore is the subset of the S3 client used here.
type objectStore interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

// Config holds backup configuration.
type Config struct {
	S3 S3Config
	// Prefix is prepended to every object key.
	Prefix string
	// Passphrase enables client-side encryption when set.
	Passphrase    string
	RetentionDays int
}

// Enabled reports whether a bucket and credentials are configured.
func (c Config) Enabled() bool {
	return c.S3.Bucket != "" && c.S3.AccessKey != "" && c.S3.SecretKey != ""
}

// Manager snapshots the SQLite database and ships it to object storage.
type Manager struct {
	mu      sync.Mutex
	cfg     Config
	db      *sql.DB
	backups *store.BackupStore
	client  objectStore
	logger  *slog.Logger
	now     func() time.Time
}

// NewManager returns ErrDisabled when cfg has no bucket or credentials.
func NewManager(cfg Config, db *sql.DB, bs *store.BackupStore, logger *slog.Logger) (*Manager, error) {
	if !cfg.Enabled() {
		return nil, ErrDisabled
	}
	return newManager(cfg, db, bs, newS3Client(cfg.S3), logger), nil
}

func newManager(cfg Config, db *sql.DB, bs *store.BackupStore, client objectStore, logger *slog.Logger) *Manager {
	cfg.Prefix = strings.Trim(cfg.Prefix, "/")
	if cfg.RetentionDays < 1 {
		cfg.RetentionDays = 14
	}
	return &Manager{
		cfg:     cfg,
		db:      db,
		backups: bs,
		client:  client,
		logger:  logger,
		now:     time.Now,
	}
}

func newS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

func (m *Manager) objectKey(at time.Time) string {
	name := at.UTC().Format("2006-01-02T150405Z") + ".db"
	if m.cfg.Passphrase != "" {
		name += ".enc"
	}
	if m.cfg.Prefix == "" {
		return name
	}
	return m.cfg.Prefix + "/" + name
}

// Run takes a consistent snapshot with VACUUM INTO, encrypts it when a
// passphrase is configured, and uploads it. Concurrent calls are serialized.
func (m *Manager) Run(ctx context.Context) (*model.Backup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	record, err := m.backups.Create(m.objectKey(now), m.cfg.Passphrase != "", now)
	if err != nil {
		return nil, err
	}

	size, err := m.upload(ctx, record.ObjectKey)
	if err != nil {
		if markErr := m.backups.MarkFailed(record.ID, err.Error()); markErr != nil {
			m.logger.Error("mark backup failed", "id", record.ID, "error", markErr)
		}
		return nil, err
	}

	if err := m.backups.MarkCompleted(record.ID, size, m.now()); err != nil {
		return nil, err
	}
	m.logger.Info("backup uploaded", "key", record.ObjectKey, "bytes", size)
	return m.backups.GetByID(record.ID)
}

func (m *Manager) upload(ctx context.Context, key string) (int64, error) {
	dir, err := os.MkdirTemp("", "cadence-backup-")
	if err != nil {
		return 0, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	snapshot := filepath.Join(dir, "snapshot.db")
	if _, err := m.db.ExecContext(ctx, `VACUUM INTO ?`, snapshot); err != nil {
		return 0, fmt.Errorf("snapshot database: %w", err)
	}

	data, err := os.ReadFile(snapshot)
	if err != nil {
		return 0, fmt.Errorf("read snapshot: %w", err)
	}
	if m.cfg.Passphrase != "" {
		if data, err = Encrypt(data, m.cfg.Passphrase); err != nil {
			return 0, err
		}
	}

	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.cfg.S3.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return 0, fmt.Errorf("upload to s3: %w", err)
	}
	return int64(len(data)), nil
}

// Prune deletes backups older than the retention period from the bucket and
// the backup log. Objects that fail to delete are logged and skipped.
func (m *Manager) Prune(ctx context.Context) (int, error) {
	before := m.now().AddDate(0, 0, -m.cfg.RetentionDays)
	keys, err := m.backups.DeleteOlderThan(before)
	if err != nil {
		return 0, err
	}

	for _, key := range keys {
		if _, err := m.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(m.cfg.S3.Bucket),
			Key:    aws.String(key),
		}); err != nil {
			m.logger.Warn("delete backup object", "key", key, "error", err)
		}
	}
	return len(keys), nil
}

// RunAndPrune is the scheduled job: a fresh backup followed by pruning.
func (m *Manager) RunAndPrune(ctx context.Context) error {
	if _, err := m.Run(ctx); err != nil {
		return err
	}
	n, err := m.Prune(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		m.logger.Info("backups pruned", "deleted", n)
	}
	return nil
}

// List returns the most recent backups first.
func (m *Manager) List(limit int) ([]model.Backup, error) {
	return m.backups.List(limit)
}

// Restore downloads backup id, decrypts it if needed, checks its integrity
// and writes it to dst. dst must not exist; the live database is never
// touched.
func (m *Manager) Restore(ctx context.Context, id int64, dst string) error {
	record, err := m.backups.GetByID(id)
	if err != nil {
		return err
	}
	if record == nil {
		return ErrNotFound
	}
	if record.Status != model.BackupStatusCompleted {
		return ErrIncomplete
	}

	result, err := m.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.cfg.S3.Bucket),
		Key:    aws.String(record.ObjectKey),
	})
	if err != nil {
		return fmt.Errorf("download from s3: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return fmt.Errorf("read backup: %w", err)
	}
	if record.Encrypted {
		if m.cfg.Passphrase == "" {
			return errors.New("backup is encrypted but no passphrase is configured")
		}
		if data, err = Decrypt(data, m.cfg.Passphrase); err != nil {
			return err
		}
	}

	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("create restore target: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write restore target: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close restore target: %w", err)
	}

	return checkIntegrity(dst)
}

func checkIntegrity(path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open restored db: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}
