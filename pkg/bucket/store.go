// Package bucket keeps the key -> content hash index for the object store in SQLite.
package bucket

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"sitewatch/pkg/models"

	_ "modernc.org/sqlite"
)

// bucketNamePattern defines the valid format for bucket names.
// Bucket names must be 3-63 characters, lowercase alphanumeric, and can contain hyphens.
var bucketNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,61}[a-z0-9]$|^[a-z0-9]{3}$`)

// Store manages bucket and object metadata in SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// ListOptions contains options for listing objects.
type ListOptions struct {
	Prefix  string
	MaxKeys int
	// Cursor is the last key of the previous page.
	Cursor string
}

// NewStore creates a new bucket store with the given database path.
func NewStore(dbPath string) (*Store, error) {
	database, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %w", ErrDatabaseError, err)
	}

	ctx := context.Background()

	if _, err := database.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("%w: failed to enable foreign keys: %w", ErrDatabaseError, err)
	}

	// WAL lets status reads proceed while a check run is writing.
	if _, err := database.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("%w: failed to enable WAL mode: %w", ErrDatabaseError, err)
	}

	store := &Store{db: database}
	if err := store.Initialize(ctx); err != nil {
		_ = database.Close()
		return nil, err
	}

	return store, nil
}

// Initialize creates the database schema.
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("%w: failed to initialize schema: %w", ErrDatabaseError, err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ValidateBucketName checks if the bucket name is valid.
func ValidateBucketName(name string) error {
	if len(name) < bucketNameMinLength || len(name) > bucketNameMaxLength {
		return ErrInvalidBucketName
	}
	if !bucketNamePattern.MatchString(name) {
		return ErrInvalidBucketName
	}
	return nil
}

// CreateBucket creates a new bucket.
func (s *Store) CreateBucket(ctx context.Context, name string) (*models.Bucket, error) {
	if err := ValidateBucketName(name); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	result, err := s.db.ExecContext(ctx, `INSERT INTO buckets (name, created_at) VALUES (?, ?)`, name, now)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, ErrBucketExists
		}
		return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}

	bucketID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}

	return &models.Bucket{ID: bucketID, Name: name, CreatedAt: now}, nil
}

// EnsureBucket returns the named bucket, creating it when missing.
func (s *Store) EnsureBucket(ctx context.Context, name string) (*models.Bucket, error) {
	bucketRecord, err := s.CreateBucket(ctx, name)
	if errors.Is(err, ErrBucketExists) {
		return s.GetBucket(ctx, name)
	}
	return bucketRecord, err
}

// GetBucket retrieves a bucket by name together with its object count and size.
func (s *Store) GetBucket(ctx context.Context, name string) (*models.Bucket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bucketRecord := &models.Bucket{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM buckets WHERE name = ?`,
		name,
	).Scan(&bucketRecord.ID, &bucketRecord.Name, &bucketRecord.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBucketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(size), 0) FROM objects WHERE bucket_id = ?`,
		bucketRecord.ID,
	).Scan(&bucketRecord.ObjectCount, &bucketRecord.TotalSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}

	return bucketRecord, nil
}

// bucketID resolves a bucket name. Callers hold s.mu.
func (s *Store) bucketID(ctx context.Context, name string) (int64, error) {
	var bucketID int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM buckets WHERE name = ?`, name).Scan(&bucketID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrBucketNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	return bucketID, nil
}

// PutObject points key at hash, replacing any previous mapping. created_at survives
// overwrites.
func (s *Store) PutObject(ctx context.Context, bucketName, key, hash string, size int64, contentType string) (*models.BucketObject, error) {
	if len(hash) != hashLength {
		return nil, fmt.Errorf("%w: invalid hash length", ErrDatabaseError)
	}
	if key == "" {
		return nil, ErrInvalidKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	bucketID, err := s.bucketID(ctx, bucketName)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO objects (bucket_id, key, hash, size, content_type, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(bucket_id, key) DO UPDATE SET
		 hash = excluded.hash,
		 size = excluded.size,
		 content_type = excluded.content_type,
		 updated_at = excluded.updated_at`,
		bucketID, key, hash, size, contentType, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}

	return s.getObject(ctx, bucketID, key)
}

// GetObject retrieves an object by bucket name and key.
func (s *Store) GetObject(ctx context.Context, bucketName, key string) (*models.BucketObject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bucketID, err := s.bucketID(ctx, bucketName)
	if err != nil {
		return nil, err
	}

	return s.getObject(ctx, bucketID, key)
}

func (s *Store) getObject(ctx context.Context, bucketID int64, key string) (*models.BucketObject, error) {
	obj := &models.BucketObject{BucketID: bucketID}
	var objContentType sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, key, hash, size, content_type, created_at, updated_at
		 FROM objects WHERE bucket_id = ? AND key = ?`,
		bucketID, key,
	).Scan(&obj.ID, &obj.Key, &obj.Hash, &obj.Size, &objContentType, &obj.CreatedAt, &obj.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}

	obj.ContentType = objContentType.String
	return obj, nil
}

// DeleteObject removes an object from a bucket. Whether the content can go as well is
// up to the caller, see IsHashReferenced.
func (s *Store) DeleteObject(ctx context.Context, bucketName, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucketID, err := s.bucketID(ctx, bucketName)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM objects WHERE bucket_id = ? AND key = ?`, bucketID, key)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}

	if rowsAffected == 0 {
		return ErrObjectNotFound
	}

	return nil
}

// IsHashReferenced reports whether any key in any bucket still points at hash.
func (s *Store) IsHashReferenced(ctx context.Context, hash string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM objects WHERE hash = ?)`, hash).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	return exists, nil
}

// ListObjects lists objects in a bucket ordered by key, with optional prefix and
// key-based pagination.
func (s *Store) ListObjects(ctx context.Context, bucketName string, opts *ListOptions) (*models.ObjectListResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bucketID, err := s.bucketID(ctx, bucketName)
	if err != nil {
		return nil, err
	}

	if opts == nil {
		opts = &ListOptions{}
	}

	maxKeys := defaultMaxKeys
	if opts.MaxKeys > 0 && opts.MaxKeys < defaultMaxKeys {
		maxKeys = opts.MaxKeys
	}

	query := `SELECT id, key, hash, size, content_type, created_at, updated_at
	          FROM objects WHERE bucket_id = ?`
	args := []interface{}{bucketID}

	if opts.Prefix != "" {
		query += ` AND substr(key, 1, length(?)) = ?`
		args = append(args, opts.Prefix, opts.Prefix)
	}

	if opts.Cursor != "" {
		query += ` AND key > ?`
		args = append(args, opts.Cursor)
	}

	query += ` ORDER BY key LIMIT ?`
	args = append(args, maxKeys+1) // one extra tells whether another page exists

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	defer func() { _ = rows.Close() }()

	objects := []models.BucketObject{}
	for rows.Next() {
		var (
			obj            models.BucketObject
			objContentType sql.NullString
		)
		obj.BucketID = bucketID

		if scanErr := rows.Scan(&obj.ID, &obj.Key, &obj.Hash, &obj.Size, &objContentType, &obj.CreatedAt, &obj.UpdatedAt); scanErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrDatabaseError, scanErr)
		}
		obj.ContentType = objContentType.String
		objects = append(objects, obj)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}

	response := &models.ObjectListResponse{Objects: objects, Prefix: opts.Prefix}
	if len(objects) > maxKeys {
		response.Objects = objects[:maxKeys]
		response.IsTruncated = true
		response.NextCursor = objects[maxKeys-1].Key
	}

	return response, nil
}
