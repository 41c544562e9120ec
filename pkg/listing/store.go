package listing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"dbrouter/pkg/datastore"
	"dbrouter/pkg/models"

	"github.com/google/uuid"
)

// categoryPattern matches lowercase slugs such as "bikes" or "home-garden".
var categoryPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,30}[a-z0-9]$`)

const listingColumns = `id, owner_id, title, description, category, price_cents, view_count, created_at, updated_at, last_viewed_at`

// Store keeps marketplace listings. It only sees a datastore.Handle, so it
// works the same over one database or the storage router's proxy.
type Store struct {
	db datastore.Handle
}

// ListOptions filters a listing query.
type ListOptions struct {
	Category string
	OwnerID  string
	Limit    int
}

// NewStore creates a listing store over handle.
func NewStore(handle datastore.Handle) *Store {
	return &Store{db: handle}
}

// EnsureSchema creates the listing tables on handle if they are missing.
func EnsureSchema(ctx context.Context, handle datastore.Handle) error {
	if _, err := handle.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("%w: failed to initialize schema: %w", ErrDatabaseError, err)
	}
	return nil
}

// Validate checks client supplied listing fields.
func Validate(input models.ListingInput) error {
	title := strings.TrimSpace(input.Title)
	if title == "" || len(title) > titleMaxLength {
		return fmt.Errorf("%w: title must be 1-%d characters", ErrInvalidListing, titleMaxLength)
	}
	if len(input.Description) > descriptionMaxLength {
		return fmt.Errorf("%w: description is longer than %d characters", ErrInvalidListing, descriptionMaxLength)
	}
	if !categoryPattern.MatchString(input.Category) {
		return fmt.Errorf("%w: category must be a lowercase slug", ErrInvalidListing)
	}
	if input.PriceCents < 0 {
		return fmt.Errorf("%w: price must not be negative", ErrInvalidListing)
	}
	return nil
}

// Create stores a new listing owned by ownerID.
func (s *Store) Create(ctx context.Context, ownerID string, input models.ListingInput) (*models.Listing, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner is required", ErrInvalidListing)
	}
	if err := Validate(input); err != nil {
		return nil, err
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	listingRecord := &models.Listing{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Title:       strings.TrimSpace(input.Title),
		Description: input.Description,
		Category:    input.Category,
		PriceCents:  input.PriceCents,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO listings (id, owner_id, title, description, category, price_cents, view_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		listingRecord.ID, listingRecord.OwnerID, listingRecord.Title, listingRecord.Description,
		listingRecord.Category, listingRecord.PriceCents, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}

	return listingRecord, nil
}

// Get retrieves a listing by ID.
func (s *Store) Get(ctx context.Context, id string) (*models.Listing, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrListingNotFound
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
		}
		return nil, ErrListingNotFound
	}

	listingRecord, err := scanListing(rows)
	if err != nil {
		return nil, err
	}
	return listingRecord, nil
}

// List returns listings, newest first.
func (s *Store) List(ctx context.Context, opts *ListOptions) ([]models.Listing, error) {
	limit := defaultListLimit
	query := `SELECT ` + listingColumns + ` FROM listings WHERE 1 = 1`
	var args []interface{}

	if opts != nil {
		if opts.Category != "" {
			query += ` AND category = ?`
			args = append(args, opts.Category)
		}
		if opts.OwnerID != "" {
			query += ` AND owner_id = ?`
			args = append(args, opts.OwnerID)
		}
		if opts.Limit > 0 && opts.Limit <= maxListLimit {
			limit = opts.Limit
		}
	}

	query += ` ORDER BY created_at DESC, id LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	defer func() { _ = rows.Close() }()

	listings := []models.Listing{}
	for rows.Next() {
		listingRecord, scanErr := scanListing(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		listings = append(listings, *listingRecord)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}

	return listings, nil
}

// Delete removes a listing. Only its owner may delete it.
func (s *Store) Delete(ctx context.Context, id, ownerID string) error {
	listingRecord, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if listingRecord.OwnerID != ownerID {
		return ErrAccessDenied
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM listings WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	if rowsAffected == 0 {
		return ErrListingNotFound
	}
	return nil
}

// RecordView bumps the view counter and last viewed timestamp.
func (s *Store) RecordView(ctx context.Context, id string, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE listings SET view_count = view_count + 1, last_viewed_at = ? WHERE id = ?`,
		at.UTC().Truncate(time.Microsecond), id,
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	if rowsAffected == 0 {
		return ErrListingNotFound
	}
	return nil
}

func scanListing(rows *sql.Rows) (*models.Listing, error) {
	var (
		listingRecord models.Listing
		lastViewedAt  sql.NullTime
	)
	err := rows.Scan(
		&listingRecord.ID, &listingRecord.OwnerID, &listingRecord.Title, &listingRecord.Description,
		&listingRecord.Category, &listingRecord.PriceCents, &listingRecord.ViewCount,
		&listingRecord.CreatedAt, &listingRecord.UpdatedAt, &lastViewedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}

	if lastViewedAt.Valid {
		viewed := lastViewedAt.Time
		listingRecord.LastViewedAt = &viewed
	}
	return &listingRecord, nil
}

// IsNotFound reports whether err means the listing does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrListingNotFound)
}
