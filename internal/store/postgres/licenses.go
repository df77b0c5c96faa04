package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
	"github.com/saga-it/qyburn/internal/models"
	"github.com/saga-it/qyburn/internal/store"
)

const licenseColumns = `id, name, vendor, sku, total_seats, used_seats, cost_per_seat, auto_approve, description, created_at, updated_at`

func scanLicense(row rowScanner) (*models.License, error) {
	var l models.License
	err := row.Scan(
		&l.ID,
		&l.Name,
		&l.Vendor,
		&l.SKU,
		&l.TotalSeats,
		&l.UsedSeats,
		&l.CostPerSeat,
		&l.AutoApprove,
		&l.Description,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// ListLicenses returns all licenses in catalog order.
func (s *Store) ListLicenses(ctx context.Context) ([]*models.License, error) {
	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `SELECT `+licenseColumns+` FROM licenses ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to list licenses: %w", mapPostgresError(err))
	}
	defer rows.Close()

	result := []*models.License{}
	for rows.Next() {
		l, err := scanLicense(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan license: %w", err)
		}
		result = append(result, l)
	}
	return result, rows.Err()
}

// GetLicense retrieves a license by ID.
func (s *Store) GetLicense(ctx context.Context, id string) (*models.License, error) {
	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	l, err := scanLicense(s.pool.QueryRow(ctx, `SELECT `+licenseColumns+` FROM licenses WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrLicenseNotFound, id)
		}
		return nil, fmt.Errorf("failed to get license: %w", mapPostgresError(err))
	}
	return l, nil
}

// CreateLicense inserts a license, assigning an ID and timestamps when unset.
func (s *Store) CreateLicense(ctx context.Context, license *models.License) error {
	if err := store.ValidateLicense(license); err != nil {
		return err
	}

	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	if license.ID == "" {
		license.ID = newID()
	}
	if license.CreatedAt.IsZero() {
		license.CreatedAt = s.now()
	}
	if license.UpdatedAt.IsZero() {
		license.UpdatedAt = license.CreatedAt
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO licenses (`+licenseColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		license.ID,
		license.Name,
		license.Vendor,
		license.SKU,
		license.TotalSeats,
		license.UsedSeats,
		license.CostPerSeat,
		license.AutoApprove,
		license.Description,
		license.CreatedAt,
		license.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create license: %w", mapPostgresError(err))
	}

	log.Debug().Str("license_id", license.ID).Str("name", license.Name).Msg("Created license")
	return nil
}

// UpdateLicense locks the license row and replaces its editable fields.
// UsedSeats is owned by ClaimSeat and ReleaseSeat and is read back from the row.
func (s *Store) UpdateLicense(ctx context.Context, license *models.License) error {
	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback is safe to call after commit

	var usedSeats int
	err = tx.QueryRow(ctx, `SELECT used_seats FROM licenses WHERE id = $1 FOR UPDATE`, license.ID).Scan(&usedSeats)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s", store.ErrLicenseNotFound, license.ID)
		}
		return fmt.Errorf("failed to lock license: %w", mapPostgresError(err))
	}

	license.UsedSeats = usedSeats
	if license.TotalSeats < license.UsedSeats {
		return store.Invalid("totalSeats", "must not be below used seats")
	}
	if err := store.ValidateLicense(license); err != nil {
		return err
	}

	license.UpdatedAt = s.now()
	err = tx.QueryRow(ctx, `
		UPDATE licenses
		SET name = $2, vendor = $3, sku = $4, total_seats = $5,
			cost_per_seat = $6, auto_approve = $7, description = $8, updated_at = $9
		WHERE id = $1
		RETURNING created_at
	`,
		license.ID,
		license.Name,
		license.Vendor,
		license.SKU,
		license.TotalSeats,
		license.CostPerSeat,
		license.AutoApprove,
		license.Description,
		license.UpdatedAt,
	).Scan(&license.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to update license: %w", mapPostgresError(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit license update: %w", mapPostgresError(err))
	}
	return nil
}

// DeleteLicense removes a license and its assignments.
func (s *Store) DeleteLicense(ctx context.Context, id string) error {
	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `DELETE FROM licenses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete license: %w", mapPostgresError(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", store.ErrLicenseNotFound, id)
	}
	return nil
}

// ClaimSeat locks the license row, checks for an existing assignment and free
// capacity, then records the assignment and increments UsedSeats.
func (s *Store) ClaimSeat(ctx context.Context, assignment *models.LicenseAssignment) (*models.License, error) {
	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback is safe to call after commit

	license, err := scanLicense(tx.QueryRow(ctx, `SELECT `+licenseColumns+` FROM licenses WHERE id = $1 FOR UPDATE`, assignment.LicenseID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrLicenseNotFound, assignment.LicenseID)
		}
		return nil, fmt.Errorf("failed to lock license: %w", mapPostgresError(err))
	}

	var assigned bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM license_assignments WHERE license_id = $1 AND lower(user_email) = lower($2)
		)
	`, license.ID, assignment.UserEmail).Scan(&assigned)
	if err != nil {
		return nil, fmt.Errorf("failed to check assignment: %w", mapPostgresError(err))
	}
	if assigned {
		return nil, fmt.Errorf("%w: %s", store.ErrAlreadyAssigned, assignment.UserEmail)
	}

	if license.IsFull() {
		return nil, fmt.Errorf("%w: %s (%d/%d)", store.ErrNoSeatsAvailable, license.Name, license.UsedSeats, license.TotalSeats)
	}

	if assignment.ID == "" {
		assignment.ID = newID()
	}
	if assignment.AssignedAt.IsZero() {
		assignment.AssignedAt = s.now()
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO license_assignments (id, license_id, user_id, user_email, assigned_at, assigned_by)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, assignment.ID, license.ID, assignment.UserID, assignment.UserEmail, assignment.AssignedAt, assignment.AssignedBy)
	if err != nil {
		return nil, fmt.Errorf("failed to record assignment: %w", mapPostgresError(err))
	}

	updated, err := scanLicense(tx.QueryRow(ctx, `
		UPDATE licenses SET used_seats = used_seats + 1, updated_at = $2
		WHERE id = $1
		RETURNING `+licenseColumns, license.ID, s.now()))
	if err != nil {
		return nil, fmt.Errorf("failed to claim seat: %w", mapPostgresError(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit seat claim: %w", mapPostgresError(err))
	}

	log.Debug().Str("license_id", updated.ID).Str("user", assignment.UserEmail).Int("used_seats", updated.UsedSeats).Msg("Claimed license seat")
	return updated, nil
}

// ReleaseSeat removes the user's assignment and decrements UsedSeats.
func (s *Store) ReleaseSeat(ctx context.Context, id, userEmail string) (*models.License, error) {
	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback is safe to call after commit

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM licenses WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check license: %w", mapPostgresError(err))
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", store.ErrLicenseNotFound, id)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM license_assignments WHERE license_id = $1 AND lower(user_email) = lower($2)`, id, userEmail)
	if err != nil {
		return nil, fmt.Errorf("failed to delete assignment: %w", mapPostgresError(err))
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("%w: %s on %s", store.ErrAssignmentNotFound, userEmail, id)
	}

	updated, err := scanLicense(tx.QueryRow(ctx, `
		UPDATE licenses SET used_seats = GREATEST(used_seats - 1, 0), updated_at = $2
		WHERE id = $1
		RETURNING `+licenseColumns, id, s.now()))
	if err != nil {
		return nil, fmt.Errorf("failed to release seat: %w", mapPostgresError(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit seat release: %w", mapPostgresError(err))
	}

	log.Debug().Str("license_id", id).Str("user", userEmail).Int("used_seats", updated.UsedSeats).Msg("Released license seat")
	return updated, nil
}

// ListAssignments returns the assignments of a license, or all assignments when licenseID is empty.
func (s *Store) ListAssignments(ctx context.Context, licenseID string) ([]*models.LicenseAssignment, error) {
	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT id, license_id, user_id, user_email, assigned_at, assigned_by
		FROM license_assignments
		WHERE $1 = '' OR license_id = $1
		ORDER BY seq
	`, licenseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", mapPostgresError(err))
	}

	result, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.LicenseAssignment, error) {
		var a models.LicenseAssignment
		err := row.Scan(&a.ID, &a.LicenseID, &a.UserID, &a.UserEmail, &a.AssignedAt, &a.AssignedBy)
		return &a, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan assignments: %w", err)
	}
	return result, nil
}
