package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/saga-it/qyburn/internal/models"
	"github.com/saga-it/qyburn/internal/store"
)

func licenseID(l *models.License) string { return l.ID }

// ListLicenses returns all licenses in catalog order.
func (s *Store) ListLicenses(ctx context.Context) ([]*models.License, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.License, 0, len(s.licenses))
	for _, l := range s.licenses {
		result = append(result, cloneLicense(l))
	}
	return result, nil
}

// GetLicense retrieves a license by ID.
func (s *Store) GetLicense(ctx context.Context, id string) (*models.License, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := indexByID(s.licenses, id, licenseID)
	if idx == -1 {
		return nil, fmt.Errorf("%w: %s", store.ErrLicenseNotFound, id)
	}
	return cloneLicense(s.licenses[idx]), nil
}

// CreateLicense appends a license to the catalog, assigning an ID and timestamps when unset.
func (s *Store) CreateLicense(ctx context.Context, license *models.License) error {
	if err := store.ValidateLicense(license); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if license.ID == "" {
		license.ID = newID()
	}
	if license.CreatedAt.IsZero() {
		license.CreatedAt = s.now()
	}
	if license.UpdatedAt.IsZero() {
		license.UpdatedAt = license.CreatedAt
	}

	s.licenses = append(s.licenses, cloneLicense(license))
	return nil
}

// UpdateLicense replaces the editable fields of an existing license and
// refreshes UpdatedAt. UsedSeats keeps the stored value; only ClaimSeat and
// ReleaseSeat change it.
func (s *Store) UpdateLicense(ctx context.Context, license *models.License) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := indexByID(s.licenses, license.ID, licenseID)
	if idx == -1 {
		return fmt.Errorf("%w: %s", store.ErrLicenseNotFound, license.ID)
	}

	license.UsedSeats = s.licenses[idx].UsedSeats
	if license.TotalSeats < license.UsedSeats {
		return store.Invalid("totalSeats", "must not be below used seats")
	}
	if err := store.ValidateLicense(license); err != nil {
		return err
	}

	license.CreatedAt = s.licenses[idx].CreatedAt
	license.UpdatedAt = s.now()
	s.licenses[idx] = cloneLicense(license)
	return nil
}

// DeleteLicense removes a license and its assignments.
func (s *Store) DeleteLicense(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := indexByID(s.licenses, id, licenseID)
	if idx == -1 {
		return fmt.Errorf("%w: %s", store.ErrLicenseNotFound, id)
	}
	s.licenses = slices.Delete(s.licenses, idx, idx+1)
	s.assignments = slices.DeleteFunc(s.assignments, func(a *models.LicenseAssignment) bool {
		return a.LicenseID == id
	})
	return nil
}

// ClaimSeat increments UsedSeats and records the assignment.
func (s *Store) ClaimSeat(ctx context.Context, assignment *models.LicenseAssignment) (*models.License, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := indexByID(s.licenses, assignment.LicenseID, licenseID)
	if idx == -1 {
		return nil, fmt.Errorf("%w: %s", store.ErrLicenseNotFound, assignment.LicenseID)
	}
	license := s.licenses[idx]

	for _, a := range s.assignments {
		if a.LicenseID == license.ID && strings.EqualFold(a.UserEmail, assignment.UserEmail) {
			return nil, fmt.Errorf("%w: %s", store.ErrAlreadyAssigned, assignment.UserEmail)
		}
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

	license.UsedSeats++
	license.UpdatedAt = s.now()
	clone := *assignment
	s.assignments = append(s.assignments, &clone)

	log.Debug().Str("license_id", license.ID).Str("user", assignment.UserEmail).Int("used_seats", license.UsedSeats).Msg("Claimed license seat")
	return cloneLicense(license), nil
}

// ReleaseSeat removes the user's assignment and decrements UsedSeats.
func (s *Store) ReleaseSeat(ctx context.Context, id, userEmail string) (*models.License, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := indexByID(s.licenses, id, licenseID)
	if idx == -1 {
		return nil, fmt.Errorf("%w: %s", store.ErrLicenseNotFound, id)
	}
	license := s.licenses[idx]

	aidx := slices.IndexFunc(s.assignments, func(a *models.LicenseAssignment) bool {
		return a.LicenseID == id && strings.EqualFold(a.UserEmail, userEmail)
	})
	if aidx == -1 {
		return nil, fmt.Errorf("%w: %s on %s", store.ErrAssignmentNotFound, userEmail, id)
	}
	s.assignments = slices.Delete(s.assignments, aidx, aidx+1)

	if license.UsedSeats > 0 {
		license.UsedSeats--
	}
	license.UpdatedAt = s.now()

	log.Debug().Str("license_id", id).Str("user", userEmail).Int("used_seats", license.UsedSeats).Msg("Released license seat")
	return cloneLicense(license), nil
}

// ListAssignments returns the assignments of a license, or all assignments when licenseID is empty.
func (s *Store) ListAssignments(ctx context.Context, licenseID string) ([]*models.LicenseAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.LicenseAssignment
	for _, a := range s.assignments {
		if licenseID != "" && a.LicenseID != licenseID {
			continue
		}
		clone := *a
		result = append(result, &clone)
	}
	return result, nil
}
