package database

import (
	"context"
	"database/sql"
	"fmt"

	"salonbook/internal/models"

	"github.com/google/uuid"
)

// CreateAbsence records an unavailability window. An empty ProviderID
// marks the whole shop as closed for the window.
func (db *DB) CreateAbsence(ctx context.Context, a *models.AbsenceWindow) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}

	query := `INSERT INTO absences (id, provider_id, date, start_time, end_time, note)
	          VALUES (?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, query,
		a.ID, a.ProviderID, a.Date, a.StartTime, a.EndTime, a.Note)
	if err != nil {
		return fmt.Errorf("failed to create absence: %w", err)
	}
	return nil
}

// DeleteAbsence removes an unavailability window.
func (db *DB) DeleteAbsence(ctx context.Context, id string) error {
	result, err := db.ExecContext(ctx, `DELETE FROM absences WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete absence: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ListAbsences returns the windows blocking a provider on a date:
// the provider's own rows plus shop-wide rows (empty provider_id).
func (db *DB) ListAbsences(ctx context.Context, providerID, date string) ([]models.AbsenceWindow, error) {
	query := `SELECT id, provider_id, date, start_time, end_time, note FROM absences
	          WHERE date = ? AND (provider_id = ? OR provider_id = '')
	          ORDER BY start_time ASC`
	rows, err := db.QueryContext(ctx, query, date, providerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list absences: %w", err)
	}
	defer rows.Close()

	var out []models.AbsenceWindow
	for rows.Next() {
		var (
			a    models.AbsenceWindow
			note sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.ProviderID, &a.Date, &a.StartTime, &a.EndTime, &note); err != nil {
			return nil, fmt.Errorf("failed to scan absence: %w", err)
		}
		a.Note = note.String
		out = append(out, a)
	}
	return out, rows.Err()
}
