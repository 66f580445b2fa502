package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/javierd009/concierge/internal/database/models"
)

type visitorRepo struct {
	db dbTx
}

// NewVisitorRepository creates a new VisitorRepository.
func NewVisitorRepository(db dbTx) VisitorRepository {
	return &visitorRepo{db: db}
}

func (r *visitorRepo) Create(ctx context.Context, v *models.Visitor) error {
	points, err := json.Marshal(v.AllowedPoints)
	if err != nil {
		return fmt.Errorf("marshaling allowed points: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO visitors (id, tenant_id, resident_id, name, plate, identification_num,
		 valid_from, valid_until, allowed_points, status, authorized_by_chan, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'), datetime('now'))`,
		v.ID, v.TenantID, v.ResidentID, v.Name, v.Plate, v.IdentificationNum,
		v.ValidFrom, v.ValidUntil, string(points), v.Status, v.AuthorizedByChan,
	)
	if err != nil {
		return fmt.Errorf("inserting visitor: %w", err)
	}
	return nil
}

func scanVisitor(row *sql.Row) (*models.Visitor, error) {
	var v models.Visitor
	var points string
	if err := row.Scan(&v.ID, &v.TenantID, &v.ResidentID, &v.Name, &v.Plate, &v.IdentificationNum,
		&v.ValidFrom, &v.ValidUntil, &points, &v.Status, &v.AuthorizedByChan, &v.CreatedAt, &v.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning visitor: %w", err)
	}
	if err := json.Unmarshal([]byte(points), &v.AllowedPoints); err != nil {
		return nil, fmt.Errorf("unmarshaling allowed points: %w", err)
	}
	return &v, nil
}

const visitorSelect = `SELECT id, tenant_id, resident_id, name, plate, identification_num,
		 valid_from, valid_until, allowed_points, status, authorized_by_chan, created_at, updated_at
		 FROM visitors`

func (r *visitorRepo) GetByID(ctx context.Context, tenantID, id string) (*models.Visitor, error) {
	return scanVisitor(r.db.QueryRowContext(ctx, visitorSelect+` WHERE tenant_id = ? AND id = ?`, tenantID, id))
}

// FindPreauthorized backs the check_preauthorized_visitor tool: the most
// recent approved visitor record matching the given name/resident/unit.
func (r *visitorRepo) FindPreauthorized(ctx context.Context, tenantID, visitorName, residentID, unit string) (*models.Visitor, error) {
	query := visitorSelect + ` WHERE tenant_id = ? AND status = ?`
	args := []any{tenantID, models.VisitorStatusApproved}
	if visitorName != "" {
		query += ` AND name = ?`
		args = append(args, visitorName)
	}
	if residentID != "" {
		query += ` AND resident_id = ?`
		args = append(args, residentID)
	}
	if unit != "" {
		query += ` AND resident_id IN (SELECT id FROM residents WHERE unit = ? AND tenant_id = ?)`
		args = append(args, unit, tenantID)
	}
	query += ` ORDER BY created_at DESC LIMIT 1`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying preauthorized visitor: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	var v models.Visitor
	var points string
	if err := rows.Scan(&v.ID, &v.TenantID, &v.ResidentID, &v.Name, &v.Plate, &v.IdentificationNum,
		&v.ValidFrom, &v.ValidUntil, &points, &v.Status, &v.AuthorizedByChan, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return nil, fmt.Errorf("scanning visitor row: %w", err)
	}
	if err := json.Unmarshal([]byte(points), &v.AllowedPoints); err != nil {
		return nil, fmt.Errorf("unmarshaling allowed points: %w", err)
	}
	return &v, nil
}
