package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/javierd009/concierge/internal/database/models"
)

type residentRepo struct {
	db dbTx
}

// NewResidentRepository creates a new ResidentRepository.
func NewResidentRepository(db dbTx) ResidentRepository {
	return &residentRepo{db: db}
}

func (r *residentRepo) Create(ctx context.Context, res *models.Resident) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO residents (id, tenant_id, phone, name, unit, building, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, datetime('now'), datetime('now'))`,
		res.ID, res.TenantID, res.Phone, res.Name, res.Unit, res.Building,
	)
	if err != nil {
		return fmt.Errorf("inserting resident: %w", err)
	}
	return nil
}

func (r *residentRepo) scanOne(row *sql.Row) (*models.Resident, error) {
	var res models.Resident
	if err := row.Scan(&res.ID, &res.TenantID, &res.Phone, &res.Name, &res.Unit, &res.Building, &res.CreatedAt, &res.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning resident: %w", err)
	}
	return &res, nil
}

func (r *residentRepo) GetByID(ctx context.Context, tenantID, id string) (*models.Resident, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, phone, name, unit, building, created_at, updated_at
		 FROM residents WHERE tenant_id = ? AND id = ?`, tenantID, id))
}

func (r *residentRepo) GetByPhone(ctx context.Context, phone string) (*models.Resident, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, phone, name, unit, building, created_at, updated_at
		 FROM residents WHERE phone = ?`, phone))
}

// FindByNameOrUnit supports the find_resident tool: fuzzy match on name
// and/or unit, capped at limit results.
func (r *residentRepo) FindByNameOrUnit(ctx context.Context, tenantID, name, unit string, limit int) ([]models.Resident, error) {
	query := `SELECT id, tenant_id, phone, name, unit, building, created_at, updated_at
		 FROM residents WHERE tenant_id = ?`
	args := []any{tenantID}
	if name != "" {
		query += ` AND name LIKE ?`
		args = append(args, "%"+name+"%")
	}
	if unit != "" {
		query += ` AND unit = ?`
		args = append(args, unit)
	}
	query += ` ORDER BY name LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying residents: %w", err)
	}
	defer rows.Close()

	var out []models.Resident
	for rows.Next() {
		var res models.Resident
		if err := rows.Scan(&res.ID, &res.TenantID, &res.Phone, &res.Name, &res.Unit, &res.Building, &res.CreatedAt, &res.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning resident row: %w", err)
		}
		out = append(out, res)
	}
	return out, rows.Err()
}
