package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/sonic7adarsh/bharat-shop-fulfillment/internal/models"
)

func CreateVariant(ctx context.Context, db *sql.DB, tenantID, sku, name string, price decimal.Decimal, stock int) (*models.Variant, error) {
	if stock < 0 {
		return nil, models.ErrInvalidQuantity
	}

	variant := &models.Variant{}

	query := `
		INSERT INTO product_variants (tenant_id, sku, name, price, stock, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, TRUE, NOW(), NOW())
		RETURNING id, tenant_id, sku, name, price, stock, active, created_at, updated_at`

	err := db.QueryRowContext(ctx, query, tenantID, sku, name, price, stock).Scan(
		&variant.ID,
		&variant.TenantID,
		&variant.SKU,
		&variant.Name,
		&variant.Price,
		&variant.Stock,
		&variant.Active,
		&variant.CreatedAt,
		&variant.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create variant: %w", err)
	}

	return variant, nil
}

func GetVariant(ctx context.Context, db *sql.DB, tenantID string, id int64) (*models.Variant, error) {
	variant := &models.Variant{}

	query := `
		SELECT id, tenant_id, sku, name, price, stock, active, created_at, updated_at
		FROM product_variants
		WHERE id = $1`

	err := db.QueryRowContext(ctx, query, id).Scan(
		&variant.ID,
		&variant.TenantID,
		&variant.SKU,
		&variant.Name,
		&variant.Price,
		&variant.Stock,
		&variant.Active,
		&variant.CreatedAt,
		&variant.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrVariantNotFound
		}
		return nil, fmt.Errorf("get variant: %w", err)
	}

	if variant.TenantID != tenantID {
		return nil, models.ErrTenantMismatch
	}

	return variant, nil
}

// lockVariant takes the row lock that serializes every availability check and
// stock mutation for one variant.
func lockVariant(ctx context.Context, tx *sql.Tx, tenantID string, id int64) (*models.Variant, error) {
	variant := &models.Variant{}

	query := `
		SELECT id, tenant_id, sku, name, price, stock, active, created_at, updated_at
		FROM product_variants
		WHERE id = $1
		FOR UPDATE`

	err := tx.QueryRowContext(ctx, query, id).Scan(
		&variant.ID,
		&variant.TenantID,
		&variant.SKU,
		&variant.Name,
		&variant.Price,
		&variant.Stock,
		&variant.Active,
		&variant.CreatedAt,
		&variant.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrVariantNotFound
		}
		return nil, fmt.Errorf("lock variant: %w", err)
	}

	if variant.TenantID != tenantID {
		return nil, models.ErrTenantMismatch
	}

	return variant, nil
}

func ListVariants(ctx context.Context, db *sql.DB, tenantID string, page, pageSize int) (*OffsetPage, error) {
	var total int64
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM product_variants WHERE tenant_id = $1`, tenantID).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count variants: %w", err)
	}

	offset := (page - 1) * pageSize
	query := `
		SELECT id, tenant_id, sku, name, price, stock, active, created_at, updated_at
		FROM product_variants
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := db.QueryContext(ctx, query, tenantID, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list variants: %w", err)
	}
	defer rows.Close()

	var variants []models.Variant
	for rows.Next() {
		var variant models.Variant
		err := rows.Scan(
			&variant.ID,
			&variant.TenantID,
			&variant.SKU,
			&variant.Name,
			&variant.Price,
			&variant.Stock,
			&variant.Active,
			&variant.CreatedAt,
			&variant.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan variant: %w", err)
		}
		variants = append(variants, variant)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	totalPages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPages++
	}

	return &OffsetPage{
		Items:      variants,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}, nil
}
