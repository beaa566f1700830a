package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/sonic7adarsh/bharat-shop-fulfillment/internal/database"
	"github.com/sonic7adarsh/bharat-shop-fulfillment/internal/metrics"
	"github.com/sonic7adarsh/bharat-shop-fulfillment/internal/models"
)

// DefaultReservationTimeout bounds how long a hold stays ACTIVE before the
// expiry sweep reclaims it.
const DefaultReservationTimeout = 15 * time.Minute

// Reserve admits a new hold against a variant if the stock not already held
// by other ACTIVE reservations covers the quantity. The variant row lock
// brackets the availability check and the insert, so concurrent reservations
// against one variant serialize instead of overselling. The stock counter
// itself is not touched.
func Reserve(ctx context.Context, db *sql.DB, tenantID string, variantID int64, quantity int, timeout time.Duration) (*models.Reservation, error) {
	if quantity <= 0 {
		return nil, models.ErrInvalidQuantity
	}
	if timeout <= 0 {
		timeout = DefaultReservationTimeout
	}

	reservation := &models.Reservation{}

	err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		variant, err := lockVariant(ctx, tx, tenantID, variantID)
		if err != nil {
			return err
		}
		if !variant.Active {
			return models.ErrVariantNotActive
		}

		var reserved int
		err = tx.QueryRowContext(ctx, `
			SELECT COALESCE(SUM(quantity), 0)
			FROM reservations
			WHERE variant_id = $1
			  AND status = 'ACTIVE'
			  AND expires_at > NOW()`,
			variantID).Scan(&reserved)
		if err != nil {
			return fmt.Errorf("sum active reservations: %w", err)
		}

		available := variant.Stock - reserved
		if available < quantity {
			return &models.InsufficientStockError{
				VariantID: variantID,
				Requested: quantity,
				Available: available,
			}
		}

		query := `
			INSERT INTO reservations (id, tenant_id, variant_id, quantity, status, expires_at, created_at, updated_at)
			VALUES ($1, $2, $3, $4, 'ACTIVE', $5, NOW(), NOW())
			RETURNING id, tenant_id, variant_id, order_id, quantity, status, expires_at, created_at, updated_at`

		return scanReservation(tx.QueryRowContext(ctx, query,
			uuid.New(), tenantID, variantID, quantity, time.Now().Add(timeout)), reservation)
	})
	if err != nil {
		metrics.ReservationsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	metrics.ReservationsTotal.WithLabelValues("reserved").Inc()
	return reservation, nil
}

// CommitReservations converts ACTIVE reservations into permanent stock
// decrements tied to an order. Reservations that already reached a terminal
// status are skipped with a warning; they are never re-processed. A decrement
// that would drive stock below zero is a ledger invariant violation and
// aborts that reservation's commit instead of clamping.
func CommitReservations(ctx context.Context, db *sql.DB, tenantID string, reservationIDs []uuid.UUID, orderID int64) error {
	for _, id := range reservationIDs {
		err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
			reservation, err := lockReservation(ctx, tx, tenantID, id)
			if err != nil {
				return err
			}

			if reservation.Status != models.ReservationStatusActive {
				log.WithFields(log.Fields{
					"reservation": id,
					"status":      reservation.Status,
					"order_id":    orderID,
				}).Warn("skipping commit of non-active reservation")
				return nil
			}

			result, err := tx.ExecContext(ctx, `
				UPDATE product_variants
				SET stock = stock - $1, updated_at = NOW()
				WHERE id = $2
				  AND stock >= $1`,
				reservation.Quantity, reservation.VariantID)
			if err != nil {
				return fmt.Errorf("decrement stock: %w", err)
			}

			rows, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("get rows affected: %w", err)
			}
			if rows == 0 {
				return &models.StockNegativeError{
					VariantID: reservation.VariantID,
					Quantity:  reservation.Quantity,
				}
			}

			_, err = tx.ExecContext(ctx, `
				UPDATE reservations
				SET status = 'COMMITTED', order_id = $1, updated_at = NOW()
				WHERE id = $2`,
				orderID, id)
			if err != nil {
				return fmt.Errorf("mark reservation committed: %w", err)
			}

			return nil
		})
		if err != nil {
			log.WithFields(log.Fields{
				"reservation": id,
				"order_id":    orderID,
			}).WithError(err).Error("reservation commit aborted")
			return fmt.Errorf("commit reservation %s: %w", id, err)
		}
		metrics.ReservationsTotal.WithLabelValues("committed").Inc()
	}

	return nil
}

// ReleaseReservation marks an ACTIVE reservation RELEASED. Stock was never
// decremented for it, so no compensating increment exists. Calling it on a
// terminal reservation is a no-op.
func ReleaseReservation(ctx context.Context, db *sql.DB, tenantID string, id uuid.UUID) error {
	return database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		reservation, err := lockReservation(ctx, tx, tenantID, id)
		if err != nil {
			return err
		}

		if reservation.Status != models.ReservationStatusActive {
			return nil
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE reservations
			SET status = 'RELEASED', updated_at = NOW()
			WHERE id = $1`,
			id)
		if err != nil {
			return fmt.Errorf("release reservation: %w", err)
		}

		metrics.ReservationsTotal.WithLabelValues("released").Inc()
		return nil
	})
}

// ReleaseOrderReservations releases every ACTIVE reservation linked to an
// order, in one statement.
func ReleaseOrderReservations(ctx context.Context, db *sql.DB, tenantID string, orderID int64) (int64, error) {
	result, err := db.ExecContext(ctx, `
		UPDATE reservations
		SET status = 'RELEASED', updated_at = NOW()
		WHERE tenant_id = $1
		  AND order_id = $2
		  AND status = 'ACTIVE'`,
		tenantID, orderID)
	if err != nil {
		return 0, fmt.Errorf("release order reservations: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}

	metrics.ReservationsTotal.WithLabelValues("released").Add(float64(rows))
	return rows, nil
}

// CleanupExpired reclaims ACTIVE reservations past their deadline, marking
// them RELEASED in bulk. The conditional update means a commit racing the
// sweep on the same reservation settles on whichever row update wins; the
// loser observes a non-ACTIVE status and no-ops. Designed to run on a fixed
// interval.
func CleanupExpired(ctx context.Context, db *sql.DB) (int64, error) {
	result, err := db.ExecContext(ctx, `
		UPDATE reservations
		SET status = 'RELEASED', updated_at = NOW()
		WHERE status = 'ACTIVE'
		  AND expires_at < NOW()`)
	if err != nil {
		return 0, fmt.Errorf("cleanup expired reservations: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}

	if rows > 0 {
		metrics.ReservationsTotal.WithLabelValues("expired").Add(float64(rows))
		log.WithField("count", rows).Info("released expired reservations")
	}

	return rows, nil
}

// AvailableStock returns what a new reservation could still claim:
// max(0, stock - sum of ACTIVE holds).
func AvailableStock(ctx context.Context, db *sql.DB, tenantID string, variantID int64) (int, error) {
	variant, err := GetVariant(ctx, db, tenantID, variantID)
	if err != nil {
		return 0, err
	}

	var reserved int
	err = db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(quantity), 0)
		FROM reservations
		WHERE variant_id = $1
		  AND status = 'ACTIVE'
		  AND expires_at > NOW()`,
		variantID).Scan(&reserved)
	if err != nil {
		return 0, fmt.Errorf("sum active reservations: %w", err)
	}

	available := variant.Stock - reserved
	if available < 0 {
		available = 0
	}
	return available, nil
}

func GetReservation(ctx context.Context, db *sql.DB, tenantID string, id uuid.UUID) (*models.Reservation, error) {
	reservation := &models.Reservation{}

	query := `
		SELECT id, tenant_id, variant_id, order_id, quantity, status, expires_at, created_at, updated_at
		FROM reservations
		WHERE id = $1
		  AND tenant_id = $2`

	err := scanReservation(db.QueryRowContext(ctx, query, id, tenantID), reservation)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrReservationNotFound
		}
		return nil, fmt.Errorf("get reservation: %w", err)
	}

	return reservation, nil
}

func lockReservation(ctx context.Context, tx *sql.Tx, tenantID string, id uuid.UUID) (*models.Reservation, error) {
	reservation := &models.Reservation{}

	query := `
		SELECT id, tenant_id, variant_id, order_id, quantity, status, expires_at, created_at, updated_at
		FROM reservations
		WHERE id = $1
		  AND tenant_id = $2
		FOR UPDATE`

	err := scanReservation(tx.QueryRowContext(ctx, query, id, tenantID), reservation)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrReservationNotFound
		}
		return nil, fmt.Errorf("lock reservation: %w", err)
	}

	return reservation, nil
}

// activeReservationIDs lists the order's ACTIVE reservations, for commit on
// confirmation.
func activeReservationIDs(ctx context.Context, db *sql.DB, tenantID string, orderID int64) ([]uuid.UUID, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id
		FROM reservations
		WHERE tenant_id = $1
		  AND order_id = $2
		  AND status = 'ACTIVE'
		ORDER BY created_at`,
		tenantID, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order reservations: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan reservation id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return ids, nil
}

func logReleaseFailure(r *models.Reservation, err error) {
	log.WithFields(log.Fields{
		"reservation": r.ID,
		"variant_id":  r.VariantID,
	}).WithError(err).Warn("failed to release reservation")
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReservation(row rowScanner, reservation *models.Reservation) error {
	var orderID sql.NullInt64
	err := row.Scan(
		&reservation.ID,
		&reservation.TenantID,
		&reservation.VariantID,
		&orderID,
		&reservation.Quantity,
		&reservation.Status,
		&reservation.ExpiresAt,
		&reservation.CreatedAt,
		&reservation.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if orderID.Valid {
		reservation.OrderID = &orderID.Int64
	}
	return nil
}
