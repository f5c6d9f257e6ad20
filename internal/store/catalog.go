package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fieldware/fieldsync/internal/record"
)

// Stores and products are reference data: the device never creates them, it
// only caches what the server returns so route planning works offline.

// ReplaceStores refreshes the store collection from an authoritative server
// response in one transaction.
func (db *DB) ReplaceStores(ctx context.Context, stores []record.Store) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM stores"); err != nil {
		return fmt.Errorf("failed to clear stores: %w", err)
	}

	stamp := db.touch(zeroTime)
	for _, s := range stores {
		_, err := tx.ExecContext(ctx, `
		INSERT INTO stores (id, store_name, has_recording, has_post_activity, call_schedule_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			store_name = excluded.store_name,
			has_recording = excluded.has_recording,
			has_post_activity = excluded.has_post_activity,
			call_schedule_id = excluded.call_schedule_id,
			updated_at = excluded.updated_at`,
			s.ID.String(), s.StoreName, boolToInt(s.HasRecording),
			boolToInt(s.HasPostActivity), s.CallScheduleID.String(), stamp)
		if err != nil {
			return fmt.Errorf("failed to upsert store %s: %w", s.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit store refresh: %w", err)
	}
	return nil
}

// ListStores returns all cached stores ordered by name.
func (db *DB) ListStores(ctx context.Context) ([]record.Store, error) {
	rows, err := db.conn.QueryContext(ctx, `
	SELECT id, store_name, has_recording, has_post_activity, call_schedule_id
	FROM stores ORDER BY store_name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list stores: %w", err)
	}
	defer rows.Close()

	var stores []record.Store
	for rows.Next() {
		var s record.Store
		var id, scheduleID string
		var hasRecording, hasPostActivity int
		if err := rows.Scan(&id, &s.StoreName, &hasRecording, &hasPostActivity, &scheduleID); err != nil {
			return nil, fmt.Errorf("failed to scan store: %w", err)
		}
		s.ID = record.ID(id)
		s.CallScheduleID = record.ID(scheduleID)
		s.HasRecording = hasRecording != 0
		s.HasPostActivity = hasPostActivity != 0
		stores = append(stores, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stores: %w", err)
	}
	return stores, nil
}

// GetStore retrieves a cached store by id. Returns ErrNotFound when absent.
func (db *DB) GetStore(ctx context.Context, id record.ID) (*record.Store, error) {
	row := db.conn.QueryRowContext(ctx, `
	SELECT id, store_name, has_recording, has_post_activity, call_schedule_id
	FROM stores WHERE id = ?`, id.String())

	var s record.Store
	var rowID, scheduleID string
	var hasRecording, hasPostActivity int
	err := row.Scan(&rowID, &s.StoreName, &hasRecording, &hasPostActivity, &scheduleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get store %s: %w", id, err)
	}
	s.ID = record.ID(rowID)
	s.CallScheduleID = record.ID(scheduleID)
	s.HasRecording = hasRecording != 0
	s.HasPostActivity = hasPostActivity != 0
	return &s, nil
}

// ReplaceProducts refreshes the product catalog from an authoritative
// server response in one transaction.
func (db *DB) ReplaceProducts(ctx context.Context, products []record.Product) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM products"); err != nil {
		return fmt.Errorf("failed to clear products: %w", err)
	}

	stamp := db.touch(zeroTime)
	for _, p := range products {
		_, err := tx.ExecContext(ctx, `
		INSERT INTO products (id, product_name, product_description, product_quantity,
			product_price, product_discount, product_image, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			product_name = excluded.product_name,
			product_description = excluded.product_description,
			product_quantity = excluded.product_quantity,
			product_price = excluded.product_price,
			product_discount = excluded.product_discount,
			product_image = excluded.product_image,
			updated_at = excluded.updated_at`,
			p.ID.String(), p.ProductName, p.ProductDescription, p.ProductQuantity,
			string(p.ProductPrice), string(p.ProductDiscount), p.ProductImage, stamp)
		if err != nil {
			return fmt.Errorf("failed to upsert product %s: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit product refresh: %w", err)
	}
	return nil
}

// ListProducts returns the cached product catalog ordered by name.
func (db *DB) ListProducts(ctx context.Context) ([]record.Product, error) {
	rows, err := db.conn.QueryContext(ctx, `
	SELECT id, product_name, product_description, product_quantity,
	       product_price, product_discount, product_image
	FROM products ORDER BY product_name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var products []record.Product
	for rows.Next() {
		var p record.Product
		var id, price, discount string
		if err := rows.Scan(&id, &p.ProductName, &p.ProductDescription,
			&p.ProductQuantity, &price, &discount, &p.ProductImage); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		p.ID = record.ID(id)
		p.ProductPrice = record.Decimal(price)
		p.ProductDiscount = record.Decimal(discount)
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating products: %w", err)
	}
	return products, nil
}

// GetProduct retrieves a cached product by id. Returns ErrNotFound when
// absent.
func (db *DB) GetProduct(ctx context.Context, id record.ID) (*record.Product, error) {
	row := db.conn.QueryRowContext(ctx, `
	SELECT id, product_name, product_description, product_quantity,
	       product_price, product_discount, product_image
	FROM products WHERE id = ?`, id.String())

	var p record.Product
	var rowID, price, discount string
	err := row.Scan(&rowID, &p.ProductName, &p.ProductDescription,
		&p.ProductQuantity, &price, &discount, &p.ProductImage)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get product %s: %w", id, err)
	}
	p.ID = record.ID(rowID)
	p.ProductPrice = record.Decimal(price)
	p.ProductDiscount = record.Decimal(discount)
	return &p, nil
}
