package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Aiosol/grandshop/internal/models"

	"github.com/jmoiron/sqlx"
)

// GetOrCreateCartByUser returns the user's cart, creating it lazily.
func (s *Store) GetOrCreateCartByUser(ctx context.Context, userID int64) (*models.Cart, error) {
	var cart models.Cart
	err := s.db.GetContext(ctx, &cart, "SELECT * FROM carts WHERE user_id = $1", userID)
	if err == nil {
		return &cart, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	err = s.db.GetContext(ctx, &cart,
		"INSERT INTO carts (user_id) VALUES ($1) RETURNING *", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to create cart: %w", err)
	}
	return &cart, nil
}

// GetOrCreateCartBySession returns the anonymous session's cart, creating it
// lazily.
func (s *Store) GetOrCreateCartBySession(ctx context.Context, sessionKey string) (*models.Cart, error) {
	var cart models.Cart
	err := s.db.GetContext(ctx, &cart, "SELECT * FROM carts WHERE session_key = $1", sessionKey)
	if err == nil {
		return &cart, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	err = s.db.GetContext(ctx, &cart,
		"INSERT INTO carts (session_key) VALUES ($1) RETURNING *", sessionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create cart: %w", err)
	}
	return &cart, nil
}

// GetCartByID retrieves a cart by ID
func (s *Store) GetCartByID(ctx context.Context, id int64) (*models.Cart, error) {
	var cart models.Cart
	err := s.db.GetContext(ctx, &cart, "SELECT * FROM carts WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("cart %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// UpsertCartItem adds quantity to the cart line for the product, creating the
// line when absent. One row per (cart, product) is guaranteed by the unique
// constraint.
func (s *Store) UpsertCartItem(ctx context.Context, cartID, productID int64, quantity int) (*models.CartItem, error) {
	var item models.CartItem
	err := s.db.GetContext(ctx, &item, `
		INSERT INTO cart_items (cart_id, product_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (cart_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity, updated_at = NOW()
		RETURNING *`,
		cartID, productID, quantity)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert cart item: %w", err)
	}
	return &item, nil
}

// GetCartItemByID retrieves a cart item by ID
func (s *Store) GetCartItemByID(ctx context.Context, id int64) (*models.CartItem, error) {
	var item models.CartItem
	err := s.db.GetContext(ctx, &item, "SELECT * FROM cart_items WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("cart item %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// GetCartItems retrieves all items in a cart
func (s *Store) GetCartItems(ctx context.Context, cartID int64) ([]models.CartItem, error) {
	var items []models.CartItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM cart_items WHERE cart_id = $1 ORDER BY id", cartID)
	return items, err
}

// SetCartItemQuantity overwrites a cart line's quantity.
func (s *Store) SetCartItemQuantity(ctx context.Context, itemID int64, quantity int) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE cart_items SET quantity = $1, updated_at = NOW() WHERE id = $2",
		quantity, itemID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("cart item %d: %w", itemID, ErrNotFound)
	}
	return nil
}

// DeleteCartItem removes one line from a cart.
func (s *Store) DeleteCartItem(ctx context.Context, itemID int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM cart_items WHERE id = $1", itemID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("cart item %d: %w", itemID, ErrNotFound)
	}
	return nil
}

// ClearCartTx deletes all items in the cart within the given transaction.
// Used by checkout so clearing commits or rolls back with the order.
func (s *Store) ClearCartTx(ctx context.Context, tx *sqlx.Tx, cartID int64) error {
	_, err := tx.ExecContext(ctx, "DELETE FROM cart_items WHERE cart_id = $1", cartID)
	return err
}
