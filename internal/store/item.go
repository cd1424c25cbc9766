package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hazyhaar/vitrine/dbopen"
	"github.com/hazyhaar/vitrine/filter"
)

// Item is one auctioned property.
type Item struct {
	ID            int64   `json:"id"`
	Title         string  `json:"title"`
	Address       string  `json:"address"`
	City          string  `json:"city"`
	Neighborhood  string  `json:"neighborhood"`
	Price         float64 `json:"price"`
	AuctionType   string  `json:"auctionType"`
	Description   string  `json:"description,omitempty"`
	FGTS          bool    `json:"fgts"`
	Financing     bool    `json:"financing"`
	Installments  bool    `json:"installments"`
	SecondAuction bool    `json:"hasSecondAuction"`
	CreatedAt     int64   `json:"createdAt"`
	UpdatedAt     int64   `json:"updatedAt"`
}

const itemColumns = `id, title, address, city, neighborhood, price, auction_type,
	description, fgts, financing, installments, second_auction, created_at, updated_at`

// Insert stores it. A zero ID lets SQLite assign one, written back to it.
func (s *Store) Insert(ctx context.Context, it *Item) error {
	now := time.Now().UnixMilli()
	it.CreatedAt, it.UpdatedAt = now, now

	var id any
	if it.ID != 0 {
		id = it.ID
	}
	res, err := dbopen.Exec(ctx, s.DB, `
		INSERT INTO items (`+itemColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		id, it.Title, it.Address, it.City, it.Neighborhood, it.Price, it.AuctionType,
		it.Description, it.FGTS, it.Financing, it.Installments, it.SecondAuction,
		it.CreatedAt, it.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: insert item: %w", err)
	}
	if it.ID == 0 {
		if it.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("store: insert item: %w", err)
		}
	}
	return nil
}

// Get returns the item with id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id int64) (*Item, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get item %d: %w", id, err)
	}
	return it, nil
}

// Update overwrites every mutable field of it.
func (s *Store) Update(ctx context.Context, it *Item) error {
	it.UpdatedAt = time.Now().UnixMilli()
	res, err := dbopen.Exec(ctx, s.DB, `
		UPDATE items SET title = ?, address = ?, city = ?, neighborhood = ?, price = ?,
			auction_type = ?, description = ?, fgts = ?, financing = ?, installments = ?,
			second_auction = ?, updated_at = ?
		WHERE id = ?`,
		it.Title, it.Address, it.City, it.Neighborhood, it.Price,
		it.AuctionType, it.Description, it.FGTS, it.Financing, it.Installments,
		it.SecondAuction, it.UpdatedAt, it.ID,
	)
	if err != nil {
		return fmt.Errorf("store: update item %d: %w", it.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the item with id.
func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := dbopen.Exec(ctx, s.DB, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete item %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns items matching scope ordered by id. limit <= 0 means no limit.
func (s *Store) List(ctx context.Context, scope filter.Snapshot, limit, offset int) ([]*Item, error) {
	where, args := whereClause(scope)
	q := `SELECT ` + itemColumns + ` FROM items` + where + ` ORDER BY id`
	if limit > 0 {
		q += ` LIMIT ? OFFSET ?`
		args = append(args, limit, offset)
	}
	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list items: %w", err)
	}
	defer rows.Close()

	var out []*Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan item: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// IDs returns the ascending IDs of items matching scope. It is the
// record-store side of select-all.
func (s *Store) IDs(ctx context.Context, scope filter.Snapshot) ([]int64, error) {
	where, args := whereClause(scope)
	rows, err := s.DB.QueryContext(ctx, `SELECT id FROM items`+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("store: item ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// whereClause translates a snapshot into SQL. Absent fields add nothing.
// Text comparisons ignore ASCII case.
func whereClause(f filter.Snapshot) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.City != nil {
		conds = append(conds, `city = ? COLLATE NOCASE`)
		args = append(args, *f.City)
	}
	if len(f.Neighborhoods) > 0 {
		marks := strings.TrimSuffix(strings.Repeat("?,", len(f.Neighborhoods)), ",")
		conds = append(conds, `neighborhood COLLATE NOCASE IN (`+marks+`)`)
		for _, n := range f.Neighborhoods {
			args = append(args, n)
		}
	}
	if f.PriceMin != nil {
		conds = append(conds, `price >= ?`)
		args = append(args, *f.PriceMin)
	}
	if f.PriceMax != nil {
		conds = append(conds, `price <= ?`)
		args = append(args, *f.PriceMax)
	}
	if f.AuctionType != nil {
		conds = append(conds, `auction_type = ? COLLATE NOCASE`)
		args = append(args, *f.AuctionType)
	}
	if f.SearchText != nil {
		like := "%" + *f.SearchText + "%"
		conds = append(conds, `(title LIKE ? OR description LIKE ? OR address LIKE ?)`)
		args = append(args, like, like, like)
	}
	for _, b := range []struct {
		col string
		v   *bool
	}{
		{"fgts", f.FGTS},
		{"financing", f.Financing},
		{"installments", f.Installments},
		{"second_auction", f.HasSecondAuction},
	} {
		if b.v != nil {
			conds = append(conds, b.col+` = ?`)
			args = append(args, *b.v)
		}
	}
	if len(conds) == 0 {
		return "", nil
	}
	return ` WHERE ` + strings.Join(conds, " AND "), args
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(sc scanner) (*Item, error) {
	it := &Item{}
	err := sc.Scan(
		&it.ID, &it.Title, &it.Address, &it.City, &it.Neighborhood, &it.Price, &it.AuctionType,
		&it.Description, &it.FGTS, &it.Financing, &it.Installments, &it.SecondAuction,
		&it.CreatedAt, &it.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return it, nil
}
