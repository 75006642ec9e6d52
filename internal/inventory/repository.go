package inventory

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stocksense/stocksense/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetProduct(ctx context.Context, ownerID int64, id uuid.UUID) (Product, error)
	ListProducts(ctx context.Context, ownerID int64, filter ListFilter) ([]Product, error)
	CreateProduct(ctx context.Context, p Product) (Product, error)
	UpdateProduct(ctx context.Context, p Product) error
	ListArchived(ctx context.Context, ownerID int64) ([]ArchivedUnit, error)
	CountProducts(ctx context.Context, ownerID int64) (int64, error)
	SumQuantity(ctx context.Context, ownerID int64) (int64, error)
	CountLowStock(ctx context.Context, ownerID int64) (int64, error)
	RecentProducts(ctx context.Context, ownerID int64, limit int) ([]Product, error)
	CategoryRollup(ctx context.Context, ownerID int64) ([]CategoryProductTotal, error)
}

// TxRepository exposes transactional operations used by the service. Locking
// reads pair with conditional writes so racing whole-deletes cannot both
// archive the same row.
type TxRepository interface {
	GetProductForUpdate(ctx context.Context, ownerID int64, id uuid.UUID) (Product, error)
	FindByNameForUpdate(ctx context.Context, ownerID int64, normalizedName string) (Product, error)
	InsertProduct(ctx context.Context, p Product) (Product, error)
	UpdateProductStock(ctx context.Context, id uuid.UUID, quantity int64, status Status) error
	DeleteProduct(ctx context.Context, ownerID int64, id uuid.UUID) (bool, error)
	InsertArchived(ctx context.Context, a ArchivedUnit) (ArchivedUnit, error)
	GetArchivedForUpdate(ctx context.Context, ownerID int64, id uuid.UUID) (ArchivedUnit, error)
	DeleteArchived(ctx context.Context, ownerID int64, id uuid.UUID) (bool, error)
}

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ RepositoryPort = (*Repository)(nil)

type txRepo struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &txRepo{tx: tx}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

const productColumns = `id, owner_id, name, normalized_name, sku, category, unit, price, quantity, min_stock_level, status, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.OwnerID, &p.Name, &p.NormalizedName, &p.SKU, &p.Category, &p.Unit, &p.Price, &p.Quantity, &p.MinStockLevel, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *Repository) GetProduct(ctx context.Context, ownerID int64, id uuid.UUID) (Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1 AND owner_id = $2`
	p, err := scanProduct(r.pool.QueryRow(ctx, query, id, ownerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, err
	}
	return p, nil
}

func (r *Repository) ListProducts(ctx context.Context, ownerID int64, filter ListFilter) ([]Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE owner_id = $1`
	args := []interface{}{ownerID}
	argCount := 1

	if filter.Query != "" {
		argCount++
		query += ` AND normalized_name LIKE $` + strconv.Itoa(argCount)
		args = append(args, "%"+NormalizeName(filter.Query)+"%")
	}
	if filter.Category != "" {
		argCount++
		query += ` AND category = $` + strconv.Itoa(argCount)
		args = append(args, filter.Category)
	}
	if filter.LowStock {
		query += ` AND quantity < min_stock_level`
	}

	query += ` ORDER BY updated_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	argCount++
	query += ` LIMIT $` + strconv.Itoa(argCount)
	args = append(args, limit)

	page := filter.Page
	if page < 1 {
		page = 1
	}
	argCount++
	query += ` OFFSET $` + strconv.Itoa(argCount)
	args = append(args, (page-1)*limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectProducts(rows)
}

func collectProducts(rows pgx.Rows) ([]Product, error) {
	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (r *Repository) CreateProduct(ctx context.Context, p Product) (Product, error) {
	return insertProduct(ctx, r.pool, p)
}

func (r *Repository) UpdateProduct(ctx context.Context, p Product) error {
	query := `UPDATE products SET name = $1, normalized_name = $2, sku = $3, category = $4, unit = $5, price = $6, quantity = $7, min_stock_level = $8, status = $9, updated_at = $10 WHERE id = $11 AND owner_id = $12`
	tag, err := r.pool.Exec(ctx, query, p.Name, p.NormalizedName, p.SKU, p.Category, p.Unit, p.Price, p.Quantity, p.MinStockLevel, p.Status, time.Now().UTC(), p.ID, p.OwnerID)
	if err != nil {
		return mapPGError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (r *Repository) ListArchived(ctx context.Context, ownerID int64) ([]ArchivedUnit, error) {
	query := `SELECT ` + archivedColumns + ` FROM archived_units WHERE owner_id = $1 ORDER BY deleted_at DESC`
	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var units []ArchivedUnit
	for rows.Next() {
		a, err := scanArchived(rows)
		if err != nil {
			return nil, err
		}
		units = append(units, a)
	}
	return units, rows.Err()
}

func (r *Repository) CountProducts(ctx context.Context, ownerID int64) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products WHERE owner_id = $1`, ownerID).Scan(&count)
	return count, err
}

func (r *Repository) SumQuantity(ctx context.Context, ownerID int64) (int64, error) {
	var sum int64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(quantity), 0) FROM products WHERE owner_id = $1`, ownerID).Scan(&sum)
	return sum, err
}

func (r *Repository) CountLowStock(ctx context.Context, ownerID int64) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products WHERE owner_id = $1 AND quantity < min_stock_level`, ownerID).Scan(&count)
	return count, err
}

func (r *Repository) RecentProducts(ctx context.Context, ownerID int64, limit int) ([]Product, error) {
	if limit <= 0 {
		limit = 5
	}
	query := `SELECT ` + productColumns + ` FROM products WHERE owner_id = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := r.pool.Query(ctx, query, ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectProducts(rows)
}

func (r *Repository) CategoryRollup(ctx context.Context, ownerID int64) ([]CategoryProductTotal, error) {
	query := `SELECT category, name, MIN(unit), SUM(quantity), SUM(quantity * price)
		FROM products WHERE owner_id = $1
		GROUP BY category, name
		ORDER BY category ASC, name ASC`
	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var totals []CategoryProductTotal
	for rows.Next() {
		var t CategoryProductTotal
		if err := rows.Scan(&t.Category, &t.Name, &t.Unit, &t.Quantity, &t.Value); err != nil {
			return nil, err
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

const archivedColumns = `id, product_id, owner_id, name, sku, category, unit, price, quantity, min_stock_level, deleted_at`

func scanArchived(row pgx.Row) (ArchivedUnit, error) {
	var a ArchivedUnit
	err := row.Scan(&a.ID, &a.ProductID, &a.OwnerID, &a.Name, &a.SKU, &a.Category, &a.Unit, &a.Price, &a.Quantity, &a.MinStockLevel, &a.DeletedAt)
	return a, err
}

type pgxQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertProduct(ctx context.Context, q pgxQuerier, p Product) (Product, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	query := `INSERT INTO products (` + productColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13) RETURNING id`
	row := q.QueryRow(ctx, query,
		p.ID, p.OwnerID, p.Name, p.NormalizedName, p.SKU, p.Category, p.Unit, p.Price, p.Quantity, p.MinStockLevel, p.Status, p.CreatedAt, p.UpdatedAt)
	if err := row.Scan(&p.ID); err != nil {
		return Product{}, mapPGError(err)
	}
	return p, nil
}

// mapPGError converts the partial unique index on non-empty SKUs into the
// shared duplicate sentinel.
func mapPGError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return shared.ErrDuplicate
	}
	return err
}

func (t *txRepo) GetProductForUpdate(ctx context.Context, ownerID int64, id uuid.UUID) (Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1 AND owner_id = $2 FOR UPDATE`
	p, err := scanProduct(t.tx.QueryRow(ctx, query, id, ownerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, err
	}
	return p, nil
}

// FindByNameForUpdate locks the single live row matching the case-folded name.
// Duplicate names resolve deterministically to the earliest-created row.
func (t *txRepo) FindByNameForUpdate(ctx context.Context, ownerID int64, normalizedName string) (Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE owner_id = $1 AND normalized_name = $2 ORDER BY created_at ASC, id ASC LIMIT 1 FOR UPDATE`
	p, err := scanProduct(t.tx.QueryRow(ctx, query, ownerID, normalizedName))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, err
	}
	return p, nil
}

func (t *txRepo) InsertProduct(ctx context.Context, p Product) (Product, error) {
	return insertProduct(ctx, t.tx, p)
}

func (t *txRepo) UpdateProductStock(ctx context.Context, id uuid.UUID, quantity int64, status Status) error {
	query := `UPDATE products SET quantity = $1, status = $2, updated_at = $3 WHERE id = $4`
	tag, err := t.tx.Exec(ctx, query, quantity, status, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (t *txRepo) DeleteProduct(ctx context.Context, ownerID int64, id uuid.UUID) (bool, error) {
	tag, err := t.tx.Exec(ctx, `DELETE FROM products WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (t *txRepo) InsertArchived(ctx context.Context, a ArchivedUnit) (ArchivedUnit, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.DeletedAt.IsZero() {
		a.DeletedAt = time.Now().UTC()
	}
	query := `INSERT INTO archived_units (` + archivedColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	if _, err := t.tx.Exec(ctx, query, a.ID, a.ProductID, a.OwnerID, a.Name, a.SKU, a.Category, a.Unit, a.Price, a.Quantity, a.MinStockLevel, a.DeletedAt); err != nil {
		return ArchivedUnit{}, err
	}
	return a, nil
}

func (t *txRepo) GetArchivedForUpdate(ctx context.Context, ownerID int64, id uuid.UUID) (ArchivedUnit, error) {
	query := `SELECT ` + archivedColumns + ` FROM archived_units WHERE id = $1 AND owner_id = $2 FOR UPDATE`
	a, err := scanArchived(t.tx.QueryRow(ctx, query, id, ownerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ArchivedUnit{}, ErrArchiveNotFound
		}
		return ArchivedUnit{}, err
	}
	return a, nil
}

func (t *txRepo) DeleteArchived(ctx context.Context, ownerID int64, id uuid.UUID) (bool, error) {
	tag, err := t.tx.Exec(ctx, `DELETE FROM archived_units WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
