package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/northstar-retail/feedcore/model"
)

// PostgresStore implements ProductRepo, MerchantRepo, InteractionRepo,
// FeatureBlobRepo, and TextSearcher against a Postgres schema with a
// pg_trgm trigram index on Product.title and Product.description.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an already-configured pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Get(ctx context.Context, id string) (model.Product, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, title, description, merchant_id, category_id, popularity
		FROM product WHERE id = $1`, id)

	var p model.Product
	if err := row.Scan(&p.ID, &p.Title, &p.Description, &p.MerchantID, &p.CategoryID, &p.Popularity); err != nil {
		if err == pgx.ErrNoRows {
			return model.Product{}, false, nil
		}
		return model.Product{}, false, fmt.Errorf("product get: %w", err)
	}
	return p, true, nil
}

func (s *PostgresStore) GetMany(ctx context.Context, ids []string) (map[string]model.Product, error) {
	out := make(map[string]model.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, title, description, merchant_id, category_id, popularity
		FROM product WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("product get many: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p model.Product
		if err := rows.Scan(&p.ID, &p.Title, &p.Description, &p.MerchantID, &p.CategoryID, &p.Popularity); err != nil {
			return nil, fmt.Errorf("product get many scan: %w", err)
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListByCategory(ctx context.Context, categoryID string, limit int) ([]model.Product, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, title, description, merchant_id, category_id, popularity
		FROM product WHERE category_id = $1
		ORDER BY popularity DESC LIMIT $2`, categoryID, limit)
	if err != nil {
		return nil, fmt.Errorf("product list by category: %w", err)
	}
	defer rows.Close()
	return scanProducts(rows)
}

func (s *PostgresStore) ListTopByPopularity(ctx context.Context, limit int) ([]model.Product, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, title, description, merchant_id, category_id, popularity
		FROM product ORDER BY popularity DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("product list top: %w", err)
	}
	defer rows.Close()
	return scanProducts(rows)
}

func scanProducts(rows pgx.Rows) ([]model.Product, error) {
	var out []model.Product
	for rows.Next() {
		var p model.Product
		if err := rows.Scan(&p.ID, &p.Title, &p.Description, &p.MerchantID, &p.CategoryID, &p.Popularity); err != nil {
			return nil, fmt.Errorf("product scan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SetPopularity(ctx context.Context, id string, popularity float64) error {
	_, err := s.pool.Exec(ctx, `UPDATE product SET popularity = $2 WHERE id = $1`, id, popularity)
	if err != nil {
		return fmt.Errorf("product set popularity: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetMerchantPopularity(ctx context.Context, id string, popularity float64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO merchant (id, popularity) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET popularity = EXCLUDED.popularity`, id, popularity)
	if err != nil {
		return fmt.Errorf("merchant set popularity: %w", err)
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, in model.Interaction) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO interaction (id, user_id, product_id, type, value, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		in.ID, in.UserID, in.ProductID, string(in.Type), in.Weight(), in.CreatedAt)
	if err != nil {
		return fmt.Errorf("interaction append: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListSince(ctx context.Context, since time.Time, limit int) ([]model.Interaction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, product_id, type, value, created_at
		FROM interaction WHERE created_at >= $1
		ORDER BY created_at DESC LIMIT $2`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("interaction list since: %w", err)
	}
	defer rows.Close()

	var out []model.Interaction
	for rows.Next() {
		var in model.Interaction
		var typ string
		if err := rows.Scan(&in.ID, &in.UserID, &in.ProductID, &typ, &in.Value, &in.CreatedAt); err != nil {
			return nil, fmt.Errorf("interaction scan: %w", err)
		}
		in.Type = model.InteractionType(typ)
		out = append(out, in)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Put(ctx context.Context, namespace, key string, value []float64) error {
	blob, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("feature blob marshal: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO feature_store (key, namespace, value) VALUES ($1, $2, $3)
		ON CONFLICT (namespace, key) DO UPDATE SET value = EXCLUDED.value`,
		key, namespace, blob)
	if err != nil {
		return fmt.Errorf("feature blob put: %w", err)
	}
	return nil
}

func (s *PostgresStore) PutBatch(ctx context.Context, namespace string, values map[string][]float64) error {
	batch := &pgx.Batch{}
	for key, value := range values {
		blob, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("feature blob batch marshal: %w", err)
		}
		batch.Queue(`
			INSERT INTO feature_store (key, namespace, value) VALUES ($1, $2, $3)
			ON CONFLICT (namespace, key) DO UPDATE SET value = EXCLUDED.value`,
			key, namespace, blob)
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range values {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("feature blob batch exec: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) GetFeature(ctx context.Context, namespace, key string) ([]float64, bool, error) {
	row := s.pool.QueryRow(ctx, `SELECT value FROM feature_store WHERE namespace = $1 AND key = $2`, namespace, key)
	var raw []byte
	if err := row.Scan(&raw); err != nil {
		if err == pgx.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("feature blob get: %w", err)
	}
	var value []float64
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, false, fmt.Errorf("feature blob decode: %w", err)
	}
	return value, true, nil
}

func (s *PostgresStore) AllInNamespace(ctx context.Context, namespace string) (map[string][]float64, error) {
	rows, err := s.pool.Query(ctx, `SELECT key, value FROM feature_store WHERE namespace = $1`, namespace)
	if err != nil {
		return nil, fmt.Errorf("feature blob list: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]float64)
	for rows.Next() {
		var key string
		var raw []byte
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, fmt.Errorf("feature blob list scan: %w", err)
		}
		var value []float64
		if err := json.Unmarshal(raw, &value); err != nil {
			return nil, fmt.Errorf("feature blob list decode: %w", err)
		}
		out[key] = value
	}
	return out, rows.Err()
}

// SearchProducts runs a bound-parameter trigram similarity query against
// the product title and description. The query string is always passed
// as $1 — never interpolated into the SQL text.
func (s *PostgresStore) SearchProducts(ctx context.Context, query string, limit int) ([]TextMatch, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, GREATEST(similarity(title, $1), similarity(description, $1)) AS score
		FROM product
		WHERE title % $1 OR description % $1
		ORDER BY score DESC
		LIMIT $2`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("text search: %w", err)
	}
	defer rows.Close()

	var out []TextMatch
	for rows.Next() {
		var m TextMatch
		if err := rows.Scan(&m.ProductID, &m.Score); err != nil {
			return nil, fmt.Errorf("text search scan: %w", err)
		}
		if m.Score < 0 {
			m.Score = 0
		}
		if m.Score > 1 {
			m.Score = 1
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
