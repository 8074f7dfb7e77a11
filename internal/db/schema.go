package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema contains the DDL for every table the service owns. Statements are
// idempotent so Ensure can run on every boot.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
	id UUID PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	token_balance INTEGER NOT NULL DEFAULT 0 CHECK (token_balance >= 0),
	token_valid_until TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE TABLE IF NOT EXISTS token_history (
	id BIGSERIAL PRIMARY KEY,
	user_id UUID NOT NULL REFERENCES users(id),
	change INTEGER NOT NULL,
	source TEXT NOT NULL,
	validity_extension_days INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE INDEX IF NOT EXISTS idx_token_history_user ON token_history (user_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS plans (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	price_cents BIGINT NOT NULL,
	limits JSONB NOT NULL DEFAULT '{}'::jsonb
)`,
	`CREATE TABLE IF NOT EXISTS subscriptions (
	id BIGSERIAL PRIMARY KEY,
	user_id UUID NOT NULL UNIQUE REFERENCES users(id),
	plan_id BIGINT NOT NULL REFERENCES plans(id),
	status TEXT NOT NULL DEFAULT 'active',
	current_period_end TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE TABLE IF NOT EXISTS transactions (
	id BIGSERIAL PRIMARY KEY,
	user_id UUID NOT NULL REFERENCES users(id),
	plan_id BIGINT REFERENCES plans(id),
	merchant_order_id TEXT NOT NULL UNIQUE,
	gateway_transaction_id TEXT,
	amount_cents BIGINT NOT NULL,
	currency TEXT NOT NULL DEFAULT 'USD',
	status TEXT NOT NULL DEFAULT 'PENDING',
	payment_mode TEXT,
	request_payload JSONB,
	response_payload JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions (user_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS models (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT ''
)`,
	`CREATE TABLE IF NOT EXISTS model_images (
	id BIGSERIAL PRIMARY KEY,
	model_id BIGINT NOT NULL REFERENCES models(id),
	pose_label TEXT NOT NULL,
	image_url TEXT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS tasks (
	id BIGSERIAL PRIMARY KEY,
	user_id UUID NOT NULL REFERENCES users(id),
	model_id BIGINT NOT NULL REFERENCES models(id),
	name TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE TABLE IF NOT EXISTS batches (
	id BIGSERIAL PRIMARY KEY,
	task_id BIGINT NOT NULL REFERENCES tasks(id),
	status TEXT NOT NULL DEFAULT 'queued',
	tokens_used INTEGER NOT NULL DEFAULT 0,
	error TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE INDEX IF NOT EXISTS idx_batches_status ON batches (status, created_at)`,
	`CREATE TABLE IF NOT EXISTS garment_images (
	id BIGSERIAL PRIMARY KEY,
	batch_id BIGINT NOT NULL REFERENCES batches(id),
	image_url TEXT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS generated_images (
	id BIGSERIAL PRIMARY KEY,
	garment_image_id BIGINT NOT NULL REFERENCES garment_images(id),
	model_image_url TEXT NOT NULL,
	pose_label TEXT NOT NULL,
	output_url TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
}

// Ensure creates any missing tables and indexes.
func Ensure(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
