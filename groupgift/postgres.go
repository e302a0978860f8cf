package groupgift

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS group_gifts (
	id             BIGSERIAL PRIMARY KEY,
	title          TEXT NOT NULL,
	description    TEXT NOT NULL DEFAULT '',
	occasion_type  TEXT NOT NULL DEFAULT 'General',
	recipient_id   BIGINT NOT NULL,
	gift_id        BIGINT,
	target_amount  BIGINT NOT NULL CHECK (target_amount > 0),
	current_amount BIGINT NOT NULL DEFAULT 0 CHECK (current_amount >= 0),
	status         TEXT NOT NULL,
	deadline       TIMESTAMPTZ NOT NULL,
	created_by     TEXT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS group_gift_contributions (
	id             UUID PRIMARY KEY,
	group_gift_id  BIGINT NOT NULL REFERENCES group_gifts (id) ON DELETE CASCADE,
	position       INT NOT NULL,
	name           TEXT NOT NULL,
	email          TEXT NOT NULL,
	amount         BIGINT NOT NULL CHECK (amount > 0),
	message        TEXT NOT NULL DEFAULT '',
	contributed_at TIMESTAMPTZ NOT NULL,
	UNIQUE (group_gift_id, email)
);

CREATE TABLE IF NOT EXISTS group_gift_invitations (
	group_gift_id BIGINT NOT NULL REFERENCES group_gifts (id) ON DELETE CASCADE,
	email         TEXT NOT NULL,
	position      INT NOT NULL,
	name          TEXT NOT NULL,
	invited_at    TIMESTAMPTZ NOT NULL,
	status        TEXT NOT NULL,
	PRIMARY KEY (group_gift_id, email)
);
`

const selectGroupGift = `SELECT id, title, description, occasion_type, recipient_id, gift_id, target_amount, current_amount, status, deadline, created_by, created_at FROM group_gifts`

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Migrate creates the group gift tables when they are missing.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, postgresSchema)
	return repoErr("migrate", err)
}

func (r *PostgresRepository) Create(ctx context.Context, g *GroupGift) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return repoErr("create", err)
	}
	defer tx.Rollback()

	query := `INSERT INTO group_gifts (title, description, occasion_type, recipient_id, gift_id, target_amount, current_amount, status, deadline, created_by, created_at)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`
	err = tx.QueryRowContext(
		ctx,
		query,
		g.Title,
		g.Description,
		g.OccasionType,
		g.RecipientID,
		nullableID(g.GiftID),
		g.TargetAmount,
		g.CurrentAmount,
		g.Status,
		g.Deadline,
		g.CreatedBy,
		g.CreatedAt,
	).Scan(&g.ID)
	if err != nil {
		return repoErr("create", err)
	}

	if err := saveChildren(ctx, tx, g); err != nil {
		return repoErr("create", err)
	}

	return repoErr("create", tx.Commit())
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*GroupGift, error) {
	g, err := getGroupGift(ctx, r.db, id, false)
	return g, repoErr("get", err)
}

func (r *PostgresRepository) GetAll(ctx context.Context) ([]GroupGift, error) {
	return r.list(ctx, selectGroupGift+` ORDER BY id DESC`)
}

func (r *PostgresRepository) GetByRecipient(ctx context.Context, recipientID int64) ([]GroupGift, error) {
	return r.list(ctx, selectGroupGift+` WHERE recipient_id = $1 ORDER BY id DESC`, recipientID)
}

func (r *PostgresRepository) GetByCreator(ctx context.Context, createdBy string) ([]GroupGift, error) {
	return r.list(ctx, selectGroupGift+` WHERE created_by = $1 ORDER BY id DESC`, createdBy)
}

func (r *PostgresRepository) Update(ctx context.Context, g *GroupGift) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return repoErr("update", err)
	}
	defer tx.Rollback()

	if err := saveGroupGift(ctx, tx, g); err != nil {
		return repoErr("update", err)
	}
	return repoErr("update", tx.Commit())
}

func (r *PostgresRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM group_gifts WHERE id = $1`, id)
	if err != nil {
		return repoErr("delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return repoErr("delete", err)
	}
	if n == 0 {
		return ErrCampaignNotFound
	}
	return nil
}

// Apply locks the campaign row with SELECT ... FOR UPDATE for the whole
// read-modify-write, so concurrent writers to one campaign queue up.
func (r *PostgresRepository) Apply(ctx context.Context, id int64, fn func(g *GroupGift) error) (*GroupGift, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, repoErr("apply", err)
	}
	defer tx.Rollback()

	g, err := getGroupGift(ctx, tx, id, true)
	if err != nil {
		return nil, repoErr("apply", err)
	}
	if err := fn(g); err != nil {
		return nil, err
	}
	if err := saveGroupGift(ctx, tx, g); err != nil {
		return nil, repoErr("apply", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, repoErr("apply", err)
	}
	return g, nil
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]GroupGift, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, repoErr("list", err)
	}
	defer rows.Close()

	gifts := make([]GroupGift, 0)
	for rows.Next() {
		g, err := scanGroupGift(rows)
		if err != nil {
			return nil, repoErr("list", err)
		}
		gifts = append(gifts, *g)
	}
	if err := rows.Err(); err != nil {
		return nil, repoErr("list", err)
	}

	if err := loadChildren(ctx, r.db, gifts); err != nil {
		return nil, repoErr("list", err)
	}
	return gifts, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGroupGift(row rowScanner) (*GroupGift, error) {
	var g GroupGift
	var giftID sql.NullInt64
	err := row.Scan(
		&g.ID,
		&g.Title,
		&g.Description,
		&g.OccasionType,
		&g.RecipientID,
		&giftID,
		&g.TargetAmount,
		&g.CurrentAmount,
		&g.Status,
		&g.Deadline,
		&g.CreatedBy,
		&g.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if giftID.Valid {
		g.GiftID = &giftID.Int64
	}
	g.Contributors = []Contribution{}
	g.InvitedContributors = []Invitation{}
	return &g, nil
}

func getGroupGift(ctx context.Context, q querier, id int64, forUpdate bool) (*GroupGift, error) {
	query := selectGroupGift + ` WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	g, err := scanGroupGift(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCampaignNotFound
		}
		return nil, err
	}

	gifts := []GroupGift{*g}
	if err := loadChildren(ctx, q, gifts); err != nil {
		return nil, err
	}
	return &gifts[0], nil
}

// loadChildren fills contributors and invitations for all gifts with one query per table.
func loadChildren(ctx context.Context, q querier, gifts []GroupGift) error {
	if len(gifts) == 0 {
		return nil
	}

	ids := make([]int64, len(gifts))
	index := make(map[int64]int, len(gifts))
	for i, g := range gifts {
		ids[i] = g.ID
		index[g.ID] = i
	}

	rows, err := q.QueryContext(ctx, `SELECT group_gift_id, id, name, email, amount, message, contributed_at
              FROM group_gift_contributions
              WHERE group_gift_id = ANY($1)
              ORDER BY group_gift_id, position`, pq.Array(ids))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var giftID int64
		var c Contribution
		if err := rows.Scan(&giftID, &c.ID, &c.Name, &c.Email, &c.Amount, &c.Message, &c.ContributedAt); err != nil {
			return err
		}
		i := index[giftID]
		gifts[i].Contributors = append(gifts[i].Contributors, c)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	invRows, err := q.QueryContext(ctx, `SELECT group_gift_id, email, name, invited_at, status
              FROM group_gift_invitations
              WHERE group_gift_id = ANY($1)
              ORDER BY group_gift_id, position`, pq.Array(ids))
	if err != nil {
		return err
	}
	defer invRows.Close()

	for invRows.Next() {
		var giftID int64
		var inv Invitation
		if err := invRows.Scan(&giftID, &inv.Email, &inv.Name, &inv.InvitedAt, &inv.Status); err != nil {
			return err
		}
		i := index[giftID]
		gifts[i].InvitedContributors = append(gifts[i].InvitedContributors, inv)
	}
	return invRows.Err()
}

func saveGroupGift(ctx context.Context, q querier, g *GroupGift) error {
	query := `UPDATE group_gifts
              SET title = $2, description = $3, occasion_type = $4, recipient_id = $5, gift_id = $6,
                  target_amount = $7, current_amount = $8, status = $9, deadline = $10, created_by = $11, created_at = $12
              WHERE id = $1`
	res, err := q.ExecContext(
		ctx,
		query,
		g.ID,
		g.Title,
		g.Description,
		g.OccasionType,
		g.RecipientID,
		nullableID(g.GiftID),
		g.TargetAmount,
		g.CurrentAmount,
		g.Status,
		g.Deadline,
		g.CreatedBy,
		g.CreatedAt,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrCampaignNotFound
	}

	return saveChildren(ctx, q, g)
}

// saveChildren makes the stored contributor and invitation lists match g.
// Existing contribution rows are left alone since contributions never change.
func saveChildren(ctx context.Context, q querier, g *GroupGift) error {
	keep := make([]string, len(g.Contributors))
	for i, c := range g.Contributors {
		keep[i] = c.ID.String()
	}
	_, err := q.ExecContext(ctx, `DELETE FROM group_gift_contributions WHERE group_gift_id = $1 AND NOT (id::text = ANY($2))`, g.ID, pq.Array(keep))
	if err != nil {
		return err
	}

	for i, c := range g.Contributors {
		query := `INSERT INTO group_gift_contributions (id, group_gift_id, position, name, email, amount, message, contributed_at)
                  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
                  ON CONFLICT (id) DO NOTHING`
		_, err = q.ExecContext(ctx, query, c.ID, g.ID, i, c.Name, c.Email, c.Amount, c.Message, c.ContributedAt)
		if err != nil {
			return err
		}
	}

	_, err = q.ExecContext(ctx, `DELETE FROM group_gift_invitations WHERE group_gift_id = $1`, g.ID)
	if err != nil {
		return err
	}
	for i, inv := range g.InvitedContributors {
		query := `INSERT INTO group_gift_invitations (group_gift_id, email, position, name, invited_at, status) VALUES ($1, $2, $3, $4, $5, $6)`
		_, err = q.ExecContext(ctx, query, g.ID, inv.Email, i, inv.Name, inv.InvitedAt, inv.Status)
		if err != nil {
			return err
		}
	}

	return nil
}

func nullableID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}
