package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/toolcrib/toolcrib/internal/platform/db"
	"github.com/toolcrib/toolcrib/internal/shared"
	"github.com/toolcrib/toolcrib/internal/tools"
)

// Repository provides PostgreSQL backed persistence for stocktake data.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new repository instance.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	tools.LedgerTx
	LockSession(ctx context.Context, id int64, exclusive bool) (Session, error)
	UpdateSession(ctx context.Context, session Session) error
	DeleteSession(ctx context.Context, id int64) error
	ResolveCode(ctx context.Context, code string) (tools.Tool, error)
	ToolExists(ctx context.Context, toolID int64) (bool, error)
	AddCount(ctx context.Context, sessionID, toolID int64, qty int, at time.Time) (Count, error)
	SetCount(ctx context.Context, sessionID, toolID int64, qty int, at time.Time) (Count, error)
	InsertCorrection(ctx context.Context, c Correction) (Correction, error)
	GetCorrectionForUpdate(ctx context.Context, id int64) (Correction, error)
	MarkCorrectionAccepted(ctx context.Context, id, userID int64, at time.Time) error
	DeleteCorrection(ctx context.Context, id int64) error
}

type txRepo struct {
	tools.LedgerTx
	tx pgx.Tx
}

const sessionColumns = `id, name, notes, status, started_at, paused_at, finished_at, owner_user_id`

const correctionColumns = `id, session_id, tool_id, difference_qty, reason, COALESCE(created_by_user_id, 0), created_at, accepted_by_user_id, accepted_at`

// WithTx executes fn within a read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	return db.WithTx(ctx, r.pool, db.LedgerTxOptions, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{LedgerTx: tools.NewTxRepository(tx), tx: tx})
	})
}

// CreateSession inserts an active session.
func (r *Repository) CreateSession(ctx context.Context, s Session) (Session, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO inventory_sessions (name, notes, status, started_at, owner_user_id)
VALUES ($1,$2,$3,$4,$5) RETURNING `+sessionColumns, s.Name, s.Notes, string(s.Status), s.StartedAt, s.OwnerUserID)
	return scanSession(row)
}

// GetSession loads one session.
func (r *Repository) GetSession(ctx context.Context, id int64) (Session, error) {
	s, err := scanSession(r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM inventory_sessions WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrSessionNotFound
	}
	return s, err
}

// ListSessions returns one page of sessions newest first and the total match
// count.
func (r *Repository) ListSessions(ctx context.Context, filter SessionFilter) ([]Session, int, error) {
	limit := filter.Limit
	if limit <= 0 || limit > shared.MaxPerPage {
		limit = shared.DefaultPerPage
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM inventory_sessions
WHERE ($1::text = '' OR status = $1::text)`, string(filter.Status)).Scan(&total); err != nil {
		return nil, 0, err
	}
	out := []Session{}
	if filter.Offset >= total {
		return out, total, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT `+sessionColumns+` FROM inventory_sessions
WHERE ($1::text = '' OR status = $1::text)
ORDER BY started_at DESC, id DESC
LIMIT $2 OFFSET $3`, string(filter.Status), limit, filter.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

// Differences joins every count of a session with the live tool quantity.
func (r *Repository) Differences(ctx context.Context, sessionID int64) ([]Difference, error) {
	rows, err := r.pool.Query(ctx, `SELECT c.tool_id, t.name, c.counted_qty, t.quantity
FROM inventory_counts c
JOIN tools t ON t.id = c.tool_id
WHERE c.session_id = $1
ORDER BY c.tool_id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Difference{}
	for rows.Next() {
		var d Difference
		if err := rows.Scan(&d.ToolID, &d.ToolName, &d.CountedQty, &d.SystemQty); err != nil {
			return nil, err
		}
		d.Difference = d.CountedQty - d.SystemQty
		out = append(out, d)
	}
	return out, rows.Err()
}

// ListCorrections returns the corrections proposed in a session.
func (r *Repository) ListCorrections(ctx context.Context, sessionID int64) ([]Correction, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+correctionColumns+` FROM inventory_corrections
WHERE session_id=$1 ORDER BY id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Correction{}
	for rows.Next() {
		c, err := scanCorrection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *txRepo) LockSession(ctx context.Context, id int64, exclusive bool) (Session, error) {
	lock := " FOR SHARE"
	if exclusive {
		lock = " FOR UPDATE"
	}
	s, err := scanSession(r.tx.QueryRow(ctx, `SELECT `+sessionColumns+` FROM inventory_sessions WHERE id=$1`+lock, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrSessionNotFound
	}
	return s, err
}

func (r *txRepo) UpdateSession(ctx context.Context, s Session) error {
	_, err := r.tx.Exec(ctx, `UPDATE inventory_sessions SET status=$2, paused_at=$3, finished_at=$4 WHERE id=$1`,
		s.ID, string(s.Status), s.PausedAt, s.FinishedAt)
	return err
}

func (r *txRepo) DeleteSession(ctx context.Context, id int64) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM inventory_corrections WHERE session_id=$1 AND accepted_at IS NULL`, id); err != nil {
		return err
	}
	tag, err := r.tx.Exec(ctx, `DELETE FROM inventory_sessions WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (r *txRepo) ResolveCode(ctx context.Context, code string) (tools.Tool, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `SELECT id FROM tools
WHERE sku = $1 OR barcode = $1 OR qr_code = $1 OR inventory_number = $1
ORDER BY CASE
	WHEN sku = $1 THEN 1
	WHEN barcode = $1 THEN 2
	WHEN qr_code = $1 THEN 3
	ELSE 4
END, id
LIMIT 1`, code).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return tools.Tool{}, ErrCodeNotFound
	}
	if err != nil {
		return tools.Tool{}, err
	}
	var t tools.Tool
	err = r.tx.QueryRow(ctx, `SELECT id, name, COALESCE(sku,''), COALESCE(barcode,''), COALESCE(qr_code,''),
COALESCE(inventory_number,''), quantity, service_quantity, COALESCE(service_order_number,''), status, created_at, updated_at
FROM tools WHERE id=$1`, id).Scan(&t.ID, &t.Name, &t.SKU, &t.Barcode, &t.QRCode, &t.InventoryNumber,
		&t.Quantity, &t.ServiceQuantity, &t.ServiceOrderNumber, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func (r *txRepo) ToolExists(ctx context.Context, toolID int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tools WHERE id=$1)`, toolID).Scan(&exists)
	return exists, err
}

func (r *txRepo) AddCount(ctx context.Context, sessionID, toolID int64, qty int, at time.Time) (Count, error) {
	c := Count{SessionID: sessionID, ToolID: toolID}
	err := r.tx.QueryRow(ctx, `INSERT INTO inventory_counts (session_id, tool_id, counted_qty, updated_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (session_id, tool_id)
DO UPDATE SET counted_qty = inventory_counts.counted_qty + EXCLUDED.counted_qty, updated_at = EXCLUDED.updated_at
RETURNING counted_qty, updated_at`, sessionID, toolID, qty, at).Scan(&c.CountedQty, &c.UpdatedAt)
	return c, err
}

func (r *txRepo) SetCount(ctx context.Context, sessionID, toolID int64, qty int, at time.Time) (Count, error) {
	c := Count{SessionID: sessionID, ToolID: toolID}
	err := r.tx.QueryRow(ctx, `INSERT INTO inventory_counts (session_id, tool_id, counted_qty, updated_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (session_id, tool_id)
DO UPDATE SET counted_qty = EXCLUDED.counted_qty, updated_at = EXCLUDED.updated_at
RETURNING counted_qty, updated_at`, sessionID, toolID, qty, at).Scan(&c.CountedQty, &c.UpdatedAt)
	return c, err
}

func (r *txRepo) InsertCorrection(ctx context.Context, c Correction) (Correction, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO inventory_corrections (session_id, tool_id, difference_qty, reason, created_by_user_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING `+correctionColumns,
		c.SessionID, c.ToolID, c.DifferenceQty, c.Reason, db.NullInt64(c.CreatedByUserID), c.CreatedAt)
	return scanCorrection(row)
}

func (r *txRepo) GetCorrectionForUpdate(ctx context.Context, id int64) (Correction, error) {
	c, err := scanCorrection(r.tx.QueryRow(ctx, `SELECT `+correctionColumns+` FROM inventory_corrections WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Correction{}, ErrCorrectionNotFound
	}
	return c, err
}

func (r *txRepo) MarkCorrectionAccepted(ctx context.Context, id, userID int64, at time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE inventory_corrections SET accepted_by_user_id=$2, accepted_at=$3
WHERE id=$1 AND accepted_at IS NULL`, id, userID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyAccepted
	}
	return nil
}

func (r *txRepo) DeleteCorrection(ctx context.Context, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM inventory_corrections WHERE id=$1 AND accepted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyAccepted
	}
	return nil
}

func scanSession(row pgx.Row) (Session, error) {
	var s Session
	err := row.Scan(&s.ID, &s.Name, &s.Notes, &s.Status, &s.StartedAt, &s.PausedAt, &s.FinishedAt, &s.OwnerUserID)
	return s, err
}

func scanCorrection(row pgx.Row) (Correction, error) {
	var c Correction
	err := row.Scan(&c.ID, &c.SessionID, &c.ToolID, &c.DifferenceQty, &c.Reason, &c.CreatedByUserID,
		&c.CreatedAt, &c.AcceptedByUserID, &c.AcceptedAt)
	return c, err
}
