package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/toolcrib/toolcrib/internal/platform/db"
	"github.com/toolcrib/toolcrib/internal/shared"
)

// Repository persists the tool ledger in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// LedgerTx is the part of a transaction that can lock and rewrite a tool's
// quantities. Other modules embed it to mutate the ledger inside their own tx.
type LedgerTx interface {
	LockLedger(ctx context.Context, toolID int64) (Ledger, error)
	UpdateLedger(ctx context.Context, tool Tool) error
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	LedgerTx
	InsertIssue(ctx context.Context, issue Issue) (Issue, error)
	GetIssueForUpdate(ctx context.Context, issueID int64) (Issue, error)
	UpdateIssue(ctx context.Context, issue Issue) error
	InsertIssueReturn(ctx context.Context, ret IssueReturn) error
	InsertServiceEntry(ctx context.Context, entry ServiceHistoryEntry) (ServiceHistoryEntry, error)
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository binds the ledger queries to an open transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

const toolColumns = `id, name, COALESCE(sku,''), COALESCE(barcode,''), COALESCE(qr_code,''), COALESCE(inventory_number,''),
quantity, service_quantity, COALESCE(service_order_number,''), status, created_at, updated_at`

// WithTx executes the callback inside a read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("tools repository not initialised")
	}
	return db.WithTx(ctx, r.pool, db.LedgerTxOptions, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

// CreateTool inserts a new tool row.
func (r *Repository) CreateTool(ctx context.Context, tool Tool) (Tool, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO tools (name, sku, barcode, qr_code, inventory_number, quantity, service_quantity, status)
VALUES ($1,$2,$3,$4,$5,$6,0,$7)
RETURNING `+toolColumns,
		tool.Name, db.NullString(tool.SKU), db.NullString(tool.Barcode), db.NullString(tool.QRCode),
		db.NullString(tool.InventoryNumber), tool.Quantity, string(tool.Status))
	created, err := scanTool(row)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Tool{}, ErrDuplicateIdentifier
		}
		return Tool{}, err
	}
	return created, nil
}

// GetLedger loads a tool and its live issued quantity without locking.
func (r *Repository) GetLedger(ctx context.Context, toolID int64) (Ledger, error) {
	return loadLedger(ctx, r.pool, toolID, "")
}

// toolFilter takes $1 status and $2 search term.
const toolFilter = `WHERE ($1::text = '' OR status = $1::text)
  AND ($2::text = '' OR name ILIKE '%' || $2::text || '%' OR sku = $2::text OR inventory_number = $2::text)`

// ListTools returns one page of tools ordered by id and the total match count.
func (r *Repository) ListTools(ctx context.Context, filter ListFilter) ([]Tool, int, error) {
	limit := filter.Limit
	if limit <= 0 || limit > shared.MaxPerPage {
		limit = shared.DefaultPerPage
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tools `+toolFilter,
		string(filter.Status), filter.Search).Scan(&total); err != nil {
		return nil, 0, err
	}
	out := []Tool{}
	if filter.Offset >= total {
		return out, total, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT `+toolColumns+` FROM tools `+toolFilter+`
ORDER BY id
LIMIT $3 OFFSET $4`, string(filter.Status), filter.Search, limit, filter.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	for rows.Next() {
		var t Tool
		if err := rows.Scan(&t.ID, &t.Name, &t.SKU, &t.Barcode, &t.QRCode, &t.InventoryNumber,
			&t.Quantity, &t.ServiceQuantity, &t.ServiceOrderNumber, &t.Status, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, t)
	}
	return out, total, rows.Err()
}

// ListIssues returns every issue of a tool, newest first.
func (r *Repository) ListIssues(ctx context.Context, toolID int64) ([]Issue, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, tool_id, employee_id, quantity, returned_quantity, issued_at, returned_at, status
FROM tool_issues WHERE tool_id=$1 ORDER BY issued_at DESC, id DESC`, toolID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Issue{}
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, issue)
	}
	return out, rows.Err()
}

// ServiceHistory returns the service log of a tool in chronological order.
func (r *Repository) ServiceHistory(ctx context.Context, toolID int64) ([]ServiceHistoryEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, tool_id, action, quantity, COALESCE(order_number,''), created_at
FROM tool_service_history WHERE tool_id=$1 ORDER BY created_at, id`, toolID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []ServiceHistoryEntry{}
	for rows.Next() {
		var e ServiceHistoryEntry
		if err := rows.Scan(&e.ID, &e.ToolID, &e.Action, &e.Quantity, &e.OrderNumber, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ToolIDsAfter pages through tool ids for the repair sweep.
func (r *Repository) ToolIDsAfter(ctx context.Context, afterID int64, limit int) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM tools WHERE id > $1 ORDER BY id LIMIT $2`, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *txRepository) LockLedger(ctx context.Context, toolID int64) (Ledger, error) {
	return loadLedger(ctx, r.tx, toolID, " FOR UPDATE")
}

func (r *txRepository) UpdateLedger(ctx context.Context, tool Tool) error {
	tag, err := r.tx.Exec(ctx, `UPDATE tools
SET quantity=$2, service_quantity=$3, service_order_number=$4, status=$5, updated_at=NOW()
WHERE id=$1`, tool.ID, tool.Quantity, tool.ServiceQuantity, db.NullString(tool.ServiceOrderNumber), string(tool.Status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrToolNotFound
	}
	return nil
}

func (r *txRepository) InsertIssue(ctx context.Context, issue Issue) (Issue, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO tool_issues (tool_id, employee_id, quantity, returned_quantity, issued_at, status)
VALUES ($1,$2,$3,0,$4,$5)
RETURNING id, tool_id, employee_id, quantity, returned_quantity, issued_at, returned_at, status`,
		issue.ToolID, issue.EmployeeID, issue.Quantity, issue.IssuedAt, string(IssueStatusIssued))
	return scanIssue(row)
}

func (r *txRepository) GetIssueForUpdate(ctx context.Context, issueID int64) (Issue, error) {
	row := r.tx.QueryRow(ctx, `SELECT id, tool_id, employee_id, quantity, returned_quantity, issued_at, returned_at, status
FROM tool_issues WHERE id=$1 FOR UPDATE`, issueID)
	issue, err := scanIssue(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Issue{}, ErrIssueNotFound
		}
		return Issue{}, err
	}
	return issue, nil
}

func (r *txRepository) UpdateIssue(ctx context.Context, issue Issue) error {
	_, err := r.tx.Exec(ctx, `UPDATE tool_issues SET returned_quantity=$2, returned_at=$3, status=$4 WHERE id=$1`,
		issue.ID, issue.ReturnedQuantity, issue.ReturnedAt, string(issue.Status))
	return err
}

func (r *txRepository) InsertIssueReturn(ctx context.Context, ret IssueReturn) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO tool_issue_returns (issue_id, quantity, returned_at) VALUES ($1,$2,$3)`,
		ret.IssueID, ret.Quantity, ret.ReturnedAt)
	return err
}

func (r *txRepository) InsertServiceEntry(ctx context.Context, entry ServiceHistoryEntry) (ServiceHistoryEntry, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO tool_service_history (tool_id, action, quantity, order_number, created_at)
VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		entry.ToolID, string(entry.Action), entry.Quantity, db.NullString(entry.OrderNumber), entry.CreatedAt).Scan(&entry.ID)
	return entry, err
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func loadLedger(ctx context.Context, q querier, toolID int64, lock string) (Ledger, error) {
	tool, err := scanTool(q.QueryRow(ctx, `SELECT `+toolColumns+` FROM tools WHERE id=$1`+lock, toolID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Ledger{}, ErrToolNotFound
		}
		return Ledger{}, err
	}
	ledger := Ledger{Tool: tool}
	err = q.QueryRow(ctx, `SELECT COALESCE(SUM(quantity - returned_quantity), 0)
FROM tool_issues WHERE tool_id=$1 AND status=$2`, toolID, string(IssueStatusIssued)).Scan(&ledger.IssuedQty)
	if err != nil {
		return Ledger{}, fmt.Errorf("tools: sum open issues: %w", err)
	}
	return ledger, nil
}

func scanTool(row pgx.Row) (Tool, error) {
	var t Tool
	err := row.Scan(&t.ID, &t.Name, &t.SKU, &t.Barcode, &t.QRCode, &t.InventoryNumber,
		&t.Quantity, &t.ServiceQuantity, &t.ServiceOrderNumber, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func scanIssue(row pgx.Row) (Issue, error) {
	var i Issue
	err := row.Scan(&i.ID, &i.ToolID, &i.EmployeeID, &i.Quantity, &i.ReturnedQuantity, &i.IssuedAt, &i.ReturnedAt, &i.Status)
	return i, err
}
