package db

// Migrations is the ordered schema history. Append only; never edit an entry
// that has shipped.
var Migrations = []Migration{
	{Version: 1, Name: "tools", SQL: `
CREATE TABLE tools (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	sku TEXT UNIQUE,
	barcode TEXT UNIQUE,
	qr_code TEXT UNIQUE,
	inventory_number TEXT UNIQUE,
	quantity INTEGER NOT NULL DEFAULT 1 CHECK (quantity >= 0),
	service_quantity INTEGER NOT NULL DEFAULT 0 CHECK (service_quantity >= 0),
	service_order_number TEXT,
	status TEXT NOT NULL DEFAULT 'available'
		CHECK (status IN ('available','partially_issued','issued','service')),
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`},
	{Version: 2, Name: "tool_issues", SQL: `
CREATE TABLE tool_issues (
	id BIGSERIAL PRIMARY KEY,
	tool_id BIGINT NOT NULL REFERENCES tools(id),
	employee_id BIGINT NOT NULL,
	quantity INTEGER NOT NULL CHECK (quantity > 0),
	returned_quantity INTEGER NOT NULL DEFAULT 0 CHECK (returned_quantity >= 0),
	issued_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	returned_at TIMESTAMPTZ,
	status TEXT NOT NULL DEFAULT 'issued' CHECK (status IN ('issued','returned')),
	CHECK (returned_quantity <= quantity)
);
CREATE INDEX tool_issues_open_idx ON tool_issues (tool_id) WHERE status = 'issued';
CREATE TABLE tool_issue_returns (
	id BIGSERIAL PRIMARY KEY,
	issue_id BIGINT NOT NULL REFERENCES tool_issues(id),
	quantity INTEGER NOT NULL CHECK (quantity > 0),
	returned_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`},
	{Version: 3, Name: "tool_service_history", SQL: `
CREATE TABLE tool_service_history (
	id BIGSERIAL PRIMARY KEY,
	tool_id BIGINT NOT NULL REFERENCES tools(id),
	action TEXT NOT NULL CHECK (action IN ('sent','received')),
	quantity INTEGER NOT NULL CHECK (quantity > 0),
	order_number TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX tool_service_history_tool_idx ON tool_service_history (tool_id, created_at);`},
	{Version: 4, Name: "inventory_sessions", SQL: `
CREATE TABLE inventory_sessions (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	notes TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active','paused','ended')),
	started_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	paused_at TIMESTAMPTZ,
	finished_at TIMESTAMPTZ,
	owner_user_id BIGINT NOT NULL
);
CREATE TABLE inventory_counts (
	id BIGSERIAL PRIMARY KEY,
	session_id BIGINT NOT NULL REFERENCES inventory_sessions(id) ON DELETE CASCADE,
	tool_id BIGINT NOT NULL REFERENCES tools(id),
	counted_qty INTEGER NOT NULL CHECK (counted_qty >= 0),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (session_id, tool_id)
);
CREATE TABLE inventory_corrections (
	id BIGSERIAL PRIMARY KEY,
	session_id BIGINT REFERENCES inventory_sessions(id) ON DELETE SET NULL,
	tool_id BIGINT NOT NULL REFERENCES tools(id),
	difference_qty INTEGER NOT NULL CHECK (difference_qty <> 0),
	reason TEXT NOT NULL DEFAULT '',
	created_by_user_id BIGINT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	accepted_by_user_id BIGINT,
	accepted_at TIMESTAMPTZ,
	CHECK ((accepted_by_user_id IS NULL) = (accepted_at IS NULL))
);
CREATE INDEX inventory_corrections_session_idx ON inventory_corrections (session_id);`},
	{Version: 5, Name: "audit_and_idempotency", SQL: `
CREATE TABLE audit_logs (
	id BIGSERIAL PRIMARY KEY,
	actor_id BIGINT,
	action TEXT NOT NULL,
	entity TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	meta JSONB NOT NULL DEFAULT '{}'::jsonb,
	occurred_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE idempotency_keys (
	scope TEXT NOT NULL,
	key TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (scope, key)
);
CREATE INDEX idempotency_keys_created_at_idx ON idempotency_keys (created_at);`},
}
