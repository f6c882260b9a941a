// Package builtin carries the economy schema as three ordered migrations:
// baseline tables, seed data and secondary indexes. Forward scripts are
// idempotent so a partially applied set can be re-run; every migration has
// a symmetric reverse script.
package builtin

import (
	"github.com/marwick-io/ledgerstore/dialect"
	"github.com/marwick-io/ledgerstore/migration"
)

// Set returns the built-in migrations for d, in apply order.
func Set(d dialect.Dialect) []migration.Migration {
	scripts := sqliteScripts
	if d.Name() == "mysql" {
		scripts = mysqlScripts
	}

	return []migration.Migration{
		{
			Version:     "1",
			Description: "baseline economy schema",
			Up:          scripts.schemaUp,
			Down:        scripts.schemaDown,
			Priority:    1,
			Baseline:    true,
		},
		{
			Version:     "2",
			Description: "seed system and admin accounts",
			Up:          scripts.seedUp,
			Down:        scripts.seedDown,
			Priority:    2,
		},
		{
			Version:     "3",
			Description: "secondary indexes",
			Up:          scripts.indexUp,
			Down:        scripts.indexDown,
			Priority:    3,
		},
	}
}

type scriptSet struct {
	schemaUp, schemaDown string
	seedUp, seedDown     string
	indexUp, indexDown   string
}

var sqliteScripts = scriptSet{
	schemaUp: `
CREATE TABLE IF NOT EXISTS accounts (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    owner_uuid   TEXT NOT NULL UNIQUE,
    display_name TEXT NOT NULL,
    balance      INTEGER NOT NULL DEFAULT 0,
    frozen       INTEGER NOT NULL DEFAULT 0,
    created_at   INTEGER NOT NULL DEFAULT (unixepoch() * 1000)
);
CREATE TABLE IF NOT EXISTS ledger (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    account_id      INTEGER NOT NULL REFERENCES accounts(id),
    counterparty_id INTEGER REFERENCES accounts(id),
    amount          INTEGER NOT NULL,
    reason          TEXT NOT NULL,
    created_at      INTEGER NOT NULL DEFAULT (unixepoch() * 1000)
);
CREATE TABLE IF NOT EXISTS deposits (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    account_id INTEGER NOT NULL REFERENCES accounts(id),
    amount     INTEGER NOT NULL,
    rate_bps   INTEGER NOT NULL,
    matures_at INTEGER NOT NULL,
    created_at INTEGER NOT NULL DEFAULT (unixepoch() * 1000)
);
CREATE TABLE IF NOT EXISTS loans (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    account_id  INTEGER NOT NULL REFERENCES accounts(id),
    principal   INTEGER NOT NULL,
    outstanding INTEGER NOT NULL,
    rate_bps    INTEGER NOT NULL,
    due_at      INTEGER NOT NULL,
    created_at  INTEGER NOT NULL DEFAULT (unixepoch() * 1000)
);
CREATE TABLE IF NOT EXISTS organizations (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    name             TEXT NOT NULL UNIQUE,
    owner_account_id INTEGER NOT NULL REFERENCES accounts(id),
    created_at       INTEGER NOT NULL DEFAULT (unixepoch() * 1000)
);
CREATE TABLE IF NOT EXISTS risk_records (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    account_id  INTEGER NOT NULL REFERENCES accounts(id),
    score       INTEGER NOT NULL,
    reason      TEXT NOT NULL,
    recorded_at INTEGER NOT NULL DEFAULT (unixepoch() * 1000)
);
CREATE TABLE IF NOT EXISTS device_links (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    account_id INTEGER NOT NULL REFERENCES accounts(id),
    device_id  TEXT NOT NULL,
    linked_at  INTEGER NOT NULL DEFAULT (unixepoch() * 1000),
    UNIQUE (account_id, device_id)
);
`,
	schemaDown: `
DROP TABLE IF EXISTS device_links;
DROP TABLE IF EXISTS risk_records;
DROP TABLE IF EXISTS organizations;
DROP TABLE IF EXISTS loans;
DROP TABLE IF EXISTS deposits;
DROP TABLE IF EXISTS ledger;
DROP TABLE IF EXISTS accounts;
`,
	seedUp: `
INSERT OR IGNORE INTO accounts (id, owner_uuid, display_name, balance)
    VALUES (1, '00000000-0000-0000-0000-000000000000', 'System', 0);
INSERT OR IGNORE INTO accounts (id, owner_uuid, display_name, balance)
    VALUES (2, '00000000-0000-0000-0000-000000000001', 'Admin', 0);
`,
	seedDown: `
DELETE FROM accounts WHERE id IN (1, 2);
`,
	indexUp: `
CREATE INDEX IF NOT EXISTS idx_ledger_account ON ledger (account_id);
CREATE INDEX IF NOT EXISTS idx_ledger_created ON ledger (created_at);
CREATE INDEX IF NOT EXISTS idx_deposits_account ON deposits (account_id);
CREATE INDEX IF NOT EXISTS idx_loans_account ON loans (account_id);
CREATE INDEX IF NOT EXISTS idx_risk_account ON risk_records (account_id);
CREATE INDEX IF NOT EXISTS idx_device_links_device ON device_links (device_id);
`,
	indexDown: `
DROP INDEX IF EXISTS idx_device_links_device;
DROP INDEX IF EXISTS idx_risk_account;
DROP INDEX IF EXISTS idx_loans_account;
DROP INDEX IF EXISTS idx_deposits_account;
DROP INDEX IF EXISTS idx_ledger_created;
DROP INDEX IF EXISTS idx_ledger_account;
`,
}

var mysqlScripts = scriptSet{
	schemaUp: `
CREATE TABLE IF NOT EXISTS accounts (
    id           bigint not null auto_increment,
    owner_uuid   varchar(36) not null,
    display_name varchar(100) not null,
    balance      bigint not null default 0,
    frozen       tinyint(1) not null default 0,
    created_at   bigint not null default 0,
    primary key (id),
    unique key uq_accounts_owner (owner_uuid)
) default charset utf8mb4;
CREATE TABLE IF NOT EXISTS ledger (
    id              bigint not null auto_increment,
    account_id      bigint not null,
    counterparty_id bigint null,
    amount          bigint not null,
    reason          varchar(200) not null,
    created_at      bigint not null default 0,
    primary key (id)
) default charset utf8mb4;
CREATE TABLE IF NOT EXISTS deposits (
    id         bigint not null auto_increment,
    account_id bigint not null,
    amount     bigint not null,
    rate_bps   int not null,
    matures_at bigint not null,
    created_at bigint not null default 0,
    primary key (id)
) default charset utf8mb4;
CREATE TABLE IF NOT EXISTS loans (
    id          bigint not null auto_increment,
    account_id  bigint not null,
    principal   bigint not null,
    outstanding bigint not null,
    rate_bps    int not null,
    due_at      bigint not null,
    created_at  bigint not null default 0,
    primary key (id)
) default charset utf8mb4;
CREATE TABLE IF NOT EXISTS organizations (
    id               bigint not null auto_increment,
    name             varchar(100) not null,
    owner_account_id bigint not null,
    created_at       bigint not null default 0,
    primary key (id),
    unique key uq_organizations_name (name)
) default charset utf8mb4;
CREATE TABLE IF NOT EXISTS risk_records (
    id          bigint not null auto_increment,
    account_id  bigint not null,
    score       int not null,
    reason      varchar(200) not null,
    recorded_at bigint not null default 0,
    primary key (id)
) default charset utf8mb4;
CREATE TABLE IF NOT EXISTS device_links (
    id         bigint not null auto_increment,
    account_id bigint not null,
    device_id  varchar(64) not null,
    linked_at  bigint not null default 0,
    primary key (id),
    unique key uq_device_links (account_id, device_id)
) default charset utf8mb4;
`,
	schemaDown: `
DROP TABLE IF EXISTS device_links;
DROP TABLE IF EXISTS risk_records;
DROP TABLE IF EXISTS organizations;
DROP TABLE IF EXISTS loans;
DROP TABLE IF EXISTS deposits;
DROP TABLE IF EXISTS ledger;
DROP TABLE IF EXISTS accounts;
`,
	seedUp: `
INSERT IGNORE INTO accounts (id, owner_uuid, display_name, balance)
    VALUES (1, '00000000-0000-0000-0000-000000000000', 'System', 0);
INSERT IGNORE INTO accounts (id, owner_uuid, display_name, balance)
    VALUES (2, '00000000-0000-0000-0000-000000000001', 'Admin', 0);
`,
	seedDown: `
DELETE FROM accounts WHERE id IN (1, 2);
`,
	// IF NOT EXISTS on CREATE INDEX needs MariaDB 10.1+.
	indexUp: `
CREATE INDEX IF NOT EXISTS idx_ledger_account ON ledger (account_id);
CREATE INDEX IF NOT EXISTS idx_ledger_created ON ledger (created_at);
CREATE INDEX IF NOT EXISTS idx_deposits_account ON deposits (account_id);
CREATE INDEX IF NOT EXISTS idx_loans_account ON loans (account_id);
CREATE INDEX IF NOT EXISTS idx_risk_account ON risk_records (account_id);
CREATE INDEX IF NOT EXISTS idx_device_links_device ON device_links (device_id);
`,
	indexDown: `
DROP INDEX IF EXISTS idx_device_links_device ON device_links;
DROP INDEX IF EXISTS idx_risk_account ON risk_records;
DROP INDEX IF EXISTS idx_loans_account ON loans;
DROP INDEX IF EXISTS idx_deposits_account ON deposits;
DROP INDEX IF EXISTS idx_ledger_created ON ledger;
DROP INDEX IF EXISTS idx_ledger_account ON ledger;
`,
}
