package store

// Schema creates the items table. Timestamps are Unix milliseconds.
const Schema = `
CREATE TABLE IF NOT EXISTS items (
	id             INTEGER PRIMARY KEY,
	title          TEXT NOT NULL,
	address        TEXT NOT NULL DEFAULT '',
	city           TEXT NOT NULL DEFAULT '',
	neighborhood   TEXT NOT NULL DEFAULT '',
	price          REAL NOT NULL DEFAULT 0,
	auction_type   TEXT NOT NULL DEFAULT '',
	description    TEXT NOT NULL DEFAULT '',
	fgts           INTEGER NOT NULL DEFAULT 0,
	financing      INTEGER NOT NULL DEFAULT 0,
	installments   INTEGER NOT NULL DEFAULT 0,
	second_auction INTEGER NOT NULL DEFAULT 0,
	created_at     INTEGER NOT NULL,
	updated_at     INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_items_city ON items(city COLLATE NOCASE);
CREATE INDEX IF NOT EXISTS idx_items_neighborhood ON items(neighborhood COLLATE NOCASE);
CREATE INDEX IF NOT EXISTS idx_items_price ON items(price);
`
