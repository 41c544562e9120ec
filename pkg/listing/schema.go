package listing

// Schema creates the listing tables. It is valid for both PostgreSQL and SQLite.
const Schema = `
CREATE TABLE IF NOT EXISTS listings (
    id             TEXT PRIMARY KEY,
    owner_id       TEXT NOT NULL,
    title          TEXT NOT NULL,
    description    TEXT NOT NULL DEFAULT '',
    category       TEXT NOT NULL,
    price_cents    BIGINT NOT NULL DEFAULT 0,
    view_count     BIGINT NOT NULL DEFAULT 0,
    created_at     TIMESTAMP NOT NULL,
    updated_at     TIMESTAMP NOT NULL,
    last_viewed_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_listings_owner ON listings(owner_id);
CREATE INDEX IF NOT EXISTS idx_listings_category ON listings(category);
`

const (
	titleMaxLength       = 120
	descriptionMaxLength = 4000
	defaultListLimit     = 50
	maxListLimit         = 200
)
