package storage

const schemaSQL = `
-- Raw listings, one row per link ever observed
CREATE TABLE IF NOT EXISTS raw_listings (
    scrape_date TEXT NOT NULL,
    title TEXT NOT NULL,
    price REAL NOT NULL,
    link TEXT UNIQUE NOT NULL,
    page INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_raw_listings_page ON raw_listings(page);

` + cleanTableSQL + `

CREATE INDEX IF NOT EXISTS idx_clean_listings_title ON clean_listings(title);

-- Operator RAM corrections, re-applied on every clean rebuild
CREATE TABLE IF NOT EXISTS ram_corrections (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    pattern TEXT NOT NULL,
    exact INTEGER NOT NULL DEFAULT 0,
    ram INTEGER NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- One row per crawl run
CREATE TABLE IF NOT EXISTS crawl_runs (
    run_id TEXT PRIMARY KEY NOT NULL,
    started_at DATETIME NOT NULL,
    finished_at DATETIME NOT NULL,
    start_page INTEGER NOT NULL,
    end_page INTEGER NOT NULL,
    last_page INTEGER NOT NULL,
    scraped INTEGER NOT NULL DEFAULT 0,
    saved INTEGER NOT NULL DEFAULT 0,
    skipped INTEGER NOT NULL DEFAULT 0,
    discarded INTEGER NOT NULL DEFAULT 0,
    failed_pages TEXT NOT NULL DEFAULT '[]',
    interrupted INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_crawl_runs_started ON crawl_runs(started_at);

-- Crawl meta table stores metadata as key-value pairs
CREATE TABLE IF NOT EXISTS crawl_meta (
    key TEXT PRIMARY KEY NOT NULL,
    value TEXT NOT NULL
);
`

// cleanTable is the name readers query
const cleanTable = "clean_listings"

// cleanTableSQL creates the clean table. Rebuilds create their staging
// table from the same statement under another name.
const cleanTableSQL = `CREATE TABLE IF NOT EXISTS clean_listings (
    scrape_date TEXT NOT NULL,
    title TEXT NOT NULL,
    price REAL NOT NULL,
    link TEXT NOT NULL,
    page INTEGER NOT NULL,
    brand TEXT NOT NULL,
    cpu TEXT NOT NULL,
    ram INTEGER NOT NULL,
    quality_score REAL NOT NULL,
    value_ratio REAL NOT NULL
);`
