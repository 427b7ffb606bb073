package sqlite

// Schema DDL. Paths are stored as cleaned slash keys without a leading slash;
// the root directory is the empty string.
const (
	createFiles = `CREATE TABLE IF NOT EXISTS files (
    path TEXT PRIMARY KEY,
    revision TEXT NOT NULL,
    content TEXT NOT NULL,
    updated_at TEXT NOT NULL
);`

	createDirectories = `CREATE TABLE IF NOT EXISTS directories (
    path TEXT PRIMARY KEY,
    created_at TEXT NOT NULL
);`
)

const (
	idxFilesUpdated = `CREATE INDEX IF NOT EXISTS idx_files_updated ON files(updated_at);`
)

// pragmas run before the schema on every open.
var pragmas = []string{
	`PRAGMA journal_mode = WAL;`,
	`PRAGMA busy_timeout = 5000;`,
}

// schemaDDL lists the CREATE TABLE statements.
var schemaDDL = []string{
	createFiles,
	createDirectories,
}

var indexDDL = []string{
	idxFilesUpdated,
}
