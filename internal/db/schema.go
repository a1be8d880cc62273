package db

// Schema creates every table, index and trigger. All statements are
// idempotent so it runs on every open.
//
// Timestamps are Unix milliseconds. note_shares keeps an implicit rowid so the
// shared-with list can be returned in insertion order.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    username TEXT NOT NULL DEFAULT '',
    email TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS notes (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    description TEXT NOT NULL,
    owner_id TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notes_owner_id ON notes(owner_id, created_at);

CREATE TABLE IF NOT EXISTS note_shares (
    note_id TEXT NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
    user_id TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    PRIMARY KEY (note_id, user_id)
);
CREATE INDEX IF NOT EXISTS idx_note_shares_user_id ON note_shares(user_id);

-- FTS5 external-content index over title and description
CREATE VIRTUAL TABLE IF NOT EXISTS fts_notes USING fts5(
    title,
    description,
    content='notes',
    content_rowid='rowid',
    tokenize='porter unicode61'
);

CREATE TRIGGER IF NOT EXISTS notes_ai AFTER INSERT ON notes BEGIN
    INSERT INTO fts_notes(rowid, title, description)
    VALUES (new.rowid, new.title, new.description);
END;

CREATE TRIGGER IF NOT EXISTS notes_ad AFTER DELETE ON notes BEGIN
    INSERT INTO fts_notes(fts_notes, rowid, title, description)
    VALUES ('delete', old.rowid, old.title, old.description);
END;

CREATE TRIGGER IF NOT EXISTS notes_au AFTER UPDATE OF title, description ON notes BEGIN
    INSERT INTO fts_notes(fts_notes, rowid, title, description)
    VALUES ('delete', old.rowid, old.title, old.description);
    INSERT INTO fts_notes(rowid, title, description)
    VALUES (new.rowid, new.title, new.description);
END;
`
