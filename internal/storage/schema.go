package storage

const schema = `
-- 'sources' tracks where vocabulary files come from: a local directory or a git repository.
CREATE TABLE IF NOT EXISTS sources (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL,
    path TEXT NOT NULL,
    type TEXT NOT NULL DEFAULT 'local',
    last_scanned TEXT,

    UNIQUE(user_id, path)
);

-- 'vocabulary' holds the items a user saved. hash identifies the normalized content.
-- source_id is the source that first provided the item; manual marks items the
-- user saved by hand. Sources currently listing the item are in vocabulary_sources.
CREATE TABLE IF NOT EXISTS vocabulary (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL,
    word TEXT NOT NULL,
    translation TEXT NOT NULL DEFAULT '',
    context TEXT NOT NULL DEFAULT '',
    hash TEXT NOT NULL,
    source_id INTEGER,
    manual INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,

    UNIQUE(user_id, hash),
    FOREIGN KEY(source_id) REFERENCES sources(id) ON DELETE SET NULL
);

-- 'vocabulary_sources' links an item to every source that lists it. An item
-- imported from files is removed only when its last link goes and it is not manual.
CREATE TABLE IF NOT EXISTS vocabulary_sources (
    vocabulary_id INTEGER NOT NULL,
    source_id INTEGER NOT NULL,

    PRIMARY KEY(vocabulary_id, source_id),
    FOREIGN KEY(vocabulary_id) REFERENCES vocabulary(id) ON DELETE CASCADE,
    FOREIGN KEY(source_id) REFERENCES sources(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_vocabulary_sources_source ON vocabulary_sources(source_id);

-- 'cards' is the scheduling state, one row per vocabulary item.
-- Timestamps are fixed-width UTC text so that string order is time order.
CREATE TABLE IF NOT EXISTS cards (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    vocabulary_id INTEGER NOT NULL UNIQUE,
    user_id INTEGER NOT NULL,
    stability REAL NOT NULL DEFAULT 0,
    difficulty REAL NOT NULL DEFAULT 0,
    reps INTEGER NOT NULL DEFAULT 0,
    lapses INTEGER NOT NULL DEFAULT 0,
    state INTEGER NOT NULL DEFAULT 0, -- 0: New, 1: Learning, 2: Review, 3: Relearning
    elapsed_days REAL NOT NULL DEFAULT 0,
    scheduled_days REAL NOT NULL DEFAULT 0,
    learning_step INTEGER NOT NULL DEFAULT 0,
    last_review TEXT,
    due TEXT,
    version INTEGER NOT NULL DEFAULT 1,

    FOREIGN KEY(vocabulary_id) REFERENCES vocabulary(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_cards_user_due ON cards(user_id, due);

-- 'review_logs' is append-only: one row per grading event.
CREATE TABLE IF NOT EXISTS review_logs (
    id TEXT PRIMARY KEY,
    card_id INTEGER NOT NULL,
    grade INTEGER NOT NULL, -- 1: Again, 2: Hard, 3: Good, 4: Easy
    state INTEGER NOT NULL,
    stability REAL NOT NULL,
    difficulty REAL NOT NULL,
    elapsed_days REAL NOT NULL,
    scheduled_days REAL NOT NULL,
    reviewed_at TEXT NOT NULL,

    FOREIGN KEY(card_id) REFERENCES cards(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_review_logs_card ON review_logs(card_id, reviewed_at);
`
