package catalog

const schema = `
CREATE TABLE IF NOT EXISTS dogs (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    category TEXT NOT NULL DEFAULT '',
    sector TEXT,
    pen TEXT,
    status TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    photo_path TEXT NOT NULL DEFAULT '',
    embedding BLOB,
    created_at DATETIME DEFAULT (datetime('now')),
    updated_at DATETIME DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_dogs_sector ON dogs(sector);
`

const (
	queryUpsert = `
INSERT INTO dogs (id, name, category, sector, pen, status, description, photo_path)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    name = excluded.name,
    category = excluded.category,
    sector = excluded.sector,
    pen = excluded.pen,
    status = excluded.status,
    description = excluded.description,
    photo_path = excluded.photo_path,
    updated_at = datetime('now')`

	selectRecord = `SELECT id, name, category, sector, pen, status, description, photo_path FROM dogs`

	queryGet = selectRecord + ` WHERE id = ?`

	queryList = selectRecord + ` ORDER BY id`

	querySector = selectRecord + ` WHERE sector = ? ORDER BY id`

	queryDelete = `DELETE FROM dogs WHERE id = ?`

	querySetEmbedding = `
UPDATE dogs SET embedding = ?, embedding_model = ?, updated_at = datetime('now')
WHERE id = ?`

	queryClearEmbeddings = `UPDATE dogs SET embedding = NULL, embedding_model = NULL`

	queryGetEmbedding = `SELECT embedding, embedding_model FROM dogs WHERE id = ?`

	queryPhotos = `SELECT id, photo_path FROM dogs WHERE photo_path != '' ORDER BY id`

	queryPendingPhotos = `SELECT id, photo_path FROM dogs WHERE photo_path != '' AND embedding IS NULL ORDER BY id`

	queryCountEmbedded = `SELECT COUNT(*), COUNT(embedding) FROM dogs`
)
