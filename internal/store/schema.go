package store

// entitiesSchema holds all entities as canonical JSON documents. One table
// serves every entity type; the document itself carries the fields.
// Compatible with both SQLite and PostgreSQL.
const entitiesSchema = `
CREATE TABLE IF NOT EXISTS entities (
	entity_type TEXT NOT NULL,
	id          TEXT NOT NULL,
	doc         TEXT NOT NULL,
	created_at  TIMESTAMP NOT NULL,
	updated_at  TIMESTAMP NOT NULL,
	PRIMARY KEY (entity_type, id)
)
`
