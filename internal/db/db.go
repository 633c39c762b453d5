package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// ChangeChannel is the NOTIFY channel document writes are announced on.
const ChangeChannel = "docstore_changes"

// Connect opens the database connection and runs migrations.
func Connect(dsn string, log logrus.FieldLogger) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	log.Info("database migrations applied")
	return db, nil
}

func runMigrations(db *sqlx.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS documents (
            collection TEXT NOT NULL,
            id TEXT NOT NULL,
            data JSONB NOT NULL DEFAULT '{}'::jsonb,
            updated_at TIMESTAMPTZ DEFAULT NOW(),
            PRIMARY KEY (collection, id)
        );`,
		`CREATE INDEX IF NOT EXISTS documents_data_idx ON documents USING GIN (data);`,
		`CREATE OR REPLACE FUNCTION notify_document_change() RETURNS trigger AS $$
        BEGIN
            PERFORM pg_notify('` + ChangeChannel + `', json_build_object('collection', NEW.collection, 'id', NEW.id)::text);
            RETURN NEW;
        END;
        $$ LANGUAGE plpgsql;`,
		`DROP TRIGGER IF EXISTS documents_notify ON documents;`,
		`CREATE TRIGGER documents_notify AFTER INSERT OR UPDATE ON documents
            FOR EACH ROW EXECUTE FUNCTION notify_document_change();`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}
