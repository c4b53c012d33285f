package database

import (
	"database/sql"
)

type PgChatRepository struct {
	conn *sql.DB
}

func NewPgChatRepository(dsn string) (*PgChatRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &PgChatRepository{conn: db}, nil
}

// compile-time check to ensure PgChatRepository implements ChatRepository.
var _ ChatRepository = (*PgChatRepository)(nil)

func (db *PgChatRepository) Ping() error {
	return db.conn.Ping()
}

func (db *PgChatRepository) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}
