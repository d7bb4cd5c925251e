package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type Database struct {
	Conn *sql.DB
}

func NewDatabase(dsn string) (*Database, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(25)
	conn.SetConnMaxLifetime(5 * time.Minute)
	return &Database{Conn: conn}, nil
}

func (d *Database) AutoMigrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
            username VARCHAR(50) PRIMARY KEY,
            password VARCHAR(255) NOT NULL,
            salt VARCHAR(64) NOT NULL,
            online_status BOOLEAN DEFAULT FALSE,
            role VARCHAR(10) CHECK (role IN ('student', 'staff', 'academic', 'admin')) DEFAULT 'student',
            can_post BOOLEAN DEFAULT TRUE,
            can_chat BOOLEAN DEFAULT TRUE,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE TABLE IF NOT EXISTS friends (
            user_id VARCHAR(50) REFERENCES users(username) ON DELETE CASCADE,
            friend_id VARCHAR(50) REFERENCES users(username) ON DELETE CASCADE,
            PRIMARY KEY (user_id, friend_id)
        )`,

		`CREATE TABLE IF NOT EXISTS friend_requests (
            id SERIAL PRIMARY KEY,
            sender VARCHAR(50) REFERENCES users(username) ON DELETE CASCADE,
            recipient VARCHAR(50) REFERENCES users(username) ON DELETE CASCADE,
            accepted BOOLEAN DEFAULT FALSE,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE TABLE IF NOT EXISTS rooms (
            id SERIAL PRIMARY KEY,
            name VARCHAR(120) UNIQUE NOT NULL,
            is_group BOOLEAN DEFAULT FALSE,
            salt VARCHAR(64) NOT NULL,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE TABLE IF NOT EXISTS participants (
            room_id INT REFERENCES rooms(id) ON DELETE CASCADE,
            username VARCHAR(50) REFERENCES users(username) ON DELETE CASCADE,
            joined_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            PRIMARY KEY (room_id, username)
        )`,

		`CREATE TABLE IF NOT EXISTS message_history (
            message_id SERIAL PRIMARY KEY,
            room_id INT REFERENCES rooms(id) ON DELETE CASCADE,
            sender VARCHAR(50) REFERENCES users(username) ON DELETE CASCADE,
            content TEXT NOT NULL,
            encrypted BOOLEAN DEFAULT FALSE,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE TABLE IF NOT EXISTS message_decryption_keys (
            username VARCHAR(50) REFERENCES users(username) ON DELETE CASCADE,
            room_id INT REFERENCES rooms(id) ON DELETE CASCADE,
            encrypted_key TEXT NOT NULL,
            PRIMARY KEY (username, room_id)
        )`,

		`CREATE TABLE IF NOT EXISTS articles (
            article_id SERIAL PRIMARY KEY,
            author VARCHAR(50) REFERENCES users(username) ON DELETE CASCADE,
            title VARCHAR(200) NOT NULL,
            content TEXT NOT NULL,
            category VARCHAR(50) NOT NULL,
            date_posted TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE TABLE IF NOT EXISTS comments (
            comment_id SERIAL PRIMARY KEY,
            article_id INT REFERENCES articles(article_id) ON DELETE CASCADE,
            author VARCHAR(50) REFERENCES users(username) ON DELETE CASCADE,
            content TEXT NOT NULL,
            date_posted TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )`,
	}

	for _, query := range queries {
		_, err := d.Conn.Exec(query)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}
