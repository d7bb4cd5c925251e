package forum

import (
	"context"
	"database/sql"
	"errors"
)

var ErrArticleNotFound = errors.New("article not found")

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateArticle(ctx context.Context, a *Article) (int, error) {
	var id int
	query := `INSERT INTO articles (author, title, content, category)
	          VALUES ($1, $2, $3, $4) RETURNING article_id`
	err := r.db.QueryRowContext(ctx, query, a.Author, a.Title, a.Content, a.Category).Scan(&id)
	return id, err
}

func (r *Repository) GetArticle(ctx context.Context, id int) (*Article, error) {
	a := &Article{}
	query := `SELECT article_id, author, title, content, category, date_posted
	          FROM articles WHERE article_id = $1`
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&a.ID, &a.Author, &a.Title, &a.Content, &a.Category, &a.DatePosted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrArticleNotFound
		}
		return nil, err
	}
	return a, nil
}

func (r *Repository) ListArticles(ctx context.Context, category string) ([]Article, error) {
	query := `SELECT article_id, author, title, content, category, date_posted
	          FROM articles`
	args := []any{}
	if category != "" {
		query += " WHERE category = $1"
		args = append(args, category)
	}
	query += " ORDER BY date_posted DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var articles []Article
	for rows.Next() {
		var a Article
		if err := rows.Scan(&a.ID, &a.Author, &a.Title, &a.Content, &a.Category, &a.DatePosted); err != nil {
			return nil, err
		}
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

func (r *Repository) CreateComment(ctx context.Context, c *Comment) (int, error) {
	var id int
	query := `INSERT INTO comments (article_id, author, content)
	          VALUES ($1, $2, $3) RETURNING comment_id`
	err := r.db.QueryRowContext(ctx, query, c.ArticleID, c.Author, c.Content).Scan(&id)
	return id, err
}

func (r *Repository) ListComments(ctx context.Context, articleID int) ([]Comment, error) {
	query := `SELECT comment_id, article_id, author, content, date_posted
	          FROM comments WHERE article_id = $1 ORDER BY date_posted`
	rows, err := r.db.QueryContext(ctx, query, articleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var comments []Comment
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.ArticleID, &c.Author, &c.Content, &c.DatePosted); err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}
