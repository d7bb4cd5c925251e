package forum

import "time"

type Article struct {
	ID         int       `json:"article_id"`
	Author     string    `json:"author"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Category   string    `json:"category"`
	DatePosted time.Time `json:"date_posted"`
	Comments   []Comment `json:"comments,omitempty"`
}

type Comment struct {
	ID         int       `json:"comment_id"`
	ArticleID  int       `json:"article_id"`
	Author     string    `json:"author"`
	Content    string    `json:"content"`
	DatePosted time.Time `json:"date_posted"`
}

type CreateArticleRequest struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Category string `json:"category"`
}

type CreateCommentRequest struct {
	ArticleID int    `json:"article_id"`
	Content   string `json:"content"`
}
