package forum

import (
	"context"
	"errors"
	"fmt"

	"campuschat/internal/user"
)

var ErrPostingDisabled = errors.New("posting is disabled for this account")

// Store is what the service needs from the forum repository.
type Store interface {
	CreateArticle(ctx context.Context, a *Article) (int, error)
	GetArticle(ctx context.Context, id int) (*Article, error)
	ListArticles(ctx context.Context, category string) ([]Article, error)
	CreateComment(ctx context.Context, c *Comment) (int, error)
	ListComments(ctx context.Context, articleID int) ([]Comment, error)
}

type Service struct {
	repo Store
}

func NewService(repo Store) *Service {
	return &Service{repo: repo}
}

func (s *Service) PostArticle(ctx context.Context, author *user.SessionClaims, req *CreateArticleRequest) (int, error) {
	if !author.CanPost {
		return 0, ErrPostingDisabled
	}
	if req.Title == "" || req.Content == "" || req.Category == "" {
		return 0, fmt.Errorf("title, content and category are required")
	}
	return s.repo.CreateArticle(ctx, &Article{
		Author:   author.Username,
		Title:    req.Title,
		Content:  req.Content,
		Category: req.Category,
	})
}

// PostComment checks the referenced article exists before inserting.
func (s *Service) PostComment(ctx context.Context, author *user.SessionClaims, req *CreateCommentRequest) (int, error) {
	if !author.CanPost {
		return 0, ErrPostingDisabled
	}
	if req.Content == "" {
		return 0, fmt.Errorf("content is required")
	}
	if _, err := s.repo.GetArticle(ctx, req.ArticleID); err != nil {
		return 0, err
	}
	return s.repo.CreateComment(ctx, &Comment{
		ArticleID: req.ArticleID,
		Author:    author.Username,
		Content:   req.Content,
	})
}

func (s *Service) Articles(ctx context.Context, category string) ([]Article, error) {
	return s.repo.ListArticles(ctx, category)
}

// ArticleWithComments loads an article and its comment thread.
func (s *Service) ArticleWithComments(ctx context.Context, id int) (*Article, error) {
	a, err := s.repo.GetArticle(ctx, id)
	if err != nil {
		return nil, err
	}
	comments, err := s.repo.ListComments(ctx, id)
	if err != nil {
		return nil, err
	}
	a.Comments = comments
	return a, nil
}
