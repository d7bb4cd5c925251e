package forum

import (
	"context"
	"sync"
	"testing"

	"campuschat/internal/user"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu       sync.Mutex
	nextID   int
	articles map[int]*Article
	comments []Comment
}

func newFakeStore() *fakeStore {
	return &fakeStore{articles: make(map[int]*Article)}
}

func (f *fakeStore) CreateArticle(_ context.Context, a *Article) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	cp := *a
	cp.ID = f.nextID
	f.articles[cp.ID] = &cp
	return cp.ID, nil
}

func (f *fakeStore) GetArticle(_ context.Context, id int) (*Article, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.articles[id]
	if !ok {
		return nil, ErrArticleNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeStore) ListArticles(_ context.Context, category string) ([]Article, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Article
	for _, a := range f.articles {
		if category == "" || a.Category == category {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateComment(_ context.Context, c *Comment) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments = append(f.comments, *c)
	return len(f.comments), nil
}

func (f *fakeStore) ListComments(_ context.Context, articleID int) ([]Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Comment
	for _, c := range f.comments {
		if c.ArticleID == articleID {
			out = append(out, c)
		}
	}
	return out, nil
}

func poster(username string) *user.SessionClaims {
	return &user.SessionClaims{Username: username, Role: user.RoleStudent, CanPost: true, CanChat: true}
}

func TestPostArticle_CapabilityGate(t *testing.T) {
	svc := NewService(newFakeStore())
	ctx := context.Background()

	muted := &user.SessionClaims{Username: "muted", CanPost: false}
	_, err := svc.PostArticle(ctx, muted, &CreateArticleRequest{Title: "t", Content: "c", Category: "general"})
	assert.ErrorIs(t, err, ErrPostingDisabled)

	id, err := svc.PostArticle(ctx, poster("alice"), &CreateArticleRequest{Title: "t", Content: "c", Category: "general"})
	require.NoError(t, err)
	assert.NotZero(t, id)

	_, err = svc.PostArticle(ctx, poster("alice"), &CreateArticleRequest{Title: "", Content: "c", Category: "general"})
	assert.Error(t, err, "empty title rejected")
}

func TestPostComment_RequiresExistingArticle(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store)
	ctx := context.Background()

	_, err := svc.PostComment(ctx, poster("bob"), &CreateCommentRequest{ArticleID: 42, Content: "hi"})
	assert.ErrorIs(t, err, ErrArticleNotFound)

	id, err := svc.PostArticle(ctx, poster("alice"), &CreateArticleRequest{Title: "t", Content: "c", Category: "general"})
	require.NoError(t, err)

	_, err = svc.PostComment(ctx, poster("bob"), &CreateCommentRequest{ArticleID: id, Content: "hi"})
	require.NoError(t, err)

	a, err := svc.ArticleWithComments(ctx, id)
	require.NoError(t, err)
	require.Len(t, a.Comments, 1)
	assert.Equal(t, "bob", a.Comments[0].Author)
}

func TestArticles_CategoryFilter(t *testing.T) {
	svc := NewService(newFakeStore())
	ctx := context.Background()

	_, err := svc.PostArticle(ctx, poster("alice"), &CreateArticleRequest{Title: "a", Content: "c", Category: "exams"})
	require.NoError(t, err)
	_, err = svc.PostArticle(ctx, poster("alice"), &CreateArticleRequest{Title: "b", Content: "c", Category: "general"})
	require.NoError(t, err)

	all, err := svc.Articles(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	exams, err := svc.Articles(ctx, "exams")
	require.NoError(t, err)
	require.Len(t, exams, 1)
	assert.Equal(t, "a", exams[0].Title)
}
