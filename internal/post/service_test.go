package post

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/blogman/internal/model"
	"github.com/hitoshi/blogman/internal/repository"
)

// mockPostRepo はPostRepositoryのモック実装。
type mockPostRepo struct {
	findByIDFunc func(ctx context.Context, id string) (*repository.PostWithAuthor, error)
	listFunc     func(ctx context.Context, filter model.PostFilter, limit, offset int) ([]repository.PostWithAuthor, error)
	countFunc    func(ctx context.Context, filter model.PostFilter) (int, error)
	createFunc   func(ctx context.Context, post *model.Post, tagNames []string) error
	updateFunc   func(ctx context.Context, post *model.Post, tagNames []string) error
	deleteFunc   func(ctx context.Context, id string) error
	tagNamesFunc func(ctx context.Context, postID string) ([]string, error)
}

func (m *mockPostRepo) FindByID(ctx context.Context, id string) (*repository.PostWithAuthor, error) {
	return m.findByIDFunc(ctx, id)
}

func (m *mockPostRepo) List(ctx context.Context, filter model.PostFilter, limit, offset int) ([]repository.PostWithAuthor, error) {
	return m.listFunc(ctx, filter, limit, offset)
}

func (m *mockPostRepo) Count(ctx context.Context, filter model.PostFilter) (int, error) {
	return m.countFunc(ctx, filter)
}

func (m *mockPostRepo) Create(ctx context.Context, post *model.Post, tagNames []string) error {
	return m.createFunc(ctx, post, tagNames)
}

func (m *mockPostRepo) Update(ctx context.Context, post *model.Post, tagNames []string) error {
	return m.updateFunc(ctx, post, tagNames)
}

func (m *mockPostRepo) Delete(ctx context.Context, id string) error {
	return m.deleteFunc(ctx, id)
}

func (m *mockPostRepo) TagNames(ctx context.Context, postID string) ([]string, error) {
	return m.tagNamesFunc(ctx, postID)
}

// mockTagRepo はTagRepositoryのモック実装。
type mockTagRepo struct {
	ensureAllFunc func(ctx context.Context, names []string) error
	listNamesFunc func(ctx context.Context) ([]string, error)
}

func (m *mockTagRepo) EnsureAll(ctx context.Context, names []string) error {
	return m.ensureAllFunc(ctx, names)
}

func (m *mockTagRepo) ListNames(ctx context.Context) ([]string, error) {
	return m.listNamesFunc(ctx)
}

// mockRenderer はRendererのモック実装。
type mockRenderer struct {
	renderFunc func(source string) (string, error)
}

func (m *mockRenderer) Render(source string) (string, error) {
	return m.renderFunc(source)
}

func testPostRow(id, authorID string) repository.PostWithAuthor {
	return repository.PostWithAuthor{
		Post: model.Post{
			ID:        id,
			Title:     "テスト記事",
			Summary:   "概要",
			Content:   "# 本文",
			AuthorID:  authorID,
			CreatedAt: time.Now().Add(-time.Hour),
			UpdatedAt: time.Now(),
		},
		AuthorUsername: "alice",
	}
}

func TestListPosts_Pagination(t *testing.T) {
	tests := []struct {
		name           string
		count          int
		page           int
		wantPage       int
		wantTotalPages int
		wantOffset     int
	}{
		{name: "1ページ目", count: 12, page: 1, wantPage: 1, wantTotalPages: 3, wantOffset: 0},
		{name: "2ページ目", count: 12, page: 2, wantPage: 2, wantTotalPages: 3, wantOffset: 5},
		{name: "0以下は1ページ目に丸める", count: 12, page: 0, wantPage: 1, wantTotalPages: 3, wantOffset: 0},
		{name: "ちょうど1ページ分", count: 5, page: 1, wantPage: 1, wantTotalPages: 1, wantOffset: 0},
		{name: "記事なし", count: 0, page: 1, wantPage: 1, wantTotalPages: 0, wantOffset: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotLimit, gotOffset int
			postRepo := &mockPostRepo{
				countFunc: func(ctx context.Context, filter model.PostFilter) (int, error) {
					return tt.count, nil
				},
				listFunc: func(ctx context.Context, filter model.PostFilter, limit, offset int) ([]repository.PostWithAuthor, error) {
					gotLimit = limit
					gotOffset = offset
					return nil, nil
				},
			}

			service := NewService(postRepo, &mockTagRepo{}, &mockRenderer{})

			page, err := service.ListPosts(context.Background(), model.PostFilter{}, tt.page)
			if err != nil {
				t.Fatalf("ListPosts failed: %v", err)
			}

			if page.Page != tt.wantPage {
				t.Errorf("Page = %d, want %d", page.Page, tt.wantPage)
			}
			if page.TotalPages != tt.wantTotalPages {
				t.Errorf("TotalPages = %d, want %d", page.TotalPages, tt.wantTotalPages)
			}
			if page.TotalCount != tt.count {
				t.Errorf("TotalCount = %d, want %d", page.TotalCount, tt.count)
			}
			if gotLimit != PostsPerPage {
				t.Errorf("limit = %d, want %d", gotLimit, PostsPerPage)
			}
			if gotOffset != tt.wantOffset {
				t.Errorf("offset = %d, want %d", gotOffset, tt.wantOffset)
			}
		})
	}
}

func TestListPosts_FilterPassedThrough(t *testing.T) {
	var gotFilter model.PostFilter
	postRepo := &mockPostRepo{
		countFunc: func(ctx context.Context, filter model.PostFilter) (int, error) {
			return 1, nil
		},
		listFunc: func(ctx context.Context, filter model.PostFilter, limit, offset int) ([]repository.PostWithAuthor, error) {
			gotFilter = filter
			return []repository.PostWithAuthor{testPostRow("post-1", "user-1")}, nil
		},
	}

	service := NewService(postRepo, &mockTagRepo{}, &mockRenderer{})

	filter := model.PostFilter{Tag: "go"}
	page, err := service.ListPosts(context.Background(), filter, 1)
	if err != nil {
		t.Fatalf("ListPosts failed: %v", err)
	}

	if gotFilter != filter {
		t.Errorf("filter = %+v, want %+v", gotFilter, filter)
	}
	if len(page.Posts) != 1 {
		t.Fatalf("len(Posts) = %d, want 1", len(page.Posts))
	}
	if page.Posts[0].AuthorUsername != "alice" {
		t.Errorf("AuthorUsername = %q, want %q", page.Posts[0].AuthorUsername, "alice")
	}
}

func TestGetPost_Success(t *testing.T) {
	postRepo := &mockPostRepo{
		findByIDFunc: func(ctx context.Context, id string) (*repository.PostWithAuthor, error) {
			row := testPostRow(id, "user-1")
			return &row, nil
		},
		tagNamesFunc: func(ctx context.Context, postID string) ([]string, error) {
			return []string{"go", "web"}, nil
		},
	}
	renderer := &mockRenderer{
		renderFunc: func(source string) (string, error) {
			return "<h1>本文</h1>", nil
		},
	}

	service := NewService(postRepo, &mockTagRepo{}, renderer)

	detail, err := service.GetPost(context.Background(), "post-1")
	if err != nil {
		t.Fatalf("GetPost failed: %v", err)
	}
	if detail == nil {
		t.Fatal("GetPost returned nil")
	}

	if detail.Content != "# 本文" {
		t.Errorf("Content = %q, want markdown source", detail.Content)
	}
	if detail.ContentHTML != "<h1>本文</h1>" {
		t.Errorf("ContentHTML = %q, want rendered HTML", detail.ContentHTML)
	}
	if len(detail.TagNames) != 2 {
		t.Errorf("len(TagNames) = %d, want 2", len(detail.TagNames))
	}
}

func TestGetPost_NotFound(t *testing.T) {
	postRepo := &mockPostRepo{
		findByIDFunc: func(ctx context.Context, id string) (*repository.PostWithAuthor, error) {
			return nil, nil
		},
	}

	service := NewService(postRepo, &mockTagRepo{}, &mockRenderer{})

	detail, err := service.GetPost(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetPost failed: %v", err)
	}
	if detail != nil {
		t.Errorf("GetPost = %+v, want nil", detail)
	}
}

func TestCreatePost_Success(t *testing.T) {
	var ensuredTags []string
	var createdPost *model.Post
	var createdTags []string

	postRepo := &mockPostRepo{
		createFunc: func(ctx context.Context, post *model.Post, tagNames []string) error {
			createdPost = post
			createdTags = tagNames
			return nil
		},
	}
	tagRepo := &mockTagRepo{
		ensureAllFunc: func(ctx context.Context, names []string) error {
			ensuredTags = names
			return nil
		},
	}

	service := NewService(postRepo, tagRepo, &mockRenderer{})

	input := PostInput{
		Title:    "新しい記事",
		Summary:  "概要",
		Content:  "本文",
		TagNames: []string{"go", "新タグ"},
	}
	post, err := service.CreatePost(context.Background(), "user-1", input)
	if err != nil {
		t.Fatalf("CreatePost failed: %v", err)
	}

	// 作成者は認証ユーザーで固定される
	if post.AuthorID != "user-1" {
		t.Errorf("AuthorID = %q, want %q", post.AuthorID, "user-1")
	}
	if post.ID == "" {
		t.Error("ID is empty")
	}
	if createdPost == nil {
		t.Fatal("Create was not called")
	}
	// 未知のタグは保存前に作成される
	if len(ensuredTags) != 2 {
		t.Errorf("EnsureAll called with %d tags, want 2", len(ensuredTags))
	}
	if len(createdTags) != 2 {
		t.Errorf("Create called with %d tags, want 2", len(createdTags))
	}
}

func TestUpdatePost_Success(t *testing.T) {
	var updatedPost *model.Post
	var updatedTags []string

	postRepo := &mockPostRepo{
		findByIDFunc: func(ctx context.Context, id string) (*repository.PostWithAuthor, error) {
			row := testPostRow(id, "user-1")
			return &row, nil
		},
		updateFunc: func(ctx context.Context, post *model.Post, tagNames []string) error {
			updatedPost = post
			updatedTags = tagNames
			return nil
		},
	}
	tagRepo := &mockTagRepo{
		ensureAllFunc: func(ctx context.Context, names []string) error {
			return nil
		},
	}

	service := NewService(postRepo, tagRepo, &mockRenderer{})

	input := PostInput{
		Title:    "更新後タイトル",
		Summary:  "更新後概要",
		Content:  "更新後本文",
		TagNames: []string{"web"},
	}
	post, err := service.UpdatePost(context.Background(), "user-1", "post-1", input)
	if err != nil {
		t.Fatalf("UpdatePost failed: %v", err)
	}

	if post.Title != "更新後タイトル" {
		t.Errorf("Title = %q, want updated title", post.Title)
	}
	if updatedPost == nil {
		t.Fatal("Update was not called")
	}
	// タグ集合は送信された集合で置き換える
	if len(updatedTags) != 1 || updatedTags[0] != "web" {
		t.Errorf("tags = %v, want [web]", updatedTags)
	}
}

func TestUpdatePost_NotFound(t *testing.T) {
	postRepo := &mockPostRepo{
		findByIDFunc: func(ctx context.Context, id string) (*repository.PostWithAuthor, error) {
			return nil, nil
		},
	}

	service := NewService(postRepo, &mockTagRepo{}, &mockRenderer{})

	_, err := service.UpdatePost(context.Background(), "user-1", "missing", PostInput{})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error is not APIError: %v", err)
	}
	if apiErr.Code != model.ErrCodePostNotFound {
		t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodePostNotFound)
	}
}

func TestUpdatePost_Forbidden(t *testing.T) {
	updateCalled := false
	postRepo := &mockPostRepo{
		findByIDFunc: func(ctx context.Context, id string) (*repository.PostWithAuthor, error) {
			row := testPostRow(id, "owner")
			return &row, nil
		},
		updateFunc: func(ctx context.Context, post *model.Post, tagNames []string) error {
			updateCalled = true
			return nil
		},
	}

	service := NewService(postRepo, &mockTagRepo{}, &mockRenderer{})

	_, err := service.UpdatePost(context.Background(), "intruder", "post-1", PostInput{})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error is not APIError: %v", err)
	}
	if apiErr.Code != model.ErrCodeForbidden {
		t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeForbidden)
	}
	if updateCalled {
		t.Error("Update was called for non-owner")
	}
}

func TestDeletePost_Success(t *testing.T) {
	deletedID := ""
	postRepo := &mockPostRepo{
		findByIDFunc: func(ctx context.Context, id string) (*repository.PostWithAuthor, error) {
			row := testPostRow(id, "user-1")
			return &row, nil
		},
		deleteFunc: func(ctx context.Context, id string) error {
			deletedID = id
			return nil
		},
	}

	service := NewService(postRepo, &mockTagRepo{}, &mockRenderer{})

	if err := service.DeletePost(context.Background(), "user-1", "post-1"); err != nil {
		t.Fatalf("DeletePost failed: %v", err)
	}
	if deletedID != "post-1" {
		t.Errorf("deleted ID = %q, want %q", deletedID, "post-1")
	}
}

func TestDeletePost_Forbidden(t *testing.T) {
	deleteCalled := false
	postRepo := &mockPostRepo{
		findByIDFunc: func(ctx context.Context, id string) (*repository.PostWithAuthor, error) {
			row := testPostRow(id, "owner")
			return &row, nil
		},
		deleteFunc: func(ctx context.Context, id string) error {
			deleteCalled = true
			return nil
		},
	}

	service := NewService(postRepo, &mockTagRepo{}, &mockRenderer{})

	err := service.DeletePost(context.Background(), "intruder", "post-1")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error is not APIError: %v", err)
	}
	if apiErr.Code != model.ErrCodeForbidden {
		t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeForbidden)
	}
	if deleteCalled {
		t.Error("Delete was called for non-owner")
	}
}

func TestDeletePost_NotFound(t *testing.T) {
	postRepo := &mockPostRepo{
		findByIDFunc: func(ctx context.Context, id string) (*repository.PostWithAuthor, error) {
			return nil, nil
		},
	}

	service := NewService(postRepo, &mockTagRepo{}, &mockRenderer{})

	err := service.DeletePost(context.Background(), "user-1", "missing")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error is not APIError: %v", err)
	}
	if apiErr.Code != model.ErrCodePostNotFound {
		t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodePostNotFound)
	}
}
