package api

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/article-harvester/internal/crawler"
)

type articleListResponse struct {
	Total      int                     `json:"total"`
	Page       int                     `json:"page"`
	Limit      int                     `json:"limit"`
	TotalPages int                     `json:"total_pages"`
	Articles   []crawler.ArticleRecord `json:"articles"`
}

// listArticles handles GET /v1/articles. Filters: author and title are
// case-insensitive substrings, category and sub_category are exact.
// Paging defaults to page=1, limit=10; sorting to published_at desc.
// Malformed paging or sort parameters return 400.
func (s *Server) listArticles(w http.ResponseWriter, r *http.Request) {
	query, err := parseArticleQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	page, err := s.store.List(ctx, query)
	if err != nil {
		s.logger.Error("list articles failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list articles")
		return
	}
	articles := page.Articles
	if articles == nil {
		articles = []crawler.ArticleRecord{}
	}
	writeJSON(w, http.StatusOK, articleListResponse{
		Total:      page.Total,
		Page:       page.Page,
		Limit:      page.Limit,
		TotalPages: page.TotalPages(),
		Articles:   articles,
	})
}

func (s *Server) listCategories(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.categories)
}

// listSubCategories handles GET /v1/sub-categories?category=. It returns the
// distinct non-empty sub-categories, optionally within one category.
func (s *Server) listSubCategories(w http.ResponseWriter, r *http.Request) {
	category := strings.TrimSpace(r.URL.Query().Get("category"))
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	subs, err := s.store.SubCategories(ctx, category)
	if err != nil {
		s.logger.Error("list sub-categories failed", zap.String("category", category), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list sub-categories")
		return
	}
	if subs == nil {
		subs = []string{}
	}
	writeJSON(w, http.StatusOK, subs)
}

func parseArticleQuery(r *http.Request) (crawler.ArticleQuery, error) {
	q := r.URL.Query()
	query := crawler.ArticleQuery{
		Author:      strings.TrimSpace(q.Get("author")),
		Category:    strings.TrimSpace(q.Get("category")),
		SubCategory: strings.TrimSpace(q.Get("sub_category")),
		Title:       strings.TrimSpace(q.Get("title")),
		Descending:  true,
	}

	if raw := q.Get("page"); raw != "" {
		val, err := strconv.Atoi(raw)
		if err != nil || val < 1 {
			return crawler.ArticleQuery{}, errors.New("invalid page")
		}
		query.Page = val
	}
	if raw := q.Get("limit"); raw != "" {
		val, err := strconv.Atoi(raw)
		if err != nil || val < 1 {
			return crawler.ArticleQuery{}, errors.New("invalid limit")
		}
		query.Limit = val
	}
	if raw := q.Get("sort_by"); raw != "" {
		field := crawler.SortField(strings.ToLower(raw))
		if !field.Valid() {
			return crawler.ArticleQuery{}, errors.New("invalid sort_by")
		}
		query.SortBy = field
	}
	switch strings.ToLower(q.Get("sort_order")) {
	case "", "desc":
	case "asc":
		query.Descending = false
	default:
		return crawler.ArticleQuery{}, errors.New("invalid sort_order")
	}
	query = query.WithDefaults()
	if query.Page-1 > math.MaxInt/query.Limit {
		return crawler.ArticleQuery{}, errors.New("invalid page")
	}
	return query, nil
}
