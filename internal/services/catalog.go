package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/admxx9/pecc-studii-sub000/internal/docstore"
	"github.com/admxx9/pecc-studii-sub000/internal/models"
)

const defaultToolCacheTTL = 5 * time.Minute

// CatalogService serves lessons and tools gated by the access policy.
type CatalogService struct {
	store    docstore.Store
	cache    *RedisCache
	cacheTTL time.Duration
}

type CatalogOption func(*CatalogService)

// WithToolCache caches tool lookups. A zero ttl keeps the default.
func WithToolCache(cache *RedisCache, ttl time.Duration) CatalogOption {
	return func(s *CatalogService) {
		s.cache = cache
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

func NewCatalogService(store docstore.Store, opts ...CatalogOption) *CatalogService {
	s := &CatalogService{store: store, cacheTTL: defaultToolCacheTTL}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LessonView is a lesson as shown to a given user. The video is withheld
// when the lesson is locked.
type LessonView struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	VideoURL     string          `json:"videoUrl,omitempty"`
	IsPremium    bool            `json:"isPremium"`
	RequiredPlan models.PlanType `json:"requiredPlan"`
	Order        int             `json:"order"`
	Locked       bool            `json:"locked"`
}

// lessonView locks the lesson unless the actor's plan covers it. Admins see
// everything.
func lessonView(l *models.Lesson, actor models.Actor) LessonView {
	v := LessonView{
		ID:           l.ID,
		Title:        l.Title,
		Description:  l.Description,
		IsPremium:    l.IsPremium,
		RequiredPlan: l.RequiredPlan,
		Order:        l.Order,
		Locked:       !actor.IsAdmin && !CanAccessLesson(l, actor.Plan),
	}
	if !v.Locked {
		v.VideoURL = l.VideoURL
	}
	return v
}

// ToolView never carries the download URL; that is served by DownloadLink.
type ToolView struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	RequiredPlan models.PlanType `json:"requiredPlan"`
	Locked       bool            `json:"locked"`
}

// ListLessons returns every lesson in display order.
func (s *CatalogService) ListLessons(ctx context.Context, actor models.Actor) ([]LessonView, error) {
	docs, err := s.store.Query(ctx, models.CollectionLessons, docstore.Query{OrderBy: "order"})
	if err != nil {
		return nil, fmt.Errorf("list lessons: %w", err)
	}
	out := make([]LessonView, 0, len(docs))
	for _, doc := range docs {
		l, err := models.LessonFromDoc(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, lessonView(l, actor))
	}
	return out, nil
}

// GetLesson returns a lesson the actor is allowed to watch.
func (s *CatalogService) GetLesson(ctx context.Context, actor models.Actor, lessonID string) (*LessonView, error) {
	doc, err := s.store.Get(ctx, models.CollectionLessons, lessonID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, ErrLessonNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load lesson: %w", err)
	}
	l, err := models.LessonFromDoc(doc)
	if err != nil {
		return nil, err
	}
	v := lessonView(l, actor)
	if v.Locked {
		return nil, ErrAccessDenied
	}
	return &v, nil
}

// ListTools returns every tool, newest first.
func (s *CatalogService) ListTools(ctx context.Context, actor models.Actor) ([]ToolView, error) {
	docs, err := s.store.Query(ctx, models.CollectionTools, docstore.Query{OrderBy: "createdAt", Desc: true})
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	out := make([]ToolView, 0, len(docs))
	for _, doc := range docs {
		t, err := models.ToolFromDoc(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, ToolView{
			ID:           t.ID,
			Name:         t.Name,
			Description:  t.Description,
			RequiredPlan: t.RequiredPlan,
			Locked:       !actor.IsAdmin && !CanAccess(t.RequiredPlan, actor.Plan),
		})
	}
	return out, nil
}

// GetTool loads a tool, through the cache when one is configured.
func (s *CatalogService) GetTool(ctx context.Context, toolID string) (*models.Tool, error) {
	if s.cache == nil {
		return s.loadTool(ctx, toolID)
	}
	return GetOrSet(s.cache, ctx, "tool:"+toolID, s.cacheTTL, func() (*models.Tool, error) {
		return s.loadTool(ctx, toolID)
	})
}

func (s *CatalogService) loadTool(ctx context.Context, toolID string) (*models.Tool, error) {
	doc, err := s.store.Get(ctx, models.CollectionTools, toolID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, ErrToolNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load tool: %w", err)
	}
	return models.ToolFromDoc(doc)
}

// DownloadLink returns the download URL of a tool the actor may use.
func (s *CatalogService) DownloadLink(ctx context.Context, actor models.Actor, toolID string) (string, error) {
	toolID = strings.TrimSpace(toolID)
	if toolID == "" {
		return "", newValidationError("toolId", "is required")
	}

	tool, err := s.GetTool(ctx, toolID)
	if err != nil {
		return "", err
	}
	if !actor.IsAdmin && !CanAccess(tool.RequiredPlan, actor.Plan) {
		return "", ErrAccessDenied
	}
	if strings.TrimSpace(tool.DownloadURL) == "" {
		return "", ErrToolURLMissing
	}
	return tool.DownloadURL, nil
}
