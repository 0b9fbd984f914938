package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"policymitr/internal/analysis"
	"policymitr/internal/cache"
	"policymitr/internal/model"
	"policymitr/internal/pkg/extract"
	"policymitr/internal/rag"
	"policymitr/internal/repository"
)

const (
	minPolicyTextRunes = 20
	maxStoredTextRunes = 50000
)

// CollectionFor names the vector collection holding a user's policies.
func CollectionFor(base string, userID uint) string {
	return fmt.Sprintf("%s_u%d", base, userID)
}

type IngestConfig struct {
	Collection   string
	ChunkSize    int
	ChunkOverlap int
	BatchSize    int
}

// IngestObserver receives ingestion outcomes, typically for metrics.
type IngestObserver interface {
	ObserveIngest(indexed, failed int)
}

// PolicyService owns the upload pipeline and the policy library of a user.
// Embedder may be nil, in which case chunks are stored for lexical retrieval
// only.
type PolicyService struct {
	activityRecorder

	policies     *repository.PolicyRepository
	bookmarks    *repository.BookmarkRepository
	chunks       *repository.ChunkRepository
	turns        *repository.ChatTurnRepository
	historyCache *cache.HistoryCache
	index        rag.VectorIndex
	embedder     rag.Embedder
	analyzer     *analysis.Analyzer
	pool         *ants.Pool
	cfg          IngestConfig
	observer     IngestObserver
	logger       *zap.Logger
}

// PolicyServiceDeps wires the service. Turns, HistoryCache and Activity are
// optional.
type PolicyServiceDeps struct {
	Policies     *repository.PolicyRepository
	Bookmarks    *repository.BookmarkRepository
	Chunks       *repository.ChunkRepository
	Turns        *repository.ChatTurnRepository
	HistoryCache *cache.HistoryCache
	Activity     *repository.ActivityRepository
	Index        rag.VectorIndex
	Embedder     rag.Embedder
	Analyzer     *analysis.Analyzer
	Pool         *ants.Pool
	Observer     IngestObserver
	Logger       *zap.Logger
}

func NewPolicyService(deps PolicyServiceDeps, cfg IngestConfig) (*PolicyService, error) {
	if err := rag.ValidateChunking(cfg.ChunkSize, cfg.ChunkOverlap); err != nil {
		return nil, err
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.Collection == "" {
		cfg.Collection = "policies"
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	analyzer := deps.Analyzer
	if analyzer == nil {
		analyzer = analysis.NewAnalyzer(nil, logger)
	}
	return &PolicyService{
		activityRecorder: activityRecorder{activity: deps.Activity, logger: logger},

		policies:     deps.Policies,
		bookmarks:    deps.Bookmarks,
		chunks:       deps.Chunks,
		turns:        deps.Turns,
		historyCache: deps.HistoryCache,
		index:        deps.Index,
		embedder:     deps.Embedder,
		analyzer:     analyzer,
		pool:         deps.Pool,
		cfg:          cfg,
		observer:     deps.Observer,
		logger:       logger,
	}, nil
}

type UploadInput struct {
	UserID      uint
	Title       string
	Filename    string
	ContentType string
	Data        []byte
}

type CreatePolicyInput struct {
	UserID   uint
	Title    string
	Text     string
	Language string
}

type ChunkFailure struct {
	ChunkID string `json:"chunk_id"`
	Error   string `json:"error"`
}

type IngestResult struct {
	Collection string         `json:"collection"`
	Chunks     int            `json:"chunks"`
	Indexed    int            `json:"indexed"`
	Failures   []ChunkFailure `json:"failures,omitempty"`
}

type UploadResult struct {
	Policy         *model.Policy `json:"policy"`
	Ingest         *IngestResult `json:"ingest"`
	AnalysisSource string        `json:"analysis_source"`
	ProcessingTime time.Duration `json:"processing_time"`
}

// Upload extracts the text of a document and runs CreateFromText on it.
func (s *PolicyService) Upload(ctx context.Context, input UploadInput) (*UploadResult, error) {
	if input.UserID == 0 || len(input.Data) == 0 {
		return nil, ErrInvalidInput
	}
	text, err := extract.Extract(input.Data, input.ContentType)
	switch {
	case errors.Is(err, extract.ErrNoText):
		return nil, ErrNoText
	case errors.Is(err, extract.ErrUnsupportedContent):
		return nil, ErrUnsupportedContent
	case err != nil:
		return nil, fmt.Errorf("extract policy text failed: %w", err)
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(input.Filename), filepath.Ext(input.Filename))
	}
	return s.CreateFromText(ctx, CreatePolicyInput{
		UserID: input.UserID,
		Title:  title,
		Text:   text,
	})
}

// CreateFromText analyzes, stores and indexes a policy. Indexing problems
// are reported in the result and never fail the upload.
func (s *PolicyService) CreateFromText(ctx context.Context, input CreatePolicyInput) (*UploadResult, error) {
	if input.UserID == 0 {
		return nil, ErrInvalidInput
	}
	text := strings.TrimSpace(input.Text)
	if len([]rune(text)) < minPolicyTextRunes {
		return nil, ErrNoText
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = "Untitled Policy"
	}
	title = truncate(title, 256)
	language := strings.TrimSpace(input.Language)
	if language == "" {
		language = "en"
	}

	started := time.Now()
	res := s.analyzer.Analyze(ctx, text)

	policy := &model.Policy{
		ID:              uuid.NewString(),
		UserID:          input.UserID,
		Title:           title,
		OriginalText:    truncate(text, maxStoredTextRunes),
		Summary:         res.Summary,
		Simplified:      res.Simplified,
		Category:        res.Category,
		DifficultyScore: res.DifficultyScore,
		Language:        language,
	}
	for _, c := range res.Clauses {
		policy.Clauses = append(policy.Clauses, model.Clause{
			ID:          uuid.NewString(),
			PolicyID:    policy.ID,
			Number:      c.Number,
			Text:        c.Text,
			Explanation: c.Explanation,
		})
	}
	if err := s.policies.Create(ctx, policy); err != nil {
		return nil, err
	}

	ingest, err := s.Ingest(ctx, input.UserID, policy.ID, text)
	if err != nil {
		s.logger.Error("policy ingestion failed", zap.String("policy_id", policy.ID), zap.Error(err))
		ingest = &IngestResult{Collection: CollectionFor(s.cfg.Collection, input.UserID)}
	}
	policy.ChunkCount, policy.IndexedCount = ingest.Chunks, ingest.Indexed
	if err := s.policies.UpdateIndexCounts(ctx, policy.ID, ingest.Chunks, ingest.Indexed); err != nil {
		s.logger.Warn("update index counts failed", zap.String("policy_id", policy.ID), zap.Error(err))
	}

	elapsed := time.Since(started)
	s.logger.Info("policy uploaded",
		zap.Uint("user_id", input.UserID),
		zap.String("policy_id", policy.ID),
		zap.String("category", policy.Category),
		zap.String("analysis", res.Source),
		zap.Int("chunks", ingest.Chunks),
		zap.Int("indexed", ingest.Indexed),
		zap.Duration("elapsed", elapsed),
	)
	s.recordActivity(ctx, input.UserID, ActionUpload, policy.ID, "Uploaded: "+policy.Title)
	return &UploadResult{
		Policy:         policy,
		Ingest:         ingest,
		AnalysisSource: res.Source,
		ProcessingTime: elapsed,
	}, nil
}

// Ingest replaces the stored chunks of a policy and indexes them. Raw chunks
// are always written so lexical retrieval works even when embedding fails.
// Embedding runs in batches on the worker pool; each chunk that cannot be
// embedded or inserted is listed in Failures.
func (s *PolicyService) Ingest(ctx context.Context, userID uint, policyID, text string) (*IngestResult, error) {
	collection := CollectionFor(s.cfg.Collection, userID)
	chunks, err := rag.ChunkText(policyID, text, s.cfg.ChunkSize, s.cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	if err := s.chunks.DeleteByPolicyID(ctx, collection, policyID); err != nil {
		return nil, err
	}
	if s.index != nil {
		if err := s.index.DeleteSource(ctx, collection, policyID); err != nil && !errors.Is(err, rag.ErrCollectionNotFound) {
			return nil, fmt.Errorf("delete indexed source failed: %w", err)
		}
	}

	rows := make([]model.PolicyChunk, len(chunks))
	for i, c := range chunks {
		rows[i] = model.PolicyChunk{
			ID:         c.ID,
			Collection: collection,
			PolicyID:   policyID,
			Sequence:   c.Sequence,
			Text:       c.Text,
		}
	}
	if err := s.chunks.CreateBatch(ctx, rows); err != nil {
		return nil, err
	}

	result := &IngestResult{Collection: collection, Chunks: len(chunks)}
	if s.embedder == nil || s.index == nil || len(chunks) == 0 {
		return result, nil
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for start := 0; start < len(chunks); start += s.cfg.BatchSize {
		batch := chunks[start:min(start+s.cfg.BatchSize, len(chunks))]
		task := func() {
			defer wg.Done()
			indexed, failures := s.indexBatch(ctx, collection, batch)
			mu.Lock()
			result.Indexed += indexed
			result.Failures = append(result.Failures, failures...)
			mu.Unlock()
		}
		wg.Add(1)
		if s.pool == nil {
			task()
			continue
		}
		if err := s.pool.Submit(task); err != nil {
			s.logger.Warn("ingest pool rejected batch, running inline", zap.Error(err))
			task()
		}
	}
	wg.Wait()

	if s.observer != nil {
		s.observer.ObserveIngest(result.Indexed, len(result.Failures))
	}
	if len(result.Failures) > 0 {
		s.logger.Warn("some chunks were not indexed",
			zap.String("collection", collection),
			zap.String("policy_id", policyID),
			zap.Int("failed", len(result.Failures)),
		)
	}
	return result, nil
}

func (s *PolicyService) indexBatch(ctx context.Context, collection string, batch []rag.Chunk) (int, []ChunkFailure) {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Text
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err == nil && len(vectors) != len(batch) {
		err = fmt.Errorf("%w: got %d vectors for %d chunks", rag.ErrEmbeddingUnavailable, len(vectors), len(batch))
	}
	if err != nil {
		failures := make([]ChunkFailure, len(batch))
		for i, c := range batch {
			failures[i] = ChunkFailure{ChunkID: c.ID, Error: err.Error()}
		}
		return 0, failures
	}

	indexed := 0
	var failures []ChunkFailure
	for i, c := range batch {
		c.Vector = vectors[i]
		if err := s.index.Insert(ctx, collection, c); err != nil {
			failures = append(failures, ChunkFailure{ChunkID: c.ID, Error: err.Error()})
			continue
		}
		indexed++
	}
	return indexed, failures
}

func (s *PolicyService) List(ctx context.Context, userID uint) ([]model.Policy, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	list, err := s.policies.ListByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	marked, err := s.bookmarks.PolicyIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range list {
		_, list[i].IsBookmarked = marked[list[i].ID]
	}
	return list, nil
}

func (s *PolicyService) Get(ctx context.Context, userID uint, policyID string) (*model.Policy, error) {
	if userID == 0 || strings.TrimSpace(policyID) == "" {
		return nil, ErrInvalidInput
	}
	policy, err := s.policies.GetByIDAndUserID(ctx, policyID, userID)
	if err != nil {
		return nil, err
	}
	if policy == nil {
		return nil, ErrPolicyNotFound
	}
	policy.IsBookmarked, err = s.bookmarks.Exists(ctx, userID, policyID)
	if err != nil {
		return nil, err
	}
	return policy, nil
}

// Delete removes the policy with everything derived from it: clauses,
// bookmarks, stored chunks, indexed vectors and the conversation about it.
// The cached general history also goes since it may include those turns.
func (s *PolicyService) Delete(ctx context.Context, userID uint, policyID string) error {
	if _, err := s.Get(ctx, userID, policyID); err != nil {
		return err
	}
	if err := s.policies.DeleteByIDAndUserID(ctx, policyID, userID); err != nil {
		return err
	}
	collection := CollectionFor(s.cfg.Collection, userID)
	if err := s.chunks.DeleteByPolicyID(ctx, collection, policyID); err != nil {
		return err
	}
	if s.index != nil {
		if err := s.index.DeleteSource(ctx, collection, policyID); err != nil && !errors.Is(err, rag.ErrCollectionNotFound) {
			return fmt.Errorf("delete indexed source failed: %w", err)
		}
	}
	if s.turns != nil {
		if err := s.turns.DeleteByPolicyID(ctx, userID, policyID); err != nil {
			return err
		}
	}
	if s.historyCache != nil {
		if err := s.historyCache.DeleteHistory(ctx, userID, policyID, ""); err != nil {
			s.logger.Warn("drop cached history failed", zap.String("policy_id", policyID), zap.Error(err))
		}
	}
	s.logger.Info("policy deleted", zap.Uint("user_id", userID), zap.String("policy_id", policyID))
	return nil
}

// ToggleBookmark flips the bookmark and returns the new state.
func (s *PolicyService) ToggleBookmark(ctx context.Context, userID uint, policyID string) (bool, error) {
	policy, err := s.policies.GetByIDAndUserID(ctx, policyID, userID)
	if err != nil {
		return false, err
	}
	if policy == nil {
		return false, ErrPolicyNotFound
	}
	return s.bookmarks.Toggle(ctx, userID, policyID)
}

func (s *PolicyService) Compare(ctx context.Context, userID uint, firstID, secondID string) (*analysis.Comparison, error) {
	if firstID == "" || secondID == "" || firstID == secondID {
		return nil, ErrInvalidInput
	}
	first, err := s.Get(ctx, userID, firstID)
	if err != nil {
		return nil, err
	}
	second, err := s.Get(ctx, userID, secondID)
	if err != nil {
		return nil, err
	}
	cmp := s.analyzer.Compare(ctx, first.OriginalText, second.OriginalText)
	s.recordActivity(ctx, userID, ActionCompare, firstID, "Compared: "+first.Title+" vs "+second.Title)
	return cmp, nil
}

// Recommend lists related schemes for one of the user's policies.
func (s *PolicyService) Recommend(ctx context.Context, userID uint, policyID string) ([]string, error) {
	policy, err := s.Get(ctx, userID, policyID)
	if err != nil {
		return nil, err
	}
	return s.analyzer.Recommend(ctx, policy.OriginalText), nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
