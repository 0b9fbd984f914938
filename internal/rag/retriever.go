package rag

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultTopK         = 5
	DefaultEmbedTimeout = 5 * time.Second
	DefaultQueryTimeout = 5 * time.Second
)

// Stage is a state of a single retrieval.
type Stage string

const (
	StageStart      Stage = "start"
	StageEmbedQuery Stage = "embed_query"
	StageIndexQuery Stage = "index_query"
	StageFallback   Stage = "fallback"
	StageAssemble   Stage = "assemble"
	StageDone       Stage = "done"
)

// Path names the route evidence came from.
type Path string

const (
	PathVector  Path = "vector"
	PathLexical Path = "lexical"
	PathNone    Path = "none"
)

// Observer receives retrieval outcomes, typically for metrics.
type Observer interface {
	ObserveRetrieval(path Path, evidence int, elapsed time.Duration)
	ObserveStageFailure(stage Stage, err error)
}

// RetrieverConfig holds the per-request limits of a Retriever.
type RetrieverConfig struct {
	TopK         int
	LexicalTopN  int
	EmbedTimeout time.Duration
	QueryTimeout time.Duration
	Assembler    Assembler
}

// DefaultRetrieverConfig returns the limits used when none are configured.
func DefaultRetrieverConfig() RetrieverConfig {
	return RetrieverConfig{
		TopK:         DefaultTopK,
		LexicalTopN:  DefaultLexicalTopN,
		EmbedTimeout: DefaultEmbedTimeout,
		QueryTimeout: DefaultQueryTimeout,
		Assembler: Assembler{
			MaxEvidence: DefaultMaxEvidence,
			MaxHistory:  DefaultMaxHistory,
		},
	}
}

// Validate reports the first invalid limit as a *ConfigError.
func (c RetrieverConfig) Validate() error {
	if c.TopK <= 0 {
		return &ConfigError{Field: "top_k", Reason: "must be positive"}
	}
	if c.LexicalTopN <= 0 {
		return &ConfigError{Field: "lexical_top_n", Reason: "must be positive"}
	}
	if c.EmbedTimeout <= 0 || c.QueryTimeout <= 0 {
		return &ConfigError{Field: "timeout", Reason: "must be positive"}
	}
	return c.Assembler.Validate()
}

// Retriever runs embedding, index lookup or lexical fallback, and context
// assembly for one query. It owns no per-request state and is safe for
// concurrent use when its collaborators are.
type Retriever struct {
	embedder Embedder
	index    VectorIndex
	chunks   ChunkSource
	config   RetrieverConfig
	observer Observer
	logger   *zap.Logger
}

type RetrieverOption func(*Retriever)

func WithObserver(o Observer) RetrieverOption {
	return func(r *Retriever) {
		r.observer = o
	}
}

func WithLogger(l *zap.Logger) RetrieverOption {
	return func(r *Retriever) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRetriever validates cfg and builds a Retriever. A nil embedder or index
// is treated as permanently unavailable.
func NewRetriever(embedder Embedder, index VectorIndex, chunks ChunkSource, cfg RetrieverConfig, opts ...RetrieverOption) (*Retriever, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Retriever{
		embedder: embedder,
		index:    index,
		chunks:   chunks,
		config:   cfg,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Request is a single retrieval. Source, when set, limits evidence to one
// document of the collection.
type Request struct {
	Collection string
	Query      string
	Source     string
	History    []ConversationTurn
}

// Result is the outcome of a retrieval. Context is always usable.
type Result struct {
	Context  AssembledContext `json:"context"`
	Evidence QueryResult      `json:"evidence"`
	Path     Path             `json:"path"`
	Trace    []Stage          `json:"trace"`
}

// Retrieve never fails: collaborator errors degrade the evidence, not the
// result.
func (r *Retriever) Retrieve(ctx context.Context, req Request) *Result {
	started := time.Now()
	res := &Result{Path: PathNone, Trace: []Stage{StageStart}}
	log := r.logger.With(zap.String("collection", req.Collection), zap.String("source", req.Source))

	res.Trace = append(res.Trace, StageEmbedQuery)
	vector, err := r.embedQuery(ctx, req.Query)
	if err != nil {
		r.stageFailed(log, StageEmbedQuery, err)
		r.fallback(ctx, log, req, res)
	} else {
		res.Trace = append(res.Trace, StageIndexQuery)
		found, err := r.queryIndex(ctx, req, vector)
		switch {
		case err == nil:
			res.Evidence = found
			if len(found) > 0 {
				res.Path = PathVector
			}
		case errors.Is(err, ErrCollectionNotFound):
			log.Debug("collection not indexed yet")
		default:
			r.stageFailed(log, StageIndexQuery, err)
			r.fallback(ctx, log, req, res)
		}
	}

	res.Trace = append(res.Trace, StageAssemble)
	res.Context = r.config.Assembler.Assemble(res.Evidence.Texts(), req.History, req.Query)
	res.Trace = append(res.Trace, StageDone)

	elapsed := time.Since(started)
	if r.observer != nil {
		r.observer.ObserveRetrieval(res.Path, len(res.Context.Evidence), elapsed)
	}
	log.Debug("retrieval finished",
		zap.String("path", string(res.Path)),
		zap.Int("evidence", len(res.Context.Evidence)),
		zap.Int("history", len(res.Context.History)),
		zap.Duration("elapsed", elapsed),
	)
	return res
}

func (r *Retriever) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if r.embedder == nil {
		return nil, ErrEmbeddingUnavailable
	}
	embedCtx, cancel := context.WithTimeout(ctx, r.config.EmbedTimeout)
	defer cancel()

	vector, err := r.embedder.EmbedOne(embedCtx, query)
	if err != nil {
		if errors.Is(err, ErrEmbeddingUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", ErrEmbeddingUnavailable)
	}
	return vector, nil
}

func (r *Retriever) queryIndex(ctx context.Context, req Request, vector []float32) (QueryResult, error) {
	if r.index == nil {
		return nil, errors.New("vector index not configured")
	}
	queryCtx, cancel := context.WithTimeout(ctx, r.config.QueryTimeout)
	defer cancel()
	return r.index.Query(queryCtx, req.Collection, vector, r.config.TopK, WithSource(req.Source))
}

// fallback scores the collection's stored chunk text against the query and
// keeps the best LexicalTopN hits.
func (r *Retriever) fallback(ctx context.Context, log *zap.Logger, req Request, res *Result) {
	res.Trace = append(res.Trace, StageFallback)
	if r.chunks == nil {
		return
	}
	readCtx, cancel := context.WithTimeout(ctx, r.config.QueryTimeout)
	defer cancel()

	raw, err := r.chunks.RawChunks(readCtx, req.Collection, req.Source)
	if err != nil {
		r.stageFailed(log, StageFallback, err)
		return
	}
	sort.SliceStable(raw, func(i, j int) bool {
		if raw[i].Source != raw[j].Source {
			return raw[i].Source < raw[j].Source
		}
		return raw[i].Sequence < raw[j].Sequence
	})

	texts := make([]string, len(raw))
	for i := range raw {
		texts[i] = raw[i].Text
	}
	hits := LexicalScore(req.Query, texts)
	if len(hits) > r.config.LexicalTopN {
		hits = hits[:r.config.LexicalTopN]
	}
	evidence := make(QueryResult, 0, len(hits))
	for _, h := range hits {
		c := raw[h.Index]
		evidence = append(evidence, ScoredChunk{
			Chunk: Chunk{ID: c.ID, Text: c.Text, Source: c.Source, Sequence: c.Sequence},
			Score: float64(h.Score),
		})
	}
	res.Evidence = evidence
	res.Path = PathLexical
	log.Info("lexical fallback used", zap.Int("candidates", len(raw)), zap.Int("hits", len(evidence)))
}

func (r *Retriever) stageFailed(log *zap.Logger, stage Stage, err error) {
	log.Warn("retrieval stage degraded", zap.String("stage", string(stage)), zap.Error(err))
	if r.observer != nil {
		r.observer.ObserveStageFailure(stage, err)
	}
}
