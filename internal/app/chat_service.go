package app

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"policymitr/internal/ai"
	"policymitr/internal/cache"
	"policymitr/internal/model"
	"policymitr/internal/rag"
	"policymitr/internal/repository"
)

const (
	defaultHistoryFetch = 10
	snippetRunes        = 200
)

// Generator turns an assembled context into an answer.
type Generator interface {
	Name() string
	Complete(ctx context.Context, c rag.AssembledContext) (string, error)
}

// StreamGenerator delivers the answer incrementally.
type StreamGenerator interface {
	Generator
	Stream(ctx context.Context, c rag.AssembledContext, onChunk func(chunk string) error) (string, error)
}

// TurnPublisher hands chat turns to asynchronous persistence.
type TurnPublisher interface {
	Publish(ctx context.Context, turns ...model.ChatTurn) error
}

type GenerationObserver interface {
	ObserveGeneration(generator string, offline bool)
}

type ChatServiceDeps struct {
	Turns        *repository.ChatTurnRepository
	Policies     *repository.PolicyRepository
	Retriever    *rag.Retriever
	Generator    Generator
	Publisher    TurnPublisher
	HistoryCache *cache.HistoryCache
	Activity     *repository.ActivityRepository
	Observer     GenerationObserver
	Logger       *zap.Logger
}

// ChatService answers questions over a user's policies. It never fails
// because retrieval or generation degraded: without evidence or a working
// generator it falls back to the offline answer.
type ChatService struct {
	activityRecorder

	turns        *repository.ChatTurnRepository
	policies     *repository.PolicyRepository
	retriever    *rag.Retriever
	generator    Generator
	offline      ai.OfflineGenerator
	publisher    TurnPublisher
	historyCache *cache.HistoryCache
	observer     GenerationObserver
	collection   string
	historyFetch int
	logger       *zap.Logger
}

func NewChatService(deps ChatServiceDeps, collection string, historyFetch int) *ChatService {
	if historyFetch <= 0 {
		historyFetch = defaultHistoryFetch
	}
	if collection == "" {
		collection = "policies"
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatService{
		activityRecorder: activityRecorder{activity: deps.Activity, logger: logger},

		turns:        deps.Turns,
		policies:     deps.Policies,
		retriever:    deps.Retriever,
		generator:    deps.Generator,
		publisher:    deps.Publisher,
		historyCache: deps.HistoryCache,
		observer:     deps.Observer,
		collection:   collection,
		historyFetch: historyFetch,
		logger:       logger,
	}
}

type AskInput struct {
	UserID   uint
	PolicyID string
	Question string
}

type Source struct {
	ChunkID  string  `json:"chunk_id"`
	PolicyID string  `json:"policy_id"`
	Sequence int     `json:"sequence"`
	Score    float64 `json:"score"`
	Snippet  string  `json:"snippet"`
}

type AskResult struct {
	Answer        string           `json:"answer"`
	Sources       []Source         `json:"sources"`
	RetrievalPath rag.Path         `json:"retrieval_path"`
	Generator     string           `json:"generator"`
	Offline       bool             `json:"offline"`
	Turns         []model.ChatTurn `json:"turns"`
	Persisted     bool             `json:"persisted"`
}

// Ask answers one question and records both turns.
func (s *ChatService) Ask(ctx context.Context, input AskInput) (*AskResult, error) {
	question, asked, err := s.prepare(ctx, input)
	if err != nil {
		return nil, err
	}
	res := s.retrieve(ctx, input.UserID, input.PolicyID, question)

	answer, name := s.complete(ctx, res.Context)
	return s.finish(ctx, input, question, asked, answer, name, res), nil
}

// Stream is Ask with the answer delivered through onChunk as it is
// generated. A generator that fails before producing output is replaced by
// the offline answer; one that fails midway keeps what was already sent.
func (s *ChatService) Stream(ctx context.Context, input AskInput, onChunk func(chunk string) error) (*AskResult, error) {
	question, asked, err := s.prepare(ctx, input)
	if err != nil {
		return nil, err
	}
	res := s.retrieve(ctx, input.UserID, input.PolicyID, question)

	var answer, name string
	if sg, ok := s.generator.(StreamGenerator); ok {
		name = sg.Name()
		var sent strings.Builder
		full, err := sg.Stream(ctx, res.Context, func(chunk string) error {
			sent.WriteString(chunk)
			return onChunk(chunk)
		})
		switch {
		case err == nil:
			answer = strings.TrimSpace(full)
		case sent.Len() > 0:
			s.logger.Warn("answer stream interrupted", zap.String("generator", name), zap.Error(err))
			answer = sent.String()
		default:
			s.logger.Warn("answer stream failed, using offline answer", zap.String("generator", name), zap.Error(err))
		}
		if answer != "" {
			s.observeGeneration(name, answer)
		}
	} else {
		answer, name = s.complete(ctx, res.Context)
		if err := onChunk(answer); err != nil {
			return nil, err
		}
	}
	if answer == "" {
		answer, _ = s.offline.Complete(ctx, res.Context)
		name = s.offline.Name()
		s.observeGeneration(name, answer)
		if err := onChunk(answer); err != nil {
			return nil, err
		}
	}
	return s.finish(ctx, input, question, asked, answer, name, res), nil
}

// History returns the newest limit turns of a conversation in chronological
// order.
func (s *ChatService) History(ctx context.Context, userID uint, policyID string, limit int) ([]model.ChatTurn, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	if limit <= 0 {
		limit = s.historyFetch
	}
	recent, err := s.recentTurns(ctx, userID, policyID, limit)
	if err != nil {
		return nil, err
	}
	return chronological(recent), nil
}

// prepare validates the question and returns it with the time it was asked.
// The user turn carries that time so it always sorts before its answer and
// after every earlier answer.
func (s *ChatService) prepare(ctx context.Context, input AskInput) (string, time.Time, error) {
	asked := time.Now()
	if input.UserID == 0 {
		return "", asked, ErrInvalidInput
	}
	question := strings.TrimSpace(input.Question)
	if question == "" {
		return "", asked, ErrQuestionEmpty
	}
	if input.PolicyID != "" {
		policy, err := s.policies.GetByIDAndUserID(ctx, input.PolicyID, input.UserID)
		if err != nil {
			return "", asked, err
		}
		if policy == nil {
			return "", asked, ErrPolicyNotFound
		}
	}
	return question, asked, nil
}

func (s *ChatService) retrieve(ctx context.Context, userID uint, policyID, question string) *rag.Result {
	var history []rag.ConversationTurn
	recent, err := s.recentTurns(ctx, userID, policyID, s.historyFetch)
	if err != nil {
		s.logger.Warn("load chat history failed, answering without it", zap.Error(err))
	} else {
		history = toConversation(chronological(recent))
	}
	return s.retriever.Retrieve(ctx, rag.Request{
		Collection: CollectionFor(s.collection, userID),
		Query:      question,
		Source:     policyID,
		History:    history,
	})
}

// complete asks the configured generator and degrades to the offline answer.
func (s *ChatService) complete(ctx context.Context, c rag.AssembledContext) (string, string) {
	if s.generator != nil {
		answer, err := s.generator.Complete(ctx, c)
		answer = strings.TrimSpace(answer)
		if err == nil && answer != "" {
			s.observeGeneration(s.generator.Name(), answer)
			return answer, s.generator.Name()
		}
		s.logger.Warn("generation failed, using offline answer",
			zap.String("generator", s.generator.Name()),
			zap.Error(err),
		)
	}
	answer, _ := s.offline.Complete(ctx, c)
	s.observeGeneration(s.offline.Name(), answer)
	return answer, s.offline.Name()
}

// finish records the exchange and builds the result. A turn that cannot be
// saved is logged and reported through Persisted; the answer is still
// returned.
func (s *ChatService) finish(ctx context.Context, input AskInput, question string, asked time.Time, answer, generator string, res *rag.Result) *AskResult {
	answered := time.Now()
	if !answered.After(asked) {
		answered = asked.Add(time.Microsecond)
	}
	userTurn := model.ChatTurn{
		ID:        uuid.NewString(),
		UserID:    input.UserID,
		PolicyID:  input.PolicyID,
		Role:      string(rag.RoleUser),
		Content:   question,
		CreatedAt: asked,
	}
	assistantTurn := model.ChatTurn{
		ID:        uuid.NewString(),
		UserID:    input.UserID,
		PolicyID:  input.PolicyID,
		Role:      string(rag.RoleAssistant),
		Content:   answer,
		CreatedAt: answered,
	}
	persisted := s.persist(ctx, userTurn, assistantTurn) == nil
	s.recordActivity(ctx, input.UserID, ActionChat, input.PolicyID, question)

	sources := make([]Source, len(res.Evidence))
	for i, e := range res.Evidence {
		sources[i] = Source{
			ChunkID:  e.Chunk.ID,
			PolicyID: e.Chunk.Source,
			Sequence: e.Chunk.Sequence,
			Score:    e.Score,
			Snippet:  truncate(e.Chunk.Text, snippetRunes),
		}
	}
	s.logger.Info("question answered",
		zap.Uint("user_id", input.UserID),
		zap.String("policy_id", input.PolicyID),
		zap.String("path", string(res.Path)),
		zap.String("generator", generator),
		zap.Int("evidence", len(res.Context.Evidence)),
		zap.Bool("persisted", persisted),
	)
	return &AskResult{
		Answer:        answer,
		Sources:       sources,
		RetrievalPath: res.Path,
		Generator:     generator,
		Offline:       ai.IsOfflineAnswer(answer),
		Turns:         []model.ChatTurn{userTurn, assistantTurn},
		Persisted:     persisted,
	}
}

// persist queues the turns, or writes them directly when no queue is
// configured or publishing fails.
func (s *ChatService) persist(ctx context.Context, turns ...model.ChatTurn) error {
	userID, policyID := turns[0].UserID, turns[0].PolicyID
	if s.historyCache != nil {
		if err := s.historyCache.Invalidate(ctx, userID, policyID); err != nil {
			s.logger.Warn("invalidate history cache failed", zap.Error(err))
		}
	}
	if s.publisher != nil {
		err := s.publisher.Publish(ctx, turns...)
		if err == nil {
			return nil
		}
		s.logger.Warn("publish chat turns failed, writing directly", zap.Error(err))
	}
	for i := range turns {
		if err := s.turns.Create(ctx, &turns[i]); err != nil {
			s.logger.Error("persist chat turn failed, answer kept", zap.String("turn_id", turns[i].ID), zap.Error(err))
			return err
		}
	}
	return nil
}

// recentTurns returns up to limit turns, newest first. The cached window is
// only trusted when no turns are in flight.
func (s *ChatService) recentTurns(ctx context.Context, userID uint, policyID string, limit int) ([]model.ChatTurn, error) {
	cacheable := s.historyCache != nil && limit <= s.historyFetch
	if cacheable {
		dirty, err := s.historyCache.IsDirty(ctx, userID, policyID)
		if err == nil && !dirty {
			if cached, hit, cacheErr := s.historyCache.GetHistory(ctx, userID, policyID); cacheErr == nil && hit {
				return newest(cached, limit), nil
			}
		}
	}

	turns, err := s.turns.ListRecent(ctx, userID, policyID, s.fetchLimit(limit))
	if err != nil {
		return nil, err
	}
	if cacheable {
		if dirty, dirtyErr := s.historyCache.IsDirty(ctx, userID, policyID); dirtyErr == nil && !dirty {
			_ = s.historyCache.SetHistory(ctx, userID, policyID, turns)
		}
	}
	return newest(turns, limit), nil
}

func (s *ChatService) fetchLimit(limit int) int {
	if s.historyCache != nil && limit <= s.historyFetch {
		return s.historyFetch
	}
	return limit
}

func (s *ChatService) observeGeneration(name, answer string) {
	if s.observer != nil {
		s.observer.ObserveGeneration(name, ai.IsOfflineAnswer(answer))
	}
}

func newest(turns []model.ChatTurn, limit int) []model.ChatTurn {
	if limit <= 0 || limit >= len(turns) {
		return turns
	}
	return turns[:limit]
}

// chronological reverses a newest-first slice into a new oldest-first one.
func chronological(turns []model.ChatTurn) []model.ChatTurn {
	out := make([]model.ChatTurn, len(turns))
	for i, t := range turns {
		out[len(turns)-1-i] = t
	}
	return out
}

func toConversation(turns []model.ChatTurn) []rag.ConversationTurn {
	out := make([]rag.ConversationTurn, 0, len(turns))
	for _, t := range turns {
		role := rag.Role(t.Role)
		if role != rag.RoleAssistant {
			role = rag.RoleUser
		}
		out = append(out, rag.ConversationTurn{Role: role, Content: t.Content, Timestamp: t.CreatedAt})
	}
	return out
}
