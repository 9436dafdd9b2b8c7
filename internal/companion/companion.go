package companion

import (
	"context"
	"errors"
	"strings"

	"github.com/calmbackend/internal/ai"
	"github.com/calmbackend/internal/crisis"
	"github.com/calmbackend/internal/entitlement"
	"github.com/calmbackend/internal/llm"
	"github.com/calmbackend/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	maxHistory              = 12
	expectedReplyTokens     = 300
	companionPromptOverhead = 150
)

type Streamer interface {
	Companion(ctx context.Context, history []ai.Message, onChunk func(string)) (string, ai.Usage, error)
}

type TokenCounter interface {
	CountMessages(contents ...string) int
}

type Request struct {
	Messages []ai.Message `json:"messages" validate:"required,min=1,max=50,dive"`
}

type Reply struct {
	Text      string            `json:"reply"`
	Crisis    bool              `json:"crisis"`
	Resources []crisis.Resource `json:"crisis_resources,omitempty"`
	Usage     ai.Usage          `json:"usage"`
}

// Service is the premium emergency companion chat.
type Service struct {
	AI       Streamer
	Gate     *entitlement.Gate
	Budget   *llm.Budget
	Limiters *Limiters
	Counter  TokenCounter
	Log      *logrus.Entry
}

// Reply answers the last user message. onChunk, when set, receives the reply
// as it streams.
func (s *Service) Reply(ctx context.Context, user *models.User, req Request, onChunk func(string)) (*Reply, error) {
	log := s.Log.WithField("user_id", user.ID)

	// Crisis resources are never behind the paywall.
	if crisis.Mentions(lastUserMessage(req.Messages)) {
		log.Warn("crisis language detected, returning resources")
		return &Reply{Text: crisis.Message, Crisis: true, Resources: crisis.Resources()}, nil
	}

	if err := s.Gate.Allow(user, entitlement.FeatureCoachChat); err != nil {
		return nil, err
	}

	if s.Limiters != nil && !s.Limiters.Allow(user.ID) {
		return nil, ai.ErrRateLimited
	}

	history := trim(req.Messages)
	if s.Budget != nil {
		if err := s.Budget.Check(ctx, user.ID, s.estimate(history), expectedReplyTokens); err != nil {
			if errors.Is(err, llm.ErrBudgetExceeded) {
				log.WithError(err).Info("companion over budget")
				return nil, ai.ErrQuotaExceeded
			}
			return nil, err
		}
	}

	text, usage, err := s.AI.Companion(ctx, history, onChunk)
	if s.Budget != nil && usage.InputTokens+usage.OutputTokens > 0 {
		if recErr := s.Budget.Record(ctx, user.ID, usage.InputTokens, usage.OutputTokens); recErr != nil {
			log.WithError(recErr).Warn("failed to record companion usage")
		}
	}
	if err != nil {
		return nil, err
	}
	return &Reply{Text: text, Usage: usage}, nil
}

func (s *Service) estimate(history []ai.Message) int {
	if s.Counter == nil {
		n := companionPromptOverhead
		for _, m := range history {
			n += 4 + len(m.Content)/4
		}
		return n
	}
	contents := make([]string, len(history))
	for i, m := range history {
		contents[i] = m.Content
	}
	return companionPromptOverhead + s.Counter.CountMessages(contents...)
}

func lastUserMessage(msgs []ai.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if strings.EqualFold(msgs[i].Role, "user") {
			return msgs[i].Content
		}
	}
	return ""
}

// trim keeps the most recent messages.
func trim(msgs []ai.Message) []ai.Message {
	if len(msgs) <= maxHistory {
		return msgs
	}
	return msgs[len(msgs)-maxHistory:]
}
