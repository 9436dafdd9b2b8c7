package plan

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/calmbackend/internal/ai"
	"github.com/calmbackend/internal/aicache"
	"github.com/calmbackend/internal/llm"
	"github.com/calmbackend/internal/models"
	"github.com/calmbackend/internal/templates"
	"github.com/sirupsen/logrus"
)

const (
	Feature           = "panic_plan"
	DefaultSimilarity = 0.8

	expectedPlanOutputTokens = 350
)

type PlanAI interface {
	GeneratePanicPlan(ctx context.Context, req ai.PlanRequest) (models.PanicPlan, ai.Usage, error)
}

type CurrentStore interface {
	Current(ctx context.Context, userID string) (*models.PanicPlan, error)
	SaveCurrent(ctx context.Context, userID string, p models.PanicPlan) error
}

type TokenCounter interface {
	Count(text string) int
}

type Request struct {
	Emotion      string   `json:"emotion" validate:"max=40"`
	Intensity    int      `json:"intensity" validate:"min=0,max=10"`
	Tags         []string `json:"tags" validate:"max=10,dive,max=40"`
	Language     string   `json:"language" validate:"omitempty,len=2"`
	Context      string   `json:"context" validate:"max=1000"`
	Personalized bool     `json:"personalized"`
	Force        bool     `json:"force"`
}

type Result struct {
	Plan        models.PanicPlan `json:"plan"`
	Regenerated bool             `json:"regenerated"`
	Degraded    bool             `json:"degraded"`
	Notice      string           `json:"notice,omitempty"`
}

// Generator produces panic plans, trying the cheapest source first:
// current plan, cache, similar cache, template, then the AI backend.
type Generator struct {
	AI         PlanAI
	Cache      *aicache.Cache
	Templates  *templates.Library
	Budget     *llm.Budget
	Store      CurrentStore
	Counter    TokenCounter
	Log        *logrus.Entry
	Similarity float64
	Now        func() time.Time
}

func (g *Generator) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

func (g *Generator) threshold() float64 {
	if g.Similarity <= 0 {
		return DefaultSimilarity
	}
	return g.Similarity
}

func cacheKey(req Request) aicache.CacheKey {
	tags := append([]string(nil), req.Tags...)
	if e := strings.TrimSpace(req.Emotion); e != "" {
		tags = append(tags, "emotion:"+e)
	}
	return aicache.CacheKey{
		Feature:   Feature,
		Intensity: req.Intensity,
		Tags:      tags,
		Language:  req.Language,
	}
}

// Generate returns a plan for req and makes it the user's current plan.
func (g *Generator) Generate(ctx context.Context, userID string, req Request) (*Result, error) {
	log := g.Log.WithField("user_id", userID)

	if !req.Force && g.Store != nil {
		current, err := g.Store.Current(ctx, userID)
		if err != nil {
			log.WithError(err).Warn("failed to load current plan")
		}
		if current != nil && !needsRegeneration(*current, req) {
			return &Result{Plan: *current}, nil
		}
	}

	result := g.resolve(ctx, userID, req, log)
	result.Regenerated = true
	result.Plan.Emotion = req.Emotion
	result.Plan.Intensity = req.Intensity
	result.Plan.Tags = aicache.NormalizeTags(req.Tags)
	result.Plan.GeneratedAt = g.now().UTC()

	if g.Store != nil {
		if err := g.Store.SaveCurrent(ctx, userID, result.Plan); err != nil {
			log.WithError(err).Warn("failed to save current plan")
		}
	}
	return result, nil
}

// needsRegeneration reports whether current no longer fits req. A personalized
// request is never served a template or default plan.
func needsRegeneration(current models.PanicPlan, req Request) bool {
	if req.Personalized && !isPersonalized(current) {
		return true
	}
	return aicache.ShouldRegenerate(snapshotOf(current), snapshotFor(req))
}

// Cached entries only ever hold AI output.
func isPersonalized(p models.PanicPlan) bool {
	return p.Source == models.PlanSourceAI || p.Source == models.PlanSourceCache
}

func (g *Generator) resolve(ctx context.Context, userID string, req Request, log *logrus.Entry) *Result {
	key := cacheKey(req)

	if g.Cache != nil {
		if data, ok := g.Cache.Get(key, userID); ok {
			if p, err := decode(data); err == nil {
				p.Source = models.PlanSourceCache
				return &Result{Plan: p}
			}
		}
		if m, ok := g.Cache.FindSimilar(key, userID, g.threshold()); ok {
			if p, err := decode(m.Data); err == nil {
				log.WithField("similarity", m.Similarity).Debug("serving similar cached plan")
				p.Source = models.PlanSourceCache
				return &Result{Plan: p}
			}
		}
	}

	if !req.Personalized && g.Templates != nil {
		if p, ok := g.Templates.Lookup(req.Emotion, aicache.MoodBucket(req.Intensity)); ok {
			return &Result{Plan: p}
		}
	}

	aiReq := ai.PlanRequest{
		Emotion:   req.Emotion,
		Intensity: req.Intensity,
		Tags:      req.Tags,
		Language:  req.Language,
		Context:   req.Context,
	}

	if g.Budget != nil {
		if err := g.Budget.Check(ctx, userID, g.estimateInput(aiReq), expectedPlanOutputTokens); err != nil {
			log.WithError(err).Info("plan generation over budget, degrading")
			notice := ai.ErrQuotaExceeded.UserMessage()
			if !errors.Is(err, llm.ErrBudgetExceeded) {
				notice = ai.ErrNetwork.UserMessage()
			}
			return g.degrade(req, notice)
		}
	}

	p, usage, err := g.AI.GeneratePanicPlan(ctx, aiReq)
	if usage.InputTokens+usage.OutputTokens > 0 && g.Budget != nil {
		if recErr := g.Budget.Record(ctx, userID, usage.InputTokens, usage.OutputTokens); recErr != nil {
			log.WithError(recErr).Warn("failed to record plan usage")
		}
	}
	if err != nil {
		log.WithError(err).Warn("AI plan generation failed, degrading")
		notice := ai.ErrNetwork.UserMessage()
		var aiErr *ai.Error
		if errors.As(err, &aiErr) {
			notice = aiErr.UserMessage()
		}
		return g.degrade(req, notice)
	}

	if g.Cache != nil {
		if data, err := json.Marshal(p); err == nil {
			g.Cache.Set(data, key, userID)
		}
	}
	return &Result{Plan: p}
}

func (g *Generator) degrade(req Request, notice string) *Result {
	if g.Templates != nil {
		if p, ok := g.Templates.ForIntensity(req.Emotion, req.Intensity); ok {
			return &Result{Plan: p, Degraded: true, Notice: notice}
		}
	}
	return &Result{Plan: DefaultPlan(), Degraded: true, Notice: notice}
}

func (g *Generator) estimateInput(req ai.PlanRequest) int {
	text := req.Emotion + " " + strings.Join(req.Tags, " ") + " " + req.Context
	if g.Counter == nil {
		return 200 + len(text)/4
	}
	return 200 + g.Counter.Count(text)
}

func decode(data []byte) (models.PanicPlan, error) {
	var p models.PanicPlan
	err := json.Unmarshal(data, &p)
	return p, err
}

func snapshotOf(p models.PanicPlan) aicache.Snapshot {
	return aicache.Snapshot{Emotion: p.Emotion, Intensity: p.Intensity, Tags: p.Tags}
}

func snapshotFor(req Request) aicache.Snapshot {
	return aicache.Snapshot{Emotion: req.Emotion, Intensity: req.Intensity, Tags: req.Tags}
}
