package checkin

import (
	"context"
	"strings"
	"time"

	"github.com/calmbackend/internal/ai"
	"github.com/calmbackend/internal/aicache"
	"github.com/calmbackend/internal/crisis"
	"github.com/calmbackend/internal/llm"
	"github.com/calmbackend/internal/models"
	"github.com/calmbackend/internal/templates"
	"github.com/sirupsen/logrus"
)

const (
	estimatedClassifyInput  = 220
	estimatedClassifyOutput = 120
)

type Classifier interface {
	ClassifyCheckIn(ctx context.Context, req ai.CheckInRequest) (ai.Classification, ai.Usage, error)
}

type Saver interface {
	Save(ctx context.Context, c *models.CheckIn) error
}

type ActivityRecorder interface {
	RecordActivity(ctx context.Context, userID string) (*models.Progress, error)
}

type Request struct {
	Mood int      `json:"mood" validate:"min=0,max=10"`
	Tags []string `json:"tags" validate:"max=10,dive,max=40"`
	Note string   `json:"note" validate:"max=2000"`
}

type Result struct {
	CheckIn   models.CheckIn    `json:"check_in"`
	Exercise  *models.PanicPlan `json:"exercise,omitempty"`
	Resources []crisis.Resource `json:"crisis_resources,omitempty"`
	Progress  *models.Progress  `json:"progress,omitempty"`
	Degraded  bool              `json:"degraded"`
}

// Service scores a daily check-in and decides between a micro exercise and
// crisis resources.
type Service struct {
	Classifier Classifier
	Budget     *llm.Budget
	Templates  *templates.Library
	Store      Saver
	Progress   ActivityRecorder
	Log        *logrus.Entry
	Now        func() time.Time
}

func (s *Service) Submit(ctx context.Context, userID string, req Request) (*Result, error) {
	log := s.Log.WithField("user_id", userID)
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}

	local := LocalSeverity(req.Mood, req.Tags, req.Note)
	cls, degraded := s.classify(ctx, userID, req, log)

	// The remote classifier can only raise the local score.
	severity := local
	if cls.Severity > severity {
		severity = cls.Severity
	}

	c := models.CheckIn{
		UserID:    userID,
		Mood:      req.Mood,
		Tags:      aicache.NormalizeTags(req.Tags),
		Note:      req.Note,
		Severity:  severity,
		CreatedAt: now().UTC(),
	}
	res := &Result{Degraded: degraded}

	if severity >= CrisisSeverity {
		c.Route = models.RouteCrisis
		c.Message = crisis.Message
		res.Resources = crisis.Resources()
	} else {
		c.Route = models.RouteMicroExercise
		c.Message = cls.Message
		if c.Message == "" {
			c.Message = "Thanks for checking in. Here is a short exercise for right now."
		}
		res.Exercise = s.exercise(req)
	}

	if s.Store != nil {
		if err := s.Store.Save(ctx, &c); err != nil {
			return nil, err
		}
	}
	if s.Progress != nil {
		p, err := s.Progress.RecordActivity(ctx, userID)
		if err != nil {
			log.WithError(err).Warn("failed to record check-in activity")
		}
		res.Progress = p
	}

	res.CheckIn = c
	log.WithFields(logrus.Fields{"severity": severity, "route": c.Route}).Info("check-in routed")
	return res, nil
}

// classify returns a zero classification and degraded=true whenever the remote
// classifier is unavailable, over budget or failing.
func (s *Service) classify(ctx context.Context, userID string, req Request, log *logrus.Entry) (ai.Classification, bool) {
	if s.Classifier == nil {
		return ai.Classification{}, true
	}
	if s.Budget != nil {
		if err := s.Budget.Check(ctx, userID, estimatedClassifyInput, estimatedClassifyOutput); err != nil {
			log.WithError(err).Info("check-in classifier skipped")
			return ai.Classification{}, true
		}
	}

	cls, usage, err := s.Classifier.ClassifyCheckIn(ctx, ai.CheckInRequest{Mood: req.Mood, Tags: req.Tags, Note: req.Note})
	if s.Budget != nil && usage.InputTokens+usage.OutputTokens > 0 {
		if recErr := s.Budget.Record(ctx, userID, usage.InputTokens, usage.OutputTokens); recErr != nil {
			log.WithError(recErr).Warn("failed to record classifier usage")
		}
	}
	if err != nil {
		log.WithError(err).Warn("check-in classifier failed, using local severity")
		return ai.Classification{}, true
	}
	return cls, false
}

func (s *Service) exercise(req Request) *models.PanicPlan {
	if s.Templates == nil {
		return nil
	}
	emotion := "any"
	for _, t := range req.Tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if _, ok := s.Templates.Lookup(t, aicache.MoodBucket(req.Mood)); ok {
			emotion = t
			break
		}
	}
	p, ok := s.Templates.ForIntensity(emotion, req.Mood)
	if !ok {
		return nil
	}
	return &p
}
