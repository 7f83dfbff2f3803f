package moderation

import (
	"github.com/GradientHair/GradientHair/internal/arbiter"
	"github.com/GradientHair/GradientHair/internal/broadcast"
	"github.com/GradientHair/GradientHair/internal/detection"
	"github.com/GradientHair/GradientHair/internal/logger"
	"github.com/GradientHair/GradientHair/internal/meeting"
	"github.com/GradientHair/GradientHair/internal/models"
	"github.com/GradientHair/GradientHair/internal/providers/llm"
	"github.com/GradientHair/GradientHair/internal/review"
	"github.com/GradientHair/GradientHair/internal/structured"
	"github.com/sirupsen/logrus"
)

// Builder assembles one isolated pipeline per meeting. Only the gateway client is
// shared; each meeting gets its own call limit, runner, detectors and store.
type Builder struct {
	Gateway     llm.Gateway
	Config      Config
	Broadcaster broadcast.Broadcaster
	Persister   Persister
	Log         *logrus.Entry

	// RunnerOptions are applied after the ones derived from Config.
	RunnerOptions []structured.Option
}

func (b *Builder) Build(m models.Meeting, opts ...meeting.Option) *Session {
	cfg := b.Config
	log := logger.Component(b.Log, "moderation", m.MeetingID)

	ropts := []structured.Option{
		structured.WithRouter(structured.DefaultRouter().Override(cfg.Routes)),
		structured.WithDefaults(cfg.MaxAttempts, cfg.AttemptTimeout),
		structured.WithLogger(log.WithField("component", "structured")),
	}
	if cfg.ModelVerification {
		ropts = append(ropts, structured.WithModelVerification())
	}
	ropts = append(ropts, b.RunnerOptions...)
	runner := structured.NewRunner(llm.Limit(b.Gateway, cfg.MaxConcurrentCalls), ropts...)

	agents := []detection.Agent{
		detection.NewPrinciple(runner, cfg.Principle, log),
		detection.NewTopic(runner, cfg.Topic, log),
		detection.NewParticipation(runner, cfg.Participation, cfg.Thresholds, log),
	}

	arb := arbiter.New(cfg.Policy, log)
	if cfg.Safety.Enabled {
		arb.WithScreener(detection.NewSafety(runner, cfg.Safety, log))
	}

	storeOpts := append([]meeting.Option{
		meeting.WithCooldowns(cfg.Policy.Cooldowns),
		meeting.WithLogger(log),
	}, opts...)

	return NewSession(meeting.NewStore(m, storeOpts...), Deps{
		Agents:           agents,
		Triage:           detection.NewTriage(cfg.Triage),
		Arbiter:          arb,
		Review:           review.NewPipeline(runner, cfg.Review, log),
		Broadcaster:      b.Broadcaster,
		Persister:        b.Persister,
		RoundTimeout:     cfg.RoundTimeout,
		CancelSuperseded: cfg.CancelSuperseded,
		Log:              log,
	})
}
