package moderation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ivankudzin/tgapp/moderator/internal/domain/enums"
	"github.com/ivankudzin/tgapp/moderator/internal/domain/model"
	"github.com/ivankudzin/tgapp/moderator/internal/domain/rules"
	"github.com/ivankudzin/tgapp/moderator/internal/metrics"
	"github.com/ivankudzin/tgapp/moderator/internal/pkg/ttlmap"
	ratesvc "github.com/ivankudzin/tgapp/moderator/internal/services/rate"
	strikesvc "github.com/ivankudzin/tgapp/moderator/internal/services/strikes"
)

const (
	defaultFloodMute     = 10 * time.Minute
	defaultViolationMute = time.Hour
	defaultDedupeTTL     = 10 * time.Minute

	RuleQuarantineMonitor = "quarantine-monitor"
	RuleFlood             = "flood"
	RuleRepeat            = "repeat"
	RuleChannelOverride   = "channel-override"
)

type Classifier interface {
	Classify(ctx context.Context, text string) model.ClassificationResult
}

type Adjudicator interface {
	Adjudicate(ctx context.Context, text string, category enums.Category) model.Verdict
}

type StrikeRecorder interface {
	Record(ctx context.Context, in strikesvc.RecordInput) (strikesvc.RecordResult, error)
	TimedMute(ctx context.Context, communityID, userID int64, d time.Duration, reason string) error
}

type QuarantineGate interface {
	Evaluate(ctx context.Context, member model.MemberJoin) (bool, error)
	IsQuarantined(ctx context.Context, communityID, userID int64) (bool, error)
	Reevaluate(ctx context.Context, member model.MemberJoin) (bool, error)
}

type FloodDetector interface {
	Observe(ctx context.Context, communityID, userID int64, text string) (ratesvc.FloodResult, error)
}

type EvidenceArchive interface {
	Archive(ctx context.Context, ev model.ModerationEvent, category enums.Category, rule, reason string) string
}

type LogChats interface {
	LogChat(ctx context.Context, communityID int64) int64
}

type Platform interface {
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
	SendText(ctx context.Context, chatID int64, text string) error
}

type Deps struct {
	Prefilter   *rules.Prefilter
	Sampler     *rules.Sampler
	Channels    *rules.ChannelPolicy
	Classifier  Classifier
	Adjudicator Adjudicator
	Strikes     StrikeRecorder
	Quarantine  QuarantineGate
	Flood       FloodDetector
	Evidence    EvidenceArchive
	LogChats    LogChats
	Platform    Platform
	Metrics     *metrics.Metrics
	Logger      *zap.Logger
}

type Config struct {
	FloodMute     time.Duration
	ViolationMute time.Duration
	DedupeTTL     time.Duration
}

// Outcome describes what the pipeline did with one event.
type Outcome struct {
	Ignored      string
	Decision     enums.Decision
	Rule         string
	Classified   bool
	Result       model.ClassificationResult
	Escalated    bool
	Deleted      bool
	StrikeID     int64
	MutedForever bool
}

type Service struct {
	prefilter   *rules.Prefilter
	sampler     *rules.Sampler
	channels    *rules.ChannelPolicy
	classifier  Classifier
	adjudicator Adjudicator
	strikes     StrikeRecorder
	quarantine  QuarantineGate
	flood       FloodDetector
	evidence    EvidenceArchive
	logChats    LogChats
	platform    Platform
	metrics     *metrics.Metrics
	logger      *zap.Logger
	cfg         Config
	processed   *ttlmap.Map[string, struct{}]
}

func NewService(deps Deps, cfg Config) *Service {
	if cfg.FloodMute <= 0 {
		cfg.FloodMute = defaultFloodMute
	}
	if cfg.ViolationMute <= 0 {
		cfg.ViolationMute = defaultViolationMute
	}
	if cfg.DedupeTTL <= 0 {
		cfg.DedupeTTL = defaultDedupeTTL
	}
	if deps.Prefilter == nil {
		deps.Prefilter = rules.NewPrefilter(rules.PrefilterConfig{})
	}
	if deps.Sampler == nil {
		deps.Sampler = rules.NewSampler(0, 0)
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	return &Service{
		prefilter:   deps.Prefilter,
		sampler:     deps.Sampler,
		channels:    deps.Channels,
		classifier:  deps.Classifier,
		adjudicator: deps.Adjudicator,
		strikes:     deps.Strikes,
		quarantine:  deps.Quarantine,
		flood:       deps.Flood,
		evidence:    deps.Evidence,
		logChats:    deps.LogChats,
		platform:    deps.Platform,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		cfg:         cfg,
		processed:   ttlmap.New[string, struct{}](cfg.DedupeTTL),
	}
}

// Purge drops expired dedupe entries.
func (s *Service) Purge() int {
	return s.processed.Purge()
}

// HandleMessage runs one event through the pipeline. Failures of any collaborator are
// logged and resolve to the lenient outcome; nothing is returned to the caller.
func (s *Service) HandleMessage(ctx context.Context, ev model.ModerationEvent) Outcome {
	if ev.AuthorIsBot {
		return Outcome{Ignored: "bot"}
	}
	if !s.processed.SetIfAbsent(messageKey(ev), struct{}{}) {
		return Outcome{Ignored: "duplicate"}
	}
	log := s.logger.With(
		zap.Int64("community_id", ev.CommunityID),
		zap.Int64("user_id", ev.AuthorID),
		zap.Int64("message_id", ev.MessageID),
	)

	if decision, ok := s.channels.Override(ev); ok {
		s.metrics.PrefilterDecision(string(decision), RuleChannelOverride)
		out := Outcome{Decision: decision, Rule: RuleChannelOverride}
		if decision == enums.DecisionReject {
			out.Deleted = s.deleteMessage(ctx, log, ev)
			s.modLog(ctx, ev.CommunityID, fmt.Sprintf("removed message %d from user %d: wrong format for channel %d", ev.MessageID, ev.AuthorID, ev.ChannelID))
		}
		return out
	}

	if out, handled := s.checkFlood(ctx, log, ev); handled {
		return out
	}

	decision, rule := s.route(ctx, log, ev)
	out := Outcome{Decision: decision, Rule: rule}
	s.metrics.PrefilterDecision(string(decision), rule)
	if decision == enums.DecisionSkip {
		return out
	}
	if decision == enums.DecisionSample && !s.sampler.Hit(s.channels.Kind(ev.ChannelID, ev.ChannelKind)) {
		return out
	}
	if s.classifier == nil {
		return out
	}

	out.Classified = true
	out.Result = s.classifier.Classify(ctx, ev.Text)
	if !out.Result.Flagged {
		return out
	}

	// A flag alone removes the message; only a confirmed flag becomes a strike.
	out.Deleted = s.deleteMessage(ctx, log, ev)
	evidenceKey := ""
	if s.evidence != nil {
		evidenceKey = s.evidence.Archive(ctx, ev, out.Result.Category, rule, "")
	}

	verdict := model.Verdict{Reason: "adjudication unavailable"}
	if s.adjudicator != nil {
		verdict = s.adjudicator.Adjudicate(ctx, ev.Text, out.Result.Category)
	}
	if !verdict.Escalate {
		log.Info("flagged message removed without strike",
			zap.String("category", string(out.Result.Category)),
			zap.String("reason", verdict.Reason),
		)
		s.modLog(ctx, ev.CommunityID, fmt.Sprintf("removed message %d from user %d (%s), no strike: %s", ev.MessageID, ev.AuthorID, out.Result.Category, verdict.Reason))
		return out
	}
	out.Escalated = true

	s.punish(ctx, log, ev, &out, out.Result.Category, verdict.Reason, strikesvc.ActorAdjudicator, rule, evidenceKey, s.cfg.ViolationMute)
	return out
}

func (s *Service) HandleJoin(ctx context.Context, member model.MemberJoin) bool {
	if s.quarantine == nil || member.IsBot {
		return false
	}

	quarantined, err := s.quarantine.Evaluate(ctx, member)
	if err != nil {
		s.logger.Warn("quarantine evaluation failed",
			zap.Int64("community_id", member.CommunityID),
			zap.Int64("user_id", member.UserID),
			zap.Error(err),
		)
		return false
	}
	if quarantined {
		s.modLog(ctx, member.CommunityID, fmt.Sprintf("quarantined new member %d (%s), account created %s", member.UserID, member.Username, member.AccountCreatedAt.Format("2006-01-02")))
	}
	return quarantined
}

// reevaluateAuthor applies the account age rule to members who joined before
// the bot was watching.
func (s *Service) reevaluateAuthor(ctx context.Context, log *zap.Logger, ev model.ModerationEvent) bool {
	member := model.MemberJoin{
		CommunityID:      ev.CommunityID,
		UserID:           ev.AuthorID,
		Username:         ev.AuthorName,
		AccountCreatedAt: ev.AuthorCreatedAt,
		JoinedAt:         ev.SentAt,
	}
	quarantined, err := s.quarantine.Reevaluate(ctx, member)
	if err != nil {
		log.Warn("quarantine re-evaluation failed", zap.Error(err))
		return false
	}
	if quarantined {
		s.modLog(ctx, ev.CommunityID, fmt.Sprintf("quarantined existing member %d (%s), account created %s", ev.AuthorID, ev.AuthorName, ev.AuthorCreatedAt.Format("2006-01-02")))
	}
	return quarantined
}

func (s *Service) route(ctx context.Context, log *zap.Logger, ev model.ModerationEvent) (enums.Decision, string) {
	quarantined := ev.AuthorIsQuarantined
	if !quarantined && s.quarantine != nil {
		var err error
		quarantined, err = s.quarantine.IsQuarantined(ctx, ev.CommunityID, ev.AuthorID)
		if err != nil {
			log.Debug("quarantine lookup failed", zap.Error(err))
		}
		if !quarantined && err == nil && !ev.AuthorCreatedAt.IsZero() {
			quarantined = s.reevaluateAuthor(ctx, log, ev)
		}
	}
	if quarantined && rules.Normalize(ev.Text) != "" {
		return enums.DecisionForceCheck, RuleQuarantineMonitor
	}
	return s.prefilter.DecideWithRule(ev.Text)
}

func (s *Service) checkFlood(ctx context.Context, log *zap.Logger, ev model.ModerationEvent) (Outcome, bool) {
	if s.flood == nil {
		return Outcome{}, false
	}

	res, err := s.flood.Observe(ctx, ev.CommunityID, ev.AuthorID, ev.Text)
	if err != nil {
		log.Warn("flood detector failed", zap.Error(err))
		return Outcome{}, false
	}
	if !res.Triggered() {
		return Outcome{}, false
	}

	rule := RuleFlood
	if !res.Flood {
		rule = RuleRepeat
	}
	out := Outcome{
		Decision:  enums.DecisionReject,
		Rule:      rule,
		Result:    model.NewClassificationResult(enums.CategorySpam),
		Escalated: true,
	}
	s.metrics.PrefilterDecision(string(out.Decision), rule)
	out.Deleted = s.deleteMessage(ctx, log, ev)
	if !res.Strike {
		// Same burst as an already punished message.
		out.Escalated = false
		return out, true
	}

	evidenceKey := ""
	if s.evidence != nil {
		evidenceKey = s.evidence.Archive(ctx, ev, enums.CategorySpam, rule, rule)
	}
	s.punish(ctx, log, ev, &out, enums.CategorySpam, rule, strikesvc.ActorFloodDetector, rule, evidenceKey, s.cfg.FloodMute)
	return out, true
}

func (s *Service) punish(ctx context.Context, log *zap.Logger, ev model.ModerationEvent, out *Outcome, category enums.Category, reason, actor, rule, evidenceKey string, mute time.Duration) {
	if s.strikes == nil {
		return
	}

	metadata := map[string]any{"rule": rule}
	if evidenceKey != "" {
		metadata["evidence_key"] = evidenceKey
	}
	result, err := s.strikes.Record(ctx, strikesvc.RecordInput{
		CommunityID:     ev.CommunityID,
		UserID:          ev.AuthorID,
		Category:        category,
		Reason:          reason,
		SourceMessageID: ev.MessageID,
		Actor:           actor,
		Metadata:        metadata,
	})
	if err != nil {
		log.Error("record strike failed", zap.Error(err))
		return
	}
	out.StrikeID = result.Strike.ID
	out.MutedForever = result.MutedForever

	if result.MutedForever {
		if !result.AlreadyMuted {
			s.modLog(ctx, ev.CommunityID, fmt.Sprintf("user %d permanently muted after %d active strikes", ev.AuthorID, result.Active))
		}
		return
	}

	if err := s.strikes.TimedMute(ctx, ev.CommunityID, ev.AuthorID, mute, reason); err != nil {
		log.Warn("timed mute failed", zap.Error(err))
	}
	s.modLog(ctx, ev.CommunityID, fmt.Sprintf("strike %d for user %d (%s, %s), %d active, muted for %s", result.Strike.ID, ev.AuthorID, category, reason, result.Active, mute))
}

func (s *Service) deleteMessage(ctx context.Context, log *zap.Logger, ev model.ModerationEvent) bool {
	if s.platform == nil || ev.MessageID == 0 {
		return false
	}
	if err := s.platform.DeleteMessage(ctx, ev.ChannelID, ev.MessageID); err != nil {
		s.metrics.PlatformError("delete_message")
		log.Warn("delete message failed", zap.Error(err))
		return false
	}
	return true
}

func (s *Service) modLog(ctx context.Context, communityID int64, text string) {
	if s.platform == nil || s.logChats == nil {
		return
	}
	chatID := s.logChats.LogChat(ctx, communityID)
	if chatID == 0 {
		return
	}
	if err := s.platform.SendText(ctx, chatID, text); err != nil {
		s.metrics.PlatformError("mod_log")
		s.logger.Warn("mod log failed", zap.Int64("community_id", communityID), zap.Error(err))
	}
}

func messageKey(ev model.ModerationEvent) string {
	return strconv.FormatInt(ev.ChannelID, 10) + ":" + strconv.FormatInt(ev.MessageID, 10)
}
