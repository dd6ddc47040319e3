package botapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ivankudzin/tgapp/moderator/internal/config"
	"github.com/ivankudzin/tgapp/moderator/internal/domain/model"
	"github.com/ivankudzin/tgapp/moderator/internal/domain/rules"
	llminfra "github.com/ivankudzin/tgapp/moderator/internal/infra/llm"
	s3infra "github.com/ivankudzin/tgapp/moderator/internal/infra/s3"
	tginfra "github.com/ivankudzin/tgapp/moderator/internal/infra/telegram"
	"github.com/ivankudzin/tgapp/moderator/internal/jobs/sweep"
	"github.com/ivankudzin/tgapp/moderator/internal/metrics"
	"github.com/ivankudzin/tgapp/moderator/internal/pkg/keylock"
	pgrepo "github.com/ivankudzin/tgapp/moderator/internal/repo/postgres"
	redrepo "github.com/ivankudzin/tgapp/moderator/internal/repo/redis"
	authsvc "github.com/ivankudzin/tgapp/moderator/internal/services/auth"
	classifysvc "github.com/ivankudzin/tgapp/moderator/internal/services/classify"
	evidencesvc "github.com/ivankudzin/tgapp/moderator/internal/services/evidence"
	guildsvc "github.com/ivankudzin/tgapp/moderator/internal/services/guilds"
	modsvc "github.com/ivankudzin/tgapp/moderator/internal/services/moderation"
	quarantinesvc "github.com/ivankudzin/tgapp/moderator/internal/services/quarantine"
	ratesvc "github.com/ivankudzin/tgapp/moderator/internal/services/rate"
	strikesvc "github.com/ivankudzin/tgapp/moderator/internal/services/strikes"
	ticketsvc "github.com/ivankudzin/tgapp/moderator/internal/services/tickets"
	"github.com/ivankudzin/tgapp/moderator/migrations"
)

const (
	classifyBudgetKey = "rate:classify:budget"
	shutdownTimeout   = 10 * time.Second
)

type App struct {
	cfg        config.Config
	logger     *zap.Logger
	postgres   *pgxpool.Pool
	redis      *goredis.Client
	bot        *tginfra.Bot
	server     *http.Server
	moderation *modsvc.Service
	strikes    *strikesvc.Service
	sweepJob   *sweep.Job
	commands   *commandRouter
}

func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	pool, err := pgrepo.NewPool(ctx, cfg.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("init postgres for bot app: %w", err)
	}
	if cfg.Postgres.MigrateOnStart {
		if err := pgrepo.Migrate(ctx, pool, migrations.FS, logger); err != nil {
			pool.Close()
			return nil, err
		}
	}

	bot, err := tginfra.NewBot(tginfra.Config{
		Token:             cfg.Bot.Token,
		RequestsPerSecond: cfg.Bot.RequestsPerSecond,
		Workers:           cfg.Bot.Workers,
		ForumChats:        cfg.Bot.ForumChats,
	}, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}

	m := metrics.New()

	redisClient := redrepo.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if redisClient != nil {
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unavailable, using in-process counters", zap.Error(err))
			_ = redisClient.Close()
			redisClient = nil
		}
	}

	var (
		windows     ratesvc.WindowStore
		remoteCache classifysvc.RemoteCache
		memStore    *ratesvc.MemoryStore
	)
	if redisClient != nil {
		windows = redrepo.NewRateRepo(redisClient)
		remoteCache = redrepo.NewCacheRepo(redisClient, cfg.Classifier.CacheTTL)
	} else {
		memStore = ratesvc.NewMemoryStore()
		windows = memStore
	}

	var completer classifysvc.Completer
	if client := llminfra.New(llminfra.Config{
		APIKey:        cfg.Classifier.APIKey,
		Model:         cfg.Classifier.Model,
		FallbackModel: cfg.Classifier.FallbackModel,
		MaxTokens:     int64(cfg.Classifier.MaxTokens),
		Timeout:       cfg.Classifier.CallTimeout,
	}, logger); client != nil {
		completer = client
	} else {
		logger.Warn("classifier api key is empty, every message will pass classification")
	}

	budget := ratesvc.NewBudget(windows, classifyBudgetKey, cfg.Classifier.BudgetPerMinute)
	limiter := classifysvc.NewLimiter(budget, cfg.Classifier.MaxConcurrency, logger)
	limiter.OnChange(m.SetInFlight)
	cache := classifysvc.NewCache(cfg.Classifier.CacheTTL, remoteCache, logger)
	allowlist := classifysvc.NewAllowlist(cfg.Classifier.AllowedTerms, cfg.Classifier.SevereTerms)
	callCfg := classifysvc.Config{CallTimeout: cfg.Classifier.CallTimeout}
	gateway := classifysvc.NewGateway(completer, limiter, cache, allowlist, m, logger, callCfg)
	adjudicator := classifysvc.NewAdjudicator(completer, limiter, m, logger, callCfg)

	strikeRepo := pgrepo.NewStrikeRepo(pool)
	muteRepo := pgrepo.NewPermanentMuteRepo(pool)
	quarantineRepo := pgrepo.NewQuarantineRepo(pool)
	ticketRepo := pgrepo.NewTicketRepo(pool)
	guildRepo := pgrepo.NewGuildConfigRepo(pool)

	strikes := strikesvc.NewService(strikeRepo, muteRepo, quarantineRepo, bot, m, logger, strikesvc.Config{
		Threshold: cfg.Strikes.Threshold,
		Decay:     cfg.Strikes.Decay(),
	})
	quarantine := quarantinesvc.NewService(quarantineRepo, bot, strikes, m, logger, quarantinesvc.Config{
		AccountAgeThreshold: cfg.Quarantine.AccountAgeThreshold,
		MaxDuration:         cfg.Quarantine.MaxDuration,
		SweepBatch:          cfg.Quarantine.SweepBatch,
	})
	guilds := guildsvc.NewService(guildRepo, guildsvc.Defaults{
		TicketChatID: cfg.Bot.TicketChatID,
		LogChatID:    cfg.Bot.LogChatID,
	}, logger)
	tickets := ticketsvc.NewService(ticketRepo, guilds, bot, keylock.New(cfg.Tickets.LockTTL), m, logger)

	evidence := evidencesvc.NewService(nil, logger)
	if cfg.S3.Endpoint != "" {
		s3Client, err := s3infra.NewClient(s3infra.Config{
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			UseSSL:    cfg.S3.UseSSL,
		})
		if err != nil {
			logger.Warn("s3 init failed, evidence archive disabled", zap.Error(err))
		} else {
			bucket := s3infra.NewBucket(s3Client, cfg.S3.Bucket)
			if err := bucket.EnsureBucket(ctx); err != nil {
				logger.Warn("ensure evidence bucket failed", zap.String("bucket", cfg.S3.Bucket), zap.Error(err))
			}
			evidence = evidencesvc.NewService(bucket, logger)
		}
	}

	channels, err := rules.NewChannelPolicy(cfg.Prefilter.AllowedChannels, cfg.Prefilter.StrictChannels)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("compile channel formats: %w", err)
	}

	moderation := modsvc.NewService(modsvc.Deps{
		Prefilter: rules.NewPrefilter(rules.PrefilterConfig{
			Affirmations:      cfg.Prefilter.Affirmations,
			AffirmationMaxLen: cfg.Prefilter.AffirmationMaxLen,
			Solicitation:      cfg.Prefilter.Solicitation,
			Explicit:          cfg.Prefilter.Explicit,
			Severe:            cfg.Classifier.SevereTerms,
			LinkMinLength:     cfg.Prefilter.LinkMinLength,
		}),
		Sampler:     rules.NewSampler(cfg.Prefilter.SampleRate, cfg.Prefilter.ForumDivisor),
		Channels:    channels,
		Classifier:  gateway,
		Adjudicator: adjudicator,
		Strikes:     strikes,
		Quarantine:  quarantine,
		Flood: ratesvc.NewDetector(windows, ratesvc.FloodConfig{
			Window:       cfg.Flood.Window,
			MaxMessages:  cfg.Flood.MaxMessages,
			RepeatWindow: cfg.Flood.RepeatWindow,
			RepeatMax:    cfg.Flood.RepeatMax,
		}),
		Evidence: evidence,
		LogChats: guilds,
		Platform: bot,
		Metrics:  m,
		Logger:   logger,
	}, modsvc.Config{
		FloodMute:     cfg.Strikes.FloodMute,
		ViolationMute: cfg.Strikes.ViolationMute,
	})

	sweepJob := sweep.New(quarantine, logger)
	sweepJob.AttachPurger("classification", cache)
	sweepJob.AttachPurger("dedupe", moderation)
	sweepJob.AttachPurger("admins", bot)
	sweepJob.AttachPurger("quarantine_status", quarantine)
	if memStore != nil {
		sweepJob.AttachPurger("windows", memStore)
	}

	r := chi.NewRouter()
	ApplyMiddlewares(r, logger)
	RegisterRoutes(r, Dependencies{
		DB:         pool,
		Metrics:    m,
		JWT:        authsvc.NewJWTManager(cfg.Auth.JWTSecret, 0),
		Strikes:    strikes,
		Quarantine: quarantine,
		Tickets:    tickets,
		Guilds:     guilds,
		Evidence:   evidence,
		Logger:     logger,
	})

	return &App{
		cfg:      cfg,
		logger:   logger,
		postgres: pool,
		redis:    redisClient,
		bot:      bot,
		server: &http.Server{
			Addr:         cfg.HTTP.Addr,
			Handler:      r,
			ReadTimeout:  cfg.HTTP.ReadTimeout,
			WriteTimeout: cfg.HTTP.WriteTimeout,
			IdleTimeout:  cfg.HTTP.IdleTimeout,
		},
		moderation: moderation,
		strikes:    strikes,
		sweepJob:   sweepJob,
		commands:   newCommandRouter(bot, tickets, strikes, logger),
	}, nil
}

// Run serves until ctx is cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("bot app started",
		zap.String("bot", a.bot.Username()),
		zap.String("http_addr", a.cfg.HTTP.Addr),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.bot.Listen(ctx, tginfra.Handlers{
			OnMessage: a.handleMessage,
			OnJoin:    a.handleJoin,
			OnCommand: a.commands.Handle,
		})
	})

	g.Go(func() error {
		return a.sweepJob.Loop(ctx, a.cfg.Quarantine.SweepInterval)
	})

	g.Go(func() error {
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	a.logger.Info("bot app stopped")
	return err
}

func (a *App) Close() {
	if a.strikes != nil {
		a.strikes.Close()
	}
	if a.postgres != nil {
		a.postgres.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}

func (a *App) handleMessage(ctx context.Context, ev model.ModerationEvent) error {
	out := a.moderation.HandleMessage(ctx, ev)
	if out.Deleted || out.Escalated {
		a.logger.Info("message moderated",
			zap.Int64("community_id", ev.CommunityID),
			zap.Int64("user_id", ev.AuthorID),
			zap.String("rule", out.Rule),
			zap.String("category", string(out.Result.Category)),
			zap.Bool("escalated", out.Escalated),
			zap.Int64("strike_id", out.StrikeID),
		)
	}
	return nil
}

func (a *App) handleJoin(ctx context.Context, member model.MemberJoin) error {
	a.moderation.HandleJoin(ctx, member)
	return nil
}
