package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"time"

	"github.com/COAOX/timeline_wars/api"
	"github.com/COAOX/timeline_wars/arena"
	cfg "github.com/COAOX/timeline_wars/config"
	"github.com/COAOX/timeline_wars/db"
	"github.com/COAOX/timeline_wars/economy"
	"github.com/COAOX/timeline_wars/feed"
	"github.com/COAOX/timeline_wars/game"
	"github.com/COAOX/timeline_wars/medal"
	"github.com/gorilla/handlers"
	"github.com/sirupsen/logrus"
	"github.com/topfreegames/pitaya/v2"
	"github.com/topfreegames/pitaya/v2/acceptor"
	"github.com/topfreegames/pitaya/v2/config"
	"github.com/topfreegames/pitaya/v2/groups"
	logruswrapper "github.com/topfreegames/pitaya/v2/logger/logrus"
	"github.com/topfreegames/pitaya/v2/serialize/json"
	"go.uber.org/zap"
)

var (
	configPath = flag.String("config", "./config/local.json", "Path to config file")
)

func main() {
	flag.Parse()
	cfg := cfg.Read(*configPath)

	logger := newLogger(cfg.LogLevel)
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	plog := logrus.New()
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		plog.SetLevel(lvl)
	}
	pitaya.SetLogger(logruswrapper.NewWithFieldLogger(plog))

	builder := pitaya.NewDefaultBuilder(true, cfg.FrontendType, pitaya.Standalone, map[string]string{}, configApp())
	builder.AddAcceptor(acceptor.NewWSAcceptor(cfg.WSAddr))
	builder.Groups = groups.NewMemoryGroupService(*config.NewDefaultMemoryGroupConfig())
	builder.Serializer = json.NewSerializer()
	app := builder.Build()
	defer app.Shutdown()

	var (
		ledger   economy.Ledger = economy.NewMemoryLedger(cfg.OpeningBalance)
		database *db.Client
		archive  api.Archive
	)
	if cfg.Database.DSN != "" {
		var err error
		database, err = db.NewClient(cfg.Database)
		if err != nil {
			zap.L().Fatal("connect database", zap.Error(err))
		}
		ledger = database.Ledger(cfg.OpeningBalance)
	}

	var opts []game.StoreOption
	if cfg.RandSeed != 0 {
		opts = append(opts, game.WithSeed(cfg.RandSeed))
	}
	store := game.NewStore(ledger, opts...)
	engine := game.NewEngine(store, game.Settings{
		RoundDuration: cfg.RoundDuration(),
		DefaultRounds: cfg.DefaultRounds,
		MaxRounds:     cfg.MaxRounds,
	})
	defer engine.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go store.Prune(ctx, cfg.PruneInterval(), cfg.EventRetention())

	if database != nil {
		arch := db.NewArchiver(database)
		engine.Subscribe(arch)
		archive = arch
	}
	if cfg.Kafka.Enabled {
		pub, err := feed.NewPublisher(feed.Config{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.Topic})
		if err != nil {
			zap.L().Fatal("kafka publisher", zap.Error(err))
		}
		pub.Start(ctx)
		defer pub.Stop()
		engine.Subscribe(pub)
	}
	var apiOpts []api.Option
	if cfg.Medal.Enabled {
		c, err := medal.NewClient(cfg.Medal.AccountName, cfg.Medal.Seed, cfg.Medal.NftPrefix, cfg.Medal.Image, cfg.Medal.CollectionId)
		if err != nil {
			zap.L().Error("medal client disabled", zap.Error(err))
		} else {
			engine.Subscribe(medal.NewAwarder(c))
			apiOpts = append(apiOpts, api.WithMedals(c))
		}
	}

	arena.RegistRoom(app, engine, cfg)

	router := api.NewRouter(engine, archive, apiOpts...)
	go func() {
		zap.L().Info("http api listening", zap.String("addr", cfg.HTTPAddr))
		if err := http.ListenAndServe(cfg.HTTPAddr, handlers.LoggingHandler(os.Stdout, router)); err != nil {
			zap.L().Error("http api stopped", zap.Error(err))
		}
	}()

	app.Start()
}

func newLogger(level string) *zap.Logger {
	zc := zap.NewProductionConfig()
	if err := zc.Level.UnmarshalText([]byte(level)); err != nil {
		zc.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	l, err := zc.Build()
	if err != nil {
		panic(err)
	}
	return l
}

func configApp() config.BuilderConfig {
	conf := config.NewDefaultBuilderConfig()
	conf.Pitaya.Heartbeat.Interval = time.Duration(3 * time.Second)
	conf.Pitaya.Buffer.Agent.Messages = 32
	conf.Pitaya.Handler.Messages.Compression = false
	conf.Metrics.Prometheus.Enabled = true
	return *conf
}
