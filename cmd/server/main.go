package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"matchbook/api/ws"
	"matchbook/config"
	"matchbook/event"
	"matchbook/infra/journal"
	"matchbook/infra/kafka"
	"matchbook/infra/sequence"
	"matchbook/jobs/broadcaster"
	"matchbook/jobs/marketmaker"
	"matchbook/metrics"
	"matchbook/pkg/tick"
	"matchbook/service"
)

func main() {
	cfgPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		config.InitLogger("info", "console")
		bootLog := config.NewLogger("main")
		bootLog.Fatal().Err(err).Msg("config load failed")
	}
	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)
	log := config.NewLogger("main")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// ---------------- Journal ----------------

	var jrnl *journal.Journal
	if cfg.Journal.Enabled {
		jrnl, err = journal.Open(cfg.Journal.Dir)
		if err != nil {
			log.Fatal().Err(err).Msg("journal open failed")
		}
		defer jrnl.Close()
	}

	// ---------------- Engine ----------------

	eng := service.New(config.NewLogger("engine"), sequence.New(0), jrnl)
	for _, ins := range cfg.Engine.Instruments {
		conv, err := tick.NewConverter(
			decimal.RequireFromString(ins.TickSize),
			decimal.RequireFromString(ins.LotSize),
		)
		if err != nil {
			log.Fatal().Err(err).Str("instrument", ins.Symbol).Msg("bad instrument grid")
		}
		if err := eng.AddInstrument(ins.Symbol, conv); err != nil {
			log.Fatal().Err(err).Str("instrument", ins.Symbol).Msg("instrument registration failed")
		}
	}

	// ---------------- Websocket feed ----------------

	hub := ws.NewHub(config.NewLogger("ws"))
	go hub.Run(ctx)
	wireFeed(eng, hub)

	// ---------------- Background jobs ----------------

	if cfg.Kafka.Enabled {
		if jrnl != nil {
			bc, err := broadcaster.New(jrnl, cfg.Kafka.Brokers, cfg.Kafka.TradeTopic, cfg.Kafka.TradeInterval, config.NewLogger("broadcaster"))
			if err != nil {
				log.Fatal().Err(err).Msg("broadcaster init failed")
			}
			defer bc.Close()
			go bc.Run(ctx)
		}

		depthProducer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.DepthTopic)
		defer depthProducer.Close()
		go eng.StartDepthPublisher(ctx, depthProducer, cfg.Kafka.DepthInterval, cfg.Kafka.DepthLevels)
	}

	if cfg.Sim.Enabled {
		base, err := decimal.NewFromString(cfg.Sim.BasePrice)
		if err != nil {
			log.Fatal().Err(err).Msg("bad sim.base_price")
		}
		for _, ins := range cfg.Engine.Instruments {
			maker := marketmaker.New(eng, marketmaker.Config{
				Instrument: ins.Symbol,
				BasePrice:  base,
				Levels:     cfg.Sim.Levels,
				Step:       decimal.RequireFromString(ins.TickSize),
				Size:       decimal.RequireFromString(ins.LotSize).Mul(decimal.NewFromInt(cfg.Sim.Size)),
				Random:     cfg.Sim.Random,
				Seed:       cfg.Sim.Seed,
				Interval:   cfg.Sim.Interval,
			}, config.NewLogger("marketmaker"))
			go func() { _ = maker.Run(ctx) }()
		}
	}

	// ---------------- HTTP ----------------

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/ws", hub)
	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", cfg.Server.ListenAddr).Msg("matchbook engine running")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("http server exited")
	}
	log.Info().Msg("shutdown complete")
}

// wireFeed forwards engine events to the websocket hub. Handlers run
// on the engine's dispatch path, and Broadcast never blocks.
func wireFeed(eng *service.Engine, hub *ws.Hub) {
	for _, sym := range eng.Instruments() {
		sym := sym
		conv, err := eng.Converter(sym)
		if err != nil {
			continue
		}
		_ = eng.Subscribe(sym, event.Fill, func(ev event.Event) {
			_ = hub.Broadcast(ws.MessageTypeTrade, map[string]interface{}{
				"instrument": sym,
				"order_id":   ev.OrderID,
				"price":      conv.PriceFromTicks(ev.Price),
				"qty":        conv.QtyFromLots(ev.Qty),
				"trade_seq":  ev.TradeSeq,
			})
		})
	}
}
