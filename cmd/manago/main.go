package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/manago/client/internal/backend"
	"github.com/manago/client/internal/config"
	"github.com/manago/client/internal/core/event"
	coresys "github.com/manago/client/internal/core/system"
	"github.com/manago/client/internal/metrics"
	"github.com/manago/client/internal/net/packet"
	"github.com/manago/client/internal/persist"
	"github.com/manago/client/internal/scripting"
	"github.com/manago/client/internal/session"
	"github.com/manago/client/internal/system"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printSection(title string) {
	// CJK characters take two columns.
	displayWidth := 0
	for _, r := range title {
		if r > 0x7F {
			displayWidth += 2
		} else {
			displayWidth++
		}
	}
	lineLen := max(46-displayWidth-1, 3)
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

// ── Client main loop ──────────────────────────────────────────────

func run() error {
	cfgPath := "config/client.toml"
	if p := os.Getenv("MANAGO_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	servers, err := cfg.Servers()
	if err != nil {
		return fmt.Errorf("server list: %w", err)
	}
	charset, err := packet.CharsetByName(cfg.Network.Charset)
	if err != nil {
		return fmt.Errorf("network charset: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	printSection("設定")
	printOK(fmt.Sprintf("伺服器清單 %d 筆", len(servers)))

	var (
		profiles *persist.ProfileRepo
		chatLog  *persist.ChatLogRepo
	)
	if cfg.Profile.Path != "" {
		db, err := persist.Open(ctx, cfg.Profile.Path, log)
		if err != nil {
			return fmt.Errorf("profile: %w", err)
		}
		defer db.Close()
		profiles, chatLog = persist.NewProfileRepo(db), persist.NewChatLogRepo(db)
		if err := applyProfile(ctx, cfg, profiles); err != nil {
			return err
		}
		printOK("本地設定檔載入完成")
	}

	bus := event.NewBus()
	sess := session.New()
	sess.Credentials = session.Credentials{
		Username: cfg.Account.Username,
		Password: cfg.Account.Password,
		Remember: cfg.Account.Remember,
	}

	engine, err := scripting.NewEngine(cfg.Script.Path, scripting.Credentials{
		Username: cfg.Account.Username,
		Password: cfg.Account.Password,
	}, log)
	if err != nil {
		return fmt.Errorf("script: %w", err)
	}
	defer engine.Close()
	engine.Subscribe(bus)

	factory := backend.Factory(backend.Deps{
		Session:         sess,
		Bus:             bus,
		Net:             cfg.Network.Transport(),
		Charset:         charset,
		MaxBytesPerTick: cfg.Network.MaxBytesPerTick,
		ChatPerSecond:   cfg.Network.ChatPerSecond,
		Log:             log,
	})
	machine := session.NewMachine(sess, engine, localAssets{log: log}, factory, bus, session.Options{
		Servers:        servers,
		AutoConnect:    cfg.Account.ChooseDefault,
		Character:      cfg.Account.Character,
		SkipUpdate:     cfg.Account.SkipUpdate,
		RequestTimeout: cfg.Network.RequestTimeout,
	}, log)
	engine.Bind(machine)

	runner := coresys.NewRunner(log)
	runner.Register(system.NewInputSystem(engine))
	runner.Register(system.NewNetworkSystem(machine))
	runner.Register(system.NewStateSystem(machine))
	runner.Register(system.NewEventSystem(bus))
	runner.Register(system.NewOutputSystem(machine))
	var persistSys *system.PersistenceSystem
	if profiles != nil {
		// Chat log batches every 5 seconds.
		interval := max(int(5*time.Second/cfg.Network.TickRate), 1)
		persistSys = system.NewPersistenceSystem(sess, bus, profiles, chatLog, log, interval)
		runner.Register(persistSys)
	}

	printSection("客戶端啟動")
	printOK(fmt.Sprintf("主迴圈 (tick: %s)", cfg.Network.TickRate))
	fmt.Println()

	loopCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(loopCtx)
	if cfg.Metrics.Listen != "" {
		g.Go(func() error { return metrics.Serve(gctx, cfg.Metrics.Listen, log) })
	}
	g.Go(func() error {
		defer cancel()
		machine.Start()
		ticker := time.NewTicker(cfg.Network.TickRate)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				runner.Tick(cfg.Network.TickRate)
				if machine.Done() {
					log.Info("客戶端結束")
					return nil
				}
			case <-gctx.Done():
				log.Info("收到關閉信號，中斷連線")
				machine.ForceQuit()
				runner.Tick(cfg.Network.TickRate)
				return nil
			}
		}
	})
	err = g.Wait()
	if persistSys != nil {
		persistSys.FlushChat()
	}
	return err
}

// applyProfile fills account settings missing from the config with what
// the last run remembered.
func applyProfile(ctx context.Context, cfg *config.Config, profiles *persist.ProfileRepo) error {
	p, err := profiles.Load(ctx)
	if err != nil {
		return err
	}
	if cfg.Account.Username == "" && p.Remember {
		cfg.Account.Username = p.Username
		cfg.Account.Remember = true
	}
	if cfg.Account.Character == "" {
		cfg.Account.Character = p.Character
	}
	return nil
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
		// Handler panics are logged, not fatal.
		zapCfg.Development = false
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
