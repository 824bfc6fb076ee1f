package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"reward-farming/internal/alerting"
	"reward-farming/internal/clock"
	"reward-farming/internal/config"
	"reward-farming/internal/custody"
	"reward-farming/internal/farming"
	"reward-farming/internal/metrics"
	"reward-farming/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	// Out receives command output.
	Out io.Writer
	// Clock drives the engine; nil selects the system clock.
	Clock clock.Clock

	mu sync.Mutex
	rt *runtime
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger(), Out: os.Stdout}
}

// runtime is the engine wired to the configured backend.
type runtime struct {
	engine   *farming.Engine
	ledger   custody.Ledger
	mint     func(ctx context.Context, account custody.Account, amount uint64) error
	recorder *metrics.Recorder
	store    *storage.Store
	// history serves `pool show`; nil without a database.
	history historyStore
	close   func()
}

type historyStore interface {
	ListRecentSnapshots(ctx context.Context, pool common.Hash, limit int) ([]storage.PoolSnapshot, error)
	ListRecentAlerts(ctx context.Context, pool common.Hash, limit int) ([]storage.PeriodAlert, error)
}

func (a *App) newNotifier() alerting.Notifier {
	var notifiers alerting.Multi
	for _, ch := range a.Config.Alerting.Channels {
		switch ch {
		case "telegram":
			if a.Config.Alerting.Telegram.Enabled {
				cfg := a.Config.Alerting.Telegram
				notifiers = append(notifiers, alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger))
			}
		case "log":
			notifiers = append(notifiers, alerting.NewLogNotifier(a.Logger))
		default:
			a.Logger.Warn().Str("channel", ch).Msg("unknown alert channel ignored")
		}
	}
	if len(notifiers) == 0 {
		return nil
	}
	return notifiers
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// open wires the configured backend once per App.
func (a *App) open(ctx context.Context) (*runtime, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.rt != nil {
		return a.rt, nil
	}

	rt := &runtime{recorder: metrics.NewRecorder(), close: func() {}}
	var farmStore farming.Store
	switch a.Config.Engine.Backend {
	case config.BackendPostgres:
		store, closeStore, err := a.openStore(ctx)
		if err != nil {
			return nil, err
		}
		if store == nil {
			return nil, errors.New("database.dsn not configured; postgres backend unavailable")
		}
		rt.store = store
		rt.history = store
		rt.ledger = store
		rt.mint = store.Mint
		rt.close = closeStore
		farmStore = store
	case config.BackendMemory:
		ledger := custody.NewMemoryLedger()
		rt.ledger = ledger
		rt.mint = func(_ context.Context, account custody.Account, amount uint64) error {
			return ledger.Mint(account, amount)
		}
		farmStore = farming.NewMemoryStore(ledger)
		a.Logger.Warn().Msg("memory backend selected; state is lost on exit")
	default:
		return nil, fmt.Errorf("unknown engine backend %q", a.Config.Engine.Backend)
	}

	rt.engine = farming.New(farmStore, a.Clock, farming.Options{
		Recorder:   rt.recorder,
		MaxFunders: a.Config.Engine.MaxFunders,
	}, a.Logger)
	a.rt = rt
	return rt, nil
}

// Close releases the backend opened by any command.
func (a *App) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.rt != nil {
		a.rt.close()
		a.rt = nil
	}
}

func (a *App) requireStore(ctx context.Context, what string) (*runtime, error) {
	rt, err := a.open(ctx)
	if err != nil {
		return nil, err
	}
	if rt.store == nil {
		return nil, fmt.Errorf("database not configured; cannot %s", what)
	}
	return rt, nil
}

// ExportOptions hold parameters for exporting pool snapshot history.
type ExportOptions struct {
	Pool      common.Hash
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the pool show command.
type ShowOptions struct {
	Pool   common.Hash
	Events int
	// History is the number of stored snapshots and period alerts to list.
	History int
}
