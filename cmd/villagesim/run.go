package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/talgya/village-mind/internal/api"
	"github.com/talgya/village-mind/internal/config"
	"github.com/talgya/village-mind/internal/engine"
	"github.com/talgya/village-mind/internal/persistence"
)

func runCmd() *cobra.Command {
	var (
		npcs  int
		aware int
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the village until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			setupLogging(cfg)
			return run(cfg, npcs, aware)
		},
	}
	cmd.Flags().IntVar(&npcs, "npcs", 12, "villagers to spawn when starting fresh")
	cmd.Flags().IntVar(&aware, "aware", 1, "how many of the initial villagers start aware")
	return cmd
}

// openArchive opens the configured archives. The returned closer is never
// nil.
func openArchive(ctx context.Context, p config.PersistenceConfig) (engine.Archive, func(), error) {
	var (
		archives []engine.Archive
		closers  []func()
	)
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	if p.DBPath != "" {
		if dir := filepath.Dir(p.DBPath); dir != "." {
			os.MkdirAll(dir, 0755)
		}
		db, err := persistence.Open(p.DBPath)
		if err != nil {
			return nil, closeAll, err
		}
		slog.Info("database opened", "path", p.DBPath)
		archives = append(archives, db)
		closers = append(closers, func() { db.Close() })
	}
	if p.RedisAddr != "" {
		rdb, err := persistence.NewRedisArchive(ctx, p.RedisAddr, p.RedisKey)
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		slog.Info("redis archive connected", "key", p.RedisKey)
		archives = append(archives, rdb)
		closers = append(closers, func() { rdb.Close() })
	}

	switch len(archives) {
	case 0:
		return nil, closeAll, nil
	case 1:
		return archives[0], closeAll, nil
	default:
		return persistence.Mirror(archives), closeAll, nil
	}
}

func run(cfg *config.Config, npcs, aware int) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("village starting",
		"seed", cfg.Seed,
		"tick_rate", cfg.TickRate,
		"world", fmt.Sprintf("%.0fx%.0f", cfg.WorldSize.Width, cfg.WorldSize.Height),
		"dialogue", cfg.Dialogue.String(),
	)

	archive, closeArchive, err := openArchive(ctx, cfg.Persistence)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer closeArchive()

	var opts []engine.Option
	if archive != nil {
		opts = append(opts, engine.WithArchive(archive))
	}
	town, err := engine.NewTown(cfg, opts...)
	if err != nil {
		return err
	}

	if archive != nil {
		if err := town.Rehydrate(ctx, archive); err != nil {
			town.Close()
			return err
		}
	}
	if town.Population() == 0 {
		for i := 0; i < npcs; i++ {
			if _, err := town.AddNPC(i < aware); err != nil {
				town.Close()
				return fmt.Errorf("spawn initial villagers: %w", err)
			}
		}
	} else {
		slog.Info("resuming", "tick", town.Tick(), "time", engine.SimTime(town.Tick(), cfg.TickRate))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Town.Run closes the town, flushing the final snapshot.
		return town.Run(gctx)
	})
	if cfg.API.Addr != "" {
		if cfg.API.AdminKey == "" {
			slog.Warn("VILLAGE_ADMIN_KEY not set, admin endpoints will be disabled")
		}
		srv := api.NewServer(town, cfg.API)
		g.Go(func() error {
			err := srv.ListenAndServe(gctx)
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		})
	}

	err = g.Wait()
	st := town.Status()
	slog.Info("village stopped",
		"tick", st.Tick,
		"villagers", st.Villagers,
		"aware", st.Aware,
		"suspecting", st.Suspecting,
	)
	return err
}
