package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"photo-collage-app/internal/config"
	"photo-collage-app/internal/hub"
	"photo-collage-app/internal/server"
	"photo-collage-app/internal/storage"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "collage-server",
		Short:         "Live collage synchronization server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCommand())
	return root
}

func newServeCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the collage API and change-feed server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if configPath != "" {
				loaded, err := config.Load(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			return serve(cfg)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to YAML config file")
	return cmd
}

func serve(cfg *config.Config) error {
	db, err := storage.InitDB(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	feedHub := hub.NewHub()
	go feedHub.Run()

	store := storage.NewPhotoStore(db, feedHub)
	srv := server.New(store, feedHub, cfg.Thumbnails.MaxSize)

	slog.Info("collage server starting", "addr", cfg.Server.Addr, "db", cfg.Database.Path)
	return http.ListenAndServe(cfg.Server.Addr, srv.Handler(cfg.Server.AllowedOrigins))
}
