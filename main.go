package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/spf13/cobra"

	"github.com/CrowderSoup/wiseflow/database"
	"github.com/CrowderSoup/wiseflow/handlers"
	"github.com/CrowderSoup/wiseflow/services"
	"github.com/CrowderSoup/wiseflow/storage"
)

// purgeInterval is how often the server hard-deletes expired trash.
const purgeInterval = time.Hour

func main() {
	rootCmd := &cobra.Command{
		Use:   "wiseflow",
		Short: "WiseFlow - kanban boards for your projects",
	}
	envFile := rootCmd.PersistentFlags().String("env-file", ".env", "environment file to load")

	rootCmd.AddCommand(serveCmd(envFile))
	rootCmd.AddCommand(purgeCmd(envFile))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API, websocket and file server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(*envFile)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func purgeCmd(envFile *string) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Permanently delete trash older than the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(*envFile)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("older-than") {
				olderThan = cfg.TrashRetention
			}

			db, err := database.InitDB(cfg.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()

			trash := services.NewTrash(database.NewStore(db), nil, nil)
			n, err := trash.PurgeExpired(cmd.Context(), olderThan)
			if err != nil {
				return err
			}
			fmt.Printf("Purged %d items trashed more than %s ago\n", n, olderThan)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", services.DefaultTrashRetention, "purge items trashed before this long ago")
	return cmd
}

func serve(ctx context.Context, cfg Config) error {
	db, err := database.InitDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	objects, err := storage.NewObjectStore(cfg.StorageDir, cfg.StorageBucket, cfg.PublicURL)
	if err != nil {
		return err
	}

	// Initialize services
	store := database.NewStore(db)
	hub := services.NewHub()
	go hub.Run(ctx)

	authService := services.NewAuthService(cfg.JWTSecret, cfg.SMTP)
	boards := services.NewBoards(store)
	trash := services.NewTrash(store, objects, hub)
	tasks := services.NewTasks(store, objects, hub)

	go purgeLoop(ctx, trash, cfg.TrashRetention)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService, store, cfg.PublicURL)
	authMiddleware := handlers.NewAuthMiddleware(authService)
	projectHandler := handlers.NewProjectHandler(store, boards, trash, hub)
	taskHandler := handlers.NewTaskHandler(tasks, trash)
	boardHandler := handlers.NewBoardHandler(boards)
	trashHandler := handlers.NewTrashHandler(trash)
	wsHandler := handlers.NewWebSocketHandler(hub, boards, store, cfg.AllowedOrigins,
		services.WithPersistTimeout(cfg.PersistTimeout))

	r := mux.NewRouter()

	// Auth routes
	r.HandleFunc("/api/auth/login", authHandler.Login).Methods("POST")
	r.HandleFunc("/api/auth/verify", authHandler.VerifyToken).Methods("GET")
	r.HandleFunc("/api/auth/magic-link", authHandler.HandleMagicLink).Methods("GET")

	// Protected routes
	api := r.PathPrefix("/api").Subrouter()
	api.Use(authMiddleware.Auth)

	api.HandleFunc("/projects", projectHandler.List).Methods("GET")
	api.HandleFunc("/projects", projectHandler.Create).Methods("POST")
	api.HandleFunc("/projects/{id}", projectHandler.Update).Methods("PUT")
	api.HandleFunc("/projects/{id}", projectHandler.Delete).Methods("DELETE")
	api.HandleFunc("/projects/{slug}/board", projectHandler.Board).Methods("GET")

	api.HandleFunc("/tasks", taskHandler.Create).Methods("POST")
	api.HandleFunc("/tasks/{id}", taskHandler.Update).Methods("PUT")
	api.HandleFunc("/tasks/{id}", taskHandler.Delete).Methods("DELETE")
	api.HandleFunc("/tasks/{id}/comments", taskHandler.AddComment).Methods("POST")
	api.HandleFunc("/tasks/{id}/attachments", taskHandler.AddAttachment).Methods("POST")
	api.HandleFunc("/comments/{id}", taskHandler.DeleteComment).Methods("DELETE")
	api.HandleFunc("/attachments/{id}", taskHandler.DeleteAttachment).Methods("DELETE")
	api.HandleFunc("/subtasks/{id}", taskHandler.ToggleSubtask).Methods("PATCH")

	api.HandleFunc("/board/positions", boardHandler.SavePositions).Methods("PUT")

	api.HandleFunc("/trash", trashHandler.List).Methods("GET")
	api.HandleFunc("/trash/restore", trashHandler.Restore).Methods("POST")
	api.HandleFunc("/trash/purge", trashHandler.Purge).Methods("POST")

	// WebSocket route for drag sessions and change events
	api.HandleFunc("/ws", wsHandler.HandleWebSocket)

	// Uploaded files
	r.PathPrefix(storage.PublicPrefix + objects.Bucket() + "/").Handler(objects.Handler())

	// Static file server for frontend
	r.PathPrefix("/").Handler(http.FileServer(http.Dir(cfg.StaticDir)))

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      c.Handler(r),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error shutting down server: %v", err)
		}
	}()

	log.Printf("Server starting on port %s", cfg.Port)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Println("Server stopped")
	return nil
}

// purgeLoop hard-deletes expired trash until ctx is done.
func purgeLoop(ctx context.Context, trash *services.Trash, retention time.Duration) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := trash.PurgeExpired(ctx, retention)
			if err != nil {
				log.Printf("Error purging trash: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("Purged %d expired trash items", n)
			}
		}
	}
}
