package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"arkeep/internal/api"
	"arkeep/internal/articles"
	"arkeep/internal/config"
	"arkeep/internal/migrate"
	"arkeep/internal/mirror"
	"arkeep/internal/model"
	web "arkeep/internal/server"
	"arkeep/internal/session"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	logger    *zap.Logger
	cfgPath   string
	apiBase   string
	redisAddr string
	dataDir   string
)

type app struct {
	cfg      *config.Config
	sessions *session.Store
	api      *api.Client
	mirror   *mirror.Store
	articles *articles.Service
	migrator *migrate.Coordinator
}

func newApp() (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if apiBase != "" {
		cfg.API.BaseURL = apiBase
	}
	if redisAddr != "" {
		cfg.Storage.RedisAddr = redisAddr
	}
	if dataDir != "" {
		cfg.Storage.DataDir = dataDir
	}
	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	base, err := url.Parse(cfg.API.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	jar, err := session.NewFileJar(filepath.Join(cfg.Storage.DataDir, "cookies.json"), base)
	if err != nil {
		return nil, err
	}

	sessions := session.NewStore()
	client := api.NewClient(cfg.API.BaseURL, sessions, jar, logger)

	var backend mirror.Backend
	if cfg.Storage.RedisAddr != "" {
		backend, err = mirror.NewRedisBackend(cfg.Storage.RedisAddr)
	} else {
		backend, err = mirror.NewBadgerBackend(filepath.Join(cfg.Storage.DataDir, "guest"))
	}
	if err != nil {
		return nil, err
	}
	store := mirror.NewStore(backend, logger)

	return &app{
		cfg:      cfg,
		sessions: sessions,
		api:      client,
		mirror:   store,
		articles: articles.NewService(client, store, sessions, logger),
		migrator: migrate.NewCoordinator(client, store, sessions, logger),
	}, nil
}

func (a *app) Close() {
	if err := a.mirror.Close(); err != nil {
		logger.Warn("closing guest store", zap.Error(err))
	}
}

var rootCmd = &cobra.Command{
	Use:   "arkeep",
	Short: "arkeep - save links as a guest, keep them on the server once you log in",
}

var loginCmd = &cobra.Command{
	Use:   "login [google-id-token]",
	Short: "Exchange a Google id token for a session and migrate guest articles",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp()
		if err != nil {
			logger.Fatal("init failed", zap.Error(err))
		}
		defer a.Close()
		ctx := context.Background()

		resp, err := a.api.LoginWithGoogle(ctx, args[0])
		if err != nil {
			logger.Fatal("login failed", zap.Error(err))
		}
		a.sessions.Save(session.Session{Token: resp.Token, Email: resp.Email})

		// Enrich the session with the profile; not fatal if it fails.
		if profile, err := a.api.Me(ctx); err == nil {
			next := session.Session{Token: resp.Token, Email: resp.Email, Name: profile.DisplayName}
			if profile.AvatarURL != nil {
				next.PictureURL = *profile.AvatarURL
			}
			a.sessions.Save(next)
		}
		fmt.Printf("Logged in as %s\n", resp.Email)

		report, err := a.migrator.Run(ctx)
		if err != nil {
			logger.Fatal("guest migration failed, local articles kept", zap.Error(err))
		}
		if report != nil {
			fmt.Printf("Migrated %d guest articles: %d created, %d duplicates, %d failed\n",
				report.Total, report.Created, report.Duplicates, report.Failed)
		}
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Invalidate the server session and forget the local one",
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp()
		if err != nil {
			logger.Fatal("init failed", zap.Error(err))
		}
		defer a.Close()

		if err := a.api.Logout(context.Background()); err != nil {
			logger.Warn("server logout failed", zap.Error(err))
		}
		a.sessions.Clear()
		fmt.Println("Logged out.")
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in profile, or guest status",
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp()
		if err != nil {
			logger.Fatal("init failed", zap.Error(err))
		}
		defer a.Close()

		profile, err := a.api.Me(context.Background())
		if err != nil {
			if api.IsUnauthorized(err) {
				count, _ := a.articles.GuestCount(context.Background())
				fmt.Printf("Guest mode (%d articles saved locally)\n", count)
				return
			}
			logger.Fatal("profile fetch failed", zap.Error(err))
		}
		fmt.Printf("%s (%s)\n", profile.DisplayName, profile.UserID)
	},
}

var (
	addCategory    string
	addDescription string
)

var addCmd = &cobra.Command{
	Use:   "add [url]",
	Short: "Save a link",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp()
		if err != nil {
			logger.Fatal("init failed", zap.Error(err))
		}
		defer a.Close()

		input := model.CreateInput{URL: args[0]}
		if addCategory != "" {
			input.Category = &addCategory
		}
		if addDescription != "" {
			input.Description = &addDescription
		}

		article, err := a.articles.Create(context.Background(), input)
		if err != nil {
			logger.Fatal("save failed", zap.Error(err))
		}
		fmt.Printf("Saved #%d %s (%s)\n", article.ID, article.Title, article.Domain)
	},
}

var (
	listRead     bool
	listUnread   bool
	listQ        string
	listCategory string
	listDomain   string
	listPage     int
	listSize     int
	listOldest   bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved articles",
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp()
		if err != nil {
			logger.Fatal("init failed", zap.Error(err))
		}
		defer a.Close()

		params := model.ListParams{
			Q:        listQ,
			Category: listCategory,
			Domain:   listDomain,
			Page:     listPage,
			Size:     listSize,
		}
		if params.Size == 0 {
			params.Size = a.cfg.Storage.PageSize
		}
		if listRead {
			t := true
			params.IsRead = &t
		} else if listUnread {
			f := false
			params.IsRead = &f
		}
		if listOldest {
			params.Sort = model.SortOldest
		}

		page, err := a.articles.List(context.Background(), params)
		if err != nil {
			logger.Fatal("list failed", zap.Error(err))
		}
		for _, item := range page.Items {
			marker := " "
			if item.IsRead {
				marker = "*"
			}
			category := ""
			if item.Category != nil {
				category = " [" + *item.Category + "]"
			}
			fmt.Printf("%s #%d %s%s\n    %s - %s\n", marker, item.ID, item.Title, category, item.Domain, item.CreatedAt.Format("02 Jan 2006"))
		}
		fmt.Printf("Page %d/%d (%d articles)\n", page.Page, page.TotalPages, page.TotalItems)
	},
}

var facetsCmd = &cobra.Command{
	Use:   "facets",
	Short: "Show the categories and domains present in the active store",
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp()
		if err != nil {
			logger.Fatal("init failed", zap.Error(err))
		}
		defer a.Close()

		facets, err := a.articles.Facets(context.Background())
		if err != nil {
			logger.Fatal("facets failed", zap.Error(err))
		}
		fmt.Println("Categories:")
		for _, c := range facets.Categories {
			fmt.Printf("  %s\n", c)
		}
		fmt.Println("Domains:")
		for _, d := range facets.Domains {
			fmt.Printf("  %s\n", d)
		}
	},
}

func updateCommand(use, short string, build func(args []string) model.UpdateInput, minArgs int) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.MinimumNArgs(minArgs),
		Run: func(cmd *cobra.Command, args []string) {
			a, err := newApp()
			if err != nil {
				logger.Fatal("init failed", zap.Error(err))
			}
			defer a.Close()

			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				logger.Fatal("invalid article id", zap.String("id", args[0]))
			}
			article, err := a.articles.Update(context.Background(), id, build(args))
			if err != nil {
				logger.Fatal("update failed", zap.Error(err))
			}
			fmt.Printf("Updated #%d %s\n", article.ID, article.Title)
		},
	}
}

var rmCmd = &cobra.Command{
	Use:   "rm [id]",
	Short: "Delete a saved article",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp()
		if err != nil {
			logger.Fatal("init failed", zap.Error(err))
		}
		defer a.Close()

		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			logger.Fatal("invalid article id", zap.String("id", args[0]))
		}
		if err := a.articles.Delete(context.Background(), id); err != nil {
			logger.Fatal("delete failed", zap.Error(err))
		}
		fmt.Printf("Deleted #%d\n", id)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Push guest articles to the server (requires a session)",
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp()
		if err != nil {
			logger.Fatal("init failed", zap.Error(err))
		}
		defer a.Close()

		report, err := a.migrator.Run(context.Background())
		if err != nil {
			logger.Fatal("migration failed, local articles kept", zap.Error(err))
		}
		if report == nil {
			fmt.Println("Nothing to migrate.")
			return
		}
		fmt.Printf("Migrated %d guest articles: %d created, %d duplicates, %d failed\n",
			report.Total, report.Created, report.Duplicates, report.Failed)
	},
}

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the local JSON front-door for a browser UI",
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp()
		if err != nil {
			logger.Fatal("init failed", zap.Error(err))
		}
		defer a.Close()

		port := servePort
		if port == 0 {
			port = a.cfg.Server.Port
		}

		srv := web.NewServer(a.articles, a.migrator, a.sessions, logger)

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigChan
			logger.Info("Shutting down...")
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Stop(ctx); err != nil {
				logger.Error("shutdown error", zap.Error(err))
			}
		}()

		if err := srv.Start(strconv.Itoa(port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	},
}

func main() {
	var err error
	logger, err = zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&apiBase, "api", "", "Base URL of the archive service")
	rootCmd.PersistentFlags().StringVar(&redisAddr, "redis", "", "Use a Redis guest store at this address")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", "", "Data directory for the guest store and cookies")

	addCmd.Flags().StringVar(&addCategory, "category", "", "Category for the new article")
	addCmd.Flags().StringVar(&addDescription, "description", "", "Description for the new article")

	listCmd.Flags().BoolVar(&listRead, "read", false, "Only read articles")
	listCmd.Flags().BoolVar(&listUnread, "unread", false, "Only unread articles")
	listCmd.Flags().StringVar(&listQ, "q", "", "Title substring filter")
	listCmd.Flags().StringVar(&listCategory, "category", "", "Category filter")
	listCmd.Flags().StringVar(&listDomain, "domain", "", "Domain filter")
	listCmd.Flags().IntVar(&listPage, "page", 1, "Page number")
	listCmd.Flags().IntVar(&listSize, "size", 0, "Page size")
	listCmd.Flags().BoolVar(&listOldest, "oldest", false, "Oldest first")

	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port for the local front-door")

	readCmd := updateCommand("read [id]", "Mark an article as read", func(args []string) model.UpdateInput {
		t := true
		return model.UpdateInput{IsRead: &t}
	}, 1)
	unreadCmd := updateCommand("unread [id]", "Mark an article as unread", func(args []string) model.UpdateInput {
		f := false
		return model.UpdateInput{IsRead: &f}
	}, 1)
	categoryCmd := updateCommand("category [id] [name]", "Set or clear an article's category", func(args []string) model.UpdateInput {
		category := ""
		if len(args) > 1 {
			category = args[1]
		}
		return model.UpdateInput{Category: &category}
	}, 1)
	describeCmd := updateCommand("describe [id] [text]", "Set or clear an article's description", func(args []string) model.UpdateInput {
		description := ""
		if len(args) > 1 {
			description = args[1]
		}
		return model.UpdateInput{Description: &description}
	}, 1)

	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd, addCmd, listCmd, facetsCmd,
		readCmd, unreadCmd, categoryCmd, describeCmd, rmCmd, migrateCmd, serveCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
