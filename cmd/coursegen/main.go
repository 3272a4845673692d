// Package main provides the coursegen binary entry point.
// Coursegen generates course outlines and lessons against a model host,
// filling any field the host cannot produce with offline content.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	// Register LLM providers via init()
	_ "github.com/c360studio/coursegen/llm/providers"

	"github.com/c360studio/coursegen/config"
	"github.com/c360studio/coursegen/content"
	"github.com/c360studio/coursegen/model"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "coursegen"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every generation command.
type globalFlags struct {
	configPath      string
	credentialsPath string
	logLevel        string
	metricsAddr     string
}

func rootCmd() *cobra.Command {
	var flags globalFlags

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Generate courses and lessons",
		Long: `Coursegen turns a course title into an outline and complete lessons.

Each lesson has text, an illustration, a video link, and review questions.
Requests rotate through the configured API keys, and any field the model
host cannot produce is filled with offline content, so every command
returns a complete document.`,
		SilenceUsage: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "Config file path (YAML)")
	pf.StringVar(&flags.credentialsPath, "credentials", "", "Credential file (JSON or YAML); replaces configured credentials")
	pf.StringVar(&flags.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.StringVar(&flags.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running")

	cmd.AddCommand(lessonCmd(&flags))
	cmd.AddCommand(courseCmd(&flags))
	cmd.AddCommand(buildCmd(&flags))
	cmd.AddCommand(showCmd(&flags))
	cmd.AddCommand(listCmd(&flags))
	cmd.AddCommand(initCmd(&flags))

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	return cmd
}

func lessonCmd(flags *globalFlags) *cobra.Command {
	var req content.LessonRequest

	cmd := &cobra.Command{
		Use:   "lesson",
		Short: "Generate a single lesson",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, app *App) error {
				doc, err := app.Lesson(ctx, req)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), doc)
			})
		},
	}

	cmd.Flags().StringVarP(&req.Title, "title", "t", "", "Lesson title (required)")
	cmd.Flags().StringVar(&req.ModuleTitle, "module", "", "Module the lesson belongs to")
	cmd.Flags().StringVar(&req.CourseTitle, "course", "", "Course the lesson belongs to")
	cmd.Flags().StringVar(&req.Subject, "subject", "", "Subject area")
	_ = cmd.MarkFlagRequired("title")

	return cmd
}

func courseCmd(flags *globalFlags) *cobra.Command {
	var req content.CourseRequest

	cmd := &cobra.Command{
		Use:   "course",
		Short: "Generate a course outline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, app *App) error {
				outline, err := app.Outline(ctx, req)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), outline)
			})
		},
	}

	addCourseFlags(cmd, &req)
	return cmd
}

func buildCmd(flags *globalFlags) *cobra.Command {
	var (
		req     content.CourseRequest
		outPath string
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Generate an outline and every lesson in it",
		Long: `Build generates a course outline and then each of its lessons in order.

The finished course is published as records (course, module, lesson) to NATS
when nats.url is configured, otherwise written as JSON lines to --out or
standard output.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, app *App) error {
				sink, closeSink, err := app.Sink(ctx, outPath, cmd.OutOrStdout())
				if err != nil {
					return err
				}
				defer closeSink()

				course, err := app.Build(ctx, req, sink)
				if course != nil {
					app.logger.Info("Build finished",
						"course_id", course.Outline.ID,
						"lessons", len(course.Lessons),
						"degraded", course.Degraded())
				}
				return err
			})
		},
	}

	addCourseFlags(cmd, &req)
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Write records to this file instead of standard output")
	return cmd
}

func showCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show <course:ID|lesson:ID>",
		Short: "Print a stored course or lesson",
		Long:  "Show reads a course or lesson kept by build when nats.store is enabled.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, app *App) error {
				store, closeStore, err := app.OpenStore(ctx)
				if err != nil {
					return err
				}
				defer closeStore()

				v, err := Show(ctx, store, args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), v)
			})
		},
	}
}

func listCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored courses",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, app *App) error {
				store, closeStore, err := app.OpenStore(ctx)
				if err != nil {
					return err
				}
				defer closeStore()

				outlines, err := store.ListCourses(ctx)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				for _, o := range outlines {
					fmt.Fprintf(w, "course:%s\t%s\t%s\t%s\n", o.ID, o.CreatedAt.Format(time.RFC3339), o.Provenance, o.Title)
				}
				return nil
			})
		},
	}
}

func initCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the user config file with defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(cmd.ErrOrStderr(), flags.logLevel)
			path, err := config.NewLoader(logger).EnsureUserConfig()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}

func addCourseFlags(cmd *cobra.Command, req *content.CourseRequest) {
	cmd.Flags().StringVarP(&req.Title, "title", "t", "", "Course title (required)")
	cmd.Flags().StringVar(&req.Description, "description", "", "Course description")
	cmd.Flags().StringVar(&req.Subject, "subject", "", "Subject area")
	_ = cmd.MarkFlagRequired("title")
}

// withApp loads configuration, builds the App, and runs fn with a context
// cancelled on SIGINT or SIGTERM.
func withApp(cmd *cobra.Command, flags *globalFlags, fn func(ctx context.Context, app *App) error) error {
	logger := newLogger(cmd.ErrOrStderr(), flags.logLevel)
	slog.SetDefault(logger)

	cfg, err := config.NewLoader(logger).Load(flags.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if flags.credentialsPath != "" {
		pool, err := model.LoadFromFile(flags.credentialsPath)
		if err != nil {
			return fmt.Errorf("load credentials: %w", err)
		}
		cfg.Credentials = pool.Credentials()
	}
	if len(cfg.Credentials) == 0 {
		logger.Warn("No credentials configured; every field will use fallback content")
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	app, err := NewApp(ctx, cfg, WithAppLogger(logger), WithMetricsAddr(flags.metricsAddr))
	if err != nil {
		return err
	}
	defer app.Close()

	return fn(ctx, app)
}

func newLogger(w io.Writer, logLevel string) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
