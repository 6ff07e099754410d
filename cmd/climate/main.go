package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-climate/internal/citation"
	"github.com/joeblew999/plat-climate/internal/content"
	"github.com/joeblew999/plat-climate/internal/db"
	"github.com/joeblew999/plat-climate/internal/layer"
	"github.com/joeblew999/plat-climate/internal/observability"
	"github.com/joeblew999/plat-climate/internal/server"
	"github.com/joeblew999/plat-climate/internal/service"
)

// Options defines all CLI flags and env vars for the climate server.
// Flags: --host, --port, --data-dir, --web-dir, --db-driver, ...
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_DATA_DIR, SERVICE_WEB_DIR, ...
type Options struct {
	Host          string        `doc:"Host to bind to" default:"0.0.0.0"`
	Port          int           `doc:"Port to listen on" short:"p" default:"8087"`
	DataDir       string        `doc:"Layer store root" default:".data"`
	WebDir        string        `doc:"Path to web/ directory (optional)"`
	DBDriver      string        `doc:"Content store driver: duckdb or postgres" default:"duckdb"`
	DBDSN         string        `doc:"Postgres connection string"`
	AdminPassword string        `doc:"Password for mutating routes; empty disables them"`
	LogLevel      string        `doc:"debug, info, warn or error" default:"info"`
	LogFormat     string        `doc:"json or text" default:"text"`
	CacheTTL      time.Duration `doc:"Server cache TTL for vector and raster payloads" default:"1h"`
	LayerGlob     string        `doc:"Pattern selecting layer files" default:"**/*.{cog,tif,tiff,mbtiles,pmtiles,geojson,json}"`
	Watch         bool          `doc:"Invalidate the server cache when layer files change"`
}

func (o *Options) serverConfig() server.Config {
	return server.Config{
		Host:          o.Host,
		Port:          strconv.Itoa(o.Port),
		DataDir:       o.DataDir,
		WebDir:        o.WebDir,
		DBDriver:      o.DBDriver,
		DBDSN:         o.DBDSN,
		AdminPassword: o.AdminPassword,
		CacheTTL:      o.CacheTTL,
		LayerGlob:     o.LayerGlob,
		Watch:         o.Watch,
	}
}

func (o *Options) logger() *slog.Logger {
	logger, err := observability.NewLogger(o.LogLevel, o.LogFormat, os.Stderr)
	if err != nil {
		fatal(err)
	}
	slog.SetDefault(logger)
	return logger
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		var (
			srv     *server.Server
			httpSrv *http.Server
			cancel  context.CancelFunc
		)

		hooks.OnStart(func() {
			logger := opts.logger()
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())

			var err error
			srv, err = server.New(ctx, opts.serverConfig(), logger)
			if err != nil {
				fatal(err)
			}
			if err := srv.Start(ctx); err != nil {
				fatal(err)
			}

			addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)

			fmt.Println()
			fmt.Printf("plat-climate API server starting...\n")
			fmt.Printf("  Server:  %s\n", baseURL)
			fmt.Printf("  Data:    %s\n", opts.DataDir)
			fmt.Printf("  Store:   %s\n", opts.DBDriver)
			fmt.Println()
			fmt.Printf("  Docs:    %s/docs\n", baseURL)
			fmt.Printf("  OpenAPI: %s/openapi.json\n", baseURL)
			fmt.Printf("  Metrics: %s/metrics\n", baseURL)
			fmt.Println()

			httpSrv = &http.Server{Addr: addr, Handler: srv, ReadHeaderTimeout: 10 * time.Second}
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("server error", "error", err)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			if cancel != nil {
				cancel()
			}
			if httpSrv != nil {
				ctx, done := context.WithTimeout(context.Background(), 5*time.Second)
				defer done()
				httpSrv.Shutdown(ctx)
			}
			if srv != nil {
				srv.Close()
			}
		})
	})

	cli.Root().Use = "climate"
	cli.Root().Short = "Climate stories and map layers API"
	cli.Root().Version = "1.0.0"

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			// The document does not depend on data; build it over a scratch store.
			tmp, err := os.MkdirTemp("", "climate-spec")
			if err != nil {
				fatal(err)
			}
			defer os.RemoveAll(tmp)
			cfg := opts.serverConfig()
			cfg.DataDir, cfg.WebDir, cfg.DBDriver, cfg.Watch = tmp, "", db.DriverDuckDB, false
			srv, err := server.New(cmd.Context(), cfg, opts.logger())
			if err != nil {
				fatal(err)
			}
			defer srv.Close()

			useYAML, _ := cmd.Flags().GetBool("yaml")
			var output []byte
			if useYAML {
				output, err = yaml.Marshal(srv.OpenAPI())
			} else {
				output, err = json.MarshalIndent(srv.OpenAPI(), "", "  ")
			}
			if err != nil {
				fatal(fmt.Errorf("marshal spec: %w", err))
			}
			fmt.Println(string(output))
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	// layers subcommand: print the resolved layer list
	cli.Root().AddCommand(&cobra.Command{
		Use:   "layers",
		Short: "List the layers resolved from the data dir",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			logger := opts.logger()
			store, err := service.NewLayerStore(opts.DataDir, opts.LayerGlob)
			if err != nil {
				fatal(err)
			}
			styles := service.NewStyleService(opts.DataDir, nil, logger)
			layers, err := layer.NewResolver(store, styles, logger).List(cmd.Context())
			if err != nil {
				fatal(err)
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTYPE\tFORMAT\tCATEGORY\tZ\tSIZE")
			for _, md := range layers {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
					md.ID, md.DataType, md.Format, md.Category, md.ZIndex, service.FormatSize(md.Size))
			}
			tw.Flush()
		}),
	})

	// cite subcommand: print the numbered bibliography of a story
	citeCmd := &cobra.Command{
		Use:   "cite",
		Short: "Print the numbered reference list of a story",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			ctx := cmd.Context()
			logger := opts.logger()
			slug, _ := cmd.Flags().GetString("story")
			lang, _ := cmd.Flags().GetString("lang")

			conn, err := db.Open(ctx, db.Config{Driver: opts.DBDriver, DSN: opts.DBDSN, DataDir: opts.DataDir, DBName: "climate"})
			if err != nil {
				fatal(err)
			}
			defer conn.Close()

			if err := printCitations(ctx, content.NewStore(conn, nil, logger), slug, lang); err != nil {
				fatal(err)
			}
		}),
	}
	citeCmd.Flags().String("story", "", "Story slug")
	citeCmd.Flags().String("lang", content.LangEN, "Story language (en or de)")
	citeCmd.MarkFlagRequired("story")
	cli.Root().AddCommand(citeCmd)

	cli.Run()
}

func printCitations(ctx context.Context, store *content.Store, slug, lang string) error {
	st, err := store.GetStory(ctx, slug, lang)
	if err != nil {
		return err
	}
	blocks, err := store.ListBlocks(ctx, st.ID, lang)
	if err != nil {
		return err
	}
	refs, err := store.ListReferences(ctx)
	if err != nil {
		return err
	}
	res := citation.Process(blocks, refs)
	fmt.Printf("%s (%s)\n\n", st.Title, st.Language)
	for _, ref := range res.Ordered {
		if n, ok := res.Numbers[ref.ID]; ok {
			fmt.Println(citation.Entry(n, ref))
		}
	}
	return nil
}
