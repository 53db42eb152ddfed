package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"harbor/internal/app"
	"harbor/internal/config"
	"harbor/internal/db"
	"harbor/internal/domain"
	"harbor/internal/engine"
	"harbor/internal/qa"
	"harbor/internal/repo"
	"harbor/internal/server"
)

var logger = zap.NewNop()

var errRejected = errors.New("certification rejected")

var rootCmd = &cobra.Command{
	Use:   "harbor",
	Short: "Harbor dataset certification CLI",
	Long: `Harbor gates dataset builds on quality before they can be published.
- Dataset builds move building -> ready_for_certification -> certified -> published.
- Certification compares a build's stats snapshot with the active profile for its dataset type.
- Profiles live in harbor.yml; a threshold change is a new profile version.
- QA scores (auto checks plus human review) feed the avg_qa_score stat.
- Event log: every change is recorded, view it with 'harbor log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := newLogger(viper.GetBool("verbose"))
		if err != nil {
			return err
		}
		logger = l
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("HARBOR")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug logging")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func registerCommands() {
	rootCmd.AddCommand(datasetCmd())
	rootCmd.AddCommand(profileCmd())
	rootCmd.AddCommand(qaCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	return cfg.Build()
}

func datasetCmd() *cobra.Command {
	ds := &cobra.Command{
		Use:   "dataset",
		Short: "Manage dataset builds",
		Long:  "A dataset build is one versioned assembly of recorded sessions plus the stats snapshot it is certified against.",
	}
	ds.AddCommand(datasetCreateCmd())
	ds.AddCommand(datasetListCmd())
	ds.AddCommand(datasetShowCmd())
	ds.AddCommand(datasetReadyCmd())
	ds.AddCommand(datasetCertifyCmd())
	ds.AddCommand(datasetPublishCmd())
	ds.AddCommand(datasetStatsCmd())
	return ds
}

func datasetCreateCmd() *cobra.Command {
	var id, name, datasetType, version, statsFile string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a dataset build",
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := statsFromFlags(cmd.Flags(), statsFile)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.CreateDataset(ctx, engine.DatasetCreateOptions{
					ID:          id,
					Name:        name,
					DatasetType: datasetType,
					Version:     version,
					Stats:       stats,
					ActorID:     viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(d)
				}
				fmt.Printf("Created dataset %s (%s %s)\n", d.ID, d.DatasetType, d.Version)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "dataset id (generated when empty)")
	cmd.Flags().StringVar(&name, "name", "", "dataset name")
	cmd.Flags().StringVar(&datasetType, "type", "", "dataset type (config default_type when empty)")
	cmd.Flags().StringVar(&version, "version", "", "dataset version, e.g. v1.0")
	cmd.Flags().StringVar(&statsFile, "stats-file", "", "JSON file with the stats snapshot")
	addStatsFlags(cmd.Flags())
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func datasetListCmd() *cobra.Command {
	var status, datasetType string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List dataset builds",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListDatasets(ctx, repo.DatasetFilters{Status: status, DatasetType: datasetType, Limit: limit})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Type", "Version", "Status", "Certified"})
				for _, d := range items {
					certified := ""
					if d.CertifiedAt != nil {
						certified = *d.CertifiedAt
					}
					tw.AppendRow(table.Row{d.ID, d.Name, d.DatasetType, d.Version, d.Status, certified})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().StringVar(&datasetType, "type", "", "filter by dataset type")
	cmd.Flags().IntVar(&limit, "limit", 0, "max rows (0 = all)")
	return cmd
}

func datasetShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <dataset-id>",
		Short: "Show a dataset build",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.GetDataset(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(d)
				}
				printDataset(d)
				return nil
			})
		},
	}
	return cmd
}

func datasetReadyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ready <dataset-id>",
		Short: "Mark a build ready for certification",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.MarkReady(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printStatusChange(d)
			})
		},
	}
}

func datasetCertifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "certify <dataset-id>",
		Short: "Certify a build against its active profile",
		Long:  "Certification succeeds only when every threshold of the active profile is met. Failures list every violated threshold and leave the build untouched.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.Certify(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					if err := printJSON(res); err != nil {
						return err
					}
				} else if res.Success {
					fmt.Printf("Certified %s against profile %s@%s\n", res.Dataset.ID, res.Dataset.ProfileType, res.Dataset.ProfileVersion)
					if res.Dataset.QAReportURL != nil {
						fmt.Printf("QA report: %s\n", *res.Dataset.QAReportURL)
					}
				} else {
					fmt.Println("Certification failed:")
					for _, msg := range res.Errors {
						fmt.Printf("  - %s\n", msg)
					}
				}
				if !res.Success {
					return errRejected
				}
				return nil
			})
		},
	}
}

func datasetPublishCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "publish <dataset-id>",
		Short: "Publish a certified build",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.Publish(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printStatusChange(d)
			})
		},
	}
}

func datasetStatsCmd() *cobra.Command {
	var statsFile string
	cmd := &cobra.Command{
		Use:   "stats <dataset-id>",
		Short: "Record a new stats snapshot",
		Long:  "Replaces the stats of a build that is not certified yet and bumps its minor version.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := statsFromFlags(cmd.Flags(), statsFile)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.RecordStats(ctx, args[0], stats, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(d)
				}
				fmt.Printf("Recorded stats for %s, now %s\n", d.ID, d.Version)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&statsFile, "stats-file", "", "JSON file with the stats snapshot")
	addStatsFlags(cmd.Flags())
	return cmd
}

func profileCmd() *cobra.Command {
	p := &cobra.Command{
		Use:   "profile",
		Short: "Inspect certification profiles",
	}
	p.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List active profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			profiles := cfg.ActiveProfiles()
			if viper.GetBool("json") {
				return printJSON(profiles)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Type", "Version", "Hours", "Contrib", "QA", "Agreement", "Max Reject", "Metadata"})
			for _, p := range profiles {
				t := p.Thresholds
				name := p.DatasetType
				if name == cfg.Certification.DefaultType {
					name += " (default)"
				}
				tw.AppendRow(table.Row{name, p.Version, t.MinHours, t.MinContributors, t.MinQAScore, t.MinAgreement, t.MaxRejectionRate, t.MinMetadata})
			}
			tw.Render()
			return nil
		},
	})
	return p
}

func qaCmd() *cobra.Command {
	q := &cobra.Command{
		Use:   "qa",
		Short: "Composite QA scoring",
		Long:  "Auto checks gate an upload into human review; the final score blends auto (30%) and human (70%) scores into a band.",
	}
	q.AddCommand(qaScoreCmd())
	q.AddCommand(qaReviewCmd())
	q.AddCommand(qaReviewsCmd())
	return q
}

func qaScoreCmd() *cobra.Command {
	var checks qa.AutoCheck
	var human float64
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Compute auto and final QA scores",
		RunE: func(cmd *cobra.Command, args []string) error {
			var humanScore *float64
			if cmd.Flags().Changed("human") {
				humanScore = &human
			}
			s, err := qa.Score(checks, humanScore)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(s)
			}
			fmt.Printf("Auto score: %s (%s)\n", formatScore(s.AutoScore), s.Classification)
			if s.FinalScore != nil {
				fmt.Printf("Final score: %s (%s)\n", formatScore(*s.FinalScore), s.Band)
			}
			return nil
		},
	}
	addCheckFlags(cmd.Flags(), &checks)
	cmd.Flags().Float64Var(&human, "human", 0, "human review score 0..100")
	return cmd
}

func qaReviewCmd() *cobra.Command {
	var checks qa.AutoCheck
	var uploadID, action, notes string
	var human float64
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Record a human QA review for an upload",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				r, err := e.SubmitQAReview(ctx, engine.QAReviewOptions{
					UploadID:   uploadID,
					ReviewerID: viper.GetString("actor-id"),
					Checks:     checks,
					HumanScore: human,
					Action:     action,
					Notes:      notes,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(r)
				}
				fmt.Printf("Review %s: final %s (%s), action %s\n", r.ID, formatScore(r.FinalScore), r.Band, r.Action)
				return nil
			})
		},
	}
	addCheckFlags(cmd.Flags(), &checks)
	cmd.Flags().StringVar(&uploadID, "upload", "", "upload id")
	cmd.Flags().Float64Var(&human, "human", 0, "human review score 0..100")
	cmd.Flags().StringVar(&action, "action", "", "approve|reject|request_edit (band default when empty)")
	cmd.Flags().StringVar(&notes, "notes", "", "review notes")
	_ = cmd.MarkFlagRequired("upload")
	_ = cmd.MarkFlagRequired("human")
	return cmd
}

func qaReviewsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reviews [upload-id]",
		Short: "List QA reviews",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uploadID := ""
			if len(args) == 1 {
				uploadID = args[0]
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListQAReviews(ctx, uploadID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Upload", "Reviewer", "Auto", "Human", "Final", "Band", "Action"})
				for _, r := range items {
					tw.AppendRow(table.Row{r.ID, r.UploadID, r.ReviewerID, formatScore(r.AutoScore), formatScore(r.HumanScore), formatScore(r.FinalScore), r.Band, r.Action})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect harbor.yml",
		Long:  "harbor.yml holds the certification profiles, the active version per dataset type, the QA report location and the event relay sinks.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	cfg.AddCommand(configInitCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSON(cfg)
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate harbor.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(viper.GetString("workspace"))
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default harbor.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show workspace status",
		Long:  "Dataset counts per status and the active certification profiles.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				counts, err := e.StatusCounts(ctx)
				if err != nil {
					return err
				}
				profiles := e.Config.ActiveProfiles()
				if viper.GetBool("json") {
					return printJSON(map[string]any{"dataset_counts": counts, "profiles": profiles})
				}
				fmt.Println("Datasets:")
				for _, status := range []string{domain.StatusBuilding, domain.StatusReadyForCertification, domain.StatusCertified, domain.StatusPublished} {
					fmt.Printf("  %s: %d\n", status, counts[status])
				}
				fmt.Println("Active profiles:")
				for _, p := range profiles {
					fmt.Printf("  %s %s\n", p.DatasetType, p.Version)
				}
				return nil
			})
		},
	}
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "Everything that happened: dataset creation, status changes, certification outcomes and QA reviews.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListEvents(ctx, repo.EventFilters{Type: evtType, EntityKind: entityKind, EntityID: entityID, Limit: n})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "Entity", "Actor", "Payload"})
				for _, evt := range items {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.EntityKind + ":" + evt.EntityID, evt.ActorID, evt.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server and event relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ws, err := app.Open(ctx, viper.GetString("workspace"), logger)
			if err != nil {
				return err
			}
			defer ws.Close()
			relay, err := ws.Relay(logger.Named("relay"))
			if err != nil {
				return err
			}
			handler, err := server.New(server.Config{Engine: ws.Engine, BasePath: basePath, Logger: logger.Named("http")})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			if relay != nil {
				defer relay.Close()
				g.Go(func() error { return relay.Run(gctx) })
			}
			fmt.Printf("Serving Harbor API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at %s/docs)\n", addr, basePath, basePath, basePath)
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ws, err := app.Open(ctx, viper.GetString("workspace"), logger)
	if err != nil {
		return err
	}
	defer ws.Close()
	return fn(ctx, ws.Engine)
}

func addStatsFlags(fs *pflag.FlagSet) {
	fs.Float64("hours", 0, "total recorded hours")
	fs.Int("contributors", 0, "distinct contributors")
	fs.Float64("qa-score", 0, "average QA score 0..100")
	fs.Float64("agreement", 0, "annotation agreement 0..100")
	fs.Float64("rejection-rate", 0, "rejection rate 0..100")
	fs.Float64("metadata", 0, "metadata completeness 0..100")
}

// statsFromFlags starts from --stats-file (if any) and overlays every stats
// flag that was set explicitly. Unset fields stay nil so the engine can name
// them.
func statsFromFlags(fs *pflag.FlagSet, path string) (domain.StatsInput, error) {
	var in domain.StatsInput
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return in, err
		}
		if err := json.Unmarshal(b, &in); err != nil {
			return in, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	floats := map[string]**float64{
		"hours":          &in.TotalHours,
		"qa-score":       &in.AvgQAScore,
		"agreement":      &in.AnnotationAgreement,
		"rejection-rate": &in.RejectionRate,
		"metadata":       &in.MetadataCompleteness,
	}
	for name, dst := range floats {
		if !fs.Changed(name) {
			continue
		}
		v, err := fs.GetFloat64(name)
		if err != nil {
			return in, err
		}
		*dst = &v
	}
	if fs.Changed("contributors") {
		v, err := fs.GetInt("contributors")
		if err != nil {
			return in, err
		}
		in.ContributorCount = &v
	}
	return in, nil
}

func addCheckFlags(fs *pflag.FlagSet, c *qa.AutoCheck) {
	fs.Float64Var(&c.Framing, "framing", 0, "framing check 0..100")
	fs.Float64Var(&c.ObjectCoverage, "object-coverage", 0, "object coverage check 0..100")
	fs.Float64Var(&c.Continuity, "continuity", 0, "continuity check 0..100")
	fs.Float64Var(&c.TechnicalQuality, "technical-quality", 0, "technical quality check 0..100")
	fs.Float64Var(&c.AnnotationCoverage, "annotation-coverage", 0, "annotation coverage check 0..100")
}

func printDataset(d domain.DatasetBuild) {
	fmt.Printf("Dataset: %s (%s)\n", d.ID, d.Name)
	fmt.Printf("Type/version: %s %s\n", d.DatasetType, d.Version)
	fmt.Printf("Status: %s\n", d.Status)
	if d.CertifiedAt != nil {
		fmt.Printf("Certified: %s against profile %s@%s\n", *d.CertifiedAt, d.ProfileType, d.ProfileVersion)
	}
	if d.QAReportURL != nil {
		fmt.Printf("QA report: %s\n", *d.QAReportURL)
	}
	s := d.Stats
	rows := map[string]string{
		"total_hours":           formatScore(s.TotalHours),
		"contributor_count":     strconv.Itoa(s.ContributorCount),
		"avg_qa_score":          formatScore(s.AvgQAScore),
		"annotation_agreement":  formatScore(s.AnnotationAgreement),
		"rejection_rate":        formatScore(s.RejectionRate),
		"metadata_completeness": formatScore(s.MetadataCompleteness),
	}
	keys := make([]string, 0, len(rows))
	for k := range rows {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Println("Stats:")
	for _, k := range keys {
		fmt.Printf("  %s: %s\n", k, rows[k])
	}
}

func printStatusChange(d domain.DatasetBuild) error {
	if viper.GetBool("json") {
		return printJSON(d)
	}
	fmt.Printf("%s is now %s\n", d.ID, d.Status)
	return nil
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
