package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/joescharf/maint/internal/docstore"
	"github.com/joescharf/maint/internal/llm"
	"github.com/joescharf/maint/internal/logging"
	"github.com/joescharf/maint/internal/models"
	"github.com/joescharf/maint/internal/notify"
	"github.com/joescharf/maint/internal/objstore"
	"github.com/joescharf/maint/internal/output"
	"github.com/joescharf/maint/internal/tracker"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	logger    *zap.Logger
	dataStore *docstore.SQLStore
	objects   *objstore.FSStorage
	appTrack  *tracker.Tracker
	closers   []func()

	verbose bool
	dryRun  bool
)

var rootCmd = &cobra.Command{
	Use:   "maint",
	Short: "Maintenance tracker - report issues, schedule visits, follow the calendar",
	Long: `maint tracks facility maintenance issues across locations.
Staff report issues with photos, maintenance schedules visits on a shared
calendar, and every client sees changes live.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	err := rootCmd.Execute()
	shutdown()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return rootRun(cmd)
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/maint/config.yaml)")
}

func initConfig() {
	// A missing .env is fine.
	_ = godotenv.Load()

	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		dir, err := configDirFunc()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}
		viper.AddConfigPath(dir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("MAINT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	dir, _ := configDirFunc()
	setConfigDefaults(dir)

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

// setConfigDefaults registers every key's default relative to stateDir.
func setConfigDefaults(stateDir string) {
	limits := tracker.DefaultLimits()
	user := os.Getenv("USER")
	if user == "" {
		user = "cli"
	}

	viper.SetDefault("state_dir", stateDir)
	viper.SetDefault("db.driver", docstore.DriverSQLite)
	viper.SetDefault("db.path", filepath.Join(stateDir, "maint.db"))
	viper.SetDefault("db.dsn", "")
	viper.SetDefault("redis.addr", "")
	viper.SetDefault("redis.channel", docstore.DefaultChannel)
	viper.SetDefault("mqtt.broker", "")
	viper.SetDefault("mqtt.client_id", "maint")
	viper.SetDefault("mqtt.topic_prefix", notify.DefaultTopicPrefix)
	viper.SetDefault("notify.webhook_url", "")
	viper.SetDefault("storage.dir", filepath.Join(stateDir, "files"))
	viper.SetDefault("storage.base_url", "/files")
	viper.SetDefault("calendar.timezone", "Local")
	viper.SetDefault("limits.max_images", limits.MaxImages)
	viper.SetDefault("limits.max_comments", limits.MaxComments)
	viper.SetDefault("limits.max_image_bytes", limits.MaxImageBytes)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")
	viper.SetDefault("anthropic.api_key", "")
	_ = viper.BindEnv("anthropic.api_key", "MAINT_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")
	viper.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	viper.SetDefault("triage.auto", false)
	viper.SetDefault("port", 8080)
	viper.SetDefault("user.id", user)
	viper.SetDefault("user.name", user)
	viper.SetDefault("user.role", string(models.RoleMaintenance))
	viper.SetDefault("user.location_id", "")
	viper.SetDefault("user.location_name", "")
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	// The store is opened lazily so config/version run without a database.
}

// rootRun handles `maint` with no subcommand: list the caller's issues.
func rootRun(cmd *cobra.Command) error {
	if _, err := getTracker(); err != nil {
		return cmd.Help()
	}
	return issueListRun()
}

// shutdown releases whatever getTracker opened, newest first.
func shutdown() {
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
	closers = nil
	appTrack, dataStore, objects = nil, nil, nil
}

// getLogger returns the shared logger, building it on first call.
func getLogger() *zap.Logger {
	if logger != nil {
		return logger
	}
	level := viper.GetString("log.level")
	if verbose {
		level = "debug"
	}
	l, err := logging.New(level, viper.GetString("log.format"), "maint")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: logger setup failed, logging disabled: %v\n", err)
		l = zap.NewNop()
	}
	logger = l
	closers = append(closers, func() { _ = l.Sync() })
	return logger
}

// newRedisClient is replaceable in tests.
var newRedisClient = func(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

// getStore returns the shared store, initializing it on first call.
func getStore() (*docstore.SQLStore, error) {
	if dataStore != nil {
		return dataStore, nil
	}
	log := getLogger()

	driver := viper.GetString("db.driver")
	dsn := viper.GetString("db.dsn")
	switch driver {
	case docstore.DriverSQLite:
		dsn = viper.GetString("db.path")
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	case docstore.DriverPostgres:
	default:
		return nil, fmt.Errorf("unknown db.driver %q (want %s or %s)", driver, docstore.DriverSQLite, docstore.DriverPostgres)
	}

	opts := []docstore.Option{docstore.WithLogger(log)}
	var bus *docstore.RedisBus
	if addr := viper.GetString("redis.addr"); addr != "" {
		bus = docstore.NewRedisBus(newRedisClient(addr), viper.GetString("redis.channel"), log)
		opts = append(opts, docstore.WithBus(bus))
	}

	s, err := docstore.Open(driver, dsn, opts...)
	if err != nil {
		if bus != nil {
			_ = bus.Close()
		}
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := s.Migrate(context.Background()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	closers = append(closers, func() { _ = s.Close() })
	return dataStore, nil
}

// getObjects returns the image storage rooted at storage.dir.
func getObjects() (*objstore.FSStorage, error) {
	if objects != nil {
		return objects, nil
	}
	o, err := objstore.NewDir(viper.GetString("storage.dir"), viper.GetString("storage.base_url"))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	objects = o
	return objects, nil
}

// calendarLocation resolves calendar.timezone; "" and "Local" mean the
// machine's zone.
func calendarLocation() (*time.Location, error) {
	tz := viper.GetString("calendar.timezone")
	if tz == "" || strings.EqualFold(tz, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("calendar.timezone: %w", err)
	}
	return loc, nil
}

func configLimits() tracker.Limits {
	return tracker.Limits{
		MaxImages:     viper.GetInt("limits.max_images"),
		MaxComments:   viper.GetInt("limits.max_comments"),
		MaxImageBytes: viper.GetInt64("limits.max_image_bytes"),
	}
}

// newNotifier builds the configured delivery channels. A broker that cannot
// be reached is skipped with a warning.
func newNotifier() notify.Notifier {
	var out notify.Multi
	if broker := viper.GetString("mqtt.broker"); broker != "" {
		n, err := notify.NewMQTT(notify.MQTTConfig{
			Broker:      broker,
			ClientID:    viper.GetString("mqtt.client_id"),
			TopicPrefix: viper.GetString("mqtt.topic_prefix"),
		})
		if err != nil {
			getLogger().Warn("mqtt notifications disabled", zap.String("broker", broker), zap.Error(err))
		} else {
			out = append(out, n)
			closers = append(closers, n.Close)
		}
	}
	if url := viper.GetString("notify.webhook_url"); url != "" {
		out = append(out, notify.NewWebhook(url, 3))
	}
	if len(out) == 0 {
		return notify.Nop{}
	}
	return out
}

// getTracker wires store, storage, notifier and triage into the tracker.
func getTracker() (*tracker.Tracker, error) {
	if appTrack != nil {
		return appTrack, nil
	}
	s, err := getStore()
	if err != nil {
		return nil, err
	}
	o, err := getObjects()
	if err != nil {
		return nil, err
	}
	loc, err := calendarLocation()
	if err != nil {
		return nil, err
	}

	opts := tracker.Options{
		Logger:   getLogger(),
		Notifier: newNotifier(),
		Limits:   configLimits(),
		Location: loc,
	}
	if viper.GetBool("triage.auto") {
		if c := triageClient(); c != nil {
			opts.Triager = c
		} else {
			ui.Warning("triage.auto is set but no Anthropic API key is configured")
		}
	}
	appTrack = tracker.New(s, o, opts)
	return appTrack, nil
}

// triageClient is nil when no Anthropic key is configured.
func triageClient() *llm.Client {
	key := viper.GetString("anthropic.api_key")
	if key == "" {
		return nil
	}
	return llm.NewClient(key, viper.GetString("anthropic.model"))
}

// currentCaller is the configured user the CLI acts as.
func currentCaller() models.Caller {
	c := models.Caller{
		UserID:       viper.GetString("user.id"),
		DisplayName:  viper.GetString("user.name"),
		Role:         models.Role(strings.ToLower(viper.GetString("user.role"))),
		LocationID:   viper.GetString("user.location_id"),
		LocationName: viper.GetString("user.location_name"),
	}
	if c.DisplayName == "" {
		c.DisplayName = c.UserID
	}
	return c
}
