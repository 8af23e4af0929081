package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/joescharf/maint/internal/api"
	"github.com/joescharf/maint/internal/daemon"
)

const (
	shutdownTimeout = 10 * time.Second
	stopTimeout     = 10 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the REST and live API server",
	Long: `Run the HTTP API in the foreground.

Clients identify themselves with X-User-ID, X-User-Role and X-Location-ID
headers set by the authenticating proxy in front of this server. Issue and
event changes are pushed over /api/v1/issues/live and /api/v1/events/live.

Use 'maint serve start' to run it in the background.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveRun(cmd.Context())
	},
}

var serveStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the API server in the background",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStartRun()
	},
}

var serveStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the background server is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStatusRun()
	},
}

var serveStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStopRun()
	},
}

func init() {
	serveCmd.AddCommand(serveStartCmd)
	serveCmd.AddCommand(serveStatusCmd)
	serveCmd.AddCommand(serveStopCmd)
	rootCmd.AddCommand(serveCmd)

	serveCmd.PersistentFlags().IntP("port", "p", 8080, "port to listen on")
	_ = viper.BindPFlag("port", serveCmd.PersistentFlags().Lookup("port"))
}

func stateDir() string {
	if dir := viper.GetString("state_dir"); dir != "" {
		return dir
	}
	dir, _ := configDirFunc()
	return dir
}

func pidFile() *daemon.PIDFile {
	return daemon.NewPIDFile(filepath.Join(stateDir(), "maint-serve.pid"))
}

func serveLogPath() string {
	return filepath.Join(stateDir(), "maint-serve.log")
}

// serveRun serves the API until a shutdown signal arrives.
func serveRun(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	t, err := getTracker()
	if err != nil {
		return err
	}
	objs, err := getObjects()
	if err != nil {
		return err
	}
	log := getLogger()

	pf := pidFile()
	if err := pf.Acquire(); err != nil {
		return fmt.Errorf("maint serve: %w", err)
	}
	defer pf.Release()

	ctx, stop := signal.NotifyContext(parent, daemon.ShutdownSignals...)
	defer stop()

	srv := api.NewServer(t, log, api.WithFiles(objs.Fs()), api.WithLimits(configLimits()))
	addr := fmt.Sprintf(":%d", viper.GetInt("port"))
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.ListenAndServe() }()

	log.Info("api server listening", zap.String("addr", addr), zap.Int("pid", os.Getpid()))
	ui.Info("Serving API at http://localhost%s", addr)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down api server")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(sctx); err != nil {
		log.Warn("graceful shutdown incomplete", zap.Error(err))
		_ = httpSrv.Close()
	}
	return nil
}

// serveStartRun re-executes this binary as a detached `maint serve`.
func serveStartRun() error {
	pf := pidFile()
	if pid, running := pf.IsRunning(); running {
		return fmt.Errorf("maint serve already running (pid %d)", pid)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}
	args := []string{"serve", "--port", fmt.Sprint(viper.GetInt("port"))}
	if cfg := viper.ConfigFileUsed(); cfg != "" {
		args = append(args, "--config", cfg)
	}

	if dryRun {
		ui.DryRunMsg("Would run %s %v (log: %s)", exe, args, serveLogPath())
		return nil
	}

	if err := os.MkdirAll(stateDir(), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	logFile, err := os.OpenFile(serveLogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open server log: %w", err)
	}
	defer logFile.Close()

	child := exec.Command(exe, args...)
	child.Stdout = logFile
	child.Stderr = logFile
	daemon.Detach(child)
	if err := child.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	pid := child.Process.Pid
	_ = child.Process.Release()

	ui.Success("API server started (pid %d)", pid)
	ui.Info("Log: %s", serveLogPath())
	return nil
}

func serveStatusRun() error {
	pf := pidFile()
	pid, running := pf.IsRunning()
	if !running {
		ui.Info("API server is not running")
		return nil
	}
	ui.Success("API server is running (pid %d, port %d)", pid, viper.GetInt("port"))
	ui.VerboseLog("PID file: %s", pf.Path)
	ui.VerboseLog("Log: %s", serveLogPath())
	return nil
}

// serveStopRun sends a terminate signal and escalates to kill if the server
// does not exit in time.
func serveStopRun() error {
	pf := pidFile()
	pid, running := pf.IsRunning()
	if !running {
		if pid != 0 {
			_ = pf.Remove()
		}
		return errors.New("maint serve is not running")
	}

	if dryRun {
		ui.DryRunMsg("Would stop API server (pid %d)", pid)
		return nil
	}

	killed, err := pf.Stop(stopTimeout)
	if err != nil {
		return err
	}
	if killed {
		ui.Warning("Server did not exit after %s and was killed", stopTimeout)
	}
	ui.Success("API server stopped (pid %d)", pid)
	return nil
}
