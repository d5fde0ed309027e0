package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/class-attendance/internal/config"
	"github.com/kozaktomas/class-attendance/internal/constants"
	"github.com/kozaktomas/class-attendance/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the attendance API server",
	Long: `Start the Class Attendance API server.

The server accepts classroom photos for automatic attendance, manual attendance
submissions, leave requests and face enrollment. It requires DATABASE_URL and a running detector
service (DETECTOR_URL, default http://localhost:8000).`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
}

// resolveServeHostPort resolves port and host from flags and environment variables.
func resolveServeHostPort(cmd *cobra.Command) (int, string) {
	port := mustGetInt(cmd, "port")
	host := mustGetString(cmd, "host")

	if envPort := os.Getenv("WEB_PORT"); envPort != "" {
		fmt.Sscanf(envPort, "%d", &port)
	}
	if envHost := os.Getenv("WEB_HOST"); envHost != "" {
		host = envHost
	}
	return port, host
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fmt.Printf("Connecting to PostgreSQL database...\n")
	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	a.initProfileHNSW(ctx)
	fmt.Printf("Detector at %s (concurrency %d, timeout %s)\n",
		detectorURL(cfg), a.engine.Concurrency(), cfg.Detector.Timeout)

	port, host := resolveServeHostPort(cmd)
	server := web.NewServer(cfg, port, host, web.Services{
		Attendance: a.attendance,
		Leave:      a.leave,
		Enroll:     a.enroll,
		Students:   a.students,
		Profiles:   a.profiles,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		a.saveProfileHNSW(ctx)

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, constants.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Class Attendance API on http://%s:%d\n", host, port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}

func detectorURL(cfg *config.Config) string {
	if cfg.Detector.URL == "" {
		return "http://localhost:8000"
	}
	return cfg.Detector.URL
}
