package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ayusman/meshstudio/internal/app"
	"github.com/ayusman/meshstudio/internal/studio"
	"github.com/ayusman/meshstudio/internal/tray"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the studio web server",
	Long: `Start the MeshStudio web server.
Upload a photo in the browser, click landmarks to select them, and export the
selected indices. The JSON API under /api drives the same workflow.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "Address to listen on (default from MESHSTUDIO_ADDR or :8080)")
	serveCmd.Flags().String("static", "", "Directory with the browser UI")
	serveCmd.Flags().Bool("tray", false, "Show a system tray menu")
	serveCmd.Flags().Bool("open", false, "Open the studio in a browser once started")
}

func runServe(cmd *cobra.Command, args []string) error {
	if v := mustGetString(cmd, "addr"); v != "" {
		settings.Server.Addr = v
	}
	if v := mustGetString(cmd, "static"); v != "" {
		settings.Server.StaticDir = v
	}
	if settings.Server.StaticDir == "" {
		settings.Server.StaticDir = findWebDir()
	}

	a, err := app.New(app.Config{Settings: settings, Log: logger})
	if err != nil {
		return err
	}

	url := studioURL(settings.Server.Addr)
	errCh := a.Start()

	fmt.Printf("MeshStudio running on %s (detector: %s)\n", url, a.Provider())
	if settings.Server.StaticDir != "" {
		fmt.Printf("Serving UI from %s\n", settings.Server.StaticDir)
	}
	fmt.Println("Press Ctrl+C to stop")

	if mustGetBool(cmd, "open") {
		openBrowser(url)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if mustGetBool(cmd, "tray") {
		t := tray.New(url)
		t.OnOpen(openBrowser)
		t.OnQuit(stop)
		a.OnDetection(t.SetLastDetection)

		go func() {
			status := a.Provider() + " ready"
			if err := a.Client().Initialize(ctx); err != nil {
				status = "failed to start"
			}
			t.SetModelStatus(status)
		}()

		go func() {
			select {
			case <-ctx.Done():
			case <-errCh:
				stop()
			}
		}()

		// Blocks on the main goroutine until Quit
		go func() {
			<-ctx.Done()
			t.Quit()
		}()
		t.Run()
	} else {
		a.OnDetection(func(d studio.Detection) {
			logger.WithField("session", d.SessionID).Debugf("detected %d landmarks", d.Landmarks)
		})

		select {
		case <-ctx.Done():
		case err := <-errCh:
			if err != nil {
				a.Stop(context.Background())
				return err
			}
		}
	}

	fmt.Println("\nShutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return a.Stop(shutdownCtx)
}

// studioURL turns a listen address into a browsable URL.
func studioURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// openBrowser opens url with the platform's default handler.
func openBrowser(url string) {
	var c *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		c = exec.Command("open", url)
	case "windows":
		c = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		c = exec.Command("xdg-open", url)
	}
	if err := c.Start(); err != nil {
		logger.WithError(err).Warn("failed to open browser")
	}
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.meshstudio/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	for _, p := range []string{"web", "../web", "../../web"} {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			return p
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	dir := filepath.Join(home, ".meshstudio", "web")
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		return dir
	}
	return ""
}
