package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ayusman/meshstudio/internal/config"
	"github.com/ayusman/meshstudio/internal/logging"
)

var (
	settings *config.Config
	logger   *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:   "meshstudio",
	Short: "Pick face mesh landmarks on a photo",
	Long: `MeshStudio detects the 468-point face mesh on an uploaded photo and lets
you pick landmark indices by clicking them in the browser. Selections can be
saved as presets, analyzed by facial region and exported as JSON.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadSettings,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("db", "", "Path to the preset database")
	rootCmd.PersistentFlags().String("detector", "", "Landmark provider (auto, mediapipe, http, mock)")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

// loadSettings applies flags over the environment and sets up logging.
func loadSettings(cmd *cobra.Command, args []string) error {
	settings = config.Load()

	if v := mustGetString(cmd, "log-level"); v != "" {
		settings.Log.Level = v
	}
	if v := mustGetString(cmd, "db"); v != "" {
		settings.Database.Path = v
	}
	if v := mustGetString(cmd, "detector"); v != "" {
		settings.Detector.Provider = v
	}

	if err := settings.Validate(); err != nil {
		return err
	}

	var err error
	logger, err = logging.New(settings.Log)
	if err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}
	return nil
}
