package main

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/log"
	"github.com/spf13/viper"
)

func runSetupWizard() {
	log.Info("Starting scribe setup...")

	discordToken := viper.GetString("discord_token")
	whisperEndpoint := viper.GetString("whisper_endpoint")
	geminiAPIKey := viper.GetString("gemini_api_key")
	if whisperEndpoint == "" {
		whisperEndpoint = "http://localhost:8178"
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Enter your Discord Bot Token").
				Value(&discordToken).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("a bot token is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Enter your whisper-server endpoint").
				Description("Base URL of a running whisper-server, e.g. http://localhost:8178").
				Value(&whisperEndpoint),
			huh.NewInput().
				Title("Enter your Google Cloud (Gemini) API Key").
				Description("Optional. Leave empty to disable summaries.").
				Value(&geminiAPIKey),
		),
	)

	if err := form.Run(); err != nil {
		log.Fatal("Error during setup", "error", err)
	}

	checkWhisperServer(whisperEndpoint)

	viper.Set("discord_token", discordToken)
	viper.Set("whisper_endpoint", whisperEndpoint)
	viper.Set("gemini_api_key", geminiAPIKey)

	if err := viper.WriteConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			err = viper.WriteConfigAs("config.yaml")
		}
		if err != nil {
			log.Fatal("Error saving configuration", "error", err)
		}
	}

	log.Info("Setup completed successfully!")
}

func checkWhisperServer(endpoint string) {
	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(endpoint + "/health")
	if err != nil {
		log.Warn("Could not reach whisper-server, saving anyway", "endpoint", endpoint, "error", err)
		return
	}
	resp.Body.Close()
	log.Info("whisper-server is reachable", "endpoint", endpoint)
}
