package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"scribe/discordbot"
	"scribe/llm"
	"scribe/session"
	"scribe/settings"
	"scribe/stt"
	"scribe/transcript"
	"scribe/web"
)

var logger *log.Logger

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.AddCommand(discordCmd)
	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sessionsCmd)

	rootCmd.PersistentFlags().String("discord-token", "", "Discord bot token")
	rootCmd.PersistentFlags().
		String("whisper-endpoint", "http://localhost:8178", "whisper-server base URL")
	rootCmd.PersistentFlags().String("gemini-api-key", "", "Gemini API key")
	rootCmd.PersistentFlags().Int("http-port", 8080, "HTTP server port")
	rootCmd.PersistentFlags().
		String("settings-path", "settings.json", "Path to the guild settings file")
	rootCmd.PersistentFlags().
		String("recordings-root", settings.DefaultOutputFolder, "Default transcript output root")
	discordCmd.Flags().Int("chunk-seconds", 30, "Continuous recording chunk length")
	discordCmd.Flags().String("device", "cpu", "Compute device for model loads")

	viper.BindPFlag(
		"discord_token",
		rootCmd.PersistentFlags().Lookup("discord-token"),
	)
	viper.BindPFlag(
		"whisper_endpoint",
		rootCmd.PersistentFlags().Lookup("whisper-endpoint"),
	)
	viper.BindPFlag(
		"gemini_api_key",
		rootCmd.PersistentFlags().Lookup("gemini-api-key"),
	)
	viper.BindPFlag("http_port", rootCmd.PersistentFlags().Lookup("http-port"))
	viper.BindPFlag(
		"settings_path",
		rootCmd.PersistentFlags().Lookup("settings-path"),
	)
	viper.BindPFlag(
		"recordings_root",
		rootCmd.PersistentFlags().Lookup("recordings-root"),
	)
	viper.BindPFlag("chunk_seconds", discordCmd.Flags().Lookup("chunk-seconds"))
	viper.BindPFlag("device", discordCmd.Flags().Lookup("device"))
}

func initConfig() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Printf("Error reading config file: %s\n", err)
		}
	}

	logger = log.New(os.Stdout)
}

var rootCmd = &cobra.Command{
	Use:   "scribe",
	Short: "Scribe is a Discord bot for voice channel recording",
	Long:  `Scribe records Discord voice channels, transcribes them with whisper-server, and writes per-guild transcripts.`,
}

var discordCmd = &cobra.Command{
	Use:   "discord",
	Short: "Start the Discord bot",
	Run:   runDiscord,
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive configuration wizard",
	Run: func(cmd *cobra.Command, args []string) {
		runSetupWizard()
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the transcript browser",
	Run:   runServe,
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recorded sessions in a cool table",
	Run:   runSessions,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func runDiscord(cmd *cobra.Command, args []string) {
	mainLogger, discordLogger, whisperLogger, storeLogger := createLoggers()

	discordToken := viper.GetString("discord_token")
	if discordToken == "" {
		mainLogger.Fatal("missing DISCORD_TOKEN or --discord-token=")
	}

	whisperEndpoint := viper.GetString("whisper_endpoint")
	if whisperEndpoint == "" {
		mainLogger.Fatal("missing WHISPER_ENDPOINT or --whisper-endpoint=")
	}

	store := settings.NewStore(viper.GetString("settings_path"), storeLogger)
	engine := stt.NewWhisperClient(whisperEndpoint, whisperLogger)
	models := stt.NewModelCache(engine, whisperLogger)
	writer := transcript.NewWriter(mainLogger)

	var summarizer llm.Summarizer
	if key := viper.GetString("gemini_api_key"); key != "" {
		gemini, err := llm.NewGeminiSummarizer(context.Background(), key)
		if err != nil {
			mainLogger.Fatal("create gemini client", "error", err.Error())
		}
		defer gemini.Close()
		summarizer = gemini
	} else {
		mainLogger.Warn("no Gemini API key configured, summaries disabled")
	}

	bot, err := discordbot.NewBot(discordToken, discordbot.Deps{
		Store:      store,
		Models:     models,
		Engine:     engine,
		Writer:     writer,
		Summarizer: summarizer,
		Config: session.Config{
			ChunkDuration: time.Duration(viper.GetInt("chunk_seconds")) * time.Second,
			Device:        viper.GetString("device"),
		},
	}, discordLogger)
	if err != nil {
		mainLogger.Fatal("start discord bot", "error", err.Error())
	}
	defer bot.Close()

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc
}

func runServe(cmd *cobra.Command, args []string) {
	mainLogger, _, _, _ := createLoggers()

	root := viper.GetString("recordings_root")
	handler := web.NewHandler(root, mainLogger)

	port := viper.GetInt("http_port")
	mainLogger.Info(fmt.Sprintf("Starting transcript browser on port %d", port))
	err := http.ListenAndServe(fmt.Sprintf(":%d", port), handler.Router())
	if err != nil {
		mainLogger.Fatal("start HTTP server", "error", err.Error())
	}
}

func runSessions(cmd *cobra.Command, args []string) {
	mainLogger, _, _, _ := createLoggers()

	root := viper.GetString("recordings_root")

	type row struct {
		guild    string
		file     string
		size     int64
		modified time.Time
	}
	var rows []row
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(d.Name(), ".txt") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, _ := filepath.Rel(root, path)
		rows = append(rows, row{
			guild:    filepath.Dir(rel),
			file:     d.Name(),
			size:     info.Size(),
			modified: info.ModTime(),
		})
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		mainLogger.Fatal("walk recordings", "error", err.Error())
	}

	if len(rows) == 0 {
		fmt.Println("No transcripts found.")
		return
	}

	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ff8800"))
	fmt.Println(headerStyle.Render("Recorded sessions under " + root))

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Guild", "Transcript", "Modified", "Size"})
	table.SetBorder(false)
	table.SetCenterSeparator("|")
	table.SetColumnSeparator("|")
	table.SetRowSeparator("-")
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)

	for _, r := range rows {
		table.Append([]string{
			r.guild,
			r.file,
			r.modified.Format("2006-01-02 15:04:05"),
			fmt.Sprintf("%d B", r.size),
		})
	}

	table.Render()
}

func createLoggers() (mainLogger, discordLogger, whisperLogger, storeLogger *log.Logger) {
	logLevel := log.DebugLevel

	logger.SetLevel(logLevel)
	logger.SetReportCaller(true)
	logger.SetCallerFormatter(
		func(file string, line int, funcName string) string {
			path, err := filepath.Rel(".", file)
			if err != nil {
				path = file
			}
			return fmt.Sprintf("%s:%d", path, line)
		},
	)

	styles := log.DefaultStyles()
	styles.Prefix = styles.Prefix.MarginTop(1).
		Bold(false).Transform(func(s string) string {
		return strings.TrimSuffix(s, ":")
	})
	styles.Levels[log.InfoLevel] = styles.Levels[log.InfoLevel].
		MaxWidth(6).
		MarginRight(1).
		Bold(false)
	styles.Levels[log.ErrorLevel] = styles.Levels[log.ErrorLevel].
		MaxWidth(6).
		MarginRight(1).
		Bold(false)
	styles.Message = styles.Message.Bold(true).Width(24)
	styles.Key = styles.Key.MarginLeft(1).
		Bold(false).
		Foreground(lipgloss.Color("#ff8800"))

	logger.SetStyles(styles)

	mainLogger = logger.With().WithPrefix("main")
	discordLogger = logger.With().WithPrefix("chat")
	whisperLogger = logger.With().WithPrefix("hear")
	storeLogger = logger.With().WithPrefix("conf")

	return
}
