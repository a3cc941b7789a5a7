package discordbot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	dis "github.com/bwmarrin/discordgo"
	"github.com/charmbracelet/log"

	"scribe/llm"
	"scribe/session"
	"scribe/settings"
	"scribe/stt"
	"scribe/transcript"
)

type CommandHandler func(*dis.MessageCreate, []string) error

// Bot is the command surface and voice transport adapter. It owns one
// voice connection per guild and drives the session manager from chat
// commands.
type Bot struct {
	log      *log.Logger
	discord  *dis.Session
	sessions *session.Manager
	store    *settings.Store

	commands map[string]CommandHandler

	mu            sync.Mutex
	calls         map[string]*VoiceCall
	statusChannel map[string]string // guildID -> channel of the last command
}

// Deps collects everything the bot wires into its session manager.
type Deps struct {
	Store      *settings.Store
	Models     *stt.ModelCache
	Engine     stt.Engine
	Writer     *transcript.Writer
	Summarizer llm.Summarizer
	Config     session.Config
}

func NewBot(token string, deps Deps, logger *log.Logger) (*Bot, error) {
	bot := &Bot{
		log:           logger,
		store:         deps.Store,
		commands:      make(map[string]CommandHandler),
		calls:         make(map[string]*VoiceCall),
		statusChannel: make(map[string]string),
	}
	bot.sessions = session.NewManager(
		bot,
		bot,
		deps.Store,
		deps.Models,
		deps.Engine,
		deps.Writer,
		deps.Summarizer,
		session.SystemClock(),
		deps.Config,
		logger,
	)
	bot.registerCommands()

	dg, err := dis.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("error creating Discord session: %w", err)
	}
	dg.Identify.Intents = dis.IntentsGuilds |
		dis.IntentsGuildMessages |
		dis.IntentsGuildVoiceStates |
		dis.IntentsGuildMembers |
		dis.IntentMessageContent

	dg.AddHandler(bot.handleGuildCreate)
	dg.AddHandler(bot.handleMessageCreate)
	dg.AddHandler(bot.handleVoiceStateUpdate)

	if err := dg.Open(); err != nil {
		return nil, fmt.Errorf("error opening connection: %w", err)
	}

	bot.discord = dg
	bot.log.Info("bot connected", "user", dg.State.User.Username)
	return bot, nil
}

func (bot *Bot) registerCommands() {
	bot.commands["join"] = bot.handleJoinCommand
	bot.commands["leave"] = bot.handleLeaveCommand
	bot.commands["record"] = bot.handleRecordCommand
	bot.commands["stream"] = bot.handleStreamCommand
	bot.commands["stop"] = bot.handleStopCommand
	bot.commands["set"] = bot.handleSetCommand
}

func (bot *Bot) Close() error {
	bot.sessions.StopAll()

	bot.mu.Lock()
	calls := make([]*VoiceCall, 0, len(bot.calls))
	for _, call := range bot.calls {
		calls = append(calls, call)
	}
	bot.calls = make(map[string]*VoiceCall)
	bot.mu.Unlock()

	for _, call := range calls {
		if err := call.Conn.Disconnect(); err != nil {
			bot.log.Warn("disconnect voice", "guild", call.GuildID, "error", err)
		}
	}
	return bot.discord.Close()
}

func (bot *Bot) handleGuildCreate(_ *dis.Session, event *dis.GuildCreate) {
	bot.log.Info("joined guild", "guild", event.Guild.Name, "id", event.Guild.ID)
}

func (bot *Bot) handleMessageCreate(s *dis.Session, m *dis.MessageCreate) {
	if m.Author.ID == s.State.User.ID || m.GuildID == "" {
		return
	}
	if !strings.HasPrefix(m.Content, "!") {
		return
	}

	args := strings.Fields(m.Content[1:])
	if len(args) == 0 {
		return
	}

	handler, exists := bot.commands[args[0]]
	if !exists {
		return
	}

	bot.mu.Lock()
	bot.statusChannel[m.GuildID] = m.ChannelID
	bot.mu.Unlock()

	if err := handler(m, args[1:]); err != nil {
		bot.log.Error(
			"command failed",
			"command", args[0],
			"guild", m.GuildID,
			"error", err.Error(),
		)
		bot.sendMessage(m.ChannelID, "❌ "+err.Error())
	}
}

// Notify implements session.Notifier: status lands in the channel the
// session's commands came from.
func (bot *Bot) Notify(guildID, message string) {
	bot.mu.Lock()
	channelID := bot.statusChannel[guildID]
	bot.mu.Unlock()

	if channelID == "" {
		bot.log.Warn("no status channel", "guild", guildID, "message", message)
		return
	}
	bot.sendMessage(channelID, message)
}

func (bot *Bot) sendMessage(channelID, content string) {
	if _, err := bot.discord.ChannelMessageSend(channelID, content); err != nil {
		bot.log.Error("failed to send message", "error", err.Error())
	}
}

func (bot *Bot) handleJoinCommand(m *dis.MessageCreate, _ []string) error {
	channelID := bot.voiceChannelOf(m.GuildID, m.Author.ID)
	if channelID == "" {
		return errors.New("you're not in a voice channel")
	}

	if err := bot.joinVoiceCall(m.GuildID, channelID); err != nil {
		return err
	}
	bot.sendMessage(m.ChannelID, "✅ Joined your voice channel.")
	return nil
}

func (bot *Bot) handleLeaveCommand(m *dis.MessageCreate, _ []string) error {
	if err := bot.sessions.Stop(m.GuildID); err != nil &&
		!errors.Is(err, session.ErrNotRecording) {
		return err
	}
	if sess := bot.sessions.Session(m.GuildID); sess != nil {
		<-sess.Done()
	}

	if err := bot.leaveVoiceCall(m.GuildID); err != nil {
		return err
	}
	bot.sendMessage(m.ChannelID, "👋 Disconnected.")
	return nil
}

func (bot *Bot) handleRecordCommand(m *dis.MessageCreate, args []string) error {
	seconds := 10
	if len(args) > 0 {
		parsed, err := strconv.Atoi(args[0])
		if err != nil || parsed <= 0 {
			return fmt.Errorf("invalid duration %q", args[0])
		}
		seconds = parsed
	}

	err := bot.sessions.StartOneShot(m.GuildID, time.Duration(seconds)*time.Second)
	return describeStartError(err)
}

func (bot *Bot) handleStreamCommand(m *dis.MessageCreate, _ []string) error {
	return describeStartError(bot.sessions.StartContinuous(m.GuildID))
}

func (bot *Bot) handleStopCommand(m *dis.MessageCreate, _ []string) error {
	err := bot.sessions.Stop(m.GuildID)
	if errors.Is(err, session.ErrNotRecording) {
		return errors.New("nothing is being recorded")
	}
	return err
}

func (bot *Bot) handleSetCommand(m *dis.MessageCreate, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: !set folder <path> | !set model <id>")
	}

	value := strings.Join(args[1:], " ")
	var update settings.Update
	switch args[0] {
	case "folder":
		update.OutputFolder = &value
	case "model":
		update.Model = &value
	default:
		return fmt.Errorf("unknown setting %q", args[0])
	}

	merged, err := bot.store.Set(m.GuildID, update)
	if err != nil {
		return fmt.Errorf("couldn't save settings: %w", err)
	}
	bot.sendMessage(m.ChannelID, fmt.Sprintf(
		"⚙️ Saved. Folder: `%s`, model: `%s`.",
		merged.OutputFolder, merged.Model,
	))
	return nil
}

func describeStartError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, session.ErrAlreadyRecording):
		return errors.New("already recording — `!stop` first")
	case errors.Is(err, session.ErrNotConnected):
		return errors.New("not in a voice channel — `!join` first")
	default:
		return err
	}
}

// voiceChannelOf finds which voice channel a user currently occupies.
func (bot *Bot) voiceChannelOf(guildID, userID string) string {
	guild, err := bot.discord.State.Guild(guildID)
	if err != nil {
		return ""
	}
	for _, vs := range guild.VoiceStates {
		if vs.UserID == userID {
			return vs.ChannelID
		}
	}
	return ""
}
