package discordbot

import (
	"fmt"
	"sync"
	"time"

	dis "github.com/bwmarrin/discordgo"

	"scribe/audio"
	"scribe/session"
)

// VoiceCall is one guild's live voice connection and its per-speaker
// decoding state.
type VoiceCall struct {
	sync.RWMutex
	Conn      *dis.VoiceConnection
	GuildID   string
	ChannelID string

	Inbound chan *dis.Packet

	ssrcUsers map[uint32]string
	decoders  map[uint32]*audio.OpusDecoder
}

func (bot *Bot) joinVoiceCall(guildID, channelID string) error {
	bot.mu.Lock()
	previous := bot.calls[guildID]
	bot.mu.Unlock()

	if previous != nil {
		if previous.ChannelID == channelID {
			return nil
		}
		if err := previous.Conn.Disconnect(); err != nil {
			return fmt.Errorf(
				"failed to disconnect from previous voice channel: %w", err,
			)
		}
	}

	vc, err := bot.discord.ChannelVoiceJoin(guildID, channelID, false, false)
	if err != nil {
		return fmt.Errorf("failed to join voice channel: %w", err)
	}

	bot.log.Info("joined", "guild", guildID, "channel", channelID)

	call := &VoiceCall{
		Conn:      vc,
		GuildID:   guildID,
		ChannelID: channelID,

		Inbound: make(
			chan *dis.Packet,
			3*1000/20, // 3 second audio buffer
		),

		ssrcUsers: make(map[uint32]string),
		decoders:  make(map[uint32]*audio.OpusDecoder),
	}

	call.Conn.AddHandler(bot.handleVoiceSpeakingUpdate)

	bot.mu.Lock()
	bot.calls[guildID] = call
	bot.mu.Unlock()

	go bot.acceptInboundAudioPackets(call)
	go bot.processInboundAudioPackets(call)

	return nil
}

func (bot *Bot) leaveVoiceCall(guildID string) error {
	bot.mu.Lock()
	call := bot.calls[guildID]
	delete(bot.calls, guildID)
	bot.mu.Unlock()

	if call == nil {
		return session.ErrNotConnected
	}
	if err := call.Conn.Disconnect(); err != nil {
		return fmt.Errorf("failed to disconnect: %w", err)
	}
	return nil
}

func (bot *Bot) acceptInboundAudioPackets(call *VoiceCall) {
	defer close(call.Inbound)
	for packet := range call.Conn.OpusRecv {
		select {
		case call.Inbound <- packet:
			// good
		default:
			bot.log.Warn(
				"voice packet channel full, dropping packet",
				"channelID", call.ChannelID,
			)
		}
	}
}

func (bot *Bot) processInboundAudioPackets(call *VoiceCall) {
	for packet := range call.Inbound {
		if err := bot.processInboundAudioPacket(call, packet); err != nil {
			bot.log.Error(
				"failed to process voice packet",
				"error", err.Error(),
				"guildID", call.GuildID,
				"channelID", call.ChannelID,
			)
		}
	}
}

func (bot *Bot) processInboundAudioPacket(
	call *VoiceCall,
	packet *dis.Packet,
) error {
	call.RLock()
	userID := call.ssrcUsers[packet.SSRC]
	decoder := call.decoders[packet.SSRC]
	call.RUnlock()

	if userID == "" {
		// No speaking update for this SSRC yet; nothing to attribute
		// the audio to.
		return nil
	}

	if decoder == nil {
		fresh, err := audio.NewOpusDecoder()
		if err != nil {
			return fmt.Errorf("create decoder for SSRC %d: %w", packet.SSRC, err)
		}
		call.Lock()
		call.decoders[packet.SSRC] = fresh
		call.Unlock()
		decoder = fresh
	}

	pcm, err := decoder.Decode(packet.Opus)
	if err != nil {
		return fmt.Errorf("decode packet for %s: %w", userID, err)
	}

	bot.sessions.Ingest(
		call.GuildID,
		userID,
		bot.displayName(call.GuildID, userID),
		pcm,
		time.Now(),
	)
	return nil
}

func (bot *Bot) handleVoiceSpeakingUpdate(
	vc *dis.VoiceConnection,
	v *dis.VoiceSpeakingUpdate,
) {
	bot.mu.Lock()
	call := bot.calls[vc.GuildID]
	bot.mu.Unlock()
	if call == nil {
		return
	}

	bot.log.Debug(
		"speaking update",
		"ssrc", v.SSRC,
		"userID", v.UserID,
		"speaking", v.Speaking,
	)
	call.Lock()
	call.ssrcUsers[uint32(v.SSRC)] = v.UserID
	call.Unlock()
}

// handleVoiceStateUpdate watches for the bot itself losing its channel,
// which tears down the guild's session.
func (bot *Bot) handleVoiceStateUpdate(s *dis.Session, v *dis.VoiceStateUpdate) {
	if v.UserID != s.State.User.ID || v.ChannelID != "" {
		return
	}

	bot.mu.Lock()
	call := bot.calls[v.GuildID]
	delete(bot.calls, v.GuildID)
	bot.mu.Unlock()

	if call != nil {
		bot.log.Warn("voice connection lost", "guild", v.GuildID)
		bot.sessions.Disconnected(v.GuildID)
	}
}

// Members implements session.Transport: the non-bot users sharing the
// bot's voice channel.
func (bot *Bot) Members(guildID string) ([]string, error) {
	bot.mu.Lock()
	call := bot.calls[guildID]
	bot.mu.Unlock()
	if call == nil {
		return nil, session.ErrNotConnected
	}

	guild, err := bot.discord.State.Guild(guildID)
	if err != nil {
		return nil, session.ErrNotConnected
	}

	me := bot.discord.State.User.ID
	var members []string
	for _, vs := range guild.VoiceStates {
		if vs.ChannelID != call.ChannelID || vs.UserID == me {
			continue
		}
		if bot.isBot(guildID, vs.UserID) {
			continue
		}
		members = append(members, vs.UserID)
	}
	return members, nil
}

func (bot *Bot) isBot(guildID, userID string) bool {
	member, err := bot.discord.State.Member(guildID, userID)
	if err != nil || member.User == nil {
		return false // unknown users count as humans
	}
	return member.User.Bot
}

func (bot *Bot) displayName(guildID, userID string) string {
	member, err := bot.discord.State.Member(guildID, userID)
	if err == nil && member != nil {
		if member.Nick != "" {
			return member.Nick
		}
		if member.User != nil && member.User.Username != "" {
			return member.User.Username
		}
	}

	user, err := bot.discord.User(userID)
	if err != nil {
		bot.log.Error("failed to get username", "userID", userID, "error", err)
		return userID
	}
	return user.Username
}
