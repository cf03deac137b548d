package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/keshon/ghostline/internal/config"
	"github.com/keshon/ghostline/internal/ghost"
	"github.com/keshon/ghostline/internal/trigger"
)

// Bot relays a Discord channel into the trigger evaluator and lets the ghost
// speak back, styled by the current mode.
type Bot struct {
	dg        *discordgo.Session
	machine   *ghost.Machine
	evaluator *trigger.Evaluator
	limiter   *rate.Limiter
	channelID string
	log       zerolog.Logger
}

// StartBot runs the Discord relay until ctx is done.
func StartBot(ctx context.Context, cfg *config.Config, machine *ghost.Machine, evaluator *trigger.Evaluator, log zerolog.Logger) error {
	perMin := cfg.GhostLinesPerMinute
	if perMin <= 0 {
		perMin = 1
	}
	b := &Bot{
		machine:   machine,
		evaluator: evaluator,
		limiter:   rate.NewLimiter(rate.Limit(perMin/60.0), 1),
		channelID: cfg.DiscordChannelID,
		log:       log.With().Str("component", "relay").Logger(),
	}
	if err := b.run(ctx, cfg.DiscordToken); err != nil {
		return fmt.Errorf("relay run error: %w", err)
	}
	return nil
}

func (b *Bot) run(ctx context.Context, token string) error {
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	b.dg = dg
	b.configureIntents()
	dg.AddHandler(b.onReady)
	dg.AddHandler(b.onMessageCreate)

	if err := dg.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}
	defer dg.Close()

	<-ctx.Done()
	b.log.Info().Msg("shutdown signal received, closing relay")
	return nil
}

func (b *Bot) configureIntents() {
	b.dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.log.Info().Str("user", r.User.Username).Msg("relay connected")
}

// onMessageCreate feeds every non-ghost message through one evaluation cycle
// and, when the winning trigger changed the mode, answers with a ghost line.
func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == s.State.User.ID || m.Author.Bot {
		return
	}
	if b.channelID != "" && m.ChannelID != b.channelID {
		return
	}

	results, err := b.evaluator.EvaluateAndProcess(trigger.Input{
		Message:   m.Content,
		Timestamp: time.Now(),
	})
	if err != nil {
		b.log.Error().Err(err).Msg("evaluation cycle failed")
		return
	}
	if len(results) == 0 || results[0].TargetMode == "" {
		return
	}

	if !b.limiter.Allow() {
		return
	}
	st := b.machine.CurrentState()
	ch := ghost.CharacteristicsFor(st.CurrentMode)
	line := ghostLine(st.CurrentMode, st.Intensity)
	b.log.Debug().
		Str("mode", string(st.CurrentMode)).
		Str("tone", ch.Tone).
		Str("effect", ch.EffectIntensity).
		Msg("ghost speaks")
	if _, err := s.ChannelMessageSend(m.ChannelID, line); err != nil {
		b.log.Error().Err(err).Str("channel", m.ChannelID).Msg("failed to send ghost line")
	}
}
