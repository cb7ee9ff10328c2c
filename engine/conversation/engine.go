package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/nexusbot/nexus-relay/engine/contract"
	sessionx "github.com/nexusbot/nexus-relay/engine/session"
)

const (
	// Each logical exchange can take up to four history slots when a
	// tool round-trip fires, so the stored bound gets that headroom.
	turnsPerExchange = 4

	defaultMaxHistoryTurns = 10

	defaultApology  = "Lo siento, no pude procesar tu solicitud en este momento."
	defaultFallback = "Listo, tu solicitud fue procesada."

	groundingPreamble = "INSTRUCCIONES IMPORTANTES PARA ESTA CONVERSACION: "
	groundingAck      = "Entendido."
)

// Config tunes the engine.
type Config struct {
	// MaxHistoryTurns bounds the number of logical exchanges kept per
	// session; the stored history keeps up to MaxHistoryTurns*4 turns.
	MaxHistoryTurns int `split_words:"true" default:"10"`

	// Apology replaces the reply when an internal failure prevents a
	// real answer.
	Apology string `split_words:"true"`

	// Fallback replaces the reply when a tool executed but the model
	// produced no closing text.
	Fallback string `split_words:"true"`
}

// Engine orchestrates one inbound message end to end: load session,
// compose the model request, run the tool round-trip when asked for,
// persist the bounded history, and return the final text.
//
// Processing is strictly sequential within one message. Messages for
// the same (platform, user) key are serialized with a keyed lock so
// two concurrent turns cannot race the load-modify-save cycle.
type Engine struct {
	store   sessionx.Store
	gateway contractx.ModelGateway
	tools   contractx.ToolExecutor

	maxHistoryTurns int
	apology         string
	fallback        string

	locks keyedLocks
}

func New(store sessionx.Store, gateway contractx.ModelGateway, tools contractx.ToolExecutor, cfg Config) (*Engine, error) {
	if store == nil {
		return nil, errors.New("session store is required")
	}
	if gateway == nil {
		return nil, errors.New("model gateway is required")
	}
	if tools == nil {
		return nil, errors.New("tool executor is required")
	}

	maxTurns := cfg.MaxHistoryTurns
	if maxTurns <= 0 {
		maxTurns = defaultMaxHistoryTurns
	}
	apology := strings.TrimSpace(cfg.Apology)
	if apology == "" {
		apology = defaultApology
	}
	fallback := strings.TrimSpace(cfg.Fallback)
	if fallback == "" {
		fallback = defaultFallback
	}

	return &Engine{
		store:           store,
		gateway:         gateway,
		tools:           tools,
		maxHistoryTurns: maxTurns,
		apology:         apology,
		fallback:        fallback,
	}, nil
}

// HandleMessage processes one inbound user message and always returns
// a reply string; internal failures resolve to an apology, never an
// error, so the channel adapter can deliver something in every case.
func (e *Engine) HandleMessage(ctx context.Context, platform contractx.Platform, userID, text string, profile *contractx.TenantProfile) string {
	if profile == nil || strings.TrimSpace(text) == "" || strings.TrimSpace(userID) == "" {
		log.Warn().Str("platform", string(platform)).Str("user", userID).Msg("dropping message with missing profile, user, or text")
		return e.apology
	}

	unlock := e.locks.lock(lockKey(platform, userID))
	defer unlock()

	reply, err := e.processTurn(ctx, platform, userID, text, profile)
	if err != nil {
		log.Error().Err(err).
			Str("platform", string(platform)).
			Str("user", userID).
			Str("tenant", profile.ID).
			Msg("turn failed, replying with apology")
		e.persistUserTurnOnly(ctx, platform, userID, text, profile)
		return e.apology
	}
	return reply
}

func (e *Engine) processTurn(ctx context.Context, platform contractx.Platform, userID, text string, profile *contractx.TenantProfile) (string, error) {
	sess, err := e.loadSession(ctx, platform, userID, profile)
	if err != nil {
		return "", err
	}

	// A failed earlier turn may have left a lone trailing user turn in
	// the store; appending this exchange after it would put two user
	// turns in a row, and the replay would carry the same malformed
	// sequence to the model.
	if n := len(sess.History); n > 0 && sess.History[n-1].Role == contractx.RoleUser {
		sess.History = sess.History[:n-1]
	}

	composed := e.compose(sess, text)

	reply, err := e.gateway.Generate(ctx, contractx.GenerateRequest{
		Model:      profile.Model,
		Turns:      composed,
		Tools:      profile.Tools,
		AllowTools: true,
	})
	emptyReply := errors.Is(err, contractx.ErrEmptyReply)
	if err != nil && !emptyReply {
		return "", fmt.Errorf("first dispatch: %w", err)
	}
	if emptyReply {
		log.Warn().Str("tenant", profile.ID).Msg("first dispatch produced nothing, using neutral fallback")
		reply = contractx.Reply{Text: e.fallback}
	}

	call := reply.Call
	if call == nil && !emptyReply {
		if name, ok := detectTextualCall(reply.Text, profile.Tools); ok {
			log.Warn().
				Str("tool", name).
				Str("tenant", profile.ID).
				Msg("tool name emitted as plain text, forcing the tool path")
			call = &contractx.ToolCall{Name: name, Args: map[string]any{}}
		}
	}

	var exchange []contractx.Turn
	var finalText string

	if call == nil {
		finalText = reply.Text
		exchange = []contractx.Turn{
			contractx.UserTurn(text),
			contractx.ModelTurn(finalText),
		}
	} else {
		result := e.tools.Execute(ctx, *call, profile)

		buffer := append(composed,
			contractx.CallTurn(*call),
			contractx.ResultTurn(result),
		)
		second, err := e.gateway.Generate(ctx, contractx.GenerateRequest{
			Model: profile.Model,
			Turns: buffer,
		})
		// The tool already ran; a silent second dispatch degrades to a
		// neutral confirmation instead of failing the turn.
		if err != nil || strings.TrimSpace(second.Text) == "" {
			if err != nil {
				log.Warn().Err(err).Str("tenant", profile.ID).Msg("second dispatch failed, using neutral fallback")
			}
			finalText = e.fallback
		} else {
			finalText = second.Text
		}

		exchange = []contractx.Turn{
			contractx.UserTurn(text),
			contractx.CallTurn(*call),
			contractx.ResultTurn(result),
			contractx.ModelTurn(finalText),
		}
	}

	sess.Append(exchange...)
	sess.Truncate(e.maxHistoryTurns * turnsPerExchange)
	if err := e.store.Save(ctx, platform, userID, sess); err != nil {
		// The user still gets the answer; only the history is at risk.
		log.Error().Err(err).
			Str("platform", string(platform)).
			Str("user", userID).
			Msg("session save failed")
	}

	return finalText, nil
}

func (e *Engine) loadSession(ctx context.Context, platform contractx.Platform, userID string, profile *contractx.TenantProfile) (*sessionx.Session, error) {
	sess, err := e.store.Load(ctx, platform, userID)
	if errors.Is(err, contractx.ErrSessionNotFound) {
		return sessionx.New(profile.DefaultInstruction), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if strings.TrimSpace(sess.SystemInstruction) == "" {
		sess.SystemInstruction = profile.DefaultInstruction
	}
	return sess, nil
}

// compose builds the model request: a synthetic grounding pair carrying
// the persona instruction, the stored history, then the new message.
// The pair is re-sent on every turn because truncation may have dropped
// it from the stored history, and some backends ignore an out-of-band
// system instruction.
func (e *Engine) compose(sess *sessionx.Session, text string) []contractx.Turn {
	turns := make([]contractx.Turn, 0, len(sess.History)+3)
	turns = append(turns,
		contractx.UserTurn(groundingPreamble+sess.SystemInstruction),
		contractx.ModelTurn(groundingAck),
	)
	turns = append(turns, sess.History...)
	turns = append(turns, contractx.UserTurn(text))
	return turns
}

// persistUserTurnOnly keeps at least the user's message when the turn
// failed, so the conversation is not silently lost.
func (e *Engine) persistUserTurnOnly(ctx context.Context, platform contractx.Platform, userID, text string, profile *contractx.TenantProfile) {
	sess, err := e.store.Load(ctx, platform, userID)
	if err != nil {
		if !errors.Is(err, contractx.ErrSessionNotFound) {
			log.Warn().Err(err).Msg("could not load session for best-effort persistence")
			return
		}
		sess = sessionx.New(profile.DefaultInstruction)
	}
	if n := len(sess.History); n > 0 && sess.History[n-1].Role == contractx.RoleUser {
		// Keeping a second trailing user turn would break replay.
		return
	}
	sess.Append(contractx.UserTurn(text))
	sess.Truncate(e.maxHistoryTurns * turnsPerExchange)
	if err := e.store.Save(ctx, platform, userID, sess); err != nil {
		log.Warn().Err(err).Msg("best-effort persistence failed")
	}
}

// SetInstruction applies an operator override to the active persona of
// a session, creating an empty one when the user has no session yet.
// It reports success; storage failures are logged, never raised.
func (e *Engine) SetInstruction(ctx context.Context, platform contractx.Platform, userID, instruction string) bool {
	unlock := e.locks.lock(lockKey(platform, userID))
	defer unlock()

	if err := e.store.SetInstruction(ctx, platform, userID, instruction); err != nil {
		log.Error().Err(err).
			Str("platform", string(platform)).
			Str("user", userID).
			Msg("instruction override failed")
		return false
	}
	return true
}

func lockKey(platform contractx.Platform, userID string) string {
	return string(platform) + "/" + userID
}
