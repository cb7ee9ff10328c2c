package server

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	contractx "github.com/nexusbot/nexus-relay/engine/contract"
)

type whatsappWebhook struct {
	Object string `json:"object"`
	Entry  []struct {
		Changes []struct {
			Value struct {
				Metadata struct {
					PhoneNumberID string `json:"phone_number_id"`
				} `json:"metadata"`
				Messages []struct {
					From string `json:"from"`
					Type string `json:"type"`
					Text struct {
						Body string `json:"body"`
					} `json:"text"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type messengerWebhook struct {
	Object string `json:"object"`
	Entry  []struct {
		ID        string `json:"id"`
		Messaging []struct {
			Sender struct {
				ID string `json:"id"`
			} `json:"sender"`
			Message *struct {
				Text string `json:"text"`
			} `json:"message"`
		} `json:"messaging"`
	} `json:"entry"`
}

func (s *Server) verifyWhatsApp(c *gin.Context) {
	challenge, ok := s.whatsapp.verifier.VerifyWebhook(
		c.Query("hub.mode"),
		c.Query("hub.verify_token"),
		c.Query("hub.challenge"),
	)
	if !ok {
		log.Warn().Msg("whatsapp webhook verification failed")
		c.Status(http.StatusForbidden)
		return
	}
	c.String(http.StatusOK, challenge)
}

// receiveWhatsApp handles inbound message events. Meta expects a 200
// for every delivered event; failures are logged, never surfaced, so
// the webhook is not retried or disabled.
func (s *Server) receiveWhatsApp(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}
	if s.whatsapp.signature != nil && !s.whatsapp.signature(body, c.GetHeader("X-Hub-Signature-256")) {
		log.Warn().Msg("whatsapp webhook signature rejected")
		c.Status(http.StatusForbidden)
		return
	}

	var payload whatsappWebhook
	if err := json.Unmarshal(body, &payload); err != nil || payload.Object != "whatsapp_business_account" {
		c.Status(http.StatusOK)
		return
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			profile := s.tenants.ByWhatsAppPhone(change.Value.Metadata.PhoneNumberID)
			for _, msg := range change.Value.Messages {
				if msg.Type != "text" {
					log.Debug().Str("type", msg.Type).Msg("ignoring non-text whatsapp message")
					continue
				}
				reply := s.bot.HandleMessage(c.Request.Context(), contractx.PlatformWhatsApp, msg.From, msg.Text.Body, profile)
				if reply == "" {
					continue
				}
				if err := s.whatsapp.sender.SendText(c.Request.Context(), msg.From, reply); err != nil {
					log.Error().Err(err).Str("recipient", msg.From).Msg("whatsapp reply delivery failed")
				}
			}
		}
	}

	c.Status(http.StatusOK)
}

func (s *Server) verifyMessenger(c *gin.Context) {
	challenge, ok := s.messenger.verifier.VerifyWebhook(
		c.Query("hub.mode"),
		c.Query("hub.verify_token"),
		c.Query("hub.challenge"),
	)
	if !ok {
		log.Warn().Msg("messenger webhook verification failed")
		c.Status(http.StatusForbidden)
		return
	}
	c.String(http.StatusOK, challenge)
}

func (s *Server) receiveMessenger(c *gin.Context) {
	var payload messengerWebhook
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.Status(http.StatusBadRequest)
		return
	}
	if payload.Object != "page" {
		c.Status(http.StatusNotFound)
		return
	}

	for _, entry := range payload.Entry {
		profile := s.tenants.ByMessengerPage(entry.ID)
		for _, event := range entry.Messaging {
			if event.Message == nil || event.Message.Text == "" {
				continue
			}
			reply := s.bot.HandleMessage(c.Request.Context(), contractx.PlatformMessenger, event.Sender.ID, event.Message.Text, profile)
			if reply == "" {
				continue
			}
			if err := s.messenger.sender.SendText(c.Request.Context(), event.Sender.ID, reply); err != nil {
				log.Error().Err(err).Str("recipient", event.Sender.ID).Msg("messenger reply delivery failed")
			}
		}
	}

	c.String(http.StatusOK, "EVENT_RECEIVED")
}
