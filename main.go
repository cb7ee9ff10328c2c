package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/nexusbot/nexus-relay/engine/conversation"
	"github.com/nexusbot/nexus-relay/engine/gateway"
	sessionx "github.com/nexusbot/nexus-relay/engine/session"
	tenantx "github.com/nexusbot/nexus-relay/engine/tenant"
	toolx "github.com/nexusbot/nexus-relay/engine/tool"
	configx "github.com/nexusbot/nexus-relay/pkg/config"
	googlecalx "github.com/nexusbot/nexus-relay/pkg/googlecal"
	_ "github.com/nexusbot/nexus-relay/pkg/logger/autoload"
	messengerx "github.com/nexusbot/nexus-relay/pkg/messenger"
	whatsappx "github.com/nexusbot/nexus-relay/pkg/whatsapp"
	serverx "github.com/nexusbot/nexus-relay/server"
)

type AppConfig struct {
	TenantsPath string `envconfig:"TENANTS_PATH" default:"./data/clients.json"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appCfg := configx.MustNew[AppConfig]("")

	redisCfg := configx.MustNew[sessionx.RedisConfig]("REDIS")
	store, err := sessionx.NewRedisStore(sessionx.NewRedisClient(*redisCfg))
	if err != nil {
		log.Fatal().Err(err).Msg("session store init failed")
	}

	gatewayCfg := configx.MustNew[gateway.Config]("GEMINI")
	model, err := gateway.New(ctx, *gatewayCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("model gateway init failed")
	}

	var cal toolx.Calendar
	if calCfg, err := configx.New[googlecalx.Config]("GOOGLE"); err == nil {
		if svc, err := googlecalx.New(*calCfg); err == nil {
			cal = svc
		} else {
			log.Warn().Err(err).Msg("calendar disabled")
		}
	} else {
		log.Warn().Err(err).Msg("calendar disabled")
	}

	toolCfg := configx.MustNew[toolx.Config]("TOOL")
	tools := toolx.NewRegistry(*toolCfg, cal)

	convCfg := configx.MustNew[conversation.Config]("CONVERSATION")
	bot, err := conversation.New(store, model, tools, *convCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("conversation engine init failed")
	}

	tenants, err := tenantx.Load(appCfg.TenantsPath)
	if err != nil {
		log.Fatal().Err(err).Msg("tenant directory load failed")
	}

	serverCfg := configx.MustNew[serverx.Config]("SERVER")
	srv, err := serverx.New(*serverCfg, bot, store, tenants)
	if err != nil {
		log.Fatal().Err(err).Msg("server init failed")
	}

	if waCfg, err := configx.New[whatsappx.Config]("WHATSAPP"); err == nil {
		client := whatsappx.MustNew(*waCfg)
		srv.WithWhatsApp(client, client, client.VerifySignature)
	} else {
		log.Warn().Err(err).Msg("whatsapp channel disabled")
	}

	if msgCfg, err := configx.New[messengerx.Config]("MESSENGER"); err == nil {
		client := messengerx.MustNew(*msgCfg)
		srv.WithMessenger(client, client)
	} else {
		log.Warn().Err(err).Msg("messenger channel disabled")
	}

	if err := srv.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
