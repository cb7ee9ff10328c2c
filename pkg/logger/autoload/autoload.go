// Package autoload initializes the global logger from the LOG_*
// environment variables as a side effect of being imported.
package autoload

import (
	configx "github.com/nexusbot/nexus-relay/pkg/config"
	logx "github.com/nexusbot/nexus-relay/pkg/logger"
)

func init() {
	cfg := configx.MustNew[logx.Config]("LOG")
	logx.Init(*cfg)
}
