package logger

import (
    "os"

    "github.com/northstar-retail/feedcore/config"
    "github.com/rs/zerolog"
)

// New returns a configured zerolog.Logger
func New(cfg *config.Config) zerolog.Logger {
    out := zerolog.ConsoleWriter{Out: os.Stderr}
    lvl, err := zerolog.ParseLevel(cfg.LogLevel)
    if err != nil {
        lvl = zerolog.InfoLevel
    }
    if cfg.IsDevelopment() && lvl > zerolog.DebugLevel {
        lvl = zerolog.DebugLevel
    }
    zerolog.SetGlobalLevel(lvl)
    log := zerolog.New(out).With().Timestamp().Logger()
    return log
}
