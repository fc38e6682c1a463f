//go:build windows

package main

import (
	"github.com/rs/zerolog"

	"github.com/coffersTech/eventscope/internal/config"
	"github.com/coffersTech/eventscope/internal/source"
)

func liveSource(cfg config.Config, log zerolog.Logger) (source.Querier, source.Renderer, source.Catalog, error) {
	log.Info().Msg("reading from the live event log")
	el := source.NewEventLog()
	el.MaxEvents = cfg.MaxRecordsPerChannel
	return el, source.ArchiveRenderer{}, el, nil
}
