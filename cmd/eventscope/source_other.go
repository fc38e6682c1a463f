//go:build !windows

package main

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/coffersTech/eventscope/internal/config"
	"github.com/coffersTech/eventscope/internal/source"
)

func liveSource(_ config.Config, _ zerolog.Logger) (source.Querier, source.Renderer, source.Catalog, error) {
	return nil, nil, nil, errors.New("the live event log is only available on windows; use -archive")
}
