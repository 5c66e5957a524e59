// Package signal defines where the zeitgeist aggregator pulls recent
// activity from. Each source is independent; a failing source contributes
// zero signals for the run and nothing more.
package signal

import (
	"context"
	"time"

	"github.com/helmsan/kompass/internal/model"
)

type Source interface {
	Name() string
	Weight() float64
	Fetch(ctx context.Context, scope model.Scope, since time.Time) ([]model.RawSignal, error)
}

const fetchLimit = 500
