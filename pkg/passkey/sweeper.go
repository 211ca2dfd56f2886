// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package passkey

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically removes expired challenges from a ChallengeStore.
// Expired challenges are already invisible to Consume; the sweeper only
// reclaims storage.
type Sweeper struct {
	store    ChallengeStore
	interval time.Duration
	logger   *slog.Logger
}

// NewSweeper creates a sweeper over the given store. A zero interval
// defaults to one minute.
func NewSweeper(store ChallengeStore, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval == 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		store:    store,
		interval: interval,
		logger:   logger,
	}
}

// Run sweeps on the configured interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	removed, err := s.store.DeleteExpired(ctx)
	if err != nil {
		s.logger.Error("challenge sweep failed", slog.Any("error", err))
		return
	}
	if removed > 0 {
		challengesSweptTotal.Add(float64(removed))
		s.logger.Debug("swept expired challenges", slog.Int("removed", removed))
	}
}
