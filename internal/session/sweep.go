package session

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/wsrelay/wsrelay/internal/wslog"
)

// Sweeper periodically prunes sessions that are both anonymous and
// idle past a soft TTL, and whose Redis mirror entry (if mirroring is
// enabled) has also expired. It never removes a session carrying a
// userid, and never runs unless explicitly started — spec.md §9's
// open question on session growth is answered here as an opt-in
// add-on, not a change to the store's default no-expiry contract.
type Sweeper struct {
	store   *Store
	mirror  *RedisMirror
	softTTL time.Duration
	cron    *cron.Cron
}

// NewSweeper constructs a sweeper. softTTL is the minimum idle time
// before an anonymous session becomes eligible for removal.
func NewSweeper(store *Store, mirror *RedisMirror, softTTL time.Duration) *Sweeper {
	if softTTL <= 0 {
		softTTL = time.Hour
	}
	return &Sweeper{store: store, mirror: mirror, softTTL: softTTL, cron: cron.New()}
}

// Start schedules the sweep on the given cron spec (default "@every 5m").
func (sw *Sweeper) Start(spec string) error {
	if spec == "" {
		spec = "@every 5m"
	}
	_, err := sw.cron.AddFunc(spec, sw.sweepOnce)
	if err != nil {
		return err
	}
	sw.cron.Start()
	return nil
}

func (sw *Sweeper) Stop() {
	sw.cron.Stop()
}

func (sw *Sweeper) sweepOnce() {
	ctx := context.Background()
	removed := 0
	for id, sess := range sw.store.Snapshot() {
		if !sess.IsAnonymous() {
			continue
		}
		sess.mu.Lock()
		idleFor := time.Since(sess.LastSeenAt)
		sess.mu.Unlock()
		if idleFor < sw.softTTL {
			if sw.mirror.IsEnabled() {
				if err := sw.mirror.Touch(ctx, id); err != nil {
					wslog.Session().Debug().Err(err).Str("session_id", id).Msg("failed to refresh session mirror TTL")
				}
			}
			continue
		}
		if sw.mirror.IsEnabled() {
			exists, err := sw.mirror.Exists(ctx, id)
			if err != nil || exists {
				continue
			}
		}
		sw.store.Delete(id)
		removed++
	}
	if removed > 0 {
		wslog.Session().Debug().Int("removed", removed).Msg("session sweep removed idle anonymous sessions")
	}
}
