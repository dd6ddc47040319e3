package rate

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	defaultFloodWindow      = 7 * time.Second
	defaultFloodMaxMessages = 6
	defaultRepeatWindow     = 30 * time.Second
	defaultRepeatMax        = 3
)

type FloodConfig struct {
	Window       time.Duration
	MaxMessages  int
	RepeatWindow time.Duration
	RepeatMax    int
}

type FloodResult struct {
	Flood       bool
	Repeat      bool
	Count       int64
	RepeatCount int64
	// Strike is set on the first triggered message of a burst only. Later messages of the
	// same burst are still triggered but must not be punished again.
	Strike bool
}

func (r FloodResult) Triggered() bool {
	return r.Flood || r.Repeat
}

// Detector is the deterministic flood / repeat rule. A hit is high confidence and
// does not go through adjudication.
type Detector struct {
	store WindowStore
	cfg   FloodConfig
}

func NewDetector(store WindowStore, cfg FloodConfig) *Detector {
	if cfg.Window <= 0 {
		cfg.Window = defaultFloodWindow
	}
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = defaultFloodMaxMessages
	}
	if cfg.RepeatWindow <= 0 {
		cfg.RepeatWindow = defaultRepeatWindow
	}
	if cfg.RepeatMax <= 0 {
		cfg.RepeatMax = defaultRepeatMax
	}

	return &Detector{
		store: store,
		cfg:   cfg,
	}
}

func (d *Detector) Observe(ctx context.Context, communityID, userID int64, text string) (FloodResult, error) {
	if userID == 0 {
		return FloodResult{}, fmt.Errorf("invalid user id")
	}
	if d.store == nil {
		return FloodResult{}, fmt.Errorf("flood detector store is nil")
	}

	count, _, err := d.store.IncrementWindow(ctx, floodKey(communityID, userID), d.cfg.Window)
	if err != nil {
		return FloodResult{}, err
	}
	result := FloodResult{
		Count: count,
		Flood: count > int64(d.cfg.MaxMessages),
	}

	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return d.markStrike(ctx, communityID, userID, result)
	}

	repeats, _, err := d.store.IncrementWindow(ctx, repeatKey(communityID, userID, normalized), d.cfg.RepeatWindow)
	if err != nil {
		return FloodResult{}, err
	}
	result.RepeatCount = repeats
	result.Repeat = repeats >= int64(d.cfg.RepeatMax)

	return d.markStrike(ctx, communityID, userID, result)
}

// markStrike claims the pair's burst marker. The marker lives as long as the longer of the
// two windows, so one burst yields one strike whichever rule fired first.
func (d *Detector) markStrike(ctx context.Context, communityID, userID int64, result FloodResult) (FloodResult, error) {
	if !result.Triggered() {
		return result, nil
	}
	ttl := d.cfg.Window
	if d.cfg.RepeatWindow > ttl {
		ttl = d.cfg.RepeatWindow
	}
	n, _, err := d.store.IncrementWindow(ctx, struckKey(communityID, userID), ttl)
	if err != nil {
		return FloodResult{}, err
	}
	result.Strike = n == 1
	return result, nil
}

func floodKey(communityID, userID int64) string {
	return "rate:flood:" + strconv.FormatInt(communityID, 10) + ":" + strconv.FormatInt(userID, 10)
}

func struckKey(communityID, userID int64) string {
	return "rate:flood:struck:" + strconv.FormatInt(communityID, 10) + ":" + strconv.FormatInt(userID, 10)
}

func repeatKey(communityID, userID int64, text string) string {
	sum := sha1.Sum([]byte(text))
	return "rate:repeat:" + strconv.FormatInt(communityID, 10) + ":" + strconv.FormatInt(userID, 10) + ":" + hex.EncodeToString(sum[:8])
}
