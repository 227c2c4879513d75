package scan

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"qr-parking-backend/internal/occupancy"
	"qr-parking-backend/internal/parse"
)

const duplicateMessage = "Duplicate scan"

// Engine applies a deduplicated scan.
type Engine interface {
	Scan(ctx context.Context, plate, areaCode string) (occupancy.Result, error)
}

// Listener is told about every scan that reached the engine successfully.
type Listener interface {
	OnScan(res occupancy.Result)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(res occupancy.Result)

func (f ListenerFunc) OnScan(res occupancy.Result) { f(res) }

// Gateway turns raw scanner payloads into engine calls, dropping repeated
// reads of the same code within the cooldown window.
type Gateway struct {
	engine    Engine
	recent    *cache.Cache
	cooldown  time.Duration
	listeners []Listener
}

// NewGateway creates a gateway whose cooldown entries expire after cooldown
// and are swept every sweepMultiplier*cooldown.
func NewGateway(engine Engine, cooldown time.Duration, sweepMultiplier int, listeners ...Listener) *Gateway {
	if sweepMultiplier < 1 {
		sweepMultiplier = 1
	}
	return &Gateway{
		engine:    engine,
		recent:    cache.New(cooldown, time.Duration(sweepMultiplier)*cooldown),
		cooldown:  cooldown,
		listeners: listeners,
	}
}

// Subscribe adds a listener. It must be called before the gateway serves scans.
func (g *Gateway) Subscribe(l Listener) {
	g.listeners = append(g.listeners, l)
}

// Submit extracts the plate from raw and scans it, into areaCode when set.
func (g *Gateway) Submit(ctx context.Context, raw, areaCode string) (occupancy.Result, error) {
	plate := parse.ExtractPlate(raw)
	if plate == "" {
		return occupancy.Result{}, occupancy.ErrEmptyIdentifier
	}
	areaCode = strings.TrimSpace(areaCode)

	if g.cooldown > 0 {
		// Add fails if the key is still live, which makes check-and-record atomic.
		if err := g.recent.Add(cooldownKey(plate, areaCode), time.Now(), cache.DefaultExpiration); err != nil {
			return occupancy.Result{
				Status:  occupancy.StatusIgnored,
				Plate:   plate,
				Area:    areaCode,
				Message: duplicateMessage,
			}, nil
		}
	}

	res, err := g.engine.Scan(ctx, plate, areaCode)
	if err != nil {
		return res, err
	}

	for _, l := range g.listeners {
		l.OnScan(res)
	}
	return res, nil
}

// Tracked returns the number of live cooldown entries.
func (g *Gateway) Tracked() int {
	return g.recent.ItemCount()
}

// Area scans and plate-only scans keep separate cooldowns. The area code is
// length-prefixed so no area/plate pair can spell another.
func cooldownKey(plate, areaCode string) string {
	if areaCode == "" {
		return "p:" + plate
	}
	return "a:" + strconv.Itoa(len(areaCode)) + ":" + areaCode + "|" + plate
}
