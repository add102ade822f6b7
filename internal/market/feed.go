package market

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
)

// FileFeed reads a JSON snapshot from disk on every call, so an external
// process can keep the file fresh. Both a bare array and {"items": [...]}
// are accepted.
type FileFeed struct {
	Path string
}

func NewFileFeed(path string) *FileFeed {
	return &FileFeed{Path: path}
}

func (f *FileFeed) Items(ctx context.Context) ([]Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read feed %s: %w", f.Path, err)
	}
	return ParseItems(data)
}

// ParseItems decodes a feed document. Numeric fields may be numbers or
// numeric strings; history points may carry either price or high.
func ParseItems(data []byte) ([]Item, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("feed is not valid json")
	}
	root := gjson.ParseBytes(data)
	list := root
	if root.IsObject() {
		list = root.Get("items")
	}
	if !list.IsArray() {
		return nil, fmt.Errorf("feed must be an array of items")
	}
	var items []Item
	list.ForEach(func(_, v gjson.Result) bool {
		items = append(items, parseItem(v))
		return true
	})
	return items, nil
}

func parseItem(v gjson.Result) Item {
	item := Item{
		ID:     strings.TrimSpace(v.Get("id").String()),
		Name:   v.Get("name").String(),
		High:   firstFloat(v, "priceData.high", "high"),
		Low:    firstFloat(v, "priceData.low", "low"),
		Volume: v.Get("volume").Float(),
	}
	history := v.Get("priceHistory")
	if !history.Exists() {
		history = v.Get("history")
	}
	history.ForEach(func(_, p gjson.Result) bool {
		item.History = append(item.History, PricePoint{
			Price:     p.Get("price").Float(),
			High:      p.Get("high").Float(),
			Timestamp: normalizeMillis(p.Get("timestamp").Int()),
		})
		return true
	})
	return item
}

func firstFloat(v gjson.Result, paths ...string) float64 {
	for _, p := range paths {
		if r := v.Get(p); r.Exists() {
			return r.Float()
		}
	}
	return 0
}

// normalizeMillis accepts unix seconds or milliseconds.
func normalizeMillis(ts int64) int64 {
	if ts > 0 && ts < 1e12 {
		return ts * 1000
	}
	return ts
}

var syntheticNames = []string{
	"Abyssal whip", "Dragon bones", "Rune platebody", "Zulrah's scales",
	"Blood rune", "Yew logs", "Magic logs", "Shark", "Cannonball",
	"Amulet of glory", "Dragon dagger", "Ranarr weed", "Prayer potion(4)",
	"Bandos chestplate", "Armadyl godsword", "Toxic blowpipe",
}

// SyntheticFeed produces a seeded random walk per item. Each call advances
// every series by one step and returns the trailing window.
type SyntheticFeed struct {
	mu      sync.Mutex
	rng     *rand.Rand
	window  int
	step    time.Duration
	clock   time.Time
	series  [][]float64
	volumes []float64
	names   []string
}

func NewSyntheticFeed(items, window int, seed int64) *SyntheticFeed {
	if items <= 0 {
		items = 1
	}
	if window < 3 {
		window = 3
	}
	rng := rand.New(rand.NewSource(seed))
	f := &SyntheticFeed{
		rng:    rng,
		window: window,
		step:   time.Minute,
		clock:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	for i := 0; i < items; i++ {
		base := math.Round(500 + rng.Float64()*rng.Float64()*5_000_000)
		s := []float64{base}
		for len(s) < window {
			s = append(s, f.nextPrice(s[len(s)-1]))
		}
		f.series = append(f.series, s)
		f.volumes = append(f.volumes, math.Round(100+rng.Float64()*50_000))
		f.names = append(f.names, syntheticNames[i%len(syntheticNames)])
	}
	f.clock = f.clock.Add(time.Duration(window) * f.step)
	return f
}

func (f *SyntheticFeed) nextPrice(prev float64) float64 {
	drift := f.rng.NormFloat64() * 0.015
	next := math.Round(prev * (1 + drift))
	if next < 1 {
		next = 1
	}
	return next
}

func (f *SyntheticFeed) Items(ctx context.Context) ([]Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.clock = f.clock.Add(f.step)
	out := make([]Item, len(f.series))
	for i, s := range f.series {
		s = append(s, f.nextPrice(s[len(s)-1]))
		if len(s) > f.window {
			s = s[len(s)-f.window:]
		}
		f.series[i] = s

		history := make([]PricePoint, len(s))
		start := f.clock.Add(-time.Duration(len(s)-1) * f.step)
		for j, p := range s {
			history[j] = PricePoint{Price: p, Timestamp: start.Add(time.Duration(j) * f.step).UnixMilli()}
		}
		last := s[len(s)-1]
		halfSpread := math.Max(1, math.Round(last*(0.002+f.rng.Float64()*0.02)))
		out[i] = Item{
			ID:      fmt.Sprintf("%d", 1000+i),
			Name:    f.names[i],
			High:    last + halfSpread,
			Low:     math.Max(1, last-halfSpread),
			Volume:  f.volumes[i],
			History: history,
		}
	}
	return out, nil
}
