package fetch

import (
	"context"
	"fmt"
	"time"

	"gardenbot/internal/garden"
)

// Wire shapes of the upstream API. Only the fields we diff on are decoded;
// unknown keys (and whole unknown categories) are ignored so upstream
// schema drift doesn't break polling.

type stockPayload struct {
	SeedsStock []stockItem `json:"seedsStock"`
	GearStock  []stockItem `json:"gearStock"`
	EggStock   []stockItem `json:"eggStock"`
	NightStock []stockItem `json:"nightStock"`
	HoneyStock []stockItem `json:"honeyStock"`
}

type stockItem struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
	Emoji string `json:"emoji"`
}

type weatherPayload struct {
	Success bool          `json:"success"`
	Weather []weatherItem `json:"weather"`
}

type weatherItem struct {
	ID        string `json:"weather_id"`
	Name      string `json:"weather_name"`
	Active    bool   `json:"active"`
	Duration  int64  `json:"duration"`
	StartUnix int64  `json:"start_duration_unix"`
	EndUnix   int64  `json:"end_duration_unix"`
}

// RestockInfo describes upcoming/last restock timing for one category.
type RestockInfo struct {
	Countdown       string `json:"countdown"`
	LastRestock     string `json:"LastRestock"`
	SinceLastRestock string `json:"timeSinceLastRestock"`
}

type restockPayload struct {
	Seeds    *RestockInfo `json:"seeds"`
	Gear     *RestockInfo `json:"gear"`
	Egg      *RestockInfo `json:"egg"`
	Cosmetic *RestockInfo `json:"cosmetic"`
}

// FetchStock polls the stock endpoint and maps it into a snapshot with
// one category per stock section, in a fixed declaration order.
func (c *Client) FetchStock(ctx context.Context) (*garden.Snapshot, error) {
	var p stockPayload
	if err := c.getJSON(ctx, stockPath, &p); err != nil {
		return nil, err
	}

	snap := &garden.Snapshot{}
	appendCat := func(name string, items []stockItem) {
		if len(items) == 0 {
			return
		}
		cat := garden.Category{Name: name, Entries: make([]garden.Entry, 0, len(items))}
		for _, it := range items {
			if it.Name == "" {
				continue
			}
			cat.Entries = append(cat.Entries, garden.Entry{
				Name:     it.Name,
				Quantity: it.Value,
				Emoji:    it.Emoji,
			})
		}
		snap.Categories = append(snap.Categories, cat)
	}
	appendCat("seeds", p.SeedsStock)
	appendCat("gear", p.GearStock)
	appendCat("eggs", p.EggStock)
	appendCat("night", p.NightStock)
	appendCat("honey", p.HoneyStock)
	return snap, nil
}

// FetchWeather polls the weather endpoint and maps it into a snapshot with
// a single timed category. Weather entries are identified by weather_id.
func (c *Client) FetchWeather(ctx context.Context) (*garden.Snapshot, error) {
	var p weatherPayload
	if err := c.getJSON(ctx, weatherPath, &p); err != nil {
		return nil, err
	}
	if !p.Success {
		return nil, &Error{Endpoint: weatherPath, Err: fmt.Errorf("api reported failure")}
	}

	cat := garden.Category{Name: "weather", Timed: true, Entries: make([]garden.Entry, 0, len(p.Weather))}
	for _, w := range p.Weather {
		if w.ID == "" && w.Name == "" {
			continue
		}
		e := garden.Entry{
			Name:   w.Name,
			ID:     w.ID,
			Active: w.Active,
		}
		if w.StartUnix > 0 {
			e.WindowStart = time.Unix(w.StartUnix, 0).UTC()
		}
		if w.EndUnix > 0 {
			e.WindowEnd = time.Unix(w.EndUnix, 0).UTC()
		}
		cat.Entries = append(cat.Entries, e)
	}
	return &garden.Snapshot{Categories: []garden.Category{cat}}, nil
}

// FetchRestock polls restock timing, used by the /restock command only.
func (c *Client) FetchRestock(ctx context.Context) (map[string]RestockInfo, error) {
	var p restockPayload
	if err := c.getJSON(ctx, restockPath, &p); err != nil {
		return nil, err
	}
	out := map[string]RestockInfo{}
	if p.Seeds != nil {
		out["seeds"] = *p.Seeds
	}
	if p.Gear != nil {
		out["gear"] = *p.Gear
	}
	if p.Egg != nil {
		out["egg"] = *p.Egg
	}
	if p.Cosmetic != nil {
		out["cosmetic"] = *p.Cosmetic
	}
	return out, nil
}
