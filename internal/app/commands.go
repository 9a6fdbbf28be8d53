package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"gardenbot/internal/garden"
	"gardenbot/internal/transport"
	"gardenbot/pkg/logx"
)

const commandTimeout = 30 * time.Second

func (a *App) handleMessage(ctx context.Context, msg transport.Message) {
	cmd, arg := parseCommand(msg.Text)
	if cmd == "" {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	log := a.log.With(
		logx.String("cmd", cmd),
		logx.Int64("chat_id", msg.ChatID),
		logx.String("user", msg.FromUsername))
	log.Debug("command received")

	var reply string
	switch cmd {
	case "start", "help":
		reply = helpText
	case "stock":
		reply = a.cmdStock(ctx)
	case "weather":
		reply = a.cmdWeather(ctx)
	case "restock":
		reply = a.cmdRestock(ctx)
	case "watch":
		reply = a.cmdWatch(msg, arg)
	case "unwatch":
		reply = a.cmdUnwatch(msg, arg)
	case "watchlist":
		reply = a.cmdWatchlist(msg)
	case "save":
		a.mon.Flush()
		reply = "💾 Data saved."
	case "stats":
		reply = a.cmdStats()
	case "export":
		a.cmdExport(ctx, msg, log)
		return
	default:
		return
	}

	if reply == "" {
		return
	}
	err := a.adapter.SendText(ctx, transport.ChatTarget{ChatID: msg.ChatID}, reply,
		&transport.SendOptions{DisablePreview: true})
	if err != nil {
		log.Warn("command reply failed", logx.Err(err))
	}
}

// parseCommand extracts the command name and the remaining argument text.
// Handles the group form "/watch@SomeBot carrot". Non-commands return "".
func parseCommand(text string) (cmd, arg string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", ""
	}
	head, rest, _ := strings.Cut(text[1:], " ")
	if i := strings.IndexByte(head, '@'); i >= 0 {
		head = head[:i]
	}
	return strings.ToLower(head), strings.TrimSpace(rest)
}

const helpText = `🌱 Garden monitor commands

/stock - current shop stock
/weather - active weather events
/restock - restock countdowns
/watch <item> - alert me when an item is in stock
/unwatch <item> - stop watching an item
/watchlist - show my watched items
/save - flush state to disk
/stats - bot statistics
/export - download a full data export`

func (a *App) cmdStock(ctx context.Context) string {
	snap, err := a.api.FetchStock(ctx)
	if err != nil {
		a.log.Warn("stock command fetch failed", logx.Err(err))
		return "⚠️ Could not reach the stock API, try again in a minute."
	}

	var b strings.Builder
	b.WriteString("🛒 Current stock\n")
	for _, cat := range snap.Categories {
		fmt.Fprintf(&b, "\n%s:\n", titleCase(cat.Name))
		for _, e := range cat.Entries {
			fmt.Fprintf(&b, "  %s %s x%d\n", displayEmoji(e), e.Name, e.Quantity)
		}
	}
	if snap.EntryCount() == 0 {
		return "🛒 The shop is empty right now."
	}
	return b.String()
}

func (a *App) cmdWeather(ctx context.Context) string {
	snap, err := a.api.FetchWeather(ctx)
	if err != nil {
		a.log.Warn("weather command fetch failed", logx.Err(err))
		return "⚠️ Could not reach the weather API, try again in a minute."
	}

	var active []garden.Entry
	if cat := snap.Category("weather"); cat != nil {
		for _, e := range cat.Entries {
			if e.Active {
				active = append(active, e)
			}
		}
	}
	if len(active) == 0 {
		return "☀️ No active weather events."
	}

	var b strings.Builder
	b.WriteString("🌩️ Active weather\n")
	for _, e := range active {
		fmt.Fprintf(&b, "\n• %s", e.Name)
		if !e.WindowEnd.IsZero() {
			fmt.Fprintf(&b, " (until %s)", e.WindowEnd.Format("15:04:05 MST"))
		}
	}
	return b.String()
}

func (a *App) cmdRestock(ctx context.Context) string {
	info, err := a.api.FetchRestock(ctx)
	if err != nil {
		a.log.Warn("restock command fetch failed", logx.Err(err))
		return "⚠️ Could not reach the restock API, try again in a minute."
	}
	if len(info) == 0 {
		return "⏳ No restock timing available."
	}

	names := make([]string, 0, len(info))
	for name := range info {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("⏳ Next restocks\n")
	for _, name := range names {
		r := info[name]
		fmt.Fprintf(&b, "\n%s: %s", titleCase(name), r.Countdown)
		if r.SinceLastRestock != "" {
			fmt.Fprintf(&b, " (last restock %s ago)", r.SinceLastRestock)
		}
	}
	return b.String()
}

func (a *App) cmdWatch(msg transport.Message, arg string) string {
	if arg == "" {
		return "Usage: /watch <item name>\nExample: /watch carrot"
	}
	sub := subscriberID(msg)
	added, err := a.reg.Add(sub, arg)
	if err != nil {
		a.log.Error("watchlist add failed", logx.String("subscriber", sub), logx.Err(err))
		return "⚠️ Could not save your watchlist, try again."
	}
	term := garden.NormalizeTerm(arg)
	if !added {
		return fmt.Sprintf("ℹ️ %q is already on your watchlist.", term)
	}
	return fmt.Sprintf("✅ Watching %q. You'll get a DM when it's in stock.", term)
}

func (a *App) cmdUnwatch(msg transport.Message, arg string) string {
	if arg == "" {
		return "Usage: /unwatch <item name>"
	}
	sub := subscriberID(msg)
	removed, err := a.reg.Remove(sub, arg)
	if err != nil {
		a.log.Error("watchlist remove failed", logx.String("subscriber", sub), logx.Err(err))
		return "⚠️ Could not save your watchlist, try again."
	}
	term := garden.NormalizeTerm(arg)
	if !removed {
		return fmt.Sprintf("ℹ️ %q is not on your watchlist.", term)
	}
	return fmt.Sprintf("🗑️ Stopped watching %q.", term)
}

func (a *App) cmdWatchlist(msg transport.Message) string {
	terms := a.reg.Terms(subscriberID(msg))
	if len(terms) == 0 {
		return "📋 Your watchlist is empty. Add items with /watch <item name>."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📋 Your watchlist (%d):\n", len(terms))
	for _, t := range terms {
		fmt.Fprintf(&b, "\n• %s", t)
	}
	return b.String()
}

func (a *App) cmdStats() string {
	stats, err := a.st.Stats()
	if err != nil {
		a.log.Warn("stats read failed", logx.Err(err))
		return "⚠️ Could not read statistics."
	}
	c := a.snapshotCounters()
	state := a.mon.LastState()

	var b strings.Builder
	b.WriteString("📊 Bot statistics\n")
	fmt.Fprintf(&b, "\nUptime: %s\n", time.Since(a.startedAt).Round(time.Second))
	fmt.Fprintf(&b, "Subscribers: %d (%d watched items, %.1f avg)\n",
		stats.SubscriberCount, stats.TotalWatchedTerms, stats.AveragePerSubscriber)
	fmt.Fprintf(&b, "Cycles: %d ok, %d failed\n", c.CyclesCompleted, c.CyclesFailed)
	fmt.Fprintf(&b, "Notices: %d sent, %d failed, %d deduped, %d dropped\n",
		c.NoticesSent, c.NoticesFailed, c.NoticesDeduped, c.NoticesDropped)
	fmt.Fprintf(&b, "Last stock snapshot: %d entries\n", state.Stock.EntryCount())
	fmt.Fprintf(&b, "Last weather snapshot: %d entries", state.Weather.EntryCount())
	return b.String()
}

func (a *App) cmdExport(ctx context.Context, msg transport.Message, log logx.Logger) {
	doc, err := a.st.Export()
	if err != nil {
		log.Warn("export failed", logx.Err(err))
		_ = a.adapter.SendText(ctx, transport.ChatTarget{ChatID: msg.ChatID},
			"⚠️ Export failed, try again.", nil)
		return
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		log.Warn("export encode failed", logx.Err(err))
		return
	}
	err = a.adapter.SendDocument(ctx, transport.ChatTarget{ChatID: msg.ChatID}, transport.Document{
		FileName: "garden-export-" + time.Now().UTC().Format("2006-01-02") + ".json",
		Caption:  "Full data export (watchlists + monitoring state).",
		Content:  data,
	})
	if err != nil {
		log.Warn("export upload failed", logx.Err(err))
	}
}

// subscriberID keys watchlists by the Telegram user, which doubles as the
// DM chat ID for alert delivery.
func subscriberID(msg transport.Message) string {
	return strconv.FormatInt(msg.FromID, 10)
}

func displayEmoji(e garden.Entry) string {
	if e.Emoji != "" {
		return e.Emoji
	}
	return "📦"
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
