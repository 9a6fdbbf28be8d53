// Command recovery is the offline maintenance tool for the bot's data
// directory: inspect, export, import, back up, restore, and validate the
// persisted documents without running the bot.
//
// Usage:
//
//	recovery -data ./data stats
//	recovery -data ./data export [file]
//	recovery -data ./data import <file>
//	recovery -data ./data backups
//	recovery -data ./data restore <backup-name>
//	recovery -data ./data cleanup [-keep N]
//	recovery -data ./data validate
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"gardenbot/internal/store"
	"gardenbot/pkg/logx"
)

func main() {
	dataDir := flag.String("data", "./data", "path to the bot data directory")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	st, err := store.New(*dataDir, logx.NewConsole("warn"))
	if err != nil {
		fatal(err)
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "stats":
		err = runStats(st)
	case "export":
		err = runExport(st, rest)
	case "import":
		err = runImport(st, rest)
	case "backups":
		err = runBackups(st)
	case "restore":
		err = runRestore(st, rest)
	case "cleanup":
		err = runCleanup(st, rest)
	case "validate":
		err = runValidate(st)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		usage()
		os.Exit(2)
	}
	if err != nil {
		fatal(err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, strings.TrimSpace(`
Usage: recovery [-data DIR] <command> [args]

Commands:
  stats               show counts over the persisted state
  export [file]       write a full export bundle (default: stdout)
  import <file>       load an export bundle over the live documents
  backups             list backup artifacts, newest first
  restore <name>      restore one backup over its live document
  cleanup [-keep N]   delete old backups, keeping the N newest (default 10)
  validate            check the persisted documents for integrity
`))
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}

func runStats(st *store.Store) error {
	stats, err := st.Stats()
	if err != nil {
		return err
	}
	fmt.Printf("subscribers:        %d\n", stats.SubscriberCount)
	fmt.Printf("watched terms:      %d\n", stats.TotalWatchedTerms)
	fmt.Printf("avg per subscriber: %.2f\n", stats.AveragePerSubscriber)
	fmt.Printf("watchlists file:    %s\n", presence(stats.WatchlistsPresent))
	fmt.Printf("monitoring file:    %s\n", presence(stats.MonitoringPresent))
	return nil
}

func presence(ok bool) string {
	if ok {
		return "present"
	}
	return "missing"
}

func runExport(st *store.Store, args []string) error {
	doc, err := st.Export()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if len(args) == 0 {
		fmt.Println(string(data))
		return nil
	}
	if err := os.WriteFile(args[0], data, 0o644); err != nil {
		return err
	}
	fmt.Printf("exported to %s (%d bytes)\n", args[0], len(data))
	return nil
}

func runImport(st *store.Store, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("import: expected exactly one file argument")
	}
	b, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	var doc store.ExportDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		return fmt.Errorf("parse %s: %w", args[0], err)
	}
	if err := st.Import(doc); err != nil {
		return err
	}
	fmt.Printf("imported %s (%d watchlists)\n", args[0], len(doc.Watchlists))
	return nil
}

func runBackups(st *store.Store) error {
	backups, err := st.ListBackups()
	if err != nil {
		return err
	}
	if len(backups) == 0 {
		fmt.Println("no backups")
		return nil
	}
	for _, b := range backups {
		fmt.Printf("%s  %8d  %s\n", b.ModTime.Format(time.RFC3339), b.Size, b.Name)
	}
	return nil
}

func runRestore(st *store.Store, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("restore: expected exactly one backup name")
	}
	if err := st.Restore(args[0]); err != nil {
		return err
	}
	fmt.Printf("restored %s\n", args[0])
	return nil
}

func runCleanup(st *store.Store, args []string) error {
	fs := flag.NewFlagSet("cleanup", flag.ExitOnError)
	keep := fs.Int("keep", store.DefaultBackupKeep, "how many backups to keep")
	if err := fs.Parse(args); err != nil {
		return err
	}
	removed, err := st.PruneBackups(*keep)
	if err != nil {
		return err
	}
	fmt.Printf("removed %d backups, kept up to %d\n", removed, *keep)
	return nil
}

func runValidate(st *store.Store) error {
	rep, err := st.Validate()
	if err != nil {
		return err
	}
	fmt.Printf("subscribers:   %d\n", rep.Subscribers)
	fmt.Printf("watched terms: %d\n", rep.WatchedTerms)
	fmt.Printf("monitoring:    %s\n", validity(rep.MonitoringValid))
	if len(rep.InvalidEntries) > 0 {
		fmt.Println("invalid entries:")
		for _, e := range rep.InvalidEntries {
			fmt.Printf("  - %s\n", e)
		}
		return fmt.Errorf("validation found %d problems", len(rep.InvalidEntries))
	}
	fmt.Println("all checks passed")
	return nil
}

func validity(ok bool) string {
	if ok {
		return "valid"
	}
	return "INVALID"
}
