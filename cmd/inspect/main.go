package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/danielpatrickdp/association-learning/go-learner/internal/assoc"
	"github.com/danielpatrickdp/association-learning/go-learner/internal/logging"
	"github.com/danielpatrickdp/association-learning/go-learner/internal/store"
	_ "modernc.org/sqlite"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to associations.db")
	nsFlag := flag.String("namespace", "", "filter to one namespace (vocab|dimension|sequence)")
	statusFlag := flag.String("status", "", "filter to one status (staging|permanent|expired)")
	last := flag.Int("last", 20, "show N most recent learning-log events")
	events := flag.Bool("events", false, "show the learning log instead of associations")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/associations.db [--namespace ns] [--status s] [--events] [--last N] [--json]")
		os.Exit(2)
	}

	s, err := store.NewStore(*dbPath, store.DefaultConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer s.Close()

	if *events {
		err = runEventMode(s, *last, *jsonOut)
	} else {
		err = runRecordMode(s, *nsFlag, *statusFlag, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region record-mode

type recordRow struct {
	Namespace    string  `json:"namespace"`
	Key          string  `json:"key"`
	Strength     float64 `json:"strength"`
	Observations int     `json:"observations"`
	DistinctDays int     `json:"distinct_days"`
	Status       string  `json:"status"`
	FirstSeen    string  `json:"first_seen"`
	LastSeen     string  `json:"last_seen"`
}

func runRecordMode(s *store.Store, nsFilter, statusFilter string, jsonOut bool) error {
	namespaces := assoc.AllNamespaces()
	if nsFilter != "" {
		namespaces = []assoc.Namespace{assoc.Namespace(nsFilter)}
	}

	var rows []recordRow
	for _, ns := range namespaces {
		records, err := s.QueryNamespace(ns, func(r assoc.AssociationRecord) bool {
			return statusFilter == "" || string(r.Status) == statusFilter
		})
		if err != nil {
			return err
		}
		for _, r := range records {
			rows = append(rows, recordRow{
				Namespace:    string(r.Namespace),
				Key:          r.Key.String(),
				Strength:     r.Strength,
				Observations: r.ObservationCount,
				DistinctDays: r.DistinctDays,
				Status:       string(r.Status),
				FirstSeen:    r.FirstSeen.Format("2006-01-02T15:04:05Z"),
				LastSeen:     r.LastSeen.Format("2006-01-02T15:04:05Z"),
			})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Namespace != rows[j].Namespace {
			return rows[i].Namespace < rows[j].Namespace
		}
		if rows[i].Strength != rows[j].Strength {
			return rows[i].Strength > rows[j].Strength
		}
		return rows[i].Key < rows[j].Key
	})

	if jsonOut {
		return printJSON(rows)
	}
	if len(rows) == 0 {
		fmt.Fprintln(os.Stderr, "no associations found")
		return nil
	}

	fmt.Printf("%-10s  %-40s  %8s  %4s  %4s  %-9s  %s\n",
		"Namespace", "Key", "Strength", "Obs", "Days", "Status", "Last Seen")
	fmt.Printf("%-10s+-%-40s+-%8s+-%4s+-%4s+-%-9s+-%s\n",
		"----------", "----------------------------------------", "--------",
		"----", "----", "---------", "--------------------")
	for _, r := range rows {
		fmt.Printf("%-10s  %-40s  %8.4f  %4d  %4d  %-9s  %s\n",
			r.Namespace, shortKey(r.Key), r.Strength, r.Observations,
			r.DistinctDays, r.Status, r.LastSeen)
	}

	printCounts(s, namespaces)
	return nil
}

func printCounts(s *store.Store, namespaces []assoc.Namespace) {
	fmt.Printf("\nLifecycle counts:\n")
	for _, ns := range namespaces {
		counts, err := s.CountByStatus(ns)
		if err != nil {
			continue
		}
		fmt.Printf("  %-10s staging=%d permanent=%d expired=%d\n",
			ns, counts[assoc.StatusStaging], counts[assoc.StatusPermanent], counts[assoc.StatusExpired])
	}
}

// #endregion record-mode

// #region event-mode

func runEventMode(s *store.Store, last int, jsonOut bool) error {
	entries, err := logging.ListRecent(s.DB(), last)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(os.Stderr, "no learning-log events found")
		return nil
	}

	fmt.Printf("%-10s  %-40s  %8s  %-10s  %-9s  %s\n",
		"Namespace", "Key", "Delta", "Trigger", "Status", "Time")
	fmt.Printf("%-10s+-%-40s+-%8s+-%-10s+-%-9s+-%s\n",
		"----------", "----------------------------------------", "--------",
		"----------", "---------", "--------------------")
	for _, e := range entries {
		fmt.Printf("%-10s  %-40s  %+8.4f  %-10s  %-9s  %s\n",
			e.Namespace, shortKey(e.KeyA+"|"+e.KeyB), e.DeltaStrength,
			e.Trigger, e.NewStatus, e.CreatedAt.Format("2006-01-02T15:04:05Z"))
	}
	return nil
}

// #endregion event-mode

// #region output

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func shortKey(key string) string {
	if len(key) > 40 {
		return key[:37] + "..."
	}
	return key
}

// #endregion output
