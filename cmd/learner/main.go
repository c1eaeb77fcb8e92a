package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/danielpatrickdp/association-learning/go-learner/internal/judgment"
	"github.com/danielpatrickdp/association-learning/go-learner/internal/manager"
)

// #region main
func main() {
	dbPath := envOr("LEARN_DB", "associations.db")
	judgmentAddr := os.Getenv("JUDGMENT_ADDR")

	var assessor judgment.Assessor
	if judgmentAddr != "" {
		client, err := judgment.NewClient(judgmentAddr)
		if err != nil {
			log.Fatalf("failed to connect to judgment service at %s: %v", judgmentAddr, err)
		}
		defer client.Close()
		assessor = client
	}

	mgr, err := manager.NewManager(dbPath, manager.DefaultConfig(), assessor)
	if err != nil {
		log.Fatalf("failed to open learning manager: %v", err)
	}
	defer mgr.Close()

	fmt.Println("Association Learner ready.")
	if judgmentAddr != "" {
		fmt.Printf("  DB: %s | Judgment: %s\n", dbPath, judgmentAddr)
	} else {
		fmt.Printf("  DB: %s | Judgment: permissive (no service)\n", dbPath)
	}
	fmt.Println("Paste one JSON observation per line ('report' for health, 'quit' to exit):")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}
		if line == "report" {
			printReport(mgr)
			continue
		}

		var obs manager.Observation
		if err := json.Unmarshal([]byte(line), &obs); err != nil {
			log.Printf("parse observation: %v", err)
			continue
		}
		if obs.Timestamp.IsZero() {
			obs.Timestamp = time.Now().UTC()
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		summary := mgr.ProcessConversationTurn(ctx, obs)
		cancel()

		if summary.Skipped {
			fmt.Printf("[%s] skipped: %s\n", summary.TurnID, summary.SkipReason)
			continue
		}
		fmt.Printf("[%s] written=%d skipped=%d promotions=%d invalid=%d elapsed=%dms\n",
			summary.TurnID, summary.LearnersWritten, summary.LearnersSkipped,
			summary.Promotions, summary.InvalidInputs, summary.Budget.ElapsedMs)
	}

	printReport(mgr)
}

// #endregion main

// #region report

func printReport(mgr *manager.Manager) {
	report, err := mgr.GetHealthSummary()
	if err != nil {
		log.Printf("health summary: %v", err)
		return
	}
	fmt.Printf("\nLearning report (%s)\n", report.GeneratedAt.Format(time.RFC3339))
	fmt.Printf("  turns: %d processed, %d skipped\n", report.TurnsProcessed, report.TurnsSkipped)
	fmt.Printf("  records: %d staging, %d permanent, %d expired (promotion rate %.3f)\n",
		report.StagingCount, report.PermanentCount, report.ExpiredCount, report.PromotionRate)
	for _, p := range report.RecentPromotions {
		fmt.Printf("  promoted: %s %s strength=%.3f at %s\n",
			p.Namespace, p.Key, p.Strength, p.PromotedAt.Format(time.RFC3339))
	}
	for _, w := range report.Warnings {
		fmt.Printf("  warning: %s\n", w)
	}
	fmt.Println()
}

// #endregion report

// #region helpers
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion helpers
