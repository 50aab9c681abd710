package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"ragqa/internal/client"
	"ragqa/internal/service"
	"ragqa/internal/tui"
)

func main() {
	_ = godotenv.Load()

	var (
		addr    string
		topK    int
		timeout time.Duration
		smoke   bool
	)
	flag.StringVar(&addr, "addr", envOr("RAGQA_URL", "http://localhost:5000"), "Base URL of the ragqa server")
	flag.IntVar(&topK, "top-k", 5, "Passages to retrieve per question")
	flag.DurationVar(&timeout, "timeout", 90*time.Second, "Per-request timeout")
	flag.BoolVar(&smoke, "smoke", false, "Run health, ask and retrieve once and exit")
	flag.Parse()

	c := client.New(addr, timeout)
	if smoke {
		os.Exit(runSmoke(c, topK))
	}

	if _, err := tea.NewProgram(tui.New(c, topK, timeout), tea.WithAltScreen()).Run(); err != nil {
		log.Fatal(err)
	}
}

func runSmoke(c *client.Client, topK int) int {
	ctx := context.Background()
	const question = "नेपालको राजधानी कहाँ हो?"
	failed := 0
	check := func(name string, err error, detail string) {
		if err != nil {
			failed++
			fmt.Printf("FAIL %-9s %v\n", name, err)
			return
		}
		fmt.Printf("ok   %-9s %s\n", name, detail)
	}

	h, err := c.Health(ctx)
	if err == nil && !h.ModelsLoaded && h.Policy != "lazy" {
		err = fmt.Errorf("models not loaded")
	}
	check("health", err, fmt.Sprintf("%d vectors, %d passages, policy=%s", h.IndexVectors, h.TextEntries, h.Policy))

	a, err := c.Ask(ctx, question, topK)
	if err == nil && strings.HasPrefix(a.Answer, service.ErrorMarker) {
		err = fmt.Errorf("generation failed: %s", a.Answer)
	}
	check("ask", err, fmt.Sprintf("%q (%d passages)", a.Answer, len(a.RetrievedIDs)))

	r, err := c.Retrieve(ctx, "नेपालको राजधानी", topK)
	check("retrieve", err, fmt.Sprintf("%d documents", r.Count))

	if failed > 0 {
		fmt.Printf("\n%d of 3 checks failed\n", failed)
		return 1
	}
	fmt.Println("\nall checks passed")
	return 0
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
