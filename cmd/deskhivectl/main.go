package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/deskhive-io/deskhive/internal/config"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	switch os.Args[1] {
	case "health":
		cmdHealth()
	case "queue":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: deskhivectl queue <list|show|context>")
			os.Exit(1)
		}
		switch os.Args[2] {
		case "list":
			cmdQueueList(os.Args[3:])
		case "show":
			if len(os.Args) < 4 {
				fmt.Fprintln(os.Stderr, "usage: deskhivectl queue show <ticket-id>")
				os.Exit(1)
			}
			cmdQueueShow(os.Args[3])
		case "context":
			if len(os.Args) < 4 {
				fmt.Fprintln(os.Stderr, "usage: deskhivectl queue context <ticket-id>")
				os.Exit(1)
			}
			cmdQueueContext(os.Args[3])
		default:
			fmt.Fprintf(os.Stderr, "unknown queue subcommand: %s\n", os.Args[2])
			os.Exit(1)
		}
	case "confirm":
		cmdConfirm(os.Args[2:])
	case "cancel":
		cmdCancel(os.Args[2:])
	case "status":
		cmdStatus(os.Args[2:])
	case "poll":
		cmdPoll()
	case "poller":
		cmdPoller(os.Args[2:])
	case "logs":
		cmdLogs(os.Args[2:])
	case "config":
		if len(os.Args) < 4 || os.Args[2] != "validate" {
			fmt.Fprintln(os.Stderr, "usage: deskhivectl config validate <path>")
			os.Exit(1)
		}
		cmdConfigValidate(os.Args[3])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// --- Commands ---

func cmdHealth() {
	body, err := apiGet("/api/health")
	if err != nil {
		fatal(err)
	}
	fmt.Println(string(body))
}

func cmdQueueList(args []string) {
	fs := pflag.NewFlagSet("queue list", pflag.ExitOnError)
	status := fs.String("status", "", "Filter by processing status (ready|needs_input|working|pending|error|paused|done)")
	byPriority := fs.Bool("priority", false, "Sort by attention priority")
	fs.Parse(args)

	query := ""
	if *status != "" {
		query = "?status=" + *status
	}
	if *byPriority {
		if query == "" {
			query = "?sort=priority"
		} else {
			query += "&sort=priority"
		}
	}

	body, err := apiGet("/api/queue" + query)
	if err != nil {
		fatal(err)
	}
	var items []struct {
		Ticket struct {
			ID      int64  `json:"id"`
			Number  int64  `json:"number"`
			Subject string `json:"subject"`
		} `json:"ticket"`
		Status         string `json:"status"`
		PendingActions []any  `json:"pending_actions"`
	}
	json.Unmarshal(body, &items)
	for _, it := range items {
		pending := ""
		if n := len(it.PendingActions); n > 0 {
			pending = fmt.Sprintf("  [%d pending]", n)
		}
		fmt.Printf("%-8d #%-6d %-12s %s%s\n", it.Ticket.ID, it.Ticket.Number, it.Status, it.Ticket.Subject, pending)
	}
}

func cmdQueueShow(id string) {
	body, err := apiGet("/api/queue/" + id)
	if err != nil {
		fatal(err)
	}
	fmt.Println(prettyJSON(body))
}

func cmdQueueContext(id string) {
	body, err := apiGet("/api/queue/" + id + "/context")
	if err != nil {
		fatal(err)
	}
	var resp struct {
		Text string `json:"text"`
	}
	json.Unmarshal(body, &resp)
	fmt.Println(resp.Text)
}

func cmdConfirm(args []string) {
	fs := pflag.NewFlagSet("confirm", pflag.ExitOnError)
	actionID := fs.String("action", "", "Confirm a single action by id (default: all pending)")
	fs.Parse(args)
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: deskhivectl confirm <ticket-id> [--action <action-id>]")
		os.Exit(1)
	}
	ticketID := fs.Arg(0)

	var body []byte
	var err error
	if *actionID != "" {
		body, err = apiPost("/api/queue/"+ticketID+"/actions/"+*actionID+"/confirm", nil)
	} else {
		body, err = apiPost("/api/queue/"+ticketID+"/confirm", nil)
	}
	if err != nil {
		fatal(err)
	}
	fmt.Println(prettyJSON(body))
}

func cmdCancel(args []string) {
	fs := pflag.NewFlagSet("cancel", pflag.ExitOnError)
	actionID := fs.String("action", "", "Cancel a single action by id (default: all pending)")
	fs.Parse(args)
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: deskhivectl cancel <ticket-id> [--action <action-id>]")
		os.Exit(1)
	}
	ticketID := fs.Arg(0)

	var body []byte
	var err error
	if *actionID != "" {
		body, err = apiDelete("/api/queue/" + ticketID + "/actions/" + *actionID)
	} else {
		body, err = apiPost("/api/queue/"+ticketID+"/cancel", nil)
	}
	if err != nil {
		fatal(err)
	}
	fmt.Println(prettyJSON(body))
}

func cmdStatus(args []string) {
	fs := pflag.NewFlagSet("status", pflag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() < 2 {
		fmt.Fprintln(os.Stderr, "usage: deskhivectl status <ticket-id> <status>")
		os.Exit(1)
	}
	body, err := apiPost("/api/queue/"+fs.Arg(0)+"/status", map[string]string{"status": fs.Arg(1)})
	if err != nil {
		fatal(err)
	}
	fmt.Println(prettyJSON(body))
}

func cmdPoll() {
	body, err := apiPost("/api/poll", nil)
	if err != nil {
		fatal(err)
	}
	fmt.Println(prettyJSON(body))
}

func cmdPoller(args []string) {
	fs := pflag.NewFlagSet("poller", pflag.ExitOnError)
	interval := fs.Int("interval", 0, "Set poll interval in seconds")
	auto := fs.String("auto-process", "", "Enable or disable auto-process (true|false)")
	fs.Parse(args)

	if *interval == 0 && *auto == "" {
		body, err := apiGet("/api/poller/config")
		if err != nil {
			fatal(err)
		}
		fmt.Println(prettyJSON(body))
		return
	}

	req := map[string]any{}
	if *interval > 0 {
		req["interval_seconds"] = *interval
	}
	if *auto != "" {
		req["auto_process"] = *auto == "true"
	}
	body, err := apiPost("/api/poller/config", req)
	if err != nil {
		fatal(err)
	}
	fmt.Println(prettyJSON(body))
}

func cmdLogs(args []string) {
	fs := pflag.NewFlagSet("logs", pflag.ExitOnError)
	level := fs.String("level", "", "Minimum level (debug|info|warn|error)")
	limit := fs.Int("limit", 100, "Max entries")
	fs.Parse(args)

	query := fmt.Sprintf("?limit=%d", *limit)
	if *level != "" {
		query += "&level=" + *level
	}
	body, err := apiGet("/api/logs" + query)
	if err != nil {
		fatal(err)
	}
	var entries []struct {
		Time    time.Time `json:"time"`
		Level   string    `json:"level"`
		Message string    `json:"message"`
	}
	json.Unmarshal(body, &entries)
	for _, e := range entries {
		fmt.Printf("%s %-5s %s\n", e.Time.Format(time.RFC3339), e.Level, e.Message)
	}
}

func cmdConfigValidate(path string) {
	_, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("config is valid")
}

// --- Helpers ---

func apiGet(path string) ([]byte, error) {
	return apiDo(http.MethodGet, path, nil)
}

func apiPost(path string, payload any) ([]byte, error) {
	return apiDo(http.MethodPost, path, payload)
}

func apiDelete(path string) ([]byte, error) {
	return apiDo(http.MethodDelete, path, nil)
}

func apiDo(method, path string, payload any) ([]byte, error) {
	base := envOr("DESKHIVE_API_URL", "http://localhost:8420")

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, base+path, reqBody)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key := os.Getenv("DESKHIVE_API_KEY"); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

func prettyJSON(data []byte) string {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return string(data)
	}
	out, _ := json.MarshalIndent(v, "", "  ")
	return string(out)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func printUsage() {
	fmt.Println("deskhivectl — deskhive management CLI")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  health                    Check daemon health")
	fmt.Println("  queue list                List queue items (--status, --priority)")
	fmt.Println("  queue show <id>           Show a queue item")
	fmt.Println("  queue context <id>        Print the ticket's customer text")
	fmt.Println("  confirm <id>              Confirm pending actions (--action for one)")
	fmt.Println("  cancel <id>               Cancel pending actions (--action for one)")
	fmt.Println("  status <id> <status>      Set a ticket's processing status")
	fmt.Println("  poll                      Trigger an immediate poll")
	fmt.Println("  poller                    Show or update poller config (--interval, --auto-process)")
	fmt.Println("  logs                      Tail recent daemon logs (--level, --limit)")
	fmt.Println("  config validate <path>    Validate a config file")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  DESKHIVE_API_URL   Daemon URL (default: http://localhost:8420)")
	fmt.Println("  DESKHIVE_API_KEY   API key for authentication")
}
