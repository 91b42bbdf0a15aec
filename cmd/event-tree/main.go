// Command event-tree prints the event log of a coach state database as a
// tree rooted at a process.started event.
package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"time"

	"github.com/stupiduntilnot/interviewcoach/internal/db"
)

// Node is an event with its children attached.
type Node struct {
	db.Event
	Children []*Node
}

type options struct {
	dbPath       string
	eventID      int64
	role         string
	conversation string
	maxDepth     int
	jsonOut      bool
	noPayload    bool
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		log.Fatalf("[event-tree] %v", err)
	}
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("event-tree", flag.ContinueOnError)
	fs.StringVar(&o.dbPath, "db", envOrDefault("COACH_DB_PATH", "./coach.db"), "SQLite database path")
	fs.Int64Var(&o.eventID, "id", 0, "show subtree of a specific event ID")
	fs.StringVar(&o.role, "role", "server", "process role whose latest start is the default root")
	fs.StringVar(&o.conversation, "conversation", "", "list the events of one conversation instead of a tree")
	fs.IntVar(&o.maxDepth, "L", 0, "limit display depth (0 = unlimited)")
	fs.BoolVar(&o.jsonOut, "json", false, "output JSON format")
	fs.BoolVar(&o.noPayload, "no-payload", false, "hide payload details")
	err := fs.Parse(args)
	return o, err
}

func run(args []string, out io.Writer) error {
	o, err := parseFlags(args)
	if err != nil {
		return err
	}

	database, err := sql.Open("sqlite3", o.dbPath+"?mode=ro&_journal_mode=WAL")
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer database.Close()
	if err := database.Ping(); err != nil {
		return fmt.Errorf("ping db: %w", err)
	}

	if o.conversation != "" {
		events, err := db.ListEvents(database, o.conversation)
		if err != nil {
			return fmt.Errorf("list conversation events: %w", err)
		}
		if len(events) == 0 {
			return fmt.Errorf("no events for conversation %s", o.conversation)
		}
		for i := range events {
			fmt.Fprintln(out, formatEvent(&events[i], o.noPayload))
		}
		return nil
	}

	rootID := o.eventID
	if rootID == 0 {
		rootID, err = db.LatestProcessRoot(database, o.role)
		if err != nil {
			return fmt.Errorf("find %s root: %w", o.role, err)
		}
	}

	events, err := querySubtree(database, rootID)
	if err != nil {
		return fmt.Errorf("query subtree: %w", err)
	}
	root := buildTree(events, rootID)
	if root == nil {
		return errors.New("root event not found")
	}

	if o.jsonOut {
		return printJSON(out, root, o.maxDepth, o.noPayload)
	}
	printTree(out, root, "", true, 1, o.maxDepth, o.noPayload)
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// querySubtree returns all events in the subtree rooted at rootID using a recursive CTE.
func querySubtree(database *sql.DB, rootID int64) ([]*Node, error) {
	rows, err := database.Query(`
		WITH RECURSIVE subtree(id) AS (
			SELECT id FROM events WHERE id = ?
			UNION ALL
			SELECT e.id FROM events e JOIN subtree s ON e.parent_id = s.id
		)
		SELECT e.id, e.timestamp, e.parent_id, e.event_type, e.payload
		FROM events e
		WHERE e.id IN (SELECT id FROM subtree)
		ORDER BY e.id ASC
	`, rootID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nodes []*Node
	for rows.Next() {
		n := &Node{}
		if err := rows.Scan(&n.ID, &n.Timestamp, &n.ParentID, &n.EventType, &n.Payload); err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

func buildTree(nodes []*Node, rootID int64) *Node {
	byID := make(map[int64]*Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}
	for _, n := range nodes {
		if n.ParentID.Valid && n.ParentID.Int64 != n.ID {
			if parent, ok := byID[n.ParentID.Int64]; ok {
				parent.Children = append(parent.Children, n)
			}
		}
	}
	for _, n := range nodes {
		sort.Slice(n.Children, func(i, j int) bool {
			return n.Children[i].ID < n.Children[j].ID
		})
	}
	return byID[rootID]
}

func printTree(out io.Writer, n *Node, prefix string, isLast bool, depth, maxDepth int, noPayload bool) {
	connector := "├── "
	if isLast {
		connector = "└── "
	}
	line := formatEvent(&n.Event, noPayload)
	if depth == 1 {
		fmt.Fprintln(out, line)
	} else {
		fmt.Fprintln(out, prefix+connector+line)
	}

	childPrefix := prefix
	if depth > 1 {
		if isLast {
			childPrefix += "    "
		} else {
			childPrefix += "│   "
		}
	}
	if maxDepth > 0 && depth >= maxDepth {
		if len(n.Children) > 0 {
			fmt.Fprintln(out, childPrefix+"└── [...]")
		}
		return
	}
	for i, child := range n.Children {
		printTree(out, child, childPrefix, i == len(n.Children)-1, depth+1, maxDepth, noPayload)
	}
}

// formatEvent formats a single event line: [id] timestamp  event_type  key=value ...
func formatEvent(ev *db.Event, noPayload bool) string {
	ts := time.Unix(ev.Timestamp, 0).UTC().Format("2006-01-02 15:04:05")
	line := fmt.Sprintf("[%d] %s  %s", ev.ID, ts, ev.EventType)

	if m := payloadMap(ev, noPayload); m != nil {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			line += fmt.Sprintf("  %s=%s", k, formatValue(m[k]))
		}
	}
	return line
}

func payloadMap(ev *db.Event, noPayload bool) map[string]any {
	if noPayload || !ev.Payload.Valid || ev.Payload.String == "" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(ev.Payload.String), &m); err != nil {
		return nil
	}
	return m
}

// formatValue converts a payload value to a display string, truncating long text.
func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		if r := []rune(val); len(r) > 80 {
			return fmt.Sprintf("%q", string(r[:80])+"...")
		}
		return val
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

type jsonEvent struct {
	ID        int64       `json:"id"`
	Timestamp int64       `json:"timestamp"`
	EventType string      `json:"event_type"`
	Payload   any         `json:"payload,omitempty"`
	Children  []jsonEvent `json:"children,omitempty"`
}

func toJSONEvent(n *Node, depth, maxDepth int, noPayload bool) jsonEvent {
	je := jsonEvent{ID: n.ID, Timestamp: n.Timestamp, EventType: n.EventType}
	if m := payloadMap(&n.Event, noPayload); m != nil {
		je.Payload = m
	}
	if maxDepth > 0 && depth >= maxDepth {
		return je
	}
	for _, child := range n.Children {
		je.Children = append(je.Children, toJSONEvent(child, depth+1, maxDepth, noPayload))
	}
	return je
}

func printJSON(out io.Writer, root *Node, maxDepth int, noPayload bool) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(toJSONEvent(root, 1, maxDepth, noPayload)); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}
