// ABOUTME: Admin CLI for parley-gateway conversation and dashboard inspection
// ABOUTME: Talks to the gateway HTTP API and websocket rooms

package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/coder/websocket"
	"github.com/fatih/color"

	"github.com/2389/parley/internal/store"
)

const banner = `
                 _                            _           _
 _ __   __ _ _ _| | ___ _   _        __ _  __| |_ __ ___ (_)_ __
| '_ \ / _' | '_| |/ _ \ | | |_____ / _' |/ _' | '_ ' _ \| | '_ \
| |_) | (_| | | | |  __/ |_| |_____| (_| | (_| | | | | | | | | | |
| .__/ \__,_|_| |_|\___|\__, |      \__,_|\__,_|_| |_| |_|_|_| |_|
|_|                     |___/
`

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	baseURL := os.Getenv("PARLEY_GATEWAY_URL")
	if baseURL == "" {
		if host := os.Getenv("PARLEY_GATEWAY_HOST"); host != "" {
			baseURL = "http://" + host
		} else {
			baseURL = "http://localhost:8080"
		}
	}
	baseURL = strings.TrimRight(baseURL, "/")

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "status":
		err = cmdStatus(baseURL)
	case "stats":
		err = cmdStats(baseURL)
	case "conversations":
		err = cmdConversations(baseURL, args)
	case "messages":
		err = cmdMessages(baseURL, args)
	case "send":
		err = cmdSend(baseURL, args)
	case "transcript":
		err = cmdTranscript(baseURL, args)
	case "watch":
		err = cmdWatch(baseURL, args)
	case "chat":
		err = cmdChat(baseURL, args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: parley-admin <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  status                     Show gateway health")
	fmt.Println("  stats                      Show dashboard statistics")
	fmt.Println("  conversations              List conversations")
	fmt.Println("  conversations show <id>    Show one conversation with participants")
	fmt.Println("  conversations close <id>   Deactivate a conversation")
	fmt.Println("  conversations open <id>    Reactivate a conversation")
	fmt.Println("  messages <conv-id>         List messages (--viewer, --kind, --user)")
	fmt.Println("  send <conv-id> <text>      Post a message (--from, --to, --author)")
	fmt.Println("  transcript <conv-id>       Fetch the HTML transcript (--out <file>)")
	fmt.Println("  watch [conv-id]            Stream dashboard or conversation events")
	fmt.Println("  chat <conv-id> <author>    Interactive chat addressed to the robot")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  PARLEY_GATEWAY_URL    Gateway base URL (default: http://localhost:8080)")
	fmt.Println("  PARLEY_GATEWAY_HOST   Gateway hostname (derives http:// URL)")
	fmt.Println()
	yellow.Println("Examples:")
	fmt.Println("  parley-admin stats")
	fmt.Println("  parley-admin messages support-1042 --viewer customer")
	fmt.Println("  parley-admin send support-1042 'Where is my order?' --from customer --to robot --author cust-7")
	fmt.Println("  parley-admin watch support-1042")
	fmt.Println()
}

var httpClient = &http.Client{Timeout: 15 * time.Second}

// getJSON fetches a URL and decodes the JSON body into out.
func getJSON(baseURL, path string, out any) error {
	resp, err := httpClient.Get(baseURL + path)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()
	return decodeResponse(path, resp, out)
}

// postJSON posts a JSON body and decodes the JSON response into out (which may be nil).
func postJSON(baseURL, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	resp, err := httpClient.Post(baseURL+path, "application/json", bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()
	return decodeResponse(path, resp, out)
}

func decodeResponse(path string, resp *http.Response, out any) error {
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s: %s (status %d)", path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s: status %d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

// cmdStatus checks gateway health
func cmdStatus(baseURL string) error {
	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()

	var health struct {
		Status      string `json:"status"`
		Connections int64  `json:"connections"`
	}
	if err := getJSON(baseURL, "/healthz", &health); err != nil {
		yellow.Printf("  Gateway:  ")
		color.Red("UNREACHABLE (%v)\n", err)
		return nil
	}

	green.Printf("  Gateway:      ")
	fmt.Printf("%s (%s)\n", health.Status, baseURL)
	green.Printf("  Connections:  ")
	fmt.Printf("%d\n", health.Connections)
	fmt.Println()

	return nil
}

// cmdStats shows dashboard statistics
func cmdStats(baseURL string) error {
	var stats store.DashboardStats
	if err := getJSON(baseURL, "/api/stats", &stats); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Dashboard")
	cyan.Println("  ---------")
	fmt.Printf("  Active conversations:  %d\n", stats.ActiveConversations)
	fmt.Printf("  Queued conversations:  %d\n", stats.QueuedConversations)
	fmt.Printf("  Total messages:        %d\n", stats.TotalMessages)
	fmt.Printf("  Active users:          %d\n", stats.ActiveUsers)
	fmt.Println()

	return nil
}

// cmdConversations handles conversation subcommands
func cmdConversations(baseURL string, args []string) error {
	subcmd := "list"
	if len(args) > 0 {
		subcmd = args[0]
		args = args[1:]
	}

	switch subcmd {
	case "list", "ls":
		return cmdConversationsList(baseURL)
	case "show", "get":
		if len(args) < 1 {
			return fmt.Errorf("usage: conversations show <conversation-id>")
		}
		return cmdConversationsShow(baseURL, args[0])
	case "close":
		if len(args) < 1 {
			return fmt.Errorf("usage: conversations close <conversation-id>")
		}
		return cmdConversationsSetActive(baseURL, args[0], false)
	case "open":
		if len(args) < 1 {
			return fmt.Errorf("usage: conversations open <conversation-id>")
		}
		return cmdConversationsSetActive(baseURL, args[0], true)
	default:
		return fmt.Errorf("unknown conversations subcommand: %s (use list, show, close, open)", subcmd)
	}
}

func cmdConversationsList(baseURL string) error {
	var convs []*store.Conversation
	if err := getJSON(baseURL, "/api/conversations", &convs); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Conversations")
	cyan.Println("  -------------")

	if len(convs) == 0 {
		fmt.Println("  (no conversations)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tACTIVE\tPARTICIPANTS\tMESSAGES\tLAST MESSAGE")
	fmt.Fprintln(w, "  --\t------\t------------\t--------\t------------")

	for _, c := range convs {
		id := truncate(c.ID, 24)
		active := "yes"
		if !c.IsActive {
			active = "no"
		}
		last := ""
		if !c.LastMessageAt.IsZero() {
			last = c.LastMessageAt.Format("Jan 02 15:04")
		}
		fmt.Fprintf(w, "  %s\t%s\t%d\t%d\t%s\n", id, active, len(c.ParticipantIDs), c.MessageCount, last)
	}
	w.Flush()
	fmt.Println()

	return nil
}

func cmdConversationsShow(baseURL, id string) error {
	var conv store.Conversation
	if err := getJSON(baseURL, "/api/conversations/"+id, &conv); err != nil {
		return err
	}
	var participants []*store.Participant
	if err := getJSON(baseURL, "/api/conversations/"+id+"/participants", &participants); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)

	fmt.Println()
	cyan.Println("  Conversation")
	cyan.Println("  ------------")
	fmt.Printf("  ID:            %s\n", conv.ID)
	if conv.IsActive {
		green.Println("  Status:        active")
	} else {
		fmt.Println("  Status:        closed")
	}
	fmt.Printf("  Messages:      %d\n", conv.MessageCount)
	fmt.Printf("  Created:       %s\n", conv.CreatedAt.Format(time.RFC3339))
	if !conv.LastMessageAt.IsZero() {
		fmt.Printf("  Last message:  %s\n", conv.LastMessageAt.Format(time.RFC3339))
	}

	fmt.Println()
	cyan.Println("  Participants")
	cyan.Println("  ------------")
	if len(participants) == 0 {
		fmt.Println("  (none)")
	} else {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  USER\tROLE\tJOINED")
		fmt.Fprintln(w, "  ----\t----\t------")
		for _, p := range participants {
			fmt.Fprintf(w, "  %s\t%s\t%s\n", p.UserID, p.Role, p.JoinedAt.Format("Jan 02 15:04"))
		}
		w.Flush()
	}
	fmt.Println()

	return nil
}

func cmdConversationsSetActive(baseURL, id string, active bool) error {
	body := map[string]bool{"active": active}
	if err := postJSON(baseURL, "/api/conversations/"+id+"/active", body, nil); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	if active {
		green.Printf("✓ Reopened conversation: %s\n", id)
	} else {
		green.Printf("✓ Closed conversation: %s\n", id)
	}
	return nil
}

// cmdMessages lists messages in a conversation
func cmdMessages(baseURL string, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: messages <conversation-id> [--viewer <role>] [--kind <kind>] [--user <id>]")
	}
	convID := args[0]
	args = args[1:]

	var viewer, kind, user string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--viewer", "-v":
			if i+1 < len(args) {
				viewer = args[i+1]
				i++
			}
		case "--kind", "-k":
			if i+1 < len(args) {
				kind = args[i+1]
				i++
			}
		case "--user", "-u":
			if i+1 < len(args) {
				user = args[i+1]
				i++
			}
		}
	}

	path := "/api/conversations/" + convID + "/messages"
	query := []string{}
	if viewer != "" {
		query = append(query, "viewer="+viewer)
	}
	if kind != "" {
		query = append(query, "kind="+kind)
	}
	if user != "" {
		query = append(query, "user="+user)
	}
	if len(query) > 0 {
		path += "?" + strings.Join(query, "&")
	}

	var msgs []*store.Message
	if err := getJSON(baseURL, path, &msgs); err != nil {
		return err
	}

	if len(msgs) == 0 {
		fmt.Println("(no messages)")
		return nil
	}

	for _, m := range msgs {
		printMessage(m)
	}
	return nil
}

// printMessage renders one message for terminal output
func printMessage(m *store.Message) {
	gray := color.New(color.FgHiBlack)
	roleColor := color.New(color.FgCyan)
	switch m.FromRole {
	case store.RoleCustomer:
		roleColor = color.New(color.FgGreen)
	case store.RoleRobot:
		roleColor = color.New(color.FgMagenta)
	case store.RoleSystemDebug:
		roleColor = color.New(color.FgYellow)
	}

	author := m.Author()
	if author == "" {
		author = "(system)"
	}

	gray.Printf("%s ", m.CreatedAt.Format("15:04:05"))
	roleColor.Printf("%s", author)
	gray.Printf(" [%s→%s] ", m.FromRole, m.ToRole)
	if m.Content.Text != "" {
		fmt.Println(m.Content.Text)
	} else if m.Content.Data != nil {
		raw, _ := json.Marshal(m.Content.Data)
		fmt.Println(string(raw))
	} else {
		fmt.Println()
	}
}

// cmdSend posts one message
func cmdSend(baseURL string, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: send <conversation-id> <text> [--from <role>] [--to <role>] [--author <id>]")
	}
	convID := args[0]
	text := args[1]
	args = args[2:]

	from := "agent"
	to := "customer"
	author := "parley-admin"
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--from", "-f":
			if i+1 < len(args) {
				from = args[i+1]
				i++
			}
		case "--to", "-t":
			if i+1 < len(args) {
				to = args[i+1]
				i++
			}
		case "--author", "-a":
			if i+1 < len(args) {
				author = args[i+1]
				i++
			}
		}
	}

	var msg store.Message
	body := map[string]any{
		"conversation_id": convID,
		"author_id":       author,
		"from_role":       from,
		"to_role":         to,
		"text":            text,
	}
	if err := postJSON(baseURL, "/api/messages", body, &msg); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ Sent message: %s\n", msg.ID)
	return nil
}

// cmdTranscript fetches the rendered HTML transcript
func cmdTranscript(baseURL string, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: transcript <conversation-id> [--out <file>]")
	}
	convID := args[0]
	args = args[1:]

	var outFile string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--out", "-o":
			if i+1 < len(args) {
				outFile = args[i+1]
				i++
			}
		}
	}

	resp, err := httpClient.Get(baseURL + "/api/conversations/" + convID + "/transcript")
	if err != nil {
		return fmt.Errorf("fetching transcript: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("transcript: status %d", resp.StatusCode)
	}

	if outFile == "" {
		_, err = io.Copy(os.Stdout, resp.Body)
		return err
	}

	f, err := os.Create(outFile)
	if err != nil {
		return fmt.Errorf("creating %s: %w", outFile, err)
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		return fmt.Errorf("writing %s: %w", outFile, err)
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ Transcript written to %s\n", outFile)
	return nil
}

// eventEnvelope mirrors the websocket wire shape pushed by the gateway
type eventEnvelope struct {
	Event   string `json:"event"`
	Payload struct {
		ConversationID string              `json:"conversation_id"`
		Message        *store.Message      `json:"message"`
		Conversation   *store.Conversation `json:"conversation"`
		Participant    *store.Participant  `json:"participant"`
	} `json:"payload"`
}

// wsURL derives the websocket endpoint from the HTTP base URL
func wsURL(baseURL, room string) string {
	u := strings.Replace(baseURL, "http://", "ws://", 1)
	u = strings.Replace(u, "https://", "wss://", 1)
	return u + "/ws?room=" + room
}

// cmdWatch streams events from the dashboard or a conversation room
func cmdWatch(baseURL string, args []string) error {
	room := "dashboard"
	if len(args) > 0 {
		room = "conversation:" + args[0]
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(baseURL, room), nil)
	if err != nil {
		return fmt.Errorf("connecting to %s room: %w", room, err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	cyan := color.New(color.FgCyan)
	cyan.Printf("Watching %s (Ctrl+C to exit)\n\n", room)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				fmt.Println()
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		var env eventEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			fmt.Fprintf(os.Stderr, "bad event: %v\n", err)
			continue
		}
		printEvent(&env)
	}
}

// printEvent renders one pushed event
func printEvent(env *eventEnvelope) {
	gray := color.New(color.FgHiBlack)
	yellow := color.New(color.FgYellow)

	switch {
	case env.Payload.Message != nil:
		printMessage(env.Payload.Message)
	case env.Payload.Conversation != nil:
		yellow.Printf("[%s] ", env.Event)
		fmt.Printf("conversation %s\n", env.Payload.Conversation.ID)
	case env.Payload.Participant != nil:
		yellow.Printf("[%s] ", env.Event)
		fmt.Printf("%s (%s) in %s\n",
			env.Payload.Participant.UserID, env.Payload.Participant.Role, env.Payload.ConversationID)
	default:
		yellow.Printf("[%s] ", env.Event)
		gray.Println(env.Payload.ConversationID)
	}
}

// cmdChat runs an interactive loop posting customer messages to the robot
// and streaming the conversation room
func cmdChat(baseURL string, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: chat <conversation-id> <author-id>")
	}
	convID := args[0]
	author := args[1]

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Ensure the conversation exists before dialing its room
	body := map[string]string{"id": convID, "creator_id": author, "role": "customer"}
	if err := postJSON(baseURL, "/api/conversations", body, nil); err != nil {
		return err
	}

	conn, _, err := websocket.Dial(ctx, wsURL(baseURL, "conversation:"+convID), nil)
	if err != nil {
		return fmt.Errorf("connecting to conversation room: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Print every message pushed to the room, including robot replies
	go func() {
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var env eventEnvelope
			if err := json.Unmarshal(data, &env); err != nil {
				continue
			}
			if env.Payload.Message != nil && env.Payload.Message.Author() != author {
				fmt.Println()
				printMessage(env.Payload.Message)
				color.New(color.FgGreen).Print("> ")
			}
		}
	}()

	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	cyan.Printf("Chatting in %s as %s (Ctrl+D to exit)\n\n", convID, author)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), 1024*1024) // 1MB max input
	for {
		green.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		msg := map[string]any{
			"conversation_id": convID,
			"author_id":       author,
			"from_role":       "customer",
			"to_role":         "robot",
			"text":            line,
		}
		if err := postJSON(baseURL, "/api/messages", msg, nil); err != nil {
			fmt.Fprintf(os.Stderr, "Error sending: %v\n", err)
			continue
		}
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
