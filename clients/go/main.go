// Command line client for the coaching-assistant chat API.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/agasthyaps/nisa-labs-sub000/clients/go/nisa"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	baseURL := os.Getenv("NISA_URL")
	client := nisa.NewClient(baseURL)
	ctx := context.Background()
	cmd := os.Args[1]

	switch cmd {
	case "health":
		resp, err := client.Health(ctx)
		exitOnError(err)
		printJSON(resp)

	case "register":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "Usage: nisa register <email> <password>")
			os.Exit(1)
		}
		sess, err := client.Register(ctx, os.Args[2], os.Args[3])
		exitOnError(err)
		fmt.Printf("Registered as: %s\n", sess.UserID)

	case "login":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "Usage: nisa login <email> <password>")
			os.Exit(1)
		}
		sess, err := client.Login(ctx, os.Args[2], os.Args[3])
		exitOnError(err)
		fmt.Printf("Logged in as: %s\n", sess.UserID)

	case "guest":
		sess, err := client.Guest(ctx)
		exitOnError(err)
		fmt.Printf("Guest session: %s\n", sess.UserID)

	case "chat":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: nisa chat <message> [chat_id]")
			os.Exit(1)
		}
		chatID := uuid.New()
		if len(os.Args) > 3 {
			parsed, err := uuid.Parse(os.Args[3])
			exitOnError(err)
			chatID = parsed
		}
		events, err := client.StartTurn(ctx, chatID, os.Args[2], nisa.TurnOptions{})
		exitOnError(err)
		fmt.Printf("chat: %s\n", chatID)
		printStream(events)

	case "resume":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: nisa resume <chat_id>")
			os.Exit(1)
		}
		chatID, err := uuid.Parse(os.Args[2])
		exitOnError(err)
		events, err := client.Resume(ctx, chatID)
		exitOnError(err)
		if events == nil {
			fmt.Println("nothing to replay")
			return
		}
		printStream(events)

	case "history":
		resp, err := client.History(ctx, 20, "")
		exitOnError(err)
		for _, ch := range resp.Chats {
			fmt.Printf("  %s  [%s] %s\n", ch.ID, ch.Visibility, ch.Title)
		}

	case "delete":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: nisa delete <chat_id>")
			os.Exit(1)
		}
		chatID, err := uuid.Parse(os.Args[2])
		exitOnError(err)
		exitOnError(client.DeleteChat(ctx, chatID))
		fmt.Println("deleted")

	case "help", "--help", "-h":
		usage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

func printStream(events <-chan nisa.Event) {
	for ev := range events {
		switch ev.Type {
		case "text-delta":
			var delta struct {
				Text string `json:"text"`
			}
			json.Unmarshal(ev.Data, &delta)
			fmt.Print(delta.Text)
		case "finish":
			fmt.Println()
		case "error":
			fmt.Fprintf(os.Stderr, "\nstream error: %s\n", ev.Data)
		}
	}
}

func usage() {
	fmt.Println(`Coaching-assistant chat CLI

Usage: nisa <command> [options]

Commands:
  register <email> <pass>  Create an account
  login <email> <pass>     Sign in
  guest                    Create a guest session
  chat <message> [chat]    Send a message, stream the reply
  resume <chat_id>         Re-attach to an interrupted reply
  history                  List your chats
  delete <chat_id>         Delete a chat
  health                   Check server health

Environment:
  NISA_URL      Server URL (default: http://localhost:8080)
  NISA_CONFIG   Config directory (default: ~/.nisa)`)
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func printJSON(v any) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}
