package cmd

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/radiosilence/anthropic-play/internal/client"
	"github.com/radiosilence/anthropic-play/internal/config"
	"github.com/radiosilence/anthropic-play/internal/llm"
	"github.com/radiosilence/anthropic-play/internal/storage"
)

var (
	chatEphemeral bool
	chatServerURL string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the relay from the terminal",
	Long: `Chat opens a line-oriented conversation against a running relay.

Commands:
  /stop    stop the streaming response
  /reset   clear the conversation
  /quit    exit`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat()
	},
}

func init() {
	chatCmd.Flags().BoolVar(&chatEphemeral, "ephemeral", false, "Keep the conversation in memory only")
	chatCmd.Flags().StringVar(&chatServerURL, "server", "", "Relay URL (default from config)")
	rootCmd.AddCommand(chatCmd)
}

func runChat() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	serverURL := cfg.ServerURL
	if chatServerURL != "" {
		serverURL = chatServerURL
	}

	ctx := context.Background()

	var store storage.Store
	if chatEphemeral {
		store = storage.NewMemStore()
	} else {
		path, err := storage.DefaultPath()
		if err != nil {
			return err
		}
		store, err = storage.NewSQLiteStore(path)
		if err != nil {
			return err
		}
	}
	defer store.Close()

	messages := client.NewMessageStore(ctx, store)
	api := client.New(serverURL)
	ctrl := client.NewController(api, messages)

	if _, err := api.Health(ctx); err != nil {
		slog.Warn("relay unreachable", "url", serverURL, "error", err)
	}
	go watchHealth(ctx, api, serverURL)

	printTranscript(messages)
	attachPrinter(ctrl, messages)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	var streamDone chan struct{}
	for {
		if streamDone == nil {
			fmt.Print("> ")
		}
		select {
		case <-sigCh:
			if streamDone != nil {
				ctrl.StopStreaming()
				continue
			}
			fmt.Println()
			return nil
		case <-streamDone:
			streamDone = nil
			fmt.Println()
		case line, ok := <-lines:
			if !ok {
				ctrl.StopStreaming()
				fmt.Println()
				return nil
			}
			line = strings.TrimSpace(line)
			switch {
			case line == "":
			case line == "/quit" || line == "/exit":
				ctrl.StopStreaming()
				return nil
			case line == "/stop":
				ctrl.StopStreaming()
			case line == "/reset":
				if streamDone != nil {
					fmt.Println("(wait for the current response to finish)")
					continue
				}
				ctrl.ResetChat(ctx)
				fmt.Println("(conversation cleared)")
			case streamDone != nil:
				fmt.Println("(a response is still streaming; /stop to interrupt)")
			default:
				done := make(chan struct{})
				streamDone = done
				go func() {
					defer close(done)
					if err := ctrl.SendMessage(ctx, line); err != nil {
						fmt.Println("error:", err)
					}
				}()
			}
		}
	}
}

// attachPrinter streams assistant text to stdout as it lands in the
// transcript, tracking how much of the live message has been printed.
func attachPrinter(ctrl *client.Controller, messages *client.MessageStore) {
	var printedID string
	var printed int
	ctrl.OnUpdate(func() {
		all := messages.Messages()
		if len(all) == 0 {
			printedID = ""
			printed = 0
			return
		}
		last := all[len(all)-1]
		if last.Role != llm.RoleAssistant {
			return
		}
		if last.ID != printedID {
			printedID = last.ID
			printed = 0
		}
		if len(last.Content) > printed {
			fmt.Print(last.Content[printed:])
			printed = len(last.Content)
		}
	})
}

func printTranscript(messages *client.MessageStore) {
	for _, msg := range messages.Messages() {
		if msg.Content == "" {
			continue
		}
		fmt.Printf("%s: %s\n", msg.Role, msg.Content)
	}
}

// watchHealth probes the relay periodically and reports transitions so a
// dead server is noticed before the next send fails.
func watchHealth(ctx context.Context, api *client.Client, serverURL string) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	healthy := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		_, err := api.Health(ctx)
		switch {
		case err != nil && healthy:
			healthy = false
			slog.Warn("relay unreachable", "url", serverURL, "error", err)
		case err == nil && !healthy:
			healthy = true
			slog.Info("relay reachable again", "url", serverURL)
		}
	}
}
