package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"deskmate/internal/logging"
	"deskmate/internal/store"
	"deskmate/internal/usage"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the assistant",
	Long: `Chat with the assistant about your uploaded documents.

Available subcommands:
  send    - Send a message and print the reply
  history - Show past messages`,
}

var chatSendCmd = &cobra.Command{
	Use:   "send <message...>",
	Short: "Send a message and print the reply",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runChatSend,
}

var chatHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show past messages",
	RunE:  runChatHistory,
}

var (
	chatStream   bool
	historyLimit int
	historyLocal bool
)

func init() {
	chatSendCmd.Flags().BoolVar(&chatStream, "stream", false, "stream the reply as it is generated")
	chatHistoryCmd.Flags().IntVarP(&historyLimit, "limit", "n", 50, "maximum messages to show")
	chatHistoryCmd.Flags().BoolVar(&historyLocal, "local", false, "read from the local cache instead of the backend")

	chatCmd.AddCommand(chatSendCmd)
	chatCmd.AddCommand(chatHistoryCmd)
}

func runChatSend(cmd *cobra.Command, args []string) error {
	message := strings.Join(args, " ")

	client, _, err := newClient()
	if err != nil {
		return err
	}

	t := tracker()

	if chatStream {
		contentChan, errorChan := client.StreamMessage(context.Background(), message)
		for delta := range contentChan {
			fmt.Print(delta)
		}
		fmt.Println()
		err := <-errorChan
		record(t, usage.Event{Operation: "stream", Failed: err != nil, Messages: 1})
		return err
	}

	reply, err := client.SendMessage(context.Background(), message)
	record(t, usage.Event{Operation: "chat", Failed: err != nil, Messages: 1})
	if err != nil {
		return err
	}

	fmt.Println(reply.Content)

	cacheReply(message, reply.ID, reply.Content)
	return nil
}

// cacheReply mirrors the exchange into the local cache so 'history --local'
// can replay it offline. Cache failures only log.
func cacheReply(userMsg, replyID, replyContent string) {
	cache, err := openCache()
	if err != nil {
		logging.ChatDebug("cache unavailable: %v", err)
		return
	}
	defer cache.Close()

	now := time.Now()
	msgs := []store.Transcript{
		{ID: uuid.NewString(), Role: "user", Content: userMsg, CreatedAt: now},
		{ID: replyID, Role: "assistant", Content: replyContent, CreatedAt: now.Add(time.Millisecond)},
	}
	if err := cache.SaveTranscripts(msgs); err != nil {
		logging.ChatDebug("failed to cache transcript: %v", err)
	}
}

func runChatHistory(cmd *cobra.Command, args []string) error {
	if historyLocal {
		cache, err := openCache()
		if err != nil {
			return err
		}
		defer cache.Close()

		msgs, err := cache.RecentTranscripts(historyLimit)
		if err != nil {
			return err
		}
		if len(msgs) == 0 {
			fmt.Println("no cached messages")
			return nil
		}
		for _, m := range msgs {
			fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Format("2006-01-02 15:04"), m.Role, m.Content)
		}
		return nil
	}

	client, _, err := newClient()
	if err != nil {
		return err
	}

	msgs, err := client.ChatHistory(context.Background(), historyLimit)
	if err != nil {
		return err
	}

	if len(msgs) == 0 {
		fmt.Println("no messages yet")
		return nil
	}
	for _, m := range msgs {
		fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Format("2006-01-02 15:04"), m.Role, m.Content)
	}

	// Refresh the local mirror while we have the data.
	if cache, err := openCache(); err == nil {
		defer cache.Close()
		var ts []store.Transcript
		for _, m := range msgs {
			ts = append(ts, store.Transcript{ID: m.ID, Role: m.Role, Content: m.Content, CreatedAt: m.CreatedAt})
		}
		if err := cache.SaveTranscripts(ts); err != nil {
			logging.ChatDebug("failed to mirror history: %v", err)
		}
	}
	return nil
}
