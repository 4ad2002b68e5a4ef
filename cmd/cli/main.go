package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/reflectchat/reflectchat/internal/application"
	"github.com/reflectchat/reflectchat/internal/application/usecase"
	"github.com/reflectchat/reflectchat/internal/infrastructure/config"
	"github.com/reflectchat/reflectchat/internal/infrastructure/logger"
)

const (
	cliName    = "reflectchat"
	cliVersion = "0.1.0"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   cliName,
		Short: "reflectchat - chat with an assistant that learns who you are",
		RunE:  runChat,
	}

	rootCmd.Flags().StringP("user", "u", "", "user id (defaults to $USER)")
	rootCmd.Flags().StringP("conversation", "c", "", "resume an existing conversation")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s v%s\n", cliName, cliVersion)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	// Quiet logger so streamed replies stay readable.
	log, err := logger.NewLogger(logger.Config{
		Level:  "error",
		Format: "console",
	})
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	userID, _ := cmd.Flags().GetString("user")
	if userID == "" {
		userID = os.Getenv("USER")
	}
	if userID == "" {
		return fmt.Errorf("no user id, pass --user")
	}

	app, err := application.NewApp(cfg, log)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}

	ctx := context.Background()

	conversationID, _ := cmd.Flags().GetString("conversation")
	if conversationID == "" {
		conv, err := app.ConversationRepository().Create(ctx, userID, "")
		if err != nil {
			return fmt.Errorf("create conversation: %w", err)
		}
		conversationID = conv.ID
		fmt.Printf("Started conversation %s\n", conversationID)
	}

	fmt.Println("Type a message, or /quit to exit.")

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
		if line == "/quit" || line == "/exit" {
			break
		}

		result, deltaCh := app.ChatTurnUseCase().Run(ctx, usecase.ChatTurnRequest{
			ConversationID: conversationID,
			UserID:         userID,
			UserMessage:    line,
		})

		streamed := false
		for chunk := range deltaCh {
			streamed = true
			fmt.Print(chunk.DeltaText)
		}
		if result.Err == nil && !streamed {
			// Self-referential turns answer in one piece.
			fmt.Print(result.AssistantResponse)
		}
		fmt.Println()

		if result.Err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", result.Err)
			continue
		}
		if result.ProfileGenerated {
			fmt.Println("(updated your personality profile)")
		}
	}

	return scanner.Err()
}
