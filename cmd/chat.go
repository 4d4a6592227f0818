/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"tinyclaw/pkg/agent"
	"tinyclaw/pkg/bus"
	"tinyclaw/pkg/cloud"
	"tinyclaw/pkg/config"
	"tinyclaw/pkg/llm"
	"tinyclaw/pkg/logger"
	"tinyclaw/pkg/prompt"
	"tinyclaw/pkg/session"
	"tinyclaw/pkg/tools"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var promptText string

// chatCmd represents the chat command
var chatCmd = &cobra.Command{
	Use:   "chat [prompt]",
	Short: "Send a prompt or start an interactive chat",
	Long:  "Loads TinyClaw configuration, connects to the configured model provider, and sends one prompt or starts an interactive chat.",
	Run: func(cmd *cobra.Command, args []string) {
		userPrompt := resolvePrompt(args)

		cfg, err := config.LoadConfig()
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			return
		}

		appLogger, err := logger.New(cfg.Logging)
		if err != nil {
			fmt.Printf("failed to initialize logger: %v\n", err)
			return
		}
		slog.SetDefault(appLogger)

		runner, err := newChatRunner(cfg)
		if err != nil {
			fmt.Printf("failed to initialize agent: %v\n", err)
			return
		}

		ctx := context.Background()
		if userPrompt != "" {
			fmt.Println(runner.ask(ctx, userPrompt))
			return
		}

		runInteractive(ctx, runner)
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVarP(&promptText, "prompt", "p", "", "prompt text to send")
}

// chatRunner drives the agent engine for a local terminal conversation.
// Each runner owns a throwaway chat identity so terminal sessions never
// collide with channel history.
type chatRunner struct {
	engine *agent.Engine
	bus    *bus.MessageBus
	chatID string
}

func newChatRunner(cfg *config.Config) (*chatRunner, error) {
	client, err := llm.New(cfg)
	if err != nil {
		return nil, err
	}

	log := slog.Default()
	mb := bus.New(cfg.Bus.QueueDepth)
	store := session.New(cfg.Session.MaxUsers, cfg.Session.MaxExchanges, cfg.Session.MaxTurnLen, log)
	builder := prompt.NewBuilder(cfg.Memory.Dir, cfg.Memory.MaxBytes, log)
	history := cloud.New(cfg.Cloud, log)

	registry := tools.NewRegistry(log)
	registry.Register(tools.NewTimeTool())
	if cfg.Tools.Web.Brave.Enabled {
		registry.Register(tools.NewSearchTool(cfg.Tools.Web.Brave, log))
	}
	registry.Register(tools.NewMemoryTool(cfg.Memory.Dir, cfg.Memory.MaxBytes, log))

	return &chatRunner{
		engine: agent.New(cfg.Agent, client, registry, store, builder, history, mb, log),
		bus:    mb,
		chatID: uuid.NewString(),
	}, nil
}

// ask runs one request through the full engine path and collects the
// response from the outbound queue.
func (r *chatRunner) ask(ctx context.Context, text string) string {
	r.engine.Handle(ctx, bus.InboundMessage{
		Channel: "cli",
		ChatID:  r.chatID,
		Content: text,
	})

	response, ok := r.bus.PopOutbound(ctx)
	if !ok {
		return ""
	}
	return response.Content
}

func resolvePrompt(args []string) string {
	if value := strings.TrimSpace(promptText); value != "" {
		return value
	}

	if len(args) == 0 {
		return ""
	}

	value := strings.TrimSpace(strings.Join(args, " "))
	if value == "" {
		return ""
	}

	return value
}

func runInteractive(ctx context.Context, runner *chatRunner) {
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("👨🏻 ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				fmt.Printf("input error: %v\n", err)
			}
			return
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if isExitCommand(input) {
			return
		}

		printAssistantMessage(runner.ask(ctx, input))
	}
}

func printAssistantMessage(message string) {
	lines := assistantLines(message)
	for _, line := range lines {
		fmt.Printf("🦞 %s\n", line)
	}
	if len(lines) > 0 {
		fmt.Println()
	}
}

func assistantLines(message string) []string {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return nil
	}

	return strings.Split(trimmed, "\n")
}

func isExitCommand(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "exit", "quit", ":q":
		return true
	default:
		return false
	}
}
