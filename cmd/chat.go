package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/career-assistant/internal/history"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the assistant in the terminal",
	Run: func(_ *cobra.Command, _ []string) {
		chat()
	},
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask the assistant a single question",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ask(cmd, strings.Join(args, " "))
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(askCmd)

	askCmd.Flags().BoolP("stream", "s", false, "print tool usage and the answer as it is generated")
}

func chat() {
	ctx := context.Background()
	logger, config := setup()

	c, err := buildComponents(ctx, config, logger)
	if err != nil {
		logger.Fatal("building components", zap.Error(err))
	}
	defer c.Close()

	if c.router == nil {
		logger.Fatal("chat is not available", zap.String("reason", "model provider is not configured"))
	}

	fmt.Println(speakerStyle.Render("Career assistant. Type exit to quit."))

	prompt := promptui.Prompt{Label: "You"}
	h := history.History{}
	for {
		query, err := prompt.Run()
		if err != nil {
			if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
				return
			}
			logger.Fatal("reading input", zap.Error(err))
		}

		query = strings.TrimSpace(query)
		switch strings.ToLower(query) {
		case "":
			continue
		case "exit", "quit":
			return
		}

		fmt.Print(speakerStyle.Render("Assistant: "))
		answer := printEvents(os.Stdout, c.router.Stream(ctx, query, h))
		h = h.Append(history.User(query), history.Assistant(answer))
	}
}

func ask(cmd *cobra.Command, query string) {
	ctx := context.Background()
	logger, config := setup()

	c, err := buildComponents(ctx, config, logger)
	if err != nil {
		logger.Fatal("building components", zap.Error(err))
	}
	defer c.Close()

	if c.router == nil {
		logger.Fatal("ask is not available", zap.String("reason", "model provider is not configured"))
	}

	if stream, _ := cmd.Flags().GetBool("stream"); stream {
		printEvents(os.Stdout, c.router.Stream(ctx, query, nil))
		return
	}

	answer := c.router.Answer(ctx, query, nil)
	printMarkdown(os.Stdout, answer.Text)
	logger.Debug("answered",
		zap.Float64("latency_seconds", answer.Metadata.LatencySeconds),
		zap.Int("input_tokens", answer.Metadata.InputTokens),
		zap.Int("output_tokens", answer.Metadata.OutputTokens),
	)
}
