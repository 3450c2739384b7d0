package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/career-assistant/internal/agents/interview"
)

const (
	PromptYes = "Yes"
	PromptNo  = "No"
)

var evaluatePrompt = promptui.Select{
	Label: "Evaluate the interview?",
	Items: []string{PromptYes, PromptNo},
}

var interviewCmd = &cobra.Command{
	Use:   "interview <cv-file>",
	Short: "Practice a job interview in the terminal",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		practice(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(interviewCmd)

	interviewCmd.Flags().String("job", "", "job description file (default is a general position)")
}

func practice(cmd *cobra.Command, cvFile string) {
	ctx := context.Background()
	logger, config := setup()

	c, err := buildComponents(ctx, config, logger)
	if err != nil {
		logger.Fatal("building components", zap.Error(err))
	}
	defer c.Close()
	if c.interviewer == nil {
		logger.Fatal("interview is not available", zap.String("reason", "model provider is not configured"))
	}

	cv, err := readDocument(ctx, c.extractor, cvFile)
	if err != nil {
		logger.Fatal("reading cv", zap.Error(err))
	}
	var job string
	if jobFile, _ := cmd.Flags().GetString("job"); jobFile != "" {
		if job, err = readDocument(ctx, c.extractor, jobFile); err != nil {
			logger.Fatal("reading job description", zap.Error(err))
		}
	}

	session := interview.NewSession(job, cv)
	fmt.Printf("%s %s\n", speakerStyle.Render("Interviewer:"), interview.FirstQuestion)

	answerPrompt := promptui.Prompt{Label: "You (exit to finish)"}
	for {
		answer, err := answerPrompt.Run()
		if err != nil {
			if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
				break
			}
			logger.Fatal("reading input", zap.Error(err))
		}
		if interview.IsStop(answer) {
			break
		}

		reply, err := c.interviewer.Reply(ctx, session, answer)
		if err != nil {
			if errors.Is(err, interview.ErrEmptyAnswer) {
				continue
			}
			logger.Error("interviewer failed", zap.Error(err))
			continue
		}
		fmt.Printf("%s %s\n", speakerStyle.Render("Interviewer:"), reply)
	}

	_, action, err := evaluatePrompt.Run()
	if err != nil || action != PromptYes {
		logger.Info("exiting", zap.String("reason", "evaluation skipped"))
		return
	}

	eval, err := c.interviewer.Evaluate(ctx, session)
	if err != nil {
		logger.Fatal("evaluating interview", zap.Error(err))
	}
	printMarkdown(os.Stdout, eval.Markdown)
	if eval.Scored {
		logger.Info("interview evaluated", zap.Int("score", eval.Score))
	}
}
