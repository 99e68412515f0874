package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/glamour"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	input "github.com/tcnksm/go-input"

	"github.com/buildfund/onboard/pkg/api"
	"github.com/buildfund/onboard/pkg/onboarding"
	"github.com/buildfund/onboard/pkg/transcript"
	"github.com/buildfund/onboard/pkg/ui"
)

func newChatCommand() *cobra.Command {
	var (
		token     string
		baseURL   string
		plain     bool
		copyAtEnd bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start or resume your onboarding conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				token = cfg.API.Token
			}
			if token == "" {
				return errors.New("no API token configured, set api.token or ONBOARD_API_TOKEN")
			}
			if baseURL == "" {
				baseURL = cfg.API.BaseURL
			}

			client := api.NewClient(baseURL, api.StaticToken(token), api.WithLogger(logger))
			ctrl := onboarding.NewController(client, onboarding.WithLogger(logger))

			interactive := isatty.IsTerminal(os.Stdout.Fd()) && !plain
			var err error
			if interactive {
				err = ui.Run(ctrl, logger)
			} else {
				err = runPlainChat(cmd.Context(), ctrl)
			}
			if err != nil {
				return err
			}

			return printSummary(ctrl, copyAtEnd)
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "API token (overrides config)")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "API base URL (overrides config)")
	cmd.Flags().BoolVar(&plain, "plain", false, "line-based chat instead of the full-screen UI")
	cmd.Flags().BoolVar(&copyAtEnd, "copy", false, "copy the conversation to the clipboard when done")

	return cmd
}

// runPlainChat is the fallback loop for pipes and dumb terminals.
func runPlainChat(ctx context.Context, ctrl *onboarding.Controller) error {
	if err := ctrl.Initialize(ctx); err != nil {
		return err
	}

	in := &input.UI{
		Writer: os.Stdout,
		Reader: os.Stdin,
	}

	printed := 0
	printed = printNewTurns(ctrl.Transcript(), printed)

	for ctrl.State() != onboarding.StateComplete {
		question := ctrl.CurrentQuestion()

		if question.Kind == onboarding.KindFile {
			if err := plainUpload(ctx, ctrl, in); err != nil {
				return err
			}
			printed = printNewTurns(ctrl.Transcript(), printed)
			continue
		}

		prompt := "> "
		if len(question.Options) > 0 {
			for i, opt := range question.Options {
				fmt.Printf("  %d) %s\n", i+1, opt)
			}
			prompt = "> (number or text)"
		}

		answer, err := in.Ask(prompt, &input.Options{
			Required:  question.Required,
			Loop:      question.Required,
			HideOrder: true,
		})
		if err != nil {
			return errors.Wrap(err, "could not read answer")
		}
		answer = strings.TrimSpace(answer)
		if answer == "" {
			continue
		}
		if n, convErr := strconv.Atoi(answer); convErr == nil && n >= 1 && n <= len(question.Options) {
			answer = question.Options[n-1]
		}

		if err := ctrl.SubmitAnswer(ctx, answer); err != nil {
			if errors.Is(err, onboarding.ErrSessionComplete) {
				break
			}
			fmt.Println(api.UserMessage(err))
		}
		printed = printNewTurns(ctrl.Transcript(), printed)
	}

	return nil
}

func plainUpload(ctx context.Context, ctrl *onboarding.Controller, in *input.UI) error {
	answer, err := in.Ask("> (file paths, comma separated)", &input.Options{
		Required:  true,
		Loop:      true,
		HideOrder: true,
	})
	if err != nil {
		return errors.Wrap(err, "could not read file paths")
	}

	var files []api.File
	var handles []*os.File
	defer func() {
		for _, h := range handles {
			_ = h.Close()
		}
	}()
	for _, p := range strings.Split(answer, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		f, err := os.Open(p)
		if err != nil {
			fmt.Println("could not open", p)
			return nil
		}
		handles = append(handles, f)
		files = append(files, api.File{Name: filepath.Base(p), Content: f})
	}

	if err := ctrl.SubmitFiles(ctx, files); err != nil {
		fmt.Println(api.UserMessage(err))
	}
	return nil
}

func printNewTurns(t *transcript.Transcript, printed int) int {
	turns := t.Turns()
	for _, turn := range turns[printed:] {
		switch turn.Speaker {
		case transcript.SpeakerBot:
			fmt.Printf("\nBot: %s\n", turn.Body)
		default:
			fmt.Printf("You: %s\n", turn.Body)
		}
	}
	return len(turns)
}

// printSummary renders a markdown wrap-up of the conversation and optionally
// copies the raw transcript to the clipboard.
func printSummary(ctrl *onboarding.Controller, copyAtEnd bool) error {
	progress := ctrl.Progress()

	var md strings.Builder
	md.WriteString("# Onboarding session\n\n")
	md.WriteString(fmt.Sprintf("- Session: `%s`\n", ctrl.SessionID()))
	md.WriteString(fmt.Sprintf("- Progress: **%d%%**\n", progress.CompletionPercentage))
	if progress.IsComplete {
		md.WriteString("- Status: complete 🎉\n")
	} else {
		md.WriteString("- Status: in progress, run `onboard chat` again to continue\n")
	}

	rendered, err := glamour.Render(md.String(), "dark")
	if err != nil {
		// fall back to the raw markdown rather than failing the command
		rendered = md.String()
	}
	fmt.Println(rendered)

	if copyAtEnd {
		var sb strings.Builder
		for _, turn := range ctrl.Transcript().Turns() {
			sb.WriteString(string(turn.Speaker))
			sb.WriteString(": ")
			sb.WriteString(turn.Body)
			sb.WriteString("\n")
		}
		if err := clipboard.WriteAll(sb.String()); err != nil {
			return errors.Wrap(err, "could not copy transcript to clipboard")
		}
		fmt.Println("Transcript copied to clipboard.")
	}

	return nil
}
