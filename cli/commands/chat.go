package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/petal-labs/anthropic-go/providers/anthropic"
	"github.com/petal-labs/anthropic-go/stream"
)

func (a *App) newChatCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Send a message and print the reply",
		Long: `Send a single user message to the Messages API.

Examples:
  anthropic-go chat --prompt "Hello"
  anthropic-go chat --prompt "Hello" --stream
  anthropic-go chat --model claude-opus-4-5 --prompt "Hello" --json`,
		RunE: a.runChat,
	}

	cmd.Flags().StringVar(&a.chatPrompt, "prompt", "", "User message (required)")
	cmd.Flags().StringVar(&a.chatSystem, "system", "", "System prompt")
	cmd.Flags().Float64Var(&a.chatTemperature, "temperature", -1, "Temperature between 0 and 1 (default: model default)")
	cmd.Flags().IntVar(&a.chatMaxTokens, "max-tokens", 0, "Max tokens (0 = use config)")
	cmd.Flags().BoolVar(&a.chatStream, "stream", false, "Print the reply as it is generated")

	_ = cmd.MarkFlagRequired("prompt")
	return cmd
}

func (a *App) buildRequest() *anthropic.MessageRequest {
	req := &anthropic.MessageRequest{
		Model:     a.model,
		MaxTokens: a.cfg.MaxTokens,
		System:    a.chatSystem,
		Messages:  []anthropic.MessageParam{anthropic.UserMessage(a.chatPrompt)},
	}
	if a.chatMaxTokens > 0 {
		req.MaxTokens = a.chatMaxTokens
	}
	if a.chatTemperature >= 0 {
		t := a.chatTemperature
		req.Temperature = &t
	}
	return req
}

func (a *App) runChat(cmd *cobra.Command, args []string) error {
	client, err := a.newClient()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	req := a.buildRequest()
	if a.chatStream && !a.jsonOutput {
		return a.runStreamingChat(ctx, client, req)
	}

	var msg *anthropic.Message
	if a.chatStream {
		msg, err = client.CollectMessage(ctx, req)
	} else {
		msg, err = client.CreateMessage(ctx, req)
	}
	if err != nil {
		return a.handleError(err)
	}

	if a.jsonOutput {
		return a.outputJSON(msg)
	}
	fmt.Fprintln(a.stdout, msg.Text())
	a.printUsage(msg.Usage)
	return nil
}

func (a *App) runStreamingChat(ctx context.Context, client *anthropic.Client, req *anthropic.MessageRequest) error {
	s, err := client.StreamMessage(ctx, req)
	if err != nil {
		return a.handleError(err)
	}
	defer s.Close()

	var acc stream.Accumulator
	for ev, err := range s.Events(ctx) {
		if err != nil {
			fmt.Fprintln(a.stdout)
			return a.handleError(err)
		}
		_ = acc.Apply(ev)
		if d, ok := ev.(stream.ContentBlockDelta); ok && d.Delta.Text != "" {
			fmt.Fprint(a.stdout, d.Delta.Text)
		}
	}
	fmt.Fprintln(a.stdout)

	a.printUsage(acc.Message().Usage)
	return nil
}

func (a *App) printUsage(u anthropic.Usage) {
	if !a.verbose {
		return
	}
	fmt.Fprintf(a.stderr, "Usage: %d input + %d output tokens\n", u.InputTokens, u.OutputTokens)
	if a.limiter != nil {
		st := a.limiter.Stats()
		fmt.Fprintf(a.stderr, "Rate limiter: %d requests, %d waited, max wait %s\n",
			st.TotalRequests, st.WaitedRequests, st.MaxWait)
	}
}
