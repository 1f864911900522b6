// Package anthropic is a client for the Anthropic Messages API built on the
// core resilience layer.
//
//	client := anthropic.New(apiKey,
//	    anthropic.WithRateLimiter(limiter),
//	    anthropic.WithLogger(logger),
//	)
//	msg, err := client.CreateMessage(ctx, &anthropic.MessageRequest{
//	    Model:     anthropic.ModelClaudeHaiku45,
//	    MaxTokens: 1024,
//	    Messages:  []anthropic.MessageParam{anthropic.UserMessage("Hello")},
//	})
//
// Every call carries an x-client-request-id header that stays the same
// across retries of that call.
package anthropic
