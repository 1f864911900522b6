package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
)

// Model identifiers for current Claude models.
const (
	ModelClaudeSonnet45 = "claude-sonnet-4-5"
	ModelClaudeHaiku45  = "claude-haiku-4-5"
	ModelClaudeOpus45   = "claude-opus-4-5"
)

// DefaultModel is used by the CLI when no model is configured.
const DefaultModel = ModelClaudeHaiku45

const modelsPath = "/v1/models"

// ListModels returns one page of models available to the API key.
func (c *Client) ListModels(ctx context.Context, params *ListModelsParams) (*ModelList, error) {
	if err := c.checkCredentials(); err != nil {
		return nil, err
	}

	path := modelsPath
	if params != nil {
		q := url.Values{}
		if params.Limit > 0 {
			q.Set("limit", strconv.Itoa(params.Limit))
		}
		if params.AfterID != "" {
			q.Set("after_id", params.AfterID)
		}
		if params.BeforeID != "" {
			q.Set("before_id", params.BeforeID)
		}
		if len(q) > 0 {
			path += "?" + q.Encode()
		}
	}

	resp, err := c.exec.Do(ctx, ClassModels, c.dispatcher(http.MethodGet, path, nil, false))
	if err != nil {
		return nil, err
	}

	var list ModelList
	if err := json.Unmarshal(resp.Body, &list); err != nil {
		return nil, newDecodeError(err)
	}
	return &list, nil
}

// GetModel returns a single model by id or alias.
func (c *Client) GetModel(ctx context.Context, id string) (*ModelInfo, error) {
	if err := c.checkCredentials(); err != nil {
		return nil, err
	}

	resp, err := c.exec.Do(ctx, ClassModels, c.dispatcher(http.MethodGet, modelsPath+"/"+url.PathEscape(id), nil, false))
	if err != nil {
		return nil, err
	}

	var info ModelInfo
	if err := json.Unmarshal(resp.Body, &info); err != nil {
		return nil, newDecodeError(err)
	}
	return &info, nil
}
