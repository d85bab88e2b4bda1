package replay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/okian/lighthouse/internal/domain/model"
	"github.com/okian/lighthouse/internal/domain/types"
	"github.com/okian/lighthouse/pkg/logger"
)

const progressEvery = 500

type client struct {
	base string
	http *http.Client
}

func newClient(base string, timeout time.Duration) *client {
	return &client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: timeout},
	}
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *client) do(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var rd io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, data, nil
}

func (c *client) ready(ctx context.Context) error {
	status, _, err := c.do(ctx, http.MethodGet, "/readyz", nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("readyz returned %d", status)
	}
	return nil
}

func (c *client) leaderboard(ctx context.Context, n int) ([]types.Entry, error) {
	q := url.Values{"limit": {strconv.Itoa(n)}}
	status, body, err := c.do(ctx, http.MethodGet, "/leaderboard?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("leaderboard returned %d: %s", status, body)
	}
	var entries []types.Entry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("decoding leaderboard: %w", err)
	}
	return entries, nil
}

// submitRounds posts rounds in order. Stale, degenerate and malformed rounds
// are counted and skipped; transport errors and other statuses count as
// failed.
func submitRounds(ctx context.Context, cfg *Config, c *client, rounds []model.Round, stats *Stats) error {
	log := logger.Get()
	log.Info(ctx, "submitting rounds", logger.Int("rounds", len(rounds)), logger.String("url", c.base))

	for i, round := range rounds {
		if err := ctx.Err(); err != nil {
			return err
		}
		status, body, err := c.do(ctx, http.MethodPost, "/rounds?sync=true", round)
		if err != nil {
			stats.Failed++
			log.Warn(ctx, "round submission failed", logger.String("round", round.String()), logger.Error(err))
			continue
		}

		var ae apiError
		if status != http.StatusOK {
			_ = json.Unmarshal(body, &ae)
		}
		switch {
		case status == http.StatusOK:
			stats.Applied++
		case ae.Code == "stale_round":
			stats.Stale++
		case ae.Code == "degenerate_round":
			stats.Degenerate++
		case ae.Code == "malformed_features":
			stats.Malformed++
		default:
			stats.Failed++
		}
		if cfg.Verbose && status != http.StatusOK {
			log.Info(ctx, "round not applied",
				logger.String("round", round.String()),
				logger.Int("status", status),
				logger.String("code", ae.Code),
			)
		}
		if (i+1)%progressEvery == 0 {
			log.Info(ctx, "progress", logger.Int("submitted", i+1), logger.Int("total", len(rounds)))
		}
	}
	return nil
}
