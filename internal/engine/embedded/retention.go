package embedded

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/Aman-CERP/searchschema/internal/engine"
	schemaerrors "github.com/Aman-CERP/searchschema/internal/errors"
)

// ParseMinAge parses a lifecycle age such as "30d", "12h" or "500ms".
func ParseMinAge(s string) (time.Duration, error) {
	units := []struct {
		suffix string
		unit   time.Duration
	}{
		{"ms", time.Millisecond},
		{"d", 24 * time.Hour},
		{"h", time.Hour},
		{"m", time.Minute},
		{"s", time.Second},
	}
	for _, u := range units {
		num, ok := strings.CutSuffix(s, u.suffix)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(num)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid age %q", s)
		}
		return time.Duration(n) * u.unit, nil
	}
	return 0, fmt.Errorf("invalid age %q: missing unit", s)
}

// ApplyRetention deletes indices attached to a lifecycle policy once they
// are older than the policy's minimum age. It returns the deleted names.
func (c *Client) ApplyRetention(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return nil, err
	}

	policies, err := c.catalog.policies(ctx)
	if err != nil {
		return nil, schemaerrors.StoreError("failed to read policies", err)
	}
	ages := make(map[string]time.Duration, len(policies))
	for _, p := range policies {
		age, err := ParseMinAge(p.MinAge)
		if err != nil {
			c.logger.Warn("embedded_policy_invalid", slog.String("policy", p.Name), slog.String("error", err.Error()))
			continue
		}
		ages[p.Name] = age
	}

	recs, err := c.catalog.indices(ctx)
	if err != nil {
		return nil, schemaerrors.StoreError("failed to read catalog", err)
	}

	now := c.now()
	var deleted []string
	for _, rec := range recs {
		policy, _ := rec.Settings[engine.SettingLifecycleName].(string)
		age, ok := ages[policy]
		if !ok || now.Sub(rec.CreatedAt) < age {
			continue
		}
		if err := c.deleteIndexLocked(ctx, rec.Name); err != nil {
			return deleted, err
		}
		c.logger.Info("embedded_index_expired",
			slog.String("index", rec.Name),
			slog.String("policy", policy),
			slog.Duration("age", now.Sub(rec.CreatedAt)))
		deleted = append(deleted, rec.Name)
	}
	return deleted, nil
}
