package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joseph-ayodele/packet-underwriter/internal/common"
)

// SanitizeFunc repairs a provider's JSON so it can pass the schema. It returns
// the keys it dropped or rewrote.
type SanitizeFunc func(raw []byte) ([]byte, []string, error)

// GenerateTyped asks p for JSON matching req.Schema and decodes it into out.
// Output is validated strictly first; on failure the sanitizer runs and the
// result is validated again. Returned notes list what the sanitizer touched.
func GenerateTyped(ctx context.Context, p Provider, req Request, out any, sanitize SanitizeFunc, logger *slog.Logger) (Response, []string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()

	resp, err := p.Generate(ctx, req)
	if err != nil {
		logger.Warn("llm.generate.error",
			"provider", p.Name(), "schema", req.SchemaName, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return resp, nil, err
	}

	content := []byte(StripCodeFence(resp.Text))
	var notes []string

	if req.Schema != nil {
		validator, err := CompileSchema(req.SchemaName, req.Schema)
		if err != nil {
			return resp, nil, common.NewAppError(common.CodeConfig, "request schema", fmt.Errorf("%w: %w", common.ErrConfiguration, err))
		}
		if err := validator.Validate(content); err != nil {
			var se *SchemaError
			logger.Debug("llm.generate.strict_rejected",
				"provider", p.Name(), "schema", req.SchemaName, "schema_mismatch", errors.As(err, &se), "error", err)
			if sanitize == nil {
				return resp, nil, common.NewAppError(common.CodeProvider, "schema validation failed", err)
			}
			cleaned, dropped, sErr := sanitize(content)
			if sErr != nil {
				logger.Error("llm.generate.sanitize_failed", "provider", p.Name(), "schema", req.SchemaName, "error", sErr)
				return resp, nil, common.NewAppError(common.CodeProvider, "sanitize failed", fmt.Errorf("%w: %w", common.ErrValidation, sErr))
			}
			if vErr := validator.Validate(cleaned); vErr != nil {
				logger.Error("llm.generate.schema_validation_failed",
					"provider", p.Name(), "schema", req.SchemaName, "error", vErr, "content", string(cleaned))
				return resp, dropped, common.NewAppError(common.CodeProvider, "schema validation failed", vErr)
			}
			logger.Warn("llm.generate.lenient_sanitize_applied",
				"provider", p.Name(), "schema", req.SchemaName, "dropped", dropped)
			content = cleaned
			notes = dropped
		}
	}

	if err := json.Unmarshal(content, out); err != nil {
		logger.Error("llm.generate.unmarshal_failed", "provider", p.Name(), "schema", req.SchemaName, "error", err)
		return resp, notes, common.NewAppError(common.CodeProvider, "unmarshal typed output", fmt.Errorf("%w: %w", common.ErrValidation, err))
	}

	logger.Debug("llm.generate.ok",
		"provider", p.Name(),
		"schema", req.SchemaName,
		"model", resp.Model,
		"tokens", resp.Usage.Total(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return resp, notes, nil
}

// StripCodeFence removes a surrounding ```json fence some models add despite instructions.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
