package providers

import (
	"errors"
	"fmt"
	"strings"

	"docqa/internal/util"
)

type ErrorType string

const (
	ErrorQuota         ErrorType = "quota"
	ErrorRate          ErrorType = "rate"
	ErrorTransient     ErrorType = "transient"
	ErrorPermanent     ErrorType = "permanent"
	ErrorContext       ErrorType = "context"
	ErrorContentPolicy ErrorType = "content_policy"
)

func ClassifyError(err error) ErrorType {
	if err == nil {
		return ""
	}
	if errors.Is(err, util.ErrContentBlocked) {
		return ErrorContentPolicy
	}
	e := strings.ToLower(err.Error())
	switch {
	case strings.Contains(e, "content_filter"), strings.Contains(e, "content_policy"),
		strings.Contains(e, "content management policy"), strings.Contains(e, "safety"):
		return ErrorContentPolicy
	case strings.Contains(e, "quota"), strings.Contains(e, "credit"), strings.Contains(e, "insufficient_quota"):
		return ErrorQuota
	case strings.Contains(e, "rate limit"), strings.Contains(e, "rate_limit"), strings.Contains(e, "429"):
		return ErrorRate
	case strings.Contains(e, "context"), strings.Contains(e, "too long"):
		return ErrorContext
	case strings.Contains(e, "timeout"), strings.Contains(e, "temporarily"), strings.Contains(e, "unavailable"):
		return ErrorTransient
	default:
		return ErrorPermanent
	}
}

// wrapProviderError attaches the error kind the orchestrators branch on.
func wrapProviderError(op string, err error) error {
	if err == nil {
		return nil
	}
	if ClassifyError(err) == ErrorContentPolicy {
		if errors.Is(err, util.ErrContentBlocked) {
			return fmt.Errorf("%s: %w", op, err)
		}
		return fmt.Errorf("%s: %w: %v", op, util.ErrContentBlocked, err)
	}
	return util.External(op, err)
}
