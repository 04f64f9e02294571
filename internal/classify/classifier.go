// Package classify maps raw translation-backend failures onto the small set
// of actions the queue engine knows how to take. Classification itself never
// fails: an error that matches nothing falls through to a short retry with
// the stringified error as detail.
package classify

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Action is the engine-facing outcome of one failed attempt.
type Action string

const (
	// ActionRetry: transient fault, try again after the suggested delay.
	ActionRetry Action = "retry"
	// ActionStop: credential-level fault, halt until the user reconfigures.
	ActionStop Action = "stop"
	// ActionSkip: content-level fault, this cue cannot be retried automatically.
	ActionSkip Action = "skip"
	// ActionWaitQuota: rate limit, wait out the quota window or fail over.
	ActionWaitQuota Action = "wait_quota"
)

// Classification describes one failed attempt. It is ephemeral and never
// persisted.
type Classification struct {
	Action  Action
	Message string
	Detail  string
	Delay   time.Duration
}

const (
	quotaDelay     = 60 * time.Second
	transientDelay = 5 * time.Second
	defaultDelay   = 2 * time.Second

	maxDetailLen = 200
)

// StatusCoder is implemented by backend errors that carry an HTTP status.
type StatusCoder interface {
	HTTPStatus() int
}

// BodyCarrier is implemented by backend errors that retain the raw response
// body for shape probing.
type BodyCarrier interface {
	ResponseBody() []byte
}

// Classify interprets an arbitrary backend failure. First match wins; the
// ordering puts quota before auth before content policy before transient so
// the costliest failure dominates.
func Classify(err error) Classification {
	code, message := parseFailure(err)
	lower := strings.ToLower(message)

	switch {
	case code == 429 ||
		strings.Contains(lower, "429") ||
		strings.Contains(lower, "quota") ||
		strings.Contains(lower, "exhausted") ||
		strings.Contains(lower, "resource_exhausted"):
		return Classification{
			Action:  ActionWaitQuota,
			Message: "quota reached",
			Detail:  truncate(message),
			Delay:   quotaDelay,
		}

	case code == 400 && strings.Contains(lower, "api key"):
		return Classification{
			Action:  ActionStop,
			Message: "invalid API key, update credentials in settings",
			Detail:  truncate(message),
		}

	case code == 401 || code == 403 ||
		strings.Contains(lower, "unauthenticated") ||
		strings.Contains(lower, "permission"):
		return Classification{
			Action:  ActionStop,
			Message: "authorization failed, check credential access",
			Detail:  truncate(message),
		}

	case strings.Contains(lower, "blocked") ||
		strings.Contains(lower, "safety") ||
		strings.Contains(lower, "recitation") ||
		strings.Contains(lower, "finishreason"):
		return Classification{
			Action:  ActionSkip,
			Message: "content refused by the model, translate manually",
			Detail:  truncate(message),
		}

	case code >= 500 ||
		strings.Contains(lower, "unavailable") ||
		strings.Contains(lower, "timeout") ||
		strings.Contains(lower, "network") ||
		strings.Contains(lower, "fetch"):
		return Classification{
			Action:  ActionRetry,
			Message: "service temporarily unavailable",
			Detail:  truncate(message),
			Delay:   transientDelay,
		}

	default:
		return Classification{
			Action:  ActionRetry,
			Message: "translation failed",
			Detail:  truncate(message),
			Delay:   defaultDelay,
		}
	}
}

// apiErrorBody mirrors the Gemini-style error envelope.
type apiErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// failureShape covers the error payload shapes observed in the wild:
// a nested response.data.error, a nested error, or a flat message.
type failureShape struct {
	Response *struct {
		Data *struct {
			Error *apiErrorBody `json:"error"`
		} `json:"data"`
	} `json:"response"`
	Error   *apiErrorBody `json:"error"`
	Message string        `json:"message"`
}

// parseFailure extracts a best-effort status code and message. It never
// fails; the fallback is the error's own string.
func parseFailure(err error) (int, string) {
	if err == nil {
		return 0, ""
	}

	code := 0
	var coder StatusCoder
	if errors.As(err, &coder) {
		code = coder.HTTPStatus()
	}

	message := err.Error()

	var carrier BodyCarrier
	if errors.As(err, &carrier) {
		if body := carrier.ResponseBody(); len(body) > 0 {
			var shape failureShape
			if jsonErr := json.Unmarshal(body, &shape); jsonErr == nil {
				if probed := shape.pick(); probed != nil {
					if probed.Code != 0 {
						code = probed.Code
					}
					if probed.Message != "" {
						message = probed.Message
					}
					if probed.Status != "" && !strings.Contains(message, probed.Status) {
						message += " " + probed.Status
					}
				} else if shape.Message != "" {
					message = shape.Message
				}
			} else {
				message = string(body)
			}
		}
	}

	return code, message
}

func (s failureShape) pick() *apiErrorBody {
	if s.Response != nil && s.Response.Data != nil && s.Response.Data.Error != nil {
		return s.Response.Data.Error
	}
	return s.Error
}

func truncate(s string) string {
	if len(s) <= maxDetailLen {
		return s
	}
	return s[:maxDetailLen] + "..."
}
