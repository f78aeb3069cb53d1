package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ppiankov/rectify/internal/util"
)

var (
	// ErrMalformedResponse means the model did not return the expected JSON object
	ErrMalformedResponse = errors.New("malformed generative response")

	// ErrCitationLeak means the model cited a source outside the allowlist
	ErrCitationLeak = errors.New("citation leak")
)

type rawCorrection struct {
	CorrectedText *string  `json:"corrected_text"`
	SourceIDs     []string `json:"source_ids"`
	Confidence    *float64 `json:"confidence"`
}

// ParseCorrection validates raw model output. Code fences are tolerated;
// anything that is not a JSON object with a non-empty corrected_text is
// malformed. With strict set, citing an id outside allowed is a leak.
func ParseCorrection(raw string, allowed []string, strict bool) (*CorrectResponse, error) {
	body := util.StripCodeFences(raw)
	if body == "" {
		return nil, fmt.Errorf("%w: empty output", ErrMalformedResponse)
	}

	var parsed rawCorrection
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if parsed.CorrectedText == nil || strings.TrimSpace(*parsed.CorrectedText) == "" {
		return nil, fmt.Errorf("%w: missing corrected_text", ErrMalformedResponse)
	}

	allow := make(map[string]bool, len(allowed))
	for _, id := range allowed {
		allow[id] = true
	}

	var cited []string
	seen := make(map[string]bool)
	for _, id := range parsed.SourceIDs {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		if !allow[id] {
			if strict {
				return nil, fmt.Errorf("%w: model cited disallowed source %q", ErrCitationLeak, id)
			}
			continue
		}
		seen[id] = true
		cited = append(cited, id)
	}

	resp := &CorrectResponse{
		CorrectedText: strings.TrimSpace(*parsed.CorrectedText),
		SourceIDs:     cited,
	}
	if c := parsed.Confidence; c != nil && *c >= 0 && *c <= 1 {
		resp.Confidence = c
	}
	return resp, nil
}
