package pipeline

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ppiankov/rectify/internal/model"
)

// validateText rejects input that is not a non-empty plain text report
func validateText(text string, maxBytes int) error {
	switch {
	case strings.TrimSpace(text) == "":
		return &model.InvalidInputError{Reason: "report text is empty"}
	case !utf8.ValidString(text):
		return &model.InvalidInputError{Reason: "report text is not valid UTF-8"}
	case strings.IndexByte(text, 0) >= 0:
		return &model.InvalidInputError{Reason: "report text contains NUL bytes"}
	case maxBytes > 0 && len(text) > maxBytes:
		return &model.InvalidInputError{Reason: fmt.Sprintf("report text exceeds %d bytes", maxBytes)}
	}
	return nil
}
