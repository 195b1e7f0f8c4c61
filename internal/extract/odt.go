package extract

import (
	"fmt"
	"strings"

	"github.com/lu4p/cat"
)

// extractWithCat handles formats where lu4p/cat's detection is reliable, currently
// OpenDocument text and RTF. It sniffs the container type itself, so one entry
// point covers both.
func extractWithCat(content []byte) (string, error) {
	text, err := cat.FromBytes(content)
	if err != nil {
		return "", fmt.Errorf("extract document text: %w", err)
	}
	return strings.TrimSpace(text), nil
}
