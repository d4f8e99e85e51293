package rental

import (
	"strings"

	"github.com/pkg/errors"
)

const indonesiaCode = "62"

// NormalizePhone turns the ways renters write Indonesian numbers (0812..., 812..., 62812..., +62 812-...) into
// E.164. Numbers that already carry a different country code behind a '+' are kept as they are.
func NormalizePhone(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	international := strings.HasPrefix(s, "+")

	digits := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			digits = append(digits, c)
		case c == ' ' || c == '-' || c == '(' || c == ')' || c == '.' || (c == '+' && i == 0):
		default:
			return "", errors.Wrapf(ErrInvalidPhone, "%q", raw)
		}
	}

	n := string(digits)
	switch {
	case international:
	case strings.HasPrefix(n, indonesiaCode):
	case strings.HasPrefix(n, "0"):
		n = indonesiaCode + n[1:]
	case strings.HasPrefix(n, "8"):
		n = indonesiaCode + n
	default:
		return "", errors.Wrapf(ErrInvalidPhone, "%q", raw)
	}

	if len(n) < 10 || len(n) > 15 {
		return "", errors.Wrapf(ErrInvalidPhone, "%q", raw)
	}
	return "+" + n, nil
}
