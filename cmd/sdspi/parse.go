package main

import (
	"fmt"
	"strconv"
	"strings"
)

// parseSize parses a decimal or 0x-prefixed number with an optional
// k, m or g suffix (powers of 1024).
func parseSize(s string) (uint64, error) {
	ss := strings.TrimSpace(strings.ToLower(s))
	if ss == "" {
		return 0, fmt.Errorf("empty size")
	}
	mult := uint64(1)
	if !strings.HasPrefix(ss, "0x") {
		switch {
		case strings.HasSuffix(ss, "k"):
			mult = 1 << 10
		case strings.HasSuffix(ss, "m"):
			mult = 1 << 20
		case strings.HasSuffix(ss, "g"):
			mult = 1 << 30
		}
		if mult > 1 {
			ss = ss[:len(ss)-1]
		}
	}
	v, err := strconv.ParseUint(ss, 0, 64)
	if err != nil {
		return 0, err
	}
	if v > ^uint64(0)/mult {
		return 0, fmt.Errorf("%q overflows", s)
	}
	return v * mult, nil
}

func human(b uint64) string {
	switch {
	case b >= 1<<30:
		return fmt.Sprintf("%.1fG", float64(b)/(1<<30))
	case b >= 1<<20:
		return fmt.Sprintf("%dM", b>>20)
	case b >= 1<<10:
		return fmt.Sprintf("%dK", b>>10)
	default:
		return fmt.Sprintf("%dB", b)
	}
}
