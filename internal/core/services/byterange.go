package services

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"edgestream/internal/core/domain"
)

// ParseRange parses a single-range "bytes=" header against a resource of size bytes.
// A nil range means the header was empty and the whole resource should be served.
// Open-ended and suffix forms are supported; an end past the resource is clamped.
func ParseRange(header string, size int) (*domain.ByteRange, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, nil
	}

	rangeSet, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return nil, fmt.Errorf("%w: unsupported unit in %q", domain.ErrInvalidRange, header)
	}
	if strings.Contains(rangeSet, ",") {
		return nil, fmt.Errorf("%w: multiple ranges are not supported", domain.ErrInvalidRange)
	}

	startStr, endStr, ok := strings.Cut(strings.TrimSpace(rangeSet), "-")
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidRange, header)
	}

	if startStr == "" {
		n, err := parseOffset(endStr)
		if err != nil || n == 0 {
			return nil, fmt.Errorf("%w: bad suffix length in %q", domain.ErrInvalidRange, header)
		}
		if n > size {
			n = size
		}
		return &domain.ByteRange{Start: size - n, End: size - 1}, nil
	}

	start, err := parseOffset(startStr)
	if err != nil {
		return nil, fmt.Errorf("%w: bad start in %q", domain.ErrInvalidRange, header)
	}

	end := size - 1
	if endStr != "" {
		end, err = parseOffset(endStr)
		if err != nil {
			return nil, fmt.Errorf("%w: bad end in %q", domain.ErrInvalidRange, header)
		}
		if end < start {
			return nil, fmt.Errorf("%w: end before start in %q", domain.ErrInvalidRange, header)
		}
	}

	if start >= size {
		return nil, fmt.Errorf("%w: start %d beyond size %d", domain.ErrRangeNotSatisfiable, start, size)
	}
	if end >= size {
		end = size - 1
	}

	return &domain.ByteRange{Start: start, End: end}, nil
}

// parseOffset accepts only plain decimal digits. Offsets too large for an int saturate,
// so they clamp or fail as "beyond size" like any other large offset.
func parseOffset(s string) (int, error) {
	if s == "" || strings.TrimLeft(s, "0123456789") != "" {
		return 0, fmt.Errorf("not a byte offset: %q", s)
	}
	n, err := strconv.Atoi(s)
	if errors.Is(err, strconv.ErrRange) {
		return math.MaxInt, nil
	}
	return n, err
}
