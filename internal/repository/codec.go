package repository

import (
	"encoding/json"
	"fmt"

	"dm-relay/internal/domain"
)

// encodeBlobs serializes the structured session fields stored as opaque text.
func encodeBlobs(s domain.Session) (profile, history string, err error) {
	p := s.Profile
	if p == nil {
		p = map[string]any{}
	}
	h := s.History
	if h == nil {
		h = []domain.Turn{}
	}
	pb, err := json.Marshal(p)
	if err != nil {
		return "", "", fmt.Errorf("repository: encode profile: %w", err)
	}
	hb, err := json.Marshal(h)
	if err != nil {
		return "", "", fmt.Errorf("repository: encode history: %w", err)
	}
	return string(pb), string(hb), nil
}

// decodeBlobs tolerates empty columns and unknown additive fields.
func decodeBlobs(profile, history string) (map[string]any, []domain.Turn, error) {
	p := map[string]any{}
	if profile != "" {
		if err := json.Unmarshal([]byte(profile), &p); err != nil {
			return nil, nil, fmt.Errorf("repository: decode profile: %w", err)
		}
		if p == nil {
			p = map[string]any{}
		}
	}
	h := []domain.Turn{}
	if history != "" {
		if err := json.Unmarshal([]byte(history), &h); err != nil {
			return nil, nil, fmt.Errorf("repository: decode history: %w", err)
		}
		if h == nil {
			h = []domain.Turn{}
		}
	}
	return p, h, nil
}
