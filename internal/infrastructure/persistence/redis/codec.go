package redis

import (
	"encoding/json"
	"fmt"

	"github.com/alem-hub/achievement-engine/internal/domain/leaderboard"
)

func encodeRanking(r *leaderboard.Ranking) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	return data, nil
}

// decodeRanking rejects payloads with an unknown kind so a cache written by
// a newer version never reaches the calculator's callers half-parsed.
func decodeRanking(data []byte) (*leaderboard.Ranking, error) {
	var r leaderboard.Ranking
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	if _, err := leaderboard.ParseKind(string(r.Kind)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	return &r, nil
}
