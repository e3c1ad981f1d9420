package inventory

import (
	"context"
	"strconv"
)

// Differences compares every count of a session with live tool quantities.
// Concurrent calls for the same session share one query; results are never
// cached between calls. The shared query outlives any single caller, and each
// caller stops waiting when its own ctx is done.
func (s *Service) Differences(ctx context.Context, sessionID int64) ([]Difference, error) {
	queryCtx := context.WithoutCancel(ctx)
	resultChan := s.diffs.DoChan(strconv.FormatInt(sessionID, 10), func() (any, error) {
		if _, err := s.repo.GetSession(queryCtx, sessionID); err != nil {
			return nil, err
		}
		return s.repo.Differences(queryCtx, sessionID)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return nil, res.Err
		}
		rows := res.Val.([]Difference)
		out := make([]Difference, len(rows))
		copy(out, rows)
		return out, nil
	}
}
