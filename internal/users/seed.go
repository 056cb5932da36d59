package users

import (
	"context"
	"strings"
)

type SeedOutcome struct {
	ChatID string
	Err    error
}

type SeedReport struct {
	Outcomes []SeedOutcome
}

func (r SeedReport) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Err != nil {
			n++
		}
	}
	return n
}

// Seed promotes every id to ADMIN. Blank and duplicate ids are skipped; a
// failing id does not stop the rest. Running it twice yields the same state.
func Seed(ctx context.Context, dir Directory, ids []string) SeedReport {
	var rep SeedReport
	seen := make(map[string]struct{}, len(ids))
	for _, raw := range ids {
		id := strings.TrimSpace(raw)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		_, err := dir.SetAdminRole(ctx, id)
		rep.Outcomes = append(rep.Outcomes, SeedOutcome{ChatID: id, Err: err})
	}
	return rep
}

// SplitIDs parses a comma separated id list such as ADMIN_CHAT_IDS.
func SplitIDs(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
