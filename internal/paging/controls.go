package paging

import "strconv"

type ControlKind string

const (
	ControlPrev      ControlKind = "prev"
	ControlIndicator ControlKind = "indicator"
	ControlNext      ControlKind = "next"
	ControlRefresh   ControlKind = "refresh"
)

// Control is one navigation affordance. Page is the page it leads to (the
// current page for the indicator and refresh controls).
type Control struct {
	Kind  ControlKind
	Label string
	Page  int
}

// Controls returns the navigation row for a listing: previous, indicator and
// next when there is more than one page, then a refresh control that is
// always present.
func Controls(currentPage, totalPages int) []Control {
	out := make([]Control, 0, 4)
	if totalPages > 1 {
		if currentPage > 1 {
			out = append(out, Control{Kind: ControlPrev, Label: "⬅️ Prev", Page: currentPage - 1})
		}
		out = append(out, Control{
			Kind:  ControlIndicator,
			Label: strconv.Itoa(currentPage) + "/" + strconv.Itoa(totalPages),
			Page:  currentPage,
		})
		if currentPage < totalPages {
			out = append(out, Control{Kind: ControlNext, Label: "Next ➡️", Page: currentPage + 1})
		}
	}
	out = append(out, Control{Kind: ControlRefresh, Label: "🔄 Refresh", Page: currentPage})
	return out
}
