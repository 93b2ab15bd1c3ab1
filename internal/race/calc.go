package race

import "time"

// FireWindow computes when a worker fires and how long it may keep retrying,
// relative to the boundary in effect (midnight in now's location).
//
// When now falls within retryWindow after a boundary that just passed, that
// boundary is still the one in effect: the eligibility window is open and
// targeting tomorrow would make every worker wait ~24h for nothing. At exactly
// retryWindow past the boundary the window has closed, so tomorrow's boundary
// is selected.
func FireWindow(now time.Time, offset, retryWindow time.Duration) (target, deadline time.Time) {
	year, month, day := now.Date()
	boundary := time.Date(year, month, day, 0, 0, 0, 0, now.Location())
	if now.Sub(boundary) >= retryWindow {
		boundary = time.Date(year, month, day+1, 0, 0, 0, 0, now.Location())
	}
	return boundary.Add(-offset), boundary.Add(retryWindow)
}
