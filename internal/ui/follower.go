package ui

// Follower decides whether the transcript view should follow new content.
// It follows only while the user is at (or within threshold lines of) the
// bottom, so reading older messages is never interrupted.
type Follower struct {
	threshold int
	atBottom  bool
}

// NewFollower creates a follower that starts at the bottom
func NewFollower(threshold int) *Follower {
	if threshold < 0 {
		threshold = 0
	}
	return &Follower{threshold: threshold, atBottom: true}
}

// AtBottom reports whether the view is following
func (f *Follower) AtBottom() bool {
	return f.atBottom
}

// OnScroll records a scroll position change. offset is the first visible
// line, total the content height and visible the view height.
func (f *Follower) OnScroll(offset, total, visible int) {
	distance := total - (offset + visible)
	f.atBottom = distance <= f.threshold
}

// OnGrowth is called after content grows. It calls scroll and returns true
// only if the view was at the bottom before the growth.
func (f *Follower) OnGrowth(scroll func()) bool {
	if !f.atBottom {
		return false
	}
	scroll()
	return true
}

// Force scrolls regardless of position and resumes following
func (f *Follower) Force(scroll func()) {
	scroll()
	f.atBottom = true
}
