package browser

type Target struct {
	TargetID   string `json:"targetId"`
	TargetType string `json:"type"`
	URL        string `json:"url"`
	Title      string `json:"title"`
}

type CDPSession struct {
	TargetID  string
	SessionID string
}

type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (b BoundingBox) Empty() bool {
	return b.Width <= 0 || b.Height <= 0
}
