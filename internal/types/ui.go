package types

type FrameSnapshot struct {
	Type       string    `json:"type"`
	Identifier int64     `json:"identifier"`
	Rows       int       `json:"rows"`
	Cols       int       `json:"cols"`
	Values     []float64 `json:"values"`
	Scale      Scale     `json:"scale"`
	Ticks      []string  `json:"ticks"`
}
