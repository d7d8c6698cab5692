package store

// Propagation is the stored record of one change applied at an origin node.
type Propagation struct {
	ID       string `json:"id"`
	Scenario string `json:"scenario"`
	Origin   string `json:"origin"`
	// Change is the canonical JSON of the origin change.
	Change string `json:"change"`
	// Seq is the seq of the propagation's first step.
	Seq int64 `json:"seq"`
	// Digest identifies the propagation's content, steps included. Writing
	// an existing ID with another digest fails with ErrConflict.
	Digest string `json:"digest,omitempty"`
}

// Step is the stored record of one change-application step.
// Change and Forwarded are canonical JSON; Forwarded is empty unless the
// step forwarded a change.
type Step struct {
	ID          string `json:"id"`
	Propagation string `json:"propagation"`
	Seq         int64  `json:"seq"`
	Node        string `json:"node"`
	Kind        string `json:"kind"`
	Outcome     string `json:"outcome"`
	Change      string `json:"change"`
	Forwarded   string `json:"forwarded,omitempty"`
	Uppers      int    `json:"uppers"`
}
