package flowstore

// FlowBinderContent routes a packaging/format/charset/submitter/destination combination
// to a flow and a sink.
type FlowBinderContent struct {
	Name           string  `json:"name"`
	Packaging      string  `json:"packaging"`
	Format         string  `json:"format"`
	Charset        string  `json:"charset"`
	Destination    string  `json:"destination"`
	RecordSplitter string  `json:"recordSplitter"`
	FlowID         int64   `json:"flowId"`
	SinkID         int64   `json:"sinkId"`
	Submitters     []int64 `json:"submitterIds"`
}

// FlowBinder is a versioned flow binder entity.
type FlowBinder struct {
	ID      int64             `json:"id"`
	Version int64             `json:"version"`
	Content FlowBinderContent `json:"content"`
}

// Flow is a versioned flow entity.
type Flow struct {
	ID      int64 `json:"id"`
	Version int64 `json:"version"`
	Content struct {
		Name        string `json:"name"`
		Description string `json:"description,omitempty"`
	} `json:"content"`
}

// Sink is a versioned sink entity.
type Sink struct {
	ID      int64 `json:"id"`
	Version int64 `json:"version"`
	Content struct {
		Name        string `json:"name"`
		Queue       string `json:"queue,omitempty"`
		Description string `json:"description,omitempty"`
	} `json:"content"`
}

// Submitter is a versioned submitter entity.
type Submitter struct {
	ID      int64 `json:"id"`
	Version int64 `json:"version"`
	Content struct {
		Number  int64  `json:"number"`
		Name    string `json:"name"`
		Enabled bool   `json:"enabled"`
	} `json:"content"`
}
