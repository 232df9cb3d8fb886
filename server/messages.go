package server

type SetRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type SetResponse struct {
	Size int `json:"size"`
}

type GetRequest struct {
	Key string `json:"key"`
}

type GetResponse struct {
	Value string `json:"value,omitempty"`
	Found bool   `json:"found"`
}

type RemoveRequest struct {
	Keys []string `json:"keys"`
}

type RemoveResponse struct {
	Removed int `json:"removed"`
}

type SearchRequest struct {
	Query string `json:"query"`
	// KeysOnly returns matching keys instead of their values.
	KeysOnly bool `json:"keys_only,omitempty"`
}

type SearchResponse struct {
	Keys   []string `json:"keys,omitempty"`
	Values []string `json:"values,omitempty"`
}

type ClearRequest struct{}

type ClearResponse struct{}

type StatsRequest struct{}

type StatsResponse struct {
	Size      int    `json:"size"`
	CacheSize int    `json:"cache_size"`
	Pending   int    `json:"pending"`
	Stale     int64  `json:"stale"`
	State     string `json:"state"`
	Sent      int64  `json:"sent"`
	Received  int64  `json:"received"`
	Queued    int64  `json:"queued"`
}
