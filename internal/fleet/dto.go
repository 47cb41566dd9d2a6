package fleet

type ReplicaDto struct {
	ID        string  `json:"id"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Capacity  uint32  `json:"capacity"`
	Weight    uint32  `json:"weight"`
	CacheSize uint64  `json:"cache_size"`
	Host      string  `json:"host"`
	Port      uint16  `json:"port"`
}

// Value mirrors the Debezium CDC envelope published on the fleet
// updates topic.
type Value[T any] struct {
	Before *T     `json:"before"`
	After  *T     `json:"after"`
	Op     string `json:"op"`
	TsMs   int64  `json:"ts_ms"`
}
