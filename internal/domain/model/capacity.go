package model

// DefaultBandwidth is the neutral multiplier used when the capacity table has no entry.
const DefaultBandwidth = 1

// ProviderModel identifies a generation backend.
type ProviderModel struct {
	Provider string
	Model    string
}

// CapacityTable maps worker -> (provider, model) -> bandwidth.
type CapacityTable map[int]map[ProviderModel]int

// CapacityEntry is the wire form of one capacity table cell.
type CapacityEntry struct {
	WorkerID  int    `json:"worker_id" validate:"gte=0"`
	Provider  string `json:"provider" validate:"required"`
	Model     string `json:"model" validate:"required"`
	Bandwidth int    `json:"bandwidth" validate:"gte=0"`
}

// NewCapacityTable builds a table from entries. Later entries win.
func NewCapacityTable(entries []CapacityEntry) CapacityTable {
	t := make(CapacityTable, len(entries))
	for _, e := range entries {
		t.Set(e.WorkerID, e.Provider, e.Model, e.Bandwidth)
	}
	return t
}

// Set stores the bandwidth of one worker/provider/model.
func (t CapacityTable) Set(worker int, provider, model string, bandwidth int) {
	row, ok := t[worker]
	if !ok {
		row = make(map[ProviderModel]int)
		t[worker] = row
	}
	row[ProviderModel{Provider: provider, Model: model}] = bandwidth
}

// Bandwidth returns the stored bandwidth and whether it was found. A miss
// returns DefaultBandwidth; negative stored values are clamped to 0.
func (t CapacityTable) Bandwidth(worker int, provider, model string) (int, bool) {
	row, ok := t[worker]
	if !ok {
		return DefaultBandwidth, false
	}
	b, ok := row[ProviderModel{Provider: provider, Model: model}]
	if !ok {
		return DefaultBandwidth, false
	}
	if b < 0 {
		return 0, true
	}
	return b, true
}
