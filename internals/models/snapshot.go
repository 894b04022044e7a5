package models

// Controller is an active controller position as reported by the network data feed.
type Controller struct {
	CID         int64    `json:"cid"`
	Name        string   `json:"name"`
	Callsign    string   `json:"callsign"`
	Frequency   string   `json:"frequency"`
	Facility    int      `json:"facility"`
	Rating      int      `json:"rating"`
	Server      string   `json:"server"`
	VisualRange int      `json:"visual_range"`
	TextATIS    []string `json:"text_atis"`
	LogonTime   string   `json:"logon_time"`
	LastUpdated string   `json:"last_updated"`
}

// Airport is a facility record attached to the snapshot. The feed does not
// populate it yet; the field is kept so the response shape stays stable.
type Airport struct {
	ArptID      string `json:"arpt_id"`
	ICAOID      string `json:"icao_id"`
	StateCode   string `json:"state_code"`
	City        string `json:"city"`
	ArptName    string `json:"arpt_name"`
	RespARTCCID string `json:"resp_artcc_id"`
	ArptStatus  string `json:"arpt_status"`
	TwrTypeCode string `json:"twr_type_code"`
}

// NetworkStats summarizes the network population.
type NetworkStats struct {
	ConnectedClients int `json:"connected_clients"`
	UniqueUsers      int `json:"unique_users"`
}

// Snapshot is the result of one snapshot load.
type Snapshot struct {
	Controllers []Controller `json:"controllers"`
	Airports    []Airport    `json:"airports"`
	Stats       NetworkStats `json:"stats"`
}

// EmptySnapshot returns the fallback result used when the upstream feed is unavailable.
func EmptySnapshot() Snapshot {
	return Snapshot{
		Controllers: []Controller{},
		Airports:    []Airport{},
	}
}
