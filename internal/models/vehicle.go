package models

// Vehicle is a truck in skip-loss status as returned by the lookup gateway.
// Field names follow the gateway payload.
type Vehicle struct {
	VIN            string `json:"VIN"`
	Make           string `json:"Make"`
	Model          string `json:"Model"`
	Year           int    `json:"Year"`
	CustomerID     string `json:"CustomerID"`
	Address        string `json:"Address"`
	Country        string `json:"Country,omitempty"`
	Region         string `json:"Region,omitempty"`
	GoogleMapsLink string `json:"GoogleMapsLink,omitempty"`
}

// Agent is a recovery agent qualified for repossessions in a region.
type Agent struct {
	AgentID   int    `json:"AgentID"`
	Name      string `json:"Name"`
	Phone     string `json:"Phone"`
	Email     string `json:"Email"`
	Region    string `json:"Region"`
	Specialty string `json:"Specialty,omitempty"`
	Country   string `json:"Country,omitempty"`
}
