package services

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/GregMSThompson/skiploss-console/internal/models"
	"github.com/GregMSThompson/skiploss-console/pkg/helpers"
)

const (
	defaultSpecialty = "General Truck Repossession"
	mapsSearchURL    = "https://www.google.com/maps/search/"
)

const emailTemplate = `Subject: Daimler Truck Repossession Request - %[1]s %[2]s (%[3]s)

Dear %[4]s,

I hope this email finds you well. We have a Daimler truck repossession request that matches your service area and expertise.

Vehicle Details:
- VIN: %[3]s
- Vehicle: %[1]s %[2]s %[5]d
- Customer ID: %[6]s
- Location: %[7]s
- Status: Skip Loss

Agent Specialty: %[8]s

Location Information:
Address: %[7]s
Google Maps: %[9]s

Next Steps:
Please confirm your availability and provide an estimated timeline for this truck repossession. We can discuss compensation and any special requirements for this heavy-duty vehicle recovery.

Thank you for your prompt attention to this matter.

Best regards,
Daimler Truck Repossession Team`

// GenerateTemplate renders the contact email for one vehicle and one agent.
func GenerateTemplate(vehicle models.Vehicle, agent models.Agent) string {
	return fmt.Sprintf(emailTemplate,
		vehicle.Make,
		vehicle.Model,
		vehicle.VIN,
		agent.Name,
		vehicle.Year,
		vehicle.CustomerID,
		vehicle.Address,
		helpers.FirstNonEmpty(agent.Specialty, defaultSpecialty),
		mapsLink(vehicle),
	)
}

func mapsLink(vehicle models.Vehicle) string {
	if vehicle.GoogleMapsLink != "" {
		return vehicle.GoogleMapsLink
	}
	return mapsSearchURL + encodeComponent(vehicle.Address)
}

var componentUnescapes = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

// encodeComponent escapes s the way browsers escape a single URI component:
// spaces become %20 and !'()* are left alone.
func encodeComponent(s string) string {
	return componentUnescapes.Replace(url.QueryEscape(s))
}
