package services

import (
	"strings"
	"testing"

	"github.com/GregMSThompson/skiploss-console/internal/models"
)

func TestGenerateTemplate(t *testing.T) {
	vehicle := models.Vehicle{
		VIN:        "WDB9634031L123456",
		Make:       "Mercedes-Benz",
		Model:      "Actros",
		Year:       2019,
		CustomerID: "CUST-001",
		Address:    "Rua Augusta 100, São Paulo",
	}
	agent := models.Agent{Name: "Carlos Silva"}

	got := GenerateTemplate(vehicle, agent)

	for _, want := range []string{
		"Subject: Daimler Truck Repossession Request - Mercedes-Benz Actros (WDB9634031L123456)\n",
		"Dear Carlos Silva,",
		"- VIN: WDB9634031L123456",
		"- Vehicle: Mercedes-Benz Actros 2019",
		"- Customer ID: CUST-001",
		"Agent Specialty: General Truck Repossession",
		"Google Maps: https://www.google.com/maps/search/Rua%20Augusta%20100%2C%20S%C3%A3o%20Paulo\n",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("template missing %q:\n%s", want, got)
		}
	}
	if !strings.HasSuffix(got, "Best regards,\nDaimler Truck Repossession Team") {
		t.Fatalf("template closing mismatch:\n%s", got)
	}
	if GenerateTemplate(vehicle, agent) != got {
		t.Fatalf("template is not deterministic")
	}
}

func TestGenerateTemplateUsesExplicitDetails(t *testing.T) {
	vehicle := models.Vehicle{
		VIN:            "1FUJGLDR5CLBP8834",
		Make:           "Freightliner",
		Model:          "Cascadia",
		Address:        "Av. Reforma 1",
		GoogleMapsLink: "https://maps.example/abc",
	}
	agent := models.Agent{Name: "Ana", Specialty: "Heavy Duty Recovery"}

	got := GenerateTemplate(vehicle, agent)
	if !strings.Contains(got, "Agent Specialty: Heavy Duty Recovery") {
		t.Fatalf("specialty not used:\n%s", got)
	}
	if !strings.Contains(got, "Google Maps: https://maps.example/abc\n") {
		t.Fatalf("maps link not used:\n%s", got)
	}
}

func TestEncodeComponent(t *testing.T) {
	if got := encodeComponent("a b/c?d=(e)!*'~"); got != "a%20b%2Fc%3Fd%3D(e)!*'~" {
		t.Fatalf("encodeComponent mismatch: %s", got)
	}
}
