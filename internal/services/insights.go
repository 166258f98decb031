package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/GregMSThompson/skiploss-console/internal/dto"
	"github.com/GregMSThompson/skiploss-console/internal/events"
	"github.com/GregMSThompson/skiploss-console/internal/models"
	"github.com/GregMSThompson/skiploss-console/pkg/logger"
)

// Trucks per agent above which an assignment warning is raised.
const agentLoadThreshold = 3

type eventPublisher interface {
	Sessions() []string
	Publish(sessionID, eventType string, data any) int
}

type insightsService struct {
	store    sessionStore
	hub      eventPublisher
	interval time.Duration
	tick     int
}

func NewInsightsService(store sessionStore, hub eventPublisher, interval time.Duration) *insightsService {
	return &insightsService{store: store, hub: hub, interval: interval}
}

// Run publishes insights every interval until ctx ends. A non-positive
// interval disables the producer.
func (s *insightsService) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	log := logger.FromContext(ctx)
	log.Info("insights producer started", "interval", s.interval.String())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("insights producer stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick publishes one insight to every session with subscribers and returns
// how many were published. Successive ticks rotate through a session's
// insights.
func (s *insightsService) Tick(ctx context.Context) int {
	published := 0
	for _, id := range s.hub.Sessions() {
		session, err := s.store.Get(ctx, id)
		if err != nil {
			continue
		}
		insights := DeriveInsights(session)
		if len(insights) == 0 {
			continue
		}
		if s.hub.Publish(id, events.TypeInsight, insights[s.tick%len(insights)]) > 0 {
			published++
		}
	}
	s.tick++
	return published
}

// DeriveInsights reads a session's current result sets and produces
// advisories for the operator. It never changes the session.
func DeriveInsights(session models.Session) []dto.Insight {
	vehicles, agents := session.Vehicles, session.Agents

	if len(vehicles) == 0 {
		return []dto.Insight{{
			Kind:     "idle",
			Severity: "info",
			Title:    "No trucks loaded",
			Detail:   "Ask for skip-loss trucks in Brazil, Mexico, Germany or Spain to start a recovery.",
		}}
	}

	if len(agents) == 0 {
		return []dto.Insight{{
			Kind:     "coverage_gap",
			Severity: "critical",
			Title:    fmt.Sprintf("%d trucks without a recovery agent", len(vehicles)),
			Detail:   "No repossession agents were found for this search. Try a neighbouring region.",
		}}
	}

	var out []dto.Insight
	for _, region := range uncoveredRegions(vehicles, agents) {
		out = append(out, dto.Insight{
			Kind:     "coverage_gap",
			Severity: "warning",
			Title:    "No agent in " + region,
			Detail:   fmt.Sprintf("Trucks in %s have no agent working that region.", region),
		})
	}

	if len(vehicles) > len(agents)*agentLoadThreshold {
		out = append(out, dto.Insight{
			Kind:     "agent_load",
			Severity: "warning",
			Title:    "High agent load",
			Detail:   fmt.Sprintf("%d trucks share %d agents.", len(vehicles), len(agents)),
		})
	}

	if session.EmailTemplate != "" {
		out = append(out, dto.Insight{
			Kind:     "follow_up",
			Severity: "info",
			Title:    "Contact email drafted",
			Detail:   "Review the email template and send it to the selected agent.",
		})
	} else {
		out = append(out, dto.Insight{
			Kind:     "ready",
			Severity: "info",
			Title:    "Ready to contact agents",
			Detail:   fmt.Sprintf("%d trucks and %d agents loaded. Generate a contact email.", len(vehicles), len(agents)),
		})
	}
	return out
}

// uncoveredRegions lists vehicle regions no agent serves, sorted. Vehicles
// without a region are ignored.
func uncoveredRegions(vehicles []models.Vehicle, agents []models.Agent) []string {
	served := make(map[string]bool, len(agents))
	for _, a := range agents {
		served[strings.ToLower(strings.TrimSpace(a.Region))] = true
	}

	seen := make(map[string]bool)
	var out []string
	for _, v := range vehicles {
		region := strings.TrimSpace(v.Region)
		key := strings.ToLower(region)
		if region == "" || served[key] || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, region)
	}
	sort.Strings(out)
	return out
}
