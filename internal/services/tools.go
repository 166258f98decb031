package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/GregMSThompson/skiploss-console/internal/dto"
	"github.com/GregMSThompson/skiploss-console/internal/models"
	"github.com/GregMSThompson/skiploss-console/pkg/logger"
)

const (
	ToolSkipLossVehicles    = "get_skip_loss_vehicles"
	ToolRepossessionAgents  = "find_repossession_agent"
	countryParamDescription = `Country name (e.g., "Brazil", "Mexico", "Germany", "Spain")`
	regionParamDescription  = "State, province, or region within the country (optional)"
)

// lookupClient returns gateway records undecoded; the model sees them as the
// gateway sent them.
type lookupClient interface {
	GetSkipLossVehicles(ctx context.Context, country, region string) ([]json.RawMessage, error)
	FindRepossessionAgents(ctx context.Context, country, region string) ([]json.RawMessage, error)
}

type sessionStore interface {
	Create(ctx context.Context, settings models.ChatSettings) (models.Session, error)
	Get(ctx context.Context, id string) (models.Session, error)
	Update(ctx context.Context, id string, fn func(*models.Session) error) (models.Session, error)
	Delete(ctx context.Context, id string) error
	IDs(ctx context.Context) []string
}

// toolRegistry is built once; the same declarations go out on every first
// pass of a turn.
var toolRegistry = []dto.ChatTool{
	locationTool(ToolSkipLossVehicles, "Get Daimler trucks in skip loss status for a specific country and optional region"),
	locationTool(ToolRepossessionAgents, "Find repossession agents specializing in Daimler trucks for a specific country and optional region"),
}

func locationTool(name, description string) dto.ChatTool {
	return dto.ChatTool{
		Type: dto.ToolTypeFunction,
		Function: dto.ChatFunction{
			Name:        name,
			Description: description,
			Parameters: &dto.Schema{
				Type: "object",
				Properties: map[string]*dto.Schema{
					"country": {Type: "string", Description: countryParamDescription},
					"region":  {Type: "string", Description: regionParamDescription},
				},
				Required: []string{"country"},
			},
		},
	}
}

// ToolDeclarations returns a copy of the registry.
func ToolDeclarations() []dto.ChatTool {
	return append([]dto.ChatTool{}, toolRegistry...)
}

type locationArgs struct {
	Country string `json:"country"`
	Region  string `json:"region"`
}

type toolExecutor struct {
	lookups lookupClient
	store   sessionStore
}

func NewToolExecutor(lookups lookupClient, store sessionStore) *toolExecutor {
	return &toolExecutor{lookups: lookups, store: store}
}

// Execute runs one tool invocation for a session and returns the payload to
// feed back to the model: the gateway records unchanged. The session keeps
// the records that decode into its typed result set. Lookups fail open: on
// any lookup failure the payload is an empty list and the matching result
// set is emptied. Arguments that are not valid JSON are returned as an error,
// whatever the tool name.
func (e *toolExecutor) Execute(ctx context.Context, sessionID, name, rawArgs string) (any, error) {
	log := logger.FromContext(ctx).With("tool", name)

	var args locationArgs
	if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
		return nil, fmt.Errorf("invalid arguments for %s: %w", name, err)
	}

	switch name {
	case ToolSkipLossVehicles:
		log.Info("executing tool", "country", args.Country, "region", args.Region)
		records, err := guard(func() ([]json.RawMessage, error) {
			return e.lookups.GetSkipLossVehicles(ctx, args.Country, args.Region)
		})
		if err != nil {
			log.Error("vehicle lookup failed", "error", err)
			records = []json.RawMessage{}
		}
		vehicles := decodeRecords[models.Vehicle](log, records)
		if _, err := e.store.Update(ctx, sessionID, func(s *models.Session) error {
			s.Vehicles = vehicles
			return nil
		}); err != nil {
			return nil, err
		}
		return records, nil

	case ToolRepossessionAgents:
		log.Info("executing tool", "country", args.Country, "region", args.Region)
		records, err := guard(func() ([]json.RawMessage, error) {
			return e.lookups.FindRepossessionAgents(ctx, args.Country, args.Region)
		})
		if err != nil {
			log.Error("agent lookup failed", "error", err)
			records = []json.RawMessage{}
		}
		agents := decodeRecords[models.Agent](log, records)
		if _, err := e.store.Update(ctx, sessionID, func(s *models.Session) error {
			s.Agents = agents
			return nil
		}); err != nil {
			return nil, err
		}
		return records, nil

	default:
		log.Warn("model requested unknown tool")
		return map[string]string{"error": "Unknown function: " + name}, nil
	}
}

// decodeRecords keeps the records that decode into T and skips the rest.
func decodeRecords[T any](log *slog.Logger, records []json.RawMessage) []T {
	out := make([]T, 0, len(records))
	for i, raw := range records {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			log.Warn("skipping undecodable record", "index", i, "error", err)
			continue
		}
		out = append(out, v)
	}
	return out
}

// guard turns a panic in a lookup into an error and a nil result into an
// empty one.
func guard[T any](fn func() ([]T, error)) (out []T, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("lookup panicked: %v", r)
		}
	}()
	out, err = fn()
	if out == nil {
		out = []T{}
	}
	return out, err
}
