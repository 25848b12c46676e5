// Package router maps an abstract request (agent, message, user tier,
// optional hint) to a logical model plus its fallback chain. Selection is
// keyword- and persona-driven; the registry is the source of truth for what
// each tier contains and how chains are declared.
package router

import (
	"context"
	"fmt"

	"github.com/auraforge/relay/internal/domain"
	"github.com/auraforge/relay/internal/observability"
)

// Router implements the domain.Router interface.
type Router struct {
	registry domain.ModelRegistry
	health   domain.HealthMonitor
}

// New creates a new router (DI constructor).
func New(registry domain.ModelRegistry, health domain.HealthMonitor) *Router {
	return &Router{
		registry: registry,
		health:   health,
	}
}

// Pick selects the logical model and fallback chain for a request.
//
// A known model hint is used verbatim. Otherwise the keyword rules choose a
// task class, the class maps to a model tier, and the user's tier may
// downgrade the pick: free users never get reasoning or normal models, pro
// users never get reasoning.
func (r *Router) Pick(
	ctx context.Context,
	agentName, lastUserMessage string,
	tier domain.UserTier,
	modelHint string,
) (domain.Route, error) {
	logger := observability.FromContext(ctx)

	if modelHint != "" && r.registry.Has(modelHint) {
		logger.Info("routing by model hint", observability.String("model", modelHint))
		return r.routeFor(modelHint)
	}

	class := classify(agentName, lastUserMessage)
	modelTier := tierFor(class)
	downgraded := downgrade(modelTier, tier)

	// A downgrade to the fast tier lands on its cheapest model; an
	// organic fast pick follows registry declaration order.
	preferCheapest := downgraded != modelTier && downgraded == domain.ModelTierFast

	entry, err := r.pickFromTier(downgraded, preferCheapest)
	if err != nil {
		return domain.Route{}, err
	}

	logger.Info("model selected",
		observability.String("task_class", string(class)),
		observability.String("tier", string(downgraded)),
		observability.String("model", entry.Name),
	)

	return r.routeFor(entry.Name)
}

// tierFor maps a task class to a model tier. Coding, creative, and planning
// all want a strong general model.
func tierFor(class taskClass) domain.ModelTier {
	switch class {
	case taskReasoning:
		return domain.ModelTierReasoning
	case taskCoding, taskCreative, taskPlanning:
		return domain.ModelTierNormal
	case taskVision:
		return domain.ModelTierVision
	default:
		return domain.ModelTierFast
	}
}

// downgrade applies the user-tier access policy.
func downgrade(modelTier domain.ModelTier, tier domain.UserTier) domain.ModelTier {
	switch tier {
	case domain.TierFree:
		if modelTier == domain.ModelTierReasoning || modelTier == domain.ModelTierNormal {
			return domain.ModelTierFast
		}
	case domain.TierPro:
		if modelTier == domain.ModelTierReasoning {
			return domain.ModelTierNormal
		}
	}
	return modelTier
}

// pickFromTier returns the tier's preferred model: the first declared, or
// the cheapest when preferCheapest is set.
func (r *Router) pickFromTier(tier domain.ModelTier, preferCheapest bool) (domain.ModelEntry, error) {
	entries := r.registry.ByTier(tier)
	if len(entries) == 0 {
		return domain.ModelEntry{}, fmt.Errorf("%w: no models in tier %s", domain.ErrRouteExhausted, tier)
	}

	if !preferCheapest {
		return entries[0], nil
	}

	best := entries[0]
	for _, e := range entries[1:] {
		if e.InputRate+e.OutputRate < best.InputRate+best.OutputRate {
			best = e
		}
	}
	return best, nil
}

// routeFor builds the route for a logical model. Chain entries whose
// provider is currently unavailable are pushed to the back as late retry
// candidates rather than dropped.
func (r *Router) routeFor(name string) (domain.Route, error) {
	entry, err := r.registry.Resolve(name)
	if err != nil {
		return domain.Route{}, err
	}

	var available, parked []string
	for _, fb := range entry.Fallbacks {
		fbEntry, resolveErr := r.registry.Resolve(fb)
		if resolveErr != nil {
			continue
		}
		if fbEntry.AlwaysAvailable || r.health.IsAvailable(fbEntry.Provider) {
			available = append(available, fb)
		} else {
			parked = append(parked, fb)
		}
	}

	return domain.Route{
		Primary: entry.Name,
		Chain:   append(available, parked...),
	}, nil
}
