// Package access decides whether a viewer may see a post. It is pure: entitlements are
// loaded by the caller (see entitlements.Store.LoadForViewer) and passed in.
package access

import (
	"time"

	"nudfans-backend/models"
)

// Viewer is the authenticated caller. A nil *Viewer is an anonymous visitor.
type Viewer struct {
	UserID string
	// CreatorID is the viewer's CreatorProfile id, empty for fans.
	CreatorID string
}

// PostRef carries the fields of a post the rules look at.
type PostRef struct {
	ID        string
	CreatorID string
	Type      models.PostType
}

func RefOf(p *models.Post) PostRef {
	return PostRef{ID: p.ID, CreatorID: p.CreatorID, Type: p.PostType}
}

// Entitlements are a viewer's access grants, loaded once per request.
type Entitlements struct {
	// SubscriptionEnds maps a creator id to the period end of the viewer's entitling
	// subscription (active or past_due).
	SubscriptionEnds map[string]time.Time
	// Purchased holds the ids of posts with a completed PPV purchase.
	Purchased map[string]bool
}

func NoEntitlements() Entitlements {
	return Entitlements{SubscriptionEnds: map[string]time.Time{}, Purchased: map[string]bool{}}
}

type Reason string

const (
	ReasonFree          Reason = "free"
	ReasonAnonymous     Reason = "anonymous"
	ReasonOwner         Reason = "owner"
	ReasonSubscribed    Reason = "subscribed"
	ReasonNotSubscribed Reason = "not_subscribed"
	ReasonPurchased     Reason = "purchased"
	ReasonNotPurchased  Reason = "not_purchased"
	ReasonUnknownType   Reason = "unknown_type"
)

type Decision struct {
	HasAccess bool   `json:"hasAccess"`
	Reason    Reason `json:"reason"`
}

// Evaluator applies the access rules with a configurable grace window after the period end.
type Evaluator struct {
	grace time.Duration
	now   func() time.Time
}

func NewEvaluator(grace time.Duration) *Evaluator {
	return &Evaluator{grace: grace, now: time.Now}
}

// WithClock returns a copy using now as its clock.
func (e *Evaluator) WithClock(now func() time.Time) *Evaluator {
	return &Evaluator{grace: e.grace, now: now}
}

func (e *Evaluator) Evaluate(viewer *Viewer, post PostRef, ents Entitlements) Decision {
	return Evaluate(viewer, post, ents, e.now(), e.grace)
}

// EvaluateAll returns one decision per post id.
func (e *Evaluator) EvaluateAll(viewer *Viewer, posts []PostRef, ents Entitlements) map[string]Decision {
	now := e.now()
	out := make(map[string]Decision, len(posts))
	for _, p := range posts {
		out[p.ID] = Evaluate(viewer, p, ents, now, e.grace)
	}
	return out
}

// Evaluate applies, in order: free posts are public, anonymous viewers see nothing else,
// owners see everything, subscription posts need a subscription whose period end (plus
// grace) is still ahead, ppv posts need a completed purchase. A completed purchase also
// keeps unlocking a post whose type later moved away from ppv.
func Evaluate(viewer *Viewer, post PostRef, ents Entitlements, now time.Time, grace time.Duration) Decision {
	if post.Type == models.PostFree {
		return Decision{HasAccess: true, Reason: ReasonFree}
	}
	if viewer == nil || viewer.UserID == "" {
		return Decision{HasAccess: false, Reason: ReasonAnonymous}
	}
	if viewer.CreatorID != "" && viewer.CreatorID == post.CreatorID {
		return Decision{HasAccess: true, Reason: ReasonOwner}
	}
	if ents.Purchased[post.ID] {
		return Decision{HasAccess: true, Reason: ReasonPurchased}
	}

	switch post.Type {
	case models.PostSubscription:
		end, ok := ents.SubscriptionEnds[post.CreatorID]
		if ok && now.Before(end.Add(grace)) {
			return Decision{HasAccess: true, Reason: ReasonSubscribed}
		}
		return Decision{HasAccess: false, Reason: ReasonNotSubscribed}
	case models.PostPPV:
		return Decision{HasAccess: false, Reason: ReasonNotPurchased}
	}
	return Decision{HasAccess: false, Reason: ReasonUnknownType}
}
