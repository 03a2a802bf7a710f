package access

import (
	"fmt"
	"testing"
	"time"

	"nudfans-backend/models"

	"github.com/stretchr/testify/assert"
)

var (
	now      = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	allTypes = []models.PostType{models.PostFree, models.PostSubscription, models.PostPPV}
)

func viewers() []*Viewer {
	return []*Viewer{
		nil,
		{UserID: "fan"},
		{UserID: "other-creator-user", CreatorID: "other-creator"},
		{UserID: "owner-user", CreatorID: "creator"},
	}
}

func TestEvaluate_FreeIsPublic(t *testing.T) {
	post := PostRef{ID: "p1", CreatorID: "creator", Type: models.PostFree}
	for _, v := range viewers() {
		d := Evaluate(v, post, NoEntitlements(), now, 0)
		assert.True(t, d.HasAccess)
		assert.Equal(t, ReasonFree, d.Reason)
	}
}

func TestEvaluate_AnonymousLocked(t *testing.T) {
	ents := Entitlements{
		SubscriptionEnds: map[string]time.Time{"creator": now.Add(time.Hour)},
		Purchased:        map[string]bool{"p1": true},
	}
	for _, typ := range []models.PostType{models.PostSubscription, models.PostPPV} {
		d := Evaluate(nil, PostRef{ID: "p1", CreatorID: "creator", Type: typ}, ents, now, 0)
		assert.False(t, d.HasAccess)
		assert.Equal(t, ReasonAnonymous, d.Reason)
	}
}

func TestEvaluate_OwnerOverride(t *testing.T) {
	owner := &Viewer{UserID: "owner-user", CreatorID: "creator"}
	for _, typ := range allTypes {
		d := Evaluate(owner, PostRef{ID: "p1", CreatorID: "creator", Type: typ}, NoEntitlements(), now, 0)
		assert.True(t, d.HasAccess, string(typ))
	}
}

func TestEvaluate_SubscriptionPeriodEnd(t *testing.T) {
	fan := &Viewer{UserID: "fan"}
	post := PostRef{ID: "p1", CreatorID: "creator", Type: models.PostSubscription}

	live := Entitlements{SubscriptionEnds: map[string]time.Time{"creator": now.Add(time.Minute)}}
	assert.True(t, Evaluate(fan, post, live, now, 0).HasAccess)

	stale := Entitlements{SubscriptionEnds: map[string]time.Time{"creator": now.Add(-time.Minute)}}
	d := Evaluate(fan, post, stale, now, 0)
	assert.False(t, d.HasAccess)
	assert.Equal(t, ReasonNotSubscribed, d.Reason)

	exact := Entitlements{SubscriptionEnds: map[string]time.Time{"creator": now}}
	assert.False(t, Evaluate(fan, post, exact, now, 0).HasAccess)

	assert.True(t, Evaluate(fan, post, stale, now, time.Hour).HasAccess, "inside the grace window")

	otherCreator := Entitlements{SubscriptionEnds: map[string]time.Time{"someone-else": now.Add(time.Hour)}}
	assert.False(t, Evaluate(fan, post, otherCreator, now, 0).HasAccess)
}

func TestEvaluate_PPV(t *testing.T) {
	fan := &Viewer{UserID: "fan"}
	post := PostRef{ID: "p1", CreatorID: "creator", Type: models.PostPPV}

	assert.False(t, Evaluate(fan, post, NoEntitlements(), now, 0).HasAccess)

	subscribed := Entitlements{SubscriptionEnds: map[string]time.Time{"creator": now.Add(time.Hour)}}
	assert.False(t, Evaluate(fan, post, subscribed, now, 0).HasAccess, "a subscription does not unlock ppv")

	bought := Entitlements{Purchased: map[string]bool{"p1": true}}
	d := Evaluate(fan, post, bought, now, 0)
	assert.True(t, d.HasAccess)
	assert.Equal(t, ReasonPurchased, d.Reason)
}

func TestEvaluate_PurchaseSurvivesTypeChange(t *testing.T) {
	fan := &Viewer{UserID: "fan"}
	bought := Entitlements{Purchased: map[string]bool{"p1": true}}

	for _, typ := range allTypes {
		d := Evaluate(fan, PostRef{ID: "p1", CreatorID: "creator", Type: typ}, bought, now, 0)
		assert.True(t, d.HasAccess, string(typ))
	}
}

// Exhaustive check over every combination of viewer and entitlement state.
func TestEvaluate_Properties(t *testing.T) {
	ends := []*time.Time{nil, ptr(now.Add(-24 * time.Hour)), ptr(now.Add(24 * time.Hour))}
	for _, v := range viewers() {
		for _, typ := range allTypes {
			for _, end := range ends {
				for _, purchased := range []bool{false, true} {
					ents := NoEntitlements()
					if end != nil {
						ents.SubscriptionEnds["creator"] = *end
					}
					ents.Purchased["p1"] = purchased
					post := PostRef{ID: "p1", CreatorID: "creator", Type: typ}
					d := Evaluate(v, post, ents, now, 0)
					name := fmt.Sprintf("viewer=%v type=%s end=%v purchased=%v", v, typ, end, purchased)

					switch {
					case typ == models.PostFree:
						assert.True(t, d.HasAccess, name)
					case v == nil:
						assert.False(t, d.HasAccess, name)
					case v.CreatorID == "creator":
						assert.True(t, d.HasAccess, name)
					case purchased:
						assert.True(t, d.HasAccess, name)
					case typ == models.PostSubscription:
						assert.Equal(t, end != nil && end.After(now), d.HasAccess, name)
					default:
						assert.False(t, d.HasAccess, name)
					}
				}
			}
		}
	}
}

func TestEvaluator_EvaluateAll(t *testing.T) {
	e := NewEvaluator(0).WithClock(func() time.Time { return now })
	posts := []PostRef{
		{ID: "a", CreatorID: "creator", Type: models.PostFree},
		{ID: "b", CreatorID: "creator", Type: models.PostSubscription},
		{ID: "c", CreatorID: "creator", Type: models.PostPPV},
		{ID: "d", CreatorID: "creator", Type: models.PostPPV},
	}
	ents := Entitlements{
		SubscriptionEnds: map[string]time.Time{"creator": now.Add(time.Hour)},
		Purchased:        map[string]bool{"d": true},
	}
	out := e.EvaluateAll(&Viewer{UserID: "fan"}, posts, ents)

	assert.Len(t, out, 4)
	assert.True(t, out["a"].HasAccess)
	assert.True(t, out["b"].HasAccess)
	assert.False(t, out["c"].HasAccess)
	assert.True(t, out["d"].HasAccess)
}

func ptr(t time.Time) *time.Time {
	return &t
}
