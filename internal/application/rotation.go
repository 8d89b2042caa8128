package application

import (
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/ericfisherdev/cookiepool/internal/domain/model"
)

// eligibleStatuses are the statuses rotation may hand out.
var eligibleStatuses = mapset.NewSet(
	model.CredentialStatusActive,
	model.CredentialStatusUntested,
)

// exhaustedStatuses are the statuses that count toward a fully blocked pool.
var exhaustedStatuses = mapset.NewSet(
	model.CredentialStatusBlocked,
	model.CredentialStatusExpired,
	model.CredentialStatusError,
)

// eligibleView returns the positions in state.Credentials that rotation may
// select, in pool order.
func eligibleView(state *model.PoolState) []int {
	var view []int
	for i := range state.Credentials {
		if eligibleStatuses.Contains(state.Credentials[i].Status) {
			view = append(view, i)
		}
	}
	return view
}

// wrapIndex reduces idx into [0, n). n must be positive.
func wrapIndex(idx, n int) int {
	idx %= n
	if idx < 0 {
		idx += n
	}
	return idx
}

// selectCurrent returns the credential at CurrentIndex within the eligible view.
// With no eligible credential it falls back to the first record in the pool
// whatever its status, and returns nil only for an empty pool.
func selectCurrent(state *model.PoolState) *model.Credential {
	view := eligibleView(state)
	if len(view) == 0 {
		if len(state.Credentials) == 0 {
			return nil
		}
		c := state.Credentials[0]
		return &c
	}
	c := state.Credentials[view[wrapIndex(state.CurrentIndex, len(view))]]
	return &c
}

// advance moves CurrentIndex one step through the eligible view and returns
// the newly selected credential. It returns nil and leaves state untouched
// when nothing is eligible.
func advance(state *model.PoolState) *model.Credential {
	view := eligibleView(state)
	if len(view) == 0 {
		return nil
	}
	state.CurrentIndex = wrapIndex(state.CurrentIndex+1, len(view))
	c := state.Credentials[view[state.CurrentIndex]]
	return &c
}

// allExhausted reports whether no credential is eligible for rotation. An
// empty pool counts as exhausted.
func allExhausted(state *model.PoolState) bool {
	for _, c := range state.Credentials {
		if !exhaustedStatuses.Contains(c.Status) {
			return false
		}
	}
	return true
}
