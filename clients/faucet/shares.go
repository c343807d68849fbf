package faucet

import (
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/AGPFMiner/sepominer/types"
)

//ShareTracker remembers submitted shares until their result arrives or they expire
type ShareTracker struct {
	shares *cache.Cache
}

func NewShareTracker(ttl time.Duration) *ShareTracker {
	return &ShareTracker{shares: cache.New(ttl, 2*ttl)}
}

func (st *ShareTracker) Submitted(share types.Share) {
	share.Status = types.ShareSubmitted
	st.shares.SetDefault(share.ID, share)
}

//Resolve moves a share to its terminal state and forgets it
func (st *ShareTracker) Resolve(id string, status types.ShareStatus, reason string) (types.Share, bool) {
	v, ok := st.shares.Get(id)
	if !ok {
		return types.Share{}, false
	}
	st.shares.Delete(id)
	share := v.(types.Share)
	share.Status = status
	share.Error = reason
	return share, true
}

func (st *ShareTracker) Pending() int {
	return st.shares.ItemCount()
}
