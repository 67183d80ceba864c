package ports

import "github.com/aretw0/bandit/pkg/domain"

// Host is the set of callbacks a consumer registers on a mounted context.
type Host interface {
	// OnReady is called once, after the exposure has been recorded.
	OnReady(snap domain.Snapshot)

	// OnError is called for transport and timeout failures. The context
	// still becomes ready with the fallback site.
	OnError(err error, snap domain.Snapshot)

	// OnSelect is called after a manual override with the chosen variant name.
	OnSelect(variant string)
}

// HostFuncs adapts plain functions to Host. Nil fields are no-ops.
type HostFuncs struct {
	Ready    func(domain.Snapshot)
	Error    func(error, domain.Snapshot)
	Selected func(string)
}

func (h HostFuncs) OnReady(snap domain.Snapshot) {
	if h.Ready != nil {
		h.Ready(snap)
	}
}

func (h HostFuncs) OnError(err error, snap domain.Snapshot) {
	if h.Error != nil {
		h.Error(err, snap)
	}
}

func (h HostFuncs) OnSelect(variant string) {
	if h.Selected != nil {
		h.Selected(variant)
	}
}
