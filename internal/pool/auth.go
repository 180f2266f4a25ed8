package pool

import "github.com/ethereum/go-ethereum/common"

// Authorizer decides which callers may administer pools.
type Authorizer interface {
	IsAdmin(addr common.Address) bool
}

// StaticAdmins is a fixed admin set.
type StaticAdmins map[common.Address]struct{}

// NewStaticAdmins builds the admin set from addrs.
func NewStaticAdmins(addrs ...common.Address) StaticAdmins {
	out := make(StaticAdmins, len(addrs))
	for _, a := range addrs {
		out[a] = struct{}{}
	}
	return out
}

// IsAdmin reports whether addr is in the set. The zero address never is.
func (s StaticAdmins) IsAdmin(addr common.Address) bool {
	if addr == (common.Address{}) {
		return false
	}
	_, ok := s[addr]
	return ok
}
