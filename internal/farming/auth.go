package farming

import "github.com/ethereum/go-ethereum/common"

// Authorizer decides who may act on pools and positions.
type Authorizer interface {
	IsAuthority(caller common.Address, pool *Pool) bool
	IsFunder(caller common.Address, pool *Pool) bool
	IsOwner(caller common.Address, pos *Position) bool
}

// RecordAuthorizer authorizes from the pool and position records themselves.
type RecordAuthorizer struct{}

// IsAuthority implements Authorizer.
func (RecordAuthorizer) IsAuthority(caller common.Address, pool *Pool) bool {
	return caller != (common.Address{}) && pool.Authority == caller
}

// IsFunder implements Authorizer. The authority is always a funder.
func (r RecordAuthorizer) IsFunder(caller common.Address, pool *Pool) bool {
	return r.IsAuthority(caller, pool) || (caller != (common.Address{}) && pool.IsFunder(caller))
}

// IsOwner implements Authorizer.
func (RecordAuthorizer) IsOwner(caller common.Address, pos *Position) bool {
	return caller != (common.Address{}) && pos.Owner == caller
}

var _ Authorizer = RecordAuthorizer{}
