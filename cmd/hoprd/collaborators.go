package main

import (
	goerrors "github.com/go-errors/errors"

	"github.com/hoprnet/hopr-relay/action"
	"github.com/hoprnet/hopr-relay/internal/chain"
	"github.com/hoprnet/hopr-relay/internal/store"
	"github.com/hoprnet/hopr-relay/internal/wire"
)

// errNoCollaborators is returned by wireCollaborators in this reference
// binary: libp2p transport, EVM chain RPC, and SQL persistence are named
// in spec.md section 1 as external collaborators this module wires
// against but never implements (see DESIGN.md's "dropped teacher/pack
// dependencies"), so hoprd has nothing concrete to hand hopr.Config here.
// A real deployment forks this file to construct its own
// wire.Transport/chain.Client/store.Repository/action.PayloadGenerator/
// action.TransactionExecutor/action.Depth and calls hopr.New directly.
var errNoCollaborators = goerrors.Errorf(
	"hoprd: no concrete transport/chain/repository wired; see cmd/hoprd/collaborators.go",
)

// collaborators bundles every external dependency hopr.Config needs
// beyond identity and policy.
type collaborators struct {
	transport  wire.Transport
	chainCln   chain.Client
	repo       store.Repository
	payloadGen action.PayloadGenerator
	txExec     action.TransactionExecutor
	depth      action.Depth
}

// wireCollaborators is the single integration seam a concrete deployment
// of this binary must fill in. It intentionally returns an error rather
// than a mock implementation: a mixnet relay that silently ran against a
// fake chain/transport would look live while forwarding nothing and
// redeeming nothing.
func wireCollaborators(cfg *config) (*collaborators, error) {
	return nil, errNoCollaborators
}
