package coordinator

import "github.com/pkg/errors"

// errReloadAncestorNotFound is returned by FatalErr when RELOAD_STATE
// cannot find a committed ancestor within cfg.ReloadLimit blocks
// (spec.md §7: "Fatal ... process must refuse to start").
var errReloadAncestorNotFound = errors.New("coordinator: no committed ancestor found within reload limit")
