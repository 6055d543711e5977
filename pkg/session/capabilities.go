// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

package session

// Capabilities is the process-wide, Datastore-owned allow/deny policy
// described in spec.md §4.6 "Capability enforcement ... covers:
// RPC-method allow-list, HTTP-route allow-list, arbitrary-query
// allow-list by subject, network-target allow-list ..., guest-access
// switch." It is constructed once at Datastore setup and shared
// read-only across every Session, per spec.md §9's "no global mutable
// state" rule — it lives on the Datastore, not in a package global.
type Capabilities struct {
	guestAccess bool

	scriptingAllowed bool

	rpcMethods   allowList
	httpRoutes   allowList
	querySubject allowList
	netTargets   allowList

	funcDeny allowList // names / prefixes ("http::*") explicitly denied
	fileRoot string     // empty means file access is denied entirely

	forwardAccessErrors bool
}

// allowList is a simple allow-all-except/deny-all-except list: empty
// Allow means "allow everything not explicitly denied".
type allowList struct {
	allow []string
	deny  []string
}

func (l allowList) permits(name string) bool {
	for _, d := range l.deny {
		if matchGlob(d, name) {
			return false
		}
	}
	if len(l.allow) == 0 {
		return true
	}
	for _, a := range l.allow {
		if matchGlob(a, name) {
			return true
		}
	}
	return false
}

// matchGlob supports a single trailing "*" wildcard, matching the
// "http::*" style entries spec.md's capability lists use.
func matchGlob(pattern, name string) bool {
	if pattern == name {
		return true
	}
	if n := len(pattern); n > 0 && pattern[n-1] == '*' {
		prefix := pattern[:n-1]
		return len(name) >= len(prefix) && name[:len(prefix)] == prefix
	}
	return false
}

// NewCapabilities builds a default-safe policy: no guest access, no
// scripting, no file access, every RPC method and HTTP route allowed
// (the outer transport layer is expected to apply its own allow-list
// before calling into the core).
func NewCapabilities() *Capabilities {
	return &Capabilities{}
}

func (c *Capabilities) WithGuestAccess(v bool) *Capabilities      { c.guestAccess = v; return c }
func (c *Capabilities) WithScripting(v bool) *Capabilities        { c.scriptingAllowed = v; return c }
func (c *Capabilities) WithFileAccessRoot(root string) *Capabilities { c.fileRoot = root; return c }

func (c *Capabilities) WithRPCMethods(allow, deny []string) *Capabilities {
	c.rpcMethods = allowList{allow: allow, deny: deny}
	return c
}

func (c *Capabilities) WithHTTPRoutes(allow, deny []string) *Capabilities {
	c.httpRoutes = allowList{allow: allow, deny: deny}
	return c
}

func (c *Capabilities) WithQuerySubjects(allow, deny []string) *Capabilities {
	c.querySubject = allowList{allow: allow, deny: deny}
	return c
}

func (c *Capabilities) WithNetTargets(allow, deny []string) *Capabilities {
	c.netTargets = allowList{allow: allow, deny: deny}
	return c
}

func (c *Capabilities) WithFunctionDeny(deny []string) *Capabilities {
	c.funcDeny = allowList{deny: deny}
	return c
}

// WithForwardAccessErrors controls whether a failed record access
// SIGNIN/AUTHENTICATE expression surfaces its underlying error instead
// of the opaque InvalidAuth sentinel. Dev-only; defaults to off, since
// forwarding distinguishes "user not found" from "wrong password" and
// every other InvalidAuth-collapsing case spec.md §7/§8 requires.
func (c *Capabilities) WithForwardAccessErrors(v bool) *Capabilities {
	c.forwardAccessErrors = v
	return c
}

func (c *Capabilities) ForwardAccessErrorsAllowed() bool { return c.forwardAccessErrors }

func (c *Capabilities) GuestAccessAllowed() bool { return c.guestAccess }

func (c *Capabilities) AllowsRPCMethod(method string) bool   { return c.rpcMethods.permits(method) }
func (c *Capabilities) AllowsHTTPRoute(route string) bool    { return c.httpRoutes.permits(route) }
func (c *Capabilities) AllowsQueryBySubject(subj string) bool { return c.querySubject.permits(subj) }
func (c *Capabilities) AllowsNetTarget(host string) bool      { return c.netTargets.permits(host) }

func (c *Capabilities) AllowsFunction(name string) bool { return c.funcDeny.permits(name) }
func (c *Capabilities) AllowsScripting() bool           { return c.scriptingAllowed }

func (c *Capabilities) AllowsFileAccess(path string) (string, bool) {
	if c.fileRoot == "" {
		return "", false
	}
	return c.fileRoot, true
}
