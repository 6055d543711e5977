// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

package iam

import (
	"storj.io/coredb/pkg/errs2"
	"storj.io/coredb/pkg/session"
)

// EnforceRPCMethod translates a Capabilities RPC allow-list check into
// the typed ForbiddenRoute error spec.md §7 names.
func EnforceRPCMethod(caps *session.Capabilities, method string) error {
	if !caps.AllowsRPCMethod(method) {
		return errs2.ForbiddenRoute.New("rpc method %q not allowed", method)
	}
	return nil
}

// EnforceHTTPRoute translates a Capabilities HTTP allow-list check.
func EnforceHTTPRoute(caps *session.Capabilities, route string) error {
	if !caps.AllowsHTTPRoute(route) {
		return errs2.ForbiddenRoute.New("http route %q not allowed", route)
	}
	return nil
}

// EnforceQueryBySubject translates a Capabilities arbitrary-query
// allow-list check (e.g. a specific record id requesting LIVE SELECT).
func EnforceQueryBySubject(caps *session.Capabilities, subject string) error {
	if !caps.AllowsQueryBySubject(subject) {
		return errs2.ForbiddenRoute.New("query by subject %q not allowed", subject)
	}
	return nil
}

// EnforceNetTarget translates a Capabilities outbound network
// allow-list check (used before JWKS fetches and similar calls).
func EnforceNetTarget(caps *session.Capabilities, host string) error {
	if !caps.AllowsNetTarget(host) {
		return errs2.NetTargetNotAllowed.New("net target %q not allowed", host)
	}
	return nil
}

// EnforceFunction translates a Capabilities function-name deny-list
// check.
func EnforceFunction(caps *session.Capabilities, name string) error {
	if !caps.AllowsFunction(name) {
		return errs2.FunctionNotAllowed.New("function %q not allowed", name)
	}
	return nil
}

// EnforceScripting reports ScriptingNotAllowed unless caps permits
// scripting (the JavaScript function runtime).
func EnforceScripting(caps *session.Capabilities) error {
	if !caps.AllowsScripting() {
		return errs2.ScriptingNotAllowed.New("scripting not allowed")
	}
	return nil
}

// EnforceFileAccess returns the permitted root directory for file::
// function calls, or FileAccessDenied if file access is disabled
// entirely.
func EnforceFileAccess(caps *session.Capabilities, path string) (string, error) {
	root, ok := caps.AllowsFileAccess(path)
	if !ok {
		return "", errs2.FileAccessDenied.New("file access not allowed")
	}
	return root, nil
}

// EnforceGuestAccess reports ErrInvalidAuth unless guest (anonymous)
// access is permitted.
func EnforceGuestAccess(caps *session.Capabilities, auth session.Auth) error {
	if auth.IsAnon() && !caps.GuestAccessAllowed() {
		return errs2.ErrInvalidAuth
	}
	return nil
}
