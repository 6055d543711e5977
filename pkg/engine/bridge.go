// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

package engine

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"storj.io/coredb/pkg/catalog"
	"storj.io/coredb/pkg/errs2"
	"storj.io/coredb/pkg/iam"
	"storj.io/coredb/pkg/indexbuild"
	"storj.io/coredb/pkg/session"
	"storj.io/coredb/pkg/storage"
)

// ExprParser is the subset of a grammar implementation that can
// compile a single stand-alone expression (as opposed to a whole
// statement plan) into a Statement. AUTHENTICATE/SIGNIN clauses and
// index field expressions are both single expressions in this sense;
// Engine is the one place that holds both C6's RecordEvaluator seam
// and C7's ValueComputer seam, because only C9 can turn expression
// source text into something runnable (spec.md §4.6, §4.7).
type ExprParser interface {
	ParseExpr(src string) (Statement, error)
}

func (e *Engine) exprParser() (ExprParser, error) {
	p, ok := e.parser.(ExprParser)
	if !ok {
		return nil, errs2.Internal.New("engine: configured parser does not support expression evaluation")
	}
	return p, nil
}

// EvaluateSignin implements iam.RecordEvaluator: it compiles and runs a
// record access method's SIGNIN/SIGNUP expression, returning the
// record id it resolves to.
func (e *Engine) EvaluateSignin(ctx context.Context, ns, db string, method catalog.AccessMethod, vars map[string]interface{}) (string, error) {
	parser, err := e.exprParser()
	if err != nil {
		return "", err
	}
	stmt, err := parser.ParseExpr(method.SigninExpr)
	if err != nil {
		return "", errs2.ParseErrorClass.Wrap(err)
	}

	opts := session.New(uuid.Nil, e.capabilitiesFallback()).
		WithNamespace(ns).WithDatabase(db).WithAuth(session.RecordAuth(ns, db, ""))

	result, err := e.Evaluate(ctx, stmt, opts, vars)
	if err != nil {
		return "", err
	}
	id, ok := result.(string)
	if !ok {
		return "", errs2.UnexpectedAuth.New("signin expression did not resolve to a record id")
	}
	return id, nil
}

// EvaluateAuthenticate implements iam.RecordEvaluator: it compiles and
// runs an access method's AUTHENTICATE expression against the
// already-minted auth, used to veto a token whose underlying record
// was disabled or altered since issuance.
func (e *Engine) EvaluateAuthenticate(ctx context.Context, ns, db string, method catalog.AccessMethod, auth session.Auth) error {
	if method.AuthenticateExpr == "" {
		return nil
	}
	parser, err := e.exprParser()
	if err != nil {
		return err
	}
	stmt, err := parser.ParseExpr(method.AuthenticateExpr)
	if err != nil {
		return errs2.ParseErrorClass.Wrap(err)
	}

	opts := session.New(uuid.Nil, e.capabilitiesFallback()).
		WithNamespace(ns).WithDatabase(db).WithAuth(auth)

	result, err := e.Evaluate(ctx, stmt, opts, nil)
	if err != nil {
		return err
	}
	if passed, ok := result.(bool); !ok || !passed {
		return errs2.ErrInvalidAuth
	}
	return nil
}

// ComputeIndexValues implements indexbuild.ValueComputer: it evaluates
// each of the index's field expressions against the decoded record and
// returns the resulting value tuple encoded the same way the writer
// path encodes it, so a builder-computed entry and a writer-computed
// entry for the same record are byte-identical.
func (e *Engine) ComputeIndexValues(ctx context.Context, ix catalog.Index, ridKey []byte, record storage.Value) ([]byte, error) {
	parser, err := e.exprParser()
	if err != nil {
		return nil, err
	}

	opts := session.New(uuid.Nil, e.capabilitiesFallback())
	vars := map[string]interface{}{"record": record, "id": ridKey}

	values := make([]interface{}, 0, len(ix.Fields))
	for _, fieldExpr := range ix.Fields {
		stmt, err := parser.ParseExpr(fieldExpr)
		if err != nil {
			return nil, errs2.ParseErrorClass.Wrap(err)
		}
		v, err := e.Evaluate(ctx, stmt, opts, vars)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return encodeIndexTuple(values)
}

var _ indexbuild.ValueComputer = (*Engine)(nil)
var _ iam.RecordEvaluator = (*Engine)(nil)

func (e *Engine) capabilitiesFallback() *session.Capabilities {
	return session.NewCapabilities()
}

func encodeIndexTuple(values []interface{}) ([]byte, error) {
	b, err := json.Marshal(values)
	if err != nil {
		return nil, errs2.Internal.Wrap(err)
	}
	return b, nil
}
