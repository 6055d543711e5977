// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

package engine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"storj.io/coredb/pkg/catalog"
	"storj.io/coredb/pkg/engine"
	"storj.io/coredb/pkg/errs2"
	"storj.io/coredb/pkg/session"
	"storj.io/coredb/pkg/storage"
)

// exprStmt evaluates to a fixed value, standing in for a compiled
// single-expression Statement.
type exprStmt struct {
	value interface{}
	err   error
}

func (s exprStmt) ReadOnly() bool { return true }

func (s exprStmt) Execute(ctx context.Context, ec *engine.ExecContext) (interface{}, error) {
	return s.value, s.err
}

// exprParser compiles expression source into the exprStmt its table
// maps it to, so each test controls what a given expression evaluates
// to without a real grammar.
type exprParser struct {
	byExpr map[string]exprStmt
}

func (p exprParser) Parse(src string) (engine.Plan, error) {
	return engine.Plan{}, errs2.Internal.New("exprParser only supports ParseExpr")
}

func (p exprParser) ParseExpr(src string) (engine.Statement, error) {
	stmt, ok := p.byExpr[src]
	if !ok {
		return nil, errs2.ParseErrorClass.New("unknown expression: %s", src)
	}
	return stmt, nil
}

func newBridgeEngine(t *testing.T, parser exprParser) *engine.Engine {
	return newEngine(t, parser)
}

func TestEvaluateSigninResolvesRecordID(t *testing.T) {
	ctx := context.Background()
	parser := exprParser{byExpr: map[string]exprStmt{
		"SELECT id FROM user WHERE email = $email": {value: "user:abc123"},
	}}
	e := newBridgeEngine(t, parser)

	method := catalog.AccessMethod{Kind: catalog.AccessRecord, SigninExpr: "SELECT id FROM user WHERE email = $email"}
	id, err := e.EvaluateSignin(ctx, "ns", "db", method, map[string]interface{}{"email": "a@b.com"})
	require.NoError(t, err)
	require.Equal(t, "user:abc123", id)
}

func TestEvaluateSigninRejectsNonStringResult(t *testing.T) {
	ctx := context.Background()
	parser := exprParser{byExpr: map[string]exprStmt{
		"bad expr": {value: 42},
	}}
	e := newBridgeEngine(t, parser)

	method := catalog.AccessMethod{Kind: catalog.AccessRecord, SigninExpr: "bad expr"}
	_, err := e.EvaluateSignin(ctx, "ns", "db", method, nil)
	require.Error(t, err)
	require.True(t, errs2.UnexpectedAuth.Has(err))
}

func TestEvaluateAuthenticateEmptyExprPasses(t *testing.T) {
	ctx := context.Background()
	e := newBridgeEngine(t, exprParser{byExpr: map[string]exprStmt{}})
	method := catalog.AccessMethod{Kind: catalog.AccessRecord}
	err := e.EvaluateAuthenticate(ctx, "ns", "db", method, session.RecordAuth("ns", "db", "user:1"))
	require.NoError(t, err)
}

func TestEvaluateAuthenticateFailureMapsToInvalidAuth(t *testing.T) {
	ctx := context.Background()
	parser := exprParser{byExpr: map[string]exprStmt{
		"record.enabled = true": {value: false},
	}}
	e := newBridgeEngine(t, parser)
	method := catalog.AccessMethod{Kind: catalog.AccessRecord, AuthenticateExpr: "record.enabled = true"}
	err := e.EvaluateAuthenticate(ctx, "ns", "db", method, session.RecordAuth("ns", "db", "user:1"))
	require.ErrorIs(t, err, errs2.ErrInvalidAuth)
}

func TestComputeIndexValuesEncodesFieldTuple(t *testing.T) {
	ctx := context.Background()
	parser := exprParser{byExpr: map[string]exprStmt{
		"record.name": {value: "alice"},
		"record.age":  {value: float64(30)},
	}}
	e := newBridgeEngine(t, parser)

	ix := catalog.Index{Fields: []string{"record.name", "record.age"}}
	tuple, err := e.ComputeIndexValues(ctx, ix, []byte("rid-1"), storage.Value(`{"name":"alice","age":30}`))
	require.NoError(t, err)
	require.JSONEq(t, `["alice",30]`, string(tuple))
}

func TestEngineWithoutExprParserSupportFails(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, nil)
	method := catalog.AccessMethod{Kind: catalog.AccessRecord, SigninExpr: "anything"}
	_, err := e.EvaluateSignin(ctx, "ns", "db", method, nil)
	require.Error(t, err)
	require.True(t, errs2.Internal.Has(err))
}
