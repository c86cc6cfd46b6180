// Package grpcapi exposes the interpreter and the script store over gRPC.
//
// The service is described by a hand-written grpc.ServiceDesc whose messages
// are protobuf well-known types, so clients need no generated stubs: they
// call conn.Invoke with the full method name, for example
// "/oida.v1.Interpreter/Eval".
package grpcapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/lemonberrylabs/oida/pkg/api"
	"github.com/lemonberrylabs/oida/pkg/parser"
	"github.com/lemonberrylabs/oida/pkg/runtime"
	"github.com/lemonberrylabs/oida/pkg/store"
	"github.com/lemonberrylabs/oida/pkg/types"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "oida.v1.Interpreter"

// InterpreterServer is the server API of the oida.v1.Interpreter service.
type InterpreterServer interface {
	// Eval runs a program and returns its output, diagnostics and fatal error.
	Eval(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	// Check parses a program without running it. A syntax error is reported
	// in the response, not as a call error.
	Check(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	// CreateScript stores a script from a struct with id, source and description.
	CreateScript(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetScript(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	ListScripts(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	// RunScript runs a stored script to completion and returns the recorded run.
	RunScript(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
}

// Server implements InterpreterServer.
type Server struct {
	store   *store.Store
	logger  *slog.Logger
	runOpts []runtime.Option
	grpc    *grpc.Server
}

// New creates a new gRPC server wrapping the given store. opts configure
// the interpreter of every Eval and RunScript call.
func New(s *store.Store, logger *slog.Logger, opts ...runtime.Option) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	srv := &Server{
		store:   s,
		logger:  logger,
		runOpts: append(opts[:len(opts):len(opts)], runtime.WithLogger(logger)),
	}

	gs := grpc.NewServer(grpc.UnaryInterceptor(srv.logCalls))
	gs.RegisterService(&serviceDesc, srv)
	srv.grpc = gs

	return srv
}

// Serve starts listening on the given address and serves gRPC requests.
func (s *Server) Serve(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	return s.grpc.Serve(lis)
}

// GracefulStop gracefully stops the gRPC server.
func (s *Server) GracefulStop() {
	s.grpc.GracefulStop()
}

func (s *Server) logCalls(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.logger.Debug("grpc call",
		"method", info.FullMethod,
		"code", status.Code(err).String(),
		"duration", time.Since(start))
	return resp, err
}

// --- Interpreter ---

func (s *Server) Eval(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	out := runtime.Execute(ctx, req.GetValue(), s.runOpts...)
	if types.IsKind(out.Err, types.KindSyntaxFailure) {
		return nil, status.Error(codes.InvalidArgument, out.Err.Error())
	}

	result := map[string]interface{}{
		"output":      out.Output,
		"diagnostics": stringList(out.Diagnostics),
		"steps":       out.Steps,
		"value":       out.Value.ToGoValue(),
	}
	if out.Err != nil {
		result["error"] = types.Details(out.Err)
	}
	return toStruct(result)
}

func (s *Server) Check(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	result := map[string]interface{}{"ok": true}
	if _, err := parser.ParseSource(req.GetValue()); err != nil {
		result["ok"] = false
		result["error"] = types.Details(err)
	}
	return toStruct(result)
}

// --- Scripts ---

func (s *Server) CreateScript(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	id := fields["id"].GetStringValue()
	src := fields["source"].GetStringValue()
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}
	if !api.ValidScriptID(id) {
		return nil, status.Errorf(codes.InvalidArgument, "invalid id %q", id)
	}
	if src == "" {
		return nil, status.Error(codes.InvalidArgument, "source is required")
	}
	if _, err := parser.ParseSource(src); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid script: %v", err)
	}

	sc, err := s.store.CreateScript(id, src, fields["description"].GetStringValue())
	if err != nil {
		return nil, storeStatus(err)
	}
	return toStruct(scriptMap(sc))
}

func (s *Server) GetScript(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	sc, err := s.store.GetScript(req.GetValue())
	if err != nil {
		return nil, storeStatus(err)
	}
	return toStruct(scriptMap(sc))
}

func (s *Server) ListScripts(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	scripts := s.store.ListScripts()
	items := make([]interface{}, len(scripts))
	for i, sc := range scripts {
		items[i] = scriptMap(sc)
	}
	return toStruct(map[string]interface{}{"scripts": items})
}

func (s *Server) RunScript(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	sc, err := s.store.GetScript(req.GetValue())
	if err != nil {
		return nil, storeStatus(err)
	}
	run, err := s.store.CreateRun(sc.ID)
	if err != nil {
		return nil, storeStatus(err)
	}

	out := runtime.Execute(ctx, sc.Source, s.runOpts...)
	switch {
	case ctx.Err() != nil:
		err = s.store.CancelRun(sc.ID, run.ID)
	case out.Err != nil:
		err = s.store.FailRun(sc.ID, run.ID, out.Output, out.Diagnostics, out.Err)
	default:
		err = s.store.CompleteRun(sc.ID, run.ID, out.Output, out.Diagnostics, out.Steps)
	}
	if err != nil {
		return nil, storeStatus(err)
	}

	run, err = s.store.GetRun(sc.ID, run.ID)
	if err != nil {
		return nil, storeStatus(err)
	}
	return toStruct(runMap(run))
}

// --- Internal helpers ---

func storeStatus(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, store.ErrAlreadyExists):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, store.ErrNotActive):
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func toStruct(m map[string]interface{}) (*structpb.Struct, error) {
	st, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	return st, nil
}

// stringList converts to the element type structpb accepts.
func stringList(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func errorMap(message, kind string) map[string]interface{} {
	return map[string]interface{}{"message": message, "kind": kind}
}

func scriptMap(sc store.Script) map[string]interface{} {
	return map[string]interface{}{
		"id":          sc.ID,
		"description": sc.Description,
		"state":       string(sc.State),
		"revisionId":  sc.RevisionID,
		"createTime":  sc.CreateTime.Format(time.RFC3339),
		"updateTime":  sc.UpdateTime.Format(time.RFC3339),
		"source":      sc.Source,
	}
}

func runMap(r store.Run) map[string]interface{} {
	m := map[string]interface{}{
		"id":               r.ID,
		"scriptId":         r.ScriptID,
		"state":            string(r.State),
		"output":           r.Output,
		"diagnostics":      stringList(r.Diagnostics),
		"steps":            r.Steps,
		"startTime":        r.StartTime.Format(time.RFC3339),
		"scriptRevisionId": r.ScriptRevisionID,
	}
	if !r.EndTime.IsZero() {
		m["endTime"] = r.EndTime.Format(time.RFC3339)
	}
	if r.Error != nil {
		m["error"] = errorMap(r.Error.Message, r.Error.Kind)
	}
	return m
}

// --- Service description ---

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*InterpreterServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Eval", Handler: unary("Eval", InterpreterServer.Eval, newStringValue)},
		{MethodName: "Check", Handler: unary("Check", InterpreterServer.Check, newStringValue)},
		{MethodName: "CreateScript", Handler: unary("CreateScript", InterpreterServer.CreateScript, newStruct)},
		{MethodName: "GetScript", Handler: unary("GetScript", InterpreterServer.GetScript, newStringValue)},
		{MethodName: "ListScripts", Handler: unary("ListScripts", InterpreterServer.ListScripts, newEmpty)},
		{MethodName: "RunScript", Handler: unary("RunScript", InterpreterServer.RunScript, newStringValue)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "oida/v1/interpreter.proto",
}

func newStringValue() *wrapperspb.StringValue { return &wrapperspb.StringValue{} }
func newStruct() *structpb.Struct             { return &structpb.Struct{} }
func newEmpty() *emptypb.Empty                { return &emptypb.Empty{} }

type methodHandler = func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error)

// unary builds the handler of one method the way protoc-gen-go-grpc does
// for generated services.
func unary[Req, Resp proto.Message](method string, call func(InterpreterServer, context.Context, Req) (Resp, error), newReq func() Req) methodHandler {
	fullMethod := "/" + ServiceName + "/" + method
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := newReq()
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(InterpreterServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(InterpreterServer), ctx, req.(Req))
		})
	}
}
