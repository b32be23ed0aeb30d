package transport

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

/*
gRPC transport

Frames ride in a single unary RPC, seqcast.v1.FrameService/Deliver, whose
request is a google.protobuf.BytesValue holding the encoded frame and whose
response is google.protobuf.Empty. Using the well-known wrapper types keeps
the service free of generated code; the service descriptor below is what
protoc-gen-go-grpc would emit for:

	service FrameService {
	  rpc Deliver(google.protobuf.BytesValue) returns (google.protobuf.Empty);
	}
*/

const (
	frameServiceName = "seqcast.v1.FrameService"
	deliverMethod    = "/" + frameServiceName + "/Deliver"
)

// frameServiceServer is the server API for FrameService.
type frameServiceServer interface {
	Deliver(context.Context, *wrapperspb.BytesValue) (*emptypb.Empty, error)
}

var frameServiceDesc = grpc.ServiceDesc{
	ServiceName: frameServiceName,
	HandlerType: (*frameServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Deliver",
			Handler:    deliverHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "seqcast/v1/frame.proto",
}

func deliverHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(frameServiceServer).Deliver(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: deliverMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(frameServiceServer).Deliver(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

// GRPC delivers frames as unary RPCs. Client connections are cached per
// address and closed by Close.
type GRPC struct {
	opts  Options
	mu    sync.Mutex
	conns map[string]*grpc.ClientConn
}

func NewGRPC(opts Options) *GRPC {
	if opts.Log == nil {
		opts.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &GRPC{
		opts:  opts,
		conns: make(map[string]*grpc.ClientConn),
	}
}

func (g *GRPC) NewServer(addr string, handler FrameHandler) (Server, error) {
	if addr == "" || !strings.Contains(addr, ":") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}
	if handler == nil {
		return nil, fmt.Errorf("handler must be provided")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &GRPCServer{
		addr:    addr,
		srv:     grpc.NewServer(),
		handler: handler,
		log:     g.opts.Log,
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

func (g *GRPC) Send(ctx context.Context, addr string, frame []byte) error {
	conn, err := g.client(addr)
	if err != nil {
		return err
	}
	if g.opts.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.opts.DialTimeout)
		defer cancel()
	}
	if err := conn.Invoke(ctx, deliverMethod, wrapperspb.Bytes(frame), new(emptypb.Empty)); err != nil {
		return fmt.Errorf("deliver to %s: %w", addr, err)
	}
	return nil
}

func (g *GRPC) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var firstErr error
	for addr, conn := range g.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %s: %w", addr, err)
		}
		delete(g.conns, addr)
	}
	return firstErr
}

func (g *GRPC) client(addr string) (*grpc.ClientConn, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if conn, ok := g.conns[addr]; ok {
		return conn, nil
	}
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create client for %s: %w", addr, err)
	}
	g.conns[addr] = conn
	return conn, nil
}

// GRPCServer serves FrameService on one address.
type GRPCServer struct {
	addr    string
	srv     *grpc.Server
	handler FrameHandler
	log     *logrus.Entry

	mu  sync.Mutex
	lis net.Listener

	ctx    context.Context
	cancel context.CancelFunc
}

// Deliver hands the frame to the handler with the server's lifetime context,
// not the RPC's, so work started by the handler outlives the call.
func (s *GRPCServer) Deliver(_ context.Context, in *wrapperspb.BytesValue) (*emptypb.Empty, error) {
	if len(in.GetValue()) > 0 {
		s.handler(s.ctx, in.GetValue())
	}
	return &emptypb.Empty{}, nil
}

// Start performs binding synchronously and returns an error immediately if
// binding fails. If binding succeeds, it spawns Serve in a goroutine.
func (s *GRPCServer) Start() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.mu.Lock()
	s.lis = lis
	s.mu.Unlock()

	s.srv.RegisterService(&frameServiceDesc, s)

	go func() {
		if err := s.srv.Serve(lis); err != nil {
			s.log.WithError(err).Error("gRPC server stopped")
		}
	}()
	return nil
}

func (s *GRPCServer) Stop() error {
	s.cancel()
	s.srv.GracefulStop()
	return nil
}

func (s *GRPCServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lis == nil {
		return s.addr
	}
	return s.lis.Addr().String()
}
