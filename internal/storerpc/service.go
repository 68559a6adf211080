package storerpc

import (
	"context"

	"google.golang.org/grpc"
)

// StoreServer is implemented by store backends.
type StoreServer interface {
	Insert(context.Context, *InsertRequest) (*InsertResponse, error)
	Select(context.Context, *SelectRequest) (*SelectResponse, error)
	DropTable(context.Context, *DropTableRequest) (*DropTableResponse, error)
}

func RegisterStoreServer(s grpc.ServiceRegistrar, srv StoreServer) {
	s.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*StoreServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Insert", Handler: insertHandler},
		{MethodName: "Select", Handler: selectHandler},
		{MethodName: "DropTable", Handler: dropTableHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "generic.proto",
}

func insertHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(InsertRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StoreServer).Insert(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: insertMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(StoreServer).Insert(ctx, req.(*InsertRequest))
	})
}

func selectHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(SelectRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StoreServer).Select(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: selectMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(StoreServer).Select(ctx, req.(*SelectRequest))
	})
}

func dropTableHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(DropTableRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StoreServer).DropTable(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: dropTableMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(StoreServer).DropTable(ctx, req.(*DropTableRequest))
	})
}
