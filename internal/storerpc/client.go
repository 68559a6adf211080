package storerpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// StoreClient mirrors StoreServer on the calling side.
type StoreClient interface {
	Insert(ctx context.Context, in *InsertRequest) (*InsertResponse, error)
	Select(ctx context.Context, in *SelectRequest) (*SelectResponse, error)
	DropTable(ctx context.Context, in *DropTableRequest) (*DropTableResponse, error)
}

type client struct {
	cc grpc.ClientConnInterface
}

func NewStoreClient(cc grpc.ClientConnInterface) StoreClient {
	return &client{cc: cc}
}

// Dial creates a lazily connecting client connection. Reachability is only
// known at the first call.
func Dial(target string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	base := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	}
	return grpc.NewClient(target, append(base, opts...)...)
}

func (c *client) Insert(ctx context.Context, in *InsertRequest) (*InsertResponse, error) {
	out := new(InsertResponse)
	if err := c.cc.Invoke(ctx, insertMethod, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *client) Select(ctx context.Context, in *SelectRequest) (*SelectResponse, error) {
	out := new(SelectResponse)
	if err := c.cc.Invoke(ctx, selectMethod, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *client) DropTable(ctx context.Context, in *DropTableRequest) (*DropTableResponse, error) {
	out := new(DropTableResponse)
	if err := c.cc.Invoke(ctx, dropTableMethod, in, out); err != nil {
		return nil, err
	}
	return out, nil
}
