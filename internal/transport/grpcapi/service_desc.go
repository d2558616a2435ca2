package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Контракт без .proto: единственный метод Execute(Struct) → Struct.
// Поле "op" выбирает операцию леджера, остальные поля: ее аргументы.
const (
	ServiceName   = "treasury.v1.LedgerService"
	ExecuteMethod = "/" + ServiceName + "/Execute"
)

// LedgerServiceServer: серверная сторона контракта.
type LedgerServiceServer interface {
	Execute(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

func RegisterLedgerServiceServer(s grpc.ServiceRegistrar, srv LedgerServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LedgerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Execute", Handler: executeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "treasury/v1/ledger.proto",
}

func executeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServiceServer).Execute(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ExecuteMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(LedgerServiceServer).Execute(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// Client: клиентская сторона контракта.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) Execute(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ExecuteMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Call оборачивает Execute: аргументы как map, ответ как map.
func (c *Client) Call(ctx context.Context, op string, args map[string]interface{}) (map[string]interface{}, error) {
	m := map[string]interface{}{"op": op}
	for k, v := range args {
		m[k] = v
	}
	req, err := structpb.NewStruct(m)
	if err != nil {
		return nil, err
	}
	resp, err := c.Execute(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.AsMap(), nil
}
