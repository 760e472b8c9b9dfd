package handler

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"

	"github.com/rl1809/flash-deal/internal/core/service"
)

const purchaseMethod = "/flashdeal.v1.OrderService/Purchase"

type PurchaseRequest struct {
	RequestID string `json:"request_id"`
	UserID    string `json:"user_id"`
	ProductID string `json:"product_id"`
	Quantity  int32  `json:"quantity"`
}

type PurchaseResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	OrderID string `json:"order_id,omitempty"`
}

type OrderServiceServer interface {
	Purchase(ctx context.Context, req *PurchaseRequest) (*PurchaseResponse, error)
}

var orderServiceDesc = grpc.ServiceDesc{
	ServiceName: "flashdeal.v1.OrderService",
	HandlerType: (*OrderServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Purchase", Handler: purchaseHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "flashdeal/v1/order.proto",
}

func purchaseHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(PurchaseRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OrderServiceServer).Purchase(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: purchaseMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(OrderServiceServer).Purchase(ctx, req.(*PurchaseRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func RegisterOrderServiceServer(s grpc.ServiceRegistrar, srv OrderServiceServer) {
	s.RegisterService(&orderServiceDesc, srv)
}

// OrderServiceClient calls Purchase over a connection using the JSON codec.
type OrderServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewOrderServiceClient(cc grpc.ClientConnInterface) *OrderServiceClient {
	return &OrderServiceClient{cc: cc}
}

func (c *OrderServiceClient) Purchase(ctx context.Context, in *PurchaseRequest, opts ...grpc.CallOption) (*PurchaseResponse, error) {
	out := new(PurchaseResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, purchaseMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

type GRPCHandler struct {
	orderService OrderService
}

func NewGRPCHandler(orderService OrderService) *GRPCHandler {
	return &GRPCHandler{orderService: orderService}
}

// Purchase reports business outcomes in the response body; the call itself
// only fails on transport problems.
func (h *GRPCHandler) Purchase(ctx context.Context, req *PurchaseRequest) (*PurchaseResponse, error) {
	order, err := h.orderService.Purchase(ctx, service.PurchaseRequest{
		RequestID: req.RequestID,
		UserID:    req.UserID,
		ProductID: req.ProductID,
		Quantity:  int(req.Quantity),
	})
	if err != nil {
		status, message := classify(err)
		if status >= http.StatusInternalServerError {
			log.Error().Err(err).Str("method", purchaseMethod).Msg("purchase failed")
		}
		return &PurchaseResponse{
			Success: false,
			Message: message,
		}, nil
	}

	return &PurchaseResponse{
		Success: true,
		Message: "order placed successfully",
		OrderID: order.ID,
	}, nil
}
