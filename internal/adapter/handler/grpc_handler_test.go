package handler

import (
	"context"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/rl1809/flash-deal/internal/core/domain"
)

func TestGRPCPurchase_RoundTrip(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	orders := newMockOrderService()
	RegisterOrderServiceServer(srv, NewGRPCHandler(orders))
	go srv.Serve(lis)
	defer srv.Stop()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	client := NewOrderServiceClient(conn)
	resp, err := client.Purchase(context.Background(), &PurchaseRequest{
		RequestID: "req-1", UserID: "user-1", ProductID: "prod-1", Quantity: 1,
	})
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if !resp.Success || resp.OrderID != domain.OrderIDFor("user-1", "req-1") {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestGRPCPurchase_SoldOut(t *testing.T) {
	orders := newMockOrderService()
	orders.purchaseErr = domain.ErrInsufficientStock

	resp, err := NewGRPCHandler(orders).Purchase(context.Background(), &PurchaseRequest{
		RequestID: "req-1", UserID: "user-1", ProductID: "prod-1", Quantity: 1,
	})
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}
	if resp.Success || resp.Message != "sold out" {
		t.Errorf("unexpected response %+v", resp)
	}
}
