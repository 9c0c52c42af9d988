// Package remote reads the upstream source over gRPC. Messages are JSON
// encoded through a registered codec, so no generated stubs are involved.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/syntrixbase/inventory/internal/core/source"
	"github.com/syntrixbase/inventory/internal/inventory/model"
)

// Client is a gRPC client for the source service.
type Client struct {
	conn    *grpc.ClientConn
	timeout time.Duration
}

var _ source.Source = (*Client)(nil)

// newClientFunc is the function used to create a gRPC client connection.
// This is a package-level variable to allow testing.
var newClientFunc = grpc.NewClient

// New creates a source client. timeout bounds unary calls; zero disables it.
func New(address string, timeout time.Duration, opts ...grpc.DialOption) (*Client, error) {
	defaultOpts := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	conn, err := newClientFunc(address, append(defaultOpts, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to source service: %w", err)
	}
	return &Client{conn: conn, timeout: timeout}, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Client) invoke(ctx context.Context, name string, req, resp any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	err := c.conn.Invoke(ctx, fullMethod(name), req, resp, grpc.CallContentSubtype(codecName))
	return statusToError(err)
}

func (c *Client) ObjectClasses(ctx context.Context) ([]model.TMO, error) {
	var resp batch[model.TMO]
	if err := c.invoke(ctx, methodObjectClasses, &request{}, &resp); err != nil {
		return nil, err
	}
	return resp.Objects, nil
}

func (c *Client) ParameterTypes(ctx context.Context, tmoID int64) ([]model.TPRM, error) {
	var resp batch[model.TPRM]
	if err := c.invoke(ctx, methodParameterTypes, &request{TMOID: tmoID}, &resp); err != nil {
		return nil, err
	}
	return resp.Objects, nil
}

func (c *Client) ParameterTypesByID(ctx context.Context, ids []int64) ([]model.TPRM, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var resp batch[model.TPRM]
	if err := c.invoke(ctx, methodParameterTypesByID, &request{IDs: ids}, &resp); err != nil {
		return nil, err
	}
	return resp.Objects, nil
}

func (c *Client) StreamParameters(ctx context.Context, tprmID int64, fn func([]model.PRM) error) error {
	return receive(ctx, c.conn, methodStreamParameters, &request{TPRMID: tprmID}, fn)
}

func (c *Client) StreamObjects(ctx context.Context, tmoID int64, fn func([]model.MO) error) error {
	return receive(ctx, c.conn, methodStreamObjects, &request{TMOID: tmoID}, fn)
}

// receive opens a server stream and hands every chunk to fn. An error from fn
// cancels the stream.
func receive[T any](ctx context.Context, conn *grpc.ClientConn, name string, req any, fn func([]T) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	desc := &grpc.StreamDesc{StreamName: name, ServerStreams: true}
	cs, err := conn.NewStream(ctx, desc, fullMethod(name), grpc.CallContentSubtype(codecName))
	if err != nil {
		return statusToError(err)
	}
	if err := cs.SendMsg(req); err != nil {
		return statusToError(err)
	}
	if err := cs.CloseSend(); err != nil {
		return statusToError(err)
	}
	for {
		var chunk batch[T]
		err := cs.RecvMsg(&chunk)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return statusToError(err)
		}
		if err := fn(chunk.Objects); err != nil {
			return err
		}
	}
}

// statusToError converts gRPC status errors to source errors.
func statusToError(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.NotFound:
		return fmt.Errorf("%w: %s", source.ErrNotFound, st.Message())
	case codes.Canceled:
		return context.Canceled
	case codes.DeadlineExceeded:
		return context.DeadlineExceeded
	default:
		return fmt.Errorf("source: %s", st.Message())
	}
}
