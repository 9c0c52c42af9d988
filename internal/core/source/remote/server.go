package remote

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/syntrixbase/inventory/internal/core/source"
	"github.com/syntrixbase/inventory/internal/inventory/model"
)

// Register serves src on s under the source service name.
func Register(s grpc.ServiceRegistrar, src source.Source) {
	s.RegisterService(&serviceDesc, src)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*source.Source)(nil),
	Methods: []grpc.MethodDesc{
		unary(methodObjectClasses, func(ctx context.Context, src source.Source, _ *request) (any, error) {
			tmos, err := src.ObjectClasses(ctx)
			return &batch[model.TMO]{Objects: tmos}, err
		}),
		unary(methodParameterTypes, func(ctx context.Context, src source.Source, req *request) (any, error) {
			tprms, err := src.ParameterTypes(ctx, req.TMOID)
			return &batch[model.TPRM]{Objects: tprms}, err
		}),
		unary(methodParameterTypesByID, func(ctx context.Context, src source.Source, req *request) (any, error) {
			tprms, err := src.ParameterTypesByID(ctx, req.IDs)
			return &batch[model.TPRM]{Objects: tprms}, err
		}),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    methodStreamParameters,
			ServerStreams: true,
			Handler: func(srv any, stream grpc.ServerStream) error {
				var req request
				if err := stream.RecvMsg(&req); err != nil {
					return err
				}
				err := srv.(source.Source).StreamParameters(stream.Context(), req.TPRMID, func(prms []model.PRM) error {
					return stream.SendMsg(&batch[model.PRM]{Objects: prms})
				})
				return errorToStatus(err)
			},
		},
		{
			StreamName:    methodStreamObjects,
			ServerStreams: true,
			Handler: func(srv any, stream grpc.ServerStream) error {
				var req request
				if err := stream.RecvMsg(&req); err != nil {
					return err
				}
				err := srv.(source.Source).StreamObjects(stream.Context(), req.TMOID, func(mos []model.MO) error {
					return stream.SendMsg(&batch[model.MO]{Objects: mos})
				})
				return errorToStatus(err)
			},
		},
	},
}

func unary(name string, call func(context.Context, source.Source, *request) (any, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(request)
			if err := dec(in); err != nil {
				return nil, err
			}
			handler := func(ctx context.Context, req any) (any, error) {
				resp, err := call(ctx, srv.(source.Source), req.(*request))
				if err != nil {
					return nil, errorToStatus(err)
				}
				return resp, nil
			}
			if interceptor == nil {
				return handler(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func errorToStatus(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, source.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
