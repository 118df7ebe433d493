package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/parsemed/internal/attributes"
	"github.com/joseph-ayodele/parsemed/internal/common"
	"github.com/joseph-ayodele/parsemed/internal/pipeline"
)

// DocumentsServiceName is the fully qualified gRPC service name.
const DocumentsServiceName = "parsemed.v1.Documents"

// DocumentsServer is the gRPC Documents service. Requests and responses are
// google.protobuf.Struct messages.
type DocumentsServer interface {
	MarkdownToJSON(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeriveTables(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var DocumentsServiceDesc = grpc.ServiceDesc{
	ServiceName: DocumentsServiceName,
	HandlerType: (*DocumentsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "MarkdownToJSON", Handler: documentsHandler("MarkdownToJSON", DocumentsServer.MarkdownToJSON)},
		{MethodName: "DeriveTables", Handler: documentsHandler("DeriveTables", DocumentsServer.DeriveTables)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "parsemed/v1/documents.proto",
}

func RegisterDocumentsServer(s grpc.ServiceRegistrar, srv DocumentsServer) {
	s.RegisterService(&DocumentsServiceDesc, srv)
}

func documentsHandler(method string, call func(DocumentsServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	fullMethod := "/" + DocumentsServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(DocumentsServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(DocumentsServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// DocumentsClient calls the Documents service.
type DocumentsClient struct {
	cc grpc.ClientConnInterface
}

func NewDocumentsClient(cc grpc.ClientConnInterface) *DocumentsClient {
	return &DocumentsClient{cc: cc}
}

func (c *DocumentsClient) MarkdownToJSON(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+DocumentsServiceName+"/MarkdownToJSON", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *DocumentsClient) DeriveTables(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+DocumentsServiceName+"/DeriveTables", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// DocumentsService implements DocumentsServer on top of the pipeline.
type DocumentsService struct {
	processor *pipeline.Processor
	logger    *slog.Logger
}

func NewDocumentsService(processor *pipeline.Processor, logger *slog.Logger) *DocumentsService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentsService{processor: processor, logger: logger}
}

// MarkdownToJSON takes {markdown, filename?, template_id?} and returns
// {json, raw_json, model, repairs}. raw_json keeps the attribute order,
// which a Struct cannot.
func (s *DocumentsService) MarkdownToJSON(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	md := stringField(req, "markdown")
	out, err := s.processor.ExtractMarkdown(ctx, md, stringField(req, "filename"), stringField(req, "template_id"))
	if err != nil {
		return nil, common.ToStatus(err)
	}
	raw, err := json.Marshal(out.Document)
	if err != nil {
		return nil, common.InternalErrorf("encode document: %v", err)
	}
	repairs := make([]any, len(out.Repairs))
	for i, r := range out.Repairs {
		repairs[i] = r
	}
	resp, err := structpb.NewStruct(map[string]any{
		"json":     out.Document.Value().Interface(),
		"raw_json": string(raw),
		"model":    out.Model,
		"repairs":  repairs,
	})
	if err != nil {
		return nil, common.InternalErrorf("build response: %v", err)
	}
	return resp, nil
}

// DeriveTables takes a document, either as raw_json (order kept) or as a
// document struct, and returns the table view of every attribute.
func (s *DocumentsService) DeriveTables(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	doc, err := requestDocument(req)
	if err != nil {
		return nil, err
	}
	views := attributes.NewWorkspace(doc).Views()
	list := make([]any, 0, len(views))
	for _, v := range views {
		columns := make([]any, len(v.Table.Columns))
		for i, c := range v.Table.Columns {
			columns[i] = c
		}
		rows := make([]any, len(v.Table.Rows))
		for i, row := range v.Table.Rows {
			cells := make([]any, len(row))
			for j, c := range row {
				cells[j] = c
			}
			rows[i] = cells
		}
		list = append(list, map[string]any{
			"key":     v.Key,
			"shape":   v.Shape,
			"columns": columns,
			"rows":    rows,
		})
	}
	s.logger.Debug("grpc.derive_tables.ok", "attributes", len(list))
	resp, err := structpb.NewStruct(map[string]any{"attributes": list})
	if err != nil {
		return nil, common.InternalErrorf("build response: %v", err)
	}
	return resp, nil
}

func requestDocument(req *structpb.Struct) (*attributes.Document, error) {
	if raw := stringField(req, "raw_json"); raw != "" {
		doc, err := attributes.ParseDocument([]byte(raw))
		if err != nil {
			return nil, common.InvalidArgumentErrorf("raw_json: %v", err)
		}
		return doc, nil
	}
	st := req.GetFields()["document"].GetStructValue()
	if st == nil {
		return nil, common.InvalidArgumentError("raw_json or document is required")
	}
	v, err := attributes.FromInterface(st.AsMap())
	if err != nil {
		return nil, common.InvalidArgumentErrorf("document: %v", err)
	}
	doc, err := attributes.DocumentFromValue(v)
	if err != nil {
		return nil, common.InvalidArgumentErrorf("document: %v", err)
	}
	return doc, nil
}

func stringField(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

// NewGRPCServer builds a server carrying the health service and the
// Documents service.
func NewGRPCServer(docs DocumentsServer, logger *slog.Logger) (*grpc.Server, *health.Server) {
	if logger == nil {
		logger = slog.Default()
	}
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(unaryLogging(logger)))

	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(DocumentsServiceName, healthpb.HealthCheckResponse_SERVING)

	RegisterDocumentsServer(s, docs)
	return s, hs
}

func unaryLogging(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		id := ""
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if v := md.Get("x-request-id"); len(v) > 0 {
				id = v[0]
			}
		}
		if id == "" {
			id = uuid.NewString()
		}
		ctx = common.WithRequestID(ctx, id)

		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		level := slog.LevelInfo
		if code != codes.OK && code != codes.InvalidArgument && code != codes.NotFound {
			level = slog.LevelError
		}
		common.LoggerFrom(ctx, logger).Log(ctx, level, "grpc.request",
			"method", info.FullMethod,
			"code", code.String(),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return resp, err
	}
}
